package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/matchintel/internal/intel"
	"github.com/kiranshivaraju/matchintel/internal/jobstate"
	"github.com/kiranshivaraju/matchintel/internal/store"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// Errors returned synchronously to callers. Background failures never surface
// as errors; they are recorded on the job as models.ErrorInfo.
var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateActiveJob = store.ErrDuplicateActiveJob
	ErrNotFound           = store.ErrNotFound
	ErrInvalidTransition  = jobstate.ErrInvalidTransition
	ErrTransientEngine    = models.ErrEngineTransient
	ErrPermanentEngine    = models.ErrEnginePermanent
	ErrTimeout            = errors.New("processing exceeded the time limit")
	ErrResultNotReady     = errors.New("result not ready")
	ErrResultFailed       = errors.New("analysis failed")
)

// ValidationError rejects a request before any job exists.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalidField(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ResultNotReadyError is returned by GetResult while the analysis has no result.
type ResultNotReadyError struct {
	State models.State
}

func (e *ResultNotReadyError) Error() string {
	return fmt.Sprintf("result not ready: analysis is %s", e.State)
}

func (e *ResultNotReadyError) Is(target error) bool { return target == ErrResultNotReady }

// ResultFailedError carries the failure recorded on the analysis.
type ResultFailedError struct {
	Info models.ErrorInfo
}

func (e *ResultFailedError) Error() string {
	return fmt.Sprintf("analysis failed: %s", e.Info.Message)
}

func (e *ResultFailedError) Is(target error) bool { return target == ErrResultFailed }

// Failure kinds recorded in ErrorInfo.Kind.
const (
	KindTransientEngine = "transient_engine"
	KindEngineRejected  = "engine_rejected"
	KindInvalidResult   = "invalid_result"
	KindTimeout         = "timeout"
	KindRenderFailed    = "render_failed"
	KindInternal        = "internal"
	KindInterrupted     = "interrupted"
	KindOverloaded      = "overloaded"
)

var failureCatalog = map[string]struct{ message, action string }{
	KindTransientEngine: {"analysis engine temporarily unavailable", "retry the analysis"},
	KindEngineRejected:  {"engine could not process the video", "re-upload the video"},
	KindInvalidResult:   {"engine returned an incomplete result", "contact support"},
	KindTimeout:         {"processing exceeded the time limit", "retry the analysis"},
	KindRenderFailed:    {"export could not be generated", "request the export again"},
	KindInternal:        {"unexpected processing error", "contact support"},
	KindInterrupted:     {"service restarted during processing", "retry"},
	KindOverloaded:      {"service is at capacity", "retry in a few minutes"},
}

// failure builds the user-facing record for kind. cause only reaches Detail.
func failure(kind string, cause error) models.ErrorInfo {
	entry, ok := failureCatalog[kind]
	if !ok {
		kind, entry = KindInternal, failureCatalog[KindInternal]
	}
	info := models.ErrorInfo{Kind: kind, Message: entry.message, Action: entry.action}
	if cause != nil {
		info.Detail = cause.Error()
	}
	return info
}

// classifyAnalysis maps an engine-side error to its failure record.
func classifyAnalysis(err error) models.ErrorInfo {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return failure(KindTimeout, err)
	case errors.Is(err, intel.ErrInvalidResult):
		return failure(KindInvalidResult, err)
	case errors.Is(err, ErrTransientEngine):
		return failure(KindTransientEngine, err)
	case errors.Is(err, ErrPermanentEngine):
		return failure(KindEngineRejected, err)
	default:
		return failure(KindInternal, err)
	}
}

// classifyExport maps a renderer error to its failure record.
func classifyExport(err error) models.ErrorInfo {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return failure(KindTimeout, err)
	default:
		return failure(KindRenderFailed, err)
	}
}

// engineOutcome labels an engine invocation for metrics.
func engineOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, errJobFinished), errors.Is(err, context.Canceled):
		return "aborted"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, intel.ErrInvalidResult):
		return "invalid"
	case errors.Is(err, ErrTransientEngine):
		return "transient"
	default:
		return "permanent"
	}
}
