// Package jobstate is the only place where a job's lifecycle fields change.
// Stores call Apply under their per-job lock and persist whatever it returns.
package jobstate

import (
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// ErrInvalidTransition is returned when an event is not allowed from the job's
// current state. The job is left unchanged.
var ErrInvalidTransition = errors.New("invalid job state transition")

// EventKind names a requested transition.
type EventKind string

const (
	EventStart    EventKind = "start"
	EventProgress EventKind = "progress"
	EventRetry    EventKind = "retry"
	EventSucceed  EventKind = "succeed"
	EventFail     EventKind = "fail"
	EventCancel   EventKind = "cancel"
)

// Effect tells the caller what an accepted event actually did.
type Effect string

const (
	EffectStarted    Effect = "started"
	EffectProgressed Effect = "progressed"
	EffectRetried    Effect = "retried"
	EffectCompleted  Effect = "completed"
	EffectFailed     Effect = "failed"
	EffectCancelled  Effect = "cancelled"
	// EffectIgnored means the event was accepted but changed nothing:
	// a progress regression or a cancel against a terminal job.
	EffectIgnored Effect = "ignored"
)

// Terminal reports whether the effect moved the job into a terminal state.
func (e Effect) Terminal() bool {
	return e == EffectCompleted || e == EffectFailed || e == EffectCancelled
}

// Event is a requested transition. P is the payload stored on success:
// models.IntelligenceResult for analyses, models.ArtifactRef for exports.
type Event[P any] struct {
	Kind     EventKind
	Progress int
	Step     string
	Payload  *P
	Error    *models.ErrorInfo
}

func Start[P any](step string) Event[P] { return Event[P]{Kind: EventStart, Step: step} }

func Progress[P any](p int, step string) Event[P] {
	return Event[P]{Kind: EventProgress, Progress: p, Step: step}
}

func Retry[P any](step string) Event[P] { return Event[P]{Kind: EventRetry, Step: step} }

func Succeed[P any](payload *P) Event[P] { return Event[P]{Kind: EventSucceed, Payload: payload} }

func Fail[P any](info models.ErrorInfo) Event[P] {
	return Event[P]{Kind: EventFail, Error: &info}
}

func Cancel[P any]() Event[P] { return Event[P]{Kind: EventCancel} }

func invalid(state models.State, kind EventKind) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, kind, state)
}

// Apply computes the lifecycle and payload that result from ev. lc and payload
// are not modified; on error the caller keeps its original values.
func Apply[P any](lc models.Lifecycle, payload *P, ev Event[P], now time.Time) (models.Lifecycle, *P, Effect, error) {
	next := lc
	now = now.UTC()

	switch ev.Kind {
	case EventStart:
		if lc.State != models.StatePending {
			return lc, payload, "", invalid(lc.State, ev.Kind)
		}
		next.State = models.StateProcessing
		next.StartedAt = &now
		next.Attempts = 1
		if ev.Step != "" {
			next.CurrentStep = ev.Step
		}
		next.UpdatedAt = now
		return next, payload, EffectStarted, nil

	case EventProgress:
		if lc.State != models.StateProcessing {
			return lc, payload, "", invalid(lc.State, ev.Kind)
		}
		if ev.Progress < 0 || ev.Progress > 100 {
			return lc, payload, "", fmt.Errorf("%w: progress %d out of range", ErrInvalidTransition, ev.Progress)
		}
		if ev.Progress < lc.Progress {
			return lc, payload, EffectIgnored, nil
		}
		next.Progress = ev.Progress
		if ev.Step != "" {
			next.CurrentStep = ev.Step
		}
		next.UpdatedAt = now
		return next, payload, EffectProgressed, nil

	case EventRetry:
		if lc.State != models.StateProcessing {
			return lc, payload, "", invalid(lc.State, ev.Kind)
		}
		next.Attempts++
		if ev.Step != "" {
			next.CurrentStep = ev.Step
		}
		next.UpdatedAt = now
		return next, payload, EffectRetried, nil

	case EventSucceed:
		if lc.State != models.StateProcessing {
			return lc, payload, "", invalid(lc.State, ev.Kind)
		}
		if ev.Payload == nil {
			return lc, payload, "", fmt.Errorf("%w: succeed without payload", ErrInvalidTransition)
		}
		next.State = models.StateCompleted
		next.Progress = 100
		next.CompletedAt = &now
		next.UpdatedAt = now
		return next, ev.Payload, EffectCompleted, nil

	case EventFail:
		if lc.State != models.StateProcessing {
			return lc, payload, "", invalid(lc.State, ev.Kind)
		}
		if ev.Error == nil {
			return lc, payload, "", fmt.Errorf("%w: fail without error info", ErrInvalidTransition)
		}
		info := *ev.Error
		next.State = models.StateFailed
		next.Error = &info
		next.CompletedAt = &now
		next.UpdatedAt = now
		return next, payload, EffectFailed, nil

	case EventCancel:
		if lc.State.IsTerminal() {
			return lc, payload, EffectIgnored, nil
		}
		next.State = models.StateCancelled
		next.CompletedAt = &now
		next.UpdatedAt = now
		return next, payload, EffectCancelled, nil
	}

	return lc, payload, "", fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev.Kind)
}

// ApplyAnalysis returns a transitioned copy of job. job itself is never modified.
func ApplyAnalysis(job *models.AnalysisJob, ev Event[models.IntelligenceResult], now time.Time) (*models.AnalysisJob, Effect, error) {
	lc, result, effect, err := Apply(job.Lifecycle, job.Result, ev, now)
	if err != nil {
		return job, "", err
	}
	out := job.Clone()
	out.Lifecycle = lc.Clone()
	if effect == EffectCompleted {
		out.Result = result.Clone()
	}
	return out, effect, nil
}

// ApplyExport returns a transitioned copy of job. job itself is never modified.
func ApplyExport(job *models.ExportJob, ev Event[models.ArtifactRef], now time.Time) (*models.ExportJob, Effect, error) {
	lc, artifact, effect, err := Apply(job.Lifecycle, job.Artifact, ev, now)
	if err != nil {
		return job, "", err
	}
	out := job.Clone()
	out.Lifecycle = lc.Clone()
	if effect == EffectCompleted {
		a := *artifact
		out.Artifact = &a
	}
	return out, effect, nil
}
