package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kiranshivaraju/matchintel/internal/intel"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

func TestClassifyAnalysis(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{fmt.Errorf("%w: 503", models.ErrEngineTransient), KindTransientEngine},
		{fmt.Errorf("%w: bad codec", models.ErrEnginePermanent), KindEngineRejected},
		{fmt.Errorf("%w: missing events", intel.ErrInvalidResult), KindInvalidResult},
		{fmt.Errorf("%w: stream", ErrTimeout), KindTimeout},
		{context.DeadlineExceeded, KindTimeout},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		info := classifyAnalysis(tt.err)
		assert.Equal(t, tt.kind, info.Kind, tt.err.Error())
		assert.NotEmpty(t, info.Message)
		assert.NotEmpty(t, info.Action)
		assert.Equal(t, tt.err.Error(), info.Detail)
	}
}

func TestClassifyExport(t *testing.T) {
	assert.Equal(t, KindTimeout, classifyExport(context.DeadlineExceeded).Kind)
	assert.Equal(t, KindRenderFailed, classifyExport(errors.New("disk full")).Kind)
}

func TestFailure_UnknownKindIsInternal(t *testing.T) {
	info := failure("mystery", nil)
	assert.Equal(t, KindInternal, info.Kind)
	assert.Equal(t, "unexpected processing error", info.Message)
	assert.Empty(t, info.Detail)
}

func TestEngineOutcome(t *testing.T) {
	assert.Equal(t, "success", engineOutcome(nil))
	assert.Equal(t, "aborted", engineOutcome(errJobFinished))
	assert.Equal(t, "aborted", engineOutcome(context.Canceled))
	assert.Equal(t, "timeout", engineOutcome(context.DeadlineExceeded))
	assert.Equal(t, "invalid", engineOutcome(intel.ErrInvalidResult))
	assert.Equal(t, "transient", engineOutcome(models.ErrEngineTransient))
	assert.Equal(t, "permanent", engineOutcome(models.ErrEnginePermanent))
}

func TestValidationError(t *testing.T) {
	err := invalidField("intent", "unknown analysis intent %q", "vibes")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, `intent: unknown analysis intent "vibes"`, err.Error())

	var nr error = &ResultNotReadyError{State: models.StateProcessing}
	assert.ErrorIs(t, nr, ErrResultNotReady)
	assert.NotErrorIs(t, nr, ErrResultFailed)
}
