package mock_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/matchintel/internal/engine/mock"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

func drain(t *testing.T, ch <-chan models.EngineUpdate) []models.EngineUpdate {
	t.Helper()
	var out []models.EngineUpdate
	deadline := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, u)
		case <-deadline:
			t.Fatal("stream did not close")
		}
	}
}

func TestSimulatedEngine_ProgressThenResult(t *testing.T) {
	e := mock.NewSimulatedEngine(0)
	ch, err := e.Analyze(context.Background(), models.AnalysisRequest{Intent: models.IntentSetPiece})
	require.NoError(t, err)

	updates := drain(t, ch)
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	require.True(t, last.Terminal())
	require.NoError(t, last.Err)

	prev := 0
	for _, u := range updates[:len(updates)-1] {
		assert.GreaterOrEqual(t, u.Progress, prev)
		prev = u.Progress
	}

	var result models.IntelligenceResult
	require.NoError(t, json.Unmarshal(last.Result, &result))
	assert.Len(t, result.Events, 4)
	assert.Contains(t, string(result.Metadata), models.IntentSetPiece)
	assert.Equal(t, 1, e.Calls())
}

func TestFailingEngine(t *testing.T) {
	boom := errors.New("boom")
	e := mock.NewFailingEngine(boom)
	_, err := e.Analyze(context.Background(), models.AnalysisRequest{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "mock-failing", e.Name())
}

func TestHangingEngine_StopsOnCancel(t *testing.T) {
	e := mock.NewHangingEngine()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := e.Analyze(ctx, models.AnalysisRequest{})
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, 5, first.Progress)
	cancel()
	assert.Empty(t, drain(t, ch))
}

func TestDefaultEngine_ReturnsSample(t *testing.T) {
	e := &mock.Engine{Name_: "bare"}
	ch, err := e.Analyze(context.Background(), models.AnalysisRequest{})
	require.NoError(t, err)
	updates := drain(t, ch)
	require.Len(t, updates, 1)
	assert.JSONEq(t, string(mock.SampleResult("")), string(updates[0].Result))
}
