// Package mock provides simulated intelligence engines for development and tests.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// Engine satisfies models.IntelligenceEngine. AnalyzeFunc decides what each
// invocation streams; Calls counts invocations.
type Engine struct {
	Name_       string
	AnalyzeFunc func(ctx context.Context, req models.AnalysisRequest) (<-chan models.EngineUpdate, error)
	calls       atomic.Int32
}

func (m *Engine) Name() string { return m.Name_ }

func (m *Engine) Analyze(ctx context.Context, req models.AnalysisRequest) (<-chan models.EngineUpdate, error) {
	m.calls.Add(1)
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, req)
	}
	return Stream(ctx, 0, models.EngineUpdate{Result: SampleResult(req.Intent)}), nil
}

// Calls returns how many times Analyze was invoked.
func (m *Engine) Calls() int { return int(m.calls.Load()) }

// Stream emits updates in order, pausing delay before each one, and closes the
// channel afterwards or as soon as ctx is done.
func Stream(ctx context.Context, delay time.Duration, updates ...models.EngineUpdate) <-chan models.EngineUpdate {
	ch := make(chan models.EngineUpdate)
	go func() {
		defer close(ch)
		for _, u := range updates {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// pipeline mirrors the stages reported by the production engine.
var pipeline = []models.EngineUpdate{
	{Progress: 5, Step: "Initializing intelligence pipeline"},
	{Progress: 10, Step: "Detecting events"},
	{Progress: 35, Step: "Events detected"},
	{Progress: 40, Step: "Analyzing tactical patterns"},
	{Progress: 65, Step: "Tactical analysis completed"},
	{Progress: 70, Step: "Evaluating player performance"},
	{Progress: 85, Step: "Player evaluation completed"},
	{Progress: 90, Step: "Generating predictive insights"},
	{Progress: 95, Step: "Finalizing intelligence results"},
}

// NewSimulatedEngine walks through the production pipeline stages with
// stepDelay between them and finishes with SampleResult.
func NewSimulatedEngine(stepDelay time.Duration) *Engine {
	return &Engine{
		Name_: "mock",
		AnalyzeFunc: func(ctx context.Context, req models.AnalysisRequest) (<-chan models.EngineUpdate, error) {
			updates := append([]models.EngineUpdate{}, pipeline...)
			updates = append(updates, models.EngineUpdate{Result: SampleResult(req.Intent)})
			return Stream(ctx, stepDelay, updates...), nil
		},
	}
}

// NewScriptedEngine streams the given updates on every invocation.
func NewScriptedEngine(updates ...models.EngineUpdate) *Engine {
	return &Engine{
		Name_: "mock-scripted",
		AnalyzeFunc: func(ctx context.Context, _ models.AnalysisRequest) (<-chan models.EngineUpdate, error) {
			return Stream(ctx, 0, updates...), nil
		},
	}
}

// NewFailingEngine refuses every invocation with err.
func NewFailingEngine(err error) *Engine {
	return &Engine{
		Name_: "mock-failing",
		AnalyzeFunc: func(_ context.Context, _ models.AnalysisRequest) (<-chan models.EngineUpdate, error) {
			return nil, err
		},
	}
}

// NewHangingEngine reports initial progress and then never finishes.
func NewHangingEngine() *Engine {
	return &Engine{
		Name_: "mock-hanging",
		AnalyzeFunc: func(ctx context.Context, _ models.AnalysisRequest) (<-chan models.EngineUpdate, error) {
			ch := make(chan models.EngineUpdate)
			go func() {
				defer close(ch)
				select {
				case ch <- models.EngineUpdate{Progress: 5, Step: "Initializing intelligence pipeline"}:
				case <-ctx.Done():
					return
				}
				<-ctx.Done()
			}()
			return ch, nil
		},
	}
}

// SampleResult returns a small but complete intelligence result.
func SampleResult(intent string) json.RawMessage {
	if intent == "" {
		intent = models.IntentFullMatch
	}
	return json.RawMessage(fmt.Sprintf(`{
  "events": [
    {"id": "evt-1", "type": "pass", "timestamp": 62.4, "team": "home", "player": "p8", "zone": "middle_third", "confidence": 0.91},
    {"id": "evt-2", "type": "shot", "timestamp": 754.0, "team": "home", "player": "p9", "zone": "final_third", "confidence": 0.87},
    {"id": "evt-3", "type": "goal", "timestamp": 755.2, "team": "home", "player": "p9", "zone": "box", "confidence": 0.95},
    {"id": "evt-4", "type": "tackle", "timestamp": 1820.7, "team": "away", "player": "p4", "zone": "defensive_third", "confidence": 0.78}
  ],
  "tactical_analysis": {
    "formation": {"home": "4-3-3", "away": "4-4-2"},
    "possession": {"home": 0.56, "away": 0.44},
    "strategic_insights": ["Home side overloaded the left half-space", "Away block dropped deep after the opener"]
  },
  "player_evaluations": {
    "p8": {"name": "Central Midfielder", "team": "home", "rating": 7.4, "metrics": {"passes": 48, "pass_accuracy": 0.89}},
    "p9": {"name": "Striker", "team": "home", "rating": 8.2, "metrics": {"shots": 3, "goals": 1, "xg": 0.71}},
    "p4": {"name": "Centre Back", "team": "away", "rating": 6.9, "metrics": {"tackles": 5, "interceptions": 3}}
  },
  "predictions": {
    "match_outcomes": {"home_win": 0.58, "draw": 0.24, "away_win": 0.18}
  },
  "confidence_scores": {"events": 0.88, "tactical": 0.81, "players": 0.79, "overall": 0.83},
  "processing_metadata": {"pipeline_version": "mock", "analysis_intent": %q, "events_processed": 4}
}`, intent))
}

var _ models.IntelligenceEngine = (*Engine)(nil)
