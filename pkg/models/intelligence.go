package models

import (
	"encoding/json"
	"maps"
	"slices"
)

// IntelligenceResult is the structured output of one analysis. Once stored on
// a completed job it is never modified.
type IntelligenceResult struct {
	Events            []MatchEvent                `json:"events"`
	TacticalAnalysis  json.RawMessage             `json:"tactical_analysis"`
	PlayerEvaluations map[string]PlayerEvaluation `json:"player_evaluations"`
	Predictions       json.RawMessage             `json:"predictions,omitempty"`
	ConfidenceScores  map[string]float64          `json:"confidence_scores"`
	Metadata          json.RawMessage             `json:"processing_metadata,omitempty"`
}

// MatchEvent is a single detected on-pitch event. Timestamp is seconds from kick-off.
type MatchEvent struct {
	ID         string  `json:"id,omitempty"`
	Type       string  `json:"type"`
	Timestamp  float64 `json:"timestamp"`
	Team       string  `json:"team,omitempty"`
	Player     string  `json:"player,omitempty"`
	Zone       string  `json:"zone,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// PlayerEvaluation is the engine's assessment of one player.
type PlayerEvaluation struct {
	Name    string             `json:"name,omitempty"`
	Team    string             `json:"team,omitempty"`
	Rating  float64            `json:"rating"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Clone returns a deep copy of r.
func (r *IntelligenceResult) Clone() *IntelligenceResult {
	if r == nil {
		return nil
	}
	out := &IntelligenceResult{
		Events:           slices.Clone(r.Events),
		TacticalAnalysis: slices.Clone(r.TacticalAnalysis),
		Predictions:      slices.Clone(r.Predictions),
		ConfidenceScores: maps.Clone(r.ConfidenceScores),
		Metadata:         slices.Clone(r.Metadata),
	}
	if r.PlayerEvaluations != nil {
		out.PlayerEvaluations = make(map[string]PlayerEvaluation, len(r.PlayerEvaluations))
		for k, v := range r.PlayerEvaluations {
			v.Metrics = maps.Clone(v.Metrics)
			out.PlayerEvaluations[k] = v
		}
	}
	return out
}
