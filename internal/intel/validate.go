// Package intel validates and decodes the intelligence result returned by the engine.
package intel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// ErrInvalidResult is returned when engine output does not satisfy the result contract.
var ErrInvalidResult = errors.New("invalid intelligence result")

// resultSchema is the minimum shape a completed analysis must have.
var resultSchema = map[string]any{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type":    "object",
	"required": []any{
		"events", "tactical_analysis", "player_evaluations", "confidence_scores",
	},
	"properties": map[string]any{
		"events": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"type", "timestamp"},
				"properties": map[string]any{
					"type":       map[string]any{"type": "string", "minLength": 1},
					"timestamp":  map[string]any{"type": "number", "minimum": 0},
					"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
				},
			},
		},
		"tactical_analysis": map[string]any{"type": "object"},
		"player_evaluations": map[string]any{
			"type": "object",
			"additionalProperties": map[string]any{
				"type":     "object",
				"required": []any{"rating"},
				"properties": map[string]any{
					"rating":  map[string]any{"type": "number"},
					"metrics": map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "number"}},
				},
			},
		},
		"predictions": map[string]any{"type": "object"},
		"confidence_scores": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		},
		"processing_metadata": map[string]any{"type": "object"},
	},
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(resultSchema)
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("intelligence_result.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile("intelligence_result.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// Validate checks raw against the result contract.
func Validate(raw []byte) error {
	s, err := schema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%w: malformed json: %v", ErrInvalidResult, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	return nil
}

// Decode validates raw and decodes it into an IntelligenceResult.
func Decode(raw []byte) (*models.IntelligenceResult, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}
	var result models.IntelligenceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	if result.Events == nil {
		result.Events = []models.MatchEvent{}
	}
	return &result, nil
}
