// Package models contains shared data models used across the MatchIntel codebase.
package models

import (
	"context"
	"encoding/json"
	"errors"
)

// Engine errors. Adapters wrap one of these so the orchestrator can decide
// whether a second invocation is worthwhile.
var (
	ErrEngineTransient = errors.New("intelligence engine temporarily unavailable")
	ErrEnginePermanent = errors.New("intelligence engine rejected the request")
)

// IntelligenceEngine is the core interface that all analysis backends must implement.
// Never call a specific engine directly, always inject this interface.
type IntelligenceEngine interface {
	// Analyze starts processing and streams updates until a terminal update
	// (Result or Err set) is sent or ctx is cancelled. The channel is closed afterwards.
	Analyze(ctx context.Context, req AnalysisRequest) (<-chan EngineUpdate, error)
	// Name returns the engine identifier (e.g., "http", "mock").
	Name() string
}

// AnalysisRequest is the input to an engine invocation.
type AnalysisRequest struct {
	JobID    string `json:"job_id"`
	InputRef string `json:"input_ref"`
	Intent   string `json:"intent"`
	Attempt  int    `json:"attempt"`
}

// EngineUpdate is one message on the engine stream.
type EngineUpdate struct {
	Progress int
	Step     string
	Result   json.RawMessage
	Err      error
}

// Terminal reports whether the update ends the stream.
func (u EngineUpdate) Terminal() bool {
	return u.Result != nil || u.Err != nil
}

// ErrVideoStorageUnavailable is returned when readiness cannot be determined.
var ErrVideoStorageUnavailable = errors.New("video storage unavailable")

// VideoStorage answers whether an uploaded video can be analyzed.
type VideoStorage interface {
	IsReady(ctx context.Context, inputRef string) (bool, error)
	Ping(ctx context.Context) error
}

// Renderer produces the artifact bytes for one export type.
type Renderer interface {
	Render(ctx context.Context, result *IntelligenceResult, opts ExportOptions) (Rendered, error)
	Type() ExportType
}

// Rendered is renderer output before it is stored.
type Rendered struct {
	Body        []byte
	Extension   string
	ContentType string
}
