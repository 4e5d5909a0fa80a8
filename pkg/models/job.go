package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state shared by analysis and export jobs.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// IsTerminal reports whether no transition can leave the state.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// IsActive reports whether the job still occupies its input.
func (s State) IsActive() bool {
	return s == StatePending || s == StateProcessing
}

// JobKind distinguishes the two job tables.
type JobKind string

const (
	KindAnalysis JobKind = "analysis"
	KindExport   JobKind = "export"
)

// ErrorInfo is the user-facing failure record of a job. Detail carries the
// collaborator's raw error for operators and is never rendered to clients.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Action  string `json:"action"`
	Detail  string `json:"-"`
}

// Lifecycle holds the fields owned by the state machine. Both job kinds embed it.
type Lifecycle struct {
	State       State      `json:"state"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"current_step,omitempty"`
	Attempts    int        `json:"attempts"`
	Error       *ErrorInfo `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Analysis intents accepted by the engine.
const (
	IntentFullMatch          = "full_match"
	IntentIndividualPlayer   = "individual_player"
	IntentTacticalPhase      = "tactical_phase"
	IntentOppositionScouting = "opposition_scouting"
	IntentSetPiece           = "set_piece"
)

var validIntents = map[string]bool{
	IntentFullMatch:          true,
	IntentIndividualPlayer:   true,
	IntentTacticalPhase:      true,
	IntentOppositionScouting: true,
	IntentSetPiece:           true,
}

// ValidIntent reports whether intent is a known analysis intent.
func ValidIntent(intent string) bool {
	return validIntents[intent]
}

// AnalysisJob turns one stored video into one intelligence result.
// Clients create it with POST /api/v1/analyses and poll GET /api/v1/jobs/{id}.
type AnalysisJob struct {
	ID        uuid.UUID           `json:"id"`
	InputRef  string              `json:"input_ref"`
	Intent    string              `json:"intent"`
	Result    *IntelligenceResult `json:"result,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	Lifecycle
}

// Clone returns a deep copy that shares no memory with j.
func (j *AnalysisJob) Clone() *AnalysisJob {
	if j == nil {
		return nil
	}
	out := *j
	out.Lifecycle = j.Lifecycle.Clone()
	out.Result = j.Result.Clone()
	return &out
}

// ExportType selects the renderer of an export job.
type ExportType string

const (
	ExportReport          ExportType = "report"
	ExportDataTable       ExportType = "data-table"
	ExportVideoHighlights ExportType = "video-highlights"
	ExportBundle          ExportType = "bundle"
)

// ExportTypes lists every supported export type.
var ExportTypes = []ExportType{ExportReport, ExportDataTable, ExportVideoHighlights, ExportBundle}

// Valid reports whether t names a supported export type.
func (t ExportType) Valid() bool {
	for _, known := range ExportTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Timestamp formats for rendered event times.
const (
	TimestampSeconds = "seconds"
	TimestampMinutes = "minutes"
	TimestampFull    = "full"
)

// ExportOptions customizes a rendered artifact.
type ExportOptions struct {
	Title              string `json:"title,omitempty"`
	IncludePlayerStats bool   `json:"include_player_stats"`
	IncludeTactical    bool   `json:"include_tactical"`
	IncludePredictions bool   `json:"include_predictions"`
	ClipPaddingSeconds int    `json:"clip_padding_seconds"`
	TimestampFormat    string `json:"timestamp_format"`
}

// DefaultExportOptions mirrors the defaults of the dashboard export form.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		IncludePlayerStats: true,
		IncludeTactical:    true,
		IncludePredictions: true,
		ClipPaddingSeconds: 10,
		TimestampFormat:    TimestampMinutes,
	}
}

// ArtifactRef points at a rendered file in the artifact store.
type ArtifactRef struct {
	Path        string `json:"path"`
	Digest      string `json:"digest"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
}

// ExportJob turns one completed intelligence result into one downloadable artifact.
type ExportJob struct {
	ID          uuid.UUID     `json:"id"`
	AnalysisRef uuid.UUID     `json:"analysis_ref"`
	ExportType  ExportType    `json:"export_type"`
	Options     ExportOptions `json:"options"`
	Artifact    *ArtifactRef  `json:"artifact,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	Lifecycle
}

// Clone returns a deep copy that shares no memory with j.
func (j *ExportJob) Clone() *ExportJob {
	if j == nil {
		return nil
	}
	out := *j
	out.Lifecycle = j.Lifecycle.Clone()
	if j.Artifact != nil {
		a := *j.Artifact
		out.Artifact = &a
	}
	return &out
}

// Clone returns a copy of l with its pointer fields duplicated.
func (l Lifecycle) Clone() Lifecycle {
	out := l
	if l.Error != nil {
		e := *l.Error
		out.Error = &e
	}
	if l.StartedAt != nil {
		t := *l.StartedAt
		out.StartedAt = &t
	}
	if l.CompletedAt != nil {
		t := *l.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// MaxClipPaddingSeconds bounds ExportOptions.ClipPaddingSeconds.
const MaxClipPaddingSeconds = 120

// Validate reports the first invalid option, if any.
func (o ExportOptions) Validate() error {
	switch o.TimestampFormat {
	case TimestampSeconds, TimestampMinutes, TimestampFull:
	default:
		return fmt.Errorf("timestamp_format must be one of %s, %s, %s", TimestampSeconds, TimestampMinutes, TimestampFull)
	}
	if o.ClipPaddingSeconds < 0 || o.ClipPaddingSeconds > MaxClipPaddingSeconds {
		return fmt.Errorf("clip_padding_seconds must be between 0 and %d", MaxClipPaddingSeconds)
	}
	if len(o.Title) > 200 {
		return errors.New("title must be at most 200 characters")
	}
	return nil
}
