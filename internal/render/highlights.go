package render

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// Clip is one cut instruction for the external video cutter.
type Clip struct {
	EventID string  `json:"event_id,omitempty"`
	Type    string  `json:"type"`
	Label   string  `json:"label"`
	Team    string  `json:"team,omitempty"`
	Player  string  `json:"player,omitempty"`
	Start   float64 `json:"start_seconds"`
	End     float64 `json:"end_seconds"`
}

// HighlightManifest lists the clips to cut, ordered by start time.
type HighlightManifest struct {
	Title          string `json:"title"`
	PaddingSeconds int    `json:"padding_seconds"`
	Clips          []Clip `json:"clips"`
}

// HighlightsRenderer renders a JSON clip manifest around every event.
type HighlightsRenderer struct{}

func (HighlightsRenderer) Type() models.ExportType { return models.ExportVideoHighlights }

func (HighlightsRenderer) Render(ctx context.Context, result *models.IntelligenceResult, opts models.ExportOptions) (models.Rendered, error) {
	if err := ctx.Err(); err != nil {
		return models.Rendered{}, err
	}
	manifest := BuildHighlights(result, opts)
	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return models.Rendered{}, fmt.Errorf("marshal highlights: %w", err)
	}
	return models.Rendered{Body: body, Extension: ".json", ContentType: "application/json"}, nil
}

// BuildHighlights pads each event by opts.ClipPaddingSeconds on both sides,
// clamping the start at kick-off.
func BuildHighlights(result *models.IntelligenceResult, opts models.ExportOptions) HighlightManifest {
	pad := float64(opts.ClipPaddingSeconds)
	m := HighlightManifest{Title: title(opts), PaddingSeconds: opts.ClipPaddingSeconds, Clips: []Clip{}}
	for _, e := range sortedEvents(result) {
		m.Clips = append(m.Clips, Clip{
			EventID: e.ID,
			Type:    e.Type,
			Label:   FormatTimestamp(e.Timestamp, opts.TimestampFormat) + " " + e.Type,
			Team:    e.Team,
			Player:  e.Player,
			Start:   max(0, e.Timestamp-pad),
			End:     e.Timestamp + pad,
		})
	}
	return m
}
