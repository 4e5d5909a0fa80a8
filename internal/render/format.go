package render

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// FormatTimestamp renders seconds from kick-off in the requested style:
// "754.0s", "12:34" or "00:12:34.000".
func FormatTimestamp(seconds float64, format string) string {
	if seconds < 0 {
		seconds = 0
	}
	switch format {
	case models.TimestampSeconds:
		return strconv.FormatFloat(seconds, 'f', 1, 64) + "s"
	case models.TimestampFull:
		ms := int64(math.Round(seconds * 1000))
		h := ms / 3_600_000
		m := ms / 60_000 % 60
		s := ms / 1000 % 60
		return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
	default:
		total := int64(seconds)
		return fmt.Sprintf("%d:%02d", total/60, total%60)
	}
}

// field is one flattened leaf of a free-form JSON section.
type field struct {
	Key   string
	Value string
}

// flatten turns nested JSON objects into dotted keys sorted alphabetically.
// Arrays are joined with "; ".
func flatten(raw json.RawMessage) []field {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return []field{{Key: "raw", Value: string(raw)}}
	}
	var out []field
	walk("", v, &out)
	slices.SortFunc(out, func(a, b field) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

func walk(prefix string, v any, out *[]field) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			walk(key, child, out)
		}
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, scalar(item))
		}
		*out = append(*out, field{Key: prefix, Value: strings.Join(parts, "; ")})
	default:
		*out = append(*out, field{Key: prefix, Value: scalar(t)})
	}
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// playerRow is a player evaluation keyed by its engine id.
type playerRow struct {
	ID string
	models.PlayerEvaluation
	MetricList []field
}

func sortedPlayers(result *models.IntelligenceResult) []playerRow {
	ids := make([]string, 0, len(result.PlayerEvaluations))
	for id := range result.PlayerEvaluations {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	rows := make([]playerRow, 0, len(ids))
	for _, id := range ids {
		p := result.PlayerEvaluations[id]
		row := playerRow{ID: id, PlayerEvaluation: p}
		names := make([]string, 0, len(p.Metrics))
		for name := range p.Metrics {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			row.MetricList = append(row.MetricList, field{Key: name, Value: strconv.FormatFloat(p.Metrics[name], 'f', -1, 64)})
		}
		rows = append(rows, row)
	}
	return rows
}

func sortedConfidence(result *models.IntelligenceResult) []field {
	keys := make([]string, 0, len(result.ConfidenceScores))
	for k := range result.ConfidenceScores {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]field, 0, len(keys))
	for _, k := range keys {
		out = append(out, field{Key: k, Value: strconv.FormatFloat(result.ConfidenceScores[k], 'f', 2, 64)})
	}
	return out
}

// sortedEvents returns the events ordered by timestamp, keeping engine order on ties.
func sortedEvents(result *models.IntelligenceResult) []models.MatchEvent {
	events := slices.Clone(result.Events)
	slices.SortStableFunc(events, func(a, b models.MatchEvent) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return events
}

func title(opts models.ExportOptions) string {
	if opts.Title != "" {
		return opts.Title
	}
	return "Match Intelligence Report"
}
