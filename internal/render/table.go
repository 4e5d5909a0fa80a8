package render

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/kiranshivaraju/matchintel/pkg/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// TableRenderer renders the result as an XLSX workbook, one sheet per section.
type TableRenderer struct{}

func (TableRenderer) Type() models.ExportType { return models.ExportDataTable }

func (TableRenderer) Render(ctx context.Context, result *models.IntelligenceResult, opts models.ExportOptions) (models.Rendered, error) {
	if err := ctx.Err(); err != nil {
		return models.Rendered{}, err
	}
	f := excelize.NewFile()
	defer f.Close()

	const events = "Events"
	if err := f.SetSheetName("Sheet1", events); err != nil {
		return models.Rendered{}, fmt.Errorf("rename sheet: %w", err)
	}
	rows := [][]any{{"Time", "Seconds", "Type", "Team", "Player", "Zone", "Confidence"}}
	for _, e := range sortedEvents(result) {
		rows = append(rows, []any{
			FormatTimestamp(e.Timestamp, opts.TimestampFormat), e.Timestamp,
			e.Type, e.Team, e.Player, e.Zone, e.Confidence,
		})
	}
	if err := writeRows(f, events, rows); err != nil {
		return models.Rendered{}, err
	}
	_ = f.SetColWidth(events, "A", "B", 12)
	_ = f.SetColWidth(events, "C", "F", 16)

	if opts.IncludePlayerStats {
		rows := [][]any{{"ID", "Name", "Team", "Rating", "Metric", "Value"}}
		for _, p := range sortedPlayers(result) {
			if len(p.MetricList) == 0 {
				rows = append(rows, []any{p.ID, p.Name, p.Team, p.Rating, "", ""})
			}
			for _, m := range p.MetricList {
				rows = append(rows, []any{p.ID, p.Name, p.Team, p.Rating, m.Key, p.Metrics[m.Key]})
			}
		}
		if err := addSheet(f, "Players", rows); err != nil {
			return models.Rendered{}, err
		}
	}
	if opts.IncludeTactical {
		if err := addSheet(f, "Tactical", fieldRows(flatten(result.TacticalAnalysis))); err != nil {
			return models.Rendered{}, err
		}
	}
	if opts.IncludePredictions && len(result.Predictions) > 0 {
		if err := addSheet(f, "Predictions", fieldRows(flatten(result.Predictions))); err != nil {
			return models.Rendered{}, err
		}
	}
	rows = [][]any{{"Aspect", "Score"}}
	for _, k := range sortedConfidence(result) {
		rows = append(rows, []any{k.Key, result.ConfidenceScores[k.Key]})
	}
	if err := addSheet(f, "Confidence", rows); err != nil {
		return models.Rendered{}, err
	}

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return models.Rendered{}, fmt.Errorf("xlsx write: %w", err)
	}
	return models.Rendered{Body: buf.Bytes(), Extension: ".xlsx", ContentType: xlsxContentType}, nil
}

func addSheet(f *excelize.File, name string, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	return writeRows(f, name, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func fieldRows(fields []field) [][]any {
	rows := [][]any{{"Key", "Value"}}
	for _, f := range fields {
		rows = append(rows, []any{f.Key, f.Value})
	}
	return rows
}
