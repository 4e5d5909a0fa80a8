package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/kiranshivaraju/matchintel/pkg/models"
)

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; margin-bottom: 1.5rem; }
th, td { border: 1px solid #ccc; padding: 0.25rem 0.5rem; text-align: left; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{len .Events}} events detected, {{len .Players}} players evaluated.</p>

<h2>Events</h2>
<table>
<tr><th>Time</th><th>Type</th><th>Team</th><th>Player</th><th>Zone</th><th>Confidence</th></tr>
{{range .Events}}<tr><td>{{.Time}}</td><td>{{.Type}}</td><td>{{.Team}}</td><td>{{.Player}}</td><td>{{.Zone}}</td><td>{{printf "%.2f" .Confidence}}</td></tr>
{{end}}</table>
{{if .Tactical}}
<h2>Tactical Analysis</h2>
<table>
{{range .Tactical}}<tr><th>{{.Key}}</th><td>{{.Value}}</td></tr>
{{end}}</table>
{{end}}{{if .Players}}
<h2>Player Evaluations</h2>
<table>
<tr><th>ID</th><th>Name</th><th>Team</th><th>Rating</th><th>Metrics</th></tr>
{{range .Players}}<tr><td>{{.ID}}</td><td>{{.Name}}</td><td>{{.Team}}</td><td>{{printf "%.1f" .Rating}}</td><td>{{range $i, $m := .MetricList}}{{if $i}}, {{end}}{{$m.Key}}={{$m.Value}}{{end}}</td></tr>
{{end}}</table>
{{end}}{{if .Predictions}}
<h2>Predictions</h2>
<table>
{{range .Predictions}}<tr><th>{{.Key}}</th><td>{{.Value}}</td></tr>
{{end}}</table>
{{end}}
<h2>Confidence</h2>
<table>
{{range .Confidence}}<tr><th>{{.Key}}</th><td>{{.Value}}</td></tr>
{{end}}</table>
</body>
</html>
`))

type reportEvent struct {
	models.MatchEvent
	Time string
}

type reportData struct {
	Title       string
	Events      []reportEvent
	Tactical    []field
	Players     []playerRow
	Predictions []field
	Confidence  []field
}

// ReportRenderer renders a standalone HTML match report.
type ReportRenderer struct{}

func (ReportRenderer) Type() models.ExportType { return models.ExportReport }

func (ReportRenderer) Render(ctx context.Context, result *models.IntelligenceResult, opts models.ExportOptions) (models.Rendered, error) {
	if err := ctx.Err(); err != nil {
		return models.Rendered{}, err
	}
	data := reportData{
		Title:      title(opts),
		Confidence: sortedConfidence(result),
	}
	for _, e := range sortedEvents(result) {
		data.Events = append(data.Events, reportEvent{MatchEvent: e, Time: FormatTimestamp(e.Timestamp, opts.TimestampFormat)})
	}
	if opts.IncludeTactical {
		data.Tactical = flatten(result.TacticalAnalysis)
	}
	if opts.IncludePlayerStats {
		data.Players = sortedPlayers(result)
	}
	if opts.IncludePredictions {
		data.Predictions = flatten(result.Predictions)
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return models.Rendered{}, fmt.Errorf("execute report template: %w", err)
	}
	return models.Rendered{Body: buf.Bytes(), Extension: ".html", ContentType: "text/html; charset=utf-8"}, nil
}
