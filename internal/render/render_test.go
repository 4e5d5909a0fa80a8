package render_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kiranshivaraju/matchintel/internal/blob"
	"github.com/kiranshivaraju/matchintel/internal/engine/mock"
	"github.com/kiranshivaraju/matchintel/internal/intel"
	"github.com/kiranshivaraju/matchintel/internal/render"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

func sampleResult(t *testing.T) *models.IntelligenceResult {
	t.Helper()
	result, err := intel.Decode(mock.SampleResult(models.IntentFullMatch))
	require.NoError(t, err)
	return result
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		format  string
		want    string
	}{
		{754.0, models.TimestampSeconds, "754.0s"},
		{754.0, models.TimestampMinutes, "12:34"},
		{3725.25, models.TimestampFull, "01:02:05.250"},
		{62.4, models.TimestampMinutes, "1:02"},
		{-3, models.TimestampMinutes, "0:00"},
		{90, "", "1:30"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, render.FormatTimestamp(tt.seconds, tt.format), "%v %s", tt.seconds, tt.format)
	}
}

func TestReportRenderer(t *testing.T) {
	opts := models.DefaultExportOptions()
	opts.Title = "Derby <Day>"

	out, err := render.ReportRenderer{}.Render(context.Background(), sampleResult(t), opts)
	require.NoError(t, err)

	html := string(out.Body)
	assert.Equal(t, ".html", out.Extension)
	assert.Contains(t, html, "Derby &lt;Day&gt;")
	assert.Contains(t, html, "12:34")
	assert.Contains(t, html, "Player Evaluations")
	assert.Contains(t, html, "formation.home")
	assert.Contains(t, html, "match_outcomes.home_win")
}

func TestReportRenderer_OmitsExcludedSections(t *testing.T) {
	opts := models.DefaultExportOptions()
	opts.IncludePlayerStats = false
	opts.IncludeTactical = false
	opts.IncludePredictions = false

	out, err := render.ReportRenderer{}.Render(context.Background(), sampleResult(t), opts)
	require.NoError(t, err)

	html := string(out.Body)
	assert.NotContains(t, html, "Player Evaluations")
	assert.NotContains(t, html, "Tactical Analysis")
	assert.NotContains(t, html, "Predictions")
	assert.Contains(t, html, "Confidence")
}

func TestTableRenderer(t *testing.T) {
	out, err := render.TableRenderer{}.Render(context.Background(), sampleResult(t), models.DefaultExportOptions())
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", out.Extension)

	f, err := excelize.OpenReader(bytes.NewReader(out.Body))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Events", "Players", "Tactical", "Predictions", "Confidence"}, f.GetSheetList())

	rows, err := f.GetRows("Events")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Time", rows[0][0])
	assert.Equal(t, "1:02", rows[1][0])
	assert.Equal(t, "tackle", rows[4][2])

	conf, err := f.GetRows("Confidence")
	require.NoError(t, err)
	assert.Equal(t, "events", conf[1][0])
}

func TestTableRenderer_WithoutOptionalSheets(t *testing.T) {
	opts := models.DefaultExportOptions()
	opts.IncludePlayerStats = false
	opts.IncludeTactical = false
	opts.IncludePredictions = false

	out, err := render.TableRenderer{}.Render(context.Background(), sampleResult(t), opts)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out.Body))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Events", "Confidence"}, f.GetSheetList())
}

func TestBuildHighlights(t *testing.T) {
	opts := models.DefaultExportOptions()
	opts.ClipPaddingSeconds = 70

	m := render.BuildHighlights(sampleResult(t), opts)
	require.Len(t, m.Clips, 4)

	first := m.Clips[0]
	assert.Equal(t, "pass", first.Type)
	assert.Equal(t, 0.0, first.Start)
	assert.InDelta(t, 132.4, first.End, 0.001)
	assert.Equal(t, "1:02 pass", first.Label)
	assert.Equal(t, 70, m.PaddingSeconds)
}

func TestHighlightsRenderer_IsJSON(t *testing.T) {
	out, err := render.HighlightsRenderer{}.Render(context.Background(), sampleResult(t), models.DefaultExportOptions())
	require.NoError(t, err)

	var m render.HighlightManifest
	require.NoError(t, json.Unmarshal(out.Body, &m))
	assert.Len(t, m.Clips, 4)
	assert.Equal(t, "application/json", out.ContentType)
}

func TestBundleRenderer(t *testing.T) {
	out, err := render.NewBundleRenderer().Render(context.Background(), sampleResult(t), models.DefaultExportOptions())
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(out.Body), int64(len(out.Body)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"report.html", "data-table.xlsx", "video-highlights.json"}, names)

	rc, err := zr.File[2].Open()
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(body), "start_seconds")
}

func TestRenderer_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := render.ReportRenderer{}.Render(ctx, sampleResult(t), models.DefaultExportOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_ProduceIsContentAddressed(t *testing.T) {
	root := t.TempDir()
	svc := render.NewService(blob.LocalFS{Root: root})
	result := sampleResult(t)

	ref1, err := svc.Produce(context.Background(), models.ExportReport, result, models.DefaultExportOptions())
	require.NoError(t, err)
	ref2, err := svc.Produce(context.Background(), models.ExportReport, result, models.DefaultExportOptions())
	require.NoError(t, err)

	assert.Equal(t, ref1, ref2)
	assert.Equal(t, filepath.Join("report", ref1.Digest+".html"), ref1.Path)
	assert.Equal(t, "text/html; charset=utf-8", ref1.ContentType)

	info, err := os.Stat(filepath.Join(root, ref1.Path))
	require.NoError(t, err)
	assert.Equal(t, ref1.SizeBytes, info.Size())
}

func TestService_EveryTypeSupported(t *testing.T) {
	svc := render.NewService(blob.LocalFS{Root: t.TempDir()})
	for _, typ := range models.ExportTypes {
		assert.True(t, svc.Supports(typ), typ)
		ref, err := svc.Produce(context.Background(), typ, sampleResult(t), models.DefaultExportOptions())
		require.NoError(t, err, typ)
		assert.NotZero(t, ref.SizeBytes)
	}
}

type brokenRenderer struct{}

func (brokenRenderer) Type() models.ExportType { return models.ExportReport }
func (brokenRenderer) Render(context.Context, *models.IntelligenceResult, models.ExportOptions) (models.Rendered, error) {
	return models.Rendered{}, errors.New("template exploded")
}

func TestService_RendererError(t *testing.T) {
	svc := render.NewService(blob.LocalFS{Root: t.TempDir()}, brokenRenderer{})

	_, err := svc.Produce(context.Background(), models.ExportReport, sampleResult(t), models.DefaultExportOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template exploded")
}

func TestService_UnsupportedType(t *testing.T) {
	svc := render.NewService(blob.LocalFS{Root: t.TempDir()})

	_, err := svc.Produce(context.Background(), "pdf", sampleResult(t), models.DefaultExportOptions())
	assert.ErrorIs(t, err, render.ErrUnsupportedType)
}
