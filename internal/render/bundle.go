package render

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"

	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// BundleRenderer zips the output of the wrapped renderers.
type BundleRenderer struct {
	Parts []models.Renderer
}

func NewBundleRenderer() BundleRenderer {
	return BundleRenderer{Parts: []models.Renderer{ReportRenderer{}, TableRenderer{}, HighlightsRenderer{}}}
}

func (BundleRenderer) Type() models.ExportType { return models.ExportBundle }

func (b BundleRenderer) Render(ctx context.Context, result *models.IntelligenceResult, opts models.ExportOptions) (models.Rendered, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, part := range b.Parts {
		out, err := part.Render(ctx, result, opts)
		if err != nil {
			return models.Rendered{}, fmt.Errorf("render %s: %w", part.Type(), err)
		}
		// Zero modification time keeps the archive byte-stable.
		w, err := zw.CreateHeader(&zip.FileHeader{Name: string(part.Type()) + out.Extension, Method: zip.Deflate})
		if err != nil {
			return models.Rendered{}, fmt.Errorf("add %s to bundle: %w", part.Type(), err)
		}
		if _, err := w.Write(out.Body); err != nil {
			return models.Rendered{}, fmt.Errorf("write %s to bundle: %w", part.Type(), err)
		}
	}
	if err := zw.Close(); err != nil {
		return models.Rendered{}, fmt.Errorf("close bundle: %w", err)
	}
	return models.Rendered{Body: buf.Bytes(), Extension: ".zip", ContentType: "application/zip"}, nil
}
