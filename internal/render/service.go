// Package render turns a completed intelligence result into export artifacts.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kiranshivaraju/matchintel/internal/blob"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// ErrUnsupportedType is returned for an export type with no registered renderer.
var ErrUnsupportedType = errors.New("unsupported export type")

// Service renders artifacts and writes them to the blob store.
type Service struct {
	renderers map[models.ExportType]models.Renderer
	blobs     blob.LocalFS
}

// NewService registers the built-in renderers. Extra renderers replace the
// built-in one of the same type.
func NewService(blobs blob.LocalFS, extra ...models.Renderer) *Service {
	s := &Service{renderers: make(map[models.ExportType]models.Renderer), blobs: blobs}
	for _, r := range []models.Renderer{ReportRenderer{}, TableRenderer{}, HighlightsRenderer{}, NewBundleRenderer()} {
		s.renderers[r.Type()] = r
	}
	for _, r := range extra {
		s.renderers[r.Type()] = r
	}
	return s
}

// Supports reports whether t has a renderer.
func (s *Service) Supports(t models.ExportType) bool {
	_, ok := s.renderers[t]
	return ok
}

// Produce renders result and stores it under <type>/<digest><ext>.
func (s *Service) Produce(ctx context.Context, t models.ExportType, result *models.IntelligenceResult, opts models.ExportOptions) (*models.ArtifactRef, error) {
	r, ok := s.renderers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, t)
	}
	out, err := r.Render(ctx, result, opts)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, digest, err := s.blobs.PutContent(string(t), out.Extension, out.Body)
	if err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}
	return &models.ArtifactRef{
		Path:        path,
		Digest:      digest,
		SizeBytes:   int64(len(out.Body)),
		ContentType: out.ContentType,
	}, nil
}

// Open opens a stored artifact for reading.
func (s *Service) Open(ref models.ArtifactRef) (*os.File, error) {
	return s.blobs.Open(ref.Path)
}
