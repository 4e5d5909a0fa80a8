package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/matchintel/pkg/models"
)

var errOrphaned = errors.New("job was processing when the previous server process stopped")

// RecoverOrphans runs once at startup, before the HTTP server accepts
// requests. Jobs left processing by a previous process are failed as
// interrupted; pending jobs are queued again. It returns how many jobs it touched.
func (s *Service) RecoverOrphans(ctx context.Context) (int, error) {
	// Snapshot everything first so re-queued jobs that start right away are
	// not mistaken for orphans.
	pending, err := s.store.ListAnalysisJobsByState(ctx, models.StatePending)
	if err != nil {
		return 0, fmt.Errorf("listing pending analyses: %w", err)
	}
	processing, err := s.store.ListAnalysisJobsByState(ctx, models.StateProcessing)
	if err != nil {
		return 0, fmt.Errorf("listing processing analyses: %w", err)
	}
	pendingExports, err := s.store.ListExportJobsByState(ctx, models.StatePending)
	if err != nil {
		return 0, fmt.Errorf("listing pending exports: %w", err)
	}
	processingExports, err := s.store.ListExportJobsByState(ctx, models.StateProcessing)
	if err != nil {
		return 0, fmt.Errorf("listing processing exports: %w", err)
	}

	for _, j := range processing {
		s.failAnalysis(ctx, j.ID, failure(KindInterrupted, errOrphaned))
	}
	for _, j := range processingExports {
		s.failExport(ctx, j.ID, failure(KindInterrupted, errOrphaned))
	}
	for _, j := range pending {
		s.dispatchAnalysis(j.ID)
	}
	for _, j := range pendingExports {
		s.dispatchExport(j.ID)
	}

	n := len(pending) + len(processing) + len(pendingExports) + len(processingExports)
	if n > 0 {
		s.logger.Info("recovered orphaned jobs",
			"requeued", len(pending)+len(pendingExports),
			"interrupted", len(processing)+len(processingExports))
	}
	return n, nil
}
