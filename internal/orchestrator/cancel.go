package orchestrator

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchintel/internal/jobstate"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// Cancel moves an active job of either kind to cancelled and aborts its
// worker. Cancelling a job that already finished is a no-op.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Status, error) {
	a, effect, err := s.store.ApplyAnalysisEvent(ctx, id, jobstate.Cancel[models.IntelligenceResult]())
	if err == nil {
		s.afterCancel(models.KindAnalysis, id, effect, a.Lifecycle)
		return analysisStatus(a), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	e, effect, err := s.store.ApplyExportEvent(ctx, id, jobstate.Cancel[models.ArtifactRef]())
	if err != nil {
		return nil, err
	}
	s.afterCancel(models.KindExport, id, effect, e.Lifecycle)
	return exportStatus(e), nil
}

func (s *Service) afterCancel(kind models.JobKind, id uuid.UUID, effect jobstate.Effect, lc models.Lifecycle) {
	if effect != jobstate.EffectCancelled {
		return
	}
	aborted := s.abort(id)
	s.recordFinished(kind, lc)
	s.logger.Info("job cancelled", "job_id", id, "kind", kind, "worker_aborted", aborted)
}
