package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchintel/internal/jobstate"
	"github.com/kiranshivaraju/matchintel/internal/metrics"
	"github.com/kiranshivaraju/matchintel/internal/worker"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// CreateExportJob validates the request against a completed analysis, inserts
// a pending export and queues it. opts nil means the default options.
func (s *Service) CreateExportJob(ctx context.Context, analysisRef uuid.UUID, exportType models.ExportType, opts *models.ExportOptions) (*models.ExportJob, error) {
	reject := func(err error) (*models.ExportJob, error) {
		metrics.JobsRejected.WithLabelValues(string(models.KindExport), "validation").Inc()
		return nil, err
	}
	if !exportType.Valid() || !s.artifacts.Supports(exportType) {
		return reject(invalidField("export_type", "unsupported export type %q", exportType))
	}
	options := models.DefaultExportOptions()
	if opts != nil {
		options = *opts
	}
	if err := options.Validate(); err != nil {
		return reject(invalidField("options", "%v", err))
	}

	analysis, err := s.store.GetAnalysisJob(ctx, analysisRef)
	if errors.Is(err, ErrNotFound) {
		return reject(invalidField("analysis_ref", "analysis not found"))
	}
	if err != nil {
		return nil, fmt.Errorf("loading analysis: %w", err)
	}
	if analysis.State != models.StateCompleted {
		return reject(invalidField("analysis_ref", "analysis is %s, only completed analyses can be exported", analysis.State))
	}

	job := &models.ExportJob{
		ID:          uuid.New(),
		AnalysisRef: analysisRef,
		ExportType:  exportType,
		Options:     options,
		Lifecycle:   models.Lifecycle{State: models.StatePending, CurrentStep: "Queued for export"},
	}
	if err := s.store.CreateExportJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating export job: %w", err)
	}
	metrics.JobsCreated.WithLabelValues(string(models.KindExport)).Inc()
	s.logger.Info("export job created", "job_id", job.ID, "analysis_ref", analysisRef, "export_type", exportType)

	if failed := s.dispatchExport(job.ID); failed != nil {
		return failed, nil
	}
	return job, nil
}

func (s *Service) dispatchExport(id uuid.UUID) *models.ExportJob {
	err := s.pool.Submit(worker.Task{
		Name: "export:" + id.String(),
		Run:  func(ctx context.Context) { s.runExport(ctx, id) },
	})
	if err == nil {
		return nil
	}
	kind := KindInternal
	if errors.Is(err, worker.ErrQueueFull) {
		kind = KindOverloaded
	}
	s.logger.Error("export dispatch failed", "job_id", id, "error", err)
	ctx := context.Background()
	if _, _, serr := s.store.ApplyExportEvent(ctx, id, jobstate.Start[models.ArtifactRef]("Dispatch failed")); serr != nil {
		s.logger.Error("failed to start undispatched export", "job_id", id, "error", serr)
		return nil
	}
	return s.failExport(ctx, id, failure(kind, err))
}

func (s *Service) failExport(ctx context.Context, id uuid.UUID, info models.ErrorInfo) *models.ExportJob {
	job, effect, err := s.store.ApplyExportEvent(ctx, id, jobstate.Fail[models.ArtifactRef](info))
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) {
			s.logger.Error("failed to record export failure", "job_id", id, "error", err)
		}
		return nil
	}
	s.logger.Warn("export failed", "job_id", id, "kind", info.Kind, "error", info.Detail)
	if effect.Terminal() {
		s.recordFinished(models.KindExport, job.Lifecycle)
	}
	return job
}

// runExport renders the artifact. Exports are never retried automatically.
func (s *Service) runExport(poolCtx context.Context, id uuid.UUID) {
	storeCtx := context.WithoutCancel(poolCtx)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in export worker", "job_id", id, "panic", r)
			s.failExport(storeCtx, id, failure(KindInternal, fmt.Errorf("panic: %v", r)))
		}
	}()

	if poolCtx.Err() != nil {
		s.logger.Info("pool stopping, leaving export pending", "job_id", id)
		return
	}

	job, _, err := s.store.ApplyExportEvent(storeCtx, id, jobstate.Start[models.ArtifactRef]("Loading analysis result"))
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			s.logger.Info("export no longer pending, skipping", "job_id", id)
			return
		}
		s.logger.Error("failed to start export", "job_id", id, "error", err)
		return
	}

	jobCtx, cancel := context.WithTimeout(poolCtx, s.cfg.ExportMaxDuration)
	defer cancel()
	s.register(id, cancel)
	defer s.unregister(id)

	analysis, err := s.store.GetAnalysisJob(storeCtx, job.AnalysisRef)
	if err != nil {
		s.failExport(storeCtx, id, failure(KindInternal, fmt.Errorf("loading analysis: %w", err)))
		return
	}
	if analysis.Result == nil {
		s.failExport(storeCtx, id, failure(KindInternal, errors.New("analysis has no result")))
		return
	}

	if _, _, err := s.store.ApplyExportEvent(storeCtx, id, jobstate.Progress[models.ArtifactRef](10, "Rendering "+string(job.ExportType))); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			s.logger.Info("export finished elsewhere, worker stopping", "job_id", id)
			return
		}
		s.failExport(storeCtx, id, failure(KindInternal, err))
		return
	}

	ref, err := boundedCall(jobCtx, func() (*models.ArtifactRef, error) {
		return s.artifacts.Produce(jobCtx, job.ExportType, analysis.Result, job.Options)
	})
	if err != nil {
		switch {
		case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
			err = fmt.Errorf("%w: %v", ErrTimeout, err)
		case poolCtx.Err() != nil:
			s.failExport(storeCtx, id, failure(KindInterrupted, err))
			return
		}
		s.failExport(storeCtx, id, classifyExport(err))
		return
	}

	done, effect, err := s.store.ApplyExportEvent(storeCtx, id, jobstate.Succeed(ref))
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) {
			s.logger.Error("failed to store export artifact", "job_id", id, "error", err)
			s.failExport(storeCtx, id, failure(KindInternal, err))
		}
		return
	}
	s.logger.Info("export completed", "job_id", id, "path", ref.Path, "size_bytes", ref.SizeBytes)
	if effect.Terminal() {
		s.recordFinished(models.KindExport, done.Lifecycle)
	}
}

// GetExport returns the export job; Artifact is set once it completed.
func (s *Service) GetExport(ctx context.Context, id uuid.UUID) (*models.ExportJob, error) {
	return s.store.GetExportJob(ctx, id)
}

// OpenArtifact opens the rendered file of a completed export.
func (s *Service) OpenArtifact(ctx context.Context, id uuid.UUID) (*os.File, *models.ArtifactRef, error) {
	job, err := s.store.GetExportJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.State != models.StateCompleted || job.Artifact == nil {
		return nil, nil, &ResultNotReadyError{State: job.State}
	}
	f, err := s.artifacts.Open(*job.Artifact)
	if err != nil {
		return nil, nil, fmt.Errorf("opening artifact: %w", err)
	}
	return f, job.Artifact, nil
}

// ListExportJobs returns every export of analysisRef, newest first.
func (s *Service) ListExportJobs(ctx context.Context, analysisRef uuid.UUID) ([]*models.ExportJob, error) {
	return s.store.ListExportJobsByAnalysis(ctx, analysisRef)
}
