package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchintel/internal/metrics"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// Status is the polling view of either job kind.
type Status struct {
	ID          uuid.UUID         `json:"id"`
	Kind        models.JobKind    `json:"kind"`
	InputRef    string            `json:"input_ref,omitempty"`
	AnalysisRef *uuid.UUID        `json:"analysis_ref,omitempty"`
	ExportType  models.ExportType `json:"export_type,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	models.Lifecycle
}

func analysisStatus(j *models.AnalysisJob) *Status {
	return &Status{ID: j.ID, Kind: models.KindAnalysis, InputRef: j.InputRef, CreatedAt: j.CreatedAt, Lifecycle: j.Lifecycle}
}

func exportStatus(j *models.ExportJob) *Status {
	ref := j.AnalysisRef
	return &Status{ID: j.ID, Kind: models.KindExport, AnalysisRef: &ref, ExportType: j.ExportType, CreatedAt: j.CreatedAt, Lifecycle: j.Lifecycle}
}

// GetStatus looks id up as an analysis first, then as an export. It always
// reads the store, so it never waits on processing.
func (s *Service) GetStatus(ctx context.Context, id uuid.UUID) (*Status, error) {
	a, err := s.store.GetAnalysisJob(ctx, id)
	if err == nil {
		return analysisStatus(a), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	e, err := s.store.GetExportJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return exportStatus(e), nil
}

// GetResult returns the intelligence result of a completed analysis.
// Otherwise it returns *ResultNotReadyError or *ResultFailedError.
func (s *Service) GetResult(ctx context.Context, id uuid.UUID) (*models.IntelligenceResult, error) {
	if result, ok := s.cachedResult(ctx, id); ok {
		return result, nil
	}

	job, err := s.store.GetAnalysisJob(ctx, id)
	if err != nil {
		return nil, err
	}
	switch job.State {
	case models.StateCompleted:
		s.cacheResult(ctx, id, job.Result)
		return job.Result, nil
	case models.StateFailed:
		info := models.ErrorInfo{Kind: KindInternal}
		if job.Error != nil {
			info = *job.Error
		}
		return nil, &ResultFailedError{Info: info}
	default:
		return nil, &ResultNotReadyError{State: job.State}
	}
}

func (s *Service) cachedResult(ctx context.Context, id uuid.UUID) (*models.IntelligenceResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	b, found, err := s.cache.GetResult(ctx, id)
	if err != nil {
		s.logger.Warn("result cache lookup failed", "job_id", id, "error", err)
		metrics.ResultCacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	if !found {
		metrics.ResultCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	var result models.IntelligenceResult
	if err := json.Unmarshal(b, &result); err != nil {
		s.logger.Warn("discarding undecodable cached result", "job_id", id, "error", err)
		metrics.ResultCacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	metrics.ResultCacheLookups.WithLabelValues("hit").Inc()
	return &result, true
}
