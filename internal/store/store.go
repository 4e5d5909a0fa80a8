package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchintel/internal/jobstate"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrDuplicateActiveJob is returned by CreateAnalysisJob when another analysis
// of the same input is still pending or processing.
var ErrDuplicateActiveJob = errors.New("an active analysis already exists for this input")

// Store is the data access interface. All job reads and writes go through here.
//
// Every lifecycle change goes through Apply*Event, which runs jobstate under
// the store's per-job lock. Returned jobs are snapshots owned by the caller.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	// CreateAnalysisJob inserts a pending job and stamps CreatedAt/UpdatedAt on it.
	CreateAnalysisJob(ctx context.Context, job *models.AnalysisJob) error
	GetAnalysisJob(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error)
	ApplyAnalysisEvent(ctx context.Context, id uuid.UUID, ev jobstate.Event[models.IntelligenceResult]) (*models.AnalysisJob, jobstate.Effect, error)
	ListAnalysisJobsByInput(ctx context.Context, inputRef string) ([]*models.AnalysisJob, error)
	ListAnalysisJobsByState(ctx context.Context, state models.State) ([]*models.AnalysisJob, error)

	CreateExportJob(ctx context.Context, job *models.ExportJob) error
	GetExportJob(ctx context.Context, id uuid.UUID) (*models.ExportJob, error)
	ApplyExportEvent(ctx context.Context, id uuid.UUID, ev jobstate.Event[models.ArtifactRef]) (*models.ExportJob, jobstate.Effect, error)
	ListExportJobsByAnalysis(ctx context.Context, analysisRef uuid.UUID) ([]*models.ExportJob, error)
	ListExportJobsByState(ctx context.Context, state models.State) ([]*models.ExportJob, error)
}

type options struct {
	now func() time.Time
}

// Option configures a store adapter.
type Option func(*options)

// WithClock replaces the wall clock used for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// timestamp truncates to the precision Postgres keeps so every backend
// round-trips the same value.
func (o options) timestamp() time.Time {
	return o.now().UTC().Truncate(time.Microsecond)
}

func checkNewAnalysis(job *models.AnalysisJob) error {
	if job.ID == uuid.Nil {
		return errors.New("analysis job id is required")
	}
	if job.State != models.StatePending {
		return errors.New("analysis job must be created pending")
	}
	return nil
}

func checkNewExport(job *models.ExportJob) error {
	if job.ID == uuid.Nil {
		return errors.New("export job id is required")
	}
	if job.State != models.StatePending {
		return errors.New("export job must be created pending")
	}
	return nil
}
