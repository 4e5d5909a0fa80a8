package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiranshivaraju/matchintel/internal/jobstate"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// activeInputIndex is the partial unique index enforcing one active analysis per input.
const activeInputIndex = "analysis_jobs_active_input_idx"

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts options
}

// NewPostgresStore creates a new PostgresStore. The store closes pool on Close.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) *PostgresStore {
	return &PostgresStore{pool: pool, opts: buildOptions(opts)}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Analysis jobs ---

const analysisColumns = `id, input_ref, intent, state, progress, current_step, attempts,
	result, error_info, started_at, completed_at, created_at, updated_at`

func (s *PostgresStore) CreateAnalysisJob(ctx context.Context, job *models.AnalysisJob) error {
	if err := checkNewAnalysis(job); err != nil {
		return fmt.Errorf("create analysis job: %w", err)
	}
	now := s.opts.timestamp()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_jobs (id, input_ref, intent, state, progress, current_step, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.InputRef, job.Intent, job.State, job.Progress, job.CurrentStep, job.Attempts, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if constraint, ok := duplicateKeyConstraint(err); ok {
			if constraint == activeInputIndex {
				return ErrDuplicateActiveJob
			}
			return fmt.Errorf("create analysis job: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("create analysis job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnalysisJob(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	job, err := scanAnalysis(s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analysis_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis job: %w", err)
	}
	return job, nil
}

// ApplyAnalysisEvent locks the row for the duration of the transition. The
// lock is released on commit, before the caller resumes any engine work.
func (s *PostgresStore) ApplyAnalysisEvent(ctx context.Context, id uuid.UUID, ev jobstate.Event[models.IntelligenceResult]) (*models.AnalysisJob, jobstate.Effect, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	job, err := scanAnalysis(tx.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analysis_jobs WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("lock analysis job: %w", err)
	}

	next, effect, err := jobstate.ApplyAnalysis(job, ev, s.opts.timestamp())
	if err != nil {
		return nil, "", err
	}
	if effect == jobstate.EffectIgnored {
		return next, effect, nil
	}

	result, err := encodeJSON(next.Result)
	if err != nil {
		return nil, "", fmt.Errorf("encode result: %w", err)
	}
	errInfo, err := encodeError(next.Error)
	if err != nil {
		return nil, "", err
	}
	_, err = tx.Exec(ctx,
		`UPDATE analysis_jobs SET state = $2, progress = $3, current_step = $4, attempts = $5,
		 result = $6, error_info = $7, started_at = $8, completed_at = $9, updated_at = $10
		 WHERE id = $1`,
		id, next.State, next.Progress, next.CurrentStep, next.Attempts,
		result, errInfo, next.StartedAt, next.CompletedAt, next.UpdatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("update analysis job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("commit transition: %w", err)
	}
	return next, effect, nil
}

func (s *PostgresStore) ListAnalysisJobsByInput(ctx context.Context, inputRef string) ([]*models.AnalysisJob, error) {
	return s.queryAnalyses(ctx,
		`SELECT `+analysisColumns+` FROM analysis_jobs WHERE input_ref = $1 ORDER BY created_at DESC, seq DESC`, inputRef)
}

func (s *PostgresStore) ListAnalysisJobsByState(ctx context.Context, state models.State) ([]*models.AnalysisJob, error) {
	return s.queryAnalyses(ctx,
		`SELECT `+analysisColumns+` FROM analysis_jobs WHERE state = $1 ORDER BY created_at DESC, seq DESC`, state)
}

func (s *PostgresStore) queryAnalyses(ctx context.Context, query string, args ...any) ([]*models.AnalysisJob, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analysis jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.AnalysisJob
	for rows.Next() {
		job, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanAnalysis(row pgx.Row) (*models.AnalysisJob, error) {
	var (
		j                      models.AnalysisJob
		result, errInfo        []byte
		startedAt, completedAt *time.Time
	)
	if err := row.Scan(&j.ID, &j.InputRef, &j.Intent, &j.State, &j.Progress, &j.CurrentStep, &j.Attempts,
		&result, &errInfo, &startedAt, &completedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if j.Result, err = decodeJSON[models.IntelligenceResult](result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if j.Error, err = decodeError(errInfo); err != nil {
		return nil, err
	}
	j.StartedAt = utcPtr(startedAt)
	j.CompletedAt = utcPtr(completedAt)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

// --- Export jobs ---

const exportColumns = `id, analysis_ref, export_type, options, state, progress, current_step, attempts,
	artifact, error_info, started_at, completed_at, created_at, updated_at`

func (s *PostgresStore) CreateExportJob(ctx context.Context, job *models.ExportJob) error {
	if err := checkNewExport(job); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	now := s.opts.timestamp()
	job.CreatedAt = now
	job.UpdatedAt = now

	opts, err := encodeJSON(&job.Options)
	if err != nil {
		return fmt.Errorf("encode export options: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO export_jobs (id, analysis_ref, export_type, options, state, progress, current_step, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.AnalysisRef, job.ExportType, opts, job.State, job.Progress, job.CurrentStep, job.Attempts, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if _, ok := duplicateKeyConstraint(err); ok {
			return fmt.Errorf("create export job: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetExportJob(ctx context.Context, id uuid.UUID) (*models.ExportJob, error) {
	job, err := scanExport(s.pool.QueryRow(ctx,
		`SELECT `+exportColumns+` FROM export_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ApplyExportEvent(ctx context.Context, id uuid.UUID, ev jobstate.Event[models.ArtifactRef]) (*models.ExportJob, jobstate.Effect, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	job, err := scanExport(tx.QueryRow(ctx,
		`SELECT `+exportColumns+` FROM export_jobs WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("lock export job: %w", err)
	}

	next, effect, err := jobstate.ApplyExport(job, ev, s.opts.timestamp())
	if err != nil {
		return nil, "", err
	}
	if effect == jobstate.EffectIgnored {
		return next, effect, nil
	}

	artifact, err := encodeJSON(next.Artifact)
	if err != nil {
		return nil, "", fmt.Errorf("encode artifact: %w", err)
	}
	errInfo, err := encodeError(next.Error)
	if err != nil {
		return nil, "", err
	}
	_, err = tx.Exec(ctx,
		`UPDATE export_jobs SET state = $2, progress = $3, current_step = $4, attempts = $5,
		 artifact = $6, error_info = $7, started_at = $8, completed_at = $9, updated_at = $10
		 WHERE id = $1`,
		id, next.State, next.Progress, next.CurrentStep, next.Attempts,
		artifact, errInfo, next.StartedAt, next.CompletedAt, next.UpdatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("update export job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("commit transition: %w", err)
	}
	return next, effect, nil
}

func (s *PostgresStore) ListExportJobsByAnalysis(ctx context.Context, analysisRef uuid.UUID) ([]*models.ExportJob, error) {
	return s.queryExports(ctx,
		`SELECT `+exportColumns+` FROM export_jobs WHERE analysis_ref = $1 ORDER BY created_at DESC, seq DESC`, analysisRef)
}

func (s *PostgresStore) ListExportJobsByState(ctx context.Context, state models.State) ([]*models.ExportJob, error) {
	return s.queryExports(ctx,
		`SELECT `+exportColumns+` FROM export_jobs WHERE state = $1 ORDER BY created_at DESC, seq DESC`, state)
}

func (s *PostgresStore) queryExports(ctx context.Context, query string, args ...any) ([]*models.ExportJob, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ExportJob
	for rows.Next() {
		job, err := scanExport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanExport(row pgx.Row) (*models.ExportJob, error) {
	var (
		j                       models.ExportJob
		opts, artifact, errInfo []byte
		startedAt, completedAt  *time.Time
	)
	if err := row.Scan(&j.ID, &j.AnalysisRef, &j.ExportType, &opts, &j.State, &j.Progress, &j.CurrentStep, &j.Attempts,
		&artifact, &errInfo, &startedAt, &completedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	o, err := decodeJSON[models.ExportOptions](opts)
	if err != nil {
		return nil, fmt.Errorf("decode export options: %w", err)
	}
	if o != nil {
		j.Options = *o
	}
	if j.Artifact, err = decodeJSON[models.ArtifactRef](artifact); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if j.Error, err = decodeError(errInfo); err != nil {
		return nil, err
	}
	j.StartedAt = utcPtr(startedAt)
	j.CompletedAt = utcPtr(completedAt)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// duplicateKeyConstraint reports whether err is a unique constraint violation
// and which constraint was hit.
func duplicateKeyConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return pgErr.ConstraintName, true
	}
	return "", false
}
