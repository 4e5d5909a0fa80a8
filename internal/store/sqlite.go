package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kiranshivaraju/matchintel/internal/jobstate"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

const (
	sqliteConstraintUnique     = 2067
	sqliteConstraintPrimaryKey = 1555
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS analysis_jobs (
  id TEXT PRIMARY KEY,
  input_ref TEXT NOT NULL,
  intent TEXT NOT NULL,
  state TEXT NOT NULL,
  progress INTEGER NOT NULL DEFAULT 0,
  current_step TEXT NOT NULL DEFAULT '',
  attempts INTEGER NOT NULL DEFAULT 0,
  result TEXT,
  error_info TEXT,
  started_at TEXT,
  completed_at TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS analysis_jobs_active_input_idx
  ON analysis_jobs (input_ref) WHERE state IN ('pending', 'processing');
CREATE INDEX IF NOT EXISTS analysis_jobs_state_idx ON analysis_jobs (state);

CREATE TABLE IF NOT EXISTS export_jobs (
  id TEXT PRIMARY KEY,
  analysis_ref TEXT NOT NULL REFERENCES analysis_jobs (id),
  export_type TEXT NOT NULL,
  options TEXT NOT NULL,
  state TEXT NOT NULL,
  progress INTEGER NOT NULL DEFAULT 0,
  current_step TEXT NOT NULL DEFAULT '',
  attempts INTEGER NOT NULL DEFAULT 0,
  artifact TEXT,
  error_info TEXT,
  started_at TEXT,
  completed_at TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS export_jobs_analysis_ref_idx ON export_jobs (analysis_ref);
CREATE INDEX IF NOT EXISTS export_jobs_state_idx ON export_jobs (state);
`

// SQLiteStore persists jobs in a local SQLite file for single-node deployments.
// The pool is limited to one connection, so transactions serialize transitions.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, opts: buildOptions(opts)}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteStore) Close() error                   { return s.db.Close() }

// --- Analysis jobs ---

func (s *SQLiteStore) CreateAnalysisJob(ctx context.Context, job *models.AnalysisJob) error {
	if err := checkNewAnalysis(job); err != nil {
		return fmt.Errorf("create analysis job: %w", err)
	}
	now := s.opts.timestamp()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_jobs (id, input_ref, intent, state, progress, current_step, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.InputRef, job.Intent, string(job.State), job.Progress, job.CurrentStep, job.Attempts,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		switch sqliteConstraint(err) {
		case sqliteConstraintUnique:
			return ErrDuplicateActiveJob
		case sqliteConstraintPrimaryKey:
			return fmt.Errorf("create analysis job: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("create analysis job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAnalysisJob(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	job, err := scanSQLiteAnalysis(s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analysis_jobs WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis job: %w", err)
	}
	return job, nil
}

func (s *SQLiteStore) ApplyAnalysisEvent(ctx context.Context, id uuid.UUID, ev jobstate.Event[models.IntelligenceResult]) (*models.AnalysisJob, jobstate.Effect, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	job, err := scanSQLiteAnalysis(tx.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analysis_jobs WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("load analysis job: %w", err)
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
	_, err = tx.ExecContext(ctx,
		`UPDATE analysis_jobs SET state = ?, progress = ?, current_step = ?, attempts = ?,
		 result = ?, error_info = ?, started_at = ?, completed_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(next.State), next.Progress, next.CurrentStep, next.Attempts,
		nullText(result), nullText(errInfo), nullTime(next.StartedAt), nullTime(next.CompletedAt), formatTime(next.UpdatedAt),
		id.String())
	if err != nil {
		return nil, "", fmt.Errorf("update analysis job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("commit transition: %w", err)
	}
	return next, effect, nil
}

func (s *SQLiteStore) ListAnalysisJobsByInput(ctx context.Context, inputRef string) ([]*models.AnalysisJob, error) {
	return s.queryAnalyses(ctx,
		`SELECT `+analysisColumns+` FROM analysis_jobs WHERE input_ref = ? ORDER BY created_at DESC, rowid DESC`, inputRef)
}

func (s *SQLiteStore) ListAnalysisJobsByState(ctx context.Context, state models.State) ([]*models.AnalysisJob, error) {
	return s.queryAnalyses(ctx,
		`SELECT `+analysisColumns+` FROM analysis_jobs WHERE state = ? ORDER BY created_at DESC, rowid DESC`, string(state))
}

func (s *SQLiteStore) queryAnalyses(ctx context.Context, query string, args ...any) ([]*models.AnalysisJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analysis jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.AnalysisJob
	for rows.Next() {
		job, err := scanSQLiteAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAnalysis(row rowScanner) (*models.AnalysisJob, error) {
	var (
		j                                        models.AnalysisJob
		result, errInfo, startedAt, completedAt sql.NullString
		createdAt, updatedAt                     string
	)
	if err := row.Scan(&j.ID, &j.InputRef, &j.Intent, &j.State, &j.Progress, &j.CurrentStep, &j.Attempts,
		&result, &errInfo, &startedAt, &completedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if j.Result, err = decodeJSON[models.IntelligenceResult]([]byte(result.String)); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if j.Error, err = decodeError([]byte(errInfo.String)); err != nil {
		return nil, err
	}
	if err := scanTimes(&j.Lifecycle, &j.CreatedAt, startedAt, completedAt, createdAt, updatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

// --- Export jobs ---

func (s *SQLiteStore) CreateExportJob(ctx context.Context, job *models.ExportJob) error {
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
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO export_jobs (id, analysis_ref, export_type, options, state, progress, current_step, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.AnalysisRef.String(), string(job.ExportType), string(opts), string(job.State),
		job.Progress, job.CurrentStep, job.Attempts, formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		if sqliteConstraint(err) == sqliteConstraintPrimaryKey {
			return fmt.Errorf("create export job: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetExportJob(ctx context.Context, id uuid.UUID) (*models.ExportJob, error) {
	job, err := scanSQLiteExport(s.db.QueryRowContext(ctx,
		`SELECT `+exportColumns+` FROM export_jobs WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return job, nil
}

func (s *SQLiteStore) ApplyExportEvent(ctx context.Context, id uuid.UUID, ev jobstate.Event[models.ArtifactRef]) (*models.ExportJob, jobstate.Effect, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	job, err := scanSQLiteExport(tx.QueryRowContext(ctx,
		`SELECT `+exportColumns+` FROM export_jobs WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("load export job: %w", err)
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
	_, err = tx.ExecContext(ctx,
		`UPDATE export_jobs SET state = ?, progress = ?, current_step = ?, attempts = ?,
		 artifact = ?, error_info = ?, started_at = ?, completed_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(next.State), next.Progress, next.CurrentStep, next.Attempts,
		nullText(artifact), nullText(errInfo), nullTime(next.StartedAt), nullTime(next.CompletedAt), formatTime(next.UpdatedAt),
		id.String())
	if err != nil {
		return nil, "", fmt.Errorf("update export job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("commit transition: %w", err)
	}
	return next, effect, nil
}

func (s *SQLiteStore) ListExportJobsByAnalysis(ctx context.Context, analysisRef uuid.UUID) ([]*models.ExportJob, error) {
	return s.queryExports(ctx,
		`SELECT `+exportColumns+` FROM export_jobs WHERE analysis_ref = ? ORDER BY created_at DESC, rowid DESC`, analysisRef.String())
}

func (s *SQLiteStore) ListExportJobsByState(ctx context.Context, state models.State) ([]*models.ExportJob, error) {
	return s.queryExports(ctx,
		`SELECT `+exportColumns+` FROM export_jobs WHERE state = ? ORDER BY created_at DESC, rowid DESC`, string(state))
}

func (s *SQLiteStore) queryExports(ctx context.Context, query string, args ...any) ([]*models.ExportJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ExportJob
	for rows.Next() {
		job, err := scanSQLiteExport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanSQLiteExport(row rowScanner) (*models.ExportJob, error) {
	var (
		j                                          models.ExportJob
		opts                                       string
		artifact, errInfo, startedAt, completedAt sql.NullString
		createdAt, updatedAt                       string
	)
	if err := row.Scan(&j.ID, &j.AnalysisRef, &j.ExportType, &opts, &j.State, &j.Progress, &j.CurrentStep, &j.Attempts,
		&artifact, &errInfo, &startedAt, &completedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	o, err := decodeJSON[models.ExportOptions]([]byte(opts))
	if err != nil {
		return nil, fmt.Errorf("decode export options: %w", err)
	}
	if o != nil {
		j.Options = *o
	}
	if j.Artifact, err = decodeJSON[models.ArtifactRef]([]byte(artifact.String)); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if j.Error, err = decodeError([]byte(errInfo.String)); err != nil {
		return nil, err
	}
	if err := scanTimes(&j.Lifecycle, &j.CreatedAt, startedAt, completedAt, createdAt, updatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func scanTimes(lc *models.Lifecycle, created *time.Time, startedAt, completedAt sql.NullString, createdAt, updatedAt string) error {
	var err error
	if *created, err = parseTime(createdAt); err != nil {
		return err
	}
	if lc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return err
	}
	if lc.StartedAt, err = parseNullTime(startedAt); err != nil {
		return err
	}
	if lc.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return err
	}
	return nil
}

// sqliteTimeLayout is fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t.UTC(), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

// sqliteConstraint classifies a unique constraint violation. modernc reports
// the table and columns in the message, which separates the partial index
// from the primary key regardless of which result code is surfaced.
func sqliteConstraint(err error) int {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: analysis_jobs.input_ref"):
		return sqliteConstraintUnique
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return sqliteConstraintPrimaryKey
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		switch coder.Code() {
		case sqliteConstraintUnique, sqliteConstraintPrimaryKey:
			return coder.Code()
		}
	}
	return 0
}
