// Package pgvideo reads video readiness straight from the upload service's
// Postgres `videos` table.
package pgvideo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// Storage implements models.VideoStorage on a shared database.
type Storage struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

// IsReady is true when the row exists with status 'ready' and a finished upload.
func (s *Storage) IsReady(ctx context.Context, inputRef string) (bool, error) {
	var (
		status   string
		progress int
	)
	err := s.pool.QueryRow(ctx,
		`SELECT status, COALESCE(upload_progress, 0) FROM videos WHERE id::text = $1`, inputRef,
	).Scan(&status, &progress)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrVideoStorageUnavailable, err)
	}
	return status == "ready" && progress == 100, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrVideoStorageUnavailable, err)
	}
	return nil
}

func (s *Storage) Close() {
	s.pool.Close()
}

var _ models.VideoStorage = (*Storage)(nil)
