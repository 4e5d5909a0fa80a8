// Package video selects the video storage backend used for readiness checks.
package video

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/matchintel/internal/config"
	"github.com/kiranshivaraju/matchintel/internal/store"
	"github.com/kiranshivaraju/matchintel/internal/video/httpvideo"
	"github.com/kiranshivaraju/matchintel/internal/video/pgvideo"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// NewStorage constructs the backend named by cfg.Video.Backend. The returned
// close func releases any connection pool opened here.
// Called once at server startup.
func NewStorage(ctx context.Context, cfg *config.Config) (models.VideoStorage, func(), error) {
	switch cfg.Video.Backend {
	case "http":
		return httpvideo.New(cfg.Video.BaseURL, cfg.Video.Timeout), func() {}, nil
	case "postgres":
		dbCfg := cfg.Database
		dbCfg.URL = cfg.Video.DatabaseURL
		dbCfg.MaxOpenConns = 5
		pool, err := store.Connect(ctx, dbCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect video database: %w", err)
		}
		s := pgvideo.New(pool)
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown video backend %q: must be one of http, postgres", cfg.Video.Backend)
	}
}
