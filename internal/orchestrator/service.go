// Package orchestrator drives analysis and export jobs through their lifecycle.
// Every state change goes through the store, which runs the job state machine
// under its per-job lock; this package never mutates a job directly.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchintel/internal/cache"
	"github.com/kiranshivaraju/matchintel/internal/metrics"
	"github.com/kiranshivaraju/matchintel/internal/store"
	"github.com/kiranshivaraju/matchintel/internal/worker"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// Dispatcher queues background work. *worker.Pool satisfies it.
type Dispatcher interface {
	Submit(task worker.Task) error
}

// ArtifactProducer renders and stores export artifacts. *render.Service satisfies it.
type ArtifactProducer interface {
	Supports(t models.ExportType) bool
	Produce(ctx context.Context, t models.ExportType, result *models.IntelligenceResult, opts models.ExportOptions) (*models.ArtifactRef, error)
	Open(ref models.ArtifactRef) (*os.File, error)
}

// Config holds the timing and retry policy.
type Config struct {
	AnalysisMaxDuration time.Duration
	ExportMaxDuration   time.Duration
	TransientRetryLimit int
	ResultTTL           time.Duration
}

// Deps are the collaborators injected at startup. Cache may be nil.
type Deps struct {
	Store     store.Store
	Cache     cache.Cache
	Engine    models.IntelligenceEngine
	Video     models.VideoStorage
	Artifacts ArtifactProducer
	Pool      Dispatcher
}

// Service is the analysis and export orchestrator.
type Service struct {
	store     store.Store
	cache     cache.Cache
	engine    models.IntelligenceEngine
	video     models.VideoStorage
	artifacts ArtifactProducer
	pool      Dispatcher
	cfg       Config
	logger    *slog.Logger

	// running maps a job id to the cancel func of its processing context.
	running sync.Map
}

// NewService wires the orchestrator. A nil logger falls back to slog.Default.
func NewService(deps Deps, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AnalysisMaxDuration <= 0 {
		cfg.AnalysisMaxDuration = 15 * time.Minute
	}
	if cfg.ExportMaxDuration <= 0 {
		cfg.ExportMaxDuration = 2 * time.Minute
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &Service{
		store:     deps.Store,
		cache:     deps.Cache,
		engine:    deps.Engine,
		video:     deps.Video,
		artifacts: deps.Artifacts,
		pool:      deps.Pool,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *Service) register(id uuid.UUID, cancel context.CancelFunc) {
	s.running.Store(id, cancel)
}

func (s *Service) unregister(id uuid.UUID) {
	s.running.Delete(id)
}

// abort cancels the processing context of id, if it is running here.
func (s *Service) abort(id uuid.UUID) bool {
	v, ok := s.running.LoadAndDelete(id)
	if !ok {
		return false
	}
	v.(context.CancelFunc)()
	return true
}

func (s *Service) recordFinished(kind models.JobKind, lc models.Lifecycle) {
	metrics.JobsFinished.WithLabelValues(string(kind), string(lc.State)).Inc()
	if lc.StartedAt != nil && lc.CompletedAt != nil {
		metrics.JobDuration.WithLabelValues(string(kind)).Observe(lc.CompletedAt.Sub(*lc.StartedAt).Seconds())
	}
}

// boundedCall runs fn on its own goroutine and returns when fn does or when
// ctx ends, whichever comes first. A collaborator that ignores ctx keeps its
// goroutine but no longer holds the job or the pool worker. Panics in fn are
// returned as errors.
func boundedCall[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn()
		done <- outcome{val: v, err: err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
