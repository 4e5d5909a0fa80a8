package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchintel/internal/intel"
	"github.com/kiranshivaraju/matchintel/internal/jobstate"
	"github.com/kiranshivaraju/matchintel/internal/metrics"
	"github.com/kiranshivaraju/matchintel/internal/worker"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// errJobFinished stops a worker whose job reached a terminal state elsewhere,
// normally through Cancel.
var errJobFinished = errors.New("job already finished")

// CreateAnalysisJob validates the input, inserts a pending job and queues it.
// It returns as soon as the job is stored; processing happens in the pool.
func (s *Service) CreateAnalysisJob(ctx context.Context, inputRef, intent string) (*models.AnalysisJob, error) {
	inputRef = strings.TrimSpace(inputRef)
	if inputRef == "" {
		metrics.JobsRejected.WithLabelValues(string(models.KindAnalysis), "validation").Inc()
		return nil, invalidField("input_ref", "is required")
	}
	if intent == "" {
		intent = models.IntentFullMatch
	}
	if !models.ValidIntent(intent) {
		metrics.JobsRejected.WithLabelValues(string(models.KindAnalysis), "validation").Inc()
		return nil, invalidField("intent", "unknown analysis intent %q", intent)
	}

	ready, err := s.video.IsReady(ctx, inputRef)
	if err != nil {
		return nil, fmt.Errorf("checking video readiness: %w", err)
	}
	if !ready {
		metrics.JobsRejected.WithLabelValues(string(models.KindAnalysis), "not_ready").Inc()
		return nil, invalidField("input_ref", "video %s is not ready for analysis", inputRef)
	}

	job := &models.AnalysisJob{
		ID:        uuid.New(),
		InputRef:  inputRef,
		Intent:    intent,
		Lifecycle: models.Lifecycle{State: models.StatePending, CurrentStep: "Queued for analysis"},
	}
	if err := s.store.CreateAnalysisJob(ctx, job); err != nil {
		if errors.Is(err, ErrDuplicateActiveJob) {
			metrics.JobsRejected.WithLabelValues(string(models.KindAnalysis), "duplicate").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("creating analysis job: %w", err)
	}
	metrics.JobsCreated.WithLabelValues(string(models.KindAnalysis)).Inc()
	s.logger.Info("analysis job created", "job_id", job.ID, "input_ref", inputRef, "intent", intent)

	if failed := s.dispatchAnalysis(job.ID); failed != nil {
		return failed, nil
	}
	return job, nil
}

// dispatchAnalysis queues the job. When the pool refuses it the job is failed
// at once and the failed snapshot is returned.
func (s *Service) dispatchAnalysis(id uuid.UUID) *models.AnalysisJob {
	err := s.pool.Submit(worker.Task{
		Name: "analysis:" + id.String(),
		Run:  func(ctx context.Context) { s.runAnalysis(ctx, id) },
	})
	if err == nil {
		return nil
	}
	kind := KindInternal
	if errors.Is(err, worker.ErrQueueFull) {
		kind = KindOverloaded
	}
	s.logger.Error("analysis dispatch failed", "job_id", id, "error", err)
	ctx := context.Background()
	if _, _, serr := s.store.ApplyAnalysisEvent(ctx, id, jobstate.Start[models.IntelligenceResult]("Dispatch failed")); serr != nil {
		s.logger.Error("failed to start undispatched analysis", "job_id", id, "error", serr)
		return nil
	}
	return s.failAnalysis(ctx, id, failure(kind, err))
}

// failAnalysis records info on the job. A job that already finished is left alone.
func (s *Service) failAnalysis(ctx context.Context, id uuid.UUID, info models.ErrorInfo) *models.AnalysisJob {
	job, effect, err := s.store.ApplyAnalysisEvent(ctx, id, jobstate.Fail[models.IntelligenceResult](info))
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) {
			s.logger.Error("failed to record analysis failure", "job_id", id, "error", err)
		}
		return nil
	}
	s.logger.Warn("analysis failed", "job_id", id, "kind", info.Kind, "attempt", job.Attempts, "error", info.Detail)
	if effect.Terminal() {
		s.recordFinished(models.KindAnalysis, job.Lifecycle)
	}
	return job
}

// runAnalysis is the worker body. It recovers from panics and always leaves
// the job terminal unless the pool is stopping before the job started.
func (s *Service) runAnalysis(poolCtx context.Context, id uuid.UUID) {
	storeCtx := context.WithoutCancel(poolCtx)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in analysis worker", "job_id", id, "panic", r)
			s.failAnalysis(storeCtx, id, failure(KindInternal, fmt.Errorf("panic: %v", r)))
		}
	}()

	if poolCtx.Err() != nil {
		s.logger.Info("pool stopping, leaving analysis pending", "job_id", id)
		return
	}

	job, _, err := s.store.ApplyAnalysisEvent(storeCtx, id, jobstate.Start[models.IntelligenceResult]("Initializing intelligence pipeline"))
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			s.logger.Info("analysis no longer pending, skipping", "job_id", id)
			return
		}
		s.logger.Error("failed to start analysis", "job_id", id, "error", err)
		return
	}

	jobCtx, cancel := context.WithTimeout(poolCtx, s.cfg.AnalysisMaxDuration)
	defer cancel()
	s.register(id, cancel)
	defer s.unregister(id)

	// A cancel that landed between start and register could not abort us.
	if cur, err := s.store.GetAnalysisJob(storeCtx, id); err == nil && cur.State.IsTerminal() {
		return
	}

	result, err := s.invokeEngine(jobCtx, storeCtx, job)
	if err == nil {
		s.completeAnalysis(storeCtx, id, result)
		return
	}

	switch {
	case errors.Is(err, errJobFinished):
		s.logger.Info("analysis finished elsewhere, worker stopping", "job_id", id)
		return
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("%w: %v", ErrTimeout, err)
	case poolCtx.Err() != nil:
		s.failAnalysis(storeCtx, id, failure(KindInterrupted, err))
		return
	}
	s.failAnalysis(storeCtx, id, classifyAnalysis(err))
}

func (s *Service) completeAnalysis(ctx context.Context, id uuid.UUID, result *models.IntelligenceResult) {
	job, effect, err := s.store.ApplyAnalysisEvent(ctx, id, jobstate.Succeed(result))
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) {
			s.logger.Error("failed to store analysis result", "job_id", id, "error", err)
			s.failAnalysis(ctx, id, failure(KindInternal, err))
		}
		return
	}
	s.logger.Info("analysis completed", "job_id", id, "attempt", job.Attempts, "events", len(result.Events))
	if effect.Terminal() {
		s.recordFinished(models.KindAnalysis, job.Lifecycle)
	}
	s.cacheResult(ctx, id, job.Result)
}

// invokeEngine runs the engine, retrying transient failures up to the
// configured limit. It returns the validated terminal result.
func (s *Service) invokeEngine(jobCtx, storeCtx context.Context, job *models.AnalysisJob) (*models.IntelligenceResult, error) {
	attempt := job.Attempts
	for {
		result, err := s.streamOnce(jobCtx, storeCtx, job, attempt)
		metrics.EngineInvocations.WithLabelValues(engineOutcome(err)).Inc()
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrTransientEngine) || attempt > s.cfg.TransientRetryLimit || jobCtx.Err() != nil {
			return nil, err
		}

		s.logger.Warn("transient engine error, retrying", "job_id", job.ID, "attempt", attempt, "error", err)
		updated, _, rerr := s.store.ApplyAnalysisEvent(storeCtx, job.ID, jobstate.Retry[models.IntelligenceResult]("Retrying analysis"))
		if rerr != nil {
			if errors.Is(rerr, ErrInvalidTransition) {
				return nil, errJobFinished
			}
			return nil, rerr
		}
		attempt = updated.Attempts
	}
}

// streamOnce performs one engine invocation, forwarding progress to the store.
func (s *Service) streamOnce(jobCtx, storeCtx context.Context, job *models.AnalysisJob, attempt int) (*models.IntelligenceResult, error) {
	req := models.AnalysisRequest{
		JobID:    job.ID.String(),
		InputRef: job.InputRef,
		Intent:   job.Intent,
		Attempt:  attempt,
	}
	updates, err := boundedCall(jobCtx, func() (<-chan models.EngineUpdate, error) {
		return s.engine.Analyze(jobCtx, req)
	})
	if err != nil {
		return nil, err
	}

	for {
		select {
		case <-jobCtx.Done():
			return nil, jobCtx.Err()
		case u, ok := <-updates:
			if !ok {
				if err := jobCtx.Err(); err != nil {
					return nil, err
				}
				return nil, fmt.Errorf("%w: engine stream ended without a result", ErrTransientEngine)
			}
			if u.Err != nil {
				return nil, u.Err
			}
			if u.Result != nil {
				return intel.Decode(u.Result)
			}
			if err := s.forwardProgress(storeCtx, job.ID, u); err != nil {
				return nil, err
			}
		}
	}
}

func (s *Service) forwardProgress(ctx context.Context, id uuid.UUID, u models.EngineUpdate) error {
	_, _, err := s.store.ApplyAnalysisEvent(ctx, id, jobstate.Progress[models.IntelligenceResult](u.Progress, u.Step))
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrInvalidTransition) {
		return err
	}
	cur, gerr := s.store.GetAnalysisJob(ctx, id)
	if gerr == nil && cur.State.IsTerminal() {
		return errJobFinished
	}
	s.logger.Warn("discarding invalid engine progress", "job_id", id, "progress", u.Progress, "error", err)
	return nil
}

func (s *Service) cacheResult(ctx context.Context, id uuid.UUID, result *models.IntelligenceResult) {
	if s.cache == nil || result == nil {
		return
	}
	b, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("failed to encode result for cache", "job_id", id, "error", err)
		return
	}
	if err := s.cache.SetResult(ctx, id, b, s.cfg.ResultTTL); err != nil {
		s.logger.Warn("failed to cache result", "job_id", id, "error", err)
	}
}

// ListAnalysisJobs returns every analysis of inputRef, newest first.
func (s *Service) ListAnalysisJobs(ctx context.Context, inputRef string) ([]*models.AnalysisJob, error) {
	inputRef = strings.TrimSpace(inputRef)
	if inputRef == "" {
		return nil, invalidField("input_ref", "is required")
	}
	return s.store.ListAnalysisJobsByInput(ctx, inputRef)
}
