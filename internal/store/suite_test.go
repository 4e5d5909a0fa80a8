package store_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/matchintel/internal/jobstate"
	"github.com/kiranshivaraju/matchintel/internal/store"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

type storeFactory func(t *testing.T, opts ...store.Option) store.Store

// tickingClock advances one millisecond per call so creation order is total.
func tickingClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

func newAnalysis(inputRef string) *models.AnalysisJob {
	return &models.AnalysisJob{
		ID:        uuid.New(),
		InputRef:  inputRef,
		Intent:    models.IntentFullMatch,
		Lifecycle: models.Lifecycle{State: models.StatePending},
	}
}

func newExport(analysisRef uuid.UUID) *models.ExportJob {
	return &models.ExportJob{
		ID:          uuid.New(),
		AnalysisRef: analysisRef,
		ExportType:  models.ExportDataTable,
		Options:     models.DefaultExportOptions(),
		Lifecycle:   models.Lifecycle{State: models.StatePending},
	}
}

func testResult() *models.IntelligenceResult {
	return &models.IntelligenceResult{
		Events: []models.MatchEvent{
			{ID: "e1", Type: "goal", Timestamp: 1234.5, Team: "home", Player: "p9", Confidence: 0.93},
		},
		TacticalAnalysis:  json.RawMessage(`{"formation":"4-4-2"}`),
		PlayerEvaluations: map[string]models.PlayerEvaluation{"p9": {Name: "Nine", Rating: 8.1}},
		ConfidenceScores:  map[string]float64{"overall": 0.88},
	}
}

type analysisEv = jobstate.Event[models.IntelligenceResult]

func apply(t *testing.T, s store.Store, id uuid.UUID, ev analysisEv) *models.AnalysisJob {
	t.Helper()
	job, _, err := s.ApplyAnalysisEvent(context.Background(), id, ev)
	require.NoError(t, err)
	return job
}

func completedAnalysis(t *testing.T, s store.Store, inputRef string) *models.AnalysisJob {
	t.Helper()
	job := newAnalysis(inputRef)
	require.NoError(t, s.CreateAnalysisJob(context.Background(), job))
	apply(t, s, job.ID, jobstate.Start[models.IntelligenceResult]("start"))
	return apply(t, s, job.ID, jobstate.Succeed(testResult()))
}

func runStoreSuite(t *testing.T, factory storeFactory) {
	t.Run("CreateAndGet", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		job := newAnalysis("video-create")
		require.NoError(t, s.CreateAnalysisJob(ctx, job))
		assert.False(t, job.CreatedAt.IsZero())

		got, err := s.GetAnalysisJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, "video-create", got.InputRef)
		assert.Equal(t, models.IntentFullMatch, got.Intent)
		assert.Equal(t, models.StatePending, got.State)
		assert.True(t, job.CreatedAt.Equal(got.CreatedAt))
		assert.Nil(t, got.Result)
		assert.Nil(t, got.Error)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s := factory(t)
		_, err := s.GetAnalysisJob(context.Background(), uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetExportJob(context.Background(), uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, _, err = s.ApplyAnalysisEvent(context.Background(), uuid.New(), jobstate.Cancel[models.IntelligenceResult]())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("DuplicateActiveRejected", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		first := newAnalysis("video-dup")
		require.NoError(t, s.CreateAnalysisJob(ctx, first))

		err := s.CreateAnalysisJob(ctx, newAnalysis("video-dup"))
		assert.ErrorIs(t, err, store.ErrDuplicateActiveJob)

		apply(t, s, first.ID, jobstate.Start[models.IntelligenceResult](""))
		err = s.CreateAnalysisJob(ctx, newAnalysis("video-dup"))
		assert.ErrorIs(t, err, store.ErrDuplicateActiveJob)

		// other inputs are unaffected
		require.NoError(t, s.CreateAnalysisJob(ctx, newAnalysis("video-other")))

		apply(t, s, first.ID, jobstate.Cancel[models.IntelligenceResult]())
		require.NoError(t, s.CreateAnalysisJob(ctx, newAnalysis("video-dup")))
	})

	t.Run("ConcurrentCreateSingleWinner", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		const n = 16
		var (
			wg        sync.WaitGroup
			succeeded atomic.Int32
			dups      atomic.Int32
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.CreateAnalysisJob(ctx, newAnalysis("video-race"))
				switch {
				case err == nil:
					succeeded.Add(1)
				case assert.ErrorIs(t, err, store.ErrDuplicateActiveJob):
					dups.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), succeeded.Load())
		assert.Equal(t, int32(n-1), dups.Load())
	})

	t.Run("TransitionsPersist", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		job := newAnalysis("video-flow")
		require.NoError(t, s.CreateAnalysisJob(ctx, job))

		started := apply(t, s, job.ID, jobstate.Start[models.IntelligenceResult]("loading"))
		assert.Equal(t, models.StateProcessing, started.State)
		assert.Equal(t, 1, started.Attempts)
		require.NotNil(t, started.StartedAt)

		apply(t, s, job.ID, jobstate.Progress[models.IntelligenceResult](40, "tracking players"))
		_, effect, err := s.ApplyAnalysisEvent(ctx, job.ID, jobstate.Progress[models.IntelligenceResult](10, "stale"))
		require.NoError(t, err)
		assert.Equal(t, jobstate.EffectIgnored, effect)

		apply(t, s, job.ID, jobstate.Retry[models.IntelligenceResult]("retrying"))
		done := apply(t, s, job.ID, jobstate.Succeed(testResult()))
		assert.Equal(t, models.StateCompleted, done.State)

		got, err := s.GetAnalysisJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StateCompleted, got.State)
		assert.Equal(t, 100, got.Progress)
		assert.Equal(t, 2, got.Attempts)
		require.NotNil(t, got.Result)
		assert.Equal(t, testResult().Events, got.Result.Events)
		assert.Equal(t, testResult().PlayerEvaluations, got.Result.PlayerEvaluations)
		assert.JSONEq(t, `{"formation":"4-4-2"}`, string(got.Result.TacticalAnalysis))
		require.NotNil(t, got.CompletedAt)
		assert.False(t, got.CompletedAt.Before(*got.StartedAt))
	})

	t.Run("FailureKeepsDetail", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		job := newAnalysis("video-fail")
		require.NoError(t, s.CreateAnalysisJob(ctx, job))
		apply(t, s, job.ID, jobstate.Start[models.IntelligenceResult](""))
		apply(t, s, job.ID, jobstate.Progress[models.IntelligenceResult](70, "scoring"))
		apply(t, s, job.ID, jobstate.Fail[models.IntelligenceResult](models.ErrorInfo{
			Kind: "engine_rejected", Message: "engine could not process the video", Action: "re-upload the video",
			Detail: "codec h265 unsupported",
		}))

		got, err := s.GetAnalysisJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StateFailed, got.State)
		assert.Equal(t, 70, got.Progress)
		require.NotNil(t, got.Error)
		assert.Equal(t, "engine_rejected", got.Error.Kind)
		assert.Equal(t, "codec h265 unsupported", got.Error.Detail)
	})

	t.Run("TerminalImmutable", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		done := completedAnalysis(t, s, "video-terminal")

		for _, ev := range []analysisEv{
			jobstate.Start[models.IntelligenceResult](""),
			jobstate.Progress[models.IntelligenceResult](50, ""),
			jobstate.Fail[models.IntelligenceResult](models.ErrorInfo{Kind: "internal"}),
		} {
			_, _, err := s.ApplyAnalysisEvent(ctx, done.ID, ev)
			assert.ErrorIs(t, err, jobstate.ErrInvalidTransition)
		}

		job, effect, err := s.ApplyAnalysisEvent(ctx, done.ID, jobstate.Cancel[models.IntelligenceResult]())
		require.NoError(t, err)
		assert.Equal(t, jobstate.EffectIgnored, effect)
		assert.Equal(t, models.StateCompleted, job.State)

		got, err := s.GetAnalysisJob(ctx, done.ID)
		require.NoError(t, err)
		assert.Equal(t, done.Lifecycle, got.Lifecycle)
		assert.Equal(t, done.Result.Events, got.Result.Events)
	})

	t.Run("SnapshotsAreIsolated", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		done := completedAnalysis(t, s, "video-snapshot")

		done.Result.Events[0].Type = "tampered"
		done.State = models.StateFailed

		got, err := s.GetAnalysisJob(ctx, done.ID)
		require.NoError(t, err)
		assert.Equal(t, "goal", got.Result.Events[0].Type)
		assert.Equal(t, models.StateCompleted, got.State)
	})

	t.Run("ListByInputNewestFirst", func(t *testing.T) {
		s := factory(t, store.WithClock(tickingClock()))
		ctx := context.Background()
		var ids []uuid.UUID
		for i := 0; i < 3; i++ {
			job := newAnalysis("video-list")
			require.NoError(t, s.CreateAnalysisJob(ctx, job))
			apply(t, s, job.ID, jobstate.Cancel[models.IntelligenceResult]())
			ids = append(ids, job.ID)
		}
		require.NoError(t, s.CreateAnalysisJob(ctx, newAnalysis("video-elsewhere")))

		jobs, err := s.ListAnalysisJobsByInput(ctx, "video-list")
		require.NoError(t, err)
		require.Len(t, jobs, 3)
		assert.Equal(t, ids[2], jobs[0].ID)
		assert.Equal(t, ids[1], jobs[1].ID)
		assert.Equal(t, ids[0], jobs[2].ID)

		none, err := s.ListAnalysisJobsByInput(ctx, "video-missing")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ListByState", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		pending := newAnalysis("video-state-a")
		require.NoError(t, s.CreateAnalysisJob(ctx, pending))
		running := newAnalysis("video-state-b")
		require.NoError(t, s.CreateAnalysisJob(ctx, running))
		apply(t, s, running.ID, jobstate.Start[models.IntelligenceResult](""))

		jobs, err := s.ListAnalysisJobsByState(ctx, models.StateProcessing)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, running.ID, jobs[0].ID)

		jobs, err = s.ListAnalysisJobsByState(ctx, models.StatePending)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, pending.ID, jobs[0].ID)
	})

	t.Run("ConcurrentProgressKeepsMax", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		job := newAnalysis("video-progress")
		require.NoError(t, s.CreateAnalysisJob(ctx, job))
		apply(t, s, job.ID, jobstate.Start[models.IntelligenceResult](""))

		var wg sync.WaitGroup
		for p := 0; p <= 100; p += 5 {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				_, _, err := s.ApplyAnalysisEvent(ctx, job.ID, jobstate.Progress[models.IntelligenceResult](p, ""))
				assert.NoError(t, err)
			}(p)
		}
		wg.Wait()

		got, err := s.GetAnalysisJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 100, got.Progress)
	})

	t.Run("ExportLifecycle", func(t *testing.T) {
		s := factory(t, store.WithClock(tickingClock()))
		ctx := context.Background()
		analysis := completedAnalysis(t, s, "video-export")

		first := newExport(analysis.ID)
		first.Options.Title = "Derby report"
		require.NoError(t, s.CreateExportJob(ctx, first))
		second := newExport(analysis.ID)
		second.ExportType = models.ExportBundle
		require.NoError(t, s.CreateExportJob(ctx, second))

		got, err := s.GetExportJob(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExportDataTable, got.ExportType)
		assert.Equal(t, "Derby report", got.Options.Title)
		assert.Equal(t, 10, got.Options.ClipPaddingSeconds)

		_, _, err = s.ApplyExportEvent(ctx, first.ID, jobstate.Start[models.ArtifactRef]("rendering"))
		require.NoError(t, err)
		ref := &models.ArtifactRef{Path: "data-table/ab12.xlsx", Digest: "ab12", SizeBytes: 2048,
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"}
		done, effect, err := s.ApplyExportEvent(ctx, first.ID, jobstate.Succeed(ref))
		require.NoError(t, err)
		assert.Equal(t, jobstate.EffectCompleted, effect)
		require.NotNil(t, done.Artifact)

		got, err = s.GetExportJob(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StateCompleted, got.State)
		require.NotNil(t, got.Artifact)
		assert.Equal(t, *ref, *got.Artifact)

		list, err := s.ListExportJobsByAnalysis(ctx, analysis.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)
		assert.Equal(t, first.ID, list[1].ID)

		pending, err := s.ListExportJobsByState(ctx, models.StatePending)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, second.ID, pending[0].ID)
	})
}
