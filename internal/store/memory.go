package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchintel/internal/jobstate"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// MemoryStore keeps jobs in process memory. Each job has its own lock, so
// transitions of distinct jobs never contend.
type MemoryStore struct {
	opts     options
	analyses sync.Map // uuid.UUID -> *analysisEntry
	exports  sync.Map // uuid.UUID -> *exportEntry
	// active maps an inputRef to the id of the job that currently claims it.
	active sync.Map
	seq    atomic.Int64
}

type analysisEntry struct {
	mu  sync.Mutex
	seq int64
	job *models.AnalysisJob
}

type exportEntry struct {
	mu  sync.Mutex
	seq int64
	job *models.ExportJob
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{opts: buildOptions(opts)}
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }
func (s *MemoryStore) Close() error                 { return nil }

// --- Analysis jobs ---

func (s *MemoryStore) CreateAnalysisJob(_ context.Context, job *models.AnalysisJob) error {
	if err := checkNewAnalysis(job); err != nil {
		return fmt.Errorf("create analysis job: %w", err)
	}
	if err := s.claimInput(job.InputRef, job.ID); err != nil {
		return err
	}

	now := s.opts.timestamp()
	job.CreatedAt = now
	job.UpdatedAt = now
	entry := &analysisEntry{seq: s.seq.Add(1), job: job.Clone()}
	if _, loaded := s.analyses.LoadOrStore(job.ID, entry); loaded {
		s.active.CompareAndDelete(job.InputRef, job.ID)
		return fmt.Errorf("create analysis job: %w", ErrDuplicateKey)
	}
	return nil
}

// claimInput atomically records id as the active job for inputRef. A claim
// left by a job that has since reached a terminal state is taken over.
func (s *MemoryStore) claimInput(inputRef string, id uuid.UUID) error {
	for {
		prev, loaded := s.active.LoadOrStore(inputRef, id)
		if !loaded {
			return nil
		}
		prevID := prev.(uuid.UUID)
		if s.analysisActive(prevID) {
			return ErrDuplicateActiveJob
		}
		if s.active.CompareAndSwap(inputRef, prevID, id) {
			return nil
		}
	}
}

func (s *MemoryStore) analysisActive(id uuid.UUID) bool {
	v, ok := s.analyses.Load(id)
	if !ok {
		// claimed but not yet inserted
		return true
	}
	e := v.(*analysisEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.State.IsActive()
}

func (s *MemoryStore) GetAnalysisJob(_ context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	v, ok := s.analyses.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	e := v.(*analysisEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

func (s *MemoryStore) ApplyAnalysisEvent(_ context.Context, id uuid.UUID, ev jobstate.Event[models.IntelligenceResult]) (*models.AnalysisJob, jobstate.Effect, error) {
	v, ok := s.analyses.Load(id)
	if !ok {
		return nil, "", ErrNotFound
	}
	e := v.(*analysisEntry)
	e.mu.Lock()
	defer e.mu.Unlock()

	next, effect, err := jobstate.ApplyAnalysis(e.job, ev, s.opts.timestamp())
	if err != nil {
		return nil, "", err
	}
	e.job = next
	if effect.Terminal() {
		s.active.CompareAndDelete(next.InputRef, next.ID)
	}
	return next.Clone(), effect, nil
}

func (s *MemoryStore) ListAnalysisJobsByInput(_ context.Context, inputRef string) ([]*models.AnalysisJob, error) {
	return s.listAnalyses(func(j *models.AnalysisJob) bool { return j.InputRef == inputRef }), nil
}

func (s *MemoryStore) ListAnalysisJobsByState(_ context.Context, state models.State) ([]*models.AnalysisJob, error) {
	return s.listAnalyses(func(j *models.AnalysisJob) bool { return j.State == state }), nil
}

func (s *MemoryStore) listAnalyses(match func(*models.AnalysisJob) bool) []*models.AnalysisJob {
	type item struct {
		seq int64
		job *models.AnalysisJob
	}
	var items []item
	s.analyses.Range(func(_, v any) bool {
		e := v.(*analysisEntry)
		e.mu.Lock()
		if match(e.job) {
			items = append(items, item{seq: e.seq, job: e.job.Clone()})
		}
		e.mu.Unlock()
		return true
	})
	sort.Slice(items, func(i, j int) bool { return items[i].seq > items[j].seq })

	out := make([]*models.AnalysisJob, len(items))
	for i, it := range items {
		out[i] = it.job
	}
	return out
}

// --- Export jobs ---

func (s *MemoryStore) CreateExportJob(_ context.Context, job *models.ExportJob) error {
	if err := checkNewExport(job); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	now := s.opts.timestamp()
	job.CreatedAt = now
	job.UpdatedAt = now
	entry := &exportEntry{seq: s.seq.Add(1), job: job.Clone()}
	if _, loaded := s.exports.LoadOrStore(job.ID, entry); loaded {
		return fmt.Errorf("create export job: %w", ErrDuplicateKey)
	}
	return nil
}

func (s *MemoryStore) GetExportJob(_ context.Context, id uuid.UUID) (*models.ExportJob, error) {
	v, ok := s.exports.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	e := v.(*exportEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

func (s *MemoryStore) ApplyExportEvent(_ context.Context, id uuid.UUID, ev jobstate.Event[models.ArtifactRef]) (*models.ExportJob, jobstate.Effect, error) {
	v, ok := s.exports.Load(id)
	if !ok {
		return nil, "", ErrNotFound
	}
	e := v.(*exportEntry)
	e.mu.Lock()
	defer e.mu.Unlock()

	next, effect, err := jobstate.ApplyExport(e.job, ev, s.opts.timestamp())
	if err != nil {
		return nil, "", err
	}
	e.job = next
	return next.Clone(), effect, nil
}

func (s *MemoryStore) ListExportJobsByAnalysis(_ context.Context, analysisRef uuid.UUID) ([]*models.ExportJob, error) {
	return s.listExports(func(j *models.ExportJob) bool { return j.AnalysisRef == analysisRef }), nil
}

func (s *MemoryStore) ListExportJobsByState(_ context.Context, state models.State) ([]*models.ExportJob, error) {
	return s.listExports(func(j *models.ExportJob) bool { return j.State == state }), nil
}

func (s *MemoryStore) listExports(match func(*models.ExportJob) bool) []*models.ExportJob {
	type item struct {
		seq int64
		job *models.ExportJob
	}
	var items []item
	s.exports.Range(func(_, v any) bool {
		e := v.(*exportEntry)
		e.mu.Lock()
		if match(e.job) {
			items = append(items, item{seq: e.seq, job: e.job.Clone()})
		}
		e.mu.Unlock()
		return true
	})
	sort.Slice(items, func(i, j int) bool { return items[i].seq > items[j].seq })

	out := make([]*models.ExportJob, len(items))
	for i, it := range items {
		out[i] = it.job
	}
	return out
}
