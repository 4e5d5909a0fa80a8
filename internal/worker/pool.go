// Package worker runs background jobs on a fixed number of goroutines.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kiranshivaraju/matchintel/internal/metrics"
)

var (
	ErrPoolClosed = errors.New("worker pool is shut down")
	ErrQueueFull  = errors.New("worker queue is full")
)

// Task is one unit of background work. ctx is cancelled when the pool is
// forced to stop before the task returns.
type Task struct {
	Name string
	Run  func(ctx context.Context)
}

// Pool is a bounded worker pool. At most Workers tasks run at once and at
// most QueueSize tasks wait for a free worker.
type Pool struct {
	logger    *slog.Logger
	workers   int
	queueSize int

	ch     chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.queueSize = n
		}
	}
}

// New starts a pool. A nil logger falls back to slog.Default.
func New(logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		logger:    logger,
		workers:   4,
		queueSize: 64,
	}
	for _, o := range opts {
		o(p)
	}
	p.ch = make(chan Task, p.queueSize)
	p.ctx, p.cancel = context.WithCancel(context.Background())

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i + 1)
	}
	p.logger.Info("worker pool started", "workers", p.workers, "queue_size", p.queueSize)
	return p
}

// Submit queues task without blocking. It fails with ErrQueueFull when every
// worker is busy and the queue is at capacity.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.ch <- task:
		metrics.QueueDepth.Set(float64(len(p.ch)))
		return nil
	default:
		p.logger.Warn("worker queue full, rejecting task", "task", task.Name)
		return ErrQueueFull
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.ch {
		metrics.QueueDepth.Set(float64(len(p.ch)))
		p.run(id, task)
	}
}

func (p *Pool) run(id int, task Task) {
	metrics.WorkersActive.Inc()
	defer metrics.WorkersActive.Dec()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker panic recovered", "worker_id", id, "task", task.Name, "panic", r)
		}
	}()
	task.Run(p.ctx)
}

// Shutdown stops accepting tasks and waits for queued and running tasks to
// finish. If ctx expires first, running tasks are cancelled and ctx.Err is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("worker pool drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		p.logger.Warn("worker pool shutdown interrupted, running tasks cancelled")
		return ctx.Err()
	}
}
