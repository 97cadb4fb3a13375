package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultDrainGrace bounds how long Shutdown waits for queued jobs.
const DefaultDrainGrace = 60 * time.Second

// ErrDrainTimeout is returned by Shutdown when jobs were still queued or
// running after the grace period.
var ErrDrainTimeout = errors.New("worker pool drain timed out")

const flushPollInterval = 2 * time.Millisecond

// Pool is a fixed-size group of goroutines executing jobs in FIFO order.
//
// Submit is safe from any goroutine. Jobs submitted before Shutdown are run
// unless the drain grace period expires first.
type Pool struct {
	queue   *jobQueue
	workers int
	logger  *slog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
	done   chan struct{}

	inflight atomic.Int64

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger for job panics and shutdown.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// New starts a pool with the given number of workers.
// workers <= 0 means one worker per available CPU.
func New(workers int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	p := &Pool{
		queue:   newJobQueue(),
		workers: workers,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.group, ctx = errgroup.WithContext(ctx)

	for id := 1; id <= workers; id++ {
		id := id
		p.group.Go(func() error {
			p.run(ctx, id)
			return nil
		})
	}

	go func() {
		_ = p.group.Wait()
		close(p.done)
	}()

	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Pending returns the number of queued jobs not yet picked up.
func (p *Pool) Pending() int {
	return p.queue.Len()
}

// Submit queues a job. Returns false if the pool is shut down.
func (p *Pool) Submit(job Job) bool {
	if job == nil {
		return false
	}
	p.inflight.Add(1)
	if !p.queue.Enqueue(job) {
		p.inflight.Add(-1)
		return false
	}
	return true
}

// Flush waits until every submitted job has finished or ctx is done.
func (p *Pool) Flush(ctx context.Context) error {
	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()

	for p.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("flush: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Shutdown stops accepting jobs and waits up to grace for queued and running
// jobs to finish. On timeout the remaining jobs are dropped, the context of
// running jobs is cancelled, and ErrDrainTimeout is returned once they exit.
//
// Shutdown is idempotent; later calls return the first call's result.
func (p *Pool) Shutdown(grace time.Duration) error {
	p.shutdownOnce.Do(func() {
		p.shutdownErr = p.shutdown(grace)
	})
	return p.shutdownErr
}

func (p *Pool) shutdown(grace time.Duration) error {
	p.queue.Close()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		p.cancel()
		return nil
	case <-timer.C:
	}

	p.cancel()
	<-p.done
	// Workers have exited, so nothing else dequeues.
	dropped := p.queue.Drop()
	p.inflight.Add(-int64(dropped))

	p.logger.Warn("worker pool drain timed out", "grace", grace, "dropped", dropped)
	return fmt.Errorf("%w: %d queued jobs dropped after %s", ErrDrainTimeout, dropped, grace)
}

// run is the worker loop. It exits when the queue is drained or ctx is
// cancelled.
func (p *Pool) run(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		if job, ok := p.queue.TryDequeue(); ok {
			p.execute(ctx, id, job)
			continue
		}

		if p.queue.Drained() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-p.queue.Wait():
		}
	}
}

func (p *Pool) execute(ctx context.Context, id int, job Job) {
	defer func() {
		p.inflight.Add(-1)
		if r := recover(); r != nil {
			p.logger.Error("worker job panicked", "worker", id, "panic", r)
		}
	}()
	job(ctx)
}
