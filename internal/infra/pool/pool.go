// Package pool provides a fixed-size worker pool over an unbounded FIFO
// job queue. Workers park on a condition variable while the queue is
// empty and drain every queued job before exiting on shutdown.
package pool

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/tutu-network/pfp/internal/domain"
	"github.com/tutu-network/pfp/internal/infra/metrics"
)

// Job is a unit of work. It takes no arguments and returns nothing;
// results flow through whatever the closure captured.
type Job func()

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used for worker lifecycle and panics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// WithPanicHandler is called with the recovered value whenever a job
// panics. The worker keeps running afterwards.
func WithPanicHandler(fn func(v any)) Option {
	return func(p *Pool) { p.onPanic = fn }
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers  int   `json:"workers"`
	Alive    int   `json:"alive"`
	Queued   int   `json:"queued"`
	Executed int64 `json:"executed"`
	Panicked int64 `json:"panicked"`
}

// ─── Pool ───────────────────────────────────────────────────────────────────

// Pool runs Jobs on a fixed set of goroutines.
type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Job
	shutdown bool

	workers int
	wg      sync.WaitGroup
	once    sync.Once

	alive    atomic.Int32
	executed atomic.Int64
	panicked atomic.Int64

	log     *slog.Logger
	onPanic func(v any)
}

// New starts a pool with n workers. n < 1 is treated as 1.
// The caller owns the pool and must call Shutdown.
func New(n int, opts ...Option) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{
		workers: n,
		log:     slog.Default(),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("component", "pool")

	p.wg.Add(n)
	for i := range n {
		p.alive.Add(1)
		go p.worker(i)
	}
	metrics.WorkersAlive.Add(float64(n))
	p.log.Debug("pool started", "workers", n)
	return p
}

// Execute appends job to the tail of the queue and wakes one idle worker.
// It never blocks on capacity.
func (p *Pool) Execute(job Job) error {
	if job == nil {
		return domain.ErrNilJob
	}

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return domain.ErrPoolClosed
	}
	p.queue = append(p.queue, job)
	// Set under the lock so it orders with the dequeue in next.
	metrics.QueueDepth.Set(float64(len(p.queue)))
	p.cond.Signal()
	p.mu.Unlock()
	return nil
}

// Shutdown stops accepting jobs, lets the workers drain what is queued,
// and waits for all of them to exit. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		p.mu.Lock()
		p.shutdown = true
		p.cond.Broadcast()
		p.mu.Unlock()

		p.wg.Wait()

		s := p.Stats()
		if s.Panicked > 0 {
			p.log.Warn("pool stopped after job panics", "panicked", s.Panicked, "executed", s.Executed)
		} else {
			p.log.Debug("pool stopped", "executed", s.Executed)
		}
		if s.Alive != 0 {
			p.log.Error("workers still alive after shutdown", "alive", s.Alive)
		}
	})
}

// Stats returns current counters. Alive below Workers before shutdown
// means a worker exited unexpectedly.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	queued := len(p.queue)
	p.mu.Unlock()
	return Stats{
		Workers:  p.workers,
		Alive:    int(p.alive.Load()),
		Queued:   queued,
		Executed: p.executed.Load(),
		Panicked: p.panicked.Load(),
	}
}

// Size returns the number of workers the pool was started with.
func (p *Pool) Size() int { return p.workers }

func (p *Pool) worker(id int) {
	defer func() {
		p.alive.Add(-1)
		metrics.WorkersAlive.Dec()
		p.wg.Done()
	}()

	for {
		job, ok := p.next()
		if !ok {
			return
		}
		p.run(id, job)
	}
}

// next blocks until a job is available or the pool is shut down with an
// empty queue. The predicate is re-checked under the lock after every
// wakeup, so spurious and stolen wakeups are harmless.
func (p *Pool) next() (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.shutdown {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}

	job := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	metrics.QueueDepth.Set(float64(len(p.queue)))
	return job, true
}

// run executes job outside the queue lock. A panic is contained here so
// one bad job cannot shrink the pool.
func (p *Pool) run(id int, job Job) {
	defer func() {
		p.executed.Add(1)
		if v := recover(); v != nil {
			p.panicked.Add(1)
			metrics.JobPanics.Inc()
			p.log.Error("job panicked", "worker", id, "panic", fmt.Sprint(v), "stack", string(debug.Stack()))
			if p.onPanic != nil {
				p.onPanic(v)
			}
		}
	}()
	job()
}
