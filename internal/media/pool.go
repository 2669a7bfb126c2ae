package media

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Pool owns a fixed set of engine workers and hands them out round-robin.
// Assignment is deliberately not load-aware; the reference behavior is a
// plain cursor over the pool.
//
// A dead worker is fatal: rooms hold direct references to their worker, so
// partial recovery is unsafe. The pool logs, waits out a short grace period
// so in-flight operations can fail on their own, then calls terminate.
type Pool struct {
	workers   []Worker
	cursor    atomic.Uint64
	grace     time.Duration
	terminate func()

	mu   sync.Mutex
	dead map[string]struct{}

	dying atomic.Bool

	onDeath func(workerID string)
}

type PoolOptions struct {
	Size  int
	Grace time.Duration
	// Terminate is invoked once after Grace when a worker dies.
	// The default exits the process; tests inject their own.
	Terminate func()
	// OnDeath, if set, observes every death (metrics hook).
	OnDeath func(workerID string)
}

func NewPool(ctx context.Context, engine Engine, opts PoolOptions) (*Pool, error) {
	if opts.Size <= 0 {
		opts.Size = 1
	}
	if opts.Grace <= 0 {
		opts.Grace = 3 * time.Second
	}

	p := &Pool{
		workers:   make([]Worker, opts.Size),
		grace:     opts.Grace,
		terminate: opts.Terminate,
		dead:      make(map[string]struct{}),
		onDeath:   opts.OnDeath,
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.Size; i++ {
		i := i
		g.Go(func() error {
			w, err := engine.CreateWorker(gctx)
			if err != nil {
				return fmt.Errorf("create worker %d: %w", i, err)
			}
			p.workers[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.Close()
		return nil, err
	}

	for _, w := range p.workers {
		w := w
		w.OnDied(func() { p.workerDied(w.ID()) })
		log.Info().Str("module", "media.pool").Str("worker", w.ID()).Msg("worker started")
	}
	return p, nil
}

// Acquire returns the next worker round-robin. Never nil once the pool
// booted; callers racing a worker death simply get failing engine calls.
func (p *Pool) Acquire() Worker {
	n := p.cursor.Add(1) - 1
	return p.workers[n%uint64(len(p.workers))]
}

func (p *Pool) Size() int { return len(p.workers) }

// Healthy reports whether every worker is still alive.
func (p *Pool) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dead) == 0
}

func (p *Pool) workerDied(id string) {
	p.mu.Lock()
	p.dead[id] = struct{}{}
	p.mu.Unlock()

	log.Error().Str("module", "media.pool").Str("worker", id).Msg("worker died, terminating after grace period")
	if p.onDeath != nil {
		p.onDeath(id)
	}

	// Only the first death schedules termination.
	if p.dying.Swap(true) {
		return
	}
	time.AfterFunc(p.grace, func() {
		if p.terminate != nil {
			p.terminate()
		}
	})
}

// Close shuts every worker down. Boot-time partial pools tolerate nil slots.
func (p *Pool) Close() {
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			log.Warn().Err(err).Str("module", "media.pool").Str("worker", w.ID()).Msg("worker close")
		}
	}
}
