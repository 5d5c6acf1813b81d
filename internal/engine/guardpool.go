package engine

import (
	"sync"

	"github.com/penhollow/custody-server/internal/platform/logger"
)

// GuardPool owns the set of escort workers shared by booking and release.
// A worker is assigned to at most one task at a time; external components
// never flip availability flags directly.
type GuardPool struct {
	mu      sync.Mutex
	workers []EscortWorker
	logger  *logger.Logger

	// standbyFactory creates a worker from the designated standby post when
	// the pool is empty. May be nil.
	standbyFactory func() EscortWorker

	// onFree runs after a worker returns to the pool, outside the pool
	// lock. The release orchestrator hooks its queue drain here.
	onFree func()
}

// NewGuardPool creates a pool with an optional standby-post factory.
func NewGuardPool(log *logger.Logger, standbyFactory func() EscortWorker) *GuardPool {
	return &GuardPool{
		workers:        make([]EscortWorker, 0),
		logger:         log,
		standbyFactory: standbyFactory,
	}
}

// AddWorker registers a worker with the pool.
func (g *GuardPool) AddWorker(w EscortWorker) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.workers = append(g.workers, w)
	g.logger.Info("Escort worker registered with pool: " + w.ID())
}

// SetOnFree installs the worker-freed hook. Wiring-time only.
func (g *GuardPool) SetOnFree(fn func()) {
	g.onFree = fn
}

// Acquire claims the first available worker and marks it busy. When the
// pool has no workers at all it attempts on-demand creation from the
// standby post. Returns nil if no worker could be claimed.
func (g *GuardPool) Acquire() EscortWorker {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, w := range g.workers {
		if w.IsAvailable() {
			w.SetAvailable(false)
			return w
		}
	}

	if len(g.workers) == 0 && g.standbyFactory != nil {
		w := g.standbyFactory()
		if w != nil {
			g.logger.Warn("Pool empty, spawning standby worker " + w.ID())
			w.SetAvailable(false)
			g.workers = append(g.workers, w)
			return w
		}
	}

	return nil
}

// Free returns a worker to the pool, sends it back to its post, and runs
// the drain hook.
func (g *GuardPool) Free(w EscortWorker) {
	if w == nil {
		return
	}

	g.mu.Lock()
	w.ClearCallbacks()
	w.SetAvailable(true)
	g.mu.Unlock()

	w.ReturnToPost()
	g.logger.Info("Escort worker returned to pool: " + w.ID())

	if g.onFree != nil {
		g.onFree()
	}
}

// Available returns the number of idle workers.
func (g *GuardPool) Available() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, w := range g.workers {
		if w.IsAvailable() {
			n++
		}
	}
	return n
}

// Busy returns the number of claimed workers.
func (g *GuardPool) Busy() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, w := range g.workers {
		if !w.IsAvailable() {
			n++
		}
	}
	return n
}

// Total returns the pool size.
func (g *GuardPool) Total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.workers)
}
