package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Common errors returned by the Pool.
var (
	// ErrExhausted is returned by Acquire when no handle became
	// available within the configured acquire timeout.
	ErrExhausted = errors.New("session pool exhausted")

	// ErrClosed is returned by Acquire once Drain has been called.
	ErrClosed = errors.New("session pool is closed")
)

// Handle is an exclusive reference to a live external automation
// session. The pool owns every handle; borrowers must return theirs
// through Release and never call Close themselves.
type Handle interface {
	Close() error
}

// Factory creates new session handles on demand. Creation may be slow
// (it typically launches a browser tab) and may fail; failures are
// surfaced to the acquiring caller.
type Factory interface {
	NewHandle(ctx context.Context) (Handle, error)
}

// Config holds the pool's tunables.
type Config struct {
	// MaxSize bounds the number of live handles.
	MaxSize int

	// Floor is the number of idle handles ReapIdle leaves in place
	// regardless of age.
	Floor int

	// AcquireTimeout bounds how long Acquire blocks waiting for a
	// handle to be released.
	AcquireTimeout time.Duration

	// IdleAge is the idle duration after which a handle becomes
	// eligible for reaping.
	IdleAge time.Duration

	// ReapInterval is how often the background reap loop runs. If
	// zero, no reap loop is started.
	ReapInterval time.Duration
}

// Slot pairs a handle with its pool bookkeeping. A Slot is owned
// exclusively by the acquiring caller from Acquire until Release.
type Slot struct {
	handle   Handle
	lastUsed time.Time
	busy     bool
}

// Handle returns the session handle held by this slot.
func (s *Slot) Handle() Handle {
	return s.handle
}

// Stats is a race-free snapshot of pool occupancy.
type Stats struct {
	Total int `json:"total"`
	Busy  int `json:"busy"`
	Idle  int `json:"idle"`
}

// Pool lends exclusive, short-term use of expensive session handles,
// bounded by a configured maximum. Handles are created lazily and
// destroyed when released unhealthy, reaped idle, or drained.
type Pool struct {
	factory Factory
	cfg     Config
	logger  *slog.Logger

	mu    sync.Mutex
	cond  *sync.Cond
	slots []*Slot
	// creating counts handles being constructed outside the lock so
	// concurrent acquires cannot overshoot MaxSize.
	creating int
	closed   bool

	stopReaper context.CancelFunc
	reaperDone chan struct{}
}

// New creates a Pool. No handles are created until the first Acquire.
func New(factory Factory, cfg Config, logger *slog.Logger) *Pool {
	p := &Pool{
		factory: factory,
		cfg:     cfg,
		logger:  logger.With("component", "session_pool"),
	}
	p.cond = sync.NewCond(&p.mu)

	if cfg.ReapInterval > 0 {
		reaperCtx, cancel := context.WithCancel(context.Background())
		p.stopReaper = cancel
		p.reaperDone = make(chan struct{})
		go p.reapLoop(reaperCtx)
	}
	return p
}

// Acquire returns an exclusive slot, creating a handle lazily if the
// pool is below MaxSize. When the pool is at capacity and every handle
// is busy, Acquire blocks until a release or until the acquire timeout
// elapses, in which case it returns ErrExhausted. Context cancellation
// aborts the wait early.
func (p *Pool) Acquire(ctx context.Context) (*Slot, error) {
	deadline := time.Now().Add(p.cfg.AcquireTimeout)

	// Wake waiters when the timeout elapses or the context is
	// cancelled so the wait loop can re-check its exit conditions.
	timer := time.AfterFunc(p.cfg.AcquireTimeout, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer timer.Stop()

	unwatch := p.watchContext(ctx)
	defer unwatch()

	p.mu.Lock()
	for {
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			p.mu.Unlock()
			return nil, err
		}

		if slot := p.idleSlotLocked(); slot != nil {
			slot.busy = true
			slot.lastUsed = time.Now()
			p.mu.Unlock()
			return slot, nil
		}

		if len(p.slots)+p.creating < p.cfg.MaxSize {
			return p.createSlotLocked(ctx)
		}

		if !time.Now().Before(deadline) {
			p.mu.Unlock()
			return nil, fmt.Errorf("%w: no handle freed within %s", ErrExhausted, p.cfg.AcquireTimeout)
		}

		p.cond.Wait()
	}
}

// idleSlotLocked returns the least recently used idle slot, or nil.
// Must be called with p.mu held.
func (p *Pool) idleSlotLocked() *Slot {
	var oldest *Slot
	for _, s := range p.slots {
		if s.busy {
			continue
		}
		if oldest == nil || s.lastUsed.Before(oldest.lastUsed) {
			oldest = s
		}
	}
	return oldest
}

// createSlotLocked constructs a new handle outside the lock, reserving
// capacity through p.creating so other acquirers see it. Called with
// p.mu held; returns with p.mu released.
func (p *Pool) createSlotLocked(ctx context.Context) (*Slot, error) {
	p.creating++
	p.mu.Unlock()

	handle, err := p.factory.NewHandle(ctx)

	p.mu.Lock()
	p.creating--
	if err != nil {
		// Capacity freed up, let a waiter try instead.
		p.cond.Signal()
		p.mu.Unlock()
		return nil, fmt.Errorf("failed to create session handle: %w", err)
	}
	if p.closed {
		p.mu.Unlock()
		_ = handle.Close()
		return nil, ErrClosed
	}

	slot := &Slot{
		handle:   handle,
		lastUsed: time.Now(),
		busy:     true,
	}
	p.slots = append(p.slots, slot)
	total := len(p.slots)
	p.mu.Unlock()

	p.logger.Debug("created session handle", "total", total)
	return slot, nil
}

// Release returns a slot to the pool and wakes one waiting acquirer.
// If healthy is false the handle is destroyed instead of returned to
// the idle set; the freed capacity lets a future Acquire lazily create
// a replacement.
func (p *Pool) Release(slot *Slot, healthy bool) {
	if slot == nil {
		return
	}

	p.mu.Lock()
	slot.busy = false
	slot.lastUsed = time.Now()

	var toClose Handle
	if !healthy || p.closed {
		p.removeSlotLocked(slot)
		toClose = slot.handle
	}
	p.cond.Signal()
	p.mu.Unlock()

	if toClose != nil {
		if err := toClose.Close(); err != nil {
			p.logger.Warn("failed to close session handle", "error", err)
		}
		if !healthy {
			p.logger.Info("destroyed unhealthy session handle")
		}
	}
}

// removeSlotLocked deletes a slot from the bookkeeping. Must be called
// with p.mu held.
func (p *Pool) removeSlotLocked(slot *Slot) {
	for i, s := range p.slots {
		if s == slot {
			p.slots = append(p.slots[:i], p.slots[i+1:]...)
			return
		}
	}
}

// ReapIdle destroys idle handles whose idle age exceeds maxIdleAge,
// leaving at least the configured floor of handles in place.
func (p *Pool) ReapIdle(maxIdleAge time.Duration) {
	now := time.Now()

	p.mu.Lock()
	var reaped []Handle
	for _, s := range append([]*Slot(nil), p.slots...) {
		if len(p.slots) <= p.cfg.Floor {
			break
		}
		if s.busy || now.Sub(s.lastUsed) < maxIdleAge {
			continue
		}
		p.removeSlotLocked(s)
		reaped = append(reaped, s.handle)
	}
	remaining := len(p.slots)
	p.mu.Unlock()

	for _, h := range reaped {
		if err := h.Close(); err != nil {
			p.logger.Warn("failed to close reaped session handle", "error", err)
		}
	}
	if len(reaped) > 0 {
		p.logger.Info("reaped idle session handles",
			"reaped", len(reaped),
			"remaining", remaining)
	}
}

// Stats returns a snapshot of handle counts, taken under the same lock
// as all pool mutation.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{Total: len(p.slots)}
	for _, s := range p.slots {
		if s.busy {
			stats.Busy++
		} else {
			stats.Idle++
		}
	}
	return stats
}

// Drain closes the pool: new acquires fail with ErrClosed, busy
// handles are waited for until ctx expires, then every remaining
// handle is destroyed. Busy handles still out after the deadline are
// destroyed as their borrowers release them.
func (p *Pool) Drain(ctx context.Context) {
	if p.stopReaper != nil {
		p.stopReaper()
		<-p.reaperDone
	}

	unwatch := p.watchContext(ctx)
	defer unwatch()

	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()

	for p.busyCountLocked() > 0 && ctx.Err() == nil {
		p.cond.Wait()
	}

	// Partition while still holding the lock: busy flags are written
	// under p.mu by Release, so they must not be read outside it. Busy
	// handles stay with their borrowers; Release destroys them because
	// the pool is closed.
	idle := make([]Handle, 0, len(p.slots))
	abandoned := 0
	for _, s := range p.slots {
		if s.busy {
			abandoned++
		} else {
			idle = append(idle, s.handle)
		}
	}
	p.slots = nil
	p.mu.Unlock()

	for _, h := range idle {
		if err := h.Close(); err != nil {
			p.logger.Warn("failed to close session handle during drain", "error", err)
		}
	}
	p.logger.Info("session pool drained", "closed", len(idle), "abandoned_busy", abandoned)
}

// busyCountLocked returns the number of busy slots. Must be called
// with p.mu held.
func (p *Pool) busyCountLocked() int {
	busy := 0
	for _, s := range p.slots {
		if s.busy {
			busy++
		}
	}
	return busy
}

// watchContext broadcasts on the pool's condition variable when ctx is
// cancelled so waiters re-check their exit conditions. The returned
// function stops the watcher.
func (p *Pool) watchContext(ctx context.Context) func() {
	if ctx.Done() == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

func (p *Pool) reapLoop(ctx context.Context) {
	defer close(p.reaperDone)

	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ReapIdle(p.cfg.IdleAge)
		}
	}
}
