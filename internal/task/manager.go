package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gregoryb/recordscrape/internal/pool"
)

// ManagerConfig holds configuration for the task manager.
type ManagerConfig struct {
	// WorkerCount determines how many tasks run concurrently.
	WorkerCount int

	// QueueSize determines the buffer size for the FIFO scheduling
	// queue. Submissions beyond it fail with ErrQueueFull.
	QueueSize int

	// ReaperInterval defines how often the reaper scans the store.
	ReaperInterval time.Duration

	// RetentionWindow defines how long terminal records are kept
	// before the reaper removes them.
	RetentionWindow time.Duration

	// OrphanThreshold defines how stale a running task's heartbeat may
	// get before the reaper force-fails it as orphaned.
	OrphanThreshold time.Duration

	// HeartbeatInterval defines how often running tasks report
	// liveness. Must be well below OrphanThreshold.
	HeartbeatInterval time.Duration
}

// DefaultManagerConfig returns a ManagerConfig with reasonable defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		WorkerCount:       5,
		QueueSize:         100,
		ReaperInterval:    time.Minute,
		RetentionWindow:   time.Hour,
		OrphanThreshold:   10 * time.Minute,
		HeartbeatInterval: 15 * time.Second,
	}
}

// cancelState is a task's cooperative cancellation signal. The channel
// is closed at most once.
type cancelState struct {
	ch   chan struct{}
	once sync.Once
}

func (c *cancelState) set() {
	c.once.Do(func() { close(c.ch) })
}

// Manager is the task engine facade: it accepts submissions, schedules
// them onto a bounded worker capacity, and exposes status, result,
// listing, cancellation and wait operations. A background reaper
// prunes aged terminal records and detects orphaned tasks.
//
// This is the only surface the routing layer may call; it must not
// reach into the Store or Pool directly.
type Manager struct {
	store  *Store
	pool   *pool.Pool
	runner *Runner
	cfg    ManagerConfig
	logger *slog.Logger

	queue      chan uuid.UUID
	ctx        context.Context
	cancelFunc context.CancelFunc
	workerWg   sync.WaitGroup
	reaperWg   sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	cancels map[uuid.UUID]*cancelState
	waiters map[uuid.UUID]chan struct{}
}

// NewManager creates a Manager executing submissions with the given
// work function. Call Start before submitting.
func NewManager(store *Store, p *pool.Pool, work WorkFunc, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:      store,
		pool:       p,
		runner:     NewRunner(store, p, work, cfg.HeartbeatInterval, logger),
		cfg:        cfg,
		logger:     logger.With("component", "task_manager"),
		queue:      make(chan uuid.UUID, cfg.QueueSize),
		ctx:        ctx,
		cancelFunc: cancel,
		cancels:    make(map[uuid.UUID]*cancelState),
		waiters:    make(map[uuid.UUID]chan struct{}),
	}
}

// Start launches the worker goroutines and the reaper.
func (m *Manager) Start() {
	for i := 0; i < m.cfg.WorkerCount; i++ {
		m.workerWg.Add(1)
		go m.worker(i)
	}
	m.reaperWg.Add(1)
	go m.reapLoop()

	m.logger.Info("task manager started",
		"worker_count", m.cfg.WorkerCount,
		"queue_size", m.cfg.QueueSize)
}

// Submit creates a task record for the payload and enqueues it on the
// scheduling queue in FIFO order. It returns immediately; execution is
// asynchronous. Fails with ErrQueueFull when the queue is saturated
// and ErrShuttingDown after shutdown has begun.
func (m *Manager) Submit(payload any) (uuid.UUID, error) {
	// The whole submission happens under m.mu, including the enqueue:
	// Shutdown closes the queue under the same lock, so a submission
	// that passed the closed check can never send on a closed channel.
	// The send is non-blocking, so holding the lock across it is safe.
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return uuid.Nil, ErrShuttingDown
	}
	id := m.store.Create(payload)
	m.cancels[id] = &cancelState{ch: make(chan struct{})}

	// Accepted into the scheduling queue. This happens before the
	// enqueue so a fast worker never races the created->pending move.
	if err := m.store.Transition(id, []Status{StatusCreated}, StatusPending, nil); err != nil {
		m.discardLocked(id)
		return uuid.Nil, fmt.Errorf("failed to schedule task: %w", err)
	}

	select {
	case m.queue <- id:
		m.logger.Debug("task submitted", "task_id", id, "queue_len", len(m.queue))
		return id, nil
	default:
		m.discardLocked(id)
		return uuid.Nil, fmt.Errorf("%w: capacity %d reached", ErrQueueFull, cap(m.queue))
	}
}

// discardLocked removes a record that never made it onto the queue.
// Must be called with m.mu held.
func (m *Manager) discardLocked(id uuid.UUID) {
	m.store.Remove(id)
	delete(m.cancels, id)
}

// Status returns a snapshot of the task record.
func (m *Manager) Status(id uuid.UUID) (Record, error) {
	return m.store.Get(id)
}

// Result returns the task record once it is terminal. Before that it
// fails with ErrNotReady (the current snapshot is still returned so
// callers can report progress).
func (m *Manager) Result(id uuid.UUID) (Record, error) {
	rec, err := m.store.Get(id)
	if err != nil {
		return Record{}, err
	}
	if !rec.Status.Terminal() {
		return rec, fmt.Errorf("%w: task %s is %s", ErrNotReady, id, rec.Status)
	}
	return rec, nil
}

// List returns snapshots of all task records in submission order.
func (m *Manager) List() []Record {
	return m.store.List()
}

// PoolStats returns the session pool occupancy counts.
func (m *Manager) PoolStats() pool.Stats {
	return m.pool.Stats()
}

// Cancel requests cooperative cancellation of a task. A pending task
// moves straight to canceled and its work function is never invoked; a
// running task moves to stopping and ends at the runner's next
// checkpoint. Already-terminal tasks are unaffected and callers must
// tolerate a canceled task still completing if cancellation lost the
// race with finishing work.
func (m *Manager) Cancel(id uuid.UUID) error {
	rec, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		return nil
	}

	m.mu.Lock()
	cs, ok := m.cancels[id]
	m.mu.Unlock()
	if ok {
		cs.set()
	}

	// Not started yet: cancel immediately. The worker that later pops
	// the ID finds it canceled and skips it.
	if err := m.store.Transition(id, []Status{StatusCreated, StatusPending}, StatusCanceled, nil); err == nil {
		m.logger.Info("task canceled before start", "task_id", id)
		m.finalize(id)
		return nil
	}

	// Running: advisory stop, the runner observes it at a checkpoint.
	if err := m.store.Transition(id, []Status{StatusRunning}, StatusStopping, nil); err == nil {
		m.logger.Info("task stopping", "task_id", id)
		return nil
	}

	// Already stopping or finished meanwhile; nothing more to do.
	return nil
}

// Wait blocks until the task reaches a terminal state or ctx expires,
// then returns the latest snapshot. Unlike polling Status, it wakes as
// soon as the task finishes.
func (m *Manager) Wait(ctx context.Context, id uuid.UUID) (Record, error) {
	rec, err := m.store.Get(id)
	if err != nil {
		return Record{}, err
	}
	if rec.Status.Terminal() {
		return rec, nil
	}

	m.mu.Lock()
	ch, ok := m.waiters[id]
	if !ok {
		ch = make(chan struct{})
		m.waiters[id] = ch
	}
	m.mu.Unlock()

	// Re-check after registering: the task may have finished between
	// the snapshot and the waiter registration.
	rec, err = m.store.Get(id)
	if err != nil {
		return Record{}, err
	}
	if rec.Status.Terminal() {
		return rec, nil
	}

	select {
	case <-ch:
	case <-ctx.Done():
	}
	return m.store.Get(id)
}

// finalize releases per-task signaling state once a task is terminal.
func (m *Manager) finalize(id uuid.UUID) {
	rec, err := m.store.Get(id)
	if err != nil || !rec.Status.Terminal() {
		return
	}

	m.mu.Lock()
	if ch, ok := m.waiters[id]; ok {
		close(ch)
		delete(m.waiters, id)
	}
	delete(m.cancels, id)
	m.mu.Unlock()
}

// worker consumes task IDs from the scheduling queue.
func (m *Manager) worker(workerID int) {
	defer m.workerWg.Done()

	logger := m.logger.With("worker_id", workerID)
	logger.Debug("worker started")

	for {
		select {
		case <-m.ctx.Done():
			logger.Debug("worker stopping")
			return

		case id, ok := <-m.queue:
			if !ok {
				logger.Debug("queue closed, worker stopping")
				return
			}

			if m.isClosed() {
				// Shutdown began after this task was queued; it must
				// not start now, and it must not be silently dropped.
				if err := m.store.Transition(id, []Status{StatusCreated, StatusPending}, StatusCanceled, nil); err == nil {
					logger.Info("queued task canceled by shutdown", "task_id", id)
				}
				m.finalize(id)
				continue
			}

			m.runner.Run(m.ctx, id, m.cancelChan(id))
			m.finalize(id)
		}
	}
}

// cancelChan returns the task's quit channel, or a fresh inert one if
// the task has no cancel state (already finalized).
func (m *Manager) cancelChan(id uuid.UUID) <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.cancels[id]; ok {
		return cs.ch
	}
	return make(chan struct{})
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// reapLoop periodically prunes aged terminal records and force-fails
// orphaned tasks.
func (m *Manager) reapLoop() {
	defer m.reaperWg.Done()

	ticker := time.NewTicker(m.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.reap()
		}
	}
}

func (m *Manager) reap() {
	now := time.Now()

	for _, rec := range m.store.List() {
		switch {
		case rec.Status.Terminal():
			if rec.CompletedAt != nil && now.Sub(*rec.CompletedAt) > m.cfg.RetentionWindow {
				m.store.Remove(rec.ID)
				m.mu.Lock()
				if ch, ok := m.waiters[rec.ID]; ok {
					close(ch)
					delete(m.waiters, rec.ID)
				}
				delete(m.cancels, rec.ID)
				m.mu.Unlock()
				m.logger.Debug("reaped terminal task", "task_id", rec.ID, "status", rec.Status)
			}

		case rec.Status == StatusRunning || rec.Status == StatusStopping:
			hb, err := m.store.LastHeartbeat(rec.ID)
			if err != nil || now.Sub(hb) <= m.cfg.OrphanThreshold {
				continue
			}
			err = m.store.Transition(rec.ID,
				[]Status{StatusRunning, StatusStopping}, StatusFailed,
				func(r *Record) {
					r.ErrorMessage = "worker stopped reporting progress"
					r.ErrorKind = ErrorKindOrphaned
				})
			if err == nil {
				m.logger.Error("orphaned task force-failed",
					"task_id", rec.ID,
					"last_heartbeat", hb)
				m.finalize(rec.ID)
			}
		}
	}
}

// Shutdown stops the manager: new submissions are rejected, queued
// tasks that have not started are canceled, and in-flight tasks get
// until ctx expires to finish before their contexts are cancelled.
// Finally the session pool is drained.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	// Closed under m.mu so it serializes with Submit's enqueue: any
	// submission already past the closed check finishes its send before
	// the channel closes.
	close(m.queue)
	m.mu.Unlock()

	m.logger.Info("task manager shutting down")

	done := make(chan struct{})
	go func() {
		m.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Deadline hit: cancel in-flight work contexts and wait for
		// the workers to observe it.
		m.logger.Warn("shutdown deadline reached, cancelling in-flight tasks")
		m.cancelFunc()
		<-done
	}

	m.cancelFunc()
	m.reaperWg.Wait()

	m.pool.Drain(ctx)
	m.logger.Info("task manager stopped")
}
