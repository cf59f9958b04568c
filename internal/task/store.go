package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is a concurrency-safe map from task ID to task record, the
// single source of truth for task state. All mutation goes through
// Create, Transition, Heartbeat and Remove; reads return snapshots so
// callers can never mutate store state directly.
type Store struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
	// order preserves submission order for List.
	order []uuid.UUID
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		records: make(map[uuid.UUID]*Record),
	}
}

// Create allocates a fresh identifier, inserts a record with status
// created, and returns the identifier. UUIDv4 gives 122 random bits,
// making collision probability negligible for the process lifetime.
func (s *Store) Create(payload any) uuid.UUID {
	id := uuid.New()
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[id] = &Record{
		ID:        id,
		Status:    StatusCreated,
		Payload:   payload,
		CreatedAt: now,
		heartbeat: now,
	}
	s.order = append(s.order, id)
	return id
}

// Transition atomically moves a task from one of the expected source
// states to the target state. StartedAt is set on entry to running and
// CompletedAt on entry to a terminal state, each exactly once. apply,
// if non-nil, runs under the same lock to set outcome fields (result,
// error message, error kind).
//
// Returns ErrNotFound for unknown IDs and ErrInvalidTransition when the
// current status matches none of the expected sources; in that case the
// record is left untouched, which is what guards racing terminal
// transitions: the loser gets ErrInvalidTransition and has no effect.
func (s *Store) Transition(id uuid.UUID, from []Status, to Status, apply func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	matched := false
	for _, f := range from {
		if r.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return fmt.Errorf("%w: task %s is %s, expected one of %v",
			ErrInvalidTransition, id, r.Status, from)
	}

	r.Status = to
	now := time.Now()
	if to == StatusRunning && r.StartedAt == nil {
		t := now
		r.StartedAt = &t
	}
	if to.Terminal() && r.CompletedAt == nil {
		t := now
		r.CompletedAt = &t
	}
	if apply != nil {
		apply(r)
	}
	return nil
}

// Heartbeat records worker liveness for a running task.
func (s *Store) Heartbeat(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok {
		r.heartbeat = time.Now()
	}
}

// LastHeartbeat returns the worker's last liveness report for a task.
func (s *Store) LastHeartbeat(id uuid.UUID) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.heartbeat, nil
}

// Get returns a read-only snapshot of a task record.
func (s *Store) Get(id uuid.UUID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return snapshot(r), nil
}

// List returns snapshots of all task records in submission order.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		if r, ok := s.records[id]; ok {
			out = append(out, snapshot(r))
		}
	}
	return out
}

// Remove deletes a record. Used only by the reaper, for records in a
// terminal state.
func (s *Store) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return
	}
	delete(s.records, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// snapshot copies a record so callers cannot reach the stored one.
// Timestamp pointers are duplicated; Payload and Result are shared but
// immutable by contract.
func snapshot(r *Record) Record {
	out := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
