package task

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	store := NewStore()
	id := store.Create("payload")

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, StatusCreated, rec.Status)
	assert.Equal(t, "payload", rec.Payload)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Nil(t, rec.StartedAt)
	assert.Nil(t, rec.CompletedAt)
}

func TestStore_GetUnknownID(t *testing.T) {
	t.Parallel()

	store := NewStore()
	_, err := store.Get(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetReturnsSnapshot(t *testing.T) {
	t.Parallel()

	store := NewStore()
	id := store.Create(nil)

	snap, err := store.Get(id)
	require.NoError(t, err)

	// Mutating the snapshot must not leak into the store.
	snap.Status = StatusCompleted
	snap.ErrorMessage = "mutated"

	fresh, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, fresh.Status)
	assert.Empty(t, fresh.ErrorMessage)
}

func TestStore_Transition(t *testing.T) {
	t.Parallel()

	store := NewStore()
	id := store.Create(nil)

	require.NoError(t, store.Transition(id, []Status{StatusCreated}, StatusPending, nil))
	require.NoError(t, store.Transition(id, []Status{StatusCreated, StatusPending}, StatusRunning, nil))

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, rec.Status)
	require.NotNil(t, rec.StartedAt, "StartedAt should be set on entry to running")
	assert.False(t, rec.StartedAt.Before(rec.CreatedAt), "timestamps must be non-decreasing")

	err = store.Transition(id, []Status{StatusRunning, StatusStopping}, StatusCompleted, func(r *Record) {
		r.Result = []string{"record-1"}
	})
	require.NoError(t, err)

	rec, err = store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, []string{"record-1"}, rec.Result)
	require.NotNil(t, rec.CompletedAt, "CompletedAt should be set on entry to a terminal state")
	assert.False(t, rec.CompletedAt.Before(*rec.StartedAt))
}

func TestStore_TransitionGuard(t *testing.T) {
	t.Parallel()

	store := NewStore()
	id := store.Create(nil)

	err := store.Transition(id, []Status{StatusRunning}, StatusCompleted, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	rec, getErr := store.Get(id)
	require.NoError(t, getErr)
	assert.Equal(t, StatusCreated, rec.Status, "failed transition must leave the record untouched")

	err = store.Transition(uuid.New(), []Status{StatusCreated}, StatusPending, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestStore_RacingTerminalTransitions forces concurrent completion and
// cancellation of the same task: exactly one terminal transition wins,
// the other gets ErrInvalidTransition and has no effect.
func TestStore_RacingTerminalTransitions(t *testing.T) {
	t.Parallel()

	for i := 0; i < 50; i++ {
		store := NewStore()
		id := store.Create(nil)
		require.NoError(t, store.Transition(id, []Status{StatusCreated}, StatusRunning, nil))

		var wg sync.WaitGroup
		results := make([]error, 2)

		wg.Add(2)
		go func() {
			defer wg.Done()
			results[0] = store.Transition(id, []Status{StatusRunning, StatusStopping}, StatusCompleted, nil)
		}()
		go func() {
			defer wg.Done()
			results[1] = store.Transition(id, []Status{StatusRunning, StatusStopping}, StatusCanceled, nil)
		}()
		wg.Wait()

		winners := 0
		for _, err := range results {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		}
		assert.Equal(t, 1, winners, "exactly one terminal transition must win")

		rec, err := store.Get(id)
		require.NoError(t, err)
		assert.True(t, rec.Status.Terminal())
	}
}

func TestStore_ListSubmissionOrder(t *testing.T) {
	t.Parallel()

	store := NewStore()
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		ids = append(ids, store.Create(i))
	}

	records := store.List()
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, ids[i], rec.ID, "List must preserve submission order")
	}
}

func TestStore_Remove(t *testing.T) {
	t.Parallel()

	store := NewStore()
	keep := store.Create(nil)
	drop := store.Create(nil)

	store.Remove(drop)

	_, err := store.Get(drop)
	assert.ErrorIs(t, err, ErrNotFound)

	records := store.List()
	require.Len(t, records, 1)
	assert.Equal(t, keep, records[0].ID)

	// Removing an unknown ID is a no-op.
	store.Remove(uuid.New())
}

func TestStore_Heartbeat(t *testing.T) {
	t.Parallel()

	store := NewStore()
	id := store.Create(nil)

	before, err := store.LastHeartbeat(id)
	require.NoError(t, err)

	store.Heartbeat(id)
	after, err := store.LastHeartbeat(id)
	require.NoError(t, err)
	assert.False(t, after.Before(before))

	_, err = store.LastHeartbeat(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatus_Terminal(t *testing.T) {
	t.Parallel()

	terminal := []Status{StatusCompleted, StatusFailed, StatusCanceled}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	active := []Status{StatusCreated, StatusPending, StatusRunning, StatusStopping}
	for _, s := range active {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}
