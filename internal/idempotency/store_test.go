package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*MemoryStore, *time.Time) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(TTLs{Pending: time.Minute, Done: time.Hour})
	s.now = func() time.Time { return now }
	return s, &now
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	state, err := s.Begin(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, StateNew, state)

	state, err = s.Begin(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, StatePending, state)

	require.NoError(t, s.Complete(ctx, "o-1"))
	state, err = s.Begin(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, StateDone, state)
}

func TestMemoryStore_Release(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	_, err := s.Begin(ctx, "o-1")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "o-1"))

	state, err := s.Begin(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, StateNew, state)
}

func TestMemoryStore_Expiry(t *testing.T) {
	s, now := newTestStore()
	ctx := context.Background()

	_, err := s.Begin(ctx, "pending")
	require.NoError(t, err)
	_, err = s.Begin(ctx, "done")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "done"))

	*now = now.Add(2 * time.Minute)
	state, err := s.Begin(ctx, "pending")
	require.NoError(t, err)
	assert.Equal(t, StateNew, state, "abandoned claim is taken over")

	state, err = s.Begin(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, StateDone, state)

	*now = now.Add(2 * time.Hour)
	state, err = s.Begin(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, StateNew, state)
}

func TestMemoryStore_ConcurrentBegin(t *testing.T) {
	s := NewMemoryStore(DefaultTTLs())
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := s.Begin(ctx, "o-1")
			if err == nil && state == StateNew {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "new", StateNew.String())
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "done", StateDone.String())
}
