package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGetDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sess := New("en", time.Now())
	require.NoError(t, s.Put(ctx, sess))

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, StateCreated, got.State)
	assert.Equal(t, "farmer_"+sess.ID[:8], got.FarmerID)

	require.NoError(t, s.Delete(ctx, sess.ID))
	_, err = s.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SweepExpired(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	stale := New("en", now.Add(-2*time.Hour))
	fresh := New("en", now.Add(-time.Minute))
	require.NoError(t, s.Put(ctx, stale))
	require.NoError(t, s.Put(ctx, fresh))

	removed, err := s.SweepExpired(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())

	_, err = s.Get(ctx, stale.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, StateCommitted.Terminal())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateCommitFailed.Terminal(), "COMMIT_FAILED must stay retryable")
	assert.False(t, StateCreated.Terminal())
	assert.False(t, StateReadyForConfirmation.Terminal())
}

// Exercised only when a Redis instance is available.
func TestRedisStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	s := NewRedisStore(addr, "", 0, time.Minute)
	defer s.Close()
	ctx := context.Background()

	sess := New("hi", time.Now())
	sess.State = StateReadyForConfirmation
	require.NoError(t, s.Put(ctx, sess))

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReadyForConfirmation, got.State)
	assert.Equal(t, "hi", got.Language)

	require.NoError(t, s.Delete(ctx, sess.ID))
	_, err = s.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
