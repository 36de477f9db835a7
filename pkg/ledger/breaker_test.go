package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingAnchor struct {
	calls int
	err   error
}

func (f *failingAnchor) Commit(ctx context.Context, subjectID string, timestamp int64, dataHash, cid string) (*Receipt, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Receipt{TxRef: "tx", Sequence: uint64(f.calls), AnchoredAt: time.Now()}, nil
}

func TestBreakerPassesThrough(t *testing.T) {
	inner := &failingAnchor{}
	b := NewBreakerAnchorer(inner, 3, time.Second)

	receipt, err := b.Commit(context.Background(), "farmer_1a2b3c4d", 1700000000, "hash", "cid")
	require.NoError(t, err)
	assert.Equal(t, "tx", receipt.TxRef)
	assert.Equal(t, 1, inner.calls)
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	inner := &failingAnchor{err: errors.New("node down")}
	b := NewBreakerAnchorer(inner, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.Commit(ctx, "farmer_1a2b3c4d", 1700000000, "hash", "cid")
		require.Error(t, err)
	}
	assert.Equal(t, 3, inner.calls)

	// Open: fail fast without touching the backend.
	_, err := b.Commit(ctx, "farmer_1a2b3c4d", 1700000000, "hash", "cid")
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 3, inner.calls)
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Unix(1700000000, 0)
	inner := &failingAnchor{err: errors.New("node down")}
	b := NewBreakerAnchorer(inner, 1, 10*time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := b.Commit(ctx, "farmer_1a2b3c4d", 1700000000, "hash", "cid")
	require.Error(t, err)
	_, err = b.Commit(ctx, "farmer_1a2b3c4d", 1700000000, "hash", "cid")
	assert.ErrorIs(t, err, ErrBreakerOpen)

	// After the reset timeout one probe is allowed; it fails, so the
	// circuit snaps back open.
	now = now.Add(11 * time.Second)
	_, err = b.Commit(ctx, "farmer_1a2b3c4d", 1700000000, "hash", "cid")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrBreakerOpen)
	_, err = b.Commit(ctx, "farmer_1a2b3c4d", 1700000000, "hash", "cid")
	assert.ErrorIs(t, err, ErrBreakerOpen)

	// Backend recovers: the next probe closes the circuit.
	now = now.Add(11 * time.Second)
	inner.err = nil
	receipt, err := b.Commit(ctx, "farmer_1a2b3c4d", 1700000000, "hash", "cid")
	require.NoError(t, err)
	assert.NotNil(t, receipt)

	// Closed again: commits flow normally.
	_, err = b.Commit(ctx, "farmer_1a2b3c4d", 1700000000, "hash", "cid")
	require.NoError(t, err)
}
