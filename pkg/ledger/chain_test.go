package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
}

func TestChainLedger_CommitAndVerify(t *testing.T) {
	l := NewChainLedger().WithClock(fixedClock)
	ctx := context.Background()

	r1, err := l.Commit(ctx, "farmer_abc123", 1736937000, "hash1", "QmCID1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r1.Sequence)
	assert.NotEmpty(t, r1.TxRef)

	r2, err := l.Commit(ctx, "farmer_def456", 1736937100, "hash2", "QmCID2")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r2.Sequence)
	assert.NotEqual(t, r1.TxRef, r2.TxRef)

	assert.Equal(t, 2, l.Length())
	assert.Equal(t, r2.TxRef, l.Head())
	assert.NoError(t, l.Verify())
}

func TestChainLedger_EntriesChained(t *testing.T) {
	l := NewChainLedger().WithClock(fixedClock)
	ctx := context.Background()

	r1, err := l.Commit(ctx, "s", 1, "h1", "c1")
	require.NoError(t, err)
	_, err = l.Commit(ctx, "s", 2, "h2", "c2")
	require.NoError(t, err)

	e2, err := l.Get(2)
	require.NoError(t, err)
	assert.Equal(t, r1.TxRef, e2.PrevHash)
}

func TestChainLedger_TamperDetected(t *testing.T) {
	l := NewChainLedger().WithClock(fixedClock)
	ctx := context.Background()

	_, err := l.Commit(ctx, "s", 1, "h1", "c1")
	require.NoError(t, err)
	_, err = l.Commit(ctx, "s", 2, "h2", "c2")
	require.NoError(t, err)

	l.entries[0].DataHash = "forged"
	assert.ErrorIs(t, l.Verify(), ErrChainBroken)
}

func TestChainLedger_GetMissing(t *testing.T) {
	l := NewChainLedger()
	_, err := l.Get(1)
	assert.ErrorIs(t, err, ErrEntryNotFound)
	_, err = l.Get(0)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestChainLedger_CancelledContext(t *testing.T) {
	l := NewChainLedger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Commit(ctx, "s", 1, "h", "c")
	assert.Error(t, err)
	assert.Equal(t, 0, l.Length())
}

// Independent sessions commit concurrently; sequences must stay unique and
// the chain intact.
func TestChainLedger_ConcurrentCommits(t *testing.T) {
	l := NewChainLedger()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	seqs := make(chan uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := l.Commit(ctx, "subject", int64(i), "hash", "cid")
			if err == nil {
				seqs <- r.Sequence
			}
		}(i)
	}
	wg.Wait()
	close(seqs)

	seen := make(map[uint64]bool)
	for s := range seqs {
		assert.False(t, seen[s], "duplicate sequence %d", s)
		seen[s] = true
	}
	assert.Len(t, seen, n)
	assert.NoError(t, l.Verify())
}
