package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBreakerOpen means the anchorer is shedding load after repeated
// failures. Callers should surface it as a recoverable commit failure.
var ErrBreakerOpen = errors.New("anchorer circuit open")

type breakerState string

const (
	breakerClosed   breakerState = "CLOSED"
	breakerOpen     breakerState = "OPEN"
	breakerHalfOpen breakerState = "HALF_OPEN"
)

// BreakerAnchorer wraps an Anchorer with a circuit breaker. After
// threshold consecutive failures the circuit opens and commits fail fast
// with ErrBreakerOpen until resetTimeout has passed; the first commit
// after that probes the backend and closes the circuit on success.
//
// An open circuit never loses data: the session stays retryable and the
// pipeline reuses its uploaded blob identifier on the next attempt.
type BreakerAnchorer struct {
	inner Anchorer

	mu           sync.Mutex
	state        breakerState
	failureCount int
	threshold    int
	lastFailure  time.Time
	resetTimeout time.Duration
	clock        func() time.Time
}

// NewBreakerAnchorer wraps inner with a circuit breaker.
func NewBreakerAnchorer(inner Anchorer, threshold int, resetTimeout time.Duration) *BreakerAnchorer {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 10 * time.Second
	}
	return &BreakerAnchorer{
		inner:        inner,
		state:        breakerClosed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		clock:        time.Now,
	}
}

// WithClock overrides the clock for testing.
func (b *BreakerAnchorer) WithClock(clock func() time.Time) *BreakerAnchorer {
	b.clock = clock
	return b
}

func (b *BreakerAnchorer) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerOpen {
		if b.clock().Sub(b.lastFailure) > b.resetTimeout {
			b.state = breakerHalfOpen
			return true
		}
		return false
	}
	return true
}

func (b *BreakerAnchorer) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.failureCount = 0
}

func (b *BreakerAnchorer) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailure = b.clock()
	if b.state == breakerHalfOpen || b.failureCount >= b.threshold {
		b.state = breakerOpen
	}
}

// Commit delegates to the wrapped anchorer when the circuit allows it.
func (b *BreakerAnchorer) Commit(ctx context.Context, subjectID string, timestamp int64, dataHash, cid string) (*Receipt, error) {
	if !b.allow() {
		return nil, ErrBreakerOpen
	}

	receipt, err := b.inner.Commit(ctx, subjectID, timestamp, dataHash, cid)
	if err != nil {
		b.failure()
		return nil, fmt.Errorf("anchor commit: %w", err)
	}
	b.success()
	return receipt, nil
}
