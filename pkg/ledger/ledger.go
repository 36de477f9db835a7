// Package ledger is the append-only ledger collaborator boundary. A commit
// submits (subject, timestamp, data hash, blob identifier) and returns a
// receipt; failures propagate to the caller so the session can surface a
// real COMMIT_FAILED instead of a fabricated receipt.
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEntryNotFound = errors.New("ledger entry not found")
	ErrChainBroken   = errors.New("ledger chain is broken")
)

// Receipt is the proof of anchoring returned by a ledger backend.
type Receipt struct {
	// TxRef is the backend-specific transaction reference (entry hash for
	// the in-process chain, transaction id for a gateway).
	TxRef string `json:"tx_ref"`
	// Sequence is the entry's position in the ledger when the backend
	// exposes one, zero otherwise.
	Sequence uint64 `json:"sequence,omitempty"`
	// AnchoredAt is when the backend accepted the commit.
	AnchoredAt time.Time `json:"anchored_at"`
}

// Anchorer accepts commitments of (subject, timestamp, hash, identifier)
// tuples. Implementations must be safe for concurrent use by independent
// sessions and must honor ctx cancellation on slow paths.
type Anchorer interface {
	Commit(ctx context.Context, subjectID string, timestamp int64, dataHash, cid string) (*Receipt, error)
}
