package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OpenHarvest-Labs/fieldproof/pkg/canonicalize"
)

// genesisHash seeds the chain before the first entry.
const genesisHash = "genesis"

// Entry is an immutable, hash-chained ledger entry.
type Entry struct {
	Sequence   uint64    `json:"sequence"`
	SubjectID  string    `json:"subject_id"`
	Timestamp  int64     `json:"timestamp"`
	DataHash   string    `json:"data_hash"`
	CID        string    `json:"cid"`
	PrevHash   string    `json:"prev_hash"`
	EntryHash  string    `json:"entry_hash"`
	AnchoredAt time.Time `json:"anchored_at"`
}

// ChainLedger is an in-process append-only ledger. Each entry is
// hash-chained to its predecessor; no deletions or mutations.
type ChainLedger struct {
	mu       sync.RWMutex
	entries  []Entry
	headHash string
	clock    func() time.Time
}

func NewChainLedger() *ChainLedger {
	return &ChainLedger{
		entries:  make([]Entry, 0),
		headHash: genesisHash,
		clock:    time.Now,
	}
}

// WithClock overrides the clock for testing.
func (l *ChainLedger) WithClock(clock func() time.Time) *ChainLedger {
	l.clock = clock
	return l
}

// Commit appends an entry and returns its receipt. The entry hash covers
// sequence, subject, timestamp, data hash, CID and the previous hash, so
// tampering with any committed field breaks the chain.
func (l *ChainLedger) Commit(ctx context.Context, subjectID string, timestamp int64, dataHash, cid string) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.entries)) + 1
	entryHash, err := hashEntry(seq, subjectID, timestamp, dataHash, cid, l.headHash)
	if err != nil {
		return nil, err
	}

	entry := Entry{
		Sequence:   seq,
		SubjectID:  subjectID,
		Timestamp:  timestamp,
		DataHash:   dataHash,
		CID:        cid,
		PrevHash:   l.headHash,
		EntryHash:  entryHash,
		AnchoredAt: l.clock(),
	}
	l.entries = append(l.entries, entry)
	l.headHash = entryHash

	return &Receipt{
		TxRef:      entryHash,
		Sequence:   seq,
		AnchoredAt: entry.AnchoredAt,
	}, nil
}

// Get retrieves an entry by sequence number.
func (l *ChainLedger) Get(seq uint64) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if seq == 0 || seq > uint64(len(l.entries)) {
		return nil, ErrEntryNotFound
	}
	entry := l.entries[seq-1]
	return &entry, nil
}

// Head returns the current head hash.
func (l *ChainLedger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Length returns the number of entries.
func (l *ChainLedger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Verify recomputes the whole chain and reports the first break.
func (l *ChainLedger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prevHash := genesisHash
	for i, entry := range l.entries {
		if entry.PrevHash != prevHash {
			return fmt.Errorf("%w: entry %d expected prev %s, got %s", ErrChainBroken, i+1, prevHash, entry.PrevHash)
		}
		computed, err := hashEntry(entry.Sequence, entry.SubjectID, entry.Timestamp, entry.DataHash, entry.CID, entry.PrevHash)
		if err != nil {
			return err
		}
		if computed != entry.EntryHash {
			return fmt.Errorf("%w: hash mismatch at entry %d", ErrChainBroken, i+1)
		}
		prevHash = entry.EntryHash
	}
	return nil
}

// hashEntry computes the canonical hash of an entry's committed fields.
// Canonical serialization keeps the hash independent of field order.
func hashEntry(seq uint64, subjectID string, timestamp int64, dataHash, cid, prevHash string) (string, error) {
	b, err := canonicalize.JCS(map[string]interface{}{
		"cid":        cid,
		"data_hash":  dataHash,
		"prev_hash":  prevHash,
		"sequence":   seq,
		"subject_id": subjectID,
		"timestamp":  timestamp,
	})
	if err != nil {
		return "", fmt.Errorf("hash entry: %w", err)
	}
	return canonicalize.Hash(b), nil
}
