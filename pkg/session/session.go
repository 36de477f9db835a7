// Package session holds the ephemeral per-interaction state of the capture
// pipeline and the stores that keep it. One session is serially driven by
// one client interaction; nothing in here coordinates across sessions.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/OpenHarvest-Labs/fieldproof/pkg/ledger"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/record"
)

var ErrNotFound = errors.New("session not found")

// State is the session lifecycle state.
type State string

const (
	StateCreated              State = "CREATED"
	StateCapturing            State = "CAPTURING"
	StateReadyForConfirmation State = "READY_FOR_CONFIRMATION"
	StateCommitting           State = "COMMITTING"
	StateCommitted            State = "COMMITTED"
	StateCommitFailed         State = "COMMIT_FAILED"
	StateAborted              State = "ABORTED"
)

// Terminal reports whether no further transition is allowed from s.
// COMMIT_FAILED is deliberately not terminal: a commit may be retried from
// the last confirmed record state.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateAborted
}

// Session is the orchestration state for one end-to-end capture.
type Session struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	State    State  `json:"state"`
	FarmerID string `json:"farmer_id"`

	Transcript string                    `json:"transcript,omitempty"`
	Record     *record.ObservationRecord `json:"record,omitempty"`

	// Commit results, populated in order as the commit progresses. A
	// non-empty AudioCID with a COMMIT_FAILED state means the blob upload
	// succeeded and a retry may reuse it.
	AudioCID      string          `json:"audio_cid,omitempty"`
	DataHash      string          `json:"data_hash,omitempty"`
	Receipt       *ledger.Receipt `json:"receipt,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a session in CREATED with a fresh id and a pseudonymous
// farmer id derived from it.
func New(language string, now time.Time) *Session {
	id := uuid.NewString()
	return &Session{
		ID:        id,
		Language:  language,
		State:     StateCreated,
		FarmerID:  "farmer_" + id[:8],
		CreatedAt: now,
		UpdatedAt: now,
	}
}
