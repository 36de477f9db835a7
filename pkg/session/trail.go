package session

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TrailEvent is one recorded state transition. The trail is the operator's
// answer to "what happened to this session": consent decisions, failures
// and their reasons, in order.
type TrailEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	FarmerID  string    `json:"farmer_id"`
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Trail records session state transitions.
type Trail interface {
	Record(sessionID, farmerID string, from, to State, reason string) error
}

// trail writes transitions as JSON lines to a configurable Writer.
type trail struct {
	mu     sync.Mutex
	writer io.Writer
	clock  func() time.Time
}

// NewTrail creates a Trail writing to os.Stdout.
func NewTrail() Trail {
	return NewTrailWithWriter(os.Stdout)
}

// NewTrailWithWriter creates a Trail writing to the given writer. This
// allows injection for testing and custom sinks.
func NewTrailWithWriter(w io.Writer) Trail {
	if w == nil {
		w = os.Stdout
	}
	return &trail{writer: w, clock: time.Now}
}

func (t *trail) Record(sessionID, farmerID string, from, to State, reason string) error {
	event := TrailEvent{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		FarmerID:  farmerID,
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: t.clock(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = t.writer.Write(append(b, '\n'))
	return err
}

// NopTrail discards all events.
type NopTrail struct{}

func (NopTrail) Record(sessionID, farmerID string, from, to State, reason string) error { return nil }
