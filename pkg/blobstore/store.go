// Package blobstore is the blob-store collaborator boundary: it accepts the
// raw evidentiary payload (typically the original audio bytes) and returns a
// content identifier that gets attached to the record before hashing.
//
// Every backend propagates failure. None of them fabricates a synthetic
// identifier when the real dependency is unavailable; an identifier that
// cannot be distinguished from a genuine one would poison the audit chain.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
)

var (
	ErrNotFound     = errors.New("blob not found")
	ErrEmptyPayload = errors.New("empty payload")
)

// Store persists arbitrary bytes and returns a content identifier.
type Store interface {
	// Put stores data and returns its identifier. The filename is advisory
	// metadata for backends that keep it (IPFS, S3 object tags).
	Put(ctx context.Context, data []byte, filename string) (string, error)
	// Get retrieves data by identifier.
	Get(ctx context.Context, id string) ([]byte, error)
}

// contentAddress returns the identifier used by the content-addressed
// backends (file, memory, S3, GCS).
func contentAddress(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// MemoryStore is an in-process content-addressed store for tests and the
// demo binary.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyPayload
	}
	id := contentAddress(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		s.blobs[id] = append([]byte(nil), data...)
	}
	return id, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Len reports the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
