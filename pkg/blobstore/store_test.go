package blobstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id, err := s.Put(ctx, []byte("audio bytes"), "session.webm")
	require.NoError(t, err)
	assert.Contains(t, id, "sha256:")

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio bytes"), got)
}

func TestMemoryStore_PutIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id1, err := s.Put(ctx, []byte("same"), "a.webm")
	require.NoError(t, err)
	id2, err := s.Put(ctx, []byte("same"), "b.webm")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_EmptyPayloadRejected(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Put(context.Background(), nil, "x")
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "sha256:deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_RoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	id, err := s.Put(ctx, []byte("payload"), "audio.webm")
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	// idempotent re-put
	id2, err := s.Put(ctx, []byte("payload"), "audio.webm")
	require.NoError(t, err)
	assert.Equal(t, id, id2)
}

func TestFileStore_GetMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "sha256:0000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIPFSStore_Put(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v0/add", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"Name": "audio.webm", "Hash": "QmTestCID123", "Size": "11",
		})
	}))
	defer srv.Close()

	s := NewIPFSStore(srv.URL)
	cid, err := s.Put(context.Background(), []byte("audio bytes"), "audio.webm")
	require.NoError(t, err)
	assert.Equal(t, "QmTestCID123", cid)
}

// A failing node must surface an error, never a fabricated CID.
func TestIPFSStore_FailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "node down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewIPFSStore(srv.URL)
	s.maxRetries = 1
	s.backoff = 0

	cid, err := s.Put(context.Background(), []byte("audio"), "a.webm")
	assert.Error(t, err)
	assert.Empty(t, cid)
}

func TestIPFSStore_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"Hash": "QmRecovered"})
	}))
	defer srv.Close()

	s := NewIPFSStore(srv.URL)
	s.backoff = 0

	cid, err := s.Put(context.Background(), []byte("audio"), "a.webm")
	require.NoError(t, err)
	assert.Equal(t, "QmRecovered", cid)
	assert.Equal(t, int32(3), calls.Load())
}

func TestIPFSStore_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewIPFSStore(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, []byte("audio"), "a.webm")
	assert.Error(t, err)
}
