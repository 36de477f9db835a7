package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// IPFSStore uploads blobs to an IPFS node over the kubo HTTP API
// (/api/v0/add) and returns the CID the node reports. Transient failures
// are retried a bounded number of times with exponential backoff; after
// that the error propagates to the caller, never a fabricated CID.
type IPFSStore struct {
	apiURL     string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewIPFSStore creates a store talking to the node at apiURL
// (e.g. "http://127.0.0.1:5001").
func NewIPFSStore(apiURL string) *IPFSStore {
	return &IPFSStore{
		apiURL:     apiURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		backoff:    200 * time.Millisecond,
	}
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

func (s *IPFSStore) Put(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyPayload
	}

	var lastErr error
	delay := s.backoff
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		cid, err := s.add(ctx, data, filename)
		if err == nil {
			return cid, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("ipfs add failed after %d attempts: %w", s.maxRetries+1, lastErr)
}

func (s *IPFSStore) add(ctx context.Context, data []byte, filename string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("write multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/api/v0/add", &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("ipfs add: status %d: %s", resp.StatusCode, snippet)
	}

	var out addResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ipfs add: decode response: %w", err)
	}
	if out.Hash == "" {
		return "", fmt.Errorf("ipfs add: node returned no CID")
	}
	return out.Hash, nil
}

// Get retrieves a blob by CID via /api/v0/cat.
func (s *IPFSStore) Get(ctx context.Context, id string) ([]byte, error) {
	endpoint := s.apiURL + "/api/v0/cat?arg=" + url.QueryEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipfs cat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ipfs cat: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
