package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HTTPAnchorer submits commitments to an anchoring gateway (a service that
// fronts the actual chain). Requests are rate limited and retried with
// exponential backoff; a gateway that stays down yields an error, never a
// synthetic transaction reference.
type HTTPAnchorer struct {
	endpoint   string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// NewHTTPAnchorer creates a client for the gateway at endpoint
// (e.g. "https://anchor.example.com/v1/commit"). rps bounds outbound
// request rate across all sessions.
func NewHTTPAnchorer(endpoint string, rps float64) *HTTPAnchorer {
	if rps <= 0 {
		rps = 5
	}
	return &HTTPAnchorer{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		maxRetries: 3,
		backoff:    250 * time.Millisecond,
	}
}

type commitRequest struct {
	SubjectID string `json:"subject_id"`
	Timestamp int64  `json:"timestamp"`
	DataHash  string `json:"data_hash"`
	CID       string `json:"cid"`
}

type commitResponse struct {
	TxRef      string    `json:"tx_ref"`
	Sequence   uint64    `json:"sequence"`
	AnchoredAt time.Time `json:"anchored_at"`
}

func (a *HTTPAnchorer) Commit(ctx context.Context, subjectID string, timestamp int64, dataHash, cid string) (*Receipt, error) {
	payload, err := json.Marshal(commitRequest{
		SubjectID: subjectID,
		Timestamp: timestamp,
		DataHash:  dataHash,
		CID:       cid,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal commit: %w", err)
	}

	var lastErr error
	delay := a.backoff
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		receipt, retryable, err := a.post(ctx, payload)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("anchor commit failed after %d attempts: %w", a.maxRetries+1, lastErr)
}

// post sends one attempt. 5xx and transport errors are retryable; 4xx are
// caller bugs and fail fast.
func (a *HTTPAnchorer) post(ctx context.Context, payload []byte) (*Receipt, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("anchor post: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var out commitResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, false, fmt.Errorf("decode receipt: %w", err)
		}
		if out.TxRef == "" {
			return nil, false, fmt.Errorf("gateway returned empty tx_ref")
		}
		anchoredAt := out.AnchoredAt
		if anchoredAt.IsZero() {
			anchoredAt = time.Now().UTC()
		}
		return &Receipt{TxRef: out.TxRef, Sequence: out.Sequence, AnchoredAt: anchoredAt}, false, nil
	case resp.StatusCode >= 500:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, true, fmt.Errorf("gateway status %d: %s", resp.StatusCode, snippet)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, false, fmt.Errorf("gateway rejected commit: status %d: %s", resp.StatusCode, snippet)
	}
}
