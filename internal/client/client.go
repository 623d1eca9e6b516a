// Package client talks to a remote registry server. Client implements
// registry.Committer, so the offline queue can be drained into a server
// instead of a local store.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/registry"
)

// Client is an HTTP client for the registry API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Commit registers reg on the server. The dedup key travels as the
// idempotency key so the server commits without queueing.
func (c *Client) Commit(ctx context.Context, reg registry.Registration) (database.IdentityRecord, error) {
	req := RegisterRequest{Name: reg.Name, Embedding: reg.Embedding}
	if len(reg.Embedding) == 0 {
		req.Image = reg.Image
	}
	headers := map[string]string{}
	if reg.DedupKey != "" {
		headers[IdempotencyKeyHeader] = reg.DedupKey
	}

	var resp RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/register", req, headers, &resp); err != nil {
		return database.IdentityRecord{}, err
	}
	if resp.Status != string(registry.StatusCommitted) {
		return database.IdentityRecord{}, fmt.Errorf("%w: server answered %q", database.ErrStoreUnavailable, resp.Status)
	}
	return database.IdentityRecord{
		ID:           resp.ID,
		Name:         resp.Name,
		NameKey:      facematch.NormalizePersonName(resp.Name),
		Embedding:    reg.Embedding,
		RegisteredAt: resp.RegisteredAt,
		Accepted:     true,
	}, nil
}

// Recognize asks the server to recognize faces.
func (c *Client) Recognize(ctx context.Context, req RecognizeRequest) (RecognizeResponse, error) {
	var resp RecognizeResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/recognize", req, nil, &resp)
	return resp, err
}

// Health reports whether the server and its store are up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/health", nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", database.ErrStoreUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", database.ErrStoreUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %w", database.ErrStoreUnavailable, err)
	}
	return nil
}

// statusError maps an HTTP error reply onto the error taxonomy.
func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var e ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}

	var kind error
	switch {
	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge:
		kind = database.ErrValidationFailed
	case status == http.StatusUnprocessableEntity:
		kind = database.ErrEmbedFailure
	case status == http.StatusNotFound:
		kind = database.ErrNotFound
	default:
		kind = database.ErrStoreUnavailable
	}
	return fmt.Errorf("%w: server status %d: %s", kind, status, msg)
}
