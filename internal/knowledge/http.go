package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPStore adapts a remote knowledge service exposing POST /records and
// GET /records/search?q=...&k=... to the Store contract.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// HTTPStoreOption customizes the adapter.
type HTTPStoreOption func(*HTTPStore)

// WithClient overrides the underlying http.Client.
func WithClient(c *http.Client) HTTPStoreOption {
	return func(s *HTTPStore) {
		if c != nil {
			s.client = c
		}
	}
}

// NewHTTPStore creates a client for the remote store at baseURL.
func NewHTTPStore(baseURL string, opts ...HTTPStoreOption) (*HTTPStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("knowledge: store base URL is required")
	}
	s := &HTTPStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Put implements Store.
func (s *HTTPStore) Put(ctx context.Context, rec Record) error {
	if rec.Text == "" {
		return fmt.Errorf("knowledge: record text is required")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("knowledge: encode record: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/records", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("knowledge: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("knowledge: put: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("knowledge: put status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// Query implements Store.
func (s *HTTPStore) Query(ctx context.Context, text string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	query := url.Values{}
	query.Set("q", text)
	query.Set("k", strconv.Itoa(k))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/records/search?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("knowledge: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge: query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("knowledge: query status %d: %s", resp.StatusCode, body)
	}
	var results []Result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("knowledge: decode results: %w", err)
	}
	return results, nil
}
