package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Pricing maps model names to USD per 1000 tokens. Providers report token
// usage, not dollars, so the client converts with this table.
type Pricing map[string]float64

const defaultPricePer1K = 0.002

// Cost returns the USD cost of tokens for the named model.
func (p Pricing) Cost(model string, tokens int) float64 {
	rate, ok := p[model]
	if !ok {
		rate = defaultPricePer1K
	}
	return float64(tokens) / 1000 * rate
}

// HTTPClient talks to an OpenAI-style chat completions endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	pricing Pricing
	client  *http.Client
}

// HTTPOption customizes the client.
type HTTPOption func(*HTTPClient)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithPricing installs a per-model price table.
func WithPricing(p Pricing) HTTPOption {
	return func(h *HTTPClient) {
		if p != nil {
			h.pricing = p
		}
	}
}

// NewHTTPClient creates a provider client for the given base URL.
func NewHTTPClient(baseURL, apiKey string, opts ...HTTPOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("model: provider base URL is required")
	}
	h := &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		pricing: Pricing{},
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Invoke implements Invoker.
func (h *HTTPClient) Invoke(ctx context.Context, req Request) (Response, error) {
	if err := req.validate(); err != nil {
		return Response{}, err
	}
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
	payload, err := json.Marshal(chatRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("model: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("model: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	resp, err := h.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, &ProviderError{Model: req.Model, Transient: true, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, &ProviderError{Model: req.Model, Transient: true, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, &ProviderError{
			Model:     req.Model,
			Transient: transientStatus(resp.StatusCode),
			Err:       fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200)),
		}
	}
	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Response{}, &ProviderError{Model: req.Model, Transient: false, Err: fmt.Errorf("decode response: %w", err)}
	}
	if decoded.Error != nil {
		return Response{}, &ProviderError{Model: req.Model, Transient: false, Err: fmt.Errorf("%s: %s", decoded.Error.Type, decoded.Error.Message)}
	}
	if len(decoded.Choices) == 0 {
		return Response{}, &ProviderError{Model: req.Model, Transient: false, Err: fmt.Errorf("empty choices")}
	}
	tokens := decoded.Usage.TotalTokens
	return Response{
		Text:       decoded.Choices[0].Message.Content,
		TokensUsed: tokens,
		CostUSD:    h.pricing.Cost(req.Model, tokens),
	}, nil
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
