// Package anthropic is a minimal client for the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"
	// APIVersion is sent as the anthropic-version header.
	APIVersion = "2023-06-01"

	defaultTimeout = 120 * time.Second
	maxBodySize    = 8 << 20 // 8 MB
	userAgent      = "github.com/theirongolddev/cchat/1.0"
)

var (
	// ErrUnauthorized indicates the API key is invalid or revoked.
	ErrUnauthorized = errors.New("anthropic: unauthorized (API key invalid or revoked)")
	// ErrRateLimited indicates the API rate limit was hit.
	ErrRateLimited = errors.New("anthropic: rate limited")
	// ErrEmptyKey is returned before any request when no key is supplied.
	ErrEmptyKey = errors.New("anthropic: empty API key")
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerMinute throttles outgoing requests client-side. Zero disables.
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// Client talks to the Messages API. The API key is passed per call and
// never retained.
type Client struct {
	baseURL string
	timeout time.Duration
	limiter *rate.Limiter
	http    *http.Client
}

// NewClient returns a client for the given options.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	c := &Client{baseURL: base, timeout: timeout, http: hc}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return c
}

// ListModels calls GET /v1/models. It doubles as credential validation:
// a 2xx means the key is accepted.
func (c *Client) ListModels(ctx context.Context, apiKey string) ([]ModelInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/models", apiKey, nil)
	if err != nil {
		return nil, err
	}
	var list modelList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("anthropic: parsing models: %w", err)
	}
	return list.Data, nil
}

// CreateMessage calls POST /v1/messages.
func (c *Client) CreateMessage(ctx context.Context, apiKey string, req MessageRequest) (*MessageResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: encoding request: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, "/v1/messages", apiKey, payload)
	if err != nil {
		return nil, err
	}
	var resp MessageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("anthropic: parsing response: %w", err)
	}
	if resp.Type != "" && resp.Type != "message" {
		return nil, fmt.Errorf("anthropic: unexpected response type %q", resp.Type)
	}
	return &resp, nil
}

// do performs an authenticated request and returns the response body.
func (c *Client) do(ctx context.Context, method, path, apiKey string, payload []byte) ([]byte, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrEmptyKey
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("anthropic: waiting for rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("anthropic: creating request: %w", err)
	}

	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", APIVersion)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("anthropic: reading response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrUnauthorized
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, body)
	}
	return body, nil
}

func decodeAPIError(status int, body []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Message == "" {
		return &APIError{StatusCode: status}
	}
	env.Error.StatusCode = status
	return &env.Error
}

// IsUnauthorized reports whether err means the key was rejected.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
