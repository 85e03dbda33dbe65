// Package voicevox is a client for the VOICEVOX engine HTTP API.
package voicevox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/article-narrator/internal/apierr"
)

const (
	// DefaultBaseURL is where a local engine listens.
	DefaultBaseURL = "http://localhost:50021"

	versionTimeout     = 3 * time.Second
	defaultHTTPTimeout = 2 * time.Minute
)

// Client talks to one VOICEVOX engine. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      apierr.RetryConfig
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another engine.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithRetry sets the backoff used for 5xx and timeouts.
func WithRetry(cfg apierr.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		retry:      apierr.RetryConfig{MaxRetries: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 4 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the engine address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CheckConnection calls GET /version with a short timeout.
func (c *Client) CheckConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	_, err := c.do(ctx, http.MethodGet, "/version", nil, nil)
	return err == nil
}

// Version returns the engine version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/version", nil, nil)
	if err != nil {
		return "", fmt.Errorf("get version: %w", err)
	}
	var v string
	if err := json.Unmarshal(body, &v); err != nil {
		// older engines answer with plain text
		return strings.TrimSpace(string(body)), nil
	}
	return v, nil
}

// Speakers lists the installed speakers.
func (c *Client) Speakers(ctx context.Context) ([]Speaker, error) {
	body, err := c.do(ctx, http.MethodGet, "/speakers", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get speakers: %w", err)
	}
	var speakers []Speaker
	if err := json.Unmarshal(body, &speakers); err != nil {
		return nil, fmt.Errorf("decode speakers: %w", err)
	}
	return speakers, nil
}

// AudioQuery asks the engine to analyse text for speaker.
func (c *Client) AudioQuery(ctx context.Context, text string, speaker int) (*AudioQuery, error) {
	q := url.Values{}
	q.Set("text", text)
	q.Set("speaker", strconv.Itoa(speaker))

	body, err := apierr.RetryWithBackoff(ctx, c.retry, func() ([]byte, error) {
		return c.do(ctx, http.MethodPost, "/audio_query", q, nil)
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio query: %w", err)
	}

	var query AudioQuery
	if err := json.Unmarshal(body, &query); err != nil {
		return nil, fmt.Errorf("decode audio query: %w", err)
	}
	return &query, nil
}

// Synthesis renders query with speaker and returns the WAV bytes.
func (c *Client) Synthesis(ctx context.Context, query *AudioQuery, speaker int) ([]byte, error) {
	if query == nil {
		return nil, fmt.Errorf("synthesis: nil audio query")
	}
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encode audio query: %w", err)
	}

	q := url.Values{}
	q.Set("speaker", strconv.Itoa(speaker))

	audio, err := apierr.RetryWithBackoff(ctx, c.retry, func() ([]byte, error) {
		return c.do(ctx, http.MethodPost, "/synthesis", q, payload)
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("synthesis: %w", err)
	}
	return audio, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.FromTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if err := apierr.FromStatus(resp.StatusCode, strings.TrimSpace(string(data))); err != nil {
		return nil, err
	}
	return data, nil
}
