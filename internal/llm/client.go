package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MimeLyc/article-narrator/internal/apierr"
)

var _ Completer = (*Client)(nil)

// Client represents an OpenAI-compatible chat completion client
// (OpenRouter by default)
// Thread-safe for concurrent use
//
// config: Configuration for the LLM API
// httpClient: HTTP client for API requests
// baseURL: Base URL for the LLM API
// retry: Backoff applied to rate limits, timeouts and 5xx responses
type Client struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
	retry      apierr.RetryConfig
}

// NewClient creates a new LLM client with the given configuration
//
// Returns a new Client instance or an error if configuration is invalid
// Example:
//
//	client, err := llm.NewClient(&llm.Config{APIKey: key, APIURL: url, Model: model, MaxTokens: 8000, Timeout: 60})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewClient(config *Config, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	retry := apierr.DefaultRetry
	retry.MaxRetries = config.MaxRetries

	client := &Client{
		config:  config,
		baseURL: config.APIURL,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
		retry: retry,
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// ClientOption customizes a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client, e.g. to share a transport
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// ChatCompletion creates a chat completion request to the configured LLM API
//
// ctx: Context for the request
// messages: Array of messages in the conversation
// options: Optional configuration for the request
//
// Returns the chat completion response or an error classified with apierr
//
// Example:
//
//	messages := []llm.Message{
//		{Role: "user", Content: "Hello, how are you?"},
//	}
//	response, err := client.ChatCompletion(ctx, messages, nil)
func (c *Client) ChatCompletion(ctx context.Context, messages []Message, opts *ChatCompletionOptions) (*ChatResponse, error) {
	if opts == nil {
		opts = NewChatCompletionOptions()
	}

	if opts.SystemPrompt != "" {
		systemMessage := Message{
			Role:    "system",
			Content: opts.SystemPrompt,
		}
		messages = append([]Message{systemMessage}, messages...)
	}

	request := ChatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   c.getMaxTokens(opts),
		Temperature: c.getTemperature(opts),
		Stream:      opts.Stream,
	}
	if opts.JSON {
		request.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	response, err := c.makeRequest(ctx, http.MethodPost, "/chat/completions", request)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	return response, nil
}

// Complete sends one system + user prompt pair, retrying transient failures
//
// Example:
//
//	completion, err := client.Complete(ctx, "You are a narrator.", prompt)
func (c *Client) Complete(ctx context.Context, system, prompt string) (Completion, error) {
	messages := []Message{
		{Role: "user", Content: prompt},
	}
	opts := NewChatCompletionOptions().WithSystemPrompt(system)
	if c.config.JSONMode {
		opts.WithJSON()
	}

	return apierr.RetryWithBackoff(ctx, c.retry, func() (Completion, error) {
		response, err := c.ChatCompletion(ctx, messages, opts)
		if err != nil {
			return Completion{}, err
		}
		return response.Completion()
	}, nil)
}

// makeRequest makes a raw HTTP request to the configured LLM API
func (c *Client) makeRequest(ctx context.Context, method, path string, payload interface{}) (*ChatResponse, error) {
	url := c.baseURL + path

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.config.GetHeaders() {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", apierr.FromTransport(err))
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var chatResponse ChatResponse
	parseErr := json.Unmarshal(responseBody, &chatResponse)

	// Check HTTP status
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(responseBody)
		if parseErr == nil && chatResponse.Error != nil && chatResponse.Error.Message != "" {
			msg = chatResponse.Error.Message
		}
		return nil, apierr.FromStatus(resp.StatusCode, msg)
	}

	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", parseErr)
	}

	// OpenRouter reports some upstream failures inside a 200 body
	if chatResponse.Error != nil && chatResponse.Error.Message != "" {
		return nil, chatResponse.Error
	}

	return &chatResponse, nil
}

// getMaxTokens returns the max tokens to use for the request
func (c *Client) getMaxTokens(opts *ChatCompletionOptions) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return c.config.MaxTokens
}

// getTemperature returns the temperature to use for the request
func (c *Client) getTemperature(opts *ChatCompletionOptions) float64 {
	if opts.Temperature >= 0 && opts.Temperature <= 2 {
		return opts.Temperature
	}
	return c.config.Temperature
}
