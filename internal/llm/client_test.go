package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/article-narrator/internal/apierr"
)

const okResponse = `{
	"id": "test-id",
	"object": "chat.completion",
	"created": 1234567890,
	"model": "test-model",
	"choices": [{
		"index": 0,
		"message": {
			"role": "assistant",
			"content": "Hello! This is a test response."
		},
		"finish_reason": "stop"
	}],
	"usage": {
		"prompt_tokens": 10,
		"completion_tokens": 20,
		"total_tokens": 30
	}
}`

func testConfig(url string) *Config {
	return &Config{
		APIKey:      "test-key",
		APIURL:      url,
		Model:       "test-model",
		MaxTokens:   1000,
		Temperature: 0.7,
		Timeout:     30,
	}
}

func fastRetry(c *Client, retries int) {
	c.retry = apierr.RetryConfig{MaxRetries: retries, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestNewClient(t *testing.T) {
	config := testConfig("https://api.example.com")

	client, err := NewClient(config)
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.Equal(t, config, client.config)
	assert.Equal(t, config.APIURL, client.baseURL)
	assert.NotNil(t, client.httpClient)

	// Test with invalid config
	invalidConfig := &Config{} // Missing API key
	_, err = NewClient(invalidConfig)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestConfigValidate(t *testing.T) {
	config := testConfig("")
	config.Provider = ProviderOpenAI
	assert.NoError(t, config.Validate(), "SDK providers have a default endpoint")

	config.Provider = ProviderOpenRouter
	assert.ErrorContains(t, config.Validate(), "API URL")

	config.Provider = "bedrock"
	assert.ErrorContains(t, config.Validate(), "unknown provider")

	config = testConfig("http://x")
	config.MaxRetries = -1
	assert.ErrorContains(t, config.Validate(), "max retries")
}

func TestClientWithMockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		// Verify headers
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "/chat/completions", r.URL.Path)

		_, _ = w.Write([]byte(okResponse))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	ctx := context.Background()
	messages := []Message{
		{Role: "user", Content: "Hello, how are you?"},
	}

	response, err := client.ChatCompletion(ctx, messages, nil)
	require.NoError(t, err)
	assert.NotNil(t, response)
	assert.Equal(t, "test-id", response.ID)
	assert.Equal(t, "test-model", response.Model)
	assert.Len(t, response.Choices, 1)
	assert.Equal(t, "Hello! This is a test response.", response.Choices[0].Message.Content)
	assert.Equal(t, 30, response.Usage.TotalTokens)
}

func TestClientErrorHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)

		response := `{
			"error": {
				"message": "Invalid API key",
				"type": "authentication_error",
				"code": 401
			}
		}`
		_, _ = w.Write([]byte(response))
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.APIKey = "invalid-key"
	client, err := NewClient(config)
	require.NoError(t, err)

	_, err = client.ChatCompletion(context.Background(), []Message{{Role: "user", Content: "Hello"}}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierr.ErrAuthFailed)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestClientErrorInsideOKBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": {"message": "upstream overloaded", "type": "provider_error"}}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.ChatCompletion(context.Background(), []Message{{Role: "user", Content: "Hello"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream overloaded")
}

func TestComplete_SendsSystemPromptAndResolvesReasoning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req ChatRequest
		require.NoError(t, json.Unmarshal(body, &req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "be a narrator", req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, 0.7, req.Temperature)
		assert.NotContains(t, string(body), "reasoning")

		_, _ = w.Write([]byte(`{"choices": [{"message": {
			"role": "assistant",
			"content": "script",
			"reasoning_details": [
				{"type": "reasoning.text", "text": "step one"},
				{"type": "reasoning.encrypted", "data": "xxx"},
				{"type": "reasoning.summary", "summary": "short"}
			]
		}}]}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), "be a narrator", "turn this into a script")
	require.NoError(t, err)
	assert.Equal(t, Completion{Content: "script", Reasoning: "step one\nshort"}, got)
}

func TestComplete_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "slow down"}}`))
			return
		}
		_, _ = w.Write([]byte(okResponse))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)
	fastRetry(client, 3)

	got, err := client.Complete(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello! This is a test response.", got.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestComplete_DoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad model"}}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)
	fastRetry(client, 3)

	_, err = client.Complete(context.Background(), "", "hi")
	require.ErrorIs(t, err, apierr.ErrBadRequest)
	assert.Equal(t, int32(1), calls.Load())
}

func TestComplete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "x", "choices": []}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "", "hi")
	assert.ErrorContains(t, err, "no choices")
}

func TestMessageReasoningPrecedence(t *testing.T) {
	m := Message{ReasoningContent: "a", Reasoning: "b", ReasoningDetails: []ReasoningDetail{{Text: "c"}}}
	assert.Equal(t, "a", m.reasoning())
	m.ReasoningContent = ""
	assert.Equal(t, "b", m.reasoning())
	m.Reasoning = ""
	assert.Equal(t, "c", m.reasoning())
}

func TestClientConcurrentRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okResponse))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Complete(ctx, "system", "Hello")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestInvalidJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.ChatCompletion(context.Background(), []Message{{Role: "user", Content: "Hello"}}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")
}

func TestNewCompleter_SelectsProvider(t *testing.T) {
	ctx := context.Background()

	c, err := NewCompleter(ctx, testConfig("http://localhost"))
	require.NoError(t, err)
	assert.IsType(t, &Client{}, c)

	config := testConfig("")
	config.Provider = ProviderOpenAI
	c, err = NewCompleter(ctx, config)
	require.NoError(t, err)
	assert.IsType(t, &OpenAICompleter{}, c)

	config.Provider = "nope"
	_, err = NewCompleter(ctx, config)
	assert.Error(t, err)

	_, err = NewCompleter(ctx, &Config{})
	assert.Error(t, err)
}

const (
	defaultAPIURL = "https://openrouter.ai/api/v1"
	defaultModel  = "google/gemini-2.5-flash"
)

// TestOpenRouterIntegrationWithEnv reads API key from environment
func TestOpenRouterIntegrationWithEnv(t *testing.T) {
	_ = godotenv.Load("./.env")
	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		t.Skip("LLM_API_KEY environment variable not set, skipping integration test")
	}

	config := &Config{
		APIKey:      apiKey,
		APIURL:      defaultAPIURL,
		Model:       defaultModel,
		MaxTokens:   200,
		Temperature: 0.7,
		Timeout:     30,
	}

	client, err := NewClient(config)
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), "Answer briefly and accurately", "What is the capital of France?")
	assert.NoError(t, err)
	assert.Contains(t, strings.ToLower(got.Content), "paris")
}

func TestClientComplete_JSONMode(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(okResponse))
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.JSONMode = true
	client, err := NewClient(config, WithHTTPClient(server.Client()))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "system", "return JSON")
	require.NoError(t, err)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
}

func TestChatCompletion_OmitsResponseFormatByDefault(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(okResponse))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "system", "prompt")
	require.NoError(t, err)
	assert.NotContains(t, raw, "response_format")
}
