package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/MimeLyc/article-narrator/internal/apierr"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

var _ Completer = (*OpenAICompleter)(nil)

// chatCompleter is satisfied by *openai.Client and replaced in tests.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAICompleter talks to the OpenAI chat completion API through go-openai.
type OpenAICompleter struct {
	client      chatCompleter
	model       string
	maxTokens   int
	temperature float32
	jsonMode    bool
	retry       apierr.RetryConfig
}

// NewOpenAICompleter validates config and builds a go-openai backed Completer.
func NewOpenAICompleter(config *Config) (*OpenAICompleter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = defaultOpenAIBaseURL
	if config.APIURL != "" {
		clientConfig.BaseURL = config.APIURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: time.Duration(config.Timeout) * time.Second}

	retry := apierr.DefaultRetry
	retry.MaxRetries = config.MaxRetries

	return &OpenAICompleter{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: float32(config.Temperature),
		jsonMode:    config.JSONMode,
		retry:       retry,
	}, nil
}

func (o *OpenAICompleter) Complete(ctx context.Context, system, prompt string) (Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if o.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	return apierr.RetryWithBackoff(ctx, o.retry, func() (Completion, error) {
		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return Completion{}, classifyOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			return Completion{}, fmt.Errorf("no choices in response")
		}
		msg := resp.Choices[0].Message
		return Completion{
			Content:   msg.Content,
			Reasoning: msg.ReasoningContent,
		}, nil
	}, nil)
}

// classifyOpenAIError maps go-openai errors onto apierr sentinels.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apierr.FromStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return apierr.FromStatus(reqErr.HTTPStatusCode, reqErr.Error())
	}
	return apierr.FromTransport(err)
}
