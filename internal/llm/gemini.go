package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/MimeLyc/article-narrator/internal/apierr"
)

var _ Completer = (*GeminiCompleter)(nil)

// GeminiCompleter talks to Gemini through the generative-ai-go SDK.
type GeminiCompleter struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	jsonMode    bool
	retry       apierr.RetryConfig
}

// NewGeminiCompleter validates config and opens a Gemini client. Close it
// when done.
func NewGeminiCompleter(ctx context.Context, config *Config) (*GeminiCompleter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	opts := []option.ClientOption{option.WithAPIKey(config.APIKey)}
	if config.APIURL != "" {
		opts = append(opts, option.WithEndpoint(config.APIURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	retry := apierr.DefaultRetry
	retry.MaxRetries = config.MaxRetries

	return &GeminiCompleter{
		client:      client,
		model:       config.Model,
		maxTokens:   int32(config.MaxTokens),
		temperature: float32(config.Temperature),
		jsonMode:    config.JSONMode,
		retry:       retry,
	}, nil
}

func (g *GeminiCompleter) Close() error {
	return g.client.Close()
}

func (g *GeminiCompleter) Complete(ctx context.Context, system, prompt string) (Completion, error) {
	// GenerativeModel carries per-request settings, so one per call keeps
	// concurrent batches independent.
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.temperature)
	model.SetMaxOutputTokens(g.maxTokens)
	if g.jsonMode {
		model.ResponseMIMEType = "application/json"
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	return apierr.RetryWithBackoff(ctx, g.retry, func() (Completion, error) {
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return Completion{}, classifyGeminiError(err)
		}
		text, err := geminiText(resp)
		if err != nil {
			return Completion{}, err
		}
		return Completion{Content: text}, nil
	}, nil)
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 ||
		resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}

func classifyGeminiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return apierr.FromStatus(gerr.Code, gerr.Message)
	}
	return apierr.FromTransport(err)
}
