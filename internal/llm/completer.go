package llm

import (
	"context"
	"fmt"
)

// Completer turns one system + user prompt pair into a completion.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (Completion, error)
}

// NewCompleter builds the Completer for config.Provider.
func NewCompleter(ctx context.Context, config *Config) (Completer, error) {
	switch config.Provider {
	case "", ProviderOpenRouter:
		client, err := NewClient(config)
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderOpenAI:
		client, err := NewOpenAICompleter(config)
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderGemini:
		client, err := NewGeminiCompleter(ctx, config)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", config.Provider)
	}
}
