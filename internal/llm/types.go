package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message represents a chat message
//
// Role: "system", "user", or "assistant"
// Content: Text content of the message
// Reasoning fields are only populated on responses; providers disagree on
// where they put it, so all three shapes are accepted.
type Message struct {
	Role             string            `json:"role"`
	Content          string            `json:"content"`
	ReasoningContent string            `json:"reasoning_content,omitempty"`
	Reasoning        string            `json:"reasoning,omitempty"`
	ReasoningDetails []ReasoningDetail `json:"reasoning_details,omitempty"`
}

// ReasoningDetail is one entry of OpenRouter's reasoning_details array.
//
// Type: "reasoning.text", "reasoning.summary" or "reasoning.encrypted"
type ReasoningDetail struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Summary string `json:"summary,omitempty"`
	Data    string `json:"data,omitempty"`
}

// ChatRequest represents a chat completion request
// Compatible with OpenAI API format
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat constrains the completion; Type "json_object" asks for a
// single JSON object without markdown fences.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatResponse represents a chat completion response
// Compatible with OpenAI API format
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
	Error   *Error   `json:"error,omitempty"`
}

// Choice represents a completion choice
//
// FinishReason values: "stop", "length", "content_filter", "tool_calls", "function_call"
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Error represents an API error
type Error struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    any    `json:"code,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("LLM API Error: %s (type: %s, code: %v)", e.Message, e.Type, e.Code)
}

// Completion is the provider-independent result of one prompt.
type Completion struct {
	Content   string
	Reasoning string
}

// Completion resolves the first choice into a Completion. Reasoning is
// taken from reasoning_content, then reasoning, then the readable entries
// of reasoning_details.
func (r *ChatResponse) Completion() (Completion, error) {
	if len(r.Choices) == 0 {
		return Completion{}, fmt.Errorf("no choices in response")
	}
	msg := r.Choices[0].Message
	return Completion{
		Content:   msg.Content,
		Reasoning: msg.reasoning(),
	}, nil
}

func (m Message) reasoning() string {
	if m.ReasoningContent != "" {
		return m.ReasoningContent
	}
	if m.Reasoning != "" {
		return m.Reasoning
	}
	var parts []string
	for _, d := range m.ReasoningDetails {
		switch {
		case d.Text != "":
			parts = append(parts, d.Text)
		case d.Summary != "":
			parts = append(parts, d.Summary)
		}
	}
	return strings.Join(parts, "\n")
}

// ChatCompletionOptions represents options for chat completion
type ChatCompletionOptions struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Stream       bool
	JSON         bool
}

// NewChatCompletionOptions creates a new chat completion options with defaults
func NewChatCompletionOptions() *ChatCompletionOptions {
	return &ChatCompletionOptions{
		MaxTokens:   0, // Use model default
		Temperature: -1,
	}
}

// WithSystemPrompt sets the system prompt
func (o *ChatCompletionOptions) WithSystemPrompt(prompt string) *ChatCompletionOptions {
	o.SystemPrompt = prompt
	return o
}

// WithJSON requests a JSON object response
func (o *ChatCompletionOptions) WithJSON() *ChatCompletionOptions {
	o.JSON = true
	return o
}

// WithMaxTokens sets the max tokens
func (o *ChatCompletionOptions) WithMaxTokens(maxTokens int) *ChatCompletionOptions {
	o.MaxTokens = maxTokens
	return o
}

// WithTemperature sets the temperature
func (o *ChatCompletionOptions) WithTemperature(temperature float64) *ChatCompletionOptions {
	o.Temperature = temperature
	return o
}

// MarshalJSON only sends role and content; reasoning never goes upstream.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{
		Role:    m.Role,
		Content: m.Content,
	})
}
