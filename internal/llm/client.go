// Package llm provides one-shot completion clients used as the synchronous
// fallback when an assistant run does not complete.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Options selects and configures a fallback provider.
type Options struct {
	Provider        Provider
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
}

// NewClient creates a new LLM client based on provider.
func NewClient(opts Options) (Client, error) {
	switch Provider(strings.ToLower(string(opts.Provider))) {
	case ProviderAnthropic:
		c, err := NewAnthropicClient(opts.AnthropicAPIKey)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderOpenAI, "":
		c, err := NewOpenAIClient(opts.OpenAIAPIKey, opts.OpenAIBaseURL)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown fallback provider %q", opts.Provider)
	}
}
