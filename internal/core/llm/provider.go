package llm

import (
	"context"
)

// ProviderName identifies an LLM provider.
type ProviderName string

// Provider name constants.
const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderGoogle    ProviderName = "google"
	ProviderMock      ProviderName = "mock"
)

// Priority constants for provider ordering.
const (
	PriorityPrimary        = 100 // Primary provider (Google)
	PriorityFallback       = 50  // First fallback (Anthropic)
	PrioritySecondFallback = 25  // Second fallback (OpenAI)
	PriorityMock           = 0   // Mock provider for testing
)

// Completion is a single provider response.
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Provider defines the interface for LLM providers.
type Provider interface {
	// Name returns the provider identifier.
	Name() ProviderName

	// IsAvailable returns true if the provider is configured and available.
	IsAvailable() bool

	// Priority returns the provider priority (higher = preferred).
	Priority() int

	// Complete sends a single-turn prompt. An empty model selects the provider default.
	Complete(ctx context.Context, prompt, model string) (Completion, error)
}
