package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const mockModel = "mock"

// mockProvider implements the Provider interface for local runs without API keys.
// It answers every prompt with a neutral sentiment result.
type mockProvider struct{}

// NewMockProvider creates a new mock LLM provider.
func NewMockProvider() *mockProvider {
	return &mockProvider{}
}

// Name returns the provider identifier.
func (p *mockProvider) Name() ProviderName {
	return ProviderMock
}

// IsAvailable returns true as mock is always available.
func (p *mockProvider) IsAvailable() bool {
	return true
}

// Priority returns the provider priority.
func (p *mockProvider) Priority() int {
	return PriorityMock
}

type mockResult struct {
	SentimentScore float64        `json:"sentiment_score"`
	SentimentLabel string         `json:"sentiment_label"`
	Summary        string         `json:"summary"`
	Highlights     map[string]any `json:"highlights"`
	Events         []any          `json:"events"`
}

// Complete implements Provider interface.
func (p *mockProvider) Complete(_ context.Context, prompt, _ string) (Completion, error) {
	body, err := json.Marshal(mockResult{
		SentimentLabel: "neutral",
		Summary:        "Mock summary: discussion is balanced with no clear direction.",
		Highlights: map[string]any{
			"topics":  []string{"general discussion"},
			"bullish": []string{},
			"bearish": []string{},
		},
		Events: []any{},
	})
	if err != nil {
		return Completion{}, fmt.Errorf("mock completion: %w", err)
	}

	return Completion{
		Text:             string(body),
		Model:            mockModel,
		PromptTokens:     len(strings.Fields(prompt)),
		CompletionTokens: len(strings.Fields(string(body))),
	}, nil
}
