package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/config"
)

// OpenAI model constants.
const (
	ModelGPT5Mini = "gpt-5-mini"

	defaultOpenAIModel = ModelGPT5Mini
)

// openaiProvider implements the Provider interface for OpenAI chat completions.
type openaiProvider struct {
	cfg         *config.Config
	client      *openai.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter
}

// NewOpenAIProvider creates a new OpenAI LLM provider.
func NewOpenAIProvider(cfg *config.Config, logger *zerolog.Logger) *openaiProvider {
	rateLimit := cfg.RateLimitRPS
	if rateLimit == 0 {
		rateLimit = 1
	}

	return &openaiProvider{
		cfg:         cfg,
		client:      openai.NewClient(cfg.LLMAPIKey),
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(rateLimit)), rateLimiterBurst),
	}
}

// Name returns the provider identifier.
func (p *openaiProvider) Name() ProviderName {
	return ProviderOpenAI
}

// IsAvailable returns true if the provider is configured and available.
func (p *openaiProvider) IsAvailable() bool {
	return p.cfg.LLMAPIKey != "" && p.cfg.LLMAPIKey != llmAPIKeyMock
}

// Priority returns the provider priority.
func (p *openaiProvider) Priority() int {
	return PrioritySecondFallback
}

func (p *openaiProvider) resolveModel(model string) string {
	if providerForModel(model) == ProviderOpenAI {
		return model
	}

	return defaultOpenAIModel
}

// Complete implements Provider interface.
func (p *openaiProvider) Complete(ctx context.Context, prompt, model string) (Completion, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return Completion{}, fmt.Errorf(errRateLimiterSimple, err)
	}

	resolvedModel := p.resolveModel(model)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: resolvedModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return Completion{}, fmt.Errorf(errOpenAIChatCompletion, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Completion{}, fmt.Errorf("openai: %w", coreerrors.ErrEmptyResponse)
	}

	return Completion{
		Text:             resp.Choices[0].Message.Content,
		Model:            resolvedModel,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
