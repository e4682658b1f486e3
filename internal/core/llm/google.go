package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
	"github.com/lueurxax/ticker-sentiment-bot/internal/core/text"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/config"
)

// Google model constants.
const (
	// ModelGeminiFlash is the default Google model.
	ModelGeminiFlash = "gemini-2.5-flash"

	defaultGoogleModel = ModelGeminiFlash
)

// googleProvider implements the Provider interface for Google Gemini.
type googleProvider struct {
	cfg         *config.Config
	client      *genai.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter
}

// NewGoogleProvider creates a new Google Gemini LLM provider.
func NewGoogleProvider(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*googleProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GoogleAPIKey))
	if err != nil {
		return nil, fmt.Errorf("creating google genai client: %w", err)
	}

	rateLimit := cfg.RateLimitRPS
	if rateLimit == 0 {
		rateLimit = 1
	}

	return &googleProvider{
		cfg:         cfg,
		client:      client,
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(rateLimit)), rateLimiterBurst),
	}, nil
}

// Close closes the Google client.
func (p *googleProvider) Close() error {
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("closing google genai client: %w", err)
		}
	}

	return nil
}

// Name returns the provider identifier.
func (p *googleProvider) Name() ProviderName {
	return ProviderGoogle
}

// IsAvailable returns true if the provider is configured and available.
func (p *googleProvider) IsAvailable() bool {
	return p.cfg.GoogleAPIKey != ""
}

// Priority returns the provider priority.
func (p *googleProvider) Priority() int {
	return PriorityPrimary
}

func (p *googleProvider) resolveModel(model string) string {
	if strings.HasPrefix(model, modelPrefixGemini) {
		return model
	}

	return defaultGoogleModel
}

// Complete implements Provider interface.
func (p *googleProvider) Complete(ctx context.Context, prompt, model string) (Completion, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return Completion{}, fmt.Errorf(errRateLimiterSimple, err)
	}

	resolvedModel := p.resolveModel(model)
	genModel := p.client.GenerativeModel(resolvedModel)
	genModel.SetMaxOutputTokens(maxOutputTokens)

	// The protobuf API rejects invalid UTF-8.
	resp, err := genModel.GenerateContent(ctx, genai.Text(text.SanitizeBody(prompt)))
	if err != nil {
		return Completion{}, fmt.Errorf(errGoogleGenAICompletion, err)
	}

	responseText := extractGoogleResponseText(resp)
	if responseText == "" {
		return Completion{}, fmt.Errorf("google: %w", coreerrors.ErrEmptyResponse)
	}

	c := Completion{Text: responseText, Model: resolvedModel}

	if resp.UsageMetadata != nil {
		c.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		c.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return c, nil
}

func extractGoogleResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var result strings.Builder

	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					result.WriteString(string(t))
				}
			}
		}
	}

	return result.String()
}
