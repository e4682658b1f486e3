package llm

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/config"
)

// TaskSentiment labels usage and metrics for sentiment synthesis requests.
const TaskSentiment = "sentiment"

// Request is a single generation request.
type Request struct {
	Prompt  string
	Tickers []string
	// Quality selects the provider chain. Empty infers it from Model.
	Quality domain.QualityTier
	// Provider, when set, is tried before the rest of the chain.
	Provider ProviderName
	Model    string
	Task     string
}

// Response carries the generated text and accounting for one request.
type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
	// ModelsUsed lists every model attempted, in order. The last entry produced Text.
	ModelsUsed []string
}

// Client is the generative backend consumed by the synthesis engine.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	GetProviderStatuses() []ProviderStatus
}

// buildCircuitConfig creates a CircuitBreakerConfig with defaults applied.
func buildCircuitConfig(cfg *config.Config) CircuitBreakerConfig {
	circuitCfg := CircuitBreakerConfig{
		Threshold:  cfg.LLMCircuitThreshold,
		ResetAfter: cfg.LLMCircuitTimeout,
	}

	if circuitCfg.Threshold == 0 {
		circuitCfg.Threshold = defaultCircuitThreshold
	}

	if circuitCfg.ResetAfter == 0 {
		circuitCfg.ResetAfter = defaultCircuitTimeout
	}

	return circuitCfg
}

// registerProviders registers all available LLM providers with the registry.
func registerProviders(ctx context.Context, registry *Registry, cfg *config.Config, logger *zerolog.Logger, circuitCfg CircuitBreakerConfig) {
	if cfg.GoogleAPIKey != "" {
		googleProvider, err := NewGoogleProvider(ctx, cfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create Google LLM provider")
		} else {
			registry.Register(googleProvider, circuitCfg)
		}
	}

	if cfg.AnthropicAPIKey != "" {
		registry.Register(NewAnthropicProvider(cfg, logger), circuitCfg)
	}

	if cfg.LLMAPIKey != "" && cfg.LLMAPIKey != llmAPIKeyMock {
		registry.Register(NewOpenAIProvider(cfg, logger), circuitCfg)
	}

	// If no providers configured, use mock
	if registry.ProviderCount() == 0 {
		registry.Register(NewMockProvider(), circuitCfg)
	}
}

// New creates a new LLM client with multi-provider fallback support.
// Providers register in priority order: Google, Anthropic, OpenAI.
// If no providers are configured, it returns a mock client.
func New(ctx context.Context, cfg *config.Config, store UsageStore, logger *zerolog.Logger) Client {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	registry := NewRegistry(NewUsageRecorder(store, logger), logger)
	registry.SetRequestTimeout(cfg.LLMTimeout)
	registry.SetDefaultModel(cfg.LLMModel)
	registerProviders(ctx, registry, cfg, logger, buildCircuitConfig(cfg))

	return registry
}
