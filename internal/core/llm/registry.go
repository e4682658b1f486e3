package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/observability"
)

// Registry errors.
var (
	ErrNoProvidersAvailable = errors.New("no LLM providers available")
	ErrAllProvidersFailed   = errors.New("all LLM providers failed")
)

// Registry manages LLM providers with fallback support.
type Registry struct {
	mu              sync.RWMutex
	providers       map[ProviderName]Provider
	order           []ProviderName // Priority order (highest first)
	circuitBreakers map[ProviderName]*CircuitBreaker
	qualityConfig   map[domain.QualityTier]ProviderChain
	defaultModel    string
	requestTimeout  time.Duration
	usage           UsageRecorder
	logger          *zerolog.Logger
}

// NewRegistry creates a new provider registry.
func NewRegistry(usage UsageRecorder, logger *zerolog.Logger) *Registry {
	if usage == nil {
		usage = NoopUsageRecorder()
	}

	return &Registry{
		providers:       make(map[ProviderName]Provider),
		order:           make([]ProviderName, 0),
		circuitBreakers: make(map[ProviderName]*CircuitBreaker),
		qualityConfig:   DefaultQualityConfig(),
		requestTimeout:  defaultRequestTimeout,
		usage:           usage,
		logger:          logger,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider, cfg CircuitBreakerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}

	r.providers[name] = p
	r.circuitBreakers[name] = NewCircuitBreaker(cfg, r.logger)

	// Sort by priority (descending)
	r.sortProvidersByPriority()

	// Track provider availability metric
	available := MetricValueUnavailable
	if p.IsAvailable() {
		available = MetricValueAvailable
	}

	observability.LLMProviderAvailable.WithLabelValues(string(name)).Set(available)

	r.logger.Info().
		Str(logKeyProvider, string(name)).
		Int("priority", p.Priority()).
		Msg("registered LLM provider")
}

// ProviderCount returns the number of registered providers.
func (r *Registry) ProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// SetRequestTimeout bounds each provider attempt. Non-positive values keep the default.
func (r *Registry) SetRequestTimeout(d time.Duration) {
	if d <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.requestTimeout = d
}

// SetDefaultModel sets the model used when a request does not name one.
func (r *Registry) SetDefaultModel(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.defaultModel = model
}

// Generate implements Client with quality-aware fallback.
func (r *Registry) Generate(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, fmt.Errorf("generate: empty prompt: %w", coreerrors.ErrInvalidInput)
	}

	task := req.Task
	if task == "" {
		task = TaskSentiment
	}

	model := req.Model
	if model == "" {
		r.mu.RLock()
		model = r.defaultModel
		r.mu.RUnlock()
	}

	quality := ResolveQuality(req.Quality, model)
	chain := r.getProviderChain(quality, req.Provider)

	r.logger.Debug().
		Str(logKeyQuality, string(quality)).
		Str(logKeyTask, task).
		Strs("tickers", req.Tickers).
		Int("chain_length", len(chain)).
		Msg("generating completion")

	var attempted []string

	completion, err := executeWithFallback(ctx, r, chain, model, task, func(ctx context.Context, p Provider, m string) (Completion, error) {
		attempted = append(attempted, modelLabel(p.Name(), m))

		return p.Complete(ctx, req.Prompt, m)
	})
	if err != nil {
		return Response{ModelsUsed: attempted}, err
	}

	if len(attempted) > 0 && completion.Model != "" {
		attempted[len(attempted)-1] = completion.Model
	}

	return Response{
		Text:       completion.Text,
		TokensIn:   completion.PromptTokens,
		TokensOut:  completion.CompletionTokens,
		ModelsUsed: attempted,
	}, nil
}

func modelLabel(p ProviderName, model string) string {
	if model == "" {
		return string(p)
	}

	return model
}

// getProviderChain returns the provider/model chain for a quality tier.
// A preferred provider moves to the front; remaining registered providers follow as fallbacks.
func (r *Registry) getProviderChain(quality domain.QualityTier, preferred ProviderName) []ProviderModel {
	r.mu.RLock()
	qualityChain, hasConfig := r.qualityConfig[quality]
	order := append([]ProviderName(nil), r.order...)
	r.mu.RUnlock()

	var providerModels []ProviderModel

	if hasConfig {
		providerModels = qualityChain.GetProviderChain()
	}

	if preferred != "" {
		sort.SliceStable(providerModels, func(i, j int) bool {
			return providerModels[i].Provider == preferred && providerModels[j].Provider != preferred
		})
	}

	// Track which providers are already in the chain
	seen := make(map[ProviderName]bool)

	for _, pm := range providerModels {
		seen[pm.Provider] = true
	}

	// Add remaining registered providers as fallbacks
	for _, name := range order {
		if !seen[name] {
			providerModels = append(providerModels, ProviderModel{Provider: name, Model: ""})
			seen[name] = true
		}
	}

	return providerModels
}

// executeWithFallback is a generic helper for chain-ordered fallback execution.
func executeWithFallback[T any](ctx context.Context, r *Registry, providerModels []ProviderModel, modelOverride, task string, fn func(context.Context, Provider, string) (T, error)) (T, error) {
	var zero T

	if len(providerModels) == 0 {
		return zero, ErrNoProvidersAvailable
	}

	var lastErr error

	var previousProvider ProviderName

	isFirstProvider := true

	for _, pm := range providerModels {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("generate: %w", err)
		}

		result, success, err := tryProviderExec(ctx, r, pm, modelOverride, task, fn)
		if err != nil {
			lastErr = err

			if isFirstProvider {
				previousProvider = pm.Provider
			}

			isFirstProvider = false

			continue
		}

		if !success {
			continue
		}

		if !isFirstProvider && previousProvider != "" {
			observability.LLMFallbacks.WithLabelValues(
				string(previousProvider),
				string(pm.Provider),
				task,
			).Inc()

			r.logger.Info().
				Str(logKeyProvider, string(pm.Provider)).
				Str("from_provider", string(previousProvider)).
				Str(logKeyTask, task).
				Msg("used fallback LLM provider")
		}

		return result, nil
	}

	if lastErr != nil {
		return zero, errors.Join(ErrAllProvidersFailed, lastErr)
	}

	return zero, ErrNoProvidersAvailable
}

// tryProviderExec attempts to execute fn with a provider under the per-attempt timeout.
func tryProviderExec[T any](ctx context.Context, r *Registry, pm ProviderModel, modelOverride, task string, fn func(context.Context, Provider, string) (T, error)) (T, bool, error) {
	var zero T

	r.mu.RLock()
	p, exists := r.providers[pm.Provider]
	timeout := r.requestTimeout
	r.mu.RUnlock()

	if !exists || !p.IsAvailable() {
		return zero, false, nil
	}

	cb := r.getCircuitBreaker(pm.Provider)

	if !cb.CanAttempt() {
		observability.LLMCircuitBreakerState.WithLabelValues(string(pm.Provider)).Set(MetricValueCBOpen)
		observability.LLMProviderAvailable.WithLabelValues(string(pm.Provider)).Set(MetricValueUnavailable)

		r.logger.Debug().
			Str(logKeyProvider, string(pm.Provider)).
			Str(logKeyTask, task).
			Msg(logMsgCircuitBreakerOpen)

		return zero, false, nil
	}

	model := pm.Model
	if modelOverride != "" && providerForModel(modelOverride) == pm.Provider {
		model = modelOverride
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	result, err := fn(attemptCtx, p, model)

	duration := time.Since(start)

	observability.LLMRequestLatency.WithLabelValues(
		string(pm.Provider),
		model,
		task,
	).Observe(duration.Seconds())

	if err != nil {
		r.usage.RecordTokenUsage(string(pm.Provider), model, task, 0, 0, false)

		wasOpen := !cb.CanAttempt()
		cb.RecordFailure(pm.Provider)
		isNowOpen := !cb.CanAttempt()

		if !wasOpen && isNowOpen {
			observability.LLMCircuitBreakerOpens.WithLabelValues(string(pm.Provider)).Inc()
			observability.LLMCircuitBreakerState.WithLabelValues(string(pm.Provider)).Set(MetricValueCBOpen)
			observability.LLMProviderAvailable.WithLabelValues(string(pm.Provider)).Set(MetricValueUnavailable)
		}

		r.logger.Warn().
			Err(err).
			Str(logKeyProvider, string(pm.Provider)).
			Str(logKeyModel, model).
			Str(logKeyTask, task).
			Float64("duration_seconds", duration.Seconds()).
			Msg("LLM provider failed, trying fallback")

		return zero, false, err
	}

	if c, ok := any(result).(Completion); ok {
		usedModel := c.Model
		if usedModel == "" {
			usedModel = model
		}

		r.usage.RecordTokenUsage(string(pm.Provider), usedModel, task, c.PromptTokens, c.CompletionTokens, true)
	}

	cb.RecordSuccess()

	observability.LLMCircuitBreakerState.WithLabelValues(string(pm.Provider)).Set(MetricValueCBClosed)
	observability.LLMProviderAvailable.WithLabelValues(string(pm.Provider)).Set(MetricValueAvailable)

	return result, true, nil
}

// providerForModel guesses the provider family from a model name.
func providerForModel(model string) ProviderName {
	m := strings.ToLower(model)

	switch {
	case strings.HasPrefix(m, modelPrefixGemini):
		return ProviderGoogle
	case strings.HasPrefix(m, modelPrefixClaude):
		return ProviderAnthropic
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return ProviderOpenAI
	case m == llmAPIKeyMock:
		return ProviderMock
	default:
		return ""
	}
}

// sortProvidersByPriority sorts providers by priority in descending order.
func (r *Registry) sortProvidersByPriority() {
	sort.SliceStable(r.order, func(i, j int) bool {
		pi := r.providers[r.order[i]].Priority()
		pj := r.providers[r.order[j]].Priority()

		return pi > pj
	})
}

// getCircuitBreaker returns the circuit breaker for a provider.
func (r *Registry) getCircuitBreaker(name ProviderName) *CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.circuitBreakers[name]
}

// ProviderStatus holds status information for a provider.
type ProviderStatus struct {
	Name             ProviderName `json:"name"`
	Priority         int          `json:"priority"`
	Available        bool         `json:"available"`
	CircuitBreakerOK bool         `json:"circuit_breaker_ok"`
}

// GetProviderStatuses returns status information for all registered providers.
func (r *Registry) GetProviderStatuses() []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]ProviderStatus, 0, len(r.order))

	for _, name := range r.order {
		p := r.providers[name]
		cb := r.circuitBreakers[name]

		statuses = append(statuses, ProviderStatus{
			Name:             name,
			Priority:         p.Priority(),
			Available:        p.IsAvailable(),
			CircuitBreakerOK: cb.CanAttempt(),
		})
	}

	return statuses
}

// Ensure Registry implements Client interface.
var _ Client = (*Registry)(nil)
