package llm

import (
	"strings"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
)

// ProviderModel specifies a provider and model combination.
type ProviderModel struct {
	Provider ProviderName
	Model    string
}

// ProviderChain defines the provider/model fallback chain for a quality tier.
type ProviderChain struct {
	Default   ProviderModel
	Fallbacks []ProviderModel
}

// DefaultQualityConfig returns the provider/model chain for each quality tier.
func DefaultQualityConfig() map[domain.QualityTier]ProviderChain {
	return map[domain.QualityTier]ProviderChain{
		// Low: Google Flash Lite → OpenAI nano
		domain.QualityLow: {
			Default: ProviderModel{Provider: ProviderGoogle, Model: "gemini-2.5-flash-lite"},
			Fallbacks: []ProviderModel{
				{Provider: ProviderOpenAI, Model: "gpt-5-nano"},
				{Provider: ProviderAnthropic, Model: "claude-haiku-4-5"},
			},
		},

		// Standard: Google Flash → Anthropic Haiku → OpenAI mini
		domain.QualityStandard: {
			Default: ProviderModel{Provider: ProviderGoogle, Model: "gemini-2.5-flash"},
			Fallbacks: []ProviderModel{
				{Provider: ProviderAnthropic, Model: "claude-haiku-4-5"},
				{Provider: ProviderOpenAI, Model: "gpt-5-mini"},
			},
		},

		// High: Google Pro → Anthropic Sonnet → OpenAI
		domain.QualityHigh: {
			Default: ProviderModel{Provider: ProviderGoogle, Model: "gemini-2.5-pro"},
			Fallbacks: []ProviderModel{
				{Provider: ProviderAnthropic, Model: "claude-sonnet-4-5"},
				{Provider: ProviderOpenAI, Model: "gpt-5"},
			},
		},
	}
}

// GetProviderChain returns the ordered list of provider/model combinations.
func (pc ProviderChain) GetProviderChain() []ProviderModel {
	chain := make([]ProviderModel, 0, 1+len(pc.Fallbacks))
	chain = append(chain, pc.Default)
	chain = append(chain, pc.Fallbacks...)

	return chain
}

//nolint:gochecknoglobals
var (
	lowQualityMarkers  = []string{"lite", "nano", "mini", "haiku"}
	highQualityMarkers = []string{"pro", "opus", "sonnet"}
)

// ResolveQuality picks the tier for a request. An explicit tier wins; otherwise the
// tier is inferred from whole tokens of the model name, defaulting to standard.
func ResolveQuality(explicit domain.QualityTier, model string) domain.QualityTier {
	if q, ok := domain.ParseQualityTier(string(explicit)); ok {
		return q
	}

	tokens := modelTokens(model)
	if len(tokens) == 0 {
		return domain.QualityStandard
	}

	// "flash-lite" resolves low even though "flash" alone is standard.
	if hasAnyToken(tokens, lowQualityMarkers) {
		return domain.QualityLow
	}

	if hasAnyToken(tokens, highQualityMarkers) {
		return domain.QualityHigh
	}

	return domain.QualityStandard
}

// modelTokens splits a lower-cased model name on '-', '.', '_' and '/'.
func modelTokens(model string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(model), func(r rune) bool {
		return r == '-' || r == '.' || r == '_' || r == '/'
	})

	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tokens[f] = struct{}{}
	}

	return tokens
}

func hasAnyToken(tokens map[string]struct{}, markers []string) bool {
	for _, m := range markers {
		if _, ok := tokens[m]; ok {
			return true
		}
	}

	return false
}
