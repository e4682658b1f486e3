package llm

import "strings"

// Cost per 1M tokens (in USD) for various providers and models.
// These are approximate costs and should be updated as pricing changes.
const (
	// OpenAI GPT-5 series
	costGPT5PromptPer1M       = 1.25
	costGPT5CompletionPer1M   = 10.00
	costGPT5MiniPromptPer1M   = 0.25
	costGPT5MiniCompletePer1M = 2.00
	costGPT5NanoPromptPer1M   = 0.05
	costGPT5NanoCompletePer1M = 0.40
	costGPT4OMiniPrompt       = 0.15
	costGPT4OMiniComplete     = 0.60

	// Anthropic Claude
	costClaudeHaikuPrompt    = 1.00
	costClaudeHaikuComplete  = 5.00
	costClaudeSonnetPrompt   = 3.00
	costClaudeSonnetComplete = 15.00
	costClaudeOpusPrompt     = 15.00
	costClaudeOpusComplete   = 75.00

	// Google Gemini
	costGeminiFlashLitePrompt   = 0.10
	costGeminiFlashLiteComplete = 0.40
	costGeminiFlashPrompt       = 0.30
	costGeminiFlashComplete     = 2.50
	costGeminiProPrompt         = 1.25
	costGeminiProComplete       = 10.00

	// Conversion factor
	tokensPerMillion = 1000000.0
)

// estimateCost calculates an estimated cost for a request based on provider, model, and token counts.
// Returns cost in USD.
func estimateCost(provider, model string, promptTokens, completionTokens int) float64 {
	promptCost, completionCost := getCostRates(provider, model)

	promptUSD := float64(promptTokens) * promptCost / tokensPerMillion
	completionUSD := float64(completionTokens) * completionCost / tokensPerMillion

	return promptUSD + completionUSD
}

// getCostRates returns the cost per 1M tokens for prompt and completion based on provider and model.
func getCostRates(provider, model string) (promptRate, completionRate float64) {
	modelLower := strings.ToLower(model)

	switch ProviderName(provider) {
	case ProviderOpenAI:
		return getOpenAICostRates(modelLower)
	case ProviderAnthropic:
		return getAnthropicCostRates(modelLower)
	case ProviderGoogle:
		return getGoogleCostRates(modelLower)
	case ProviderMock:
		return 0, 0
	default:
		return costGPT4OMiniPrompt, costGPT4OMiniComplete
	}
}

func getOpenAICostRates(model string) (float64, float64) {
	switch {
	case strings.Contains(model, modelPrefixGPT5) && strings.Contains(model, modelPrefixNano):
		return costGPT5NanoPromptPer1M, costGPT5NanoCompletePer1M
	case strings.Contains(model, modelPrefixGPT5) && strings.Contains(model, "mini"):
		return costGPT5MiniPromptPer1M, costGPT5MiniCompletePer1M
	case strings.Contains(model, modelPrefixGPT5):
		return costGPT5PromptPer1M, costGPT5CompletionPer1M
	default:
		return costGPT4OMiniPrompt, costGPT4OMiniComplete
	}
}

func getAnthropicCostRates(model string) (float64, float64) {
	switch {
	case strings.Contains(model, "opus"):
		return costClaudeOpusPrompt, costClaudeOpusComplete
	case strings.Contains(model, "sonnet"):
		return costClaudeSonnetPrompt, costClaudeSonnetComplete
	default:
		return costClaudeHaikuPrompt, costClaudeHaikuComplete
	}
}

func getGoogleCostRates(model string) (float64, float64) {
	switch {
	case strings.Contains(model, "pro"):
		return costGeminiProPrompt, costGeminiProComplete
	case strings.Contains(model, "lite"):
		return costGeminiFlashLitePrompt, costGeminiFlashLiteComplete
	default:
		return costGeminiFlashPrompt, costGeminiFlashComplete
	}
}
