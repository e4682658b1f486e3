package llm

import "time"

// Error message templates
const (
	errRateLimiterSimple     = "rate limiter: %w"
	errOpenAIChatCompletion  = "openai chat completion error: %w"
	errGoogleGenAICompletion = "google genai completion: %w"
	errAnthropicCompletion   = "anthropic completion: %w"
)

// Model mapping strings
const (
	modelPrefixGPT5   = "gpt-5"
	modelPrefixNano   = "nano"
	modelPrefixClaude = "claude"
	modelPrefixGemini = "gemini"
	llmAPIKeyMock     = "mock"
)

// Log message strings
const (
	logMsgCircuitBreakerOpen = "skipping provider - circuit breaker open"
)

// Log key strings
const (
	logKeyProvider = "provider"
	logKeyTask     = "task"
	logKeyModel    = "model"
	logKeyQuality  = "quality"
)

// Numeric constants
const (
	rateLimiterBurst = 5
	maxOutputTokens  = 4096
)

// Circuit breaker defaults
const (
	defaultCircuitThreshold = 5
	defaultCircuitTimeout   = time.Minute
	defaultRequestTimeout   = 90 * time.Second
)

// Usage storage timeout
const (
	usageStorageTimeout = 5 * time.Second
)

// Cost conversion
const (
	usdToMillicents = 100000.0 // 1 USD = 100,000 millicents
)

// Request status for metrics.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metric gauge values.
const (
	MetricValueAvailable   = 1.0
	MetricValueUnavailable = 0.0
	MetricValueCBOpen      = 1.0 // Circuit breaker is open (blocking requests)
	MetricValueCBClosed    = 0.0 // Circuit breaker is closed (allowing requests)
)
