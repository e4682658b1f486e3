package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	AdminSecret string `env:"ADMIN_SECRET"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"25"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"5"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Upstream social feed
	FeedBaseURL         string        `env:"FEED_BASE_URL" envDefault:"https://api.stocktwits.com/api/2"`
	FeedTimeout         time.Duration `env:"FEED_TIMEOUT" envDefault:"8s"`
	FeedUserAgent       string        `env:"FEED_USER_AGENT" envDefault:"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"`
	FeedRPS             float64       `env:"FEED_RPS" envDefault:"1"`
	FeedFallbackBinary  string        `env:"FEED_FALLBACK_BINARY" envDefault:"curl"`
	FeedFallbackEnabled bool          `env:"FEED_FALLBACK_ENABLED" envDefault:"true"`

	// Ingestion
	IngestMaxPages      int           `env:"INGEST_MAX_PAGES" envDefault:"10"`
	IngestAnalysisPages int           `env:"INGEST_ANALYSIS_PAGES" envDefault:"50"`
	RetentionDays       int           `env:"RETENTION_DAYS" envDefault:"30"`
	WatcherStaleAfter   time.Duration `env:"WATCHER_STALE_AFTER" envDefault:"6h"`
	PostRetentionDays   int           `env:"POST_RETENTION_DAYS" envDefault:"90"`

	// Analysis
	AnalysisTopPosts         int `env:"ANALYSIS_TOP_POSTS" envDefault:"150"`
	AnalysisRetryPosts       int `env:"ANALYSIS_RETRY_POSTS" envDefault:"50"`
	AnalysisShallowThreshold int `env:"ANALYSIS_SHALLOW_THRESHOLD" envDefault:"20"`
	AnalysisMinPosts         int `env:"ANALYSIS_MIN_POSTS" envDefault:"1"`
	CleanupAnalysisDays      int `env:"CLEANUP_ANALYSIS_DAYS" envDefault:"90"`

	// Generative backend
	LLMAPIKey           string        `env:"LLM_API_KEY"`
	LLMModel            string        `env:"LLM_MODEL"`
	AnthropicAPIKey     string        `env:"ANTHROPIC_API_KEY"`
	GoogleAPIKey        string        `env:"GOOGLE_API_KEY"`
	LLMTimeout          time.Duration `env:"LLM_TIMEOUT" envDefault:"90s"`
	LLMCircuitThreshold int           `env:"LLM_CIRCUIT_THRESHOLD" envDefault:"3"`
	LLMCircuitTimeout   time.Duration `env:"LLM_CIRCUIT_TIMEOUT" envDefault:"2m"`
	RateLimitRPS        int           `env:"RATE_LIMIT_RPS" envDefault:"1"`

	// Credits, as decimal strings
	CreditCostLow      string `env:"CREDIT_COST_LOW" envDefault:"1"`
	CreditCostStandard string `env:"CREDIT_COST_STANDARD" envDefault:"3"`
	CreditCostHigh     string `env:"CREDIT_COST_HIGH" envDefault:"10"`

	// Scheduling
	BatchCron       string   `env:"BATCH_CRON" envDefault:"0 0 8 * * 1-5"`
	BatchTimezone   string   `env:"BATCH_TIMEZONE" envDefault:"America/New_York"`
	MarketHolidays  []string `env:"MARKET_HOLIDAYS" envSeparator:","`
	WatcherCron     string   `env:"WATCHER_CRON" envDefault:"0 0 */6 * * *"`
	CleanupCron     string   `env:"CLEANUP_CRON" envDefault:"0 30 3 * * *"`
	SchedulerEnable bool     `env:"SCHEDULER_ENABLED" envDefault:"true"`

	// Operator notifications
	NotifyBotToken string `env:"NOTIFY_BOT_TOKEN"`
	NotifyChatID   int64  `env:"NOTIFY_CHAT_ID"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	applyLegacyAliases(cfg)

	return cfg, nil
}

// applyLegacyAliases maps older variable names onto the current ones when the
// current name is not set.
func applyLegacyAliases(cfg *Config) {
	if !hasEnv("LLM_API_KEY") {
		setStringFromEnv("OPENAI_API_KEY", &cfg.LLMAPIKey)
	}

	if !hasEnv("FEED_TIMEOUT") {
		setDurationFromEnv("STOCKTWITS_TIMEOUT", &cfg.FeedTimeout)
	}

	if !hasEnv("FEED_FALLBACK_ENABLED") {
		setBoolFromEnv("CURL_FALLBACK_ENABLED", &cfg.FeedFallbackEnabled)
	}

	if !hasEnv("INGEST_MAX_PAGES") {
		setIntFromEnv("STOCKTWITS_MAX_PAGES", &cfg.IngestMaxPages)
	}
}

// Location resolves BatchTimezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.BatchTimezone)
	if err != nil {
		return time.UTC
	}

	return loc
}

// RetentionWindow is the post and analysis retention horizon.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * hoursPerDay * time.Hour
}

const hoursPerDay = 24

func hasEnv(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func setStringFromEnv(key string, target *string) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	val = strings.TrimSpace(val)
	if val == "" {
		return
	}

	*target = val
}

func setBoolFromEnv(key string, target *bool) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	parsed, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return
	}

	*target = parsed
}

func setIntFromEnv(key string, target *int) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return
	}

	*target = parsed
}

func setDurationFromEnv(key string, target *time.Duration) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	parsed, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		return
	}

	*target = parsed
}
