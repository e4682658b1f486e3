package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PostsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_posts_ingested_total",
		Help: "The total number of posts persisted per symbol",
	}, []string{"symbol"})

	PostsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_posts_skipped_total",
		Help: "Posts skipped because they were already stored",
	}, []string{"reason"})

	FeedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_feed_fetches_total",
		Help: "Upstream fetch attempts by transport and result",
	}, []string{"transport", "result"})

	FeedFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentiment_feed_fetch_duration_seconds",
		Help:    "Duration of upstream fetch attempts",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"transport"})

	IngestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_ingest_runs_total",
		Help: "Post ingestion runs by stop reason",
	}, []string{"stop_reason"})

	IngestJoins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentiment_ingest_joins_total",
		Help: "Ingestion calls that joined an in-flight run instead of starting one",
	})

	IngestInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentiment_ingest_in_flight",
		Help: "Number of symbols with an ingestion run in progress",
	})

	WatcherSnapshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_watcher_snapshots_total",
		Help: "Watcher snapshots recorded by trigger",
	}, []string{"trigger"})

	Analyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_analyses_total",
		Help: "Analysis runs by window mode and outcome",
	}, []string{"mode", "outcome"})

	AnalysisPostsSelected = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentiment_analysis_posts_selected",
		Help:    "Number of posts sent to the backend per attempt",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 150},
	})

	BackendRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_backend_retries_total",
		Help: "Degraded retries of the generative backend by cause",
	}, []string{"cause"})

	CreditsDeducted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_credit_deductions_total",
		Help: "Credit deductions by reason",
	}, []string{"reason"})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_events_processed_total",
		Help: "Extracted calendar events by result (saved, duplicate, rejected)",
	}, []string{"result"})

	BatchTickers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_batch_tickers_total",
		Help: "Tickers handled by the scheduled batch by result",
	}, []string{"result"})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentiment_batch_duration_seconds",
		Help:    "Duration of a scheduled batch run",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
	})

	SchedulerJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_scheduler_jobs_total",
		Help: "Cron job executions by job and status",
	}, []string{"job", "status"})

	// LLM token usage metrics
	LLMTokensPrompt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_llm_tokens_prompt_total",
		Help: "Total prompt tokens sent to LLM providers",
	}, []string{"provider", "model", "task"})

	LLMTokensCompletion = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_llm_tokens_completion_total",
		Help: "Total completion tokens received from LLM providers",
	}, []string{"provider", "model", "task"})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_llm_requests_total",
		Help: "Total number of LLM requests",
	}, []string{"provider", "model", "task", "status"})

	// LLM fallback and circuit breaker metrics
	LLMFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_llm_fallbacks_total",
		Help: "Total number of LLM fallback events",
	}, []string{"from_provider", "to_provider", "task"})

	LLMCircuitBreakerOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_llm_circuit_breaker_opens_total",
		Help: "Total number of times LLM circuit breaker opened",
	}, []string{"provider"})

	LLMCircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sentiment_llm_circuit_breaker_state",
		Help: "Current state of LLM circuit breaker (0=closed, 1=open)",
	}, []string{"provider"})

	LLMRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentiment_llm_request_latency_seconds",
		Help:    "Latency of LLM requests by provider and task",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"provider", "model", "task"})

	// LLM estimated costs (in millicents to avoid floating point issues)
	LLMEstimatedCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_llm_estimated_cost_millicents_total",
		Help: "Estimated LLM cost in millicents (0.001 cents)",
	}, []string{"provider", "model", "task"})

	LLMProviderAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sentiment_llm_provider_available",
		Help: "Whether LLM provider is currently available (0=no, 1=yes)",
	}, []string{"provider"})
)
