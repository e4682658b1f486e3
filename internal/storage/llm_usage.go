package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// UsageCounters are summed llm_usage counters.
type UsageCounters struct {
	PromptTokens     int64
	CompletionTokens int64
	Requests         int64
	CostUSD          float64
}

func (c *UsageCounters) add(o UsageCounters) {
	c.PromptTokens += o.PromptTokens
	c.CompletionTokens += o.CompletionTokens
	c.Requests += o.Requests
	c.CostUSD += o.CostUSD
}

// LLMUsageSummary aggregates generative backend usage since a UTC day.
type LLMUsageSummary struct {
	Since time.Time
	UsageCounters
	ByProvider map[string]UsageCounters
	ByModel    map[string]UsageCounters
}

// IncrementLLMUsage adds one request to the counters of the current UTC day.
func (db *DB) IncrementLLMUsage(ctx context.Context, provider, model, task string, promptTokens, completionTokens int, cost float64) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO llm_usage (date, provider, model, task, prompt_tokens, completion_tokens, request_count, cost_usd)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
		ON CONFLICT (date, provider, model, task)
		DO UPDATE SET
			prompt_tokens = llm_usage.prompt_tokens + EXCLUDED.prompt_tokens,
			completion_tokens = llm_usage.completion_tokens + EXCLUDED.completion_tokens,
			request_count = llm_usage.request_count + 1,
			cost_usd = llm_usage.cost_usd + EXCLUDED.cost_usd,
			updated_at = now()
	`, usageDate(usageDay(time.Now())), provider, model, task, promptTokens, completionTokens, cost)
	if err != nil {
		return fmt.Errorf("increment llm usage: %w", err)
	}

	return nil
}

// GetDailyLLMUsage returns usage for the current UTC day.
func (db *DB) GetDailyLLMUsage(ctx context.Context) (*LLMUsageSummary, error) {
	return db.GetLLMUsageSince(ctx, usageDay(time.Now()))
}

// GetMonthlyLLMUsage returns usage for the current UTC month.
func (db *DB) GetMonthlyLLMUsage(ctx context.Context) (*LLMUsageSummary, error) {
	return db.GetLLMUsageSince(ctx, usageMonth(time.Now()))
}

// GetLLMUsageSince sums usage rows dated on or after since, truncated to its UTC day.
func (db *DB) GetLLMUsageSince(ctx context.Context, since time.Time) (*LLMUsageSummary, error) {
	since = usageDay(since)

	rows, err := db.Pool.Query(ctx, `
		SELECT provider, model,
			   COALESCE(SUM(prompt_tokens), 0)::bigint,
			   COALESCE(SUM(completion_tokens), 0)::bigint,
			   COALESCE(SUM(request_count), 0)::bigint,
			   COALESCE(SUM(cost_usd), 0)::float8
		FROM llm_usage
		WHERE date >= $1
		GROUP BY provider, model
	`, usageDate(since))
	if err != nil {
		return nil, fmt.Errorf("get llm usage: %w", err)
	}
	defer rows.Close()

	summary := newUsageSummary(since)

	for rows.Next() {
		var (
			provider, model string
			c               UsageCounters
		)

		if err := rows.Scan(&provider, &model, &c.PromptTokens, &c.CompletionTokens, &c.Requests, &c.CostUSD); err != nil {
			return nil, fmt.Errorf(errFmtScan, "llm usage", err)
		}

		summary.record(provider, model, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(errFmtIterate, "llm usage", err)
	}

	return summary, nil
}

func newUsageSummary(since time.Time) *LLMUsageSummary {
	return &LLMUsageSummary{
		Since:      since,
		ByProvider: make(map[string]UsageCounters),
		ByModel:    make(map[string]UsageCounters),
	}
}

func (s *LLMUsageSummary) record(provider, model string, c UsageCounters) {
	s.add(c)

	p := s.ByProvider[provider]
	p.add(c)
	s.ByProvider[provider] = p

	m := s.ByModel[model]
	m.add(c)
	s.ByModel[model] = m
}

func usageDay(t time.Time) time.Time {
	t = t.UTC()

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func usageMonth(t time.Time) time.Time {
	t = t.UTC()

	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func usageDate(day time.Time) pgtype.Date {
	return pgtype.Date{Time: day, Valid: true}
}
