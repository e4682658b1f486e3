package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/observability"
)

// Fetch result labels.
const (
	resultSuccess = "success"
	resultBlocked = "blocked"
	resultError   = "error"
)

// FallbackChain tries each transport in order, moving on only when a transport
// is blocked. Any other failure is returned immediately.
type FallbackChain struct {
	transports []FetchTransport
	logger     *zerolog.Logger
}

// NewFallbackChain composes transports, primary first.
func NewFallbackChain(logger *zerolog.Logger, transports ...FetchTransport) *FallbackChain {
	return &FallbackChain{transports: transports, logger: logger}
}

// Name implements FetchTransport.
func (c *FallbackChain) Name() string {
	return "chain"
}

// Fetch implements FetchTransport. When every transport is blocked the error
// wraps ErrUpstreamExhausted.
func (c *FallbackChain) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var blocked []error

	for i, t := range c.transports {
		start := time.Now()
		body, err := t.Fetch(ctx, rawURL)

		observability.FeedFetchDuration.WithLabelValues(t.Name()).Observe(time.Since(start).Seconds())

		if err == nil {
			observability.FeedFetches.WithLabelValues(t.Name(), resultSuccess).Inc()

			if i > 0 {
				c.logger.Info().Str(logKeyTransport, t.Name()).Str(logKeyURL, rawURL).Msg("fallback transport succeeded")
			}

			return body, nil
		}

		if !IsBlocked(err) {
			observability.FeedFetches.WithLabelValues(t.Name(), resultError).Inc()

			return nil, err
		}

		observability.FeedFetches.WithLabelValues(t.Name(), resultBlocked).Inc()

		c.logger.Warn().Err(err).Str(logKeyTransport, t.Name()).Str(logKeyURL, rawURL).Msg("transport blocked by upstream")

		blocked = append(blocked, err)
	}

	if len(blocked) == 0 {
		return nil, fmt.Errorf("no transports configured: %w", coreerrors.ErrUpstreamExhausted)
	}

	return nil, fmt.Errorf("%w: %w", coreerrors.ErrUpstreamExhausted, errors.Join(blocked...))
}
