// Package feed fetches posts and watcher counts from the upstream social feed.
//
// Fetching goes through a FetchTransport. The primary transport is a plain
// net/http client; a command transport shells out to an HTTP client binary
// whose fingerprint the upstream may not block. FallbackChain composes them.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

// ErrHTTPStatusNotOK indicates an HTTP response with an unexpected status code.
var ErrHTTPStatusNotOK = errors.New("HTTP status not OK")

const (
	maxBodySizeBytes = 5 * 1024 * 1024

	headerAccept         = "Accept"
	headerAcceptLanguage = "Accept-Language"
	acceptJSON           = "application/json, text/plain, */*"
	acceptLanguage       = "en-US,en;q=0.9"
)

// FetchTransport retrieves a URL body. Access denial and timeouts are reported
// as errors wrapping ErrUpstreamBlocked.
type FetchTransport interface {
	Name() string
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// isBlockingStatus reports whether status means the upstream refused this client.
func isBlockingStatus(status int) bool {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}

// statusError classifies a non-200 status.
func statusError(transport string, status int) error {
	if isBlockingStatus(status) {
		return fmt.Errorf("%s: status %d: %w", transport, status, coreerrors.ErrUpstreamBlocked)
	}

	return fmt.Errorf("%s: %w: %d", transport, ErrHTTPStatusNotOK, status)
}

// IsBlocked reports whether err means the transport was denied.
func IsBlocked(err error) bool {
	return errors.Is(err, coreerrors.ErrUpstreamBlocked)
}
