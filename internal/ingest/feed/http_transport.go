package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

const (
	transportHTTP = "http"

	defaultHTTPTimeout = 8 * time.Second
	httpLimiterBurst   = 2
	maxRedirects       = 5
)

// ErrTooManyRedirects indicates too many HTTP redirects.
var ErrTooManyRedirects = errors.New("too many redirects")

// HTTPTransport fetches with net/http using browser-like headers and a cookie jar.
type HTTPTransport struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewHTTPTransport creates the primary transport.
func NewHTTPTransport(timeout time.Duration, rps float64, userAgent string) (*HTTPTransport, error) {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	if rps <= 0 {
		rps = 1
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &HTTPTransport{
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return ErrTooManyRedirects
				}

				return nil
			},
		},
		limiter:   rate.NewLimiter(rate.Limit(rps), httpLimiterBurst),
		userAgent: userAgent,
	}, nil
}

// Name implements FetchTransport.
func (t *HTTPTransport) Name() string {
	return transportHTTP
}

// Fetch implements FetchTransport.
func (t *HTTPTransport) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	req.Header.Set(headerAccept, acceptJSON)
	req.Header.Set(headerAcceptLanguage, acceptLanguage)

	resp, err := t.client.Do(req)
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return nil, fmt.Errorf("%s: %w: %w", transportHTTP, coreerrors.ErrUpstreamBlocked, err)
		}

		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(transportHTTP, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
