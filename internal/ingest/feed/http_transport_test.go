package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

const testUserAgent = "Mozilla/5.0 test"

func TestHTTPTransportFetch(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantBody    string
		wantBlocked bool
		wantErr     bool
	}{
		{name: "ok", status: http.StatusOK, wantBody: `{"ok":true}`},
		{name: "forbidden_is_blocked", status: http.StatusForbidden, wantErr: true, wantBlocked: true},
		{name: "rate_limited_is_blocked", status: http.StatusTooManyRequests, wantErr: true, wantBlocked: true},
		{name: "unavailable_is_blocked", status: http.StatusServiceUnavailable, wantErr: true, wantBlocked: true},
		{name: "not_found_is_plain_error", status: http.StatusNotFound, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, testUserAgent, r.Header.Get("User-Agent"))
				assert.Equal(t, acceptJSON, r.Header.Get(headerAccept))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"ok":true}`))
			}))
			defer server.Close()

			transport, err := NewHTTPTransport(time.Second, 100, testUserAgent)
			require.NoError(t, err)

			body, err := transport.Fetch(context.Background(), server.URL)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.wantBody, string(body))

				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.wantBlocked, errors.Is(err, coreerrors.ErrUpstreamBlocked))
		})
	}
}

func TestHTTPTransportTimeoutIsBlocked(t *testing.T) {
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	transport, err := NewHTTPTransport(50*time.Millisecond, 100, testUserAgent)
	require.NoError(t, err)

	_, err = transport.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, IsBlocked(err), "client timeout should classify as blocked, got %v", err)
}

func TestHTTPTransportKeepsCookies(t *testing.T) {
	calls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++

		if calls == 1 {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		} else {
			c, err := r.Cookie("session")
			assert.NoError(t, err)

			if c != nil {
				assert.Equal(t, "abc", c.Value)
			}
		}

		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	transport, err := NewHTTPTransport(time.Second, 100, testUserAgent)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := transport.Fetch(context.Background(), server.URL)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, calls)
}
