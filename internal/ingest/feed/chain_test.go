package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

var errBoom = errors.New("boom")

type stubTransport struct {
	name  string
	body  string
	err   error
	calls int
}

func (s *stubTransport) Name() string { return s.name }

func (s *stubTransport) Fetch(_ context.Context, _ string) ([]byte, error) {
	s.calls++

	if s.err != nil {
		return nil, s.err
	}

	return []byte(s.body), nil
}

func blockedErr(name string) error {
	return fmt.Errorf("%s: %w", name, coreerrors.ErrUpstreamBlocked)
}

func TestFallbackChain(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("primary_success_skips_fallback", func(t *testing.T) {
		primary := &stubTransport{name: "primary", body: "p"}
		fallback := &stubTransport{name: "fallback", body: "f"}

		body, err := NewFallbackChain(&logger, primary, fallback).Fetch(context.Background(), "u")
		require.NoError(t, err)
		assert.Equal(t, "p", string(body))
		assert.Equal(t, 0, fallback.calls)
	})

	t.Run("blocked_primary_uses_fallback_once", func(t *testing.T) {
		primary := &stubTransport{name: "primary", err: blockedErr("primary")}
		fallback := &stubTransport{name: "fallback", body: "f"}

		body, err := NewFallbackChain(&logger, primary, fallback).Fetch(context.Background(), "u")
		require.NoError(t, err)
		assert.Equal(t, "f", string(body))
		assert.Equal(t, 1, fallback.calls)
	})

	t.Run("both_blocked_is_exhausted", func(t *testing.T) {
		primary := &stubTransport{name: "primary", err: blockedErr("primary")}
		fallback := &stubTransport{name: "fallback", err: blockedErr("fallback")}

		_, err := NewFallbackChain(&logger, primary, fallback).Fetch(context.Background(), "u")
		require.Error(t, err)
		assert.ErrorIs(t, err, coreerrors.ErrUpstreamExhausted)
	})

	t.Run("other_error_does_not_fall_back", func(t *testing.T) {
		primary := &stubTransport{name: "primary", err: errBoom}
		fallback := &stubTransport{name: "fallback", body: "f"}

		_, err := NewFallbackChain(&logger, primary, fallback).Fetch(context.Background(), "u")
		require.ErrorIs(t, err, errBoom)
		assert.NotErrorIs(t, err, coreerrors.ErrUpstreamExhausted)
		assert.Equal(t, 0, fallback.calls)
	})
}
