package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
	"github.com/lueurxax/ticker-sentiment-bot/internal/ingest/ingestor"
	"github.com/lueurxax/ticker-sentiment-bot/internal/process/batch"
	"github.com/lueurxax/ticker-sentiment-bot/internal/process/synthesis"
)

const testSecret = "s3cret"

type fakeBatch struct {
	sum   batch.Summary
	err   error
	calls int
}

func (f *fakeBatch) RunScheduledAnalysis(context.Context) (batch.Summary, error) {
	f.calls++

	return f.sum, f.err
}

type fakeSyncer struct {
	result   ingestor.IngestResult
	gotPages int
}

func (f *fakeSyncer) IngestPosts(_ context.Context, symbol string, maxPages int) ingestor.IngestResult {
	f.gotPages = maxPages
	f.result.Symbol = symbol

	return f.result
}

func (f *fakeSyncer) TrackWatchers(context.Context, string) bool { return true }

type fakeAnalyzer struct {
	res     synthesis.Result
	err     error
	gotUser string
	gotOpts synthesis.Options
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string, userID string, opts synthesis.Options) (synthesis.Result, error) {
	f.gotUser, f.gotOpts = userID, opts

	return f.res, f.err
}

type fakeCleaner struct {
	analysisCutoff time.Time
	postCutoff     time.Time
}

func (f *fakeCleaner) DeleteAnalysesOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.analysisCutoff = cutoff

	return 7, nil
}

func (f *fakeCleaner) DeletePostsOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.postCutoff = cutoff

	return 100, nil
}

type adminFixture struct {
	batch    *fakeBatch
	sync     *fakeSyncer
	analyzer *fakeAnalyzer
	cleaner  *fakeCleaner
	handler  *AdminHandler
}

func newAdminFixture(secret string) *adminFixture {
	logger := zerolog.Nop()
	f := &adminFixture{
		batch:    &fakeBatch{},
		sync:     &fakeSyncer{},
		analyzer: &fakeAnalyzer{},
		cleaner:  &fakeCleaner{},
	}

	f.handler = NewAdminHandler(AdminDeps{
		Secret:             secret,
		Batch:              f.batch,
		Sync:               f.sync,
		Analyzer:           f.analyzer,
		Cleaner:            f.cleaner,
		DefaultCleanupDays: 90,
		PostRetentionDays:  30,
		Logger:             &logger,
	})
	f.handler.now = func() time.Time { return testNow }

	return f
}

func post(h http.Handler, url, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, url, nil)
	if secret != "" {
		req.Header.Set(AdminSecretHeader, secret)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestAdminRequiresSecret(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		sent       string
	}{
		{name: "missing_header", configured: testSecret},
		{name: "wrong_secret", configured: testSecret, sent: "guess"},
		{name: "prefix_of_secret", configured: testSecret, sent: "s3c"},
		{name: "admin_disabled", configured: "", sent: "anything"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdminFixture(tt.configured)

			rec := post(f.handler, "/admin/run-batch", tt.sent)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Zero(t, f.batch.calls)
		})
	}
}

func TestAdminRequiresPost(t *testing.T) {
	f := newAdminFixture(testSecret)

	req := httptest.NewRequest(http.MethodGet, "/admin/run-batch", nil)
	req.Header.Set(AdminSecretHeader, testSecret)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminRunBatch(t *testing.T) {
	f := newAdminFixture(testSecret)
	f.batch.sum = batch.Summary{TradingDay: true, Total: 3, Processed: 2, Errors: 1, Duration: time.Minute}

	rec := post(f.handler, "/admin/run-batch", testSecret)
	require.Equal(t, http.StatusOK, rec.Code)

	var body batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Processed)
	assert.Equal(t, 1, body.Errors)
	assert.Equal(t, "1m0s", body.Duration)

	f.batch.err = fmt.Errorf("lock: %w", batch.ErrAlreadyRunning)
	assert.Equal(t, http.StatusConflict, post(f.handler, "/admin/run-batch", testSecret).Code)
}

func TestAdminCleanup(t *testing.T) {
	f := newAdminFixture(testSecret)

	rec := post(f.handler, "/admin/cleanup?days=10", testSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"days":10,"analyses_deleted":7,"posts_deleted":100}`, rec.Body.String())
	assert.Equal(t, testNow.AddDate(0, 0, -10), f.cleaner.analysisCutoff)
	assert.Equal(t, testNow.AddDate(0, 0, -30), f.cleaner.postCutoff)

	post(f.handler, "/admin/cleanup", testSecret)
	assert.Equal(t, testNow.AddDate(0, 0, -90), f.cleaner.analysisCutoff)

	assert.Equal(t, http.StatusBadRequest, post(f.handler, "/admin/cleanup?days=0", testSecret).Code)
}

func TestAdminSync(t *testing.T) {
	f := newAdminFixture(testSecret)
	f.sync.result = ingestor.IngestResult{Pages: 2, Saved: 40, StopReason: ingestor.StopHistoryBoundary}

	rec := post(f.handler, "/admin/sync?symbol=acme&pages=500", testSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxSyncPages, f.sync.gotPages)

	var body syncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ACME", body.Symbol)
	assert.Equal(t, 40, body.Saved)
	assert.True(t, body.WatchersUpdated)

	f.sync.result = ingestor.IngestResult{StopReason: ingestor.StopUpstreamBlocked, Err: coreerrors.ErrUpstreamExhausted}
	rec = post(f.handler, "/admin/sync?symbol=acme", testSecret)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, defaultSyncPages, f.sync.gotPages)
}

func TestAdminAnalyze(t *testing.T) {
	f := newAdminFixture(testSecret)
	f.analyzer.res = synthesis.Result{
		Outcome:  synthesis.OutcomeCreated,
		Mode:     synthesis.ModeFull,
		Analysis: &domain.Analysis{ID: "a-9", Symbol: "ACME"},
	}

	rec := post(f.handler, "/admin/analyze?symbol=ACME&user_id=u-1&quality=high", testSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", f.analyzer.gotUser)
	assert.Equal(t, domain.QualityHigh, f.analyzer.gotOpts.Quality)
	assert.Contains(t, rec.Body.String(), `"id":"a-9"`)

	assert.Equal(t, http.StatusBadRequest, post(f.handler, "/admin/analyze?symbol=ACME&quality=ultra", testSecret).Code)

	f.analyzer.err = fmt.Errorf("deduct credits: %w", coreerrors.ErrInsufficientCredit)
	assert.Equal(t, http.StatusPaymentRequired, post(f.handler, "/admin/analyze?symbol=ACME&user_id=u-1", testSecret).Code)

	f.analyzer.err = errors.New("synthesis failed after retry")
	assert.Equal(t, http.StatusBadGateway, post(f.handler, "/admin/analyze?symbol=ACME", testSecret).Code)
}

func TestAdminAnalyzeInsufficientData(t *testing.T) {
	f := newAdminFixture(testSecret)
	f.analyzer.res = synthesis.Result{Outcome: synthesis.OutcomeInsufficientData, Mode: synthesis.ModeFull}

	rec := post(f.handler, "/admin/analyze?symbol=ACME", testSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"analysis"`)
	assert.Contains(t, rec.Body.String(), `"outcome":"insufficient_data"`)
}
