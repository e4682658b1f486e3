package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
	"github.com/lueurxax/ticker-sentiment-bot/internal/core/llm"
	"github.com/lueurxax/ticker-sentiment-bot/internal/core/ports/mocks"
	"github.com/lueurxax/ticker-sentiment-bot/internal/ingest/ingestor"
	"github.com/lueurxax/ticker-sentiment-bot/internal/process/events"
)

const testSymbol = "ACME"

var (
	testNow        = time.Date(2025, 1, 28, 12, 0, 0, 0, time.UTC)
	errBackendDown = errors.New("backend down")
)

const validResponse = "Here you go:\n```json\n" + `{"sentiment_score": 0.4, "sentiment_label": "bullish", "summary": "Holders expect a strong quarter.",
"highlights": {"topics": ["earnings"], "bullish": ["guidance raise"], "bearish": []},
"events": [{"title": "Q4 Earnings Call", "date": "2025-02-03", "type": "earnings", "impact": 8, "confidence": 0.9}]}` + "\n```"

type scriptedGenerator struct {
	mu        sync.Mutex
	responses []llm.Response
	errs      []error
	prompts   []string
}

func (g *scriptedGenerator) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	i := len(g.prompts)
	g.prompts = append(g.prompts, req.Prompt)

	if i < len(g.errs) && g.errs[i] != nil {
		return llm.Response{}, g.errs[i]
	}

	if i < len(g.responses) {
		return g.responses[i], nil
	}

	return llm.Response{Text: validResponse, TokensIn: 100, TokensOut: 20, ModelsUsed: []string{"gemini-2.5-flash"}}, nil
}

func (g *scriptedGenerator) GetProviderStatuses() []llm.ProviderStatus { return nil }

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.prompts)
}

type recordingIngestor struct {
	mu    sync.Mutex
	pages []int
}

func (r *recordingIngestor) IngestPosts(_ context.Context, symbol string, maxPages int) ingestor.IngestResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pages = append(r.pages, maxPages)

	return ingestor.IngestResult{Symbol: symbol, StopReason: ingestor.StopHistoryBoundary}
}

type mockEventSaver struct {
	mock.Mock
}

func (m *mockEventSaver) Save(ctx context.Context, ticker domain.Ticker, analysisID string, extracted []domain.ExtractedEvent) (events.SaveResult, error) {
	args := m.Called(ctx, ticker, analysisID, extracted)

	return args.Get(0).(events.SaveResult), args.Error(1)
}

type fixture struct {
	repo    *mocks.AnalysisRepository
	tickers *mocks.TickerDirectory
	credits *mocks.CreditLedger
	gen     *scriptedGenerator
	ingest  *recordingIngestor
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zerolog.Nop()
	f := &fixture{
		repo:    mocks.NewAnalysisRepository(),
		tickers: mocks.NewTickerDirectory(),
		credits: mocks.NewCreditLedger(),
		gen:     &scriptedGenerator{},
		ingest:  &recordingIngestor{},
	}

	f.tickers.Add(domain.Ticker{ID: "t-1", Symbol: testSymbol, Name: "Acme Corp"}, nil)

	costs, err := ParseCosts("1", "3", "10")
	require.NoError(t, err)

	f.engine = New(Deps{
		Repo:      f.repo,
		Tickers:   f.tickers,
		Credits:   f.credits,
		Generator: f.gen,
		Ingest:    f.ingest,
		Costs:     costs,
		Logger:    &logger,
	}, Config{})
	f.engine.now = func() time.Time { return testNow }

	return f
}

// addPosts stores n posts posted after since, one minute apart.
func (f *fixture) addPosts(n int, since time.Time, firstID int64) {
	for i := 0; i < n; i++ {
		f.repo.AddPosts(domain.Post{
			ID:       firstID + int64(i),
			Symbol:   testSymbol,
			Author:   fmt.Sprintf("user%d", i),
			Body:     fmt.Sprintf("post number %d https://example.com/x", i),
			Likes:    i,
			PostedAt: since.Add(time.Duration(i+1) * time.Minute),
		})
	}
}

func TestAnalyzeFirstRunIsFull(t *testing.T) {
	f := newFixture(t)
	f.addPosts(5, testNow.Add(-48*time.Hour), 1)

	res, err := f.engine.Analyze(context.Background(), "acme", "", Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, ModeFull, res.Mode)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, testSymbol, res.Analysis.Symbol)
	assert.Equal(t, "t-1", res.Analysis.TickerID)
	assert.Equal(t, 5, res.Analysis.PostsAnalyzed)
	assert.Equal(t, testNow.Add(-30*24*time.Hour), res.Analysis.AnalysisStart)
	assert.Equal(t, testNow.Add(-48*time.Hour).Add(5*time.Minute), res.Analysis.AnalysisEnd)
	assert.InDelta(t, 0.4, res.Analysis.SentimentScore, 1e-9)
	assert.Equal(t, domain.SentimentBullish, res.Analysis.SentimentLabel)
	assert.Equal(t, "gemini-2.5-flash", res.Analysis.Model)
	assert.Equal(t, domain.HighlightKindTopics, res.Analysis.Highlights.Kind)
	require.Len(t, res.Analysis.ExtractedEvents, 1)
	assert.Equal(t, []int{defaultRefreshPages}, f.ingest.pages)
	assert.Len(t, f.repo.Analyses(), 1)
}

func TestAnalyzeShallowPriorForcesFull(t *testing.T) {
	f := newFixture(t)
	prevCreated := testNow.Add(-2 * time.Hour)
	f.repo.AddAnalysis(domain.Analysis{
		ID:            "prev",
		Symbol:        testSymbol,
		AnalysisStart: testNow.Add(-10 * 24 * time.Hour),
		PostsAnalyzed: 5,
		Summary:       "thin chain",
		CreatedAt:     prevCreated,
	})
	f.addPosts(7, testNow.Add(-5*24*time.Hour), 1)
	f.addPosts(3, prevCreated, 100)

	res, err := f.engine.Analyze(context.Background(), testSymbol, "", Options{})
	require.NoError(t, err)

	assert.Equal(t, ModeFull, res.Mode)
	assert.Equal(t, 10, res.Analysis.PostsAnalyzed)
	assert.Equal(t, testNow.Add(-30*24*time.Hour), res.Analysis.AnalysisStart)
	assert.NotContains(t, f.gen.prompts[0], "thin chain")
}

func TestAnalyzeStalePriorForcesFull(t *testing.T) {
	f := newFixture(t)
	f.repo.AddAnalysis(domain.Analysis{
		ID:            "old",
		Symbol:        testSymbol,
		PostsAnalyzed: 500,
		CreatedAt:     testNow.Add(-31 * 24 * time.Hour),
	})
	f.addPosts(3, testNow.Add(-time.Hour), 1)

	res, err := f.engine.Analyze(context.Background(), testSymbol, "", Options{})
	require.NoError(t, err)

	assert.Equal(t, ModeFull, res.Mode)
	assert.Equal(t, 3, res.Analysis.PostsAnalyzed)
}

func TestAnalyzeIncrementalAccumulates(t *testing.T) {
	f := newFixture(t)
	origStart := testNow.Add(-20 * 24 * time.Hour)
	prevCreated := testNow.Add(-3 * time.Hour)
	f.repo.AddAnalysis(domain.Analysis{
		ID:                     "prev",
		Symbol:                 testSymbol,
		AnalysisStart:          origStart,
		PostsAnalyzed:          40,
		SentimentScore:         -0.2,
		WeightedSentimentScore: -0.2,
		Summary:                "Shorts pile in ahead of the print.",
		CreatedAt:              prevCreated,
	})
	f.addPosts(40, testNow.Add(-10*24*time.Hour), 1)
	f.addPosts(10, prevCreated, 1000)

	res, err := f.engine.Analyze(context.Background(), testSymbol, "", Options{})
	require.NoError(t, err)

	assert.Equal(t, ModeIncremental, res.Mode)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, 50, res.Analysis.PostsAnalyzed)
	assert.Equal(t, origStart, res.Analysis.AnalysisStart)
	assert.Equal(t, prevCreated.Add(10*time.Minute), res.Analysis.AnalysisEnd)
	assert.NotEqual(t, "prev", res.Analysis.ID)
	assert.InDelta(t, (-0.2*40+0.4*10)/50, res.Analysis.WeightedSentimentScore, 1e-9)

	require.Equal(t, 1, f.gen.calls())
	assert.Contains(t, f.gen.prompts[0], "Shorts pile in ahead of the print.")
	assert.Contains(t, f.gen.prompts[0], "Posts (10,")
}

func TestAnalyzeIncrementalWithoutNewPostsIsUnchanged(t *testing.T) {
	f := newFixture(t)
	prev := domain.Analysis{
		ID:            "prev",
		Symbol:        testSymbol,
		PostsAnalyzed: 40,
		CreatedAt:     testNow.Add(-time.Hour),
	}
	f.repo.AddAnalysis(prev)
	f.addPosts(40, testNow.Add(-5*24*time.Hour), 1)

	res, err := f.engine.Analyze(context.Background(), testSymbol, "user-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, "prev", res.Analysis.ID)
	assert.Zero(t, f.gen.calls())
	assert.Empty(t, f.credits.Deductions())
	assert.Len(t, f.repo.Analyses(), 1)
}

func TestAnalyzeFullWithoutPostsIsInsufficientData(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Analyze(context.Background(), testSymbol, "", Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeInsufficientData, res.Outcome)
	assert.Nil(t, res.Analysis)
	assert.Zero(t, f.gen.calls())
}

func TestAnalyzeRetriesWithSmallerSubset(t *testing.T) {
	tests := []struct {
		name      string
		posts     int
		firstErr  error
		firstText string
		wantFirst string
		wantRetry string
	}{
		{name: "unparseable_text", posts: 60, firstText: "I cannot help with that.", wantFirst: "Posts (60,", wantRetry: "Posts (50,"},
		{name: "backend_error", posts: 60, firstErr: errBackendDown, wantFirst: "Posts (60,", wantRetry: "Posts (50,"},
		{name: "few_posts", posts: 10, firstText: "{not json", wantFirst: "Posts (10,", wantRetry: "Posts (5,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addPosts(tt.posts, testNow.Add(-24*time.Hour), 1)
			f.gen.errs = []error{tt.firstErr}
			f.gen.responses = []llm.Response{
				{Text: tt.firstText, TokensIn: 500, ModelsUsed: []string{"gemini-2.5-flash"}},
				{Text: validResponse, TokensIn: 100, TokensOut: 20, ModelsUsed: []string{"gemini-2.5-flash", "claude-haiku-4-5"}},
			}

			res, err := f.engine.Analyze(context.Background(), testSymbol, "", Options{})
			require.NoError(t, err)

			require.Equal(t, 2, f.gen.calls())
			assert.Contains(t, f.gen.prompts[0], tt.wantFirst)
			assert.Contains(t, f.gen.prompts[1], tt.wantRetry)
			assert.Less(t, len(f.gen.prompts[1]), len(f.gen.prompts[0]))
			assert.Equal(t, "claude-haiku-4-5", res.Analysis.Model)
			assert.Equal(t, tt.posts, res.Analysis.PostsAnalyzed)
			assert.Len(t, f.repo.Analyses(), 1)
		})
	}
}

func TestAnalyzeSecondFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.addPosts(10, testNow.Add(-24*time.Hour), 1)
	f.gen.responses = []llm.Response{{Text: "nope"}, {Text: "still nope"}}

	_, err := f.engine.Analyze(context.Background(), testSymbol, "", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerrors.ErrBackendParse)
	assert.Equal(t, 2, f.gen.calls())
	assert.Empty(t, f.repo.Analyses())
}

func TestAnalyzeConvertsBullishness(t *testing.T) {
	f := newFixture(t)
	f.addPosts(3, testNow.Add(-time.Hour), 1)
	f.gen.responses = []llm.Response{{
		Text:       `{"bullishness": 0.1, "summary": "Sellers dominate.", "highlights": {"topics": [], "bullish": [], "bearish": ["dilution"]}}`,
		ModelsUsed: []string{"gpt-5-mini"},
	}}

	res, err := f.engine.Analyze(context.Background(), testSymbol, "", Options{})
	require.NoError(t, err)

	assert.InDelta(t, -0.8, res.Analysis.SentimentScore, 1e-9)
	assert.Equal(t, domain.SentimentVeryBearish, res.Analysis.SentimentLabel)
}

func TestAnalyzeChargesUser(t *testing.T) {
	f := newFixture(t)
	f.addPosts(3, testNow.Add(-time.Hour), 1)
	f.credits.SetBalance("user-1", decimal.NewFromInt(10))

	_, err := f.engine.Analyze(context.Background(), testSymbol, "user-1", Options{Model: "gemini-2.5-pro"})
	require.NoError(t, err)

	deductions := f.credits.Deductions()
	require.Len(t, deductions, 1)
	assert.True(t, deductions[0].Amount.Equal(decimal.NewFromInt(10)), "high tier price, got %s", deductions[0].Amount)
	assert.Equal(t, CreditReasonAnalysis, deductions[0].Reason)
	assert.Equal(t, testSymbol, deductions[0].Metadata["symbol"])

	balance, err := f.credits.GetBalance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestAnalyzeChargePriceFollowsModelTier(t *testing.T) {
	tests := []struct {
		model string
		want  int64
	}{
		{"gemini-2.5-flash-lite", 1},
		{"gemini-2.5-flash", 3},
		{"gemini-1.5-pro-latest", 10},
		{"claude-sonnet-4-5", 10},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			f := newFixture(t)
			f.addPosts(3, testNow.Add(-time.Hour), 1)
			f.credits.SetBalance("user-1", decimal.NewFromInt(20))

			_, err := f.engine.Analyze(context.Background(), testSymbol, "user-1", Options{Model: tt.model})
			require.NoError(t, err)

			deductions := f.credits.Deductions()
			require.Len(t, deductions, 1)
			assert.True(t, deductions[0].Amount.Equal(decimal.NewFromInt(tt.want)), "price for %s: got %s", tt.model, deductions[0].Amount)
		})
	}
}

func TestAnalyzeInsufficientCreditSkipsBackend(t *testing.T) {
	f := newFixture(t)
	f.addPosts(3, testNow.Add(-time.Hour), 1)
	f.credits.SetBalance("user-1", decimal.NewFromInt(2))

	_, err := f.engine.Analyze(context.Background(), testSymbol, "user-1", Options{Quality: domain.QualityStandard})
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerrors.ErrInsufficientCredit)
	assert.Zero(t, f.gen.calls())
}

func TestAnalyzeChargeIsNotRefundedOnFailure(t *testing.T) {
	f := newFixture(t)
	f.addPosts(3, testNow.Add(-time.Hour), 1)
	f.credits.SetBalance("user-1", decimal.NewFromInt(5))
	f.gen.errs = []error{errBackendDown, errBackendDown}

	_, err := f.engine.Analyze(context.Background(), testSymbol, "user-1", Options{Quality: domain.QualityLow})
	require.ErrorIs(t, err, errBackendDown)

	balance, err := f.credits.GetBalance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(4)))
}

func TestAnalyzeSavesEventsBestEffort(t *testing.T) {
	f := newFixture(t)
	f.addPosts(3, testNow.Add(-time.Hour), 1)

	saver := &mockEventSaver{}
	saver.On("Save", mock.Anything, domain.Ticker{ID: "t-1", Symbol: testSymbol, Name: "Acme Corp"}, mock.AnythingOfType("string"), mock.MatchedBy(func(ev []domain.ExtractedEvent) bool {
		return len(ev) == 1 && ev[0].Title == "Q4 Earnings Call"
	})).Return(events.SaveResult{}, errors.New("events table locked"))
	f.engine.deps.Events = saver

	res, err := f.engine.Analyze(context.Background(), testSymbol, "", Options{})
	require.NoError(t, err)

	saver.AssertExpectations(t)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Len(t, f.repo.Analyses(), 1)
	assert.Equal(t, res.Analysis.ID, saver.Calls[0].Arguments.String(2))
}

func TestAnalyzeSkipRefresh(t *testing.T) {
	f := newFixture(t)
	f.addPosts(1, testNow.Add(-time.Hour), 1)

	_, err := f.engine.Analyze(context.Background(), testSymbol, "", Options{SkipRefresh: true})
	require.NoError(t, err)

	assert.Empty(t, f.ingest.pages)
}

func TestAnalyzeRejectsEmptySymbol(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Analyze(context.Background(), "  ", "", Options{})
	assert.ErrorIs(t, err, coreerrors.ErrInvalidInput)
}

func TestRetrySubsetIsStrictlySmaller(t *testing.T) {
	posts := make([]domain.Post, 0, 200)
	for i := 0; i < 200; i++ {
		posts = append(posts, domain.Post{ID: int64(i)})
	}

	for _, n := range []int{2, 3, 10, 50, 51, 150, 200} {
		got := retrySubset(posts[:n], defaultRetryPosts)
		assert.Less(t, len(got), n, "n=%d", n)
		assert.NotEmpty(t, got)
		assert.Equal(t, int64(0), got[0].ID, "subset keeps the top posts")
	}

	assert.Len(t, retrySubset(posts[:1], defaultRetryPosts), 1)
	assert.Len(t, retrySubset(posts[:150], defaultRetryPosts), 50)
}

func TestPromptIsCompact(t *testing.T) {
	f := newFixture(t)
	f.addPosts(2, testNow.Add(-time.Hour), 1)

	_, err := f.engine.Analyze(context.Background(), testSymbol, "", Options{})
	require.NoError(t, err)

	prompt := f.gen.prompts[0]
	assert.Contains(t, prompt, "1|user1|post number 1\n")
	assert.NotContains(t, prompt, "https://example.com")
	assert.True(t, strings.Index(prompt, "1|user1|") < strings.Index(prompt, "0|user0|"), "posts ordered by likes")
}
