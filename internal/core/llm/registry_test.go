package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

var errProviderDown = errors.New("provider down")

type fakeProvider struct {
	name     ProviderName
	priority int
	err      error
	text     string

	mu     sync.Mutex
	models []string
}

func (f *fakeProvider) Name() ProviderName { return f.name }
func (f *fakeProvider) IsAvailable() bool  { return true }
func (f *fakeProvider) Priority() int      { return f.priority }

func (f *fakeProvider) Complete(_ context.Context, _ string, model string) (Completion, error) {
	f.mu.Lock()
	f.models = append(f.models, model)
	f.mu.Unlock()

	if f.err != nil {
		return Completion{}, f.err
	}

	return Completion{Text: f.text, Model: model, PromptTokens: 10, CompletionTokens: 5}, nil
}

func (f *fakeProvider) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.models...)
}

type recordingUsage struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingUsage) RecordTokenUsage(provider, model, _ string, _, _ int, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := StatusSuccess
	if !success {
		status = StatusError
	}

	r.entries = append(r.entries, provider+"/"+model+"/"+status)
}

func newTestRegistry(usage UsageRecorder) *Registry {
	logger := zerolog.Nop()

	return NewRegistry(usage, &logger)
}

func TestRegistryFallsBackInQualityOrder(t *testing.T) {
	usage := &recordingUsage{}
	r := newTestRegistry(usage)

	google := &fakeProvider{name: ProviderGoogle, priority: PriorityPrimary, err: errProviderDown}
	anthropic := &fakeProvider{name: ProviderAnthropic, priority: PriorityFallback, text: `{"ok":true}`}

	r.Register(google, CircuitBreakerConfig{})
	r.Register(anthropic, CircuitBreakerConfig{})

	resp, err := r.Generate(context.Background(), Request{Prompt: "analyze", Quality: domain.QualityHigh})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if resp.Text != `{"ok":true}` {
		t.Errorf("Text = %q", resp.Text)
	}

	if got := google.calls(); len(got) != 1 || got[0] != "gemini-2.5-pro" {
		t.Errorf("google calls = %v, want [gemini-2.5-pro]", got)
	}

	if got := anthropic.calls(); len(got) != 1 || got[0] != "claude-sonnet-4-5" {
		t.Errorf("anthropic calls = %v, want [claude-sonnet-4-5]", got)
	}

	wantModels := []string{"gemini-2.5-pro", "claude-sonnet-4-5"}
	if len(resp.ModelsUsed) != len(wantModels) {
		t.Fatalf("ModelsUsed = %v, want %v", resp.ModelsUsed, wantModels)
	}

	for i := range wantModels {
		if resp.ModelsUsed[i] != wantModels[i] {
			t.Errorf("ModelsUsed[%d] = %q, want %q", i, resp.ModelsUsed[i], wantModels[i])
		}
	}

	if resp.TokensIn != 10 || resp.TokensOut != 5 {
		t.Errorf("tokens = %d/%d, want 10/5", resp.TokensIn, resp.TokensOut)
	}

	if len(usage.entries) != 2 {
		t.Errorf("usage entries = %v, want one failure and one success", usage.entries)
	}
}

func TestRegistryPreferredProviderFirst(t *testing.T) {
	r := newTestRegistry(nil)

	google := &fakeProvider{name: ProviderGoogle, priority: PriorityPrimary, text: "g"}
	openai := &fakeProvider{name: ProviderOpenAI, priority: PrioritySecondFallback, text: "o"}

	r.Register(google, CircuitBreakerConfig{})
	r.Register(openai, CircuitBreakerConfig{})

	resp, err := r.Generate(context.Background(), Request{Prompt: "p", Provider: ProviderOpenAI, Quality: domain.QualityStandard})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if resp.Text != "o" {
		t.Errorf("Text = %q, want preferred provider output", resp.Text)
	}

	if len(google.calls()) != 0 {
		t.Error("google should not be called when preferred provider succeeds")
	}
}

func TestRegistryModelOverrideAppliesToMatchingProvider(t *testing.T) {
	r := newTestRegistry(nil)

	google := &fakeProvider{name: ProviderGoogle, priority: PriorityPrimary, text: "g"}
	r.Register(google, CircuitBreakerConfig{})

	if _, err := r.Generate(context.Background(), Request{Prompt: "p", Model: "gemini-2.5-flash-lite"}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if got := google.calls(); len(got) != 1 || got[0] != "gemini-2.5-flash-lite" {
		t.Errorf("google calls = %v, want override model", got)
	}
}

func TestRegistryAllProvidersFail(t *testing.T) {
	r := newTestRegistry(nil)
	r.Register(&fakeProvider{name: ProviderGoogle, priority: PriorityPrimary, err: errProviderDown}, CircuitBreakerConfig{})

	_, err := r.Generate(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("Generate() error = %v, want ErrAllProvidersFailed", err)
	}

	if !errors.Is(err, errProviderDown) {
		t.Errorf("Generate() error should wrap the last provider error, got %v", err)
	}
}

func TestRegistryNoProviders(t *testing.T) {
	r := newTestRegistry(nil)

	_, err := r.Generate(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, ErrNoProvidersAvailable) {
		t.Fatalf("Generate() error = %v, want ErrNoProvidersAvailable", err)
	}
}

func TestRegistryEmptyPrompt(t *testing.T) {
	r := newTestRegistry(nil)
	r.Register(NewMockProvider(), CircuitBreakerConfig{})

	_, err := r.Generate(context.Background(), Request{Prompt: "  "})
	if !errors.Is(err, coreerrors.ErrInvalidInput) {
		t.Fatalf("Generate() error = %v, want ErrInvalidInput", err)
	}
}

func TestRegistrySkipsOpenCircuit(t *testing.T) {
	r := newTestRegistry(nil)

	google := &fakeProvider{name: ProviderGoogle, priority: PriorityPrimary, err: errProviderDown}
	mock := NewMockProvider()

	r.Register(google, CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Hour})
	r.Register(mock, CircuitBreakerConfig{})

	for i := 0; i < 3; i++ {
		if _, err := r.Generate(context.Background(), Request{Prompt: "p"}); err != nil {
			t.Fatalf("Generate() #%d error = %v", i, err)
		}
	}

	if got := len(google.calls()); got != 1 {
		t.Errorf("google called %d times, want 1 before circuit opened", got)
	}

	for _, s := range r.GetProviderStatuses() {
		if s.Name == ProviderGoogle && s.CircuitBreakerOK {
			t.Error("google circuit should report open")
		}
	}
}

func TestMockProviderReturnsParsableJSON(t *testing.T) {
	c, err := NewMockProvider().Complete(context.Background(), "prompt words here", "")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if _, ok := ExtractJSONObject(c.Text); !ok {
		t.Errorf("mock output is not a JSON object: %q", c.Text)
	}
}
