package generate_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/maxassist/internal/generate"
	"github.com/MrWong99/maxassist/internal/observe"
	"github.com/MrWong99/maxassist/pkg/provider/llm"
	llmmock "github.com/MrWong99/maxassist/pkg/provider/llm/mock"
)

func readyModel(t *testing.T, p *llmmock.Provider, opts ...generate.Option) *generate.Model {
	t.Helper()
	m := generate.New(p, opts...)
	if err := m.Warmup(context.Background()); err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	return m
}

func TestModel_NotReadyBeforeWarmup(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "hi"}}
	m := generate.New(p)

	if got := m.Status(); got != generate.StatusNotLoaded {
		t.Errorf("Status() = %q, want not_loaded", got)
	}
	if _, err := m.Generate(context.Background(), generate.Request{Prompt: "hello"}); !errors.Is(err, generate.ErrNotReady) {
		t.Errorf("Generate err = %v, want ErrNotReady", err)
	}
	if len(p.CompleteCalls) != 0 {
		t.Errorf("provider called %d times before warm-up", len(p.CompleteCalls))
	}
}

func TestModel_Warmup(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Hi"}}
	m := readyModel(t, p)

	if got := m.Status(); got != generate.StatusReady {
		t.Fatalf("Status() = %q, want ready", got)
	}
	if len(p.CompleteCalls) != 1 {
		t.Fatalf("warm-up calls = %d, want 1", len(p.CompleteCalls))
	}
	req := p.CompleteCalls[0].Req
	if req.MaxTokens != 5 {
		t.Errorf("warm-up MaxTokens = %d, want 5", req.MaxTokens)
	}
	want := []llm.Message{{Role: llm.RoleUser, Content: "Hello"}}
	if diff := cmp.Diff(want, req.Messages); diff != "" {
		t.Errorf("warm-up messages mismatch (-want +got):\n%s", diff)
	}
}

func TestModel_WarmupFailureAndRetry(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	p := &llmmock.Provider{CompleteErr: boom}
	m := generate.New(p)

	if err := m.Warmup(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Warmup err = %v, want %v", err, boom)
	}
	if got := m.Status(); got != generate.StatusError {
		t.Errorf("Status() = %q, want error", got)
	}
	if !errors.Is(m.LastError(), boom) {
		t.Errorf("LastError() = %v", m.LastError())
	}
	if _, err := m.Generate(context.Background(), generate.Request{Prompt: "x"}); !errors.Is(err, generate.ErrNotReady) {
		t.Errorf("Generate err = %v, want ErrNotReady", err)
	}

	p.SetResponse(&llm.CompletionResponse{Content: "ok"}, nil)
	if err := m.Warmup(context.Background()); err != nil {
		t.Fatalf("second Warmup: %v", err)
	}
	if !m.Ready() {
		t.Error("model not ready after successful retry")
	}
	if m.LastError() != nil {
		t.Errorf("LastError() = %v after recovery", m.LastError())
	}
}

func TestModel_Generate_BuildsRequest(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  Paris is lovely.  "}}
	m := readyModel(t, p, generate.WithSystemPrompt("You are Max."), generate.WithMaxTokens(64))

	got, err := m.Generate(context.Background(), generate.Request{
		Prompt:  "tell me about paris",
		History: []generate.Turn{{User: "hi", Assistant: "Hello!"}},
		Notes:   []string{"The user's name is Alex."},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Paris is lovely." {
		t.Errorf("reply = %q", got)
	}

	req := p.CompleteCalls[1].Req
	if req.SystemPrompt != "You are Max.\nThe user's name is Alex." {
		t.Errorf("SystemPrompt = %q", req.SystemPrompt)
	}
	if req.MaxTokens != 64 {
		t.Errorf("MaxTokens = %d, want 64", req.MaxTokens)
	}
	wantMsgs := []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "Hello!"},
		{Role: llm.RoleUser, Content: "tell me about paris"},
	}
	if diff := cmp.Diff(wantMsgs, req.Messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestModel_Generate_MaxTokensOverride(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	m := readyModel(t, p)

	if _, err := m.Generate(context.Background(), generate.Request{Prompt: "x", MaxTokens: 20}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := p.CompleteCalls[1].Req.MaxTokens; got != 20 {
		t.Errorf("MaxTokens = %d, want 20", got)
	}
	if _, err := m.Generate(context.Background(), generate.Request{Prompt: "y"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := p.CompleteCalls[2].Req.MaxTokens; got != 200 {
		t.Errorf("default MaxTokens = %d, want 200", got)
	}
}

func TestModel_Generate_Truncates(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: strings.Repeat("a", 50)}}
	m := readyModel(t, p, generate.WithMaxChars(10))

	got, err := m.Generate(context.Background(), generate.Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "aaaaaaaaaa..." {
		t.Errorf("reply = %q", got)
	}
}

func TestModel_Generate_Timeout(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ready"}}
	m := readyModel(t, p, generate.WithTimeout(30*time.Millisecond))

	p.CompleteFunc = func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	start := time.Now()
	_, err := m.Generate(context.Background(), generate.Request{Prompt: "slow"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Generate took %v, deadline not enforced", elapsed)
	}
	if !m.Ready() {
		t.Error("a failed generation must not change readiness")
	}
}

func TestModel_Generate_NilResponse(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	m := readyModel(t, p)
	p.SetResponse(nil, nil)

	if _, err := m.Generate(context.Background(), generate.Request{Prompt: "x"}); err == nil {
		t.Error("expected error for nil response")
	}
}

func TestModel_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	m := readyModel(t, p, generate.WithMetrics(met), generate.WithProviderName("openai"))
	if _, err := m.Generate(context.Background(), generate.Request{Prompt: "x"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var count uint64
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			if mt.Name != "maxassist.generation.duration" {
				continue
			}
			for _, dp := range mt.Data.(metricdata.Histogram[float64]).DataPoints {
				count += dp.Count
			}
		}
	}
	if count != 2 {
		t.Errorf("generation samples = %d, want 2 (warm-up + generate)", count)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short", in: "hello", max: 10, want: "hello"},
		{name: "exact", in: "hello", max: 5, want: "hello"},
		{name: "cut", in: "hello world", max: 5, want: "hello..."},
		{name: "runes", in: "héllo wörld", max: 7, want: "héllo w..."},
		{name: "disabled", in: "hello", max: 0, want: "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := generate.Truncate(tt.in, tt.max); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}
