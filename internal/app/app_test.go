package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/MrWong99/maxassist/internal/app"
	"github.com/MrWong99/maxassist/internal/config"
	"github.com/MrWong99/maxassist/internal/lookup"
	memorymock "github.com/MrWong99/maxassist/pkg/memory/mock"
	"github.com/MrWong99/maxassist/pkg/provider/llm"
	llmmock "github.com/MrWong99/maxassist/pkg/provider/llm/mock"
	ttsmock "github.com/MrWong99/maxassist/pkg/provider/tts/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testConfig returns a defaulted config for tests.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Assistant.Timezone = "UTC"
	return cfg
}

// testProviders returns providers with mock LLM/TTS.
func testProviders() *app.Providers {
	return &app.Providers{
		LLM: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Hello there."}},
		TTS: &ttsmock.Provider{SynthesizeChunks: [][]byte{{1, 2}}},
	}
}

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error: %v", err)
		}
	})
	return a
}

func checkNames(a *app.App) []string {
	var names []string
	for _, c := range a.Checkers() {
		names = append(names, c.Name)
	}
	return names
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), testProviders(), app.WithArchive(&memorymock.Store{}))

	if a.Resolver() == nil {
		t.Fatal("Resolver() = nil")
	}
	got := checkNames(a)
	if len(got) != 2 || got[0] != "model" || got[1] != "archive" {
		t.Errorf("checkers = %v, want [model archive]", got)
	}
}

func TestNew_NoProviders(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), nil)

	if got := checkNames(a); len(got) != 0 {
		t.Errorf("checkers = %v, want none", got)
	}

	// Escalation degrades without a model; templates still answer.
	s, err := a.Sessions().Open(app.OpenRequest{})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	drain(s)
	r, err := s.Submit(context.Background(), "what is 6 times 7")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if r.Text != "6 multiplied by 7 equals 42" {
		t.Errorf("reply = %q", r.Text)
	}
}

func TestNew_ArchiveConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend config.StoreBackend
	}{
		{name: "postgres without dsn", backend: config.StorePostgres},
		{name: "redis without url", backend: config.StoreRedis},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			cfg.Memory.Backend = tt.backend
			if _, err := app.New(context.Background(), cfg, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_InjectedLookups(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	// MCP would need a server; injected sources take precedence.
	cfg.Lookup.Weather = config.SourceMCP
	cfg.Lookup.Directions = config.SourceMCP
	sim := lookup.NewSimulator()

	a := newApp(t, cfg, nil, app.WithWeather(sim), app.WithDirections(sim))
	s, err := a.Sessions().Open(app.OpenRequest{})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	drain(s)
	r, err := s.Submit(context.Background(), "what's the weather in Paris")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if r.Intent != "weather" {
		t.Errorf("Intent = %q, want weather", r.Intent)
	}
}

func TestApp_RunWarmsModel(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), testProviders())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	model := a.Checkers()[0]
	deadline := time.Now().Add(5 * time.Second)
	for model.Check(context.Background()) != nil {
		if time.Now().After(deadline) {
			t.Fatal("model never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}
}

func TestApp_RunWithoutWarmup(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	off := false
	cfg.Generation.Warmup = &off
	providers := testProviders()
	a := newApp(t, cfg, providers)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = a.Run(ctx)

	if n := len(providers.LLM.(*llmmock.Provider).Calls()); n != 0 {
		t.Errorf("LLM called %d times, want 0", n)
	}
}

func TestApp_ShutdownClosesSessions(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), testProviders())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	s, err := a.Sessions().Open(app.OpenRequest{})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	drain(s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	select {
	case <-s.Done():
	default:
		t.Error("session still running after Shutdown")
	}
	if _, err := a.Sessions().Open(app.OpenRequest{}); !errors.Is(err, app.ErrManagerClosed) {
		t.Errorf("Open() after Shutdown = %v, want ErrManagerClosed", err)
	}
	// Idempotent.
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() = %v", err)
	}
}

func TestApp_ReloadGeneration(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	a := newApp(t, cfg, testProviders())
	before := a.Resolver()

	same := *cfg
	a.Reload(cfg, &same)
	if a.Resolver() != before {
		t.Error("resolver replaced without a generation change")
	}

	next := *cfg
	next.Generation.EscalationThreshold = 4
	a.Reload(cfg, &next)
	if a.Resolver() == before {
		t.Error("resolver not replaced after a generation change")
	}
}
