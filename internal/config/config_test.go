package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/maxassist/internal/config"
	"github.com/MrWong99/maxassist/pkg/provider/llm"
	llmmock "github.com/MrWong99/maxassist/pkg/provider/llm/mock"
	"github.com/MrWong99/maxassist/pkg/provider/tts"
	ttsmock "github.com/MrWong99/maxassist/pkg/provider/tts/mock"
	"github.com/google/go-cmp/cmp"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  llm_fallbacks:
    - name: ollama
      model: llama3
  tts:
    name: elevenlabs
    api_key: xi-test
assistant:
  name: Max
  wake_phrases: ["hey max", "max"]
  default_location: Berlin
  timezone: UTC
listen:
  confidence_threshold: 0.5
  capture_timeout: 10s
generation:
  max_chars: 150
memory:
  capacity: 20
  backend: postgres
  postgres_dsn: "postgres://localhost/maxassist"
speech:
  voice_id: voice-1
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm.model: got %q", cfg.Providers.LLM.Model)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "ollama" {
		t.Errorf("llm_fallbacks: got %+v", cfg.Providers.LLMFallbacks)
	}
	if diff := cmp.Diff([]string{"hey max", "max"}, cfg.Assistant.WakePhrases); diff != "" {
		t.Errorf("wake_phrases mismatch (-want +got):\n%s", diff)
	}
	if cfg.Listen.ConfidenceThreshold != 0.5 {
		t.Errorf("confidence_threshold: got %v, want 0.5", cfg.Listen.ConfidenceThreshold)
	}
	if cfg.Listen.CaptureTimeout != 10*time.Second {
		t.Errorf("capture_timeout: got %s, want 10s", cfg.Listen.CaptureTimeout)
	}
	// Unset values pick up defaults.
	if cfg.Listen.MaxLowConfidence != 3 {
		t.Errorf("max_low_confidence: got %d, want 3", cfg.Listen.MaxLowConfidence)
	}
	if cfg.Generation.MaxChars != 150 {
		t.Errorf("generation.max_chars: got %d, want 150", cfg.Generation.MaxChars)
	}
	if cfg.Memory.Capacity != 20 || cfg.Memory.Backend != config.StorePostgres {
		t.Errorf("memory: got %+v", cfg.Memory)
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty config should be valid, got: %v", err)
	}
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Errorf("empty config differs from Default() (-want +got):\n%s", diff)
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()
	cfg := config.Default()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"listen_addr", cfg.Server.ListenAddr, ":8080"},
		{"log_level", cfg.Server.LogLevel, config.LogInfo},
		{"assistant.name", cfg.Assistant.Name, "Max"},
		{"wake_phrases", len(cfg.Assistant.WakePhrases), len(config.DefaultWakePhrases)},
		{"confidence_threshold", cfg.Listen.ConfidenceThreshold, 0.3},
		{"capture_timeout", cfg.Listen.CaptureTimeout, 15 * time.Second},
		{"wake_debounce", cfg.Listen.WakeDebounce, 3 * time.Second},
		{"generation.max_chars", cfg.Generation.MaxChars, 200},
		{"generation.timeout", cfg.Generation.Timeout, 5 * time.Second},
		{"escalation_threshold", cfg.Generation.EscalationThreshold, 1},
		{"memory.capacity", cfg.Memory.Capacity, 10},
		{"memory.topic_limit", cfg.Memory.TopicLimit, 5},
		{"memory.backend", cfg.Memory.Backend, config.StoreNone},
		{"lookup.weather", cfg.Lookup.Weather, config.SourceSimulated},
		{"lookup.mcp.weather_tool", cfg.Lookup.MCP.WeatherTool, "get_weather"},
		{"speech.timeout", cfg.Speech.Timeout, 20 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if !cfg.Generation.IsEnabled() || !cfg.Generation.WarmupEnabled() {
		t.Error("generation and warmup should default to enabled")
	}
	if !strings.Contains(cfg.Generation.SystemPrompt, "Max") {
		t.Errorf("system prompt should name the assistant, got %q", cfg.Generation.SystemPrompt)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_PreservesDisabledGeneration(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("generation:\n  enabled: false\n  warmup: false\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Generation.IsEnabled() {
		t.Error("generation should be disabled")
	}
	if cfg.Generation.WarmupEnabled() {
		t.Error("warmup should be disabled")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("assistant:\n  nmae: Max\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("MAXASSIST_TEST_KEY", "sk-from-env")
	cfg, err := config.LoadFromReader(strings.NewReader("providers:\n  llm:\n    name: openai\n    api_key: ${MAXASSIST_TEST_KEY}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "sk-from-env" {
		t.Errorf("api_key: got %q, want %q", cfg.Providers.LLM.APIKey, "sk-from-env")
	}
}

// ── Registry ──────────────────────────────────────────────────────────────────

func TestRegistry_UnknownLLM(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	_, err := r.CreateLLM(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_UnknownTTS(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	_, err := r.CreateTTS(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_RegisteredLLM(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	want := &llmmock.Provider{}
	var gotEntry config.ProviderEntry
	r.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return want, nil
	})

	p, err := r.CreateLLM(config.ProviderEntry{Name: "stub", Model: "m1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != want {
		t.Error("expected the factory's provider to be returned")
	}
	if gotEntry.Model != "m1" {
		t.Errorf("factory received model %q, want %q", gotEntry.Model, "m1")
	}
}

func TestRegistry_RegisteredTTS(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterTTS("stub", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})
	if _, err := r.CreateTTS(config.ProviderEntry{Name: "stub"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	boom := errors.New("boom")
	r.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, boom
	})
	if _, err := r.CreateLLM(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("expected factory error, got: %v", err)
	}
}

func TestRegistry_LLMNames(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	for _, n := range []string{"openai", "canned", "ollama"} {
		r.RegisterLLM(n, func(config.ProviderEntry) (llm.Provider, error) { return nil, nil })
	}
	if diff := cmp.Diff([]string{"canned", "ollama", "openai"}, r.LLMNames()); diff != "" {
		t.Errorf("LLMNames mismatch (-want +got):\n%s", diff)
	}
}
