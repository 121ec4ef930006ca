package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/maxassist/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string // substring; empty means valid
	}{
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: bananas\n",
			wantErr: "server.log_level",
		},
		{
			name:    "tls needs both files",
			yaml:    "server:\n  tls:\n    cert_file: cert.pem\n",
			wantErr: "server.tls",
		},
		{
			name:    "fallback without name",
			yaml:    "providers:\n  llm_fallbacks:\n    - model: llama3\n",
			wantErr: "llm_fallbacks[0].name",
		},
		{
			name:    "tts without voice",
			yaml:    "providers:\n  tts:\n    name: elevenlabs\n",
			wantErr: "speech.voice_id",
		},
		{
			name:    "blank wake phrase",
			yaml:    "assistant:\n  wake_phrases: [\"hey max\", \" \"]\n",
			wantErr: "wake_phrases[1]",
		},
		{
			name:    "unknown timezone",
			yaml:    "assistant:\n  timezone: Mars/Olympus\n",
			wantErr: "assistant.timezone",
		},
		{
			name:    "confidence out of range",
			yaml:    "listen:\n  confidence_threshold: 1.5\n",
			wantErr: "confidence_threshold",
		},
		{
			name:    "max retry delay below retry delay",
			yaml:    "listen:\n  retry_delay: 10s\n  max_retry_delay: 5s\n",
			wantErr: "max_retry_delay",
		},
		{
			name:    "min chars above max chars",
			yaml:    "generation:\n  max_chars: 10\n  min_chars: 20\n",
			wantErr: "min_chars",
		},
		{
			name:    "invalid backend",
			yaml:    "memory:\n  backend: mongo\n",
			wantErr: "memory.backend",
		},
		{
			name:    "postgres without dsn",
			yaml:    "memory:\n  backend: postgres\n",
			wantErr: "postgres_dsn",
		},
		{
			name:    "redis without url",
			yaml:    "memory:\n  backend: redis\n",
			wantErr: "redis_url",
		},
		{
			name:    "invalid lookup source",
			yaml:    "lookup:\n  weather: oracle\n",
			wantErr: "lookup.weather",
		},
		{
			name:    "mcp invalid transport",
			yaml:    "lookup:\n  weather: mcp\n  mcp:\n    transport: carrier-pigeon\n",
			wantErr: "lookup.mcp.transport",
		},
		{
			name:    "mcp stdio without command",
			yaml:    "lookup:\n  directions: mcp\n  mcp:\n    transport: stdio\n",
			wantErr: "lookup.mcp.command",
		},
		{
			name:    "mcp http without url",
			yaml:    "lookup:\n  weather: mcp\n  mcp:\n    transport: streamable-http\n",
			wantErr: "lookup.mcp.url",
		},
		{
			name: "redis backend with url",
			yaml: "memory:\n  backend: redis\n  redis_url: redis://localhost:6379/0\n",
		},
		{
			name: "mcp stdio with command",
			yaml: "lookup:\n  weather: mcp\n  mcp:\n    transport: stdio\n    command: weather-server\n",
		},
		{
			name: "unknown provider name only warns",
			yaml: "providers:\n  llm:\n    name: my-custom-llm\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
memory:
  backend: postgres
listen:
  confidence_threshold: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"log_level", "postgres_dsn", "confidence_threshold"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("assistant:\n  name: Jarvis\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Assistant.Name != "Jarvis" {
		t.Errorf("name: got %q, want %q", cfg.Assistant.Name, "Jarvis")
	}
	if !strings.Contains(cfg.Generation.SystemPrompt, "Jarvis") {
		t.Errorf("system prompt should use the configured name, got %q", cfg.Generation.SystemPrompt)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"llm", "tts"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
}
