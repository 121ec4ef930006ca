package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"canned", "openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// from the environment, applies defaults, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a validated configuration consisting only of defaults.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Validate checks that cfg contains a coherent set of values. It expects
// defaults to have been applied and returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	for _, fb := range cfg.Providers.LLMFallbacks {
		validateProviderName("llm", fb.Name)
	}
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for _, fb := range cfg.Providers.TTSFallbacks {
		validateProviderName("tts", fb.Name)
	}
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
	}
	for i, fb := range cfg.Providers.TTSFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts_fallbacks[%d].name is required", i))
		}
	}
	if len(cfg.Providers.TTSFallbacks) > 0 && cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts_fallbacks requires providers.tts"))
	}
	if cfg.Providers.TTS.Name != "" && cfg.Speech.VoiceID == "" {
		errs = append(errs, errors.New("speech.voice_id is required when providers.tts is configured"))
	}

	// Assistant
	if len(cfg.Assistant.WakePhrases) == 0 {
		errs = append(errs, errors.New("assistant.wake_phrases must not be empty"))
	}
	for i, p := range cfg.Assistant.WakePhrases {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("assistant.wake_phrases[%d] is empty", i))
		}
	}
	if tz := cfg.Assistant.Timezone; tz != "" && tz != "Local" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("assistant.timezone %q: %w", tz, err))
		}
	}

	errs = append(errs, validateListen(cfg.Listen)...)

	// Generation
	g := cfg.Generation
	if g.MaxChars <= 0 {
		errs = append(errs, fmt.Errorf("generation.max_chars must be positive, got %d", g.MaxChars))
	}
	if g.MinChars < 0 || (g.MaxChars > 0 && g.MinChars > g.MaxChars) {
		errs = append(errs, fmt.Errorf("generation.min_chars %d must be in [0, max_chars]", g.MinChars))
	}
	if g.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("generation.timeout must be positive, got %s", g.Timeout))
	}
	if g.EscalationThreshold < 0 {
		errs = append(errs, fmt.Errorf("generation.escalation_threshold must not be negative, got %d", g.EscalationThreshold))
	}

	// Memory
	m := cfg.Memory
	if m.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("memory.capacity must be positive, got %d", m.Capacity))
	}
	if m.TopicLimit <= 0 {
		errs = append(errs, fmt.Errorf("memory.topic_limit must be positive, got %d", m.TopicLimit))
	}
	switch {
	case !m.Backend.IsValid():
		errs = append(errs, fmt.Errorf("memory.backend %q is invalid; valid values: none, postgres, redis", m.Backend))
	case m.Backend == StorePostgres && m.PostgresDSN == "":
		errs = append(errs, errors.New("memory.postgres_dsn is required when memory.backend is postgres"))
	case m.Backend == StoreRedis && m.RedisURL == "":
		errs = append(errs, errors.New("memory.redis_url is required when memory.backend is redis"))
	}
	if m.Backend == StoreNone && (m.PostgresDSN != "" || m.RedisURL != "") {
		slog.Warn("memory connection settings are ignored because memory.backend is none")
	}

	// Lookup
	lk := cfg.Lookup
	if !lk.Weather.IsValid() {
		errs = append(errs, fmt.Errorf("lookup.weather %q is invalid; valid values: simulated, mcp", lk.Weather))
	}
	if !lk.Directions.IsValid() {
		errs = append(errs, fmt.Errorf("lookup.directions %q is invalid; valid values: simulated, mcp", lk.Directions))
	}
	if lk.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("lookup.timeout must be positive, got %s", lk.Timeout))
	}
	if lk.Weather == SourceMCP || lk.Directions == SourceMCP {
		srv := lk.MCP
		switch {
		case !srv.Transport.IsValid():
			errs = append(errs, fmt.Errorf("lookup.mcp.transport %q is invalid; valid values: stdio, streamable-http", srv.Transport))
		case srv.Transport == TransportStdio && srv.Command == "":
			errs = append(errs, errors.New("lookup.mcp.command is required when transport is stdio"))
		case srv.Transport == TransportStreamableHTTP && srv.URL == "":
			errs = append(errs, errors.New("lookup.mcp.url is required when transport is streamable-http"))
		}
	}

	if cfg.Speech.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("speech.timeout must be positive, got %s", cfg.Speech.Timeout))
	}

	return errors.Join(errs...)
}

func validateListen(l ListenConfig) []error {
	var errs []error
	if l.ConfidenceThreshold < 0 || l.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("listen.confidence_threshold %.2f is out of range [0, 1]", l.ConfidenceThreshold))
	}
	if l.MaxLowConfidence < 1 {
		errs = append(errs, fmt.Errorf("listen.max_low_confidence must be at least 1, got %d", l.MaxLowConfidence))
	}
	if l.WakeDebounce < 0 {
		errs = append(errs, fmt.Errorf("listen.wake_debounce must not be negative, got %s", l.WakeDebounce))
	}
	if l.CaptureTimeout <= 0 {
		errs = append(errs, fmt.Errorf("listen.capture_timeout must be positive, got %s", l.CaptureTimeout))
	}
	if l.RetryDelay <= 0 {
		errs = append(errs, fmt.Errorf("listen.retry_delay must be positive, got %s", l.RetryDelay))
	}
	if l.MaxRetryDelay < l.RetryDelay {
		errs = append(errs, fmt.Errorf("listen.max_retry_delay %s is shorter than retry_delay %s", l.MaxRetryDelay, l.RetryDelay))
	}
	if l.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("listen.max_retries must not be negative, got %d", l.MaxRetries))
	}
	if l.MinCommandLength < 0 {
		errs = append(errs, fmt.Errorf("listen.min_command_length must not be negative, got %d", l.MinCommandLength))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// parseBytes is LoadFromReader over an in-memory file.
func parseBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}
