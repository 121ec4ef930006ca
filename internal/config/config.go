// Package config provides the configuration schema, loader, watcher, and
// provider registry for the maxassist voice assistant.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StoreBackend selects where the exchange archive lives.
type StoreBackend string

const (
	StoreNone     StoreBackend = "none"
	StorePostgres StoreBackend = "postgres"
	StoreRedis    StoreBackend = "redis"
)

// IsValid reports whether b is a recognised backend.
func (b StoreBackend) IsValid() bool {
	switch b {
	case StoreNone, StorePostgres, StoreRedis:
		return true
	}
	return false
}

// LookupSource selects the implementation behind a structured-data lookup.
type LookupSource string

const (
	// SourceSimulated produces plausible random data locally.
	SourceSimulated LookupSource = "simulated"

	// SourceMCP calls a tool on the configured MCP server.
	SourceMCP LookupSource = "mcp"
)

// IsValid reports whether s is a recognised source.
func (s LookupSource) IsValid() bool {
	return s == SourceSimulated || s == SourceMCP
}

// MCPTransport identifies how to reach an MCP server.
type MCPTransport string

const (
	TransportStdio          MCPTransport = "stdio"
	TransportStreamableHTTP MCPTransport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t MCPTransport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Listen     ListenConfig     `yaml:"listen"`
	Generation GenerationConfig `yaml:"generation"`
	Memory     MemoryConfig     `yaml:"memory"`
	Lookup     LookupConfig     `yaml:"lookup"`
	Speech     SpeechConfig     `yaml:"speech"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares which backend implementation to use for text
// generation and speech synthesis. Each entry selects a named provider
// registered in the [Registry].
type ProvidersConfig struct {
	// LLM is the primary generator. When empty, the offline "canned" model is
	// used.
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when the primary generator fails.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// TTS is optional. When empty, replies are text only.
	TTS ProviderEntry `yaml:"tts"`

	// TTSFallbacks are tried in order when the primary synthesiser fails
	// to start a stream.
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// AssistantConfig describes the assistant's identity and locale.
type AssistantConfig struct {
	// Name is how the assistant refers to itself.
	Name string `yaml:"name"`

	// WakePhrases are the activation phrases, matched case-insensitively as
	// substrings. They are also stripped from captured commands.
	WakePhrases []string `yaml:"wake_phrases"`

	// DefaultLocation is used for weather when the user names no place and no
	// location has been learned.
	DefaultLocation string `yaml:"default_location"`

	// Timezone is an IANA zone name for time and date replies, or "Local".
	Timezone string `yaml:"timezone"`

	// Language is the BCP-47 recognition language hint (e.g., "en-US").
	Language string `yaml:"language"`
}

// ListenConfig tunes the wake-word and continuous-listening state machine.
// All fields are hot-reloadable.
type ListenConfig struct {
	// ConfidenceThreshold is the minimum recognition confidence for a command
	// to be accepted directly.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// MaxLowConfidence is how many consecutive low-confidence results are
	// tolerated before a non-trivial transcript is force-accepted.
	MaxLowConfidence int `yaml:"max_low_confidence"`

	// WakeDebounce suppresses repeated wake events within this window.
	WakeDebounce time.Duration `yaml:"wake_debounce"`

	// CaptureTimeout returns the machine to idle when no command arrives.
	CaptureTimeout time.Duration `yaml:"capture_timeout"`

	// RetryDelay is the initial delay before restarting recognition after a
	// transient error.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// MaxRetryDelay caps the exponential restart backoff.
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"`

	// MaxRetries is how many consecutive transient failures are retried
	// before listening stops. Zero retries forever.
	MaxRetries int `yaml:"max_retries"`

	// InterimResults lets non-final results complete commands. Wake
	// detection always considers interim results.
	InterimResults bool `yaml:"interim_results"`

	// FuzzyWake enables phonetic wake-phrase matching for mis-heard phrases.
	FuzzyWake bool `yaml:"fuzzy_wake"`

	// MinCommandLength is the minimum length of the stripped command text;
	// shorter residuals are not commands.
	MinCommandLength int `yaml:"min_command_length"`
}

// GenerationConfig tunes the generative response collaborator.
type GenerationConfig struct {
	// Enabled turns generative escalation on. When false, escalation paths
	// answer from the fallback pool directly.
	Enabled *bool `yaml:"enabled"`

	// SystemPrompt is sent with every generation request.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxTokens caps completion tokens per request.
	MaxTokens int `yaml:"max_tokens"`

	// MaxChars truncates generated replies (an ellipsis is appended).
	MaxChars int `yaml:"max_chars"`

	// MinChars is the shortest generated reply accepted; anything shorter is
	// treated as degenerate.
	MinChars int `yaml:"min_chars"`

	// Timeout is the hard deadline for a single generation.
	Timeout time.Duration `yaml:"timeout"`

	// EscalationThreshold: once the consecutive-fallback count exceeds this
	// value, every turn escalates to generation.
	EscalationThreshold int `yaml:"escalation_threshold"`

	// Warmup runs a tiny generation at start-up to move the model to ready.
	Warmup *bool `yaml:"warmup"`
}

// IsEnabled reports whether generation is enabled (default true).
func (g GenerationConfig) IsEnabled() bool { return g.Enabled == nil || *g.Enabled }

// WarmupEnabled reports whether start-up warm-up is enabled (default true).
func (g GenerationConfig) WarmupEnabled() bool { return g.Warmup == nil || *g.Warmup }

// MemoryConfig sizes conversation memory and selects the exchange archive.
type MemoryConfig struct {
	// Capacity is the number of exchanges kept in conversation memory.
	Capacity int `yaml:"capacity"`

	// TopicLimit is the number of distinct recent topics remembered.
	TopicLimit int `yaml:"topic_limit"`

	// Backend selects the exchange archive.
	Backend StoreBackend `yaml:"backend"`

	// PostgresDSN is the connection string used when Backend is "postgres".
	PostgresDSN string `yaml:"postgres_dsn"`

	// RedisURL is the server URL used when Backend is "redis"
	// (e.g., "redis://localhost:6379/0").
	RedisURL string `yaml:"redis_url"`

	// Retention caps archived exchanges per session (Redis only).
	Retention int `yaml:"retention"`
}

// LookupConfig selects the weather and directions data sources.
type LookupConfig struct {
	Weather    LookupSource    `yaml:"weather"`
	Directions LookupSource    `yaml:"directions"`
	Timeout    time.Duration   `yaml:"timeout"`
	MCP        MCPServerConfig `yaml:"mcp"`
}

// MCPServerConfig describes how to reach the MCP server that serves lookups.
type MCPServerConfig struct {
	// Name identifies the server in logs.
	Name string `yaml:"name"`

	// Transport is "stdio" or "streamable-http".
	Transport MCPTransport `yaml:"transport"`

	// Command is the executable (with arguments) launched for stdio.
	Command string `yaml:"command"`

	// URL is the endpoint for streamable-http.
	URL string `yaml:"url"`

	// Env holds extra environment variables for the stdio subprocess.
	Env map[string]string `yaml:"env"`

	// WeatherTool is the tool called for weather lookups.
	WeatherTool string `yaml:"weather_tool"`

	// DirectionsTool is the tool called for directions lookups.
	DirectionsTool string `yaml:"directions_tool"`
}

// SpeechConfig configures speech output.
type SpeechConfig struct {
	// VoiceID is the provider-specific voice used for replies.
	VoiceID string `yaml:"voice_id"`

	// Timeout is the hard deadline for synthesising one reply.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultWakePhrases are used when assistant.wake_phrases is empty.
var DefaultWakePhrases = []string{
	"hey max", "wake up max", "good morning max", "hi max", "hello max", "okay max", "max",
}

// ApplyDefaults fills zero values in cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	a := &cfg.Assistant
	if a.Name == "" {
		a.Name = "Max"
	}
	if len(a.WakePhrases) == 0 {
		a.WakePhrases = append([]string(nil), DefaultWakePhrases...)
	}
	if a.Timezone == "" {
		a.Timezone = "Local"
	}
	if a.Language == "" {
		a.Language = "en-US"
	}

	l := &cfg.Listen
	if l.ConfidenceThreshold == 0 {
		l.ConfidenceThreshold = 0.3
	}
	if l.MaxLowConfidence == 0 {
		l.MaxLowConfidence = 3
	}
	if l.WakeDebounce == 0 {
		l.WakeDebounce = 3 * time.Second
	}
	if l.CaptureTimeout == 0 {
		l.CaptureTimeout = 15 * time.Second
	}
	if l.RetryDelay == 0 {
		l.RetryDelay = 2 * time.Second
	}
	if l.MaxRetryDelay == 0 {
		l.MaxRetryDelay = 30 * time.Second
	}
	if l.MaxRetries == 0 {
		l.MaxRetries = 10
	}
	if l.MinCommandLength == 0 {
		l.MinCommandLength = 3
	}

	g := &cfg.Generation
	if g.SystemPrompt == "" {
		g.SystemPrompt = "You are " + a.Name + ", a friendly voice assistant. Answer in one or two short spoken sentences."
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = 200
	}
	if g.MaxChars == 0 {
		g.MaxChars = 200
	}
	if g.MinChars == 0 {
		g.MinChars = 8
	}
	if g.Timeout == 0 {
		g.Timeout = 5 * time.Second
	}
	if g.EscalationThreshold == 0 {
		g.EscalationThreshold = 1
	}

	m := &cfg.Memory
	if m.Capacity == 0 {
		m.Capacity = 10
	}
	if m.TopicLimit == 0 {
		m.TopicLimit = 5
	}
	if m.Backend == "" {
		m.Backend = StoreNone
	}
	if m.Retention == 0 {
		m.Retention = 100
	}

	lk := &cfg.Lookup
	if lk.Weather == "" {
		lk.Weather = SourceSimulated
	}
	if lk.Directions == "" {
		lk.Directions = SourceSimulated
	}
	if lk.Timeout == 0 {
		lk.Timeout = 5 * time.Second
	}
	if lk.MCP.Name == "" {
		lk.MCP.Name = "lookup"
	}
	if lk.MCP.WeatherTool == "" {
		lk.MCP.WeatherTool = "get_weather"
	}
	if lk.MCP.DirectionsTool == "" {
		lk.MCP.DirectionsTool = "get_directions"
	}

	if cfg.Speech.Timeout == 0 {
		cfg.Speech.Timeout = 20 * time.Second
	}
}
