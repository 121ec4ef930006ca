// Package generate wraps a text-generation backend as the assistant's
// generative response collaborator.
//
// A [Model] tracks whether the backend is usable ([Status]) and enforces the
// limits every generation must respect: a hard wall-clock deadline, a token
// cap and a character cap. A model that is not ready answers with
// [ErrNotReady]; callers treat that as a normal outcome and degrade to
// templated text.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/maxassist/internal/observe"
	"github.com/MrWong99/maxassist/pkg/provider/llm"
)

// ErrNotReady is returned by [Model.Generate] when the model has not
// completed warm-up or its last warm-up failed.
var ErrNotReady = errors.New("generate: model not ready")

// Status is the lifecycle state of a [Model].
type Status string

const (
	StatusNotLoaded Status = "not_loaded"
	StatusLoading   Status = "loading"
	StatusReady     Status = "ready"
	StatusError     Status = "error"
)

const (
	defaultMaxTokens = 200
	defaultMaxChars  = 200
	defaultTimeout   = 5 * time.Second

	warmupPrompt    = "Hello"
	warmupMaxTokens = 5
	ellipsis        = "..."
)

// Turn is one earlier exchange given to the model as context.
type Turn struct {
	User      string
	Assistant string
}

// Request is a single generation.
type Request struct {
	// Prompt is the user's utterance.
	Prompt string

	// MaxTokens overrides the model's token cap when positive.
	MaxTokens int

	// History holds earlier exchanges, oldest first.
	History []Turn

	// Notes are short facts appended to the system prompt, such as the
	// user's name.
	Notes []string
}

// Option configures a [Model].
type Option func(*Model)

// WithSystemPrompt sets the instruction sent with every request.
func WithSystemPrompt(p string) Option {
	return func(m *Model) { m.systemPrompt = p }
}

// WithMaxTokens sets the default completion token cap. Default: 200.
func WithMaxTokens(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.maxTokens = n
		}
	}
}

// WithMaxChars sets the reply length cap; longer replies are cut and end
// in "...". Default: 200.
func WithMaxChars(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.maxChars = n
		}
	}
}

// WithTimeout sets the hard deadline of one generation. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithMetrics records generation latency and provider outcomes.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Model) { m.metrics = met }
}

// WithProviderName sets the label used in logs and metrics. Default: "llm".
func WithProviderName(name string) Option {
	return func(m *Model) { m.name = name }
}

// Model is the generative collaborator. It is safe for concurrent use by
// many sessions; it holds no per-conversation state.
type Model struct {
	provider     llm.Provider
	name         string
	systemPrompt string
	maxTokens    int
	maxChars     int
	timeout      time.Duration
	metrics      *observe.Metrics

	mu      sync.RWMutex
	status  Status
	lastErr error
}

// New creates a Model over p in [StatusNotLoaded]. Call [Model.Warmup]
// before the first generation.
func New(p llm.Provider, opts ...Option) *Model {
	m := &Model{
		provider:  p,
		name:      "llm",
		maxTokens: defaultMaxTokens,
		maxChars:  defaultMaxChars,
		timeout:   defaultTimeout,
		status:    StatusNotLoaded,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Status returns the current lifecycle state.
func (m *Model) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// LastError returns the error of the last failed warm-up, or nil.
func (m *Model) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Ready reports whether the model accepts generations.
func (m *Model) Ready() bool { return m.Status() == StatusReady }

// Warmup sends a tiny completion to the backend and moves the model to
// [StatusReady] on success or [StatusError] on failure. It may be called
// again at any time to retry.
func (m *Model) Warmup(ctx context.Context) error {
	m.setStatus(StatusLoading, nil)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	_, err := m.complete(ctx, llm.CompletionRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: warmupPrompt}},
		MaxTokens: warmupMaxTokens,
	})
	if err != nil {
		m.setStatus(StatusError, err)
		slog.Warn("generate: warm-up failed", "provider", m.name, "err", err)
		return fmt.Errorf("generate: warm-up: %w", err)
	}

	m.setStatus(StatusReady, nil)
	slog.Info("generate: model ready", "provider", m.name)
	return nil
}

// Generate produces a reply for req within the configured deadline. The
// reply is trimmed and cut to the character cap.
func (m *Model) Generate(ctx context.Context, req Request) (string, error) {
	if !m.Ready() {
		return "", ErrNotReady
	}

	ctx, span := observe.StartSpan(ctx, "generate.Generate")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	maxTokens := m.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	resp, err := m.complete(ctx, llm.CompletionRequest{
		SystemPrompt: m.buildSystemPrompt(req.Notes),
		Messages:     buildMessages(req),
		MaxTokens:    maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return Truncate(strings.TrimSpace(resp.Content), m.maxChars), nil
}

func (m *Model) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := m.provider.Complete(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}

	if m.metrics != nil {
		m.metrics.GenerationDuration.Record(ctx, time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
			m.metrics.RecordProviderError(ctx, m.name, "llm")
		}
		m.metrics.RecordProviderRequest(ctx, m.name, "llm", status)
	}
	return resp, err
}

func (m *Model) setStatus(s Status, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
	m.lastErr = err
}

func (m *Model) buildSystemPrompt(notes []string) string {
	if len(notes) == 0 {
		return m.systemPrompt
	}
	var b strings.Builder
	b.WriteString(m.systemPrompt)
	for _, n := range notes {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(n)
	}
	return b.String()
}

func buildMessages(req Request) []llm.Message {
	msgs := make([]llm.Message, 0, 2*len(req.History)+1)
	for _, t := range req.History {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.User},
			llm.Message{Role: llm.RoleAssistant, Content: t.Assistant},
		)
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: req.Prompt})
}

// Truncate cuts s to at most maxChars runes and appends "..." when it had to
// cut. A non-positive maxChars disables the cap.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars]) + ellipsis
}
