// Package listen implements the wake-word and continuous-listening state
// machine that gates speech input.
//
// A [Machine] owns one recognition session. It keeps a speech engine
// running for as long as it is active, restarting it whenever a run ends
// normally or with a transient error, and turns the raw stream of
// (transcript, confidence, isFinal) results into wake events and completed
// commands:
//
//	Idle ──wake phrase──▶ Capturing ──command / timeout──▶ Idle
//	  any ──fatal recognition error──▶ Stopped
//
// All state lives in the goroutine running [Machine.Run]; events are
// delivered on the channel returned by [Machine.Events]. After Stop, no
// further events are delivered.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/maxassist/internal/config"
	"github.com/MrWong99/maxassist/pkg/provider/stt"
)

// ErrRetriesExhausted is reported when the engine keeps failing transiently
// beyond the configured retry budget.
var ErrRetriesExhausted = errors.New("listen: recognition retries exhausted")

// State is the listening state.
type State int32

const (
	// StateOff means Run has not started or has returned after Stop.
	StateOff State = iota

	// StateIdle means only wake-phrase matching is active.
	StateIdle

	// StateCapturing means a wake phrase was heard and the next qualifying
	// utterance becomes a command.
	StateCapturing

	// StateStopped is terminal: recognition failed fatally.
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// EventKind identifies an [Event].
type EventKind int

const (
	// EventWake fires when a wake phrase is heard outside the debounce window.
	EventWake EventKind = iota

	// EventWakeDebounced reports a wake phrase suppressed by the debounce window.
	EventWakeDebounced

	// EventCommand carries a completed command.
	EventCommand

	// EventCaptureTimeout fires when capture ends without a command.
	EventCaptureTimeout

	// EventRestart reports that the recognition engine is being restarted.
	EventRestart

	// EventStopped is the last event after a fatal recognition failure.
	EventStopped
)

// String returns the event kind name used in logs and metrics.
func (k EventKind) String() string {
	switch k {
	case EventWake:
		return "wake"
	case EventWakeDebounced:
		return "wake_debounced"
	case EventCommand:
		return "command"
	case EventCaptureTimeout:
		return "capture_timeout"
	case EventRestart:
		return "restart"
	case EventStopped:
		return "stopped"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is emitted by the machine.
type Event struct {
	Kind EventKind

	// Text is the command with wake phrases removed (EventCommand only).
	Text string

	// Confidence is the recognition confidence of the command.
	Confidence float64

	// Forced is true when a low-confidence command was accepted after too
	// many consecutive low-confidence results.
	Forced bool

	// Inline is true when the command arrived in the same utterance as its
	// wake phrase. On EventWake it announces that an inline EventCommand
	// follows.
	Inline bool

	// Err is the failure behind EventRestart (nil for a normal engine end)
	// and EventStopped.
	Err error

	// Delay is the wait before the engine restarts (EventRestart only).
	Delay time.Duration
}

// Config tunes a [Machine]. All fields may be changed at runtime with
// [Machine.SetConfig].
type Config struct {
	WakePhrases         []string
	ConfidenceThreshold float64
	MaxLowConfidence    int
	WakeDebounce        time.Duration
	CaptureTimeout      time.Duration
	RetryDelay          time.Duration
	MaxRetryDelay       time.Duration
	MaxRetries          int
	InterimResults      bool
	FuzzyWake           bool
	MinCommandLength    int
	Language            string
}

// ConfigFrom builds a machine Config from the application configuration.
func ConfigFrom(a config.AssistantConfig, l config.ListenConfig) Config {
	return Config{
		WakePhrases:         a.WakePhrases,
		ConfidenceThreshold: l.ConfidenceThreshold,
		MaxLowConfidence:    l.MaxLowConfidence,
		WakeDebounce:        l.WakeDebounce,
		CaptureTimeout:      l.CaptureTimeout,
		RetryDelay:          l.RetryDelay,
		MaxRetryDelay:       l.MaxRetryDelay,
		MaxRetries:          l.MaxRetries,
		InterimResults:      l.InterimResults,
		FuzzyWake:           l.FuzzyWake,
		MinCommandLength:    l.MinCommandLength,
		Language:            a.Language,
	}
}

// tuning is a Config with its wake phrases compiled.
type tuning struct {
	Config
	wake *wakeSet
}

func compile(cfg Config) *tuning {
	if cfg.MaxLowConfidence < 1 {
		cfg.MaxLowConfidence = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = cfg.RetryDelay
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 15 * time.Second
	}
	return &tuning{Config: cfg, wake: newWakeSet(cfg.WakePhrases, cfg.FuzzyWake)}
}

// Option configures a [Machine].
type Option func(*Machine)

// WithClock injects the time source used for wake debouncing.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithEventBuffer sets the capacity of the events channel. Default: 16.
func WithEventBuffer(n int) Option {
	return func(m *Machine) {
		if n >= 0 {
			m.eventBuf = n
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// Machine is the wake-word and continuous-listening state machine.
type Machine struct {
	provider stt.Provider
	now      func() time.Time
	eventBuf int
	log      *slog.Logger

	cfg    atomic.Pointer[tuning]
	state  atomic.Int32
	events chan Event

	stop     chan struct{}
	stopOnce sync.Once
	runOnce  sync.Once

	// Owned by the Run goroutine.
	lastWake      time.Time
	lowConfidence int
	retry         backoff
	stream        stt.Stream
	captureTimer  *time.Timer
	restartTimer  *time.Timer
}

// New creates a Machine reading from provider.
func New(provider stt.Provider, cfg Config, opts ...Option) *Machine {
	m := &Machine{
		provider: provider,
		now:      time.Now,
		eventBuf: 16,
		log:      slog.Default(),
		stop:     make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	m.events = make(chan Event, m.eventBuf)
	m.cfg.Store(compile(cfg))
	return m
}

// Events returns the event channel. It is closed when Run returns.
func (m *Machine) Events() <-chan Event { return m.events }

// State returns the current state.
func (m *Machine) State() State { return State(m.state.Load()) }

// SetConfig replaces the tuning. It takes effect from the next result,
// timer, or restart.
func (m *Machine) SetConfig(cfg Config) { m.cfg.Store(compile(cfg)) }

// Stop ends listening: pending timers are cancelled, the engine stream is
// closed, and no further events are delivered. Safe to call more than once
// and before Run.
func (m *Machine) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Run drives the machine until ctx is cancelled, Stop is called, or
// recognition fails fatally. It returns nil on Stop or cancellation and the
// fatal error otherwise. Run may only be called once.
func (m *Machine) Run(ctx context.Context) error {
	err := errors.New("listen: Run called twice")
	m.runOnce.Do(func() { err = m.run(ctx) })
	return err
}

func (m *Machine) run(ctx context.Context) (err error) {
	defer close(m.events)
	defer m.cleanup()

	t := m.cfg.Load()
	m.retry = backoff{base: t.RetryDelay, max: t.MaxRetryDelay, maxRetries: t.MaxRetries}
	m.setState(StateIdle)

	if err := m.startStream(ctx); err != nil {
		return m.fail(ctx, err)
	}

	for {
		var results <-chan stt.Result
		if m.stream != nil {
			results = m.stream.Results()
		}

		select {
		case <-ctx.Done():
			m.setState(StateOff)
			return nil
		case <-m.stop:
			m.setState(StateOff)
			return nil

		case r, ok := <-results:
			if !ok {
				if err := m.streamEnded(ctx); err != nil {
					return m.fail(ctx, err)
				}
				continue
			}
			m.handleResult(ctx, r)

		case <-timerC(m.captureTimer):
			m.captureTimer = nil
			if m.State() == StateCapturing {
				m.lowConfidence = 0
				m.setState(StateIdle)
				m.log.Debug("listen: capture timed out")
				m.emit(ctx, Event{Kind: EventCaptureTimeout})
			}

		case <-timerC(m.restartTimer):
			m.restartTimer = nil
			if err := m.startStream(ctx); err != nil {
				return m.fail(ctx, err)
			}
		}
	}
}

// timerC returns t's channel, or nil (blocks forever) for a nil timer.
func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (m *Machine) setState(s State) { m.state.Store(int32(s)) }

// emit delivers ev unless the machine has been stopped or ctx cancelled;
// stale events are dropped rather than blocking shutdown.
func (m *Machine) emit(ctx context.Context, ev Event) {
	select {
	case <-m.stop:
		return
	default:
	}
	select {
	case m.events <- ev:
	case <-m.stop:
	case <-ctx.Done():
	}
}

// fail moves the machine to Stopped and reports err once.
func (m *Machine) fail(ctx context.Context, err error) error {
	m.setState(StateStopped)
	m.log.Error("listen: recognition stopped", "err", err)
	m.emit(ctx, Event{Kind: EventStopped, Err: err})
	return err
}

func (m *Machine) cleanup() {
	stopTimer(&m.captureTimer)
	stopTimer(&m.restartTimer)
	if m.stream != nil {
		_ = m.stream.Close()
		m.stream = nil
	}
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// startStream begins a new engine run. Start failures are handled like a
// run that ended with that error: fatal ones are returned, transient ones
// schedule another attempt.
func (m *Machine) startStream(ctx context.Context) error {
	t := m.cfg.Load()
	s, err := m.provider.StartStream(ctx, stt.StreamConfig{
		Language:       t.Language,
		InterimResults: true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return m.scheduleRestart(ctx, err)
	}
	m.stream = s
	return nil
}

// streamEnded handles the end of the current engine run.
func (m *Machine) streamEnded(ctx context.Context) error {
	err := m.stream.Err()
	_ = m.stream.Close()
	m.stream = nil

	if err == nil {
		m.retry.reset()
		m.log.Debug("listen: recognition run ended, restarting")
		m.emit(ctx, Event{Kind: EventRestart})
		return m.startStream(ctx)
	}
	return m.scheduleRestart(ctx, err)
}

func (m *Machine) scheduleRestart(ctx context.Context, err error) error {
	if stt.IsFatal(err) || errors.Is(err, stt.ErrStreamClosed) {
		return err
	}
	t := m.cfg.Load()
	m.retry.base, m.retry.max, m.retry.maxRetries = t.RetryDelay, t.MaxRetryDelay, t.MaxRetries
	delay, ok := m.retry.next()
	if !ok {
		return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
	}
	m.log.Warn("listen: recognition failed, restarting", "err", err, "delay", delay, "attempt", m.retry.attempt)
	stopTimer(&m.restartTimer)
	m.restartTimer = time.NewTimer(delay)
	m.emit(ctx, Event{Kind: EventRestart, Err: err, Delay: delay})
	return nil
}

func (m *Machine) handleResult(ctx context.Context, r stt.Result) {
	t := m.cfg.Load()
	text := strings.ToLower(strings.TrimSpace(r.Transcript))
	if IsNoise(text) {
		return
	}
	if r.IsFinal {
		// A result proves the engine is healthy again.
		m.retry.reset()
	}

	if woke, heard := t.wake.detect(text); woke {
		now := m.now()
		if m.lastWake.IsZero() || now.Sub(m.lastWake) >= t.WakeDebounce {
			m.lastWake = now
			m.lowConfidence = 0
			m.setState(StateCapturing)
			m.armCapture(t)
			m.log.Debug("listen: wake phrase detected", "transcript", text, "confidence", r.Confidence)
			m.emit(ctx, Event{Kind: EventWake, Inline: inlineCommand(t, r, text, heard)})
		} else if r.IsFinal {
			m.emit(ctx, Event{Kind: EventWakeDebounced})
		}
		if m.State() == StateCapturing {
			m.capture(ctx, t, r, text, heard, true)
		}
		return
	}

	if m.State() != StateCapturing {
		return
	}
	m.capture(ctx, t, r, text, "", false)
}

// capture evaluates a result during command capture.
func (m *Machine) capture(ctx context.Context, t *tuning, r stt.Result, text, heard string, hadWake bool) {
	if !r.IsFinal && !t.InterimResults {
		return
	}
	cmd := t.wake.command(text, heard)

	if r.Confidence >= t.ConfidenceThreshold {
		m.lowConfidence = 0
		if len(cmd) >= t.MinCommandLength {
			m.accept(ctx, Event{Kind: EventCommand, Text: cmd, Confidence: r.Confidence, Inline: hadWake})
			return
		}
	} else if !hadWake || cmd != "" {
		// A bare wake phrase carries no command to mishear.
		m.lowConfidence++
		m.log.Debug("listen: low confidence result",
			"transcript", text, "confidence", r.Confidence, "count", m.lowConfidence)
		if m.lowConfidence >= t.MaxLowConfidence && len(cmd) > 5 {
			m.lowConfidence = 0
			m.accept(ctx, Event{Kind: EventCommand, Text: cmd, Confidence: r.Confidence, Forced: true, Inline: hadWake})
			return
		}
	}

	if r.IsFinal {
		m.armCapture(t)
	}
}

// inlineCommand reports whether r carries a command after its wake phrase
// that capture accepts straight away.
func inlineCommand(t *tuning, r stt.Result, text, heard string) bool {
	if !r.IsFinal && !t.InterimResults {
		return false
	}
	return r.Confidence >= t.ConfidenceThreshold && len(t.wake.command(text, heard)) >= t.MinCommandLength
}

func (m *Machine) accept(ctx context.Context, ev Event) {
	stopTimer(&m.captureTimer)
	m.setState(StateIdle)
	m.log.Debug("listen: command accepted", "text", ev.Text, "forced", ev.Forced)
	m.emit(ctx, ev)
}

// armCapture (re)starts the capture timeout.
func (m *Machine) armCapture(t *tuning) {
	stopTimer(&m.captureTimer)
	m.captureTimer = time.NewTimer(t.CaptureTimeout)
}
