// Package speak drives speech output for replies.
//
// Speech is a side effect: a reply is complete once its text exists, and a
// synthesis failure never changes what the assistant said. [Speaker]
// therefore bounds every synthesis with a hard deadline and guarantees the
// completion callback of [Speaker.SpeakAsync] fires exactly once, whatever
// happens inside the provider.
package speak

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/maxassist/internal/observe"
	"github.com/MrWong99/maxassist/pkg/provider/tts"
)

const defaultTimeout = 20 * time.Second

// Sink receives synthesised audio chunks in order. Returning an error stops
// the synthesis.
type Sink func(chunk []byte) error

// Option configures a [Speaker].
type Option func(*Speaker)

// WithVoice selects the voice passed to the provider.
func WithVoice(v tts.Voice) Option {
	return func(s *Speaker) { s.voice = v }
}

// WithTimeout sets the hard deadline for one reply. Default: 20s.
func WithTimeout(d time.Duration) Option {
	return func(s *Speaker) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics records synthesis latency.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Speaker) { s.metrics = m }
}

// Speaker synthesises reply text through a [tts.Provider]. It is stateless
// and safe for concurrent use by many sessions.
type Speaker struct {
	provider tts.Provider
	voice    tts.Voice
	timeout  time.Duration
	metrics  *observe.Metrics
}

// New creates a Speaker over p.
func New(p tts.Provider, opts ...Option) *Speaker {
	s := &Speaker{provider: p, timeout: defaultTimeout}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Speak synthesises text and feeds the audio to sink until the provider
// finishes, the deadline passes, ctx is cancelled or sink fails. A nil sink
// discards the audio. Blank text is a no-op.
func (s *Speaker) Speak(ctx context.Context, text string, sink Sink) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	ctx, span := observe.StartSpan(ctx, "speak.Speak")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := s.stream(ctx, text, sink)
	if s.metrics != nil {
		s.metrics.SpeechDuration.Record(ctx, time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
			s.metrics.RecordProviderError(ctx, s.voice.Provider, "tts")
		}
		s.metrics.RecordProviderRequest(ctx, s.voice.Provider, "tts", status)
	}
	return err
}

func (s *Speaker) stream(ctx context.Context, text string, sink Sink) error {
	audio, err := s.provider.Synthesize(ctx, text, s.voice)
	if err != nil {
		return fmt.Errorf("speak: synthesize: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("speak: %w", ctx.Err())
		case chunk, ok := <-audio:
			if !ok {
				return nil
			}
			if sink == nil {
				continue
			}
			if err := sink(chunk); err != nil {
				return fmt.Errorf("speak: sink: %w", err)
			}
		}
	}
}

// SpeakAsync runs [Speaker.Speak] in a new goroutine and calls onComplete
// with its result exactly once. A panicking provider or sink is reported to
// onComplete as an error.
func (s *Speaker) SpeakAsync(ctx context.Context, text string, sink Sink, onComplete func(error)) {
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("speak: panic: %v", r)
				slog.Error("speak: recovered panic", "err", err)
			}
			if onComplete != nil {
				onComplete(err)
			}
		}()
		err = s.Speak(ctx, text, sink)
	}()
}
