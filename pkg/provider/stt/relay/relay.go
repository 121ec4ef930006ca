// Package relay provides an stt.Provider fed by an external recogniser.
//
// Browsers run speech recognition locally and forward their results over a
// websocket. The gateway pushes those results into a Relay, and the listening
// state machine consumes them as ordinary recognition streams. Starting a
// stream invokes the OnStart hook so the gateway can ask the browser to
// (re)start its engine.
package relay

import (
	"context"
	"sync"

	"github.com/MrWong99/maxassist/pkg/provider/stt"
)

// Relay implements stt.Provider. At most one stream is current at a time;
// starting a new one ends the previous one normally. Results pushed while no
// stream is current are dropped.
type Relay struct {
	buf     int
	onStart func(stt.StreamConfig)

	mu      sync.Mutex
	current *stt.Pipe
	closed  bool
}

// Option is a functional option for Relay.
type Option func(*Relay)

// WithOnStart registers fn to be called every time a stream starts.
// fn must not block.
func WithOnStart(fn func(stt.StreamConfig)) Option {
	return func(r *Relay) { r.onStart = fn }
}

// WithBuffer sets the per-stream result buffer. Default 32.
func WithBuffer(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.buf = n
		}
	}
}

// New creates a Relay.
func New(opts ...Option) *Relay {
	r := &Relay{buf: 32}
	for _, o := range opts {
		o(r)
	}
	return r
}

// StartStream implements stt.Provider.
func (r *Relay) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, &stt.RecognitionError{Kind: stt.KindSourceClosed, Err: stt.ErrStreamClosed}
	}
	if r.current != nil {
		r.current.End(nil)
	}
	p := stt.NewPipe(r.buf)
	r.current = p
	r.mu.Unlock()

	if r.onStart != nil {
		r.onStart(cfg)
	}
	return p, nil
}

// Push forwards res to the current stream. It reports whether the result was
// delivered.
func (r *Relay) Push(res stt.Result) bool {
	r.mu.Lock()
	p := r.current
	r.mu.Unlock()
	if p == nil {
		return false
	}
	return p.Send(res)
}

// End finishes the current stream with err (nil means the engine ended
// normally). It is a no-op when no stream is current.
func (r *Relay) End(err error) {
	r.mu.Lock()
	p := r.current
	r.current = nil
	r.mu.Unlock()
	if p != nil {
		p.End(err)
	}
}

// Close detaches the relay from its source. The current stream, if any, ends
// with a fatal source-closed error and later StartStream calls fail the same
// way. Close is idempotent.
func (r *Relay) Close() error {
	r.mu.Lock()
	r.closed = true
	p := r.current
	r.current = nil
	r.mu.Unlock()
	if p != nil {
		p.End(&stt.RecognitionError{Kind: stt.KindSourceClosed, Err: stt.ErrStreamClosed})
	}
	return nil
}

var _ stt.Provider = (*Relay)(nil)
