// Package mock provides a test double for stt.Provider.
//
// Every StartStream call creates a fresh *stt.Pipe and publishes it on the
// Started channel, so tests can drive each engine run separately:
//
//	p := mock.New()
//	go machine.Run(ctx)
//	s := <-p.Started()
//	s.Send(stt.Result{Transcript: "hey max", Confidence: 1, IsFinal: true})
//	s.End(&stt.RecognitionError{Kind: stt.KindNetwork})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/maxassist/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// StartStreamErr, if non-nil, is returned by StartStream instead of a stream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall

	started chan *stt.Pipe
}

// New returns a Provider whose Started channel buffers up to 64 streams.
func New() *Provider {
	return &Provider{started: make(chan *stt.Pipe, 64)}
}

// StartStream records the call and returns a new pipe.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	p.mu.Lock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	err := p.StartStreamErr
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s := stt.NewPipe(16)
	select {
	case p.started <- s:
	default:
	}
	return s, nil
}

// Started yields each stream as StartStream creates it.
func (p *Provider) Started() <-chan *stt.Pipe { return p.started }

// SetStartErr replaces StartStreamErr. Thread-safe.
func (p *Provider) SetStartErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamErr = err
}

// CallCount returns the number of StartStream calls so far. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

var _ stt.Provider = (*Provider)(nil)
