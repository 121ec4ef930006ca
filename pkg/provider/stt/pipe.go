package stt

import "sync"

// Pipe is a push-driven Stream. Producers call Send for each result and End
// once the run is over; consumers read Results like any other Stream.
//
// Send never blocks: when the buffer is full the result is dropped and Send
// returns false. All methods are safe for concurrent use.
type Pipe struct {
	mu      sync.Mutex
	results chan Result
	done    chan struct{}
	ended   bool
	err     error
}

// NewPipe returns a Pipe whose Results channel buffers up to buf entries.
func NewPipe(buf int) *Pipe {
	return &Pipe{
		results: make(chan Result, buf),
		done:    make(chan struct{}),
	}
}

// Send delivers r to the consumer. It returns false if the pipe has ended or
// the buffer is full.
func (p *Pipe) Send(r Result) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ended {
		return false
	}
	select {
	case p.results <- r:
		return true
	default:
		return false
	}
}

// End finishes the run with err (nil for a normal end). Only the first call
// has an effect.
func (p *Pipe) End(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ended {
		return
	}
	p.ended = true
	p.err = err
	close(p.results)
	close(p.done)
}

// Done is closed once the pipe has ended.
func (p *Pipe) Done() <-chan struct{} { return p.done }

// Results implements Stream.
func (p *Pipe) Results() <-chan Result { return p.results }

// Err implements Stream.
func (p *Pipe) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close implements Stream by ending the pipe normally.
func (p *Pipe) Close() error {
	p.End(nil)
	return nil
}

var _ Stream = (*Pipe)(nil)
