// Package console provides an stt.Provider that reads utterances from a text
// source, one per line. Every line becomes a final result with confidence
// 1.0. It lets the full wake/capture flow be exercised from a terminal.
package console

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/MrWong99/maxassist/pkg/provider/stt"
)

// Provider implements stt.Provider over an io.Reader. When the reader is
// exhausted every stream ends with a fatal source-closed error.
type Provider struct {
	r     io.Reader
	once  sync.Once
	lines chan string

	mu      sync.Mutex
	pending []string
}

// New creates a Provider reading from r. Reading starts with the first
// StartStream call.
func New(r io.Reader) *Provider {
	return &Provider{r: r, lines: make(chan string)}
}

func (p *Provider) readLines() {
	defer close(p.lines)
	sc := bufio.NewScanner(p.r)
	for sc.Scan() {
		p.lines <- sc.Text()
	}
}

// StartStream implements stt.Provider.
func (p *Provider) StartStream(ctx context.Context, _ stt.StreamConfig) (stt.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.once.Do(func() { go p.readLines() })

	s := &stream{
		results: make(chan stt.Result),
		done:    make(chan struct{}),
	}
	go s.run(ctx, p)
	return s, nil
}

// unread hands a line that a closing stream could not deliver to the next one.
func (p *Provider) unread(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, line)
}

func (p *Provider) takePending() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return "", false
	}
	line := p.pending[0]
	p.pending = p.pending[1:]
	return line, true
}

type stream struct {
	results   chan stt.Result
	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *stream) run(ctx context.Context, p *Provider) {
	defer close(s.results)
	for {
		line, ok := p.takePending()
		if !ok {
			select {
			case line, ok = <-p.lines:
				if !ok {
					s.mu.Lock()
					s.err = &stt.RecognitionError{Kind: stt.KindSourceClosed, Err: stt.ErrStreamClosed}
					s.mu.Unlock()
					return
				}
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		select {
		case s.results <- stt.Result{Transcript: text, Confidence: 1.0, IsFinal: true}:
		case <-s.done:
			p.unread(line)
			return
		case <-ctx.Done():
			p.unread(line)
			return
		}
	}
}

func (s *stream) Results() <-chan stt.Result { return s.results }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

var _ stt.Provider = (*Provider)(nil)
