// Package session runs one conversation.
//
// A [Session] is the explicitly constructed, per-conversation owner of the
// assistant's mutable state: its conversation memory, its listening state
// machine and its pending reminders. Everything that touches that state
// happens on the single goroutine running [Session.Run]; recognition
// events, typed input, reminder timers and speech completions are all
// funnelled into it. Utterances are therefore answered strictly in arrival
// order, and an utterance is never classified before the previous one's
// memory write has happened.
//
// Sessions share nothing mutable. Collaborators that are shared (the
// resolver, the generative model, the speaker, the archive) are safe for
// concurrent use.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/maxassist/internal/convo"
	"github.com/MrWong99/maxassist/internal/intent"
	"github.com/MrWong99/maxassist/internal/listen"
	"github.com/MrWong99/maxassist/internal/observe"
	"github.com/MrWong99/maxassist/internal/respond"
	"github.com/MrWong99/maxassist/internal/speak"
	"github.com/MrWong99/maxassist/pkg/memory"
)

// ErrClosed is returned when submitting to a session that is not running.
var ErrClosed = errors.New("session: closed")

const (
	intentWake    = "wake"
	intentCommand = "command"
)

// Warmer (re)loads the generative model. [*generate.Model] implements it.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// Info is a point-in-time summary of a session.
type Info struct {
	ID        string    `json:"id"`
	Started   time.Time `json:"started"`
	Turns     int64     `json:"turns"`
	LastTopic string    `json:"last_topic,omitempty"`
	State     string    `json:"state"`
	Degraded  bool      `json:"archive_degraded,omitempty"`
}

// Option configures a [Session].
type Option func(*Session)

// WithMemory sets the conversation memory. Default: a fresh [convo.Memory].
func WithMemory(m *convo.Memory) Option {
	return func(s *Session) { s.mem = m }
}

// WithListener attaches a listening state machine. The session runs it and
// answers its commands. Without one the session accepts typed input only.
func WithListener(m *listen.Machine) Option {
	return func(s *Session) { s.machine = m }
}

// WithArchive writes every exchange to store and hydrates the memory from
// it when the session starts. Store failures never reach the conversation.
func WithArchive(store memory.ExchangeStore) Option {
	return func(s *Session) {
		if store != nil {
			s.archive = NewMemoryGuard(store)
		}
	}
}

// WithWarmer enables the advanced-mode command.
func WithWarmer(w Warmer) Option {
	return func(s *Session) { s.warmer = w }
}

// WithSpeaker speaks every reply through sp, sending the audio to sink.
func WithSpeaker(sp *speak.Speaker, sink speak.Sink) Option {
	return func(s *Session) {
		s.speaker = sp
		s.sink = sink
	}
}

// WithMetrics records session metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithEventBuffer sets the capacity of the events channel. Default: 32.
func WithEventBuffer(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.eventBuf = n
		}
	}
}

// WithHistoryLimit caps how many archived exchanges are replayed into
// memory at start. Default: 10.
func WithHistoryLimit(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithAfterFunc replaces [time.AfterFunc] for reminder scheduling.
func WithAfterFunc(f func(time.Duration, func()) *time.Timer) Option {
	return func(s *Session) { s.afterFunc = f }
}

// Session is one conversation.
type Session struct {
	id       string
	resolver *respond.Resolver
	mem      *convo.Memory
	machine  *listen.Machine
	archive  *MemoryGuard
	warmer   Warmer
	speaker  *speak.Speaker
	sink     speak.Sink
	metrics  *observe.Metrics
	log      *slog.Logger

	eventBuf     int
	historyLimit int
	afterFunc    func(time.Duration, func()) *time.Timer
	started      time.Time

	inbox     chan submission
	reminders chan dueReminder
	events    chan Event
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	runOnce   sync.Once
	turns     atomic.Int64

	// Owned by the Run goroutine.
	timers    map[int]*time.Timer
	nextTimer int
	lastState string
	speech    sync.WaitGroup
}

type dueReminder struct {
	id int
	respond.Reminder
}

type submission struct {
	text  string
	reply chan respond.Reply
}

// New creates a session identified by id that answers through resolver.
func New(id string, resolver *respond.Resolver, opts ...Option) *Session {
	s := &Session{
		id:           id,
		resolver:     resolver,
		eventBuf:     32,
		historyLimit: 10,
		afterFunc:    time.AfterFunc,
		started:      time.Now(),
		inbox:        make(chan submission),
		reminders:    make(chan dueReminder),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		timers:       make(map[int]*time.Timer),
	}
	for _, o := range opts {
		o(s)
	}
	if s.mem == nil {
		s.mem = convo.New()
	}
	s.log = slog.With("session_id", id)
	s.events = make(chan Event, s.eventBuf)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Memory returns the session's conversation memory.
func (s *Session) Memory() *convo.Memory { return s.mem }

// Events returns the event channel. It is closed when Run returns.
// The caller must drain it; a full channel stalls the session.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed when Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Info returns a summary of the session. Safe to call from any goroutine.
func (s *Session) Info() Info {
	info := Info{
		ID:        s.id,
		Started:   s.started,
		Turns:     s.turns.Load(),
		LastTopic: s.mem.LastTopic(),
		State:     "typed",
	}
	if s.machine != nil {
		info.State = s.machine.State().String()
	}
	if s.archive != nil {
		info.Degraded = s.archive.IsDegraded()
	}
	return info
}

// Close stops the session. Run returns once pending speech has finished.
// Safe to call more than once and before Run.
func (s *Session) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Submit answers typed text, bypassing wake-phrase gating, and returns the
// reply once it has been recorded. The reply is also emitted as an
// [EventReply].
func (s *Session) Submit(ctx context.Context, text string) (respond.Reply, error) {
	sub := submission{text: text, reply: make(chan respond.Reply, 1)}
	select {
	case s.inbox <- sub:
	case <-s.done:
		return respond.Reply{}, ErrClosed
	case <-s.stop:
		return respond.Reply{}, ErrClosed
	case <-ctx.Done():
		return respond.Reply{}, ctx.Err()
	}
	select {
	case r := <-sub.reply:
		return r, nil
	case <-s.done:
		return respond.Reply{}, ErrClosed
	case <-ctx.Done():
		return respond.Reply{}, ctx.Err()
	}
}

// Run drives the session until ctx is cancelled or Close is called. It may
// only be called once.
func (s *Session) Run(ctx context.Context) error {
	err := errors.New("session: Run called twice")
	s.runOnce.Do(func() { err = s.run(ctx) })
	return err
}

func (s *Session) run(ctx context.Context) error {
	defer close(s.done)
	defer close(s.events)

	ctx, cancel := context.WithCancel(observe.WithSessionID(ctx, s.id))
	defer cancel()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, 1)
		defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	}

	s.hydrate(ctx)

	var machineEvents <-chan listen.Event
	var machineDone chan struct{}
	if s.machine != nil {
		machineEvents = s.machine.Events()
		machineDone = make(chan struct{})
		go func() {
			defer close(machineDone)
			if err := s.machine.Run(ctx); err != nil {
				s.log.Warn("session: listening ended", "err", err)
			}
		}()
	}

	defer func() {
		for _, t := range s.timers {
			t.Stop()
		}
		clear(s.timers)
		if s.machine != nil {
			s.machine.Stop()
			if machineEvents != nil {
				for range machineEvents {
				}
			}
			<-machineDone
		}
		cancel()
		s.speech.Wait()
		s.log.Info("session: closed", "turns", s.turns.Load())
	}()

	s.log.Info("session: started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil

		case sub := <-s.inbox:
			sub.reply <- s.handleText(ctx, sub.text)

		case ev, ok := <-machineEvents:
			if !ok {
				machineEvents = nil
				continue
			}
			s.handleListen(ctx, ev)

		case r := <-s.reminders:
			delete(s.timers, r.id)
			s.log.Info("session: reminder due", "task", r.Task)
			s.emit(ctx, Event{Kind: EventReminder, Text: r.Text})
			s.say(ctx, r.Text)
		}
	}
}

// hydrate replays the archived history of a resumed session into memory.
func (s *Session) hydrate(ctx context.Context) {
	if s.archive == nil {
		return
	}
	exs, _ := s.archive.RecentExchanges(ctx, s.id, s.historyLimit)
	if len(exs) == 0 {
		return
	}
	entries := make([]convo.Entry, len(exs))
	for i, ex := range exs {
		entries[i] = convo.Entry{Input: ex.Input, Response: ex.Response, Topic: ex.Topic, Timestamp: ex.Timestamp}
	}
	s.mem.Restore(entries)
	s.log.Info("session: restored history", "exchanges", len(entries))
}

func (s *Session) handleListen(ctx context.Context, ev listen.Event) {
	switch ev.Kind {
	case listen.EventWake:
		if s.metrics != nil {
			s.metrics.RecordWake(ctx, false)
		}
		s.emit(ctx, Event{Kind: EventWake})
		if !ev.Inline {
			s.reply(ctx, s.resolver.WakeUp(s.mem), intentWake)
		}
	case listen.EventWakeDebounced:
		if s.metrics != nil {
			s.metrics.RecordWake(ctx, true)
		}
	case listen.EventCommand:
		if s.metrics != nil {
			s.metrics.RecordCommand(ctx, ev.Forced)
		}
		s.handleText(ctx, ev.Text)
	case listen.EventCaptureTimeout:
		if s.metrics != nil {
			s.metrics.CaptureTimeouts.Add(ctx, 1)
		}
		s.emit(ctx, Event{Kind: EventTimeout})
	case listen.EventRestart:
		if s.metrics != nil {
			reason := "ended"
			if ev.Err != nil {
				reason = "error"
			}
			s.metrics.RecordRestart(ctx, reason)
		}
	case listen.EventStopped:
		s.emit(ctx, Event{Kind: EventStopped, Err: ev.Err})
	}
	s.syncState(ctx)
}

// handleText answers one utterance: session commands first, then intent
// resolution.
func (s *Session) handleText(ctx context.Context, text string) respond.Reply {
	s.turns.Add(1)

	if cmd, m, ok := matchCommand(text); ok {
		out := cmd.run(s, ctx, m)
		s.log.Info("session: command executed", "command", cmd.name)
		if s.metrics != nil {
			s.metrics.RecordIntent(ctx, intentCommand, intentCommand)
		}
		s.reply(ctx, out, intentCommand)
		return respond.Reply{Text: out, Intent: intentCommand, Strategy: intentCommand}
	}

	r := s.resolver.Resolve(ctx, s.mem, text)
	if s.archive != nil {
		topic := string(r.Intent)
		if r.Intent == intent.Fallback {
			topic = ""
		}
		_ = s.archive.SaveExchange(ctx, memory.Exchange{
			SessionID: s.id,
			Input:     text,
			Response:  r.Text,
			Intent:    string(r.Intent),
			Topic:     topic,
		})
	}
	if r.Reminder != nil {
		s.schedule(*r.Reminder)
	}
	s.reply(ctx, r.Text, string(r.Intent))
	return r
}

func (s *Session) schedule(r respond.Reminder) {
	s.nextTimer++
	due := dueReminder{id: s.nextTimer, Reminder: r}
	s.timers[due.id] = s.afterFunc(r.After, func() {
		select {
		case s.reminders <- due:
		case <-s.stop:
		case <-s.done:
		}
	})
	s.log.Info("session: reminder scheduled", "task", r.Task, "after", r.After)
}

func (s *Session) reply(ctx context.Context, text, intentName string) {
	s.emit(ctx, Event{Kind: EventReply, Text: text, Intent: intentName})
	s.say(ctx, text)
}

// say speaks text in the background. Replies never wait for speech.
func (s *Session) say(ctx context.Context, text string) {
	if s.speaker == nil {
		return
	}
	s.speech.Add(1)
	s.speaker.SpeakAsync(ctx, text, s.sink, func(err error) {
		defer s.speech.Done()
		if err != nil && ctx.Err() == nil {
			s.log.Warn("session: speech failed", "err", err)
		}
	})
}

func (s *Session) syncState(ctx context.Context) {
	if s.machine == nil {
		return
	}
	st := s.machine.State().String()
	if st == s.lastState {
		return
	}
	s.lastState = st
	s.emit(ctx, Event{Kind: EventState, State: st})
}

func (s *Session) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	case <-s.stop:
	}
}
