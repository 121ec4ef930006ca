package session_test

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/MrWong99/maxassist/internal/config"
	"github.com/MrWong99/maxassist/internal/convo"
	"github.com/MrWong99/maxassist/internal/listen"
	"github.com/MrWong99/maxassist/internal/respond"
	"github.com/MrWong99/maxassist/internal/session"
	"github.com/MrWong99/maxassist/internal/speak"
	"github.com/MrWong99/maxassist/pkg/memory"
	memorymock "github.com/MrWong99/maxassist/pkg/memory/mock"
	"github.com/MrWong99/maxassist/pkg/provider/stt"
	sttmock "github.com/MrWong99/maxassist/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/maxassist/pkg/provider/tts/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeWarmer struct {
	err   error
	calls atomic.Int32
}

func (w *fakeWarmer) Warmup(context.Context) error {
	w.calls.Add(1)
	return w.err
}

func newResolver() *respond.Resolver {
	return respond.New(respond.Config{Location: time.UTC})
}

// start runs a session for the duration of the test.
func start(t *testing.T, id string, opts ...session.Option) *session.Session {
	t.Helper()
	s := session.New(id, newResolver(), opts...)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	t.Cleanup(func() {
		s.Close()
		for range s.Events() {
		}
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after Close")
		}
	})
	return s
}

func submit(t *testing.T, s *session.Session, text string) respond.Reply {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r, err := s.Submit(ctx, text)
	if err != nil {
		t.Fatalf("Submit(%q): %v", text, err)
	}
	return r
}

// waitFor returns the next event of the given kind, discarding others.
func waitFor(t *testing.T, s *session.Session, kind session.EventKind) session.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatalf("events closed while waiting for %s", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
			return session.Event{}
		}
	}
}

func TestSession_SubmitAnswersAndEmits(t *testing.T) {
	t.Parallel()
	s := start(t, "s1")

	r := submit(t, s, "7 plus 3")
	if r.Text != "7 plus 3 equals 10" {
		t.Errorf("reply = %q", r.Text)
	}
	ev := waitFor(t, s, session.EventReply)
	if ev.Text != r.Text || ev.Intent != "calculation" {
		t.Errorf("event = %+v", ev)
	}

	info := s.Info()
	if info.ID != "s1" || info.Turns != 1 || info.State != "typed" || info.LastTopic != "calculation" {
		t.Errorf("Info() = %+v", info)
	}
}

func TestSession_TurnsAreSequential(t *testing.T) {
	t.Parallel()
	s := start(t, "s1")

	submit(t, s, "what's the weather in paris")
	// The follow-up is classified against the topic the previous turn wrote.
	r := submit(t, s, "what about tomorrow")
	if r.Intent != "weather" || !r.Sticky {
		t.Errorf("follow-up = %+v, want sticky weather", r)
	}
	if got := s.Memory().Len(); got != 2 {
		t.Errorf("memory holds %d exchanges, want 2", got)
	}
}

func TestSession_ArchivesExchanges(t *testing.T) {
	t.Parallel()
	store := &memorymock.Store{}
	s := start(t, "s1", session.WithArchive(store))

	submit(t, s, "thank you")
	submit(t, s, "blorp")

	got := store.Exchanges()
	if len(got) != 2 {
		t.Fatalf("archived %d exchanges, want 2", len(got))
	}
	if got[0].SessionID != "s1" || got[0].Input != "thank you" || got[0].Intent != "thanks" || got[0].Topic != "thanks" {
		t.Errorf("first exchange = %+v", got[0])
	}
	if got[1].Intent != "fallback" || got[1].Topic != "" {
		t.Errorf("fallback exchange = %+v, want empty topic", got[1])
	}
}

func TestSession_ArchiveFailureIsInvisible(t *testing.T) {
	t.Parallel()
	store := &memorymock.Store{SaveErr: errors.New("db down"), RecentErr: errors.New("db down")}
	s := start(t, "s1", session.WithArchive(store))

	r := submit(t, s, "7 plus 3")
	if r.Text != "7 plus 3 equals 10" {
		t.Errorf("reply = %q", r.Text)
	}
	if !s.Info().Degraded {
		t.Error("Info().Degraded = false after archive failure")
	}
}

func TestSession_HydratesFromArchive(t *testing.T) {
	t.Parallel()
	store := &memorymock.Store{}
	ctx := context.Background()
	_ = store.SaveExchange(ctx, memory.Exchange{SessionID: "s1", Input: "my name is Alex", Response: "Nice to meet you", Timestamp: time.Now().Add(-time.Minute)})
	_ = store.SaveExchange(ctx, memory.Exchange{SessionID: "s1", Input: "tell me a joke", Response: "...", Topic: "joke", Timestamp: time.Now()})
	_ = store.SaveExchange(ctx, memory.Exchange{SessionID: "other", Input: "unrelated"})

	s := start(t, "s1", session.WithArchive(store))
	r := submit(t, s, "hello")

	if r.Text != "Hello Alex! How can I help you today?" {
		t.Errorf("greeting = %q, want personalised", r.Text)
	}
	if got := s.Memory().Len(); got != 3 {
		t.Errorf("memory holds %d exchanges, want 3", got)
	}
	if !s.Memory().HasTopic("joke") {
		t.Error("restored topic missing")
	}
}

func TestSession_Preferences(t *testing.T) {
	t.Parallel()
	s := start(t, "s1")

	if r := submit(t, s, "What is my favorite color?"); r.Text != "You haven't told me your favorite color yet." {
		t.Errorf("unknown preference = %q", r.Text)
	}
	if r := submit(t, s, "Remember that my favorite color is blue"); r.Text != "Got it. I'll remember that your favorite color is blue." {
		t.Errorf("set = %q", r.Text)
	}
	r := submit(t, s, "what's my favourite color")
	if r.Text != "Your favorite color is blue." {
		t.Errorf("recall = %q", r.Text)
	}
	if r.Intent != "command" {
		t.Errorf("Intent = %q, want command", r.Intent)
	}
}

func TestSession_Recall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []session.Option
	}{
		{name: "archive", opts: []session.Option{session.WithArchive(&memorymock.Store{})}},
		{name: "memory only"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := start(t, "s1", tt.opts...)

			submit(t, s, "is it sunny in paris")
			submit(t, s, "tell me a joke")

			if r := submit(t, s, "What did I say about Paris?"); r.Text != `You said: "is it sunny in paris".` {
				t.Errorf("recall = %q", r.Text)
			}
			if r := submit(t, s, "what did i say about dinosaurs"); r.Text != "I don't remember you saying anything about dinosaurs." {
				t.Errorf("recall miss = %q", r.Text)
			}
		})
	}
}

func TestSession_Forget(t *testing.T) {
	t.Parallel()
	store := &memorymock.Store{}
	s := start(t, "s1", session.WithArchive(store))

	submit(t, s, "my name is Alex")
	r := submit(t, s, "forget everything")
	if r.Text != "Okay, I've forgotten everything we talked about." {
		t.Errorf("reply = %q", r.Text)
	}
	if s.Memory().Len() != 0 {
		t.Errorf("memory holds %d exchanges after forget", s.Memory().Len())
	}
	if _, ok := s.Memory().Entity(convo.EntityUserName); ok {
		t.Error("user name survived forget")
	}
	if store.CallCount("DeleteSession") != 1 || len(store.Exchanges()) != 0 {
		t.Errorf("archive not cleared: %d deletes, %d exchanges", store.CallCount("DeleteSession"), len(store.Exchanges()))
	}
}

func TestSession_AdvancedMode(t *testing.T) {
	t.Parallel()

	const (
		on  = "I've activated my advanced AI models! I can now provide more natural and detailed responses to your questions."
		off = "I tried to activate my advanced models, but encountered an error. I'll continue using my standard response system."
	)
	tests := []struct {
		name   string
		warmer *fakeWarmer
		want   string
	}{
		{name: "success", warmer: &fakeWarmer{}, want: on},
		{name: "failure", warmer: &fakeWarmer{err: errors.New("no backend")}, want: off},
		{name: "no model", want: off},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var opts []session.Option
			if tt.warmer != nil {
				opts = append(opts, session.WithWarmer(tt.warmer))
			}
			s := start(t, "s1", opts...)

			r := submit(t, s, "Use model please")
			if r.Text != tt.want {
				t.Errorf("reply = %q", r.Text)
			}
			if tt.warmer != nil && tt.warmer.calls.Load() != 1 {
				t.Errorf("Warmup called %d times", tt.warmer.calls.Load())
			}
			if s.Memory().Len() != 0 {
				t.Error("session commands must not be recorded as exchanges")
			}
		})
	}
}

func TestSession_Reminder(t *testing.T) {
	t.Parallel()

	var scheduled atomic.Int64
	fast := func(d time.Duration, f func()) *time.Timer {
		scheduled.Store(int64(d))
		return time.AfterFunc(time.Millisecond, f)
	}
	s := start(t, "s1", session.WithAfterFunc(fast))

	r := submit(t, s, "remind me to stretch in 10 minutes")
	if r.Text != "Okay, I'll remind you to stretch in 10 minutes." {
		t.Errorf("reply = %q", r.Text)
	}
	ev := waitFor(t, s, session.EventReminder)
	if ev.Text != "Reminder: stretch" {
		t.Errorf("reminder = %q", ev.Text)
	}
	if got := time.Duration(scheduled.Load()); got != 10*time.Minute {
		t.Errorf("scheduled after %v, want 10m", got)
	}
}

func TestSession_PendingRemindersCancelledOnClose(t *testing.T) {
	t.Parallel()
	s := session.New("s1", newResolver())
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	if _, err := s.Submit(context.Background(), "remind me to leave in 2 hours"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.Close()
	for range s.Events() {
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestSession_SubmitAfterClose(t *testing.T) {
	t.Parallel()
	s := session.New("s1", newResolver())
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	s.Close()
	<-s.Done()
	<-done
	if _, err := s.Submit(context.Background(), "hello"); !errors.Is(err, session.ErrClosed) {
		t.Errorf("Submit after close = %v, want ErrClosed", err)
	}
}

type audioSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (a *audioSink) write(chunk []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.Write(chunk)
	return nil
}

func (a *audioSink) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.String()
}

func TestSession_SpeaksReplies(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{SynthesizeChunks: [][]byte{[]byte("pcm")}}
	sink := &audioSink{}
	s := start(t, "s1", session.WithSpeaker(speak.New(p), sink.write))

	r := submit(t, s, "7 plus 3")

	deadline := time.Now().Add(2 * time.Second)
	for sink.String() != "pcm" {
		if time.Now().After(deadline) {
			t.Fatalf("audio = %q, want pcm", sink.String())
		}
		time.Sleep(time.Millisecond)
	}
	calls := p.Calls()
	if len(calls) != 1 || calls[0].Text != r.Text {
		t.Errorf("synthesize calls = %+v", calls)
	}
}

func TestSession_SpeechFailureDoesNotAffectReply(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{SynthesizeErr: errors.New("tts down")}
	s := start(t, "s1", session.WithSpeaker(speak.New(p), nil))

	if r := submit(t, s, "7 plus 3"); r.Text != "7 plus 3 equals 10" {
		t.Errorf("reply = %q", r.Text)
	}
	if r := submit(t, s, "8 plus 1"); r.Text != "8 plus 1 equals 9" {
		t.Errorf("reply = %q", r.Text)
	}
}

func listenConfig() listen.Config {
	return listen.Config{
		WakePhrases:         config.DefaultWakePhrases,
		ConfidenceThreshold: 0.3,
		MaxLowConfidence:    3,
		WakeDebounce:        3 * time.Second,
		CaptureTimeout:      10 * time.Second,
		RetryDelay:          10 * time.Millisecond,
		MaxRetryDelay:       40 * time.Millisecond,
		MaxRetries:          5,
		MinCommandLength:    3,
	}
}

func startListening(t *testing.T, cfg listen.Config) (*session.Session, *stt.Pipe) {
	t.Helper()
	p := sttmock.New()
	m := listen.New(p, cfg)
	s := start(t, "s1", session.WithListener(m))
	select {
	case pipe := <-p.Started():
		return s, pipe
	case <-time.After(2 * time.Second):
		t.Fatal("recognition was not started")
		return nil, nil
	}
}

func TestSession_WakeThenCommand(t *testing.T) {
	t.Parallel()
	s, pipe := startListening(t, listenConfig())

	pipe.Send(stt.Result{Transcript: "Hey Max", Confidence: 0.9, IsFinal: true})
	waitFor(t, s, session.EventWake)
	ack := waitFor(t, s, session.EventReply)
	if ack.Intent != "wake" || !slices.Contains(respond.NewPools("Max").WakeUp, ack.Text) {
		t.Errorf("wake reply = %+v", ack)
	}
	if st := waitFor(t, s, session.EventState); st.State != "capturing" {
		t.Errorf("state = %q, want capturing", st.State)
	}

	pipe.Send(stt.Result{Transcript: "what time is it", Confidence: 0.9, IsFinal: true})
	reply := waitFor(t, s, session.EventReply)
	if reply.Intent != "time" {
		t.Errorf("reply = %+v, want time", reply)
	}
	if st := waitFor(t, s, session.EventState); st.State != "idle" {
		t.Errorf("state = %q, want idle", st.State)
	}
}

func TestSession_InlineWakeSkipsAcknowledgement(t *testing.T) {
	t.Parallel()
	s, pipe := startListening(t, listenConfig())

	pipe.Send(stt.Result{Transcript: "hey max what time is it", Confidence: 0.9, IsFinal: true})
	waitFor(t, s, session.EventWake)
	if reply := waitFor(t, s, session.EventReply); reply.Intent != "time" {
		t.Errorf("first reply = %+v, want the command answer", reply)
	}
}

func TestSession_CaptureTimeout(t *testing.T) {
	t.Parallel()
	cfg := listenConfig()
	cfg.CaptureTimeout = 20 * time.Millisecond
	s, pipe := startListening(t, cfg)

	pipe.Send(stt.Result{Transcript: "hey max", Confidence: 0.9, IsFinal: true})
	waitFor(t, s, session.EventTimeout)
}

func TestSession_RecognitionStoppedKeepsTypedInput(t *testing.T) {
	t.Parallel()
	s, pipe := startListening(t, listenConfig())

	pipe.End(&stt.RecognitionError{Kind: stt.KindNotAllowed})
	ev := waitFor(t, s, session.EventStopped)
	if !stt.IsFatal(ev.Err) {
		t.Errorf("stopped err = %v, want fatal recognition error", ev.Err)
	}
	if r := submit(t, s, "7 plus 3"); r.Text != "7 plus 3 equals 10" {
		t.Errorf("typed reply after stop = %q", r.Text)
	}
}
