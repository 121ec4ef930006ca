package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/maxassist/internal/app"
	"github.com/MrWong99/maxassist/internal/config"
	"github.com/MrWong99/maxassist/internal/respond"
	"github.com/MrWong99/maxassist/internal/session"
	memorymock "github.com/MrWong99/maxassist/pkg/memory/mock"
	"github.com/MrWong99/maxassist/pkg/provider/stt"
	sttmock "github.com/MrWong99/maxassist/pkg/provider/stt/mock"
)

func newTestSessionManager(t *testing.T, store *memorymock.Store) *app.SessionManager {
	t.Helper()
	cfg := testConfig()
	resolver := respond.New(respond.ConfigFrom(cfg))
	smCfg := app.SessionManagerConfig{
		Config:   cfg,
		Resolver: func() *respond.Resolver { return resolver },
	}
	if store != nil {
		smCfg.Archive = store
	}
	sm := app.NewSessionManager(smCfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sm.CloseAll(ctx); err != nil {
			t.Errorf("CloseAll() error: %v", err)
		}
	})
	return sm
}

// drain discards a session's events until it stops.
func drain(s *session.Session) {
	go func() {
		for range s.Events() {
		}
	}()
}

func waitGone(t *testing.T, sm *app.SessionManager, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := sm.Get(id); !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("session %s still registered", id)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionManager_OpenGetClose(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager(t, nil)
	s, err := sm.Open(app.OpenRequest{})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	drain(s)

	if _, err := uuid.Parse(s.ID()); err != nil {
		t.Errorf("ID %q is not a UUID: %v", s.ID(), err)
	}
	got, ok := sm.Get(s.ID())
	if !ok || got != s {
		t.Fatal("Get() did not return the opened session")
	}

	r, err := s.Submit(context.Background(), "tell me a joke")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if r.Intent != "joke" {
		t.Errorf("Intent = %q, want joke", r.Intent)
	}

	if !sm.Close(s.ID()) {
		t.Fatal("Close() = false for a live session")
	}
	<-s.Done()
	waitGone(t, sm, s.ID())

	if sm.Close(s.ID()) {
		t.Error("Close() = true for a closed session")
	}
}

func TestSessionManager_OpenErrors(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager(t, nil)

	if _, err := sm.Open(app.OpenRequest{ID: "not-a-uuid"}); !errors.Is(err, app.ErrInvalidSessionID) {
		t.Errorf("invalid id: err = %v, want ErrInvalidSessionID", err)
	}

	id := uuid.NewString()
	s, err := sm.Open(app.OpenRequest{ID: id})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	drain(s)
	if s.ID() != id {
		t.Errorf("ID = %q, want %q", s.ID(), id)
	}
	if _, err := sm.Open(app.OpenRequest{ID: id}); !errors.Is(err, app.ErrSessionActive) {
		t.Errorf("duplicate id: err = %v, want ErrSessionActive", err)
	}
}

func TestSessionManager_ResumeHydratesFromArchive(t *testing.T) {
	t.Parallel()

	store := &memorymock.Store{}
	sm := newTestSessionManager(t, store)
	ctx := context.Background()

	first, err := sm.Open(app.OpenRequest{})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	drain(first)
	if _, err := first.Submit(ctx, "my name is Alex"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	id := first.ID()
	sm.Close(id)
	<-first.Done()
	waitGone(t, sm, id)

	resumed, err := sm.Open(app.OpenRequest{ID: id})
	if err != nil {
		t.Fatalf("resume: Open() error: %v", err)
	}
	drain(resumed)
	r, err := resumed.Submit(ctx, "hello")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if r.Text != "Hello Alex! How can I help you today?" {
		t.Errorf("greeting = %q, want personalised", r.Text)
	}
	if n := len(store.Exchanges()); n != 2 {
		t.Errorf("archived %d exchanges, want 2", n)
	}
}

func TestSessionManager_List(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager(t, nil)
	var ids []string
	for range 3 {
		s, err := sm.Open(app.OpenRequest{})
		if err != nil {
			t.Fatalf("Open() error: %v", err)
		}
		drain(s)
		ids = append(ids, s.ID())
	}
	s, _ := sm.Get(ids[1])
	if _, err := s.Submit(context.Background(), "what time is it"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	infos := sm.List()
	if len(infos) != 3 {
		t.Fatalf("List() returned %d sessions, want 3", len(infos))
	}
	for i := 1; i < len(infos); i++ {
		if infos[i].Started.Before(infos[i-1].Started) {
			t.Error("List() not ordered by start time")
		}
	}
	for _, info := range infos {
		if info.State != "typed" {
			t.Errorf("State = %q, want typed", info.State)
		}
		if info.ID == ids[1] && (info.Turns != 1 || info.LastTopic != "time") {
			t.Errorf("info = %+v, want one time turn", info)
		}
	}
}

func TestSessionManager_SetConfigReachesMachines(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager(t, nil)

	typed, err := sm.Open(app.OpenRequest{})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	drain(typed)

	rec := sttmock.New()
	listening, err := sm.Open(app.OpenRequest{Recognizer: rec})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	drain(listening)

	next := testConfig()
	next.Listen.WakeDebounce = 0
	next.Assistant.WakePhrases = []string{"computer"}
	if n := sm.SetConfig(next); n != 1 {
		t.Errorf("SetConfig() updated %d machines, want 1", n)
	}

	// The new wake phrase is live in the running machine.
	stream := <-rec.Started()
	stream.Send(sttResult("computer what time is it"))
	deadline := time.Now().Add(5 * time.Second)
	for listening.Memory().LastTopic() != "time" {
		if time.Now().After(deadline) {
			t.Fatal("inline command never answered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func sttResult(text string) stt.Result {
	return stt.Result{Transcript: text, Confidence: 1, IsFinal: true}
}

func TestSessionManager_CloseAllRejectsOpen(t *testing.T) {
	t.Parallel()

	sm := app.NewSessionManager(app.SessionManagerConfig{
		Config:   testConfig(),
		Resolver: func() *respond.Resolver { return respond.New(respond.ConfigFrom(config.Default())) },
	})
	s, err := sm.Open(app.OpenRequest{})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	drain(s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sm.CloseAll(ctx); err != nil {
		t.Fatalf("CloseAll() error: %v", err)
	}
	<-s.Done()
	if _, err := sm.Open(app.OpenRequest{}); !errors.Is(err, app.ErrManagerClosed) {
		t.Errorf("Open() = %v, want ErrManagerClosed", err)
	}
}
