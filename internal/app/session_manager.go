package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/maxassist/internal/config"
	"github.com/MrWong99/maxassist/internal/convo"
	"github.com/MrWong99/maxassist/internal/listen"
	"github.com/MrWong99/maxassist/internal/observe"
	"github.com/MrWong99/maxassist/internal/respond"
	"github.com/MrWong99/maxassist/internal/session"
	"github.com/MrWong99/maxassist/internal/speak"
	"github.com/MrWong99/maxassist/pkg/memory"
	"github.com/MrWong99/maxassist/pkg/provider/stt"
)

var (
	// ErrSessionActive is returned by Open when a session with the requested
	// ID is already live.
	ErrSessionActive = errors.New("app: session already active")

	// ErrInvalidSessionID is returned by Open when the requested ID is not a
	// UUID.
	ErrInvalidSessionID = errors.New("app: invalid session id")

	// ErrManagerClosed is returned by Open after CloseAll.
	ErrManagerClosed = errors.New("app: session manager closed")
)

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Config *config.Config

	// Resolver returns the resolver new sessions answer through.
	Resolver func() *respond.Resolver

	// Archive is optional.
	Archive memory.ExchangeStore

	// Warmer is optional; it enables the advanced-mode command.
	Warmer session.Warmer

	// Speaker is optional; without it replies are text only.
	Speaker *speak.Speaker

	Metrics *observe.Metrics
}

// OpenRequest describes a session to open.
type OpenRequest struct {
	// ID resumes the conversation archived under this ID. Empty starts a new
	// conversation with a fresh ID.
	ID string

	// Recognizer feeds the session's listening state machine. Nil means the
	// session accepts typed input only.
	Recognizer stt.Provider

	// Sink receives synthesized reply audio. Nil disables speech for this
	// session.
	Sink speak.Sink
}

// managed is a live session and the machine it runs, if any.
type managed struct {
	sess    *session.Session
	machine *listen.Machine
}

// SessionManager is the registry of live conversations. Each conversation
// is an independent [session.Session] running on its own goroutine.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	resolver func() *respond.Resolver
	archive  memory.ExchangeStore
	warmer   session.Warmer
	speaker  *speak.Speaker
	metrics  *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	cfg    *config.Config
	live   map[string]*managed
	closed bool
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		resolver: cfg.Resolver,
		archive:  cfg.Archive,
		warmer:   cfg.Warmer,
		speaker:  cfg.Speaker,
		metrics:  cfg.Metrics,
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg.Config,
		live:     make(map[string]*managed),
	}
}

// Open starts a session and returns it running. The caller must drain the
// session's events and should Close it when the client goes away; the
// session is removed from the registry once it stops.
func (sm *SessionManager) Open(req OpenRequest) (*session.Session, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return nil, ErrManagerClosed
	}
	if _, ok := sm.live[id]; ok {
		return nil, fmt.Errorf("%w (id=%s)", ErrSessionActive, id)
	}

	cfg := sm.cfg
	mem := convo.New(
		convo.WithCapacity(cfg.Memory.Capacity),
		convo.WithTopicLimit(cfg.Memory.TopicLimit),
		convo.WithAssistantName(cfg.Assistant.Name),
	)
	opts := []session.Option{
		session.WithMemory(mem),
		session.WithMetrics(sm.metrics),
		session.WithHistoryLimit(cfg.Memory.Capacity),
	}
	if sm.archive != nil {
		opts = append(opts, session.WithArchive(sm.archive))
	}
	if sm.warmer != nil {
		opts = append(opts, session.WithWarmer(sm.warmer))
	}
	if sm.speaker != nil && req.Sink != nil {
		opts = append(opts, session.WithSpeaker(sm.speaker, req.Sink))
	}

	m := &managed{}
	if req.Recognizer != nil {
		m.machine = listen.New(req.Recognizer, listen.ConfigFrom(cfg.Assistant, cfg.Listen),
			listen.WithLogger(slog.With("session_id", id)),
		)
		opts = append(opts, session.WithListener(m.machine))
	}
	m.sess = session.New(id, sm.resolver(), opts...)
	sm.live[id] = m

	sm.wg.Go(func() {
		if err := m.sess.Run(sm.ctx); err != nil {
			slog.Warn("session run error", "session_id", id, "err", err)
		}
		sm.mu.Lock()
		if sm.live[id] == m {
			delete(sm.live, id)
		}
		sm.mu.Unlock()
	})

	slog.Info("session opened",
		"session_id", id,
		"resumed", req.ID != "",
		"listening", m.machine != nil,
		"speech", sm.speaker != nil && req.Sink != nil,
	)
	return m.sess, nil
}

// Get returns the live session with the given ID.
func (sm *SessionManager) Get(id string) (*session.Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	m, ok := sm.live[id]
	if !ok {
		return nil, false
	}
	return m.sess, true
}

// List returns a summary of every live session, oldest first.
func (sm *SessionManager) List() []session.Info {
	sm.mu.Lock()
	infos := make([]session.Info, 0, len(sm.live))
	for _, m := range sm.live {
		infos = append(infos, m.sess.Info())
	}
	sm.mu.Unlock()

	slices.SortFunc(infos, func(a, b session.Info) int {
		if c := a.Started.Compare(b.Started); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

// Close stops the live session with the given ID. It reports whether such a
// session existed.
func (sm *SessionManager) Close(id string) bool {
	sm.mu.Lock()
	m, ok := sm.live[id]
	sm.mu.Unlock()
	if ok {
		m.sess.Close()
	}
	return ok
}

// SetConfig replaces the configuration used for new sessions and pushes the
// listening tunables into every live state machine. It returns the number
// of machines updated.
func (sm *SessionManager) SetConfig(cfg *config.Config) int {
	lc := listen.ConfigFrom(cfg.Assistant, cfg.Listen)

	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.cfg = cfg
	n := 0
	for _, m := range sm.live {
		if m.machine != nil {
			m.machine.SetConfig(lc)
			n++
		}
	}
	return n
}

// CloseAll stops every session and waits for them to finish, or for ctx to
// end. Open fails afterwards.
func (sm *SessionManager) CloseAll(ctx context.Context) error {
	sm.mu.Lock()
	sm.closed = true
	sm.mu.Unlock()
	sm.cancel()

	done := make(chan struct{})
	go func() {
		sm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
