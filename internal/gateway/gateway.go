// Package gateway connects browsers to conversation sessions over a
// websocket.
//
// The browser runs speech recognition locally. It forwards recognition
// results, engine ends and engine errors to the server, which feeds them
// into the session's listening state machine through a [relay.Relay]. The
// server sends back session events as JSON text frames and synthesized
// reply audio as binary frames.
//
// Client frames:
//
//	{"type":"result","transcript":"hey max","confidence":0.92,"final":true}
//	{"type":"end"}
//	{"type":"error","error":"not-allowed"}
//	{"type":"text","text":"what time is it"}
//
// Server frames:
//
//	{"type":"session","id":"..."}
//	{"type":"listen"}
//	{"type":"wake"}
//	{"type":"reply","text":"...","intent":"time"}
//	{"type":"state","state":"capturing"}
//	{"type":"timeout"}
//	{"type":"reminder","text":"Reminder: call mom"}
//	{"type":"stopped","error":"..."}
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/maxassist/internal/app"
	"github.com/MrWong99/maxassist/internal/observe"
	"github.com/MrWong99/maxassist/internal/session"
	"github.com/MrWong99/maxassist/pkg/provider/stt"
	"github.com/MrWong99/maxassist/pkg/provider/stt/relay"
)

// Sessions opens and closes conversations. [*app.SessionManager]
// implements it.
type Sessions interface {
	Open(req app.OpenRequest) (*session.Session, error)
	Close(id string) bool
	List() []session.Info
}

var _ Sessions = (*app.SessionManager)(nil)

// errSessionEnded stops a connection whose session has stopped.
var errSessionEnded = errors.New("gateway: session ended")

// clientFrame is a frame sent by the browser.
type clientFrame struct {
	Type       string  `json:"type"`
	Transcript string  `json:"transcript,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Final      bool    `json:"final,omitempty"`
	Error      string  `json:"error,omitempty"`
	Text       string  `json:"text,omitempty"`
}

// serverFrame is a JSON frame sent to the browser.
type serverFrame struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Text   string `json:"text,omitempty"`
	Intent string `json:"intent,omitempty"`
	State  string `json:"state,omitempty"`
	Error  string `json:"error,omitempty"`
}

// outbound is one queued websocket message.
type outbound struct {
	typ  websocket.MessageType
	data []byte
}

// Option configures a [Handler].
type Option func(*Handler)

// WithOriginPatterns allows cross-origin connections from hosts matching
// the given patterns. By default only same-origin connections are
// accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.origins = patterns }
}

// WithWriteTimeout bounds each websocket write. Default: 10s.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithQueueSize sets how many outbound frames may wait for the writer.
// Default: 64.
func WithQueueSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.queue = n
		}
	}
}

// Handler serves the /ws endpoint. One websocket connection is one session.
type Handler struct {
	sessions     Sessions
	origins      []string
	writeTimeout time.Duration
	queue        int
}

// New creates a Handler that opens sessions through sessions.
func New(sessions Sessions, opts ...Option) *Handler {
	h := &Handler{
		sessions:     sessions,
		writeTimeout: 10 * time.Second,
		queue:        64,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds the /ws and /api/sessions routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /ws", h)
	mux.HandleFunc("GET /api/sessions", h.ListSessions)
}

// ListSessions writes a JSON summary of every live session.
func (h *Handler) ListSessions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(struct {
		Sessions []session.Info `json:"sessions"`
	}{Sessions: h.sessions.List()}); err != nil {
		http.Error(w, `{"error":"encode"}`, http.StatusInternalServerError)
	}
}

// ServeHTTP upgrades the request and runs the session until either side
// goes away. The optional "session" query parameter resumes an archived
// conversation.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		log.Warn("gateway: accept failed", "err", err)
		return
	}
	defer ws.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &conn{
		ws:           ws,
		ctx:          ctx,
		out:          make(chan outbound, h.queue),
		writeTimeout: h.writeTimeout,
	}
	rel := relay.New(relay.WithOnStart(func(stt.StreamConfig) {
		c.enqueue(serverFrame{Type: "listen"})
	}))
	defer rel.Close()

	sess, err := h.sessions.Open(app.OpenRequest{
		ID:         r.URL.Query().Get("session"),
		Recognizer: rel,
		Sink:       c.sendAudio,
	})
	if err != nil {
		log.Warn("gateway: open session failed", "err", err)
		ws.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	defer h.sessions.Close(sess.ID())

	log = log.With("session_id", sess.ID())
	log.Info("gateway: connected", "remote", r.RemoteAddr)
	c.enqueue(serverFrame{Type: "session", ID: sess.ID()})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx, rel, sess) })
	g.Go(func() error { return c.writeLoop(gctx, sess.Events()) })
	err = g.Wait()

	switch {
	case errors.Is(err, errSessionEnded):
		ws.Close(websocket.StatusGoingAway, "session ended")
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway,
		errors.Is(err, context.Canceled):
		ws.Close(websocket.StatusNormalClosure, "")
	default:
		log.Warn("gateway: connection error", "err", err)
		ws.Close(websocket.StatusInternalError, "connection error")
	}
	log.Info("gateway: disconnected")
}

// conn is one browser connection.
type conn struct {
	ws           *websocket.Conn
	ctx          context.Context
	out          chan outbound
	writeTimeout time.Duration
}

// enqueue queues f without blocking. Frames are dropped when the queue is
// full.
func (c *conn) enqueue(f serverFrame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	select {
	case c.out <- outbound{typ: websocket.MessageText, data: data}:
	default:
		observe.Logger(c.ctx).Warn("gateway: outbound queue full, frame dropped", "type", f.Type)
	}
}

// sendAudio queues one chunk of reply audio, waiting for room.
func (c *conn) sendAudio(chunk []byte) error {
	select {
	case c.out <- outbound{typ: websocket.MessageBinary, data: chunk}:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

func (c *conn) readLoop(ctx context.Context, rel *relay.Relay, sess *session.Session) error {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		var f clientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			observe.Logger(ctx).Debug("gateway: bad frame", "err", err)
			continue
		}

		switch f.Type {
		case "result":
			rel.Push(stt.Result{
				Transcript: f.Transcript,
				Confidence: f.Confidence,
				IsFinal:    f.Final,
			})
		case "end":
			rel.End(nil)
		case "error":
			rel.End(&stt.RecognitionError{Kind: stt.ParseErrorKind(f.Error)})
		case "text":
			// The reply reaches the client as a reply event.
			if _, err := sess.Submit(ctx, f.Text); err != nil {
				if errors.Is(err, session.ErrClosed) {
					return errSessionEnded
				}
				return err
			}
		default:
			observe.Logger(ctx).Debug("gateway: unknown frame type", "type", f.Type)
		}
	}
}

func (c *conn) writeLoop(ctx context.Context, events <-chan session.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return errSessionEnded
			}
			if err := c.write(ctx, websocket.MessageText, encodeEvent(ev)); err != nil {
				return err
			}

		case msg := <-c.out:
			if err := c.write(ctx, msg.typ, msg.data); err != nil {
				return err
			}
		}
	}
}

func (c *conn) write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, typ, data)
}

// encodeEvent renders a session event as a server frame.
func encodeEvent(ev session.Event) []byte {
	f := serverFrame{Type: ev.Kind.String()}
	switch ev.Kind {
	case session.EventReply:
		f.Text = ev.Text
		f.Intent = ev.Intent
	case session.EventReminder:
		f.Text = ev.Text
	case session.EventState:
		f.State = ev.State
	case session.EventStopped:
		if ev.Err != nil {
			f.Error = ev.Err.Error()
		}
	}
	data, _ := json.Marshal(f)
	return data
}
