// Package mock provides an in-memory test double for [memory.ExchangeStore].
//
// Unlike a pure stub, Store keeps the exchanges it is given, so tests can
// round-trip through it. Every method call is recorded, and the exported
// *Err fields inject failures. Store is safe for concurrent use.
//
// Typical usage:
//
//	store := &mock.Store{}
//	// inject store into the system under test …
//	if got := store.CallCount("SaveExchange"); got != 1 {
//	    t.Errorf("expected 1 SaveExchange call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/maxassist/pkg/memory"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable in-memory [memory.ExchangeStore].
type Store struct {
	mu sync.Mutex

	calls     []Call
	exchanges []memory.Exchange

	// SaveErr is returned by SaveExchange when non-nil. The exchange is not
	// stored.
	SaveErr error

	// RecentErr is returned by RecentExchanges when non-nil.
	RecentErr error

	// SearchErr is returned by SearchExchanges when non-nil.
	SearchErr error

	// DeleteErr is returned by DeleteSession when non-nil.
	DeleteErr error

	// PingErr is returned by Ping.
	PingErr error
}

var (
	_ memory.ExchangeStore = (*Store)(nil)
	_ memory.Pinger        = (*Store)(nil)
)

func (m *Store) record(method string, args ...any) {
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Exchanges returns a copy of everything stored, oldest first.
func (m *Store) Exchanges() []memory.Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]memory.Exchange, len(m.exchanges))
	copy(out, m.exchanges)
	return out
}

// SetSaveErr replaces SaveErr. Thread-safe.
func (m *Store) SetSaveErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveErr = err
}

// SaveExchange implements [memory.ExchangeStore].
func (m *Store) SaveExchange(_ context.Context, ex memory.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SaveExchange", ex)
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if ex.Timestamp.IsZero() {
		ex.Timestamp = time.Now()
	}
	m.exchanges = append(m.exchanges, ex)
	return nil
}

// RecentExchanges implements [memory.ExchangeStore].
func (m *Store) RecentExchanges(_ context.Context, sessionID string, limit int) ([]memory.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("RecentExchanges", sessionID, limit)
	if m.RecentErr != nil {
		return nil, m.RecentErr
	}
	out := []memory.Exchange{}
	for i := len(m.exchanges) - 1; i >= 0 && len(out) < limit; i-- {
		if m.exchanges[i].SessionID == sessionID {
			out = append(out, m.exchanges[i])
		}
	}
	return out, nil
}

// SearchExchanges implements [memory.ExchangeStore] with [memory.Matches].
func (m *Store) SearchExchanges(_ context.Context, query string, opts memory.SearchOpts) ([]memory.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SearchExchanges", query, opts)
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	out := []memory.Exchange{}
	for i := len(m.exchanges) - 1; i >= 0; i-- {
		if memory.Matches(m.exchanges[i], query, opts) {
			out = append(out, m.exchanges[i])
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// DeleteSession implements [memory.ExchangeStore].
func (m *Store) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteSession", sessionID)
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	kept := m.exchanges[:0]
	for _, ex := range m.exchanges {
		if ex.SessionID != sessionID {
			kept = append(kept, ex)
		}
	}
	m.exchanges = kept
	return nil
}

// Ping implements [memory.Pinger].
func (m *Store) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Ping")
	return m.PingErr
}
