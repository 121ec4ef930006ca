package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/maxassist/pkg/memory"
)

// MemoryGuard wraps a [memory.ExchangeStore] and makes all operations
// non-fatal. If the underlying store fails, operations return defaults
// and log warnings instead of propagating errors.
//
// This keeps conversations going while the archive backend is temporarily
// unavailable (database restart, network partition). IsDegraded reports
// whether the most recent operation failed.
//
// MemoryGuard implements [memory.ExchangeStore] and [memory.Pinger].
//
// All methods are safe for concurrent use.
type MemoryGuard struct {
	store    memory.ExchangeStore
	degraded atomic.Bool
}

// NewMemoryGuard creates a new [MemoryGuard] wrapping the given store.
func NewMemoryGuard(store memory.ExchangeStore) *MemoryGuard {
	return &MemoryGuard{store: store}
}

// SaveExchange attempts to archive ex. On failure the error is logged and
// swallowed; the store is marked as degraded.
func (mg *MemoryGuard) SaveExchange(ctx context.Context, ex memory.Exchange) error {
	if err := mg.store.SaveExchange(ctx, ex); err != nil {
		mg.degraded.Store(true)
		slog.Warn("memory guard: SaveExchange failed, swallowing error",
			"session_id", ex.SessionID,
			"error", err,
		)
		return nil
	}
	mg.degraded.Store(false)
	return nil
}

// RecentExchanges attempts to read the latest exchanges of a session.
// On failure an empty slice is returned and the store is marked as degraded.
func (mg *MemoryGuard) RecentExchanges(ctx context.Context, sessionID string, limit int) ([]memory.Exchange, error) {
	out, err := mg.store.RecentExchanges(ctx, sessionID, limit)
	if err != nil {
		mg.degraded.Store(true)
		slog.Warn("memory guard: RecentExchanges failed, returning empty",
			"session_id", sessionID,
			"limit", limit,
			"error", err,
		)
		return []memory.Exchange{}, nil
	}
	mg.degraded.Store(false)
	return out, nil
}

// SearchExchanges attempts a keyword search. On failure an empty slice is
// returned and the store is marked as degraded.
func (mg *MemoryGuard) SearchExchanges(ctx context.Context, query string, opts memory.SearchOpts) ([]memory.Exchange, error) {
	out, err := mg.store.SearchExchanges(ctx, query, opts)
	if err != nil {
		mg.degraded.Store(true)
		slog.Warn("memory guard: SearchExchanges failed, returning empty",
			"query", query,
			"error", err,
		)
		return []memory.Exchange{}, nil
	}
	mg.degraded.Store(false)
	return out, nil
}

// DeleteSession attempts to drop a session's archive. Failures are logged
// and swallowed.
func (mg *MemoryGuard) DeleteSession(ctx context.Context, sessionID string) error {
	if err := mg.store.DeleteSession(ctx, sessionID); err != nil {
		mg.degraded.Store(true)
		slog.Warn("memory guard: DeleteSession failed, swallowing error", "session_id", sessionID, "err", err)
		return nil
	}
	mg.degraded.Store(false)
	return nil
}

// Ping checks the underlying store when it supports it. Unlike the data
// methods it returns the error, so health checks can report it; it does not
// touch the degraded flag.
func (mg *MemoryGuard) Ping(ctx context.Context) error {
	if p, ok := mg.store.(memory.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// IsDegraded reports whether the store is currently operating in degraded
// mode (i.e., the most recent operation on the underlying store failed).
func (mg *MemoryGuard) IsDegraded() bool {
	return mg.degraded.Load()
}

var (
	_ memory.ExchangeStore = (*MemoryGuard)(nil)
	_ memory.Pinger        = (*MemoryGuard)(nil)
)
