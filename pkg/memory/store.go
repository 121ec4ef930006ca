// Package memory defines the exchange archive: durable storage for every
// (utterance, response) pair a conversation produces.
//
// The in-process conversation memory (package convo) is a small ring buffer
// that forgets on restart. The archive keeps the complete history so that a
// session resumed by ID can be rehydrated and so the user can ask what they
// said earlier ("what did I say about the weather").
//
// All interfaces are public so that alternative backends (PostgreSQL, Redis,
// in-memory, ...) can be plugged in. Every implementation must be safe for
// concurrent use.
package memory

import (
	"context"
	"time"
)

// Exchange is one recorded turn of a conversation.
type Exchange struct {
	// SessionID identifies the conversation the exchange belongs to.
	SessionID string

	// Input is the user's utterance as heard, before normalisation.
	Input string

	// Response is the text the assistant answered with.
	Response string

	// Intent is the classified intent of Input (e.g. "weather").
	Intent string

	// Topic is the conversation topic recorded for the exchange. Empty when
	// the turn carried no topic (arithmetic, fallback).
	Topic string

	// Timestamp is when the exchange was recorded.
	Timestamp time.Time
}

// SearchOpts configures a keyword search over archived exchanges.
// All non-zero fields are applied as AND conditions.
type SearchOpts struct {
	// SessionID restricts the search to a single session.
	// An empty string searches across all sessions.
	SessionID string

	// Intent restricts results to exchanges with this intent.
	Intent string

	// After filters exchanges recorded after this instant (exclusive).
	After time.Time

	// Limit caps the number of results. Zero lets the backend choose.
	Limit int
}

// ExchangeStore is the durable exchange archive.
type ExchangeStore interface {
	// SaveExchange appends ex to the archive. A zero Timestamp is replaced
	// with the current time.
	SaveExchange(ctx context.Context, ex Exchange) error

	// RecentExchanges returns up to limit exchanges of sessionID, most
	// recent first. An unknown session yields an empty slice, not an error.
	RecentExchanges(ctx context.Context, sessionID string, limit int) ([]Exchange, error)

	// SearchExchanges returns exchanges whose input or response matches the
	// keywords in query, most recent first.
	SearchExchanges(ctx context.Context, query string, opts SearchOpts) ([]Exchange, error)

	// DeleteSession removes every exchange of sessionID.
	DeleteSession(ctx context.Context, sessionID string) error
}

// Pinger is implemented by stores that can report backend reachability.
// Health checks use it when available.
type Pinger interface {
	Ping(ctx context.Context) error
}
