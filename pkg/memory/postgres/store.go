package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/maxassist/pkg/memory"
)

var (
	_ memory.ExchangeStore = (*Store)(nil)
	_ memory.Pinger        = (*Store)(nil)
)

// Store is the PostgreSQL-backed exchange archive. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection, and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping implements [memory.Pinger].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveExchange implements [memory.ExchangeStore].
func (s *Store) SaveExchange(ctx context.Context, ex memory.Exchange) error {
	const q = `
		INSERT INTO exchanges (session_id, input, response, intent, topic, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	ts := ex.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := s.pool.Exec(ctx, q, ex.SessionID, ex.Input, ex.Response, ex.Intent, ex.Topic, ts); err != nil {
		return fmt.Errorf("postgres store: save exchange: %w", err)
	}
	return nil
}

// RecentExchanges implements [memory.ExchangeStore].
func (s *Store) RecentExchanges(ctx context.Context, sessionID string, limit int) ([]memory.Exchange, error) {
	const q = `
		SELECT session_id, input, response, intent, topic, created_at
		FROM   exchanges
		WHERE  session_id = $1
		ORDER  BY created_at DESC, id DESC
		LIMIT  $2`

	if limit <= 0 {
		return []memory.Exchange{}, nil
	}
	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: recent exchanges: %w", err)
	}
	return collectExchanges(rows)
}

// SearchExchanges implements [memory.ExchangeStore] with PostgreSQL full-text
// search. The query is passed to plainto_tsquery, so no operator syntax is
// required.
func (s *Store) SearchExchanges(ctx context.Context, query string, opts memory.SearchOpts) ([]memory.Exchange, error) {
	q, args := buildSearchQuery(query, opts)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search exchanges: %w", err)
	}
	return collectExchanges(rows)
}

// buildSearchQuery renders the SQL and positional arguments for a search.
func buildSearchQuery(query string, opts memory.SearchOpts) (string, []any) {
	args := []any{query}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('english', input || ' ' || response) @@ plainto_tsquery('english', $1)",
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(opts.SessionID))
	}
	if opts.Intent != "" {
		conditions = append(conditions, "intent = "+next(opts.Intent))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "created_at > "+next(opts.After))
	}

	q := "SELECT session_id, input, response, intent, topic, created_at\n" +
		"FROM   exchanges\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		q += "\nLIMIT " + next(opts.Limit)
	}
	return q, args
}

// DeleteSession implements [memory.ExchangeStore].
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM exchanges WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("postgres store: delete session: %w", err)
	}
	return nil
}

// collectExchanges scans pgx rows into a slice of Exchange values.
func collectExchanges(rows pgx.Rows) ([]memory.Exchange, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Exchange, error) {
		var ex memory.Exchange
		err := row.Scan(&ex.SessionID, &ex.Input, &ex.Response, &ex.Intent, &ex.Topic, &ex.Timestamp)
		return ex, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan exchanges: %w", err)
	}
	if out == nil {
		out = []memory.Exchange{}
	}
	return out, nil
}
