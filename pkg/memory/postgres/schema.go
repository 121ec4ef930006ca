// Package postgres provides a PostgreSQL-backed [memory.ExchangeStore].
//
// Exchanges live in a single table with a GIN full-text index over the input
// and response text, so keyword recall ("what did I say about the weather")
// is served by plainto_tsquery without any extension.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	_ = store.SaveExchange(ctx, ex)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlExchanges = `
CREATE TABLE IF NOT EXISTS exchanges (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    input       TEXT         NOT NULL,
    response    TEXT         NOT NULL,
    intent      TEXT         NOT NULL DEFAULT '',
    topic       TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_exchanges_session_created
    ON exchanges (session_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_exchanges_fts
    ON exchanges USING GIN (to_tsvector('english', input || ' ' || response));
`

// Migrate creates the exchanges table and its indexes if they do not exist.
// It is idempotent and safe to run on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlExchanges); err != nil {
		return fmt.Errorf("postgres migrate: exchanges: %w", err)
	}
	return nil
}
