// Package postgres provides a PostgreSQL-backed [journal.Store].
//
// Entries live in a single exchanges table. [Migrate] creates it and is
// safe to run on every start.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Record(ctx, journal.Entry{Query: "Any storm warnings in CA?", …})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlExchanges = `
CREATE TABLE IF NOT EXISTS exchanges (
    id           BIGSERIAL    PRIMARY KEY,
    at           TIMESTAMPTZ  NOT NULL DEFAULT now(),
    duration_ns  BIGINT       NOT NULL DEFAULT 0,
    query        TEXT         NOT NULL,
    answer       TEXT         NOT NULL DEFAULT '',
    tool         TEXT         NOT NULL DEFAULT '',
    arguments    JSONB        NOT NULL DEFAULT '{}',
    strategy     TEXT         NOT NULL DEFAULT '',
    tool_error   TEXT         NOT NULL DEFAULT '',
    error        TEXT         NOT NULL DEFAULT '',
    trace_id     TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_exchanges_at ON exchanges (at DESC);
CREATE INDEX IF NOT EXISTS idx_exchanges_tool ON exchanges (tool) WHERE tool <> '';
`

// Migrate creates the exchanges table and its indexes if missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlExchanges); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
