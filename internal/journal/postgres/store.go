package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/weatherbridge/internal/journal"
)

// defaultLimit caps Recent when the caller passes limit <= 0.
const defaultLimit = 100

// Store is a [journal.Store] backed by a [pgxpool.Pool]. Safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var _ journal.Store = (*Store)(nil)

// NewStore connects to the database at dsn, pings it and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("journal store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Record implements [journal.Store].
func (s *Store) Record(ctx context.Context, e journal.Entry) error {
	const q = `
		INSERT INTO exchanges
		    (at, duration_ns, query, answer, tool, arguments, strategy, tool_error, error, trace_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	args := e.Arguments
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("journal store: marshal arguments: %w", err)
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	_, err = s.pool.Exec(ctx, q,
		e.At,
		e.Duration.Nanoseconds(),
		e.Query,
		e.Answer,
		e.Tool,
		argsJSON,
		e.Strategy,
		e.ToolError,
		e.Err,
		e.TraceID,
	)
	if err != nil {
		return fmt.Errorf("journal store: record: %w", err)
	}
	return nil
}

// Recent implements [journal.Store].
func (s *Store) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	const q = `
		SELECT id, at, duration_ns, query, answer, tool, arguments, strategy, tool_error, error, trace_id
		FROM   exchanges
		ORDER  BY id DESC
		LIMIT  $1`

	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("journal store: recent: %w", err)
	}
	return collectEntries(rows)
}

// Ping implements [journal.Store].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("journal store: ping: %w", err)
	}
	return nil
}

// Close implements [journal.Store].
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func collectEntries(rows pgx.Rows) ([]journal.Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (journal.Entry, error) {
		var (
			e          journal.Entry
			durationNS int64
			argsJSON   []byte
		)
		if err := row.Scan(
			&e.ID,
			&e.At,
			&durationNS,
			&e.Query,
			&e.Answer,
			&e.Tool,
			&argsJSON,
			&e.Strategy,
			&e.ToolError,
			&e.Err,
			&e.TraceID,
		); err != nil {
			return journal.Entry{}, err
		}
		e.Duration = time.Duration(durationNS)
		if len(argsJSON) > 0 {
			if err := json.Unmarshal(argsJSON, &e.Arguments); err != nil {
				return journal.Entry{}, fmt.Errorf("decode arguments: %w", err)
			}
		}
		if len(e.Arguments) == 0 {
			e.Arguments = nil
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal store: scan rows: %w", err)
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	return entries, nil
}
