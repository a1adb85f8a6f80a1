package kv

import (
	"context"

	perr "chartguard/internal/platform/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the state table; applied by EnsureSchema
const Schema = `
CREATE TABLE IF NOT EXISTS chartguard_state (
    key        text PRIMARY KEY,
    value      jsonb NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT now()
)`

// PG is a Store backed by a single Postgres table. Update serializes per key
// with a row lock inside a transaction, so two near-simultaneous credential
// selections (or cache merges) cannot both read the same pre-update state
type PG struct {
	pool *pgxpool.Pool
}

// OpenPG connects a pgx pool and returns a PG store
func OpenPG(ctx context.Context, url string, maxConns int32) (*PG, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeStore, "kv: parse postgres url")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeStore, "kv: open postgres pool")
	}
	return &PG{pool: pool}, nil
}

// EnsureSchema creates the state table when missing
func (p *PG) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, Schema)
	return perr.WrapIf(err, perr.ErrorCodeStore, "kv: ensure schema")
}

// Ping reports connectivity
func (p *PG) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Close releases the pool
func (p *PG) Close() {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
}

// Get implements Store
func (p *PG) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM chartguard_state WHERE key = $1`, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, perr.Wrapf(err, perr.ErrorCodeStore, "kv: get %q", key)
	}
	return value, true, nil
}

// Set implements Store
func (p *PG) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.pool.Exec(ctx, `
        INSERT INTO chartguard_state (key, value, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
    `, key, value)
	return perr.WrapIf(err, perr.ErrorCodeStore, "kv: set")
}

// Update implements Store. The sentinel row is inserted first so the
// SELECT ... FOR UPDATE always has a row to lock; fn sees found=false when
// the sentinel is still empty
func (p *PG) Update(ctx context.Context, key string, fn UpdateFn) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeStore, "kv: begin update")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
        INSERT INTO chartguard_state (key, value)
        VALUES ($1, 'null'::jsonb)
        ON CONFLICT (key) DO NOTHING
    `, key); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "kv: seed %q", key)
	}

	var cur []byte
	if err := tx.QueryRow(ctx,
		`SELECT value FROM chartguard_state WHERE key = $1 FOR UPDATE`, key).Scan(&cur); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "kv: lock %q", key)
	}

	found := len(cur) > 0 && string(cur) != "null"
	if !found {
		cur = nil
	}

	next, err := fn(cur, found)
	if IsSkip(err) {
		return perr.WrapIf(tx.Commit(ctx), perr.ErrorCodeStore, "kv: commit update")
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE chartguard_state SET value = $2, updated_at = now() WHERE key = $1`,
		key, next); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "kv: write %q", key)
	}
	return perr.WrapIf(tx.Commit(ctx), perr.ErrorCodeStore, "kv: commit update")
}
