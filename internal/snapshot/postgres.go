package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists one row per store_key in the snapshot_state table:
// (store_key, version, state_json, updated_at). Mutate runs the read-modify-
// write cycle inside a single transaction using SELECT ... FOR UPDATE so
// concurrent writers on the same key serialize instead of racing.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (p *PostgresStore) Read(ctx context.Context, key string) (State, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT version, state_json FROM snapshot_state WHERE store_key = $1`, key)

	var version int
	var data []byte
	if err := row.Scan(&version, &data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("snapshot: reading %q: %w", key, err)
	}
	return State{Version: version, Data: json.RawMessage(data)}, nil
}

func (p *PostgresStore) Mutate(ctx context.Context, key string, fn MutateFunc) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: beginning transaction for %q: %w", key, err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT version, state_json FROM snapshot_state WHERE store_key = $1 FOR UPDATE`, key)

	var version int
	var data []byte
	err = row.Scan(&version, &data)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		version, data = 0, nil
	case err != nil:
		return fmt.Errorf("snapshot: locking %q: %w", key, err)
	}

	current := State{Version: version, Data: json.RawMessage(data)}
	next, err := fn(current)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO snapshot_state (store_key, version, state_json, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (store_key) DO UPDATE
		SET version = $2, state_json = $3, updated_at = now()
		WHERE snapshot_state.version = $4`,
		key, current.Version+1, []byte(next), current.Version)
	if err != nil {
		return fmt.Errorf("snapshot: persisting %q: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("snapshot: committing %q: %w", key, err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
