package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotRepository persists whole-store snapshots as one blob per store.
// A save replaces the previous blob in a single statement, which gives each
// store the atomic whole-snapshot read/write it requires.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// Load returns the snapshot blob for a store. ErrNotFound when the store has
// never been saved.
func (r *SnapshotRepository) Load(ctx context.Context, store string) ([]byte, error) {
	query := `SELECT data FROM snapshots WHERE store = $1`

	var data []byte
	err := r.pool.QueryRow(ctx, query, store).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot %q: %w", store, err)
	}
	return data, nil
}

// Save replaces the snapshot blob for a store.
func (r *SnapshotRepository) Save(ctx context.Context, store string, data []byte) error {
	query := `
		INSERT INTO snapshots (store, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (store) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, store, data); err != nil {
		return fmt.Errorf("saving snapshot %q: %w", store, err)
	}
	return nil
}
