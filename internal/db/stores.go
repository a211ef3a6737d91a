package db

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/justestif/sonium/internal/catalog"
	"github.com/justestif/sonium/internal/ratings"
	"github.com/justestif/sonium/internal/users"
)

// Snapshot store keys.
const (
	catalogStore = "catalog"
	ratingsStore = "ratings"
	usersStore   = "users"
)

// CatalogSnapshots adapts the blob repository to catalog.Snapshotter.
type CatalogSnapshots struct {
	repo *SnapshotRepository
}

// CatalogSnapshots returns a catalog.Snapshotter backed by this database.
func (db *DB) CatalogSnapshots() *CatalogSnapshots {
	return &CatalogSnapshots{repo: db.Snapshots()}
}

// Load implements catalog.Snapshotter.
func (s *CatalogSnapshots) Load(ctx context.Context) (*catalog.Snapshot, error) {
	var snap catalog.Snapshot
	if err := loadSnapshot(ctx, s.repo, catalogStore, &snap); err != nil {
		return nil, err
	}
	if snap.Albums == nil && snap.LastRefreshedAt == nil {
		return nil, nil
	}
	return &snap, nil
}

// Save implements catalog.Snapshotter.
func (s *CatalogSnapshots) Save(ctx context.Context, snap *catalog.Snapshot) error {
	return saveSnapshot(ctx, s.repo, catalogStore, snap)
}

// RatingSnapshots adapts the blob repository to ratings.Snapshotter.
type RatingSnapshots struct {
	repo *SnapshotRepository
}

// RatingSnapshots returns a ratings.Snapshotter backed by this database.
func (db *DB) RatingSnapshots() *RatingSnapshots {
	return &RatingSnapshots{repo: db.Snapshots()}
}

// Load implements ratings.Snapshotter.
func (s *RatingSnapshots) Load(ctx context.Context) (*ratings.Snapshot, error) {
	var snap ratings.Snapshot
	if err := loadSnapshot(ctx, s.repo, ratingsStore, &snap); err != nil {
		return nil, err
	}
	if snap.Ratings == nil && snap.Collections == nil {
		return nil, nil
	}
	return &snap, nil
}

// Save implements ratings.Snapshotter.
func (s *RatingSnapshots) Save(ctx context.Context, snap *ratings.Snapshot) error {
	return saveSnapshot(ctx, s.repo, ratingsStore, snap)
}

// UserSnapshots adapts the blob repository to users.Snapshotter.
type UserSnapshots struct {
	repo *SnapshotRepository
}

// UserSnapshots returns a users.Snapshotter backed by this database.
func (db *DB) UserSnapshots() *UserSnapshots {
	return &UserSnapshots{repo: db.Snapshots()}
}

// Load implements users.Snapshotter.
func (s *UserSnapshots) Load(ctx context.Context) (*users.Snapshot, error) {
	var snap users.Snapshot
	if err := loadSnapshot(ctx, s.repo, usersStore, &snap); err != nil {
		return nil, err
	}
	if snap.Users == nil {
		return nil, nil
	}
	return &snap, nil
}

// Save implements users.Snapshotter.
func (s *UserSnapshots) Save(ctx context.Context, snap *users.Snapshot) error {
	return saveSnapshot(ctx, s.repo, usersStore, snap)
}

func loadSnapshot(ctx context.Context, repo *SnapshotRepository, store string, out any) error {
	data, err := repo.Load(ctx, store)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s snapshot: %w", store, err)
	}
	return nil
}

func saveSnapshot(ctx context.Context, repo *SnapshotRepository, store string, snap any) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding %s snapshot: %w", store, err)
	}
	return repo.Save(ctx, store, data)
}
