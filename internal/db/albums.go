package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Album is an album row in the local catalog cache table.
type Album struct {
	ID          string
	Title       string
	Artist      string
	ArtistID    *string
	ReleaseDate string // ISO date string or "Unknown"
	CoverURL    *string
	Rating      *float64
	Genres      []string
	Source      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AlbumRepository handles album database operations.
type AlbumRepository struct {
	pool *pgxpool.Pool
}

// UpsertBatch inserts or updates multiple albums. The conflict branch is a
// field-wise overlay: empty or null incoming values keep the stored ones.
func (r *AlbumRepository) UpsertBatch(ctx context.Context, albums []Album) error {
	if len(albums) == 0 {
		return nil
	}

	// unnest flattens multidimensional arrays, which rules out the usual
	// single-statement array upsert for the genres column; pgx.Batch keeps
	// it one round trip anyway.
	batchQuery := `
		INSERT INTO albums (id, title, artist, artist_id, release_date, cover_url, rating, genres, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			title        = COALESCE(NULLIF(EXCLUDED.title, ''), albums.title),
			artist       = COALESCE(NULLIF(EXCLUDED.artist, ''), albums.artist),
			artist_id    = COALESCE(EXCLUDED.artist_id, albums.artist_id),
			release_date = COALESCE(NULLIF(EXCLUDED.release_date, ''), albums.release_date),
			cover_url    = COALESCE(EXCLUDED.cover_url, albums.cover_url),
			rating       = COALESCE(EXCLUDED.rating, albums.rating),
			genres       = CASE WHEN cardinality(EXCLUDED.genres) > 0 THEN EXCLUDED.genres ELSE albums.genres END,
			source       = COALESCE(NULLIF(EXCLUDED.source, ''), albums.source),
			updated_at   = NOW()
	`

	batch := &pgx.Batch{}
	for _, a := range albums {
		genres := a.Genres
		if genres == nil {
			genres = []string{}
		}
		batch.Queue(batchQuery,
			a.ID, a.Title, a.Artist, a.ArtistID, a.ReleaseDate,
			a.CoverURL, a.Rating, genres, a.Source,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range albums {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch upserting albums: %w", err)
		}
	}
	return nil
}

// Recent retrieves albums ordered by release date descending. Records with
// an unknown date come last.
func (r *AlbumRepository) Recent(ctx context.Context, limit, offset int) ([]Album, error) {
	query := `
		SELECT id, title, artist, artist_id, release_date, cover_url, rating, genres, source, created_at, updated_at
		FROM albums
		ORDER BY (release_date = 'Unknown') ASC, release_date DESC, created_at ASC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying recent albums: %w", err)
	}
	defer rows.Close()
	return scanAlbums(rows)
}

// Search finds albums whose title or artist contains the query,
// case-insensitively.
func (r *AlbumRepository) Search(ctx context.Context, query string, limit int) ([]Album, error) {
	sql := `
		SELECT id, title, artist, artist_id, release_date, cover_url, rating, genres, source, created_at, updated_at
		FROM albums
		WHERE title ILIKE $1 OR artist ILIKE $1
		ORDER BY (release_date = 'Unknown') ASC, release_date DESC, created_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, sql, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("searching albums: %w", err)
	}
	defer rows.Close()
	return scanAlbums(rows)
}

// Get retrieves an album by ID.
func (r *AlbumRepository) Get(ctx context.Context, id string) (*Album, error) {
	query := `
		SELECT id, title, artist, artist_id, release_date, cover_url, rating, genres, source, created_at, updated_at
		FROM albums
		WHERE id = $1
	`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("querying album: %w", err)
	}
	defer rows.Close()

	albums, err := scanAlbums(rows)
	if err != nil {
		return nil, err
	}
	if len(albums) == 0 {
		return nil, ErrNotFound
	}
	return &albums[0], nil
}

func scanAlbums(rows pgx.Rows) ([]Album, error) {
	var albums []Album
	for rows.Next() {
		var a Album
		if err := rows.Scan(
			&a.ID,
			&a.Title,
			&a.Artist,
			&a.ArtistID,
			&a.ReleaseDate,
			&a.CoverURL,
			&a.Rating,
			&a.Genres,
			&a.Source,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning album: %w", err)
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}
