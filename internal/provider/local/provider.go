// Package local is the primary provider: the album cache table in the local
// database. It is first in the fallback chain and also receives a backfill
// of batches fetched from the remote providers.
package local

import (
	"context"
	"fmt"

	"github.com/justestif/sonium/internal/catalog"
	"github.com/justestif/sonium/internal/db"
	"github.com/justestif/sonium/internal/provider"
)

// Name is the provider name recorded on albums sourced from the local cache.
const Name = "local"

// Provider serves albums from the local database cache.
type Provider struct {
	repo *db.AlbumRepository
}

// New creates a local provider over the album repository.
func New(repo *db.AlbumRepository) *Provider {
	return &Provider{repo: repo}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return Name }

// FetchRecent returns cached albums ordered by release date descending.
func (p *Provider) FetchRecent(ctx context.Context, limit, offset int) ([]catalog.Album, error) {
	rows, err := p.repo.Recent(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
	}
	return toCatalog(rows), nil
}

// Search matches cached albums on title or artist.
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]catalog.Album, error) {
	rows, err := p.repo.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
	}
	return toCatalog(rows), nil
}

// StoreBatch backfills the cache table with albums fetched from a remote
// provider, so the next refresh cycle can be served locally.
func (p *Provider) StoreBatch(ctx context.Context, albums []catalog.Album) error {
	rows := make([]db.Album, len(albums))
	for i, a := range albums {
		rows[i] = db.Album{
			ID:          a.ID,
			Title:       a.Title,
			Artist:      a.Artist,
			ArtistID:    a.ArtistID,
			ReleaseDate: a.ReleaseDate,
			CoverURL:    a.CoverURL,
			Rating:      a.Rating,
			Genres:      a.Genres,
			Source:      a.Source,
		}
	}
	if err := p.repo.UpsertBatch(ctx, rows); err != nil {
		return fmt.Errorf("backfilling album cache: %w", err)
	}
	return nil
}

func toCatalog(rows []db.Album) []catalog.Album {
	albums := make([]catalog.Album, len(rows))
	for i, r := range rows {
		releaseDate := r.ReleaseDate
		if releaseDate == "" {
			releaseDate = catalog.UnknownDate
		}
		source := r.Source
		if source == "" {
			source = Name
		}
		albums[i] = catalog.Album{
			ID:          r.ID,
			Title:       r.Title,
			Artist:      r.Artist,
			ArtistID:    r.ArtistID,
			ReleaseDate: releaseDate,
			CoverURL:    r.CoverURL,
			Rating:      r.Rating,
			Genres:      r.Genres,
			Source:      source,
		}
	}
	return albums
}
