// Package provider defines the contract every external album source adapts
// to, plus the shared failure taxonomy. Adapters normalize one upstream's
// response shape into catalog.Album records and know nothing about other
// providers; ordering and fallback live in the sync engine.
package provider

import (
	"context"
	"errors"

	"github.com/justestif/sonium/internal/catalog"
)

// Sentinel errors. Adapters map upstream failures onto these so the fallback
// chain can treat all providers uniformly.
var (
	// ErrUnavailable covers network failures, timeouts and non-success
	// responses.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrMalformed is returned when a response is missing required fields.
	ErrMalformed = errors.New("malformed provider data")
)

// Provider is one external source of album metadata.
type Provider interface {
	// Name identifies the provider in logs and refresh results.
	Name() string

	// FetchRecent returns recently released albums. An empty slice with a
	// nil error means the provider responded but has nothing to offer.
	FetchRecent(ctx context.Context, limit, offset int) ([]catalog.Album, error)

	// Search returns albums matching the query.
	Search(ctx context.Context, query string, limit int) ([]catalog.Album, error)
}

// CoverFetcher resolves artwork for an album. A missing image is not an
// error: implementations return ("", nil) when no artwork exists.
type CoverFetcher interface {
	FetchCover(ctx context.Context, albumID string) (string, error)
}
