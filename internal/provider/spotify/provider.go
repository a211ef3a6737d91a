// Package spotify adapts the Spotify catalog API to the provider contract.
// It runs under the client-credentials flow: no user is involved, only the
// public catalog surface (new releases, album search).
package spotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/justestif/sonium/internal/catalog"
	"github.com/justestif/sonium/internal/provider"
)

// Name is the provider name recorded on albums sourced from Spotify.
const Name = "spotify"

// Provider wraps the Spotify API client with the provider contract.
type Provider struct {
	api     *spotify.Client
	country string
}

// New creates a Spotify provider using the client-credentials flow. The
// token source refreshes itself; ctx bounds only the initial token exchange.
func New(ctx context.Context, clientID, clientSecret string) (*Provider, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("missing Spotify client credentials")
	}

	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	httpClient := config.Client(ctx)
	return &Provider{
		api:     spotify.New(httpClient),
		country: "US",
	}, nil
}

// NewWithClient wraps an already constructed API client, used by tests.
func NewWithClient(api *spotify.Client) *Provider {
	return &Provider{api: api, country: "US"}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return Name }

// FetchRecent returns Spotify's new releases.
func (p *Provider) FetchRecent(ctx context.Context, limit, offset int) ([]catalog.Album, error) {
	page, err := p.api.NewReleases(ctx,
		spotify.Limit(limit),
		spotify.Offset(offset),
		spotify.Country(p.country),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching new releases: %v", provider.ErrUnavailable, err)
	}
	return convertAlbums(page.Albums), nil
}

// Search queries the Spotify album catalog.
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]catalog.Album, error) {
	results, err := p.api.Search(ctx, query, spotify.SearchTypeAlbum, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: searching albums: %v", provider.ErrUnavailable, err)
	}
	if results.Albums == nil {
		return nil, nil
	}
	return convertAlbums(results.Albums.Albums), nil
}

func convertAlbums(simples []spotify.SimpleAlbum) []catalog.Album {
	albums := make([]catalog.Album, 0, len(simples))
	for _, sa := range simples {
		album, ok := convertAlbum(sa)
		if !ok {
			continue
		}
		albums = append(albums, album)
	}
	return albums
}

// convertAlbum maps a Spotify SimpleAlbum to the canonical record. Artist
// names are joined with ", "; the first (largest) image is the cover.
func convertAlbum(sa spotify.SimpleAlbum) (catalog.Album, bool) {
	if sa.ID == "" || sa.Name == "" || len(sa.Artists) == 0 {
		return catalog.Album{}, false
	}

	names := make([]string, len(sa.Artists))
	for i, a := range sa.Artists {
		names[i] = a.Name
	}

	album := catalog.Album{
		ID:          sa.ID.String(),
		Title:       sa.Name,
		Artist:      strings.Join(names, ", "),
		ReleaseDate: catalog.UnknownDate,
		Source:      Name,
	}
	if sa.ReleaseDate != "" {
		album.ReleaseDate = sa.ReleaseDate
	}
	if id := sa.Artists[0].ID.String(); id != "" {
		album.ArtistID = &id
	}
	if len(sa.Images) > 0 {
		url := sa.Images[0].URL
		album.CoverURL = &url
	}
	return album, true
}
