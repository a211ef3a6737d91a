package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/justestif/sonium/internal/catalog"
	"github.com/justestif/sonium/internal/provider"
)

func testRelease(id, title, artist, date string) release {
	rel := release{ID: id, Title: title, Date: date}
	if artist != "" {
		var ac artistCredit
		ac.Artist.ID = "artist-" + id
		ac.Artist.Name = artist
		rel.ArtistCredit = []artistCredit{ac}
	}
	return rel
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name     string
		releases []release
		want     []catalog.Album
	}{
		{
			name: "maps releases",
			releases: []release{
				testRelease("mb-1", "Nevermind", "Nirvana", "1991-09-24"),
			},
			want: []catalog.Album{
				{
					ID:          "mb-1",
					Title:       "Nevermind",
					Artist:      "Nirvana",
					ReleaseDate: "1991-09-24",
					Source:      Name,
				},
			},
		},
		{
			name: "missing date becomes sentinel",
			releases: []release{
				testRelease("mb-2", "Bootleg", "Somebody", ""),
			},
			want: []catalog.Album{
				{
					ID:          "mb-2",
					Title:       "Bootleg",
					Artist:      "Somebody",
					ReleaseDate: catalog.UnknownDate,
					Source:      Name,
				},
			},
		},
		{
			name: "skips releases without title or artist",
			releases: []release{
				testRelease("mb-3", "", "Ghost", "2020-01-01"),
				{ID: "mb-4", Title: "Orphan", Date: "2020-01-01"},
				testRelease("mb-5", "Kept", "Keeper", "2020-01-01"),
			},
			want: []catalog.Album{
				{
					ID:          "mb-5",
					Title:       "Kept",
					Artist:      "Keeper",
					ReleaseDate: "2020-01-01",
					Source:      Name,
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/release" {
					t.Errorf("unexpected path %q", r.URL.Path)
				}
				if r.Header.Get("User-Agent") == "" {
					t.Error("missing User-Agent header")
				}
				json.NewEncoder(w).Encode(searchResponse{Count: len(tt.releases), Releases: tt.releases})
			}))
			defer server.Close()

			c := NewClient("test@example.com", WithBaseURL(server.URL))
			got, err := c.Search(context.Background(), "anything", 10)
			if err != nil {
				t.Fatalf("Search returned error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d albums, want %d", len(got), len(tt.want))
			}
			for i, want := range tt.want {
				if got[i].ID != want.ID || got[i].Title != want.Title ||
					got[i].Artist != want.Artist || got[i].ReleaseDate != want.ReleaseDate ||
					got[i].Source != want.Source {
					t.Errorf("album %d = %+v, want %+v", i, got[i], want)
				}
			}
		})
	}
}

func TestFetchRecentQueryWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		json.NewEncoder(w).Encode(searchResponse{})
	}))
	defer server.Close()

	c := NewClient("test@example.com",
		WithBaseURL(server.URL),
		WithRecentWindow(90*24*time.Hour),
		WithClock(func() time.Time { return now }),
	)

	if _, err := c.FetchRecent(context.Background(), 50, 0); err != nil {
		t.Fatalf("FetchRecent returned error: %v", err)
	}

	want := "date:[2025-03-03 TO *]"
	if gotQuery != want {
		t.Errorf("query = %q, want %q", gotQuery, want)
	}
}

func TestDoRequestRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(searchResponse{Releases: []release{
			testRelease("mb-1", "After Retry", "Patience", "2024-01-01"),
		}})
	}))
	defer server.Close()

	c := NewClient("test@example.com", WithBaseURL(server.URL))
	got, err := c.Search(context.Background(), "retry", 10)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("made %d requests, want 2", calls.Load())
	}
	if len(got) != 1 || got[0].ID != "mb-1" {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "server error is unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: provider.ErrUnavailable,
		},
		{
			name: "garbage body is malformed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json at all"))
			},
			wantErr: provider.ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			c := NewClient("test@example.com", WithBaseURL(server.URL))
			_, err := c.Search(context.Background(), "x", 10)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
