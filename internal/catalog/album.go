// Package catalog provides the locally cached album catalog: the canonical
// Album record, the merge-upsert store and its query surface.
package catalog

import (
	"strconv"
	"time"
)

// UnknownDate is the sentinel release date for records whose provider did not
// supply one. Records carrying it sort after all dated records.
const UnknownDate = "Unknown"

// Album is the canonical album record shared by every provider adapter.
// Pointer fields are nullable; an absent value is preserved across merges.
type Album struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist"`
	ArtistID    *string  `json:"artistId,omitempty"`
	ReleaseDate string   `json:"releaseDate"`
	CoverURL    *string  `json:"coverUrl,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Source      string   `json:"sourceProvider"`
}

// ReleaseYear returns the four-digit release year, or false for the
// UnknownDate sentinel and unparseable dates.
func (a Album) ReleaseYear() (int, bool) {
	if len(a.ReleaseDate) < 4 || a.ReleaseDate == UnknownDate {
		return 0, false
	}
	year, err := strconv.Atoi(a.ReleaseDate[:4])
	if err != nil || year <= 0 {
		return 0, false
	}
	return year, true
}

// releaseTime parses the release date for sorting. ISO dates may be truncated
// to year or year-month. The second return is false for unknown dates.
func (a Album) releaseTime() (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, a.ReleaseDate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// overlay applies a field-wise merge: set fields of incoming replace the
// prior values, absent fields keep them. The record is never replaced whole.
func overlay(prior, incoming Album) Album {
	merged := prior
	if incoming.Title != "" {
		merged.Title = incoming.Title
	}
	if incoming.Artist != "" {
		merged.Artist = incoming.Artist
	}
	if incoming.ArtistID != nil {
		merged.ArtistID = incoming.ArtistID
	}
	if incoming.ReleaseDate != "" {
		merged.ReleaseDate = incoming.ReleaseDate
	}
	if incoming.CoverURL != nil {
		merged.CoverURL = incoming.CoverURL
	}
	if incoming.Rating != nil {
		merged.Rating = incoming.Rating
	}
	if len(incoming.Genres) > 0 {
		merged.Genres = incoming.Genres
	}
	if incoming.Source != "" {
		merged.Source = incoming.Source
	}
	return merged
}
