// Package ratings maintains per-user album ratings, listened flags and
// collection membership, and derives aggregate statistics from them.
package ratings

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRating is returned for rating values outside [0, 5]. The
// operation is rejected whole; nothing is written.
var ErrInvalidRating = errors.New("rating must be between 0 and 5")

// Rating is one user's relation to one album. A nil Rating value means
// "listened but not rated". A record with a nil rating and Listened false is
// meaningless and never persists; it is deleted instead.
type Rating struct {
	UserID    string    `json:"userId"`
	AlbumID   string    `json:"albumId"`
	Rating    *float64  `json:"rating"`
	Listened  bool      `json:"listened"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CollectionEntry is an album in a user's collection.
type CollectionEntry struct {
	AlbumID string    `json:"albumId"`
	AddedAt time.Time `json:"addedAt"`
}

// CollectionItem is a collection entry joined with the user's rating state.
type CollectionItem struct {
	AlbumID  string    `json:"albumId"`
	AddedAt  time.Time `json:"addedAt"`
	Rating   *float64  `json:"rating"`
	Listened bool      `json:"listened"`
}

// Stats summarizes a user's rating activity. AverageRating is formatted to
// one decimal, "0.0" when the user has rated nothing.
type Stats struct {
	AlbumsRated    int    `json:"albumsRated"`
	AverageRating  string `json:"averageRating"`
	AlbumsListened int    `json:"albumsListened"`
}

// AlbumRanking is one entry of the global top-albums ranking.
type AlbumRanking struct {
	AlbumID       string  `json:"albumId"`
	AverageRating float64 `json:"averageRating"`
	RatingCount   int     `json:"numRatings"`
}

// SortOption orders a user's collection view.
type SortOption string

// Collection sort options. For the rating sorts a nil rating counts as 0;
// ties keep insertion order.
const (
	SortDateDesc   SortOption = "date-desc"
	SortDateAsc    SortOption = "date-asc"
	SortRatingDesc SortOption = "rating-desc"
	SortRatingAsc  SortOption = "rating-asc"
)

// ParseSortOption maps a query-string value to a SortOption, defaulting to
// date-desc.
func ParseSortOption(s string) SortOption {
	switch SortOption(s) {
	case SortDateAsc, SortRatingDesc, SortRatingAsc:
		return SortOption(s)
	default:
		return SortDateDesc
	}
}

// Snapshot is the persisted form of the rating and collection stores.
type Snapshot struct {
	Ratings     []Rating                     `json:"ratings"`
	Collections map[string][]CollectionEntry `json:"collections"`
}

// Snapshotter persists whole rating/collection snapshots atomically. Load
// returns (nil, nil) when nothing has been saved yet.
type Snapshotter interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// YearSource resolves an album's release year, joining rankings against the
// catalog. False means the album or its year is unknown.
type YearSource interface {
	ReleaseYear(albumID string) (int, bool)
}
