package ratings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/justestif/sonium/internal/catalog"
)

// fakeClock hands out strictly increasing times so insertion order is
// observable through AddedAt.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(time.Minute)
	return c.now
}

func newTestService(years YearSource) *Service {
	return New(nil, years, WithClock(newFakeClock().Now))
}

func TestAddToCollectionIdempotent(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()

	if !s.AddToCollection(ctx, "u1", "a1") {
		t.Error("first add returned false")
	}
	if s.AddToCollection(ctx, "u1", "a1") {
		t.Error("second add returned true, want no-op false")
	}
	if !s.IsInCollection("u1", "a1") {
		t.Error("album not in collection after add")
	}
	if s.IsInCollection("u2", "a1") {
		t.Error("collection leaked across users")
	}
}

func TestRateWritesThroughCollection(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()

	if err := s.Rate(ctx, "u1", "a1", 4.5); err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}
	if !s.IsInCollection("u1", "a1") {
		t.Error("rating did not create collection membership")
	}
	if !s.IsListened("u1", "a1") {
		t.Error("fresh rating did not mark album listened")
	}
	if got := s.UserRating("u1", "a1"); got == nil || *got != 4.5 {
		t.Errorf("UserRating = %v, want 4.5", got)
	}

	// Re-rating overwrites, no averaging.
	if err := s.Rate(ctx, "u1", "a1", 2); err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}
	if got := s.UserRating("u1", "a1"); got == nil || *got != 2 {
		t.Errorf("UserRating after re-rate = %v, want 2", got)
	}
	if got := s.RatingCountForAlbum("a1"); got != 1 {
		t.Errorf("RatingCountForAlbum = %d, want 1", got)
	}
}

func TestRateInvalidInput(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()

	for _, bad := range []float64{-0.1, 5.1, 100} {
		if err := s.Rate(ctx, "u1", "a1", bad); !errors.Is(err, ErrInvalidRating) {
			t.Errorf("Rate(%v) error = %v, want ErrInvalidRating", bad, err)
		}
	}
	// Rejected ratings must not leave partial state behind.
	if s.IsInCollection("u1", "a1") {
		t.Error("rejected rating created collection membership")
	}
	if s.RatingCountForAlbum("a1") != 0 {
		t.Error("rejected rating was recorded")
	}

	// Boundary values are valid.
	for _, ok := range []float64{0, 5} {
		if err := s.Rate(ctx, "u1", "a1", ok); err != nil {
			t.Errorf("Rate(%v) returned error: %v", ok, err)
		}
	}
}

func TestToggleListened(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()

	if got := s.ToggleListened(ctx, "u1", "a1"); !got {
		t.Error("first toggle = false, want true")
	}
	if s.UserRating("u1", "a1") != nil {
		t.Error("toggle created a rating value")
	}
	if !s.IsInCollection("u1", "a1") {
		t.Error("toggle did not write through collection membership")
	}

	// Toggling back leaves an unrated, unlistened record, which must not
	// exist; membership stays.
	if got := s.ToggleListened(ctx, "u1", "a1"); got {
		t.Error("second toggle = true, want false")
	}
	s.mu.RLock()
	_, exists := s.ratings[pairKey{"u1", "a1"}]
	s.mu.RUnlock()
	if exists {
		t.Error("unrated unlistened record was retained")
	}
	if !s.IsInCollection("u1", "a1") {
		t.Error("toggle removed collection membership")
	}
}

func TestRemoveFromCollectionCascades(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()

	// Any sequence of operations, then remove, leaves no trace.
	s.AddToCollection(ctx, "u1", "a1")
	if err := s.Rate(ctx, "u1", "a1", 3); err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}
	s.ToggleListened(ctx, "u1", "a1")

	if !s.RemoveFromCollection(ctx, "u1", "a1") {
		t.Error("remove returned false")
	}
	if s.IsInCollection("u1", "a1") {
		t.Error("collection entry survived removal")
	}
	if s.UserRating("u1", "a1") != nil || s.IsListened("u1", "a1") {
		t.Error("rating record survived removal")
	}
	if s.RatingCountForAlbum("a1") != 0 {
		t.Error("album still counts a rating after removal")
	}

	if s.RemoveFromCollection(ctx, "u1", "a1") {
		t.Error("removing a no-relation pair returned true")
	}
}

func TestAverageRating(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()

	for user, value := range map[string]float64{"u1": 5, "u2": 4, "u3": 3} {
		if err := s.Rate(ctx, user, "X", value); err != nil {
			t.Fatalf("Rate returned error: %v", err)
		}
	}
	// Listened-only records must not dilute the average.
	s.ToggleListened(ctx, "u4", "X")

	if got := s.AverageRatingForAlbum("X"); got != 4.0 {
		t.Errorf("AverageRatingForAlbum = %v, want 4.0", got)
	}
	if got := s.RatingCountForAlbum("X"); got != 3 {
		t.Errorf("RatingCountForAlbum = %d, want 3", got)
	}
	if got := s.AverageRatingForAlbum("missing"); got != 0 {
		t.Errorf("AverageRatingForAlbum(missing) = %v, want 0", got)
	}
}

func TestUserCollectionSorts(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()

	// Added in order a1, a2, a3 with increasing AddedAt.
	s.AddToCollection(ctx, "u1", "a1")
	s.AddToCollection(ctx, "u1", "a2")
	s.AddToCollection(ctx, "u1", "a3")
	if err := s.Rate(ctx, "u1", "a2", 5); err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}
	if err := s.Rate(ctx, "u1", "a3", 2); err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}
	// a1 stays unrated and sorts as 0 for the rating options.

	tests := []struct {
		sort SortOption
		want []string
	}{
		{SortDateDesc, []string{"a3", "a2", "a1"}},
		{SortDateAsc, []string{"a1", "a2", "a3"}},
		{SortRatingDesc, []string{"a2", "a3", "a1"}},
		{SortRatingAsc, []string{"a1", "a3", "a2"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.sort), func(t *testing.T) {
			got := s.UserCollection("u1", tt.sort)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d items, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].AlbumID != id {
					t.Errorf("position %d = %q, want %q", i, got[i].AlbumID, id)
				}
			}
		})
	}
}

func TestUserStats(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()

	if got := s.UserStats("u1"); got.AlbumsRated != 0 || got.AverageRating != "0.0" || got.AlbumsListened != 0 {
		t.Errorf("empty stats = %+v", got)
	}

	s.Rate(ctx, "u1", "a1", 5)
	s.Rate(ctx, "u1", "a2", 4)
	s.ToggleListened(ctx, "u1", "a3")
	s.Rate(ctx, "u2", "a1", 1) // other user, must not leak

	got := s.UserStats("u1")
	if got.AlbumsRated != 2 {
		t.Errorf("AlbumsRated = %d, want 2", got.AlbumsRated)
	}
	if got.AverageRating != "4.5" {
		t.Errorf("AverageRating = %q, want %q", got.AverageRating, "4.5")
	}
	if got.AlbumsListened != 3 {
		t.Errorf("AlbumsListened = %d, want 3", got.AlbumsListened)
	}
}

func TestTopAlbumsTieBreak(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()

	// A: mean 4.5 from 2 ratings. B: mean 4.5 from 5 ratings.
	s.Rate(ctx, "u1", "A", 4)
	s.Rate(ctx, "u2", "A", 5)
	for i, v := range []float64{4, 5, 4.5, 4.5, 4.5} {
		s.Rate(ctx, "user"+string(rune('a'+i)), "B", v)
	}

	got := s.TopAlbums("all", 10)
	if len(got) != 2 {
		t.Fatalf("got %d rankings, want 2", len(got))
	}
	if got[0].AlbumID != "B" || got[1].AlbumID != "A" {
		t.Errorf("order = [%s, %s], want [B, A]", got[0].AlbumID, got[1].AlbumID)
	}
	if got[0].RatingCount != 5 || got[0].AverageRating != 4.5 {
		t.Errorf("B ranking = %+v", got[0])
	}
}

func TestTopAlbumsDecadeJoin(t *testing.T) {
	store := catalog.NewStore()
	store.Merge([]catalog.Album{
		{ID: "ninety", Title: "Nevermind", Artist: "Nirvana", ReleaseDate: "1991-09-24"},
		{ID: "modern", Title: "Late Registration", Artist: "Kanye West", ReleaseDate: "2005-08-30"},
		{ID: "undated", Title: "Bootleg", Artist: "Unknown", ReleaseDate: catalog.UnknownDate},
	})

	s := newTestService(store)
	ctx := context.Background()

	// The 2005 album has the highest mean but is outside the 1990s.
	s.Rate(ctx, "u1", "modern", 5)
	s.Rate(ctx, "u1", "ninety", 4)
	s.Rate(ctx, "u1", "undated", 5)
	s.Rate(ctx, "u1", "uncataloged", 5)

	got := s.TopAlbums("1990s", 10)
	if len(got) != 1 {
		t.Fatalf("got %d rankings, want 1: %+v", len(got), got)
	}
	if got[0].AlbumID != "ninety" {
		t.Errorf("top album = %q, want %q", got[0].AlbumID, "ninety")
	}

	// Unfiltered view keeps everything, including uncataloged albums.
	if got := s.TopAlbums("all", 10); len(got) != 4 {
		t.Errorf("unfiltered rankings = %d, want 4", len(got))
	}

	// Limit truncates after filtering.
	if got := s.TopAlbums("all", 2); len(got) != 2 {
		t.Errorf("limited rankings = %d, want 2", len(got))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()

	s.Rate(ctx, "u1", "a1", 4)
	s.ToggleListened(ctx, "u1", "a2")
	s.AddToCollection(ctx, "u2", "a1")

	restored := newTestService(nil)
	restored.Restore(s.Snapshot())

	if got := restored.UserRating("u1", "a1"); got == nil || *got != 4 {
		t.Errorf("restored rating = %v, want 4", got)
	}
	if !restored.IsListened("u1", "a2") {
		t.Error("restored listened flag lost")
	}
	if !restored.IsInCollection("u2", "a1") {
		t.Error("restored collection entry lost")
	}
}
