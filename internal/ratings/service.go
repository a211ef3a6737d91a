package ratings

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/justestif/sonium/internal/catalog"
)

// DefaultTopAlbumsLimit bounds TopAlbums when the caller passes no limit.
const DefaultTopAlbumsLimit = 10

type pairKey struct {
	userID  string
	albumID string
}

// Service is the rating and collection aggregation service. Data is
// partitioned by user ID; the (user, album) state machine transitions are
// atomic under the store lock, including the implicit collection membership
// a rating writes through.
type Service struct {
	mu          sync.RWMutex
	ratings     map[pairKey]Rating
	ratingOrder []pairKey // insertion order, breaks aggregation ties
	collections map[string][]CollectionEntry

	years YearSource
	snaps Snapshotter
	clock func() time.Time
	log   zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source, required for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithLogger sets the logger used to report persistence failures.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// New creates a rating service. years may be nil, in which case TopAlbums
// supports only the unfiltered view. snaps may be nil for a purely in-memory
// service (tests).
func New(snaps Snapshotter, years YearSource, opts ...Option) *Service {
	s := &Service{
		ratings:     make(map[pairKey]Rating),
		collections: make(map[string][]CollectionEntry),
		years:       years,
		snaps:       snaps,
		clock:       time.Now,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore replaces the service state with a previously saved snapshot.
func (s *Service) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings = make(map[pairKey]Rating, len(snap.Ratings))
	s.ratingOrder = s.ratingOrder[:0]
	for _, r := range snap.Ratings {
		key := pairKey{r.UserID, r.AlbumID}
		if _, dup := s.ratings[key]; dup {
			continue
		}
		s.ratings[key] = r
		s.ratingOrder = append(s.ratingOrder, key)
	}
	s.collections = make(map[string][]CollectionEntry, len(snap.Collections))
	for userID, entries := range snap.Collections {
		s.collections[userID] = append([]CollectionEntry(nil), entries...)
	}
}

// AddToCollection adds an album to a user's collection. Idempotent: returns
// true only when the entry did not exist before.
func (s *Service) AddToCollection(ctx context.Context, userID, albumID string) bool {
	s.mu.Lock()
	added := s.addToCollectionLocked(userID, albumID)
	s.mu.Unlock()

	if added {
		s.persist(ctx)
	}
	return added
}

func (s *Service) addToCollectionLocked(userID, albumID string) bool {
	for _, e := range s.collections[userID] {
		if e.AlbumID == albumID {
			return false
		}
	}
	s.collections[userID] = append(s.collections[userID], CollectionEntry{
		AlbumID: albumID,
		AddedAt: s.clock(),
	})
	return true
}

// Rate sets a user's rating for an album, overwriting any previous value.
// Collection membership is written through in the same operation; a fresh
// rating also marks the album listened. Values outside [0, 5] are rejected
// with ErrInvalidRating and nothing is written.
func (s *Service) Rate(ctx context.Context, userID, albumID string, rating float64) error {
	if !(rating >= 0 && rating <= 5) {
		return fmt.Errorf("%w: %v", ErrInvalidRating, rating)
	}

	s.mu.Lock()
	now := s.clock()
	key := pairKey{userID, albumID}
	if existing, ok := s.ratings[key]; ok {
		existing.Rating = &rating
		existing.UpdatedAt = now
		s.ratings[key] = existing
		s.addToCollectionLocked(userID, albumID)
	} else {
		s.ratings[key] = Rating{
			UserID:    userID,
			AlbumID:   albumID,
			Rating:    &rating,
			Listened:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.ratingOrder = append(s.ratingOrder, key)
		s.addToCollectionLocked(userID, albumID)
	}
	s.mu.Unlock()

	s.persist(ctx)
	return nil
}

// ToggleListened flips the listened flag, creating an unrated record (and
// collection membership) when none exists. Returns the new listened state.
// A toggle that leaves a record unrated and unlistened deletes it.
func (s *Service) ToggleListened(ctx context.Context, userID, albumID string) bool {
	s.mu.Lock()
	now := s.clock()
	key := pairKey{userID, albumID}
	var listened bool
	if existing, ok := s.ratings[key]; ok {
		existing.Listened = !existing.Listened
		existing.UpdatedAt = now
		if existing.Rating == nil && !existing.Listened {
			s.deleteRatingLocked(key)
		} else {
			s.ratings[key] = existing
		}
		listened = existing.Listened
	} else {
		s.ratings[key] = Rating{
			UserID:    userID,
			AlbumID:   albumID,
			Listened:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.ratingOrder = append(s.ratingOrder, key)
		s.addToCollectionLocked(userID, albumID)
		listened = true
	}
	s.mu.Unlock()

	s.persist(ctx)
	return listened
}

// RemoveFromCollection removes the collection entry and cascades to the
// rating record, atomically as observed by other operations. Returns true
// when anything was removed.
func (s *Service) RemoveFromCollection(ctx context.Context, userID, albumID string) bool {
	s.mu.Lock()
	removed := false

	entries := s.collections[userID]
	for i, e := range entries {
		if e.AlbumID == albumID {
			s.collections[userID] = append(entries[:i:i], entries[i+1:]...)
			removed = true
			break
		}
	}
	if len(s.collections[userID]) == 0 {
		delete(s.collections, userID)
	}

	key := pairKey{userID, albumID}
	if _, ok := s.ratings[key]; ok {
		s.deleteRatingLocked(key)
		removed = true
	}
	s.mu.Unlock()

	if removed {
		s.persist(ctx)
	}
	return removed
}

func (s *Service) deleteRatingLocked(key pairKey) {
	delete(s.ratings, key)
	for i, k := range s.ratingOrder {
		if k == key {
			s.ratingOrder = append(s.ratingOrder[:i:i], s.ratingOrder[i+1:]...)
			break
		}
	}
}

// UserRating returns the user's rating for an album, nil when unrated.
func (s *Service) UserRating(userID, albumID string) *float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.ratings[pairKey{userID, albumID}]; ok {
		return r.Rating
	}
	return nil
}

// IsListened reports whether the user marked the album listened.
func (s *Service) IsListened(userID, albumID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.ratings[pairKey{userID, albumID}]
	return ok && r.Listened
}

// IsInCollection reports whether the album is in the user's collection.
func (s *Service) IsInCollection(userID, albumID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.collections[userID] {
		if e.AlbumID == albumID {
			return true
		}
	}
	return false
}

// AverageRatingForAlbum returns the mean of all non-nil ratings for an
// album across users, 0 when none exist. RatingCountForAlbum distinguishes
// "no ratings" from a genuine zero.
func (s *Service) AverageRatingForAlbum(albumID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, count := s.albumTotalsLocked(albumID)
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// RatingCountForAlbum returns the number of non-nil ratings for an album.
func (s *Service) RatingCountForAlbum(albumID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, count := s.albumTotalsLocked(albumID)
	return count
}

func (s *Service) albumTotalsLocked(albumID string) (sum float64, count int) {
	for _, key := range s.ratingOrder {
		r := s.ratings[key]
		if r.AlbumID == albumID && r.Rating != nil {
			sum += *r.Rating
			count++
		}
	}
	return sum, count
}

// UserCollection returns the user's collection joined with rating state,
// ordered by the sort option. Nil ratings sort as 0 for the rating sorts;
// ties keep insertion order.
func (s *Service) UserCollection(userID string, sortOpt SortOption) []CollectionItem {
	s.mu.RLock()
	entries := s.collections[userID]
	items := make([]CollectionItem, 0, len(entries))
	for _, e := range entries {
		item := CollectionItem{AlbumID: e.AlbumID, AddedAt: e.AddedAt}
		if r, ok := s.ratings[pairKey{userID, e.AlbumID}]; ok {
			item.Rating = r.Rating
			item.Listened = r.Listened
		}
		items = append(items, item)
	}
	s.mu.RUnlock()

	ratingOf := func(i CollectionItem) float64 {
		if i.Rating == nil {
			return 0
		}
		return *i.Rating
	}
	switch sortOpt {
	case SortDateAsc:
		sort.SliceStable(items, func(i, j int) bool { return items[i].AddedAt.Before(items[j].AddedAt) })
	case SortRatingDesc:
		sort.SliceStable(items, func(i, j int) bool { return ratingOf(items[i]) > ratingOf(items[j]) })
	case SortRatingAsc:
		sort.SliceStable(items, func(i, j int) bool { return ratingOf(items[i]) < ratingOf(items[j]) })
	default: // SortDateDesc
		sort.SliceStable(items, func(i, j int) bool { return items[i].AddedAt.After(items[j].AddedAt) })
	}
	return items
}

// UserStats summarizes a user's rating activity.
func (s *Service) UserStats(userID string) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rated, listened int
	var sum float64
	for _, key := range s.ratingOrder {
		if key.userID != userID {
			continue
		}
		r := s.ratings[key]
		if r.Rating != nil {
			rated++
			sum += *r.Rating
		}
		if r.Listened {
			listened++
		}
	}

	average := "0.0"
	if rated > 0 {
		average = fmt.Sprintf("%.1f", sum/float64(rated))
	}
	return Stats{
		AlbumsRated:    rated,
		AverageRating:  average,
		AlbumsListened: listened,
	}
}

// TopAlbums ranks albums by mean rating descending, ties broken by rating
// count descending, filtered to the requested decade through the catalog's
// release years. Albums absent from the catalog, or with an unknown year,
// are excluded by any concrete decade filter.
func (s *Service) TopAlbums(decade string, limit int) []AlbumRanking {
	if limit <= 0 {
		limit = DefaultTopAlbumsLimit
	}

	s.mu.RLock()
	totals := make(map[string]*AlbumRanking)
	var order []string
	for _, key := range s.ratingOrder {
		r := s.ratings[key]
		if r.Rating == nil {
			continue
		}
		entry, ok := totals[r.AlbumID]
		if !ok {
			entry = &AlbumRanking{AlbumID: r.AlbumID}
			totals[r.AlbumID] = entry
			order = append(order, r.AlbumID)
		}
		entry.AverageRating += *r.Rating // running sum until the divide below
		entry.RatingCount++
	}
	s.mu.RUnlock()

	start, end, filtered := 0, 0, false
	if s.years != nil {
		start, end, filtered = catalog.DecadeRange(decade, s.clock())
	}

	ranked := make([]AlbumRanking, 0, len(order))
	for _, albumID := range order {
		entry := totals[albumID]
		entry.AverageRating /= float64(entry.RatingCount)
		if filtered {
			year, ok := s.years.ReleaseYear(albumID)
			if !ok || year < start || year > end {
				continue
			}
		}
		ranked = append(ranked, *entry)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].AverageRating != ranked[j].AverageRating {
			return ranked[i].AverageRating > ranked[j].AverageRating
		}
		return ranked[i].RatingCount > ranked[j].RatingCount
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Snapshot returns a persistable copy of the current state.
func (s *Service) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{
		Ratings:     make([]Rating, 0, len(s.ratingOrder)),
		Collections: make(map[string][]CollectionEntry, len(s.collections)),
	}
	for _, key := range s.ratingOrder {
		snap.Ratings = append(snap.Ratings, s.ratings[key])
	}
	for userID, entries := range s.collections {
		snap.Collections[userID] = append([]CollectionEntry(nil), entries...)
	}
	return snap
}

// persist saves the current snapshot. The in-memory mutation has already
// committed; a persistence failure is logged, not propagated.
func (s *Service) persist(ctx context.Context) {
	if s.snaps == nil {
		return
	}
	if err := s.snaps.Save(ctx, s.Snapshot()); err != nil {
		s.log.Warn().Err(err).Msg("persisting rating snapshot")
	}
}
