package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Snapshot is the persisted form of the catalog: albums in current sort
// order plus the last refresh timestamp. nil LastRefreshedAt means the
// catalog has never been refreshed.
type Snapshot struct {
	Albums          []Album    `json:"albums"`
	LastRefreshedAt *time.Time `json:"lastRefreshedAt"`
}

// Snapshotter persists whole catalog snapshots atomically. Load returns
// (nil, nil) when no snapshot has been saved yet.
type Snapshotter interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// Store is the authoritative in-memory album catalog, keyed by the
// provider-stable album ID. All mutations go through Merge and the setters;
// readers are never blocked by in-flight provider calls.
type Store struct {
	mu              sync.RWMutex
	albums          map[string]Album
	seq             map[string]int // insertion order, breaks sort ties
	nextSeq         int
	lastRefreshedAt *time.Time
}

// NewStore creates an empty catalog store.
func NewStore() *Store {
	return &Store{
		albums: make(map[string]Album),
		seq:    make(map[string]int),
	}
}

// Restore replaces the store contents with a previously saved snapshot.
// A nil snapshot leaves the store empty.
func (s *Store) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.albums = make(map[string]Album, len(snap.Albums))
	s.seq = make(map[string]int, len(snap.Albums))
	s.nextSeq = 0
	for _, a := range snap.Albums {
		if a.ID == "" {
			continue
		}
		s.albums[a.ID] = a
		s.seq[a.ID] = s.nextSeq
		s.nextSeq++
	}
	s.lastRefreshedAt = snap.LastRefreshedAt
}

// Snapshot returns a persistable copy of the current state.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Snapshot{
		Albums:          s.sortedLocked(),
		LastRefreshedAt: s.lastRefreshedAt,
	}
}

// Merge upserts a batch of albums. Existing records get a field-wise overlay,
// new records are appended in batch order. Returns the number of records
// touched.
func (s *Store) Merge(batch []Album) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := 0
	for _, incoming := range batch {
		if incoming.ID == "" {
			continue
		}
		if prior, ok := s.albums[incoming.ID]; ok {
			s.albums[incoming.ID] = overlay(prior, incoming)
		} else {
			s.albums[incoming.ID] = incoming
			s.seq[incoming.ID] = s.nextSeq
			s.nextSeq++
		}
		touched++
	}
	return touched
}

// Get returns the album for the given ID. Absence is an expected case and is
// reported through the boolean, never an error.
func (s *Store) Get(id string) (Album, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.albums[id]
	return a, ok
}

// SetCoverURL stores a resolved artwork URL on an existing record. Returns
// false when no record with that ID exists.
func (s *Store) SetCoverURL(id, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.albums[id]
	if !ok {
		return false
	}
	a.CoverURL = &url
	s.albums[id] = a
	return true
}

// All returns every album sorted by release date descending. Records with an
// unknown date come after all dated records, in insertion order.
func (s *Store) All() []Album {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []Album {
	out := make([]Album, 0, len(s.albums))
	for _, a := range s.albums {
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, iDated := out[i].releaseTime()
		tj, jDated := out[j].releaseTime()
		switch {
		case iDated && !jDated:
			return true
		case !iDated && jDated:
			return false
		case iDated && jDated && !ti.Equal(tj):
			return ti.After(tj)
		default:
			return s.seq[out[i].ID] < s.seq[out[j].ID]
		}
	})
	return out
}

// SearchLocal performs a case-insensitive substring match on title and
// artist. Exact title matches rank first, then exact artist matches, then the
// remaining matches in catalog sort order. A blank query returns the full
// catalog.
func (s *Store) SearchLocal(query string) []Album {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s.All()
	}
	var exactTitle, exactArtist, rest []Album
	for _, a := range s.All() {
		title := strings.ToLower(a.Title)
		artist := strings.ToLower(a.Artist)
		switch {
		case title == q:
			exactTitle = append(exactTitle, a)
		case artist == q:
			exactArtist = append(exactArtist, a)
		case strings.Contains(title, q) || strings.Contains(artist, q):
			rest = append(rest, a)
		}
	}
	out := make([]Album, 0, len(exactTitle)+len(exactArtist)+len(rest))
	out = append(out, exactTitle...)
	out = append(out, exactArtist...)
	return append(out, rest...)
}

// ReleaseYear returns the release year of the album with the given ID.
// False when the album is absent or its date is unknown.
func (s *Store) ReleaseYear(id string) (int, bool) {
	s.mu.RLock()
	a, ok := s.albums[id]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return a.ReleaseYear()
}

// Len returns the number of albums in the catalog.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.albums)
}

// LastRefreshedAt returns the last successful refresh time, nil if never.
func (s *Store) LastRefreshedAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefreshedAt
}

// SetLastRefreshedAt records a successful refresh.
func (s *Store) SetLastRefreshedAt(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRefreshedAt = &t
}
