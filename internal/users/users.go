// Package users manages the user records behind login-by-username. There is
// no credential model: a user is an opaque ID created lazily on first login.
package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrBlankUsername is returned when a username is empty or whitespace.
var ErrBlankUsername = errors.New("username must not be blank")

// User is a registered user.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is the persisted form of the user store.
type Snapshot struct {
	Users []User `json:"users"`
}

// Snapshotter persists whole user snapshots atomically. Load returns
// (nil, nil) when nothing has been saved yet.
type Snapshotter interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// Store holds user records. Usernames are unique case-insensitively.
type Store struct {
	mu    sync.RWMutex
	users []User

	snaps Snapshotter
	clock func() time.Time
	log   zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithLogger sets the logger used to report persistence failures.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// NewStore creates a user store. snaps may be nil for a purely in-memory
// store (tests).
func NewStore(snaps Snapshotter, opts ...Option) *Store {
	s := &Store{
		snaps: snaps,
		clock: time.Now,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore replaces the store contents with a previously saved snapshot.
func (s *Store) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users[:0:0], snap.Users...)
}

// GetOrCreate returns the user with the given username, creating one on
// first login. Lookup is case-insensitive; the stored username keeps the
// casing of the first login.
func (s *Store) GetOrCreate(ctx context.Context, username string) (User, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return User{}, ErrBlankUsername
	}

	s.mu.Lock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, name) {
			s.mu.Unlock()
			return u, nil
		}
	}
	user := User{
		ID:        uuid.NewString(),
		Username:  name,
		CreatedAt: s.clock(),
	}
	s.users = append(s.users, user)
	s.mu.Unlock()

	s.persist(ctx)
	return user, nil
}

// Get returns the user with the given ID. Absence is reported through the
// boolean, never an error.
func (s *Store) Get(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

// Snapshot returns a persistable copy of the current state.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Snapshot{Users: append([]User(nil), s.users...)}
}

func (s *Store) persist(ctx context.Context) {
	if s.snaps == nil {
		return
	}
	if err := s.snaps.Save(ctx, s.Snapshot()); err != nil {
		s.log.Warn().Err(err).Msg("persisting user snapshot")
	}
}
