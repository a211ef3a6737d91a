// Package syncer provides the catalog synchronization engine: staleness-
// gated refresh through an ordered provider fallback chain, search with
// provider fallback, and cover resolution.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/justestif/sonium/internal/catalog"
	"github.com/justestif/sonium/internal/provider"
)

// Defaults, overridable through options.
const (
	// DefaultStalenessInterval is the maximum catalog age before a refresh
	// is attempted.
	DefaultStalenessInterval = 24 * time.Hour

	// DefaultProviderTimeout bounds every provider call.
	DefaultProviderTimeout = 10 * time.Second

	// DefaultRecentLimit is the batch size requested from providers.
	DefaultRecentLimit = 50

	// DefaultSearchLimit is the result size requested on search fallback.
	DefaultSearchLimit = 20
)

// ErrAllProvidersFailed is returned when every provider in the fallback
// chain failed. The refresh timestamp is left unchanged so the next check
// retries.
var ErrAllProvidersFailed = errors.New("all providers failed")

// Backfill receives batches fetched from remote providers, so the local
// cache can serve the next cycle. Implemented by the local provider.
type Backfill interface {
	Name() string
	StoreBatch(ctx context.Context, albums []catalog.Album) error
}

// RefreshResult describes the outcome of a refresh check.
type RefreshResult struct {
	// Skipped is true when the catalog was fresh and no provider was called.
	Skipped bool
	// Provider names the provider that supplied the batch, "" when the
	// whole chain came back empty.
	Provider string
	// Merged is the number of records merged into the catalog.
	Merged int
	// RefreshedAt is the recorded refresh time, zero when skipped.
	RefreshedAt time.Time
}

// Engine orchestrates catalog refresh and search. All catalog mutations are
// serialized: concurrent refresh or identical search calls collapse into one
// flight, and merges run one at a time. Read-only catalog queries proceed
// against the last-committed state while provider I/O is outstanding.
type Engine struct {
	store    *catalog.Store
	chain    []*guard
	covers   provider.CoverFetcher
	backfill Backfill
	snaps    catalog.Snapshotter

	staleness   time.Duration
	timeout     time.Duration
	recentLimit int
	searchLimit int
	clock       func() time.Time
	log         zerolog.Logger

	flight singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithStalenessInterval sets the maximum catalog age before refresh.
func WithStalenessInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.staleness = d
		}
	}
}

// WithProviderTimeout sets the timeout wrapped around every provider call.
func WithProviderTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRecentLimit sets the batch size requested from providers.
func WithRecentLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.recentLimit = n
		}
	}
}

// WithClock sets the time source, required for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithCoverFetcher sets the artwork service used to enrich records and to
// resolve covers on demand.
func WithCoverFetcher(covers provider.CoverFetcher) Option {
	return func(e *Engine) { e.covers = covers }
}

// WithBackfill sets the local cache that remote batches are written back to.
func WithBackfill(b Backfill) Option {
	return func(e *Engine) { e.backfill = b }
}

// WithSnapshotter sets the persistence target for catalog snapshots.
func WithSnapshotter(snaps catalog.Snapshotter) Option {
	return func(e *Engine) { e.snaps = snaps }
}

// WithLogger sets the engine logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates a synchronization engine over the given store and provider
// fallback chain. Providers are tried in slice order.
func New(store *catalog.Store, providers []provider.Provider, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		staleness:   DefaultStalenessInterval,
		timeout:     DefaultProviderTimeout,
		recentLimit: DefaultRecentLimit,
		searchLimit: DefaultSearchLimit,
		clock:       time.Now,
		log:         zerolog.Nop(),
	}
	for _, p := range providers {
		e.chain = append(e.chain, newGuard(p))
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RefreshIfStale refreshes the catalog when it is older than the staleness
// interval. A fresh catalog returns immediately with Skipped set and no
// provider calls. Concurrent callers share one flight.
func (e *Engine) RefreshIfStale(ctx context.Context) (RefreshResult, error) {
	v, err, _ := e.flight.Do("refresh", func() (any, error) {
		return e.refresh(ctx)
	})
	res, _ := v.(RefreshResult)
	return res, err
}

func (e *Engine) refresh(ctx context.Context) (RefreshResult, error) {
	now := e.clock()
	if last := e.store.LastRefreshedAt(); last != nil && now.Sub(*last) < e.staleness {
		return RefreshResult{Skipped: true}, nil
	}

	batch, src, err := e.fetchFromChain(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("catalog refresh failed")
		return RefreshResult{}, err
	}

	e.enrichCovers(ctx, batch)
	merged := e.store.Merge(batch)
	e.store.SetLastRefreshedAt(now)

	if e.backfill != nil && src != "" && src != e.backfill.Name() {
		if err := e.backfill.StoreBatch(ctx, batch); err != nil {
			e.log.Warn().Err(err).Str("provider", src).Msg("backfilling local cache")
		}
	}
	if err := e.persist(ctx); err != nil {
		return RefreshResult{}, err
	}

	e.log.Info().
		Str("provider", src).
		Int("merged", merged).
		Int("catalog_size", e.store.Len()).
		Msg("catalog refreshed")

	return RefreshResult{Provider: src, Merged: merged, RefreshedAt: now}, nil
}

// fetchFromChain walks the fallback chain and returns the first non-empty
// batch. Provider failures are swallowed and logged; only exhaustion of the
// whole chain is an error. An entirely empty (but successful) chain returns
// an empty batch.
func (e *Engine) fetchFromChain(ctx context.Context) ([]catalog.Album, string, error) {
	var errs []error
	for _, g := range e.chain {
		albums, err := g.fetchRecent(ctx, e.recentLimit, 0, e.timeout)
		if err != nil {
			e.log.Warn().Err(err).Str("provider", g.p.Name()).Msg("provider fetch failed")
			errs = append(errs, fmt.Errorf("%s: %w", g.p.Name(), err))
			continue
		}
		if len(albums) == 0 {
			continue
		}
		return albums, g.p.Name(), nil
	}
	if len(errs) == len(e.chain) && len(errs) > 0 {
		return nil, "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(errs...))
	}
	return nil, "", nil
}

// enrichCovers fills in missing artwork on a batch. Missing covers are
// expected and never fail the refresh.
func (e *Engine) enrichCovers(ctx context.Context, batch []catalog.Album) {
	if e.covers == nil {
		return
	}
	for i := range batch {
		if batch[i].CoverURL != nil {
			continue
		}
		coverCtx, cancel := context.WithTimeout(ctx, e.timeout)
		url, err := e.covers.FetchCover(coverCtx, batch[i].ID)
		cancel()
		if err != nil {
			e.log.Debug().Err(err).Str("album", batch[i].ID).Msg("cover fetch failed")
			continue
		}
		if url != "" {
			batch[i].CoverURL = &url
		}
	}
}

// Search returns local matches when there are any, otherwise falls back to
// the remote providers and merges their results into the catalog so repeat
// searches are served locally. A blank query returns the full catalog
// without any provider call.
func (e *Engine) Search(ctx context.Context, query string) ([]catalog.Album, error) {
	q := strings.TrimSpace(query)
	local := e.store.SearchLocal(q)
	if q == "" || len(local) > 0 {
		return local, nil
	}

	v, err, _ := e.flight.Do("search:"+strings.ToLower(q), func() (any, error) {
		return e.remoteSearch(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	albums, _ := v.([]catalog.Album)
	return albums, nil
}

func (e *Engine) remoteSearch(ctx context.Context, query string) ([]catalog.Album, error) {
	// Another flight may have merged this query's results already.
	if local := e.store.SearchLocal(query); len(local) > 0 {
		return local, nil
	}

	localName := ""
	if e.backfill != nil {
		localName = e.backfill.Name()
	}

	var errs []error
	attempted := 0
	for _, g := range e.chain {
		// The local cache was already searched through the catalog.
		if g.p.Name() == localName {
			continue
		}
		attempted++
		albums, err := g.search(ctx, query, e.searchLimit, e.timeout)
		if err != nil {
			e.log.Warn().Err(err).Str("provider", g.p.Name()).Str("query", query).Msg("provider search failed")
			errs = append(errs, fmt.Errorf("%s: %w", g.p.Name(), err))
			continue
		}
		if len(albums) == 0 {
			continue
		}

		e.store.Merge(albums)
		if err := e.persist(ctx); err != nil {
			e.log.Warn().Err(err).Msg("persisting catalog after search merge")
		}

		// Return the merged records so overlays applied by the store are
		// visible to the caller.
		merged := make([]catalog.Album, 0, len(albums))
		for _, a := range albums {
			if stored, ok := e.store.Get(a.ID); ok {
				merged = append(merged, stored)
			}
		}
		return merged, nil
	}

	if attempted > 0 && len(errs) == attempted {
		return nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(errs...))
	}
	return nil, nil
}

// ResolveCover returns a best-effort artwork URL for an album: the stored
// value first, then the artwork service. Returns "" when no artwork exists
// anywhere; callers render a placeholder. Never returns an error.
func (e *Engine) ResolveCover(ctx context.Context, albumID string) string {
	if a, ok := e.store.Get(albumID); ok && a.CoverURL != nil && *a.CoverURL != "" {
		return *a.CoverURL
	}
	if e.covers == nil {
		return ""
	}

	coverCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	url, err := e.covers.FetchCover(coverCtx, albumID)
	if err != nil {
		e.log.Debug().Err(err).Str("album", albumID).Msg("cover resolve failed")
		return ""
	}
	if url == "" {
		return ""
	}

	if e.store.SetCoverURL(albumID, url) {
		if err := e.persist(ctx); err != nil {
			e.log.Warn().Err(err).Msg("persisting catalog after cover resolve")
		}
	}
	return url
}

func (e *Engine) persist(ctx context.Context) error {
	if e.snaps == nil {
		return nil
	}
	if err := e.snaps.Save(ctx, e.store.Snapshot()); err != nil {
		return fmt.Errorf("persisting catalog snapshot: %w", err)
	}
	return nil
}
