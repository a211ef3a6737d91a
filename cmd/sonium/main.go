// Command sonium runs the album catalog and rating service.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/justestif/sonium/internal/catalog"
	"github.com/justestif/sonium/internal/config"
	"github.com/justestif/sonium/internal/db"
	"github.com/justestif/sonium/internal/provider"
	"github.com/justestif/sonium/internal/provider/coverart"
	"github.com/justestif/sonium/internal/provider/local"
	"github.com/justestif/sonium/internal/provider/musicbrainz"
	"github.com/justestif/sonium/internal/provider/spotify"
	"github.com/justestif/sonium/internal/ratings"
	"github.com/justestif/sonium/internal/syncer"
	"github.com/justestif/sonium/internal/users"
	"github.com/justestif/sonium/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := newLogger(cfg.LogLevel)
	ctx := context.Background()

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	// Restore the stores from their last persisted snapshots.
	catalogSnaps := database.CatalogSnapshots()
	catalogStore := catalog.NewStore()
	if snap, err := catalogSnaps.Load(ctx); err != nil {
		return fmt.Errorf("loading catalog snapshot: %w", err)
	} else if snap != nil {
		catalogStore.Restore(snap)
	}

	ratingSnaps := database.RatingSnapshots()
	ratingService := ratings.New(ratingSnaps, catalogStore,
		ratings.WithLogger(log.With().Str("component", "ratings").Logger()))
	if snap, err := ratingSnaps.Load(ctx); err != nil {
		return fmt.Errorf("loading ratings snapshot: %w", err)
	} else if snap != nil {
		ratingService.Restore(snap)
	}

	userSnaps := database.UserSnapshots()
	userStore := users.NewStore(userSnaps,
		users.WithLogger(log.With().Str("component", "users").Logger()))
	if snap, err := userSnaps.Load(ctx); err != nil {
		return fmt.Errorf("loading users snapshot: %w", err)
	} else if snap != nil {
		userStore.Restore(snap)
	}

	// Provider fallback chain: local cache first, then the remote services.
	localProvider := local.New(database.Albums())
	chain := []provider.Provider{
		localProvider,
		musicbrainz.NewClient(cfg.MusicBrainzContact,
			musicbrainz.WithRecentWindow(cfg.RecentWindow)),
	}
	if cfg.SpotifyEnabled() {
		sp, err := spotify.New(ctx, cfg.SpotifyID, cfg.SpotifySecret)
		if err != nil {
			return fmt.Errorf("creating spotify provider: %w", err)
		}
		chain = append(chain, sp)
		log.Info().Msg("spotify provider enabled")
	}

	engine := syncer.New(catalogStore, chain,
		syncer.WithStalenessInterval(cfg.StalenessInterval),
		syncer.WithProviderTimeout(cfg.ProviderTimeout),
		syncer.WithRecentLimit(cfg.RecentLimit),
		syncer.WithCoverFetcher(coverart.NewClient()),
		syncer.WithBackfill(localProvider),
		syncer.WithSnapshotter(catalogSnaps),
		syncer.WithLogger(log.With().Str("component", "syncer").Logger()),
	)

	// Background refresh loop. The staleness gate inside the engine decides
	// whether each tick does any work.
	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	go refreshLoop(refreshCtx, engine, cfg.RefreshEvery, log)

	server := web.NewServer(web.ServerConfig{
		Addr:    cfg.Addr,
		Engine:  engine,
		Catalog: catalogStore,
		Ratings: ratingService,
		Users:   userStore,
		Logger:  log.With().Str("component", "web").Logger(),
	})

	return server.Run()
}

func refreshLoop(ctx context.Context, engine *syncer.Engine, every time.Duration, log zerolog.Logger) {
	if _, err := engine.RefreshIfStale(ctx); err != nil {
		log.Warn().Err(err).Msg("initial catalog refresh failed")
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := engine.RefreshIfStale(ctx); err != nil {
				log.Warn().Err(err).Msg("background catalog refresh failed")
			}
		}
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
