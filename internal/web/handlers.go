package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/justestif/sonium/internal/catalog"
	"github.com/justestif/sonium/internal/ratings"
	"github.com/justestif/sonium/internal/syncer"
	"github.com/justestif/sonium/internal/users"
)

// Handlers contains the HTTP handlers for the JSON API.
type Handlers struct {
	engine  *syncer.Engine
	catalog *catalog.Store
	ratings *ratings.Service
	users   *users.Store
	log     zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(engine *syncer.Engine, cat *catalog.Store, rat *ratings.Service, usr *users.Store, log zerolog.Logger) *Handlers {
	return &Handlers{
		engine:  engine,
		catalog: cat,
		ratings: rat,
		users:   usr,
		log:     log,
	}
}

// albumDetail is an album joined with its aggregate rating state.
type albumDetail struct {
	catalog.Album
	AverageRating float64 `json:"averageRating"`
	RatingCount   int     `json:"numRatings"`
}

// collectionItem is a collection entry joined with its album record.
type collectionItem struct {
	ratings.CollectionItem
	Album *catalog.Album `json:"album,omitempty"`
}

// rankedAlbum is a ranking entry joined with its album record.
type rankedAlbum struct {
	ratings.AlbumRanking
	Album *catalog.Album `json:"album,omitempty"`
}

// RecentAlbums returns the catalog ordered by release date, refreshing it
// first when stale (GET /api/albums/recent). A failed refresh still serves
// the cached catalog when one exists.
func (h *Handlers) RecentAlbums(w http.ResponseWriter, r *http.Request) {
	if _, err := h.engine.RefreshIfStale(r.Context()); err != nil {
		if h.catalog.Len() == 0 {
			respondError(w, http.StatusBadGateway, "catalog unavailable")
			return
		}
		h.log.Warn().Err(err).Msg("serving cached catalog after failed refresh")
	}
	respondJSON(w, http.StatusOK, h.catalog.All())
}

// SearchAlbums searches the catalog, falling back to the remote providers
// on a local miss (GET /api/albums/search?q=).
func (h *Handlers) SearchAlbums(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	albums, err := h.engine.Search(r.Context(), query)
	if err != nil {
		respondError(w, http.StatusBadGateway, "search unavailable")
		return
	}
	if albums == nil {
		albums = []catalog.Album{}
	}
	respondJSON(w, http.StatusOK, albums)
}

// GetAlbum returns one album with its aggregate rating (GET /api/albums/{albumID}).
func (h *Handlers) GetAlbum(w http.ResponseWriter, r *http.Request) {
	albumID := chi.URLParam(r, "albumID")

	album, ok := h.catalog.Get(albumID)
	if !ok {
		respondError(w, http.StatusNotFound, "album not found")
		return
	}
	respondJSON(w, http.StatusOK, albumDetail{
		Album:         album,
		AverageRating: h.ratings.AverageRatingForAlbum(albumID),
		RatingCount:   h.ratings.RatingCountForAlbum(albumID),
	})
}

// AlbumCover resolves an album's artwork URL (GET /api/albums/{albumID}/cover).
func (h *Handlers) AlbumCover(w http.ResponseWriter, r *http.Request) {
	albumID := chi.URLParam(r, "albumID")

	url := h.engine.ResolveCover(r.Context(), albumID)
	if url == "" {
		respondError(w, http.StatusNotFound, "no cover available")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"coverUrl": url})
}

// Sync forces a staleness check (POST /api/sync). A fresh catalog reports
// skipped without touching any provider.
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.RefreshIfStale(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "sync failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"skipped":  res.Skipped,
		"provider": res.Provider,
		"merged":   res.Merged,
	})
}

// Login finds or creates a user by username (POST /api/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.GetOrCreate(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, users.ErrBlankUsername) {
			respondError(w, http.StatusBadRequest, "username is required")
			return
		}
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// RateAlbum sets a user's rating for an album, adding it to their collection
// (PUT /api/users/{userID}/ratings/{albumID}).
func (h *Handlers) RateAlbum(w http.ResponseWriter, r *http.Request) {
	userID, albumID, ok := h.resolvePair(w, r)
	if !ok {
		return
	}

	var req struct {
		Rating float64 `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.ratings.Rate(r.Context(), userID, albumID, req.Rating); err != nil {
		if errors.Is(err, ratings.ErrInvalidRating) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "saving rating failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"rating":   h.ratings.UserRating(userID, albumID),
		"listened": h.ratings.IsListened(userID, albumID),
	})
}

// ToggleListened flips a user's listened flag for an album
// (POST /api/users/{userID}/listened/{albumID}).
func (h *Handlers) ToggleListened(w http.ResponseWriter, r *http.Request) {
	userID, albumID, ok := h.resolvePair(w, r)
	if !ok {
		return
	}

	listened := h.ratings.ToggleListened(r.Context(), userID, albumID)
	respondJSON(w, http.StatusOK, map[string]bool{"listened": listened})
}

// AddToCollection adds an album to a user's collection
// (POST /api/users/{userID}/collection/{albumID}). Adding twice is a no-op.
func (h *Handlers) AddToCollection(w http.ResponseWriter, r *http.Request) {
	userID, albumID, ok := h.resolvePair(w, r)
	if !ok {
		return
	}

	added := h.ratings.AddToCollection(r.Context(), userID, albumID)
	respondJSON(w, http.StatusOK, map[string]bool{"added": added})
}

// RemoveFromCollection removes an album from a user's collection along with
// the user's rating state for it (DELETE /api/users/{userID}/collection/{albumID}).
func (h *Handlers) RemoveFromCollection(w http.ResponseWriter, r *http.Request) {
	userID, albumID, ok := h.resolvePair(w, r)
	if !ok {
		return
	}

	removed := h.ratings.RemoveFromCollection(r.Context(), userID, albumID)
	if !removed {
		respondError(w, http.StatusNotFound, "album not in collection")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

// UserCollection returns a user's collection joined with album records
// (GET /api/users/{userID}/collection?sort=).
func (h *Handlers) UserCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}

	sortOpt := ratings.ParseSortOption(r.URL.Query().Get("sort"))
	items := h.ratings.UserCollection(userID, sortOpt)

	out := make([]collectionItem, len(items))
	for i, item := range items {
		out[i] = collectionItem{CollectionItem: item}
		if album, ok := h.catalog.Get(item.AlbumID); ok {
			out[i].Album = &album
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// UserStats returns a user's rating statistics (GET /api/users/{userID}/stats).
func (h *Handlers) UserStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.ratings.UserStats(userID))
}

// TopAlbums returns the global album ranking, optionally filtered by decade
// (GET /api/top?decade=&limit=).
func (h *Handlers) TopAlbums(w http.ResponseWriter, r *http.Request) {
	limit := ratings.DefaultTopAlbumsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	rankings := h.ratings.TopAlbums(r.URL.Query().Get("decade"), limit)

	out := make([]rankedAlbum, len(rankings))
	for i, rank := range rankings {
		out[i] = rankedAlbum{AlbumRanking: rank}
		if album, ok := h.catalog.Get(rank.AlbumID); ok {
			out[i].Album = &album
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// resolveUser validates the userID path parameter against the user store.
func (h *Handlers) resolveUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := chi.URLParam(r, "userID")
	if _, ok := h.users.Get(userID); !ok {
		respondError(w, http.StatusNotFound, "user not found")
		return "", false
	}
	return userID, true
}

// resolvePair validates both the userID and albumID path parameters.
func (h *Handlers) resolvePair(w http.ResponseWriter, r *http.Request) (userID, albumID string, ok bool) {
	userID, ok = h.resolveUser(w, r)
	if !ok {
		return "", "", false
	}
	albumID = chi.URLParam(r, "albumID")
	if _, found := h.catalog.Get(albumID); !found {
		respondError(w, http.StatusNotFound, "album not found")
		return "", "", false
	}
	return userID, albumID, true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
