// Package musicbrainz adapts the MusicBrainz release registry to the
// provider contract.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/justestif/sonium/internal/catalog"
	"github.com/justestif/sonium/internal/provider"
)

const (
	baseURL = "https://musicbrainz.org/ws/2"

	// DefaultRecentWindow is the trailing window FetchRecent searches in.
	DefaultRecentWindow = 90 * 24 * time.Hour
)

// Name is the provider name recorded on albums sourced from MusicBrainz.
const Name = "musicbrainz"

// Client is a MusicBrainz API client. MusicBrainz requires a User-Agent
// carrying application name, version and contact address, and rate limits
// aggressively (HTTP 503), so requests retry with backoff.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	userAgent    string
	recentWindow time.Duration
	clock        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRecentWindow sets the trailing window for FetchRecent.
func WithRecentWindow(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.recentWindow = d
		}
	}
}

// WithClock sets the time source used to anchor the trailing window.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) { c.clock = clock }
}

// NewClient creates a MusicBrainz client. The contact address goes into the
// User-Agent as the API terms require.
func NewClient(contact string, opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		baseURL:      baseURL,
		userAgent:    fmt.Sprintf("sonium/1.0 (%s)", contact),
		recentWindow: DefaultRecentWindow,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements provider.Provider.
func (c *Client) Name() string { return Name }

// FetchRecent searches for releases dated within the trailing window,
// newest first.
func (c *Client) FetchRecent(ctx context.Context, limit, offset int) ([]catalog.Album, error) {
	since := c.clock().Add(-c.recentWindow).Format("2006-01-02")
	query := fmt.Sprintf("date:[%s TO *]", since)
	return c.searchReleases(ctx, query, limit, offset)
}

// Search finds releases matching the query on title or artist.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]catalog.Album, error) {
	escaped := luceneEscape(query)
	q := fmt.Sprintf(`release:"%s" OR artist:"%s"`, escaped, escaped)
	return c.searchReleases(ctx, q, limit, 0)
}

func (c *Client) searchReleases(ctx context.Context, query string, limit, offset int) ([]catalog.Album, error) {
	params := url.Values{
		"query":  {query},
		"fmt":    {"json"},
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}

	body, err := c.doRequest(ctx, "/release", params)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing release search response: %v", provider.ErrMalformed, err)
	}

	albums := make([]catalog.Album, 0, len(resp.Releases))
	for _, rel := range resp.Releases {
		album, ok := mapRelease(rel)
		if !ok {
			continue
		}
		albums = append(albums, album)
	}
	return albums, nil
}

// mapRelease converts a MusicBrainz release to the canonical Album record.
// Releases missing a title or artist credit are unusable and skipped.
func mapRelease(rel release) (catalog.Album, bool) {
	if rel.ID == "" || rel.Title == "" || len(rel.ArtistCredit) == 0 {
		return catalog.Album{}, false
	}
	artist := rel.ArtistCredit[0].Artist.Name
	if artist == "" {
		artist = rel.ArtistCredit[0].Name
	}
	if artist == "" {
		return catalog.Album{}, false
	}

	album := catalog.Album{
		ID:          rel.ID,
		Title:       rel.Title,
		Artist:      artist,
		ReleaseDate: catalog.UnknownDate,
		Source:      Name,
	}
	if rel.Date != "" {
		album.ReleaseDate = rel.Date
	}
	if id := rel.ArtistCredit[0].Artist.ID; id != "" {
		album.ArtistID = &id
	}
	for _, t := range rel.Tags {
		if t.Name != "" {
			album.Genres = append(album.Genres, t.Name)
		}
	}
	return album, true
}

// doRequest performs a GET with retry on rate limiting. MusicBrainz signals
// rate limits with HTTP 503; retries back off 1s, 2s, 4s.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + endpoint + "?" + params.Encode()

	delays := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	var lastErr error

	for attempt := 0; attempt <= len(delays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", provider.ErrUnavailable, ctx.Err())
			case <-time.After(delays[attempt-1]):
			}
		}

		body, retryable, err := c.doSingleRequest(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

func (c *Client) doSingleRequest(ctx context.Context, reqURL string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: executing request: %v", provider.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading response body: %v", provider.ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, true, fmt.Errorf("%w: rate limited", provider.ErrUnavailable)
	case resp.StatusCode != http.StatusOK:
		var apiErr apiError
		if jsonErr := json.Unmarshal(raw, &apiErr); jsonErr == nil && apiErr.Error != "" {
			return nil, false, fmt.Errorf("%w: %s", provider.ErrUnavailable, apiErr.Error)
		}
		return nil, false, fmt.Errorf("%w: status %d", provider.ErrUnavailable, resp.StatusCode)
	}

	return raw, false, nil
}

// luceneEscape escapes characters with meaning in MusicBrainz Lucene queries.
func luceneEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`+-&|!(){}[]^"~*?:\/`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
