// Package coverart resolves album artwork through the Cover Art Archive,
// which pairs with MusicBrainz release IDs.
package coverart

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/justestif/sonium/internal/provider"
)

const baseURL = "https://coverartarchive.org"

// Client fetches front-cover URLs from the Cover Art Archive.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the archive base URL, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// NewClient creates a Cover Art Archive client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchCover returns the front-cover URL for a release, following the
// archive's redirect to the image itself. A release without artwork returns
// ("", nil); missing images are an expected case, never an error.
func (c *Client) FetchCover(ctx context.Context, albumID string) (string, error) {
	reqURL := fmt.Sprintf("%s/release/%s/front", c.baseURL, albumID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: executing request: %v", provider.ErrUnavailable, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("%w: status %d", provider.ErrUnavailable, resp.StatusCode)
	}

	// The final URL after redirects is the stable image location.
	return resp.Request.URL.String(), nil
}
