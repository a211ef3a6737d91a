package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/justestif/sonium/internal/catalog"
	"github.com/justestif/sonium/internal/provider"
)

const (
	// breakerFailureThreshold trips a provider's breaker after this many
	// consecutive failures.
	breakerFailureThreshold uint32 = 3

	// breakerCooldown is how long a tripped breaker stays open before
	// letting a probe request through.
	breakerCooldown = 30 * time.Second
)

// guard wraps one provider with a circuit breaker and a per-call timeout.
// An open breaker behaves like an unavailable provider, so the fallback
// chain moves on without waiting for a known-bad upstream.
type guard struct {
	p  provider.Provider
	cb *gobreaker.CircuitBreaker[[]catalog.Album]
}

func newGuard(p provider.Provider) *guard {
	cb := gobreaker.NewCircuitBreaker[[]catalog.Album](gobreaker.Settings{
		Name:    p.Name(),
		Timeout: breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
	})
	return &guard{p: p, cb: cb}
}

func (g *guard) fetchRecent(ctx context.Context, limit, offset int, timeout time.Duration) ([]catalog.Album, error) {
	return g.run(func(callCtx context.Context) ([]catalog.Album, error) {
		return g.p.FetchRecent(callCtx, limit, offset)
	}, ctx, timeout)
}

func (g *guard) search(ctx context.Context, query string, limit int, timeout time.Duration) ([]catalog.Album, error) {
	return g.run(func(callCtx context.Context) ([]catalog.Album, error) {
		return g.p.Search(callCtx, query, limit)
	}, ctx, timeout)
}

func (g *guard) run(fn func(context.Context) ([]catalog.Album, error), ctx context.Context, timeout time.Duration) ([]catalog.Album, error) {
	albums, err := g.cb.Execute(func() ([]catalog.Album, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		albums, err := fn(callCtx)
		if err != nil && callCtx.Err() != nil {
			return nil, fmt.Errorf("%w: timeout: %v", provider.ErrUnavailable, err)
		}
		return albums, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit open for %s", provider.ErrUnavailable, g.p.Name())
	}
	return albums, err
}
