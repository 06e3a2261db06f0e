package roster

import (
	"context"
	"time"

	"github.com/ppiankov/rollcall/internal/cache"
	"github.com/ppiankov/rollcall/internal/model"
)

// CachedSource memoizes roster reads for a TTL so repeated resolutions for the
// same organization read one snapshot
type CachedSource struct {
	next   Source
	loader *cache.Loader
	ttl    time.Duration
}

// NewCachedSource wraps next with an in-memory cache
func NewCachedSource(next Source, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedSource{
		next:   next,
		loader: cache.NewLoader(cache.NewMemoryCache(ttl, 2*ttl)),
		ttl:    ttl,
	}
}

// Invalidate drops every cached roster read
func (c *CachedSource) Invalidate() {
	_ = c.loader.Clear()
}

func (c *CachedSource) CoachTeams(ctx context.Context, orgID, coachID string) ([]model.Team, error) {
	ctx = context.WithoutCancel(ctx)
	return cached(c, cache.Key("coach_teams", orgID, coachID), func() ([]model.Team, error) {
		return c.next.CoachTeams(ctx, orgID, coachID)
	})
}

func (c *CachedSource) ActivePlayers(ctx context.Context, orgID string) ([]model.Player, error) {
	ctx = context.WithoutCancel(ctx)
	return cached(c, cache.Key("players", orgID), func() ([]model.Player, error) {
		return c.next.ActivePlayers(ctx, orgID)
	})
}

func (c *CachedSource) Teams(ctx context.Context, orgID, coachID string) ([]model.Team, error) {
	ctx = context.WithoutCancel(ctx)
	return cached(c, cache.Key("teams", orgID, coachID), func() ([]model.Team, error) {
		return c.next.Teams(ctx, orgID, coachID)
	})
}

func (c *CachedSource) Coaches(ctx context.Context, orgID, coachID string) ([]model.Coach, error) {
	ctx = context.WithoutCancel(ctx)
	return cached(c, cache.Key("coaches", orgID, coachID), func() ([]model.Coach, error) {
		return c.next.Coaches(ctx, orgID, coachID)
	})
}

// cached loads through the shared loader. Callers pass a context detached
// from their own cancellation: concurrent misses share one load, and one
// caller giving up must not fail the others.
func cached[T any](c *CachedSource, key string, load func() ([]T, error)) ([]T, error) {
	return cache.Load(c.loader, key, c.ttl, load)
}
