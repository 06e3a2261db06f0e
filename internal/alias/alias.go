// Package alias remembers how each coach refers to players.
package alias

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/rollcall/internal/model"
)

// ErrEmptyKey is returned when an alias is stored without coach, organization or text
var ErrEmptyKey = errors.New("alias key requires coach, organization and raw text")

// Store is per-coach, per-organization alias memory. Store upserts and increments
// UseCount atomically for repeat calls on the same key.
type Store interface {
	Lookup(ctx context.Context, coachID, orgID, rawText string) (*model.CoachAlias, error)
	Store(ctx context.Context, coachID, orgID, rawText, entityID, entityName string) (*model.CoachAlias, error)
}

// Lister is implemented by stores that can enumerate a coach's aliases
type Lister interface {
	List(ctx context.Context, coachID, orgID string) ([]model.CoachAlias, error)
}

// Key normalizes raw mention text into the alias lookup key
func Key(rawText string) string {
	return strings.ToLower(strings.TrimSpace(rawText))
}

type key struct {
	coach, org, text string
}

// MemoryStore is a concurrency-safe in-memory Store
type MemoryStore struct {
	mu      sync.Mutex
	aliases map[key]*model.CoachAlias
	now     func() time.Time
}

// NewMemoryStore creates an empty alias store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		aliases: make(map[key]*model.CoachAlias),
		now:     time.Now,
	}
}

// Lookup returns a copy of the alias for rawText, or nil
func (s *MemoryStore) Lookup(_ context.Context, coachID, orgID, rawText string) (*model.CoachAlias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.aliases[key{coachID, orgID, Key(rawText)}]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

// Store creates the alias or bumps its use count and points it at the latest entity
func (s *MemoryStore) Store(_ context.Context, coachID, orgID, rawText, entityID, entityName string) (*model.CoachAlias, error) {
	k := key{coachID, orgID, Key(rawText)}
	if k.coach == "" || k.org == "" || k.text == "" {
		return nil, ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	a, ok := s.aliases[k]
	if !ok {
		a = &model.CoachAlias{
			CoachUserID:    coachID,
			OrganizationID: orgID,
			RawText:        k.text,
			CreatedAt:      now,
		}
		s.aliases[k] = a
	}
	a.ResolvedEntityID = entityID
	a.ResolvedEntityName = entityName
	a.UseCount++
	a.LastUsedAt = now

	cp := *a
	return &cp, nil
}

// List returns a coach's aliases, most used first
func (s *MemoryStore) List(_ context.Context, coachID, orgID string) ([]model.CoachAlias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.CoachAlias
	for k, a := range s.aliases {
		if k.coach == coachID && k.org == orgID {
			out = append(out, *a)
		}
	}
	slices.SortFunc(out, func(a, b model.CoachAlias) int {
		if c := cmp.Compare(b.UseCount, a.UseCount); c != 0 {
			return c
		}
		return cmp.Compare(a.RawText, b.RawText)
	})
	return out, nil
}
