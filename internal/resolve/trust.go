package resolve

import (
	"context"
	"sync"

	"github.com/ppiankov/rollcall/internal/model"
)

// DefaultAutoResolveThreshold applies when a coach has no trust level and
// the configuration does not set one
const DefaultAutoResolveThreshold = 0.9

// TrustSource reads a coach's trust state. A nil level with a nil error means none is recorded.
type TrustSource interface {
	TrustLevel(ctx context.Context, coachID string) (*model.TrustLevel, error)
}

// StaticTrust serves trust levels from memory
type StaticTrust struct {
	mu     sync.RWMutex
	levels map[string]model.TrustLevel
}

// NewStaticTrust creates a trust source from a fixed list
func NewStaticTrust(levels ...model.TrustLevel) *StaticTrust {
	s := &StaticTrust{levels: make(map[string]model.TrustLevel, len(levels))}
	for _, l := range levels {
		s.levels[l.CoachUserID] = l
	}
	return s
}

// Set records a coach's threshold
func (s *StaticTrust) Set(coachID string, threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[coachID] = model.TrustLevel{CoachUserID: coachID, InsightConfidenceThreshold: &threshold}
}

// TrustLevel returns the coach's trust level, or nil
func (s *StaticTrust) TrustLevel(_ context.Context, coachID string) (*model.TrustLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.levels[coachID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}
