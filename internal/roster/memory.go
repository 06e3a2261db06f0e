package roster

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/rollcall/internal/model"
)

// Organization is one organization's roster snapshot
type Organization struct {
	ID      string         `yaml:"id"`
	Name    string         `yaml:"name,omitempty"`
	Players []model.Player `yaml:"players"`
	Teams   []model.Team   `yaml:"teams"`
	Coaches []model.Coach  `yaml:"coaches"`
}

// File is the on-disk roster format
type File struct {
	Organizations []Organization     `yaml:"organizations"`
	Trust         []model.TrustLevel `yaml:"trust,omitempty"`
}

// MemorySource serves rosters from memory
type MemorySource struct {
	mu   sync.RWMutex
	orgs map[string]Organization
}

// NewMemorySource creates a source from organization snapshots
func NewMemorySource(orgs ...Organization) *MemorySource {
	s := &MemorySource{orgs: make(map[string]Organization, len(orgs))}
	for _, o := range orgs {
		s.orgs[o.ID] = o
	}
	return s
}

// LoadFile reads a YAML roster file
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the snapshot once so resolvers can trust it afterwards
func (f *File) Validate() error {
	seen := make(map[string]bool)
	for i, o := range f.Organizations {
		if o.ID == "" {
			return fmt.Errorf("organization %d: missing id", i)
		}
		if seen[o.ID] {
			return fmt.Errorf("organization %s: duplicate id", o.ID)
		}
		seen[o.ID] = true

		for j, p := range o.Players {
			if p.ID == "" {
				return fmt.Errorf("organization %s: player %d missing id", o.ID, j)
			}
			if p.FirstName == "" && p.LastName == "" {
				return fmt.Errorf("organization %s: player %s has no name", o.ID, p.ID)
			}
		}
		for j, t := range o.Teams {
			if t.ID == "" || t.Name == "" {
				return fmt.Errorf("organization %s: team %d needs id and name", o.ID, j)
			}
		}
		for j, c := range o.Coaches {
			if c.ID == "" || c.Name == "" {
				return fmt.Errorf("organization %s: coach %d needs id and name", o.ID, j)
			}
		}
	}
	for _, tl := range f.Trust {
		if th := tl.InsightConfidenceThreshold; th != nil && (*th < 0 || *th > 1) {
			return fmt.Errorf("trust for coach %s: threshold %.2f outside [0,1]", tl.CoachUserID, *th)
		}
	}
	return nil
}

// Source builds a MemorySource from the file
func (f *File) Source() *MemorySource {
	return NewMemorySource(f.Organizations...)
}

// Put replaces an organization snapshot
func (s *MemorySource) Put(org Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[org.ID] = org
}

func (s *MemorySource) org(orgID string) (Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orgs[orgID]
	if !ok {
		return Organization{}, fmt.Errorf("%w: %s", ErrUnknownOrganization, orgID)
	}
	return o, nil
}

// CoachTeams returns the teams a coach is assigned to
func (s *MemorySource) CoachTeams(_ context.Context, orgID, coachID string) ([]model.Team, error) {
	o, err := s.org(orgID)
	if err != nil {
		return nil, err
	}
	var out []model.Team
	for _, t := range o.Teams {
		if slices.Contains(t.CoachIDs, coachID) {
			out = append(out, t)
		}
	}
	return out, nil
}

// ActivePlayers returns the organization's players
func (s *MemorySource) ActivePlayers(_ context.Context, orgID string) ([]model.Player, error) {
	o, err := s.org(orgID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(o.Players), nil
}

// Teams returns the coach's teams followed by the rest of the organization's teams
func (s *MemorySource) Teams(_ context.Context, orgID, coachID string) ([]model.Team, error) {
	o, err := s.org(orgID)
	if err != nil {
		return nil, err
	}
	own := make([]model.Team, 0, len(o.Teams))
	rest := make([]model.Team, 0, len(o.Teams))
	for _, t := range o.Teams {
		if slices.Contains(t.CoachIDs, coachID) {
			own = append(own, t)
		} else {
			rest = append(rest, t)
		}
	}
	return append(own, rest...), nil
}

// Coaches returns the organization's coaches
func (s *MemorySource) Coaches(_ context.Context, orgID, _ string) ([]model.Coach, error) {
	o, err := s.org(orgID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(o.Coaches), nil
}
