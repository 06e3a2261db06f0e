package model

// Player is an active enrolled player in an organization
type Player struct {
	ID        string   `json:"id" yaml:"id"`
	FirstName string   `json:"first_name" yaml:"first_name"`
	LastName  string   `json:"last_name" yaml:"last_name"`
	AgeGroup  string   `json:"age_group,omitempty" yaml:"age_group,omitempty"`
	Sport     string   `json:"sport,omitempty" yaml:"sport,omitempty"`
	TeamIDs   []string `json:"team_ids,omitempty" yaml:"team_ids,omitempty"`
}

// FullName joins first and last name
func (p Player) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	if p.FirstName == "" {
		return p.LastName
	}
	return p.FirstName + " " + p.LastName
}

// Team is a team visible to a coach
type Team struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	AgeGroup string   `json:"age_group,omitempty" yaml:"age_group,omitempty"`
	Sport    string   `json:"sport,omitempty" yaml:"sport,omitempty"`
	CoachIDs []string `json:"coach_ids,omitempty" yaml:"coach_ids,omitempty"`
}

// Coach is a coach visible in an organization
type Coach struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// PlayerCandidate is a scored roster match for a search string
type PlayerCandidate struct {
	Player     Player
	Similarity float64 // final score including any team bonus
	BaseScore  float64 // raw name score
	OnTeam     bool    // player is on one of the coach's teams
	Reason     MatchReason
}
