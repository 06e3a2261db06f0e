// Package llm talks to the upstream AI service that transcribes voice notes
// and extracts claims from transcripts.
package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/rollcall/internal/model"
)

// Config holds AI service configuration
type Config struct {
	// Provider name: "openai" or "" to disable AI stages
	Provider string

	// Model is the chat model used for claims extraction
	Model string

	// TranscribeModel is the speech-to-text model
	TranscribeModel string

	APIKey  string
	BaseURL string

	// Timeout for a single API request, in seconds
	Timeout int

	// RequestsPerSecond throttles calls per operation; 0 is unlimited
	RequestsPerSecond float64
	Burst             int

	// TranscribeRequestsPerSecond overrides RequestsPerSecond for
	// transcription when positive
	TranscribeRequestsPerSecond float64

	// MaxMediaBytes caps the size of a fetched voice note
	MaxMediaBytes int64

	// MediaCacheDir enables the memory+disk cache of downloaded voice notes
	MediaCacheDir string
	MediaCacheTTL time.Duration

	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultMaxMediaBytes is the voice note size cap (the transcription API limit)
const DefaultMaxMediaBytes = 25 << 20

// DefaultConfig returns the defaults with AI disabled
func DefaultConfig() Config {
	return Config{
		Provider:          "",
		Model:             "gpt-4o-mini",
		TranscribeModel:   "whisper-1",
		Timeout:           60,
		RequestsPerSecond: 2,
		Burst:             4,
		MaxMediaBytes:     DefaultMaxMediaBytes,
		MediaCacheTTL:     24 * time.Hour,
	}
}

// ConfigFromModel converts the ai config section
func ConfigFromModel(c model.AIConfig) Config {
	cfg := DefaultConfig()
	cfg.Provider = c.Provider
	if c.Model != "" {
		cfg.Model = c.Model
	}
	if c.TranscribeModel != "" {
		cfg.TranscribeModel = c.TranscribeModel
	}
	cfg.APIKey = c.APIKey
	cfg.BaseURL = c.BaseURL
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	cfg.RequestsPerSecond = c.RequestsPerSecond
	if c.Burst > 0 {
		cfg.Burst = c.Burst
	}
	cfg.TranscribeRequestsPerSecond = c.TranscribeRequestsPerSecond
	cfg.MediaCacheDir = c.MediaCacheDir
	if c.MediaCacheTTL > 0 {
		cfg.MediaCacheTTL = c.MediaCacheTTL
	}
	cfg.HTTPProxy = c.HTTPProxy
	cfg.HTTPSProxy = c.HTTPSProxy
	cfg.NoProxy = c.NoProxy
	return cfg
}

const claimsSystemPrompt = `You extract factual claims about youth sports players from a coach's voice note transcript.

Return a JSON object {"claims": [...]}. Each claim has:
- "text": one self-contained statement from the transcript
- "topic": one of skill_rating, injury, behavior, attendance, performance, development, other
- "entity_mentions": every span that refers to a player, team, coach or group, each with
  "mention_type" (player_name, team_name, coach_name, group_reference),
  "raw_text" (exactly as spoken) and "position" (character offset in "text").

Do not guess identities, do not expand nicknames, and do not invent claims that are not in the transcript.
Return {"claims": []} when there are none.`

// BuildClaimsPrompt builds the user message for claims extraction
func BuildClaimsPrompt(transcript string) string {
	return fmt.Sprintf("Transcript:\n%s", strings.TrimSpace(transcript))
}

type claimsResponse struct {
	Claims []struct {
		Text           string `json:"text"`
		Topic          string `json:"topic"`
		EntityMentions []struct {
			MentionType string `json:"mention_type"`
			RawText     string `json:"raw_text"`
			Position    int    `json:"position"`
		} `json:"entity_mentions"`
	} `json:"claims"`
}

// ParseClaims decodes the model's JSON answer into extracted claims. Mentions
// with an unknown type or empty text are dropped; the rest are ordered by position.
func ParseClaims(content string) ([]model.Claim, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var resp claimsResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}

	claims := make([]model.Claim, 0, len(resp.Claims))
	for _, c := range resp.Claims {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		claim := model.Claim{
			Text:           text,
			Topic:          c.Topic,
			Status:         model.ClaimStatusExtracted,
			EntityMentions: []model.EntityMention{},
		}
		for _, m := range c.EntityMentions {
			mt := model.MentionType(m.MentionType)
			raw := strings.TrimSpace(m.RawText)
			if !mt.Valid() || raw == "" {
				continue
			}
			claim.EntityMentions = append(claim.EntityMentions, model.EntityMention{
				MentionType: mt,
				RawText:     raw,
				Position:    m.Position,
			})
		}
		sort.SliceStable(claim.EntityMentions, func(i, j int) bool {
			return claim.EntityMentions[i].Position < claim.EntityMentions[j].Position
		})
		claims = append(claims, claim)
	}
	return claims, nil
}
