package model

import "time"

// Config holds the full rollcall configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Resolution ResolutionConfig `yaml:"resolution" mapstructure:"resolution"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	AI         AIConfig         `yaml:"ai" mapstructure:"ai"`
	Roster     RosterConfig     `yaml:"roster" mapstructure:"roster"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Verbose    bool             `yaml:"verbose" mapstructure:"verbose"`
}

// DatabaseConfig configures the SQLite store
type DatabaseConfig struct {
	Path  string `yaml:"path" mapstructure:"path"`
	Debug bool   `yaml:"debug" mapstructure:"debug"`
}

// ResolutionConfig tunes entity resolution
type ResolutionConfig struct {
	AutoResolveThreshold float64 `yaml:"auto_resolve_threshold" mapstructure:"auto_resolve_threshold"` // fallback when a coach has no trust level
	SimilarityFloor      float64 `yaml:"similarity_floor" mapstructure:"similarity_floor"`
	TeamContextBonus     float64 `yaml:"team_context_bonus" mapstructure:"team_context_bonus"`
	NonPlayerFloor       float64 `yaml:"non_player_floor" mapstructure:"non_player_floor"`
	CandidateLimit       int     `yaml:"candidate_limit" mapstructure:"candidate_limit"`
	LookupConcurrency    int     `yaml:"lookup_concurrency" mapstructure:"lookup_concurrency"`
}

// PipelineConfig tunes stage scheduling and failure handling
type PipelineConfig struct {
	MaxRetries          int           `yaml:"max_retries" mapstructure:"max_retries"`
	BaseBackoff         time.Duration `yaml:"base_backoff" mapstructure:"base_backoff"`
	MaxBackoff          time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
	BreakerMaxFailures  int           `yaml:"breaker_max_failures" mapstructure:"breaker_max_failures"`
	BreakerCooldown     time.Duration `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
	BreakerHalfOpenMax  int           `yaml:"breaker_half_open_max" mapstructure:"breaker_half_open_max"`
	Workers             int           `yaml:"workers" mapstructure:"workers"`
	RequireConfirmation bool          `yaml:"require_confirmation" mapstructure:"require_confirmation"`
}

// AIConfig configures the upstream AI service
type AIConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"` // openai, "" disables AI stages
	Model             string  `yaml:"model" mapstructure:"model"`
	TranscribeModel   string  `yaml:"transcribe_model" mapstructure:"transcribe_model"`
	APIKey            string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL           string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout           int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	// TranscribeRequestsPerSecond overrides the rate for transcription when positive
	TranscribeRequestsPerSecond float64       `yaml:"transcribe_requests_per_second" mapstructure:"transcribe_requests_per_second"`
	MediaCacheDir               string        `yaml:"media_cache_dir,omitempty" mapstructure:"media_cache_dir"` // "" disables the media cache
	MediaCacheTTL               time.Duration `yaml:"media_cache_ttl" mapstructure:"media_cache_ttl"`
	HTTPProxy                   string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy                  string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy                     string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// RosterConfig points at the roster snapshot
type RosterConfig struct {
	File     string        `yaml:"file" mapstructure:"file"`
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "rollcall.db",
		},
		Resolution: ResolutionConfig{
			AutoResolveThreshold: 0.9,
			SimilarityFloor:      0.5,
			TeamContextBonus:     0.1,
			NonPlayerFloor:       0.8,
			CandidateLimit:       5,
			LookupConcurrency:    8,
		},
		Pipeline: PipelineConfig{
			MaxRetries:          3,
			BaseBackoff:         30 * time.Second,
			MaxBackoff:          15 * time.Minute,
			BreakerMaxFailures:  5,
			BreakerCooldown:     30 * time.Second,
			BreakerHalfOpenMax:  1,
			Workers:             4,
			RequireConfirmation: true,
		},
		AI: AIConfig{
			Provider:          "",
			Model:             "gpt-4o-mini",
			TranscribeModel:   "whisper-1",
			Timeout:           60,
			RequestsPerSecond: 2,
			Burst:             4,
			MediaCacheTTL:     24 * time.Hour,
		},
		Roster: RosterConfig{
			CacheTTL: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Listen: ":9464",
		},
	}
}
