package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Matching    MatchingConfig    `toml:"matching"`
	Search      SearchConfig      `toml:"search"`
	Sync        SyncConfig        `toml:"sync"`
	Review      ReviewConfig      `toml:"review"`
	Logging     LoggingConfig     `toml:"logging"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	YouTube YouTubeConfig `toml:"youtube"`
	Gemini  GeminiConfig  `toml:"gemini"`
}

// SpotifyConfig contains Spotify API credentials.
//
// Tokens are obtained out of band; plsync only refreshes them.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
}

// YouTubeConfig contains YouTube Music proxy settings.
type YouTubeConfig struct {
	ProxyURL    string `toml:"proxy_url"`
	HeadersPath string `toml:"headers_path"`
}

// GeminiConfig contains settings for the optional match oracle.
type GeminiConfig struct {
	APIKey      string `toml:"api_key"`
	Model       string `toml:"model"`
	MaxRequests int    `toml:"max_requests"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// MatchingConfig holds scorer weights and decision thresholds.
type MatchingConfig struct {
	AutoAcceptThreshold   float64 `toml:"auto_accept_threshold"`
	ManualReviewThreshold float64 `toml:"manual_review_threshold"` // 0 means auto_accept_threshold - 5
	ScoreFloor            float64 `toml:"score_floor"`
	ArtistWeight          float64 `toml:"artist_weight"`
	TitleWeight           float64 `toml:"title_weight"`
	MaxDurationDelta      int     `toml:"max_duration_delta"` // seconds
	DurationPenalty       float64 `toml:"duration_penalty"`
	FeaturingBoost        float64 `toml:"featuring_boost"`
	OracleMinConfidence   float64 `toml:"oracle_min_confidence"`
}

// SearchConfig controls the catalog, concurrency ceiling and retry policy.
type SearchConfig struct {
	Service        string  `toml:"service"` // spotify or youtube
	Concurrency    int     `toml:"concurrency"`
	RateLimit      float64 `toml:"rate_limit"` // requests per second
	ResultLimit    int     `toml:"result_limit"`
	MaxAttempts    int     `toml:"max_attempts"`
	BaseBackoffMS  int     `toml:"base_backoff_ms"`
	MaxBackoffMS   int     `toml:"max_backoff_ms"`
	CacheTTLHours  int     `toml:"cache_ttl_hours"` // 0 disables the persistent cache
	ManualSearches int     `toml:"manual_search_rounds"`
}

// SyncConfig sets the edit budget separating Delta from FullSync.
type SyncConfig struct {
	DeltaBudgetRatio float64 `toml:"delta_budget_ratio"`
	DeltaMinBudget   int     `toml:"delta_min_budget"`
}

// ReviewConfig controls how ambiguous matches are resolved.
type ReviewConfig struct {
	Interactive  bool `toml:"interactive"`
	Oracle       bool `toml:"oracle"`
	ManualSearch bool `toml:"manual_search"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, fs.ErrExist)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv loads a dotenv file into the process environment. A missing file is not an error.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides credentials with values from the environment.
func (c *Config) ApplyEnv() {
	for env, dst := range map[string]*string{
		"SPOTIFY_CLIENT_ID":     &c.Credentials.Spotify.ClientID,
		"SPOTIFY_CLIENT_SECRET": &c.Credentials.Spotify.ClientSecret,
		"SPOTIFY_REDIRECT_URI":  &c.Credentials.Spotify.RedirectURI,
		"SPOTIFY_ACCESS_TOKEN":  &c.Credentials.Spotify.AccessToken,
		"SPOTIFY_REFRESH_TOKEN": &c.Credentials.Spotify.RefreshToken,
		"YTMUSIC_PROXY_URL":     &c.Credentials.YouTube.ProxyURL,
		"GEMINI_API_KEY":        &c.Credentials.Gemini.APIKey,
		"PLSYNC_DATABASE":       &c.Database.Path,
		"PLSYNC_LOG_LEVEL":      &c.Logging.Level,
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*dst = v
		}
	}
}

// Validate checks threshold ordering and limits.
func (c *Config) Validate() error {
	m := c.Matching
	if m.AutoAcceptThreshold <= 0 || m.AutoAcceptThreshold > 100 {
		return fmt.Errorf("%w: auto_accept_threshold must be in (0, 100]", ErrInvalidConfig)
	}
	if m.ManualReviewThreshold > m.AutoAcceptThreshold {
		return fmt.Errorf("%w: manual_review_threshold exceeds auto_accept_threshold", ErrInvalidConfig)
	}
	if m.ScoreFloor < 0 || m.ScoreFloor >= m.AutoAcceptThreshold {
		return fmt.Errorf("%w: score_floor must be below auto_accept_threshold", ErrInvalidConfig)
	}
	if m.ArtistWeight < 0 || m.TitleWeight < 0 || m.ArtistWeight+m.TitleWeight == 0 {
		return fmt.Errorf("%w: artist_weight and title_weight must be non-negative and not both zero", ErrInvalidConfig)
	}
	if c.Search.Concurrency <= 0 {
		return fmt.Errorf("%w: search.concurrency must be positive", ErrInvalidConfig)
	}
	if c.Search.MaxAttempts <= 0 {
		return fmt.Errorf("%w: search.max_attempts must be positive", ErrInvalidConfig)
	}
	switch c.Search.Service {
	case "spotify", "youtube":
	default:
		return fmt.Errorf("%w: unknown search.service %q", ErrInvalidConfig, c.Search.Service)
	}
	if c.Sync.DeltaBudgetRatio < 0 || c.Sync.DeltaBudgetRatio > 1 {
		return fmt.Errorf("%w: sync.delta_budget_ratio must be in [0, 1]", ErrInvalidConfig)
	}
	return nil
}

// ReviewThreshold returns the manual-review threshold, deriving it from the auto-accept threshold when unset.
func (m MatchingConfig) ReviewThreshold() float64 {
	if m.ManualReviewThreshold > 0 {
		return m.ManualReviewThreshold
	}
	return m.AutoAcceptThreshold - 5
}

// BaseBackoff returns the configured initial retry delay.
func (s SearchConfig) BaseBackoff() time.Duration {
	return time.Duration(s.BaseBackoffMS) * time.Millisecond
}

// MaxBackoff returns the configured retry delay ceiling.
func (s SearchConfig) MaxBackoff() time.Duration {
	return time.Duration(s.MaxBackoffMS) * time.Millisecond
}

// CacheTTL returns the persistent candidate cache lifetime.
func (s SearchConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLHours) * time.Hour
}
