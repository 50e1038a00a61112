package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	// External clinical record source.
	SourceBaseURL        string `mapstructure:"SOURCE_BASE_URL"`
	SourceAPIKey         string `mapstructure:"SOURCE_API_KEY"`
	SourceTimeoutSeconds int    `mapstructure:"SOURCE_TIMEOUT_SECONDS"`

	// Sync behaviour.
	Sites                 []string `mapstructure:"SITES"`
	SyncIntervalMinutes   int      `mapstructure:"SYNC_INTERVAL_MINUTES"`
	SeedWindowDays        int      `mapstructure:"SEED_WINDOW_DAYS"`
	CursorOverlapMinutes  int      `mapstructure:"CURSOR_OVERLAP_MINUTES"`
	NoteCategory          string   `mapstructure:"NOTE_CATEGORY"`
	NoteLookbackDays      int      `mapstructure:"NOTE_LOOKBACK_DAYS"`
	MatchToleranceMinutes int      `mapstructure:"MATCH_TOLERANCE_MINUTES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("SOURCE_TIMEOUT_SECONDS", 30)
	v.SetDefault("SYNC_INTERVAL_MINUTES", 5)
	v.SetDefault("SEED_WINDOW_DAYS", 30)
	v.SetDefault("CURSOR_OVERLAP_MINUTES", 5)
	v.SetDefault("NOTE_CATEGORY", "Post Fall Observation")
	v.SetDefault("NOTE_LOOKBACK_DAYS", 45)
	v.SetDefault("MATCH_TOLERANCE_MINUTES", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("SOURCE_BASE_URL")
	v.BindEnv("SOURCE_API_KEY")
	v.BindEnv("SOURCE_TIMEOUT_SECONDS")
	v.BindEnv("SITES")
	v.BindEnv("SYNC_INTERVAL_MINUTES")
	v.BindEnv("SEED_WINDOW_DAYS")
	v.BindEnv("CURSOR_OVERLAP_MINUTES")
	v.BindEnv("NOTE_CATEGORY")
	v.BindEnv("NOTE_LOOKBACK_DAYS")
	v.BindEnv("MATCH_TOLERANCE_MINUTES")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	// Viper's Unmarshal comma-splits SITES without trimming, so always
	// re-parse from the raw value: site names feed source API paths and
	// cursor keys, where stray whitespace would corrupt rows.
	if sites := v.GetString("SITES"); sites != "" {
		cfg.Sites = splitAndTrim(sites)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside development
// the external source and at least one site must be configured, and
// AUTH_ISSUER must be set so real JWT authentication is enforced on the
// dashboard API.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_ISSUER must be set when ENV=%q; refusing to start without authentication configuration", c.Env)
		}
		if c.SourceBaseURL == "" {
			return fmt.Errorf("SOURCE_BASE_URL is required when ENV=%q", c.Env)
		}
		if len(c.Sites) == 0 {
			return fmt.Errorf("SITES must list at least one site when ENV=%q", c.Env)
		}
	}
	if c.SyncIntervalMinutes <= 0 {
		return fmt.Errorf("SYNC_INTERVAL_MINUTES must be positive, got %d", c.SyncIntervalMinutes)
	}
	if c.MatchToleranceMinutes <= 0 {
		return fmt.Errorf("MATCH_TOLERANCE_MINUTES must be positive, got %d", c.MatchToleranceMinutes)
	}
	if c.SeedWindowDays <= 0 {
		return fmt.Errorf("SEED_WINDOW_DAYS must be positive, got %d", c.SeedWindowDays)
	}
	return nil
}

// SourceTimeout returns the bounded timeout applied to every external
// source call.
func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutSeconds) * time.Second
}

// SyncInterval returns the poll period for the per-site workers.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

// CursorOverlap is the safety window re-queried before the last cursor to
// tolerate clock skew and source API visibility lag.
func (c *Config) CursorOverlap() time.Duration {
	return time.Duration(c.CursorOverlapMinutes) * time.Minute
}

// SeedWindow is the historical window queried on a site's first sync or a
// forced full resync.
func (c *Config) SeedWindow() time.Duration {
	return time.Duration(c.SeedWindowDays) * 24 * time.Hour
}

// NoteLookback bounds how far back the note matcher considers open incidents.
func (c *Config) NoteLookback() time.Duration {
	return time.Duration(c.NoteLookbackDays) * 24 * time.Hour
}

// MatchTolerance is the ± window around a task due time inside which a note
// may complete it.
func (c *Config) MatchTolerance() time.Duration {
	return time.Duration(c.MatchToleranceMinutes) * time.Minute
}
