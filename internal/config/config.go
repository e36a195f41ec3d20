package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/elonfeng/viralclips/pkg/selector"
	"github.com/elonfeng/viralclips/pkg/source"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Schedule  ScheduleConfig  `yaml:"schedule" toml:"schedule"`
	Sources   SourcesConfig   `yaml:"sources" toml:"sources"`
	Discovery DiscoveryConfig `yaml:"discovery" toml:"discovery"`
	Selection selector.Config `yaml:"selection" toml:"selection"`
	Alerts    AlertsConfig    `yaml:"alerts" toml:"alerts"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Filter    FilterConfig    `yaml:"filter" toml:"filter"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path" validate:"required"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string `yaml:"format" toml:"format" validate:"omitempty,oneof=text json"`
}

// ScheduleConfig configures periodic discovery of watched niches.
type ScheduleConfig struct {
	Interval string   `yaml:"interval" toml:"interval"`
	Niches   []string `yaml:"niches" toml:"niches" validate:"dive,min=1,max=100"`
	// AlertTop is how many of each run's best videos go into a notification.
	AlertTop int `yaml:"alert_top" toml:"alert_top" validate:"gte=0,lte=50"`
}

// ParseInterval returns the schedule interval as time.Duration.
func (s ScheduleConfig) ParseInterval() time.Duration {
	d, err := time.ParseDuration(s.Interval)
	if err != nil || d <= 0 {
		return 6 * time.Hour
	}
	return d
}

// SourcesConfig holds one entry per platform.
type SourcesConfig struct {
	YouTube   PlatformConfig `yaml:"youtube" toml:"youtube"`
	TikTok    PlatformConfig `yaml:"tiktok" toml:"tiktok"`
	Instagram PlatformConfig `yaml:"instagram" toml:"instagram"`
	Snapchat  PlatformConfig `yaml:"snapchat" toml:"snapchat"`
}

// PlatformConfig configures the client for one platform. An empty kind
// picks the richest variant the credentials allow.
type PlatformConfig struct {
	Enabled         bool     `yaml:"enabled" toml:"enabled"`
	Kind            string   `yaml:"kind" toml:"kind" validate:"omitempty,oneof=youtube_api youtube_feed social scrape"`
	APIKey          string   `yaml:"api_key" toml:"api_key"`
	Channels        []string `yaml:"channels" toml:"channels"`
	RateLimit       int      `yaml:"rate_limit" toml:"rate_limit" validate:"gte=0"`
	MaxDuration     float64  `yaml:"max_duration" toml:"max_duration" validate:"gte=0"`
	AssumedDuration float64  `yaml:"assumed_duration" toml:"assumed_duration" validate:"gte=0"`
}

// For returns the entry for p.
func (s SourcesConfig) For(p source.Platform) PlatformConfig {
	switch p {
	case source.PlatformYouTube:
		return s.YouTube
	case source.PlatformTikTok:
		return s.TikTok
	case source.PlatformInstagram:
		return s.Instagram
	case source.PlatformSnapchat:
		return s.Snapchat
	}
	return PlatformConfig{}
}

// DiscoveryConfig holds request defaults for the orchestrator.
type DiscoveryConfig struct {
	TimeframeHours      int     `yaml:"timeframe_hours" toml:"timeframe_hours" validate:"min=1,max=2160"`
	PerPlatformLimit    int     `yaml:"per_platform_limit" toml:"per_platform_limit" validate:"min=1,max=200"`
	MinViralScore       float64 `yaml:"min_viral_score" toml:"min_viral_score" validate:"gte=0,lte=100"`
	MinViews            int64   `yaml:"min_views" toml:"min_views" validate:"gte=0"`
	PlatformTimeout     string  `yaml:"platform_timeout" toml:"platform_timeout"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" toml:"similarity_threshold" validate:"gt=0,lte=1"`
}

// ParsePlatformTimeout returns the per-platform deadline.
func (d DiscoveryConfig) ParsePlatformTimeout() time.Duration {
	t, err := time.ParseDuration(d.PlatformTimeout)
	if err != nil || t <= 0 {
		return 2 * time.Minute
	}
	return t
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack" toml:"slack"`
	Discord DiscordConfig `yaml:"discord" toml:"discord"`
	Webhook WebhookConfig `yaml:"webhook" toml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	WebhookURL string `yaml:"webhook_url" toml:"webhook_url" validate:"omitempty,url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	WebhookURL string `yaml:"webhook_url" toml:"webhook_url" validate:"omitempty,url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	URL     string `yaml:"url" toml:"url" validate:"omitempty,url"`
	Secret  string `yaml:"secret" toml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" toml:"port" validate:"min=1,max=65535"`
}

// FilterConfig configures content filtering.
type FilterConfig struct {
	ExcludeKeywords []string `yaml:"exclude_keywords" toml:"exclude_keywords"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./viralclips.db"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Schedule: ScheduleConfig{Interval: "6h", AlertTop: 5},
		Sources: SourcesConfig{
			YouTube:   PlatformConfig{Enabled: true},
			TikTok:    PlatformConfig{Enabled: true},
			Instagram: PlatformConfig{Enabled: true},
			Snapchat:  PlatformConfig{Enabled: false},
		},
		Discovery: DiscoveryConfig{
			TimeframeHours:      720,
			PerPlatformLimit:    50,
			PlatformTimeout:     "2m",
			SimilarityThreshold: 0.85,
		},
		Selection: selector.DefaultConfig(),
		Server:    ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML or TOML file, chosen by extension,
// applies env var overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and the selection policy.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Selection.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	var errs []error
	if c.Alerts.Slack.Enabled && c.Alerts.Slack.WebhookURL == "" {
		errs = append(errs, errors.New("alerts.slack enabled without webhook_url"))
	}
	if c.Alerts.Discord.Enabled && c.Alerts.Discord.WebhookURL == "" {
		errs = append(errs, errors.New("alerts.discord enabled without webhook_url"))
	}
	if c.Alerts.Webhook.Enabled && c.Alerts.Webhook.URL == "" {
		errs = append(errs, errors.New("alerts.webhook enabled without url"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// SourceSpecs returns client specs for every enabled platform.
func (c *Config) SourceSpecs() []source.Spec {
	var specs []source.Spec
	for _, p := range source.AllPlatforms() {
		pc := c.Sources.For(p)
		if !pc.Enabled {
			continue
		}
		specs = append(specs, source.Spec{
			Platform:        p,
			Kind:            source.Kind(pc.Kind),
			APIKey:          pc.APIKey,
			Channels:        pc.Channels,
			AssumedDuration: pc.AssumedDuration,
			RateLimit:       pc.RateLimit,
			MaxDuration:     pc.MaxDuration,
			ExcludeKeywords: c.Filter.ExcludeKeywords,
		})
	}
	return specs
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VIRALCLIPS_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("VIRALCLIPS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		cfg.Sources.YouTube.APIKey = v
	}
	if v := os.Getenv("APIFY_API_TOKEN"); v != "" {
		for _, pc := range []*PlatformConfig{&cfg.Sources.TikTok, &cfg.Sources.Instagram, &cfg.Sources.Snapchat} {
			if pc.APIKey == "" {
				pc.APIKey = v
			}
		}
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}
