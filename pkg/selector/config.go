package selector

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is wrapped by every *ConfigError.
var ErrInvalidConfig = errors.New("invalid selection config")

// ErrInvalidWeights is returned when the composite weights do not sum to 1.
var ErrInvalidWeights = fmt.Errorf("%w: weights must sum to 1.0", ErrInvalidConfig)

// weightTolerance is how far the weight sum may drift from 1.0.
const weightTolerance = 0.01

// ConfigError names the offending field.
type ConfigError struct {
	Field  string
	Reason string
	err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("selection config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	if e.err != nil {
		return e.err
	}
	return ErrInvalidConfig
}

// Config tunes clip selection. Quality and relevance thresholds are on the
// 0-1 scale, the trending threshold on the 0-100 scale.
type Config struct {
	TrendingWeight  float64 `yaml:"trending_weight" toml:"trending_weight" json:"trending_weight"`
	QualityWeight   float64 `yaml:"quality_weight" toml:"quality_weight" json:"quality_weight"`
	RelevanceWeight float64 `yaml:"relevance_weight" toml:"relevance_weight" json:"relevance_weight"`

	MinQuality   float64 `yaml:"min_quality" toml:"min_quality" json:"min_quality"`
	MinRelevance float64 `yaml:"min_relevance" toml:"min_relevance" json:"min_relevance"`
	MinTrending  float64 `yaml:"min_trending" toml:"min_trending" json:"min_trending"`

	MaxClips     int `yaml:"max_clips" toml:"max_clips" json:"max_clips"`
	MaxPerAuthor int `yaml:"max_per_author" toml:"max_per_author" json:"max_per_author"`

	MinDuration float64 `yaml:"min_duration" toml:"min_duration" json:"min_duration"`
	MaxDuration float64 `yaml:"max_duration" toml:"max_duration" json:"max_duration"`

	// RequirePlatformDiversity spreads slots across platforms before letting
	// any single platform fill the remainder.
	RequirePlatformDiversity bool `yaml:"require_platform_diversity" toml:"require_platform_diversity" json:"require_platform_diversity"`
}

// DefaultConfig returns the stock selection policy.
func DefaultConfig() Config {
	return Config{
		TrendingWeight:  0.4,
		QualityWeight:   0.3,
		RelevanceWeight: 0.3,
		MinQuality:      0,
		MinRelevance:    0,
		MinTrending:     0,
		MaxClips:        10,
		MaxPerAuthor:    2,
		MinDuration:     5,
		MaxDuration:     60,
	}
}

// Validate checks the config and returns a *ConfigError on the first
// problem.
func (c Config) Validate() error {
	sum := c.TrendingWeight + c.QualityWeight + c.RelevanceWeight
	if math.Abs(sum-1.0) > weightTolerance {
		return &ConfigError{Field: "weights", Reason: fmt.Sprintf("must sum to 1.0, got %.4f", sum), err: ErrInvalidWeights}
	}
	for name, w := range map[string]float64{
		"trending_weight":  c.TrendingWeight,
		"quality_weight":   c.QualityWeight,
		"relevance_weight": c.RelevanceWeight,
	} {
		if w < 0 {
			return &ConfigError{Field: name, Reason: "must not be negative"}
		}
	}

	switch {
	case c.MaxClips <= 0:
		return &ConfigError{Field: "max_clips", Reason: "must be positive"}
	case c.MaxPerAuthor <= 0:
		return &ConfigError{Field: "max_per_author", Reason: "must be positive"}
	case c.MinDuration < 0:
		return &ConfigError{Field: "min_duration", Reason: "must not be negative"}
	case c.MaxDuration < c.MinDuration:
		return &ConfigError{Field: "max_duration", Reason: "must not be below min_duration"}
	case c.MinQuality < 0 || c.MinQuality > 1:
		return &ConfigError{Field: "min_quality", Reason: "must be within 0..1"}
	case c.MinRelevance < 0 || c.MinRelevance > 1:
		return &ConfigError{Field: "min_relevance", Reason: "must be within 0..1"}
	case c.MinTrending < 0 || c.MinTrending > 100:
		return &ConfigError{Field: "min_trending", Reason: "must be within 0..100"}
	}
	return nil
}
