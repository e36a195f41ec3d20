package selector

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newSelector(t *testing.T, cfg Config) *Selector {
	t.Helper()
	s, err := New(cfg, quiet())
	require.NoError(t, err)
	return s
}

func candidate(id, author, platform string, trending, quality, relevance, duration float64) Candidate {
	return Candidate{
		ContentID:       id,
		URL:             "https://x/" + id,
		Title:           "clip " + id,
		Author:          author,
		Platform:        platform,
		LocalPath:       "/media/" + id + ".mp4",
		DurationSeconds: duration,
		TrendingScore:   trending,
		QualityScore:    quality,
		RelevanceScore:  relevance,
		Recommended:     true,
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.TrendingWeight, cfg.QualityWeight, cfg.RelevanceWeight = 0.5, 0.3, 0.3
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalidWeights)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "weights", cfgErr.Field)

	weights := []struct {
		name                         string
		trending, quality, relevance float64
		ok                           bool
	}{
		{"sum 1.1", 0.5, 0.3, 0.3, false},
		{"sum 0.9", 0.3, 0.3, 0.3, false},
		{"sum 1.02", 0.42, 0.3, 0.3, false},
		{"sum 0.98", 0.38, 0.3, 0.3, false},
		{"sum 1.005", 0.405, 0.3, 0.3, true},
		{"sum 0.995", 0.395, 0.3, 0.3, true},
		{"exact", 0.2, 0.5, 0.3, true},
	}
	for _, tt := range weights {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.TrendingWeight, cfg.QualityWeight, cfg.RelevanceWeight = tt.trending, tt.quality, tt.relevance
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.ErrorIs(t, cfg.Validate(), ErrInvalidWeights)
			}
		})
	}

	tests := []struct {
		field string
		mut   func(*Config)
	}{
		{"max_clips", func(c *Config) { c.MaxClips = 0 }},
		{"max_per_author", func(c *Config) { c.MaxPerAuthor = -1 }},
		{"max_duration", func(c *Config) { c.MaxDuration = 2 }},
		{"min_quality", func(c *Config) { c.MinQuality = 1.5 }},
		{"min_trending", func(c *Config) { c.MinTrending = 101 }},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mut(&cfg)
		err := cfg.Validate()
		require.ErrorAs(t, err, &cfgErr, tt.field)
		assert.Equal(t, tt.field, cfgErr.Field)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	}

	_, err = New(Config{}, quiet())
	assert.ErrorIs(t, err, ErrInvalidWeights)
}

func TestComposite(t *testing.T) {
	s := newSelector(t, DefaultConfig())
	c := candidate("a", "x", "youtube", 80, 0.9, 0.5, 30)
	// 0.8*0.4 + 0.9*0.3 + 0.5*0.3 = 0.32 + 0.27 + 0.15
	assert.Equal(t, 0.74, s.Composite(c))
	assert.Equal(t, 0.3, NormalizeTrending(30))
	assert.Equal(t, 1.0, NormalizeTrending(250))
}

func TestSelectAuthorCap(t *testing.T) {
	var cands []Candidate
	for i := 0; i < 4; i++ {
		cands = append(cands, candidate(fmt.Sprintf("a%d", i), "A", "tiktok", 90-float64(i), 0.9, 0.9, 20))
	}
	for i := 0; i < 8; i++ {
		cands = append(cands, candidate(fmt.Sprintf("o%d", i), fmt.Sprintf("author%d", i), "youtube", 50, 0.6, 0.6, 20))
	}

	s := newSelector(t, DefaultConfig())
	clips := s.SelectTopClips(cands)

	require.Len(t, clips, 10)
	authorA := 0
	for i, c := range clips {
		assert.Equal(t, i+1, c.Rank)
		if c.Author == "A" {
			authorA++
		}
		if i > 0 {
			assert.GreaterOrEqual(t, clips[i-1].CompositeScore, c.CompositeScore)
		}
	}
	assert.Equal(t, 2, authorA)
	assert.Equal(t, "a0", clips[0].ContentID)
	assert.Equal(t, "a1", clips[1].ContentID)
}

func TestSelectDurationBounds(t *testing.T) {
	s := newSelector(t, DefaultConfig())
	clips := s.SelectTopClips([]Candidate{
		candidate("short", "a", "youtube", 90, 0.9, 0.9, 4.9),
		candidate("min", "b", "youtube", 10, 0.6, 0.6, 5),
		candidate("max", "c", "youtube", 10, 0.6, 0.6, 60),
		candidate("long", "d", "youtube", 90, 0.9, 0.9, 60.1),
	})
	require.Len(t, clips, 2)
	for _, c := range clips {
		assert.GreaterOrEqual(t, c.DurationSeconds, 5.0)
		assert.LessOrEqual(t, c.DurationSeconds, 60.0)
	}
}

func TestSelectThresholdsAndRecommendation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinQuality = 0.5
	cfg.MinRelevance = 0.4
	cfg.MinTrending = 20
	s := newSelector(t, cfg)

	notRecommended := candidate("nr", "a", "youtube", 90, 0.9, 0.9, 20)
	notRecommended.Recommended = false
	noFile := candidate("nf", "b", "youtube", 90, 0.9, 0.9, 20)
	noFile.LocalPath = ""

	clips := s.SelectTopClips([]Candidate{
		notRecommended,
		noFile,
		candidate("lowq", "c", "youtube", 90, 0.49, 0.9, 20),
		candidate("lowr", "d", "youtube", 90, 0.9, 0.39, 20),
		candidate("lowt", "e", "youtube", 19, 0.9, 0.9, 20),
		candidate("ok", "f", "youtube", 20, 0.5, 0.4, 20),
	})
	require.Len(t, clips, 1)
	assert.Equal(t, "ok", clips[0].ContentID)
}

func TestSelectDefaultsHaveNoScoreGates(t *testing.T) {
	s := newSelector(t, DefaultConfig())
	clips := s.SelectTopClips([]Candidate{
		candidate("lowq", "a", "youtube", 50, 0.45, 0.9, 20),
		candidate("lowr", "b", "youtube", 50, 0.9, 0.1, 20),
	})
	assert.Len(t, clips, 2)
}

func TestSelectMaxClipsAndUnknownAuthor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxClips = 3
	s := newSelector(t, cfg)

	var cands []Candidate
	for i := 0; i < 6; i++ {
		cands = append(cands, candidate(fmt.Sprintf("c%d", i), "", "tiktok", float64(60+i), 0.8, 0.8, 30))
	}
	sel := s.Select(context.Background(), cands)
	require.Len(t, sel.Clips, 2, "empty authors share the unknown bucket")
	assert.Equal(t, "unknown", sel.Clips[0].Author)
	assert.Equal(t, 2, sel.AuthorCounts["unknown"])
	assert.Equal(t, 2, sel.PlatformCounts["tiktok"])
	assert.Equal(t, 6, sel.Eligible)
}

func TestSelectEmpty(t *testing.T) {
	s := newSelector(t, DefaultConfig())
	clips := s.SelectTopClips(nil)
	assert.NotNil(t, clips)
	assert.Empty(t, clips)
}

func TestSelectPlatformDiversity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxClips = 4
	cfg.MaxPerAuthor = 10
	cfg.RequirePlatformDiversity = true
	s := newSelector(t, cfg)

	var cands []Candidate
	for i := 0; i < 5; i++ {
		cands = append(cands, candidate(fmt.Sprintf("t%d", i), fmt.Sprintf("t%d", i), "tiktok", 95, 0.95, 0.95, 20))
	}
	cands = append(cands,
		candidate("y0", "y0", "youtube", 30, 0.6, 0.6, 20),
		candidate("y1", "y1", "youtube", 30, 0.6, 0.6, 20),
	)

	sel := s.Select(context.Background(), cands)
	require.Len(t, sel.Clips, 4)
	assert.Equal(t, 2, sel.PlatformCounts["tiktok"])
	assert.Equal(t, 2, sel.PlatformCounts["youtube"])
	for i, c := range sel.Clips {
		assert.Equal(t, i+1, c.Rank)
	}

	cfg.RequirePlatformDiversity = false
	plain := newSelector(t, cfg).Select(context.Background(), cands)
	assert.Equal(t, 4, plain.PlatformCounts["tiktok"])
}

func TestSelectDiversityBackfills(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxClips = 4
	cfg.MaxPerAuthor = 10
	cfg.RequirePlatformDiversity = true
	s := newSelector(t, cfg)

	var cands []Candidate
	for i := 0; i < 5; i++ {
		cands = append(cands, candidate(fmt.Sprintf("t%d", i), "t", "tiktok", 95, 0.95, 0.95, 20))
	}
	cands = append(cands, candidate("y0", "y", "youtube", 30, 0.6, 0.6, 20))

	sel := s.Select(context.Background(), cands)
	require.Len(t, sel.Clips, 4)
	assert.Equal(t, 3, sel.PlatformCounts["tiktok"])
	assert.Equal(t, 1, sel.PlatformCounts["youtube"])
}

func TestInferRejectionReasons(t *testing.T) {
	assert.Equal(t, []string{"custom"}, InferRejectionReasons([]string{"custom"}, nil))

	reasons := InferRejectionReasons(nil, map[string]any{
		"has_watermark":        true,
		"is_safe_content":      true,
		"visual_quality_score": 3.0,
	})
	assert.Equal(t, []string{"Has watermark", "Low visual quality"}, reasons)

	assert.Equal(t, []string{"Content not safe for ads"}, InferRejectionReasons(nil, map[string]any{}))
}
