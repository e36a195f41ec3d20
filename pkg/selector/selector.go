// Package selector picks the final clips for a compilation from analyzed
// candidates under score thresholds and diversity rules.
package selector

import (
	"context"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// unknownAuthor is the bucket for candidates without an author.
const unknownAuthor = "unknown"

// Candidate is a discovered video that has been downloaded and analyzed.
type Candidate struct {
	ContentID string `json:"content_id" db:"content_id"`
	URL       string `json:"url" db:"url"`
	Title     string `json:"title" db:"title"`
	Author    string `json:"author" db:"author"`
	Platform  string `json:"platform" db:"platform"`
	LocalPath string `json:"local_path" db:"local_path"`

	DurationSeconds float64 `json:"duration_seconds" db:"duration_seconds"`
	// TrendingScore is on the 0-100 scale produced by discovery.
	TrendingScore  float64 `json:"trending_score" db:"trending_score"`
	QualityScore   float64 `json:"quality_score" db:"quality_score"`
	RelevanceScore float64 `json:"relevance_score" db:"relevance_score"`
	Recommended    bool    `json:"recommended" db:"recommended"`

	CaptionSuggestion     string `json:"caption_suggestion" db:"caption_suggestion"`
	DescriptionSuggestion string `json:"description_suggestion" db:"description_suggestion"`
}

// RankedClip is one selected clip with its 1-based rank.
type RankedClip struct {
	ContentID             string  `json:"content_id"`
	Rank                  int     `json:"rank"`
	URL                   string  `json:"url"`
	LocalPath             string  `json:"local_path"`
	Title                 string  `json:"title"`
	Author                string  `json:"author"`
	TrendingScore         float64 `json:"trending_score"`
	QualityScore          float64 `json:"quality_score"`
	RelevanceScore        float64 `json:"relevance_score"`
	CompositeScore        float64 `json:"composite_score"`
	CaptionSuggestion     string  `json:"caption_suggestion"`
	DescriptionSuggestion string  `json:"description_suggestion"`
	DurationSeconds       float64 `json:"duration_seconds"`
	Platform              string  `json:"platform"`
}

// Selection is the outcome of a run with its distribution counters.
type Selection struct {
	Clips          []RankedClip   `json:"clips"`
	AuthorCounts   map[string]int `json:"author_counts"`
	PlatformCounts map[string]int `json:"platform_counts"`
	Eligible       int            `json:"eligible"`
}

// Selector ranks candidates. It holds no per-run state and is safe for
// concurrent use.
type Selector struct {
	cfg    Config
	log    logrus.FieldLogger
	tracer trace.Tracer
}

// New validates cfg and returns a selector using it.
func New(cfg Config, log logrus.FieldLogger) (*Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Selector{
		cfg:    cfg,
		log:    log,
		tracer: otel.Tracer("github.com/elonfeng/viralclips/pkg/selector"),
	}, nil
}

// Config returns the active configuration.
func (s *Selector) Config() Config { return s.cfg }

// NormalizeTrending converts a 0-100 trending score to the 0-1 scale used in
// the composite.
func NormalizeTrending(score float64) float64 {
	return math.Max(0, math.Min(1, score/100))
}

// Composite returns the weighted score of c, rounded to 4 decimals.
func (s *Selector) Composite(c Candidate) float64 {
	v := NormalizeTrending(c.TrendingScore)*s.cfg.TrendingWeight +
		c.QualityScore*s.cfg.QualityWeight +
		c.RelevanceScore*s.cfg.RelevanceWeight
	return math.Round(v*1e4) / 1e4
}

// SelectTopClips returns at most MaxClips clips ordered by composite score.
func (s *Selector) SelectTopClips(candidates []Candidate) []RankedClip {
	return s.Select(context.Background(), candidates).Clips
}

// Select runs the selection and reports the distribution of the result.
func (s *Selector) Select(ctx context.Context, candidates []Candidate) *Selection {
	_, span := s.tracer.Start(ctx, "selector.Select", trace.WithAttributes(
		attribute.Int("candidates", len(candidates)),
	))
	defer span.End()

	type scored struct {
		c         Candidate
		composite float64
	}

	eligible := make([]scored, 0, len(candidates))
	platforms := make(map[string]bool)
	for _, c := range candidates {
		if !s.eligible(c) {
			continue
		}
		eligible = append(eligible, scored{c: c, composite: s.Composite(c)})
		platforms[c.Platform] = true
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].composite > eligible[j].composite
	})

	sel := &Selection{
		Clips:          []RankedClip{},
		AuthorCounts:   make(map[string]int),
		PlatformCounts: make(map[string]int),
		Eligible:       len(eligible),
	}
	taken := make([]bool, len(eligible))

	pass := func(platformCap int) {
		for i, e := range eligible {
			if len(sel.Clips) >= s.cfg.MaxClips {
				return
			}
			if taken[i] {
				continue
			}
			author := e.c.Author
			if author == "" {
				author = unknownAuthor
			}
			if sel.AuthorCounts[author] >= s.cfg.MaxPerAuthor {
				continue
			}
			if platformCap > 0 && sel.PlatformCounts[e.c.Platform] >= platformCap {
				continue
			}

			taken[i] = true
			sel.Clips = append(sel.Clips, RankedClip{
				ContentID:             e.c.ContentID,
				Rank:                  len(sel.Clips) + 1,
				URL:                   e.c.URL,
				LocalPath:             e.c.LocalPath,
				Title:                 e.c.Title,
				Author:                author,
				TrendingScore:         e.c.TrendingScore,
				QualityScore:          e.c.QualityScore,
				RelevanceScore:        e.c.RelevanceScore,
				CompositeScore:        e.composite,
				CaptionSuggestion:     e.c.CaptionSuggestion,
				DescriptionSuggestion: e.c.DescriptionSuggestion,
				DurationSeconds:       e.c.DurationSeconds,
				Platform:              e.c.Platform,
			})
			sel.AuthorCounts[author]++
			sel.PlatformCounts[e.c.Platform]++
		}
	}

	if s.cfg.RequirePlatformDiversity && len(platforms) > 1 {
		pass(int(math.Ceil(float64(s.cfg.MaxClips) / float64(len(platforms)))))
	}
	pass(0)

	span.SetAttributes(attribute.Int("selected", len(sel.Clips)))
	s.log.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"eligible":   len(eligible),
		"selected":   len(sel.Clips),
		"platforms":  sel.PlatformCounts,
	}).Info("clips selected")
	return sel
}

// eligible applies the per-candidate gates: recommendation, a local file,
// score thresholds and duration bounds.
func (s *Selector) eligible(c Candidate) bool {
	switch {
	case !c.Recommended, c.LocalPath == "":
		return false
	case c.QualityScore < s.cfg.MinQuality:
		return false
	case c.RelevanceScore < s.cfg.MinRelevance:
		return false
	case c.TrendingScore < s.cfg.MinTrending:
		return false
	case c.DurationSeconds < s.cfg.MinDuration, c.DurationSeconds > s.cfg.MaxDuration:
		return false
	}
	return true
}
