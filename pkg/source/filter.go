package source

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Duration ceilings used when a client is built without an explicit one.
const (
	DefaultShortCeiling  = 60.0  // YouTube Shorts
	DefaultSocialCeiling = 180.0 // Reels, TikTok, Spotlight
)

// ContentFilter keeps short-form videos and drops anything matching an
// exclude keyword.
type ContentFilter struct {
	maxDuration float64
	exclude     []string
}

// NewContentFilter creates a filter with the given duration ceiling in
// seconds. Exclude keywords match case-insensitively against title and
// description.
func NewContentFilter(maxDuration float64, excludeKeywords []string) *ContentFilter {
	if maxDuration <= 0 {
		maxDuration = DefaultShortCeiling
	}

	exclude := make([]string, 0, len(excludeKeywords))
	for _, kw := range excludeKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			exclude = append(exclude, kw)
		}
	}

	return &ContentFilter{maxDuration: maxDuration, exclude: exclude}
}

// MaxDuration returns the ceiling in seconds.
func (f *ContentFilter) MaxDuration() float64 { return f.maxDuration }

// Reject returns why v is not acceptable, or "" when it passes.
func (f *ContentFilter) Reject(v *Video) string {
	switch {
	case v.DurationSeconds <= 0:
		return "no duration"
	case v.DurationSeconds > f.maxDuration:
		return "too long"
	}

	if len(f.exclude) > 0 {
		lower := strings.ToLower(v.Title + " " + v.Description)
		for _, ex := range f.exclude {
			if strings.Contains(lower, ex) {
				return "excluded keyword " + ex
			}
		}
	}
	return ""
}

// Apply returns the accepted videos in order. Rejections are logged at
// debug level, never surfaced as errors.
func (f *ContentFilter) Apply(videos []Video, log logrus.FieldLogger) []Video {
	kept := videos[:0:0]
	for i := range videos {
		if reason := f.Reject(&videos[i]); reason != "" {
			log.WithFields(logrus.Fields{
				"video_id": videos[i].PlatformVideoID,
				"duration": videos[i].DurationSeconds,
				"reason":   reason,
			}).Debug("filtered video")
			continue
		}
		kept = append(kept, videos[i])
	}
	return kept
}

// MatchesQuery reports whether text mentions any word of query. Hashes are
// ignored so "#gaming" matches "Gaming highlights".
func MatchesQuery(text, query string) bool {
	lower := strings.ToLower(text)
	words := strings.Fields(strings.ToLower(strings.ReplaceAll(query, "#", " ")))
	if len(words) == 0 {
		return true
	}
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
