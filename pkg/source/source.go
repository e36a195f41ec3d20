package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/viralclips/pkg/score"
)

// Platform identifies which platform a video came from.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformSnapchat  Platform = "snapchat"
)

// AllPlatforms returns all known platforms.
func AllPlatforms() []Platform {
	return []Platform{
		PlatformYouTube,
		PlatformTikTok,
		PlatformInstagram,
		PlatformSnapchat,
	}
}

// ParsePlatform resolves a case-insensitive platform name.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPlatforms() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, s)
}

// Video is the normalized record every client produces.
type Video struct {
	Platform        Platform       `json:"platform"`
	PlatformVideoID string         `json:"platform_video_id"`
	URL             string         `json:"url"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Author          string         `json:"author"`
	AuthorID        string         `json:"author_id"`
	Views           int64          `json:"views"`
	Likes           int64          `json:"likes"`
	Comments        int64          `json:"comments"`
	Shares          int64          `json:"shares"`
	DurationSeconds float64        `json:"duration_seconds"`
	UploadDate      time.Time      `json:"upload_date"`
	TrendingScore   float64        `json:"trending_score"`
	EngagementRate  float64        `json:"engagement_rate"`
	ViewVelocity    float64        `json:"view_velocity"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// applyScore fills the derived score fields. Clients call it once after
// normalization; nothing else writes those fields.
func (v *Video) applyScore(now time.Time) {
	if v.UploadDate.IsZero() {
		v.UploadDate = now
	}
	r := score.Compute(score.Input{
		Views:           v.Views,
		Likes:           v.Likes,
		Comments:        v.Comments,
		Shares:          v.Shares,
		UploadDate:      v.UploadDate,
		DurationSeconds: v.DurationSeconds,
	}, now)
	v.TrendingScore = r.Viral
	v.EngagementRate = r.EngagementRate
	v.ViewVelocity = r.ViewVelocity
}

// ToRecord returns the flat persistence form. Author id, shares and the two
// rates are folded into metadata next to the platform extras.
func (v *Video) ToRecord() map[string]any {
	meta := map[string]any{
		"author_id":       v.AuthorID,
		"shares":          v.Shares,
		"engagement_rate": v.EngagementRate,
		"view_velocity":   v.ViewVelocity,
	}
	for k, val := range v.Metadata {
		meta[k] = val
	}

	return map[string]any{
		"platform":          string(v.Platform),
		"platform_video_id": v.PlatformVideoID,
		"url":               v.URL,
		"title":             v.Title,
		"description":       v.Description,
		"author":            v.Author,
		"views":             v.Views,
		"likes":             v.Likes,
		"comments":          v.Comments,
		"duration_seconds":  v.DurationSeconds,
		"upload_date":       v.UploadDate,
		"trending_score":    v.TrendingScore,
		"metadata":          meta,
	}
}

// Client is the interface every platform discovery client implements.
type Client interface {
	Platform() Platform
	// DiscoverTrending returns recent videos matching query, scored and
	// filtered to short-form content. Transient upstream failures yield an
	// empty slice and a nil error.
	DiscoverTrending(ctx context.Context, query string, timeframeHours, limit int) ([]Video, error)
	// GetVideoDetails returns nil, nil when the video is unknown or the
	// client cannot look up single videos.
	GetVideoDetails(ctx context.Context, id string) (*Video, error)
}
