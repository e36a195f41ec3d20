package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const scraperAPIBase = "https://api.apify.com"

// socialProfile describes how one platform is queried on the scraper API and
// how its dataset items map onto Video.
type socialProfile struct {
	actor      string
	limitField string
	extraInput map[string]any
	keep       func(raw map[string]any) bool
	normalize  func(raw map[string]any) Video
}

var socialProfiles = map[Platform]socialProfile{
	PlatformTikTok: {
		actor:      "clockworks/free-tiktok-scraper",
		limitField: "resultsPerPage",
		extraInput: map[string]any{
			"shouldDownloadVideos":          false,
			"shouldDownloadCovers":          false,
			"shouldDownloadSlideshowImages": false,
		},
		keep:      func(raw map[string]any) bool { return raw["videoMeta"] != nil },
		normalize: normalizeTikTok,
	},
	PlatformInstagram: {
		actor:      "apify/instagram-scraper",
		limitField: "resultsLimit",
		extraInput: map[string]any{
			"resultsType": "posts",
			"searchType":  "hashtag",
		},
		keep:      func(raw map[string]any) bool { return asString(raw["type"]) == "Video" },
		normalize: normalizeInstagram,
	},
	PlatformSnapchat: {
		actor:      "apify/snapchat-scraper",
		limitField: "maxResults",
		keep:       func(map[string]any) bool { return true },
		normalize:  normalizeSnapchat,
	},
}

// Social discovers TikTok, Instagram Reels and Snapchat Spotlight videos
// through a hosted scraper dataset API.
type Social struct {
	base
	token   string
	profile socialProfile
}

// NewSocial creates a client for one social platform.
func NewSocial(p Platform, token string, opts ...Option) (*Social, error) {
	profile, ok := socialProfiles[p]
	if !ok {
		return nil, fmt.Errorf("social client: %w: %s", ErrUnsupportedPlatform, p)
	}
	if token == "" {
		return nil, fmt.Errorf("social client %s: scraper token required: %w", p, ErrAuth)
	}
	b, err := newBase(p, SocialRequestsPerMinute, DefaultSocialCeiling, scraperAPIBase, opts)
	if err != nil {
		return nil, err
	}
	return &Social{base: b, token: token, profile: profile}, nil
}

func (s *Social) DiscoverTrending(ctx context.Context, query string, timeframeHours, limit int) ([]Video, error) {
	videos, err := s.discover(ctx, query, timeframeHours, limit)
	return s.settle(query, videos, err)
}

func (s *Social) discover(ctx context.Context, query string, timeframeHours, limit int) ([]Video, error) {
	tag := hashtag(query)
	if tag == "" {
		return nil, fmt.Errorf("%s: empty hashtag: %w", s.platform, ErrBadRequest)
	}
	if limit <= 0 {
		limit = 50
	}

	input := map[string]any{"hashtags": []string{tag}}
	input[s.profile.limitField] = limit
	for k, v := range s.profile.extraInput {
		input[k] = v
	}

	actor := strings.ReplaceAll(s.profile.actor, "/", "~")
	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s",
		s.baseURL, url.PathEscape(actor), url.QueryEscape(s.token))

	var items []map[string]any
	if err := s.postJSON(ctx, endpoint, input, &items); err != nil {
		return nil, fmt.Errorf("%s scraper run: %w", s.platform, err)
	}

	videos := make([]Video, 0, len(items))
	for _, raw := range items {
		if !s.profile.keep(raw) {
			continue
		}
		videos = append(videos, s.profile.normalize(raw))
	}
	return s.finish(videos, timeframeHours, limit), nil
}

// GetVideoDetails is not supported by the dataset API.
func (s *Social) GetVideoDetails(ctx context.Context, id string) (*Video, error) {
	s.log.WithField("video_id", id).Warn("single video lookup not supported")
	return nil, nil
}

func normalizeTikTok(raw map[string]any) Video {
	videoMeta := asMap(raw["videoMeta"])
	authorMeta := asMap(raw["authorMeta"])
	text := asString(raw["text"])

	var tags []string
	for _, h := range asSlice(raw["hashtags"]) {
		if name := asString(asMap(h)["name"]); name != "" {
			tags = append(tags, name)
		}
	}

	return Video{
		Platform:        PlatformTikTok,
		PlatformVideoID: asString(raw["id"]),
		URL:             firstString(raw, "webVideoUrl", "url"),
		Title:           truncate(text, 200),
		Description:     text,
		Author:          firstString(authorMeta, "name", "nickName"),
		AuthorID:        asString(authorMeta["id"]),
		Views:           asInt64(raw["playCount"]),
		Likes:           asInt64(raw["diggCount"]),
		Comments:        asInt64(raw["commentCount"]),
		Shares:          asInt64(raw["shareCount"]),
		DurationSeconds: asFloat(videoMeta["duration"]),
		UploadDate:      parseTime(raw["createTime"]),
		Metadata: map[string]any{
			"music":     raw["musicMeta"],
			"hashtags":  tags,
			"cover_url": videoMeta["cover"],
		},
	}
}

func normalizeInstagram(raw map[string]any) Video {
	owner := asMap(raw["owner"])
	caption := asString(raw["caption"])
	shortcode := firstString(raw, "shortCode", "shortcode")

	link := asString(raw["url"])
	if link == "" && shortcode != "" {
		link = "https://www.instagram.com/reel/" + shortcode + "/"
	}
	id := asString(raw["id"])
	if id == "" {
		id = shortcode
	}

	ts := raw["timestamp"]
	if ts == nil {
		ts = raw["taken_at_timestamp"]
	}

	likes := asInt64(raw["likesCount"])
	if likes == 0 {
		likes = asInt64(asMap(raw["edge_liked_by"])["count"])
	}
	comments := asInt64(raw["commentsCount"])
	if comments == 0 {
		comments = asInt64(asMap(raw["edge_media_to_comment"])["count"])
	}
	author := asString(raw["ownerUsername"])
	if author == "" {
		author = asString(owner["username"])
	}
	authorID := asString(raw["ownerId"])
	if authorID == "" {
		authorID = asString(owner["id"])
	}

	duration := asFloat(raw["videoDuration"])
	if duration == 0 {
		duration = asFloat(raw["video_duration"])
	}

	return Video{
		Platform:        PlatformInstagram,
		PlatformVideoID: id,
		URL:             link,
		Title:           truncate(caption, 200),
		Description:     caption,
		Author:          author,
		AuthorID:        authorID,
		Views:           firstInt64(raw, "videoPlayCount", "video_view_count"),
		Likes:           likes,
		Comments:        comments,
		DurationSeconds: duration,
		UploadDate:      parseTime(ts),
		Metadata: map[string]any{
			"hashtags":  raw["hashtags"],
			"mentions":  raw["mentions"],
			"thumbnail": raw["displayUrl"],
		},
	}
}

func normalizeSnapchat(raw map[string]any) Video {
	meta := asMap(raw["metadata"])
	if meta == nil {
		meta = map[string]any{}
	}
	return Video{
		Platform:        PlatformSnapchat,
		PlatformVideoID: asString(raw["id"]),
		URL:             asString(raw["url"]),
		Title:           asString(raw["title"]),
		Description:     asString(raw["description"]),
		Author:          asString(raw["username"]),
		AuthorID:        asString(raw["userId"]),
		Views:           asInt64(raw["viewCount"]),
		Likes:           asInt64(raw["likeCount"]),
		DurationSeconds: asFloat(raw["duration"]),
		UploadDate:      parseTime(raw["timestamp"]),
		Metadata:        meta,
	}
}
