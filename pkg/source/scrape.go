package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// scrapePages maps a platform to its public site and the paths of its
// hashtag and single-video pages.
var scrapePages = map[Platform]struct {
	site, tagPath, videoPath string
}{
	PlatformTikTok:    {"https://www.tiktok.com", "/tag/%s", "/embed/v2/%s"},
	PlatformInstagram: {"https://www.instagram.com", "/explore/tags/%s/", "/reel/%s/"},
}

// Scrape discovers videos from public hashtag pages without an API token by
// reading the structured data embedded in the HTML. Platforms change their
// markup often, so results are best-effort.
type Scrape struct {
	base
	tagPath   string
	videoPath string
}

// NewScrape creates a page-scraping client for tiktok or instagram.
func NewScrape(p Platform, opts ...Option) (*Scrape, error) {
	page, ok := scrapePages[p]
	if !ok {
		return nil, fmt.Errorf("scrape client: %w: %s", ErrUnsupportedPlatform, p)
	}
	b, err := newBase(p, ScrapeRequestsPerMinute, DefaultSocialCeiling, page.site, opts)
	if err != nil {
		return nil, err
	}
	return &Scrape{base: b, tagPath: page.tagPath, videoPath: page.videoPath}, nil
}

func (s *Scrape) DiscoverTrending(ctx context.Context, query string, timeframeHours, limit int) ([]Video, error) {
	videos, err := s.discover(ctx, query, timeframeHours, limit)
	return s.settle(query, videos, err)
}

func (s *Scrape) discover(ctx context.Context, query string, timeframeHours, limit int) ([]Video, error) {
	tag := hashtag(query)
	if tag == "" {
		return nil, fmt.Errorf("%s: empty hashtag: %w", s.platform, ErrBadRequest)
	}

	page := s.baseURL + fmt.Sprintf(s.tagPath, url.PathEscape(tag))
	videos, err := s.fetchVideos(ctx, page)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		s.log.WithField("page", page).Warn("no embedded video data found")
	}
	return s.finish(videos, timeframeHours, limit), nil
}

func (s *Scrape) GetVideoDetails(ctx context.Context, id string) (*Video, error) {
	page := s.baseURL + fmt.Sprintf(s.videoPath, url.PathEscape(id))
	videos, err := s.fetchVideos(ctx, page)
	if err != nil {
		if IsPermanent(err) {
			return nil, err
		}
		s.log.WithError(err).WithField("video_id", id).Warn("video lookup failed")
		return nil, nil
	}
	for i := range videos {
		if videos[i].PlatformVideoID == id || len(videos) == 1 {
			videos[i].applyScore(s.now())
			return &videos[i], nil
		}
	}
	return nil, nil
}

func (s *Scrape) fetchVideos(ctx context.Context, page string) ([]Video, error) {
	body, err := s.getBody(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("%s page: %w", s.platform, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s page: %w", s.platform, err)
	}
	return extractEmbeddedVideos(doc, s.platform), nil
}

// extractEmbeddedVideos walks every JSON script block in doc and collects
// schema.org VideoObjects and TikTok item structs. Duplicate ids are kept
// once.
func extractEmbeddedVideos(doc *goquery.Document, p Platform) []Video {
	var videos []Video
	seen := make(map[string]bool)

	add := func(v Video) {
		key := v.PlatformVideoID
		if key == "" {
			key = v.URL
		}
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		videos = append(videos, v)
	}

	doc.Find(`script[type="application/ld+json"], script[type="application/json"]`).Each(func(_ int, sel *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(sel.Text()), &data); err != nil {
			return
		}
		walkJSON(data, func(m map[string]any) {
			switch {
			case asString(m["@type"]) == "VideoObject":
				add(fromVideoObject(m, p))
			case asMap(m["stats"]) != nil && asMap(m["video"]) != nil && asString(m["id"]) != "":
				add(fromTikTokItem(m))
			}
		})
	})
	return videos
}

// walkJSON calls visit for every object in the tree, depth first.
func walkJSON(v any, visit func(map[string]any)) {
	switch t := v.(type) {
	case map[string]any:
		visit(t)
		for _, child := range t {
			walkJSON(child, visit)
		}
	case []any:
		for _, child := range t {
			walkJSON(child, visit)
		}
	}
}

func fromVideoObject(m map[string]any, p Platform) Video {
	link := firstString(m, "url", "embedUrl", "contentUrl")
	id := firstString(m, "identifier", "videoId")
	if id == "" {
		id = lastPathSegment(link)
	}

	var author, authorID string
	switch a := m["author"].(type) {
	case string:
		author = a
	case map[string]any:
		author = firstString(a, "alternateName", "name")
		authorID = asString(a["identifier"])
	}

	v := Video{
		Platform:        p,
		PlatformVideoID: id,
		URL:             link,
		Title:           truncate(asString(m["name"]), 200),
		Description:     asString(m["description"]),
		Author:          author,
		AuthorID:        authorID,
		DurationSeconds: parseISODuration(asString(m["duration"])),
		UploadDate:      parseTime(m["uploadDate"]),
		Comments:        asInt64(m["commentCount"]),
		Metadata: map[string]any{
			"thumbnail": thumbnailOf(m["thumbnailUrl"]),
			"source":    "embedded",
		},
	}

	stats := asSlice(m["interactionStatistic"])
	if stats == nil && asMap(m["interactionStatistic"]) != nil {
		stats = []any{m["interactionStatistic"]}
	}
	for _, raw := range stats {
		st := asMap(raw)
		count := asInt64(st["userInteractionCount"])
		switch interactionKind(st["interactionType"]) {
		case "WatchAction":
			v.Views = count
		case "LikeAction":
			v.Likes = count
		case "CommentAction":
			v.Comments = count
		case "ShareAction":
			v.Shares = count
		}
	}
	return v
}

func fromTikTokItem(m map[string]any) Video {
	stats := asMap(m["stats"])
	video := asMap(m["video"])
	author := asMap(m["author"])
	id := asString(m["id"])
	handle := asString(author["uniqueId"])
	desc := asString(m["desc"])

	return Video{
		Platform:        PlatformTikTok,
		PlatformVideoID: id,
		URL:             fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", handle, id),
		Title:           truncate(desc, 200),
		Description:     desc,
		Author:          handle,
		AuthorID:        asString(author["id"]),
		Views:           asInt64(stats["playCount"]),
		Likes:           asInt64(stats["diggCount"]),
		Comments:        asInt64(stats["commentCount"]),
		Shares:          asInt64(stats["shareCount"]),
		DurationSeconds: asFloat(video["duration"]),
		UploadDate:      parseTime(m["createTime"]),
		Metadata: map[string]any{
			"cover_url": video["cover"],
			"source":    "embedded",
		},
	}
}

// interactionKind accepts both "http://schema.org/WatchAction" and
// {"@type": "WatchAction"}.
func interactionKind(v any) string {
	if m := asMap(v); m != nil {
		return asString(m["@type"])
	}
	s := asString(v)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

func thumbnailOf(v any) string {
	if s := asString(v); s != "" {
		return s
	}
	if list := asSlice(v); len(list) > 0 {
		return asString(list[0])
	}
	return ""
}

func lastPathSegment(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return parts[len(parts)-1]
}
