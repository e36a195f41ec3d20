package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	youtubeAPIBase   = "https://www.googleapis.com/youtube/v3"
	youtubeBatchSize = 50
)

// YouTube discovers Shorts through the YouTube Data API v3.
type YouTube struct {
	base
	apiKey string
}

// NewYouTube creates a YouTube client. A missing API key is not an error
// here; discovery reports ErrAuth instead.
func NewYouTube(apiKey string, opts ...Option) (*YouTube, error) {
	b, err := newBase(PlatformYouTube, YouTubeRequestsPerMinute, DefaultShortCeiling, youtubeAPIBase, opts)
	if err != nil {
		return nil, err
	}
	return &YouTube{base: b, apiKey: apiKey}, nil
}

func (y *YouTube) DiscoverTrending(ctx context.Context, query string, timeframeHours, limit int) ([]Video, error) {
	videos, err := y.discover(ctx, query, timeframeHours, limit)
	return y.settle(query, videos, err)
}

func (y *YouTube) discover(ctx context.Context, query string, timeframeHours, limit int) ([]Video, error) {
	if y.apiKey == "" {
		return nil, fmt.Errorf("youtube: API key required (set YOUTUBE_API_KEY): %w", ErrAuth)
	}
	if limit <= 0 {
		limit = 50
	}

	params := url.Values{}
	params.Set("part", "id")
	params.Set("q", strings.TrimSpace(query)+" #shorts")
	params.Set("type", "video")
	params.Set("videoDuration", "short")
	params.Set("order", "viewCount")
	params.Set("maxResults", strconv.Itoa(min(limit, youtubeBatchSize)))
	params.Set("relevanceLanguage", "en")
	params.Set("safeSearch", "moderate")
	if timeframeHours > 0 {
		after := y.now().Add(-time.Duration(timeframeHours) * time.Hour)
		params.Set("publishedAfter", after.UTC().Format(time.RFC3339))
	}

	ids, err := y.search(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Video{}, nil
	}

	videos, err := y.details(ctx, ids)
	if err != nil {
		return nil, err
	}
	return y.finish(videos, 0, limit), nil
}

// ChannelShorts returns the most viewed recent Shorts of one channel.
func (y *YouTube) ChannelShorts(ctx context.Context, channelID string, limit int) ([]Video, error) {
	videos, err := y.channelShorts(ctx, channelID, limit)
	return y.settle("channel:"+channelID, videos, err)
}

func (y *YouTube) channelShorts(ctx context.Context, channelID string, limit int) ([]Video, error) {
	if y.apiKey == "" {
		return nil, fmt.Errorf("youtube: API key required (set YOUTUBE_API_KEY): %w", ErrAuth)
	}
	if channelID == "" {
		return nil, fmt.Errorf("youtube: empty channel id: %w", ErrBadRequest)
	}
	if limit <= 0 {
		limit = 50
	}

	params := url.Values{}
	params.Set("part", "id")
	params.Set("channelId", channelID)
	params.Set("type", "video")
	params.Set("videoDuration", "short")
	params.Set("order", "date")
	params.Set("maxResults", strconv.Itoa(min(limit, youtubeBatchSize)))

	ids, err := y.search(ctx, params)
	if err != nil || len(ids) == 0 {
		return []Video{}, err
	}
	videos, err := y.details(ctx, ids)
	if err != nil {
		return nil, err
	}
	return y.finish(videos, 0, limit), nil
}

func (y *YouTube) GetVideoDetails(ctx context.Context, id string) (*Video, error) {
	if y.apiKey == "" {
		return nil, fmt.Errorf("youtube: API key required (set YOUTUBE_API_KEY): %w", ErrAuth)
	}
	videos, err := y.details(ctx, []string{id})
	if err != nil {
		if IsPermanent(err) {
			return nil, err
		}
		y.log.WithError(err).WithField("video_id", id).Warn("video lookup failed")
		return nil, nil
	}
	if len(videos) == 0 {
		return nil, nil
	}
	now := y.now()
	videos[0].applyScore(now)
	return &videos[0], nil
}

func (y *YouTube) search(ctx context.Context, params url.Values) ([]string, error) {
	params.Set("key", y.apiKey)

	var result ytSearchResult
	if err := y.getJSON(ctx, y.baseURL+"/search?"+params.Encode(), &result); err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}

	ids := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	return ids, nil
}

// details fetches full records in batches of 50, running batches on the
// shared pool. Results keep the search order.
func (y *YouTube) details(ctx context.Context, ids []string) ([]Video, error) {
	var batches [][]string
	for start := 0; start < len(ids); start += youtubeBatchSize {
		batches = append(batches, ids[start:min(start+youtubeBatchSize, len(ids))])
	}

	results := make([][]Video, len(batches))
	errs := y.pool.Run(ctx, len(batches), func(ctx context.Context, i int) error {
		params := url.Values{}
		params.Set("part", "snippet,statistics,contentDetails")
		params.Set("id", strings.Join(batches[i], ","))
		params.Set("key", y.apiKey)

		var result ytVideoResult
		if err := y.getJSON(ctx, y.baseURL+"/videos?"+params.Encode(), &result); err != nil {
			return fmt.Errorf("youtube videos: %w", err)
		}
		for _, item := range result.Items {
			results[i] = append(results[i], item.toVideo())
		}
		return nil
	})

	var videos []Video
	for i, err := range errs {
		if err != nil {
			return nil, err
		}
		videos = append(videos, results[i]...)
	}
	return videos, nil
}

type ytSearchResult struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type ytSnippet struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ChannelTitle string    `json:"channelTitle"`
	ChannelID    string    `json:"channelId"`
	CategoryID   string    `json:"categoryId"`
	Tags         []string  `json:"tags"`
	PublishedAt  time.Time `json:"publishedAt"`
	Thumbnails   map[string]struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

type ytVideo struct {
	ID         string    `json:"id"`
	Snippet    ytSnippet `json:"snippet"`
	Statistics struct {
		ViewCount    int64 `json:"viewCount,string"`
		LikeCount    int64 `json:"likeCount,string"`
		CommentCount int64 `json:"commentCount,string"`
	} `json:"statistics"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
}

type ytVideoResult struct {
	Items []ytVideo `json:"items"`
}

func (v ytVideo) toVideo() Video {
	tags := v.Snippet.Tags
	if len(tags) > 10 {
		tags = tags[:10]
	}
	thumbnail := ""
	if t, ok := v.Snippet.Thumbnails["high"]; ok {
		thumbnail = t.URL
	}

	return Video{
		Platform:        PlatformYouTube,
		PlatformVideoID: v.ID,
		URL:             "https://www.youtube.com/shorts/" + v.ID,
		Title:           v.Snippet.Title,
		Description:     truncate(v.Snippet.Description, 500),
		Author:          v.Snippet.ChannelTitle,
		AuthorID:        v.Snippet.ChannelID,
		Views:           v.Statistics.ViewCount,
		Likes:           v.Statistics.LikeCount,
		Comments:        v.Statistics.CommentCount,
		DurationSeconds: parseISODuration(v.ContentDetails.Duration),
		UploadDate:      v.Snippet.PublishedAt.UTC(),
		Metadata: map[string]any{
			"channel_id":  v.Snippet.ChannelID,
			"category_id": v.Snippet.CategoryID,
			"tags":        tags,
			"thumbnail":   thumbnail,
		},
	}
}
