package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const youtubeFeedBase = "https://www.youtube.com"

// Feed discovers YouTube Shorts from the public Atom feeds of a fixed set of
// channels. It needs no API key. Feeds carry no duration, so entries linked
// as /shorts/ are assigned assumedDuration and everything else is dropped by
// the content filter.
type Feed struct {
	base
	parser          *gofeed.Parser
	channels        []string
	assumedDuration float64
}

// NewFeed creates a feed client for the given channel ids.
func NewFeed(channels []string, assumedDuration float64, opts ...Option) (*Feed, error) {
	b, err := newBase(PlatformYouTube, FeedRequestsPerMinute, DefaultShortCeiling, youtubeFeedBase, opts)
	if err != nil {
		return nil, err
	}
	if assumedDuration <= 0 {
		assumedDuration = b.filter.MaxDuration()
	}
	return &Feed{
		base:            b,
		parser:          gofeed.NewParser(),
		channels:        channels,
		assumedDuration: assumedDuration,
	}, nil
}

func (f *Feed) DiscoverTrending(ctx context.Context, query string, timeframeHours, limit int) ([]Video, error) {
	videos, err := f.discover(ctx, query, timeframeHours, limit)
	return f.settle(query, videos, err)
}

func (f *Feed) discover(ctx context.Context, query string, timeframeHours, limit int) ([]Video, error) {
	if len(f.channels) == 0 {
		return nil, fmt.Errorf("youtube feed: no channels configured: %w", ErrBadRequest)
	}

	perChannel := make([][]Video, len(f.channels))
	errs := f.pool.Run(ctx, len(f.channels), func(ctx context.Context, i int) error {
		videos, err := f.channelFeed(ctx, f.channels[i])
		if err != nil {
			return err
		}
		perChannel[i] = videos
		return nil
	})

	var all []Video
	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			f.log.WithError(err).WithField("channel", f.channels[i]).Warn("channel feed failed")
			continue
		}
		for _, v := range perChannel[i] {
			if MatchesQuery(v.Title+" "+v.Description, query) {
				all = append(all, v)
			}
		}
	}
	if failed == len(f.channels) {
		return nil, fmt.Errorf("youtube feed: all %d channels failed: %w", failed, errs[0])
	}
	return f.finish(all, timeframeHours, limit), nil
}

// GetVideoDetails is not available from feeds.
func (f *Feed) GetVideoDetails(ctx context.Context, id string) (*Video, error) {
	return nil, nil
}

func (f *Feed) channelFeed(ctx context.Context, channelID string) ([]Video, error) {
	feedURL := f.baseURL + "/feeds/videos.xml?channel_id=" + url.QueryEscape(channelID)
	body, err := f.getBody(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", channelID, err)
	}
	parsed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", channelID, err)
	}

	videos := make([]Video, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		videos = append(videos, f.entryToVideo(entry, parsed))
	}
	return videos, nil
}

func (f *Feed) entryToVideo(entry *gofeed.Item, feed *gofeed.Feed) Video {
	id := extValue(entry.Extensions, "yt", "videoId")
	if id == "" {
		id = strings.TrimPrefix(entry.GUID, "yt:video:")
	}
	link := entry.Link
	if link == "" {
		link = "https://www.youtube.com/watch?v=" + id
	}

	author := feed.Title
	if entry.Author != nil && entry.Author.Name != "" {
		author = entry.Author.Name
	}

	v := Video{
		Platform:        PlatformYouTube,
		PlatformVideoID: id,
		URL:             link,
		Title:           entry.Title,
		Author:          author,
		AuthorID:        extValue(entry.Extensions, "yt", "channelId"),
		Metadata:        map[string]any{"source": "feed"},
	}
	if entry.PublishedParsed != nil {
		v.UploadDate = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		v.UploadDate = entry.UpdatedParsed.UTC()
	}
	if strings.Contains(link, "/shorts/") {
		v.DurationSeconds = f.assumedDuration
	}

	// media:group carries description, thumbnail and community statistics.
	for _, group := range entry.Extensions["media"]["group"] {
		if d := firstChild(group, "description"); d != nil {
			v.Description = truncate(d.Value, 500)
		}
		if t := firstChild(group, "thumbnail"); t != nil {
			v.Metadata["thumbnail"] = t.Attrs["url"]
		}
		community := firstChild(group, "community")
		if community == nil {
			continue
		}
		if stats := firstChild(*community, "statistics"); stats != nil {
			v.Views, _ = strconv.ParseInt(stats.Attrs["views"], 10, 64)
		}
		if rating := firstChild(*community, "starRating"); rating != nil {
			v.Likes, _ = strconv.ParseInt(rating.Attrs["count"], 10, 64)
		}
	}
	return v
}

func extValue(exts ext.Extensions, prefix, name string) string {
	if list := exts[prefix][name]; len(list) > 0 {
		return list[0].Value
	}
	return ""
}

func firstChild(e ext.Extension, name string) *ext.Extension {
	if list := e.Children[name]; len(list) > 0 {
		return &list[0]
	}
	return nil
}
