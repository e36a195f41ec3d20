package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/viralclips/pkg/source"
)

type fakeClient struct {
	platform source.Platform
	videos   []source.Video
	err      error
	panics   bool
	delay    time.Duration
	gotLimit int
}

func (f *fakeClient) Platform() source.Platform { return f.platform }

func (f *fakeClient) DiscoverTrending(ctx context.Context, query string, timeframeHours, limit int) ([]source.Video, error) {
	f.gotLimit = limit
	if f.panics {
		panic("scraper exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return []source.Video{}, nil
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.videos, nil
}

func (f *fakeClient) GetVideoDetails(ctx context.Context, id string) (*source.Video, error) {
	return nil, nil
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var titles = []string{
	"sunset over the mountains", "dog learns to skateboard", "quick pasta recipe",
	"insane parkour jump", "baby laughs at paper", "how to fold a shirt",
	"guitar solo in the rain", "ocean waves timelapse", "cat vs cucumber",
	"street magic trick", "first snow of winter", "robot vacuum fail",
	"drone flight over city", "speed painting portrait", "giant pumpkin harvest",
	"tiny house tour", "bmx backflip attempt", "chess blunder explained",
	"volcano eruption footage", "origami crane tutorial", "rollercoaster pov",
	"hamster eating carrot", "basketball trick shot", "northern lights live",
	"bakery croissant layers", "karaoke duet gone wrong", "fireworks finale",
}

func makeVideos(p source.Platform, n int, base float64) []source.Video {
	out := make([]source.Video, n)
	for i := range out {
		out[i] = source.Video{
			Platform:      p,
			URL:           fmt.Sprintf("https://%s/%d", p, i),
			Title:         titles[i],
			Views:         int64(1000 * (i + 1)),
			TrendingScore: base + float64(i),
		}
	}
	return out
}

func TestDiscoverIsolatesFailures(t *testing.T) {
	clients := []source.Client{
		&fakeClient{platform: source.PlatformYouTube, videos: makeVideos(source.PlatformYouTube, 10, 20)},
		&fakeClient{platform: source.PlatformTikTok, err: errors.New("boom")},
		&fakeClient{platform: source.PlatformInstagram, videos: makeVideos(source.PlatformInstagram, 10, 40)},
	}
	o := New(clients, WithLogger(quiet()))

	res, err := o.Discover(context.Background(), Request{Query: "gaming", SkipDedupe: true})
	require.NoError(t, err)
	assert.Len(t, res.Videos, 20)
	assert.Equal(t, 20, res.Candidates)

	for i := 1; i < len(res.Videos); i++ {
		assert.GreaterOrEqual(t, res.Videos[i-1].TrendingScore, res.Videos[i].TrendingScore)
	}

	require.Len(t, res.Platforms, 3)
	assert.Equal(t, StatusOK, res.Platforms[0].Status)
	assert.Equal(t, StatusFailed, res.Platforms[1].Status)
	assert.Equal(t, "boom", res.Platforms[1].Error)
	assert.Equal(t, 10, res.Platforms[2].Found)
}

func TestDiscoverSurvivesPanic(t *testing.T) {
	clients := []source.Client{
		&fakeClient{platform: source.PlatformTikTok, panics: true},
		&fakeClient{platform: source.PlatformYouTube, videos: makeVideos(source.PlatformYouTube, 3, 10)},
	}
	res, err := New(clients, WithLogger(quiet())).Discover(context.Background(), Request{Query: "x"})
	require.NoError(t, err)
	assert.Len(t, res.Videos, 3)
	assert.Equal(t, StatusFailed, res.Platforms[0].Status)
	assert.Contains(t, res.Platforms[0].Error, "panic")
}

func TestDiscoverAppliesThresholds(t *testing.T) {
	clients := []source.Client{
		&fakeClient{platform: source.PlatformYouTube, videos: makeVideos(source.PlatformYouTube, 10, 0)},
	}
	res, err := New(clients, WithLogger(quiet())).Discover(context.Background(), Request{
		Query:         "x",
		MinViralScore: 3,
		MinViews:      5000,
	})
	require.NoError(t, err)
	// scores 0..9 with views 1000..10000: need score >= 3 and views >= 5000.
	require.Len(t, res.Videos, 6)
	for _, v := range res.Videos {
		assert.GreaterOrEqual(t, v.TrendingScore, 3.0)
		assert.GreaterOrEqual(t, v.Views, int64(5000))
	}
	assert.Equal(t, 9.0, res.Videos[0].TrendingScore)
}

func TestDiscoverDeduplicatesAcrossPlatforms(t *testing.T) {
	clients := []source.Client{
		&fakeClient{platform: source.PlatformYouTube, videos: []source.Video{
			{URL: "https://x/1", Title: "Top 10 Gaming Moments", TrendingScore: 40},
		}},
		&fakeClient{platform: source.PlatformTikTok, videos: []source.Video{
			{URL: "https://x/1", Title: "Top 10 Gaming Moments!!", TrendingScore: 70},
		}},
	}
	res, err := New(clients, WithLogger(quiet())).Discover(context.Background(), Request{Query: "gaming"})
	require.NoError(t, err)
	require.Len(t, res.Videos, 1)
	assert.Equal(t, 70.0, res.Videos[0].TrendingScore)
	assert.Equal(t, 2, res.Candidates)
}

func TestDiscoverPlatformTimeout(t *testing.T) {
	clients := []source.Client{
		&fakeClient{platform: source.PlatformTikTok, delay: time.Second},
		&fakeClient{platform: source.PlatformYouTube, videos: makeVideos(source.PlatformYouTube, 2, 5)},
	}
	o := New(clients, WithLogger(quiet()), WithPlatformTimeout(20*time.Millisecond))

	start := time.Now()
	res, err := o.Discover(context.Background(), Request{Query: "x"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Len(t, res.Videos, 2)
	assert.Equal(t, StatusFailed, res.Platforms[0].Status)
}

func TestDiscoverValidation(t *testing.T) {
	o := New([]source.Client{&fakeClient{platform: source.PlatformYouTube}}, WithLogger(quiet()))

	_, err := o.Discover(context.Background(), Request{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = o.Discover(context.Background(), Request{Query: "x", Platforms: []source.Platform{source.PlatformSnapchat}})
	assert.ErrorIs(t, err, ErrNoClients)
}

func TestDiscoverPlatformSubsetAndDefaults(t *testing.T) {
	yt := &fakeClient{platform: source.PlatformYouTube, videos: makeVideos(source.PlatformYouTube, 2, 1)}
	tt := &fakeClient{platform: source.PlatformTikTok, videos: makeVideos(source.PlatformTikTok, 2, 1)}
	o := New([]source.Client{yt, tt}, WithLogger(quiet()))

	res, err := o.Discover(context.Background(), Request{Query: "x", Platforms: []source.Platform{source.PlatformTikTok}})
	require.NoError(t, err)
	require.Len(t, res.Platforms, 1)
	assert.Equal(t, source.PlatformTikTok, res.Platforms[0].Platform)
	assert.Equal(t, DefaultPerPlatformLimit, tt.gotLimit)
	assert.Equal(t, 0, yt.gotLimit)
}

func TestDiscoverForRanking(t *testing.T) {
	yt := &fakeClient{platform: source.PlatformYouTube, videos: makeVideos(source.PlatformYouTube, 25, 10)}
	o := New([]source.Client{yt}, WithLogger(quiet()))

	res, err := o.DiscoverForRanking(context.Background(), "gaming", 10, Request{})
	require.NoError(t, err)
	assert.Len(t, res.Videos, 10)
	assert.Equal(t, MinRankingPool, yt.gotLimit)
	assert.Equal(t, 34.0, res.Videos[0].TrendingScore)

	_, err = o.DiscoverForRanking(context.Background(), "gaming", 20, Request{})
	require.NoError(t, err)
	assert.Equal(t, 40, yt.gotLimit)

	_, err = o.DiscoverForRanking(context.Background(), "gaming", 0, Request{})
	assert.Error(t, err)
}

func TestDiscoverAllFailIsEmptyNotError(t *testing.T) {
	o := New([]source.Client{
		&fakeClient{platform: source.PlatformYouTube, err: source.ErrAuth},
	}, WithLogger(quiet()))
	res, err := o.Discover(context.Background(), Request{Query: "x"})
	require.NoError(t, err)
	assert.NotNil(t, res.Videos)
	assert.Empty(t, res.Videos)
}
