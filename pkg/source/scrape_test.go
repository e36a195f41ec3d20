package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const instagramTagPage = `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@graph": [
    {
      "@type": "VideoObject",
      "name": "Street food reel",
      "description": "Best tacos",
      "url": "https://www.instagram.com/reel/Cx1/",
      "duration": "PT22S",
      "uploadDate": "2026-03-01T09:00:00Z",
      "thumbnailUrl": ["https://img/cx1"],
      "author": {"@type": "Person", "alternateName": "tacolover", "identifier": "p9"},
      "interactionStatistic": [
        {"@type": "InteractionCounter", "interactionType": {"@type": "WatchAction"}, "userInteractionCount": 20000},
        {"@type": "InteractionCounter", "interactionType": "http://schema.org/LikeAction", "userInteractionCount": 1500},
        {"@type": "InteractionCounter", "interactionType": "http://schema.org/CommentAction", "userInteractionCount": 40}
      ]
    },
    {
      "@type": "VideoObject",
      "name": "Long cooking class",
      "url": "https://www.instagram.com/reel/Cx2/",
      "duration": "PT20M",
      "uploadDate": "2026-03-01T09:00:00Z"
    }
  ]
}
</script>
<script type="application/json">not json</script>
</head><body></body></html>`

const tiktokTagPage = `<html><head>
<script id="__UNIVERSAL_DATA_FOR_REHYDRATION__" type="application/json">
{"__DEFAULT_SCOPE__": {"webapp.challenge-detail": {"itemList": [
  {"id": "711", "desc": "Ranked #gaming win", "createTime": "1772348400",
   "stats": {"playCount": 70000, "diggCount": 6000, "commentCount": 300, "shareCount": 150},
   "video": {"duration": 18, "cover": "https://c/711"},
   "author": {"uniqueId": "gamer", "id": "g1"}},
  {"id": "711", "desc": "duplicate entry", "stats": {"playCount": 1}, "video": {"duration": 18}}
]}}}
</script></head></html>`

func TestExtractEmbeddedVideos(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(instagramTagPage))
	require.NoError(t, err)

	videos := extractEmbeddedVideos(doc, PlatformInstagram)
	require.Len(t, videos, 2)

	var reel Video
	for _, v := range videos {
		if v.PlatformVideoID == "Cx1" {
			reel = v
		}
	}
	assert.Equal(t, "Street food reel", reel.Title)
	assert.Equal(t, "tacolover", reel.Author)
	assert.Equal(t, "p9", reel.AuthorID)
	assert.Equal(t, int64(20000), reel.Views)
	assert.Equal(t, int64(1500), reel.Likes)
	assert.Equal(t, int64(40), reel.Comments)
	assert.Equal(t, 22.0, reel.DurationSeconds)
	assert.Equal(t, "https://img/cx1", reel.Metadata["thumbnail"])
}

func TestScrapeInstagramDiscover(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(instagramTagPage))
	}))
	defer srv.Close()

	c, err := NewScrape(PlatformInstagram, testOpts(srv.URL)...)
	require.NoError(t, err)

	videos, err := c.DiscoverTrending(context.Background(), "#streetfood", 24, 10)
	require.NoError(t, err)
	require.Len(t, videos, 1, "the 20 minute video is filtered")
	assert.Equal(t, "/explore/tags/streetfood/", gotPath)
	assert.Equal(t, "https://www.instagram.com/reel/Cx1/", videos[0].URL)
	assert.Greater(t, videos[0].TrendingScore, 0.0)
}

func TestScrapeTikTokDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(tiktokTagPage))
	}))
	defer srv.Close()

	c, err := NewScrape(PlatformTikTok, testOpts(srv.URL)...)
	require.NoError(t, err)

	videos, err := c.DiscoverTrending(context.Background(), "gaming", 48, 10)
	require.NoError(t, err)
	require.Len(t, videos, 1)

	v := videos[0]
	assert.Equal(t, "https://www.tiktok.com/@gamer/video/711", v.URL)
	assert.Equal(t, "gamer", v.Author)
	assert.Equal(t, int64(150), v.Shares)
	assert.Equal(t, 18.0, v.DurationSeconds)
}

func TestScrapeBlockedPageIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewScrape(PlatformTikTok, testOpts(srv.URL)...)
	require.NoError(t, err)

	videos, err := c.DiscoverTrending(context.Background(), "gaming", 48, 10)
	require.NoError(t, err)
	assert.Empty(t, videos)
}

func TestScrapeGetVideoDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed/v2/711", r.URL.Path)
		w.Write([]byte(tiktokTagPage))
	}))
	defer srv.Close()

	c, err := NewScrape(PlatformTikTok, testOpts(srv.URL)...)
	require.NoError(t, err)

	v, err := c.GetVideoDetails(context.Background(), "711")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "711", v.PlatformVideoID)
}

func TestNewScrapeUnsupported(t *testing.T) {
	_, err := NewScrape(PlatformSnapchat)
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}
