package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const channelFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
 <title>Gaming Daily</title>
 <entry>
  <id>yt:video:vidA</id>
  <yt:videoId>vidA</yt:videoId>
  <yt:channelId>UCgame</yt:channelId>
  <title>Gaming clutch of the week</title>
  <link rel="alternate" href="https://www.youtube.com/shorts/vidA"/>
  <author><name>Gaming Daily</name></author>
  <published>2026-03-01T08:00:00+00:00</published>
  <media:group>
   <media:title>Gaming clutch of the week</media:title>
   <media:thumbnail url="https://i.ytimg.com/vi/vidA/hqdefault.jpg" width="480" height="360"/>
   <media:description>One tap</media:description>
   <media:community>
    <media:starRating count="4200" average="5.00" min="1" max="5"/>
    <media:statistics views="88000"/>
   </media:community>
  </media:group>
 </entry>
 <entry>
  <id>yt:video:vidB</id>
  <yt:videoId>vidB</yt:videoId>
  <title>Gaming full stream VOD</title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=vidB"/>
  <published>2026-03-01T06:00:00+00:00</published>
 </entry>
 <entry>
  <id>yt:video:vidC</id>
  <yt:videoId>vidC</yt:videoId>
  <title>Cooking short</title>
  <link rel="alternate" href="https://www.youtube.com/shorts/vidC"/>
  <published>2026-03-01T06:00:00+00:00</published>
 </entry>
</feed>`

func TestFeedDiscoverTrending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("channel_id") == "UCbroken" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(channelFeed))
	}))
	defer srv.Close()

	f, err := NewFeed([]string{"UCgame", "UCbroken"}, 0, testOpts(srv.URL)...)
	require.NoError(t, err)

	videos, err := f.DiscoverTrending(context.Background(), "gaming", 24, 10)
	require.NoError(t, err)
	require.Len(t, videos, 1, "watch links have no duration and cooking does not match")

	v := videos[0]
	assert.Equal(t, "vidA", v.PlatformVideoID)
	assert.Equal(t, "https://www.youtube.com/shorts/vidA", v.URL)
	assert.Equal(t, "UCgame", v.AuthorID)
	assert.Equal(t, "Gaming Daily", v.Author)
	assert.Equal(t, int64(88000), v.Views)
	assert.Equal(t, int64(4200), v.Likes)
	assert.Equal(t, "One tap", v.Description)
	assert.Equal(t, DefaultShortCeiling, v.DurationSeconds)
	assert.Equal(t, "https://i.ytimg.com/vi/vidA/hqdefault.jpg", v.Metadata["thumbnail"])
}

func TestFeedAllChannelsFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f, err := NewFeed([]string{"UC1"}, 30, testOpts(srv.URL)...)
	require.NoError(t, err)

	videos, err := f.DiscoverTrending(context.Background(), "gaming", 24, 10)
	require.NoError(t, err)
	assert.Empty(t, videos)
}

func TestFeedWithoutChannels(t *testing.T) {
	f, err := NewFeed(nil, 0, WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = f.DiscoverTrending(context.Background(), "gaming", 24, 10)
	assert.ErrorIs(t, err, ErrBadRequest)
}
