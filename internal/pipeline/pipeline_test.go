package pipeline

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/viralclips/internal/store"
	"github.com/elonfeng/viralclips/pkg/discovery"
	"github.com/elonfeng/viralclips/pkg/selector"
	"github.com/elonfeng/viralclips/pkg/source"
)

type fakeDiscoverer struct {
	videos []source.Video
	err    error
	calls  int
}

func (f *fakeDiscoverer) Platforms() []source.Platform {
	return []source.Platform{source.PlatformYouTube, source.PlatformTikTok}
}

func (f *fakeDiscoverer) Discover(ctx context.Context, req discovery.Request) (*discovery.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &discovery.Result{Videos: f.videos, Candidates: len(f.videos)}, nil
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newPipeline(t *testing.T, d Discoverer) *Pipeline {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "p.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, d, quiet())
}

func videos() []source.Video {
	return []source.Video{
		{Platform: source.PlatformYouTube, URL: "https://y/1", Title: "one", Author: "a", DurationSeconds: 20, TrendingScore: 80},
		{Platform: source.PlatformTikTok, URL: "https://t/2", Title: "two", Author: "b", DurationSeconds: 30, TrendingScore: 60},
	}
}

func TestDiscoverStoresJob(t *testing.T) {
	p := newPipeline(t, &fakeDiscoverer{videos: videos()})
	ctx := context.Background()

	out, err := p.Discover(ctx, discovery.Request{Query: "gaming"})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Saved)
	assert.Equal(t, store.JobDiscovered, out.Job.Status)

	job, err := p.Store().GetJob(ctx, out.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.JobDiscovered, job.Status)
	assert.Equal(t, []string{"youtube", "tiktok"}, job.Platforms)

	again, err := p.Discover(ctx, discovery.Request{Query: "gaming"})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Saved)
	assert.Equal(t, 2, again.Skipped)
}

func TestDiscoverEmptyFailsJob(t *testing.T) {
	p := newPipeline(t, &fakeDiscoverer{videos: []source.Video{}})
	out, err := p.Discover(context.Background(), discovery.Request{Query: "knitting"})
	assert.ErrorIs(t, err, ErrNoContent)
	require.NotNil(t, out)
	assert.Equal(t, store.JobFailed, out.Job.Status)
	assert.Contains(t, out.Job.Error, "No trending content")
}

func TestDiscoverErrorFailsJob(t *testing.T) {
	p := newPipeline(t, &fakeDiscoverer{err: discovery.ErrEmptyQuery})
	out, err := p.Discover(context.Background(), discovery.Request{Query: " "})
	assert.True(t, errors.Is(err, discovery.ErrEmptyQuery))
	assert.Equal(t, store.JobFailed, out.Job.Status)
}

func TestImportAndSelect(t *testing.T) {
	p := newPipeline(t, &fakeDiscoverer{videos: videos()})
	ctx := context.Background()

	out, err := p.Discover(ctx, discovery.Request{Query: "gaming"})
	require.NoError(t, err)
	stored, err := p.Store().ListVideos(ctx, store.VideoFilter{JobID: out.Job.ID})
	require.NoError(t, err)
	require.Len(t, stored, 2)

	stats, err := p.Import(ctx, []AnalysisImport{
		{
			Analysis: store.Analysis{ContentID: stored[0].ID, QualityScore: 0.9, RelevanceScore: 0.9, Recommended: true},
			Download: &store.Download{LocalPath: "/remote/one.mp4", Format: "mp4"},
		},
		{Analysis: store.Analysis{ContentID: stored[1].ID, QualityScore: 0.8, RelevanceScore: 0.8, Recommended: true}},
		{Analysis: store.Analysis{ContentID: "ghost", QualityScore: 0.8}},
		{Analysis: store.Analysis{ContentID: stored[1].ID, QualityScore: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Imported)
	assert.Equal(t, 2, stats.Failed)

	sel, err := selector.New(selector.DefaultConfig(), quiet())
	require.NoError(t, err)
	selection, err := p.Select(ctx, out.Job.ID, sel)
	require.NoError(t, err)
	require.Len(t, selection.Clips, 1, "only the downloaded clip is eligible")
	assert.Equal(t, "https://y/1", selection.Clips[0].URL)
	assert.Equal(t, 1, selection.Clips[0].Rank)

	_, err = p.Select(ctx, "missing", sel)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
