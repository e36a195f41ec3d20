package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/viralclips/pkg/source"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// mp4Header is the start of an ISO base media file.
var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2',
}

func writeMedia(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func sampleVideos() []source.Video {
	upload := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return []source.Video{
		{Platform: source.PlatformYouTube, PlatformVideoID: "yt1", URL: "https://youtube.com/shorts/yt1",
			Title: "Clutch ace in ranked", Author: "ProGamer", Views: 120000, DurationSeconds: 42,
			UploadDate: upload, TrendingScore: 71.5, Metadata: map[string]any{"channel_id": "UC1"}},
		{Platform: source.PlatformTikTok, PlatformVideoID: "tt1", URL: "https://tiktok.com/@a/video/tt1",
			Title: "Speedrun world record", Author: "runner", Views: 5000, DurationSeconds: 30,
			UploadDate: upload, TrendingScore: 40},
		{Platform: source.PlatformTikTok, PlatformVideoID: "tt2", URL: "https://tiktok.com/@a/video/tt2",
			Title: "Funny glitch compilation", Author: "runner", Views: 800, DurationSeconds: 70,
			UploadDate: upload, TrendingScore: 12},
	}
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "gaming", []source.Platform{source.PlatformYouTube, source.PlatformTikTok})
	require.NoError(t, err)
	assert.Equal(t, JobPending, job.Status)
	assert.NotEmpty(t, job.ID)

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, JobFailed, "all platforms down"))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "gaming", got.Niche)
	assert.Equal(t, []string{"youtube", "tiktok"}, got.Platforms)
	assert.Equal(t, JobFailed, got.Status)
	assert.Equal(t, "all platforms down", got.Error)

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateJobStatus(ctx, "missing", JobFailed, ""), ErrNotFound)

	jobs, err := s.ListJobs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestSaveVideosSkipsKnownURLs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateJob(ctx, "gaming", nil)
	require.NoError(t, err)
	saved, skipped, err := s.SaveVideos(ctx, first.ID, sampleVideos())
	require.NoError(t, err)
	assert.Equal(t, 3, saved)
	assert.Equal(t, 0, skipped)

	second, err := s.CreateJob(ctx, "gaming", nil)
	require.NoError(t, err)
	saved, skipped, err = s.SaveVideos(ctx, second.ID, sampleVideos()[:2])
	require.NoError(t, err)
	assert.Equal(t, 0, saved)
	assert.Equal(t, 2, skipped)

	videos, err := s.ListVideos(ctx, VideoFilter{JobID: first.ID})
	require.NoError(t, err)
	require.Len(t, videos, 3)
	assert.Equal(t, "yt1", videos[0].PlatformVideoID)
	assert.Equal(t, "UC1", videos[0].Metadata["channel_id"])
	assert.Contains(t, videos[0].Metadata, "engagement_rate")

	tiktok, err := s.ListVideos(ctx, VideoFilter{JobID: first.ID, Platform: source.PlatformTikTok, MinScore: 20})
	require.NoError(t, err)
	require.Len(t, tiktok, 1)
	assert.Equal(t, "tt1", tiktok[0].PlatformVideoID)
}

func TestCandidatesAndSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "gaming", nil)
	require.NoError(t, err)
	_, _, err = s.SaveVideos(ctx, job.ID, sampleVideos())
	require.NoError(t, err)
	videos, err := s.ListVideos(ctx, VideoFilter{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, videos, 3)
	yt, tt1, tt2 := videos[0], videos[1], videos[2]

	require.NoError(t, s.SaveAnalysis(ctx, &Analysis{
		ContentID: yt.ID, QualityScore: 0.9, RelevanceScore: 0.8, Recommended: true,
		CaptionSuggestion: "insane ace",
	}))
	require.NoError(t, s.SaveAnalysis(ctx, &Analysis{
		ContentID: tt1.ID, QualityScore: 0.6, RelevanceScore: 0.5, Recommended: true,
	}))
	require.NoError(t, s.SaveAnalysis(ctx, &Analysis{
		ContentID: tt2.ID, QualityScore: 0.3, RelevanceScore: 0.2, Recommended: false,
		VisualAnalysis: map[string]any{"has_watermark": true, "is_safe_content": true},
	}))

	clip := writeMedia(t, "yt1.mp4", mp4Header)
	require.NoError(t, s.SaveDownload(ctx, &Download{ContentID: yt.ID, LocalPath: clip, DurationSeconds: 41}))

	candidates, err := s.ListCandidates(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, yt.ID, candidates[0].ContentID)
	assert.Equal(t, clip, candidates[0].LocalPath)
	assert.Equal(t, 41.0, candidates[0].DurationSeconds)
	assert.Equal(t, 71.5, candidates[0].TrendingScore)
	assert.True(t, candidates[0].Recommended)
	assert.Equal(t, "insane ace", candidates[0].CaptionSuggestion)
	assert.Empty(t, candidates[1].LocalPath)
	assert.Equal(t, 30.0, candidates[1].DurationSeconds)

	sum, err := s.SelectionSummary(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalAnalyzed)
	assert.Equal(t, 2, sum.Recommended)
	assert.Equal(t, 1, sum.Downloaded)
	assert.Equal(t, 33.3, sum.RejectionRate)
	assert.Equal(t, 0.6, sum.AvgQuality)
	assert.Equal(t, 41.17, sum.AvgTrending)

	rejections, err := s.RejectionReasons(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Equal(t, tt2.ID, rejections[0].ContentID)
	assert.Equal(t, []string{"Has watermark"}, rejections[0].Reasons)
}

func TestSaveAnalysisUnknownVideo(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveAnalysis(context.Background(), &Analysis{ContentID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveDownloadRejectsNonVideo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job, err := s.CreateJob(ctx, "gaming", nil)
	require.NoError(t, err)
	_, _, err = s.SaveVideos(ctx, job.ID, sampleVideos()[:1])
	require.NoError(t, err)
	videos, err := s.ListVideos(ctx, VideoFilter{JobID: job.ID})
	require.NoError(t, err)

	notes := writeMedia(t, "notes.txt", []byte("just some text, definitely not a video"))
	err = s.SaveDownload(ctx, &Download{ContentID: videos[0].ID, LocalPath: notes})
	assert.ErrorIs(t, err, ErrNotVideo)

	// files stored on another host are recorded as given
	err = s.SaveDownload(ctx, &Download{ContentID: videos[0].ID, LocalPath: "/remote/clip.mp4", Format: "mp4"})
	assert.NoError(t, err)
}

func TestInspectMedia(t *testing.T) {
	info, err := InspectMedia(writeMedia(t, "a.mp4", mp4Header))
	require.NoError(t, err)
	assert.Equal(t, "mp4", info.Format)
	assert.Equal(t, int64(len(mp4Header)), info.Size)

	_, err = InspectMedia(filepath.Join(t.TempDir(), "absent.mp4"))
	assert.ErrorIs(t, err, errMissingFile)
}
