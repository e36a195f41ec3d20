package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/viralclips/pkg/selector"
	"github.com/elonfeng/viralclips/pkg/source"
)

// ErrNotFound is returned when a job or video does not exist.
var ErrNotFound = errors.New("not found")

// Job statuses.
const (
	JobPending     = "pending"
	JobDiscovering = "discovering"
	JobDiscovered  = "discovered"
	JobFailed      = "failed"
)

// Job is one discovery run for a niche.
type Job struct {
	ID            string    `db:"id" json:"id"`
	Niche         string    `db:"niche" json:"niche"`
	PlatformsJSON string    `db:"platforms" json:"-"`
	Platforms     []string  `db:"-" json:"platforms"`
	Status        string    `db:"status" json:"status"`
	Error         string    `db:"error" json:"error,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Video is a persisted discovery result.
type Video struct {
	ID              string         `db:"id" json:"id"`
	JobID           string         `db:"job_id" json:"job_id"`
	Platform        string         `db:"platform" json:"platform"`
	PlatformVideoID string         `db:"platform_video_id" json:"platform_video_id"`
	URL             string         `db:"url" json:"url"`
	Title           string         `db:"title" json:"title"`
	Description     string         `db:"description" json:"description"`
	Author          string         `db:"author" json:"author"`
	Views           int64          `db:"views" json:"views"`
	Likes           int64          `db:"likes" json:"likes"`
	Comments        int64          `db:"comments" json:"comments"`
	DurationSeconds float64        `db:"duration_seconds" json:"duration_seconds"`
	UploadDate      time.Time      `db:"upload_date" json:"upload_date"`
	TrendingScore   float64        `db:"trending_score" json:"trending_score"`
	MetadataJSON    string         `db:"metadata" json:"-"`
	Metadata        map[string]any `db:"-" json:"metadata"`
	DiscoveredAt    time.Time      `db:"discovered_at" json:"discovered_at"`
}

// Analysis is the external analysis verdict for one video. Quality,
// relevance and virality are on the 0-1 scale.
type Analysis struct {
	ContentID             string         `db:"content_id" json:"content_id"`
	Model                 string         `db:"model" json:"model"`
	QualityScore          float64        `db:"quality_score" json:"quality_score"`
	RelevanceScore        float64        `db:"relevance_score" json:"relevance_score"`
	ViralityScore         float64        `db:"virality_score" json:"virality_score"`
	Recommended           bool           `db:"recommended" json:"recommended"`
	CaptionSuggestion     string         `db:"caption_suggestion" json:"caption_suggestion"`
	DescriptionSuggestion string         `db:"description_suggestion" json:"description_suggestion"`
	RejectionReasonsJSON  string         `db:"rejection_reasons" json:"-"`
	RejectionReasons      []string       `db:"-" json:"rejection_reasons"`
	VisualAnalysisJSON    string         `db:"visual_analysis" json:"-"`
	VisualAnalysis        map[string]any `db:"-" json:"visual_analysis"`
	AnalyzedAt            time.Time      `db:"analyzed_at" json:"analyzed_at"`
}

// Download records where a video's media file lives.
type Download struct {
	ContentID       string    `db:"content_id" json:"content_id"`
	LocalPath       string    `db:"local_path" json:"local_path"`
	DurationSeconds float64   `db:"duration_seconds" json:"duration_seconds"`
	FileSizeBytes   int64     `db:"file_size_bytes" json:"file_size_bytes"`
	Format          string    `db:"format" json:"format"`
	DownloadedAt    time.Time `db:"downloaded_at" json:"downloaded_at"`
}

// Summary aggregates the analysis outcome of a job.
type Summary struct {
	JobID         string  `json:"job_id"`
	TotalAnalyzed int     `json:"total_analyzed"`
	Recommended   int     `json:"recommended"`
	Downloaded    int     `json:"downloaded"`
	RejectionRate float64 `json:"rejection_rate"`
	AvgQuality    float64 `json:"avg_quality"`
	AvgRelevance  float64 `json:"avg_relevance"`
	AvgTrending   float64 `json:"avg_trending"`
}

// VideoFilter controls video listing.
type VideoFilter struct {
	JobID    string
	Platform source.Platform
	MinScore float64
	Limit    int
}

// Store is the persistence interface.
type Store interface {
	CreateJob(ctx context.Context, niche string, platforms []source.Platform) (*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errMsg string) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]Job, error)

	SaveVideos(ctx context.Context, jobID string, videos []source.Video) (saved, skipped int, err error)
	ListVideos(ctx context.Context, f VideoFilter) ([]Video, error)

	SaveAnalysis(ctx context.Context, a *Analysis) error
	SaveDownload(ctx context.Context, d *Download) error

	ListCandidates(ctx context.Context, jobID string) ([]selector.Candidate, error)
	SelectionSummary(ctx context.Context, jobID string) (*Summary, error)
	RejectionReasons(ctx context.Context, jobID string) ([]selector.Rejection, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, niche string, platforms []source.Platform) (*Job, error) {
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = string(p)
	}
	platformsJSON, _ := json.Marshal(names)

	now := s.now()
	job := &Job{
		ID:            uuid.NewString(),
		Niche:         niche,
		PlatformsJSON: string(platformsJSON),
		Platforms:     names,
		Status:        JobPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO jobs (id, niche, platforms, status, error, created_at, updated_at)
		VALUES (:id, :niche, :platforms, :status, :error, :created_at, :updated_at)
	`, job)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, id, status, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?",
		status, errMsg, s.now(), id)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	err := s.db.GetContext(ctx, &job, "SELECT * FROM jobs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	json.Unmarshal([]byte(job.PlatformsJSON), &job.Platforms)
	return &job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []Job
	if err := s.db.SelectContext(ctx, &jobs, "SELECT * FROM jobs ORDER BY created_at DESC LIMIT ?", limit); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	for i := range jobs {
		json.Unmarshal([]byte(jobs[i].PlatformsJSON), &jobs[i].Platforms)
	}
	return jobs, nil
}

// SaveVideos inserts videos under jobID. A URL that is already stored, by
// this or an earlier job, is skipped and counted.
func (s *SQLiteStore) SaveVideos(ctx context.Context, jobID string, videos []source.Video) (saved, skipped int, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	for i := range videos {
		rec := videos[i].ToRecord()
		meta, _ := json.Marshal(rec["metadata"])
		rec["metadata"] = string(meta)
		rec["id"] = uuid.NewString()
		rec["job_id"] = jobID
		rec["discovered_at"] = now
		rec["upload_date"] = videos[i].UploadDate.UTC()

		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO videos (id, job_id, platform, platform_video_id, url, title, description, author,
				views, likes, comments, duration_seconds, upload_date, trending_score, metadata, discovered_at)
			VALUES (:id, :job_id, :platform, :platform_video_id, :url, :title, :description, :author,
				:views, :likes, :comments, :duration_seconds, :upload_date, :trending_score, :metadata, :discovered_at)
			ON CONFLICT(url) DO NOTHING
		`, rec)
		if err != nil {
			return 0, 0, fmt.Errorf("insert video %s: %w", videos[i].URL, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			skipped++
			continue
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit videos: %w", err)
	}
	return saved, skipped, nil
}

func (s *SQLiteStore) ListVideos(ctx context.Context, f VideoFilter) ([]Video, error) {
	q := sq.Select("*").From("videos").OrderBy("trending_score DESC", "id")
	if f.JobID != "" {
		q = q.Where(sq.Eq{"job_id": f.JobID})
	}
	if f.Platform != "" {
		q = q.Where(sq.Eq{"platform": string(f.Platform)})
	}
	if f.MinScore > 0 {
		q = q.Where(sq.GtOrEq{"trending_score": f.MinScore})
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query, args, err := q.Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build video query: %w", err)
	}

	var videos []Video
	if err := s.db.SelectContext(ctx, &videos, query, args...); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	for i := range videos {
		json.Unmarshal([]byte(videos[i].MetadataJSON), &videos[i].Metadata)
	}
	return videos, nil
}

func (s *SQLiteStore) videoExists(ctx context.Context, id string) error {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM videos WHERE id = ?", id); err != nil {
		return fmt.Errorf("lookup video %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveAnalysis inserts or replaces the analysis of an existing video.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, a *Analysis) error {
	if err := s.videoExists(ctx, a.ContentID); err != nil {
		return err
	}
	if a.RejectionReasons == nil {
		a.RejectionReasons = []string{}
	}
	if a.VisualAnalysis == nil {
		a.VisualAnalysis = map[string]any{}
	}
	reasons, _ := json.Marshal(a.RejectionReasons)
	visual, _ := json.Marshal(a.VisualAnalysis)
	a.RejectionReasonsJSON = string(reasons)
	a.VisualAnalysisJSON = string(visual)
	if a.AnalyzedAt.IsZero() {
		a.AnalyzedAt = s.now()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO analyses (content_id, model, quality_score, relevance_score, virality_score, recommended,
			caption_suggestion, description_suggestion, rejection_reasons, visual_analysis, analyzed_at)
		VALUES (:content_id, :model, :quality_score, :relevance_score, :virality_score, :recommended,
			:caption_suggestion, :description_suggestion, :rejection_reasons, :visual_analysis, :analyzed_at)
		ON CONFLICT(content_id) DO UPDATE SET
			model = excluded.model,
			quality_score = excluded.quality_score,
			relevance_score = excluded.relevance_score,
			virality_score = excluded.virality_score,
			recommended = excluded.recommended,
			caption_suggestion = excluded.caption_suggestion,
			description_suggestion = excluded.description_suggestion,
			rejection_reasons = excluded.rejection_reasons,
			visual_analysis = excluded.visual_analysis,
			analyzed_at = excluded.analyzed_at
	`, a)
	if err != nil {
		return fmt.Errorf("save analysis %s: %w", a.ContentID, err)
	}
	return nil
}

// SaveDownload records a downloaded file. When the file is present on this
// host it must be a video; its format and size are filled in.
func (s *SQLiteStore) SaveDownload(ctx context.Context, d *Download) error {
	if err := s.videoExists(ctx, d.ContentID); err != nil {
		return err
	}
	info, err := InspectMedia(d.LocalPath)
	switch {
	case err == nil:
		if d.Format == "" {
			d.Format = info.Format
		}
		if d.FileSizeBytes == 0 {
			d.FileSizeBytes = info.Size
		}
	case !errors.Is(err, errMissingFile):
		return err
	}
	if d.DownloadedAt.IsZero() {
		d.DownloadedAt = s.now()
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO downloads (content_id, local_path, duration_seconds, file_size_bytes, format, downloaded_at)
		VALUES (:content_id, :local_path, :duration_seconds, :file_size_bytes, :format, :downloaded_at)
		ON CONFLICT(content_id) DO UPDATE SET
			local_path = excluded.local_path,
			duration_seconds = excluded.duration_seconds,
			file_size_bytes = excluded.file_size_bytes,
			format = excluded.format,
			downloaded_at = excluded.downloaded_at
	`, d)
	if err != nil {
		return fmt.Errorf("save download %s: %w", d.ContentID, err)
	}
	return nil
}

// ListCandidates returns every analyzed video of a job joined with its
// download. The downloaded duration wins over the platform-reported one.
func (s *SQLiteStore) ListCandidates(ctx context.Context, jobID string) ([]selector.Candidate, error) {
	query, args, err := sq.Select(
		"v.id AS content_id",
		"v.url AS url",
		"v.title AS title",
		"v.author AS author",
		"v.platform AS platform",
		"COALESCE(d.local_path, '') AS local_path",
		"CASE WHEN d.duration_seconds > 0 THEN d.duration_seconds ELSE v.duration_seconds END AS duration_seconds",
		"v.trending_score AS trending_score",
		"a.quality_score AS quality_score",
		"a.relevance_score AS relevance_score",
		"a.recommended AS recommended",
		"a.caption_suggestion AS caption_suggestion",
		"a.description_suggestion AS description_suggestion",
	).
		From("videos v").
		Join("analyses a ON a.content_id = v.id").
		LeftJoin("downloads d ON d.content_id = v.id").
		Where(sq.Eq{"v.job_id": jobID}).
		OrderBy("v.trending_score DESC", "v.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}

	candidates := []selector.Candidate{}
	if err := s.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		return nil, fmt.Errorf("list candidates %s: %w", jobID, err)
	}
	return candidates, nil
}

// SelectionSummary reports how the analyzed videos of a job fared.
func (s *SQLiteStore) SelectionSummary(ctx context.Context, jobID string) (*Summary, error) {
	var row struct {
		Total        int     `db:"total"`
		Recommended  int     `db:"recommended"`
		Downloaded   int     `db:"downloaded"`
		AvgQuality   float64 `db:"avg_quality"`
		AvgRelevance float64 `db:"avg_relevance"`
		AvgTrending  float64 `db:"avg_trending"`
	}
	query, args, err := sq.Select(
		"COUNT(*) AS total",
		"COALESCE(SUM(CASE WHEN a.recommended THEN 1 ELSE 0 END), 0) AS recommended",
		"COUNT(d.content_id) AS downloaded",
		"COALESCE(AVG(a.quality_score), 0) AS avg_quality",
		"COALESCE(AVG(a.relevance_score), 0) AS avg_relevance",
		"COALESCE(AVG(v.trending_score), 0) AS avg_trending",
	).
		From("analyses a").
		Join("videos v ON v.id = a.content_id").
		LeftJoin("downloads d ON d.content_id = a.content_id").
		Where(sq.Eq{"v.job_id": jobID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build summary query: %w", err)
	}
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, fmt.Errorf("summary %s: %w", jobID, err)
	}

	sum := &Summary{
		JobID:         jobID,
		TotalAnalyzed: row.Total,
		Recommended:   row.Recommended,
		Downloaded:    row.Downloaded,
		AvgQuality:    round(row.AvgQuality, 3),
		AvgRelevance:  round(row.AvgRelevance, 3),
		AvgTrending:   round(row.AvgTrending, 2),
	}
	if row.Total > 0 {
		sum.RejectionRate = round(float64(row.Total-row.Recommended)/float64(row.Total)*100, 1)
	}
	return sum, nil
}

// maxRejections bounds the RejectionReasons listing.
const maxRejections = 50

// RejectionReasons lists the videos the analysis turned down and why.
func (s *SQLiteStore) RejectionReasons(ctx context.Context, jobID string) ([]selector.Rejection, error) {
	var rows []struct {
		ContentID string `db:"content_id"`
		Title     string `db:"title"`
		URL       string `db:"url"`
		Reasons   string `db:"rejection_reasons"`
		Visual    string `db:"visual_analysis"`
	}
	query, args, err := sq.Select("v.id AS content_id", "v.title AS title", "v.url AS url",
		"a.rejection_reasons AS rejection_reasons", "a.visual_analysis AS visual_analysis").
		From("analyses a").
		Join("videos v ON v.id = a.content_id").
		Where(sq.Eq{"v.job_id": jobID, "a.recommended": false}).
		OrderBy("a.analyzed_at DESC").
		Limit(maxRejections).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rejection query: %w", err)
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("rejections %s: %w", jobID, err)
	}

	out := make([]selector.Rejection, 0, len(rows))
	for _, r := range rows {
		var reasons []string
		var visual map[string]any
		json.Unmarshal([]byte(r.Reasons), &reasons)
		json.Unmarshal([]byte(r.Visual), &visual)
		out = append(out, selector.Rejection{
			ContentID: r.ContentID,
			Title:     truncate(r.Title, 50),
			URL:       r.URL,
			Reasons:   selector.InferRejectionReasons(reasons, visual),
		})
	}
	return out, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
