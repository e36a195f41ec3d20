package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/elonfeng/viralclips/internal/pipeline"
	"github.com/elonfeng/viralclips/internal/store"
	"github.com/elonfeng/viralclips/pkg/discovery"
	"github.com/elonfeng/viralclips/pkg/selector"
	"github.com/elonfeng/viralclips/pkg/source"
)

// Server provides the HTTP API.
type Server struct {
	pipeline  *pipeline.Pipeline
	selection selector.Config
	defaults  discovery.Request
	log       logrus.FieldLogger
	port      int
	engine    *gin.Engine
}

// New creates a new HTTP server. defaults fills request fields the client
// leaves out.
func New(p *pipeline.Pipeline, selection selector.Config, defaults discovery.Request, log logrus.FieldLogger, port int) *Server {
	if port == 0 {
		port = 8080
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		pipeline:  p,
		selection: selection,
		defaults:  defaults,
		log:       log,
		port:      port,
	}
	s.engine = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), cors.Default())

	r.GET("/health", s.handleHealth)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/discovery", s.handleDiscovery)
		v1.GET("/platforms", s.handlePlatforms)
		v1.POST("/analysis", s.handleAnalysis)

		jobs := v1.Group("/jobs/:id")
		jobs.GET("", s.handleJob)
		jobs.GET("/videos", s.handleJobVideos)
		jobs.POST("/selection", s.handleSelection)
		jobs.GET("/summary", s.handleSummary)
	}
	return r
}

// ListenAndServe starts the HTTP server and shuts it down when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", srv.Addr).Info("viralclips server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
		}).Debug("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// discoveryRequest is the body of POST /api/v1/discovery.
type discoveryRequest struct {
	Niche            string   `json:"niche" binding:"required,min=1,max=100"`
	Platforms        []string `json:"platforms" binding:"omitempty,dive,oneof=youtube tiktok instagram snapchat"`
	TimeframeHours   int      `json:"timeframe_hours" binding:"omitempty,min=1,max=2160"`
	PerPlatformLimit int      `json:"per_platform_limit" binding:"omitempty,min=10,max=200"`
	MinViralScore    *float64 `json:"min_viral_score" binding:"omitempty,gte=0,lte=100"`
	MinViews         int64    `json:"min_views" binding:"gte=0"`
	SkipDedupe       bool     `json:"skip_dedupe"`
}

func (s *Server) handleDiscovery(c *gin.Context) {
	var body discoveryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := s.defaults
	req.Query = body.Niche
	req.SkipDedupe = body.SkipDedupe
	req.Platforms = nil
	if body.TimeframeHours > 0 {
		req.TimeframeHours = body.TimeframeHours
	}
	if body.PerPlatformLimit > 0 {
		req.PerPlatformLimit = body.PerPlatformLimit
	}
	if body.MinViralScore != nil {
		req.MinViralScore = *body.MinViralScore
	}
	if body.MinViews > 0 {
		req.MinViews = body.MinViews
	}
	for _, name := range body.Platforms {
		p, err := source.ParsePlatform(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.Platforms = append(req.Platforms, p)
	}

	out, err := s.pipeline.Discover(c.Request.Context(), req)
	if errors.Is(err, pipeline.ErrNoContent) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "No viral videos found for the given criteria",
			"job_id": out.Job.ID,
			"hint":   "try a broader niche, a longer timeframe or a lower min_viral_score",
		})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"job":        out.Job,
		"saved":      out.Saved,
		"duplicates": out.Skipped,
		"candidates": out.Result.Candidates,
		"platforms":  out.Result.Platforms,
		"videos":     out.Result.Videos,
	})
}

func (s *Server) handlePlatforms(c *gin.Context) {
	enabled := make(map[source.Platform]bool)
	for _, p := range s.pipeline.Platforms() {
		enabled[p] = true
	}

	type platformInfo struct {
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
	}
	infos := make([]platformInfo, 0, 4)
	for _, p := range source.AllPlatforms() {
		infos = append(infos, platformInfo{Name: string(p), Enabled: enabled[p]})
	}
	c.JSON(http.StatusOK, gin.H{"data": infos, "count": len(infos)})
}

func (s *Server) handleJob(c *gin.Context) {
	job, err := s.pipeline.Store().GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleJobVideos(c *gin.Context) {
	var q struct {
		Platform string  `form:"platform" binding:"omitempty,oneof=youtube tiktok instagram snapchat"`
		MinScore float64 `form:"min_score" binding:"gte=0,lte=100"`
		Limit    int     `form:"limit" binding:"omitempty,min=1,max=500"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.pipeline.Store().GetJob(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	videos, err := s.pipeline.Store().ListVideos(ctx, store.VideoFilter{
		JobID:    id,
		Platform: source.Platform(q.Platform),
		MinScore: q.MinScore,
		Limit:    q.Limit,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": videos, "count": len(videos)})
}

func (s *Server) handleAnalysis(c *gin.Context) {
	var records []pipeline.AnalysisImport
	if err := c.ShouldBindJSON(&records); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	stats, err := s.pipeline.Import(c.Request.Context(), records)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// selectionRequest overrides parts of the configured selection policy.
type selectionRequest struct {
	MaxClips                 *int     `json:"max_clips"`
	MaxPerAuthor             *int     `json:"max_per_author"`
	MinQuality               *float64 `json:"min_quality"`
	MinRelevance             *float64 `json:"min_relevance"`
	MinTrending              *float64 `json:"min_trending"`
	RequirePlatformDiversity *bool    `json:"require_platform_diversity"`
}

func (r selectionRequest) apply(cfg selector.Config) selector.Config {
	if r.MaxClips != nil {
		cfg.MaxClips = *r.MaxClips
	}
	if r.MaxPerAuthor != nil {
		cfg.MaxPerAuthor = *r.MaxPerAuthor
	}
	if r.MinQuality != nil {
		cfg.MinQuality = *r.MinQuality
	}
	if r.MinRelevance != nil {
		cfg.MinRelevance = *r.MinRelevance
	}
	if r.MinTrending != nil {
		cfg.MinTrending = *r.MinTrending
	}
	if r.RequirePlatformDiversity != nil {
		cfg.RequirePlatformDiversity = *r.RequirePlatformDiversity
	}
	return cfg
}

func (s *Server) handleSelection(c *gin.Context) {
	var body selectionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	sel, err := selector.New(body.apply(s.selection), s.log)
	if err != nil {
		s.fail(c, err)
		return
	}
	selection, err := s.pipeline.Select(c.Request.Context(), c.Param("id"), sel)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, selection)
}

func (s *Server) handleSummary(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	st := s.pipeline.Store()

	job, err := st.GetJob(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	summary, err := st.SelectionSummary(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	rejections, err := st.RejectionReasons(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job":        job,
		"summary":    summary,
		"rejections": rejections,
	})
}

// fail maps domain errors to status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, selector.ErrInvalidConfig),
		errors.Is(err, discovery.ErrEmptyQuery),
		errors.Is(err, discovery.ErrNoClients),
		errors.Is(err, source.ErrUnsupportedPlatform):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
