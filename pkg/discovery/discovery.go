// Package discovery fans a query out to every configured platform client and
// merges the results into one ranked, de-duplicated list.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/viralclips/pkg/dedupe"
	"github.com/elonfeng/viralclips/pkg/source"
)

// Request defaults.
const (
	DefaultTimeframeHours   = 720
	DefaultPerPlatformLimit = 50
	DefaultPlatformTimeout  = 2 * time.Minute
	// MinRankingPool is the smallest per-platform request made for a ranking.
	MinRankingPool = 30
)

var (
	ErrEmptyQuery = errors.New("query must not be empty")
	ErrNoClients  = errors.New("no platform clients selected")
)

// Request describes one discovery run.
type Request struct {
	Query            string
	TimeframeHours   int
	PerPlatformLimit int
	MinViralScore    float64
	MinViews         int64
	SkipDedupe       bool
	// Platforms restricts the run to a subset of the configured clients.
	// Empty means all.
	Platforms []source.Platform
}

func (r Request) withDefaults() Request {
	r.Query = strings.TrimSpace(r.Query)
	if r.TimeframeHours <= 0 {
		r.TimeframeHours = DefaultTimeframeHours
	}
	if r.PerPlatformLimit <= 0 {
		r.PerPlatformLimit = DefaultPerPlatformLimit
	}
	return r
}

// Platform run outcomes.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// PlatformStat reports how one client fared.
type PlatformStat struct {
	Platform source.Platform `json:"platform"`
	Status   string          `json:"status"`
	Found    int             `json:"found"`
	Error    string          `json:"error,omitempty"`
	Elapsed  time.Duration   `json:"elapsed_ns"`
}

// Result is the merged outcome of a run.
type Result struct {
	Videos    []source.Video `json:"videos"`
	Platforms []PlatformStat `json:"platforms"`
	// Candidates is the number of videos returned by all clients before
	// thresholds and de-duplication.
	Candidates int `json:"candidates"`
}

// Orchestrator runs discovery across platform clients.
type Orchestrator struct {
	clients         []source.Client
	log             logrus.FieldLogger
	tracer          trace.Tracer
	platformTimeout time.Duration
	threshold       float64
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithPlatformTimeout bounds each client call. Zero disables the bound.
func WithPlatformTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.platformTimeout = d }
}

// WithSimilarityThreshold sets the near-duplicate title threshold.
func WithSimilarityThreshold(t float64) Option {
	return func(o *Orchestrator) { o.threshold = t }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New creates an orchestrator over clients. Client order decides the merge
// order of equal-scored videos.
func New(clients []source.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		clients:         clients,
		log:             logrus.StandardLogger(),
		tracer:          otel.Tracer("github.com/elonfeng/viralclips/pkg/discovery"),
		platformTimeout: DefaultPlatformTimeout,
		threshold:       dedupe.DefaultThreshold,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Platforms lists the platforms of the configured clients.
func (o *Orchestrator) Platforms() []source.Platform {
	out := make([]source.Platform, len(o.clients))
	for i, c := range o.clients {
		out[i] = c.Platform()
	}
	return out
}

// Discover queries every selected client concurrently. A failing client
// contributes nothing and is reported in Result.Platforms; only invalid
// requests return an error.
func (o *Orchestrator) Discover(ctx context.Context, req Request) (*Result, error) {
	req = req.withDefaults()
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	clients := o.selectClients(req.Platforms)
	if len(clients) == 0 {
		return nil, ErrNoClients
	}

	ctx, span := o.tracer.Start(ctx, "discovery.Discover", trace.WithAttributes(
		attribute.String("query", req.Query),
		attribute.Int("timeframe_hours", req.TimeframeHours),
		attribute.Int("per_platform_limit", req.PerPlatformLimit),
		attribute.Int("clients", len(clients)),
	))
	defer span.End()

	log := o.log.WithField("query", req.Query)
	log.WithField("platforms", len(clients)).Info("discovery starting")

	perClient := make([][]source.Video, len(clients))
	stats := make([]PlatformStat, len(clients))

	var g errgroup.Group
	for i, c := range clients {
		i, c := i, c
		g.Go(func() error {
			perClient[i], stats[i] = o.runClient(ctx, c, req)
			return nil
		})
	}
	_ = g.Wait()

	var merged []source.Video
	for i := range perClient {
		merged = append(merged, perClient[i]...)
	}
	candidates := len(merged)

	filtered := merged[:0:0]
	for _, v := range merged {
		if v.TrendingScore >= req.MinViralScore && v.Views >= req.MinViews {
			filtered = append(filtered, v)
		}
	}

	if req.SkipDedupe {
		sortByScore(filtered)
	} else {
		filtered = dedupe.Dedupe(filtered, o.threshold)
	}
	if filtered == nil {
		filtered = []source.Video{}
	}

	span.SetAttributes(attribute.Int("candidates", candidates), attribute.Int("results", len(filtered)))
	span.SetStatus(codes.Ok, "discovered")
	log.WithFields(logrus.Fields{
		"candidates": candidates,
		"results":    len(filtered),
	}).Info("discovery finished")

	return &Result{Videos: filtered, Platforms: stats, Candidates: candidates}, nil
}

// DiscoverForRanking over-fetches so that thresholds and de-duplication
// still leave enough videos, then keeps the best rankingCount.
func (o *Orchestrator) DiscoverForRanking(ctx context.Context, niche string, rankingCount int, req Request) (*Result, error) {
	if rankingCount <= 0 {
		return nil, fmt.Errorf("ranking count must be positive, got %d", rankingCount)
	}
	req.Query = niche
	req.PerPlatformLimit = max(rankingCount*2, MinRankingPool)

	res, err := o.Discover(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(res.Videos) > rankingCount {
		res.Videos = res.Videos[:rankingCount]
	}
	return res, nil
}

func (o *Orchestrator) runClient(ctx context.Context, c source.Client, req Request) (videos []source.Video, stat PlatformStat) {
	p := c.Platform()
	stat = PlatformStat{Platform: p, Status: StatusOK}
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "discovery.platform", trace.WithAttributes(attribute.String("platform", string(p))))
	defer span.End()

	if o.platformTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.platformTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			videos = nil
			stat.Status = StatusFailed
			stat.Error = fmt.Sprintf("panic: %v", r)
			span.SetStatus(codes.Error, stat.Error)
			o.log.WithField("platform", p).Errorf("client panicked: %v", r)
		}
		stat.Elapsed = time.Since(start)
		stat.Found = len(videos)
	}()

	videos, err := c.DiscoverTrending(ctx, req.Query, req.TimeframeHours, req.PerPlatformLimit)
	if err != nil {
		stat.Status = StatusFailed
		stat.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "discovery failed")
		o.log.WithError(err).WithField("platform", p).Warn("platform discovery failed")
		return nil, stat
	}
	if ctx.Err() != nil && len(videos) == 0 {
		stat.Status = StatusFailed
		stat.Error = ctx.Err().Error()
	}
	return videos, stat
}

func (o *Orchestrator) selectClients(platforms []source.Platform) []source.Client {
	if len(platforms) == 0 {
		return o.clients
	}
	want := make(map[source.Platform]bool, len(platforms))
	for _, p := range platforms {
		want[p] = true
	}
	var out []source.Client
	for _, c := range o.clients {
		if want[c.Platform()] {
			out = append(out, c)
		}
	}
	return out
}

func sortByScore(videos []source.Video) {
	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].TrendingScore > videos[j].TrendingScore
	})
}
