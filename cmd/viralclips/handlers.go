package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/viralclips/internal/config"
	"github.com/elonfeng/viralclips/internal/logging"
	"github.com/elonfeng/viralclips/internal/pipeline"
	"github.com/elonfeng/viralclips/internal/scheduler"
	"github.com/elonfeng/viralclips/internal/store"
	"github.com/elonfeng/viralclips/pkg/alert"
	"github.com/elonfeng/viralclips/pkg/discovery"
	"github.com/elonfeng/viralclips/pkg/selector"
	"github.com/elonfeng/viralclips/pkg/server"
	"github.com/elonfeng/viralclips/pkg/source"
	"github.com/elonfeng/viralclips/pkg/workpool"
)

// app is the wiring shared by every command.
type app struct {
	cfg *config.Config
	log *logrus.Logger
	db  *store.SQLiteStore
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		for _, candidate := range []string{"config.yaml", "config.toml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	return config.Load(path)
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	log := logging.New(level, cfg.Logging.Format)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &app{cfg: cfg, log: log, db: db}, nil
}

func (a *app) Close() error { return a.db.Close() }

// buildClients constructs a client per enabled platform. A platform whose
// client cannot be built is skipped with a warning.
func (a *app) buildClients() []source.Client {
	pool := workpool.New(workpool.DefaultSize)
	var clients []source.Client
	for _, spec := range a.cfg.SourceSpecs() {
		c, err := source.Build(spec, source.WithLogger(a.log), source.WithPool(pool))
		if err != nil {
			a.log.WithError(err).WithField("platform", spec.Platform).Warn("platform disabled")
			continue
		}
		clients = append(clients, c)
	}
	return clients
}

func (a *app) orchestrator() *discovery.Orchestrator {
	return discovery.New(a.buildClients(),
		discovery.WithLogger(a.log),
		discovery.WithPlatformTimeout(a.cfg.Discovery.ParsePlatformTimeout()),
		discovery.WithSimilarityThreshold(a.cfg.Discovery.SimilarityThreshold),
	)
}

// defaultRequest carries the configured discovery defaults.
func (a *app) defaultRequest() discovery.Request {
	d := a.cfg.Discovery
	return discovery.Request{
		TimeframeHours:   d.TimeframeHours,
		PerPlatformLimit: d.PerPlatformLimit,
		MinViralScore:    d.MinViralScore,
		MinViews:         d.MinViews,
	}
}

func (a *app) alertManager() *alert.Manager {
	var notifiers []alert.Notifier
	al := a.cfg.Alerts

	if al.Slack.Enabled && al.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(al.Slack.WebhookURL))
	}
	if al.Discord.Enabled && al.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(al.Discord.WebhookURL))
	}
	if al.Webhook.Enabled && al.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(al.Webhook.URL, al.Webhook.Secret))
	}
	return alert.NewManager(notifiers)
}

// rankingDiscoverer keeps only the best n videos of each run.
type rankingDiscoverer struct {
	*discovery.Orchestrator
	n int
}

func (r rankingDiscoverer) Discover(ctx context.Context, req discovery.Request) (*discovery.Result, error) {
	return r.DiscoverForRanking(ctx, req.Query, r.n, req)
}

type discoverOpts struct {
	niche     string
	platforms []string
	timeframe int
	limit     int
	minScore  float64
	minViews  int64
	noDedupe  bool
	ranking   int
	json      bool
}

func runDiscover(ctx context.Context, opts discoverOpts) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	req := a.defaultRequest()
	req.Query = opts.niche
	req.SkipDedupe = opts.noDedupe
	if opts.timeframe > 0 {
		req.TimeframeHours = opts.timeframe
	}
	if opts.limit > 0 {
		req.PerPlatformLimit = opts.limit
	}
	if opts.minScore >= 0 {
		req.MinViralScore = opts.minScore
	}
	if opts.minViews > 0 {
		req.MinViews = opts.minViews
	}
	for _, name := range opts.platforms {
		p, err := source.ParsePlatform(name)
		if err != nil {
			return err
		}
		req.Platforms = append(req.Platforms, p)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var d pipeline.Discoverer = a.orchestrator()
	if opts.ranking > 0 {
		d = rankingDiscoverer{Orchestrator: d.(*discovery.Orchestrator), n: opts.ranking}
	}

	fmt.Fprintf(os.Stderr, "discovering %q...\n", opts.niche)
	out, err := pipeline.New(a.db, d, a.log).Discover(ctx, req)
	if errors.Is(err, pipeline.ErrNoContent) {
		fmt.Fprintf(os.Stderr, "no viral videos found for %q (job %s)\n", opts.niche, out.Job.ID)
		return nil
	}
	if err != nil {
		return err
	}

	if opts.json {
		return writeJSON(out)
	}

	for _, st := range out.Result.Platforms {
		line := fmt.Sprintf("  %s: %s, %d videos in %s", st.Platform, st.Status, st.Found, st.Elapsed.Round(time.Millisecond))
		if st.Error != "" {
			line += " (" + st.Error + ")"
		}
		fmt.Fprintln(os.Stderr, line)
	}
	fmt.Fprintf(os.Stderr, "job %s: %d saved, %d duplicates\n\n", out.Job.ID, out.Saved, out.Skipped)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tPLATFORM\tVIEWS\tDURATION\tTITLE\tURL")
	for _, v := range out.Result.Videos {
		fmt.Fprintf(w, "%.1f\t%s\t%d\t%.0fs\t%s\t%s\n",
			v.TrendingScore, v.Platform, v.Views, v.DurationSeconds, clip(v.Title, 60), v.URL)
	}
	return w.Flush()
}

type selectOpts struct {
	jobID        string
	maxClips     int
	maxPerAuthor int
	diversity    bool
	json         bool
}

func runSelect(ctx context.Context, opts selectOpts) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg.Selection
	if opts.maxClips > 0 {
		cfg.MaxClips = opts.maxClips
	}
	if opts.maxPerAuthor > 0 {
		cfg.MaxPerAuthor = opts.maxPerAuthor
	}
	if opts.diversity {
		cfg.RequirePlatformDiversity = true
	}
	sel, err := selector.New(cfg, a.log)
	if err != nil {
		return err
	}

	selection, err := pipeline.New(a.db, nil, a.log).Select(ctx, opts.jobID, sel)
	if err != nil {
		return err
	}

	if opts.json {
		return writeJSON(selection)
	}
	if len(selection.Clips) == 0 {
		fmt.Printf("no eligible clips for job %s (import analysis results first: viralclips import-analysis)\n", opts.jobID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tCOMPOSITE\tTRENDING\tPLATFORM\tAUTHOR\tTITLE\tFILE")
	for _, c := range selection.Clips {
		fmt.Fprintf(w, "%d\t%.3f\t%.1f\t%s\t%s\t%s\t%s\n",
			c.Rank, c.CompositeScore, c.TrendingScore, c.Platform, c.Author, clip(c.Title, 50), c.LocalPath)
	}
	return w.Flush()
}

func runImport(ctx context.Context, path string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var records []pipeline.AnalysisImport
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	stats, err := pipeline.New(a.db, nil, a.log).Import(ctx, records)
	if err != nil {
		return err
	}
	for _, msg := range stats.Errors {
		fmt.Fprintf(os.Stderr, "  skipped: %s\n", msg)
	}
	fmt.Fprintf(os.Stderr, "imported %d records, %d failed\n", stats.Imported, stats.Failed)
	return nil
}

func runSummary(ctx context.Context, jobID string, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.db.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	sum, err := a.db.SelectionSummary(ctx, jobID)
	if err != nil {
		return err
	}
	rejections, err := a.db.RejectionReasons(ctx, jobID)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(map[string]any{"job": job, "summary": sum, "rejections": rejections})
	}

	fmt.Printf("job %s (%s): %s\n", job.ID, job.Niche, job.Status)
	fmt.Printf("analyzed %d, recommended %d, downloaded %d, rejection rate %.1f%%\n",
		sum.TotalAnalyzed, sum.Recommended, sum.Downloaded, sum.RejectionRate)
	fmt.Printf("avg quality %.3f, avg relevance %.3f, avg trending %.2f\n",
		sum.AvgQuality, sum.AvgRelevance, sum.AvgTrending)
	if len(rejections) == 0 {
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TITLE\tREASONS")
	for _, r := range rejections {
		fmt.Fprintf(w, "%s\t%v\n", r.Title, r.Reasons)
	}
	return w.Flush()
}

func (a *app) server(p *pipeline.Pipeline, port int) *server.Server {
	if port == 0 {
		port = a.cfg.Server.Port
	}
	return server.New(p, a.cfg.Selection, a.defaultRequest(), a.log, port)
}

func runServe(port int) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p := pipeline.New(a.db, a.orchestrator(), a.log)
	err = a.server(p, port).ListenAndServe(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runDaemon(port int) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p := pipeline.New(a.db, a.orchestrator(), a.log)
	sched := scheduler.New(p, a.alertManager(), a.log,
		a.cfg.Schedule.Niches,
		a.defaultRequest(),
		a.cfg.Schedule.ParseInterval(),
		a.cfg.Schedule.AlertTop,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return a.server(p, port).ListenAndServe(ctx) })

	err = g.Wait()
	a.log.Info("shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
