package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elonfeng/viralclips/internal/pipeline"
	"github.com/elonfeng/viralclips/pkg/alert"
	"github.com/elonfeng/viralclips/pkg/discovery"
)

// Runner runs one discovery job. *pipeline.Pipeline satisfies it.
type Runner interface {
	Discover(ctx context.Context, req discovery.Request) (*pipeline.Outcome, error)
}

// Scheduler periodically re-runs discovery for a watchlist of niches.
type Scheduler struct {
	runner   Runner
	alertMgr *alert.Manager
	log      logrus.FieldLogger
	niches   []string
	template discovery.Request
	interval time.Duration
	alertTop int
}

// New creates a new scheduler. template supplies everything but the query
// for each run.
func New(
	runner Runner,
	alertMgr *alert.Manager,
	log logrus.FieldLogger,
	niches []string,
	template discovery.Request,
	interval time.Duration,
	alertTop int,
) *Scheduler {
	if interval == 0 {
		interval = 6 * time.Hour
	}
	if alertTop == 0 {
		alertTop = 5
	}
	if alertMgr == nil {
		alertMgr = alert.NewManager(nil)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		runner:   runner,
		alertMgr: alertMgr,
		log:      log,
		niches:   niches,
		template: template,
		interval: interval,
		alertTop: alertTop,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.niches) == 0 {
		s.log.Warn("scheduler: no niches to watch")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("niches", len(s.niches)).Info("scheduler: initial discovery")
	s.RunOnce(ctx)
	s.log.WithField("interval", s.interval.String()).Info("scheduler: running")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce discovers every watched niche in turn and alerts on the ones that
// produced videos. It returns the number of successful jobs.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	ok := 0
	for _, niche := range s.niches {
		if ctx.Err() != nil {
			return ok
		}
		req := s.template
		req.Query = niche
		log := s.log.WithField("niche", niche)

		out, err := s.runner.Discover(ctx, req)
		if errors.Is(err, pipeline.ErrNoContent) {
			log.Info("nothing trending")
			continue
		}
		if err != nil {
			log.WithError(err).Error("scheduled discovery failed")
			continue
		}
		ok++
		log.WithFields(logrus.Fields{"job_id": out.Job.ID, "saved": out.Saved}).Info("scheduled discovery done")

		if !s.alertMgr.HasNotifiers() || out.Saved == 0 {
			continue
		}
		n := alert.NewDiscoveryNotification(niche, out.Job.ID, out.Result.Videos, s.alertTop)
		if err := s.alertMgr.Broadcast(ctx, n); err != nil {
			log.WithError(err).Warn("alert failed")
		}
	}
	return ok
}
