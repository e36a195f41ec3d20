// Package pipeline ties discovery, persistence and selection into the job
// flow shared by the CLI, the HTTP API and the scheduler.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/elonfeng/viralclips/internal/store"
	"github.com/elonfeng/viralclips/pkg/discovery"
	"github.com/elonfeng/viralclips/pkg/selector"
	"github.com/elonfeng/viralclips/pkg/source"
)

// ErrNoContent is returned when a discovery run finds nothing to keep.
var ErrNoContent = errors.New("no trending content found for this niche")

// Discoverer runs one discovery request. *discovery.Orchestrator satisfies it.
type Discoverer interface {
	Platforms() []source.Platform
	Discover(ctx context.Context, req discovery.Request) (*discovery.Result, error)
}

// Pipeline runs jobs against a store.
type Pipeline struct {
	store      store.Store
	discoverer Discoverer
	log        logrus.FieldLogger
}

// New creates a pipeline. d may be nil when only Select and Import are used.
func New(s store.Store, d Discoverer, log logrus.FieldLogger) *Pipeline {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{store: s, discoverer: d, log: log}
}

// Store returns the backing store.
func (p *Pipeline) Store() store.Store { return p.store }

// Platforms lists the platforms discovery can reach.
func (p *Pipeline) Platforms() []source.Platform { return p.discoverer.Platforms() }

// Outcome is the result of one discovery job.
type Outcome struct {
	Job     *store.Job        `json:"job"`
	Result  *discovery.Result `json:"result"`
	Saved   int               `json:"saved"`
	Skipped int               `json:"skipped"`
}

// Discover creates a job, runs discovery and stores what it found. The job
// is marked failed when discovery errors or finds nothing; the outcome is
// returned in both cases so callers can report the job id.
func (p *Pipeline) Discover(ctx context.Context, req discovery.Request) (*Outcome, error) {
	platforms := req.Platforms
	if len(platforms) == 0 {
		platforms = p.discoverer.Platforms()
	}
	job, err := p.store.CreateJob(ctx, req.Query, platforms)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Job: job}
	log := p.log.WithFields(logrus.Fields{"job_id": job.ID, "niche": req.Query})

	if err := p.setStatus(ctx, job, store.JobDiscovering, ""); err != nil {
		return out, err
	}

	res, err := p.discoverer.Discover(ctx, req)
	if err != nil {
		log.WithError(err).Error("discovery failed")
		p.setStatus(ctx, job, store.JobFailed, err.Error())
		return out, fmt.Errorf("discover %q: %w", req.Query, err)
	}
	out.Result = res

	if len(res.Videos) == 0 {
		log.Warn("no videos found")
		p.setStatus(ctx, job, store.JobFailed, "No trending content found for this niche")
		return out, ErrNoContent
	}

	out.Saved, out.Skipped, err = p.store.SaveVideos(ctx, job.ID, res.Videos)
	if err != nil {
		p.setStatus(ctx, job, store.JobFailed, err.Error())
		return out, err
	}
	if err := p.setStatus(ctx, job, store.JobDiscovered, ""); err != nil {
		return out, err
	}

	log.WithFields(logrus.Fields{
		"inserted":   out.Saved,
		"duplicates": out.Skipped,
		"total":      len(res.Videos),
	}).Info("discovery job completed")
	return out, nil
}

func (p *Pipeline) setStatus(ctx context.Context, job *store.Job, status, msg string) error {
	if err := p.store.UpdateJobStatus(ctx, job.ID, status, msg); err != nil {
		p.log.WithError(err).WithField("job_id", job.ID).Error("update job status")
		return err
	}
	job.Status = status
	job.Error = msg
	return nil
}

// Select ranks the analyzed candidates of a job.
func (p *Pipeline) Select(ctx context.Context, jobID string, sel *selector.Selector) (*selector.Selection, error) {
	if _, err := p.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	candidates, err := p.store.ListCandidates(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return sel.Select(ctx, candidates), nil
}

// AnalysisImport is one record produced by the external download and
// analysis stage.
type AnalysisImport struct {
	store.Analysis
	Download *store.Download `json:"download,omitempty"`
}

// ImportStats counts the outcome of an import.
type ImportStats struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// Import stores analysis and download records. A bad record is counted and
// skipped; the error is only non-nil when ctx ends.
func (p *Pipeline) Import(ctx context.Context, records []AnalysisImport) (*ImportStats, error) {
	stats := &ImportStats{}
	for i := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rec := &records[i]
		if err := p.importOne(ctx, rec); err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, err.Error())
			p.log.WithError(err).WithField("content_id", rec.ContentID).Warn("import record failed")
			continue
		}
		stats.Imported++
	}
	return stats, nil
}

func (p *Pipeline) importOne(ctx context.Context, rec *AnalysisImport) error {
	if rec.ContentID == "" {
		return errors.New("record without content_id")
	}
	if rec.QualityScore < 0 || rec.QualityScore > 1 || rec.RelevanceScore < 0 || rec.RelevanceScore > 1 {
		return fmt.Errorf("%s: scores must be within 0..1", rec.ContentID)
	}
	if err := p.store.SaveAnalysis(ctx, &rec.Analysis); err != nil {
		return err
	}
	if rec.Download == nil {
		return nil
	}
	if rec.Download.ContentID == "" {
		rec.Download.ContentID = rec.ContentID
	}
	return p.store.SaveDownload(ctx, rec.Download)
}
