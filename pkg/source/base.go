package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elonfeng/viralclips/pkg/workpool"
)

const userAgent = "Mozilla/5.0 (compatible; viralclips/1.0)"

// Option customizes a client at construction.
type Option func(*base)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *base) { b.http = c }
}

// WithLogger sets the logger used for filtered items and swallowed failures.
func WithLogger(log logrus.FieldLogger) Option {
	return func(b *base) { b.log = log }
}

// WithRetry replaces the default retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(b *base) { b.retry = cfg }
}

// WithRateLimit sets the per-minute request budget. Non-positive values are
// rejected when the client is built.
func WithRateLimit(perMinute int) Option {
	return func(b *base) { b.perMinute = perMinute }
}

// WithFilter replaces the content filter.
func WithFilter(f *ContentFilter) Option {
	return func(b *base) { b.filter = f }
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(u string) Option {
	return func(b *base) { b.baseURL = u }
}

// WithPool sets the executor used for detail fan-out.
func WithPool(p *workpool.Pool) Option {
	return func(b *base) { b.pool = p }
}

// WithClock sets the scoring reference clock.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// base is the plumbing shared by every client variant.
type base struct {
	platform  Platform
	http      *http.Client
	log       logrus.FieldLogger
	limiter   *RateLimiter
	perMinute int
	retry     RetryConfig
	filter    *ContentFilter
	baseURL   string
	pool      *workpool.Pool
	now       func() time.Time
}

func newBase(p Platform, perMinute int, ceiling float64, baseURL string, opts []Option) (base, error) {
	b := base{
		platform:  p,
		perMinute: perMinute,
		retry:     DefaultRetryConfig(),
		baseURL:   baseURL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&b)
	}

	if b.http == nil {
		b.http = &http.Client{Timeout: 30 * time.Second}
	}
	if b.log == nil {
		b.log = logrus.StandardLogger()
	}
	b.log = b.log.WithField("platform", string(p))
	if b.filter == nil {
		b.filter = NewContentFilter(ceiling, nil)
	}
	if b.pool == nil {
		b.pool = workpool.New(workpool.DefaultSize)
	}

	limiter, err := NewRateLimiter(b.perMinute)
	if err != nil {
		return base{}, fmt.Errorf("%s client: %w", p, err)
	}
	b.limiter = limiter
	return b, nil
}

// Platform returns the platform the client discovers on.
func (b *base) Platform() Platform { return b.platform }

// do runs one logical request: every attempt waits for the rate limiter,
// and transient failures are retried.
func (b *base) do(ctx context.Context, fn func(context.Context) error) error {
	return withRetry(ctx, b.retry, func(ctx context.Context) error {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		return fn(ctx)
	})
}

// getJSON fetches url and decodes the JSON body into out.
func (b *base) getJSON(ctx context.Context, url string, out any) error {
	return b.do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w: %v", ErrBadRequest, err)
		}
		req.Header.Set("Accept", "application/json")
		return b.send(req, out)
	})
}

// postJSON sends body as JSON and decodes the response into out.
func (b *base) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return b.do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w: %v", ErrBadRequest, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return b.send(req, out)
	})
}

// getBody fetches url and returns the raw body.
func (b *base) getBody(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := b.do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w: %v", ErrBadRequest, err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := b.http.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", b.platform, err)
		}
		defer resp.Body.Close()

		if err := checkStatus(b.platform, resp); err != nil {
			return err
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		return err
	})
	return body, err
}

func (b *base) send(req *http.Request, out any) error {
	req.Header.Set("User-Agent", userAgent)
	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", b.platform, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(b.platform, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", b.platform, err)
	}
	return nil
}

// finish scores, filters and orders normalized videos. Items older than the
// timeframe are dropped when timeframeHours is positive.
func (b *base) finish(videos []Video, timeframeHours, limit int) []Video {
	now := b.now()
	for i := range videos {
		videos[i].applyScore(now)
	}

	videos = b.filter.Apply(videos, b.log)

	if timeframeHours > 0 {
		cutoff := now.Add(-time.Duration(timeframeHours) * time.Hour)
		recent := videos[:0]
		for _, v := range videos {
			if !v.UploadDate.Before(cutoff) {
				recent = append(recent, v)
			}
		}
		videos = recent
	}

	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].TrendingScore > videos[j].TrendingScore
	})
	if limit > 0 && len(videos) > limit {
		videos = videos[:limit]
	}
	return videos
}

// settle applies the failure policy: permanent errors surface, anything
// else is logged and becomes an empty result.
func (b *base) settle(query string, videos []Video, err error) ([]Video, error) {
	if err == nil {
		if videos == nil {
			videos = []Video{}
		}
		b.log.WithFields(logrus.Fields{"query": query, "count": len(videos)}).Info("discovery finished")
		return videos, nil
	}
	if IsPermanent(err) {
		return nil, err
	}
	b.log.WithError(err).WithField("query", query).Warn("discovery failed, returning no results")
	return []Video{}, nil
}
