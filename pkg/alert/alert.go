// Package alert notifies chat channels and webhooks about fresh viral
// discoveries.
package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/elonfeng/viralclips/pkg/source"
)

// maxListed caps how many videos a chat message links to.
const maxListed = 5

// Notification is the data sent to alert destinations.
type Notification struct {
	Title     string         `json:"title"`
	Niche     string         `json:"niche"`
	JobID     string         `json:"job_id,omitempty"`
	Body      string         `json:"body"`
	TopScore  float64        `json:"top_score"`
	Platforms []string       `json:"platforms"`
	Videos    []source.Video `json:"videos"`
	SentAt    time.Time      `json:"sent_at"`
}

// NewDiscoveryNotification summarizes the best top videos of a discovery
// run. videos must already be sorted by score.
func NewDiscoveryNotification(niche, jobID string, videos []source.Video, top int) *Notification {
	if top > 0 && len(videos) > top {
		videos = videos[:top]
	}

	seen := make(map[string]bool)
	var platforms []string
	for _, v := range videos {
		if !seen[string(v.Platform)] {
			seen[string(v.Platform)] = true
			platforms = append(platforms, string(v.Platform))
		}
	}
	sort.Strings(platforms)

	n := &Notification{
		Title:     fmt.Sprintf("Viral %s clips", niche),
		Niche:     niche,
		JobID:     jobID,
		Body:      fmt.Sprintf("%d trending videos found for %q", len(videos), niche),
		Platforms: platforms,
		Videos:    videos,
		SentAt:    time.Now().UTC(),
	}
	if len(videos) > 0 {
		n.TopScore = videos[0].TrendingScore
	}
	return n
}

// listed returns the videos a chat message links to.
func (n *Notification) listed() []source.Video {
	if len(n.Videos) > maxListed {
		return n.Videos[:maxListed]
	}
	return n.Videos
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers. One failing
// destination does not stop the others.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func defaultClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// postJSON delivers body and fails on any non-2xx answer.
func postJSON(ctx context.Context, client *http.Client, name, url string, body []byte, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s status %d", name, resp.StatusCode)
	}
	return nil
}
