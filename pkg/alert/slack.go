package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Slack sends notifications via Slack incoming webhook.
type Slack struct {
	client     *http.Client
	webhookURL string
}

// NewSlack creates a new Slack notifier.
func NewSlack(webhookURL string) *Slack {
	return &Slack{client: defaultClient(), webhookURL: webhookURL}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, n *Notification) error {
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": "🎬 " + n.Title},
		},
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Top score:* %.1f | *Platforms:* %d\n%s", n.TopScore, len(n.Platforms), n.Body),
			},
		},
	}

	if videos := n.listed(); len(videos) > 0 {
		elements := make([]map[string]any, 0, len(videos))
		for _, v := range videos {
			elements = append(elements, map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("<%s|%s> [%s, %.1f]", v.URL, v.Title, v.Platform, v.TrendingScore),
			})
		}
		blocks = append(blocks, map[string]any{"type": "context", "elements": elements})
	}

	body, err := json.Marshal(map[string]any{"blocks": blocks})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	return postJSON(ctx, s.client, "slack webhook", s.webhookURL, body, nil)
}
