package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{client: defaultClient(), webhookURL: webhookURL}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	var links []string
	for _, v := range n.listed() {
		links = append(links, fmt.Sprintf("• [%s](%s) %s · %.1f", v.Title, v.URL, v.Platform, v.TrendingScore))
	}

	embed := map[string]any{
		"title": "🎬 " + n.Title,
		"description": fmt.Sprintf("**Top score:** %.1f | **Platforms:** %s\n\n%s\n\n%s",
			n.TopScore, strings.Join(n.Platforms, ", "), n.Body, strings.Join(links, "\n")),
		"color":     0xE1306C,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}
	return postJSON(ctx, d.client, "discord webhook", d.webhookURL, body, nil)
}
