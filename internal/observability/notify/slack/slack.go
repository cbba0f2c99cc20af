// Package slack posts job failure alerts to a Slack incoming webhook.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/target/prepflow/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client delivers job failure notifications to a Slack webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	poster     notify.Poster
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}
	return &Client{
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   notify.OrDefault(strings.TrimSpace(cfg.Username), "prepflow"),
		poster:     notify.NewPoster("slack", cfg.Client, cfg.Timeout, cfg.RetryLimit),
	}, nil
}

// SendJobFailure posts a formatted message to Slack.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.message(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	return c.poster.Post(ctx, c.webhookURL, body)
}

func (c *Client) message(p notify.JobFailurePayload) map[string]any {
	var b strings.Builder
	b.WriteString("*Job failed*")
	if p.JobID != "" {
		fmt.Fprintf(&b, " `%s`", escape(p.JobID))
	}
	if p.Kind != "" {
		fmt.Fprintf(&b, " (%s)", escape(p.Kind))
	}
	b.WriteByte('\n')

	field(&b, "Severity", notify.OrDefault(p.Severity, notify.SeverityCritical))
	field(&b, "Tenant", escape(p.TenantID))
	field(&b, "Step", escape(p.Step))
	field(&b, "Error kind", p.ErrorKind)
	field(&b, "Error", escape(p.Error))
	if len(p.Metadata) > 0 {
		b.WriteString("• Metadata:\n")
		for _, k := range slices.Sorted(maps.Keys(p.Metadata)) {
			fmt.Fprintf(&b, "    • %s: %s\n", escape(k), escape(p.Metadata[k]))
		}
	}
	at := p.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	b.WriteString("• Timestamp: ")
	b.WriteString(at.UTC().Format(time.RFC3339))

	msg := map[string]any{"text": b.String(), "username": c.username}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func field(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "• %s: %s\n", label, value)
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string { return slackEscaper.Replace(s) }
