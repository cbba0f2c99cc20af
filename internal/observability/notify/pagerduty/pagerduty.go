// Package pagerduty raises PagerDuty incidents for critical job failures.
package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/target/prepflow/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint.
	Endpoint string
	// CriticalOnly drops failures whose severity is not critical; transient and model output failures
	// then only reach chat sinks.
	CriticalOnly bool
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	routingKey   string
	source       string
	endpoint     string
	criticalOnly bool
	poster       notify.Poster
}

var _ notify.Sink = (*Client)(nil)

// NewClient constructs a PagerDuty events client. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	return &Client{
		routingKey:   key,
		source:       notify.OrDefault(strings.TrimSpace(cfg.Source), "prepflow"),
		endpoint:     notify.OrDefault(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		criticalOnly: cfg.CriticalOnly,
		poster:       notify.NewPoster("pagerduty", cfg.Client, cfg.Timeout, cfg.RetryLimit),
	}, nil
}

// SendJobFailure submits a trigger event.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	severity := strings.ToLower(notify.OrDefault(payload.Severity, notify.SeverityCritical))
	if c.criticalOnly && severity != notify.SeverityCritical {
		return nil
	}
	body, err := json.Marshal(c.event(payload, severity))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}
	return c.poster.Post(ctx, c.endpoint, body)
}

func (c *Client) event(p notify.JobFailurePayload, severity string) map[string]any {
	at := p.OccurredAt.UTC()
	if p.OccurredAt.IsZero() {
		at = time.Now().UTC()
	}

	details := map[string]any{
		"job_id":     p.JobID,
		"tenant_id":  p.TenantID,
		"kind":       p.Kind,
		"step":       p.Step,
		"error":      p.Error,
		"error_kind": p.ErrorKind,
	}
	for k, v := range p.Metadata {
		if _, taken := details[k]; !taken {
			details[k] = v
		}
	}

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		// One incident per job, however many sinks retry.
		"dedup_key": strings.Trim(p.Kind+":"+p.JobID, ":"),
		"payload": map[string]any{
			"summary": fmt.Sprintf("%s job %s failed: %s",
				notify.OrDefault(p.Kind, "unknown"), notify.OrDefault(p.JobID, "unknown"),
				notify.OrDefault(p.ErrorKind, "other")),
			"severity":       severity,
			"source":         c.source,
			"component":      notify.OrDefault(p.Step, "workflow"),
			"timestamp":      at.Format(time.RFC3339),
			"custom_details": details,
		},
	}
}
