package config

import (
	"slices"
	"strings"
	"time"

	obserrors "github.com/target/prepflow/internal/observability/errors"
)

const defaultMetricsPrefix = "prepflow"

// ObservabilityConfig controls StatsD metrics and operator alerts for failed jobs.
type ObservabilityConfig struct {
	Metrics MetricsConfig `envPrefix:"METRICS_"`
	Alerts  AlertsConfig  `envPrefix:"ALERTS_"`
}

// Sanitize applies guardrails to metrics and alerts.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Alerts.Sanitize()
}

// MetricsConfig controls the StatsD sink. An empty address disables metrics.
type MetricsConfig struct {
	StatsdAddress string `env:"STATSD_ADDRESS"`
	Prefix        string `env:"PREFIX"         envDefault:"prepflow"`
}

// Sanitize trims the address and restores the default prefix.
func (c *MetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.Prefix == "" {
		c.Prefix = defaultMetricsPrefix
	}
}

// Enabled reports whether metrics are emitted.
func (c MetricsConfig) Enabled() bool { return c.StatsdAddress != "" }

// AlertsConfig controls the failed-job alert sinks. A sink is active once its credential is set.
type AlertsConfig struct {
	Timeout    time.Duration `env:"TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"RETRY_LIMIT" envDefault:"3"`
	// IgnoreErrorKinds lists failure kinds that never page anyone, e.g. validation_error.
	IgnoreErrorKinds []string `env:"IGNORE_ERROR_KINDS" envSeparator:","`

	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`
	SlackChannel    string `env:"SLACK_CHANNEL"`
	SlackUsername   string `env:"SLACK_USERNAME"    envDefault:"prepflow"`

	PagerDutyRoutingKey string `env:"PAGERDUTY_ROUTING_KEY"`
	PagerDutySource     string `env:"PAGERDUTY_SOURCE"      envDefault:"prepflow"`
}

// Sanitize clamps delivery settings and keeps only known error kinds.
func (c *AlertsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.RetryLimit = max(c.RetryLimit, 0)

	kinds := make([]string, 0, len(c.IgnoreErrorKinds))
	for _, k := range c.IgnoreErrorKinds {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || string(obserrors.ParseKind(k)) != k || slices.Contains(kinds, k) {
			continue
		}
		kinds = append(kinds, k)
	}
	c.IgnoreErrorKinds = kinds

	c.SlackWebhookURL = strings.TrimSpace(c.SlackWebhookURL)
	c.SlackChannel = strings.TrimSpace(c.SlackChannel)
	if c.SlackUsername = strings.TrimSpace(c.SlackUsername); c.SlackUsername == "" {
		c.SlackUsername = defaultMetricsPrefix
	}
	c.PagerDutyRoutingKey = strings.TrimSpace(c.PagerDutyRoutingKey)
	if c.PagerDutySource = strings.TrimSpace(c.PagerDutySource); c.PagerDutySource == "" {
		c.PagerDutySource = defaultMetricsPrefix
	}
}

// SlackEnabled reports whether failed jobs are posted to Slack.
func (c AlertsConfig) SlackEnabled() bool { return c.SlackWebhookURL != "" }

// PagerDutyEnabled reports whether failed jobs raise PagerDuty events.
func (c AlertsConfig) PagerDutyEnabled() bool { return c.PagerDutyRoutingKey != "" }
