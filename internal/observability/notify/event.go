// Package notify defines the terminal job failure event and the sinks that deliver it to operators.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
)

// SeverityFor maps a classified error kind to an alert severity. Exhausted transient failures warn;
// bad model output is an error; anything unclassified is critical.
func SeverityFor(errorKind string) string {
	switch errorKind {
	case "api_timeout", "rate_limit":
		return SeverityWarning
	case "invalid_response", "validation_error":
		return SeverityError
	default:
		return SeverityCritical
	}
}

// JobFailurePayload is the data emitted when a job fails terminally.
type JobFailurePayload struct {
	JobID      string
	TenantID   string
	Kind       string
	Step       string
	Error      string
	ErrorKind  string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming job failure notifications.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements the Sink interface.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}

// Poster sends JSON bodies to a webhook with linear backoff between attempts.
type Poster struct {
	Client  *http.Client
	Retries int
	// Name prefixes error messages, e.g. "slack".
	Name string
}

// NewPoster builds a Poster, creating an HTTP client with timeout when hc is nil.
func NewPoster(name string, hc *http.Client, timeout time.Duration, retries int) Poster {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return Poster{Client: hc, Retries: max(retries, 0), Name: name}
}

// Post delivers body to url, retrying non-2xx replies and transport errors.
func (p Poster) Post(ctx context.Context, url string, body []byte) error {
	var lastErr error
	for attempt := range p.Retries + 1 {
		if attempt > 0 {
			t := time.NewTimer(time.Duration(attempt) * 200 * time.Millisecond)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if lastErr = p.post(ctx, url, body); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (p Poster) post(ctx context.Context, url string, body []byte) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", p.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.Name, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close response body: %w", cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, rerr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if rerr != nil {
			return fmt.Errorf("read %s error response: %w", p.Name, rerr)
		}
		return fmt.Errorf("%s %s: %s", p.Name, resp.Status, strings.TrimSpace(string(msg)))
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain %s response body: %w", p.Name, err)
	}
	return nil
}

// OrDefault returns value, or fallback when value is blank.
func OrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
