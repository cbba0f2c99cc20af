package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/prepflow/internal/observability/notify"
)

type capture struct {
	mu   sync.Mutex
	got  []notify.JobFailurePayload
	fail error
}

func (c *capture) SendJobFailure(_ context.Context, p notify.JobFailurePayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, p)
	return c.fail
}

func TestServiceNotifyJobFailure(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	first, second := &capture{}, &capture{fail: errors.New("webhook down")}
	svc := NewService(Options{
		Sinks: []SinkRegistration{{Name: "first", Sink: first}, {Sink: second}, {Name: "nil"}},
		Now:   func() time.Time { return at },
	})
	require.True(t, svc.Enabled())

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1", ErrorKind: "rate_limit"})

	require.Len(t, first.got, 1)
	require.Len(t, second.got, 1, "a failing sink does not stop delivery to others")
	assert.Equal(t, notify.SeverityWarning, first.got[0].Severity)
	assert.Equal(t, at, first.got[0].OccurredAt)
}

func TestServiceKeepsExplicitSeverity(t *testing.T) {
	sink := &capture{}
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "capture", Sink: sink}}})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1", Severity: notify.SeverityError})

	require.Len(t, sink.got, 1)
	assert.Equal(t, notify.SeverityError, sink.got[0].Severity)
}

func TestServiceIgnoresKinds(t *testing.T) {
	sink := &capture{}
	svc := NewService(Options{
		Sinks:       []SinkRegistration{{Name: "capture", Sink: sink}},
		IgnoreKinds: []string{"validation_error"},
	})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1", ErrorKind: "validation_error"})
	assert.Empty(t, sink.got)
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(Options{})
	assert.False(t, svc.Enabled())
	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1"})

	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())
}
