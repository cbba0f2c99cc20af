package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/prepflow/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test", Channel: "#alerts", Username: "bot"})
	require.NoError(t, err)

	msg := client.message(notify.JobFailurePayload{
		JobID:      "job-1",
		TenantID:   "tenant-a",
		Kind:       "grading",
		Step:       "validate-response",
		Error:      "response validation failed: overallScore <15> out of range",
		ErrorKind:  "validation_error",
		OccurredAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Metadata:   map[string]string{"submission_id": "sub-1"},
	})

	assert.Equal(t, "bot", msg["username"])
	assert.Equal(t, "#alerts", msg["channel"])
	text, ok := msg["text"].(string)
	require.True(t, ok)
	for _, want := range []string{"job-1", "grading", "tenant-a", "validate-response", "validation_error",
		"&lt;15&gt;", "submission_id: sub-1", "2024-06-01T12:00:00Z", "Severity: critical"} {
		assert.Contains(t, text, want)
	}
}

func TestSendJobFailureRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.True(t, json.Valid(body))
		if calls.Add(1) == 1 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1})
	require.NoError(t, err)

	require.NoError(t, client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendJobFailureReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	require.NoError(t, err)

	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_payload")
}
