package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, SeverityWarning, SeverityFor("rate_limit"))
	assert.Equal(t, SeverityWarning, SeverityFor("api_timeout"))
	assert.Equal(t, SeverityError, SeverityFor("validation_error"))
	assert.Equal(t, SeverityError, SeverityFor("invalid_response"))
	assert.Equal(t, SeverityCritical, SeverityFor("other"))
	assert.Equal(t, SeverityCritical, SeverityFor(""))
}

func TestPosterStopsOnContextDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoster("test", nil, time.Second, 5)
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := p.Post(ctx, srv.URL, []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSinkFunc(t *testing.T) {
	var got JobFailurePayload
	sink := SinkFunc(func(_ context.Context, p JobFailurePayload) error {
		got = p
		return nil
	})
	require.NoError(t, sink.SendJobFailure(context.Background(), JobFailurePayload{JobID: "job-1"}))
	assert.Equal(t, "job-1", got.JobID)

	var nilSink SinkFunc
	assert.NoError(t, nilSink.SendJobFailure(context.Background(), JobFailurePayload{}))
}
