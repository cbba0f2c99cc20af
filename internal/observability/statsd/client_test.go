package statsd

import (
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	t.Parallel()

	prefixes := map[string]string{
		"  prepflow.api  ": "prepflow.api",
		"..foo..":          "foo",
		".":                "",
	}
	for in, want := range prefixes {
		assert.Equal(t, want, sanitizePrefix(in), in)
	}

	names := map[string]string{
		" job/transition ": "job_transition",
		"workflow..step":   "workflow.step",
		"two  spaces":      "two__spaces",
	}
	for in, want := range names {
		assert.Equal(t, want, normalizeMetricName(in), in)
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{"env": "prod", " service ": " prepflow "}
	local := map[string]string{"result": " success ", "": "ignored", "env": "stage"}

	assert.Equal(t, "|#env:stage,result:success,service:prepflow", formatTags(global, local))
	assert.Empty(t, formatTags(nil, nil))
}

func TestClientLine(t *testing.T) {
	t.Parallel()

	c := &Client{prefix: "prepflow", globalTags: map[string]string{"env": "test"}}
	assert.Equal(t, "prepflow.job.transition:1|c|#env:test,kind:grading",
		c.line("job.transition", "1", "c", map[string]string{"kind": "grading"}))
	assert.Empty(t, c.line("  ", "1", "c", nil))
}

func TestClientWritesOverPipe(t *testing.T) {
	t.Parallel()

	clientConn, peer := net.Pipe()
	defer peer.Close()
	c := &Client{prefix: "prepflow", globalTags: map[string]string{}, conn: clientConn, logger: slog.Default()}

	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := peer.Read(buf)
		done <- string(buf[:n])
	}()
	c.Timing("job.duration", 1500*time.Millisecond, nil)

	select {
	case got := <-done:
		assert.Equal(t, "prepflow.job.duration:1500|ms", got)
	case <-time.After(time.Second):
		t.Fatal("no metric written")
	}

	require.True(t, c.Enabled())
	require.NoError(t, c.Close())
	assert.False(t, c.Enabled())
	require.NoError(t, c.Close())

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	assert.NoError(t, nilClient.Close())
	nilClient.Count("ignored", 1, nil)
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, c.Enabled(), "blank address stays disabled")

	_, err = NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	tags := map[string]string{"kind": "grading", "result": "retry"}
	r.Count("workflow.step", 1, tags)
	r.Count("workflow.step", 2, map[string]string{"kind": "generation"})
	r.Timing("workflow.step.duration", 2*time.Second, tags)
	tags["kind"] = "mutated"

	assert.Equal(t, int64(3), r.Total("workflow.step", nil))
	assert.Equal(t, int64(1), r.Total("workflow.step", map[string]string{"kind": "grading"}))
	timings := r.Samples("workflow.step.duration")
	require.Len(t, timings, 1)
	assert.InDelta(t, 2000.0, timings[0].Value, 0.001)
	assert.Len(t, r.Samples(""), 3)
}
