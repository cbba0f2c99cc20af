package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/prepflow/internal/core"
	obserrors "github.com/target/prepflow/internal/observability/errors"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{URL: "http://gateway", ContentPath: "choices[0"})
	require.ErrorContains(t, err, "invalid content path")

	_, err = New(Options{URL: "http://gateway", OAuth2: OAuth2Options{ClientID: "id"}})
	require.ErrorContains(t, err, "token URL")
}

func TestComplete_SendsChatRequest(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"{\"overallScore\": 7}"}}]}`)
	}))
	defer srv.Close()

	c, err := New(Options{URL: srv.URL, Model: "grader-large", APIKey: "secret"})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), core.ModelRequest{
		Instructions: "Grade this essay.",
		Subject:      "Essay text",
		Schema:       "grading.v1/writing",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"overallScore": 7}`, out)

	assert.Equal(t, "grader-large", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: "Grade this essay."}, got.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "Essay text"}, got.Messages[1])
	assert.Equal(t, "json_object", got.ResponseFormat["type"])
}

func TestComplete_CustomContentPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"output":{"parsed":{"questions":[]}}}`)
	}))
	defer srv.Close()

	c, err := New(Options{URL: srv.URL, ContentPath: "output.parsed"})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), core.ModelRequest{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"questions":[]}`, out)
}

func TestComplete_ErrorsClassify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		delay   time.Duration
		want    obserrors.Kind
		wantErr string
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`, want: obserrors.KindRateLimit},
		{name: "server error", status: http.StatusBadGateway, want: obserrors.KindOther},
		{name: "body text does not decide", status: http.StatusInternalServerError, body: "failed to parse upstream: timeout", want: obserrors.KindOther},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, want: obserrors.KindAPITimeout},
		{name: "timeout", status: http.StatusOK, delay: 200 * time.Millisecond, want: obserrors.KindAPITimeout},
		{name: "envelope is not json", status: http.StatusOK, body: `<html>`, want: obserrors.KindInvalidResponse},
		{name: "no content", status: http.StatusOK, body: `{"choices":[]}`, want: obserrors.KindInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.delay > 0 {
					select {
					case <-time.After(tt.delay):
					case <-r.Context().Done():
						return
					}
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c, err := New(Options{URL: srv.URL, Timeout: 50 * time.Millisecond})
			require.NoError(t, err)

			_, err = c.Complete(context.Background(), core.ModelRequest{Instructions: "x", Subject: "y"})
			require.Error(t, err)
			assert.Equal(t, tt.want, obserrors.ClassifyKind(err), err.Error())
		})
	}
}

func TestComplete_OAuth2ClientCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`)
		default:
			assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
		}
	}))
	defer srv.Close()

	c, err := New(Options{
		URL:    srv.URL + "/v1/chat",
		APIKey: "ignored",
		OAuth2: OAuth2Options{ClientID: "prepflow", ClientSecret: "s3cret", TokenURL: srv.URL + "/token"},
	})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), core.ModelRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Code: 429, Body: "please parse this later"}
	assert.Equal(t, "model gateway returned HTTP 429 Too Many Requests", err.Error())
	assert.NotContains(t, (&StatusError{Code: 500, Body: "secret detail"}).Error(), "secret detail")

	long := &StatusError{Code: 500, Body: snippet([]byte(strings.Repeat("x", 2000)))}
	assert.Len(t, long.Body, maxErrorBodyBytes)
}

func TestSnippet_KeepsRunesWhole(t *testing.T) {
	// Two-byte runes straddle the cut when prefixed by one ASCII byte.
	s := snippet([]byte("a" + strings.Repeat("é", maxErrorBodyBytes)))
	assert.True(t, utf8.ValidString(s))
	assert.LessOrEqual(t, len(s), maxErrorBodyBytes)
	assert.Equal(t, maxErrorBodyBytes-1, len(s))
}
