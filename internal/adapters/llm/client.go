// Package llm implements core.ModelClient against an HTTP chat-completion gateway.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/target/prepflow/internal/core"
)

// Client defaults.
const (
	DefaultTimeout     = 60 * time.Second
	DefaultContentPath = "choices[0].message.content"
	maxResponseBytes   = 1 << 20
	maxErrorBodyBytes  = 512
)

// OAuth2Options enable client-credentials authentication when ClientID is set.
type OAuth2Options struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Options configure the gateway client.
type Options struct {
	URL    string // Required: chat-completion endpoint
	Model  string // Optional: model name sent with every request
	APIKey string // Optional: bearer token; ignored when OAuth2 is configured
	OAuth2 OAuth2Options

	// ContentPath is a JMESPath expression selecting the reply text in the response body.
	ContentPath string
	Timeout     time.Duration
	HTTPClient  *http.Client // Optional: base transport
	Logger      *slog.Logger
}

// StatusError reports a non-2xx gateway response. Body is kept for logs only; the message and the
// failure kind depend on the status code alone.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model gateway returned HTTP %d %s", e.Code, http.StatusText(e.Code))
}

// ErrorKind maps the status code to the workflow failure kind.
func (e *StatusError) ErrorKind() string {
	switch e.Code {
	case http.StatusTooManyRequests:
		return "rate_limit"
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return "api_timeout"
	default:
		return "other"
	}
}

// Client calls the gateway.
type Client struct {
	url         string
	model       string
	apiKey      string
	contentPath string
	http        *http.Client
	logger      *slog.Logger
}

var _ core.ModelClient = (*Client)(nil)

// New validates opts and builds a Client.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("model gateway URL is required")
	}
	path := opts.ContentPath
	if strings.TrimSpace(path) == "" {
		path = DefaultContentPath
	}
	if _, err := jmespath.Compile(path); err != nil {
		return nil, fmt.Errorf("invalid content path %q: %w", path, err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	hc := base
	if opts.OAuth2.ClientID != "" {
		if opts.OAuth2.TokenURL == "" {
			return nil, errors.New("oauth2 token URL is required")
		}
		cc := clientcredentials.Config{
			ClientID:     opts.OAuth2.ClientID,
			ClientSecret: opts.OAuth2.ClientSecret,
			TokenURL:     opts.OAuth2.TokenURL,
			Scopes:       opts.OAuth2.Scopes,
		}
		hc = cc.Client(context.WithValue(context.Background(), oauth2.HTTPClient, base))
	} else {
		copied := *base
		hc = &copied
	}
	hc.Timeout = timeout

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		url:         opts.URL,
		model:       opts.Model,
		contentPath: path,
		http:        hc,
		logger:      logger.With("component", "llm_client"),
	}
	if opts.OAuth2.ClientID == "" {
		c.apiKey = opts.APIKey
	}
	return c, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model,omitempty"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Complete sends the instructions as the system message and the subject as the user message, and
// returns the reply text selected by the content path.
func (c *Client) Complete(ctx context.Context, req core.ModelRequest) (string, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.Instructions},
			{Role: "user", Content: req.Subject},
		},
	}
	if req.Schema != "" {
		body.ResponseFormat = map[string]any{"type": "json_object"}
		body.Metadata = map[string]any{"schema": req.Schema}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode model request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build model request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read model response: %w", err)
	}
	c.logger.DebugContext(ctx, "model call finished",
		"status", resp.StatusCode,
		"schema", req.Schema,
		"duration", time.Since(start),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Code: resp.StatusCode, Body: snippet(raw)}
		c.logger.WarnContext(ctx, "model gateway error",
			"status", resp.StatusCode,
			"schema", req.Schema,
			"body", statusErr.Body,
		)
		return "", statusErr
	}
	return c.extract(raw)
}

func (c *Client) extract(raw []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("parse model response envelope: %w", err)
	}
	v, err := jmespath.Search(c.contentPath, doc)
	if err != nil {
		return "", fmt.Errorf("evaluate content path: %w", err)
	}
	switch content := v.(type) {
	case string:
		if strings.TrimSpace(content) == "" {
			return "", errors.New("parse model response: empty content")
		}
		return content, nil
	case nil:
		return "", errors.New("parse model response: content path matched nothing")
	default:
		// Some gateways return the JSON reply already decoded.
		out, err := json.Marshal(content)
		if err != nil {
			return "", fmt.Errorf("parse model response content: %w", err)
		}
		return string(out), nil
	}
}

// snippet trims raw to at most maxErrorBodyBytes without splitting a UTF-8 sequence.
func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) <= maxErrorBodyBytes {
		return s
	}
	cut := maxErrorBodyBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
