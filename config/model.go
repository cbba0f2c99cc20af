package config

import (
	"strings"
	"time"
)

// ModelConfig contains the language model gateway configuration.
type ModelConfig struct {
	URL    string `env:"MODEL_URL"`
	Name   string `env:"MODEL_NAME"    envDefault:"gpt-4o-mini"`
	APIKey string `env:"MODEL_API_KEY"`

	Timeout time.Duration `env:"MODEL_TIMEOUT" envDefault:"60s"`

	// ContentPath is a JMESPath expression selecting the reply text in the gateway's response.
	ContentPath string `env:"MODEL_CONTENT_PATH" envDefault:"choices[0].message.content"`

	// OAuth2 client credentials replace the API key when a client id is set.
	OAuth2ClientID     string   `env:"MODEL_OAUTH2_CLIENT_ID"`
	OAuth2ClientSecret string   `env:"MODEL_OAUTH2_CLIENT_SECRET"`
	OAuth2TokenURL     string   `env:"MODEL_OAUTH2_TOKEN_URL"`
	OAuth2Scopes       []string `env:"MODEL_OAUTH2_SCOPES"        envSeparator:","`
}

// Sanitize trims values and bounds the timeout.
func (m *ModelConfig) Sanitize() {
	m.URL = strings.TrimSpace(m.URL)
	m.ContentPath = strings.TrimSpace(m.ContentPath)
	m.OAuth2ClientID = strings.TrimSpace(m.OAuth2ClientID)
	m.OAuth2TokenURL = strings.TrimSpace(m.OAuth2TokenURL)
	if m.Timeout <= 0 {
		m.Timeout = 60 * time.Second
	}
}

// Configured reports whether a gateway URL is set.
func (m *ModelConfig) Configured() bool { return m.URL != "" }
