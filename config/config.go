// Package config holds the environment-driven configuration of the prepflow services.
package config

import (
	"os"
	"strings"
)

// AppConfig composes the domain-specific configuration from the other files in this package.
//
// Values are loaded from environment variables with github.com/caarlos0/env:
//   - database.go: store driver, PostgreSQL and Redis
//   - http.go: HTTP server
//   - services.go: service modes, job runner and reaper
//   - workflow.go: retry budget, backoff and sleeps
//   - model.go: language model gateway
//   - observability.go: metrics and failure notifications
type AppConfig struct {
	// IsDev enables development conveniences such as text logs.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Store    StoreConfig
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP HTTPConfig

	// Services is a comma-delimited list of service modes to run.
	Services string `env:"SERVICES" envDefault:"http,job-runner,reaper"`

	Runner   RunnerConfig
	Reaper   ReaperConfig
	Workflow WorkflowConfig
	Model    ModelConfig

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
func (c *AppConfig) Sanitize() {
	c.Store.Sanitize()
	c.HTTP.Sanitize()
	c.Runner.Sanitize()
	c.Reaper.Sanitize()
	c.Workflow.Sanitize()
	c.Model.Sanitize()
	c.Observability.Sanitize()
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.detectDevMode()
}

// detectDevMode falls back to APP_ENV when DEV is unset.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) enabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool { return c.enabled(ServiceModeHTTP) }

// IsJobRunnerEnabled returns true if the job runner service is enabled.
func (c *AppConfig) IsJobRunnerEnabled() bool { return c.enabled(ServiceModeJobRunner) }

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool { return c.enabled(ServiceModeReaper) }
