package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/prepflow/config"
	"github.com/target/prepflow/internal/adapters/inapp"
	"github.com/target/prepflow/internal/adapters/llm"
	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/data"
	"github.com/target/prepflow/internal/data/memstore"
	domainjob "github.com/target/prepflow/internal/domain/job"
	"github.com/target/prepflow/internal/observability/notify/pagerduty"
	"github.com/target/prepflow/internal/observability/notify/slack"
	"github.com/target/prepflow/internal/observability/statsd"
	"github.com/target/prepflow/internal/prompt"
	"github.com/target/prepflow/internal/service"
	"github.com/target/prepflow/internal/service/failurenotifier"
	"github.com/target/prepflow/internal/tenant"
	"github.com/target/prepflow/internal/workflow"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Stores        tenant.Stores
	Jobs          *service.JobService
	Dispatcher    *service.Dispatcher
	Reaper        *service.ReaperService
	Lock          core.JobLock
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// ServiceDeps groups dependencies for service initialization. DB and RedisClient are nil when the
// memory store or process-local locking is configured.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger

	// Model overrides the configured model gateway.
	Model core.ModelClient
}

// storeBundle groups the repositories backing the services.
type storeBundle struct {
	stores  tenant.Stores
	reaper  core.ReaperRepository
	lock    core.JobLock
	deduper core.TriggerDeduper
}

// NewServices wires repositories, collaborators and services from configuration.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	observability := buildObservability(logger, cfg.Observability)

	stores, err := buildStores(deps)
	if err != nil {
		return ServiceContainer{}, err
	}

	modelClient := deps.Model
	if modelClient == nil {
		modelClient, err = buildModelClient(cfg.Model, logger)
		if err != nil {
			return ServiceContainer{}, err
		}
	}

	notifier, err := inapp.NewNotifier(inapp.NotifierOptions{
		Records: stores.stores.Records,
		Logger:  logger,
		Metrics: observability.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create in-app notifier: %w", err)
	}

	executor := workflow.NewExecutor(workflow.Options{
		Logger:         logger,
		Metrics:        observability.MetricsSink,
		MaxAttempts:    cfg.Workflow.MaxAttempts,
		Backoff:        cfg.Workflow.Backoff,
		MaxBackoff:     cfg.Workflow.MaxBackoff,
		MaxInlineSleep: cfg.Workflow.MaxInlineSleep,
	})

	dispatcher, err := service.NewDispatcher(service.DispatcherOptions{
		Stores:            stores.stores,
		Executor:          executor,
		Model:             modelClient,
		Notifier:          notifier,
		Prompts:           prompt.NewRegistry(),
		Failures:          observability.FailureNotifier,
		Deduper:           stores.deduper,
		Logger:            logger,
		Metrics:           observability.MetricsSink,
		GenerationSpacing: spacing(cfg.Workflow),
		DedupeWindow:      cfg.Workflow.DedupeWindow,
		MaxAttempts:       cfg.Workflow.MaxAttempts,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create dispatcher: %w", err)
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:            stores.stores.Jobs,
		DefaultLease:    cfg.Runner.JobLease,
		NotifierOptions: domainjob.NotifierOptions{WaitWindow: cfg.Runner.NotifyWindow},
		Logger:          logger,
		Metrics:         observability.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job service: %w", err)
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:      stores.reaper,
		Retention: cfg.Reaper.Retention,
		BatchSize: cfg.Reaper.BatchSize,
		Logger:    logger,
		Metrics:   observability.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create reaper service: %w", err)
	}

	return ServiceContainer{
		Stores:        stores.stores,
		Jobs:          jobs,
		Dispatcher:    dispatcher,
		Reaper:        reaper,
		Lock:          stores.lock,
		Observability: observability,
	}, nil
}

// spacing maps a configured zero onto "no spacing"; the dispatcher reads zero as its default.
func spacing(cfg config.WorkflowConfig) time.Duration {
	if cfg.GenerationSpacing == 0 {
		return -1
	}
	return cfg.GenerationSpacing
}

// buildStores picks the persistence backend and the lock and de-duplication implementation.
func buildStores(deps *ServiceDeps) (storeBundle, error) {
	var b storeBundle

	switch deps.Config.Store.Driver {
	case config.StoreDriverMemory:
		mem := memstore.New(nil)
		b.stores = tenant.Stores{Records: mem.Records, Jobs: mem.Jobs, Steps: mem.Steps}
		b.reaper = mem.Jobs
	default:
		if deps.DB == nil {
			return b, errors.New("database connection is required for the postgres store")
		}
		jobs := data.NewJobRepo(deps.DB, data.RepoConfig{Logger: deps.Logger})
		b.stores = tenant.Stores{
			Records: data.NewTenantStore(deps.DB, nil),
			Jobs:    jobs,
			Steps:   data.NewStepResultRepo(deps.DB, nil),
		}
		b.reaper = jobs
	}

	if deps.RedisClient != nil {
		b.lock = data.NewRedisJobLock(deps.RedisClient)
		b.deduper = data.NewRedisTriggerDeduper(deps.RedisClient)
	} else {
		locks := memstore.NewLocks(nil)
		b.lock = locks
		b.deduper = locks
	}
	return b, nil
}

// buildModelClient connects the language model gateway. Without a configured URL every model call fails,
// which fails generation and grading jobs while the rest of the system keeps working.
//
//nolint:ireturn // the disabled client and the gateway client share the port.
func buildModelClient(cfg config.ModelConfig, logger *slog.Logger) (core.ModelClient, error) {
	if !cfg.Configured() {
		logger.Warn("model gateway is not configured; generation and grading jobs will fail")
		return disabledModel{}, nil
	}
	client, err := llm.New(llm.Options{
		URL:    cfg.URL,
		Model:  cfg.Name,
		APIKey: cfg.APIKey,
		OAuth2: llm.OAuth2Options{
			ClientID:     cfg.OAuth2ClientID,
			ClientSecret: cfg.OAuth2ClientSecret,
			TokenURL:     cfg.OAuth2TokenURL,
			Scopes:       cfg.OAuth2Scopes,
		},
		ContentPath: cfg.ContentPath,
		Timeout:     cfg.Timeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}
	return client, nil
}

var errModelDisabled = errors.New("model gateway is not configured")

type disabledModel struct{}

func (disabledModel) Complete(context.Context, core.ModelRequest) (string, error) {
	return "", errModelDisabled
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	var sink statsd.Sink
	if cfg.Metrics.Enabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			sink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     sink,
		FailureNotifier: buildFailureNotifier(logger, cfg.Alerts),
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.AlertsConfig) *failurenotifier.Service {
	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.SlackEnabled() {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.SlackWebhookURL,
			Channel:    cfg.SlackChannel,
			Username:   cfg.SlackUsername,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDutyEnabled() {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDutyRoutingKey,
			Source:     cfg.PagerDutySource,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:      logger,
		Sinks:       sinks,
		IgnoreKinds: cfg.IgnoreErrorKinds,
	})
}
