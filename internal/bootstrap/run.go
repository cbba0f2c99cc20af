package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/target/prepflow/config"
	"github.com/target/prepflow/internal/adapters/jobrunner"
	"github.com/target/prepflow/internal/adapters/reaper"
)

// ServiceOrchestrationConfig contains what RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// backgroundService describes one long-running component.
type backgroundService struct {
	name string
	run  func(ctx context.Context) error
}

// buildBackgroundServices creates the components enabled by configuration.
func buildBackgroundServices(cfg *ServiceOrchestrationConfig) ([]backgroundService, error) {
	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	services := cfg.Services
	var out []backgroundService

	if enabled[config.ServiceModeHTTP] {
		server := NewHTTPServer(cfg.Config.HTTP, services, logger)
		out = append(out, backgroundService{name: string(config.ServiceModeHTTP), run: func(ctx context.Context) error {
			return ServeHTTP(ctx, server, cfg.Config.HTTP, logger)
		}})
	}

	if enabled[config.ServiceModeJobRunner] {
		runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
			Jobs:        services.Jobs,
			Executor:    services.Dispatcher,
			Lock:        services.Lock,
			Kinds:       cfg.Config.Runner.Kinds,
			Logger:      logger,
			Metrics:     services.Observability.MetricsSink,
			Lease:       cfg.Config.Runner.JobLease,
			Concurrency: cfg.Config.Runner.Concurrency,
		})
		if err != nil {
			return nil, fmt.Errorf("create job runner: %w", err)
		}
		out = append(out, backgroundService{name: string(config.ServiceModeJobRunner), run: runner.Run})
	}

	if enabled[config.ServiceModeReaper] {
		runner, err := reaper.NewRunner(reaper.RunnerOptions{
			Reaper:   services.Reaper,
			Schedule: cfg.Config.Reaper.Schedule,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create reaper runner: %w", err)
		}
		out = append(out, backgroundService{name: string(config.ServiceModeReaper), run: runner.Run})
	}

	return out, nil
}

// RunServicesWithShutdown starts every enabled service and blocks until SIGINT or SIGTERM, or until one
// service fails. The remaining services are then stopped.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("orchestration config is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunServices(ctx, cfg)
}

// RunServices runs the enabled services until ctx is cancelled or one of them fails.
func RunServices(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	services, err := buildBackgroundServices(cfg)
	if err != nil {
		return err
	}
	if len(services) == 0 {
		return errors.New("no services enabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		g.Go(func() error {
			cfg.Logger.InfoContext(gctx, "service starting", "service", svc.name)
			err := svc.run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				cfg.Logger.ErrorContext(gctx, "service failed", "service", svc.name, "error", err)
				return fmt.Errorf("%s: %w", svc.name, err)
			}
			cfg.Logger.InfoContext(gctx, "service stopped", "service", svc.name)
			return nil
		})
	}

	err = g.Wait()
	if cfg.Services.Jobs != nil {
		cfg.Services.Jobs.StopAllListeners()
	}
	return err
}
