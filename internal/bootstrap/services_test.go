package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/prepflow/config"
	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/domain/model"
)

func memoryConfig(services string) *config.AppConfig {
	cfg := &config.AppConfig{
		Services: services,
		Store:    config.StoreConfig{Driver: config.StoreDriverMemory},
		HTTP:     config.HTTPConfig{Addr: "127.0.0.1:0"},
		Runner:   config.RunnerConfig{Concurrency: 1, JobLease: 30 * time.Second},
		Reaper:   config.ReaperConfig{Schedule: "@hourly", Retention: 24 * time.Hour, BatchSize: 100},
		Workflow: config.WorkflowConfig{MaxAttempts: 3},
	}
	cfg.Sanitize()
	return cfg
}

func TestValidateServiceConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.AppConfig
		wantErr string
	}{
		{name: "nil", wantErr: "service config is required"},
		{name: "unknown service", cfg: &config.AppConfig{Services: "http,scheduler"}, wantErr: "invalid service"},
		{name: "valid", cfg: memoryConfig("http,job-runner,reaper")},
		{
			name:    "unknown runner kind",
			cfg:     &config.AppConfig{Services: "job-runner", Runner: config.RunnerConfig{Kinds: []model.JobKind{"export"}}},
			wantErr: "invalid runner job kind",
		},
		{name: "memory runner without intake", cfg: memoryConfig("job-runner"), wantErr: "needs the http service"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceConfig(tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetEnabledServices(t *testing.T) {
	assert.Equal(t, []string{"http", "job-runner", "reaper"}, GetEnabledServices(memoryConfig("reaper, http,job-runner")))
	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "bogus"}))
	assert.Empty(t, GetEnabledServices(nil))
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("SERVICES", "http")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("RUNNER_KINDS", "generation,grading")
	t.Setenv("WORKFLOW_MAX_ATTEMPTS", "5")
	t.Setenv("REAPER_BATCH_SIZE", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, []model.JobKind{model.JobKindGeneration, model.JobKindGrading}, cfg.Runner.Kinds)
	assert.Equal(t, 5, cfg.Workflow.MaxAttempts)
	assert.Equal(t, 1, cfg.Reaper.BatchSize)
	assert.True(t, cfg.IsHTTPServerEnabled())
	assert.False(t, cfg.IsJobRunnerEnabled())
}

func TestNewServices_MemoryStore(t *testing.T) {
	ctx := context.Background()
	services, err := NewServices(&ServiceDeps{Config: memoryConfig("http,job-runner")})
	require.NoError(t, err)
	require.NotNil(t, services.Dispatcher)
	require.NotNil(t, services.Lock)

	job, err := services.Dispatcher.TriggerNotification(ctx, model.NotificationTrigger{
		TenantID: "tenant-a",
		UserIDs:  []string{"u1", "u2"},
		Title:    "Results ready",
		Message:  "Your writing task has been graded.",
	})
	require.NoError(t, err)

	reserved, err := services.Jobs.ReserveNext(ctx, nil, "test-owner", 0)
	require.NoError(t, err)
	assert.Equal(t, job.ID, reserved.ID)

	out, err := services.Dispatcher.Execute(ctx, reserved)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, out.Status, out.Failure)

	inbox, err := services.Stores.Records.Find(ctx, "tenant-a", model.EntityNotification, model.Filter{})
	require.NoError(t, err)
	assert.Len(t, inbox, 2)
}

func TestNewServices_PostgresNeedsDatabase(t *testing.T) {
	cfg := memoryConfig("http")
	cfg.Store.Driver = config.StoreDriverPostgres

	_, err := NewServices(&ServiceDeps{Config: cfg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database connection is required")
}

func TestBuildModelClient(t *testing.T) {
	client, err := buildModelClient(config.ModelConfig{}, testLogger())
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), core.ModelRequest{})
	require.ErrorIs(t, err, errModelDisabled)

	_, err = buildModelClient(config.ModelConfig{URL: "http://gateway.local/v1/chat", ContentPath: "choices[0"}, testLogger())
	require.Error(t, err)
}

func TestBuildFailureNotifier(t *testing.T) {
	assert.False(t, buildFailureNotifier(testLogger(), config.AlertsConfig{}).Enabled())

	alerts := config.AlertsConfig{
		SlackWebhookURL:     "https://hooks.slack.test/T/B/x",
		PagerDutyRoutingKey: "routing-key",
	}
	alerts.Sanitize()
	assert.True(t, buildFailureNotifier(testLogger(), alerts).Enabled())
}

func TestSpacing(t *testing.T) {
	assert.Equal(t, time.Duration(-1), spacing(config.WorkflowConfig{}))
	assert.Equal(t, 2*time.Second, spacing(config.WorkflowConfig{GenerationSpacing: 2 * time.Second}))
}

func TestRunServices_StopsOnCancel(t *testing.T) {
	cfg := memoryConfig("http,job-runner,reaper")
	services, err := NewServices(&ServiceDeps{Config: cfg, Logger: testLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunServices(ctx, &ServiceOrchestrationConfig{Config: cfg, Services: services, Logger: testLogger()})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("services did not stop")
	}
}

func TestRunServices_BadReaperSchedule(t *testing.T) {
	cfg := memoryConfig("reaper")
	cfg.Reaper.Schedule = "every now and then"
	services, err := NewServices(&ServiceDeps{Config: cfg, Logger: testLogger()})
	require.NoError(t, err)

	err = RunServices(context.Background(), &ServiceOrchestrationConfig{Config: cfg, Services: services, Logger: testLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create reaper runner")
}
