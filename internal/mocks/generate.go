// Package mocks provides mock implementations of the prepflow ports for tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces in
// internal/core. To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	client := mocks.NewMockModelClient(ctrl)
//	client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(`{"overallScore": 6.5}`, nil)
package mocks

// ModelClient: Complete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=model_client_mock.go github.com/target/prepflow/internal/core ModelClient

// BulkNotifier: SendBulkNotification
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=bulk_notifier_mock.go github.com/target/prepflow/internal/core BulkNotifier

// JobLock: Acquire, Release
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_lock_mock.go github.com/target/prepflow/internal/core JobLock

// TriggerDeduper: Claim
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=trigger_deduper_mock.go github.com/target/prepflow/internal/core TriggerDeduper
