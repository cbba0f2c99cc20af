// Package inapp delivers in-app notifications by writing one inbox record per recipient.
package inapp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/domain/model"
	"github.com/target/prepflow/internal/observability/statsd"
)

// NotifierOptions configure the inbox notifier.
type NotifierOptions struct {
	Records core.TenantStore // Required: tenant record store holding the inboxes
	Logger  *slog.Logger     // Optional: structured logger
	Metrics statsd.Sink      // Optional: metrics sink
	// Now stamps sent_at; defaults to time.Now.
	Now func() time.Time
}

// Notifier implements core.BulkNotifier on the tenant record store.
type Notifier struct {
	records core.TenantStore
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

var _ core.BulkNotifier = (*Notifier)(nil)

// NewNotifier builds a Notifier.
func NewNotifier(opts NotifierOptions) (*Notifier, error) {
	if opts.Records == nil {
		return nil, errors.New("record store is required")
	}
	n := &Notifier{records: opts.Records, logger: opts.Logger, metrics: opts.Metrics, now: opts.Now}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	n.logger = n.logger.With("component", "inapp_notifier")
	if n.now == nil {
		n.now = time.Now
	}
	return n, nil
}

// SendBulkNotification writes an unread notification for every user. Failed writes are logged and
// counted; delivery continues with the next user.
func (n *Notifier) SendBulkNotification(ctx context.Context, tenantID string, userIDs []string, title, message string) {
	sentAt := n.now().UTC().Format(time.RFC3339)
	var delivered, failed int64
	for _, userID := range userIDs {
		_, err := n.records.Create(ctx, tenantID, model.EntityNotification, map[string]any{
			"user_id": userID,
			"title":   title,
			"message": message,
			"read":    false,
			"sent_at": sentAt,
		})
		if err != nil {
			failed++
			n.logger.WarnContext(ctx, "notification delivery failed",
				"tenant_id", tenantID,
				"user_id", userID,
				"error", err,
			)
			continue
		}
		delivered++
	}

	if n.metrics != nil {
		n.metrics.Count("notification.delivered", delivered, map[string]string{"result": "success"})
		if failed > 0 {
			n.metrics.Count("notification.delivered", failed, map[string]string{"result": "error"})
		}
	}
	n.logger.DebugContext(ctx, "bulk notification sent",
		"tenant_id", tenantID,
		"delivered", delivered,
		"failed", failed,
	)
}
