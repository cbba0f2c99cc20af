package inapp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/data/memstore"
	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
	"github.com/target/prepflow/internal/observability/statsd"
)

// flakyStore fails writes for one user.
type flakyStore struct {
	core.TenantStore
	failFor string
}

func (s flakyStore) Create(ctx context.Context, tenantID string, et model.EntityType, data map[string]any) (*model.Entity, error) {
	if data["user_id"] == s.failFor {
		return nil, apperrors.Internalf("disk full")
	}
	return s.TenantStore.Create(ctx, tenantID, et, data)
}

func TestNewNotifier_RequiresStore(t *testing.T) {
	_, err := NewNotifier(NotifierOptions{})
	require.Error(t, err)
}

func TestSendBulkNotification_WritesInboxRecords(t *testing.T) {
	store := memstore.New(nil)
	rec := statsd.NewRecorder()
	sent := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	n, err := NewNotifier(NotifierOptions{
		Records: flakyStore{TenantStore: store.Records, failFor: "u3"},
		Metrics: rec,
		Now:     func() time.Time { return sent },
	})
	require.NoError(t, err)

	n.SendBulkNotification(context.Background(), "tenant-a", []string{"u1", "u2", "u3"}, "Results", "Your essay was graded.")

	inbox, err := store.Records.Find(context.Background(), "tenant-a", model.EntityNotification, model.Filter{"user_id": "u1"})
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "Results", inbox[0].String("title"))
	assert.Equal(t, "Your essay was graded.", inbox[0].String("message"))
	assert.Equal(t, false, inbox[0].Data["read"])
	assert.Equal(t, "2024-06-01T09:00:00Z", inbox[0].String("sent_at"))

	other, err := store.Records.Find(context.Background(), "tenant-b", model.EntityNotification, model.Filter{})
	require.NoError(t, err)
	assert.Empty(t, other)

	assert.Equal(t, int64(2), rec.Total("notification.delivered", map[string]string{"result": "success"}))
	assert.Equal(t, int64(1), rec.Total("notification.delivered", map[string]string{"result": "error"}))
}
