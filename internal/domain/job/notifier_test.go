package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/prepflow/internal/domain/model"
)

type stubWaiter struct {
	calls chan model.JobKind
	err   error
	block bool
}

func (s *stubWaiter) WaitForNotification(ctx context.Context, kind model.JobKind) error {
	select {
	case s.calls <- kind:
	default:
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.err != nil {
		return s.err
	}
	return nil
}

func receive(t *testing.T, ch <-chan struct{}) bool {
	t.Helper()
	select {
	case _, ok := <-ch:
		return ok
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected channel activity")
		return false
	}
}

func TestNewNotifierRequiresWaiter(t *testing.T) {
	notifier, err := NewNotifier(NotifierOptions{})
	require.ErrorIs(t, err, ErrWaiterRequired)
	assert.Nil(t, notifier)
}

func TestNotifier_SubscribeReceivesAnnouncements(t *testing.T) {
	waiter := &stubWaiter{calls: make(chan model.JobKind, 4)}
	notifier, err := NewNotifier(NotifierOptions{Waiter: waiter})
	require.NoError(t, err)
	defer notifier.StopAll()

	unsub, ch := notifier.Subscribe(model.JobKindGrading)
	defer unsub()

	assert.Equal(t, model.JobKindGrading, <-waiter.calls)
	assert.True(t, receive(t, ch))
}

func TestNotifier_WaitWindowWakesSubscribers(t *testing.T) {
	waiter := &stubWaiter{calls: make(chan model.JobKind, 8), block: true}
	notifier, err := NewNotifier(NotifierOptions{Waiter: waiter, WaitWindow: 20 * time.Millisecond})
	require.NoError(t, err)
	defer notifier.StopAll()

	unsub, ch := notifier.Subscribe(model.JobKindDeletion)
	defer unsub()

	assert.True(t, receive(t, ch), "an elapsed window signals without an announcement")
}

func TestNotifier_OneChannelForSeveralKinds(t *testing.T) {
	waiter := &stubWaiter{calls: make(chan model.JobKind, 8)}
	notifier, err := NewNotifier(NotifierOptions{Waiter: waiter})
	require.NoError(t, err)
	defer notifier.StopAll()

	unsub, ch := notifier.Subscribe(model.JobKindGeneration, model.JobKindNotificationSend)
	seen := map[model.JobKind]bool{}
	for len(seen) < 2 {
		select {
		case k := <-waiter.calls:
			seen[k] = true
		case <-time.After(500 * time.Millisecond):
			t.Fatal("expected a listener per kind")
		}
	}
	assert.True(t, receive(t, ch))

	unsub()
	for {
		if _, ok := <-ch; !ok {
			break
		}
	}
	unsub()
}

func TestNotifier_StopAllClosesChannels(t *testing.T) {
	waiter := &stubWaiter{calls: make(chan model.JobKind, 4), err: errors.New("boom")}
	notifier, err := NewNotifier(NotifierOptions{Waiter: waiter, Backoff: 10 * time.Millisecond})
	require.NoError(t, err)

	unsubA, chA := notifier.Subscribe(model.JobKindGrading)
	unsubB, chB := notifier.Subscribe(model.JobKindDeletion)

	notifier.StopAll()

	for _, ch := range []<-chan struct{}{chA, chB} {
		for {
			if _, ok := <-ch; !ok {
				break
			}
		}
	}

	// Unsubscribing stays safe after StopAll.
	unsubA()
	unsubB()
}
