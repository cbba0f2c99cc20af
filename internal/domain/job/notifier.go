package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/target/prepflow/internal/domain/model"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until a job of kind is announced.
type Waiter interface {
	WaitForNotification(ctx context.Context, kind model.JobKind) error
}

// Notifier fans job announcements out to subscribers.
type Notifier interface {
	// Subscribe returns a channel signalled whenever a job of any of kinds may be runnable.
	Subscribe(kinds ...model.JobKind) (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure the default notifier.
type NotifierOptions struct {
	Waiter Waiter
	// WaitWindow bounds one wait; subscribers are also signalled when it elapses so jobs that became
	// runnable by time alone (deferred sleeps, lapsed leases) are picked up.
	WaitWindow time.Duration
	// Backoff is the pause after a failed wait.
	Backoff time.Duration
}

type subscriber struct {
	ch    chan struct{}
	kinds []model.JobKind
}

// DefaultNotifier runs one listener per subscribed kind.
type DefaultNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu        sync.Mutex
	subs      map[model.JobKind]map[*subscriber]struct{}
	listeners map[model.JobKind]context.CancelFunc
}

// NewNotifier constructs the default notifier.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}
	n := &DefaultNotifier{
		waiter:     opts.Waiter,
		waitWindow: opts.WaitWindow,
		backoff:    opts.Backoff,
		subs:       make(map[model.JobKind]map[*subscriber]struct{}),
		listeners:  make(map[model.JobKind]context.CancelFunc),
	}
	if n.waitWindow <= 0 {
		n.waitWindow = 30 * time.Second
	}
	if n.backoff <= 0 {
		n.backoff = 250 * time.Millisecond
	}
	return n, nil
}

// Subscribe registers one channel for every kind in kinds.
func (n *DefaultNotifier) Subscribe(kinds ...model.JobKind) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub := &subscriber{ch: make(chan struct{}, 1), kinds: append([]model.JobKind(nil), kinds...)}
	for _, kind := range sub.kinds {
		if _, ok := n.listeners[kind]; !ok {
			ctx, cancel := context.WithCancel(context.Background())
			n.listeners[kind] = cancel
			go n.listenLoop(ctx, kind)
		}
		if n.subs[kind] == nil {
			n.subs[kind] = make(map[*subscriber]struct{})
		}
		n.subs[kind][sub] = struct{}{}
	}

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.remove(sub)
		})
	}
	return unsub, sub.ch
}

// remove detaches sub and stops listeners nobody needs. Callers hold n.mu.
func (n *DefaultNotifier) remove(sub *subscriber) {
	found := false
	for _, kind := range sub.kinds {
		set := n.subs[kind]
		if _, ok := set[sub]; !ok {
			continue
		}
		found = true
		delete(set, sub)
		if len(set) == 0 {
			n.stopListener(kind)
			delete(n.subs, kind)
		}
	}
	if found {
		drainAndClose(sub.ch)
	}
}

// StopAll stops every listener and closes every subscription.
func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	closed := make(map[*subscriber]bool)
	for kind, set := range n.subs {
		for sub := range set {
			if !closed[sub] {
				drainAndClose(sub.ch)
				closed[sub] = true
			}
		}
		delete(n.subs, kind)
	}
	for kind := range n.listeners {
		n.stopListener(kind)
	}
}

func (n *DefaultNotifier) stopListener(kind model.JobKind) {
	if cancel, ok := n.listeners[kind]; ok {
		cancel()
		delete(n.listeners, kind)
	}
}

func (n *DefaultNotifier) listenLoop(ctx context.Context, kind model.JobKind) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx, kind)
		cancel()

		n.broadcast(kind)

		if err != nil && !errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			timer := time.NewTimer(n.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

func (n *DefaultNotifier) broadcast(kind model.JobKind) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for sub := range n.subs[kind] {
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose empties the buffer before closing so receivers see the close immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*DefaultNotifier)(nil)
