// Package periodic runs a background task at a fixed interval
package periodic

import (
	"context"
	"sync"
	"time"

	"github.com/oddbit-project/walletguard/utils"
)

const ErrInvalidInterval = utils.Error("interval must be positive")

// TaskFn is invoked on every tick; ctx is cancelled on shutdown
type TaskFn func(ctx context.Context)

// Task runs fn every interval between Start and Shutdown
type Task struct {
	interval  time.Duration
	fn        TaskFn
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func New(interval time.Duration, fn TaskFn) (*Task, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		interval: interval,
		fn:       fn,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// Start begins the loop (safe to call multiple times). A Task cannot be
// restarted after Shutdown
func (t *Task) Start() {
	t.startOnce.Do(func() {
		go t.loop()
	})
}

func (t *Task) loop() {
	defer close(t.done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.fn(t.ctx)
		case <-t.ctx.Done():
			return
		}
	}
}

// Shutdown stops the loop and waits for a running tick to finish
// (safe to call multiple times)
func (t *Task) Shutdown(ctx context.Context) error {
	// consume startOnce so a later Start is a no-op
	t.startOnce.Do(func() {
		close(t.done)
	})
	t.stopOnce.Do(t.cancel)

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
