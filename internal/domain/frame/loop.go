// Package frame models the single-threaded event loop each embed frame runs on.
//
// All controller state is mutated from inside the loop only, so controllers
// need no locks. Work finishing elsewhere (an HTTP call, a websocket read)
// re-enters the loop through Post.
package frame

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Timer is a cancellable delayed callback
type Timer interface {
	Stop() bool
}

// Scheduler serialises callbacks onto one logical thread
type Scheduler interface {
	// Post queues fn to run on the loop. Safe from any goroutine.
	Post(fn func())
	// AfterFunc runs fn on the loop after d unless stopped first.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Loop is a goroutine-backed Scheduler
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

// NewLoop creates a loop with the given queue capacity
func NewLoop(capacity int) *Loop {
	if capacity <= 0 {
		capacity = 256
	}
	return &Loop{
		tasks: make(chan func(), capacity),
		done:  make(chan struct{}),
	}
}

// Run executes queued callbacks until ctx is cancelled
func (l *Loop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post queues fn. Callbacks posted after the loop stopped are dropped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
	case l.tasks <- fn:
	}
}

// Done is closed once Run returns
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

type loopTimer struct {
	timer   *time.Timer
	stopped atomic.Bool
}

func (t *loopTimer) Stop() bool {
	t.stopped.Store(true)
	return t.timer.Stop()
}

// AfterFunc schedules fn on the loop after d. A stopped timer never runs fn,
// even if it had already fired and was waiting in the queue.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if !t.stopped.Load() {
				fn()
			}
		})
	})
	return t
}
