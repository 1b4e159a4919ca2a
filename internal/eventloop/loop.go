// Package eventloop runs every state mutation of a client session on one
// goroutine. Off-loop work hands its results back through Post.
package eventloop

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

type Clock interface {
	Now() time.Time
}

// Timers are keyed single-shot tasks. Arming a key cancels whatever was pending
// under it.
type Timers interface {
	Arm(key string, d time.Duration, fn func())
	Cancel(key string)
	Pending(key string) bool
}

type Executor interface {
	// Go runs fn off the loop.
	Go(fn func())
	// Post queues fn to run on the loop.
	Post(fn func())
}

type task struct {
	gen   uint64
	timer *clock.Timer
}

type Loop struct {
	clock clock.Clock
	tasks chan func()
	done  chan struct{}
	log   *slog.Logger

	gen    uint64
	timers map[string]*task
}

func New(clk clock.Clock, log *slog.Logger) *Loop {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		clock:  clk,
		tasks:  make(chan func(), 256),
		done:   make(chan struct{}),
		log:    log.With("component", "eventloop"),
		timers: make(map[string]*task),
	}
}

func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Run executes queued tasks until ctx is cancelled. Pending timers are
// cancelled on return.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		close(l.done)
		for key, t := range l.timers {
			t.timer.Stop()
			delete(l.timers, key)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("task panicked", "panic", r)
		}
	}()
	fn()
}

func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.done:
	}
}

func (l *Loop) Go(fn func()) {
	go fn()
}

// Arm must be called from the loop.
func (l *Loop) Arm(key string, d time.Duration, fn func()) {
	l.Cancel(key)
	l.gen++
	gen := l.gen
	t := &task{gen: gen}
	t.timer = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			cur, ok := l.timers[key]
			if !ok || cur.gen != gen {
				return
			}
			delete(l.timers, key)
			fn()
		})
	})
	l.timers[key] = t
}

func (l *Loop) Cancel(key string) {
	if t, ok := l.timers[key]; ok {
		t.timer.Stop()
		delete(l.timers, key)
	}
}

func (l *Loop) Pending(key string) bool {
	_, ok := l.timers[key]
	return ok
}
