package workers

import (
	"business-connect/errors"
	"context"
	"log/slog"
	"sync"
)

// EventLoop serializes every state change of the messaging core on one goroutine.
// Network completions, timer ticks and push callbacks post tasks here, so the
// state they touch never needs a lock.
type EventLoop struct {
	log   *slog.Logger
	tasks chan func()
	quit  chan struct{}
	once  sync.Once
}

func NewEventLoop(log *slog.Logger, bufferSize int) *EventLoop {
	return &EventLoop{
		log:   log,
		tasks: make(chan func(), bufferSize),
		quit:  make(chan struct{}),
	}
}

// Run executes tasks in submission order until ctx is done.
// Once ctx is done no further task starts.
// A panicking task is left to the supervisor, which restarts the loop.
func (l *EventLoop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.once.Do(func() { close(l.quit) })
			l.log.Debug("Event loop stopped")
			return nil
		case task := <-l.tasks:
			if ctx.Err() != nil {
				l.once.Do(func() { close(l.quit) })
				l.log.Debug("Event loop stopped", "dropped", len(l.tasks)+1)
				return nil
			}
			task()
		}
	}
}

// Stopped is closed once the loop quit for good. Tasks still queued then never run.
func (l *EventLoop) Stopped() <-chan struct{} {
	return l.quit
}

// Pending is the number of queued tasks.
func (l *EventLoop) Pending() int {
	return len(l.tasks)
}

// Post enqueues a task without waiting for it to run.
func (l *EventLoop) Post(ctx context.Context, task func()) error {
	select {
	case <-l.quit:
		return errors.ErrEventLoopStopped
	default:
	}
	select {
	case l.tasks <- task:
		return nil
	case <-l.quit:
		return errors.ErrEventLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do enqueues a task and waits until it ran.
// It must not be called from a task, which would wait on itself.
func (l *EventLoop) Do(ctx context.Context, task func()) error {
	done := make(chan struct{})
	err := l.Post(ctx, func() {
		defer close(done)
		task()
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-l.quit:
		return errors.ErrEventLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
