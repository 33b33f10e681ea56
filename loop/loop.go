// Package loop provides a single-goroutine cooperative scheduler used to drive
// suspending computations to completion from blocking call sites.
//
// A Loop is a scoped resource: Acquire returns the loop already carried by a context,
// or creates one together with the release function that closes it.
//
//	ctx, lp, release := loop.Acquire(ctx)
//	defer release()
//	v, err := loop.RunUntilComplete(ctx, lp, work)
package loop

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrReentrant is returned when a blocking call would wait on the loop it is running on.
	ErrReentrant = errors.New("loop: blocking call from a task running on the same loop")
	// ErrClosed is returned when submitting to a closed loop.
	ErrClosed = errors.New("loop: closed")
)

// Loop runs submitted tasks one at a time, in submission order, on a single goroutine.
type Loop struct {
	tasks     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New starts a loop. Callers must Close it.
func New() *Loop {
	l := &Loop{
		tasks: make(chan func()),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case task := <-l.tasks:
			task()
		case <-l.quit:
			return
		}
	}
}

// Close stops the loop after the running task, if any, returns.
// It must not be called from a task running on l.
func (l *Loop) Close() {
	l.stop()
	<-l.done
}

// stop stops accepting tasks without waiting for the running one.
func (l *Loop) stop() {
	l.closeOnce.Do(func() { close(l.quit) })
}

// Closed reports whether the loop has stopped accepting tasks.
func (l *Loop) Closed() bool {
	select {
	case <-l.quit:
		return true
	default:
		return false
	}
}

func (l *Loop) submit(ctx context.Context, task func()) error {
	select {
	case <-l.quit:
		return ErrClosed
	default:
	}
	select {
	case l.tasks <- task:
		return nil
	case <-l.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

type loopKey struct{}

type runningKey struct{}

// WithLoop returns a copy of ctx carrying l.
func WithLoop(ctx context.Context, l *Loop) context.Context {
	return context.WithValue(ctx, loopKey{}, l)
}

// FromContext returns the loop carried by ctx, if any.
func FromContext(ctx context.Context) (*Loop, bool) {
	l, ok := ctx.Value(loopKey{}).(*Loop)
	return l, ok && l != nil
}

// Acquire returns the open loop carried by ctx, or creates one and returns a context
// carrying it. release closes the loop only if Acquire created it. Once ctx is done,
// release does not wait for a task still running; the loop goroutine exits when it returns.
func Acquire(ctx context.Context) (context.Context, *Loop, func()) {
	if l, ok := FromContext(ctx); ok && !l.Closed() {
		return ctx, l, func() {}
	}
	l := New()
	release := func() {
		if ctx.Err() != nil {
			l.stop()
			return
		}
		l.Close()
	}
	return WithLoop(ctx, l), l, release
}

// Running reports whether ctx belongs to a task currently executing on l.
func Running(ctx context.Context, l *Loop) bool {
	r, _ := ctx.Value(runningKey{}).(*Loop)
	return r != nil && r == l
}

// RunUntilComplete runs fn as a task on l and blocks until it returns or ctx is done.
// Calling it from a task already running on l returns ErrReentrant instead of
// deadlocking the loop.
func RunUntilComplete[T any](ctx context.Context, l *Loop, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if Running(ctx, l) {
		return zero, ErrReentrant
	}

	f := NewFuture[T]()
	task := func() {
		taskCtx := context.WithValue(WithLoop(ctx, l), runningKey{}, l)
		v, err := call(taskCtx, fn)
		f.Resolve(v, err)
	}
	if err := l.submit(ctx, task); err != nil {
		return zero, err
	}
	return f.Await(ctx)
}
