// Package debounce collapses bursts of calls into one. Only the last call of a burst runs;
// the earlier callers are released at once with a superseded error.
package debounce

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-blog-session/api"
	"github.com/jrsteele09/go-blog-session/internal/errors"
)

// CodeSuperseded is the error code of a call replaced by a newer one.
const CodeSuperseded = 499

const DefaultDelay = 300 * time.Millisecond

type Debouncer[A, R any] struct {
	fn    func(ctx context.Context, arg A) (R, error)
	delay time.Duration

	mu      sync.Mutex
	pending *call[R]
}

type call[R any] struct {
	timer *time.Timer
	once  sync.Once
	done  chan struct{}
	res   R
	err   error
}

func (c *call[R]) settle(res R, err error) {
	c.once.Do(func() {
		c.res, c.err = res, err
		close(c.done)
	})
}

// New returns a Debouncer running fn delay after the last call. A non-positive delay uses DefaultDelay.
func New[A, R any](delay time.Duration, fn func(ctx context.Context, arg A) (R, error)) *Debouncer[A, R] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer[A, R]{fn: fn, delay: delay}
}

// Call schedules fn(ctx, arg) and waits for its result. If another Call arrives first, this
// one returns an *api.Error with code CodeSuperseded wrapping errors.ErrSuperseded, even when
// fn has already started; its result is then discarded.
func (d *Debouncer[A, R]) Call(ctx context.Context, arg A) (R, error) {
	c := &call[R]{done: make(chan struct{})}

	d.mu.Lock()
	if prev := d.pending; prev != nil {
		prev.timer.Stop()
		var zero R
		prev.settle(zero, api.NewError(CodeSuperseded, "request superseded", errors.ErrSuperseded))
	}
	d.pending = c
	c.timer = time.AfterFunc(d.delay, func() {
		res, err := d.fn(ctx, arg)
		c.settle(res, err)
		d.release(c)
	})
	d.mu.Unlock()

	select {
	case <-c.done:
		return c.res, c.err
	case <-ctx.Done():
		c.timer.Stop()
		var zero R
		c.settle(zero, ctx.Err())
		d.release(c)
		return zero, ctx.Err()
	}
}

func (d *Debouncer[A, R]) release(c *call[R]) {
	d.mu.Lock()
	if d.pending == c {
		d.pending = nil
	}
	d.mu.Unlock()
}
