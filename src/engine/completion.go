package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// completion is a single-assignment result cell. The first resolve or
// reject wins; later calls are no-ops.
type completion[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func newCompletion[T any]() *completion[T] {
	return &completion[T]{done: make(chan struct{})}
}

func (c *completion[T]) resolve(v T) bool {
	fired := false
	c.once.Do(func() {
		c.value = v
		close(c.done)
		fired = true
	})
	return fired
}

func (c *completion[T]) reject(err error) bool {
	fired := false
	c.once.Do(func() {
		c.err = err
		close(c.done)
		fired = true
	})
	return fired
}

func (c *completion[T]) fired() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// errTimeout is returned by wait when the bounded wait expires.
var errTimeout = fmt.Errorf("timed out waiting for the engine")

// wait blocks until the cell is settled, ctx is done, or timeout elapses.
// A zero timeout waits without bound.
func (c *completion[T]) wait(ctx context.Context, timeout time.Duration) (T, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	var zero T
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-expired:
		return zero, errTimeout
	}
}
