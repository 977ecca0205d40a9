package services

import (
	"sync"
	"sync/atomic"
	"time"
)

// TickSource starts a ticker that fires once per second. The returned stop
// function releases it.
type TickSource func() (<-chan time.Time, func())

// SecondTicker is the production TickSource.
func SecondTicker() (<-chan time.Time, func()) {
	t := time.NewTicker(time.Second)
	return t.C, t.Stop
}

// countdown is a single-shot timer counting whole seconds down to zero.
// onExpire runs at most once, on the countdown goroutine, and never after
// stop has been called.
type countdown struct {
	remaining atomic.Int64
	cancel    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func startCountdown(seconds int, source TickSource, onTick func(remaining int), onExpire func()) *countdown {
	c := &countdown{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
	c.remaining.Store(int64(seconds))

	ticks, stopTicks := source()
	go func() {
		defer close(c.done)
		defer stopTicks()

		for {
			select {
			case <-c.cancel:
				return
			case <-ticks:
			}

			// A stop racing with the tick wins.
			select {
			case <-c.cancel:
				return
			default:
			}

			left := c.remaining.Add(-1)
			if left > 0 {
				onTick(int(left))
				continue
			}
			c.remaining.Store(0)
			onTick(0)
			onExpire()
			return
		}
	}()
	return c
}

func (c *countdown) Remaining() int {
	return int(c.remaining.Load())
}

// stop cancels the countdown without waiting for the goroutine to exit.
func (c *countdown) stop() {
	c.stopOnce.Do(func() { close(c.cancel) })
}

// Done is closed once the countdown goroutine has exited.
func (c *countdown) Done() <-chan struct{} {
	return c.done
}
