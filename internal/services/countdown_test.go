package services

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// manualTicks is a TickSource driven by the test.
type manualTicks struct {
	ch      chan time.Time
	started atomic.Int32
	stopped atomic.Int32
}

func newManualTicks() *manualTicks {
	return &manualTicks{ch: make(chan time.Time)}
}

func (m *manualTicks) source() (<-chan time.Time, func()) {
	m.started.Add(1)
	return m.ch, func() { m.stopped.Add(1) }
}

// tick delivers n ticks, failing if the countdown stops receiving.
func (m *manualTicks) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case m.ch <- time.Now():
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d was not consumed", i+1)
		}
	}
}

// waitReleased waits until n tickers have been released.
func (m *manualTicks) waitReleased(t *testing.T, n int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.stopped.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d released tickers, got %d", n, m.stopped.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// refused reports whether a tick went unread for a short while.
func (m *manualTicks) refused() bool {
	select {
	case m.ch <- time.Now():
		return false
	case <-time.After(50 * time.Millisecond):
		return true
	}
}

func TestCountdownExpiresOnce(t *testing.T) {
	ticks := newManualTicks()

	var (
		mu      sync.Mutex
		seen    []int
		expired atomic.Int32
	)
	c := startCountdown(3, ticks.source,
		func(left int) {
			mu.Lock()
			seen = append(seen, left)
			mu.Unlock()
		},
		func() { expired.Add(1) },
	)

	ticks.tick(t, 3)
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not finish")
	}

	if !ticks.refused() {
		t.Errorf("expected no ticks to be read after expiry")
	}
	if expired.Load() != 1 {
		t.Errorf("Expected 1 expiry, got %d", expired.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[0] != 2 || seen[1] != 1 || seen[2] != 0 {
		t.Errorf("unexpected tick sequence %v", seen)
	}
	if c.Remaining() != 0 {
		t.Errorf("Expected 0 remaining, got %d", c.Remaining())
	}
	if ticks.stopped.Load() != 1 {
		t.Errorf("expected ticker to be released")
	}
}

func TestCountdownStop(t *testing.T) {
	ticks := newManualTicks()
	var expired atomic.Int32
	c := startCountdown(2, ticks.source, func(int) {}, func() { expired.Add(1) })

	ticks.tick(t, 1)
	c.stop()
	c.stop()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not stop")
	}
	if expired.Load() != 0 {
		t.Errorf("expected stopped countdown never to expire")
	}
	if c.Remaining() < 1 {
		t.Errorf("Expected time left after stop, got %d", c.Remaining())
	}
}
