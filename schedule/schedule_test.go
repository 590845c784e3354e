package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func blockUntil(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("waiting for %d clock waiters: %v", n, err)
	}
}

func TestEveryRunsUntilCancelled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var ticks atomic.Int32
	task := Every(clock, 200*time.Millisecond, func() bool {
		ticks.Add(1)
		return true
	})

	for i := 1; i <= 3; i++ {
		blockUntil(t, clock, 1)
		clock.Advance(200 * time.Millisecond)
		want := int32(i)
		waitFor(t, "tick", func() bool { return ticks.Load() == want })
	}

	task.Cancel()
	task.Cancel()
	clock.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)
	if got := ticks.Load(); got != 3 {
		t.Fatalf("expected no ticks after cancel, got %d", got)
	}
}

func TestEveryStopsWhenFnReturnsFalse(t *testing.T) {
	clock := clockwork.NewFakeClock()
	task := Every(clock, time.Second, func() bool { return false })
	blockUntil(t, clock, 1)
	clock.Advance(time.Second)
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not stop")
	}
}

func TestCountdownExpiresOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var expired atomic.Int32
	c := NewCountdown(clock, func() { expired.Add(1) })
	c.Set(3 * time.Second)
	if !c.Start() {
		t.Fatalf("expected start to succeed")
	}

	for want := 2 * time.Second; want >= 0; want -= time.Second {
		blockUntil(t, clock, 1)
		clock.Advance(time.Second)
		w := want
		waitFor(t, "countdown step", func() bool { return c.Remaining() == w })
	}
	waitFor(t, "expiry", func() bool { return expired.Load() == 1 })
	if c.Active() {
		t.Fatalf("expected countdown inactive after expiry")
	}
	clock.Advance(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if expired.Load() != 1 {
		t.Fatalf("expected a single expiry, got %d", expired.Load())
	}
}

func TestCountdownPauseKeepsRemaining(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCountdown(clock, nil)
	c.Set(10 * time.Second)
	c.Start()
	blockUntil(t, clock, 1)
	clock.Advance(time.Second)
	waitFor(t, "first tick", func() bool { return c.Remaining() == 9*time.Second })

	c.Stop()
	clock.Advance(5 * time.Second)
	if c.Remaining() != 9*time.Second {
		t.Fatalf("expected pause to hold at 9s, got %v", c.Remaining())
	}

	c.Reset()
	if c.Remaining() != 10*time.Second || c.Active() {
		t.Fatalf("expected reset to rewind and stay stopped, got %v active=%v", c.Remaining(), c.Active())
	}
}

func TestCountdownWithoutDurationDoesNotStart(t *testing.T) {
	c := NewCountdown(clockwork.NewFakeClock(), nil)
	if c.Start() {
		t.Fatalf("expected start to fail without a duration")
	}
}
