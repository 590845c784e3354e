package workers

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"lifesync/models"
	"lifesync/store"
)

func TestSweepRemovesIdleRooms(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	mem := store.NewMemory(clock)

	stale, _ := mem.CreateSession(ctx, "", "host-a")
	clock.Advance(2 * time.Hour)
	fresh, _ := mem.CreateSession(ctx, "", "host-b")

	w := NewSessionSweeper(mem, time.Hour, 10*time.Minute, clock, zerolog.Nop())
	if n := w.SweepOnce(ctx); n != 1 {
		t.Fatalf("expected one idle room removed, got %d", n)
	}
	if ok, _ := mem.SessionExists(ctx, stale); ok {
		t.Fatalf("stale room survived")
	}
	if ok, _ := mem.SessionExists(ctx, fresh); !ok {
		t.Fatalf("fresh room removed")
	}
}

func TestSweeperLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClock()
	mem := store.NewMemory(clock)
	id, _ := mem.CreateSession(ctx, "", "host")

	w := NewSessionSweeper(mem, time.Hour, 10*time.Minute, clock, zerolog.Nop())
	done := w.Start(ctx)

	// Keep the room alive for a while, then let it go idle.
	for i := 0; i < 3; i++ {
		clock.Advance(10 * time.Minute)
		if err := mem.SetGameState(ctx, id, models.NewPayload(models.GameState{})); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if ok, _ := mem.SessionExists(ctx, id); !ok {
		t.Fatalf("active room swept")
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		clock.Advance(10 * time.Minute)
		if ok, _ := mem.SessionExists(ctx, id); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("idle room never swept")
		}
		time.Sleep(2 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("sweeper did not stop")
	}
}
