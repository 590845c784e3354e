package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lifesync/models"
)

const pollInterval = 250 * time.Millisecond

type harness struct {
	backend Backend
	clock   *clockwork.FakeClock
	// settle advances time far enough for a subscriber to observe a write.
	settle func()
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func backends() map[string]func(t *testing.T) harness {
	return map[string]func(t *testing.T) harness{
		"memory": func(t *testing.T) harness {
			clock := clockwork.NewFakeClock()
			return harness{backend: NewMemory(clock), clock: clock, settle: func() {}}
		},
		"gorm": func(t *testing.T) harness {
			clock := clockwork.NewFakeClock()
			s := NewGormStore(openTestDB(t), clock, pollInterval, zerolog.Nop())
			if err := s.Migrate(); err != nil {
				t.Fatalf("migrate: %v", err)
			}
			return harness{backend: s, clock: clock, settle: func() { clock.Advance(pollInterval) }}
		},
	}
}

type collector struct {
	mu   sync.Mutex
	seen []models.GameState
}

func (c *collector) add(p models.Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, p.State())
}

func (c *collector) last() (models.GameState, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.seen) == 0 {
		return models.GameState{}, 0
	}
	return c.seen[len(c.seen)-1], len(c.seen)
}

func waitFor(t *testing.T, what string, settle func(), cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		settle()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sampleState(life int) models.GameState {
	p := models.NewPlayer("a", "Alice", models.ManaRed, true)
	p.Life = life
	return models.GameState{Players: []models.Player{p}, GameHistory: []string{"12:00:00 - Game created"}}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			h := build(t)
			id, err := h.backend.CreateSession(ctx, "room-1", "host")
			if err != nil || id != "room-1" {
				t.Fatalf("create: id=%q err=%v", id, err)
			}
			if _, err := h.backend.CreateSession(ctx, "room-1", "other"); !errors.Is(err, ErrSessionExists) {
				t.Fatalf("expected ErrSessionExists, got %v", err)
			}

			ok, err := h.backend.SessionExists(ctx, "missing")
			if err != nil || ok {
				t.Fatalf("expected missing session to not exist: ok=%v err=%v", ok, err)
			}
			if err := h.backend.AddMember(ctx, "missing", "guest"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}
			if err := h.backend.AddMember(ctx, "room-1", "guest"); err != nil {
				t.Fatalf("add member: %v", err)
			}
			if err := h.backend.AddMember(ctx, "room-1", "guest"); err != nil {
				t.Fatalf("re-adding a member should be harmless: %v", err)
			}

			session, err := h.backend.GetSession(ctx, "room-1")
			if err != nil {
				t.Fatalf("get session: %v", err)
			}
			if session.HostID != "host" || strings.Join(session.Members, ",") != "guest,host" {
				t.Fatalf("unexpected session %+v", session)
			}

			if err := h.backend.DeleteSession(ctx, "room-1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := h.backend.DeleteSession(ctx, "room-1"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected second delete to miss, got %v", err)
			}
		})
	}
}

func TestGeneratedIDs(t *testing.T) {
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			h := build(t)
			a, err := h.backend.CreateSession(context.Background(), "", "host")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			b, _ := h.backend.CreateSession(context.Background(), "", "host")
			if a == "" || a == b {
				t.Fatalf("expected distinct generated ids, got %q and %q", a, b)
			}
		})
	}
}

func TestGameStateReadWrite(t *testing.T) {
	ctx := context.Background()
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			h := build(t)
			h.backend.CreateSession(ctx, "room", "host")

			got, err := h.backend.GetGameState(ctx, "room")
			if err != nil || got != nil {
				t.Fatalf("expected empty game state, got %+v err=%v", got, err)
			}

			payload := models.NewPayload(sampleState(33))
			payload.GameHistory = append(payload.GameHistory, nil)
			if err := h.backend.SetGameState(ctx, "room", payload); err != nil {
				t.Fatalf("set: %v", err)
			}
			got, err = h.backend.GetGameState(ctx, "room")
			if err != nil || got == nil {
				t.Fatalf("get: %+v err=%v", got, err)
			}
			state := got.State()
			if state.Players[0].Life != 33 || len(state.GameHistory) != 1 {
				t.Fatalf("unexpected state %+v", state)
			}

			if err := h.backend.SetGameState(ctx, "missing", payload); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}
		})
	}
}

func TestSubscribeDeliversCurrentThenLatest(t *testing.T) {
	ctx := context.Background()
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			h := build(t)
			h.backend.CreateSession(ctx, "room", "host")
			h.backend.SetGameState(ctx, "room", models.NewPayload(sampleState(40)))

			c := &collector{}
			sub, err := h.backend.Subscribe(ctx, "room", c.add)
			if err != nil {
				t.Fatalf("subscribe: %v", err)
			}
			waitFor(t, "initial emission", func() {}, func() bool {
				s, n := c.last()
				return n >= 1 && s.Players[0].Life == 40
			})

			h.backend.SetGameState(ctx, "room", models.NewPayload(sampleState(20)))
			waitFor(t, "update", h.settle, func() bool {
				s, _ := c.last()
				return s.Players[0].Life == 20
			})

			sub.Unsubscribe()
			sub.Unsubscribe()
			_, before := c.last()
			h.backend.SetGameState(ctx, "room", models.NewPayload(sampleState(5)))
			h.settle()
			time.Sleep(10 * time.Millisecond)
			if s, after := c.last(); after != before || s.Players[0].Life != 20 {
				t.Fatalf("callback ran after unsubscribe: %d -> %d", before, after)
			}
		})
	}
}

func TestSubscribeUnknownSession(t *testing.T) {
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			h := build(t)
			_, err := h.backend.Subscribe(context.Background(), "nope", func(models.Payload) {})
			if !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}
		})
	}
}

func TestDeleteIdle(t *testing.T) {
	ctx := context.Background()
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			h := build(t)
			h.backend.CreateSession(ctx, "old", "host")
			h.clock.Advance(2 * time.Hour)
			h.backend.CreateSession(ctx, "fresh", "host")

			n, err := h.backend.DeleteIdle(ctx, h.clock.Now().Add(-time.Hour))
			if err != nil || n != 1 {
				t.Fatalf("expected one idle session removed, got %d err=%v", n, err)
			}
			if ok, _ := h.backend.SessionExists(ctx, "old"); ok {
				t.Fatalf("expected old session removed")
			}
			if ok, _ := h.backend.SessionExists(ctx, "fresh"); !ok {
				t.Fatalf("expected fresh session kept")
			}
		})
	}
}
