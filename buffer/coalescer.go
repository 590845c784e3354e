// Package buffer merges bursts of counter changes into single totals so that a
// run of taps produces one log line and one sync.
package buffer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"lifesync/models"
)

// Change is a net amount accumulated for one player and one counter.
type Change struct {
	PlayerID string
	Kind     models.ChangeKind
	Amount   int
}

type key struct {
	playerID string
	kind     models.ChangeKind
}

// Coalescer sums changes per (player, kind) and hands them to onFlush once no
// new change has arrived for the configured window. Zero totals are dropped.
type Coalescer struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	window  time.Duration
	onFlush func([]Change)

	pending map[key]int
	order   []key
	timer   clockwork.Timer
	gen     uint64
	stopped bool
}

func NewCoalescer(clock clockwork.Clock, window time.Duration, onFlush func([]Change)) *Coalescer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Coalescer{
		clock:   clock,
		window:  window,
		onFlush: onFlush,
		pending: make(map[key]int),
	}
}

// Add accumulates amount and restarts the quiescence window.
func (c *Coalescer) Add(playerID string, kind models.ChangeKind, amount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	k := key{playerID: playerID, kind: kind}
	if _, ok := c.pending[k]; !ok {
		c.order = append(c.order, k)
	}
	c.pending[k] += amount

	c.gen++
	gen := c.gen
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.clock.AfterFunc(c.window, func() { c.fire(gen) })
}

// Pending returns the amount currently buffered for a player and counter.
func (c *Coalescer) Pending(playerID string, kind models.ChangeKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[key{playerID: playerID, kind: kind}]
}

// Flush drains the buffer immediately and returns the non-zero totals without
// invoking onFlush.
func (c *Coalescer) Flush() []Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTimerLocked()
	return c.drainLocked()
}

// Discard drops buffered changes for one player, e.g. after removal.
func (c *Coalescer) Discard(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.order[:0]
	for _, k := range c.order {
		if k.playerID == playerID {
			delete(c.pending, k)
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
}

// Stop cancels the window and drops anything still buffered.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.cancelTimerLocked()
	c.drainLocked()
}

func (c *Coalescer) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.stopped {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	changes := c.drainLocked()
	c.mu.Unlock()

	if len(changes) > 0 && c.onFlush != nil {
		c.onFlush(changes)
	}
}

func (c *Coalescer) cancelTimerLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coalescer) drainLocked() []Change {
	var changes []Change
	for _, k := range c.order {
		if amount := c.pending[k]; amount != 0 {
			changes = append(changes, Change{PlayerID: k.playerID, Kind: k.kind, Amount: amount})
		}
	}
	c.pending = make(map[key]int)
	c.order = nil
	return changes
}
