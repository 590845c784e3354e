package schedule

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const countdownStep = time.Second

// Countdown is the table's game timer. It ticks once per second while active
// and calls onExpire exactly once when it reaches zero.
type Countdown struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	duration  time.Duration
	remaining time.Duration
	active    bool
	task      *Task
	onExpire  func()
}

func NewCountdown(clock clockwork.Clock, onExpire func()) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Countdown{clock: clock, onExpire: onExpire}
}

// Set stops the timer and arms it with a new duration.
func (c *Countdown) Set(d time.Duration) {
	c.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = d
	c.remaining = d
}

// Start resumes the countdown, rewinding to the full duration if it had run
// out. It reports false when there is nothing to count down.
func (c *Countdown) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return true
	}
	if c.remaining <= 0 {
		c.remaining = c.duration
	}
	if c.remaining <= 0 {
		return false
	}
	c.active = true
	c.task = Every(c.clock, countdownStep, c.tick)
	return true
}

// Stop pauses the countdown, keeping the time left.
func (c *Countdown) Stop() {
	c.mu.Lock()
	task := c.task
	c.task = nil
	c.active = false
	c.mu.Unlock()
	task.Cancel()
}

// Reset stops and rewinds to the configured duration.
func (c *Countdown) Reset() {
	c.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining = c.duration
}

func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Countdown) tick() bool {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return false
	}
	c.remaining -= countdownStep
	if c.remaining > 0 {
		c.mu.Unlock()
		return true
	}
	c.remaining = 0
	c.active = false
	c.task = nil
	c.mu.Unlock()
	if c.onExpire != nil {
		c.onExpire()
	}
	return false
}
