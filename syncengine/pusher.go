package syncengine

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"lifesync/models"
	"lifesync/store"
)

const writeTimeout = 10 * time.Second

// recentWrites bounds how many of our own writes are remembered for echo
// detection. Stores may deliver any of them late.
const recentWrites = 32

// Pusher owns the pending remote write for one session. A scheduled write
// replaces any earlier one still waiting out the debounce delay.
type Pusher struct {
	remote    store.Remote
	sessionID string
	clock     clockwork.Clock
	delay     time.Duration
	log       zerolog.Logger

	mu      sync.Mutex
	pending *models.Payload
	seq     uint64
	timer   clockwork.Timer

	writeMu sync.Mutex
	written uint64
	recent  [recentWrites][]byte
	next    int
}

func NewPusher(remote store.Remote, sessionID string, clock clockwork.Clock, delay time.Duration, logger zerolog.Logger) *Pusher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pusher{
		remote:    remote,
		sessionID: sessionID,
		clock:     clock,
		delay:     delay,
		log:       logger,
	}
}

// Schedule queues state for a debounced write.
func (p *Pusher) Schedule(state models.GameState) {
	payload := models.NewPayload(state).Sanitize()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	seq := p.seq
	p.pending = &payload
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = p.clock.AfterFunc(p.delay, func() { p.fire(seq) })
}

// Pending reports whether a debounced write is waiting.
func (p *Pusher) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

// Flush writes the pending payload now, if there is one.
func (p *Pusher) Flush(ctx context.Context) error {
	payload, seq := p.take()
	if payload == nil {
		return nil
	}
	return p.write(ctx, *payload, seq)
}

// PushNow drops any pending write and writes state synchronously.
func (p *Pusher) PushNow(ctx context.Context, state models.GameState) error {
	payload := models.NewPayload(state).Sanitize()
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.pending = nil
	p.stopTimerLocked()
	p.mu.Unlock()
	return p.write(ctx, payload, seq)
}

// Cancel drops the pending write without sending it.
func (p *Pusher) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	p.stopTimerLocked()
}

// Wrote reports whether raw matches one of our recent writes, including one
// still in flight.
func (p *Pusher) Wrote(raw []byte) bool {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	for _, w := range p.recent {
		if w != nil && bytes.Equal(w, raw) {
			return true
		}
	}
	return false
}

func (p *Pusher) take() (*models.Payload, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	payload := p.pending
	p.pending = nil
	p.stopTimerLocked()
	return payload, p.seq
}

func (p *Pusher) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Pusher) fire(seq uint64) {
	p.mu.Lock()
	if seq != p.seq || p.pending == nil {
		p.mu.Unlock()
		return
	}
	payload := *p.pending
	p.pending = nil
	p.timer = nil
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.write(ctx, payload, seq); err != nil {
		p.log.Warn().Err(err).Str("session_id", p.sessionID).Msg("debounced push failed")
	}
}

// write sends payload unless a newer write already landed.
func (p *Pusher) write(ctx context.Context, payload models.Payload, seq uint64) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if seq <= p.written {
		return nil
	}
	// Recorded before sending: the store may fan the write out before
	// SetGameState returns.
	if raw, err := json.Marshal(payload); err == nil {
		p.recent[p.next] = raw
		p.next = (p.next + 1) % recentWrites
	}
	if err := p.remote.SetGameState(ctx, p.sessionID, payload); err != nil {
		return err
	}
	p.written = seq
	return nil
}
