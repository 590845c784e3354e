package workers

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// IdleDeleter removes rooms not written to since a cutoff.
type IdleDeleter interface {
	DeleteIdle(ctx context.Context, before time.Time) (int64, error)
}

// SessionSweeper deletes rooms nobody has written to for longer than ttl.
type SessionSweeper struct {
	store    IdleDeleter
	ttl      time.Duration
	interval time.Duration
	clock    clockwork.Clock
	log      zerolog.Logger
}

func NewSessionSweeper(store IdleDeleter, ttl, interval time.Duration, clock clockwork.Clock, logger zerolog.Logger) *SessionSweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SessionSweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		clock:    clock,
		log:      logger.With().Str("component", "session_sweeper").Logger(),
	}
}

// Start sweeps once and then every interval until ctx is done. The returned
// channel closes when the loop exits.
func (w *SessionSweeper) Start(ctx context.Context) <-chan struct{} {
	w.log.Info().Dur("ttl", w.ttl).Dur("interval", w.interval).Msg("starting session sweeper")
	ticker := w.clock.NewTicker(w.interval)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer ticker.Stop()
		w.SweepOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				w.log.Info().Msg("session sweeper stopped")
				return
			case <-ticker.Chan():
				w.SweepOnce(ctx)
			}
		}
	}()
	return done
}

// SweepOnce runs a single pass and reports how many rooms it removed.
func (w *SessionSweeper) SweepOnce(ctx context.Context) int64 {
	n, err := w.store.DeleteIdle(ctx, w.clock.Now().Add(-w.ttl))
	if err != nil {
		w.log.Warn().Err(err).Msg("sweeping idle sessions failed")
		return 0
	}
	if n > 0 {
		w.log.Info().Int64("sessions", n).Msg("removed idle sessions")
	}
	return n
}
