package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Pruner deletes cached rows older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// StartMaintenanceScheduler prunes card search results older than ttl once
// an hour. The caller shuts the scheduler down.
func StartMaintenanceScheduler(cache Pruner, ttl time.Duration, clock clockwork.Clock, logger zerolog.Logger) (gocron.Scheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger = logger.With().Str("component", "maintenance").Logger()

	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			n, err := cache.Prune(context.Background(), clock.Now().Add(-ttl))
			if err != nil {
				logger.Warn().Err(err).Msg("card cache prune failed")
				return
			}
			if n > 0 {
				logger.Info().Int64("rows", n).Msg("pruned card cache")
			}
		}),
		gocron.WithName("card-cache-prune"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule card cache prune: %w", err)
	}
	sched.Start()
	return sched, nil
}
