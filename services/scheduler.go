// services/scheduler.go
package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

// StartEvictionScheduler deletes abandoned queue entries every interval.
// The caller owns the returned scheduler and shuts it down on exit.
func (s *MatchmakingService) StartEvictionScheduler(ttl, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			n, err := s.EvictStale(ctx, ttl)
			if err != nil {
				log.Error().Err(err).Msg("[Scheduler] queue eviction failed")
				return
			}
			if n > 0 {
				log.Info().Int64("evicted", n).Msg("[Scheduler] evicted stale queue entries")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
