// services/scheduler.go
package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"pongmatch/dblock"
)

// ScheduleLockReaper removes lock rows abandoned by crashed instances.
func ScheduleLockReaper(ctx context.Context, sched gocron.Scheduler, locks *dblock.Service, every time.Duration) error {
	_, err := sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			n, err := locks.Reap(ctx)
			if err != nil {
				log.Error().Err(err).Msg("[Scheduler] lock reaping failed")
				return
			}
			if n > 0 {
				log.Warn().Int64("locks", n).Msg("[Scheduler] reaped stale locks")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return err
}
