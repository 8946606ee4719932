// Package scheduler drives periodic scans on a cron schedule, adapted from
// trader-go/internal/scheduler/scheduler.go's Job/Scheduler split.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ScanFunc runs one scan to completion. It is passed the scheduler's base
// context so a caller-installed cancellation propagates into the scan.
type ScanFunc func(ctx context.Context)

// Scheduler wraps a cron.Cron configured for the standard five-field
// expression format (no seconds field), since spec.md's scan interval is
// minute-granularity.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates an idle Scheduler.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins executing registered entries.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop waits for any in-flight job to finish, then returns.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddScan registers fn to run on the given cron expression, e.g.
// "*/5 * * * *" for every five minutes.
func (s *Scheduler) AddScan(ctx context.Context, expr string, fn ScanFunc) error {
	_, err := s.cron.AddFunc(expr, func() {
		s.log.Debug().Msg("triggering scheduled scan")
		fn(ctx)
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("schedule", expr).Msg("scan scheduled")
	return nil
}
