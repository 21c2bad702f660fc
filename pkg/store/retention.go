package store

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Retention periodically purges ended sessions older than a fixed age
type Retention struct {
	store    *Store
	maxAge   time.Duration
	schedule cron.Schedule
	cron     *cron.Cron
	logger   zerolog.Logger
}

// RetentionConfig holds retention sweep configuration
type RetentionConfig struct {
	// Schedule is a standard five-field cron expression
	Schedule string
	Days     int
	Logger   zerolog.Logger
}

// NewRetention validates the schedule and prepares the sweep
func NewRetention(store *Store, cfg RetentionConfig) (*Retention, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Days <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", cfg.Days)
	}

	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule: %w", err)
	}

	return &Retention{
		store:    store,
		maxAge:   time.Duration(cfg.Days) * 24 * time.Hour,
		schedule: schedule,
		cron:     cron.New(),
		logger:   cfg.Logger.With().Str("component", "retention").Logger(),
	}, nil
}

// Next returns the next sweep time after t
func (r *Retention) Next(t time.Time) time.Time {
	return r.schedule.Next(t)
}

// Sweep purges ended sessions older than the retention age
func (r *Retention) Sweep(ctx context.Context) (int64, error) {
	cutoff := r.store.now().Add(-r.maxAge)
	purged, err := r.store.PurgeEnded(ctx, cutoff)
	if err != nil {
		r.logger.Error().Err(err).Msg("Retention sweep failed")
		return 0, err
	}
	if purged > 0 {
		r.logger.Info().Int64("purged", purged).Time("cutoff", cutoff).Msg("Purged ended sessions")
	}
	return purged, nil
}

// Run starts the scheduler and blocks until ctx is done
func (r *Retention) Run(ctx context.Context) error {
	r.cron.Schedule(r.schedule, cron.FuncJob(func() {
		_, _ = r.Sweep(ctx)
	}))
	r.cron.Start()
	r.logger.Info().Time("next", r.Next(time.Now())).Msg("Retention scheduler started")

	<-ctx.Done()
	<-r.cron.Stop().Done()
	r.logger.Info().Msg("Retention scheduler stopped")
	return nil
}
