package usage

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/vantagecrm/hookd/internal/models"
)

// Scheduler runs the aggregation jobs on a cron cadence: hourly rollups
// for the previous hour, daily rollups for the previous day.
type Scheduler struct {
	agg  *Aggregator
	cron *cron.Cron
	log  zerolog.Logger
}

func NewScheduler(agg *Aggregator, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		agg:  agg,
		cron: cron.New(cron.WithLocation(time.UTC)),
		log:  log,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	// Previous hour, five minutes in so late records are included.
	if _, err := s.cron.AddFunc("5 * * * *", func() {
		window := time.Now().UTC().Add(-time.Hour).Truncate(time.Hour)
		if err := s.agg.AggregateWindow(ctx, models.PeriodHour, window); err != nil {
			s.log.Error().Err(err).Time("window", window).Msg("hourly usage aggregation failed")
		}
	}); err != nil {
		return err
	}

	// Previous day.
	if _, err := s.cron.AddFunc("10 0 * * *", func() {
		window := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
		if err := s.agg.AggregateWindow(ctx, models.PeriodDay, window); err != nil {
			s.log.Error().Err(err).Time("window", window).Msg("daily usage aggregation failed")
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Msg("usage aggregation scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("usage aggregation scheduler stopped")
}
