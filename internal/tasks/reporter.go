package tasks

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"room-relay/internal/relay"
)

// StatsReporter logs a periodic snapshot of relay state on a cron schedule.
type StatsReporter struct {
	hub      *relay.Hub
	logger   zerolog.Logger
	schedule string
	cron     *cron.Cron
}

func NewStatsReporter(hub *relay.Hub, logger zerolog.Logger, schedule string) *StatsReporter {
	return &StatsReporter{
		hub:      hub,
		logger:   logger,
		schedule: schedule,
		cron:     cron.New(),
	}
}

func (s *StatsReporter) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		stats := s.hub.Snapshot()
		s.logger.Info().
			Int64("connections", stats.Connections).
			Int64("rooms", stats.Rooms).
			Int64("pending_joins", stats.PendingJoins).
			Msg("relay stats")
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *StatsReporter) Stop() {
	s.cron.Stop()
}
