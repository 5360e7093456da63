package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"room-relay/internal/api"
	"room-relay/internal/config"
	"room-relay/internal/relay"
	"room-relay/internal/tasks"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	hub := relay.NewHub(logger)
	go hub.Run()

	reporter := tasks.NewStatsReporter(hub, logger, cfg.StatsSchedule)
	if err := reporter.Start(); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.StatsSchedule).Msg("invalid stats schedule")
	}

	start := time.Now()
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(logger, cfg, hub, start),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-stop
	logger.Info().Msg("shutdown signal received")

	reporter.Stop()
	close(hub.Quit)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown incomplete")
	}
	logger.Info().Msg("graceful shutdown complete")
}
