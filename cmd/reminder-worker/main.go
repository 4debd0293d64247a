package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/dental-agenda/internal/appointment"
	"github.com/hackgods/dental-agenda/internal/config"
	"github.com/hackgods/dental-agenda/internal/db"
	"github.com/hackgods/dental-agenda/internal/integration"
	"github.com/hackgods/dental-agenda/internal/logging"
	"github.com/hackgods/dental-agenda/internal/reminder"
)

const runTimeout = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.Setup(cfg, "reminder-worker")
	logger.Info().
		Str("cron", cfg.ReminderCron).
		Dur("lead", cfg.ReminderLead).
		Msg("reminder-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	rootCtx = logger.WithContext(rootCtx)

	pgPool, err := db.Connect(rootCtx, cfg.PostgresDSN, false)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	job := reminder.NewJob(appointment.NewPgRepository(pgPool), integration.NewPgStore(pgPool), cfg)

	scheduler, err := reminder.NewScheduler(rootCtx, cfg.ReminderCron, job, runTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler setup error")
	}

	// Run once at startup
	reminder.RunOnce(rootCtx, job, runTimeout)

	scheduler.Start()
	<-rootCtx.Done()

	logger.Info().Msg("shutdown signal received, waiting for running job")
	<-scheduler.Stop().Done()
	logger.Info().Msg("reminder-worker stopped")
}
