package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/revbot/internal/bot"
	"github.com/example/revbot/internal/config"
	"github.com/example/revbot/internal/database"
	"github.com/example/revbot/internal/engine"
	"github.com/example/revbot/internal/logging"
	"github.com/example/revbot/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.Connect(cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	store := database.NewStore(db)

	table, err := engine.NewIntervalTableDays(cfg.IntervalDays)
	if err != nil {
		return err
	}
	policy := engine.PolicyNextStage
	if cfg.SchedulePolicy == config.PolicyFull {
		policy = engine.PolicyFullBatch
	}
	eng := engine.New(store, table, policy)

	b, err := bot.New(cfg, store, eng, log)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Config{
		ScanInterval:   cfg.ScanInterval,
		ThrottleWindow: cfg.ThrottleWindow,
		StartHour:      cfg.NotificationStartHour,
		EndHour:        cfg.NotificationEndHour,
		MaxPerReminder: cfg.MaxPerReminder,
	}, store, b, log)
	b.SetScheduler(sched)

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	log.Info().
		Str("policy", string(cfg.SchedulePolicy)).
		Ints("interval_days", cfg.IntervalDays).
		Msg("starting")

	botDone := make(chan error, 1)
	go func() {
		botDone <- b.Start(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	b.Stop()
	sched.Stop()

	// Give the polling loop a moment to drain, then leave.
	select {
	case err := <-botDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case <-time.After(5 * time.Second):
		log.Warn().Msg("bot did not stop in time")
	}

	log.Info().Msg("stopped")
	return nil
}
