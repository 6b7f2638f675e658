package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"suivipro/internal/config"
	"suivipro/internal/database"
	"suivipro/internal/domain/notification"
	"suivipro/internal/pkg/logger"
)

// Sweeps notifications older than the retention window. Without a
// CLEANUP_SCHEDULE it runs once and exits, which suits container cron jobs;
// with one it stays up and runs on the cron expression.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("config: %v", err)
	}
	logger.Init(cfg.LogLevel, cfg.AppEnv)
	log := logger.Get()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	repo := notification.NewRepository(db)

	sweep := func() {
		cutoff := time.Now().AddDate(0, 0, -cfg.RetentionDays)
		deleted, err := repo.DeleteAllOlderThan(context.Background(), cutoff)
		if err != nil {
			log.WithError(err).Error("retention sweep failed")
			return
		}
		log.WithField("deleted", deleted).
			WithField("cutoff", cutoff.Format(time.RFC3339)).
			Info("retention sweep done")
	}

	if cfg.CleanupSchedule == "" {
		sweep()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.CleanupSchedule, sweep); err != nil {
		log.Fatalf("invalid CLEANUP_SCHEDULE %q: %v", cfg.CleanupSchedule, err)
	}
	c.Start()
	log.Infof("retention sweeper scheduled: %s", cfg.CleanupSchedule)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx := c.Stop()
	<-ctx.Done()
}
