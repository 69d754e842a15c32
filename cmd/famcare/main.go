package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelar/famcare/internal/alarm"
	"github.com/avelar/famcare/internal/config"
	"github.com/avelar/famcare/internal/database"
	"github.com/avelar/famcare/internal/logging"
	"github.com/avelar/famcare/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup(cfg.LogLevel)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	snoozeCache, err := alarm.LoadSnoozeCache(cfg.SnoozeCachePath)
	if err != nil {
		logger.Error("load snooze cache", "path", cfg.SnoozeCachePath, "error", err)
		os.Exit(1)
	}

	srv := server.New(db, cfg, snoozeCache, logger)

	// Rebind the profile a session had selected before the restart so
	// alarms keep firing unattended.
	if err := srv.RestoreAlarmBinding(); err != nil {
		logger.Error("restore alarm binding", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := srv.Scheduler()
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Periodic cleanup of expired sessions and rate-limit entries.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := srv.SessionStore().DeleteExpired(); err != nil {
					logger.Error("delete expired sessions", "error", err)
				}
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("famcare listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
