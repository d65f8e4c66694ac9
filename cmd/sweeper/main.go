package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/magabrotheeeer/channel-subs/internal/app/sweeper"
	"github.com/magabrotheeeer/channel-subs/internal/config"
	"github.com/magabrotheeeer/channel-subs/internal/lib/sl"
	"github.com/magabrotheeeer/channel-subs/internal/storage/repository"
)

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil // готово
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger.Info("starting sweeper", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		logger.Error("failed to connect to storage", sl.Err(err))
		os.Exit(1)
	}
	defer func() {
		_ = db.DB.Close()
	}()

	// Миграции применяет API-процесс, свипер только ждёт готовую схему
	if err := waitForDB(db); err != nil {
		logger.Error("database is not ready", sl.Err(err))
		os.Exit(1)
	}

	app, err := sweeper.New(ctx, cfg, db, logger)
	if err != nil {
		logger.Error("failed to initialize sweeper", sl.Err(err))
		os.Exit(1)
	}

	app.Run(ctx)
	logger.Info("sweeper stopped gracefully")
}
