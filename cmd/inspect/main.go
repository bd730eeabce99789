package main

import (
	"context"
	"log/slog"
	"os"

	"ctcbeam/config"
	"ctcbeam/internal/app"
	"ctcbeam/internal/cui"
	"ctcbeam/internal/lib/logger/sl"
)

func main() {
	cfg := config.MustLoad()
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	application, err := app.New(log, cfg)
	if err != nil {
		log.Error("failed to build application", sl.Err(err))
		os.Exit(1)
	}
	defer application.Stop()

	inspector := cui.New(context.Background(), log, application.Batch, application.Options.Vocab, application.StorageApp.Storage(), 20)
	defer inspector.Close()

	if err := inspector.Start(); err != nil {
		log.Error("inspector exited with error", sl.Err(err))
		os.Exit(1)
	}
}
