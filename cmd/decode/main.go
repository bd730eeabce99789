package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ctcbeam/config"
	"ctcbeam/internal/app"
	"ctcbeam/internal/lib/logger/sl"
	"ctcbeam/internal/stream"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)
	log.Info("decode", "env", cfg.Env)

	application, err := app.New(log, cfg)
	if err != nil {
		log.Error("failed to build application", sl.Err(err))
		os.Exit(1)
	}
	log.Info("decoder ready", "beam_width", application.Options.BeamWidth, "vocab_size", len(application.Options.Vocab))

	server := stream.New(log, application.Options, application.Batch.Scorer(), application.Batch.Hotwords())

	httpServer := &http.Server{
		Addr:    cfg.Stream.Addr,
		Handler: server.Handler(),
	}

	go func() {
		log.Info("streaming decode endpoint listening", "addr", cfg.Stream.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped unexpectedly", sl.Err(err))
		}
	}()

	metricsDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				application.Batch.Metrics().Log(log)
			case <-metricsDone:
				return
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	if err := httpServer.Close(); err != nil {
		log.Error("failed to close http server", sl.Err(err))
	}
	if err := application.Stop(); err != nil {
		log.Error("failed to close storage", sl.Err(err))
	}
	log.Info("gracefully stopped")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return log
}
