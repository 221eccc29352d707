package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"feedreader/internal/config"
	"feedreader/internal/discovery"
	"feedreader/internal/fetcher"
	"feedreader/internal/scanner"
	"feedreader/internal/server"
	"feedreader/internal/service"
	"feedreader/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if cfg == nil {
		return
	}

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	f := fetcher.New(http.DefaultClient, cfg.FetchTimeout, cfg.UserAgent)
	svc := service.New(
		store,
		discovery.New(f, log),
		scanner.New(store, f, cfg.ScanConcurrency, log),
		log,
	)
	srv := server.New(svc, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting feed reader", "transport", cfg.Transport, "db", cfg.DatabasePath)

	switch cfg.Transport {
	case config.TransportHTTP:
		err = srv.ListenAndServe(ctx, cfg.Addr)
	default:
		err = srv.ServeStdio(ctx, os.Stdin, os.Stdout)
	}
	if err != nil {
		log.Error("serve", "error", err)
		os.Exit(1)
	}

	log.Info("feed reader stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
