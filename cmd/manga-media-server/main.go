package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/astas888/manga-media-server/internal/api"
	mmsconfig "github.com/astas888/manga-media-server/internal/config"
	"github.com/astas888/manga-media-server/internal/database"
	"github.com/astas888/manga-media-server/internal/logutils"
	"github.com/astas888/manga-media-server/internal/ratelimit"
	"github.com/astas888/manga-media-server/internal/scheduler"
	"github.com/astas888/manga-media-server/internal/source"
	"github.com/astas888/manga-media-server/internal/source/mangapill"
	"github.com/astas888/manga-media-server/internal/storage"
)

const shutdownTimeout = 10 * time.Second

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	config, err := mmsconfig.NewConfig()
	if err != nil {
		logutils.Log.WithError(err).Fatal("Failed to initialize configuration")
	}

	logutils.InitLogger(config.LogLevel)
	logutils.Log.WithFields(map[string]any{
		"version":    Version,
		"build_time": BuildTime,
	}).Info("Starting Manga Media Server")

	sink, err := storage.NewLocalSink(config.DownloadDir)
	if err != nil {
		logutils.Log.WithError(err).Fatal("Failed to prepare the download directory")
	}

	history, err := database.NewDatabase(config.HistoryDB)
	if err != nil {
		logutils.Log.WithError(err).Fatal("Failed to initialize the history database")
	}

	sources := source.NewRegistry()
	sources.Register(mangapill.New())
	logutils.Log.WithField("sources", sources.Names()).Info("Source adapters registered")

	limiters := ratelimit.NewRegistry(config.RateLimitSettings)

	sched := scheduler.New(config, sources, limiters, sink, history)
	logutils.Log.Info("Scheduler initialized")

	server := api.NewServer(sched, config.ListenAddr, config.APIKey)

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logutils.Log.WithError(serveErr).Fatal("API server failed")
		}
	}()
	logutils.Log.WithField("listen_addr", config.ListenAddr).Info("Manga Media Server started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logutils.Log.Info("Received shutdown signal, starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if shutdownErr := server.Shutdown(ctx); shutdownErr != nil {
		logutils.Log.WithError(shutdownErr).Warn("API server shutdown failed")
	}

	sched.Stop()
	logutils.Log.Info("All downloads stopped")

	logutils.Log.Info("Manga Media Server shutdown complete")
}
