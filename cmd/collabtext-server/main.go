package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/irvifa/collaborative-editor/internal/config"
	"github.com/irvifa/collaborative-editor/internal/feed"
	"github.com/irvifa/collaborative-editor/internal/logger"
	"github.com/irvifa/collaborative-editor/internal/server"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	addr := flag.String("addr", "", "Listen address (overrides COLLAB_ADDR)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("CollabText Server\nVersion:    %s\nBuild Date: %s\nGit Commit: %s\n", Version, BuildDate, GitCommit)
		return
	}

	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	log := logger.New("collabtext-server", cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := dialSinks(ctx, log, cfg.Feed)
	dispatcher := feed.NewDispatcher(log, cfg.Feed.QueueSize, sinks...)

	srv := server.New(cfg, log, server.WithFeed(dispatcher))
	if err := srv.Run(ctx); err != nil {
		log.Error("server stopped", logger.Error(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}

// dialSinks connects the configured feed sinks. A sink that cannot be reached
// is logged and skipped; the server runs without it.
func dialSinks(ctx context.Context, log *slog.Logger, cfg config.Feed) []feed.Sink {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var sinks []feed.Sink
	if cfg.RedisURL != "" {
		sink, err := feed.DialRedis(ctx, cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			log.Error("redis feed disabled", logger.Error(err))
		} else {
			log.Info("connected to redis", slog.String("channel", cfg.RedisChannel))
			sinks = append(sinks, sink)
		}
	}
	if cfg.DatabaseURL != "" {
		sink, err := feed.DialPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres feed disabled", logger.Error(err))
		} else {
			log.Info("connected to postgres")
			sinks = append(sinks, sink)
		}
	}
	return sinks
}
