package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/irvifa/collaborative-editor/internal/client"
	"github.com/irvifa/collaborative-editor/internal/config"
	"github.com/irvifa/collaborative-editor/internal/discovery"
	"github.com/irvifa/collaborative-editor/internal/logger"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "", "Server websocket URL (overrides COLLAB_SERVER_URL)")
	journalPath := flag.String("journal", "", "Path to local journal (overrides COLLAB_JOURNAL)")
	discover := flag.Bool("discover", false, "Find the server over mDNS")
	flag.Parse()

	if *showVersion {
		fmt.Printf("CollabText Client\nVersion:    %s\nBuild Date: %s\nGit Commit: %s\n", Version, BuildDate, GitCommit)
		return
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *journalPath != "" {
		cfg.Journal = *journalPath
	}
	if *discover {
		cfg.Discover = true
	}

	// stdout belongs to the document view.
	log := logger.NewWithWriter(os.Stderr, "collabtext-client", cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("client stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, cfg config.Client) error {
	if cfg.Discover {
		dctx, cancel := context.WithTimeout(ctx, cfg.MDNS.Timeout)
		url, err := discovery.Browse(dctx, log, cfg.MDNS.Service, cfg.MDNS.Domain)
		cancel()
		if err != nil {
			log.Warn("discovery failed, using configured URL", slog.String("url", cfg.ServerURL), logger.Error(err))
		} else {
			cfg.ServerURL = url
		}
	}

	var journal *client.Journal
	if cfg.Journal != "" {
		j, err := client.OpenJournal(ctx, cfg.Journal)
		if err != nil {
			return err
		}
		defer func() {
			if err := j.Close(); err != nil {
				log.Error("failed to close journal", logger.Error(err))
			}
		}()
		journal = j

		if snap, err := j.Replay(); err == nil {
			fmt.Printf("Last known document [v%d] %q\n", snap.Version, snap.Content)
		} else if !errors.Is(err, client.ErrNoSnapshot) {
			log.Warn("failed to replay journal", logger.Error(err))
		}
	}

	dialer := &client.Dialer{URL: cfg.ServerURL, MaxRetries: cfg.MaxRetries, Logger: log}
	replica := client.NewReplica()
	lines := client.ReadLines(os.Stdin)

	for {
		conn, err := dialer.Dial(ctx)
		if err != nil {
			return err
		}

		opts := []client.SessionOption{client.WithReplica(replica)}
		if journal != nil {
			opts = append(opts, client.WithJournal(journal))
		}
		err = client.NewSession(conn, os.Stdout, log, opts...).Run(ctx, lines)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, client.ErrConnectionLost), errors.Is(err, client.ErrDiverged):
			log.Warn("reconnecting", logger.Error(err))
		default:
			return err
		}
	}
}
