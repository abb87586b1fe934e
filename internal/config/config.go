// Package config loads server and client settings from the environment.
// A .env file in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/irvifa/collaborative-editor/internal/logger"
)

// Server configures the collaboration server.
type Server struct {
	Addr            string        `env:"COLLAB_ADDR" envDefault:":8080"`
	PeerBuffer      int           `env:"COLLAB_PEER_BUFFER" envDefault:"256"`
	WriteTimeout    time.Duration `env:"COLLAB_WRITE_TIMEOUT" envDefault:"10s"`
	PingInterval    time.Duration `env:"COLLAB_PING_INTERVAL" envDefault:"30s"`
	ReadLimit       int64         `env:"COLLAB_READ_LIMIT" envDefault:"1048576"`
	ShutdownTimeout time.Duration `env:"COLLAB_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	Feed Feed
	MDNS MDNS
	Log  logger.Config
}

// Feed configures the outbound applied-edit feed. Each sink is enabled only
// when its URL is set.
type Feed struct {
	RedisURL     string `env:"COLLAB_REDIS_URL"`
	RedisChannel string `env:"COLLAB_REDIS_CHANNEL" envDefault:"collabtext:edits"`
	DatabaseURL  string `env:"COLLAB_DATABASE_URL"`
	QueueSize    int    `env:"COLLAB_FEED_QUEUE" envDefault:"1024"`
}

// MDNS configures service advertisement and discovery.
type MDNS struct {
	Enabled  bool          `env:"COLLAB_MDNS" envDefault:"false"`
	Service  string        `env:"COLLAB_MDNS_SERVICE" envDefault:"_collabtext._tcp"`
	Domain   string        `env:"COLLAB_MDNS_DOMAIN" envDefault:"local."`
	Instance string        `env:"COLLAB_MDNS_INSTANCE"`
	Timeout  time.Duration `env:"COLLAB_MDNS_TIMEOUT" envDefault:"5s"`
}

// Client configures the interactive collaborator.
type Client struct {
	ServerURL  string `env:"COLLAB_SERVER_URL" envDefault:"ws://localhost:8080/ws"`
	MaxRetries uint64 `env:"COLLAB_MAX_RETRIES" envDefault:"5"`
	Journal    string `env:"COLLAB_JOURNAL"`
	Discover   bool   `env:"COLLAB_DISCOVER" envDefault:"false"`

	MDNS MDNS
	Log  logger.Config
}

// LoadServer reads the server configuration.
func LoadServer() (Server, error) {
	var cfg Server
	if err := load(&cfg); err != nil {
		return Server{}, err
	}
	if cfg.PeerBuffer < 1 {
		return Server{}, fmt.Errorf("config: COLLAB_PEER_BUFFER must be positive, got %d", cfg.PeerBuffer)
	}
	return cfg, nil
}

// LoadClient reads the client configuration.
func LoadClient() (Client, error) {
	var cfg Client
	if err := load(&cfg); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func load(v any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load .env: %w", err)
	}
	if err := env.Parse(v); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
