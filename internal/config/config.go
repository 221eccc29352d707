// Package config handles application configuration from flags and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Supported transports for the tool adapter.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath    string        `long:"db" env:"FEED_READER_DB_PATH" default:"./data/feed_reader.db" description:"Path to the SQLite database"`
	LogLevel        string        `long:"log-level" env:"LOG_LEVEL" default:"info" description:"Log level (debug, info, warn, error)"`
	Transport       string        `long:"transport" env:"FEED_READER_TRANSPORT" default:"stdio" description:"Tool transport (stdio, http)"`
	Addr            string        `long:"addr" env:"FEED_READER_ADDR" default:"127.0.0.1:3001" description:"Listen address for the http transport"`
	FetchTimeout    time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30s" description:"Timeout for a single HTTP fetch"`
	ScanConcurrency int           `long:"scan-concurrency" env:"SCAN_CONCURRENCY" default:"4" description:"Number of blogs scanned in parallel"`
	UserAgent       string        `long:"user-agent" env:"USER_AGENT" default:"FeedReader/1.0" description:"User agent for HTTP requests"`
}

// Load parses args (without the program name) and the environment.
// It returns nil, nil when help was requested.
func Load(args []string) (*Config, error) {
	var cfg Config

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	if c.Transport != TransportStdio && c.Transport != TransportHTTP {
		return fmt.Errorf("invalid transport %q: want %s or %s", c.Transport, TransportStdio, TransportHTTP)
	}
	if c.ScanConcurrency < 1 {
		return fmt.Errorf("scan concurrency must be positive, got %d", c.ScanConcurrency)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.DatabasePath == "" {
		return errors.New("database path is required")
	}
	return nil
}
