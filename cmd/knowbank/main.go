// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/poiesic/knowbank"
	"github.com/poiesic/knowbank/extract"
	"github.com/poiesic/knowbank/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// app carries state shared by all commands once the config is loaded.
type app struct {
	cfg Config
}

func newApp() *cli.App {
	a := &app{}
	return &cli.App{
		Name:  "knowbank",
		Usage: "Semantic indexing and adaptive clustering of documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides the config file",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"KNOWBANK_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
				EnvVars: []string{"KNOWBANK_DB"},
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address while the command runs",
			},
		},
		Before:   a.setup,
		Commands: a.commands(),
	}
}

func (a *app) setup(c *cli.Context) error {
	cfg, err := LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("db") {
		cfg.Database.Path = c.String("db")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
	a.cfg = cfg
	return setupLogger(cfg.Logging.Level)
}

// open acquires the instance lock and opens the database. The returned func
// releases everything.
func (a *app) open() (*knowbank.Database, func(), error) {
	dbPath := a.cfg.Database.Path
	if dbPath == "" {
		return nil, nil, fmt.Errorf("database path is required (--db or database.path)")
	}

	unlock, err := acquireLock(dbPath)
	if err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	srv := a.serveMetrics(reg)

	extractor := extract.NewKeywordExtractor(
		extract.WithMaxKeywords(a.cfg.Extractor.MaxKeywords),
		extract.WithMinKeywordLength(a.cfg.Extractor.MinKeywordLength),
		extract.WithKeywordLogger(slog.Default()),
	)

	db, err := knowbank.NewDatabase(dbPath,
		knowbank.WithExtractor(extractor),
		knowbank.WithDatabaseLogger(slog.Default()),
		knowbank.WithBankOptions(
			knowbank.WithConfig(a.cfg.BankConfig()),
			knowbank.WithMetrics(m),
		),
	)
	if err != nil {
		stopMetrics(srv)
		unlock()
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			slog.Error("error closing database", "err", err)
		}
		stopMetrics(srv)
		unlock()
	}, nil
}

func (a *app) serveMetrics(reg *prometheus.Registry) *http.Server {
	if a.cfg.Metrics.Addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", srv.Addr, "err", err)
		}
	}()
	slog.Info("serving metrics", "addr", srv.Addr)
	return srv
}

func stopMetrics(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("error stopping metrics server", "err", err)
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
	}
}

func setupLogger(levelStr string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
