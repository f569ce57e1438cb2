// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the skillrouter daemon. The
// daemon loads the skill and agent catalogs, builds the routing engine and
// execution sandbox, and serves the routing API over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/skillrouter/internal/api"
	"github.com/traylinx/skillrouter/internal/audit"
	"github.com/traylinx/skillrouter/internal/catalog"
	"github.com/traylinx/skillrouter/internal/config"
	"github.com/traylinx/skillrouter/internal/engine"
	"github.com/traylinx/skillrouter/internal/ledger"
	"github.com/traylinx/skillrouter/internal/logging"
	"github.com/traylinx/skillrouter/internal/sandbox"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.SetupBaseLogger()
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("skillrouter failed to start: %v", err)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "config.yaml", "path to the configuration file")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("skillrouter %s (%s, built %s)\n", Version, Commit, BuildDate)
		return nil
	}

	// .env is optional; real deployments use the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Debug("Loaded environment from .env")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogsDir); err != nil {
		return fmt.Errorf("failed to configure log output: %w", err)
	}

	if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	cat, err := catalog.Load(cfg.SkillsDir, cfg.AgentsFile, cfg.Sandbox.AllowedExtensions)
	if err != nil {
		return fmt.Errorf("failed to load catalogs: %w", err)
	}
	log.Infof("Loaded %d skills and %d agents", cat.SkillCount(), cat.AgentCount())

	store, err := ledger.NewStore(cfg.LedgerPath(), cfg.Ledger.MaxEntries)
	if err != nil {
		return err
	}
	defer store.Close()

	router, err := engine.NewRouter(cfg.Routing, cat, store)
	if err != nil {
		return err
	}

	// Hot reload swaps a fresh catalog into both the router and the sandbox.
	var currentCatalog atomic.Pointer[catalog.Catalog]
	currentCatalog.Store(cat)
	watcher := catalog.NewWatcher(cfg.SkillsDir, cfg.AgentsFile, cfg.Sandbox.AllowedExtensions, func(c *catalog.Catalog) {
		currentCatalog.Store(c)
		router.SetCatalog(c)
	})
	if err := watcher.Start(); err != nil {
		log.Warnf("Catalog hot reload unavailable: %v", err)
	}
	defer watcher.Stop()

	auditor, err := audit.NewLogger(cfg.Audit, cfg.AuditLogPath())
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer auditor.Close()

	cache, err := sandbox.NewCache(context.Background(), cfg.CachePath(),
		time.Duration(cfg.Sandbox.CacheTTLSeconds)*time.Second, cfg.Sandbox.CacheRetentionDays)
	if err != nil {
		return fmt.Errorf("failed to open execution cache: %w", err)
	}
	defer cache.Close()

	sb, err := sandbox.New(cfg.Sandbox, cfg.SkillsDir, currentCatalog.Load, cache, auditor)
	if err != nil {
		return err
	}

	server := api.NewServer(router, sb, cfg.Debug)
	return server.Run(cfg.Host, cfg.Port)
}
