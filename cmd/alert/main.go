// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/relabs-tech/navigation_guide/internal/app"
	"github.com/relabs-tech/navigation_guide/internal/config"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the TOML configuration file")
	timeout := flag.Duration("timeout", 15*time.Second, "give up after this long")
	flag.Parse()

	text := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(text) == "" {
		log.Fatalf("usage: alert [-config file] <alert text>")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer lg.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := app.RunAlert(ctx, cfg, lg, text); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
