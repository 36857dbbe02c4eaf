// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/navigation_guide/internal/app"
	"github.com/relabs-tech/navigation_guide/internal/config"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the TOML configuration file")
	flag.Parse()

	log.Println("starting navigation guide GPS producer (NMEA → location)")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunGPSProducer(ctx, cfg, lg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
