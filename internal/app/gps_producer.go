// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/navigation_guide/internal/config"
	"github.com/relabs-tech/navigation_guide/internal/gps"
	"github.com/relabs-tech/navigation_guide/internal/rtdb"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// writes every valid RMC fix to the location path.
func RunGPSProducer(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	log = log.Named("gps-producer")

	db, err := NewDatabase(cfg, cfg.GPS.ClientID, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Connect(ctx); err != nil {
		return fmt.Errorf("connect realtime database: %w", err)
	}

	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPS.SerialPort,
		BaudRate:              uint(cfg.GPS.BaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(serialOpts)
	if err != nil {
		return fmt.Errorf("open %s: %w", serialOpts.PortName, err)
	}
	log.Info("GPS serial port opened",
		logger.String("port", serialOpts.PortName),
		logger.Int("baud", cfg.GPS.BaudRate),
	)

	// Closing the port unblocks the pending read on shutdown.
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	err = publishFixes(ctx, port, db, cfg.Paths.Location, log)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// publishFixes copies valid fixes from r to path.
func publishFixes(ctx context.Context, r io.Reader, db rtdb.Database, path string, log *logger.Logger) error {
	publish := func(fix gps.Fix) error {
		if err := db.Set(ctx, path, fix); err != nil {
			// a dropped write is retried by the next fix
			log.Warn("GPS publish error", logger.Error(err))
			return nil
		}
		log.Debug("published GPS fix",
			logger.Float64("lat", fix.Latitude),
			logger.Float64("lon", fix.Longitude),
			logger.String("time", fix.Time),
		)
		return nil
	}
	skip := func(line string, err error) {
		log.Debug("skipping NMEA line", logger.String("line", line), logger.Error(err))
	}
	return gps.ReadFixes(ctx, r, publish, skip)
}
