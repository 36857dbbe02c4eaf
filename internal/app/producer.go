// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/relabs-tech/navigation_guide/internal/config"
	"github.com/relabs-tech/navigation_guide/internal/geomap"
	"github.com/relabs-tech/navigation_guide/internal/gps"
	"github.com/relabs-tech/navigation_guide/internal/route"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

// RunProducer writes a simulated walk around the map center to the location
// path until ctx is done.
func RunProducer(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	log = log.Named("producer")

	center := geomap.LatLng{Lat: cfg.Map.CenterLat, Lon: cfg.Map.CenterLon}
	src, err := route.NewMockSource(center, cfg.Producer.RadiusM)
	if err != nil {
		return err
	}

	db, err := NewDatabase(cfg, cfg.Producer.ClientID, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Connect(ctx); err != nil {
		return fmt.Errorf("connect realtime database: %w", err)
	}

	ticker := time.NewTicker(cfg.Producer.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			pos, err := src.Next()
			if err != nil {
				log.Warn("error from mock source", logger.Error(err))
				continue
			}
			if err := db.Set(ctx, cfg.Paths.Location, gps.SyntheticFix(pos.Lat, pos.Lon, t)); err != nil {
				log.Warn("location publish error", logger.Error(err))
				continue
			}
			log.Debug("published location",
				logger.Float64("lat", pos.Lat),
				logger.Float64("lon", pos.Lon),
			)
		}
	}
}
