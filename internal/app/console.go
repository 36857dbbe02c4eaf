// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/relabs-tech/navigation_guide/internal/config"
	"github.com/relabs-tech/navigation_guide/internal/geocode"
	"github.com/relabs-tech/navigation_guide/internal/geomap"
	"github.com/relabs-tech/navigation_guide/internal/gps"
	"github.com/relabs-tech/navigation_guide/internal/rtdb"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

// consoleOut serializes writes from concurrent listeners.
type consoleOut struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *consoleOut) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// RunConsole prints connectivity, location, emergency and voice updates to
// out until ctx is done. Emergency records are shown but left in place. With
// a geocode API key, locations are followed by their street address.
func RunConsole(ctx context.Context, cfg *config.Config, log *logger.Logger, out io.Writer) error {
	log = log.Named("console")
	con := &consoleOut{out: out}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var onFix func(geomap.LatLng)
	if cfg.Geocode.APIKey != "" {
		g, err := geocode.NewGoogle(cfg.Geocode.APIKey)
		if err != nil {
			return err
		}
		follower := geocode.NewFollower(geocode.NewCached(g, cfg.Geocode.MinMove), cfg.Geocode.Timeout.Duration,
			func(p geomap.LatLng, addr string, err error) {
				if err != nil {
					log.Warn("address lookup failed", logger.Error(err))
					return
				}
				con.printf("[ADDR]  %s\n", addr)
			})
		go follower.Run(ctx)
		onFix = follower.Offer
	}

	db, err := NewDatabase(cfg, cfg.MQTT.ClientID+"-console", log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Connect(ctx); err != nil {
		return fmt.Errorf("connect realtime database: %w", err)
	}

	offs, err := watchConsole(db, cfg, log, con, onFix)
	if err != nil {
		return err
	}
	defer func() {
		for _, off := range offs {
			off()
		}
	}()

	<-ctx.Done()
	log.Info("console shutting down")
	return nil
}

// watchConsole subscribes the console printers and returns their
// unsubscribe funcs. onFix, if set, receives every decoded position.
func watchConsole(db rtdb.Database, cfg *config.Config, log *logger.Logger, con *consoleOut, onFix func(geomap.LatLng)) ([]rtdb.Unsubscribe, error) {
	printf := con.printf

	printers := []struct {
		path string
		fn   rtdb.Listener
	}{
		{cfg.Paths.Connected, func(s rtdb.Snapshot) {
			printf("[LINK]  connected=%t\n", s.IsTrue())
		}},
		{cfg.Paths.Location, func(s rtdb.Snapshot) {
			if !s.Exists() {
				return
			}
			var f gps.Fix
			if err := s.Decode(&f); err != nil {
				log.Warn("location unmarshal error", logger.Error(err))
				return
			}
			printf("[GPS ]  time=%s date=%s lat=%.6f lon=%.6f speed=%.1fkn course=%.1f° validity=%s\n",
				f.Time, f.Date, f.Latitude, f.Longitude, f.SpeedKnots, f.CourseDeg, f.Validity)
			if onFix != nil {
				onFix(geomap.LatLng{Lat: f.Latitude, Lon: f.Longitude})
			}
		}},
		{cfg.Paths.Emergency, func(s rtdb.Snapshot) {
			if !s.Exists() {
				return
			}
			var e struct {
				Alert string `json:"alert"`
			}
			if err := s.Decode(&e); err != nil {
				log.Warn("emergency unmarshal error", logger.Error(err))
				return
			}
			printf("[SOS ]  %s\n", e.Alert)
		}},
		{cfg.Paths.Voice, func(s rtdb.Snapshot) {
			if !s.Exists() {
				return
			}
			var msg string
			if err := s.Decode(&msg); err != nil {
				log.Warn("voice unmarshal error", logger.Error(err))
				return
			}
			printf("[VOICE] %q\n", msg)
		}},
	}

	offs := make([]rtdb.Unsubscribe, 0, len(printers))
	for _, p := range printers {
		off, err := db.On(p.path, p.fn)
		if err != nil {
			for _, o := range offs {
				o()
			}
			return nil, fmt.Errorf("subscribe %s: %w", p.path, err)
		}
		offs = append(offs, off)
		log.Info("subscribed", logger.String("path", p.path))
	}
	return offs, nil
}
