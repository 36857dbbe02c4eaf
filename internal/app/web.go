// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/relabs-tech/navigation_guide/internal/api"
	"github.com/relabs-tech/navigation_guide/internal/assets"
	"github.com/relabs-tech/navigation_guide/internal/bootstrap"
	"github.com/relabs-tech/navigation_guide/internal/config"
	"github.com/relabs-tech/navigation_guide/internal/dashboard"
	"github.com/relabs-tech/navigation_guide/internal/geomap"
	"github.com/relabs-tech/navigation_guide/internal/rtdb"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// RunDashboard serves the dashboard until ctx is done. The page is served
// from the start; the view stays in the loading state until the bootstrap
// sequence finishes and shows the error state if it fails.
func RunDashboard(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	db, err := NewDatabase(cfg, cfg.MQTT.ClientID, log)
	if err != nil {
		return err
	}
	defer db.Close()

	widget := geomap.New(geomap.Options{
		Center:      geomap.LatLng{Lat: cfg.Map.CenterLat, Lon: cfg.Map.CenterLon},
		Zoom:        cfg.Map.Zoom,
		MaxZoom:     cfg.Map.MaxZoom,
		TileURL:     cfg.Map.TileURL,
		Attribution: cfg.Map.Attribution,
	})
	dash := dashboard.New(db, widget, dashboard.Options{
		Paths:      dashboardPaths(cfg),
		AlertTTL:   cfg.Dashboard.AlertTTL.Duration,
		MarkerZoom: cfg.Dashboard.MarkerZoom,
	}, log)
	defer dash.Close()

	cache := assets.NewCache()
	seq, page, err := bootstrapSequence(cfg, db, cache, log)
	if err != nil {
		return err
	}

	router := api.NewRouter(dash, cache, api.Options{
		CORSAllowedOrigins: cfg.Web.CORSAllowedOrigins,
		WriteWait:          cfg.Web.WriteWait.Duration,
		PingInterval:       cfg.Web.PingInterval.Duration,
		StylesheetURL:      page.StylesheetURL,
		ScriptURL:          page.ScriptURL,
		AssetSources:       page.Sources,
	}, log)

	srv := &http.Server{
		Addr:              cfg.Web.Listen,
		Handler:           router.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("web server listening", logger.String("addr", cfg.Web.Listen))
		errCh <- srv.ListenAndServe()
	}()

	go func() {
		if err := dash.Start(ctx, seq); err != nil {
			log.Warn("dashboard running degraded", logger.Error(err))
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("web server shutdown", logger.Error(err))
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server: %w", err)
	}
}

// pageAssets are the asset URLs the page links to. Sources maps proxied
// names back to their remote URLs.
type pageAssets struct {
	StylesheetURL string
	ScriptURL     string
	Sources       map[string]string
}

// bootstrapSequence orders startup: map stylesheet, then the realtime
// client, then the map script. Proxied assets are fetched into cache and
// served from /vendor; otherwise the page links the remote URLs directly.
func bootstrapSequence(cfg *config.Config, db rtdb.Database, cache *assets.Cache, log *logger.Logger) (*bootstrap.Sequencer, pageAssets, error) {
	page := pageAssets{StylesheetURL: cfg.Map.StylesheetURL, ScriptURL: cfg.Map.ScriptURL}
	seq := bootstrap.New(cfg.Bootstrap.StepTimeout.Duration, log)

	if !cfg.Map.ProxyAssets {
		seq.Add("realtime-client", db.Connect)
		return seq, page, nil
	}

	stylesheet, err := assets.FromURL(cfg.Map.StylesheetURL)
	if err != nil {
		return nil, page, err
	}
	script, err := assets.FromURL(cfg.Map.ScriptURL)
	if err != nil {
		return nil, page, err
	}
	loader := assets.NewLoader(cache, cfg.Bootstrap.StepTimeout.Duration, log)

	seq.Add("map-stylesheet", func(ctx context.Context) error { return loader.Load(ctx, stylesheet) }).
		Add("realtime-client", db.Connect).
		Add("map-script", func(ctx context.Context) error { return loader.Load(ctx, script) })

	page.StylesheetURL = "/vendor/" + stylesheet.Name
	page.ScriptURL = "/vendor/" + script.Name
	page.Sources = map[string]string{
		stylesheet.Name: stylesheet.URL,
		script.Name:     script.URL,
	}
	return seq, page, nil
}
