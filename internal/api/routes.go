// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package api serves the dashboard page, its JSON endpoints and the
// WebSocket that pushes view updates to the browser.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/relabs-tech/navigation_guide/internal/assets"
	"github.com/relabs-tech/navigation_guide/internal/dashboard"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

// Dashboard is the part of *dashboard.Dashboard the handlers use.
type Dashboard interface {
	View() dashboard.View
	Watch() (<-chan dashboard.View, func())
	SendVoice(ctx context.Context, msg string) error
}

// Options configures the router.
type Options struct {
	CORSAllowedOrigins []string
	WriteWait          time.Duration
	PingInterval       time.Duration
	// Page asset locations; served from /vendor when proxied.
	StylesheetURL string
	ScriptURL     string
	// AssetSources maps a /vendor name to its remote URL. Requests for an
	// asset that is not cached yet are redirected there.
	AssetSources map[string]string
}

// Router is the API router.
type Router struct {
	handler    *Handler
	middleware *Middleware
	opts       Options
	logger     *logger.Logger
}

// NewRouter creates a router over dash. cache may be nil when assets are not
// proxied.
func NewRouter(dash Dashboard, cache *assets.Cache, opts Options, log *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(dash, cache, opts, log),
		middleware: NewMiddleware(log),
		opts:       opts,
		logger:     log.Named("api-router"),
	}
}

// Routes returns the HTTP handler.
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.opts.CORSAllowedOrigins))

	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/state", r.handler.GetState)
		router.Post("/voice", r.handler.SendVoice)
		router.Get("/health", r.handler.GetHealth)
		router.Get("/ws", r.handler.HandleWebSocket)
	})

	router.Get("/vendor/{name}", r.handler.GetAsset)
	router.Handle("/static/*", r.handler.Static())
	router.Get("/", r.handler.Index)

	return router
}
