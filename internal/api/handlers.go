// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package api

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/navigation_guide/internal/assets"
	"github.com/relabs-tech/navigation_guide/internal/dashboard"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

// maxVoiceBody bounds the voice request body.
const maxVoiceBody = 64 << 10

//go:embed static templates
var content embed.FS

var indexTmpl = template.Must(template.ParseFS(content, "templates/index.html"))

// Handler holds the HTTP handlers.
type Handler struct {
	dash     Dashboard
	cache    *assets.Cache
	opts     Options
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewHandler creates the handlers.
func NewHandler(dash Dashboard, cache *assets.Cache, opts Options, log *logger.Logger) *Handler {
	h := &Handler{
		dash:   dash,
		cache:  cache,
		opts:   opts,
		logger: log.Named("api"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(opts.CORSAllowedOrigins, origin)
		},
	}
	return h
}

// GetState returns the current view.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.dash.View())
}

type healthResponse struct {
	Status  dashboard.Status `json:"status"`
	Loading bool             `json:"loading"`
}

// GetHealth reports the connection status.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	v := h.dash.View()
	h.writeJSON(w, http.StatusOK, healthResponse{Status: v.Status, Loading: v.Loading})
}

type voiceRequest struct {
	Message string `json:"message"`
}

// SendVoice writes a voice message for the walker.
func (h *Handler) SendVoice(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxVoiceBody)).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, dashboard.Ack{Message: "Invalid request body."})
		return
	}

	err := h.dash.SendVoice(r.Context(), req.Message)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, dashboard.AckFor(nil))
	case errors.Is(err, dashboard.ErrEmptyMessage):
		h.writeJSON(w, http.StatusBadRequest, dashboard.Ack{Message: "Message is empty."})
	case errors.Is(err, dashboard.ErrNotReady):
		h.writeJSON(w, http.StatusServiceUnavailable, dashboard.AckFor(err))
	default:
		h.writeJSON(w, http.StatusBadGateway, dashboard.AckFor(err))
	}
}

// GetAsset serves a cached map widget asset, or redirects to its remote URL
// while bootstrap has not fetched it yet.
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var (
		it assets.Item
		ok bool
	)
	if h.cache != nil {
		it, ok = h.cache.Get(name)
	}
	if !ok {
		src, known := h.opts.AssetSources[name]
		if !known {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, src, http.StatusTemporaryRedirect)
		return
	}
	w.Header().Set("Content-Type", it.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(it.Body)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := w.Write(it.Body); err != nil {
		h.logger.Debug("asset write failed", logger.String("name", name), logger.Error(err))
	}
}

// Static serves the page's script and styles.
func (h *Handler) Static() http.Handler {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

type pageData struct {
	StylesheetURL string
	ScriptURL     string
}

// Index renders the dashboard page.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := pageData{StylesheetURL: h.opts.StylesheetURL, ScriptURL: h.opts.ScriptURL}
	if err := indexTmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render page", logger.Error(err))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("json encode error", logger.Error(err))
	}
}
