// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package dashboard holds the navigation dashboard's view state and keeps it
// in step with the realtime database: connectivity, the walker's location on
// the map, and emergency alerts.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/relabs-tech/navigation_guide/internal/bootstrap"
	"github.com/relabs-tech/navigation_guide/internal/geomap"
	"github.com/relabs-tech/navigation_guide/internal/rtdb"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

// Status is the connection indicator.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusError      Status = "error"
)

// Label is the text shown next to the indicator.
func (s Status) Label() string {
	switch s {
	case StatusConnected:
		return "Connected"
	case StatusConnecting:
		return "Connecting..."
	default:
		return "Connection Error"
	}
}

// AlertPrefix marks emergency text in the view.
const AlertPrefix = "🚨 "

// removeTimeout bounds the delete that consumes an emergency record.
const removeTimeout = 5 * time.Second

// Paths are the database paths the dashboard watches and writes.
type Paths struct {
	Connected string
	Location  string
	Emergency string
	Voice     string
}

// DefaultPaths returns the standard layout.
func DefaultPaths() Paths {
	return Paths{
		Connected: rtdb.InfoConnected,
		Location:  "location",
		Emergency: "emergency",
		Voice:     "voice",
	}
}

// Timer is the part of *time.Timer the alert clock needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options tunes a Dashboard. Zero values take defaults.
type Options struct {
	Paths      Paths
	AlertTTL   time.Duration
	MarkerZoom int
	AfterFunc  AfterFunc
}

// View is everything the page renders.
type View struct {
	Status      Status       `json:"status"`
	StatusLabel string       `json:"status_label"`
	Loading     bool         `json:"loading"`
	Alert       string       `json:"alert,omitempty"`
	Map         geomap.State `json:"map"`
	Version     uint64       `json:"version"`
}

// Dashboard is the composed view.
type Dashboard struct {
	db     rtdb.Database
	widget geomap.Widget
	opts   Options
	logger *logger.Logger

	mu         sync.Mutex
	status     Status
	loading    bool
	ready      bool
	closed     bool
	alert      string
	alertGen   uint64
	alertTimer Timer
	marker     geomap.Pin
	subs       []rtdb.Unsubscribe
	version    uint64

	watchers    map[uint64]chan View
	nextWatcher uint64
}

// New creates a dashboard in the loading state. Nothing touches the database
// until Start.
func New(db rtdb.Database, widget geomap.Widget, opts Options, log *logger.Logger) *Dashboard {
	def := DefaultPaths()
	if opts.Paths.Connected == "" {
		opts.Paths.Connected = def.Connected
	}
	if opts.Paths.Location == "" {
		opts.Paths.Location = def.Location
	}
	if opts.Paths.Emergency == "" {
		opts.Paths.Emergency = def.Emergency
	}
	if opts.Paths.Voice == "" {
		opts.Paths.Voice = def.Voice
	}
	if opts.AlertTTL <= 0 {
		opts.AlertTTL = 10 * time.Second
	}
	if opts.MarkerZoom <= 0 {
		opts.MarkerZoom = 16
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}

	return &Dashboard{
		db:       db,
		widget:   widget,
		opts:     opts,
		logger:   log.Named("dashboard"),
		status:   StatusConnecting,
		loading:  true,
		watchers: make(map[uint64]chan View),
	}
}

// Start runs the bootstrap sequence and then wires the listeners. Any
// failure leaves the view in the error state and is returned for logging;
// the dashboard stays usable as a degraded view.
func (d *Dashboard) Start(ctx context.Context, seq *bootstrap.Sequencer) error {
	if seq != nil {
		if err := seq.Run(ctx); err != nil {
			d.fail(err)
			return err
		}
	}

	d.mu.Lock()
	d.ready = true
	d.status = StatusConnecting
	d.publishLocked()
	d.mu.Unlock()

	if err := d.wire(); err != nil {
		d.fail(err)
		return err
	}

	d.mu.Lock()
	d.loading = false
	d.publishLocked()
	d.mu.Unlock()
	d.logger.Info("dashboard ready",
		logger.String("location", d.opts.Paths.Location),
		logger.String("emergency", d.opts.Paths.Emergency),
	)
	return nil
}

func (d *Dashboard) wire() error {
	listeners := []struct {
		path string
		fn   rtdb.Listener
	}{
		{d.opts.Paths.Connected, d.handleConnected},
		{d.opts.Paths.Location, d.handleLocation},
		{d.opts.Paths.Emergency, d.handleEmergency},
	}

	subs := make([]rtdb.Unsubscribe, 0, len(listeners))
	for _, l := range listeners {
		off, err := d.db.On(l.path, l.fn)
		if err != nil {
			for _, o := range subs {
				o()
			}
			return err
		}
		subs = append(subs, off)
	}

	d.mu.Lock()
	closed := d.closed
	if !closed {
		d.subs = subs
	}
	d.mu.Unlock()

	if closed {
		for _, o := range subs {
			o()
		}
		return rtdb.ErrClosed
	}
	return nil
}

func (d *Dashboard) fail(err error) {
	d.logger.Error("dashboard initialization failed", logger.Error(err))
	d.mu.Lock()
	d.status = StatusError
	d.loading = false
	d.publishLocked()
	d.mu.Unlock()
}

func (d *Dashboard) handleConnected(s rtdb.Snapshot) {
	status := StatusError
	if s.IsTrue() {
		status = StatusConnected
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.status == status {
		return
	}
	d.status = status
	d.logger.Info("connection status changed", logger.String("status", string(status)))
	d.publishLocked()
}

type locationRecord struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (d *Dashboard) handleLocation(s rtdb.Snapshot) {
	if !s.Exists() {
		return
	}
	var rec locationRecord
	if err := s.Decode(&rec); err != nil {
		d.logger.Warn("ignoring malformed location", logger.Error(err))
		return
	}
	if rec.Lat == nil || rec.Lon == nil {
		d.logger.Warn("ignoring location without lat/lon", logger.String("raw", string(s.Raw)))
		return
	}
	pos := geomap.LatLng{Lat: *rec.Lat, Lon: *rec.Lon}
	if err := pos.Validate(); err != nil {
		d.logger.Warn("ignoring invalid location", logger.Error(err))
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.marker == nil {
		d.marker = d.widget.AddMarker(pos)
	} else {
		d.marker.SetLatLng(pos)
	}
	d.widget.SetView(pos, d.opts.MarkerZoom)
	d.publishLocked()
}

type emergencyRecord struct {
	Alert any `json:"alert"`
}

func (d *Dashboard) handleEmergency(s rtdb.Snapshot) {
	if !s.Exists() {
		return
	}
	var rec emergencyRecord
	if err := s.Decode(&rec); err != nil {
		d.logger.Warn("ignoring malformed emergency", logger.Error(err))
		return
	}
	text, ok := rec.Alert.(string)
	if !ok || text == "" {
		d.logger.Warn("ignoring emergency without alert text", logger.String("raw", string(s.Raw)))
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.alert = AlertPrefix + text
	d.alertGen++
	gen := d.alertGen
	if d.alertTimer != nil {
		d.alertTimer.Stop()
	}
	d.alertTimer = d.opts.AfterFunc(d.opts.AlertTTL, func() { d.clearAlert(gen) })
	d.publishLocked()
	d.mu.Unlock()

	d.logger.Warn("emergency alert received", logger.String("alert", text))

	// Consume the record so it is not delivered again.
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	if err := d.db.Remove(ctx, d.opts.Paths.Emergency); err != nil {
		d.logger.Error("failed to remove emergency record", logger.Error(err))
	}
}

// clearAlert drops the alert shown by generation gen. A newer alert has a
// newer generation and is left alone.
func (d *Dashboard) clearAlert(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || gen != d.alertGen || d.alert == "" {
		return
	}
	d.alert = ""
	d.alertTimer = nil
	d.publishLocked()
}

// View returns the current view.
func (d *Dashboard) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewLocked()
}

// Watch returns a channel that receives the current view at once and then
// every change. Only the newest view is kept for a slow reader. The channel
// is closed by cancel or by Close.
func (d *Dashboard) Watch() (<-chan View, func()) {
	ch := make(chan View, 1)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- d.viewLocked()
	d.nextWatcher++
	id := d.nextWatcher
	d.watchers[id] = ch

	return ch, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if c, ok := d.watchers[id]; ok {
			delete(d.watchers, id)
			close(c)
		}
	}
}

// Close tears down every listener and watcher.
func (d *Dashboard) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	subs := d.subs
	d.subs = nil
	if d.alertTimer != nil {
		d.alertTimer.Stop()
		d.alertTimer = nil
	}
	for id, ch := range d.watchers {
		delete(d.watchers, id)
		close(ch)
	}
	d.mu.Unlock()

	for _, off := range subs {
		off()
	}
	d.logger.Info("dashboard closed")
}

func (d *Dashboard) viewLocked() View {
	return View{
		Status:      d.status,
		StatusLabel: d.status.Label(),
		Loading:     d.loading,
		Alert:       d.alert,
		Map:         d.widget.State(),
		Version:     d.version,
	}
}

// publishLocked bumps the version and hands the view to every watcher,
// replacing a view the watcher has not read yet.
func (d *Dashboard) publishLocked() {
	d.version++
	v := d.viewLocked()
	for _, ch := range d.watchers {
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}
