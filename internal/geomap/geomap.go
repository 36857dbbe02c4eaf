// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package geomap models the map widget the page renders: a view (center and
// zoom) and at most one marker.
package geomap

import (
	"fmt"
	"math"
	"sync"
)

// LatLng is a WGS84 coordinate in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks the coordinate is finite and in range.
func (p LatLng) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return fmt.Errorf("coordinate %v,%v is not finite", p.Lat, p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %v out of range", p.Lon)
	}
	return nil
}

// EarthRadiusM is the mean Earth radius in meters.
const EarthRadiusM = 6371000.0

// Distance is the great-circle distance between a and b in meters.
func Distance(a, b LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusM * math.Asin(math.Sqrt(h))
}

// Options is the static part of the widget the page needs to draw it.
type Options struct {
	Center      LatLng
	Zoom        int
	MaxZoom     int
	TileURL     string
	Attribution string
}

// State is what the page renders.
type State struct {
	Center      LatLng  `json:"center"`
	Zoom        int     `json:"zoom"`
	MaxZoom     int     `json:"max_zoom"`
	TileURL     string  `json:"tile_url"`
	Attribution string  `json:"attribution"`
	Marker      *LatLng `json:"marker,omitempty"`
}

// Widget is the map as the dashboard drives it.
type Widget interface {
	SetView(center LatLng, zoom int)
	AddMarker(pos LatLng) Pin
	State() State
}

// Pin is a marker that can be moved.
type Pin interface {
	SetLatLng(pos LatLng)
	LatLng() LatLng
}

// Map is the in-memory Widget.
type Map struct {
	mu     sync.RWMutex
	opts   Options
	center LatLng
	zoom   int
	marker *Marker
}

var _ Widget = (*Map)(nil)

// New returns a map showing the default view.
func New(opts Options) *Map {
	m := &Map{opts: opts}
	m.center = opts.Center
	m.zoom = m.clampZoom(opts.Zoom)
	return m
}

// SetView recenters the map.
func (m *Map) SetView(center LatLng, zoom int) {
	m.mu.Lock()
	m.center = center
	m.zoom = m.clampZoom(zoom)
	m.mu.Unlock()
}

// AddMarker places a marker and returns it. The map shows one marker, so a
// second call replaces the first.
func (m *Map) AddMarker(pos LatLng) Pin {
	mk := &Marker{m: m}
	m.mu.Lock()
	m.marker = mk
	mk.pos = pos
	m.mu.Unlock()
	return mk
}

// State copies the current view.
func (m *Map) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := State{
		Center:      m.center,
		Zoom:        m.zoom,
		MaxZoom:     m.opts.MaxZoom,
		TileURL:     m.opts.TileURL,
		Attribution: m.opts.Attribution,
	}
	if m.marker != nil {
		pos := m.marker.pos
		s.Marker = &pos
	}
	return s
}

func (m *Map) clampZoom(z int) int {
	if z < 0 {
		return 0
	}
	if m.opts.MaxZoom > 0 && z > m.opts.MaxZoom {
		return m.opts.MaxZoom
	}
	return z
}

// Marker is a pin on a Map.
type Marker struct {
	m   *Map
	pos LatLng
}

// SetLatLng moves the marker.
func (mk *Marker) SetLatLng(pos LatLng) {
	mk.m.mu.Lock()
	mk.pos = pos
	mk.m.mu.Unlock()
}

// LatLng returns the marker position.
func (mk *Marker) LatLng() LatLng {
	mk.m.mu.RLock()
	defer mk.m.mu.RUnlock()
	return mk.pos
}
