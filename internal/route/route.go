// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package route generates walker positions for testing the dashboard without
// a GPS receiver.
package route

import (
	"errors"
	"math"
	"time"

	"github.com/relabs-tech/navigation_guide/internal/geomap"
)

// WalkingSpeed is a typical walking pace in m/s.
const WalkingSpeed = 1.4

// Source yields the next position.
type Source interface {
	Next() (geomap.LatLng, error)
}

type mockSource struct {
	center  geomap.LatLng
	radiusM float64
	speed   float64
	start   time.Time
	now     func() time.Time
}

// NewMockSource creates a source that walks a circle of radiusM meters
// around center at walking pace.
func NewMockSource(center geomap.LatLng, radiusM float64) (Source, error) {
	return newMockSource(center, radiusM, time.Now)
}

func newMockSource(center geomap.LatLng, radiusM float64, now func() time.Time) (*mockSource, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if radiusM <= 0 {
		return nil, errors.New("route: radius must be positive")
	}
	return &mockSource{
		center:  center,
		radiusM: radiusM,
		speed:   WalkingSpeed,
		start:   now(),
		now:     now,
	}, nil
}

func (m *mockSource) Next() (geomap.LatLng, error) {
	elapsed := m.now().Sub(m.start).Seconds()
	angle := elapsed * m.speed / m.radiusM
	return Offset(m.center, m.radiusM*math.Cos(angle), m.radiusM*math.Sin(angle)), nil
}

// Offset moves p by north and east meters.
func Offset(p geomap.LatLng, north, east float64) geomap.LatLng {
	dLat := north / geomap.EarthRadiusM * 180 / math.Pi
	dLon := east / (geomap.EarthRadiusM * math.Cos(p.Lat*math.Pi/180)) * 180 / math.Pi
	return geomap.LatLng{Lat: p.Lat + dLat, Lon: p.Lon + dLon}
}
