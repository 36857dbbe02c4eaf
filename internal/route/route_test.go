// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package route

import (
	"math"
	"testing"
	"time"

	"github.com/relabs-tech/navigation_guide/internal/geomap"
)

func TestMockSourceWalksCircle(t *testing.T) {
	center := geomap.LatLng{Lat: 12.9716, Lon: 77.5946}
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	src, err := newMockSource(center, 150, func() time.Time { return now })
	if err != nil {
		t.Fatalf("newMockSource() failed: %v", err)
	}

	prev, _ := src.Next()
	for i := 0; i < 20; i++ {
		now = now.Add(time.Second)
		p, err := src.Next()
		if err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		if d := geomap.Distance(center, p); math.Abs(d-150) > 1 {
			t.Errorf("distance from center = %.2f m, want 150", d)
		}
		if step := geomap.Distance(prev, p); math.Abs(step-WalkingSpeed) > 0.05 {
			t.Errorf("step = %.3f m, want %.1f", step, WalkingSpeed)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("invalid position: %v", err)
		}
		prev = p
	}
}

func TestMockSourceRejectsBadInput(t *testing.T) {
	if _, err := NewMockSource(geomap.LatLng{Lat: 95}, 100); err == nil {
		t.Error("invalid center accepted")
	}
	if _, err := NewMockSource(geomap.LatLng{}, 0); err == nil {
		t.Error("zero radius accepted")
	}
}

func TestOffset(t *testing.T) {
	p := geomap.LatLng{Lat: 51.5, Lon: -0.12}
	q := Offset(p, 1000, 0)
	if d := geomap.Distance(p, q); math.Abs(d-1000) > 0.5 {
		t.Errorf("distance = %.2f, want 1000", d)
	}
	if q.Lon != p.Lon {
		t.Errorf("northward offset changed longitude")
	}
}
