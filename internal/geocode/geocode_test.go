// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"googlemaps.github.io/maps"

	"github.com/relabs-tech/navigation_guide/internal/geomap"
)

type countingResolver struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingResolver) Reverse(_ context.Context, p geomap.LatLng) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "Street " + strings.Repeat("I", c.calls), nil
}

func TestGoogleReverse(t *testing.T) {
	var gotLatLng string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLatLng = r.URL.Query().Get("latlng")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK","results":[{"formatted_address":"MG Road, Bengaluru, Karnataka, India"}]}`))
	}))
	defer srv.Close()

	g, err := NewGoogle("test-key", maps.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewGoogle() failed: %v", err)
	}
	addr, err := g.Reverse(context.Background(), geomap.LatLng{Lat: 12.9756, Lon: 77.6066})
	if err != nil {
		t.Fatalf("Reverse() failed: %v", err)
	}
	if addr != "MG Road, Bengaluru, Karnataka, India" {
		t.Errorf("address = %q", addr)
	}
	if !strings.HasPrefix(gotLatLng, "12.9756") {
		t.Errorf("latlng query = %q", gotLatLng)
	}
}

func TestGoogleRequiresKey(t *testing.T) {
	if _, err := NewGoogle(""); err == nil {
		t.Error("NewGoogle accepted an empty key")
	}
}

func TestCachedSkipsSmallMoves(t *testing.T) {
	next := &countingResolver{}
	c := NewCached(next, 25)
	ctx := context.Background()
	home := geomap.LatLng{Lat: 12.9716, Lon: 77.5946}

	first, _ := c.Reverse(ctx, home)
	again, _ := c.Reverse(ctx, geomap.LatLng{Lat: 12.97161, Lon: 77.5946})
	if next.calls != 1 || again != first {
		t.Errorf("small move: calls=%d addr=%q", next.calls, again)
	}

	far, _ := c.Reverse(ctx, geomap.LatLng{Lat: 12.9730, Lon: 77.5946})
	if next.calls != 2 || far == first {
		t.Errorf("large move: calls=%d addr=%q", next.calls, far)
	}
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	next := &countingResolver{err: boom}
	c := NewCached(next, 25)
	p := geomap.LatLng{Lat: 1, Lon: 1}

	if _, err := c.Reverse(context.Background(), p); !errors.Is(err, boom) {
		t.Fatalf("Reverse() = %v", err)
	}
	next.err = nil
	if addr, err := c.Reverse(context.Background(), p); err != nil || addr == "" {
		t.Errorf("Reverse() after error = %q, %v", addr, err)
	}
}

func TestFollowerResolvesNewest(t *testing.T) {
	next := &countingResolver{}
	results := make(chan geomap.LatLng, 4)
	f := NewFollower(next, time.Second, func(p geomap.LatLng, _ string, _ error) {
		results <- p
	})

	f.Offer(geomap.LatLng{Lat: 1, Lon: 1})
	f.Offer(geomap.LatLng{Lat: 2, Lon: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	select {
	case p := <-results:
		if p != (geomap.LatLng{Lat: 2, Lon: 2}) {
			t.Errorf("resolved %v, want newest position", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no lookup made")
	}
	select {
	case p := <-results:
		t.Errorf("stale position resolved: %v", p)
	case <-time.After(50 * time.Millisecond):
	}
}
