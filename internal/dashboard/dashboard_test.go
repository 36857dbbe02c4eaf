// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/navigation_guide/internal/bootstrap"
	"github.com/relabs-tech/navigation_guide/internal/geomap"
	"github.com/relabs-tech/navigation_guide/internal/rtdb"
	"github.com/relabs-tech/navigation_guide/internal/rtdb/memdb"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

type setCall struct {
	path  string
	value any
}

// recordingDB counts writes on top of the in-memory store.
type recordingDB struct {
	*memdb.DB

	mu      sync.Mutex
	sets    []setCall
	removes []string
	setErr  error
}

func (r *recordingDB) Set(ctx context.Context, path string, value any) error {
	r.mu.Lock()
	r.sets = append(r.sets, setCall{path, value})
	err := r.setErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.DB.Set(ctx, path, value)
}

func (r *recordingDB) Remove(ctx context.Context, path string) error {
	r.mu.Lock()
	r.removes = append(r.removes, path)
	r.mu.Unlock()
	return r.DB.Remove(ctx, path)
}

func (r *recordingDB) failWrites(err error) {
	r.mu.Lock()
	r.setErr = err
	r.mu.Unlock()
}

// seed writes straight to the store, bypassing the recorder.
func (r *recordingDB) seed(t *testing.T, path string, value any) {
	t.Helper()
	if err := r.DB.Set(context.Background(), path, value); err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
}

type countingWidget struct {
	*geomap.Map
	added int
}

func (w *countingWidget) AddMarker(pos geomap.LatLng) geomap.Pin {
	w.added++
	return w.Map.AddMarker(pos)
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs every timer that has not been stopped.
func (c *fakeClock) fire() {
	c.mu.Lock()
	timers := append([]*fakeTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, t := range timers {
		if !t.stopped {
			t.stopped = true
			t.f()
		}
	}
}

type fixture struct {
	d      *Dashboard
	db     *recordingDB
	widget *countingWidget
	clock  *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:     &recordingDB{DB: memdb.New()},
		widget: &countingWidget{Map: geomap.New(geomap.Options{Center: geomap.LatLng{Lat: 20.5937, Lon: 78.9629}, Zoom: 5, MaxZoom: 18})},
		clock:  &fakeClock{},
	}
	f.d = New(f.db, f.widget, Options{AlertTTL: 10 * time.Second, AfterFunc: f.clock.AfterFunc}, logger.NewNop())

	seq := bootstrap.New(time.Second, logger.NewNop()).Add("realtime-client", f.db.Connect)
	if err := f.d.Start(context.Background(), seq); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(f.d.Close)
	return f
}

func TestStartReachesConnected(t *testing.T) {
	f := newFixture(t)
	v := f.d.View()
	if v.Loading {
		t.Error("still loading after Start")
	}
	if v.Status != StatusConnected || v.StatusLabel != "Connected" {
		t.Errorf("status = %s (%q), want connected", v.Status, v.StatusLabel)
	}
	if v.Map.Center != (geomap.LatLng{Lat: 20.5937, Lon: 78.9629}) || v.Map.Zoom != 5 {
		t.Errorf("default view = %+v", v.Map)
	}
}

func TestLocationCreatesMarkerOnce(t *testing.T) {
	f := newFixture(t)
	positions := []geomap.LatLng{
		{Lat: 12.9716, Lon: 77.5946},
		{Lat: 12.9720, Lon: 77.5950},
		{Lat: 12.9731, Lon: 77.5962},
	}
	for _, p := range positions {
		f.db.seed(t, "location", map[string]float64{"lat": p.Lat, "lon": p.Lon})

		v := f.d.View()
		if v.Map.Marker == nil || *v.Map.Marker != p {
			t.Fatalf("marker = %v, want %v", v.Map.Marker, p)
		}
		if v.Map.Center != p || v.Map.Zoom != 16 {
			t.Fatalf("view = %v@%d, want %v@16", v.Map.Center, v.Map.Zoom, p)
		}
	}
	if f.widget.added != 1 {
		t.Errorf("markers created = %d, want 1", f.widget.added)
	}
}

func TestMalformedLocationIgnored(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"string coordinates", map[string]string{"lat": "12.9", "lon": "77.5"}},
		{"missing lon", map[string]float64{"lat": 12.9}},
		{"latitude out of range", map[string]float64{"lat": 123, "lon": 7}},
		{"not an object", "somewhere"},
		{"array", []int{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.db.seed(t, "location", tt.value)
			if v := f.d.View(); v.Map.Marker != nil || v.Map.Zoom != 5 {
				t.Errorf("malformed record changed the map: %+v", v.Map)
			}
			if f.widget.added != 0 {
				t.Errorf("marker created for malformed record")
			}
		})
	}
}

func TestZeroCoordinatesAccepted(t *testing.T) {
	f := newFixture(t)
	f.db.seed(t, "location", map[string]float64{"lat": 0, "lon": 0})
	if v := f.d.View(); v.Map.Marker == nil || *v.Map.Marker != (geomap.LatLng{}) {
		t.Errorf("marker = %v, want 0,0", v.Map.Marker)
	}
}

func TestEmergencyShownConsumedAndCleared(t *testing.T) {
	f := newFixture(t)
	f.db.seed(t, "emergency", map[string]string{"alert": "Fall detected"})

	if got := f.d.View().Alert; got != "🚨 Fall detected" {
		t.Fatalf("alert = %q", got)
	}
	if raw := f.db.Get("emergency"); raw != nil {
		t.Errorf("emergency record not removed: %s", raw)
	}
	if len(f.db.removes) != 1 || f.db.removes[0] != "emergency" {
		t.Errorf("removes = %v", f.db.removes)
	}
	if len(f.clock.timers) != 1 || f.clock.timers[0].d != 10*time.Second {
		t.Fatalf("timers = %+v, want one 10s timer", f.clock.timers)
	}

	f.clock.fire()
	if got := f.d.View().Alert; got != "" {
		t.Errorf("alert after timer = %q, want cleared", got)
	}
}

func TestStaleTimerKeepsNewerAlert(t *testing.T) {
	f := newFixture(t)
	f.db.seed(t, "emergency", map[string]string{"alert": "first"})
	f.db.seed(t, "emergency", map[string]string{"alert": "second"})

	if len(f.clock.timers) != 2 {
		t.Fatalf("timers = %d, want 2", len(f.clock.timers))
	}
	if !f.clock.timers[0].stopped {
		t.Error("first timer not stopped by second alert")
	}

	// a timer that fired anyway must not clear the newer alert
	f.clock.timers[0].f()
	if got := f.d.View().Alert; got != "🚨 second" {
		t.Fatalf("alert = %q, want second alert kept", got)
	}

	f.clock.timers[1].f()
	if got := f.d.View().Alert; got != "" {
		t.Errorf("alert = %q, want cleared", got)
	}
}

func TestEmergencyWithoutTextIgnored(t *testing.T) {
	for _, value := range []any{
		map[string]string{"alert": ""},
		map[string]int{"alert": 3},
		map[string]string{"message": "help"},
	} {
		f := newFixture(t)
		f.db.seed(t, "emergency", value)
		if got := f.d.View().Alert; got != "" {
			t.Errorf("alert = %q for %v", got, value)
		}
		if len(f.db.removes) != 0 {
			t.Errorf("record %v removed", value)
		}
		if f.db.Get("emergency") == nil {
			t.Errorf("record %v gone", value)
		}
	}
}

func TestAlertClearsWithRealClock(t *testing.T) {
	db := memdb.New()
	d := New(db, geomap.New(geomap.Options{MaxZoom: 18}), Options{AlertTTL: 30 * time.Millisecond}, logger.NewNop())
	if err := d.Start(context.Background(), bootstrap.New(0, logger.NewNop()).Add("realtime-client", db.Connect)); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer d.Close()

	if err := db.Set(context.Background(), "emergency", map[string]string{"alert": "obstacle"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if d.View().Alert == "" {
		t.Fatal("alert not shown")
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.View().Alert != "" {
		if time.Now().After(deadline) {
			t.Fatal("alert never cleared")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectivityFalseNeverConnected(t *testing.T) {
	f := newFixture(t)
	for _, connected := range []bool{false, true, false, false} {
		f.db.SetConnected(connected)
		got := f.d.View().Status
		if !connected && got != StatusError {
			t.Fatalf("status = %s after disconnect, want error", got)
		}
		if connected && got != StatusConnected {
			t.Fatalf("status = %s after connect, want connected", got)
		}
	}
}

func TestBootstrapFailureLeavesErrorView(t *testing.T) {
	db := &recordingDB{DB: memdb.New()}
	widget := &countingWidget{Map: geomap.New(geomap.Options{MaxZoom: 18})}
	d := New(db, widget, Options{}, logger.NewNop())
	defer d.Close()

	boom := errors.New("failed to load leaflet.css")
	seq := bootstrap.New(time.Second, logger.NewNop()).
		Add("map-stylesheet", func(context.Context) error { return boom }).
		Add("realtime-client", db.Connect)

	if err := d.Start(context.Background(), seq); !errors.Is(err, boom) {
		t.Fatalf("Start() = %v, want %v", err, boom)
	}
	v := d.View()
	if v.Status != StatusError || v.Loading {
		t.Errorf("view = %+v, want error and not loading", v)
	}

	db.seed(t, "location", map[string]float64{"lat": 1, "lon": 1})
	if widget.added != 0 {
		t.Error("listener wired despite failed bootstrap")
	}
	if err := d.SendVoice(context.Background(), "hello"); !errors.Is(err, ErrNotReady) {
		t.Errorf("SendVoice() = %v, want ErrNotReady", err)
	}
	if len(db.sets) != 0 {
		t.Errorf("writes = %v", db.sets)
	}
}

type refusingDB struct {
	*memdb.DB
}

func (refusingDB) On(string, rtdb.Listener) (rtdb.Unsubscribe, error) {
	return nil, errors.New("permission denied")
}

func TestListenerFailureLeavesErrorView(t *testing.T) {
	db := refusingDB{memdb.New()}
	d := New(db, geomap.New(geomap.Options{MaxZoom: 18}), Options{}, logger.NewNop())
	defer d.Close()
	if err := d.Start(context.Background(), nil); err == nil {
		t.Fatal("Start() succeeded with refusing database")
	}
	if v := d.View(); v.Status != StatusError || v.Loading {
		t.Errorf("view = %+v", v)
	}
}

func TestCloseTearsDownListeners(t *testing.T) {
	f := newFixture(t)
	views, _ := f.d.Watch()
	<-views

	f.d.Close()
	if _, ok := <-views; ok {
		// drain a pending view, then the channel must be closed
		if _, ok := <-views; ok {
			t.Error("watch channel still open after Close")
		}
	}

	f.db.seed(t, "location", map[string]float64{"lat": 1, "lon": 1})
	f.db.seed(t, "emergency", map[string]string{"alert": "late"})
	if f.widget.added != 0 || f.d.View().Alert != "" {
		t.Error("listener still active after Close")
	}
	if len(f.db.removes) != 0 {
		t.Errorf("removes after Close = %v", f.db.removes)
	}
}

func TestWatchGetsNewestView(t *testing.T) {
	f := newFixture(t)
	views, cancel := f.d.Watch()
	defer cancel()

	first := <-views
	f.db.seed(t, "location", map[string]float64{"lat": 1, "lon": 1})
	f.db.seed(t, "location", map[string]float64{"lat": 2, "lon": 2})

	v := <-views
	if v.Version <= first.Version {
		t.Errorf("version did not advance: %d -> %d", first.Version, v.Version)
	}
	if v.Map.Marker == nil || *v.Map.Marker != (geomap.LatLng{Lat: 2, Lon: 2}) {
		t.Errorf("marker = %v, want newest position", v.Map.Marker)
	}
	select {
	case extra := <-views:
		t.Errorf("stale view queued: %+v", extra)
	default:
	}
}
