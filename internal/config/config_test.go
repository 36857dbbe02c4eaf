// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "navguide.toml")
	text := `
[store]
backend = "firebase"

[firebase]
database_url = "https://example-default-rtdb.firebaseio.com"

[dashboard]
alert_ttl = "3s"

[web]
listen = ":9090"
cors_allowed_origins = ["http://localhost:3000"]
`
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store.Backend != BackendFirebase {
		t.Errorf("backend = %q, want firebase", cfg.Store.Backend)
	}
	if cfg.Dashboard.AlertTTL.Duration != 3*time.Second {
		t.Errorf("alert_ttl = %v, want 3s", cfg.Dashboard.AlertTTL.Duration)
	}
	if cfg.Web.Listen != ":9090" || len(cfg.Web.CORSAllowedOrigins) != 1 {
		t.Errorf("web section not decoded: %+v", cfg.Web)
	}
	// untouched sections keep their defaults
	if cfg.Paths.Emergency != "emergency" || cfg.Dashboard.MarkerZoom != 16 {
		t.Errorf("defaults lost: paths=%+v dashboard=%+v", cfg.Paths, cfg.Dashboard)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"unknown backend", "[store]\nbackend = \"redis\"", "store.backend"},
		{"missing firebase url", "[store]\nbackend = \"firebase\"", "firebase.database_url is required"},
		{"empty broker", "[mqtt]\nbroker = \"\"", "mqtt.broker is required"},
		{"bad qos", "[mqtt]\nqos = 3", "mqtt.qos"},
		{"bad duration", "[dashboard]\nalert_ttl = \"soon\"", ""},
		{"zero ttl", "[dashboard]\nalert_ttl = \"0s\"", "dashboard.alert_ttl"},
		{"marker zoom above max", "[dashboard]\nmarker_zoom = 30", "dashboard.marker_zoom"},
		{"zero marker zoom", "[dashboard]\nmarker_zoom = 0", "dashboard.marker_zoom must be 1-18"},
		{"zero producer interval", "[producer]\ninterval = \"0s\"", "producer.interval must be positive"},
		{"zero ping interval", "[web]\nping_interval = \"0s\"", "web.ping_interval"},
		{"zero firebase idle timeout", "[firebase]\nidle_timeout = \"0s\"", "firebase.idle_timeout must be positive"},
		{"center out of range", "[map]\ncenter_lat = 91.0", "out of range"},
		{"unknown key", "[web]\nport = 80", "unknown config keys: web.port"},
		{"bad log level", "[log]\nlevel = \"loud\"", "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse(tt.text)
			if err == nil {
				t.Fatalf("Parse() succeeded, want error containing %q", tt.want)
			}
			if cfg != nil {
				t.Errorf("Parse() returned config alongside error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("Load() of missing file succeeded")
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultPath))
	if err != nil {
		t.Fatalf("example config: %v", err)
	}
	if cfg.Geocode.MinMove != 25 || cfg.Geocode.APIKey != "" {
		t.Errorf("geocode = %+v", cfg.Geocode)
	}
	if cfg.Map.CenterLat != 20.5937 || cfg.Map.Zoom != 5 || cfg.Map.MaxZoom != 18 {
		t.Errorf("map = %+v", cfg.Map)
	}
}
