// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

// Store backends.
const (
	BackendMQTT     = "mqtt"
	BackendFirebase = "firebase"
	BackendMemory   = "memory"
)

// DefaultPath is used by the binaries when -config is not given.
const DefaultPath = "navguide.toml"

// Duration decodes TOML strings such as "10s" or "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds all application configuration values.
type Config struct {
	Store     StoreConfig     `toml:"store"`
	MQTT      MQTTConfig      `toml:"mqtt"`
	Firebase  FirebaseConfig  `toml:"firebase"`
	Paths     PathsConfig     `toml:"paths"`
	Dashboard DashboardConfig `toml:"dashboard"`
	Map       MapConfig       `toml:"map"`
	Bootstrap BootstrapConfig `toml:"bootstrap"`
	Web       WebConfig       `toml:"web"`
	GPS       GPSConfig       `toml:"gps"`
	Producer  ProducerConfig  `toml:"producer"`
	Geocode   GeocodeConfig   `toml:"geocode"`
	Log       logger.Config   `toml:"log"`
}

// StoreConfig selects the realtime database backend.
type StoreConfig struct {
	Backend string `toml:"backend"` // mqtt, firebase, memory
}

// MQTTConfig configures the MQTT-backed store.
type MQTTConfig struct {
	Broker         string   `toml:"broker"`
	ClientID       string   `toml:"client_id"`
	Username       string   `toml:"username"`
	Password       string   `toml:"password"`
	TopicPrefix    string   `toml:"topic_prefix"`
	QoS            byte     `toml:"qos"`
	ConnectTimeout Duration `toml:"connect_timeout"`
	WriteTimeout   Duration `toml:"write_timeout"`
}

// FirebaseConfig configures the Firebase Realtime Database backend.
type FirebaseConfig struct {
	DatabaseURL string   `toml:"database_url"`
	AuthToken   string   `toml:"auth_token"`
	Timeout     Duration `toml:"timeout"`
	IdleTimeout Duration `toml:"idle_timeout"`
}

// PathsConfig names the store paths the dashboard uses.
type PathsConfig struct {
	Connected string `toml:"connected"`
	Location  string `toml:"location"`
	Emergency string `toml:"emergency"`
	Voice     string `toml:"voice"`
}

// DashboardConfig tunes view behaviour.
type DashboardConfig struct {
	AlertTTL   Duration `toml:"alert_ttl"`
	MarkerZoom int      `toml:"marker_zoom"`
}

// MapConfig describes the map widget and where its assets come from.
type MapConfig struct {
	CenterLat     float64 `toml:"center_lat"`
	CenterLon     float64 `toml:"center_lon"`
	Zoom          int     `toml:"zoom"`
	MaxZoom       int     `toml:"max_zoom"`
	TileURL       string  `toml:"tile_url"`
	Attribution   string  `toml:"attribution"`
	StylesheetURL string  `toml:"stylesheet_url"`
	ScriptURL     string  `toml:"script_url"`
	ProxyAssets   bool    `toml:"proxy_assets"`
}

// BootstrapConfig bounds each bootstrap step.
type BootstrapConfig struct {
	StepTimeout Duration `toml:"step_timeout"`
}

// WebConfig configures the HTTP server.
type WebConfig struct {
	Listen             string   `toml:"listen"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	WriteWait          Duration `toml:"write_wait"`
	PingInterval       Duration `toml:"ping_interval"`
}

// GPSConfig configures the NMEA serial producer.
type GPSConfig struct {
	SerialPort string `toml:"serial_port"`
	BaudRate   int    `toml:"baud_rate"`
	ClientID   string `toml:"client_id"`
}

// ProducerConfig configures the mock route producer.
type ProducerConfig struct {
	Interval Duration `toml:"interval"`
	ClientID string   `toml:"client_id"`
	RadiusM  float64  `toml:"radius_m"`
}

// GeocodeConfig enables street addresses in the console. An empty API key
// turns the lookup off.
type GeocodeConfig struct {
	APIKey  string   `toml:"api_key"`
	MinMove float64  `toml:"min_move_m"`
	Timeout Duration `toml:"timeout"`
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Backend: BackendMQTT},
		MQTT: MQTTConfig{
			Broker:         "tcp://localhost:1883",
			ClientID:       "navguide-web",
			TopicPrefix:    "navguide/",
			QoS:            1,
			ConnectTimeout: Duration{10 * time.Second},
			WriteTimeout:   Duration{5 * time.Second},
		},
		Firebase: FirebaseConfig{
			Timeout:     Duration{15 * time.Second},
			IdleTimeout: Duration{time.Minute},
		},
		Paths: PathsConfig{
			Connected: ".info/connected",
			Location:  "location",
			Emergency: "emergency",
			Voice:     "voice",
		},
		Dashboard: DashboardConfig{
			AlertTTL:   Duration{10 * time.Second},
			MarkerZoom: 16,
		},
		Map: MapConfig{
			CenterLat:     20.5937,
			CenterLon:     78.9629,
			Zoom:          5,
			MaxZoom:       18,
			TileURL:       "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution:   "© OpenStreetMap contributors",
			StylesheetURL: "https://unpkg.com/leaflet/dist/leaflet.css",
			ScriptURL:     "https://unpkg.com/leaflet/dist/leaflet.js",
			ProxyAssets:   true,
		},
		Bootstrap: BootstrapConfig{
			StepTimeout: Duration{15 * time.Second},
		},
		Web: WebConfig{
			Listen:       ":8080",
			WriteWait:    Duration{10 * time.Second},
			PingInterval: Duration{30 * time.Second},
		},
		GPS: GPSConfig{
			SerialPort: "/dev/serial0",
			BaudRate:   9600,
			ClientID:   "navguide-gps",
		},
		Producer: ProducerConfig{
			Interval: Duration{time.Second},
			ClientID: "navguide-producer",
			RadiusM:  150,
		},
		Geocode: GeocodeConfig{
			MinMove: 25,
			Timeout: Duration{5 * time.Second},
		},
		Log: logger.Config{Level: "info", Format: "console"},
	}
}

// Load reads the TOML file at path on top of Default and validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := cfg.finish(md); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML text the same way Load does.
func Parse(text string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(text, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.finish(md); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finish(md toml.MetaData) error {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return c.validate()
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendMQTT:
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required")
		}
		if c.MQTT.ClientID == "" {
			return fmt.Errorf("mqtt.client_id is required")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0-2, got %d", c.MQTT.QoS)
		}
	case BackendFirebase:
		if c.Firebase.DatabaseURL == "" {
			return fmt.Errorf("firebase.database_url is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend must be one of mqtt, firebase, memory, got %q", c.Store.Backend)
	}

	if c.Paths.Location == "" || c.Paths.Emergency == "" || c.Paths.Voice == "" || c.Paths.Connected == "" {
		return fmt.Errorf("paths.connected, paths.location, paths.emergency and paths.voice are required")
	}
	if c.Dashboard.AlertTTL.Duration <= 0 {
		return fmt.Errorf("dashboard.alert_ttl must be positive")
	}
	if c.Map.MaxZoom <= 0 {
		return fmt.Errorf("map.max_zoom must be positive")
	}
	if c.Dashboard.MarkerZoom < 1 || c.Dashboard.MarkerZoom > c.Map.MaxZoom {
		return fmt.Errorf("dashboard.marker_zoom must be 1-%d, got %d", c.Map.MaxZoom, c.Dashboard.MarkerZoom)
	}
	if c.Map.Zoom < 0 || c.Map.Zoom > c.Map.MaxZoom {
		return fmt.Errorf("map.zoom must be 0-%d, got %d", c.Map.MaxZoom, c.Map.Zoom)
	}
	if math.Abs(c.Map.CenterLat) > 90 || math.Abs(c.Map.CenterLon) > 180 {
		return fmt.Errorf("map center %.4f,%.4f is out of range", c.Map.CenterLat, c.Map.CenterLon)
	}
	if c.Map.ProxyAssets && (c.Map.StylesheetURL == "" || c.Map.ScriptURL == "") {
		return fmt.Errorf("map.stylesheet_url and map.script_url are required when map.proxy_assets is set")
	}
	if c.Bootstrap.StepTimeout.Duration <= 0 {
		return fmt.Errorf("bootstrap.step_timeout must be positive")
	}
	if c.Producer.Interval.Duration <= 0 {
		return fmt.Errorf("producer.interval must be positive")
	}
	if c.Web.PingInterval.Duration <= 0 || c.Web.WriteWait.Duration <= 0 {
		return fmt.Errorf("web.ping_interval and web.write_wait must be positive")
	}
	if c.Firebase.IdleTimeout.Duration <= 0 {
		return fmt.Errorf("firebase.idle_timeout must be positive")
	}
	if c.Geocode.MinMove < 0 {
		return fmt.Errorf("geocode.min_move_m must not be negative")
	}
	if c.Web.Listen == "" {
		return fmt.Errorf("web.listen is required")
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
