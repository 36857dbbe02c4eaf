// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package app wires configuration, the realtime database and the dashboard
// into the runnable programs under cmd/.
package app

import (
	"fmt"

	"github.com/relabs-tech/navigation_guide/internal/config"
	"github.com/relabs-tech/navigation_guide/internal/dashboard"
	"github.com/relabs-tech/navigation_guide/internal/rtdb"
	"github.com/relabs-tech/navigation_guide/internal/rtdb/firebase"
	"github.com/relabs-tech/navigation_guide/internal/rtdb/memdb"
	"github.com/relabs-tech/navigation_guide/internal/rtdb/mqttdb"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

// NewDatabase builds the configured realtime database backend. clientID
// names the MQTT client and is ignored by the other backends.
func NewDatabase(cfg *config.Config, clientID string, log *logger.Logger) (rtdb.Database, error) {
	switch cfg.Store.Backend {
	case config.BackendMQTT:
		if clientID == "" {
			clientID = cfg.MQTT.ClientID
		}
		return mqttdb.New(mqttdb.Options{
			Broker:         cfg.MQTT.Broker,
			ClientID:       clientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			QoS:            cfg.MQTT.QoS,
			ConnectTimeout: cfg.MQTT.ConnectTimeout.Duration,
			WriteTimeout:   cfg.MQTT.WriteTimeout.Duration,
		}, log), nil

	case config.BackendFirebase:
		db, err := firebase.New(firebase.Options{
			DatabaseURL: cfg.Firebase.DatabaseURL,
			AuthToken:   cfg.Firebase.AuthToken,
			Timeout:     cfg.Firebase.Timeout.Duration,
			IdleTimeout: cfg.Firebase.IdleTimeout.Duration,
		}, log)
		if err != nil {
			return nil, err
		}
		return db, nil

	case config.BackendMemory:
		return memdb.New(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// dashboardPaths maps the configured paths.
func dashboardPaths(cfg *config.Config) dashboard.Paths {
	return dashboard.Paths{
		Connected: cfg.Paths.Connected,
		Location:  cfg.Paths.Location,
		Emergency: cfg.Paths.Emergency,
		Voice:     cfg.Paths.Voice,
	}
}
