// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/relabs-tech/navigation_guide/internal/config"
	"github.com/relabs-tech/navigation_guide/internal/rtdb"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

// EmergencyRecord is the record the dashboard shows as an alert.
type EmergencyRecord struct {
	Alert string `json:"alert"`
}

// RunAlert raises an emergency alert with the given text.
func RunAlert(ctx context.Context, cfg *config.Config, log *logger.Logger, text string) error {
	log = log.Named("alert")

	db, err := NewDatabase(cfg, cfg.MQTT.ClientID+"-alert", log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Connect(ctx); err != nil {
		return fmt.Errorf("connect realtime database: %w", err)
	}
	return raiseAlert(ctx, db, cfg.Paths.Emergency, text, log)
}

func raiseAlert(ctx context.Context, db rtdb.Database, path, text string, log *logger.Logger) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("alert text is empty")
	}
	if err := db.Set(ctx, path, EmergencyRecord{Alert: text}); err != nil {
		return fmt.Errorf("raise alert: %w", err)
	}
	log.Info("emergency alert raised", logger.String("alert", text))
	return nil
}
