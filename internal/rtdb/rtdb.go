// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package rtdb describes a realtime key-tree store: a hosted database that
// pushes the current value of a path to every subscribed listener whenever it
// changes. Backends live in the subpackages (mqttdb, firebase, memdb).
package rtdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// InfoConnected is the pseudo path that reports client connectivity as a
// JSON boolean.
const InfoConnected = ".info/connected"

var (
	// ErrClosed is returned by operations on a closed database.
	ErrClosed = errors.New("rtdb: database closed")
	// ErrReadOnlyPath is returned when writing to a pseudo path.
	ErrReadOnlyPath = errors.New("rtdb: path is read-only")
)

// Snapshot is the value of one path at one moment. Raw is nil when the path
// holds no value.
type Snapshot struct {
	Path string
	Raw  json.RawMessage
}

// Exists reports whether the snapshot carries a non-null value.
func (s Snapshot) Exists() bool {
	return len(s.Raw) > 0 && string(s.Raw) != "null"
}

// Decode unmarshals the value into v.
func (s Snapshot) Decode(v any) error {
	if !s.Exists() {
		return fmt.Errorf("rtdb: %s has no value", s.Path)
	}
	if err := json.Unmarshal(s.Raw, v); err != nil {
		return fmt.Errorf("rtdb: decode %s: %w", s.Path, err)
	}
	return nil
}

// IsTrue reports whether the value is exactly JSON true.
func (s Snapshot) IsTrue() bool {
	var b bool
	if err := json.Unmarshal(s.Raw, &b); err != nil {
		return false
	}
	return b
}

// Listener receives the current value of a path. It is called once with the
// existing value when the backend has one, then on every change.
type Listener func(Snapshot)

// Unsubscribe detaches a listener. Calling it more than once is harmless.
type Unsubscribe func()

// Database is the client side of a realtime tree store.
type Database interface {
	// Connect blocks until the client is ready for use or ctx is done.
	Connect(ctx context.Context) error
	// On registers fn for every value of path.
	On(path string, fn Listener) (Unsubscribe, error)
	// Set replaces the value at path with value encoded as JSON.
	Set(ctx context.Context, path string, value any) error
	// Remove deletes the value at path.
	Remove(ctx context.Context, path string) error
	// Close releases the connection and detaches all listeners.
	Close() error
}

// CleanPath trims surrounding slashes and collapses empty segments.
func CleanPath(path string) string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// CheckWritable rejects the pseudo paths a client may only read.
func CheckWritable(path string) error {
	if strings.HasPrefix(CleanPath(path), ".info") {
		return fmt.Errorf("%w: %s", ErrReadOnlyPath, path)
	}
	return nil
}

// BoolSnapshot builds the snapshot delivered on InfoConnected.
func BoolSnapshot(path string, v bool) Snapshot {
	if v {
		return Snapshot{Path: path, Raw: json.RawMessage("true")}
	}
	return Snapshot{Path: path, Raw: json.RawMessage("false")}
}
