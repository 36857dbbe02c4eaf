// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package memdb is an in-process rtdb.Database with flat keys. Listeners run
// on the writer's goroutine; a write made from inside a listener is delivered
// once that listener returns.
package memdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/relabs-tech/navigation_guide/internal/rtdb"
)

// DB keeps values in memory.
type DB struct {
	mu     sync.Mutex
	values map[string]json.RawMessage
	closed bool

	reg  *rtdb.Registry
	conn *rtdb.ConnState
}

var _ rtdb.Database = (*DB)(nil)

// New returns an empty, not yet connected database.
func New() *DB {
	return &DB{
		values: make(map[string]json.RawMessage),
		reg:    rtdb.NewRegistry(),
		conn:   rtdb.NewConnState(),
	}
}

// Connect marks the database connected.
func (d *DB) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return rtdb.ErrClosed
	}
	d.conn.Set(true)
	return nil
}

// SetConnected flips connectivity, as a dropped network link would.
func (d *DB) SetConnected(connected bool) {
	d.conn.Set(connected)
}

// On registers fn and delivers the current value of path right away.
func (d *DB) On(path string, fn rtdb.Listener) (rtdb.Unsubscribe, error) {
	path = rtdb.CleanPath(path)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, rtdb.ErrClosed
	}
	d.mu.Unlock()

	if path == rtdb.InfoConnected {
		return d.conn.On(fn), nil
	}

	d.reg.Seed(d.snapshot(path))
	id, _ := d.reg.Add(path, fn)

	var once sync.Once
	return func() {
		once.Do(func() { d.reg.Remove(path, id) })
	}, nil
}

// Set stores value at path and notifies listeners.
func (d *DB) Set(ctx context.Context, path string, value any) error {
	if err := rtdb.CheckWritable(path); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memdb: encode %s: %w", path, err)
	}
	return d.write(ctx, rtdb.CleanPath(path), raw)
}

// Remove deletes path and notifies listeners with a null snapshot.
func (d *DB) Remove(ctx context.Context, path string) error {
	if err := rtdb.CheckWritable(path); err != nil {
		return err
	}
	return d.write(ctx, rtdb.CleanPath(path), nil)
}

// Get returns the stored value of path, nil when absent.
func (d *DB) Get(path string) json.RawMessage {
	return d.snapshot(rtdb.CleanPath(path)).Raw
}

// Close detaches every listener.
func (d *DB) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.conn.Set(false)
	d.conn.Clear()
	d.reg.Clear()
	return nil
}

func (d *DB) write(ctx context.Context, path string, raw json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return rtdb.ErrClosed
	}
	if raw == nil {
		delete(d.values, path)
	} else {
		d.values[path] = raw
	}
	d.mu.Unlock()

	d.reg.Dispatch(rtdb.Snapshot{Path: path, Raw: raw})
	return nil
}

func (d *DB) snapshot(path string) rtdb.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return rtdb.Snapshot{Path: path, Raw: d.values[path]}
}
