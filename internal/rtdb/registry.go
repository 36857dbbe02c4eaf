// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package rtdb

import (
	"sort"
	"sync"
)

// listener queues snapshots for one callback so it sees them in dispatch
// order. A snapshot dispatched from inside the callback is delivered after
// the callback returns.
type listener struct {
	fn Listener

	mu      sync.Mutex
	queue   []Snapshot
	running bool
	stopped bool
}

func (l *listener) push(s Snapshot) {
	l.mu.Lock()
	if !l.stopped {
		l.queue = append(l.queue, s)
	}
	l.mu.Unlock()
}

// drain delivers queued snapshots unless another goroutine already is.
func (l *listener) drain() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	for len(l.queue) > 0 && !l.stopped {
		s := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		l.fn(s)
		l.mu.Lock()
	}
	l.running = false
	l.mu.Unlock()
}

func (l *listener) stop() {
	l.mu.Lock()
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()
}

func drainAll(ls []*listener) {
	for _, l := range ls {
		l.drain()
	}
}

// Registry tracks listeners and the last dispatched value per path for
// backends. It is safe for concurrent use; listeners are never called with
// the registry lock held.
type Registry struct {
	mu       sync.Mutex
	nextID   uint64
	byPath   map[string]map[uint64]*listener
	retained map[string]Snapshot
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byPath:   make(map[string]map[uint64]*listener),
		retained: make(map[string]Snapshot),
	}
}

// Add registers fn under path and replays the retained value of path to it,
// if there is one. first is true when path had no listeners.
func (r *Registry) Add(path string, fn Listener) (id uint64, first bool) {
	l := &listener{fn: fn}

	r.mu.Lock()
	r.nextID++
	id = r.nextID
	set, ok := r.byPath[path]
	if !ok {
		set = make(map[uint64]*listener)
		r.byPath[path] = set
	}
	set[id] = l
	if snap, held := r.retained[path]; held {
		l.push(snap)
	}
	r.mu.Unlock()

	l.drain()
	return id, !ok
}

// Remove drops a listener. last is true when path has no listeners left.
func (r *Registry) Remove(path string, id uint64) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byPath[path]
	if !ok {
		return false
	}
	l, ok := set[id]
	if !ok {
		return false
	}
	l.stop()
	delete(set, id)
	if len(set) == 0 {
		delete(r.byPath, path)
		return true
	}
	return false
}

// Seed retains snap as the current value of its path unless a value was
// already dispatched there.
func (r *Registry) Seed(snap Snapshot) {
	r.mu.Lock()
	if _, ok := r.retained[snap.Path]; !ok {
		r.retained[snap.Path] = snap
	}
	r.mu.Unlock()
}

// Forget drops the retained value of path, for backends that stop watching it.
func (r *Registry) Forget(path string) {
	r.mu.Lock()
	delete(r.retained, path)
	r.mu.Unlock()
}

// Dispatch retains snap and delivers it to every listener of snap.Path in
// registration order.
func (r *Registry) Dispatch(snap Snapshot) {
	drainAll(r.enqueue(snap))
}

// enqueue retains snap and queues it on each listener of its path.
func (r *Registry) enqueue(snap Snapshot) []*listener {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.retained[snap.Path] = snap
	set := r.byPath[snap.Path]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*listener, len(ids))
	for i, id := range ids {
		out[i] = set[id]
		out[i].push(snap)
	}
	return out
}

// Paths lists the paths with at least one listener.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.byPath))
	for p := range r.byPath {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Clear removes every listener. Retained values are kept.
func (r *Registry) Clear() {
	r.mu.Lock()
	for _, set := range r.byPath {
		for _, l := range set {
			l.stop()
		}
	}
	r.byPath = make(map[string]map[uint64]*listener)
	r.mu.Unlock()
}

// ConnState holds the connectivity flag and notifies InfoConnected listeners
// when it changes. New listeners receive the current value first, and never
// after a newer one.
type ConnState struct {
	mu        sync.Mutex
	connected bool
	reg       *Registry
}

// NewConnState returns a disconnected state.
func NewConnState() *ConnState {
	c := &ConnState{reg: NewRegistry()}
	c.reg.Seed(BoolSnapshot(InfoConnected, false))
	return c
}

// Set updates the flag and notifies listeners on change.
func (c *ConnState) Set(connected bool) {
	c.mu.Lock()
	var pending []*listener
	if c.connected != connected {
		c.connected = connected
		pending = c.reg.enqueue(BoolSnapshot(InfoConnected, connected))
	}
	c.mu.Unlock()

	drainAll(pending)
}

// Get returns the current flag.
func (c *ConnState) Get() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// On registers fn and replays the current value to it.
func (c *ConnState) On(fn Listener) Unsubscribe {
	id, _ := c.reg.Add(InfoConnected, fn)

	var once sync.Once
	return func() {
		once.Do(func() { c.reg.Remove(InfoConnected, id) })
	}
}

// Clear drops all connectivity listeners.
func (c *ConnState) Clear() {
	c.reg.Clear()
}
