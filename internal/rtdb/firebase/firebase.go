// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package firebase talks to a Firebase Realtime Database over its REST API:
// PUT and DELETE for writes, and an event-stream GET per watched path.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/navigation_guide/internal/rtdb"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

// ErrIdle ends a stream that went quiet for longer than Options.IdleTimeout.
var ErrIdle = errors.New("firebase: event stream idle")

// Options configures the client.
type Options struct {
	DatabaseURL string
	AuthToken   string
	Timeout     time.Duration
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	// IdleTimeout drops a stream that delivers neither data nor keep-alive
	// for this long. The server sends a keep-alive about every 30s.
	IdleTimeout time.Duration
	// HTTPClient overrides the transport, mainly for tests. Its Timeout is
	// ignored for streams.
	HTTPClient *http.Client
}

// DB is an rtdb.Database backed by Firebase.
type DB struct {
	base   *url.URL
	opts   Options
	rest   *http.Client
	stream *http.Client
	logger *logger.Logger

	reg  *rtdb.Registry
	conn *rtdb.ConnState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	streams map[string]context.CancelFunc
	open    int
}

var _ rtdb.Database = (*DB)(nil)

// New validates the database URL and returns a client.
func New(opts Options, log *logger.Logger) (*DB, error) {
	base, err := url.Parse(strings.TrimRight(opts.DatabaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("firebase: invalid database url %q", opts.DatabaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = time.Minute
	}

	transport := http.DefaultTransport
	if opts.HTTPClient != nil && opts.HTTPClient.Transport != nil {
		transport = opts.HTTPClient.Transport
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &DB{
		base:    base,
		opts:    opts,
		rest:    &http.Client{Timeout: opts.Timeout, Transport: transport},
		stream:  &http.Client{Transport: transport},
		logger:  log.Named("rtdb-firebase"),
		reg:     rtdb.NewRegistry(),
		conn:    rtdb.NewConnState(),
		ctx:     ctx,
		cancel:  cancel,
		streams: make(map[string]context.CancelFunc),
	}, nil
}

// Connect probes the database. Any answer from the server, including a
// rules denial on the root, means the client is ready.
func (d *DB) Connect(ctx context.Context) error {
	if d.isClosed() {
		return rtdb.ErrClosed
	}
	u := d.url("", url.Values{"shallow": {"true"}})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("firebase: failed to create request: %w", err)
	}
	resp, err := d.rest.Do(req)
	if err != nil {
		return fmt.Errorf("firebase: probe %s: %w", d.base.Host, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		d.logger.Warn("root read denied by rules; continuing", logger.String("host", d.base.Host))
	default:
		return fmt.Errorf("firebase: probe %s: unexpected status %d", d.base.Host, resp.StatusCode)
	}
	d.logger.Info("firebase database reachable", logger.String("host", d.base.Host))
	return nil
}

// On opens an event stream for path when it gains its first listener. Later
// listeners get the value the stream last delivered.
func (d *DB) On(path string, fn rtdb.Listener) (rtdb.Unsubscribe, error) {
	if d.isClosed() {
		return nil, rtdb.ErrClosed
	}
	path = rtdb.CleanPath(path)
	if path == rtdb.InfoConnected {
		return d.conn.On(fn), nil
	}

	id, first := d.reg.Add(path, fn)
	if first {
		d.startStream(path)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if d.reg.Remove(path, id) {
				d.stopStream(path)
			}
		})
	}, nil
}

// Set writes value at path with PUT.
func (d *DB) Set(ctx context.Context, path string, value any) error {
	if err := rtdb.CheckWritable(path); err != nil {
		return err
	}
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("firebase: encode %s: %w", path, err)
	}
	return d.do(ctx, http.MethodPut, path, body)
}

// Remove deletes path with DELETE.
func (d *DB) Remove(ctx context.Context, path string) error {
	if err := rtdb.CheckWritable(path); err != nil {
		return err
	}
	return d.do(ctx, http.MethodDelete, path, nil)
}

// Close stops every stream and waits for them to exit.
func (d *DB) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	d.conn.Set(false)
	d.conn.Clear()
	d.reg.Clear()
	return nil
}

func (d *DB) do(ctx context.Context, method, path string, body []byte) error {
	if d.isClosed() {
		return rtdb.ErrClosed
	}
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.url(path, nil), r)
	if err != nil {
		return fmt.Errorf("firebase: failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.rest.Do(req)
	if err != nil {
		return fmt.Errorf("firebase: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("firebase: %s %s: %w", method, path, readError(resp))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// url builds <base>/<path>.json with the auth token and extra query.
func (d *DB) url(path string, query url.Values) string {
	u := *d.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + rtdb.CleanPath(path) + ".json"
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if d.opts.AuthToken != "" {
		q.Set("auth", d.opts.AuthToken)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (d *DB) startStream(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	ctx, cancel := context.WithCancel(d.ctx)
	d.streams[path] = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.watch(ctx, path)
	}()
}

func (d *DB) stopStream(path string) {
	d.mu.Lock()
	cancel, ok := d.streams[path]
	delete(d.streams, path)
	d.mu.Unlock()
	if ok {
		cancel()
	}
	d.reg.Forget(path)
}

// watch keeps one stream open until ctx ends, reconnecting with exponential
// backoff.
func (d *DB) watch(ctx context.Context, path string) {
	backoff := d.opts.MinBackoff
	for {
		opened, err := d.streamOnce(ctx, path)
		if ctx.Err() != nil {
			return
		}
		if opened {
			backoff = d.opts.MinBackoff
		}
		d.logger.Warn("event stream ended, retrying",
			logger.String("path", path),
			logger.Duration("backoff", backoff),
			logger.Error(err),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > d.opts.MaxBackoff {
			backoff = d.opts.MaxBackoff
		}
	}
}

// streamOnce runs a single event-stream request. opened reports whether the
// server accepted it.
func (d *DB) streamOnce(ctx context.Context, path string) (opened bool, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var idle atomic.Bool
	watchdog := time.AfterFunc(d.opts.IdleTimeout, func() {
		idle.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url(path, nil), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := d.stream.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, readError(resp)
	}
	watchdog.Reset(d.opts.IdleTimeout)

	d.streamOpened()
	defer d.streamClosed()

	tree := &Tree{}
	err = ParseEvents(resp.Body, func(ev Event) error {
		watchdog.Reset(d.opts.IdleTimeout)
		switch ev.Name {
		case "put", "patch":
			changed, err := tree.Apply(ev)
			if err != nil {
				d.logger.Warn("malformed stream event", logger.String("path", path), logger.Error(err))
				return nil
			}
			if changed {
				d.reg.Dispatch(rtdb.Snapshot{Path: path, Raw: tree.Raw()})
			}
		case "keep-alive":
		case "cancel":
			return fmt.Errorf("stream cancelled by server: %s", ev.Data)
		case "auth_revoked":
			return errors.New("auth token revoked")
		}
		return nil
	})
	if idle.Load() {
		err = ErrIdle
	}
	if err == nil {
		err = io.EOF
	}
	return true, err
}

func (d *DB) streamOpened() {
	d.mu.Lock()
	d.open++
	d.mu.Unlock()
	d.conn.Set(true)
}

func (d *DB) streamClosed() {
	d.mu.Lock()
	d.open--
	open := d.open
	d.mu.Unlock()
	if open == 0 {
		d.conn.Set(false)
	}
}

func (d *DB) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func readError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}
