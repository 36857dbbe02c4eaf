// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package mqttdb maps the realtime store onto MQTT retained messages: every
// path is a topic under a prefix, the retained payload is the current value,
// and an empty retained payload clears it.
package mqttdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/relabs-tech/navigation_guide/internal/rtdb"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqttdb: broker did not acknowledge in time")

// Options configures the client.
type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

// broker is the part of mqtt.Client the store uses.
type broker interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// DB is an rtdb.Database backed by an MQTT broker.
type DB struct {
	client broker
	opts   Options
	logger *logger.Logger

	reg  *rtdb.Registry
	conn *rtdb.ConnState

	mu     sync.Mutex
	closed bool
}

var _ rtdb.Database = (*DB)(nil)

// New creates a store client. Nothing is dialled until Connect.
func New(opts Options, log *logger.Logger) *DB {
	d := newDB(opts, log)

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(UniqueClientID(opts.ClientID)).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(func(mqtt.Client) { d.onConnect() }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) { d.onConnectionLost(err) })
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username).SetPassword(opts.Password)
	}

	d.client = mqtt.NewClient(clientOpts)
	return d
}

func newDB(opts Options, log *logger.Logger) *DB {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &DB{
		opts:   opts,
		logger: log.Named("rtdb-mqtt"),
		reg:    rtdb.NewRegistry(),
		conn:   rtdb.NewConnState(),
	}
}

// UniqueClientID appends a short random suffix so several instances can
// share one configured id without kicking each other off the broker.
func UniqueClientID(base string) string {
	return base + "-" + uuid.NewString()[:8]
}

// Topic returns the MQTT topic for a store path.
func (d *DB) Topic(path string) string {
	return d.opts.TopicPrefix + rtdb.CleanPath(path)
}

// Path returns the store path for an MQTT topic.
func (d *DB) Path(topic string) string {
	return rtdb.CleanPath(strings.TrimPrefix(topic, d.opts.TopicPrefix))
}

// Connect blocks until the broker accepts the connection. With connect retry
// enabled the token only completes once a session is established, so this is
// the client's ready signal.
func (d *DB) Connect(ctx context.Context) error {
	if d.isClosed() {
		return rtdb.ErrClosed
	}
	d.logger.Info("connecting to MQTT broker", logger.String("broker", d.opts.Broker))
	if err := wait(ctx, d.client.Connect(), d.opts.ConnectTimeout); err != nil {
		return fmt.Errorf("mqttdb: connect %s: %w", d.opts.Broker, err)
	}
	return nil
}

// On subscribes fn to path. The retained value, if any, arrives first: from
// the broker for the first listener, from the last delivery for later ones.
func (d *DB) On(path string, fn rtdb.Listener) (rtdb.Unsubscribe, error) {
	if d.isClosed() {
		return nil, rtdb.ErrClosed
	}
	path = rtdb.CleanPath(path)
	if path == rtdb.InfoConnected {
		return d.conn.On(fn), nil
	}

	id, first := d.reg.Add(path, fn)
	if first && d.client.IsConnectionOpen() {
		if err := d.subscribe(path); err != nil {
			d.reg.Remove(path, id)
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if !d.reg.Remove(path, id) {
				return
			}
			d.reg.Forget(path)
			if d.client.IsConnectionOpen() {
				d.unsubscribe(path)
			}
		})
	}, nil
}

// Set publishes value as the retained payload of path.
func (d *DB) Set(ctx context.Context, path string, value any) error {
	if err := rtdb.CheckWritable(path); err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("mqttdb: encode %s: %w", path, err)
	}
	return d.publish(ctx, path, payload)
}

// Remove clears the retained payload of path.
func (d *DB) Remove(ctx context.Context, path string) error {
	if err := rtdb.CheckWritable(path); err != nil {
		return err
	}
	return d.publish(ctx, path, []byte{})
}

// Close disconnects from the broker and drops every listener.
func (d *DB) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.client.Disconnect(250)
	d.conn.Set(false)
	d.conn.Clear()
	d.reg.Clear()
	d.logger.Info("disconnected from MQTT broker")
	return nil
}

func (d *DB) publish(ctx context.Context, path string, payload []byte) error {
	if d.isClosed() {
		return rtdb.ErrClosed
	}
	topic := d.Topic(path)
	if err := wait(ctx, d.client.Publish(topic, d.opts.QoS, true, payload), d.opts.WriteTimeout); err != nil {
		return fmt.Errorf("mqttdb: publish %s: %w", topic, err)
	}
	return nil
}

// onConnect runs on every (re)connect. The session is clean, so all
// subscriptions are issued again.
func (d *DB) onConnect() {
	d.logger.Info("connected to MQTT broker", logger.String("broker", d.opts.Broker))
	for _, path := range d.reg.Paths() {
		if err := d.subscribe(path); err != nil {
			d.logger.Error("resubscribe failed", logger.String("path", path), logger.Error(err))
		}
	}
	d.conn.Set(true)
}

func (d *DB) onConnectionLost(err error) {
	d.logger.Warn("MQTT connection lost", logger.Error(err))
	d.conn.Set(false)
}

func (d *DB) subscribe(path string) error {
	topic := d.Topic(path)
	token := d.client.Subscribe(topic, d.opts.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		d.deliver(msg.Topic(), msg.Payload())
	})
	if err := wait(context.Background(), token, d.opts.WriteTimeout); err != nil {
		return fmt.Errorf("mqttdb: subscribe %s: %w", topic, err)
	}
	d.logger.Debug("subscribed", logger.String("topic", topic))
	return nil
}

func (d *DB) unsubscribe(path string) {
	topic := d.Topic(path)
	if err := wait(context.Background(), d.client.Unsubscribe(topic), d.opts.WriteTimeout); err != nil {
		d.logger.Warn("unsubscribe failed", logger.String("topic", topic), logger.Error(err))
	}
}

// deliver turns one MQTT message into a snapshot. An empty payload is a
// cleared value.
func (d *DB) deliver(topic string, payload []byte) {
	snap := rtdb.Snapshot{Path: d.Path(topic)}
	if len(payload) > 0 {
		snap.Raw = append(json.RawMessage(nil), payload...)
	}
	d.reg.Dispatch(snap)
}

func (d *DB) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}
