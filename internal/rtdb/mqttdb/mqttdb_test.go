// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mqttdb

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/navigation_guide/internal/rtdb"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

type doneToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

// pendingToken never completes.
type pendingToken struct{}

func (pendingToken) Wait() bool                     { return false }
func (pendingToken) WaitTimeout(time.Duration) bool { return false }
func (pendingToken) Done() <-chan struct{}          { return make(chan struct{}) }
func (pendingToken) Error() error                   { return nil }

type published struct {
	topic    string
	retained bool
	payload  string
}

type fakeBroker struct {
	mu           sync.Mutex
	open         bool
	connectErr   error
	publishErr   error
	subscribed   map[string]mqtt.MessageHandler
	unsubscribed []string
	published    []published
	disconnected bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subscribed: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) Connect() mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connectErr == nil {
		b.open = true
	}
	return newToken(b.connectErr)
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	b.open = false
	b.disconnected = true
	b.mu.Unlock()
}

func (b *fakeBroker) IsConnectionOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

func (b *fakeBroker) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return newToken(b.publishErr)
	}
	b.published = append(b.published, published{topic, retained, string(payload.([]byte))})
	return newToken(nil)
}

func (b *fakeBroker) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed[topic] = cb
	return newToken(nil)
}

func (b *fakeBroker) Unsubscribe(topics ...string) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		delete(b.subscribed, t)
		b.unsubscribed = append(b.unsubscribed, t)
	}
	return newToken(nil)
}

func newTestDB(b broker) *DB {
	d := newDB(Options{TopicPrefix: "navguide/", QoS: 1, WriteTimeout: 50 * time.Millisecond}, logger.NewNop())
	d.client = b
	return d
}

func TestTopicMapping(t *testing.T) {
	d := newTestDB(newFakeBroker())
	if got := d.Topic("/location"); got != "navguide/location" {
		t.Errorf("Topic = %q", got)
	}
	if got := d.Path("navguide/emergency"); got != "emergency" {
		t.Errorf("Path = %q", got)
	}
}

func TestSetAndRemovePublishRetained(t *testing.T) {
	b := newFakeBroker()
	d := newTestDB(b)
	ctx := context.Background()

	if err := d.Set(ctx, "voice", "turn left"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := d.Remove(ctx, "emergency"); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}

	want := []published{
		{"navguide/voice", true, `"turn left"`},
		{"navguide/emergency", true, ""},
	}
	if len(b.published) != len(want) {
		t.Fatalf("published = %+v", b.published)
	}
	for i := range want {
		if b.published[i] != want[i] {
			t.Errorf("published[%d] = %+v, want %+v", i, b.published[i], want[i])
		}
	}
}

func TestPublishErrorIsWrapped(t *testing.T) {
	b := newFakeBroker()
	b.publishErr = errors.New("not connected")
	d := newTestDB(b)

	err := d.Set(context.Background(), "voice", "hello")
	if err == nil || !strings.Contains(err.Error(), "navguide/voice") {
		t.Fatalf("Set() = %v, want wrapped publish error", err)
	}
}

type stuckBroker struct{ *fakeBroker }

func (stuckBroker) Publish(string, byte, bool, interface{}) mqtt.Token { return pendingToken{} }

func TestPublishTimesOut(t *testing.T) {
	d := newTestDB(stuckBroker{newFakeBroker()})
	if err := d.Set(context.Background(), "voice", "x"); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Set() = %v, want ErrTimeout", err)
	}
}

func TestSubscriptionsFollowConnection(t *testing.T) {
	b := newFakeBroker()
	d := newTestDB(b)

	var got []string
	// registered before the connection exists: subscribed on connect
	off, err := d.On("location", func(s rtdb.Snapshot) { got = append(got, string(s.Raw)) })
	if err != nil {
		t.Fatalf("On() failed: %v", err)
	}
	if len(b.subscribed) != 0 {
		t.Fatalf("subscribed before connect: %v", b.subscribed)
	}

	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	d.onConnect()

	if _, ok := b.subscribed["navguide/location"]; !ok {
		t.Fatalf("location not subscribed after connect: %v", b.subscribed)
	}
	d.deliver("navguide/location", []byte(`{"lat":1,"lon":2}`))
	d.deliver("navguide/location", nil)

	if len(got) != 2 || got[0] != `{"lat":1,"lon":2}` || got[1] != "" {
		t.Fatalf("delivered = %q", got)
	}

	off()
	if len(b.unsubscribed) != 1 || b.unsubscribed[0] != "navguide/location" {
		t.Errorf("unsubscribed = %v", b.unsubscribed)
	}
}

func TestConnectivityFollowsHandlers(t *testing.T) {
	d := newTestDB(newFakeBroker())
	var states []bool
	if _, err := d.On(rtdb.InfoConnected, func(s rtdb.Snapshot) { states = append(states, s.IsTrue()) }); err != nil {
		t.Fatalf("On() failed: %v", err)
	}

	d.onConnect()
	d.onConnectionLost(errors.New("eof"))

	if len(states) != 3 || states[0] || !states[1] || states[2] {
		t.Errorf("states = %v, want [false true false]", states)
	}
}

func TestConnectFailure(t *testing.T) {
	b := newFakeBroker()
	b.connectErr = errors.New("refused")
	d := newTestDB(b)
	if err := d.Connect(context.Background()); err == nil {
		t.Fatal("Connect() succeeded against refusing broker")
	}
}

func TestCloseDisconnects(t *testing.T) {
	b := newFakeBroker()
	d := newTestDB(b)
	if err := d.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if !b.disconnected {
		t.Error("broker not disconnected")
	}
	if err := d.Set(context.Background(), "voice", "x"); !errors.Is(err, rtdb.ErrClosed) {
		t.Errorf("Set() after Close = %v, want ErrClosed", err)
	}
}

func TestUniqueClientID(t *testing.T) {
	a, b := UniqueClientID("navguide-web"), UniqueClientID("navguide-web")
	if a == b || !strings.HasPrefix(a, "navguide-web-") {
		t.Errorf("ids %q and %q", a, b)
	}
}

func TestLaterListenerGetsRetainedValue(t *testing.T) {
	b := newFakeBroker()
	d := newTestDB(b)
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}

	var first, second []string
	offFirst, err := d.On("location", func(s rtdb.Snapshot) { first = append(first, string(s.Raw)) })
	if err != nil {
		t.Fatalf("On() failed: %v", err)
	}
	// the broker replays the retained message to the new subscription
	d.deliver("navguide/location", []byte(`{"lat":1,"lon":2}`))

	offSecond, err := d.On("location", func(s rtdb.Snapshot) { second = append(second, string(s.Raw)) })
	if err != nil {
		t.Fatalf("On() failed: %v", err)
	}
	if len(first) != 1 || len(second) != 1 || second[0] != `{"lat":1,"lon":2}` {
		t.Fatalf("first = %q, second = %q, want one current value each", first, second)
	}

	offFirst()
	offSecond()
	var third []string
	if _, err := d.On("location", func(s rtdb.Snapshot) { third = append(third, string(s.Raw)) }); err != nil {
		t.Fatalf("On() failed: %v", err)
	}
	if len(third) != 0 {
		t.Errorf("value replayed after the path was unsubscribed: %q", third)
	}
}
