// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

var (
	// ErrEmptyMessage is returned for blank messages; nothing is written.
	ErrEmptyMessage = errors.New("dashboard: message is empty")
	// ErrNotReady is returned before the database client is up.
	ErrNotReady = errors.New("dashboard: realtime database not initialized")
)

// Acknowledgement texts shown to the sender.
const (
	AckSent     = "✅ Message sent."
	AckFailed   = "❌ Failed to send message. Please try again."
	AckNotReady = "❌ Realtime database not initialized. Please refresh the page."
)

// SendVoice writes msg, unmodified, to the voice path. Blank messages are
// rejected without a write.
func (d *Dashboard) SendVoice(ctx context.Context, msg string) error {
	if strings.TrimSpace(msg) == "" {
		return ErrEmptyMessage
	}

	d.mu.Lock()
	ready := d.ready && !d.closed
	d.mu.Unlock()
	if !ready {
		return ErrNotReady
	}

	if err := d.db.Set(ctx, d.opts.Paths.Voice, msg); err != nil {
		d.logger.Error("error sending message", logger.Error(err))
		return fmt.Errorf("send voice message: %w", err)
	}
	d.logger.Info("voice message sent", logger.Int("chars", len(msg)))
	return nil
}

// Ack is the one-shot answer to a send.
type Ack struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// AckFor maps a SendVoice result to its acknowledgement.
func AckFor(err error) Ack {
	switch {
	case err == nil:
		return Ack{OK: true, Message: AckSent}
	case errors.Is(err, ErrNotReady):
		return Ack{Message: AckNotReady}
	default:
		return Ack{Message: AckFailed}
	}
}

// Sender sends voice messages.
type Sender interface {
	SendVoice(ctx context.Context, msg string) error
}

// Composer is one page's message box.
type Composer struct {
	sender Sender

	mu   sync.Mutex
	text string
}

// NewComposer returns an empty composer.
func NewComposer(s Sender) *Composer {
	return &Composer{sender: s}
}

// SetText replaces the draft.
func (c *Composer) SetText(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
}

// Text returns the draft.
func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// CanSend reports whether the send button is enabled.
func (c *Composer) CanSend() bool {
	return strings.TrimSpace(c.Text()) != ""
}

// Send sends the draft. sent is false when the draft is blank and nothing
// happened. The draft is cleared only when the write is confirmed.
func (c *Composer) Send(ctx context.Context) (ack Ack, sent bool) {
	text := c.Text()
	err := c.sender.SendVoice(ctx, text)
	if errors.Is(err, ErrEmptyMessage) {
		return Ack{}, false
	}
	if err == nil {
		c.SetText("")
	}
	return AckFor(err), true
}
