// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/navigation_guide/internal/dashboard"
	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

const (
	defaultWriteWait    = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	sendTimeout         = 10 * time.Second
	maxMessageSize      = 64 << 10
)

// WSMessage is sent by the page.
type WSMessage struct {
	Action string `json:"action"` // draft, send
	Text   string `json:"text,omitempty"`
}

// WSResponse is sent to the page.
type WSResponse struct {
	Type    string          `json:"type"` // view, draft, ack, error
	View    *dashboard.View `json:"view,omitempty"`
	Text    string          `json:"text,omitempty"`
	CanSend bool            `json:"can_send,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Message string          `json:"message,omitempty"`
}

// session is one connected page. It owns the page's composer.
type session struct {
	id       string
	conn     *websocket.Conn
	composer *dashboard.Composer
	replies  chan WSResponse
	logger   *logger.Logger

	writeWait    time.Duration
	pingInterval time.Duration
}

// HandleWebSocket upgrades the request and runs a session until the page
// goes away.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", logger.Error(err))
		return
	}

	s := &session{
		id:           uuid.NewString(),
		conn:         conn,
		composer:     dashboard.NewComposer(h.dash),
		replies:      make(chan WSResponse, 8),
		writeWait:    h.opts.WriteWait,
		pingInterval: h.opts.PingInterval,
	}
	if s.writeWait <= 0 {
		s.writeWait = defaultWriteWait
	}
	if s.pingInterval <= 0 {
		s.pingInterval = defaultPingInterval
	}
	s.logger = h.logger.With(logger.String("session", s.id))
	s.logger.Info("websocket session opened", logger.String("remote_addr", r.RemoteAddr))

	views, cancel := h.dash.Watch()
	defer cancel()
	s.run(views)
	s.logger.Info("websocket session closed")
}

func (s *session) run(views <-chan dashboard.View) {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	defer s.conn.Close()

	go s.readLoop(ctx, stop)

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case v, ok := <-views:
			if !ok {
				s.closeNormal()
				return
			}
			if err := s.write(WSResponse{Type: "view", View: &v}); err != nil {
				return
			}
		case resp := <-s.replies:
			if err := s.write(resp); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *session) readLoop(ctx context.Context, stop context.CancelFunc) {
	defer stop()

	pongWait := s.pingInterval * 10 / 9
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg WSMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", logger.Error(err))
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Action {
		case "draft":
			s.composer.SetText(msg.Text)
			s.reply(ctx, s.draft())

		case "send":
			if msg.Text != "" {
				s.composer.SetText(msg.Text)
			}
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			ack, sent := s.composer.Send(sendCtx)
			cancel()
			if sent {
				s.reply(ctx, WSResponse{Type: "ack", OK: ack.OK, Message: ack.Message})
			}
			s.reply(ctx, s.draft())

		default:
			s.reply(ctx, WSResponse{Type: "error", Message: "unknown action " + msg.Action})
		}
	}
}

func (s *session) draft() WSResponse {
	return WSResponse{Type: "draft", Text: s.composer.Text(), CanSend: s.composer.CanSend()}
}

func (s *session) reply(ctx context.Context, resp WSResponse) {
	select {
	case s.replies <- resp:
	case <-ctx.Done():
	}
}

func (s *session) write(resp WSResponse) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
	if err := s.conn.WriteJSON(resp); err != nil {
		s.logger.Debug("websocket write error", logger.Error(err))
		return err
	}
	return nil
}

func (s *session) closeNormal() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "dashboard closed")
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeWait))
}
