package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/playroom/internal/shared"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = pingPeriod * 2
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams the room's event channel to a websocket client. The
// subscription is confirmed before the upgrade so no event published after the
// handshake is missed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")

	if s.streams.Err() != nil {
		s.fail(w, r, fmt.Errorf("%w: server is shutting down", shared.ErrServiceUnavailable))
		return
	}
	ctx, cancel := context.WithCancel(s.streams)
	defer cancel()

	sub := s.store.Subscribe(ctx, room)
	defer sub.Close()
	if _, err := sub.Receive(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "room", room, "error", err)
		return
	}
	defer conn.Close()
	s.logger.Debug("event stream opened", "room", room)

	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	messages := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			if s.streams.Err() != nil {
				bye := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, bye, time.Now().Add(writeWait))
			}
			s.logger.Debug("event stream closed", "room", room)
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
