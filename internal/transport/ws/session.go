// Package ws adapts gorilla/websocket connections to hub.Session and runs
// the inbound frame loop that drives the orchestrator.
package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/chatcore/server/internal/hub"
	"github.com/chatcore/server/internal/orchestrator"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// session wraps a websocket connection and implements hub.Session. Outbound
// frames are queued on a buffered channel and written by a single writer
// goroutine, per gorilla/websocket's one-writer-at-a-time requirement.
type session struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan hub.Frame

	hub  *hub.Hub
	orch *orchestrator.Orchestrator
}

func newSession(conn *websocket.Conn, userID string, queueDepth int, h *hub.Hub, orch *orchestrator.Orchestrator) *session {
	return &session{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan hub.Frame, queueDepth),
		hub:    h,
		orch:   orch,
	}
}

func (s *session) ID() string     { return s.id }
func (s *session) UserID() string { return s.userID }

// Send enqueues frame for delivery. It never blocks: a full queue reports
// false so the hub can purge the session.
func (s *session) Send(frame hub.Frame) bool {
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *session) Close(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	s.conn.Close()
}

// readPump consumes inbound frames until the connection closes, dispatching
// each to the orchestrator. It owns the connection's read side.
func (s *session) readPump() {
	defer func() {
		userID, lastSession := s.hub.Disconnect(s.id)
		if lastSession {
			s.orch.NotifyPresence(context.Background(), userID, false)
		}
		s.conn.Close()
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var inbound inboundFrame
		if err := json.Unmarshal(raw, &inbound); err != nil {
			continue // malformed frame dropped per validation-error policy
		}
		s.handleInbound(inbound)
	}
}

// writePump is the connection's sole writer: it drains the send channel and
// sends periodic WebSocket-level pings.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type inboundFrame struct {
	Type        string   `json:"type"`
	ChatID      string   `json:"chat_id"`
	IsTyping    bool     `json:"is_typing"`
	MessageIDs  []string `json:"message_ids"`
	ReadUntilID string   `json:"read_until_id"`
	Timestamp   string   `json:"timestamp"`
}

func (s *session) handleInbound(f inboundFrame) {
	ctx := context.Background()
	switch f.Type {
	case "join_chat":
		if err := s.orch.JoinChatRoom(ctx, f.ChatID, s.userID, s.id); err != nil {
			log.Debug().Err(err).Str("session_id", s.id).Msg("join_chat rejected")
		}
	case "leave_chat":
		s.hub.LeaveChat(s.id, f.ChatID)
	case "typing":
		s.orch.TypingIndicator(f.ChatID, s.userID, f.IsTyping)
	case "read":
		if err := s.orch.MarkMessagesRead(ctx, f.ChatID, s.userID, f.MessageIDs, f.ReadUntilID); err != nil {
			log.Debug().Err(err).Str("session_id", s.id).Msg("mark_messages_read failed")
		}
	case "ping":
		s.Send(hub.Pong(f.Timestamp))
	default:
		// unknown frame types are ignored per the protocol contract
	}
}
