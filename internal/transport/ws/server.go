package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/chatcore/server/internal/hub"
	"github.com/chatcore/server/internal/orchestrator"
	"github.com/chatcore/server/internal/security"
)

// closeProtocolError is the close code used when the upgrade handshake's
// auth requirements are not met.
const closeProtocolError = 1008

// Server upgrades HTTP connections to the /ws/{user_id} endpoint and wires
// each session into the hub.
type Server struct {
	hub        *hub.Hub
	orch       *orchestrator.Orchestrator
	security   *security.Service
	queueDepth int
	upgrader   websocket.Upgrader
}

// New builds a ws.Server. queueDepth bounds each session's outbound buffer.
func New(h *hub.Hub, orch *orchestrator.Orchestrator, sec *security.Service, queueDepth int) *Server {
	return &Server{
		hub:        h,
		orch:       orch,
		security:   sec,
		queueDepth: queueDepth,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the WebSocket endpoint on r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/ws/{user_id}", s.handleUpgrade)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	pathUserID := mux.Vars(r)["user_id"]
	token := r.URL.Query().Get("token")

	subject, err := s.security.GetUserIDFromToken(token)
	if err != nil || subject == "" || subject != pathUserID {
		conn, upgradeErr := s.upgrader.Upgrade(w, r, nil)
		if upgradeErr != nil {
			return
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeProtocolError, "invalid or mismatched token"), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess := newSession(conn, subject, s.queueDepth, s.hub, s.orch)
	firstSession := s.hub.Connect(sess)
	if firstSession {
		s.orch.NotifyPresence(context.Background(), subject, true)
	}

	go sess.writePump()
	sess.readPump()
}
