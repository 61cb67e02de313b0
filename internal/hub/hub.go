// Package hub is the connection fan-out engine: it tracks which sessions
// belong to which users and which chats, and routes outbound frames to the
// right sessions without ever touching domain logic.
package hub

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// CloseTryAgainLater mirrors the WebSocket close code the hub passes to
// Session.Close when Send reports a full queue.
const (
	CloseTryAgainLater = 1013
)

// Session is the narrow collaborator the hub drives. The WebSocket transport
// layer implements it over a real connection; tests can fake it.
type Session interface {
	ID() string
	UserID() string
	// Send enqueues frame for delivery. It returns false if the session's
	// outbound queue is full; the caller purges the session on false.
	Send(frame Frame) bool
	Close(code int, reason string)
}

// Hub tracks connected sessions across four indices: which sessions a user
// owns, which sessions are joined to a chat, which chats a session has
// joined, and which user owns a session.
type Hub struct {
	mu sync.RWMutex

	sessions     map[string]Session
	userSessions map[string]map[string]struct{} // user id -> session ids
	chatSessions map[string]map[string]struct{} // chat id -> session ids
	sessionChats map[string]map[string]struct{} // session id -> chat ids
	sessionUser  map[string]string               // session id -> user id

	pingInterval time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
}

// New constructs an empty Hub. pingInterval is the keepalive tick period.
func New(pingInterval time.Duration) *Hub {
	return &Hub{
		sessions:     make(map[string]Session),
		userSessions: make(map[string]map[string]struct{}),
		chatSessions: make(map[string]map[string]struct{}),
		sessionChats: make(map[string]map[string]struct{}),
		sessionUser:  make(map[string]string),
		pingInterval: pingInterval,
		stop:         make(chan struct{}),
	}
}

// Connect registers session and sends it its welcome frame. It returns
// whether this is the user's first connected session, so callers can fan out
// a user_online event.
func (h *Hub) Connect(session Session) (firstSession bool) {
	h.mu.Lock()
	userID := session.UserID()
	h.sessions[session.ID()] = session
	h.sessionUser[session.ID()] = userID
	h.sessionChats[session.ID()] = make(map[string]struct{})

	sessions, ok := h.userSessions[userID]
	if !ok {
		sessions = make(map[string]struct{})
		h.userSessions[userID] = sessions
	}
	firstSession = len(sessions) == 0
	sessions[session.ID()] = struct{}{}
	h.mu.Unlock()

	session.Send(Connected(userID))
	return firstSession
}

// Disconnect purges session from every index. It returns whether the user
// has no remaining sessions, so callers can fan out a user_offline event.
func (h *Hub) Disconnect(sessionID string) (userID string, lastSession bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID, ok := h.sessionUser[sessionID]
	if !ok {
		return "", false
	}

	for chatID := range h.sessionChats[sessionID] {
		delete(h.chatSessions[chatID], sessionID)
		if len(h.chatSessions[chatID]) == 0 {
			delete(h.chatSessions, chatID)
		}
	}

	delete(h.sessions, sessionID)
	delete(h.sessionChats, sessionID)
	delete(h.sessionUser, sessionID)

	if sessions, ok := h.userSessions[userID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(h.userSessions, userID)
			lastSession = true
		}
	}
	return userID, lastSession
}

// JoinChat adds sessionID to chatID's session set and acknowledges the join.
func (h *Hub) JoinChat(sessionID, chatID string) {
	h.mu.Lock()
	if _, ok := h.sessionChats[sessionID]; !ok {
		h.mu.Unlock()
		return
	}
	h.sessionChats[sessionID][chatID] = struct{}{}
	if _, ok := h.chatSessions[chatID]; !ok {
		h.chatSessions[chatID] = make(map[string]struct{})
	}
	h.chatSessions[chatID][sessionID] = struct{}{}
	session := h.sessions[sessionID]
	h.mu.Unlock()

	if session != nil {
		session.Send(ChatJoined(chatID))
	}
}

// LeaveChat removes sessionID from chatID's session set and acknowledges it.
func (h *Hub) LeaveChat(sessionID, chatID string) {
	h.mu.Lock()
	delete(h.sessionChats[sessionID], chatID)
	if sessions, ok := h.chatSessions[chatID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(h.chatSessions, chatID)
		}
	}
	session := h.sessions[sessionID]
	h.mu.Unlock()

	if session != nil {
		session.Send(ChatLeft(chatID))
	}
}

// BroadcastToChat delivers frame to every session joined to chatID, except
// excludeSessionID (pass "" to exclude none). Sessions whose outbound queue
// is full are closed and purged; the failure is never propagated to the
// caller.
func (h *Hub) BroadcastToChat(chatID string, frame Frame, excludeSessionID string) {
	h.mu.RLock()
	var targets []Session
	for sessionID := range h.chatSessions[chatID] {
		if sessionID == excludeSessionID {
			continue
		}
		if s, ok := h.sessions[sessionID]; ok {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.deliver(s, frame)
	}
}

// BroadcastToChatExcludingUser delivers frame to every session joined to
// chatID except those belonging to excludeUserID. Used for fan-out events
// that must never echo back to their originator's other devices, such as
// typing indicators.
func (h *Hub) BroadcastToChatExcludingUser(chatID string, frame Frame, excludeUserID string) {
	h.mu.RLock()
	var targets []Session
	for sessionID := range h.chatSessions[chatID] {
		if h.sessionUser[sessionID] == excludeUserID {
			continue
		}
		if s, ok := h.sessions[sessionID]; ok {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.deliver(s, frame)
	}
}

// SendToUser delivers frame to every session the user currently holds
// (multi-device fan-out).
func (h *Hub) SendToUser(userID string, frame Frame) {
	h.mu.RLock()
	var targets []Session
	for sessionID := range h.userSessions[userID] {
		if s, ok := h.sessions[sessionID]; ok {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.deliver(s, frame)
	}
}

func (h *Hub) deliver(s Session, frame Frame) {
	if !s.Send(frame) {
		log.Warn().Str("session_id", s.ID()).Str("user_id", s.UserID()).Msg("outbound queue full, closing session")
		s.Close(CloseTryAgainLater, "try again later")
		h.Disconnect(s.ID())
	}
}

// IsUserOnline reports whether userID has at least one connected session.
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userSessions[userID]) > 0
}

// Run starts the keepalive ticker; it blocks until ctx-equivalent Stop is
// called.
func (h *Hub) Run() {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.pingAll()
		case <-h.stop:
			return
		}
	}
}

// Stop halts the keepalive ticker started by Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) pingAll() {
	h.mu.RLock()
	sessions := make([]Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		h.deliver(s, Ping())
	}
}
