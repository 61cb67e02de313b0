// Package http implements the REST surface over gorilla/mux, translating
// HTTP requests into orchestrator calls and chaterr errors into the
// {"detail": "<message>"} responses the transport contract promises.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/chatcore/server/internal/chaterr"
	"github.com/chatcore/server/internal/orchestrator"
	"github.com/chatcore/server/internal/security"
)

type ctxKey int

const userIDKey ctxKey = iota

// Server wires the orchestrator into an http.Handler.
type Server struct {
	orch     *orchestrator.Orchestrator
	security *security.Service
	router   *mux.Router
}

// New builds the REST router. Call Handler to get the http.Handler to serve.
func New(orch *orchestrator.Orchestrator, sec *security.Service) *Server {
	s := &Server{orch: orch, security: sec}
	s.router = s.buildRouter()
	return s
}

// Handler returns the http.Handler to pass to http.Server.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.router)
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/register", s.handleRegister).Methods("POST", "OPTIONS")
	r.HandleFunc("/token", s.handleToken).Methods("POST", "OPTIONS")

	r.HandleFunc("/users/me", s.requireAuth(s.handleGetMe)).Methods("GET", "OPTIONS")
	r.HandleFunc("/users/me", s.requireAuth(s.handleUpdateMe)).Methods("PUT", "OPTIONS")
	r.HandleFunc("/users/me/status", s.requireAuth(s.handleUpdateStatus)).Methods("PUT", "OPTIONS")

	r.HandleFunc("/chats", s.requireAuth(s.handleCreateChat)).Methods("POST", "OPTIONS")
	r.HandleFunc("/chats", s.requireAuth(s.handleListChats)).Methods("GET", "OPTIONS")
	r.HandleFunc("/chats/{id}", s.requireAuth(s.handleGetChat)).Methods("GET", "OPTIONS")
	r.HandleFunc("/chats/{id}", s.requireAuth(s.handleUpdateChat)).Methods("PUT", "OPTIONS")
	r.HandleFunc("/chats/{id}", s.requireAuth(s.handleDeleteChat)).Methods("DELETE", "OPTIONS")
	r.HandleFunc("/chats/{id}/members/{uid}", s.requireAuth(s.handleAddMember)).Methods("POST", "OPTIONS")
	r.HandleFunc("/chats/{id}/members/{uid}", s.requireAuth(s.handleRemoveMember)).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/messages", s.requireAuth(s.handleSendMessage)).Methods("POST", "OPTIONS")
	r.HandleFunc("/chats/{id}/messages", s.requireAuth(s.handleGetChatMessages)).Methods("GET", "OPTIONS")
	r.HandleFunc("/messages/{id}", s.requireAuth(s.handleEditMessage)).Methods("PUT", "OPTIONS")
	r.HandleFunc("/messages/{id}", s.requireAuth(s.handleDeleteMessage)).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/messages/{id}/read", s.requireAuth(s.handleMarkMessageRead)).Methods("POST", "OPTIONS")
	r.HandleFunc("/chats/{id}/read", s.requireAuth(s.handleMarkChatRead)).Methods("POST", "OPTIONS")

	r.HandleFunc("/messages/{id}/reactions/{type}", s.requireAuth(s.handleAddReaction)).Methods("POST", "OPTIONS")
	r.HandleFunc("/messages/{id}/reactions/{type}", s.requireAuth(s.handleRemoveReaction)).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/messages/{id}/pin", s.requireAuth(s.handlePinMessage)).Methods("POST", "OPTIONS")
	r.HandleFunc("/messages/{id}/unpin", s.requireAuth(s.handleUnpinMessage)).Methods("POST", "OPTIONS")
	r.HandleFunc("/chats/{id}/pinned", s.requireAuth(s.handleGetPinned)).Methods("GET", "OPTIONS")

	r.HandleFunc("/uploads", s.requireAuth(s.handleUpload)).Methods("POST", "OPTIONS")
	r.HandleFunc("/messages/file", s.requireAuth(s.handleSendFileMessage)).Methods("POST", "OPTIONS")
	r.HandleFunc("/chats/{id}/typing", s.requireAuth(s.handleTyping)).Methods("POST", "OPTIONS")

	r.HandleFunc("/search", s.requireAuth(s.handleSearch)).Methods("GET", "OPTIONS")

	r.HandleFunc("/stats/chat/{id}", s.requireAuth(s.handleChatStats)).Methods("GET", "OPTIONS")
	r.HandleFunc("/stats/user", s.requireAuth(s.handleUserStats)).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth extracts and validates the bearer token, storing the caller's
// user id in the request context before delegating to next.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, chaterr.Auth("missing bearer token"))
			return
		}
		userID, err := s.security.GetUserIDFromToken(token)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next(w, r.WithContext(ctx))
	}
}

func extractBearer(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, chaterr.HTTPStatus(err), map[string]string{"detail": err.Error()})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return chaterr.Validation("malformed request body")
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
