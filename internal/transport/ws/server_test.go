package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcore/server/internal/blobstore/local"
	"github.com/chatcore/server/internal/config"
	"github.com/chatcore/server/internal/hub"
	"github.com/chatcore/server/internal/orchestrator"
	"github.com/chatcore/server/internal/persistence/memory"
	"github.com/chatcore/server/internal/security"
)

func newTestSetup(t *testing.T) (*httptest.Server, *security.Service, *orchestrator.Orchestrator) {
	t.Helper()
	sec, err := security.New(&config.Config{
		JWTSecret:            "test-secret-key",
		JWTAlgorithm:         "HS256",
		JWTExpirationMinutes: 60,
	}, nil)
	require.NoError(t, err)

	blobs, err := local.New(t.TempDir())
	require.NoError(t, err)

	h := hub.New(30 * time.Second)
	orch := orchestrator.New(memory.New(), sec, h, blobs)
	wsServer := New(h, orch, sec, 16)

	router := mux.NewRouter()
	wsServer.Register(router)
	srv := httptest.NewServer(router)
	return srv, sec, orch
}

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

func TestUpgradeAcceptsValidToken(t *testing.T) {
	srv, sec, orch := newTestSetup(t)
	defer srv.Close()

	user, err := orch.RegisterUser(context.Background(), "alice", "alice@example.com", "Alice", "Password123!")
	require.NoError(t, err)
	token, _, err := orch.AuthenticateUser(context.Background(), "alice", "Password123!")
	require.NoError(t, err)
	_ = sec

	url := wsURL(srv.URL, "/ws/"+user.ID+"?token="+token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "connected", frame["type"])
}

func TestUpgradeRejectsMismatchedSubject(t *testing.T) {
	srv, _, orch := newTestSetup(t)
	defer srv.Close()

	_, err := orch.RegisterUser(context.Background(), "alice", "alice@example.com", "Alice", "Password123!")
	require.NoError(t, err)
	token, _, err := orch.AuthenticateUser(context.Background(), "alice", "Password123!")
	require.NoError(t, err)

	url := wsURL(srv.URL, "/ws/someone-else?token="+token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, closeProtocolError, closeErr.Code)
}

func TestUpgradeRejectsMissingToken(t *testing.T) {
	srv, _, orch := newTestSetup(t)
	defer srv.Close()

	user, err := orch.RegisterUser(context.Background(), "alice", "alice@example.com", "Alice", "Password123!")
	require.NoError(t, err)

	url := wsURL(srv.URL, "/ws/"+user.ID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}
