package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcore/server/internal/blobstore/local"
	"github.com/chatcore/server/internal/config"
	"github.com/chatcore/server/internal/domain"
	"github.com/chatcore/server/internal/hub"
	"github.com/chatcore/server/internal/orchestrator"
	"github.com/chatcore/server/internal/persistence/memory"
	"github.com/chatcore/server/internal/security"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	sec, err := security.New(&config.Config{
		JWTSecret:            "test-secret-key",
		JWTAlgorithm:         "HS256",
		JWTExpirationMinutes: 60,
	}, nil)
	require.NoError(t, err)

	blobs, err := local.New(t.TempDir())
	require.NoError(t, err)

	orch := orchestrator.New(memory.New(), sec, hub.New(30*time.Second), blobs)
	return New(orch, sec)
}

func doRequest(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(b)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func registerAndLogin(t *testing.T, s *Server, username string) (string, domain.User) {
	t.Helper()
	rec := doRequest(t, s, http.MethodPost, "/register", "", map[string]string{
		"username": username, "email": username + "@example.com", "password": "Password123!",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var user domain.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))

	form := url.Values{"username": {username}, "password": {"Password123!"}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req)
	require.Equal(t, http.StatusOK, rec2.Code)
	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &tokenResp))
	return tokenResp.AccessToken, user
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)
	token, user := registerAndLogin(t, s, "testuser")
	assert.NotEmpty(t, token)
	assert.Equal(t, "testuser", user.Username)
}

func TestRegisterDuplicateReturnsConflict(t *testing.T) {
	s := newTestServer(t)
	registerAndLogin(t, s, "testuser")

	rec := doRequest(t, s, http.MethodPost, "/register", "", map[string]string{
		"username": "testuser", "email": "dup@example.com", "password": "Password123!",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetMeRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateChatAndSendMessage(t *testing.T) {
	s := newTestServer(t)
	token, user := registerAndLogin(t, s, "alice")

	rec := doRequest(t, s, http.MethodPost, "/chats", token, map[string]interface{}{
		"chat_type": "group", "name": "Test Chat",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var chat domain.Chat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))
	assert.True(t, chat.IsMember(user.ID))

	rec = doRequest(t, s, http.MethodPost, "/messages", token, map[string]interface{}{
		"chat_id": chat.ID, "content": "Hello, world!",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var message domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &message))
	assert.Equal(t, "Hello, world!", message.Content)

	rec = doRequest(t, s, http.MethodGet, "/chats/"+chat.ID+"/messages", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var messages []domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
}

func TestAccessForbiddenToNonMember(t *testing.T) {
	s := newTestServer(t)
	ownerToken, _ := registerAndLogin(t, s, "alice")
	outsiderToken, _ := registerAndLogin(t, s, "carol")

	rec := doRequest(t, s, http.MethodPost, "/chats", ownerToken, map[string]interface{}{
		"chat_type": "group", "name": "Private",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var chat domain.Chat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))

	rec = doRequest(t, s, http.MethodGet, "/chats/"+chat.ID, outsiderToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
