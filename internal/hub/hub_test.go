package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id     string
	userID string

	mu     sync.Mutex
	frames []Frame
	full   bool
	closed bool
	code   int
}

func newFakeSession(id, userID string) *fakeSession {
	return &fakeSession{id: id, userID: userID}
}

func (f *fakeSession) ID() string     { return f.id }
func (f *fakeSession) UserID() string { return f.userID }

func (f *fakeSession) Send(frame Frame) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSession) Close(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.code = code
}

func (f *fakeSession) framesOfType(t string) []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Frame
	for _, fr := range f.frames {
		if fr["type"] == t {
			out = append(out, fr)
		}
	}
	return out
}

func TestConnectSendsWelcomeFrame(t *testing.T) {
	h := New(30 * time.Second)
	s := newFakeSession("s1", "u1")

	h.Connect(s)

	welcome := s.framesOfType("connected")
	require.Len(t, welcome, 1)
	assert.Equal(t, "u1", welcome[0]["user_id"])
}

func TestJoinAndLeaveChatAcknowledged(t *testing.T) {
	h := New(30 * time.Second)
	s := newFakeSession("s1", "u1")
	h.Connect(s)

	h.JoinChat("s1", "chat1")
	joined := s.framesOfType("chat_joined")
	require.Len(t, joined, 1)
	assert.Equal(t, "chat1", joined[0]["chat_id"])

	h.LeaveChat("s1", "chat1")
	left := s.framesOfType("chat_left")
	require.Len(t, left, 1)
	assert.Equal(t, "chat1", left[0]["chat_id"])
}

func TestBroadcastReachesOnlyJoinedMembers(t *testing.T) {
	h := New(30 * time.Second)
	s1 := newFakeSession("s1", "u1")
	s2 := newFakeSession("s2", "u2")
	s3 := newFakeSession("s3", "u3")
	h.Connect(s1)
	h.Connect(s2)
	h.Connect(s3)

	h.JoinChat("s1", "chat1")
	h.JoinChat("s2", "chat1")
	// s3 never joins chat1

	h.BroadcastToChat("chat1", NewMessage("chat1", "hello"), "")

	assert.Len(t, s1.framesOfType("new_message"), 1)
	assert.Len(t, s2.framesOfType("new_message"), 1)
	assert.Len(t, s3.framesOfType("new_message"), 0)
}

func TestBroadcastExcludesOriginator(t *testing.T) {
	h := New(30 * time.Second)
	s1 := newFakeSession("s1", "u1")
	s2 := newFakeSession("s2", "u2")
	h.Connect(s1)
	h.Connect(s2)
	h.JoinChat("s1", "chat1")
	h.JoinChat("s2", "chat1")

	h.BroadcastToChat("chat1", Typing("chat1", "u1", true), "s1")

	assert.Len(t, s1.framesOfType("typing"), 0)
	assert.Len(t, s2.framesOfType("typing"), 1)
}

func TestSendToUserReachesAllSessions(t *testing.T) {
	h := New(30 * time.Second)
	deviceA := newFakeSession("sA", "u1")
	deviceB := newFakeSession("sB", "u1")
	other := newFakeSession("sC", "u2")
	h.Connect(deviceA)
	h.Connect(deviceB)
	h.Connect(other)

	h.SendToUser("u1", ReadReceipt("chat1", "u1", []string{"m1"}))

	assert.Len(t, deviceA.framesOfType("read_receipt"), 1)
	assert.Len(t, deviceB.framesOfType("read_receipt"), 1)
	assert.Len(t, other.framesOfType("read_receipt"), 0)
}

func TestDisconnectReportsLastSession(t *testing.T) {
	h := New(30 * time.Second)
	s1 := newFakeSession("s1", "u1")
	s2 := newFakeSession("s2", "u1")
	h.Connect(s1)
	h.Connect(s2)

	_, last := h.Disconnect("s1")
	assert.False(t, last)

	_, last = h.Disconnect("s2")
	assert.True(t, last)

	assert.False(t, h.IsUserOnline("u1"))
}

func TestFullQueueClosesAndPurgesSession(t *testing.T) {
	h := New(30 * time.Second)
	s := newFakeSession("s1", "u1")
	h.Connect(s)
	h.JoinChat("s1", "chat1")

	s.full = true
	h.BroadcastToChat("chat1", NewMessage("chat1", "x"), "")

	assert.True(t, s.closed)
	assert.Equal(t, CloseTryAgainLater, s.code)
	assert.False(t, h.IsUserOnline("u1"))
}
