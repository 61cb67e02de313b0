package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcore/server/internal/chaterr"
	"github.com/chatcore/server/internal/domain"
)

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.CreateUser(ctx, domain.User{Username: "alice"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, domain.User{Username: "alice"})
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.KindConflict))
}

func TestGetUserByUsernameCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.CreateUser(ctx, domain.User{Username: "Alice"})
	require.NoError(t, err)

	found, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", found.Username)
}

func TestChatMembership(t *testing.T) {
	ctx := context.Background()
	s := New()

	chat, err := s.CreateChat(ctx, domain.Chat{
		ChatType: domain.ChatGroup,
		Members: []domain.ChatMember{
			{UserID: "u1", Role: domain.RoleOwner},
		},
	})
	require.NoError(t, err)

	require.NoError(t, s.AddChatMember(ctx, chat.ID, "u2", domain.RoleMember))
	members, err := s.GetChatMembers(ctx, chat.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, s.RemoveChatMember(ctx, chat.ID, "u2"))
	members, err = s.GetChatMembers(ctx, chat.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	err = s.RemoveChatMember(ctx, chat.ID, "u2")
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.KindNotFound))
}

func TestGetUserChatsOrdersByLastMessageActivity(t *testing.T) {
	ctx := context.Background()
	s := New()

	older, err := s.CreateChat(ctx, domain.Chat{ChatType: domain.ChatGroup, Members: []domain.ChatMember{{UserID: "u1", Role: domain.RoleOwner}}})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	newer, err := s.CreateChat(ctx, domain.Chat{ChatType: domain.ChatGroup, Members: []domain.ChatMember{{UserID: "u1", Role: domain.RoleOwner}}})
	require.NoError(t, err)

	// newer was created after older, so it would sort first by created_at
	// alone; a fresh message in older must still bump it to the top.
	_, err = s.CreateMessage(ctx, domain.Message{ChatID: older.ID, Content: "hi"})
	require.NoError(t, err)

	chats, err := s.GetUserChats(ctx, "u1", 0, 0)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, older.ID, chats[0].ID)
	assert.Equal(t, newer.ID, chats[1].ID)
}

func TestGetChatMessagesPaginationCursor(t *testing.T) {
	ctx := context.Background()
	s := New()
	chat, err := s.CreateChat(ctx, domain.Chat{ChatType: domain.ChatGroup})
	require.NoError(t, err)

	var ids []string
	base := time.Now()
	for i := 0; i < 5; i++ {
		msg, err := s.CreateMessage(ctx, domain.Message{ChatID: chat.ID, Content: "m"})
		require.NoError(t, err)
		msg.CreatedAt = base.Add(time.Duration(i) * time.Second)
		s.messages[msg.ID] = msg
		ids = append(ids, msg.ID)
	}

	page, err := s.GetChatMessages(ctx, chat.ID, "", "", 0, 50)
	require.NoError(t, err)
	require.Len(t, page, 5)
	assert.Equal(t, ids[4], page[0].ID, "newest first")

	before, err := s.GetChatMessages(ctx, chat.ID, ids[3], "", 0, 50)
	require.NoError(t, err)
	assert.Len(t, before, 3)

	after, err := s.GetChatMessages(ctx, chat.ID, "", ids[1], 0, 50)
	require.NoError(t, err)
	assert.Len(t, after, 3)
}

func TestDeleteMessageSoftVsHard(t *testing.T) {
	ctx := context.Background()
	s := New()
	chat, err := s.CreateChat(ctx, domain.Chat{ChatType: domain.ChatGroup})
	require.NoError(t, err)
	msg, err := s.CreateMessage(ctx, domain.Message{ChatID: chat.ID, Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteMessage(ctx, msg.ID, false))
	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Empty(t, got.Content)

	require.NoError(t, s.DeleteMessage(ctx, msg.ID, true))
	_, err = s.GetMessage(ctx, msg.ID)
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.KindNotFound))
}

func TestReactionIdempotency(t *testing.T) {
	ctx := context.Background()
	s := New()
	chat, err := s.CreateChat(ctx, domain.Chat{ChatType: domain.ChatGroup})
	require.NoError(t, err)
	msg, err := s.CreateMessage(ctx, domain.Message{ChatID: chat.ID, Content: "hi"})
	require.NoError(t, err)

	r1, err := s.AddReaction(ctx, msg.ID, "u1", "thumbs_up")
	require.NoError(t, err)
	r2, err := s.AddReaction(ctx, msg.ID, "u1", "thumbs_up")
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Len(t, got.Reactions, 1)

	require.NoError(t, s.RemoveReaction(ctx, msg.ID, "u1", "thumbs_up"))
	got, err = s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Len(t, got.Reactions, 0)
}

func TestSearchMessagesRestrictedToMembers(t *testing.T) {
	ctx := context.Background()
	s := New()
	chat, err := s.CreateChat(ctx, domain.Chat{
		ChatType: domain.ChatGroup,
		Members:  []domain.ChatMember{{UserID: "member"}},
	})
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, domain.Message{ChatID: chat.ID, Content: "Hello World"})
	require.NoError(t, err)

	found, err := s.SearchMessages(ctx, "hello", "member", "", 0, 10)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	notFound, err := s.SearchMessages(ctx, "hello", "stranger", "", 0, 10)
	require.NoError(t, err)
	assert.Len(t, notFound, 0)
}

func TestChatStatsAndUserStats(t *testing.T) {
	ctx := context.Background()
	s := New()
	chat, err := s.CreateChat(ctx, domain.Chat{
		ChatType: domain.ChatGroup,
		Members:  []domain.ChatMember{{UserID: "u1"}, {UserID: "u2"}},
	})
	require.NoError(t, err)
	msg, err := s.CreateMessage(ctx, domain.Message{ChatID: chat.ID, SenderID: "u1", Content: "hi"})
	require.NoError(t, err)
	_, err = s.AddReaction(ctx, msg.ID, "u2", "heart")
	require.NoError(t, err)

	chatStats, err := s.GetChatStats(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, chatStats.MessageCount)
	assert.Equal(t, 2, chatStats.MemberCount)
	assert.Equal(t, 1, chatStats.ReactionCount)

	userStats, err := s.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, userStats.MessageCount)
	assert.Equal(t, 1, userStats.ChatCount)
}
