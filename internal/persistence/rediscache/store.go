// Package rediscache wraps a persistence.Store with a read-through cache for
// GetUserChats. It is not a second source of truth: every other operation
// passes straight through to the wrapped store, and any write that can
// change a user's chat list invalidates that user's cache entries.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatcore/server/internal/chaterr"
	"github.com/chatcore/server/internal/domain"
	"github.com/chatcore/server/internal/persistence"
)

const userChatsTTL = 30 * time.Second

// Store decorates a persistence.Store with a Redis read-through cache.
type Store struct {
	persistence.Store
	client *redis.Client
}

// New wraps next with a Redis cache reachable at redisURL.
func New(next persistence.Store, redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, chaterr.Config("invalid redis_url")
	}
	return &Store{Store: next, client: redis.NewClient(opts)}, nil
}

func userChatsKey(userID string) string { return "user_chats:" + userID }

func (s *Store) GetUserChats(ctx context.Context, userID string, skip, limit int) ([]domain.Chat, error) {
	if skip == 0 {
		if cached, ok := s.getCachedUserChats(ctx, userID); ok {
			return paginate(cached, skip, limit), nil
		}
	}

	chats, err := s.Store.GetUserChats(ctx, userID, 0, 0)
	if err != nil {
		return nil, err
	}
	s.setCachedUserChats(ctx, userID, chats)
	return paginate(chats, skip, limit), nil
}

func paginate(chats []domain.Chat, skip, limit int) []domain.Chat {
	if skip >= len(chats) {
		return []domain.Chat{}
	}
	end := len(chats)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return chats[skip:end]
}

func (s *Store) getCachedUserChats(ctx context.Context, userID string) ([]domain.Chat, bool) {
	raw, err := s.client.Get(ctx, userChatsKey(userID)).Bytes()
	if err != nil {
		return nil, false
	}
	var chats []domain.Chat
	if err := json.Unmarshal(raw, &chats); err != nil {
		return nil, false
	}
	return chats, true
}

func (s *Store) setCachedUserChats(ctx context.Context, userID string, chats []domain.Chat) {
	data, err := json.Marshal(chats)
	if err != nil {
		return
	}
	s.client.Set(ctx, userChatsKey(userID), data, userChatsTTL)
}

func (s *Store) invalidateUserChats(ctx context.Context, userIDs ...string) {
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = userChatsKey(id)
	}
	if len(keys) > 0 {
		s.client.Del(ctx, keys...)
	}
}

func (s *Store) CreateChat(ctx context.Context, chat domain.Chat) (domain.Chat, error) {
	created, err := s.Store.CreateChat(ctx, chat)
	if err == nil {
		for _, m := range created.Members {
			s.invalidateUserChats(ctx, m.UserID)
		}
	}
	return created, err
}

func (s *Store) UpdateChat(ctx context.Context, chatID string, patch domain.ChatPatch) (domain.Chat, error) {
	chat, err := s.Store.UpdateChat(ctx, chatID, patch)
	if err == nil {
		for _, m := range chat.Members {
			s.invalidateUserChats(ctx, m.UserID)
		}
	}
	return chat, err
}

func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	members, _ := s.Store.GetChatMembers(ctx, chatID)
	err := s.Store.DeleteChat(ctx, chatID)
	if err == nil {
		for _, m := range members {
			s.invalidateUserChats(ctx, m.UserID)
		}
	}
	return err
}

func (s *Store) CreateMessage(ctx context.Context, message domain.Message) (domain.Message, error) {
	created, err := s.Store.CreateMessage(ctx, message)
	if err == nil {
		members, _ := s.Store.GetChatMembers(ctx, created.ChatID)
		for _, m := range members {
			s.invalidateUserChats(ctx, m.UserID)
		}
	}
	return created, err
}

func (s *Store) AddChatMember(ctx context.Context, chatID, userID string, role domain.MemberRole) error {
	err := s.Store.AddChatMember(ctx, chatID, userID, role)
	if err == nil {
		s.invalidateUserChats(ctx, userID)
	}
	return err
}

func (s *Store) RemoveChatMember(ctx context.Context, chatID, userID string) error {
	err := s.Store.RemoveChatMember(ctx, chatID, userID)
	if err == nil {
		s.invalidateUserChats(ctx, userID)
	}
	return err
}

func (s *Store) Close() error {
	s.client.Close()
	return s.Store.Close()
}
