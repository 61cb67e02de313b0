// Package memory is an in-process Store implementation backed by guarded
// maps. It is the default driver (database_type "memory") and the reference
// semantics the other drivers are tested against.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatcore/server/internal/chaterr"
	"github.com/chatcore/server/internal/domain"
)

// Store is a sync.RWMutex-guarded, in-memory persistence.Store.
type Store struct {
	mu sync.RWMutex

	users     map[string]domain.User
	chats     map[string]domain.Chat
	messages  map[string]domain.Message
	usernames map[string]string // lowercase username -> user id
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:     make(map[string]domain.User),
		chats:     make(map[string]domain.Chat),
		messages:  make(map[string]domain.Message),
		usernames: make(map[string]string),
	}
}

func (s *Store) Close() error { return nil }

// Users

func (s *Store) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Username)
	if _, exists := s.usernames[key]; exists {
		return domain.User{}, chaterr.Conflict("username already registered")
	}

	now := time.Now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	s.users[user.ID] = user
	s.usernames[key] = user.ID
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, chaterr.NotFound("user not found")
	}
	return user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[strings.ToLower(username)]
	if !ok {
		return domain.User{}, chaterr.NotFound("user not found")
	}
	return s.users[id], nil
}

func (s *Store) UpdateUser(ctx context.Context, userID string, patch domain.UserPatch) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, chaterr.NotFound("user not found")
	}
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.FullName != nil {
		user.FullName = *patch.FullName
	}
	if patch.Status != nil {
		user.Status = *patch.Status
	}
	user.UpdatedAt = time.Now()
	s.users[userID] = user
	return user, nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return chaterr.NotFound("user not found")
	}
	delete(s.users, userID)
	delete(s.usernames, strings.ToLower(user.Username))
	return nil
}

// Chats

func (s *Store) CreateChat(ctx context.Context, chat domain.Chat) (domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	chat.ID = uuid.NewString()
	chat.CreatedAt = now
	chat.UpdatedAt = now
	if chat.PinnedMessageIDs == nil {
		chat.PinnedMessageIDs = []string{}
	}
	s.chats[chat.ID] = chat
	return chat, nil
}

func (s *Store) GetChat(ctx context.Context, chatID string) (domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return domain.Chat{}, chaterr.NotFound("chat not found")
	}
	return chat, nil
}

func (s *Store) UpdateChat(ctx context.Context, chatID string, patch domain.ChatPatch) (domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return domain.Chat{}, chaterr.NotFound("chat not found")
	}
	if patch.Name != nil {
		chat.Name = *patch.Name
	}
	if patch.Description != nil {
		chat.Description = *patch.Description
	}
	if patch.PinnedMessageIDs != nil {
		chat.PinnedMessageIDs = *patch.PinnedMessageIDs
	}
	chat.UpdatedAt = time.Now()
	s.chats[chatID] = chat
	return chat, nil
}

func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return chaterr.NotFound("chat not found")
	}
	delete(s.chats, chatID)
	for id, msg := range s.messages {
		if msg.ChatID == chatID {
			delete(s.messages, id)
		}
	}
	return nil
}

func (s *Store) GetUserChats(ctx context.Context, userID string, skip, limit int) ([]domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Chat
	for _, chat := range s.chats {
		if chat.IsMember(userID) {
			result = append(result, chat)
		}
	}
	activity := make(map[string]time.Time, len(result))
	for _, chat := range result {
		activity[chat.ID] = chat.UpdatedAt
	}
	for _, msg := range s.messages {
		if last, ok := activity[msg.ChatID]; ok && msg.CreatedAt.After(last) {
			activity[msg.ChatID] = msg.CreatedAt
		}
	}
	sort.Slice(result, func(i, j int) bool { return activity[result[i].ID].After(activity[result[j].ID]) })
	return paginateChats(result, skip, limit), nil
}

func (s *Store) FindOneToOneChat(ctx context.Context, userA, userB string) (domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, chat := range s.chats {
		if chat.ChatType != domain.ChatOneToOne {
			continue
		}
		if len(chat.Members) == 2 && chat.IsMember(userA) && chat.IsMember(userB) {
			return chat, nil
		}
	}
	return domain.Chat{}, chaterr.NotFound("one-to-one chat not found")
}

func (s *Store) AddChatMember(ctx context.Context, chatID, userID string, role domain.MemberRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return chaterr.NotFound("chat not found")
	}
	if chat.IsMember(userID) {
		return nil
	}
	chat.Members = append(chat.Members, domain.ChatMember{
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now(),
	})
	s.chats[chatID] = chat
	return nil
}

func (s *Store) RemoveChatMember(ctx context.Context, chatID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return chaterr.NotFound("chat not found")
	}
	for i, m := range chat.Members {
		if m.UserID == userID {
			chat.Members = append(chat.Members[:i], chat.Members[i+1:]...)
			s.chats[chatID] = chat
			return nil
		}
	}
	return chaterr.NotFound("member not found")
}

func (s *Store) GetChatMembers(ctx context.Context, chatID string) ([]domain.ChatMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, chaterr.NotFound("chat not found")
	}
	return chat.Members, nil
}

// Messages

func (s *Store) CreateMessage(ctx context.Context, message domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	message.ID = uuid.NewString()
	message.CreatedAt = now
	message.UpdatedAt = now
	if message.ReadBy == nil {
		message.ReadBy = map[string]time.Time{}
	}
	if message.DeliveredTo == nil {
		message.DeliveredTo = map[string]time.Time{}
	}
	s.messages[message.ID] = message
	return message, nil
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return domain.Message{}, chaterr.NotFound("message not found")
	}
	return msg, nil
}

func (s *Store) UpdateMessage(ctx context.Context, messageID string, patch domain.MessagePatch) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return domain.Message{}, chaterr.NotFound("message not found")
	}
	if patch.Content != nil {
		msg.Content = *patch.Content
	}
	if patch.IsDeleted != nil {
		msg.IsDeleted = *patch.IsDeleted
	}
	if patch.IsPinned != nil {
		msg.IsPinned = *patch.IsPinned
	}
	if patch.EditedAt != nil {
		msg.EditedAt = patch.EditedAt
	}
	for user, at := range patch.ReadBy {
		if msg.ReadBy == nil {
			msg.ReadBy = map[string]time.Time{}
		}
		msg.ReadBy[user] = at
	}
	for user, at := range patch.DeliveredTo {
		if msg.DeliveredTo == nil {
			msg.DeliveredTo = map[string]time.Time{}
		}
		msg.DeliveredTo[user] = at
	}
	msg.UpdatedAt = time.Now()
	s.messages[messageID] = msg
	return msg, nil
}

func (s *Store) DeleteMessage(ctx context.Context, messageID string, deleteForEveryone bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return chaterr.NotFound("message not found")
	}
	if deleteForEveryone {
		delete(s.messages, messageID)
		return nil
	}
	msg.IsDeleted = true
	msg.Content = ""
	msg.UpdatedAt = time.Now()
	s.messages[messageID] = msg
	return nil
}

func (s *Store) GetChatMessages(ctx context.Context, chatID, beforeID, afterID string, skip, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chatMessages []domain.Message
	for _, msg := range s.messages {
		if msg.ChatID == chatID {
			chatMessages = append(chatMessages, msg)
		}
	}

	if beforeID != "" {
		if before, ok := s.messages[beforeID]; ok {
			chatMessages = filterMessages(chatMessages, func(m domain.Message) bool {
				return cursorLess(m, before)
			})
		}
	}
	if afterID != "" {
		if after, ok := s.messages[afterID]; ok {
			chatMessages = filterMessages(chatMessages, func(m domain.Message) bool {
				return cursorLess(after, m)
			})
		}
	}

	sort.Slice(chatMessages, func(i, j int) bool {
		if chatMessages[i].CreatedAt.Equal(chatMessages[j].CreatedAt) {
			return chatMessages[i].ID > chatMessages[j].ID
		}
		return chatMessages[i].CreatedAt.After(chatMessages[j].CreatedAt)
	})

	return paginateMessages(chatMessages, skip, limit), nil
}

// cursorLess orders messages by created_at, breaking ties by id so
// pagination is stable even within the same timestamp.
func cursorLess(a, b domain.Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func filterMessages(in []domain.Message, keep func(domain.Message) bool) []domain.Message {
	out := in[:0:0]
	for _, m := range in {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func paginateMessages(in []domain.Message, skip, limit int) []domain.Message {
	if skip >= len(in) {
		return []domain.Message{}
	}
	end := skip + limit
	if limit <= 0 || end > len(in) {
		end = len(in)
	}
	return in[skip:end]
}

func paginateChats(in []domain.Chat, skip, limit int) []domain.Chat {
	if skip >= len(in) {
		return []domain.Chat{}
	}
	end := skip + limit
	if limit <= 0 || end > len(in) {
		end = len(in)
	}
	return in[skip:end]
}

func (s *Store) GetMessageCount(ctx context.Context, chatID string, since *time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, msg := range s.messages {
		if msg.ChatID != chatID {
			continue
		}
		if since != nil && !msg.CreatedAt.After(*since) {
			continue
		}
		count++
	}
	return count, nil
}

// Reactions

func (s *Store) AddReaction(ctx context.Context, messageID, userID, reactionType string) (domain.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return domain.Reaction{}, chaterr.NotFound("message not found")
	}
	for _, r := range msg.Reactions {
		if r.UserID == userID && r.ReactionType == reactionType {
			return r, nil
		}
	}
	reaction := domain.Reaction{
		ID:           uuid.NewString(),
		MessageID:    messageID,
		UserID:       userID,
		ReactionType: reactionType,
		CreatedAt:    time.Now(),
	}
	msg.Reactions = append(msg.Reactions, reaction)
	s.messages[messageID] = msg
	return reaction, nil
}

func (s *Store) RemoveReaction(ctx context.Context, messageID, userID, reactionType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return chaterr.NotFound("message not found")
	}
	for i, r := range msg.Reactions {
		if r.UserID == userID && r.ReactionType == reactionType {
			msg.Reactions = append(msg.Reactions[:i], msg.Reactions[i+1:]...)
			s.messages[messageID] = msg
			return nil
		}
	}
	return chaterr.NotFound("reaction not found")
}

// Search and stats

func (s *Store) SearchMessages(ctx context.Context, query, userID, chatID string, skip, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	var results []domain.Message
	for _, msg := range s.messages {
		if chatID != "" && msg.ChatID != chatID {
			continue
		}
		if !strings.Contains(strings.ToLower(msg.Content), needle) {
			continue
		}
		chat, ok := s.chats[msg.ChatID]
		if !ok || !chat.IsMember(userID) {
			continue
		}
		results = append(results, msg)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })
	return paginateMessages(results, skip, limit), nil
}

func (s *Store) GetChatStats(ctx context.Context, chatID string) (domain.ChatStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.ChatStats
	if chat, ok := s.chats[chatID]; ok {
		stats.MemberCount = len(chat.Members)
	}
	for _, msg := range s.messages {
		if msg.ChatID != chatID {
			continue
		}
		stats.MessageCount++
		stats.ReactionCount += len(msg.Reactions)
	}
	return stats, nil
}

func (s *Store) GetUserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.UserStats
	for _, msg := range s.messages {
		if msg.SenderID == userID {
			stats.MessageCount++
		}
		for _, r := range msg.Reactions {
			if r.UserID == userID {
				stats.ReactionCount++
			}
		}
	}
	for _, chat := range s.chats {
		if chat.IsMember(userID) {
			stats.ChatCount++
		}
	}
	return stats, nil
}
