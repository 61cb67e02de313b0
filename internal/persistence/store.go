// Package persistence defines the storage abstraction used by the
// orchestrator: a capability surface for users, chats, messages and
// reactions, implemented by the memory, postgres, and rediscache drivers.
package persistence

import (
	"context"
	"time"

	"github.com/chatcore/server/internal/domain"
)

// Store is the full persistence surface the orchestrator depends on. It is a
// capability interface, not a shared base type: drivers implement it
// directly rather than inheriting from one another.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	GetUser(ctx context.Context, userID string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	UpdateUser(ctx context.Context, userID string, patch domain.UserPatch) (domain.User, error)
	DeleteUser(ctx context.Context, userID string) error

	// Chats
	CreateChat(ctx context.Context, chat domain.Chat) (domain.Chat, error)
	GetChat(ctx context.Context, chatID string) (domain.Chat, error)
	UpdateChat(ctx context.Context, chatID string, patch domain.ChatPatch) (domain.Chat, error)
	DeleteChat(ctx context.Context, chatID string) error
	GetUserChats(ctx context.Context, userID string, skip, limit int) ([]domain.Chat, error)
	FindOneToOneChat(ctx context.Context, userA, userB string) (domain.Chat, error)

	AddChatMember(ctx context.Context, chatID, userID string, role domain.MemberRole) error
	RemoveChatMember(ctx context.Context, chatID, userID string) error
	GetChatMembers(ctx context.Context, chatID string) ([]domain.ChatMember, error)

	// Messages
	CreateMessage(ctx context.Context, message domain.Message) (domain.Message, error)
	GetMessage(ctx context.Context, messageID string) (domain.Message, error)
	UpdateMessage(ctx context.Context, messageID string, patch domain.MessagePatch) (domain.Message, error)
	DeleteMessage(ctx context.Context, messageID string, deleteForEveryone bool) error
	GetChatMessages(ctx context.Context, chatID, beforeID, afterID string, skip, limit int) ([]domain.Message, error)
	GetMessageCount(ctx context.Context, chatID string, since *time.Time) (int, error)

	// Reactions
	AddReaction(ctx context.Context, messageID, userID, reactionType string) (domain.Reaction, error)
	RemoveReaction(ctx context.Context, messageID, userID, reactionType string) error

	// Search and stats
	SearchMessages(ctx context.Context, query, userID, chatID string, skip, limit int) ([]domain.Message, error)
	GetChatStats(ctx context.Context, chatID string) (domain.ChatStats, error)
	GetUserStats(ctx context.Context, userID string) (domain.UserStats, error)

	Close() error
}
