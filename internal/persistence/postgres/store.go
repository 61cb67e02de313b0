// Package postgres is a pgx-backed Store implementation (database_type "sql").
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatcore/server/internal/chaterr"
	"github.com/chatcore/server/internal/domain"
)

const uniqueViolation = "23505"

// Store is a persistence.Store backed by a pgxpool connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL, verifies the connection, and ensures the
// schema exists.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, chaterr.Persistence("failed to create connection pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, chaterr.Persistence("failed to reach database", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, chaterr.Persistence("failed to apply schema", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return chaterr.NotFound(msg)
	}
	return chaterr.Storage(msg, err)
}

// Users

func (s *Store) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, email, full_name, hashed_password, status, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		user.Username, user.Email, user.FullName, user.HashedPassword, string(user.Status))

	if err := row.Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, chaterr.Conflict("username already registered")
		}
		return domain.User{}, chaterr.Storage("failed to create user", err)
	}
	return user, nil
}

func (s *Store) scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	var status string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.HashedPassword, &status, &u.CreatedAt, &u.UpdatedAt)
	u.Status = domain.UserStatus(status)
	return u, err
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, username, email, full_name, hashed_password, status, created_at, updated_at FROM users WHERE id = $1`, userID)
	user, err := s.scanUser(row)
	if err != nil {
		return domain.User{}, notFoundOr(err, "user not found")
	}
	return user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, username, email, full_name, hashed_password, status, created_at, updated_at FROM users WHERE lower(username) = lower($1)`, username)
	user, err := s.scanUser(row)
	if err != nil {
		return domain.User{}, notFoundOr(err, "user not found")
	}
	return user, nil
}

func (s *Store) UpdateUser(ctx context.Context, userID string, patch domain.UserPatch) (domain.User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users SET
			email     = COALESCE($2, email),
			full_name = COALESCE($3, full_name),
			status    = COALESCE($4, status),
			updated_at = NOW()
		WHERE id = $1
		RETURNING id, username, email, full_name, hashed_password, status, created_at, updated_at`,
		userID, patch.Email, patch.FullName, statusPtr(patch.Status))
	user, err := s.scanUser(row)
	if err != nil {
		return domain.User{}, notFoundOr(err, "user not found")
	}
	return user, nil
}

func statusPtr(s *domain.UserStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return chaterr.Storage("failed to delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return chaterr.NotFound("user not found")
	}
	return nil
}

// Chats

func (s *Store) CreateChat(ctx context.Context, chat domain.Chat) (domain.Chat, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Chat{}, chaterr.Storage("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO chats (id, chat_type, name, description, is_encrypted, created_by, pinned_message_ids, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, '{}', NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		string(chat.ChatType), chat.Name, chat.Description, chat.IsEncrypted, chat.CreatedBy)
	if err := row.Scan(&chat.ID, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
		return domain.Chat{}, chaterr.Storage("failed to create chat", err)
	}

	for _, m := range chat.Members {
		if _, err := tx.Exec(ctx, `INSERT INTO chat_members (chat_id, user_id, role, joined_at) VALUES ($1, $2, $3, NOW())`,
			chat.ID, m.UserID, string(m.Role)); err != nil {
			return domain.Chat{}, chaterr.Storage("failed to add chat member", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Chat{}, chaterr.Storage("failed to commit chat creation", err)
	}
	chat.PinnedMessageIDs = []string{}
	return chat, nil
}

func (s *Store) loadChatMembers(ctx context.Context, chatID string) ([]domain.ChatMember, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, role, joined_at, COALESCE(last_read_message_id::text, '') FROM chat_members WHERE chat_id = $1`, chatID)
	if err != nil {
		return nil, chaterr.Storage("failed to load chat members", err)
	}
	defer rows.Close()

	var members []domain.ChatMember
	for rows.Next() {
		var m domain.ChatMember
		var role string
		if err := rows.Scan(&m.UserID, &role, &m.JoinedAt, &m.LastReadMessageID); err != nil {
			return nil, chaterr.Storage("failed to scan chat member", err)
		}
		m.Role = domain.MemberRole(role)
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) scanChat(row pgx.Row) (domain.Chat, error) {
	var c domain.Chat
	var chatType string
	if err := row.Scan(&c.ID, &chatType, &c.Name, &c.Description, &c.IsEncrypted, &c.CreatedBy, &c.PinnedMessageIDs, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Chat{}, err
	}
	c.ChatType = domain.ChatType(chatType)
	return c, nil
}

func (s *Store) GetChat(ctx context.Context, chatID string) (domain.Chat, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, chat_type, name, description, is_encrypted, created_by, pinned_message_ids, created_at, updated_at FROM chats WHERE id = $1`, chatID)
	chat, err := s.scanChat(row)
	if err != nil {
		return domain.Chat{}, notFoundOr(err, "chat not found")
	}
	members, err := s.loadChatMembers(ctx, chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	chat.Members = members
	return chat, nil
}

func (s *Store) UpdateChat(ctx context.Context, chatID string, patch domain.ChatPatch) (domain.Chat, error) {
	var pinned interface{}
	if patch.PinnedMessageIDs != nil {
		pinned = *patch.PinnedMessageIDs
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE chats SET
			name               = COALESCE($2, name),
			description        = COALESCE($3, description),
			pinned_message_ids = COALESCE($4, pinned_message_ids),
			updated_at         = NOW()
		WHERE id = $1
		RETURNING id, chat_type, name, description, is_encrypted, created_by, pinned_message_ids, created_at, updated_at`,
		chatID, patch.Name, patch.Description, pinned)
	chat, err := s.scanChat(row)
	if err != nil {
		return domain.Chat{}, notFoundOr(err, "chat not found")
	}
	members, err := s.loadChatMembers(ctx, chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	chat.Members = members
	return chat, nil
}

func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, chatID)
	if err != nil {
		return chaterr.Storage("failed to delete chat", err)
	}
	if tag.RowsAffected() == 0 {
		return chaterr.NotFound("chat not found")
	}
	return nil
}

func (s *Store) GetUserChats(ctx context.Context, userID string, skip, limit int) ([]domain.Chat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.chat_type, c.name, c.description, c.is_encrypted, c.created_by, c.pinned_message_ids, c.created_at, c.updated_at
		FROM chats c
		JOIN chat_members m ON m.chat_id = c.id
		LEFT JOIN LATERAL (
			SELECT MAX(created_at) AS last_message_at FROM messages WHERE messages.chat_id = c.id
		) lm ON true
		WHERE m.user_id = $1
		ORDER BY COALESCE(lm.last_message_at, c.updated_at) DESC
		OFFSET $2 LIMIT $3`, userID, skip, limitOrAll(limit))
	if err != nil {
		return nil, chaterr.Storage("failed to list user chats", err)
	}
	defer rows.Close()

	var chats []domain.Chat
	for rows.Next() {
		chat, err := s.scanChat(rows)
		if err != nil {
			return nil, chaterr.Storage("failed to scan chat", err)
		}
		chats = append(chats, chat)
	}
	for i, chat := range chats {
		members, err := s.loadChatMembers(ctx, chat.ID)
		if err != nil {
			return nil, err
		}
		chats[i].Members = members
	}
	return chats, rows.Err()
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return 1 << 30
	}
	return limit
}

func (s *Store) FindOneToOneChat(ctx context.Context, userA, userB string) (domain.Chat, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT c.id, c.chat_type, c.name, c.description, c.is_encrypted, c.created_by, c.pinned_message_ids, c.created_at, c.updated_at
		FROM chats c
		WHERE c.chat_type = 'one_to_one'
		  AND EXISTS (SELECT 1 FROM chat_members m WHERE m.chat_id = c.id AND m.user_id = $1)
		  AND EXISTS (SELECT 1 FROM chat_members m WHERE m.chat_id = c.id AND m.user_id = $2)
		  AND (SELECT COUNT(*) FROM chat_members m WHERE m.chat_id = c.id) = 2`,
		userA, userB)
	chat, err := s.scanChat(row)
	if err != nil {
		return domain.Chat{}, notFoundOr(err, "one-to-one chat not found")
	}
	return chat, nil
}

func (s *Store) AddChatMember(ctx context.Context, chatID, userID string, role domain.MemberRole) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_members (chat_id, user_id, role, joined_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (chat_id, user_id) DO NOTHING`,
		chatID, userID, string(role))
	if err != nil {
		return chaterr.Storage("failed to add chat member", err)
	}
	return nil
}

func (s *Store) RemoveChatMember(ctx context.Context, chatID, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_members WHERE chat_id = $1 AND user_id = $2`, chatID, userID)
	if err != nil {
		return chaterr.Storage("failed to remove chat member", err)
	}
	if tag.RowsAffected() == 0 {
		return chaterr.NotFound("member not found")
	}
	return nil
}

func (s *Store) GetChatMembers(ctx context.Context, chatID string) ([]domain.ChatMember, error) {
	return s.loadChatMembers(ctx, chatID)
}

// Messages

func (s *Store) scanMessage(row pgx.Row) (domain.Message, error) {
	var m domain.Message
	var msgType string
	var replyTo *string
	if err := row.Scan(&m.ID, &m.ChatID, &m.SenderID, &msgType, &m.Content, &replyTo,
		&m.Mentions, &m.IsDeleted, &m.IsPinned, &m.CreatedAt, &m.EditedAt, &m.UpdatedAt); err != nil {
		return domain.Message{}, err
	}
	m.MessageType = domain.MessageType(msgType)
	if replyTo != nil {
		m.ReplyToID = *replyTo
	}
	return m, nil
}

const messageColumns = `id, chat_id, sender_id, message_type, content, reply_to_id, mentions, is_deleted, is_pinned, created_at, edited_at, updated_at`

func (s *Store) CreateMessage(ctx context.Context, message domain.Message) (domain.Message, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, message_type, content, reply_to_id, mentions, is_deleted, is_pinned, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, NULLIF($5, ''), $6, FALSE, FALSE, NOW(), NOW())
		RETURNING `+messageColumns,
		message.ChatID, message.SenderID, string(message.MessageType), message.Content, message.ReplyToID, message.Mentions)
	msg, err := s.scanMessage(row)
	if err != nil {
		return domain.Message{}, chaterr.Storage("failed to create message", err)
	}
	msg.ReadBy = map[string]time.Time{}
	msg.DeliveredTo = map[string]time.Time{}
	return msg, nil
}

func (s *Store) loadReactions(ctx context.Context, messageID string) ([]domain.Reaction, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, message_id, user_id, reaction_type, created_at FROM reactions WHERE message_id = $1`, messageID)
	if err != nil {
		return nil, chaterr.Storage("failed to load reactions", err)
	}
	defer rows.Close()

	var reactions []domain.Reaction
	for rows.Next() {
		var r domain.Reaction
		if err := rows.Scan(&r.ID, &r.MessageID, &r.UserID, &r.ReactionType, &r.CreatedAt); err != nil {
			return nil, chaterr.Storage("failed to scan reaction", err)
		}
		reactions = append(reactions, r)
	}
	return reactions, rows.Err()
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (domain.Message, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, messageID)
	msg, err := s.scanMessage(row)
	if err != nil {
		return domain.Message{}, notFoundOr(err, "message not found")
	}
	reactions, err := s.loadReactions(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	msg.Reactions = reactions
	return msg, nil
}

func (s *Store) UpdateMessage(ctx context.Context, messageID string, patch domain.MessagePatch) (domain.Message, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE messages SET
			content    = COALESCE($2, content),
			is_deleted = COALESCE($3, is_deleted),
			is_pinned  = COALESCE($4, is_pinned),
			edited_at  = COALESCE($5, edited_at),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+messageColumns,
		messageID, patch.Content, patch.IsDeleted, patch.IsPinned, patch.EditedAt)
	msg, err := s.scanMessage(row)
	if err != nil {
		return domain.Message{}, notFoundOr(err, "message not found")
	}
	reactions, err := s.loadReactions(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	msg.Reactions = reactions
	return msg, nil
}

func (s *Store) DeleteMessage(ctx context.Context, messageID string, deleteForEveryone bool) error {
	if deleteForEveryone {
		tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
		if err != nil {
			return chaterr.Storage("failed to delete message", err)
		}
		if tag.RowsAffected() == 0 {
			return chaterr.NotFound("message not found")
		}
		return nil
	}
	tag, err := s.pool.Exec(ctx, `UPDATE messages SET is_deleted = TRUE, content = '', updated_at = NOW() WHERE id = $1`, messageID)
	if err != nil {
		return chaterr.Storage("failed to soft-delete message", err)
	}
	if tag.RowsAffected() == 0 {
		return chaterr.NotFound("message not found")
	}
	return nil
}

func (s *Store) GetChatMessages(ctx context.Context, chatID, beforeID, afterID string, skip, limit int) ([]domain.Message, error) {
	var conditions []string
	args := []interface{}{chatID}
	conditions = append(conditions, "chat_id = $1")

	if beforeID != "" {
		args = append(args, beforeID)
		conditions = append(conditions, fmt.Sprintf("(created_at, id) < (SELECT created_at, id FROM messages WHERE id = $%d)", len(args)))
	}
	if afterID != "" {
		args = append(args, afterID)
		conditions = append(conditions, fmt.Sprintf("(created_at, id) > (SELECT created_at, id FROM messages WHERE id = $%d)", len(args)))
	}
	args = append(args, skip, limitOrAll(limit))

	query := fmt.Sprintf(`SELECT %s FROM messages WHERE %s ORDER BY created_at DESC, id DESC OFFSET $%d LIMIT $%d`,
		messageColumns, strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, chaterr.Storage("failed to list chat messages", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := s.scanMessage(rows)
		if err != nil {
			return nil, chaterr.Storage("failed to scan message", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *Store) GetMessageCount(ctx context.Context, chatID string, since *time.Time) (int, error) {
	var count int
	var err error
	if since != nil {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE chat_id = $1 AND created_at > $2`, chatID, *since).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE chat_id = $1`, chatID).Scan(&count)
	}
	if err != nil {
		return 0, chaterr.Storage("failed to count messages", err)
	}
	return count, nil
}

// Reactions

func (s *Store) AddReaction(ctx context.Context, messageID, userID, reactionType string) (domain.Reaction, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO reactions (id, message_id, user_id, reaction_type, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, NOW())
		ON CONFLICT (message_id, user_id, reaction_type) DO UPDATE SET reaction_type = EXCLUDED.reaction_type
		RETURNING id, message_id, user_id, reaction_type, created_at`,
		messageID, userID, reactionType)

	var r domain.Reaction
	if err := row.Scan(&r.ID, &r.MessageID, &r.UserID, &r.ReactionType, &r.CreatedAt); err != nil {
		return domain.Reaction{}, chaterr.Storage("failed to add reaction", err)
	}
	return r, nil
}

func (s *Store) RemoveReaction(ctx context.Context, messageID, userID, reactionType string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reactions WHERE message_id = $1 AND user_id = $2 AND reaction_type = $3`,
		messageID, userID, reactionType)
	if err != nil {
		return chaterr.Storage("failed to remove reaction", err)
	}
	if tag.RowsAffected() == 0 {
		return chaterr.NotFound("reaction not found")
	}
	return nil
}

// Search and stats

func (s *Store) SearchMessages(ctx context.Context, query, userID, chatID string, skip, limit int) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.content ILIKE '%' || $1 || '%'
		  AND ($2 = '' OR m.chat_id = $2)
		  AND EXISTS (SELECT 1 FROM chat_members cm WHERE cm.chat_id = m.chat_id AND cm.user_id = $3)
		ORDER BY m.created_at DESC
		OFFSET $4 LIMIT $5`, query, chatID, userID, skip, limitOrAll(limit))
	if err != nil {
		return nil, chaterr.Storage("failed to search messages", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := s.scanMessage(rows)
		if err != nil {
			return nil, chaterr.Storage("failed to scan message", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *Store) GetChatStats(ctx context.Context, chatID string) (domain.ChatStats, error) {
	var stats domain.ChatStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM messages WHERE chat_id = $1),
			(SELECT COUNT(*) FROM chat_members WHERE chat_id = $1),
			(SELECT COUNT(*) FROM reactions r JOIN messages m ON m.id = r.message_id WHERE m.chat_id = $1)`,
		chatID).Scan(&stats.MessageCount, &stats.MemberCount, &stats.ReactionCount)
	if err != nil {
		return domain.ChatStats{}, chaterr.Storage("failed to compute chat stats", err)
	}
	return stats, nil
}

func (s *Store) GetUserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	var stats domain.UserStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM messages WHERE sender_id = $1),
			(SELECT COUNT(*) FROM chat_members WHERE user_id = $1),
			(SELECT COUNT(*) FROM reactions WHERE user_id = $1)`,
		userID).Scan(&stats.MessageCount, &stats.ChatCount, &stats.ReactionCount)
	if err != nil {
		return domain.UserStats{}, chaterr.Storage("failed to compute user stats", err)
	}
	return stats, nil
}
