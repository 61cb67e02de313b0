// Package orchestrator is the domain orchestrator: the only component that
// mutates chat state. Every exported method authorizes the caller, enforces
// the domain invariants in internal/domain, persists through a
// persistence.Store, and fans out the resulting event through a hub.Hub.
package orchestrator

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/chatcore/server/internal/blobstore"
	"github.com/chatcore/server/internal/chaterr"
	"github.com/chatcore/server/internal/domain"
	"github.com/chatcore/server/internal/hub"
	"github.com/chatcore/server/internal/persistence"
	"github.com/chatcore/server/internal/security"
)

// Orchestrator wires persistence, security and fan-out together behind the
// operations the transport layer calls.
type Orchestrator struct {
	store    persistence.Store
	security *security.Service
	hub      *hub.Hub
	blobs    blobstore.Store
}

// New constructs an Orchestrator. blobs backs file/image message uploads; it
// may be nil if attachment routes are not mounted.
func New(store persistence.Store, sec *security.Service, h *hub.Hub, blobs blobstore.Store) *Orchestrator {
	return &Orchestrator{store: store, security: sec, hub: h, blobs: blobs}
}

// RegisterUser creates a new account with a bcrypt-hashed password.
func (o *Orchestrator) RegisterUser(ctx context.Context, username, email, fullName, password string) (domain.User, error) {
	if username == "" || password == "" {
		return domain.User{}, chaterr.Validation("username and password are required")
	}
	hashed, err := o.security.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	return o.store.CreateUser(ctx, domain.User{
		Username:       username,
		Email:          email,
		FullName:       fullName,
		HashedPassword: hashed,
		Status:         domain.StatusOffline,
	})
}

// AuthenticateUser verifies credentials and returns a bearer token.
func (o *Orchestrator) AuthenticateUser(ctx context.Context, username, password string) (string, domain.User, error) {
	user, err := o.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", domain.User{}, chaterr.Auth("invalid username or password")
	}
	if !o.security.VerifyPassword(password, user.HashedPassword) {
		return "", domain.User{}, chaterr.Auth("invalid username or password")
	}
	token, err := o.security.CreateToken(user.ID, 0)
	if err != nil {
		return "", domain.User{}, err
	}
	return token, user, nil
}

// GetUser returns a user by id.
func (o *Orchestrator) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return o.store.GetUser(ctx, userID)
}

// UpdateUser partially updates the caller's own profile.
func (o *Orchestrator) UpdateUser(ctx context.Context, callerID, targetID string, patch domain.UserPatch) (domain.User, error) {
	if callerID != targetID {
		return domain.User{}, chaterr.Authz("cannot update another user's profile")
	}
	return o.store.UpdateUser(ctx, targetID, patch)
}

// UpdateUserStatus sets the caller's presence status and fans out
// user_online/user_offline as appropriate.
func (o *Orchestrator) UpdateUserStatus(ctx context.Context, userID string, status domain.UserStatus) (domain.User, error) {
	if !status.Valid() {
		return domain.User{}, chaterr.Validation("invalid status")
	}
	user, err := o.store.UpdateUser(ctx, userID, domain.UserPatch{Status: &status})
	if err != nil {
		return domain.User{}, err
	}
	switch status {
	case domain.StatusOnline:
		o.NotifyPresence(ctx, userID, true)
	case domain.StatusOffline:
		o.NotifyPresence(ctx, userID, false)
	}
	return user, nil
}

// CreateChat creates a chat with the caller as the sole owner and the given
// additional members. For one_to_one chats it enforces the single existing
// chat per unordered pair invariant.
func (o *Orchestrator) CreateChat(ctx context.Context, creatorID string, chatType domain.ChatType, name, description string, isEncrypted bool, memberIDs []string) (domain.Chat, error) {
	members := []domain.ChatMember{{UserID: creatorID, Role: domain.RoleOwner, JoinedAt: time.Now()}}
	seen := map[string]bool{creatorID: true}
	for _, id := range memberIDs {
		if id == creatorID || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, domain.ChatMember{UserID: id, Role: domain.RoleMember, JoinedAt: time.Now()})
	}

	if chatType == domain.ChatOneToOne {
		if len(members) != 2 {
			return domain.Chat{}, chaterr.Validation("one_to_one chat requires exactly two members")
		}
		if _, err := o.store.FindOneToOneChat(ctx, members[0].UserID, members[1].UserID); err == nil {
			return domain.Chat{}, chaterr.Conflict("one-to-one chat already exists for this pair")
		}
	}

	return o.store.CreateChat(ctx, domain.Chat{
		ChatType:    chatType,
		Name:        name,
		Description: description,
		IsEncrypted: isEncrypted,
		CreatedBy:   creatorID,
		Members:     members,
	})
}

// GetChat returns a chat if the caller is a member.
func (o *Orchestrator) GetChat(ctx context.Context, chatID, callerID string) (domain.Chat, error) {
	chat, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	if !chat.IsMember(callerID) {
		return domain.Chat{}, chaterr.Authz("not a member of this chat")
	}
	return chat, nil
}

// GetUserChats lists the caller's chats.
func (o *Orchestrator) GetUserChats(ctx context.Context, userID string, skip, limit int) ([]domain.Chat, error) {
	return o.store.GetUserChats(ctx, userID, skip, limit)
}

func (o *Orchestrator) requireModerator(chat domain.Chat, callerID string) error {
	member, ok := chat.Member(callerID)
	if !ok || !member.IsModerator() {
		return chaterr.Authz("requires chat owner or admin")
	}
	return nil
}

// UpdateChat updates name/description; only owner/admin may call it.
func (o *Orchestrator) UpdateChat(ctx context.Context, chatID, callerID string, patch domain.ChatPatch) (domain.Chat, error) {
	chat, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	if err := o.requireModerator(chat, callerID); err != nil {
		return domain.Chat{}, err
	}
	return o.store.UpdateChat(ctx, chatID, patch)
}

// DeleteChat removes a chat; only the owner may call it.
func (o *Orchestrator) DeleteChat(ctx context.Context, chatID, callerID string) error {
	chat, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	member, ok := chat.Member(callerID)
	if !ok || member.Role != domain.RoleOwner {
		return chaterr.Authz("requires chat owner")
	}
	return o.store.DeleteChat(ctx, chatID)
}

// AddChatMember adds userID to chatID. Rejected for one_to_one chats.
func (o *Orchestrator) AddChatMember(ctx context.Context, chatID, callerID, userID string, role domain.MemberRole) error {
	chat, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if err := o.requireModerator(chat, callerID); err != nil {
		return err
	}
	if chat.ChatType == domain.ChatOneToOne {
		return chaterr.Authz("cannot add members to a one-to-one chat")
	}
	return o.store.AddChatMember(ctx, chatID, userID, role)
}

// RemoveChatMember removes userID from chatID. Permitted for owner/admin, or
// for the target removing themselves. Rejects removing the last
// owner/admin.
func (o *Orchestrator) RemoveChatMember(ctx context.Context, chatID, callerID, userID string) error {
	chat, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	caller, ok := chat.Member(callerID)
	if !ok {
		return chaterr.Authz("not a member of this chat")
	}
	if callerID != userID && !caller.IsModerator() {
		return chaterr.Authz("requires chat owner or admin")
	}

	target, ok := chat.Member(userID)
	if !ok {
		return chaterr.NotFound("member not found")
	}
	if target.IsModerator() {
		remaining := 0
		for _, m := range chat.Members {
			if m.IsModerator() && m.UserID != userID {
				remaining++
			}
		}
		if remaining == 0 {
			return chaterr.Conflict("cannot remove the last owner or admin")
		}
	}

	return o.store.RemoveChatMember(ctx, chatID, userID)
}

// SendMessage persists a message (encrypting content first if the chat is
// encrypted) and fans it out to the chat room plus an inbox ping to every
// other member not currently joined.
func (o *Orchestrator) SendMessage(ctx context.Context, senderID, chatID string, msgType domain.MessageType, content string, attachments []domain.Attachment, replyToID string, mentions []string) (domain.Message, error) {
	chat, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		return domain.Message{}, err
	}
	if !chat.IsMember(senderID) {
		return domain.Message{}, chaterr.Authz("not a member of this chat")
	}

	if chat.IsEncrypted {
		encrypted, err := o.security.Encrypt(content)
		if err != nil {
			return domain.Message{}, err
		}
		content = encrypted
	}

	message, err := o.store.CreateMessage(ctx, domain.Message{
		ChatID:      chatID,
		SenderID:    senderID,
		MessageType: msgType,
		Content:     content,
		Attachments: attachments,
		ReplyToID:   replyToID,
		Mentions:    mentions,
	})
	if err != nil {
		return domain.Message{}, err
	}

	o.hub.BroadcastToChat(chatID, hub.NewMessage(chatID, message), "")
	for _, m := range chat.Members {
		if m.UserID != senderID {
			o.hub.SendToUser(m.UserID, hub.NewMessage(chatID, message))
		}
	}
	return message, nil
}

// EditMessage updates a message's content; only the sender may call it.
func (o *Orchestrator) EditMessage(ctx context.Context, messageID, callerID, content string) (domain.Message, error) {
	message, err := o.store.GetMessage(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if message.SenderID != callerID {
		return domain.Message{}, chaterr.Authz("only the sender may edit this message")
	}

	now := time.Now()
	updated, err := o.store.UpdateMessage(ctx, messageID, domain.MessagePatch{Content: &content, EditedAt: &now})
	if err != nil {
		return domain.Message{}, err
	}
	o.hub.BroadcastToChat(updated.ChatID, hub.MessageUpdated(updated.ChatID, updated), "")
	return updated, nil
}

// DeleteMessage removes a message. The sender may always delete their own
// message (soft, or hard with deleteForEveryone); a chat owner/admin may
// delete anyone's message.
func (o *Orchestrator) DeleteMessage(ctx context.Context, messageID, callerID string, deleteForEveryone bool) error {
	message, err := o.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	if message.SenderID != callerID {
		chat, err := o.store.GetChat(ctx, message.ChatID)
		if err != nil {
			return err
		}
		caller, ok := chat.Member(callerID)
		if !ok || !caller.IsModerator() {
			return chaterr.Authz("requires message sender, chat owner, or admin")
		}
	}

	if err := o.store.DeleteMessage(ctx, messageID, deleteForEveryone); err != nil {
		return err
	}
	o.hub.BroadcastToChat(message.ChatID, hub.MessageDeleted(message.ChatID, messageID), "")
	return nil
}

// GetChatMessages returns a page of chat history for a member.
func (o *Orchestrator) GetChatMessages(ctx context.Context, chatID, callerID, beforeID, afterID string, skip, limit int) ([]domain.Message, error) {
	chat, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsMember(callerID) {
		return nil, chaterr.Authz("not a member of this chat")
	}
	return o.store.GetChatMessages(ctx, chatID, beforeID, afterID, skip, limit)
}

// AddReaction is idempotent: adding the same (message, user, type) twice
// returns the existing reaction without a second fan-out event.
func (o *Orchestrator) AddReaction(ctx context.Context, messageID, userID, reactionType string) (domain.Reaction, error) {
	message, err := o.store.GetMessage(ctx, messageID)
	if err != nil {
		return domain.Reaction{}, err
	}
	chat, err := o.store.GetChat(ctx, message.ChatID)
	if err != nil {
		return domain.Reaction{}, err
	}
	if !chat.IsMember(userID) {
		return domain.Reaction{}, chaterr.Authz("not a member of this chat")
	}

	before := len(message.Reactions)
	reaction, err := o.store.AddReaction(ctx, messageID, userID, reactionType)
	if err != nil {
		return domain.Reaction{}, err
	}

	message, err = o.store.GetMessage(ctx, messageID)
	if err == nil && len(message.Reactions) > before {
		o.hub.BroadcastToChat(chat.ID, hub.ReactionAdded(chat.ID, messageID, reaction), "")
	}
	return reaction, nil
}

// RemoveReaction removes a reaction and fans out reaction_removed.
func (o *Orchestrator) RemoveReaction(ctx context.Context, messageID, userID, reactionType string) error {
	message, err := o.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := o.store.RemoveReaction(ctx, messageID, userID, reactionType); err != nil {
		return err
	}
	o.hub.BroadcastToChat(message.ChatID, hub.ReactionRemoved(message.ChatID, messageID, userID, reactionType), "")
	return nil
}

// PinMessage marks a message pinned and records it on the chat; only
// owner/admin may pin.
func (o *Orchestrator) PinMessage(ctx context.Context, messageID, callerID string) (domain.Message, error) {
	return o.setPinned(ctx, messageID, callerID, true)
}

// UnpinMessage reverses PinMessage.
func (o *Orchestrator) UnpinMessage(ctx context.Context, messageID, callerID string) (domain.Message, error) {
	return o.setPinned(ctx, messageID, callerID, false)
}

func (o *Orchestrator) setPinned(ctx context.Context, messageID, callerID string, pinned bool) (domain.Message, error) {
	message, err := o.store.GetMessage(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	chat, err := o.store.GetChat(ctx, message.ChatID)
	if err != nil {
		return domain.Message{}, err
	}
	if err := o.requireModerator(chat, callerID); err != nil {
		return domain.Message{}, err
	}

	updated, err := o.store.UpdateMessage(ctx, messageID, domain.MessagePatch{IsPinned: &pinned})
	if err != nil {
		return domain.Message{}, err
	}

	pinnedIDs := setPinnedID(chat.PinnedMessageIDs, messageID, pinned)
	if _, err := o.store.UpdateChat(ctx, chat.ID, domain.ChatPatch{PinnedMessageIDs: &pinnedIDs}); err != nil {
		// roll back the message flip so the two stay consistent
		notPinned := !pinned
		o.store.UpdateMessage(ctx, messageID, domain.MessagePatch{IsPinned: &notPinned})
		return domain.Message{}, err
	}

	return updated, nil
}

func setPinnedID(ids []string, messageID string, pinned bool) []string {
	out := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		if id != messageID {
			out = append(out, id)
		}
	}
	if pinned {
		out = append(out, messageID)
	}
	return out
}

// GetPinnedMessages returns the chat's pinned, non-deleted messages for a
// member, newest first.
func (o *Orchestrator) GetPinnedMessages(ctx context.Context, chatID, callerID string) ([]domain.Message, error) {
	chat, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsMember(callerID) {
		return nil, chaterr.Authz("not a member of this chat")
	}
	messages := make([]domain.Message, 0, len(chat.PinnedMessageIDs))
	for _, id := range chat.PinnedMessageIDs {
		msg, err := o.store.GetMessage(ctx, id)
		if err != nil || msg.IsDeleted {
			continue
		}
		messages = append(messages, msg)
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].CreatedAt.After(messages[j].CreatedAt) })
	return messages, nil
}

// MarkMessageRead is a convenience wrapper for marking a single message read
// without the caller needing to know its chat id up front.
func (o *Orchestrator) MarkMessageRead(ctx context.Context, messageID, userID string) error {
	message, err := o.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	return o.MarkMessagesRead(ctx, message.ChatID, userID, []string{messageID}, "")
}

// MarkMessagesRead marks messageIDs (or every unread message up to
// readUntilID) as read by userID and emits a single read_receipt event. The
// member's stored last_read_message_id is not updated.
func (o *Orchestrator) MarkMessagesRead(ctx context.Context, chatID, userID string, messageIDs []string, readUntilID string) error {
	chat, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.IsMember(userID) {
		return chaterr.Authz("not a member of this chat")
	}

	targets := messageIDs
	if readUntilID != "" {
		until, err := o.store.GetMessage(ctx, readUntilID)
		if err != nil {
			return err
		}
		all, err := o.store.GetChatMessages(ctx, chatID, "", "", 0, 0)
		if err != nil {
			return err
		}
		targets = nil
		for _, m := range all {
			if !m.CreatedAt.After(until.CreatedAt) {
				if _, alreadyRead := m.ReadBy[userID]; !alreadyRead {
					targets = append(targets, m.ID)
				}
			}
		}
	}

	now := time.Now()
	var highest domain.Message
	for _, id := range targets {
		msg, err := o.store.GetMessage(ctx, id)
		if err != nil {
			continue
		}
		if existing, ok := msg.ReadBy[userID]; ok && existing.After(now) {
			continue
		}
		if _, err := o.store.UpdateMessage(ctx, id, domain.MessagePatch{ReadBy: map[string]time.Time{userID: now}}); err != nil {
			continue
		}
		if msg.CreatedAt.After(highest.CreatedAt) {
			highest = msg
		}
	}

	if highest.ID != "" {
		member, _ := chat.Member(userID)
		member.LastReadMessageID = highest.ID
		_ = member // set on a local copy only; persistence.Store has no operation that writes last_read_message_id
	}

	if len(targets) > 0 {
		o.hub.BroadcastToChat(chatID, hub.ReadReceipt(chatID, userID, targets), "")
	}
	return nil
}

// TypingIndicator is a pure fan-out operation: it never touches persistence
// and never reaches the originating user's own sessions.
func (o *Orchestrator) TypingIndicator(chatID, userID string, isTyping bool) {
	o.hub.BroadcastToChatExcludingUser(chatID, hub.Typing(chatID, userID, isTyping), userID)
}

// SearchMessages searches content within chats the caller belongs to.
func (o *Orchestrator) SearchMessages(ctx context.Context, query, userID, chatID string, skip, limit int) ([]domain.Message, error) {
	if query == "" {
		return nil, chaterr.Validation("query is required")
	}
	return o.store.SearchMessages(ctx, query, userID, chatID, skip, limit)
}

// GetChatStats returns aggregate counters for a chat the caller belongs to.
func (o *Orchestrator) GetChatStats(ctx context.Context, chatID, callerID string) (domain.ChatStats, error) {
	chat, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		return domain.ChatStats{}, err
	}
	if !chat.IsMember(callerID) {
		return domain.ChatStats{}, chaterr.Authz("not a member of this chat")
	}
	return o.store.GetChatStats(ctx, chatID)
}

// GetUserStats returns aggregate counters for the caller.
func (o *Orchestrator) GetUserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	return o.store.GetUserStats(ctx, userID)
}

// NotifyPresence fans out a user_online or user_offline frame to every chat
// the user belongs to. The WebSocket transport calls this on the first
// connected session and on the last disconnected session for a user.
func (o *Orchestrator) NotifyPresence(ctx context.Context, userID string, online bool) {
	chats, err := o.store.GetUserChats(ctx, userID, 0, 0)
	if err != nil {
		return
	}
	frame := hub.UserOffline(userID)
	if online {
		frame = hub.UserOnline(userID)
	}
	for _, chat := range chats {
		o.hub.BroadcastToChat(chat.ID, frame, "")
	}
}

// JoinChatRoom verifies userID is a member of chatID before letting the
// caller's session join the hub's broadcast room for it, so a session
// cannot listen in on a chat's events without first satisfying the same
// membership check the REST endpoints enforce.
func (o *Orchestrator) JoinChatRoom(ctx context.Context, chatID, userID, sessionID string) error {
	chat, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.IsMember(userID) {
		return chaterr.Authz("not a member of this chat")
	}
	o.hub.JoinChat(sessionID, chatID)
	return nil
}

// attachmentMessageType maps an uploaded file's content type to the message
// type it should be sent as.
func attachmentMessageType(contentType string) domain.MessageType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return domain.MessageImage
	case strings.HasPrefix(contentType, "video/"):
		return domain.MessageVideo
	case strings.HasPrefix(contentType, "audio/"):
		return domain.MessageAudio
	default:
		return domain.MessageFile
	}
}

// UploadFile saves fileData through the blobstore collaborator and returns
// the opaque location a subsequent SendFileMessage call references. The
// caller must be a member of chatID.
func (o *Orchestrator) UploadFile(ctx context.Context, chatID, userID, fileName, contentType string, fileData []byte) (string, error) {
	if o.blobs == nil {
		return "", chaterr.Storage("file uploads are not configured", nil)
	}
	chat, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		return "", err
	}
	if !chat.IsMember(userID) {
		return "", chaterr.Authz("not a member of this chat")
	}
	return o.blobs.Save(ctx, fileName, contentType, fileData)
}

// SendFileMessage creates a message whose sole attachment references a
// location previously returned by UploadFile. The message type is inferred
// from contentType (image/video/audio/file).
func (o *Orchestrator) SendFileMessage(ctx context.Context, senderID, chatID, location, fileName, contentType, caption string, size int64) (domain.Message, error) {
	attachment := domain.Attachment{
		Location:    location,
		FileName:    fileName,
		ContentType: contentType,
		Size:        size,
	}
	return o.SendMessage(ctx, senderID, chatID, attachmentMessageType(contentType), caption, []domain.Attachment{attachment}, "", nil)
}

// TypingIndicatorREST is the POST /chats/{id}/typing fallback for callers
// without a live WebSocket session. It authorizes membership first, unlike
// the WS frame path which is trusted to have already joined the chat room.
func (o *Orchestrator) TypingIndicatorREST(ctx context.Context, chatID, userID string, isTyping bool) error {
	chat, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.IsMember(userID) {
		return chaterr.Authz("not a member of this chat")
	}
	o.TypingIndicator(chatID, userID, isTyping)
	return nil
}
