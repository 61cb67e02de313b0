package domain

import "time"

// MessageType is the payload kind carried by a message.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageVideo  MessageType = "video"
	MessageAudio  MessageType = "audio"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// Attachment describes a blob referenced by a message, resolved through the
// blobstore collaborator interface rather than embedded.
type Attachment struct {
	Location    string `json:"location"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// Message is a single chat message, soft-deletable and editable in place.
type Message struct {
	ID          string                 `json:"id"`
	ChatID      string                 `json:"chat_id"`
	SenderID    string                 `json:"sender_id"`
	MessageType MessageType            `json:"message_type"`
	Content     string                 `json:"content"`
	Attachments []Attachment           `json:"attachments,omitempty"`
	ReplyToID   string                 `json:"reply_to_id,omitempty"`
	Reactions   []Reaction             `json:"reactions,omitempty"`
	Mentions    []string               `json:"mentions,omitempty"`
	IsDeleted   bool                   `json:"is_deleted"`
	IsPinned    bool                   `json:"is_pinned"`
	ReadBy      map[string]time.Time   `json:"read_by"`
	DeliveredTo map[string]time.Time   `json:"delivered_to"`
	CreatedAt   time.Time              `json:"created_at"`
	EditedAt    *time.Time             `json:"edited_at,omitempty"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// MessagePatch is a partial update to a Message. Nil fields are left unchanged.
type MessagePatch struct {
	Content     *string      `json:"content,omitempty"`
	IsDeleted   *bool        `json:"-"`
	IsPinned    *bool        `json:"-"`
	EditedAt    *time.Time   `json:"-"`
	ReadBy      map[string]time.Time `json:"-"`
	DeliveredTo map[string]time.Time `json:"-"`
}

// Reaction is one user's reaction of a given type on a message.
type Reaction struct {
	ID           string    `json:"id"`
	MessageID    string    `json:"message_id"`
	UserID       string    `json:"user_id"`
	ReactionType string    `json:"reaction_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChatStats summarizes activity within a single chat.
type ChatStats struct {
	MessageCount  int `json:"message_count"`
	MemberCount   int `json:"member_count"`
	ReactionCount int `json:"reaction_count"`
}

// UserStats summarizes a user's activity across all chats.
type UserStats struct {
	MessageCount  int `json:"message_count"`
	ChatCount     int `json:"chat_count"`
	ReactionCount int `json:"reaction_count"`
}
