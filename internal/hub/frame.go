package hub

// Frame is an outbound server frame. It always carries a type field; the
// remaining keys vary by type per the WebSocket protocol.
type Frame map[string]interface{}

func frame(frameType string, fields map[string]interface{}) Frame {
	f := Frame{"type": frameType}
	for k, v := range fields {
		f[k] = v
	}
	return f
}

func Connected(userID string) Frame {
	return frame("connected", map[string]interface{}{"user_id": userID})
}

func ChatJoined(chatID string) Frame {
	return frame("chat_joined", map[string]interface{}{"chat_id": chatID})
}

func ChatLeft(chatID string) Frame {
	return frame("chat_left", map[string]interface{}{"chat_id": chatID})
}

func NewMessage(chatID string, message interface{}) Frame {
	return frame("new_message", map[string]interface{}{"chat_id": chatID, "message": message})
}

func MessageUpdated(chatID string, message interface{}) Frame {
	return frame("message_updated", map[string]interface{}{"chat_id": chatID, "message": message})
}

func MessageDeleted(chatID, messageID string) Frame {
	return frame("message_deleted", map[string]interface{}{"chat_id": chatID, "message_id": messageID})
}

func ReactionAdded(chatID, messageID string, reaction interface{}) Frame {
	return frame("reaction_added", map[string]interface{}{"chat_id": chatID, "message_id": messageID, "reaction": reaction})
}

func ReactionRemoved(chatID, messageID, userID, reactionType string) Frame {
	return frame("reaction_removed", map[string]interface{}{
		"chat_id": chatID, "message_id": messageID, "user_id": userID, "reaction_type": reactionType,
	})
}

func Typing(chatID, userID string, isTyping bool) Frame {
	return frame("typing", map[string]interface{}{"chat_id": chatID, "user_id": userID, "is_typing": isTyping})
}

func ReadReceipt(chatID, userID string, messageIDs []string) Frame {
	return frame("read_receipt", map[string]interface{}{"chat_id": chatID, "user_id": userID, "message_ids": messageIDs})
}

func UserOnline(userID string) Frame {
	return frame("user_online", map[string]interface{}{"user_id": userID})
}

func UserOffline(userID string) Frame {
	return frame("user_offline", map[string]interface{}{"user_id": userID})
}

func Ping() Frame {
	return frame("ping", nil)
}

func Pong(timestamp string) Frame {
	return frame("pong", map[string]interface{}{"timestamp": timestamp})
}
