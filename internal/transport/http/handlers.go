package http

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/chatcore/server/internal/chaterr"
	"github.com/chatcore/server/internal/domain"
)

const maxUploadMemory = 32 << 20 // bytes buffered in memory before multipart spills to disk

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		FullName string `json:"full_name"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := s.orch.RegisterUser(r.Context(), req.Username, req.Email, req.FullName, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, err)
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	token, _, err := s.orch.AuthenticateUser(r.Context(), username, password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.orch.GetUser(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    *string `json:"email"`
		FullName *string `json:"full_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := s.orch.UpdateUser(r.Context(), callerID(r), callerID(r), domain.UserPatch{Email: req.Email, FullName: req.FullName})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status domain.UserStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := s.orch.UpdateUserStatus(r.Context(), callerID(r), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatType    domain.ChatType `json:"chat_type"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		IsEncrypted bool            `json:"is_encrypted"`
		MemberIDs   []string        `json:"member_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	chat, err := s.orch.CreateChat(r.Context(), callerID(r), req.ChatType, req.Name, req.Description, req.IsEncrypted, req.MemberIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.orch.GetUserChats(r.Context(), callerID(r), queryInt(r, "skip", 0), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	chat, err := s.orch.GetChat(r.Context(), chatID, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleUpdateChat(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	chat, err := s.orch.UpdateChat(r.Context(), chatID, callerID(r), domain.ChatPatch{Name: req.Name, Description: req.Description})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	if err := s.orch.DeleteChat(r.Context(), chatID, callerID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req struct {
		Role domain.MemberRole `json:"role"`
	}
	_ = decodeJSON(r, &req) // body is optional; default role applies
	role := req.Role
	if role == "" {
		role = domain.RoleMember
	}
	if err := s.orch.AddChatMember(r.Context(), vars["id"], callerID(r), vars["uid"], role); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.orch.RemoveChatMember(r.Context(), vars["id"], callerID(r), vars["uid"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID      string              `json:"chat_id"`
		MessageType domain.MessageType  `json:"message_type"`
		Content     string              `json:"content"`
		Attachments []domain.Attachment `json:"attachments"`
		ReplyToID   string              `json:"reply_to_id"`
		Mentions    []string            `json:"mentions"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.MessageType == "" {
		req.MessageType = domain.MessageText
	}
	message, err := s.orch.SendMessage(r.Context(), callerID(r), req.ChatID, req.MessageType, req.Content, req.Attachments, req.ReplyToID, req.Mentions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message)
}

func (s *Server) handleGetChatMessages(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	q := r.URL.Query()
	messages, err := s.orch.GetChatMessages(r.Context(), chatID, callerID(r), q.Get("before_id"), q.Get("after_id"), queryInt(r, "skip", 0), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["id"]
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	message, err := s.orch.EditMessage(r.Context(), messageID, callerID(r), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["id"]
	deleteForEveryone := r.URL.Query().Get("delete_for_everyone") == "true"
	if err := s.orch.DeleteMessage(r.Context(), messageID, callerID(r), deleteForEveryone); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["id"]
	if err := s.orch.MarkMessageRead(r.Context(), messageID, callerID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMarkChatRead(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	var req struct {
		MessageIDs  []string `json:"message_ids"`
		ReadUntilID string   `json:"read_until_id"`
	}
	_ = decodeJSON(r, &req)
	if err := s.orch.MarkMessagesRead(r.Context(), chatID, callerID(r), req.MessageIDs, req.ReadUntilID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAddReaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := s.orch.AddReaction(r.Context(), vars["id"], callerID(r), vars["type"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRemoveReaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.orch.RemoveReaction(r.Context(), vars["id"], callerID(r), vars["type"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handlePinMessage(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["id"]
	message, err := s.orch.PinMessage(r.Context(), messageID, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message)
}

func (s *Server) handleUnpinMessage(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["id"]
	message, err := s.orch.UnpinMessage(r.Context(), messageID, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message)
}

func (s *Server) handleGetPinned(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	messages, err := s.orch.GetPinnedMessages(r.Context(), chatID, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	messages, err := s.orch.SearchMessages(r.Context(), q.Get("query"), callerID(r), q.Get("chat_id"), queryInt(r, "skip", 0), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleChatStats(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	stats, err := s.orch.GetChatStats(r.Context(), chatID, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orch.GetUserStats(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleUpload saves an uploaded file's bytes through the blob collaborator
// and returns the opaque location for a subsequent handleSendFileMessage call.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, chaterr.Validation("malformed multipart upload"))
		return
	}
	chatID := r.FormValue("chat_id")

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, chaterr.Validation("missing file part"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, chaterr.Validation("failed to read uploaded file"))
		return
	}

	location, err := s.orch.UploadFile(r.Context(), chatID, callerID(r), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_url": location})
}

func (s *Server) handleSendFileMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID      string `json:"chat_id"`
		FileURL     string `json:"file_url"`
		FileName    string `json:"file_name"`
		ContentType string `json:"content_type"`
		Caption     string `json:"caption"`
		Size        int64  `json:"size"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	message, err := s.orch.SendFileMessage(r.Context(), callerID(r), req.ChatID, req.FileURL, req.FileName, req.ContentType, req.Caption, req.Size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message)
}

func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	var req struct {
		IsTyping *bool `json:"is_typing"`
	}
	_ = decodeJSON(r, &req) // absent body defaults to is_typing=true
	isTyping := true
	if req.IsTyping != nil {
		isTyping = *req.IsTyping
	}
	if err := s.orch.TypingIndicatorREST(r.Context(), chatID, callerID(r), isTyping); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
