package handlers

import (
	"log/slog"
	"net/http"

	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/http/middleware"
	"github.com/vedran77/pulsechat/pkg/validator"
)

type ConversationHandler struct {
	chat *service.ChatService
	log  *slog.Logger
}

func NewConversationHandler(chat *service.ChatService, log *slog.Logger) *ConversationHandler {
	return &ConversationHandler{chat: chat, log: log}
}

// CreateDirect returns 201 for a new conversation and 200 when it already existed.
func (h *ConversationHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input userRef
	if !decode(w, r, &input) {
		return
	}

	conv, created, err := h.chat.CreateDirectConversation(r.Context(), userID, input.UserID)
	if err != nil {
		writeDomainError(w, h.log, "create_direct", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, conv)
}

func (h *ConversationHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.CreateGroupInput
	if !decode(w, r, &input) {
		return
	}

	if errs := validator.ValidateGroup(input.Name, input.DisplayPicture, len(input.MemberIDs)); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	conv, err := h.chat.CreateGroupConversation(r.Context(), userID, input)
	if err != nil {
		writeDomainError(w, h.log, "create_group", err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	convs, err := h.chat.ListConversations(r.Context(), userID)
	if err != nil {
		writeDomainError(w, h.log, "list_conversations", err)
		return
	}

	writeJSON(w, http.StatusOK, convs)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	conv, err := h.chat.GetConversation(r.Context(), userID, convID)
	if err != nil {
		writeDomainError(w, h.log, "get_conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var input service.UpdateGroupInput
	if !decode(w, r, &input) {
		return
	}

	if errs := validator.ValidateGroupUpdate(input.Name, input.DisplayPicture); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	conv, err := h.chat.UpdateGroup(r.Context(), userID, convID, input)
	if err != nil {
		writeDomainError(w, h.log, "update_group", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.chat.DeleteConversation(r.Context(), userID, convID); err != nil {
		writeDomainError(w, h.log, "delete_conversation", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var input userRef
	if !decode(w, r, &input) {
		return
	}

	conv, err := h.chat.AddMember(r.Context(), userID, convID, input.UserID)
	if err != nil {
		writeDomainError(w, h.log, "add_member", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// RemoveMember answers 204 when the removal emptied and deleted the conversation.
func (h *ConversationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	memberID, ok := pathID(w, r, "uid")
	if !ok {
		return
	}

	conv, deleted, err := h.chat.RemoveMember(r.Context(), userID, convID, memberID)
	if err != nil {
		writeDomainError(w, h.log, "remove_member", err)
		return
	}

	if deleted {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var input userRef
	if !decode(w, r, &input) {
		return
	}

	conv, err := h.chat.AddAdmin(r.Context(), userID, convID, input.UserID)
	if err != nil {
		writeDomainError(w, h.log, "add_admin", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) RemoveAdmin(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "uid")
	if !ok {
		return
	}

	conv, err := h.chat.RemoveAdmin(r.Context(), userID, convID, targetID)
	if err != nil {
		writeDomainError(w, h.log, "remove_admin", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	conv, err := h.chat.MarkRead(r.Context(), userID, convID)
	if err != nil {
		writeDomainError(w, h.log, "mark_read", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}
