package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/store"
	"github.com/vedran77/pulsechat/internal/transport/http/middleware"
	"github.com/vedran77/pulsechat/pkg/validator"
)

type MessageHandler struct {
	chat *service.ChatService
	log  *slog.Logger
}

func NewMessageHandler(chat *service.ChatService, log *slog.Logger) *MessageHandler {
	return &MessageHandler{chat: chat, log: log}
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var input service.SendMessageInput
	if !decode(w, r, &input) {
		return
	}

	if errs := validator.ValidateMessage(input.Content); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	msg, err := h.chat.SendMessage(r.Context(), userID, convID, input)
	if err != nil {
		writeDomainError(w, h.log, "send_message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	// Parse query params
	var before *uuid.UUID
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		id, err := uuid.Parse(beforeStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid before cursor")
			return
		}
		before = &id
	}

	limit := store.DefaultPageSize
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= store.MaxPageSize {
			limit = l
		}
	}

	page, err := h.chat.FetchMessages(r.Context(), userID, convID, before, limit)
	if err != nil {
		writeDomainError(w, h.log, "fetch_messages", err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.chat.DeleteMessage(r.Context(), userID, messageID); err != nil {
		writeDomainError(w, h.log, "delete_message", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
