package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aidflow/internal/chat"
	"aidflow/internal/core"
)

// ChatServiceInterface is the conversation contract for the chat handler.
type ChatServiceInterface interface {
	Send(ctx context.Context, sessionID, content string) (*chat.Reply, error)
	History(sessionID string) []chat.Message
	ClearHistory(sessionID string)
	Sessions() []string
}

// chatMessageRequest matches the frontend's message payload.
type chatMessageRequest struct {
	Message   string `json:"message" validate:"required"`
	SessionID string `json:"sessionId" validate:"required"`
	Role      string `json:"role,omitempty"`
}

type chatSessionsResponse struct {
	Sessions []string `json:"sessions"`
	Count    int      `json:"count"`
}

type chatClearedResponse struct {
	Message string `json:"message"`
}

// ChatHandler maps HTTP requests to the assistant service.
type ChatHandler struct {
	service   ChatServiceInterface
	validator *core.Validator
	logger    *slog.Logger
}

func NewChatHandler(svc ChatServiceInterface, val *core.Validator, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{service: svc, validator: val, logger: logger}
}

// RegisterRoutes mounts the chat endpoints onto the mux.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/message", h.HandleMessage)
	r.Get("/history/{sessionID}", h.HandleHistory)
	r.Delete("/history/{sessionID}", h.HandleClearHistory)
	r.Get("/sessions", h.HandleSessions)
}

// HandleMessage handles POST /v1/chat/message.
func (h *ChatHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	reply, err := h.service.Send(r.Context(), req.SessionID, req.Message)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, reply)
}

// HandleHistory handles GET /v1/chat/history/{sessionID}.
func (h *ChatHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	core.JSON(w, r, http.StatusOK, h.service.History(sessionID))
}

// HandleClearHistory handles DELETE /v1/chat/history/{sessionID}.
func (h *ChatHandler) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	h.service.ClearHistory(sessionID)
	core.JSON(w, r, http.StatusOK, chatClearedResponse{
		Message: "chat history cleared for session " + sessionID,
	})
}

// HandleSessions handles GET /v1/chat/sessions.
func (h *ChatHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.service.Sessions()
	core.JSON(w, r, http.StatusOK, chatSessionsResponse{
		Sessions: sessions,
		Count:    len(sessions),
	})
}
