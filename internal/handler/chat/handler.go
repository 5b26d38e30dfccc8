package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/parleyhq/parley/internal/model/chat"
	chatservice "github.com/parleyhq/parley/internal/service/chat"
	"github.com/parleyhq/parley/internal/store"
	"github.com/parleyhq/parley/pkg/utils"
)

// Handler serves the REST chat API.
type Handler struct {
	svc        *chatservice.Service
	instanceID string
}

// New creates the chat handler. The instance id identifies this process in
// health responses.
func New(svc *chatservice.Service) *Handler {
	return &Handler{svc: svc, instanceID: uuid.NewString()}
}

// RegisterRoutes mounts the chat endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/message", h.handleSendMessage)
	r.Get("/history/{conversationID}", h.handleHistory)
	r.Get("/conversations", h.handleListConversations)
	r.Delete("/conversation/{conversationID}", h.handleDelete)
	r.Get("/health", h.handleHealth)
}

type sendMessageRequest struct {
	Message        string `json:"message"`
	ConversationID *int64 `json:"conversationId,omitempty"`
	UserID         string `json:"userId,omitempty"`
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := h.svc.SendMessage(r.Context(), chatservice.SendRequest{
		ConversationID: payload.ConversationID,
		OwnerID:        payload.UserID,
		Text:           payload.Message,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"conversationId": turn.ConversationID,
		"reply":          turn.Reply.Content,
		"usage":          turn.Usage,
		"provider":       turn.Provider,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "conversationID"))
	if !ok {
		return
	}

	messages, err := h.svc.History(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"conversationId": id,
		"messages":       messages,
	})
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.Conversations(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if summaries == nil {
		summaries = []chat.Summary{}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"conversations": summaries,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "conversationID"))
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		status = "degraded"
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"instanceId": h.instanceID,
		"provider": map[string]interface{}{
			"configured": h.svc.ProviderName() != "echo",
			"name":       h.svc.ProviderName(),
			"model":      h.svc.ProviderModel(),
		},
		"stats": stats,
	})
}

func parseID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid conversation id")
		return 0, false
	}
	return id, true
}

// respondServiceError maps service errors onto status codes.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatservice.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, "message is required")
	case errors.Is(err, store.ErrConversationNotFound):
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, chatservice.ErrCompletionFailed):
		utils.RespondError(w, http.StatusInternalServerError, "completion failed")
	default:
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
