package stream

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	chatservice "github.com/parleyhq/parley/internal/service/chat"
	"github.com/parleyhq/parley/internal/store"
	"github.com/parleyhq/parley/pkg/utils"
)

// Handler streams one turn's reply via Server-Sent Events. The turn is
// persisted exactly as it would be for POST /message; only the delivery
// differs.
type Handler struct {
	svc *chatservice.Service
}

// New creates the stream handler.
func New(svc *chatservice.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the SSE endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{conversationID}", h.handleStream)
}

// streamEvent is one SSE frame.
type streamEvent struct {
	Event          string      `json:"event"`
	Content        string      `json:"content,omitempty"`
	ConversationID int64       `json:"conversationId,omitempty"`
	Usage          interface{} `json:"usage,omitempty"`
	Provider       string      `json:"provider,omitempty"`
	Error          string      `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	message := r.URL.Query().Get("message")
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	utils.SetupSSEHeaders(w)
	utils.SendSSEChunk(w, flusher, streamEvent{Event: "start", ConversationID: id})

	// Forward provider fragments as they arrive.
	chunks := make(chan string, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for content := range chunks {
			utils.SendSSEChunk(w, flusher, streamEvent{Event: "chunk", Content: content})
		}
	}()

	turn, err := h.svc.StreamMessage(r.Context(), chatservice.SendRequest{
		ConversationID: &id,
		OwnerID:        r.URL.Query().Get("userId"),
		Text:           message,
	}, chunks)
	close(chunks)
	<-done

	if err != nil {
		log.Printf("[stream] turn failed conversation=%d: %v", id, err)
		utils.SendSSEChunk(w, flusher, streamEvent{Event: "error", Error: streamErrorMessage(err)})
		return
	}

	utils.SendSSEChunk(w, flusher, streamEvent{
		Event:          "done",
		ConversationID: turn.ConversationID,
		Content:        turn.Reply.Content,
		Usage:          turn.Usage,
		Provider:       turn.Provider,
	})
}

func streamErrorMessage(err error) string {
	switch {
	case errors.Is(err, chatservice.ErrEmptyMessage):
		return "message is required"
	case errors.Is(err, store.ErrConversationNotFound):
		return "conversation not found"
	case errors.Is(err, chatservice.ErrCompletionFailed):
		return "completion failed"
	default:
		return "internal error"
	}
}
