package ws

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	chatservice "github.com/parleyhq/parley/internal/service/chat"
	"github.com/parleyhq/parley/internal/store"
)

// Handler runs a websocket chat loop: each inbound frame is one user turn,
// each outbound frame the corresponding reply. Turns are persisted through
// the same orchestrator as the REST endpoints.
type Handler struct {
	svc      *chatservice.Service
	upgrader websocket.Upgrader
}

// New creates the websocket handler.
func New(svc *chatservice.Service) *Handler {
	return &Handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.handleChat)
}

type inboundFrame struct {
	Message        string `json:"message"`
	ConversationID *int64 `json:"conversationId,omitempty"`
	UserID         string `json:"userId,omitempty"`
}

type outboundFrame struct {
	Success        bool        `json:"success"`
	ConversationID int64       `json:"conversationId,omitempty"`
	Reply          string      `json:"reply,omitempty"`
	Usage          interface{} `json:"usage,omitempty"`
	Provider       string      `json:"provider,omitempty"`
	Error          string      `json:"error,omitempty"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	log.Printf("[ws] connection %s opened", connID)

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[ws] connection %s read error: %v", connID, err)
			}
			return
		}

		turn, err := h.svc.SendMessage(r.Context(), chatservice.SendRequest{
			ConversationID: frame.ConversationID,
			OwnerID:        frame.UserID,
			Text:           frame.Message,
		})
		if err != nil {
			if writeErr := conn.WriteJSON(outboundFrame{Success: false, Error: wsErrorMessage(err)}); writeErr != nil {
				log.Printf("[ws] connection %s write error: %v", connID, writeErr)
				return
			}
			continue
		}

		if err := conn.WriteJSON(outboundFrame{
			Success:        true,
			ConversationID: turn.ConversationID,
			Reply:          turn.Reply.Content,
			Usage:          turn.Usage,
			Provider:       turn.Provider,
		}); err != nil {
			log.Printf("[ws] connection %s write error: %v", connID, err)
			return
		}
	}
}

func wsErrorMessage(err error) string {
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
