// Package chat orchestrates one conversational turn: resolve or create the
// conversation, persist the user message, call the completion provider with
// the ordered history, persist the reply, return it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/model/chat"
	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/store"
)

var (
	// ErrEmptyMessage rejects a turn with no text. Nothing is persisted.
	ErrEmptyMessage = errors.New("message text is required")

	// ErrCompletionFailed wraps any provider error or timeout. The user
	// turn stays recorded; no assistant turn is written (fail-fast policy:
	// a degraded deployment selects the echo provider explicitly instead
	// of the service faking replies at runtime).
	ErrCompletionFailed = errors.New("completion failed")
)

// SendRequest is one incoming user turn. A nil or unknown ConversationID
// starts a new conversation owned by OwnerID (default "anonymous").
type SendRequest struct {
	ConversationID *int64
	OwnerID        string
	Text           string
}

// Turn is the completed exchange returned to the caller. Provider names
// which implementation answered, so echo replies are distinguishable from
// real model output.
type Turn struct {
	ConversationID int64
	Reply          chat.Message
	Usage          provider.TokenUsage
	Provider       string
}

// Service wires the store and the completion provider together. It never
// branches on which backend or provider it was given.
type Service struct {
	store        store.ConversationStore
	llm          provider.Provider
	timeout      time.Duration
	historyLimit int
}

// NewService builds the orchestrator. timeout bounds each provider call;
// historyLimit caps how many trailing messages are sent as context.
func NewService(st store.ConversationStore, llm provider.Provider, timeout time.Duration, historyLimit int) *Service {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if historyLimit < 1 {
		historyLimit = 20
	}
	return &Service{store: st, llm: llm, timeout: timeout, historyLimit: historyLimit}
}

// SendMessage runs one full turn and returns the assistant's reply.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (Turn, error) {
	return s.sendTurn(ctx, req, nil)
}

// StreamMessage runs one full turn, forwarding reply fragments to chunks
// while the provider produces them. The caller owns (and closes) chunks.
func (s *Service) StreamMessage(ctx context.Context, req SendRequest, chunks chan<- string) (Turn, error) {
	return s.sendTurn(ctx, req, chunks)
}

func (s *Service) sendTurn(ctx context.Context, req SendRequest, chunks chan<- string) (Turn, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Turn{}, ErrEmptyMessage
	}

	conv, err := s.resolveConversation(ctx, req)
	if err != nil {
		return Turn{}, err
	}

	if _, err := s.store.AppendMessage(ctx, conv.ID, chat.RoleUser, text); err != nil {
		return Turn{}, fmt.Errorf("append user message: %w", err)
	}

	history, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return Turn{}, fmt.Errorf("load history: %w", err)
	}
	window := history
	if len(window) > s.historyLimit {
		window = window[len(window)-s.historyLimit:]
	}

	// The provider call is the only thing that suspends; it runs outside
	// any store lock so unrelated conversations keep making progress.
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var completion provider.Completion
	if chunks != nil {
		completion, err = s.llm.Stream(callCtx, window, chunks)
	} else {
		completion, err = s.llm.Complete(callCtx, window)
	}
	if err != nil {
		// The user turn is already durable and stays that way.
		return Turn{}, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}

	reply, err := s.store.AppendMessage(ctx, conv.ID, chat.RoleAssistant, completion.Content)
	if err != nil {
		return Turn{}, fmt.Errorf("append assistant message: %w", err)
	}

	log.Printf("[chat] turn complete conversation=%d provider=%s tokens=%d",
		conv.ID, s.llm.Name(), completion.Usage.TotalTokens)

	return Turn{
		ConversationID: conv.ID,
		Reply:          reply,
		Usage:          completion.Usage,
		Provider:       s.llm.Name(),
	}, nil
}

func (s *Service) resolveConversation(ctx context.Context, req SendRequest) (chat.Conversation, error) {
	if req.ConversationID != nil {
		conv, err := s.store.GetConversation(ctx, *req.ConversationID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, store.ErrConversationNotFound) {
			return chat.Conversation{}, fmt.Errorf("resolve conversation: %w", err)
		}
		// Unknown id: fall through and start fresh.
	}

	conv, err := s.store.CreateConversation(ctx, req.OwnerID)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// History returns the full ordered transcript of a conversation.
func (s *Service) History(ctx context.Context, conversationID int64) ([]chat.Message, error) {
	return s.store.ListMessages(ctx, conversationID)
}

// Conversations lists the owner's conversations, most recently active first.
func (s *Service) Conversations(ctx context.Context, ownerID string) ([]chat.Summary, error) {
	return s.store.ListConversations(ctx, ownerID)
}

// Delete removes a conversation and all of its messages.
func (s *Service) Delete(ctx context.Context, conversationID int64) error {
	return s.store.DeleteConversation(ctx, conversationID)
}

// Stats exposes store counts for the health endpoint.
func (s *Service) Stats(ctx context.Context) (store.Stats, error) {
	return s.store.Stats(ctx)
}

// ProviderName reports which completion provider is wired in.
func (s *Service) ProviderName() string { return s.llm.Name() }

// ProviderModel reports the configured model identifier.
func (s *Service) ProviderModel() string { return s.llm.Model() }
