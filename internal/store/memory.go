package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/model/chat"
)

var errEmptyContent = errors.New("message content must not be empty")

// MemoryStore keeps all state in process memory. Zero I/O latency; data is
// lost on restart. That volatility is the point of this backend, not an
// oversight: it exists for tests, demos and ephemeral deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	convs    map[int64]chat.Conversation
	messages map[int64][]chat.Message
	nextConv int64
	nextMsg  int64
}

// NewMemoryStore creates an empty volatile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs:    make(map[int64]chat.Conversation),
		messages: make(map[int64][]chat.Message),
	}
}

func (s *MemoryStore) CreateConversation(_ context.Context, ownerID string) (chat.Conversation, error) {
	if ownerID == "" {
		ownerID = chat.DefaultOwner
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextConv++
	conv := chat.Conversation{
		ID:        s.nextConv,
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	}
	s.convs[conv.ID] = conv
	s.messages[conv.ID] = make([]chat.Message, 0, 8)
	return conv, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id int64) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[id]
	if !ok {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, conversationID int64, role, content string) (chat.Message, error) {
	if content == "" {
		return chat.Message{}, errEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[conversationID]; !ok {
		return chat.Message{}, ErrConversationNotFound
	}

	s.nextMsg++
	msg := chat.Message{
		ID:             s.nextMsg,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      time.Now().UTC(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return msg, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID int64) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.convs[conversationID]; !ok {
		return nil, ErrConversationNotFound
	}

	// Copy so callers cannot mutate stored history.
	messages := s.messages[conversationID]
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, ownerID string) ([]chat.Summary, error) {
	if ownerID == "" {
		ownerID = chat.DefaultOwner
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]chat.Summary, 0, len(s.convs))
	for id, conv := range s.convs {
		if conv.OwnerID != ownerID {
			continue
		}
		summaries = append(summaries, summarize(conv, s.messages[id]))
	}
	sortSummaries(summaries)
	return summaries, nil
}

func (s *MemoryStore) DeleteConversation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[id]; !ok {
		return ErrConversationNotFound
	}
	delete(s.convs, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, messages := range s.messages {
		total += len(messages)
	}
	return Stats{Conversations: len(s.convs), Messages: total}, nil
}

func (s *MemoryStore) Close() error { return nil }

// summarize builds the listing view of one conversation.
func summarize(conv chat.Conversation, messages []chat.Message) chat.Summary {
	summary := chat.Summary{
		ID:            conv.ID,
		CreatedAt:     conv.CreatedAt,
		MessageCount:  len(messages),
		LastMessageAt: conv.CreatedAt,
	}
	if len(messages) > 0 {
		summary.LastMessageAt = messages[len(messages)-1].Timestamp
	}
	return summary
}

// sortMessages orders by timestamp ascending, ids breaking ties.
func sortMessages(messages []chat.Message) {
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].Timestamp.Equal(messages[j].Timestamp) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
}

// sortSummaries orders by most recent activity, ids descending on ties so
// the order stays deterministic for equal timestamps.
func sortSummaries(summaries []chat.Summary) {
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].LastMessageAt.Equal(summaries[j].LastMessageAt) {
			return summaries[i].ID > summaries[j].ID
		}
		return summaries[i].LastMessageAt.After(summaries[j].LastMessageAt)
	})
}

var _ ConversationStore = (*MemoryStore)(nil)
