package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/model/chat"
)

// snapshotFile is the on-disk shape of the whole store. Id counters are
// persisted so that ids keep increasing across restarts even after the
// highest-numbered rows have been deleted.
type snapshotFile struct {
	NextConversationID int64               `json:"nextConversationId"`
	NextMessageID      int64               `json:"nextMessageId"`
	Conversations      []chat.Conversation `json:"conversations"`
	Messages           []chat.Message      `json:"messages"`
}

// SnapshotStore keeps the full store in memory and serializes it wholesale
// to a single JSON file after every mutation. Reads are served from memory;
// writes are flushed synchronously before the mutating call returns.
type SnapshotStore struct {
	mu       sync.RWMutex
	path     string
	convs    map[int64]chat.Conversation
	messages map[int64][]chat.Message
	nextConv int64
	nextMsg  int64
}

// OpenSnapshotStore loads the snapshot at path. A missing, unreadable or
// corrupt file never fails the open: the store starts empty, logs the
// problem and immediately re-persists a valid snapshot.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot store requires a file path")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create snapshot directory: %v", ErrStorageUnavailable, err)
		}
	}

	s := &SnapshotStore{
		path:     path,
		convs:    make(map[int64]chat.Conversation),
		messages: make(map[int64][]chat.Message),
	}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First run.
	case err != nil:
		log.Printf("[store] snapshot %s unreadable (%v), starting empty", path, err)
	default:
		var file snapshotFile
		if err := json.Unmarshal(raw, &file); err != nil {
			log.Printf("[store] snapshot %s corrupt (%v), starting empty", path, err)
		} else {
			s.restore(file)
		}
	}

	// Re-persist so the next startup sees a valid file.
	if err := s.flushLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SnapshotStore) restore(file snapshotFile) {
	s.nextConv = file.NextConversationID
	s.nextMsg = file.NextMessageID
	for _, conv := range file.Conversations {
		s.convs[conv.ID] = conv
		s.messages[conv.ID] = []chat.Message{}
		if conv.ID > s.nextConv {
			s.nextConv = conv.ID
		}
	}
	for _, msg := range file.Messages {
		// Drop orphans left behind by an interrupted writer.
		if _, ok := s.convs[msg.ConversationID]; !ok {
			continue
		}
		s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
		if msg.ID > s.nextMsg {
			s.nextMsg = msg.ID
		}
	}
	// Re-sort in case the file was edited or written out of order.
	for id := range s.messages {
		sortMessages(s.messages[id])
	}
}

// flushLocked writes the snapshot via temp file + rename so a crash mid
// write never leaves a truncated file. Callers must hold the write lock,
// or have exclusive access during open.
func (s *SnapshotStore) flushLocked() error {
	file := snapshotFile{
		NextConversationID: s.nextConv,
		NextMessageID:      s.nextMsg,
		Conversations:      make([]chat.Conversation, 0, len(s.convs)),
		Messages:           make([]chat.Message, 0),
	}
	for _, conv := range s.convs {
		file.Conversations = append(file.Conversations, conv)
	}
	for _, messages := range s.messages {
		file.Messages = append(file.Messages, messages...)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %v", ErrStorageUnavailable, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write snapshot: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: replace snapshot: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SnapshotStore) CreateConversation(_ context.Context, ownerID string) (chat.Conversation, error) {
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
	s.messages[conv.ID] = []chat.Message{}

	if err := s.flushLocked(); err != nil {
		// Undo so the in-memory view never shows unpersisted state.
		delete(s.convs, conv.ID)
		delete(s.messages, conv.ID)
		s.nextConv--
		return chat.Conversation{}, err
	}
	return conv, nil
}

func (s *SnapshotStore) GetConversation(_ context.Context, id int64) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[id]
	if !ok {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

func (s *SnapshotStore) AppendMessage(_ context.Context, conversationID int64, role, content string) (chat.Message, error) {
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

	if err := s.flushLocked(); err != nil {
		existing := s.messages[conversationID]
		s.messages[conversationID] = existing[:len(existing)-1]
		s.nextMsg--
		return chat.Message{}, err
	}
	return msg, nil
}

func (s *SnapshotStore) ListMessages(_ context.Context, conversationID int64) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.convs[conversationID]; !ok {
		return nil, ErrConversationNotFound
	}

	messages := s.messages[conversationID]
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

func (s *SnapshotStore) ListConversations(_ context.Context, ownerID string) ([]chat.Summary, error) {
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

func (s *SnapshotStore) DeleteConversation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return ErrConversationNotFound
	}
	removed := s.messages[id]
	delete(s.convs, id)
	delete(s.messages, id)

	if err := s.flushLocked(); err != nil {
		s.convs[id] = conv
		s.messages[id] = removed
		return err
	}
	return nil
}

func (s *SnapshotStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, messages := range s.messages {
		total += len(messages)
	}
	return Stats{Conversations: len(s.convs), Messages: total}, nil
}

func (s *SnapshotStore) Close() error { return nil }

var _ ConversationStore = (*SnapshotStore)(nil)
