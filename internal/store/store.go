// Package store persists conversations and their ordered messages behind a
// single backend-agnostic contract. Three interchangeable backends exist:
// a volatile in-memory map, a whole-file JSON snapshot, and SQLite. All
// three expose identical ordering and filtering semantics; callers select
// one at construction time and never branch on the backend afterwards.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/parleyhq/parley/internal/model/chat"
)

var (
	// ErrConversationNotFound reports that the addressed conversation does
	// not exist (distinct from an existing conversation with no messages).
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrStorageUnavailable reports that the persistence medium rejected a
	// read or write. No partial state is left behind.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Stats summarizes store contents for the health endpoint.
type Stats struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
}

// ConversationStore is the persistence contract shared by all backends.
//
// Identity guarantees: conversation and message ids are assigned by the
// store, strictly increase over the lifetime of a store instance, and are
// never reused after deletion. Messages for one conversation are returned
// ordered by timestamp ascending with ties broken by id.
type ConversationStore interface {
	// CreateConversation allocates a fresh conversation for ownerID.
	CreateConversation(ctx context.Context, ownerID string) (chat.Conversation, error)

	// GetConversation looks up a conversation by id.
	GetConversation(ctx context.Context, id int64) (chat.Conversation, error)

	// AppendMessage durably appends one message. The conversation must
	// already exist; stores never auto-create on append.
	AppendMessage(ctx context.Context, conversationID int64, role, content string) (chat.Message, error)

	// ListMessages returns the conversation's full ordered history. An
	// existing conversation with no messages yields an empty slice, not an
	// error.
	ListMessages(ctx context.Context, conversationID int64) ([]chat.Message, error)

	// ListConversations returns summaries for the owner, most recently
	// active first (ties broken by id descending).
	ListConversations(ctx context.Context, ownerID string) ([]chat.Summary, error)

	// DeleteConversation atomically removes the conversation and every
	// message referencing it.
	DeleteConversation(ctx context.Context, id int64) error

	// Stats reports conversation and message counts.
	Stats(ctx context.Context) (Stats, error)

	// Close releases any underlying resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendSnapshot = "snapshot"
	BackendSQLite   = "sqlite"
)

// Open constructs the backend named by kind. Path is the snapshot file or
// SQLite database location and is ignored by the memory backend.
func Open(kind, path string) (ConversationStore, error) {
	switch kind {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendSnapshot:
		return OpenSnapshotStore(path)
	case BackendSQLite:
		return OpenSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", kind)
	}
}
