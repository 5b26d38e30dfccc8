package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/parleyhq/parley/internal/model/chat"
	"github.com/parleyhq/parley/internal/store"
)

// openBackends returns a fresh instance of every backend. The contract
// tests below run identically against each one.
func openBackends(t *testing.T) map[string]store.ConversationStore {
	t.Helper()

	snapshot, err := store.OpenSnapshotStore(filepath.Join(t.TempDir(), "snapshot.json"))
	if err != nil {
		t.Fatalf("open snapshot store: %v", err)
	}

	sqlite, err := store.OpenSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]store.ConversationStore{
		"memory":   store.NewMemoryStore(),
		"snapshot": snapshot,
		"sqlite":   sqlite,
	}
}

func TestCreateConversationMonotonicIDs(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			var prev int64
			for i := 0; i < 3; i++ {
				conv, err := s.CreateConversation(ctx, "alice")
				if err != nil {
					t.Fatalf("CreateConversation err: %v", err)
				}
				if conv.ID <= prev {
					t.Fatalf("expected id > %d, got %d", prev, conv.ID)
				}
				if conv.CreatedAt.IsZero() {
					t.Fatal("expected createdAt to be set")
				}
				prev = conv.ID
			}
		})
	}
}

func TestCreateConversationDefaultsOwner(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			conv, err := s.CreateConversation(ctx, "")
			if err != nil {
				t.Fatalf("CreateConversation err: %v", err)
			}
			if conv.OwnerID != chat.DefaultOwner {
				t.Fatalf("expected owner %q, got %q", chat.DefaultOwner, conv.OwnerID)
			}
		})
	}
}

func TestAppendAndListOrder(t *testing.T) {
	ctx := context.Background()
	contents := []string{"first", "second", "third", "fourth"}

	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			conv, err := s.CreateConversation(ctx, "alice")
			if err != nil {
				t.Fatalf("CreateConversation err: %v", err)
			}

			var prevID int64
			for i, content := range contents {
				role := chat.RoleUser
				if i%2 == 1 {
					role = chat.RoleAssistant
				}
				msg, err := s.AppendMessage(ctx, conv.ID, role, content)
				if err != nil {
					t.Fatalf("AppendMessage err: %v", err)
				}
				if msg.ID <= prevID {
					t.Fatalf("expected message id > %d, got %d", prevID, msg.ID)
				}
				prevID = msg.ID
			}

			messages, err := s.ListMessages(ctx, conv.ID)
			if err != nil {
				t.Fatalf("ListMessages err: %v", err)
			}
			if len(messages) != len(contents) {
				t.Fatalf("expected %d messages, got %d", len(contents), len(messages))
			}
			for i, msg := range messages {
				if msg.Content != contents[i] {
					t.Fatalf("message %d: expected %q, got %q", i, contents[i], msg.Content)
				}
				if i > 0 && messages[i-1].Timestamp.After(msg.Timestamp) {
					t.Fatalf("message %d out of order", i)
				}
			}
			if messages[len(messages)-1].Content != "fourth" {
				t.Fatal("appended message must come back last")
			}
		})
	}
}

func TestAppendToMissingConversation(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.AppendMessage(ctx, 999, chat.RoleUser, "hello")
			if !errors.Is(err, store.ErrConversationNotFound) {
				t.Fatalf("expected ErrConversationNotFound, got %v", err)
			}
		})
	}
}

func TestAppendRejectsEmptyContent(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			conv, err := s.CreateConversation(ctx, "alice")
			if err != nil {
				t.Fatalf("CreateConversation err: %v", err)
			}
			if _, err := s.AppendMessage(ctx, conv.ID, chat.RoleUser, ""); err == nil {
				t.Fatal("expected error for empty content")
			}
		})
	}
}

func TestListMessagesEmptyVersusMissing(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			conv, err := s.CreateConversation(ctx, "alice")
			if err != nil {
				t.Fatalf("CreateConversation err: %v", err)
			}

			messages, err := s.ListMessages(ctx, conv.ID)
			if err != nil {
				t.Fatalf("empty conversation must not error: %v", err)
			}
			if len(messages) != 0 {
				t.Fatalf("expected no messages, got %d", len(messages))
			}

			if _, err := s.ListMessages(ctx, conv.ID+1000); !errors.Is(err, store.ErrConversationNotFound) {
				t.Fatalf("expected ErrConversationNotFound, got %v", err)
			}
		})
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			doomed, err := s.CreateConversation(ctx, "alice")
			if err != nil {
				t.Fatalf("CreateConversation err: %v", err)
			}
			kept, err := s.CreateConversation(ctx, "alice")
			if err != nil {
				t.Fatalf("CreateConversation err: %v", err)
			}
			for _, conv := range []chat.Conversation{doomed, kept} {
				if _, err := s.AppendMessage(ctx, conv.ID, chat.RoleUser, "hello"); err != nil {
					t.Fatalf("AppendMessage err: %v", err)
				}
			}

			if err := s.DeleteConversation(ctx, doomed.ID); err != nil {
				t.Fatalf("DeleteConversation err: %v", err)
			}

			if _, err := s.GetConversation(ctx, doomed.ID); !errors.Is(err, store.ErrConversationNotFound) {
				t.Fatalf("expected ErrConversationNotFound after delete, got %v", err)
			}
			if _, err := s.ListMessages(ctx, doomed.ID); !errors.Is(err, store.ErrConversationNotFound) {
				t.Fatalf("expected ErrConversationNotFound after delete, got %v", err)
			}
			if err := s.DeleteConversation(ctx, doomed.ID); !errors.Is(err, store.ErrConversationNotFound) {
				t.Fatalf("second delete must report not found, got %v", err)
			}

			summaries, err := s.ListConversations(ctx, "alice")
			if err != nil {
				t.Fatalf("ListConversations err: %v", err)
			}
			if len(summaries) != 1 || summaries[0].ID != kept.ID {
				t.Fatalf("expected only conversation %d to remain, got %+v", kept.ID, summaries)
			}

			stats, err := s.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats err: %v", err)
			}
			if stats.Conversations != 1 || stats.Messages != 1 {
				t.Fatalf("expected 1/1 after cascade, got %+v", stats)
			}
		})
	}
}

func TestIDsNotReusedAfterDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			first, err := s.CreateConversation(ctx, "alice")
			if err != nil {
				t.Fatalf("CreateConversation err: %v", err)
			}
			if err := s.DeleteConversation(ctx, first.ID); err != nil {
				t.Fatalf("DeleteConversation err: %v", err)
			}
			second, err := s.CreateConversation(ctx, "alice")
			if err != nil {
				t.Fatalf("CreateConversation err: %v", err)
			}
			if second.ID <= first.ID {
				t.Fatalf("id %d reused after deleting %d", second.ID, first.ID)
			}
		})
	}
}

func TestListConversationsFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			idle, err := s.CreateConversation(ctx, "alice")
			if err != nil {
				t.Fatalf("CreateConversation err: %v", err)
			}
			active, err := s.CreateConversation(ctx, "alice")
			if err != nil {
				t.Fatalf("CreateConversation err: %v", err)
			}
			if _, err := s.CreateConversation(ctx, "bob"); err != nil {
				t.Fatalf("CreateConversation err: %v", err)
			}

			msg, err := s.AppendMessage(ctx, active.ID, chat.RoleUser, "hello")
			if err != nil {
				t.Fatalf("AppendMessage err: %v", err)
			}

			summaries, err := s.ListConversations(ctx, "alice")
			if err != nil {
				t.Fatalf("ListConversations err: %v", err)
			}
			if len(summaries) != 2 {
				t.Fatalf("expected 2 conversations for alice, got %d", len(summaries))
			}
			if summaries[0].ID != active.ID {
				t.Fatalf("most recently active conversation must come first, got %d", summaries[0].ID)
			}
			if summaries[0].MessageCount != 1 {
				t.Fatalf("expected messageCount 1, got %d", summaries[0].MessageCount)
			}
			if !summaries[0].LastMessageAt.Equal(msg.Timestamp) {
				t.Fatalf("lastMessageAt %v does not match message timestamp %v", summaries[0].LastMessageAt, msg.Timestamp)
			}

			// An empty conversation falls back to createdAt.
			if summaries[1].ID != idle.ID {
				t.Fatalf("expected idle conversation second, got %d", summaries[1].ID)
			}
			if !summaries[1].LastMessageAt.Equal(summaries[1].CreatedAt) {
				t.Fatal("empty conversation must report createdAt as lastMessageAt")
			}
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := store.Open("cassandra", ""); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
