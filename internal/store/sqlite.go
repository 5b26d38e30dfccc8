package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/parleyhq/parley/internal/model/chat"
)

// SQLiteStore is the transactional relational backend. Conversations and
// messages are separate relations joined by a foreign key; id assignment
// uses AUTOINCREMENT primary keys, which SQLite never reuses. Timestamps
// are stored as unix nanoseconds so ordering survives round trips exactly.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the database at path, creating parent
// directories as needed. The connection pool is capped at one connection:
// SQLite allows a single writer anyway, and the cap doubles as the
// per-store write serialization the contract asks for.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store requires a database path")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create database directory: %v", ErrStorageUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStorageUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages(conversation_id, timestamp, id);

		CREATE INDEX IF NOT EXISTS idx_conversations_owner
		ON conversations(owner_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("%w: create schema: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, ownerID string) (chat.Conversation, error) {
	if ownerID == "" {
		ownerID = chat.DefaultOwner
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (owner_id, created_at) VALUES (?, ?)",
		ownerID, now.UnixNano())
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("%w: insert conversation: %v", ErrStorageUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("%w: conversation id: %v", ErrStorageUnavailable, err)
	}

	return chat.Conversation{ID: id, OwnerID: ownerID, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (chat.Conversation, error) {
	var (
		conv      chat.Conversation
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, created_at FROM conversations WHERE id = ?",
		id).Scan(&conv.ID, &conv.OwnerID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("%w: query conversation: %v", ErrStorageUnavailable, err)
	}
	conv.CreatedAt = time.Unix(0, createdAt).UTC()
	return conv, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID int64, role, content string) (chat.Message, error) {
	if content == "" {
		return chat.Message{}, errEmptyContent
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: begin transaction: %v", ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM conversations WHERE id = ?", conversationID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Message{}, ErrConversationNotFound
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: check conversation: %v", ErrStorageUnavailable, err)
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, role, content, timestamp) VALUES (?, ?, ?, ?)",
		conversationID, role, content, now.UnixNano())
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: insert message: %v", ErrStorageUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: message id: %v", ErrStorageUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return chat.Message{}, fmt.Errorf("%w: commit message: %v", ErrStorageUnavailable, err)
	}

	return chat.Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      now,
	}, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID int64) ([]chat.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, conversation_id, role, content, timestamp FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC, id ASC",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: query messages: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	messages := []chat.Message{}
	for rows.Next() {
		var (
			msg chat.Message
			ts  int64
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", ErrStorageUnavailable, err)
		}
		msg.Timestamp = time.Unix(0, ts).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate messages: %v", ErrStorageUnavailable, err)
	}
	return messages, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, ownerID string) ([]chat.Summary, error) {
	if ownerID == "" {
		ownerID = chat.DefaultOwner
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.created_at, COUNT(m.id), COALESCE(MAX(m.timestamp), c.created_at)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.owner_id = ?
		GROUP BY c.id
		ORDER BY COALESCE(MAX(m.timestamp), c.created_at) DESC, c.id DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: query conversations: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	summaries := []chat.Summary{}
	for rows.Next() {
		var (
			summary         chat.Summary
			createdAt, last int64
		)
		if err := rows.Scan(&summary.ID, &createdAt, &summary.MessageCount, &last); err != nil {
			return nil, fmt.Errorf("%w: scan conversation: %v", ErrStorageUnavailable, err)
		}
		summary.CreatedAt = time.Unix(0, createdAt).UTC()
		summary.LastMessageAt = time.Unix(0, last).UTC()
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate conversations: %v", ErrStorageUnavailable, err)
	}
	return summaries, nil
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	// Delete dependents first; the cascade also covers drivers where the
	// foreign_keys pragma was not honored by the connection string.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("%w: delete messages: %v", ErrStorageUnavailable, err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: delete conversation: %v", ErrStorageUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete conversation: %v", ErrStorageUnavailable, err)
	}
	if affected == 0 {
		return ErrConversationNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit delete: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversations").Scan(&stats.Conversations); err != nil {
		return Stats{}, fmt.Errorf("%w: count conversations: %v", ErrStorageUnavailable, err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages").Scan(&stats.Messages); err != nil {
		return Stats{}, fmt.Errorf("%w: count messages: %v", ErrStorageUnavailable, err)
	}
	return stats, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ ConversationStore = (*SQLiteStore)(nil)
