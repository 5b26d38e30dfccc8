package chat

import "time"

// Summary is the listing view of a conversation. LastMessageAt falls back
// to CreatedAt when the conversation has no messages yet.
type Summary struct {
	ID            int64     `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	MessageCount  int       `json:"messageCount"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}
