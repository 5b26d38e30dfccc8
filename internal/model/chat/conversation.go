package chat

import "time"

// DefaultOwner is recorded when a caller does not identify itself.
const DefaultOwner = "anonymous"

// Conversation is an addressable thread of messages belonging to one owner.
type Conversation struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}
