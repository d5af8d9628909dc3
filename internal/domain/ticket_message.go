package domain

import "time"

// MessageRole indicates which side of the conversation wrote a message.
type MessageRole string

const (
	MessageRoleUser    MessageRole = "user"
	MessageRoleSupport MessageRole = "support"
)

// TicketMessage is an append-only chat entry. It is never edited or deleted.
type TicketMessage struct {
	ID        string
	TicketID  string
	Role      MessageRole
	AuthorID  string
	Content   string
	CreatedAt time.Time
}

// Attachment stores metadata for a file attached to a ticket. The bytes live elsewhere.
type Attachment struct {
	ID         string
	TicketID   string
	UploaderID string
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	CreatedAt  time.Time
}
