package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus   TicketChangeType = "STATUS_CHANGE"
	ChangeTypeKanban   TicketChangeType = "KANBAN_CHANGE"
	ChangeTypeAssignee TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypeRating   TicketChangeType = "RATING"
)

// TicketHistory is an immutable audit trail entry written in the same unit as the change.
type TicketHistory struct {
	ID          string
	TicketID    string
	ChangedByID string
	ChangeType  TicketChangeType
	OldValue    map[string]any
	NewValue    map[string]any
	CreatedAt   time.Time
}
