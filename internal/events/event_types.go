package events

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventType enumerates lifecycle event identifiers.
type EventType string

const (
	EventTicketCreated EventType = "ticket_created"
	EventTicketUpdated EventType = "ticket_updated"
	EventStatusChanged EventType = "status_changed"
	EventTicketClosed  EventType = "ticket_closed"
)

// AllEventTypes lists every lifecycle event type.
var AllEventTypes = []EventType{EventTicketCreated, EventTicketUpdated, EventStatusChanged, EventTicketClosed}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string          `json:"id"`
	Role domain.UserRole `json:"role"`
}

// TicketSnapshot is the committed ticket state carried by an event.
type TicketSnapshot struct {
	ID           string               `json:"id"`
	Number       string               `json:"number"`
	Title        string               `json:"title"`
	Category     string               `json:"category"`
	Service      string               `json:"service"`
	Team         domain.Team          `json:"team"`
	Urgency      domain.TicketUrgency `json:"urgency"`
	Status       domain.TicketStatus  `json:"status"`
	KanbanStatus domain.KanbanStatus  `json:"kanban_status"`
	RequesterID  string               `json:"requester_id"`
	AssigneeID   *string              `json:"assignee_id,omitempty"`
	Rating       *int                 `json:"rating,omitempty"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// SnapshotOf copies the fields notifications need from a ticket.
func SnapshotOf(t *domain.Ticket) TicketSnapshot {
	return TicketSnapshot{
		ID:           t.ID,
		Number:       t.Number,
		Title:        t.Title,
		Category:     t.Category,
		Service:      t.Service,
		Team:         t.Team,
		Urgency:      t.Urgency,
		Status:       t.Status,
		KanbanStatus: t.KanbanStatus,
		RequesterID:  t.RequesterID,
		AssigneeID:   t.AssigneeID,
		Rating:       t.Rating,
		UpdatedAt:    t.UpdatedAt,
	}
}

// Change describes what an operation did to the ticket.
type Change struct {
	Operation string              `json:"operation"`
	OldStatus domain.TicketStatus `json:"old_status,omitempty"`
	NewStatus domain.TicketStatus `json:"new_status,omitempty"`
	Comment   string              `json:"comment,omitempty"`
}

// Event represents a lifecycle event emitted after a change is committed.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Actor     Actor          `json:"actor"`
	Ticket    TicketSnapshot `json:"ticket"`
	Change    Change         `json:"change"`
	Timestamp time.Time      `json:"timestamp"`
	// Origin identifies the API instance that produced the event.
	Origin string `json:"origin,omitempty"`
}
