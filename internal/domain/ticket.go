package domain

import (
	"fmt"
	"strconv"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen            TicketStatus = "OPEN"
	TicketStatusPendingApproval TicketStatus = "PENDING_APPROVAL"
	TicketStatusResolved        TicketStatus = "RESOLVED"
	TicketStatusClosed          TicketStatus = "CLOSED"
)

// IsFinal reports whether the ticket no longer accepts messages or transitions.
func (s TicketStatus) IsFinal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// KanbanStatus is the display column used for triage. It does not follow Status.
type KanbanStatus string

const (
	KanbanInbox      KanbanStatus = "inbox"
	KanbanInProgress KanbanStatus = "in_progress"
	KanbanReview     KanbanStatus = "review"
	KanbanDone       KanbanStatus = "done"
)

// Valid reports whether k is one of the four kanban columns.
func (k KanbanStatus) Valid() bool {
	switch k {
	case KanbanInbox, KanbanInProgress, KanbanReview, KanbanDone:
		return true
	}
	return false
}

// TicketUrgency is ordered low < medium < high < critical.
type TicketUrgency string

const (
	UrgencyLow      TicketUrgency = "low"
	UrgencyMedium   TicketUrgency = "medium"
	UrgencyHigh     TicketUrgency = "high"
	UrgencyCritical TicketUrgency = "critical"
)

var urgencyRank = map[TicketUrgency]int{
	UrgencyLow:      1,
	UrgencyMedium:   2,
	UrgencyHigh:     3,
	UrgencyCritical: 4,
}

// Valid reports whether u is a known urgency.
func (u TicketUrgency) Valid() bool {
	_, ok := urgencyRank[u]
	return ok
}

// Less orders urgencies; unknown values sort first.
func (u TicketUrgency) Less(other TicketUrgency) bool {
	return urgencyRank[u] < urgencyRank[other]
}

// Team is one of the fixed support teams. The empty value means unset.
type Team string

const (
	TeamNone     Team = ""
	TeamSistemas Team = "sistemas"
	TeamSuporte  Team = "suporte"
	TeamRedes    Team = "redes"
)

// Valid reports whether t is unset or one of the known teams.
func (t Team) Valid() bool {
	switch t {
	case TeamNone, TeamSistemas, TeamSuporte, TeamRedes:
		return true
	}
	return false
}

// TicketNumberWidth is the zero-padded width of human-facing ticket numbers.
const TicketNumberWidth = 6

// FormatTicketNumber renders a sequence value as a ticket number.
func FormatTicketNumber(seq int64) string {
	return fmt.Sprintf("%0*d", TicketNumberWidth, seq)
}

// ParseTicketNumber returns the sequence value of a ticket number.
func ParseTicketNumber(number string) (int64, error) {
	return strconv.ParseInt(number, 10, 64)
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID           string
	Number       string
	Title        string
	Description  string
	Category     string
	Service      string
	Team         Team
	Urgency      TicketUrgency
	Status       TicketStatus
	KanbanStatus KanbanStatus
	Rating       *int
	Feedback     *string
	RequesterID  string
	AssigneeID   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClosedAt     *time.Time
}

// Clone returns a deep copy so callers cannot alias stored pointers.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	if t.Rating != nil {
		v := *t.Rating
		c.Rating = &v
	}
	if t.Feedback != nil {
		v := *t.Feedback
		c.Feedback = &v
	}
	if t.AssigneeID != nil {
		v := *t.AssigneeID
		c.AssigneeID = &v
	}
	if t.ClosedAt != nil {
		v := *t.ClosedAt
		c.ClosedAt = &v
	}
	return &c
}
