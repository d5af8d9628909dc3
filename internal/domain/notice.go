package domain

import (
	"strings"
	"time"
)

// NoticeType classifies announcements on the notice board.
type NoticeType string

const (
	NoticeTypeInfo        NoticeType = "info"
	NoticeTypeMaintenance NoticeType = "maintenance"
	NoticeTypeIncident    NoticeType = "incident"
)

// NoticePriority orders notices for display.
type NoticePriority string

const (
	NoticePriorityLow    NoticePriority = "low"
	NoticePriorityNormal NoticePriority = "normal"
	NoticePriorityHigh   NoticePriority = "high"
)

// SectorIT is the reserved target sector that makes a notice visible to IT staff
// regardless of their own sector.
const SectorIT = "TI"

// Notice is a broadcast announcement.
type Notice struct {
	ID            string
	Title         string
	Body          string
	Type          NoticeType
	Priority      NoticePriority
	TargetSectors []string
	ScheduledFor  *Date
	ExpiresAt     *Date
	Active        bool
	AuthorID      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Viewer describes who is looking at the notice board.
type Viewer struct {
	Sector  string
	ITStaff bool
}

// VisibleTo reports whether the notice should be shown to viewer on the given day.
func (n *Notice) VisibleTo(viewer Viewer, today Date) bool {
	if !n.Active {
		return false
	}
	if n.ScheduledFor != nil && today.Before(*n.ScheduledFor) {
		return false
	}
	if n.ExpiresAt != nil && !n.ExpiresAt.After(today) {
		return false
	}
	if len(n.TargetSectors) == 0 {
		return true
	}
	for _, sector := range n.TargetSectors {
		if viewer.Sector != "" && strings.EqualFold(sector, viewer.Sector) {
			return true
		}
		if viewer.ITStaff && strings.EqualFold(sector, SectorIT) {
			return true
		}
	}
	return false
}
