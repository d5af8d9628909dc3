package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateNoticeRequest payload. Dates are YYYY-MM-DD.
type CreateNoticeRequest struct {
	Title         string                `json:"title"`
	Body          string                `json:"body"`
	Type          domain.NoticeType     `json:"type"`
	Priority      domain.NoticePriority `json:"priority"`
	TargetSectors []string              `json:"target_sectors"`
	ScheduledFor  *domain.Date          `json:"scheduled_for"`
	ExpiresAt     *domain.Date          `json:"expires_at"`
}

// NoticeResponse is one notice-board entry.
type NoticeResponse struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	Body          string                `json:"body"`
	Type          domain.NoticeType     `json:"type"`
	Priority      domain.NoticePriority `json:"priority"`
	TargetSectors []string              `json:"target_sectors"`
	ScheduledFor  *domain.Date          `json:"scheduled_for"`
	ExpiresAt     *domain.Date          `json:"expires_at"`
	Active        bool                  `json:"active"`
	CreatedAt     time.Time             `json:"created_at"`
}

// NewNotice maps a notice.
func NewNotice(n *domain.Notice) NoticeResponse {
	sectors := n.TargetSectors
	if sectors == nil {
		sectors = []string{}
	}
	return NoticeResponse{
		ID:            n.ID,
		Title:         n.Title,
		Body:          n.Body,
		Type:          n.Type,
		Priority:      n.Priority,
		TargetSectors: sectors,
		ScheduledFor:  n.ScheduledFor,
		ExpiresAt:     n.ExpiresAt,
		Active:        n.Active,
		CreatedAt:     n.CreatedAt,
	}
}
