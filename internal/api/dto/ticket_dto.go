package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Category    string               `json:"category"`
	Service     string               `json:"service"`
	Team        domain.Team          `json:"team"`
	Urgency     domain.TicketUrgency `json:"urgency"`
}

// RespondCloseRequest payload.
type RespondCloseRequest struct {
	Accept *bool `json:"accept"`
}

// RateRequest payload.
type RateRequest struct {
	Stars    int    `json:"stars"`
	Feedback string `json:"feedback"`
}

// MoveKanbanRequest payload.
type MoveKanbanRequest struct {
	KanbanStatus domain.KanbanStatus `json:"kanban_status"`
}

// AssignRequest payload. A null assignee clears the assignment.
type AssignRequest struct {
	AssigneeID *string `json:"assignee_id"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Content string `json:"content"`
}

// AttachmentRequest describes attachment input.
type AttachmentRequest struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// TicketSummary response.
type TicketSummary struct {
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
	AssigneeID   *string              `json:"assignee_id"`
	Rating       *int                 `json:"rating"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description string                  `json:"description"`
	Feedback    *string                 `json:"feedback"`
	ClosedAt    *time.Time              `json:"closed_at"`
	Messages    []TicketMessageResponse `json:"messages"`
	Attachments []AttachmentResponse    `json:"attachments"`
}

// TicketMessageResponse represents thread message.
type TicketMessageResponse struct {
	ID        string             `json:"id"`
	Role      domain.MessageRole `json:"role"`
	AuthorID  string             `json:"author_id"`
	Content   string             `json:"content"`
	CreatedAt time.Time          `json:"created_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID         string    `json:"id"`
	UploaderID string    `json:"uploader_id"`
	StorageKey string    `json:"storage_key"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID          string                  `json:"id"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	ChangedByID string                  `json:"changed_by_id"`
	OldValue    map[string]any          `json:"old_value"`
	NewValue    map[string]any          `json:"new_value"`
	CreatedAt   time.Time               `json:"created_at"`
}

// NewTicketSummary maps a ticket.
func NewTicketSummary(ticket *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:           ticket.ID,
		Number:       ticket.Number,
		Title:        ticket.Title,
		Category:     ticket.Category,
		Service:      ticket.Service,
		Team:         ticket.Team,
		Urgency:      ticket.Urgency,
		Status:       ticket.Status,
		KanbanStatus: ticket.KanbanStatus,
		RequesterID:  ticket.RequesterID,
		AssigneeID:   ticket.AssigneeID,
		Rating:       ticket.Rating,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
	}
}

// NewTicketDetail maps a ticket with its thread.
func NewTicketDetail(ticket *domain.Ticket, messages []domain.TicketMessage, attachments []domain.Attachment) TicketDetailResponse {
	msgs := make([]TicketMessageResponse, 0, len(messages))
	for i := range messages {
		msgs = append(msgs, NewTicketMessage(&messages[i]))
	}
	atts := make([]AttachmentResponse, 0, len(attachments))
	for i := range attachments {
		atts = append(atts, NewAttachment(&attachments[i]))
	}
	return TicketDetailResponse{
		TicketSummary: NewTicketSummary(ticket),
		Description:   ticket.Description,
		Feedback:      ticket.Feedback,
		ClosedAt:      ticket.ClosedAt,
		Messages:      msgs,
		Attachments:   atts,
	}
}

// NewTicketMessage maps a message.
func NewTicketMessage(msg *domain.TicketMessage) TicketMessageResponse {
	return TicketMessageResponse{
		ID:        msg.ID,
		Role:      msg.Role,
		AuthorID:  msg.AuthorID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

// NewAttachment maps attachment metadata.
func NewAttachment(att *domain.Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:         att.ID,
		UploaderID: att.UploaderID,
		StorageKey: att.StorageKey,
		FileName:   att.FileName,
		MimeType:   att.MimeType,
		SizeBytes:  att.SizeBytes,
		CreatedAt:  att.CreatedAt,
	}
}

// NewHistory maps audit entries.
func NewHistory(entries []domain.TicketHistory) []TicketHistoryResponse {
	resp := make([]TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, TicketHistoryResponse{
			ID:          entry.ID,
			ChangeType:  entry.ChangeType,
			ChangedByID: entry.ChangedByID,
			OldValue:    entry.OldValue,
			NewValue:    entry.NewValue,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return resp
}
