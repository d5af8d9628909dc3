package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketService owns the ticket lifecycle. It is the only writer of Status and KanbanStatus.
type TicketService struct {
	tickets     repository.TicketRepository
	messages    repository.TicketMessageRepository
	attachments repository.AttachmentRepository
	history     repository.TicketHistoryRepository
	rules       *AssignmentRules
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store      repository.Store
	Rules      *AssignmentRules
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    string
	Service     string
	Team        domain.Team
	Urgency     domain.TicketUrgency
}

// AttachmentInput defines attachment metadata.
type AttachmentInput struct {
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
}

// TicketDetail is a ticket with its conversation and files.
type TicketDetail struct {
	Ticket      *domain.Ticket
	Messages    []domain.TicketMessage
	Attachments []domain.Attachment
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:     deps.Store.Tickets,
		messages:    deps.Store.Messages,
		attachments: deps.Store.Attachments,
		history:     deps.Store.History,
		rules:       deps.Rules,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateTicket files a new ticket for the acting user. The initial assignee comes from
// the assignment rules; the number is allocated by the store.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if actor.ID == "" {
		return nil, apperrors.NewUnauthorized("actor required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title required", nil)
	}
	urgency := domain.TicketUrgency(strings.ToLower(strings.TrimSpace(string(input.Urgency))))
	if urgency == "" {
		urgency = domain.UrgencyMedium
	}
	if !urgency.Valid() {
		return nil, apperrors.NewValidationError("invalid urgency", map[string]any{"urgency": input.Urgency})
	}
	team := domain.Team(strings.ToLower(strings.TrimSpace(string(input.Team))))
	if !team.Valid() {
		return nil, apperrors.NewValidationError("invalid team", map[string]any{"team": input.Team})
	}

	ticket := &domain.Ticket{
		Title:        title,
		Description:  strings.TrimSpace(input.Description),
		Category:     strings.TrimSpace(input.Category),
		Service:      strings.TrimSpace(input.Service),
		Team:         team,
		Urgency:      urgency,
		Status:       domain.TicketStatusOpen,
		KanbanStatus: domain.KanbanInbox,
		RequesterID:  actor.ID,
	}
	ticket.AssigneeID = s.rules.Assign(ctx, AssignmentAttrs{
		Team:     ticket.Team,
		Category: ticket.Category,
		Service:  ticket.Service,
	})

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("number", ticket.Number),
		zap.Bool("auto_assigned", ticket.AssigneeID != nil))
	s.publish(ctx, events.EventTicketCreated, actor, ticket, events.Change{Operation: "create", NewStatus: ticket.Status})
	return ticket, nil
}

// RequestClose proposes resolution. Only support staff may call it and only while Open.
func (s *TicketService) RequestClose(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	if !actor.IsSupport() {
		return nil, apperrors.NewForbidden("only support staff may request closure")
	}
	var old domain.TicketStatus
	ticket, err := s.mutate(ctx, ticketID, func(t *domain.Ticket) (*repository.Mutation, error) {
		if t.Status != domain.TicketStatusOpen {
			return nil, apperrors.NewInvalidTransition(t.Status, "request close")
		}
		old = t.Status
		t.Status = domain.TicketStatusPendingApproval
		return &repository.Mutation{History: []domain.TicketHistory{statusEntry(t.ID, actor.ID, old, t.Status)}}, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventStatusChanged, actor, ticket, events.Change{
		Operation: "request_close", OldStatus: old, NewStatus: ticket.Status,
	})
	return ticket, nil
}

// RespondClose lets the requester accept (Resolved) or reject (back to Open) a close request.
func (s *TicketService) RespondClose(ctx context.Context, ticketID string, actor domain.Actor, accept bool) (*domain.Ticket, error) {
	var old domain.TicketStatus
	ticket, err := s.mutate(ctx, ticketID, func(t *domain.Ticket) (*repository.Mutation, error) {
		if t.RequesterID != actor.ID {
			return nil, apperrors.NewForbidden("only the requester may respond to a close request")
		}
		if t.Status != domain.TicketStatusPendingApproval {
			return nil, apperrors.NewInvalidTransition(t.Status, "respond close")
		}
		old = t.Status
		if accept {
			t.Status = domain.TicketStatusResolved
		} else {
			t.Status = domain.TicketStatusOpen
		}
		return &repository.Mutation{History: []domain.TicketHistory{statusEntry(t.ID, actor.ID, old, t.Status)}}, nil
	})
	if err != nil {
		return nil, err
	}
	eventType, operation := events.EventStatusChanged, "reject_close"
	if accept {
		eventType, operation = events.EventTicketClosed, "accept_close"
	}
	s.publish(ctx, eventType, actor, ticket, events.Change{Operation: operation, OldStatus: old, NewStatus: ticket.Status})
	return ticket, nil
}

// Rate stores the requester's one-time rating on a resolved or closed ticket.
func (s *TicketService) Rate(ctx context.Context, ticketID string, actor domain.Actor, stars int, feedback string) (*domain.Ticket, error) {
	if stars < 1 || stars > 5 {
		return nil, apperrors.NewValidationError("stars must be between 1 and 5", map[string]any{"stars": stars})
	}
	feedback = strings.TrimSpace(feedback)
	ticket, err := s.mutate(ctx, ticketID, func(t *domain.Ticket) (*repository.Mutation, error) {
		if t.RequesterID != actor.ID {
			return nil, apperrors.NewForbidden("only the requester may rate a ticket")
		}
		if !t.Status.IsFinal() {
			return nil, apperrors.NewInvalidTransition(t.Status, "rate")
		}
		if t.Rating != nil {
			return nil, apperrors.NewAlreadyRated()
		}
		t.Rating = &stars
		t.Feedback = &feedback
		return &repository.Mutation{History: []domain.TicketHistory{{
			TicketID:    t.ID,
			ChangedByID: actor.ID,
			ChangeType:  domain.ChangeTypeRating,
			NewValue:    map[string]any{"rating": stars, "feedback": feedback},
		}}}, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventTicketUpdated, actor, ticket, events.Change{Operation: "rate"})
	return ticket, nil
}

// MoveKanban moves the ticket to another display column. Columns move freely and never
// touch Status.
func (s *TicketService) MoveKanban(ctx context.Context, ticketID string, actor domain.Actor, column domain.KanbanStatus) (*domain.Ticket, error) {
	if !actor.IsSupport() {
		return nil, apperrors.NewForbidden("only support staff may move kanban columns")
	}
	if !column.Valid() {
		return nil, apperrors.NewValidationError("invalid kanban column", map[string]any{"kanban_status": column})
	}
	ticket, err := s.mutate(ctx, ticketID, func(t *domain.Ticket) (*repository.Mutation, error) {
		old := t.KanbanStatus
		t.KanbanStatus = column
		return &repository.Mutation{History: []domain.TicketHistory{{
			TicketID:    t.ID,
			ChangedByID: actor.ID,
			ChangeType:  domain.ChangeTypeKanban,
			OldValue:    map[string]any{"kanban_status": old},
			NewValue:    map[string]any{"kanban_status": column},
		}}}, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventTicketUpdated, actor, ticket, events.Change{Operation: "move_kanban"})
	return ticket, nil
}

// CloseTicket is the administrative closure of a resolved ticket.
func (s *TicketService) CloseTicket(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	if !actor.IsSupport() {
		return nil, apperrors.NewForbidden("only support staff may close tickets")
	}
	var old domain.TicketStatus
	ticket, err := s.mutate(ctx, ticketID, func(t *domain.Ticket) (*repository.Mutation, error) {
		if t.Status != domain.TicketStatusResolved {
			return nil, apperrors.NewInvalidTransition(t.Status, "close")
		}
		old = t.Status
		now := s.now().UTC()
		t.Status = domain.TicketStatusClosed
		t.ClosedAt = &now
		return &repository.Mutation{History: []domain.TicketHistory{statusEntry(t.ID, actor.ID, old, t.Status)}}, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventTicketClosed, actor, ticket, events.Change{Operation: "close", OldStatus: old, NewStatus: ticket.Status})
	return ticket, nil
}

// Reassign changes the responsible agent of a ticket that is still being worked.
func (s *TicketService) Reassign(ctx context.Context, ticketID string, actor domain.Actor, assigneeID *string) (*domain.Ticket, error) {
	if !actor.IsSupport() {
		return nil, apperrors.NewForbidden("only support staff may assign tickets")
	}
	ticket, err := s.mutate(ctx, ticketID, func(t *domain.Ticket) (*repository.Mutation, error) {
		if t.Status.IsFinal() {
			return nil, apperrors.NewInvalidTransition(t.Status, "assign")
		}
		old := t.AssigneeID
		t.AssigneeID = assigneeID
		return &repository.Mutation{History: []domain.TicketHistory{{
			TicketID:    t.ID,
			ChangedByID: actor.ID,
			ChangeType:  domain.ChangeTypeAssignee,
			OldValue:    map[string]any{"assignee_id": old},
			NewValue:    map[string]any{"assignee_id": assigneeID},
		}}}, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventTicketUpdated, actor, ticket, events.Change{Operation: "assign"})
	return ticket, nil
}

// AddMessage appends a chat entry. Messaging is closed once the ticket is resolved or closed.
func (s *TicketService) AddMessage(ctx context.Context, ticketID string, actor domain.Actor, content string) (*domain.TicketMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationError("content required", nil)
	}
	ticket, mutation, err := s.mutateWithRows(ctx, ticketID, func(t *domain.Ticket) (*repository.Mutation, error) {
		if err := s.checkParticipant(t, actor); err != nil {
			return nil, err
		}
		if t.Status.IsFinal() {
			return nil, apperrors.NewInvalidTransition(t.Status, "add message")
		}
		return &repository.Mutation{Messages: []domain.TicketMessage{{
			TicketID: t.ID,
			Role:     messageRole(t, actor),
			AuthorID: actor.ID,
			Content:  content,
		}}}, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventTicketUpdated, actor, ticket, events.Change{Operation: "add_message"})
	msg := mutation.Messages[0]
	return &msg, nil
}

// AddAttachment records attachment metadata under the same rules as messages.
func (s *TicketService) AddAttachment(ctx context.Context, ticketID string, actor domain.Actor, input AttachmentInput) (*domain.Attachment, error) {
	if strings.TrimSpace(input.StorageKey) == "" || strings.TrimSpace(input.FileName) == "" {
		return nil, apperrors.NewValidationError("storage_key and file_name required", nil)
	}
	ticket, mutation, err := s.mutateWithRows(ctx, ticketID, func(t *domain.Ticket) (*repository.Mutation, error) {
		if err := s.checkParticipant(t, actor); err != nil {
			return nil, err
		}
		if t.Status.IsFinal() {
			return nil, apperrors.NewInvalidTransition(t.Status, "add attachment")
		}
		return &repository.Mutation{Attachments: []domain.Attachment{{
			TicketID:   t.ID,
			UploaderID: actor.ID,
			StorageKey: strings.TrimSpace(input.StorageKey),
			FileName:   strings.TrimSpace(input.FileName),
			MimeType:   input.MimeType,
			SizeBytes:  input.SizeBytes,
		}}}, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventTicketUpdated, actor, ticket, events.Change{Operation: "add_attachment"})
	att := mutation.Attachments[0]
	return &att, nil
}

// GetTicket returns a ticket with its conversation if the actor may see it.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string, actor domain.Actor) (*TicketDetail, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, s.storeError(err, ticketID)
	}
	if err := s.checkParticipant(ticket, actor); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	atts, err := s.attachments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	return &TicketDetail{Ticket: ticket, Messages: msgs, Attachments: atts}, nil
}

// ListTickets lists tickets visible to the actor. Requesters only see their own.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Actor, filter repository.TicketFilter) ([]domain.Ticket, error) {
	if !actor.IsSupport() {
		filter.RequesterID = &actor.ID
	}
	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	return tickets, nil
}

// History returns the audit trail for support staff.
func (s *TicketService) History(ctx context.Context, ticketID string, actor domain.Actor) ([]domain.TicketHistory, error) {
	if !actor.IsSupport() {
		return nil, apperrors.NewForbidden("only support staff may read history")
	}
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		return nil, s.storeError(err, ticketID)
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	return entries, nil
}

func (s *TicketService) checkParticipant(t *domain.Ticket, actor domain.Actor) error {
	if actor.IsSupport() || t.RequesterID == actor.ID {
		return nil
	}
	return apperrors.NewForbidden("access denied")
}

func messageRole(t *domain.Ticket, actor domain.Actor) domain.MessageRole {
	if actor.ID == t.RequesterID {
		return domain.MessageRoleUser
	}
	return domain.MessageRoleSupport
}

func (s *TicketService) mutate(ctx context.Context, ticketID string, fn repository.MutateFunc) (*domain.Ticket, error) {
	ticket, _, err := s.mutateWithRows(ctx, ticketID, fn)
	return ticket, err
}

func (s *TicketService) mutateWithRows(ctx context.Context, ticketID string, fn repository.MutateFunc) (*domain.Ticket, *repository.Mutation, error) {
	ticket, mutation, err := s.tickets.Mutate(ctx, ticketID, fn)
	if err != nil {
		return nil, nil, s.storeError(err, ticketID)
	}
	return ticket, mutation, nil
}

// storeError passes rule violations through untouched and classifies store failures.
func (s *TicketService) storeError(err error, ticketID string) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, domain.ErrNotFound) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	s.logger.Error("ticket store failure", zap.String("ticket_id", ticketID), zap.Error(err))
	return apperrors.NewPersistenceError(err)
}

func statusEntry(ticketID, actorID string, old, next domain.TicketStatus) domain.TicketHistory {
	return domain.TicketHistory{
		TicketID:    ticketID,
		ChangedByID: actorID,
		ChangeType:  domain.ChangeTypeStatus,
		OldValue:    map[string]any{"status": old},
		NewValue:    map[string]any{"status": next},
	}
}

// publish hands a committed change to the event bus. Bus errors are logged only.
func (s *TicketService) publish(ctx context.Context, eventType events.EventType, actor domain.Actor, ticket *domain.Ticket, change events.Change) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Actor:     events.Actor{ID: actor.ID, Role: actor.Role},
		Ticket:    events.SnapshotOf(ticket),
		Change:    change,
		Timestamp: s.now().UTC(),
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
