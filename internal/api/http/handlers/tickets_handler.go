package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket lifecycle.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

func actorOf(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func bindBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func ticketResponse(c *fiber.Ctx, status int, ticket *domain.Ticket) error {
	return c.Status(status).JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), actor, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Service:     req.Service,
		Team:        req.Team,
		Urgency:     req.Urgency,
	})
	if err != nil {
		return err
	}
	return ticketResponse(c, http.StatusCreated, ticket)
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListTickets(c.UserContext(), actor, parseTicketFilter(c, actor))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	detail, err := h.service.GetTicket(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(detail.Ticket, detail.Messages, detail.Attachments)})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistory(entries)})
}

// AddMessage POST /tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	msg, err := h.service.AddMessage(c.UserContext(), c.Params("id"), actor, req.Content)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketMessage(msg)})
}

// AddAttachment POST /tickets/:id/attachments.
func (h *TicketsHandler) AddAttachment(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.AttachmentRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	att, err := h.service.AddAttachment(c.UserContext(), c.Params("id"), actor, service.AttachmentInput{
		StorageKey: req.StorageKey,
		FileName:   req.FileName,
		MimeType:   req.MimeType,
		SizeBytes:  req.SizeBytes,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewAttachment(att)})
}

// RequestClose POST /tickets/:id/close-request.
func (h *TicketsHandler) RequestClose(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.RequestClose(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return ticketResponse(c, http.StatusOK, ticket)
}

// RespondClose POST /tickets/:id/close-response.
func (h *TicketsHandler) RespondClose(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.RespondCloseRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	if req.Accept == nil {
		return apperrors.NewValidationError("accept required", nil)
	}
	ticket, err := h.service.RespondClose(c.UserContext(), c.Params("id"), actor, *req.Accept)
	if err != nil {
		return err
	}
	return ticketResponse(c, http.StatusOK, ticket)
}

// Rate POST /tickets/:id/rating.
func (h *TicketsHandler) Rate(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.RateRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.Rate(c.UserContext(), c.Params("id"), actor, req.Stars, req.Feedback)
	if err != nil {
		return err
	}
	return ticketResponse(c, http.StatusOK, ticket)
}

// MoveKanban PATCH /tickets/:id/kanban.
func (h *TicketsHandler) MoveKanban(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.MoveKanbanRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.MoveKanban(c.UserContext(), c.Params("id"), actor, req.KanbanStatus)
	if err != nil {
		return err
	}
	return ticketResponse(c, http.StatusOK, ticket)
}

// Assign PATCH /tickets/:id/assignee.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.Reassign(c.UserContext(), c.Params("id"), actor, req.AssigneeID)
	if err != nil {
		return err
	}
	return ticketResponse(c, http.StatusOK, ticket)
}

// CloseTicket POST /tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.CloseTicket(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return ticketResponse(c, http.StatusOK, ticket)
}

func parseTicketFilter(c *fiber.Ctx, actor domain.Actor) repository.TicketFilter {
	filter := repository.TicketFilter{}
	for _, part := range splitQuery(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(part)))
	}
	for _, part := range splitQuery(c.Query("kanban")) {
		filter.KanbanStatuses = append(filter.KanbanStatuses, domain.KanbanStatus(strings.ToLower(part)))
	}
	if team := strings.TrimSpace(c.Query("team")); team != "" {
		t := domain.Team(strings.ToLower(team))
		filter.Team = &t
	}
	if assignee := strings.TrimSpace(c.Query("assignee")); assignee != "" {
		if assignee == "me" {
			assignee = actor.ID
		}
		filter.AssigneeID = &assignee
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		filter.SearchTerm = &q
	}
	filter.ByNumber = strings.EqualFold(c.Query("sort"), "number")
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func splitQuery(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
