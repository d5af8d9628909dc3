package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/service"
)

// NoticesHandler serves the notice board.
type NoticesHandler struct {
	service *service.NoticeService
}

// NewNoticesHandler constructs handler.
func NewNoticesHandler(noticeService *service.NoticeService) *NoticesHandler {
	return &NoticesHandler{service: noticeService}
}

// ListNotices GET /notices.
func (h *NoticesHandler) ListNotices(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	notices, err := h.service.ListVisible(c.UserContext(), actor)
	if err != nil {
		return err
	}
	items := make([]dto.NoticeResponse, 0, len(notices))
	for i := range notices {
		items = append(items, dto.NewNotice(&notices[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateNotice POST /notices.
func (h *NoticesHandler) CreateNotice(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.CreateNoticeRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	notice, err := h.service.Create(c.UserContext(), actor, service.NoticeCreateInput{
		Title:         req.Title,
		Body:          req.Body,
		Type:          req.Type,
		Priority:      req.Priority,
		TargetSectors: req.TargetSectors,
		ScheduledFor:  req.ScheduledFor,
		ExpiresAt:     req.ExpiresAt,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewNotice(notice)})
}

// DeactivateNotice DELETE /notices/:id.
func (h *NoticesHandler) DeactivateNotice(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	notice, err := h.service.Deactivate(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewNotice(notice)})
}
