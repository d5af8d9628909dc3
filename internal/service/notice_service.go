package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// NoticeService manages the notice board.
type NoticeService struct {
	notices repository.NoticeRepository
	logger  *zap.Logger
	now     func() time.Time
}

// NoticeCreateInput describes a new announcement.
type NoticeCreateInput struct {
	Title         string
	Body          string
	Type          domain.NoticeType
	Priority      domain.NoticePriority
	TargetSectors []string
	ScheduledFor  *domain.Date
	ExpiresAt     *domain.Date
}

// NewNoticeService constructs the service.
func NewNoticeService(notices repository.NoticeRepository, logger *zap.Logger) *NoticeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoticeService{notices: notices, logger: logger, now: time.Now}
}

// Create publishes a notice. Only support staff may announce.
func (s *NoticeService) Create(ctx context.Context, actor domain.Actor, input NoticeCreateInput) (*domain.Notice, error) {
	if !actor.IsSupport() {
		return nil, apperrors.NewForbidden("only support staff may publish notices")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title required", nil)
	}
	if input.ScheduledFor != nil && input.ExpiresAt != nil && !input.ExpiresAt.After(*input.ScheduledFor) {
		return nil, apperrors.NewValidationError("expires_at must be after scheduled_for", nil)
	}
	noticeType := input.Type
	if noticeType == "" {
		noticeType = domain.NoticeTypeInfo
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.NoticePriorityNormal
	}

	var sectors []string
	for _, sector := range input.TargetSectors {
		if sector = strings.TrimSpace(sector); sector != "" {
			sectors = append(sectors, sector)
		}
	}

	notice := &domain.Notice{
		Title:         title,
		Body:          strings.TrimSpace(input.Body),
		Type:          noticeType,
		Priority:      priority,
		TargetSectors: sectors,
		ScheduledFor:  input.ScheduledFor,
		ExpiresAt:     input.ExpiresAt,
		Active:        true,
		AuthorID:      actor.ID,
	}
	if err := s.notices.Create(ctx, notice); err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	s.logger.Info("notice published", zap.String("notice_id", notice.ID), zap.Strings("sectors", sectors))
	return notice, nil
}

// ListVisible returns the notices the actor should see today.
func (s *NoticeService) ListVisible(ctx context.Context, actor domain.Actor) ([]domain.Notice, error) {
	active, err := s.notices.ListActive(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	viewer := domain.Viewer{Sector: actor.Sector, ITStaff: actor.IsSupport()}
	today := domain.DateOf(s.now())
	visible := make([]domain.Notice, 0, len(active))
	for i := range active {
		if active[i].VisibleTo(viewer, today) {
			visible = append(visible, active[i])
		}
	}
	return visible, nil
}

// Deactivate hides a notice permanently.
func (s *NoticeService) Deactivate(ctx context.Context, actor domain.Actor, id string) (*domain.Notice, error) {
	if !actor.IsSupport() {
		return nil, apperrors.NewForbidden("only support staff may retire notices")
	}
	notice, err := s.notices.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NewNotFound("notice", map[string]any{"notice_id": id})
		}
		return nil, apperrors.NewPersistenceError(err)
	}
	if !notice.Active {
		return notice, nil
	}
	notice.Active = false
	if err := s.notices.Update(ctx, notice); err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	return notice, nil
}
