package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// MemoryBackend keeps all entities in process. One mutex guards every write, so number
// allocation and multi-entity mutations are serialized the same way the Postgres store
// serializes them with locks.
type MemoryBackend struct {
	mu          sync.Mutex
	seq         int64
	tickets     map[string]*domain.Ticket
	messages    map[string][]domain.TicketMessage
	attachments map[string][]domain.Attachment
	history     map[string][]domain.TicketHistory
	users       map[string]*domain.User
	notices     map[string]*domain.Notice
	writeErr    error
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		tickets:     make(map[string]*domain.Ticket),
		messages:    make(map[string][]domain.TicketMessage),
		attachments: make(map[string][]domain.Attachment),
		history:     make(map[string][]domain.TicketHistory),
		users:       make(map[string]*domain.User),
		notices:     make(map[string]*domain.Notice),
	}
}

// Store exposes the backend through the repository interfaces.
func (b *MemoryBackend) Store() Store {
	return Store{
		Tickets:     memoryTickets{b},
		Messages:    memoryMessages{b},
		Attachments: memoryAttachments{b},
		History:     memoryHistory{b},
		Users:       memoryUsers{b},
		Notices:     memoryNotices{b},
	}
}

// FailWrites makes every subsequent write return err until called with nil.
func (b *MemoryBackend) FailWrites(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeErr = err
}

// SeedNumber sets the last allocated ticket sequence.
func (b *MemoryBackend) SeedNumber(seq int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq = seq
}

type memoryTickets struct{ b *MemoryBackend }

func (m memoryTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	b := m.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	b.seq++
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	ticket.Number = domain.FormatTicketNumber(b.seq)
	now := utcNow()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	b.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (m memoryTickets) Update(_ context.Context, ticket *domain.Ticket) error {
	b := m.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	if _, ok := b.tickets[ticket.ID]; !ok {
		return fmt.Errorf("ticket %s: %w", ticket.ID, domain.ErrNotFound)
	}
	ticket.UpdatedAt = utcNow()
	b.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (m memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	b := m.b
	b.mu.Lock()
	defer b.mu.Unlock()
	ticket, ok := b.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
	}
	return ticket.Clone(), nil
}

func (m memoryTickets) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	b := m.b
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ticket := range b.tickets {
		if ticket.Number == number {
			return ticket.Clone(), nil
		}
	}
	return nil, fmt.Errorf("ticket %s: %w", number, domain.ErrNotFound)
}

func (m memoryTickets) Mutate(_ context.Context, id string, fn MutateFunc) (*domain.Ticket, *Mutation, error) {
	b := m.b
	b.mu.Lock()
	defer b.mu.Unlock()
	stored, ok := b.tickets[id]
	if !ok {
		return nil, nil, fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
	}
	working := stored.Clone()
	mutation, err := fn(working)
	if err != nil {
		return nil, nil, err
	}
	if b.writeErr != nil {
		return nil, nil, b.writeErr
	}
	if mutation == nil {
		mutation = &Mutation{}
	}
	now := utcNow()
	working.UpdatedAt = now
	for i := range mutation.Messages {
		msg := &mutation.Messages[i]
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		msg.CreatedAt = now
		b.messages[id] = append(b.messages[id], *msg)
	}
	for i := range mutation.Attachments {
		att := &mutation.Attachments[i]
		if att.ID == "" {
			att.ID = uuid.NewString()
		}
		att.CreatedAt = now
		b.attachments[id] = append(b.attachments[id], *att)
	}
	for i := range mutation.History {
		entry := &mutation.History[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		entry.CreatedAt = now
		b.history[id] = append(b.history[id], *entry)
	}
	b.tickets[id] = working.Clone()
	return working, mutation, nil
}

func (m memoryTickets) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	b := m.b
	b.mu.Lock()
	all := make([]domain.Ticket, 0, len(b.tickets))
	for _, ticket := range b.tickets {
		if matchesTicket(ticket, filter) {
			all = append(all, *ticket.Clone())
		}
	}
	b.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if filter.ByNumber {
			return all[i].Number < all[j].Number
		}
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].Number > all[j].Number
	})
	limit, offset := pageBounds(filter.Limit, filter.Offset)
	if offset >= len(all) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func matchesTicket(t *domain.Ticket, f TicketFilter) bool {
	if f.RequesterID != nil && t.RequesterID != *f.RequesterID {
		return false
	}
	if f.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *f.AssigneeID) {
		return false
	}
	if f.Team != nil && t.Team != *f.Team {
		return false
	}
	if len(f.Statuses) > 0 && !containsValue(f.Statuses, t.Status) {
		return false
	}
	if len(f.KanbanStatuses) > 0 && !containsValue(f.KanbanStatuses, t.KanbanStatus) {
		return false
	}
	if f.SearchTerm != nil && strings.TrimSpace(*f.SearchTerm) != "" {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if !strings.Contains(strings.ToLower(t.Title), term) && !strings.Contains(strings.ToLower(t.Description), term) {
			return false
		}
	}
	return true
}

func containsValue[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

type memoryMessages struct{ b *MemoryBackend }

func (m memoryMessages) Append(_ context.Context, msg *domain.TicketMessage) error {
	b := m.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = utcNow()
	b.messages[msg.TicketID] = append(b.messages[msg.TicketID], *msg)
	return nil
}

func (m memoryMessages) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketMessage, error) {
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	return append([]domain.TicketMessage{}, m.b.messages[ticketID]...), nil
}

type memoryAttachments struct{ b *MemoryBackend }

func (m memoryAttachments) Append(_ context.Context, attachment *domain.Attachment) error {
	b := m.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	if attachment.ID == "" {
		attachment.ID = uuid.NewString()
	}
	attachment.CreatedAt = utcNow()
	b.attachments[attachment.TicketID] = append(b.attachments[attachment.TicketID], *attachment)
	return nil
}

func (m memoryAttachments) ListByTicket(_ context.Context, ticketID string) ([]domain.Attachment, error) {
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	return append([]domain.Attachment{}, m.b.attachments[ticketID]...), nil
}

type memoryHistory struct{ b *MemoryBackend }

func (m memoryHistory) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	return append([]domain.TicketHistory{}, m.b.history[ticketID]...), nil
}

type memoryUsers struct{ b *MemoryBackend }

func (m memoryUsers) Create(_ context.Context, user *domain.User) error {
	b := m.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = strings.ToLower(user.Email)
	now := utcNow()
	user.CreatedAt, user.UpdatedAt = now, now
	stored := *user
	b.users[user.ID] = &stored
	return nil
}

func (m memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	user, ok := m.b.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	copied := *user
	return &copied, nil
}

func (m memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	for _, user := range m.b.users {
		if strings.EqualFold(user.Email, email) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
}

func (m memoryUsers) List(_ context.Context, filter UserFilter) ([]domain.User, error) {
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	var result []domain.User
	for _, user := range m.b.users {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if filter.Team != nil && user.Team != *filter.Team {
			continue
		}
		if filter.Active != nil && user.Active != *filter.Active {
			continue
		}
		result = append(result, *user)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

type memoryNotices struct{ b *MemoryBackend }

func (m memoryNotices) Create(_ context.Context, notice *domain.Notice) error {
	b := m.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	if notice.ID == "" {
		notice.ID = uuid.NewString()
	}
	now := utcNow()
	notice.CreatedAt, notice.UpdatedAt = now, now
	stored := *notice
	b.notices[notice.ID] = &stored
	return nil
}

func (m memoryNotices) Update(_ context.Context, notice *domain.Notice) error {
	b := m.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	if _, ok := b.notices[notice.ID]; !ok {
		return fmt.Errorf("notice %s: %w", notice.ID, domain.ErrNotFound)
	}
	notice.UpdatedAt = utcNow()
	stored := *notice
	b.notices[notice.ID] = &stored
	return nil
}

func (m memoryNotices) GetByID(_ context.Context, id string) (*domain.Notice, error) {
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	notice, ok := m.b.notices[id]
	if !ok {
		return nil, fmt.Errorf("notice %s: %w", id, domain.ErrNotFound)
	}
	copied := *notice
	return &copied, nil
}

func (m memoryNotices) ListActive(_ context.Context) ([]domain.Notice, error) {
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	var result []domain.Notice
	for _, notice := range m.b.notices {
		if notice.Active {
			result = append(result, *notice)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}
