package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

type ticketFixture struct {
	backend  *repository.MemoryBackend
	store    repository.Store
	service  *TicketService
	mu       sync.Mutex
	events   []events.Event
	agent    domain.Actor
	customer domain.Actor
}

func newTicketFixture(t *testing.T) *ticketFixture {
	t.Helper()
	backend := repository.NewMemoryBackend()
	store := backend.Store()
	f := &ticketFixture{backend: backend, store: store}

	dispatcher := events.NewInMemoryDispatcher()
	for _, eventType := range events.AllEventTypes {
		dispatcher.Subscribe(eventType, func(_ context.Context, e events.Event) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.events = append(f.events, e)
			return nil
		})
	}

	agent := seedAgent(t, store, specialistEmail, domain.RoleSupport, true)
	f.agent = domain.Actor{ID: agent.ID, Role: domain.RoleSupport, Team: domain.TeamSistemas}
	f.customer = domain.Actor{ID: "requester-1", Role: domain.RoleUser, Sector: "Financeiro"}
	f.service = NewTicketService(TicketDependencies{
		Store:      store,
		Rules:      NewAssignmentRules(store.Users, leadEmail, specialistEmail, zap.NewNop()),
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
	})
	return f
}

func (f *ticketFixture) eventTypes() []events.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]events.EventType, len(f.events))
	for i, e := range f.events {
		types[i] = e.Type
	}
	return types
}

func (f *ticketFixture) create(t *testing.T, input TicketCreateInput) *domain.Ticket {
	t.Helper()
	if input.Title == "" {
		input.Title = "Printer jam"
	}
	ticket, err := f.service.CreateTicket(context.Background(), f.customer, input)
	require.NoError(t, err)
	return ticket
}

func (f *ticketFixture) resolve(t *testing.T, ticketID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.service.RequestClose(ctx, ticketID, f.agent)
	require.NoError(t, err)
	_, err = f.service.RespondClose(ctx, ticketID, f.customer, true)
	require.NoError(t, err)
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr), "expected DomainError, got %v", err)
	assert.Equal(t, code, domainErr.Code)
}

func TestCreateTicketAutoAssignsAndNotifies(t *testing.T) {
	f := newTicketFixture(t)
	f.backend.SeedNumber(41)

	ticket := f.create(t, TicketCreateInput{
		Title:    "Cálculo incorreto",
		Service:  "Ecalc",
		Team:     "SUPORTE",
		Urgency:  domain.UrgencyCritical,
		Category: "Sistemas",
	})

	assert.Equal(t, "000042", ticket.Number)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.KanbanInbox, ticket.KanbanStatus)
	assert.Equal(t, domain.TeamSuporte, ticket.Team)
	require.NotNil(t, ticket.AssigneeID)
	assert.Equal(t, f.agent.ID, *ticket.AssigneeID)
	assert.Equal(t, []events.EventType{events.EventTicketCreated}, f.eventTypes())
}

func TestCreateTicketValidation(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateTicket(ctx, f.customer, TicketCreateInput{Title: "  "})
	requireCode(t, err, "VALIDATION_FAILED")

	_, err = f.service.CreateTicket(ctx, f.customer, TicketCreateInput{Title: "x", Urgency: "urgent"})
	requireCode(t, err, "VALIDATION_FAILED")

	_, err = f.service.CreateTicket(ctx, f.customer, TicketCreateInput{Title: "x", Team: "marketing"})
	requireCode(t, err, "VALIDATION_FAILED")

	ticket := f.create(t, TicketCreateInput{Title: "default urgency"})
	assert.Equal(t, domain.UrgencyMedium, ticket.Urgency)
	assert.Nil(t, ticket.AssigneeID)
}

func TestConcurrentCreatesGetDistinctNumbers(t *testing.T) {
	f := newTicketFixture(t)
	const n = 32
	numbers := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, err := f.service.CreateTicket(context.Background(), f.customer, TicketCreateInput{Title: "parallel"})
			if assert.NoError(t, err) {
				numbers[i] = ticket.Number
			}
		}(i)
	}
	wg.Wait()

	sort.Strings(numbers)
	for i, number := range numbers {
		assert.Equal(t, domain.FormatTicketNumber(int64(i+1)), number)
	}
}

func TestCloseHandshake(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, TicketCreateInput{})

	_, err := f.service.RequestClose(ctx, ticket.ID, f.customer)
	requireCode(t, err, "FORBIDDEN")

	pending, err := f.service.RequestClose(ctx, ticket.ID, f.agent)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPendingApproval, pending.Status)

	_, err = f.service.RequestClose(ctx, ticket.ID, f.agent)
	requireCode(t, err, "INVALID_TRANSITION")

	_, err = f.service.RespondClose(ctx, ticket.ID, f.agent, true)
	requireCode(t, err, "FORBIDDEN")

	reopened, err := f.service.RespondClose(ctx, ticket.ID, f.customer, false)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, reopened.Status)

	_, err = f.service.RespondClose(ctx, ticket.ID, f.customer, true)
	requireCode(t, err, "INVALID_TRANSITION")

	f.resolve(t, ticket.ID)
	detail, err := f.service.GetTicket(ctx, ticket.ID, f.customer)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, detail.Ticket.Status)

	assert.Equal(t, []events.EventType{
		events.EventTicketCreated,
		events.EventStatusChanged,
		events.EventStatusChanged,
		events.EventStatusChanged,
		events.EventTicketClosed,
	}, f.eventTypes())

	history, err := f.service.History(ctx, ticket.ID, f.agent)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestRateOnceAfterResolution(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, TicketCreateInput{})

	_, err := f.service.Rate(ctx, ticket.ID, f.customer, 5, "")
	requireCode(t, err, "INVALID_TRANSITION")

	f.resolve(t, ticket.ID)

	_, err = f.service.Rate(ctx, ticket.ID, f.customer, 0, "")
	requireCode(t, err, "VALIDATION_FAILED")

	_, err = f.service.Rate(ctx, ticket.ID, f.agent, 5, "")
	requireCode(t, err, "FORBIDDEN")

	rated, err := f.service.Rate(ctx, ticket.ID, f.customer, 4, " great ")
	require.NoError(t, err)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 4, *rated.Rating)
	assert.Equal(t, "great", *rated.Feedback)

	_, err = f.service.Rate(ctx, ticket.ID, f.customer, 1, "changed my mind")
	requireCode(t, err, "ALREADY_RATED")
	assert.ErrorIs(t, err, domain.ErrAlreadyRated)

	stored, err := f.store.Tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, *stored.Rating)
}

func TestAdminCloseRequiresResolved(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, TicketCreateInput{})

	_, err := f.service.CloseTicket(ctx, ticket.ID, f.agent)
	requireCode(t, err, "INVALID_TRANSITION")

	f.resolve(t, ticket.ID)
	closed, err := f.service.CloseTicket(ctx, ticket.ID, f.agent)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)

	rated, err := f.service.Rate(ctx, ticket.ID, f.customer, 5, "")
	require.NoError(t, err)
	assert.Equal(t, 5, *rated.Rating)
}

func TestMoveKanbanLeavesStatusAlone(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, TicketCreateInput{})

	_, err := f.service.MoveKanban(ctx, ticket.ID, f.agent, "archived")
	requireCode(t, err, "VALIDATION_FAILED")

	_, err = f.service.MoveKanban(ctx, ticket.ID, f.customer, domain.KanbanDone)
	requireCode(t, err, "FORBIDDEN")

	moved, err := f.service.MoveKanban(ctx, ticket.ID, f.agent, domain.KanbanDone)
	require.NoError(t, err)
	assert.Equal(t, domain.KanbanDone, moved.KanbanStatus)
	assert.Equal(t, domain.TicketStatusOpen, moved.Status)

	moved, err = f.service.MoveKanban(ctx, ticket.ID, f.agent, domain.KanbanInbox)
	require.NoError(t, err)
	assert.Equal(t, domain.KanbanInbox, moved.KanbanStatus)
}

func TestMessagesFollowTicketState(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, TicketCreateInput{})

	msg, err := f.service.AddMessage(ctx, ticket.ID, f.customer, "still broken")
	require.NoError(t, err)
	assert.Equal(t, domain.MessageRoleUser, msg.Role)
	assert.NotEmpty(t, msg.ID)

	reply, err := f.service.AddMessage(ctx, ticket.ID, f.agent, "on it")
	require.NoError(t, err)
	assert.Equal(t, domain.MessageRoleSupport, reply.Role)

	stranger := domain.Actor{ID: "someone-else", Role: domain.RoleUser}
	_, err = f.service.AddMessage(ctx, ticket.ID, stranger, "hi")
	requireCode(t, err, "FORBIDDEN")

	_, err = f.service.AddAttachment(ctx, ticket.ID, f.customer, AttachmentInput{StorageKey: "k/1", FileName: "log.txt", SizeBytes: 12})
	require.NoError(t, err)

	f.resolve(t, ticket.ID)
	_, err = f.service.AddMessage(ctx, ticket.ID, f.customer, "thanks")
	requireCode(t, err, "INVALID_TRANSITION")

	detail, err := f.service.GetTicket(ctx, ticket.ID, f.agent)
	require.NoError(t, err)
	assert.Len(t, detail.Messages, 2)
	assert.Len(t, detail.Attachments, 1)
}

func TestStoreFailureLeavesTicketUnchanged(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, TicketCreateInput{})

	f.backend.FailWrites(errors.New("disk full"))
	_, err := f.service.RequestClose(ctx, ticket.ID, f.agent)
	requireCode(t, err, "PERSISTENCE_ERROR")
	assert.ErrorIs(t, err, domain.ErrPersistence)
	f.backend.FailWrites(nil)

	stored, err := f.store.Tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)
	assert.Equal(t, []events.EventType{events.EventTicketCreated}, f.eventTypes())
}

func TestListScopesRequesters(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	f.create(t, TicketCreateInput{Title: "mine"})
	_, err := f.service.CreateTicket(ctx, domain.Actor{ID: "other", Role: domain.RoleUser}, TicketCreateInput{Title: "theirs"})
	require.NoError(t, err)

	mine, err := f.service.ListTickets(ctx, f.customer, repository.TicketFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "mine", mine[0].Title)

	all, err := f.service.ListTickets(ctx, f.agent, repository.TicketFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.service.GetTicket(ctx, "missing", f.agent)
	requireCode(t, err, "NOT_FOUND")
}
