package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func newTicket(requester string) *domain.Ticket {
	return &domain.Ticket{
		Title:        "VPN down",
		RequesterID:  requester,
		Status:       domain.TicketStatusOpen,
		KanbanStatus: domain.KanbanInbox,
		Urgency:      domain.UrgencyHigh,
	}
}

func TestMemoryCreateAllocatesContiguousNumbersUnderConcurrency(t *testing.T) {
	backend := NewMemoryBackend()
	backend.SeedNumber(41)
	store := backend.Store()

	const n = 64
	numbers := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket := newTicket("u1")
			assert.NoError(t, store.Tickets.Create(context.Background(), ticket))
			numbers[i] = ticket.Number
		}(i)
	}
	wg.Wait()

	sort.Strings(numbers)
	for i, number := range numbers {
		assert.Equal(t, domain.FormatTicketNumber(int64(42+i)), number)
	}
}

func TestMemoryMutateAbortWritesNothing(t *testing.T) {
	store := NewMemoryBackend().Store()
	ctx := context.Background()
	ticket := newTicket("u1")
	require.NoError(t, store.Tickets.Create(ctx, ticket))

	boom := errors.New("rejected")
	_, _, err := store.Tickets.Mutate(ctx, ticket.ID, func(t *domain.Ticket) (*Mutation, error) {
		t.Status = domain.TicketStatusResolved
		return &Mutation{Messages: []domain.TicketMessage{{TicketID: t.ID, Content: "x"}}}, boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := store.Tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)

	msgs, err := store.Messages.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryMutateWriteFailureLeavesStateUntouched(t *testing.T) {
	backend := NewMemoryBackend()
	store := backend.Store()
	ctx := context.Background()
	ticket := newTicket("u1")
	require.NoError(t, store.Tickets.Create(ctx, ticket))

	backend.FailWrites(errors.New("disk full"))
	_, _, err := store.Tickets.Mutate(ctx, ticket.ID, func(t *domain.Ticket) (*Mutation, error) {
		t.Status = domain.TicketStatusPendingApproval
		return &Mutation{History: []domain.TicketHistory{{TicketID: t.ID, ChangeType: domain.ChangeTypeStatus}}}, nil
	})
	require.Error(t, err)
	backend.FailWrites(nil)

	stored, err := store.Tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)
	history, err := store.History.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemoryListFiltersAndOrdersByRecency(t *testing.T) {
	store := NewMemoryBackend().Store()
	ctx := context.Background()
	first := newTicket("u1")
	second := newTicket("u2")
	require.NoError(t, store.Tickets.Create(ctx, first))
	require.NoError(t, store.Tickets.Create(ctx, second))

	_, _, err := store.Tickets.Mutate(ctx, first.ID, func(t *domain.Ticket) (*Mutation, error) {
		t.KanbanStatus = domain.KanbanReview
		return nil, nil
	})
	require.NoError(t, err)

	all, err := store.Tickets.List(ctx, TicketFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)

	requester := "u2"
	mine, err := store.Tickets.List(ctx, TicketFilter{RequesterID: &requester})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, second.ID, mine[0].ID)

	review, err := store.Tickets.List(ctx, TicketFilter{KanbanStatuses: []domain.KanbanStatus{domain.KanbanReview}})
	require.NoError(t, err)
	require.Len(t, review, 1)
}

func TestMemoryListByNumberKeepsPagesStable(t *testing.T) {
	store := NewMemoryBackend().Store()
	ctx := context.Background()
	var ids []string
	for i := 0; i < 5; i++ {
		ticket := newTicket("u1")
		require.NoError(t, store.Tickets.Create(ctx, ticket))
		ids = append(ids, ticket.ID)
	}
	_, _, err := store.Tickets.Mutate(ctx, ids[0], func(t *domain.Ticket) (*Mutation, error) {
		t.KanbanStatus = domain.KanbanReview
		return nil, nil
	})
	require.NoError(t, err)

	page1, err := store.Tickets.List(ctx, TicketFilter{ByNumber: true, Limit: 3})
	require.NoError(t, err)
	page2, err := store.Tickets.List(ctx, TicketFilter{ByNumber: true, Limit: 3, Offset: 3})
	require.NoError(t, err)

	var got []string
	for _, ticket := range append(page1, page2...) {
		got = append(got, ticket.ID)
	}
	assert.Equal(t, ids, got)
}

func TestMemoryGetMissingTicketIsNotFound(t *testing.T) {
	store := NewMemoryBackend().Store()
	_, err := store.Tickets.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
