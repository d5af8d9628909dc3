package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/poller"
)

func TestTicketsSendsTokenAndDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tickets", r.URL.Path)
		assert.Equal(t, "in_progress", r.URL.Query().Get("kanban"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"id":"t1","number":"000007","status":"OPEN"}]}`)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "tok", time.Second)
	tickets, err := c.Tickets(context.Background(), map[string][]string{"kanban": {"in_progress"}})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "000007", tickets[0].Number)
}

func TestAPIErrorsAreTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":"NOT_FOUND","message":"ticket not found"}}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok", time.Second).Ticket(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
}

func TestCanceledContextSkipsRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(srv.URL, "", time.Second).Notices(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, hits.Load())
}

func TestTicketListPollerReportsNewTickets(t *testing.T) {
	var (
		mu   sync.Mutex
		body = `{"data":[{"id":"a"}]}`
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second)
	newIDs := make(chan string, 4)
	p := poller.New[dto.TicketSummary]("tickets", TicketID, zap.NewNop(), nil)
	require.True(t, p.Start(context.Background(), c.TicketListFetcher(nil), time.Hour, nil, func(ticket dto.TicketSummary) {
		newIDs <- ticket.ID
	}))
	defer p.Stop()
	require.Eventually(t, func() bool { return len(p.Snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	body = `{"data":[{"id":"a"},{"id":"b"}]}`
	mu.Unlock()
	p.ForceRefresh()

	select {
	case id := <-newIDs:
		assert.Equal(t, "b", id)
	case <-time.After(2 * time.Second):
		t.Fatal("new ticket not reported")
	}
}

// ticketDesk serves a paginated ticket list the way the API does: most recently
// updated first unless sort=number is asked for.
type ticketDesk struct {
	mu      sync.Mutex
	tickets []dto.TicketSummary
	touched map[string]int
	clock   int
}

func newTicketDesk(n int) *ticketDesk {
	d := &ticketDesk{touched: map[string]int{}}
	for i := 1; i <= n; i++ {
		d.add()
	}
	return d
}

func (d *ticketDesk) add() string {
	d.clock++
	n := len(d.tickets) + 1
	ticket := dto.TicketSummary{ID: fmt.Sprintf("t%03d", n), Number: fmt.Sprintf("%06d", n), KanbanStatus: domain.KanbanInbox}
	d.tickets = append(d.tickets, ticket)
	d.touched[ticket.ID] = d.clock
	return ticket.ID
}

func (d *ticketDesk) move(id string, column domain.KanbanStatus) {
	d.clock++
	for i := range d.tickets {
		if d.tickets[i].ID == id {
			d.tickets[i].KanbanStatus = column
		}
	}
	d.touched[id] = d.clock
}

func (d *ticketDesk) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	list := append([]dto.TicketSummary(nil), d.tickets...)
	if q.Get("sort") != "number" {
		sort.Slice(list, func(i, j int) bool { return d.touched[list[i].ID] > d.touched[list[j].ID] })
	}
	start := (page - 1) * size
	if start > len(list) {
		start = len(list)
	}
	end := start + size
	if end > len(list) {
		end = len(list)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": list[start:end]})
}

func TestTicketListFetcherReadsEveryPage(t *testing.T) {
	desk := newTicketDesk(230)
	srv := httptest.NewServer(desk)
	defer srv.Close()

	tickets, err := New(srv.URL, "tok", time.Second).TicketListFetcher(nil)(context.Background())
	require.NoError(t, err)
	require.Len(t, tickets, 230)
	assert.Equal(t, "000001", tickets[0].Number)
	assert.Equal(t, "000230", tickets[229].Number)
}

func TestTouchedOldTicketIsNotReportedAsNew(t *testing.T) {
	desk := newTicketDesk(51)
	srv := httptest.NewServer(desk)
	defer srv.Close()

	var (
		mu      sync.Mutex
		changes int
		added   []string
	)
	p := poller.New[dto.TicketSummary]("tickets", TicketID, zap.NewNop(), nil)
	require.True(t, p.Start(context.Background(), New(srv.URL, "tok", time.Second).TicketListFetcher(nil), time.Hour,
		func([]dto.TicketSummary) {
			mu.Lock()
			defer mu.Unlock()
			changes++
		},
		func(ticket dto.TicketSummary) {
			mu.Lock()
			defer mu.Unlock()
			added = append(added, ticket.Number)
		}))
	defer p.Stop()
	changed := func(n int) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			return changes == n
		}
	}
	require.Eventually(t, changed(1), 2*time.Second, 5*time.Millisecond)

	desk.mu.Lock()
	desk.move("t001", domain.KanbanInProgress)
	desk.mu.Unlock()
	p.ForceRefresh()
	require.Eventually(t, changed(2), 2*time.Second, 5*time.Millisecond)

	desk.mu.Lock()
	desk.add()
	desk.mu.Unlock()
	p.ForceRefresh()
	require.Eventually(t, changed(3), 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"000052"}, added)
}
