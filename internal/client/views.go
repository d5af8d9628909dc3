package client

import (
	"context"
	"net/url"
	"strconv"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/poller"
)

// listPageSize is the page size used when walking the whole ticket list.
const listPageSize = 100

// TicketListFetcher polls the full ticket list with fixed filters. Pages are read in
// ticket-number order until a short page.
func (c *Client) TicketListFetcher(query url.Values) poller.Fetcher[dto.TicketSummary] {
	return func(ctx context.Context) ([]dto.TicketSummary, error) {
		var all []dto.TicketSummary
		for page := 1; ; page++ {
			params := url.Values{}
			for k, v := range query {
				params[k] = append([]string(nil), v...)
			}
			params.Set("sort", "number")
			params.Set("page", strconv.Itoa(page))
			params.Set("page_size", strconv.Itoa(listPageSize))

			batch, err := c.Tickets(ctx, params)
			if err != nil {
				return nil, err
			}
			all = append(all, batch...)
			if len(batch) < listPageSize {
				return all, nil
			}
		}
	}
}

// ThreadFetcher polls one ticket's conversation.
func (c *Client) ThreadFetcher(ticketID string) poller.Fetcher[dto.TicketMessageResponse] {
	return func(ctx context.Context) ([]dto.TicketMessageResponse, error) {
		detail, err := c.Ticket(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		return detail.Messages, nil
	}
}

// NoticeFetcher polls the notice board.
func (c *Client) NoticeFetcher() poller.Fetcher[dto.NoticeResponse] {
	return c.Notices
}

// TicketID, MessageID and NoticeID are poller identities.
func TicketID(t dto.TicketSummary) string { return t.ID }

func MessageID(m dto.TicketMessageResponse) string { return m.ID }

func NoticeID(n dto.NoticeResponse) string { return n.ID }
