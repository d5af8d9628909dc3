package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TicketMessageRepository manages the append-only ticket conversation.
type TicketMessageRepository interface {
	Append(ctx context.Context, msg *domain.TicketMessage) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error)
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

func (r *ticketMessageRepository) Append(ctx context.Context, msg *domain.TicketMessage) error {
	return insertMessage(ctx, r.pool, msg)
}

func insertMessage(ctx context.Context, q querier, msg *domain.TicketMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO ticket_messages (id, ticket_id, role, author_id, content)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at`
	return q.QueryRow(ctx, query,
		msg.ID,
		msg.TicketID,
		msg.Role,
		msg.AuthorID,
		msg.Content,
	).Scan(&msg.CreatedAt)
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	const query = `
        SELECT id, ticket_id, role, author_id, content, created_at
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketMessage
	for rows.Next() {
		var msg domain.TicketMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.Role,
			&msg.AuthorID,
			&msg.Content,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
