package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// ticketNumberLockKey serializes number allocation across all API instances.
const ticketNumberLockKey int64 = 0x7469636b6574

// TicketFilter captures list parameters.
type TicketFilter struct {
	RequesterID    *string
	AssigneeID     *string
	Team           *domain.Team
	Statuses       []domain.TicketStatus
	KanbanStatuses []domain.KanbanStatus
	SearchTerm     *string
	// ByNumber orders by ticket number ascending instead of by recency.
	ByNumber       bool
	Limit          int
	Offset         int
}

// Mutation holds the rows written together with a ticket update.
type Mutation struct {
	Messages    []domain.TicketMessage
	Attachments []domain.Attachment
	History     []domain.TicketHistory
}

// MutateFunc validates and changes a locked ticket in place. Returning an error aborts
// the unit without writing anything.
type MutateFunc func(ticket *domain.Ticket) (*Mutation, error)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// Create allocates the next ticket number and inserts the ticket atomically.
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// Mutate locks one ticket, applies fn and persists the ticket plus the returned
	// rows as a single unit.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Ticket, *Mutation, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, number, title, description, category, service, team, urgency, status, kanban_status,
               rating, feedback, requester_id, assignee_id, created_at, updated_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ticketNumberLockKey); err != nil {
			return err
		}
		var next int64
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(number), 0) + 1 FROM tickets`).Scan(&next); err != nil {
			return err
		}
		if ticket.ID == "" {
			ticket.ID = uuid.NewString()
		}
		ticket.Number = domain.FormatTicketNumber(next)

		const query = `
        INSERT INTO tickets (id, number, title, description, category, service, team, urgency, status,
            kanban_status, rating, feedback, requester_id, assignee_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING created_at, updated_at`
		return tx.QueryRow(ctx, query,
			ticket.ID,
			next,
			ticket.Title,
			ticket.Description,
			ticket.Category,
			ticket.Service,
			ticket.Team,
			ticket.Urgency,
			ticket.Status,
			ticket.KanbanStatus,
			ticket.Rating,
			ticket.Feedback,
			ticket.RequesterID,
			ticket.AssigneeID,
		).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
	})
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	return updateTicket(ctx, r.pool, ticket)
}

func updateTicket(ctx context.Context, q querier, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, category=$3, service=$4, team=$5, urgency=$6,
            status=$7, kanban_status=$8, rating=$9, feedback=$10, assignee_id=$11, closed_at=$12, updated_at=NOW()
        WHERE id=$13
        RETURNING updated_at`
	err := q.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Service,
		ticket.Team,
		ticket.Urgency,
		ticket.Status,
		ticket.KanbanStatus,
		ticket.Rating,
		ticket.Feedback,
		ticket.AssigneeID,
		ticket.ClosedAt,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return notFound("ticket", ticket.ID, err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id))
	return ticket, notFound("ticket", id, err)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	seq, err := domain.ParseTicketNumber(number)
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", number, domain.ErrNotFound)
	}
	ticket, err := scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE number=$1`, seq))
	return ticket, notFound("ticket", number, err)
}

func (r *ticketRepository) Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Ticket, *Mutation, error) {
	var (
		result   *domain.Ticket
		mutation *Mutation
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		ticket, err := scanTicket(tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return notFound("ticket", id, err)
		}
		mutation, err = fn(ticket)
		if err != nil {
			return err
		}
		if mutation == nil {
			mutation = &Mutation{}
		}
		if err := updateTicket(ctx, tx, ticket); err != nil {
			return err
		}
		for i := range mutation.Messages {
			if err := insertMessage(ctx, tx, &mutation.Messages[i]); err != nil {
				return err
			}
		}
		for i := range mutation.Attachments {
			if err := insertAttachment(ctx, tx, &mutation.Attachments[i]); err != nil {
				return err
			}
		}
		for i := range mutation.History {
			if err := insertHistory(ctx, tx, &mutation.History[i]); err != nil {
				return err
			}
		}
		result = ticket
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, mutation, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.Team != nil {
		args = append(args, *filter.Team)
		clauses = append(clauses, fmt.Sprintf("team=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.KanbanStatuses) > 0 {
		placeholders := make([]string, len(filter.KanbanStatuses))
		for i, column := range filter.KanbanStatuses {
			args = append(args, column)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("kanban_status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	order := "updated_at DESC, number DESC"
	if filter.ByNumber {
		order = "number ASC"
	}
	limit, offset := pageBounds(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`%s WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), order, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket domain.Ticket
		number int64
		rating *int32
	)
	if err := row.Scan(
		&ticket.ID,
		&number,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Service,
		&ticket.Team,
		&ticket.Urgency,
		&ticket.Status,
		&ticket.KanbanStatus,
		&rating,
		&ticket.Feedback,
		&ticket.RequesterID,
		&ticket.AssigneeID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	ticket.Number = domain.FormatTicketNumber(number)
	if rating != nil {
		v := int(*rating)
		ticket.Rating = &v
	}
	return &ticket, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
