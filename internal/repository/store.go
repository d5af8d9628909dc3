package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// Store bundles the repositories backed by one persistence engine.
type Store struct {
	Tickets     TicketRepository
	Messages    TicketMessageRepository
	Attachments AttachmentRepository
	History     TicketHistoryRepository
	Users       UserRepository
	Notices     NoticeRepository
}

// NewPostgresStore builds every repository on the same pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return Store{
		Tickets:     NewTicketRepository(pool),
		Messages:    NewTicketMessageRepository(pool),
		Attachments: NewAttachmentRepository(pool),
		History:     NewTicketHistoryRepository(pool),
		Users:       NewUserRepository(pool),
		Notices:     NewNoticeRepository(pool),
	}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return err
}
