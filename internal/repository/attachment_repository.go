package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// AttachmentRepository persists attachment metadata.
type AttachmentRepository interface {
	Append(ctx context.Context, attachment *domain.Attachment) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Attachment, error)
}

type attachmentRepository struct {
	pool *pgxpool.Pool
}

// NewAttachmentRepository constructs repository.
func NewAttachmentRepository(pool *pgxpool.Pool) AttachmentRepository {
	return &attachmentRepository{pool: pool}
}

func (r *attachmentRepository) Append(ctx context.Context, attachment *domain.Attachment) error {
	return insertAttachment(ctx, r.pool, attachment)
}

func insertAttachment(ctx context.Context, q querier, attachment *domain.Attachment) error {
	if attachment.ID == "" {
		attachment.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO ticket_attachments (id, ticket_id, uploader_id, storage_key, file_name, mime_type, size_bytes)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at`
	return q.QueryRow(ctx, query,
		attachment.ID,
		attachment.TicketID,
		attachment.UploaderID,
		attachment.StorageKey,
		attachment.FileName,
		attachment.MimeType,
		attachment.SizeBytes,
	).Scan(&attachment.CreatedAt)
}

func (r *attachmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Attachment, error) {
	const query = `
        SELECT id, ticket_id, uploader_id, storage_key, file_name, mime_type, size_bytes, created_at
        FROM ticket_attachments WHERE ticket_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Attachment
	for rows.Next() {
		var attachment domain.Attachment
		if err := rows.Scan(
			&attachment.ID,
			&attachment.TicketID,
			&attachment.UploaderID,
			&attachment.StorageKey,
			&attachment.FileName,
			&attachment.MimeType,
			&attachment.SizeBytes,
			&attachment.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, attachment)
	}
	return result, rows.Err()
}
