package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// NoticeRepository persists notice board announcements.
type NoticeRepository interface {
	Create(ctx context.Context, notice *domain.Notice) error
	Update(ctx context.Context, notice *domain.Notice) error
	GetByID(ctx context.Context, id string) (*domain.Notice, error)
	ListActive(ctx context.Context) ([]domain.Notice, error)
}

type noticeRepository struct {
	pool *pgxpool.Pool
}

// NewNoticeRepository builds repository.
func NewNoticeRepository(pool *pgxpool.Pool) NoticeRepository {
	return &noticeRepository{pool: pool}
}

const noticeColumns = `id, title, body, type, priority, target_sectors, scheduled_for, expires_at, active_flag,
               author_id, created_at, updated_at`

func (r *noticeRepository) Create(ctx context.Context, notice *domain.Notice) error {
	if notice.ID == "" {
		notice.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO notices (id, title, body, type, priority, target_sectors, scheduled_for, expires_at, active_flag, author_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		notice.ID,
		notice.Title,
		notice.Body,
		notice.Type,
		notice.Priority,
		notice.TargetSectors,
		dateArg(notice.ScheduledFor),
		dateArg(notice.ExpiresAt),
		notice.Active,
		notice.AuthorID,
	).Scan(&notice.CreatedAt, &notice.UpdatedAt)
}

func (r *noticeRepository) Update(ctx context.Context, notice *domain.Notice) error {
	const query = `
        UPDATE notices SET title=$1, body=$2, type=$3, priority=$4, target_sectors=$5, scheduled_for=$6,
            expires_at=$7, active_flag=$8, updated_at=NOW()
        WHERE id=$9
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		notice.Title,
		notice.Body,
		notice.Type,
		notice.Priority,
		notice.TargetSectors,
		dateArg(notice.ScheduledFor),
		dateArg(notice.ExpiresAt),
		notice.Active,
		notice.ID,
	).Scan(&notice.UpdatedAt)
	return notFound("notice", notice.ID, err)
}

func (r *noticeRepository) GetByID(ctx context.Context, id string) (*domain.Notice, error) {
	notice, err := scanNotice(r.pool.QueryRow(ctx, `SELECT `+noticeColumns+` FROM notices WHERE id=$1`, id))
	if err != nil {
		return nil, notFound("notice", id, err)
	}
	return notice, nil
}

func (r *noticeRepository) ListActive(ctx context.Context) ([]domain.Notice, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM notices WHERE active_flag ORDER BY created_at DESC`, noticeColumns))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notice
	for rows.Next() {
		notice, err := scanNotice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *notice)
	}
	return result, rows.Err()
}

func scanNotice(row rowScanner) (*domain.Notice, error) {
	var (
		notice               domain.Notice
		scheduled, expiresAt *time.Time
	)
	if err := row.Scan(
		&notice.ID,
		&notice.Title,
		&notice.Body,
		&notice.Type,
		&notice.Priority,
		&notice.TargetSectors,
		&scheduled,
		&expiresAt,
		&notice.Active,
		&notice.AuthorID,
		&notice.CreatedAt,
		&notice.UpdatedAt,
	); err != nil {
		return nil, err
	}
	notice.ScheduledFor = dateFromTime(scheduled)
	notice.ExpiresAt = dateFromTime(expiresAt)
	return &notice, nil
}

func dateArg(d *domain.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time()
	return &t
}

func dateFromTime(t *time.Time) *domain.Date {
	if t == nil {
		return nil
	}
	d := domain.DateOf(*t)
	return &d
}
