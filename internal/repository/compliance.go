package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
	"github.com/signalfire/content-compliance/internal/domain/model"
)

// ComplianceRepository: интерфейс для таблицы compliance_records.
type ComplianceRepository interface {
	// GetByContentID возвращает запись по ID контента или ErrNotFound, если её нет.
	GetByContentID(ctx context.Context, contentID int64) (*model.ComplianceRecord, error)
	// GetByToken возвращает запись по токену проверки или ErrNotFound, если её нет.
	GetByToken(ctx context.Context, token string) (*model.ComplianceRecord, error)
	// Upsert создаёт запись (статус pending) или обновляет мейнтейнера,
	// срок и токен существующей, не меняя статус.
	Upsert(ctx context.Context, contentID int64, maintainerEmail string, nextReviewAt time.Time, token string) (*model.ComplianceRecord, error)
	// ListDue возвращает записи со сроком <= now и статусом, отличным от compliant.
	ListDue(ctx context.Context, now time.Time) ([]model.ComplianceRecord, error)
	// ListOverdueSince возвращает записи в статусе overdue со сроком <= cutoff,
	// контент которых ещё не переведён в черновик.
	ListOverdueSince(ctx context.Context, cutoff time.Time) ([]model.ComplianceRecord, error)
	// UpdateStatus меняет статус записи.
	UpdateStatus(ctx context.Context, id int64, status compliance.Status) error
	// MarkReviewed выставляет статус и время проверки.
	// nextReviewAt == nil оставляет срок без изменений.
	MarkReviewed(ctx context.Context, id int64, status compliance.Status, reviewedAt time.Time, nextReviewAt *time.Time) error
	// CountByStatus возвращает количество записей по статусам.
	CountByStatus(ctx context.Context) (model.StatusCounts, error)
	// ListOverdueReport возвращает просроченные записи, самые старые первыми.
	ListOverdueReport(ctx context.Context, now time.Time, limit int) ([]model.OverdueItem, error)
	// ListBulkTargets возвращает опубликованный контент типа contentType с мейнтейнером.
	// overdueOnly: только записи со сроком <= now и статусом, отличным от compliant.
	ListBulkTargets(ctx context.Context, contentType string, overdueOnly bool, now time.Time) ([]model.BulkTarget, error)
}

type complianceRepo struct {
	db DBTX
}

// NewComplianceRepository создаёт репозиторий записей соответствия.
func NewComplianceRepository(db DBTX) ComplianceRepository {
	return &complianceRepo{db: db}
}

const recordColumns = `id, content_id, maintainer_email, last_review_at, next_review_at,
		status, review_token, created_at, updated_at`

// scanRecord сканирует одну строку compliance_records.
func scanRecord(row pgx.Row) (*model.ComplianceRecord, error) {
	rec := &model.ComplianceRecord{}
	var status string
	err := row.Scan(
		&rec.ID, &rec.ContentID, &rec.MaintainerEmail, &rec.LastReviewAt, &rec.NextReviewAt,
		&status, &rec.ReviewToken, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = compliance.Status(status)
	return rec, nil
}

func (r *complianceRepo) getOne(ctx context.Context, where string, arg any) (*model.ComplianceRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM compliance_records WHERE ` + where
	rec, err := scanRecord(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения compliance_records: %w", err)
	}
	return rec, nil
}

func (r *complianceRepo) GetByContentID(ctx context.Context, contentID int64) (*model.ComplianceRecord, error) {
	return r.getOne(ctx, "content_id = $1", contentID)
}

func (r *complianceRepo) GetByToken(ctx context.Context, token string) (*model.ComplianceRecord, error) {
	return r.getOne(ctx, "review_token = $1", token)
}

func (r *complianceRepo) Upsert(
	ctx context.Context,
	contentID int64,
	maintainerEmail string,
	nextReviewAt time.Time,
	token string,
) (*model.ComplianceRecord, error) {
	query := `
		INSERT INTO compliance_records (content_id, maintainer_email, next_review_at, status, review_token)
		VALUES ($1, $2, $3, 'pending', $4)
		ON CONFLICT (content_id) DO UPDATE
		SET maintainer_email = EXCLUDED.maintainer_email,
			next_review_at = EXCLUDED.next_review_at,
			review_token = EXCLUDED.review_token
		RETURNING ` + recordColumns

	rec, err := scanRecord(r.db.QueryRow(ctx, query, contentID, maintainerEmail, nextReviewAt, token))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сохранения compliance_records[content_id=%d]: %w", contentID, err)
	}
	return rec, nil
}

func (r *complianceRepo) list(ctx context.Context, query string, args ...any) ([]model.ComplianceRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка compliance_records: %w", err)
	}
	defer rows.Close()

	var records []model.ComplianceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования compliance_records: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (r *complianceRepo) ListDue(ctx context.Context, now time.Time) ([]model.ComplianceRecord, error) {
	return r.list(ctx, `
		SELECT `+recordColumns+`
		FROM compliance_records
		WHERE next_review_at <= $1 AND status <> 'compliant'
		ORDER BY next_review_at, id`, now)
}

func (r *complianceRepo) ListOverdueSince(ctx context.Context, cutoff time.Time) ([]model.ComplianceRecord, error) {
	return r.list(ctx, `
		SELECT `+recordColumns+`
		FROM compliance_records
		WHERE status = 'overdue' AND next_review_at <= $1
			AND NOT EXISTS (
				SELECT 1 FROM content_items c
				WHERE c.id = compliance_records.content_id AND c.status = 'draft'
			)
		ORDER BY next_review_at, id`, cutoff)
}

func (r *complianceRepo) UpdateStatus(ctx context.Context, id int64, status compliance.Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE compliance_records SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса compliance_records[%d]: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *complianceRepo) MarkReviewed(
	ctx context.Context,
	id int64,
	status compliance.Status,
	reviewedAt time.Time,
	nextReviewAt *time.Time,
) error {
	query := `
		UPDATE compliance_records
		SET status = $2,
			last_review_at = $3,
			next_review_at = COALESCE($4, next_review_at)
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, string(status), reviewedAt, nextReviewAt)
	if err != nil {
		return fmt.Errorf("ошибка обновления проверки compliance_records[%d]: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *complianceRepo) CountByStatus(ctx context.Context) (model.StatusCounts, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'compliant'),
			COUNT(*) FILTER (WHERE status = 'overdue'),
			COUNT(*) FILTER (WHERE status = 'pending_changes')
		FROM compliance_records`

	var c model.StatusCounts
	err := r.db.QueryRow(ctx, query).Scan(&c.Total, &c.Pending, &c.Compliant, &c.Overdue, &c.PendingChanges)
	if err != nil {
		return c, fmt.Errorf("ошибка подсчёта compliance_records: %w", err)
	}
	return c, nil
}

func (r *complianceRepo) ListOverdueReport(ctx context.Context, now time.Time, limit int) ([]model.OverdueItem, error) {
	query := `
		SELECT r.content_id, c.title, c.content_type, c.status, r.maintainer_email, r.next_review_at,
			GREATEST(FLOOR(EXTRACT(EPOCH FROM ($1::timestamptz - r.next_review_at)) / 86400), 0)::int
		FROM compliance_records r
		JOIN content_items c ON c.id = r.content_id
		WHERE r.status = 'overdue'
		ORDER BY r.next_review_at, r.id
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения просроченных записей: %w", err)
	}
	defer rows.Close()

	var items []model.OverdueItem
	for rows.Next() {
		var it model.OverdueItem
		if err := rows.Scan(
			&it.ContentID, &it.Title, &it.ContentType, &it.ContentStatus,
			&it.MaintainerEmail, &it.NextReviewAt, &it.DaysOverdue,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования просроченных записей: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *complianceRepo) ListBulkTargets(
	ctx context.Context,
	contentType string,
	overdueOnly bool,
	now time.Time,
) ([]model.BulkTarget, error) {
	query := `
		SELECT c.id, c.title, r.maintainer_email
		FROM compliance_records r
		JOIN content_items c ON c.id = r.content_id
		WHERE c.content_type = $1
			AND c.status = 'publish'
			AND r.maintainer_email <> ''`
	args := []any{contentType}

	if overdueOnly {
		query += `
			AND r.next_review_at <= $2
			AND r.status <> 'compliant'
		ORDER BY r.next_review_at ASC, c.id`
		args = append(args, now)
	} else {
		query += `
		ORDER BY c.published_at DESC NULLS LAST, c.id DESC`
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения целей рассылки: %w", err)
	}
	defer rows.Close()

	var targets []model.BulkTarget
	for rows.Next() {
		var t model.BulkTarget
		if err := rows.Scan(&t.ContentID, &t.Title, &t.MaintainerEmail); err != nil {
			return nil, fmt.Errorf("ошибка сканирования целей рассылки: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}
