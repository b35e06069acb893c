package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
	"github.com/signalfire/content-compliance/internal/domain/model"
)

// ReviewRepository: интерфейс для таблицы review_submissions.
// Журнал только на добавление: после создания меняются лишь processed_at/processed_by.
type ReviewRepository interface {
	// Create добавляет ответ мейнтейнера. Заполняет ID и SubmittedAt.
	Create(ctx context.Context, s *model.ReviewSubmission) error
	// Get возвращает ответ с заголовком контента или ErrNotFound, если ответа нет.
	Get(ctx context.Context, id int64) (*model.ReviewDetail, error)
	// MarkProcessed отмечает ответ обработанным.
	// При повторной отметке возвращает ErrConflict, для отсутствующего ответа ErrNotFound.
	MarkProcessed(ctx context.Context, id int64, by string, at time.Time) error
	// ListRecent возвращает необработанные ответы и обработанные после since.
	// Сначала идут необработанные, внутри каждой группы сначала новые.
	ListRecent(ctx context.Context, since time.Time, limit int) ([]model.ReviewDetail, error)
}

type reviewRepo struct {
	db DBTX
}

// NewReviewRepository создаёт репозиторий ответов мейнтейнеров.
func NewReviewRepository(db DBTX) ReviewRepository {
	return &reviewRepo{db: db}
}

func (r *reviewRepo) Create(ctx context.Context, s *model.ReviewSubmission) error {
	var data []byte
	if s.Data != nil {
		var err error
		if data, err = json.Marshal(s.Data); err != nil {
			return fmt.Errorf("ошибка сериализации submission_data: %w", err)
		}
	}

	query := `
		INSERT INTO review_submissions
			(content_id, review_token, maintainer_email, submission_data, maintainer_notes, action_taken)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, submitted_at`

	err := r.db.QueryRow(ctx, query,
		s.ContentID, s.ReviewToken, s.MaintainerEmail, data, s.MaintainerNotes, string(s.Action),
	).Scan(&s.ID, &s.SubmittedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка создания review_submissions[content_id=%d]: %w", s.ContentID, err)
	}
	return nil
}

const reviewColumns = `s.id, s.content_id, s.review_token, s.maintainer_email, s.submission_data,
		s.maintainer_notes, s.action_taken, s.submitted_at, s.processed_at, s.processed_by,
		COALESCE(c.title, '')`

// scanReview сканирует одну строку review_submissions с заголовком контента.
func scanReview(row pgx.Row) (*model.ReviewDetail, error) {
	d := &model.ReviewDetail{}
	var (
		data   []byte
		action string
	)
	err := row.Scan(
		&d.ID, &d.ContentID, &d.ReviewToken, &d.MaintainerEmail, &data,
		&d.MaintainerNotes, &action, &d.SubmittedAt, &d.ProcessedAt, &d.ProcessedBy,
		&d.ContentTitle,
	)
	if err != nil {
		return nil, err
	}
	d.Action = compliance.ReviewAction(action)
	if len(data) > 0 {
		d.Data = &model.SubmissionData{}
		if err := json.Unmarshal(data, d.Data); err != nil {
			return nil, fmt.Errorf("ошибка разбора submission_data[%d]: %w", d.ID, err)
		}
	}
	return d, nil
}

func (r *reviewRepo) Get(ctx context.Context, id int64) (*model.ReviewDetail, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM review_submissions s
		LEFT JOIN content_items c ON c.id = s.content_id
		WHERE s.id = $1`

	d, err := scanReview(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения review_submissions[%d]: %w", id, err)
	}
	return d, nil
}

func (r *reviewRepo) MarkProcessed(ctx context.Context, id int64, by string, at time.Time) error {
	query := `
		UPDATE review_submissions
		SET processed_at = $2, processed_by = $3
		WHERE id = $1 AND processed_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id, at, by)
	if err != nil {
		return fmt.Errorf("ошибка обработки review_submissions[%d]: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Ни одной строки: ответ отсутствует или уже обработан
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM review_submissions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("ошибка проверки review_submissions[%d]: %w", id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (r *reviewRepo) ListRecent(ctx context.Context, since time.Time, limit int) ([]model.ReviewDetail, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM review_submissions s
		LEFT JOIN content_items c ON c.id = s.content_id
		WHERE s.processed_at IS NULL OR s.processed_at >= $1
		ORDER BY (s.processed_at IS NULL) DESC, s.submitted_at DESC, s.id DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка review_submissions: %w", err)
	}
	defer rows.Close()

	var items []model.ReviewDetail
	for rows.Next() {
		d, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования review_submissions: %w", err)
		}
		items = append(items, *d)
	}
	return items, rows.Err()
}
