package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/signalfire/content-compliance/internal/domain/model"
)

// ContentRepository: интерфейс для таблицы content_items.
type ContentRepository interface {
	// Get возвращает единицу контента по ID или ErrNotFound, если её нет.
	Get(ctx context.Context, id int64) (*model.ContentItem, error)
	// Upsert создаёт или обновляет единицу контента.
	Upsert(ctx context.Context, item *model.ContentItem) error
	// SetStatus меняет статус публикации.
	SetStatus(ctx context.Context, id int64, status string) error
}

type contentRepo struct {
	db DBTX
}

// NewContentRepository создаёт репозиторий контента.
func NewContentRepository(db DBTX) ContentRepository {
	return &contentRepo{db: db}
}

func (r *contentRepo) Get(ctx context.Context, id int64) (*model.ContentItem, error) {
	query := `
		SELECT id, content_type, title, excerpt, body, status, url, published_at, created_at, updated_at
		FROM content_items
		WHERE id = $1`

	c := &model.ContentItem{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.ContentType, &c.Title, &c.Excerpt, &c.Body,
		&c.Status, &c.URL, &c.PublishedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения content_items[%d]: %w", id, err)
	}
	return c, nil
}

func (r *contentRepo) Upsert(ctx context.Context, item *model.ContentItem) error {
	query := `
		INSERT INTO content_items (id, content_type, title, excerpt, body, status, url, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET content_type = EXCLUDED.content_type,
			title = EXCLUDED.title,
			excerpt = EXCLUDED.excerpt,
			body = EXCLUDED.body,
			status = EXCLUDED.status,
			url = EXCLUDED.url,
			published_at = EXCLUDED.published_at
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		item.ID, item.ContentType, item.Title, item.Excerpt, item.Body,
		item.Status, item.URL, item.PublishedAt,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения content_items[%d]: %w", item.ID, err)
	}
	return nil
}

func (r *contentRepo) SetStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.db.Exec(ctx, `UPDATE content_items SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса content_items[%d]: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
