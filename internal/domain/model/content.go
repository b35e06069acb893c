package model

import "time"

// Статусы публикации контента.
const (
	ContentStatusPublish = "publish"
	ContentStatusDraft   = "draft"
)

// ContentItem: единица контента (пост, страница), зеркалируемая из системы публикации.
// Хранится в таблице content_items.
type ContentItem struct {
	// ID: идентификатор контента во внешней системе
	ID int64
	// ContentType: тип контента (post, page, …)
	ContentType string
	// Title: заголовок
	Title string
	// Excerpt: краткое описание
	Excerpt string
	// Body: тело с блочной разметкой
	Body string
	// Status: статус публикации (publish, draft, …)
	Status string
	// URL: публичный адрес
	URL string
	// PublishedAt: время публикации (может быть nil)
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
