package model

import (
	"time"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
)

// ComplianceRecord: расписание и статус проверки одной единицы контента.
// Хранится в таблице compliance_records (уникальна по content_id).
type ComplianceRecord struct {
	ID int64
	// ContentID: единица контента
	ContentID int64
	// MaintainerEmail: адрес мейнтейнера
	MaintainerEmail string
	// LastReviewAt: время последнего подтверждения (может быть nil)
	LastReviewAt *time.Time
	// NextReviewAt: срок следующей проверки
	NextReviewAt time.Time
	// Status: статус проверки
	Status compliance.Status
	// ReviewToken: UUID ссылки на форму проверки
	ReviewToken string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StatusCounts: количество записей по статусам.
type StatusCounts struct {
	Total          int `json:"total"`
	Pending        int `json:"pending"`
	Compliant      int `json:"compliant"`
	Overdue        int `json:"overdue"`
	PendingChanges int `json:"pending_changes"`
}

// OverdueItem: просроченная запись для отчёта.
type OverdueItem struct {
	ContentID       int64
	Title           string
	ContentType     string
	ContentStatus   string
	MaintainerEmail string
	NextReviewAt    time.Time
	DaysOverdue     int
}
