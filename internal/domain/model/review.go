package model

import (
	"time"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
)

// SubmissionData: правки мейнтейнера (для действия edit).
type SubmissionData struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
	Content string `json:"content"`
}

// ReviewSubmission: ответ мейнтейнера, журнал только на добавление.
// Хранится в таблице review_submissions.
type ReviewSubmission struct {
	ID        int64
	ContentID int64
	// ReviewToken: токен на момент отправки
	ReviewToken     string
	MaintainerEmail string
	// Data: правки; nil для approve
	Data            *SubmissionData
	MaintainerNotes string
	Action          compliance.ReviewAction
	SubmittedAt     time.Time
	// ProcessedAt, ProcessedBy: заполняются один раз при обработке менеджером
	ProcessedAt *time.Time
	ProcessedBy *string
}

// ReviewDetail: ответ мейнтейнера с заголовком контента.
type ReviewDetail struct {
	ReviewSubmission
	ContentTitle string
}
