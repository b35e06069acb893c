// dto.go: JSON-представления запросов и ответов admin API.
package handlers

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
	"github.com/signalfire/content-compliance/internal/domain/model"
)

// optionalEmail возвращает nil для пустого адреса.
func optionalEmail(s string) *openapi_types.Email {
	if s == "" {
		return nil
	}
	email := openapi_types.Email(s)
	return &email
}

// --- Настройки ---

type settingsRequest struct {
	EnabledContentTypes  []string                     `json:"enabled_content_types"`
	CheckFrequency       compliance.Frequency         `json:"check_frequency"`
	NonResponseAction    compliance.NonResponseAction `json:"non_response_action"`
	ManagerEmail         string                       `json:"manager_email"`
	DefaultMaintainers   map[string]string            `json:"default_maintainers"`
	EmailSubject         string                       `json:"email_subject"`
	EmailTemplate        string                       `json:"email_template"`
	ManagerEmailSubject  string                       `json:"manager_email_subject"`
	ManagerEmailTemplate string                       `json:"manager_email_template"`
	// ReviewPassword: nil оставляет текущий пароль, "" снимает защиту
	ReviewPassword *string `json:"review_password"`
}

func (r settingsRequest) toModel() model.Settings {
	return model.Settings{
		EnabledContentTypes:  r.EnabledContentTypes,
		CheckFrequency:       r.CheckFrequency,
		NonResponseAction:    r.NonResponseAction,
		ManagerEmail:         r.ManagerEmail,
		DefaultMaintainers:   r.DefaultMaintainers,
		EmailSubject:         r.EmailSubject,
		EmailTemplate:        r.EmailTemplate,
		ManagerEmailSubject:  r.ManagerEmailSubject,
		ManagerEmailTemplate: r.ManagerEmailTemplate,
	}
}

// settingsResponse: настройки без пароля формы проверки.
type settingsResponse struct {
	EnabledContentTypes  []string                     `json:"enabled_content_types"`
	CheckFrequency       compliance.Frequency         `json:"check_frequency"`
	NonResponseAction    compliance.NonResponseAction `json:"non_response_action"`
	ManagerEmail         *openapi_types.Email         `json:"manager_email,omitempty"`
	DefaultMaintainers   map[string]string            `json:"default_maintainers"`
	EmailSubject         string                       `json:"email_subject"`
	EmailTemplate        string                       `json:"email_template"`
	ManagerEmailSubject  string                       `json:"manager_email_subject"`
	ManagerEmailTemplate string                       `json:"manager_email_template"`
	ReviewPasswordSet    bool                         `json:"review_password_set"`
	UpdatedAt            *time.Time                   `json:"updated_at,omitempty"`
	UpdatedBy            string                       `json:"updated_by,omitempty"`
}

func newSettingsResponse(s *model.Settings, meta *model.SettingsMeta) settingsResponse {
	resp := settingsResponse{
		EnabledContentTypes:  s.EnabledContentTypes,
		CheckFrequency:       s.CheckFrequency,
		NonResponseAction:    s.NonResponseAction,
		ManagerEmail:         optionalEmail(s.ManagerEmail),
		DefaultMaintainers:   s.DefaultMaintainers,
		EmailSubject:         s.EmailSubject,
		EmailTemplate:        s.EmailTemplate,
		ManagerEmailSubject:  s.ManagerEmailSubject,
		ManagerEmailTemplate: s.ManagerEmailTemplate,
		ReviewPasswordSet:    s.ReviewPassword != "",
	}
	if meta != nil {
		resp.UpdatedAt = &meta.UpdatedAt
		resp.UpdatedBy = meta.UpdatedBy
	}
	return resp
}

// --- Контент ---

type contentRequest struct {
	ContentType string     `json:"content_type"`
	Title       string     `json:"title"`
	Excerpt     string     `json:"excerpt"`
	Body        string     `json:"body"`
	Status      string     `json:"status"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at"`
}

type complianceRequest struct {
	MaintainerEmail string     `json:"maintainer_email"`
	NextReviewAt    *time.Time `json:"next_review_at"`
}

type complianceResponse struct {
	ContentID       int64               `json:"content_id"`
	MaintainerEmail openapi_types.Email `json:"maintainer_email"`
	LastReviewAt    *time.Time          `json:"last_review_at"`
	NextReviewAt    time.Time           `json:"next_review_at"`
	Status          compliance.Status   `json:"status"`
	ReviewURL       string              `json:"review_url"`
}

// --- Общие ---

type messageResponse struct {
	Message string               `json:"message"`
	Email   *openapi_types.Email `json:"email,omitempty"`
}

type testEmailRequest struct {
	Email string `json:"email"`
}

// --- Ответы мейнтейнеров ---

type reviewResponse struct {
	ID              int64                   `json:"id"`
	ContentID       int64                   `json:"content_id"`
	ContentTitle    string                  `json:"content_title,omitempty"`
	MaintainerEmail openapi_types.Email     `json:"maintainer_email"`
	Action          compliance.ReviewAction `json:"action"`
	Data            *model.SubmissionData   `json:"data"`
	MaintainerNotes string                  `json:"maintainer_notes,omitempty"`
	SubmittedAt     time.Time               `json:"submitted_at"`
	ProcessedAt     *time.Time              `json:"processed_at"`
	ProcessedBy     *string                 `json:"processed_by"`
}

func newReviewResponse(d *model.ReviewDetail) reviewResponse {
	return reviewResponse{
		ID:              d.ID,
		ContentID:       d.ContentID,
		ContentTitle:    d.ContentTitle,
		MaintainerEmail: openapi_types.Email(d.MaintainerEmail),
		Action:          d.Action,
		Data:            d.Data,
		MaintainerNotes: d.MaintainerNotes,
		SubmittedAt:     d.SubmittedAt,
		ProcessedAt:     d.ProcessedAt,
		ProcessedBy:     d.ProcessedBy,
	}
}

// --- Массовая рассылка ---

type bulkListRequest struct {
	ContentType string `json:"content_type"`
	OverdueOnly bool   `json:"overdue_only"`
}

type bulkTargetResponse struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Maintainer string `json:"maintainer"`
}

type bulkListResponse struct {
	OperationID int64                `json:"operation_id"`
	Total       int                  `json:"total"`
	Items       []bulkTargetResponse `json:"items"`
	Message     string               `json:"message"`
}

type bulkUpdateRequest struct {
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	Status     string `json:"status"`
}

type bulkOperationResponse struct {
	ID              int64                 `json:"id"`
	OperationType   string                `json:"operation_type"`
	ContentType     string                `json:"content_type"`
	OverdueOnly     bool                  `json:"overdue_only"`
	TotalItems      int                   `json:"total_items"`
	SuccessfulSends int                   `json:"successful_sends"`
	FailedSends     int                   `json:"failed_sends"`
	InitiatedBy     string                `json:"initiated_by,omitempty"`
	Status          compliance.BulkStatus `json:"status"`
	StartedAt       time.Time             `json:"started_at"`
	CompletedAt     *time.Time            `json:"completed_at"`
	ErrorMessage    *string               `json:"error_message,omitempty"`
}

func newBulkOperationResponse(op *model.BulkOperation) bulkOperationResponse {
	return bulkOperationResponse{
		ID:              op.ID,
		OperationType:   op.OperationType,
		ContentType:     op.ContentType,
		OverdueOnly:     op.OverdueOnly,
		TotalItems:      op.TotalItems,
		SuccessfulSends: op.SuccessfulSends,
		FailedSends:     op.FailedSends,
		InitiatedBy:     op.InitiatedBy,
		Status:          op.Status,
		StartedAt:       op.StartedAt,
		CompletedAt:     op.CompletedAt,
		ErrorMessage:    op.ErrorMessage,
	}
}

// --- Отчёты ---

type overdueItemResponse struct {
	ContentID       int64     `json:"content_id"`
	Title           string    `json:"title"`
	ContentType     string    `json:"content_type"`
	ContentStatus   string    `json:"content_status"`
	MaintainerEmail string    `json:"maintainer_email"`
	NextReviewAt    time.Time `json:"next_review_at"`
	DaysOverdue     int       `json:"days_overdue"`
}

type reportResponse struct {
	Counts         model.StatusCounts      `json:"counts"`
	Overdue        []overdueItemResponse   `json:"overdue"`
	RecentReviews  []reviewResponse        `json:"recent_reviews"`
	BulkOperations []bulkOperationResponse `json:"bulk_operations"`
	LastSweepAt    *time.Time              `json:"last_sweep_at"`
	LastSweep      *model.SweepSummary     `json:"last_sweep,omitempty"`
}
