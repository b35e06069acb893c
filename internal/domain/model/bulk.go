package model

import (
	"time"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
)

// OperationTypeComplianceCheck: единственный тип массовой операции.
const OperationTypeComplianceCheck = "compliance_check"

// BulkOperation: аудит одной массовой рассылки.
// Хранится в таблице bulk_operations.
type BulkOperation struct {
	ID              int64
	OperationType   string
	ContentType     string
	OverdueOnly     bool
	TotalItems      int
	SuccessfulSends int
	FailedSends     int
	InitiatedBy     string
	StartedAt       time.Time
	// CompletedAt: выставляется при переходе в completed
	CompletedAt  *time.Time
	UpdatedAt    time.Time
	Status       compliance.BulkStatus
	ErrorMessage *string
}

// BulkTarget: единица контента, подлежащая рассылке.
type BulkTarget struct {
	ContentID       int64
	Title           string
	MaintainerEmail string
}
