// bulk.go: массовая рассылка уведомлений.
//
// Рассылкой управляет клиент: List создаёт операцию и возвращает цели,
// клиент вызывает SendOne для каждой цели и сообщает прогресс через Update.
// Операции без прогресса завершает SweepService.ReapStaleOperations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
	"github.com/signalfire/content-compliance/internal/domain/model"
	"github.com/signalfire/content-compliance/internal/repository"
)

// BulkList: результат подготовки массовой рассылки.
type BulkList struct {
	Operation *model.BulkOperation
	Items     []model.BulkTarget
	Message   string
}

// BulkService: сервис массовой рассылки.
type BulkService struct {
	recordRepo repository.ComplianceRepository
	bulkRepo   repository.BulkOperationRepository
	compliance *ComplianceService
	logger     *slog.Logger
	now        func() time.Time
}

// NewBulkService создаёт сервис массовой рассылки.
func NewBulkService(
	recordRepo repository.ComplianceRepository,
	bulkRepo repository.BulkOperationRepository,
	complianceSvc *ComplianceService,
	logger *slog.Logger,
) *BulkService {
	return &BulkService{
		recordRepo: recordRepo,
		bulkRepo:   bulkRepo,
		compliance: complianceSvc,
		logger:     logger.With(slog.String("service", "bulk")),
		now:        time.Now,
	}
}

// List выбирает цели рассылки и создаёт операцию в статусе running.
// Если целей нет, возвращает ErrNotFound и операцию не создаёт.
func (s *BulkService) List(
	ctx context.Context,
	contentType string,
	overdueOnly bool,
	initiatedBy string,
) (*BulkList, error) {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return nil, fmt.Errorf("%w: content_type обязателен", ErrValidation)
	}

	targets, err := s.recordRepo.ListBulkTargets(ctx, contentType, overdueOnly, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("ошибка получения целей рассылки: %w", err)
	}
	if len(targets) == 0 {
		if overdueOnly {
			return nil, fmt.Errorf("%w: No overdue content found for this content type.", ErrNotFound)
		}
		return nil, fmt.Errorf("%w: No content with compliance settings found for this content type.", ErrNotFound)
	}

	op := &model.BulkOperation{
		OperationType: model.OperationTypeComplianceCheck,
		ContentType:   contentType,
		OverdueOnly:   overdueOnly,
		TotalItems:    len(targets),
		InitiatedBy:   initiatedBy,
	}
	if err := s.bulkRepo.Create(ctx, op); err != nil {
		return nil, fmt.Errorf("ошибка создания массовой операции: %w", err)
	}

	s.logger.Info("Массовая рассылка подготовлена",
		slog.Int64("operation_id", op.ID),
		slog.String("content_type", contentType),
		slog.Bool("overdue_only", overdueOnly),
		slog.Int("total", len(targets)),
		slog.String("initiated_by", initiatedBy),
	)

	return &BulkList{
		Operation: op,
		Items:     targets,
		Message:   fmt.Sprintf("Found %d items to process.", len(targets)),
	}, nil
}

// SendOne отправляет уведомление по одной цели рассылки.
// Операция не меняется: прогресс сообщает клиент.
func (s *BulkService) SendOne(ctx context.Context, contentID int64) (string, error) {
	return s.compliance.SendReview(ctx, contentID)
}

// Update перезаписывает счётчики и статус операции.
// Счётчики не убывают и в сумме не превышают total_items;
// завершённую операцию изменить нельзя (ErrConflict).
func (s *BulkService) Update(
	ctx context.Context,
	id int64,
	successful, failed int,
	status compliance.BulkStatus,
) (*model.BulkOperation, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: недопустимый статус %q", ErrValidation, status)
	}
	if successful < 0 || failed < 0 {
		return nil, fmt.Errorf("%w: счётчики не могут быть отрицательными", ErrValidation)
	}

	op, err := s.bulkRepo.UpdateProgress(ctx, id, successful, failed, status)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, s.explainConflict(ctx, id, successful, failed)
		}
		return nil, fmt.Errorf("ошибка обновления массовой операции %d: %w", id, err)
	}

	if status.Terminal() {
		s.logger.Info("Массовая рассылка завершена",
			slog.Int64("operation_id", id),
			slog.String("status", string(status)),
			slog.Int("successful", successful),
			slog.Int("failed", failed),
			slog.Int("total", op.TotalItems),
		)
	}
	return op, nil
}

// explainConflict формирует понятное сообщение об отклонённом обновлении.
func (s *BulkService) explainConflict(ctx context.Context, id int64, successful, failed int) error {
	op, err := s.bulkRepo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: операция %d изменена", ErrConflict, id)
	}
	switch {
	case op.Status.Terminal():
		return fmt.Errorf("%w: операция %d уже завершена (%s)", ErrConflict, id, op.Status)
	case successful < op.SuccessfulSends || failed < op.FailedSends:
		return fmt.Errorf("%w: счётчики не могут уменьшаться (сейчас %d/%d)", ErrConflict, op.SuccessfulSends, op.FailedSends)
	case successful+failed > op.TotalItems:
		return fmt.Errorf("%w: сумма счётчиков больше total_items (%d)", ErrConflict, op.TotalItems)
	}
	return fmt.Errorf("%w: операция %d изменена", ErrConflict, id)
}
