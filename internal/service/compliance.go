// compliance.go: сервис записей соответствия: зеркало контента,
// сохранение настроек проверки единицы контента, отправка одного уведомления.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/signalfire/content-compliance/internal/domain/model"
	"github.com/signalfire/content-compliance/internal/repository"
)

// ComplianceService: операции над записями соответствия.
type ComplianceService struct {
	contentRepo repository.ContentRepository
	recordRepo  repository.ComplianceRepository
	settings    *SettingsService
	cache       *CacheService
	notifier    *Notifier
	validate    *validator.Validate
	logger      *slog.Logger
	now         func() time.Time
}

// NewComplianceService создаёт сервис записей соответствия.
func NewComplianceService(
	contentRepo repository.ContentRepository,
	recordRepo repository.ComplianceRepository,
	settings *SettingsService,
	cache *CacheService,
	notifier *Notifier,
	logger *slog.Logger,
) *ComplianceService {
	return &ComplianceService{
		contentRepo: contentRepo,
		recordRepo:  recordRepo,
		settings:    settings,
		cache:       cache,
		notifier:    notifier,
		validate:    newValidator(),
		logger:      logger.With(slog.String("service", "compliance")),
		now:         time.Now,
	}
}

// UpsertContent создаёт или обновляет зеркало единицы контента.
func (s *ComplianceService) UpsertContent(ctx context.Context, item *model.ContentItem) error {
	item.ContentType = strings.TrimSpace(item.ContentType)
	if item.ContentType == "" {
		return fmt.Errorf("%w: content_type обязателен", ErrValidation)
	}
	if item.Status == "" {
		item.Status = model.ContentStatusPublish
	}
	if err := s.contentRepo.Upsert(ctx, item); err != nil {
		return fmt.Errorf("ошибка сохранения контента %d: %w", item.ID, err)
	}
	s.logger.Debug("Контент обновлён",
		slog.Int64("content_id", item.ID),
		slog.String("content_type", item.ContentType),
	)
	return nil
}

// GetCompliance возвращает запись соответствия контента (через кэш).
func (s *ComplianceService) GetCompliance(ctx context.Context, contentID int64) (*model.ComplianceRecord, error) {
	if rec, ok := s.cache.Get(contentID); ok {
		return rec, nil
	}

	rec, err := s.recordRepo.GetByContentID(ctx, contentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи соответствия %d: %w", contentID, err)
	}
	s.cache.Set(contentID, rec)
	return rec, nil
}

// SaveContentSettings сохраняет мейнтейнера и срок проверки единицы контента.
//
// Пустой maintainerEmail заменяется мейнтейнером по умолчанию для типа контента.
// Если мейнтейнера нет и так, запись не создаётся: возвращается (nil, nil).
// При nextReviewAt == nil срок считается по периодичности из настроек.
// Токен ссылки всегда генерируется заново; статус существующей записи не меняется.
func (s *ComplianceService) SaveContentSettings(
	ctx context.Context,
	contentID int64,
	maintainerEmail string,
	nextReviewAt *time.Time,
) (*model.ComplianceRecord, error) {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	item, err := s.contentRepo.Get(ctx, contentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения контента %d: %w", contentID, err)
	}

	if !settings.ContentTypeEnabled(item.ContentType) {
		return nil, fmt.Errorf("%w: проверка для типа контента %q не включена", ErrValidation, item.ContentType)
	}

	email := strings.TrimSpace(maintainerEmail)
	if email == "" {
		email = settings.DefaultMaintainer(item.ContentType)
	}
	if email == "" {
		s.logger.Info("Мейнтейнер не задан, запись не создана", slog.Int64("content_id", contentID))
		return nil, nil
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return nil, fmt.Errorf("%w: некорректный адрес мейнтейнера %q", ErrValidation, email)
	}

	due := settings.CheckFrequency.NextReviewDate(s.now().UTC())
	if nextReviewAt != nil {
		due = nextReviewAt.UTC()
	}

	rec, err := s.recordRepo.Upsert(ctx, contentID, email, due, uuid.NewString())
	s.cache.Delete(contentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: коллизия токена, повторите запрос", ErrConflict)
		}
		return nil, fmt.Errorf("ошибка сохранения записи соответствия %d: %w", contentID, err)
	}

	s.logger.Info("Настройки проверки контента сохранены",
		slog.Int64("content_id", contentID),
		slog.String("maintainer", email),
		slog.Time("next_review_at", rec.NextReviewAt),
		slog.String("status", string(rec.Status)),
	)
	return rec, nil
}

// SendReview отправляет мейнтейнеру одно уведомление о проверке.
// Статус записи не меняется. Возвращает адрес мейнтейнера.
func (s *ComplianceService) SendReview(ctx context.Context, contentID int64) (string, error) {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return "", err
	}

	rec, err := s.recordRepo.GetByContentID(ctx, contentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%w: No compliance data found for this post. Please save the post with a maintainer email first.", ErrNotFound)
		}
		return "", fmt.Errorf("ошибка получения записи соответствия %d: %w", contentID, err)
	}
	if rec.MaintainerEmail == "" {
		return "", fmt.Errorf("%w: No maintainer email set for this content.", ErrValidation)
	}
	if err := s.validate.Var(rec.MaintainerEmail, "email"); err != nil {
		return "", fmt.Errorf("%w: Invalid maintainer email address.", ErrValidation)
	}

	item, err := s.contentRepo.Get(ctx, contentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%w: Post not found.", ErrNotFound)
		}
		return "", fmt.Errorf("ошибка получения контента %d: %w", contentID, err)
	}

	if err := s.notifier.SendReviewRequest(ctx, settings, item, rec); err != nil {
		return "", err
	}
	return rec.MaintainerEmail, nil
}
