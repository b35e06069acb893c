// review.go: ответы мейнтейнеров по ссылке проверки и их обработка менеджером.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
	"github.com/signalfire/content-compliance/internal/domain/model"
	"github.com/signalfire/content-compliance/internal/markup"
	"github.com/signalfire/content-compliance/internal/repository"
)

// tokenPattern: допустимый вид токена в ссылке проверки.
var tokenPattern = regexp.MustCompile(`^[a-f0-9-]{36}$`)

// ValidToken проверяет синтаксис токена ссылки.
func ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// ReviewContext: всё, что нужно для показа и обработки формы проверки.
type ReviewContext struct {
	Record   *model.ComplianceRecord
	Content  *model.ContentItem
	Settings *model.Settings
}

// PasswordRequired возвращает true, если форма защищена паролем.
func (rc *ReviewContext) PasswordRequired() bool {
	return rc.Settings.ReviewPassword != ""
}

// EditableBody возвращает тело контента без блочной разметки.
func (rc *ReviewContext) EditableBody() string {
	return markup.Strip(rc.Content.Body)
}

// SubmissionInput: поля формы проверки.
type SubmissionInput struct {
	// Action: approve, edit или пусто (approve)
	Action  string
	Title   string
	Excerpt string
	// Content: отредактированный текст без блочной разметки
	Content string
	Notes   string
}

// ReviewService: сервис ответов мейнтейнеров.
type ReviewService struct {
	settings    *SettingsService
	recordRepo  repository.ComplianceRepository
	contentRepo repository.ContentRepository
	reviewRepo  repository.ReviewRepository
	notifier    *Notifier
	cache       *CacheService
	logger      *slog.Logger
	now         func() time.Time
}

// NewReviewService создаёт сервис ответов мейнтейнеров.
func NewReviewService(
	settings *SettingsService,
	recordRepo repository.ComplianceRepository,
	contentRepo repository.ContentRepository,
	reviewRepo repository.ReviewRepository,
	notifier *Notifier,
	cache *CacheService,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		settings:    settings,
		recordRepo:  recordRepo,
		contentRepo: contentRepo,
		reviewRepo:  reviewRepo,
		notifier:    notifier,
		cache:       cache,
		logger:      logger.With(slog.String("service", "review")),
		now:         time.Now,
	}
}

// Resolve находит запись и контент по токену ссылки.
// Для некорректного или неизвестного токена возвращает ErrNotFound.
func (s *ReviewService) Resolve(ctx context.Context, token string) (*ReviewContext, error) {
	if !ValidToken(token) {
		return nil, fmt.Errorf("%w: некорректный токен", ErrNotFound)
	}

	rec, err := s.recordRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: неизвестный токен", ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка поиска записи по токену: %w", err)
	}

	item, err := s.contentRepo.Get(ctx, rec.ContentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: контент %d не найден", ErrNotFound, rec.ContentID)
		}
		return nil, fmt.Errorf("ошибка получения контента %d: %w", rec.ContentID, err)
	}

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	return &ReviewContext{Record: rec, Content: item, Settings: settings}, nil
}

// CheckPassword сравнивает введённый пароль с паролем из настроек за постоянное время.
func (s *ReviewService) CheckPassword(rc *ReviewContext, entered string) bool {
	required := rc.Settings.ReviewPassword
	if required == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(entered), []byte(required)) == 1
}

// Submit сохраняет ответ мейнтейнера и меняет статус записи.
//
// approve: запись становится compliant со следующим сроком по периодичности.
// edit: правки сохраняются, запись становится pending_changes, менеджер
// получает письмо; ошибка отправки письма только логируется.
// Токен ссылки не меняется.
func (s *ReviewService) Submit(
	ctx context.Context,
	rc *ReviewContext,
	in SubmissionInput,
) (compliance.ReviewAction, error) {
	action, err := compliance.ParseReviewAction(strings.TrimSpace(in.Action))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	rec := rc.Record
	trigger := compliance.TriggerApprove
	if action == compliance.ActionEdit {
		trigger = compliance.TriggerEdit
	}
	next, err := compliance.Next(rec.Status, trigger)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}

	sub := &model.ReviewSubmission{
		ContentID:       rec.ContentID,
		ReviewToken:     rec.ReviewToken,
		MaintainerEmail: rec.MaintainerEmail,
		MaintainerNotes: strings.TrimSpace(markup.NormalizeNewlines(in.Notes)),
		Action:          action,
	}
	if action == compliance.ActionEdit {
		sub.Data = &model.SubmissionData{
			Title:   strings.TrimSpace(markup.NormalizeNewlines(in.Title)),
			Excerpt: strings.TrimSpace(markup.NormalizeNewlines(in.Excerpt)),
			Content: markup.Restore(in.Content, rc.Content.Body),
		}
	}

	if err := s.reviewRepo.Create(ctx, sub); err != nil {
		return "", fmt.Errorf("ошибка сохранения ответа: %w", err)
	}

	defer s.cache.Delete(rec.ContentID)
	log := s.logger.With(
		slog.Int64("content_id", rec.ContentID),
		slog.Int64("submission_id", sub.ID),
		slog.String("action", string(action)),
	)

	if action == compliance.ActionApprove {
		now := s.now().UTC()
		nextReview := rc.Settings.CheckFrequency.NextReviewDate(now)
		if err := s.recordRepo.MarkReviewed(ctx, rec.ID, next, now, &nextReview); err != nil {
			return "", fmt.Errorf("ошибка обновления записи соответствия: %w", err)
		}
		log.Info("Контент подтверждён мейнтейнером", slog.Time("next_review_at", nextReview))
		return action, nil
	}

	if err := s.recordRepo.UpdateStatus(ctx, rec.ID, next); err != nil {
		return "", fmt.Errorf("ошибка обновления записи соответствия: %w", err)
	}
	if err := s.notifier.SendManagerNotification(ctx, rc.Settings, rc.Content, rec.MaintainerEmail, sub.Data, sub.MaintainerNotes); err != nil {
		log.Warn("Письмо менеджеру не отправлено", slog.String("error", err.Error()))
	}
	log.Info("Мейнтейнер прислал правки")
	return action, nil
}

// Get возвращает ответ мейнтейнера с заголовком контента.
func (s *ReviewService) Get(ctx context.Context, id int64) (*model.ReviewDetail, error) {
	d, err := s.reviewRepo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения ответа %d: %w", id, err)
	}
	return d, nil
}

// MarkProcessed отмечает ответ обработанным менеджером by.
// Запись соответствия контента становится compliant с текущим временем проверки,
// срок следующей проверки не меняется. Повторная обработка возвращает ErrConflict.
func (s *ReviewService) MarkProcessed(ctx context.Context, id int64, by string) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if err := s.reviewRepo.MarkProcessed(ctx, id, by, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return ErrNotFound
		case errors.Is(err, repository.ErrConflict):
			return fmt.Errorf("%w: ответ %d уже обработан", ErrConflict, id)
		}
		return fmt.Errorf("ошибка обработки ответа %d: %w", id, err)
	}

	rec, err := s.recordRepo.GetByContentID(ctx, d.ContentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: запись соответствия контента %d не найдена", ErrNotFound, d.ContentID)
		}
		return fmt.Errorf("ошибка получения записи соответствия %d: %w", d.ContentID, err)
	}
	next, err := compliance.Next(rec.Status, compliance.TriggerProcessed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	if err := s.recordRepo.MarkReviewed(ctx, rec.ID, next, now, nil); err != nil {
		return fmt.Errorf("ошибка обновления записи соответствия: %w", err)
	}
	s.cache.Delete(d.ContentID)

	s.logger.Info("Ответ мейнтейнера обработан",
		slog.Int64("submission_id", id),
		slog.Int64("content_id", d.ContentID),
		slog.String("processed_by", by),
	)
	return nil
}
