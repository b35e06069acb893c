// settings.go: сервис настроек проверки соответствия.
// Настройки хранятся одним JSON-документом по ключу SettingsKey,
// загружаются один раз на запрос или прогон и передаются явно.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
	"github.com/signalfire/content-compliance/internal/domain/model"
	"github.com/signalfire/content-compliance/internal/mail"
	"github.com/signalfire/content-compliance/internal/repository"
)

// SettingsKey: ключ документа настроек в таблице settings.
const SettingsKey = "content_compliance"

// SettingsService: сервис для работы с настройками.
type SettingsService struct {
	repo                repository.SettingsRepository
	validate            *validator.Validate
	defaultManagerEmail string
	logger              *slog.Logger
}

// NewSettingsService создаёт сервис настроек.
// defaultManagerEmail: адрес менеджера, пока он не задан в настройках.
func NewSettingsService(
	repo repository.SettingsRepository,
	defaultManagerEmail string,
	logger *slog.Logger,
) *SettingsService {
	return &SettingsService{
		repo:                repo,
		validate:            newValidator(),
		defaultManagerEmail: defaultManagerEmail,
		logger:              logger.With(slog.String("service", "settings")),
	}
}

// Defaults возвращает настройки по умолчанию.
func (s *SettingsService) Defaults() *model.Settings {
	return &model.Settings{
		EnabledContentTypes:  []string{"post", "page"},
		CheckFrequency:       compliance.FrequencyMonthly,
		NonResponseAction:    compliance.NonResponseNothing,
		ManagerEmail:         s.defaultManagerEmail,
		DefaultMaintainers:   map[string]string{},
		EmailSubject:         mail.DefaultReviewSubject,
		EmailTemplate:        mail.DefaultReviewTemplate,
		ManagerEmailSubject:  mail.DefaultManagerSubject,
		ManagerEmailTemplate: mail.DefaultManagerTemplate,
	}
}

// Load возвращает текущие настройки. Отсутствующие поля берутся из Defaults.
func (s *SettingsService) Load(ctx context.Context) (*model.Settings, error) {
	settings, _, err := s.LoadWithMeta(ctx)
	return settings, err
}

// LoadWithMeta возвращает настройки и сведения о последнем сохранении.
// Если настройки ещё не сохранялись, meta == nil.
func (s *SettingsService) LoadWithMeta(ctx context.Context) (*model.Settings, *model.SettingsMeta, error) {
	settings := s.Defaults()

	stored, err := s.repo.Get(ctx, SettingsKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return settings, nil, nil
		}
		return nil, nil, fmt.Errorf("ошибка получения настроек: %w", err)
	}

	if err := json.Unmarshal(stored.Value, settings); err != nil {
		return nil, nil, fmt.Errorf("ошибка разбора настроек: %w", err)
	}
	if settings.DefaultMaintainers == nil {
		settings.DefaultMaintainers = map[string]string{}
	}

	return settings, &model.SettingsMeta{UpdatedAt: stored.UpdatedAt, UpdatedBy: stored.UpdatedBy}, nil
}

// Save нормализует, валидирует и сохраняет настройки.
// password == nil оставляет текущий пароль формы проверки без изменений.
// Мейнтейнеры по умолчанию сохраняются только для включённых типов контента.
func (s *SettingsService) Save(
	ctx context.Context,
	in model.Settings,
	password *string,
	updatedBy string,
) (*model.Settings, error) {
	if password != nil {
		in.ReviewPassword = *password
	} else {
		current, err := s.Load(ctx)
		if err != nil {
			return nil, err
		}
		in.ReviewPassword = current.ReviewPassword
	}

	settings := s.normalize(in)

	if err := s.validate.Struct(settings); err != nil {
		return nil, validationError(err)
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации настроек: %w", err)
	}
	if err := s.repo.Set(ctx, SettingsKey, data, updatedBy); err != nil {
		return nil, fmt.Errorf("ошибка сохранения настроек: %w", err)
	}

	s.logger.Info("Настройки обновлены",
		slog.String("updated_by", updatedBy),
		slog.String("check_frequency", string(settings.CheckFrequency)),
		slog.String("non_response_action", string(settings.NonResponseAction)),
		slog.Int("content_types", len(settings.EnabledContentTypes)),
	)
	return settings, nil
}

// normalize обрезает пробелы, убирает дубли типов контента,
// подставляет шаблоны по умолчанию вместо пустых.
func (s *SettingsService) normalize(in model.Settings) *model.Settings {
	out := in

	out.EnabledContentTypes = nil
	seen := make(map[string]bool, len(in.EnabledContentTypes))
	for _, ct := range in.EnabledContentTypes {
		ct = strings.TrimSpace(ct)
		if ct == "" || seen[ct] {
			continue
		}
		seen[ct] = true
		out.EnabledContentTypes = append(out.EnabledContentTypes, ct)
	}

	out.DefaultMaintainers = make(map[string]string, len(in.DefaultMaintainers))
	for ct, email := range in.DefaultMaintainers {
		email = strings.TrimSpace(email)
		if email == "" || !seen[ct] {
			continue
		}
		out.DefaultMaintainers[ct] = email
	}

	out.ManagerEmail = strings.TrimSpace(in.ManagerEmail)

	defaults := s.Defaults()
	out.EmailSubject = orDefault(in.EmailSubject, defaults.EmailSubject)
	out.EmailTemplate = orDefault(in.EmailTemplate, defaults.EmailTemplate)
	out.ManagerEmailSubject = orDefault(in.ManagerEmailSubject, defaults.ManagerEmailSubject)
	out.ManagerEmailTemplate = orDefault(in.ManagerEmailTemplate, defaults.ManagerEmailTemplate)

	return &out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
