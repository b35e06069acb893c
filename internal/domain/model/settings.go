package model

import (
	"slices"
	"time"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
)

// Settings: настройки сервиса, хранятся одним JSON по фиксированному ключу.
// Загружаются один раз на запрос или прогон проверки и передаются явно.
type Settings struct {
	// EnabledContentTypes: типы контента, для которых ведётся проверка
	EnabledContentTypes []string `json:"enabled_content_types" validate:"required,min=1,dive,required,max=64"`
	// CheckFrequency: периодичность проверок
	CheckFrequency compliance.Frequency `json:"check_frequency" validate:"frequency"`
	// NonResponseAction: действие при отсутствии ответа
	NonResponseAction compliance.NonResponseAction `json:"non_response_action" validate:"non_response_action"`
	// ManagerEmail: адрес менеджера, получающего правки
	ManagerEmail string `json:"manager_email" validate:"omitempty,email"`
	// DefaultMaintainers: мейнтейнер по умолчанию для каждого типа контента
	DefaultMaintainers map[string]string `json:"default_maintainers" validate:"dive,keys,required,endkeys,omitempty,email"`

	EmailSubject         string `json:"email_subject" validate:"required,max=255"`
	EmailTemplate        string `json:"email_template" validate:"required"`
	ManagerEmailSubject  string `json:"manager_email_subject" validate:"required,max=255"`
	ManagerEmailTemplate string `json:"manager_email_template" validate:"required"`

	// ReviewPassword: общий пароль формы проверки (если пусто, пароль не нужен)
	ReviewPassword string `json:"review_password" validate:"max=255"`
}

// ContentTypeEnabled проверяет, включена ли проверка для типа контента.
func (s *Settings) ContentTypeEnabled(contentType string) bool {
	return slices.Contains(s.EnabledContentTypes, contentType)
}

// DefaultMaintainer возвращает мейнтейнера по умолчанию для типа контента.
func (s *Settings) DefaultMaintainer(contentType string) string {
	return s.DefaultMaintainers[contentType]
}

// SettingsMeta: сведения о последнем сохранении настроек.
type SettingsMeta struct {
	UpdatedAt time.Time
	UpdatedBy string
}
