// errors.go: ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound: ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict: конфликт (повторная обработка, завершённая операция).
	ErrConflict = errors.New("конфликт состояния ресурса")
	// ErrValidation: ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrInvalidTransition: недопустимый переход статуса записи соответствия.
	ErrInvalidTransition = errors.New("недопустимый переход статуса")
	// ErrSweepInProgress: проверка уже выполняется.
	ErrSweepInProgress = errors.New("проверка уже выполняется")
	// ErrMailUnavailable: SMTP-сервер не принял письмо.
	ErrMailUnavailable = errors.New("почтовый сервер недоступен")
)
