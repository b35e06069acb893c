// handler.go: основной обработчик admin API.
// Объединяет все доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/signalfire/content-compliance/internal/api/errors"
	"github.com/signalfire/content-compliance/internal/service"
)

// APIHandler: основной обработчик admin API.
type APIHandler struct {
	health     *HealthHandler
	settings   *service.SettingsService
	compliance *service.ComplianceService
	sweep      *service.SweepService
	notifier   *service.Notifier
	reviews    *service.ReviewService
	bulk       *service.BulkService
	reports    *service.ReportService
	validate   *validator.Validate
	logger     *slog.Logger
}

// Services: сервисы, которые использует APIHandler.
type Services struct {
	Settings   *service.SettingsService
	Compliance *service.ComplianceService
	Sweep      *service.SweepService
	Notifier   *service.Notifier
	Reviews    *service.ReviewService
	Bulk       *service.BulkService
	Reports    *service.ReportService
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(health *HealthHandler, svc Services, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health:     health,
		settings:   svc.Settings,
		compliance: svc.Compliance,
		sweep:      svc.Sweep,
		notifier:   svc.Notifier,
		reviews:    svc.Reviews,
		bulk:       svc.Bulk,
		reports:    svc.Reports,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive: liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady: readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics: Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса. При ошибке пишет 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return false
	}
	return true
}

// pathID извлекает положительный числовой параметр пути.
// При ошибке пишет 400 и возвращает false.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		apierrors.ValidationError(w, "Некорректный идентификатор "+name)
		return 0, false
	}
	return id, true
}

// handleServiceError отображает ошибку сервисного слоя в HTTP-ответ.
// Неизвестные ошибки логируются и возвращаются как 500.
func (h *APIHandler) handleServiceError(w http.ResponseWriter, err error, logMsg string, attrs ...any) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, detail(err, service.ErrValidation))
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, detail(err, service.ErrNotFound))
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, detail(err, service.ErrConflict))
	case errors.Is(err, service.ErrInvalidTransition):
		apierrors.Conflict(w, detail(err, service.ErrInvalidTransition))
	case errors.Is(err, service.ErrSweepInProgress):
		apierrors.Conflict(w, detail(err, service.ErrSweepInProgress))
	case errors.Is(err, service.ErrMailUnavailable):
		h.logger.Warn(logMsg, append(attrs, "error", err)...)
		apierrors.MailUnavailable(w, detail(err, service.ErrMailUnavailable))
	default:
		h.logger.Error(logMsg, append(attrs, "error", err)...)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// detail убирает из текста ошибки префикс sentinel-ошибки.
// Если уточнения нет, возвращает текст sentinel.
func detail(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok && rest != "" {
		return rest
	}
	return msg
}
