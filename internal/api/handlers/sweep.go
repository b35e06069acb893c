// sweep.go: ручной запуск проверки и тестовое письмо.
// POST /api/v1/sweep/run
// POST /api/v1/test-email
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apierrors "github.com/signalfire/content-compliance/internal/api/errors"
)

// RunSweep: внеочередной прогон проверки.
func (h *APIHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	summary, err := h.sweep.RunNow(r.Context())
	if err != nil {
		h.handleServiceError(w, err, "Ошибка прогона проверки")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// SendTestEmail: проверочное письмо. Без адреса в теле письмо уходит менеджеру.
func (h *APIHandler) SendTestEmail(w http.ResponseWriter, r *http.Request) {
	var req testEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return
	}

	to := strings.TrimSpace(req.Email)
	if to == "" {
		settings, err := h.settings.Load(r.Context())
		if err != nil {
			h.handleServiceError(w, err, "Ошибка получения настроек")
			return
		}
		to = settings.ManagerEmail
	}
	if to == "" {
		apierrors.ValidationError(w, "Не задан адрес получателя и адрес менеджера в настройках")
		return
	}
	if err := h.validate.Var(to, "email"); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный адрес %q", to))
		return
	}

	if err := h.notifier.SendTestEmail(r.Context(), to); err != nil {
		h.handleServiceError(w, err, "Ошибка отправки тестового письма")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Test email sent to %s.", to),
		Email:   optionalEmail(to),
	})
}
