// settings.go: обработчики настроек сервиса.
// GET /api/v1/settings: текущие настройки (пароль формы не возвращается)
// PUT /api/v1/settings: сохранение настроек
package handlers

import (
	"net/http"

	"github.com/signalfire/content-compliance/internal/api/middleware"
)

// GetSettings: текущие настройки.
func (h *APIHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, meta, err := h.settings.LoadWithMeta(r.Context())
	if err != nil {
		h.handleServiceError(w, err, "Ошибка получения настроек")
		return
	}
	writeJSON(w, http.StatusOK, newSettingsResponse(settings, meta))
}

// UpdateSettings: сохранение настроек.
func (h *APIHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	actor := middleware.ActorFromContext(r.Context())
	settings, err := h.settings.Save(r.Context(), req.toModel(), req.ReviewPassword, actor)
	if err != nil {
		h.handleServiceError(w, err, "Ошибка сохранения настроек")
		return
	}

	_, meta, err := h.settings.LoadWithMeta(r.Context())
	if err != nil {
		h.logger.Warn("Не удалось прочитать сведения о сохранении настроек", "error", err)
		meta = nil
	}
	writeJSON(w, http.StatusOK, newSettingsResponse(settings, meta))
}
