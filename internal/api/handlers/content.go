// content.go: обработчики контента и его записи соответствия.
// PUT /api/v1/content/{contentID}: зеркало единицы контента
// GET/PUT /api/v1/content/{contentID}/compliance: запись соответствия
// POST /api/v1/content/{contentID}/send-review: письмо мейнтейнеру
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/signalfire/content-compliance/internal/domain/model"
)

// UpsertContent: создание или обновление зеркала контента.
func (h *APIHandler) UpsertContent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "contentID")
	if !ok {
		return
	}
	var req contentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item := &model.ContentItem{
		ID:          id,
		ContentType: req.ContentType,
		Title:       req.Title,
		Excerpt:     req.Excerpt,
		Body:        req.Body,
		Status:      strings.TrimSpace(req.Status),
		URL:         req.URL,
		PublishedAt: req.PublishedAt,
	}
	if err := h.compliance.UpsertContent(r.Context(), item); err != nil {
		h.handleServiceError(w, err, "Ошибка сохранения контента", slog.Int64("content_id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCompliance: запись соответствия контента.
func (h *APIHandler) GetCompliance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "contentID")
	if !ok {
		return
	}

	rec, err := h.compliance.GetCompliance(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err, "Ошибка получения записи соответствия", slog.Int64("content_id", id))
		return
	}
	writeJSON(w, http.StatusOK, h.complianceResponse(rec))
}

// SaveCompliance: мейнтейнер и срок проверки контента.
// Если мейнтейнер не задан и для типа нет адреса по умолчанию, возвращает 204.
func (h *APIHandler) SaveCompliance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "contentID")
	if !ok {
		return
	}
	var req complianceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := h.compliance.SaveContentSettings(r.Context(), id, req.MaintainerEmail, req.NextReviewAt)
	if err != nil {
		h.handleServiceError(w, err, "Ошибка сохранения записи соответствия", slog.Int64("content_id", id))
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, h.complianceResponse(rec))
}

// SendReview: отправка мейнтейнеру письма о проверке.
func (h *APIHandler) SendReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "contentID")
	if !ok {
		return
	}

	to, err := h.compliance.SendReview(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err, "Ошибка отправки уведомления", slog.Int64("content_id", id))
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Compliance notification sent to %s.", to),
		Email:   optionalEmail(to),
	})
}

func (h *APIHandler) complianceResponse(rec *model.ComplianceRecord) complianceResponse {
	return complianceResponse{
		ContentID:       rec.ContentID,
		MaintainerEmail: openapi_types.Email(rec.MaintainerEmail),
		LastReviewAt:    rec.LastReviewAt,
		NextReviewAt:    rec.NextReviewAt,
		Status:          rec.Status,
		ReviewURL:       h.notifier.ReviewURL(rec.ReviewToken),
	}
}
