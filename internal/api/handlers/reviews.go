// reviews.go: ответы мейнтейнеров.
// GET /api/v1/reviews/{reviewID}
// POST /api/v1/reviews/{reviewID}/processed
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/signalfire/content-compliance/internal/api/middleware"
)

// GetReview: ответ мейнтейнера с заголовком контента.
func (h *APIHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "reviewID")
	if !ok {
		return
	}

	d, err := h.reviews.Get(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err, "Ошибка получения ответа", slog.Int64("review_id", id))
		return
	}
	writeJSON(w, http.StatusOK, newReviewResponse(d))
}

// MarkReviewProcessed: отметка ответа обработанным.
func (h *APIHandler) MarkReviewProcessed(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "reviewID")
	if !ok {
		return
	}

	actor := middleware.ActorFromContext(r.Context())
	if err := h.reviews.MarkProcessed(r.Context(), id, actor); err != nil {
		h.handleServiceError(w, err, "Ошибка обработки ответа", slog.Int64("review_id", id))
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Review marked as processed."})
}
