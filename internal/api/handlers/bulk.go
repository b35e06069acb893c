// bulk.go: массовая рассылка.
// POST /api/v1/bulk-operations: список целей и новая операция
// PATCH /api/v1/bulk-operations/{operationID}: прогресс операции
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/signalfire/content-compliance/internal/api/errors"
	"github.com/signalfire/content-compliance/internal/api/middleware"
	"github.com/signalfire/content-compliance/internal/domain/compliance"
)

// CreateBulkOperation: подбор целей рассылки и создание операции.
func (h *APIHandler) CreateBulkOperation(w http.ResponseWriter, r *http.Request) {
	var req bulkListRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	actor := middleware.ActorFromContext(r.Context())
	list, err := h.bulk.List(r.Context(), req.ContentType, req.OverdueOnly, actor)
	if err != nil {
		h.handleServiceError(w, err, "Ошибка подготовки массовой рассылки",
			slog.String("content_type", req.ContentType))
		return
	}

	resp := bulkListResponse{
		OperationID: list.Operation.ID,
		Total:       list.Operation.TotalItems,
		Items:       make([]bulkTargetResponse, 0, len(list.Items)),
		Message:     list.Message,
	}
	for _, t := range list.Items {
		resp.Items = append(resp.Items, bulkTargetResponse{
			ID:         t.ContentID,
			Title:      t.Title,
			Maintainer: t.MaintainerEmail,
		})
	}
	writeJSON(w, http.StatusCreated, resp)
}

// UpdateBulkOperation: счётчики и статус операции.
func (h *APIHandler) UpdateBulkOperation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "operationID")
	if !ok {
		return
	}
	var req bulkUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status, err := compliance.ParseBulkStatus(req.Status)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	op, err := h.bulk.Update(r.Context(), id, req.Successful, req.Failed, status)
	if err != nil {
		h.handleServiceError(w, err, "Ошибка обновления массовой операции", slog.Int64("operation_id", id))
		return
	}
	writeJSON(w, http.StatusOK, newBulkOperationResponse(op))
}
