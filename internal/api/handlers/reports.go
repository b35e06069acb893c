// reports.go: сводный отчёт.
// GET /api/v1/reports/summary
package handlers

import (
	"net/http"
)

// GetReportSummary: счётчики по статусам, просроченный контент,
// последние ответы, массовые операции и итог последнего прогона.
func (h *APIHandler) GetReportSummary(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.Summary(r.Context())
	if err != nil {
		h.handleServiceError(w, err, "Ошибка построения отчёта")
		return
	}

	resp := reportResponse{
		Counts:         rep.Counts,
		Overdue:        make([]overdueItemResponse, 0, len(rep.Overdue)),
		RecentReviews:  make([]reviewResponse, 0, len(rep.RecentReviews)),
		BulkOperations: make([]bulkOperationResponse, 0, len(rep.BulkOperations)),
	}
	for _, o := range rep.Overdue {
		resp.Overdue = append(resp.Overdue, overdueItemResponse(o))
	}
	for i := range rep.RecentReviews {
		resp.RecentReviews = append(resp.RecentReviews, newReviewResponse(&rep.RecentReviews[i]))
	}
	for i := range rep.BulkOperations {
		resp.BulkOperations = append(resp.BulkOperations, newBulkOperationResponse(&rep.BulkOperations[i]))
	}
	if rep.LastSweep != nil {
		resp.LastSweepAt = rep.LastSweep.LastSweepAt
		resp.LastSweep = rep.LastSweep.LastSummary
	}
	writeJSON(w, http.StatusOK, resp)
}
