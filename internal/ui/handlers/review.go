// Пакет handlers: HTTP-обработчики публичной формы проверки контента.
// review.go: форма по ссылке из письма: пароль, CSRF, ответ мейнтейнера.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
	"github.com/signalfire/content-compliance/internal/service"
	"github.com/signalfire/content-compliance/internal/ui/auth"
	"github.com/signalfire/content-compliance/internal/ui/pages"
)

// maxFormBytes: ограничение размера тела формы.
const maxFormBytes = 1 << 20

const (
	msgIncorrectPassword = "Incorrect password. Please try again."
	msgApproved          = "Thank you! Content has been approved and marked as compliant."
	msgChangesSubmitted  = "Thank you! Your changes have been submitted to the website manager for review."
)

// ReviewHandler: обработчики публичной формы проверки.
type ReviewHandler struct {
	reviews  *service.ReviewService
	signer   *auth.Signer
	siteName string
	logger   *slog.Logger
}

// NewReviewHandler создаёт обработчики формы проверки.
func NewReviewHandler(
	reviews *service.ReviewService,
	signer *auth.Signer,
	siteName string,
	logger *slog.Logger,
) *ReviewHandler {
	return &ReviewHandler{
		reviews:  reviews,
		signer:   signer,
		siteName: siteName,
		logger:   logger.With(slog.String("component", "ui_review")),
	}
}

// HandleForm: GET /review/{token}/
// Показывает форму проверки или форму пароля.
func (h *ReviewHandler) HandleForm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	rc, ok := h.resolve(w, r, token)
	if !ok {
		return
	}

	if rc.PasswordRequired() && !h.signer.HasAccess(r, token) {
		h.renderPassword(w, r, http.StatusOK, rc, token, "")
		return
	}
	h.renderReview(w, r, http.StatusOK, rc, token, "")
}

// HandlePassword: POST /review/{token}/password
// Проверяет пароль и выдаёт cookie доступа к форме.
func (h *ReviewHandler) HandlePassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	rc, ok := h.resolve(w, r, token)
	if !ok {
		return
	}
	if !h.parseForm(w, r, token) {
		return
	}

	if !rc.PasswordRequired() {
		http.Redirect(w, r, auth.CookiePath(token), http.StatusSeeOther)
		return
	}
	if !h.reviews.CheckPassword(rc, r.PostFormValue("review_password")) {
		h.logger.Info("Неверный пароль формы проверки", slog.Int64("content_id", rc.Record.ContentID))
		h.renderPassword(w, r, http.StatusOK, rc, token, msgIncorrectPassword)
		return
	}

	if err := h.signer.SetAccessCookie(w, token); err != nil {
		h.logger.Error("Ошибка выпуска токена доступа", slog.String("error", err.Error()))
		render(w, r, http.StatusInternalServerError, pages.ServerError(), h.logger)
		return
	}
	http.Redirect(w, r, auth.CookiePath(token), http.StatusSeeOther)
}

// HandleSubmit: POST /review/{token}/
// Сохраняет ответ мейнтейнера и показывает страницу благодарности.
func (h *ReviewHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	rc, ok := h.resolve(w, r, token)
	if !ok {
		return
	}
	if !h.parseForm(w, r, token) {
		return
	}
	if rc.PasswordRequired() && !h.signer.HasAccess(r, token) {
		h.renderPassword(w, r, http.StatusOK, rc, token, "")
		return
	}

	in := service.SubmissionInput{
		Action:  r.PostFormValue("review_action"),
		Title:   r.PostFormValue("new_title"),
		Excerpt: r.PostFormValue("new_excerpt"),
		Content: r.PostFormValue("new_content"),
		Notes:   r.PostFormValue("maintainer_notes"),
	}
	action, err := h.reviews.Submit(r.Context(), rc, in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			h.renderReview(w, r, http.StatusBadRequest, rc, token, "Please choose a valid action.")
		case errors.Is(err, service.ErrInvalidTransition):
			h.logger.Warn("Ответ отклонён", slog.String("error", err.Error()))
			render(w, r, http.StatusConflict, pages.Message(pages.MessageData{
				Title:   "Review not accepted",
				Message: "This content cannot be reviewed right now.",
				Kind:    pages.MessageFailure,
			}), h.logger)
		default:
			h.logger.Error("Ошибка сохранения ответа мейнтейнера",
				slog.Int64("content_id", rc.Record.ContentID),
				slog.String("error", err.Error()),
			)
			render(w, r, http.StatusInternalServerError, pages.ServerError(), h.logger)
		}
		return
	}

	msg := msgApproved
	if action == compliance.ActionEdit {
		msg = msgChangesSubmitted
	}
	render(w, r, http.StatusOK, pages.ThankYou(msg), h.logger)
}

// RateLimited: страница превышения лимита для ограничителя частоты.
func (h *ReviewHandler) RateLimited(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusTooManyRequests, pages.TooManyRequests(), h.logger)
}

// resolve находит запись по токену. При ошибке пишет страницу и возвращает false.
func (h *ReviewHandler) resolve(w http.ResponseWriter, r *http.Request, token string) (*service.ReviewContext, bool) {
	rc, err := h.reviews.Resolve(r.Context(), token)
	if err == nil {
		return rc, true
	}
	if errors.Is(err, service.ErrNotFound) {
		render(w, r, http.StatusNotFound, pages.InvalidLink(), h.logger)
		return nil, false
	}
	h.logger.Error("Ошибка поиска ссылки проверки", slog.String("error", err.Error()))
	render(w, r, http.StatusInternalServerError, pages.ServerError(), h.logger)
	return nil, false
}

// parseForm разбирает форму и проверяет CSRF-токен.
// При ошибке пишет страницу 403 и возвращает false.
func (h *ReviewHandler) parseForm(w http.ResponseWriter, r *http.Request, token string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		render(w, r, http.StatusBadRequest, pages.Message(pages.MessageData{
			Title:   "Invalid request",
			Message: "The submitted form could not be read.",
			Kind:    pages.MessageFailure,
		}), h.logger)
		return false
	}
	if err := h.signer.VerifyCSRF(token, r.PostFormValue("csrf_token")); err != nil {
		h.logger.Info("CSRF-проверка не пройдена", slog.String("error", err.Error()))
		render(w, r, http.StatusForbidden, pages.SecurityCheckFailed(), h.logger)
		return false
	}
	return true
}

func (h *ReviewHandler) renderPassword(
	w http.ResponseWriter, r *http.Request, status int,
	rc *service.ReviewContext, token, errMsg string,
) {
	csrf, err := h.signer.IssueCSRF(token)
	if err != nil {
		h.logger.Error("Ошибка выпуска CSRF-токена", slog.String("error", err.Error()))
		render(w, r, http.StatusInternalServerError, pages.ServerError(), h.logger)
		return
	}
	render(w, r, status, pages.Password(pages.PasswordData{
		SiteName:     h.siteName,
		ContentTitle: rc.Content.Title,
		Action:       auth.CookiePath(token) + "password",
		CSRF:         csrf,
		Error:        errMsg,
	}), h.logger)
}

func (h *ReviewHandler) renderReview(
	w http.ResponseWriter, r *http.Request, status int,
	rc *service.ReviewContext, token, errMsg string,
) {
	csrf, err := h.signer.IssueCSRF(token)
	if err != nil {
		h.logger.Error("Ошибка выпуска CSRF-токена", slog.String("error", err.Error()))
		render(w, r, http.StatusInternalServerError, pages.ServerError(), h.logger)
		return
	}
	render(w, r, status, pages.Review(pages.ReviewData{
		SiteName:   h.siteName,
		Title:      rc.Content.Title,
		Excerpt:    rc.Content.Excerpt,
		ContentURL: rc.Content.URL,
		DueAt:      rc.Record.NextReviewAt,
		Body:       rc.EditableBody(),
		Action:     auth.CookiePath(token),
		CSRF:       csrf,
		Error:      errMsg,
	}), h.logger)
}

// render пишет HTML-страницу. Ссылка содержит секретный токен,
// поэтому ответы не кэшируются и не передают Referer.
func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component, logger *slog.Logger) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		logger.Error("Ошибка рендеринга страницы", slog.String("error", err.Error()))
	}
}
