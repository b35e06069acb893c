// notifier.go: отправка писем мейнтейнерам и менеджеру.
//
// Prometheus-метрики:
//   - cc_mail_sent_total: количество писем по виду и результату
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/signalfire/content-compliance/internal/domain/model"
	"github.com/signalfire/content-compliance/internal/mail"
)

var mailSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cc_mail_sent_total",
	Help: "Количество отправленных писем",
}, []string{"kind", "result"}) // kind: review, manager, test; result: ok, error

// Виды писем для метрик.
const (
	mailKindReview  = "review"
	mailKindManager = "manager"
	mailKindTest    = "test"
)

// NotifierConfig: параметры ссылок в письмах.
type NotifierConfig struct {
	// PublicBaseURL: внешний адрес сервиса без завершающего слэша
	PublicBaseURL string
	// SiteName: название сайта для писем и страниц
	SiteName string
	// EditURLPattern: ссылка на редактирование контента, {id} заменяется на ID
	EditURLPattern string
}

// Notifier формирует и отправляет письма по шаблонам из настроек.
type Notifier struct {
	mailer mail.Mailer
	cfg    NotifierConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewNotifier создаёт отправителя уведомлений.
func NewNotifier(mailer mail.Mailer, cfg NotifierConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		mailer: mailer,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "notifier")),
		now:    time.Now,
	}
}

// SiteName возвращает название сайта.
func (n *Notifier) SiteName() string {
	return n.cfg.SiteName
}

// ReviewURL возвращает публичную ссылку на форму проверки.
func (n *Notifier) ReviewURL(token string) string {
	return n.cfg.PublicBaseURL + "/review/" + token + "/"
}

// EditURL возвращает ссылку на редактирование контента.
func (n *Notifier) EditURL(contentID int64) string {
	return strings.ReplaceAll(n.cfg.EditURLPattern, "{id}", strconv.FormatInt(contentID, 10))
}

// SendReviewRequest отправляет мейнтейнеру письмо со ссылкой на форму проверки.
func (n *Notifier) SendReviewRequest(
	ctx context.Context,
	settings *model.Settings,
	item *model.ContentItem,
	rec *model.ComplianceRecord,
) error {
	vars := mail.Vars{
		ContentTitle:    item.Title,
		ContentURL:      item.URL,
		ReviewURL:       n.ReviewURL(rec.ReviewToken),
		MaintainerEmail: rec.MaintainerEmail,
		SiteName:        n.cfg.SiteName,
	}
	subject := mail.RenderText(settings.EmailSubject, vars)
	body := mail.RenderHTML(settings.EmailTemplate, vars)

	return n.send(ctx, mailKindReview, rec.MaintainerEmail, subject, body,
		slog.Int64("content_id", item.ID))
}

// SendManagerNotification отправляет менеджеру правки мейнтейнера.
func (n *Notifier) SendManagerNotification(
	ctx context.Context,
	settings *model.Settings,
	item *model.ContentItem,
	maintainerEmail string,
	data *model.SubmissionData,
	notes string,
) error {
	if settings.ManagerEmail == "" {
		return fmt.Errorf("%w: адрес менеджера не задан", ErrValidation)
	}

	var summary string
	if data != nil {
		summary = mail.ChangesSummary(
			mail.Change{Label: "Title", Proposed: data.Title, Current: item.Title},
			mail.Change{Label: "Excerpt", Proposed: data.Excerpt, Current: item.Excerpt},
			mail.Change{Label: "Content", Proposed: data.Content, Current: item.Body},
		)
	}

	vars := mail.Vars{
		ContentTitle:    item.Title,
		ContentURL:      item.URL,
		MaintainerEmail: maintainerEmail,
		SiteName:        n.cfg.SiteName,
		EditURL:         n.EditURL(item.ID),
		MaintainerNotes: notes,
		ChangesSummary:  summary,
	}
	subject := mail.RenderText(settings.ManagerEmailSubject, vars)
	body := mail.RenderHTML(settings.ManagerEmailTemplate, vars)

	return n.send(ctx, mailKindManager, settings.ManagerEmail, subject, body,
		slog.Int64("content_id", item.ID))
}

// SendTestEmail отправляет проверочное письмо на адрес to.
func (n *Notifier) SendTestEmail(ctx context.Context, to string) error {
	site := n.cfg.SiteName
	subject := fmt.Sprintf("[%s] Test Email from Content Compliance Plugin", site)
	body := fmt.Sprintf(`<html><body>
<h2>Test Email</h2>
<p>This is a test email from the Content Compliance service.</p>
<p><strong>Site:</strong> %s<br>
<strong>URL:</strong> %s<br>
<strong>Time:</strong> %s</p>
<p>If you received this email, email delivery is working correctly.</p>
</body></html>`,
		templ.EscapeString(site),
		templ.EscapeString(n.cfg.PublicBaseURL),
		n.now().UTC().Format(time.DateTime),
	)

	return n.send(ctx, mailKindTest, to, subject, body)
}

// send отправляет письмо, пишет лог и метрику. Ошибка оборачивает ErrMailUnavailable.
func (n *Notifier) send(ctx context.Context, kind, to, subject, body string, attrs ...any) error {
	err := n.mailer.Send(ctx, to, subject, body)
	if err != nil {
		mailSentTotal.WithLabelValues(kind, "error").Inc()
		n.logger.Warn("Ошибка отправки письма",
			append([]any{
				slog.String("kind", kind),
				slog.String("to", to),
				slog.String("error", err.Error()),
			}, attrs...)...,
		)
		return fmt.Errorf("%w: %v", ErrMailUnavailable, err)
	}

	mailSentTotal.WithLabelValues(kind, "ok").Inc()
	n.logger.Info("Письмо отправлено",
		append([]any{
			slog.String("kind", kind),
			slog.String("to", to),
		}, attrs...)...,
	)
	return nil
}
