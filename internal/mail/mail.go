// Пакет mail: отправка HTML-писем через SMTP (gomail) и подстановка
// плейсхолдеров в шаблоны писем.
package mail

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// Mailer: отправитель HTML-писем.
type Mailer interface {
	// Send отправляет одно письмо. Ошибка означает, что письмо не принято SMTP-сервером.
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPConfig: параметры подключения к SMTP-серверу.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From: адрес отправителя (может содержать имя: "Site <noreply@example.com>")
	From string
}

// SMTPMailer: Mailer поверх gomail.Dialer.
// Каждое письмо отправляется в отдельном SMTP-соединении.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	logger *slog.Logger
}

// NewSMTPMailer создаёт отправителя писем.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger.With(slog.String("component", "smtp_mailer")),
	}
}

// Send отправляет письмо. gomail не принимает context, поэтому
// отменённый контекст проверяется только до подключения.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("ошибка отправки письма на %s: %w", to, err)
	}

	m.logger.Debug("Письмо отправлено",
		slog.String("to", to),
		slog.String("subject", subject),
	)
	return nil
}
