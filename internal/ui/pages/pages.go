// Пакет pages: HTML-страницы публичной формы проверки контента.
// Разметка описана в *.templ, файлы *_templ.go создаются командой templ generate.
package pages

//go:generate templ generate

import (
	"time"

	"github.com/a-h/templ"
)

// currentPreviewLimit: длина превью текущего текста (в рунах).
const currentPreviewLimit = 300

// MessageKind: вид итоговой страницы.
type MessageKind int

const (
	// MessageSuccess: ответ принят.
	MessageSuccess MessageKind = iota
	// MessageFailure: ссылка недействительна или запрос отклонён.
	MessageFailure
)

// MessageData: данные итоговой страницы.
type MessageData struct {
	Title   string
	Message string
	Kind    MessageKind
	// Hint: строка под сообщением (необязательна)
	Hint string
}

// PasswordData: данные формы ввода пароля.
type PasswordData struct {
	SiteName     string
	ContentTitle string
	// Action: адрес отправки формы
	Action string
	CSRF   string
	// Error: сообщение о неверном пароле
	Error string
}

// ReviewData: данные формы проверки.
type ReviewData struct {
	SiteName   string
	Title      string
	Excerpt    string
	ContentURL string
	DueAt      time.Time
	// Body: текст без блочной разметки
	Body   string
	Action string
	CSRF   string
	// Error: сообщение о некорректном вводе
	Error string
}

// ThankYou: страница после принятого ответа.
func ThankYou(message string) templ.Component {
	return Message(MessageData{
		Title:   "Review Submitted",
		Message: message,
		Kind:    MessageSuccess,
		Hint:    "You can now close this window.",
	})
}

// InvalidLink: страница недействительной ссылки.
func InvalidLink() templ.Component {
	return Message(MessageData{
		Title:   "Invalid review link",
		Message: "Invalid review link.",
		Kind:    MessageFailure,
	})
}

// SecurityCheckFailed: страница отклонённой CSRF-проверки.
func SecurityCheckFailed() templ.Component {
	return Message(MessageData{
		Title:   "Security check failed",
		Message: "Security check failed.",
		Kind:    MessageFailure,
		Hint:    "Please reload the review link and try again.",
	})
}

// TooManyRequests: страница превышения лимита запросов.
func TooManyRequests() templ.Component {
	return Message(MessageData{
		Title:   "Too many requests",
		Message: "Too many attempts. Please wait a minute and try again.",
		Kind:    MessageFailure,
	})
}

// ServerError: страница внутренней ошибки.
func ServerError() templ.Component {
	return Message(MessageData{
		Title:   "Error",
		Message: "Something went wrong while processing your review. Please try again later.",
		Kind:    MessageFailure,
	})
}

// dueDate форматирует срок проверки для формы.
func dueDate(t time.Time) string {
	return t.Format("January 2, 2006")
}

// preview возвращает начало текста для блока "Current".
func preview(s string) string {
	p, _ := truncate(s, currentPreviewLimit)
	return p
}

// previewTruncated сообщает, обрезано ли превью.
func previewTruncated(s string) bool {
	_, truncated := truncate(s, currentPreviewLimit)
	return truncated
}

// truncate обрезает s до limit рун.
func truncate(s string, limit int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= limit {
		return s, false
	}
	return string(runes[:limit]) + "…", true
}
