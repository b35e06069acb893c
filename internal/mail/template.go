package mail

import (
	"strings"

	"github.com/a-h/templ"
)

// Шаблоны и темы писем по умолчанию.
const (
	DefaultReviewSubject = "Content Review Required: {post_title}"

	DefaultReviewTemplate = `<html><body>
<h2>Content Review Required</h2>
<p>Dear Maintainer,</p>
<p>The following content on <strong>{site_name}</strong> requires your review for compliance:</p>
<p><strong>Title:</strong> {post_title}<br>
<strong>URL:</strong> <a href="{post_url}">{post_url}</a></p>
<p>Please click the link below to review and approve or submit changes:</p>
<p><a href="{review_url}" style="background: #0073aa; color: white; padding: 10px 20px; text-decoration: none; border-radius: 4px;">Review Content</a></p>
<p>If you have any questions, please contact the website manager.</p>
<p>Thank you,<br>{site_name} Team</p>
</body></html>`

	DefaultManagerSubject = "Content Update Submitted: {post_title}"

	DefaultManagerTemplate = `<html><body>
<h2>Content Update Submitted</h2>
<p>A maintainer has submitted changes for the following content:</p>
<p><strong>Title:</strong> {post_title}<br>
<strong>URL:</strong> <a href="{post_url}">{post_url}</a><br>
<strong>Edit:</strong> <a href="{edit_url}">Edit content</a></p>
<p><strong>Maintainer:</strong> {maintainer_email}</p>
<h3>Submitted Changes:</h3>
<div style="background: #f9f9f9; padding: 15px; border-left: 4px solid #0073aa;">
{changes_summary}
</div>
<h3>Maintainer Notes:</h3>
<div style="background: #f9f9f9; padding: 15px;">
{maintainer_notes}
</div>
<p>Please review and apply these changes as appropriate.</p>
</body></html>`
)

// Vars: значения плейсхолдеров шаблона.
type Vars struct {
	ContentTitle    string
	ContentURL      string
	ReviewURL       string
	MaintainerEmail string
	SiteName        string
	EditURL         string
	MaintainerNotes string
	// ChangesSummary: уже экранированный текст (см. ChangesSummary)
	ChangesSummary string
}

// pairs возвращает пары плейсхолдер → значение для strings.NewReplacer.
// {content_title} и {content_url} работают так же, как {post_title} и {post_url}.
func (v Vars) pairs(esc func(string) string, multiline func(string) string) []string {
	return []string{
		"{post_title}", esc(v.ContentTitle),
		"{content_title}", esc(v.ContentTitle),
		"{post_url}", esc(v.ContentURL),
		"{content_url}", esc(v.ContentURL),
		"{review_url}", esc(v.ReviewURL),
		"{maintainer_email}", esc(v.MaintainerEmail),
		"{site_name}", esc(v.SiteName),
		"{edit_url}", esc(v.EditURL),
		"{maintainer_notes}", multiline(esc(v.MaintainerNotes)),
		"{changes_summary}", multiline(v.ChangesSummary),
	}
}

// RenderText подставляет значения без экранирования (темы писем).
func RenderText(tpl string, v Vars) string {
	same := func(s string) string { return s }
	return strings.NewReplacer(v.pairs(same, same)...).Replace(tpl)
}

// RenderHTML подставляет HTML-экранированные значения.
// Переводы строк в заметках и сводке правок заменяются на <br>.
func RenderHTML(tpl string, v Vars) string {
	return strings.NewReplacer(v.pairs(templ.EscapeString, nl2br)...).Replace(tpl)
}

func nl2br(s string) string {
	return strings.ReplaceAll(s, "\n", "<br>\n")
}

// Change: одно поле правок мейнтейнера.
type Change struct {
	Label    string
	Proposed string
	Current  string
}

// ChangesSummary формирует сводку правок для письма менеджеру.
// В сводку попадают только непустые поля, отличающиеся от текущих значений.
// Значения экранируются; поля разделены пустой строкой.
func ChangesSummary(changes ...Change) string {
	var b strings.Builder
	for _, c := range changes {
		if c.Proposed == "" || c.Proposed == c.Current {
			continue
		}
		b.WriteString(c.Label)
		b.WriteString(": ")
		b.WriteString(templ.EscapeString(c.Proposed))
		b.WriteString("\n\n")
	}
	return b.String()
}
