// Пакет markup: преобразование блочной разметки тела контента
// в простой текст для формы мейнтейнера и обратно.
//
// Блочная разметка: HTML с комментариями-разделителями вида
// <!-- wp:paragraph --> … <!-- /wp:paragraph -->.
package markup

import (
	"regexp"
	"strings"
)

var (
	// blockComment: открывающий или закрывающий комментарий блока
	blockComment = regexp.MustCompile(`<!-- /?wp:.*? -->`)
	// blankLines: три и более переводов строки (с пробелами между ними)
	blankLines = regexp.MustCompile(`\n\s*\n\s*\n`)
)

// newlines приводит CRLF и одиночный CR к LF.
var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// NormalizeNewlines заменяет переводы строк браузера (CRLF, CR) на LF.
// Поля textarea приходят из формы с CRLF.
func NormalizeNewlines(s string) string {
	return newlines.Replace(s)
}

// Strip удаляет комментарии блоков, схлопывает пустые строки
// до одной и обрезает пробелы по краям.
func Strip(body string) string {
	s := blockComment.ReplaceAllString(body, "")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Restore возвращает тело с блочной разметкой для отредактированного текста.
//
// Если текст не изменился относительно Strip(original), возвращается original
// без изменений. Иначе каждый непустой абзац (абзацы разделены пустой строкой)
// оборачивается в блок paragraph; исходная структура блоков при этом теряется.
// Переводы строк в edited сравниваются после NormalizeNewlines.
func Restore(edited, original string) string {
	edited = NormalizeNewlines(edited)
	if strings.TrimSpace(Strip(original)) == strings.TrimSpace(edited) {
		return original
	}

	var b strings.Builder
	for _, p := range strings.Split(edited, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b.WriteString("<!-- wp:paragraph -->\n<p>")
		b.WriteString(p)
		b.WriteString("</p>\n<!-- /wp:paragraph -->\n\n")
	}
	return strings.TrimSpace(b.String())
}
