package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
	"github.com/signalfire/content-compliance/internal/domain/model"
)

const testToken = "0b5c3a4e-8f0d-4c7e-9a59-2f1e6d3c7b10"

// setupReview создаёт контент 1 с записью в статусе status и возвращает контекст формы.
func setupReview(t *testing.T, env *testEnv, status compliance.Status) *ReviewContext {
	t.Helper()
	item := env.addContent(t, 1, "post", "Исходный заголовок")
	item.Excerpt = "Исходное описание"
	if err := env.content.Upsert(context.Background(), item); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	env.addRecord(1, "m@example.com", env.now.AddDate(0, 0, -3), status, testToken)

	rc, err := env.reviewSvc.Resolve(context.Background(), testToken)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return rc
}

func TestResolve(t *testing.T) {
	env := newTestEnv(t)
	rc := setupReview(t, env, compliance.StatusOverdue)

	if rc.Content.Title != "Исходный заголовок" || rc.Record.MaintainerEmail != "m@example.com" {
		t.Errorf("контекст формы = %+v", rc)
	}
	if got := rc.EditableBody(); got != "<p>Тело</p>" {
		t.Errorf("EditableBody() = %q, ожидалось тело без блочной разметки", got)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "пустой токен", token: ""},
		{name: "не UUID", token: "../../etc/passwd"},
		{name: "верхний регистр", token: strings.ToUpper(testToken)},
		{name: "неизвестный токен", token: "ffffffff-ffff-ffff-ffff-ffffffffffff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.reviewSvc.Resolve(context.Background(), tt.token); !errors.Is(err, ErrNotFound) {
				t.Errorf("ошибка = %v, ожидалась ErrNotFound", err)
			}
		})
	}
}

func TestCheckPassword(t *testing.T) {
	env := newTestEnv(t)
	rc := setupReview(t, env, compliance.StatusOverdue)

	if rc.PasswordRequired() {
		t.Error("без пароля в настройках форма не должна его требовать")
	}
	if !env.reviewSvc.CheckPassword(rc, "") {
		t.Error("без пароля в настройках проверка должна проходить")
	}

	rc.Settings.ReviewPassword = "s3cret"
	if !rc.PasswordRequired() {
		t.Error("PasswordRequired() = false при заданном пароле")
	}
	if env.reviewSvc.CheckPassword(rc, "wrong") {
		t.Error("неверный пароль принят")
	}
	if !env.reviewSvc.CheckPassword(rc, "s3cret") {
		t.Error("верный пароль отклонён")
	}
}

func TestSubmitApprove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rc := setupReview(t, env, compliance.StatusOverdue)

	action, err := env.reviewSvc.Submit(ctx, rc, SubmissionInput{Action: "", Notes: "  всё верно  "})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if action != compliance.ActionApprove {
		t.Errorf("action = %q, пустое действие означает approve", action)
	}

	rec, _ := env.records.GetByContentID(ctx, 1)
	if rec.Status != compliance.StatusCompliant {
		t.Errorf("Status = %q, ожидался compliant", rec.Status)
	}
	if rec.LastReviewAt == nil || !rec.LastReviewAt.Equal(env.now) {
		t.Errorf("LastReviewAt = %v, ожидалось %v", rec.LastReviewAt, env.now)
	}
	if want := env.now.AddDate(0, 1, 0); !rec.NextReviewAt.Equal(want) {
		t.Errorf("NextReviewAt = %v, ожидалось %v", rec.NextReviewAt, want)
	}
	if rec.ReviewToken != testToken {
		t.Error("токен ссылки не должен меняться после ответа")
	}

	if len(env.reviews.items) != 1 {
		t.Fatalf("ответов: %d, ожидался 1", len(env.reviews.items))
	}
	sub := env.reviews.items[0]
	if sub.Action != compliance.ActionApprove || sub.Data != nil || sub.MaintainerNotes != "всё верно" {
		t.Errorf("ответ = %+v, ожидался approve без данных", sub)
	}
	if len(env.mailer.messages()) != 0 {
		t.Error("approve не отправляет писем")
	}
}

func TestSubmitEdit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rc := setupReview(t, env, compliance.StatusOverdue)
	originalBody := rc.Content.Body

	action, err := env.reviewSvc.Submit(ctx, rc, SubmissionInput{
		Action:  "edit",
		Title:   "Новый заголовок",
		Excerpt: "Исходное описание",
		Content: rc.EditableBody(),
		Notes:   "Заголовок устарел",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if action != compliance.ActionEdit {
		t.Errorf("action = %q, ожидался edit", action)
	}

	rec, _ := env.records.GetByContentID(ctx, 1)
	if rec.Status != compliance.StatusPendingChanges {
		t.Errorf("Status = %q, ожидался pending_changes", rec.Status)
	}
	if rec.LastReviewAt != nil {
		t.Error("edit не меняет время проверки")
	}

	want := &model.SubmissionData{
		Title:   "Новый заголовок",
		Excerpt: "Исходное описание",
		Content: originalBody,
	}
	if diff := cmp.Diff(want, env.reviews.items[0].Data); diff != "" {
		t.Errorf("данные ответа отличаются (-want +got):\n%s", diff)
	}

	msgs := env.mailer.messages()
	if len(msgs) != 1 {
		t.Fatalf("писем: %d, ожидалось 1 (менеджеру)", len(msgs))
	}
	if msgs[0].To != "manager@example.com" {
		t.Errorf("получатель = %q, ожидался менеджер", msgs[0].To)
	}
	if !strings.Contains(msgs[0].Body, "Title: Новый заголовок") {
		t.Errorf("письмо не содержит изменённый заголовок:\n%s", msgs[0].Body)
	}
	if strings.Contains(msgs[0].Body, "Excerpt:") || strings.Contains(msgs[0].Body, "Content:") {
		t.Errorf("письмо содержит неизменённые поля:\n%s", msgs[0].Body)
	}
}

func TestSubmitEditBrowserLineBreaks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := env.addContent(t, 1, "post", "Исходный заголовок")
	item.Body = "<!-- wp:paragraph -->\n<p>Один</p>\n<!-- /wp:paragraph -->\n\n" +
		"<!-- wp:paragraph -->\n<p>Два</p>\n<!-- /wp:paragraph -->"
	if err := env.content.Upsert(ctx, item); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	env.addRecord(1, "m@example.com", env.now.AddDate(0, 0, -3), compliance.StatusOverdue, testToken)
	rc, err := env.reviewSvc.Resolve(ctx, testToken)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if _, err := env.reviewSvc.Submit(ctx, rc, SubmissionInput{
		Action:  "edit",
		Title:   "Новый заголовок",
		Content: strings.ReplaceAll(rc.EditableBody(), "\n", "\r\n"),
		Notes:   "Строка 1\r\nСтрока 2",
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got := env.reviews.items[0]
	if got.Data.Content != item.Body {
		t.Errorf("Content = %q, ожидалось исходное тело %q", got.Data.Content, item.Body)
	}
	if got.MaintainerNotes != "Строка 1\nСтрока 2" {
		t.Errorf("MaintainerNotes = %q, ожидались переводы строк LF", got.MaintainerNotes)
	}

	msgs := env.mailer.messages()
	if len(msgs) != 1 {
		t.Fatalf("писем: %d, ожидалось 1", len(msgs))
	}
	if strings.Contains(msgs[0].Body, "Content:") {
		t.Errorf("письмо содержит неизменённое тело:\n%s", msgs[0].Body)
	}
}

func TestSubmitEditMailFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rc := setupReview(t, env, compliance.StatusPending)
	env.mailer.failFor["manager@example.com"] = true

	if _, err := env.reviewSvc.Submit(ctx, rc, SubmissionInput{Action: "edit", Title: "X", Content: "Новый абзац"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	rec, _ := env.records.GetByContentID(ctx, 1)
	if rec.Status != compliance.StatusPendingChanges {
		t.Errorf("Status = %q, ожидался pending_changes", rec.Status)
	}
	want := "<!-- wp:paragraph -->\n<p>Новый абзац</p>\n<!-- /wp:paragraph -->"
	if got := env.reviews.items[0].Data.Content; got != want {
		t.Errorf("Content = %q, ожидалось %q", got, want)
	}
}

func TestSubmitInvalidAction(t *testing.T) {
	env := newTestEnv(t)
	rc := setupReview(t, env, compliance.StatusOverdue)

	if _, err := env.reviewSvc.Submit(context.Background(), rc, SubmissionInput{Action: "delete"}); !errors.Is(err, ErrValidation) {
		t.Errorf("ошибка = %v, ожидалась ErrValidation", err)
	}
	if len(env.reviews.items) != 0 {
		t.Error("ответ с недопустимым действием не должен сохраняться")
	}
}

func TestMarkProcessed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rc := setupReview(t, env, compliance.StatusOverdue)

	if _, err := env.reviewSvc.Submit(ctx, rc, SubmissionInput{Action: "edit", Title: "Новый"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	before, _ := env.records.GetByContentID(ctx, 1)

	if err := env.reviewSvc.MarkProcessed(ctx, 1, "boss@example.com"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	rec, _ := env.records.GetByContentID(ctx, 1)
	if rec.Status != compliance.StatusCompliant {
		t.Errorf("Status = %q, ожидался compliant", rec.Status)
	}
	if rec.LastReviewAt == nil || !rec.LastReviewAt.Equal(env.now) {
		t.Errorf("LastReviewAt = %v, ожидалось %v", rec.LastReviewAt, env.now)
	}
	if !rec.NextReviewAt.Equal(before.NextReviewAt) {
		t.Errorf("NextReviewAt = %v, срок не должен меняться (%v)", rec.NextReviewAt, before.NextReviewAt)
	}

	d, err := env.reviewSvc.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.ProcessedBy == nil || *d.ProcessedBy != "boss@example.com" || d.ContentTitle != "Исходный заголовок" {
		t.Errorf("ответ = %+v, ожидалась отметка обработки", d)
	}

	if err := env.reviewSvc.MarkProcessed(ctx, 1, "boss@example.com"); !errors.Is(err, ErrConflict) {
		t.Errorf("повторная обработка: ошибка = %v, ожидалась ErrConflict", err)
	}
	if err := env.reviewSvc.MarkProcessed(ctx, 99, "boss@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестный ответ: ошибка = %v, ожидалась ErrNotFound", err)
	}
}
