package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/signalfire/content-compliance/internal/config"
	"github.com/signalfire/content-compliance/internal/database"
	"github.com/signalfire/content-compliance/internal/domain/compliance"
	"github.com/signalfire/content-compliance/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool; контейнер останавливается в t.Cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("compliance_test"),
		postgres.WithUsername("compliance"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	cfg := &config.Config{
		DBHost:     host,
		DBPort:     port.Int(),
		DBName:     "compliance_test",
		DBUser:     "compliance",
		DBPassword: "test-password",
		DBSSLMode:  "disable",
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// seedContent создаёт опубликованный контент.
func seedContent(t *testing.T, repo ContentRepository, id int64, contentType, title string, publishedAt time.Time) {
	t.Helper()
	item := &model.ContentItem{
		ID:          id,
		ContentType: contentType,
		Title:       title,
		Body:        "<!-- wp:paragraph -->\n<p>Текст</p>\n<!-- /wp:paragraph -->",
		Status:      model.ContentStatusPublish,
		URL:         "https://example.com/" + title,
		PublishedAt: &publishedAt,
	}
	if err := repo.Upsert(context.Background(), item); err != nil {
		t.Fatalf("Upsert(content %d) ошибка: %v", id, err)
	}
}

// --- Тесты ContentRepository ---

func TestContentUpsertAndStatus(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewContentRepository(pool)

	seedContent(t, repo, 42, "post", "first", time.Now())

	got, err := repo.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if got.Title != "first" || got.Status != model.ContentStatusPublish {
		t.Errorf("Get() = %+v", got)
	}

	// Повторный upsert обновляет поля
	seedContent(t, repo, 42, "post", "renamed", time.Now())
	got, _ = repo.Get(ctx, 42)
	if got.Title != "renamed" {
		t.Errorf("Title = %q, ожидается renamed", got.Title)
	}

	if err := repo.SetStatus(ctx, 42, model.ContentStatusDraft); err != nil {
		t.Fatalf("SetStatus() ошибка: %v", err)
	}
	got, _ = repo.Get(ctx, 42)
	if got.Status != model.ContentStatusDraft {
		t.Errorf("Status = %q, ожидается draft", got.Status)
	}

	if err := repo.SetStatus(ctx, 999, model.ContentStatusDraft); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetStatus(999) = %v, ожидается ErrNotFound", err)
	}
	if _, err := repo.Get(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(999) = %v, ожидается ErrNotFound", err)
	}
}

// --- Тесты ComplianceRepository ---

func TestComplianceUpsertKeepsStatus(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	content := NewContentRepository(pool)
	repo := NewComplianceRepository(pool)

	seedContent(t, content, 1, "post", "a", time.Now())

	due := time.Now().Add(24 * time.Hour).Truncate(time.Microsecond)
	token1 := uuid.NewString()
	rec, err := repo.Upsert(ctx, 1, "m@example.com", due, token1)
	if err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}
	if rec.Status != compliance.StatusPending {
		t.Errorf("новая запись: статус %s, ожидается pending", rec.Status)
	}
	if rec.ReviewToken != token1 {
		t.Errorf("ReviewToken = %s, ожидается %s", rec.ReviewToken, token1)
	}

	if err := repo.UpdateStatus(ctx, rec.ID, compliance.StatusOverdue); err != nil {
		t.Fatalf("UpdateStatus() ошибка: %v", err)
	}

	// Повторное сохранение меняет мейнтейнера и токен, но не статус
	token2 := uuid.NewString()
	rec2, err := repo.Upsert(ctx, 1, "other@example.com", due, token2)
	if err != nil {
		t.Fatalf("повторный Upsert() ошибка: %v", err)
	}
	if rec2.ID != rec.ID {
		t.Errorf("ID изменился: %d → %d", rec.ID, rec2.ID)
	}
	if rec2.Status != compliance.StatusOverdue {
		t.Errorf("статус после повторного сохранения = %s, ожидается overdue", rec2.Status)
	}

	if _, err := repo.GetByToken(ctx, token1); !errors.Is(err, ErrNotFound) {
		t.Errorf("старый токен: %v, ожидается ErrNotFound", err)
	}
	byToken, err := repo.GetByToken(ctx, token2)
	if err != nil {
		t.Fatalf("GetByToken() ошибка: %v", err)
	}
	if byToken.MaintainerEmail != "other@example.com" {
		t.Errorf("MaintainerEmail = %q", byToken.MaintainerEmail)
	}

	// Запись для несуществующего контента
	if _, err := repo.Upsert(ctx, 777, "m@example.com", due, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Upsert(без контента) = %v, ожидается ErrNotFound", err)
	}
}

func TestComplianceDueAndReports(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	content := NewContentRepository(pool)
	repo := NewComplianceRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	seedContent(t, content, 1, "post", "overdue-old", now.AddDate(0, -3, 0))
	seedContent(t, content, 2, "post", "compliant", now.AddDate(0, -2, 0))
	seedContent(t, content, 3, "post", "future", now.AddDate(0, -1, 0))
	seedContent(t, content, 4, "page", "page-due", now)

	r1, _ := repo.Upsert(ctx, 1, "a@example.com", now.AddDate(0, 0, -40), uuid.NewString())
	r2, _ := repo.Upsert(ctx, 2, "b@example.com", now.AddDate(0, 0, -5), uuid.NewString())
	_, _ = repo.Upsert(ctx, 3, "c@example.com", now.AddDate(0, 0, 10), uuid.NewString())
	_, _ = repo.Upsert(ctx, 4, "d@example.com", now.AddDate(0, 0, -1), uuid.NewString())

	if err := repo.UpdateStatus(ctx, r1.ID, compliance.StatusOverdue); err != nil {
		t.Fatalf("UpdateStatus() ошибка: %v", err)
	}
	if err := repo.MarkReviewed(ctx, r2.ID, compliance.StatusCompliant, now, nil); err != nil {
		t.Fatalf("MarkReviewed() ошибка: %v", err)
	}

	due, err := repo.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("ListDue() ошибка: %v", err)
	}
	var dueIDs []int64
	for _, r := range due {
		dueIDs = append(dueIDs, r.ContentID)
	}
	if diff := cmp.Diff([]int64{1, 4}, dueIDs); diff != "" {
		t.Errorf("ListDue() (-ожидается +получено):\n%s", diff)
	}

	// Просроченные дольше месяца
	old, err := repo.ListOverdueSince(ctx, compliance.FrequencyMonthly.IntervalBefore(now))
	if err != nil {
		t.Fatalf("ListOverdueSince() ошибка: %v", err)
	}
	if len(old) != 1 || old[0].ContentID != 1 {
		t.Errorf("ListOverdueSince() = %+v, ожидается только контент 1", old)
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus() ошибка: %v", err)
	}
	want := model.StatusCounts{Total: 4, Pending: 2, Compliant: 1, Overdue: 1}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("CountByStatus() (-ожидается +получено):\n%s", diff)
	}

	report, err := repo.ListOverdueReport(ctx, now, 20)
	if err != nil {
		t.Fatalf("ListOverdueReport() ошибка: %v", err)
	}
	if len(report) != 1 || report[0].DaysOverdue != 40 || report[0].Title != "overdue-old" {
		t.Errorf("ListOverdueReport() = %+v", report)
	}

	// Все опубликованные посты, сначала новые
	all, err := repo.ListBulkTargets(ctx, "post", false, now)
	if err != nil {
		t.Fatalf("ListBulkTargets(all) ошибка: %v", err)
	}
	var allIDs []int64
	for _, tg := range all {
		allIDs = append(allIDs, tg.ContentID)
	}
	if diff := cmp.Diff([]int64{3, 2, 1}, allIDs); diff != "" {
		t.Errorf("ListBulkTargets(all) (-ожидается +получено):\n%s", diff)
	}

	// Только просроченные посты
	overdue, err := repo.ListBulkTargets(ctx, "post", true, now)
	if err != nil {
		t.Fatalf("ListBulkTargets(overdue) ошибка: %v", err)
	}
	if len(overdue) != 1 || overdue[0].ContentID != 1 || overdue[0].MaintainerEmail != "a@example.com" {
		t.Errorf("ListBulkTargets(overdue) = %+v", overdue)
	}

	// Контент в черновике больше не считается кандидатом на перевод в черновик
	if err := content.SetStatus(ctx, 1, model.ContentStatusDraft); err != nil {
		t.Fatalf("SetStatus() ошибка: %v", err)
	}
	old, err = repo.ListOverdueSince(ctx, compliance.FrequencyMonthly.IntervalBefore(now))
	if err != nil {
		t.Fatalf("ListOverdueSince() ошибка: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("ListOverdueSince() = %+v, черновики не возвращаются", old)
	}
}

func TestComplianceMarkReviewed(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	content := NewContentRepository(pool)
	repo := NewComplianceRepository(pool)

	seedContent(t, content, 5, "post", "x", time.Now())
	due := time.Now().UTC().Truncate(time.Microsecond)
	rec, _ := repo.Upsert(ctx, 5, "m@example.com", due, uuid.NewString())

	reviewed := due.Add(time.Hour)
	next := compliance.FrequencyQuarterly.NextReviewDate(reviewed)
	if err := repo.MarkReviewed(ctx, rec.ID, compliance.StatusCompliant, reviewed, &next); err != nil {
		t.Fatalf("MarkReviewed() ошибка: %v", err)
	}

	got, err := repo.GetByContentID(ctx, 5)
	if err != nil {
		t.Fatalf("GetByContentID() ошибка: %v", err)
	}
	if got.Status != compliance.StatusCompliant {
		t.Errorf("Status = %s", got.Status)
	}
	if got.LastReviewAt == nil || !got.LastReviewAt.Equal(reviewed) {
		t.Errorf("LastReviewAt = %v, ожидается %v", got.LastReviewAt, reviewed)
	}
	if !got.NextReviewAt.Equal(next) {
		t.Errorf("NextReviewAt = %v, ожидается %v", got.NextReviewAt, next)
	}

	if err := repo.MarkReviewed(ctx, 99999, compliance.StatusCompliant, reviewed, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkReviewed(99999) = %v, ожидается ErrNotFound", err)
	}
}

// --- Тесты ReviewRepository ---

func TestReviewCreateAndProcess(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	content := NewContentRepository(pool)
	repo := NewReviewRepository(pool)

	seedContent(t, content, 10, "post", "reviewed", time.Now())
	token := uuid.NewString()

	approve := &model.ReviewSubmission{
		ContentID:       10,
		ReviewToken:     token,
		MaintainerEmail: "m@example.com",
		Action:          compliance.ActionApprove,
	}
	if err := repo.Create(ctx, approve); err != nil {
		t.Fatalf("Create(approve) ошибка: %v", err)
	}

	edit := &model.ReviewSubmission{
		ContentID:       10,
		ReviewToken:     token,
		MaintainerEmail: "m@example.com",
		Data:            &model.SubmissionData{Title: "Новый", Content: "Текст"},
		MaintainerNotes: "поправил заголовок",
		Action:          compliance.ActionEdit,
	}
	if err := repo.Create(ctx, edit); err != nil {
		t.Fatalf("Create(edit) ошибка: %v", err)
	}

	got, err := repo.Get(ctx, edit.ID)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if got.ContentTitle != "reviewed" {
		t.Errorf("ContentTitle = %q", got.ContentTitle)
	}
	if diff := cmp.Diff(edit.Data, got.Data); diff != "" {
		t.Errorf("Data (-ожидается +получено):\n%s", diff)
	}

	gotApprove, _ := repo.Get(ctx, approve.ID)
	if gotApprove.Data != nil {
		t.Errorf("approve: Data = %+v, ожидается nil", gotApprove.Data)
	}

	now := time.Now()
	if err := repo.MarkProcessed(ctx, edit.ID, "manager", now); err != nil {
		t.Fatalf("MarkProcessed() ошибка: %v", err)
	}
	if err := repo.MarkProcessed(ctx, edit.ID, "manager", now); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный MarkProcessed() = %v, ожидается ErrConflict", err)
	}
	if err := repo.MarkProcessed(ctx, 99999, "manager", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkProcessed(99999) = %v, ожидается ErrNotFound", err)
	}

	recent, err := repo.ListRecent(ctx, now.AddDate(0, 0, -7), 10)
	if err != nil {
		t.Fatalf("ListRecent() ошибка: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("ListRecent() вернул %d записей, ожидается 2", len(recent))
	}
	// Необработанные первыми
	if recent[0].ID != approve.ID || recent[0].ProcessedAt != nil {
		t.Errorf("первой должна идти необработанная запись, получено %+v", recent[0])
	}

	if _, err := repo.Get(ctx, 99999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(99999) = %v, ожидается ErrNotFound", err)
	}
}

// --- Тесты BulkOperationRepository ---

func TestBulkOperationProgress(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewBulkOperationRepository(pool)

	op := &model.BulkOperation{
		OperationType: model.OperationTypeComplianceCheck,
		ContentType:   "post",
		OverdueOnly:   true,
		TotalItems:    3,
		InitiatedBy:   "admin",
	}
	if err := repo.Create(ctx, op); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if op.ID == 0 || op.Status != compliance.BulkRunning {
		t.Fatalf("Create() = %+v", op)
	}

	updated, err := repo.UpdateProgress(ctx, op.ID, 1, 1, compliance.BulkRunning)
	if err != nil {
		t.Fatalf("UpdateProgress() ошибка: %v", err)
	}
	if updated.CompletedAt != nil {
		t.Error("CompletedAt не должен выставляться для running")
	}

	conflicts := []struct {
		name               string
		successful, failed int
	}{
		{"уменьшение счётчика", 0, 1},
		{"больше total_items", 3, 1},
	}
	for _, c := range conflicts {
		if _, err := repo.UpdateProgress(ctx, op.ID, c.successful, c.failed, compliance.BulkRunning); !errors.Is(err, ErrConflict) {
			t.Errorf("%s: %v, ожидается ErrConflict", c.name, err)
		}
	}

	done, err := repo.UpdateProgress(ctx, op.ID, 2, 1, compliance.BulkCompleted)
	if err != nil {
		t.Fatalf("UpdateProgress(completed) ошибка: %v", err)
	}
	if done.CompletedAt == nil {
		t.Error("CompletedAt должен быть выставлен при completed")
	}
	if done.SuccessfulSends+done.FailedSends != done.TotalItems {
		t.Errorf("счётчики %d+%d != %d", done.SuccessfulSends, done.FailedSends, done.TotalItems)
	}

	// Завершённая операция не меняется
	if _, err := repo.UpdateProgress(ctx, op.ID, 2, 1, compliance.BulkRunning); !errors.Is(err, ErrConflict) {
		t.Errorf("обновление завершённой: %v, ожидается ErrConflict", err)
	}
	if _, err := repo.UpdateProgress(ctx, 99999, 0, 0, compliance.BulkRunning); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateProgress(99999) = %v, ожидается ErrNotFound", err)
	}
}

func TestBulkOperationFailStale(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewBulkOperationRepository(pool)

	for range 2 {
		op := &model.BulkOperation{
			OperationType: model.OperationTypeComplianceCheck,
			ContentType:   "page",
			TotalItems:    5,
			InitiatedBy:   "admin",
		}
		if err := repo.Create(ctx, op); err != nil {
			t.Fatalf("Create() ошибка: %v", err)
		}
	}

	// Порог в прошлом: ничего не зависло
	n, err := repo.FailStale(ctx, time.Now().Add(-time.Hour), "abandoned")
	if err != nil {
		t.Fatalf("FailStale() ошибка: %v", err)
	}
	if n != 0 {
		t.Errorf("FailStale(прошлое) = %d, ожидается 0", n)
	}

	n, err = repo.FailStale(ctx, time.Now().Add(time.Minute), "abandoned")
	if err != nil {
		t.Fatalf("FailStale() ошибка: %v", err)
	}
	if n != 2 {
		t.Errorf("FailStale() = %d, ожидается 2", n)
	}

	ops, err := repo.ListRecent(ctx, 5)
	if err != nil {
		t.Fatalf("ListRecent() ошибка: %v", err)
	}
	for _, op := range ops {
		if op.Status != compliance.BulkFailed || op.ErrorMessage == nil || *op.ErrorMessage != "abandoned" {
			t.Errorf("операция %d: статус %s, ошибка %v", op.ID, op.Status, op.ErrorMessage)
		}
	}
}

// --- Тесты SettingsRepository и SweepStateRepository ---

func TestSettingsSetGet(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewSettingsRepository(pool)

	if _, err := repo.Get(ctx, "content_compliance"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(пусто) = %v, ожидается ErrNotFound", err)
	}

	if err := repo.Set(ctx, "content_compliance", []byte(`{"check_frequency":"yearly"}`), "admin"); err != nil {
		t.Fatalf("Set() ошибка: %v", err)
	}
	if err := repo.Set(ctx, "content_compliance", []byte(`{"check_frequency":"monthly"}`), "other"); err != nil {
		t.Fatalf("повторный Set() ошибка: %v", err)
	}

	got, err := repo.Get(ctx, "content_compliance")
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if got.UpdatedBy != "other" {
		t.Errorf("UpdatedBy = %q, ожидается other", got.UpdatedBy)
	}
	var value map[string]string
	if err := json.Unmarshal(got.Value, &value); err != nil {
		t.Fatalf("Value не JSON: %v", err)
	}
	if value["check_frequency"] != "monthly" {
		t.Errorf("Value = %s", got.Value)
	}
}

func TestSweepStateRecord(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewSweepStateRepository(pool)

	state, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if state.LastSweepAt != nil || state.LastSummary != nil {
		t.Errorf("начальное состояние = %+v, ожидается пустое", state)
	}

	at := time.Now().UTC().Truncate(time.Second)
	summary := &model.SweepSummary{StartedAt: at, CompletedAt: at, Due: 3, Sent: 2, Failed: 1, Drafted: 1}
	if err := repo.RecordSweep(ctx, at, summary); err != nil {
		t.Fatalf("RecordSweep() ошибка: %v", err)
	}

	state, err = repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if state.LastSweepAt == nil || !state.LastSweepAt.Equal(at) {
		t.Errorf("LastSweepAt = %v, ожидается %v", state.LastSweepAt, at)
	}
	if diff := cmp.Diff(summary, state.LastSummary); diff != "" {
		t.Errorf("LastSummary (-ожидается +получено):\n%s", diff)
	}
}
