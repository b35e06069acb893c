package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
	"github.com/signalfire/content-compliance/internal/domain/model"
	"github.com/signalfire/content-compliance/internal/repository"
)

// In-memory реализации репозиториев для unit-тестов сервисного слоя.

type memContent struct {
	mu    sync.Mutex
	items map[int64]*model.ContentItem
}

func newMemContent() *memContent {
	return &memContent{items: map[int64]*model.ContentItem{}}
}

func (m *memContent) Get(_ context.Context, id int64) (*model.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memContent) Upsert(_ context.Context, item *model.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memContent) SetStatus(_ context.Context, id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	it.Status = status
	return nil
}

type memRecords struct {
	mu      sync.Mutex
	content *memContent
	byID    map[int64]*model.ComplianceRecord
	nextID  int64
	// statusUpdates: журнал вызовов UpdateStatus
	statusUpdates []compliance.Status
}

func newMemRecords(content *memContent) *memRecords {
	return &memRecords{content: content, byID: map[int64]*model.ComplianceRecord{}}
}

// put добавляет запись напрямую, минуя Upsert.
func (m *memRecords) put(rec model.ComplianceRecord) *model.ComplianceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	m.byID[rec.ID] = &rec
	return &rec
}

func (m *memRecords) find(pred func(*model.ComplianceRecord) bool) (*model.ComplianceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if pred(r) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRecords) GetByContentID(_ context.Context, contentID int64) (*model.ComplianceRecord, error) {
	return m.find(func(r *model.ComplianceRecord) bool { return r.ContentID == contentID })
}

func (m *memRecords) GetByToken(_ context.Context, token string) (*model.ComplianceRecord, error) {
	return m.find(func(r *model.ComplianceRecord) bool { return r.ReviewToken == token })
}

func (m *memRecords) Upsert(
	ctx context.Context,
	contentID int64,
	email string,
	next time.Time,
	token string,
) (*model.ComplianceRecord, error) {
	if _, err := m.content.Get(ctx, contentID); err != nil {
		return nil, repository.ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var existing *model.ComplianceRecord
	for _, r := range m.byID {
		if r.ReviewToken == token && r.ContentID != contentID {
			return nil, repository.ErrConflict
		}
		if r.ContentID == contentID {
			existing = r
		}
	}
	if existing == nil {
		m.nextID++
		existing = &model.ComplianceRecord{ID: m.nextID, ContentID: contentID, Status: compliance.StatusPending}
		m.byID[existing.ID] = existing
	}
	existing.MaintainerEmail = email
	existing.NextReviewAt = next
	existing.ReviewToken = token
	cp := *existing
	return &cp, nil
}

func (m *memRecords) list(pred func(*model.ComplianceRecord) bool) []model.ComplianceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ComplianceRecord
	for _, r := range m.byID {
		if pred(r) {
			out = append(out, *r)
		}
	}
	slices.SortFunc(out, func(a, b model.ComplianceRecord) int {
		if c := a.NextReviewAt.Compare(b.NextReviewAt); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	return out
}

func (m *memRecords) ListDue(_ context.Context, now time.Time) ([]model.ComplianceRecord, error) {
	return m.list(func(r *model.ComplianceRecord) bool {
		return !r.NextReviewAt.After(now) && r.Status != compliance.StatusCompliant
	}), nil
}

func (m *memRecords) ListOverdueSince(_ context.Context, cutoff time.Time) ([]model.ComplianceRecord, error) {
	return m.list(func(r *model.ComplianceRecord) bool {
		return r.Status == compliance.StatusOverdue && !r.NextReviewAt.After(cutoff)
	}), nil
}

func (m *memRecords) UpdateStatus(_ context.Context, id int64, status compliance.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.Status = status
	m.statusUpdates = append(m.statusUpdates, status)
	return nil
}

func (m *memRecords) MarkReviewed(
	_ context.Context,
	id int64,
	status compliance.Status,
	reviewedAt time.Time,
	next *time.Time,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.Status = status
	r.LastReviewAt = &reviewedAt
	if next != nil {
		r.NextReviewAt = *next
	}
	return nil
}

func (m *memRecords) CountByStatus(_ context.Context) (model.StatusCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c model.StatusCounts
	for _, r := range m.byID {
		c.Total++
		switch r.Status {
		case compliance.StatusPending:
			c.Pending++
		case compliance.StatusCompliant:
			c.Compliant++
		case compliance.StatusOverdue:
			c.Overdue++
		case compliance.StatusPendingChanges:
			c.PendingChanges++
		}
	}
	return c, nil
}

func (m *memRecords) ListOverdueReport(ctx context.Context, now time.Time, limit int) ([]model.OverdueItem, error) {
	var out []model.OverdueItem
	for _, r := range m.list(func(r *model.ComplianceRecord) bool { return r.Status == compliance.StatusOverdue }) {
		it, _ := m.content.Get(ctx, r.ContentID)
		item := model.OverdueItem{
			ContentID:       r.ContentID,
			MaintainerEmail: r.MaintainerEmail,
			NextReviewAt:    r.NextReviewAt,
			DaysOverdue:     max(int(now.Sub(r.NextReviewAt).Hours()/24), 0),
		}
		if it != nil {
			item.Title, item.ContentType, item.ContentStatus = it.Title, it.ContentType, it.Status
		}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memRecords) ListBulkTargets(
	ctx context.Context,
	contentType string,
	overdueOnly bool,
	now time.Time,
) ([]model.BulkTarget, error) {
	var out []model.BulkTarget
	for _, r := range m.list(func(r *model.ComplianceRecord) bool { return r.MaintainerEmail != "" }) {
		it, err := m.content.Get(ctx, r.ContentID)
		if err != nil || it.ContentType != contentType || it.Status != model.ContentStatusPublish {
			continue
		}
		if overdueOnly && (r.NextReviewAt.After(now) || r.Status == compliance.StatusCompliant) {
			continue
		}
		out = append(out, model.BulkTarget{ContentID: it.ID, Title: it.Title, MaintainerEmail: r.MaintainerEmail})
	}
	return out, nil
}

type memReviews struct {
	mu      sync.Mutex
	content *memContent
	items   []*model.ReviewSubmission
	now     func() time.Time
}

func newMemReviews(content *memContent, now func() time.Time) *memReviews {
	return &memReviews{content: content, now: now}
}

func (m *memReviews) Create(ctx context.Context, s *model.ReviewSubmission) error {
	if _, err := m.content.Get(ctx, s.ContentID); err != nil {
		return repository.ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = int64(len(m.items) + 1)
	s.SubmittedAt = m.now()
	cp := *s
	m.items = append(m.items, &cp)
	return nil
}

func (m *memReviews) detail(ctx context.Context, s *model.ReviewSubmission) model.ReviewDetail {
	d := model.ReviewDetail{ReviewSubmission: *s}
	if it, err := m.content.Get(ctx, s.ContentID); err == nil {
		d.ContentTitle = it.Title
	}
	return d
}

func (m *memReviews) Get(ctx context.Context, id int64) (*model.ReviewDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.items {
		if s.ID == id {
			d := m.detail(ctx, s)
			return &d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memReviews) MarkProcessed(_ context.Context, id int64, by string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.items {
		if s.ID != id {
			continue
		}
		if s.ProcessedAt != nil {
			return repository.ErrConflict
		}
		s.ProcessedAt, s.ProcessedBy = &at, &by
		return nil
	}
	return repository.ErrNotFound
}

func (m *memReviews) ListRecent(ctx context.Context, since time.Time, limit int) ([]model.ReviewDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ReviewDetail
	for i := len(m.items) - 1; i >= 0 && len(out) < limit; i-- {
		s := m.items[i]
		if s.ProcessedAt == nil || !s.ProcessedAt.Before(since) {
			out = append(out, m.detail(ctx, s))
		}
	}
	return out, nil
}

type memBulk struct {
	mu  sync.Mutex
	ops map[int64]*model.BulkOperation
	now func() time.Time
}

func newMemBulk(now func() time.Time) *memBulk {
	return &memBulk{ops: map[int64]*model.BulkOperation{}, now: now}
}

func (m *memBulk) Create(_ context.Context, op *model.BulkOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op.ID = int64(len(m.ops) + 1)
	op.Status = compliance.BulkRunning
	op.StartedAt = m.now()
	op.UpdatedAt = op.StartedAt
	cp := *op
	m.ops[op.ID] = &cp
	return nil
}

func (m *memBulk) Get(_ context.Context, id int64) (*model.BulkOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (m *memBulk) UpdateProgress(
	_ context.Context,
	id int64,
	successful, failed int,
	status compliance.BulkStatus,
) (*model.BulkOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if op.Status != compliance.BulkRunning ||
		successful < op.SuccessfulSends || failed < op.FailedSends ||
		successful+failed > op.TotalItems {
		return nil, repository.ErrConflict
	}
	op.SuccessfulSends, op.FailedSends, op.Status = successful, failed, status
	op.UpdatedAt = m.now()
	if status == compliance.BulkCompleted {
		at := m.now()
		op.CompletedAt = &at
	}
	cp := *op
	return &cp, nil
}

func (m *memBulk) FailStale(_ context.Context, olderThan time.Time, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, op := range m.ops {
		if op.Status == compliance.BulkRunning && op.UpdatedAt.Before(olderThan) {
			op.Status = compliance.BulkFailed
			op.ErrorMessage = &message
			n++
		}
	}
	return n, nil
}

func (m *memBulk) ListRecent(_ context.Context, limit int) ([]model.BulkOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.BulkOperation
	for id := int64(len(m.ops)); id > 0 && len(out) < limit; id-- {
		out = append(out, *m.ops[id])
	}
	return out, nil
}

type memSettings struct {
	mu     sync.Mutex
	values map[string]*repository.Setting
}

func newMemSettings() *memSettings {
	return &memSettings{values: map[string]*repository.Setting{}}
}

func (m *memSettings) Get(_ context.Context, key string) (*repository.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.values[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSettings) Set(_ context.Context, key string, value []byte, updatedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = &repository.Setting{Key: key, Value: value, UpdatedAt: time.Now(), UpdatedBy: updatedBy}
	return nil
}

type memSweepState struct {
	mu    sync.Mutex
	state model.SweepState
}

func (m *memSweepState) Get(_ context.Context) (*model.SweepState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.state
	cp.ID = 1
	return &cp, nil
}

func (m *memSweepState) RecordSweep(_ context.Context, at time.Time, summary *model.SweepSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.LastSweepAt = &at
	m.state.LastSummary = summary
	return nil
}

// sentMail: письмо, принятое fakeMailer.
type sentMail struct {
	To      string
	Subject string
	Body    string
}

// fakeMailer запоминает письма. Отправка на адреса из failFor завершается ошибкой.
// block, если задан, задерживает каждую отправку до закрытия канала.
type fakeMailer struct {
	mu      sync.Mutex
	sent    []sentMail
	failFor map[string]bool
	started chan struct{}
	block   chan struct{}
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[to] {
		return io.ErrUnexpectedEOF
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeMailer) messages() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent)
}

// testEnv: сервисы поверх in-memory репозиториев с фиксированным временем.
type testEnv struct {
	now      time.Time
	content  *memContent
	records  *memRecords
	reviews  *memReviews
	bulk     *memBulk
	settings *memSettings
	state    *memSweepState
	mailer   *fakeMailer

	settingsSvc   *SettingsService
	cache         *CacheService
	notifier      *Notifier
	complianceSvc *ComplianceService
	reviewSvc     *ReviewService
	sweepSvc      *SweepService
	bulkSvc       *BulkService
	reportSvc     *ReportService
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{now: time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return env.now }

	env.content = newMemContent()
	env.records = newMemRecords(env.content)
	env.reviews = newMemReviews(env.content, clock)
	env.bulk = newMemBulk(clock)
	env.settings = newMemSettings()
	env.state = &memSweepState{}
	env.mailer = &fakeMailer{failFor: map[string]bool{}}

	logger := testLogger()
	env.settingsSvc = NewSettingsService(env.settings, "manager@example.com", logger)
	env.cache = NewCacheService(100, time.Minute)
	env.notifier = NewNotifier(env.mailer, NotifierConfig{
		PublicBaseURL:  "https://compliance.example.com",
		SiteName:       "Example Site",
		EditURLPattern: "https://cms.example.com/edit/{id}",
	}, logger)
	env.notifier.now = clock

	env.complianceSvc = NewComplianceService(env.content, env.records, env.settingsSvc, env.cache, env.notifier, logger)
	env.complianceSvc.now = clock

	env.reviewSvc = NewReviewService(env.settingsSvc, env.records, env.content, env.reviews, env.notifier, env.cache, logger)
	env.reviewSvc.now = clock

	env.sweepSvc = NewSweepService(env.settingsSvc, env.records, env.content, env.bulk, env.state,
		env.notifier, env.cache, time.Hour, time.Hour, logger)
	env.sweepSvc.now = clock

	env.bulkSvc = NewBulkService(env.records, env.bulk, env.complianceSvc, logger)
	env.bulkSvc.now = clock

	env.reportSvc = NewReportService(env.records, env.reviews, env.bulk, env.state)
	env.reportSvc.now = clock

	return env
}

// addContent добавляет опубликованную единицу контента.
func (e *testEnv) addContent(t *testing.T, id int64, contentType, title string) *model.ContentItem {
	t.Helper()
	item := &model.ContentItem{
		ID:          id,
		ContentType: contentType,
		Title:       title,
		Body:        "<!-- wp:paragraph -->\n<p>Тело</p>\n<!-- /wp:paragraph -->",
		Status:      model.ContentStatusPublish,
		URL:         "https://example.com/?p=" + title,
	}
	if err := e.content.Upsert(context.Background(), item); err != nil {
		t.Fatalf("Upsert контента: %v", err)
	}
	return item
}

// addRecord добавляет запись соответствия со сроком next и статусом status.
func (e *testEnv) addRecord(contentID int64, email string, next time.Time, status compliance.Status, token string) *model.ComplianceRecord {
	return e.records.put(model.ComplianceRecord{
		ContentID:       contentID,
		MaintainerEmail: email,
		NextReviewAt:    next,
		Status:          status,
		ReviewToken:     token,
	})
}

// saveSettings сохраняет настройки, изменённые функцией mutate.
func (e *testEnv) saveSettings(t *testing.T, mutate func(*model.Settings)) *model.Settings {
	t.Helper()
	s := e.settingsSvc.Defaults()
	mutate(s)
	saved, err := e.settingsSvc.Save(context.Background(), *s, &s.ReviewPassword, "admin")
	if err != nil {
		t.Fatalf("Save настроек: %v", err)
	}
	return saved
}
