// sweep.go: периодическая проверка соответствия.
//
// SweepService запускает фоновую горутину с ticker (CC_SWEEP_CHECK_INTERVAL).
// На каждом тике:
//  1. Завершает брошенные массовые операции (нет прогресса дольше CC_BULK_STALE_AFTER)
//  2. Если с прошлого прогона прошёл интервал из настроек, выполняет прогон
//
// Прогон:
//  1. Записи со сроком <= now и статусом, отличным от compliant, получают письмо
//     и статус overdue независимо от результата отправки
//  2. При non_response_action = draft контент, просроченный дольше интервала,
//     переводится в черновик
//  3. Время и итог прогона сохраняются в sweep_state
//
// Prometheus-метрики:
//   - cc_sweep_runs_total: количество прогонов
//   - cc_sweep_duration_seconds: длительность прогона
//   - cc_sweep_notifications_total: уведомления по результату
//   - cc_sweep_drafted_total: переведено в черновик
//   - cc_bulk_reaped_total: завершено брошенных массовых операций
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
	"github.com/signalfire/content-compliance/internal/domain/model"
	"github.com/signalfire/content-compliance/internal/repository"
)

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cc_sweep_runs_total",
		Help: "Количество прогонов проверки соответствия",
	}, []string{"trigger"}) // trigger: schedule, manual

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cc_sweep_duration_seconds",
		Help:    "Длительность прогона проверки соответствия",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s … ~204s
	})

	sweepNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cc_sweep_notifications_total",
		Help: "Уведомления, отправленные при проверке",
	}, []string{"result"}) // result: sent, failed

	sweepDraftedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cc_sweep_drafted_total",
		Help: "Контент, переведённый в черновик из-за отсутствия ответа",
	})

	bulkReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cc_bulk_reaped_total",
		Help: "Брошенные массовые операции, помеченные failed",
	})
)

// StaleBulkMessage: текст ошибки брошенной массовой операции.
const StaleBulkMessage = "abandoned: no progress reported"

// SweepService: фоновый сервис проверки соответствия.
type SweepService struct {
	settings   *SettingsService
	records    repository.ComplianceRepository
	content    repository.ContentRepository
	bulk       repository.BulkOperationRepository
	state      repository.SweepStateRepository
	notifier   *Notifier
	cache      *CacheService
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	running bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweepService создаёт сервис проверки.
// interval задаёт период тиков, staleAfter задаёт порог брошенной массовой операции.
func NewSweepService(
	settings *SettingsService,
	records repository.ComplianceRepository,
	content repository.ContentRepository,
	bulk repository.BulkOperationRepository,
	state repository.SweepStateRepository,
	notifier *Notifier,
	cache *CacheService,
	interval time.Duration,
	staleAfter time.Duration,
	logger *slog.Logger,
) *SweepService {
	return &SweepService{
		settings:   settings,
		records:    records,
		content:    content,
		bulk:       bulk,
		state:      state,
		notifier:   notifier,
		cache:      cache,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger.With(slog.String("component", "sweep")),
		now:        time.Now,
	}
}

// Start запускает фоновую горутину с периодической проверкой.
// Первый тик выполняется сразу после запуска.
func (s *SweepService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Периодическая проверка соответствия запущена",
			slog.String("interval", s.interval.String()),
			slog.String("bulk_stale_after", s.staleAfter.String()),
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Периодическая проверка соответствия остановлена")
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (s *SweepService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// tick: один тик планировщика.
// Брошенные операции завершаются на каждом тике, в том числе внутри прогона.
func (s *SweepService) tick(ctx context.Context) {
	due, err := s.isDue(ctx)
	if err != nil {
		s.logger.Error("Ошибка определения срока проверки", slog.String("error", err.Error()))
	}
	if !due {
		if _, err := s.ReapStaleOperations(ctx); err != nil {
			s.logger.Error("Ошибка завершения брошенных операций", slog.String("error", err.Error()))
		}
		return
	}

	summary, err := s.run(ctx, "schedule")
	if err != nil {
		s.logger.Error("Ошибка периодической проверки", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("Периодическая проверка завершена",
		slog.Int("due", summary.Due),
		slog.Int("sent", summary.Sent),
		slog.Int("failed", summary.Failed),
		slog.Int("drafted", summary.Drafted),
	)
}

// isDue проверяет, прошёл ли интервал из настроек с прошлого прогона.
func (s *SweepService) isDue(ctx context.Context) (bool, error) {
	state, err := s.state.Get(ctx)
	if err != nil {
		return false, err
	}
	if state.LastSweepAt == nil {
		return true, nil
	}

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return false, err
	}
	next := settings.CheckFrequency.NextReviewDate(*state.LastSweepAt)
	return !s.now().Before(next), nil
}

// RunNow выполняет прогон немедленно, независимо от расписания.
// Если прогон уже идёт, возвращает ErrSweepInProgress.
func (s *SweepService) RunNow(ctx context.Context) (*model.SweepSummary, error) {
	return s.run(ctx, "manual")
}

// LastState возвращает состояние последнего прогона.
func (s *SweepService) LastState(ctx context.Context) (*model.SweepState, error) {
	return s.state.Get(ctx)
}

func (s *SweepService) run(ctx context.Context, trigger string) (*model.SweepSummary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrSweepInProgress
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	sweepRunsTotal.WithLabelValues(trigger).Inc()
	startedAt := s.now().UTC()
	summary := &model.SweepSummary{StartedAt: startedAt}

	if n, err := s.ReapStaleOperations(ctx); err != nil {
		summary.Errors++
		s.logger.Error("Ошибка завершения брошенных операций", slog.String("error", err.Error()))
	} else {
		summary.ReapedOperations = int(n)
	}

	if err := s.notifyDue(ctx, settings, startedAt, summary); err != nil {
		return nil, err
	}

	if settings.NonResponseAction == compliance.NonResponseDraft {
		if err := s.draftUnresponsive(ctx, settings, startedAt, summary); err != nil {
			return nil, err
		}
	}

	summary.CompletedAt = s.now().UTC()
	sweepDuration.Observe(summary.CompletedAt.Sub(startedAt).Seconds())

	if err := s.state.RecordSweep(ctx, startedAt, summary); err != nil {
		s.logger.Warn("Ошибка сохранения итога проверки", slog.String("error", err.Error()))
		summary.Errors++
	}
	return summary, nil
}

// notifyDue отправляет уведомления по записям со сроком проверки и переводит их в overdue.
// Ошибка отправки не прерывает прогон; каждая запись обрабатывается один раз.
func (s *SweepService) notifyDue(
	ctx context.Context,
	settings *model.Settings,
	now time.Time,
	summary *model.SweepSummary,
) error {
	due, err := s.records.ListDue(ctx, now)
	if err != nil {
		return fmt.Errorf("получение записей для проверки: %w", err)
	}
	summary.Due = len(due)

	for i := range due {
		rec := &due[i]
		log := s.logger.With(slog.Int64("content_id", rec.ContentID))

		if err := s.sendOne(ctx, settings, rec); err != nil {
			summary.Failed++
			sweepNotificationsTotal.WithLabelValues("failed").Inc()
			log.Warn("Уведомление не отправлено",
				slog.String("maintainer", rec.MaintainerEmail),
				slog.String("error", err.Error()),
			)
		} else {
			summary.Sent++
			sweepNotificationsTotal.WithLabelValues("sent").Inc()
		}

		next, err := compliance.Next(rec.Status, compliance.TriggerSweep)
		if err != nil {
			summary.Errors++
			log.Error("Недопустимый переход статуса", slog.String("error", err.Error()))
			continue
		}
		if err := s.records.UpdateStatus(ctx, rec.ID, next); err != nil {
			summary.Errors++
			log.Error("Ошибка обновления статуса", slog.String("error", err.Error()))
			continue
		}
		s.cache.Delete(rec.ContentID)
	}
	return nil
}

func (s *SweepService) sendOne(ctx context.Context, settings *model.Settings, rec *model.ComplianceRecord) error {
	item, err := s.content.Get(ctx, rec.ContentID)
	if err != nil {
		return fmt.Errorf("контент не найден: %w", err)
	}
	return s.notifier.SendReviewRequest(ctx, settings, item, rec)
}

// draftUnresponsive переводит в черновик контент, просроченный дольше одного интервала.
// Контент, уже находящийся в черновике, не учитывается.
func (s *SweepService) draftUnresponsive(
	ctx context.Context,
	settings *model.Settings,
	now time.Time,
	summary *model.SweepSummary,
) error {
	cutoff := settings.CheckFrequency.IntervalBefore(now)
	records, err := s.records.ListOverdueSince(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("получение просроченных записей: %w", err)
	}

	for _, rec := range records {
		item, err := s.content.Get(ctx, rec.ContentID)
		if err != nil {
			summary.Errors++
			s.logger.Error("Ошибка получения контента для перевода в черновик",
				slog.Int64("content_id", rec.ContentID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if item.Status == model.ContentStatusDraft {
			continue
		}
		if err := s.content.SetStatus(ctx, rec.ContentID, model.ContentStatusDraft); err != nil {
			summary.Errors++
			s.logger.Error("Ошибка перевода контента в черновик",
				slog.Int64("content_id", rec.ContentID),
				slog.String("error", err.Error()),
			)
			continue
		}
		summary.Drafted++
		sweepDraftedTotal.Inc()
		s.logger.Info("Контент переведён в черновик из-за отсутствия ответа",
			slog.Int64("content_id", rec.ContentID),
			slog.Time("next_review_at", rec.NextReviewAt),
		)
	}
	return nil
}

// ReapStaleOperations помечает failed массовые операции без прогресса дольше staleAfter.
func (s *SweepService) ReapStaleOperations(ctx context.Context) (int64, error) {
	n, err := s.bulk.FailStale(ctx, s.now().Add(-s.staleAfter), StaleBulkMessage)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		bulkReapedTotal.Add(float64(n))
		s.logger.Warn("Брошенные массовые операции помечены failed", slog.Int64("count", n))
	}
	return n, nil
}
