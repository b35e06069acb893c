package service

import (
	"context"
	"fmt"
	"time"

	"github.com/signalfire/content-compliance/internal/domain/model"
	"github.com/signalfire/content-compliance/internal/repository"
)

// Лимиты сводного отчёта.
const (
	reportOverdueLimit = 20
	reportReviewsLimit = 10
	reportReviewsDays  = 7
	reportBulkLimit    = 5
)

// Report: сводный отчёт о соответствии.
type Report struct {
	Counts         model.StatusCounts
	Overdue        []model.OverdueItem
	RecentReviews  []model.ReviewDetail
	BulkOperations []model.BulkOperation
	LastSweep      *model.SweepState
}

// ReportService: сервис отчётов.
type ReportService struct {
	recordRepo repository.ComplianceRepository
	reviewRepo repository.ReviewRepository
	bulkRepo   repository.BulkOperationRepository
	stateRepo  repository.SweepStateRepository
	now        func() time.Time
}

// NewReportService создаёт сервис отчётов.
func NewReportService(
	recordRepo repository.ComplianceRepository,
	reviewRepo repository.ReviewRepository,
	bulkRepo repository.BulkOperationRepository,
	stateRepo repository.SweepStateRepository,
) *ReportService {
	return &ReportService{
		recordRepo: recordRepo,
		reviewRepo: reviewRepo,
		bulkRepo:   bulkRepo,
		stateRepo:  stateRepo,
		now:        time.Now,
	}
}

// Summary собирает сводный отчёт: счётчики по статусам, самые просроченные записи,
// недавние ответы мейнтейнеров (необработанные первыми), последние рассылки.
func (s *ReportService) Summary(ctx context.Context) (*Report, error) {
	now := s.now().UTC()
	r := &Report{}
	var err error

	if r.Counts, err = s.recordRepo.CountByStatus(ctx); err != nil {
		return nil, fmt.Errorf("отчёт: %w", err)
	}
	if r.Overdue, err = s.recordRepo.ListOverdueReport(ctx, now, reportOverdueLimit); err != nil {
		return nil, fmt.Errorf("отчёт: %w", err)
	}
	since := now.AddDate(0, 0, -reportReviewsDays)
	if r.RecentReviews, err = s.reviewRepo.ListRecent(ctx, since, reportReviewsLimit); err != nil {
		return nil, fmt.Errorf("отчёт: %w", err)
	}
	if r.BulkOperations, err = s.bulkRepo.ListRecent(ctx, reportBulkLimit); err != nil {
		return nil, fmt.Errorf("отчёт: %w", err)
	}
	if r.LastSweep, err = s.stateRepo.Get(ctx); err != nil {
		return nil, fmt.Errorf("отчёт: %w", err)
	}
	return r, nil
}
