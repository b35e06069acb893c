package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/signalfire/content-compliance/internal/domain/model"
)

// SweepStateRepository: интерфейс для таблицы sweep_state (одна строка).
type SweepStateRepository interface {
	// Get возвращает текущее состояние периодической проверки.
	Get(ctx context.Context) (*model.SweepState, error)
	// RecordSweep сохраняет время и итог прогона.
	RecordSweep(ctx context.Context, at time.Time, summary *model.SweepSummary) error
}

type sweepStateRepo struct {
	db DBTX
}

// NewSweepStateRepository создаёт репозиторий состояния проверки.
func NewSweepStateRepository(db DBTX) SweepStateRepository {
	return &sweepStateRepo{db: db}
}

func (r *sweepStateRepo) Get(ctx context.Context) (*model.SweepState, error) {
	query := `
		SELECT id, last_sweep_at, last_sweep_summary, created_at, updated_at
		FROM sweep_state
		WHERE id = 1`

	s := &model.SweepState{}
	var summary []byte
	err := r.db.QueryRow(ctx, query).Scan(&s.ID, &s.LastSweepAt, &summary, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения sweep_state: %w", err)
	}
	if len(summary) > 0 {
		s.LastSummary = &model.SweepSummary{}
		if err := json.Unmarshal(summary, s.LastSummary); err != nil {
			return nil, fmt.Errorf("ошибка разбора last_sweep_summary: %w", err)
		}
	}
	return s, nil
}

func (r *sweepStateRepo) RecordSweep(ctx context.Context, at time.Time, summary *model.SweepSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("ошибка сериализации итога проверки: %w", err)
	}

	query := `UPDATE sweep_state SET last_sweep_at = $1, last_sweep_summary = $2 WHERE id = 1`
	if _, err := r.db.Exec(ctx, query, at, data); err != nil {
		return fmt.Errorf("ошибка обновления sweep_state: %w", err)
	}
	return nil
}
