package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
	"github.com/signalfire/content-compliance/internal/domain/model"
)

// BulkOperationRepository: интерфейс для таблицы bulk_operations.
type BulkOperationRepository interface {
	// Create создаёт операцию в статусе running. Заполняет ID, StartedAt, UpdatedAt.
	Create(ctx context.Context, op *model.BulkOperation) error
	// Get возвращает операцию по ID или ErrNotFound, если её нет.
	Get(ctx context.Context, id int64) (*model.BulkOperation, error)
	// UpdateProgress перезаписывает счётчики и статус операции.
	// Обновление завершённой операции, уменьшение счётчиков или
	// сумма счётчиков больше total_items, возвращается ErrConflict.
	UpdateProgress(ctx context.Context, id int64, successful, failed int, status compliance.BulkStatus) (*model.BulkOperation, error)
	// FailStale переводит в failed операции running без прогресса с момента olderThan.
	// Возвращает число затронутых операций.
	FailStale(ctx context.Context, olderThan time.Time, message string) (int64, error)
	// ListRecent возвращает последние операции, новые первыми.
	ListRecent(ctx context.Context, limit int) ([]model.BulkOperation, error)
}

type bulkOperationRepo struct {
	db DBTX
}

// NewBulkOperationRepository создаёт репозиторий массовых операций.
func NewBulkOperationRepository(db DBTX) BulkOperationRepository {
	return &bulkOperationRepo{db: db}
}

const bulkColumns = `id, operation_type, content_type, overdue_only, total_items,
		successful_sends, failed_sends, initiated_by, started_at, completed_at,
		updated_at, status, error_message`

// scanBulk сканирует одну строку bulk_operations.
func scanBulk(row pgx.Row) (*model.BulkOperation, error) {
	op := &model.BulkOperation{}
	var status string
	err := row.Scan(
		&op.ID, &op.OperationType, &op.ContentType, &op.OverdueOnly, &op.TotalItems,
		&op.SuccessfulSends, &op.FailedSends, &op.InitiatedBy, &op.StartedAt, &op.CompletedAt,
		&op.UpdatedAt, &status, &op.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	op.Status = compliance.BulkStatus(status)
	return op, nil
}

func (r *bulkOperationRepo) Create(ctx context.Context, op *model.BulkOperation) error {
	query := `
		INSERT INTO bulk_operations (operation_type, content_type, overdue_only, total_items, initiated_by, status)
		VALUES ($1, $2, $3, $4, $5, 'running')
		RETURNING id, started_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		op.OperationType, op.ContentType, op.OverdueOnly, op.TotalItems, op.InitiatedBy,
	).Scan(&op.ID, &op.StartedAt, &op.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания bulk_operations: %w", err)
	}
	op.Status = compliance.BulkRunning
	return nil
}

func (r *bulkOperationRepo) Get(ctx context.Context, id int64) (*model.BulkOperation, error) {
	query := `SELECT ` + bulkColumns + ` FROM bulk_operations WHERE id = $1`

	op, err := scanBulk(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения bulk_operations[%d]: %w", id, err)
	}
	return op, nil
}

func (r *bulkOperationRepo) UpdateProgress(
	ctx context.Context,
	id int64,
	successful, failed int,
	status compliance.BulkStatus,
) (*model.BulkOperation, error) {
	// Условное обновление: только running, счётчики не убывают и не превышают total_items
	query := `
		UPDATE bulk_operations
		SET successful_sends = $2,
			failed_sends = $3,
			status = $4,
			completed_at = CASE WHEN $4 = 'completed' THEN NOW() ELSE NULL END
		WHERE id = $1
			AND status = 'running'
			AND $2 >= successful_sends
			AND $3 >= failed_sends
			AND $2 + $3 <= total_items
		RETURNING ` + bulkColumns

	op, err := scanBulk(r.db.QueryRow(ctx, query, id, successful, failed, string(status)))
	if err == nil {
		return op, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ошибка обновления bulk_operations[%d]: %w", id, err)
	}

	if _, getErr := r.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrConflict
}

func (r *bulkOperationRepo) FailStale(ctx context.Context, olderThan time.Time, message string) (int64, error) {
	query := `
		UPDATE bulk_operations
		SET status = 'failed', error_message = $2
		WHERE status = 'running' AND updated_at < $1`

	tag, err := r.db.Exec(ctx, query, olderThan, message)
	if err != nil {
		return 0, fmt.Errorf("ошибка завершения зависших bulk_operations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *bulkOperationRepo) ListRecent(ctx context.Context, limit int) ([]model.BulkOperation, error) {
	query := `
		SELECT ` + bulkColumns + `
		FROM bulk_operations
		ORDER BY started_at DESC, id DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка bulk_operations: %w", err)
	}
	defer rows.Close()

	var ops []model.BulkOperation
	for rows.Next() {
		op, err := scanBulk(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования bulk_operations: %w", err)
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}
