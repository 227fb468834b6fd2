package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/application/port"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/persistence/sqlite"
)

// EffectTaskRepository implements port.EffectTaskRepository
type EffectTaskRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEffectTaskRepository creates a new outbox repository
func NewEffectTaskRepository(db *sql.DB, logger *zap.Logger) port.EffectTaskRepository {
	return &EffectTaskRepository{
		db:     db,
		logger: logger,
	}
}

const effectTaskColumns = `id, request_id, kind, document_type, status, attempts,
	last_error, run_at, created_at, updated_at`

// Enqueue inserts tasks, skipping duplicates. Every task gets the ID of its
// row, whether new or existing.
func (r *EffectTaskRepository) Enqueue(ctx context.Context, tasks []*entity.EffectTask) error {
	conn := sqlite.Conn(ctx, r.db)
	now := time.Now().UTC()

	for _, t := range tasks {
		if t.Status == "" {
			t.Status = entity.EffectStatusPending
		}
		if t.RunAt.IsZero() {
			t.RunAt = now
		}
		t.CreatedAt = now
		t.UpdatedAt = now

		_, err := conn.ExecContext(ctx, `
			INSERT INTO effect_tasks (
				request_id, kind, document_type, status, attempts,
				last_error, run_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, 0, '', ?, ?, ?)
			ON CONFLICT (request_id, kind, document_type) DO NOTHING`,
			t.RequestID, t.Kind, t.DocumentType, t.Status, utc(t.RunAt), now, now,
		)
		if err != nil {
			r.logger.Error("Failed to enqueue effect task",
				zap.String("request_id", t.RequestID),
				zap.String("task", t.Label()),
				zap.Error(err))
			return fmt.Errorf("failed to enqueue task %s: %w", t.Label(), err)
		}

		err = conn.QueryRowContext(ctx,
			`SELECT id FROM effect_tasks WHERE request_id = ? AND kind = ? AND document_type = ?`,
			t.RequestID, t.Kind, t.DocumentType,
		).Scan(&t.ID)
		if err != nil {
			return fmt.Errorf("failed to read task id: %w", err)
		}
	}
	return nil
}

// Claim takes a task for execution and counts the attempt
func (r *EffectTaskRepository) Claim(ctx context.Context, id int64) (bool, error) {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE effect_tasks
		SET status = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		entity.EffectStatusRunning, time.Now().UTC(), id,
		entity.EffectStatusPending, entity.EffectStatusFailed)
	if err != nil {
		return false, fmt.Errorf("failed to claim task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// MarkDone completes a task
func (r *EffectTaskRepository) MarkDone(ctx context.Context, id int64) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE effect_tasks SET status = ?, last_error = '', updated_at = ? WHERE id = ?`,
		entity.EffectStatusDone, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to mark task done", zap.Int64("task_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark task done: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt and when to retry
func (r *EffectTaskRepository) MarkFailed(ctx context.Context, id int64, errMsg string, retryAt time.Time) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE effect_tasks SET status = ?, last_error = ?, run_at = ?, updated_at = ? WHERE id = ?`,
		entity.EffectStatusFailed, errMsg, utc(retryAt), time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to mark task failed", zap.Int64("task_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	return nil
}

// GetByIDs returns the given tasks in ID order
func (r *EffectTaskRepository) GetByIDs(ctx context.Context, ids []int64) ([]*entity.EffectTask, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return r.query(ctx, `SELECT `+effectTaskColumns+` FROM effect_tasks
		WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`, args...)
}

// GetByRequestID returns every task of a request
func (r *EffectTaskRepository) GetByRequestID(ctx context.Context, requestID string) ([]*entity.EffectTask, error) {
	return r.query(ctx, `SELECT `+effectTaskColumns+` FROM effect_tasks
		WHERE request_id = ? ORDER BY id`, requestID)
}

// ListDue returns PENDING or FAILED tasks that may run now
func (r *EffectTaskRepository) ListDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*entity.EffectTask, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.query(ctx, `SELECT `+effectTaskColumns+` FROM effect_tasks
		WHERE status IN (?, ?) AND run_at <= ? AND attempts < ?
		ORDER BY run_at, id
		LIMIT ?`,
		entity.EffectStatusPending, entity.EffectStatusFailed, utc(now), maxAttempts, limit)
}

// ResetStale releases tasks left RUNNING by a crashed process
func (r *EffectTaskRepository) ResetStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE effect_tasks SET status = ?, updated_at = ?
		WHERE status = ? AND updated_at < ?`,
		entity.EffectStatusPending, time.Now().UTC(), entity.EffectStatusRunning, utc(before))
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale tasks: %w", err)
	}
	return result.RowsAffected()
}

func (r *EffectTaskRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.EffectTask, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query effect tasks", zap.Error(err))
		return nil, fmt.Errorf("failed to query effect tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*entity.EffectTask
	for rows.Next() {
		var t entity.EffectTask
		err := rows.Scan(&t.ID, &t.RequestID, &t.Kind, &t.DocumentType, &t.Status, &t.Attempts,
			&t.LastError, &t.RunAt, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan effect task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

var _ port.EffectTaskRepository = (*EffectTaskRepository)(nil)
