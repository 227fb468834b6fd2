package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/application/port"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, h *entity.StatusHistory) error {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO status_history (
			request_id, previous_status, new_status, trigger_name,
			actor_id, actor_role, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.RequestID, h.PreviousStatus, h.NewStatus, h.Trigger,
		h.ActorID, h.ActorRole, utc(h.Timestamp),
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.String("request_id", h.RequestID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	h.ID = id
	return nil
}

// GetByRequestID retrieves all history records for a request
func (r *HistoryRepository) GetByRequestID(ctx context.Context, requestID string) ([]*entity.StatusHistory, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, request_id, previous_status, new_status, trigger_name,
			actor_id, actor_role, created_at
		FROM status_history
		WHERE request_id = ?
		ORDER BY id ASC`, requestID)
	if err != nil {
		r.logger.Error("Failed to get history by request ID", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.StatusHistory
	for rows.Next() {
		var h entity.StatusHistory
		err := rows.Scan(
			&h.ID,
			&h.RequestID,
			&h.PreviousStatus,
			&h.NewStatus,
			&h.Trigger,
			&h.ActorID,
			&h.ActorRole,
			&h.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, &h)
	}

	return records, rows.Err()
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
