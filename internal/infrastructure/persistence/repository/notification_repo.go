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

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new notification record
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	if n.Status == "" {
		n.Status = entity.NotificationStatusPending
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO notifications (
			request_id, channel, recipient, subject, status,
			attachments, sent_at, error_message, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.RequestID, n.Channel, n.Recipient, n.Subject, n.Status,
		n.Attachments, nullableTime(n.SentAt), n.ErrorMessage, utc(n.CreatedAt), n.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.String("request_id", n.RequestID),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	n.ID = id
	return nil
}

// GetByRequestID lists notifications sent about a request
func (r *NotificationRepository) GetByRequestID(ctx context.Context, requestID string) ([]*entity.Notification, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, request_id, channel, recipient, subject, status,
			attachments, sent_at, error_message, created_at, updated_at
		FROM notifications
		WHERE request_id = ?
		ORDER BY id ASC`, requestID)
	if err != nil {
		r.logger.Error("Failed to get notifications", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	defer rows.Close()

	var list []*entity.Notification
	for rows.Next() {
		var n entity.Notification
		var sentAt sql.NullTime
		err := rows.Scan(
			&n.ID, &n.RequestID, &n.Channel, &n.Recipient, &n.Subject, &n.Status,
			&n.Attachments, &sentAt, &n.ErrorMessage, &n.CreatedAt, &n.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.SentAt = timePtr(sentAt)
		list = append(list, &n)
	}
	return list, rows.Err()
}

// UpdateStatus updates the notification status and error message
func (r *NotificationRepository) UpdateStatus(ctx context.Context, id int64, status string, errorMsg string) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE notifications
		SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		status, errorMsg, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update notification status",
			zap.Int64("id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// MarkSent marks notification as sent
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE notifications
		SET status = ?, sent_at = ?, error_message = '', updated_at = ?
		WHERE id = ?`,
		entity.NotificationStatusSent, now, now, id)
	if err != nil {
		r.logger.Error("Failed to mark notification as sent", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark sent: %w", err)
	}
	return nil
}

var _ port.NotificationRepository = (*NotificationRepository)(nil)
