package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/application/port"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/domain/workflow"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/persistence/sqlite"
)

// DecisionRepository implements port.DecisionLedger. Rows are append-only;
// UNIQUE(request_id, role) keeps one decision per role.
type DecisionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDecisionRepository creates a new decision ledger
func NewDecisionRepository(db *sql.DB, logger *zap.Logger) port.DecisionLedger {
	return &DecisionRepository{
		db:     db,
		logger: logger,
	}
}

// Append records a decision
func (r *DecisionRepository) Append(ctx context.Context, d *entity.ValidationDecision) error {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO validation_decisions (
			request_id, role, decision, comment, decided_by, decided_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		d.RequestID, d.Role, d.Decision, d.Comment, d.DecidedBy, utc(d.DecidedAt),
	)
	if sqlite.IsUniqueViolation(err) {
		return workflow.NewError(workflow.KindConflict, "record decision",
			"role %s has already decided on request %s", d.Role, d.RequestID)
	}
	if err != nil {
		r.logger.Error("Failed to append decision",
			zap.String("request_id", d.RequestID),
			zap.String("role", d.Role.String()),
			zap.Error(err))
		return fmt.Errorf("failed to append decision: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	d.ID = id
	return nil
}

// ListByRequestID returns the decisions on a request in the order they were made
func (r *DecisionRepository) ListByRequestID(ctx context.Context, requestID string) ([]*entity.ValidationDecision, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, request_id, role, decision, comment, decided_by, decided_at
		FROM validation_decisions
		WHERE request_id = ?
		ORDER BY decided_at ASC, id ASC`, requestID)
	if err != nil {
		r.logger.Error("Failed to list decisions", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*entity.ValidationDecision
	for rows.Next() {
		var d entity.ValidationDecision
		if err := rows.Scan(&d.ID, &d.RequestID, &d.Role, &d.Decision, &d.Comment, &d.DecidedBy, &d.DecidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}

var _ port.DecisionLedger = (*DecisionRepository)(nil)
