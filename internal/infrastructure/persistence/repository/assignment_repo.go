package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/application/port"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/persistence/sqlite"
)

// AssignmentRepository implements port.AssignmentRepository
type AssignmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *sql.DB, logger *zap.Logger) port.AssignmentRepository {
	return &AssignmentRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert sets the agent's current post
func (r *AssignmentRepository) Upsert(ctx context.Context, a *entity.AgentAssignment) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO agent_assignments (matricule, post, direction, service, request_id, applied_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (matricule) DO UPDATE SET
			post = excluded.post,
			direction = excluded.direction,
			service = excluded.service,
			request_id = excluded.request_id,
			applied_at = excluded.applied_at`,
		a.Matricule, a.Post, a.Direction, a.Service, a.RequestID, utc(a.AppliedAt))
	if err != nil {
		r.logger.Error("Failed to upsert assignment", zap.String("matricule", a.Matricule), zap.Error(err))
		return fmt.Errorf("failed to upsert assignment: %w", err)
	}
	return nil
}

// GetByMatricule returns the agent's current assignment
func (r *AssignmentRepository) GetByMatricule(ctx context.Context, matricule string) (*entity.AgentAssignment, error) {
	var a entity.AgentAssignment
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT matricule, post, direction, service, request_id, applied_at
		FROM agent_assignments WHERE matricule = ?`, matricule,
	).Scan(&a.Matricule, &a.Post, &a.Direction, &a.Service, &a.RequestID, &a.AppliedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &a, nil
}

var _ port.AssignmentRepository = (*AssignmentRepository)(nil)
