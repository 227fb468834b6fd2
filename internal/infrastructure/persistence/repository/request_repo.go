package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/application/port"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/domain/workflow"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/persistence/sqlite"
)

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

const requestColumns = `
	id, type, status,
	applicant_full_name, applicant_matricule, applicant_direction,
	applicant_service, applicant_email, applicant_grade,
	applicant_current_post, applicant_hired_at,
	desired_post, desired_locations, motif, ineligibility_reasons,
	effective_date, mutation_applied_at, created_by, submitted_at,
	created_at, updated_at`

// Create inserts a new request
func (r *RequestRepository) Create(ctx context.Context, req *entity.Request) error {
	locations, err := encodeStrings(req.DesiredLocations)
	if err != nil {
		return fmt.Errorf("failed to encode locations: %w", err)
	}
	reasons, err := encodeStrings(req.IneligibilityReasons)
	if err != nil {
		return fmt.Errorf("failed to encode reasons: %w", err)
	}

	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now

	a := req.Applicant
	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Type, req.Status,
		a.FullName, a.Matricule, a.Direction,
		a.Service, a.Email, a.Grade,
		a.CurrentPost, nullableTime(a.HiredAt),
		req.DesiredPost, locations, req.Motif, reasons,
		nullableTime(req.EffectiveDate), nullableTime(req.MutationAppliedAt), req.CreatedBy, nullableTime(req.SubmittedAt),
		utc(req.CreatedAt), req.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.String("request_id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*entity.Request, error) {
	var (
		req                                    entity.Request
		hiredAt, effective, applied, submitted sql.NullTime
		locations, reasons                     string
	)
	a := &req.Applicant
	err := row.Scan(
		&req.ID, &req.Type, &req.Status,
		&a.FullName, &a.Matricule, &a.Direction,
		&a.Service, &a.Email, &a.Grade,
		&a.CurrentPost, &hiredAt,
		&req.DesiredPost, &locations, &req.Motif, &reasons,
		&effective, &applied, &req.CreatedBy, &submitted,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if req.DesiredLocations, err = decodeStrings(locations); err != nil {
		return nil, fmt.Errorf("failed to decode locations: %w", err)
	}
	if req.IneligibilityReasons, err = decodeStrings(reasons); err != nil {
		return nil, fmt.Errorf("failed to decode reasons: %w", err)
	}
	a.HiredAt = timePtr(hiredAt)
	req.EffectiveDate = timePtr(effective)
	req.MutationAppliedAt = timePtr(applied)
	req.SubmittedAt = timePtr(submitted)
	return &req, nil
}

// GetByID retrieves a request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.Request, error) {
	row := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)

	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request by ID", zap.String("request_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// List returns requests matching filter, newest first
func (r *RequestRepository) List(ctx context.Context, filter entity.RequestFilter) ([]*entity.Request, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, s)
		}
	}
	if filter.Matricule != "" {
		where = append(where, "applicant_matricule = ?")
		args = append(args, filter.Matricule)
	}
	if filter.CreatedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// UpdateStatusIfCurrent performs a compare-and-set on the status column
func (r *RequestRepository) UpdateStatusIfCurrent(ctx context.Context, id string, expected, next workflow.State) (bool, error) {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		next, time.Now().UTC(), id, expected)
	if err != nil {
		r.logger.Error("Failed to update status",
			zap.String("request_id", id),
			zap.String("status", next.String()),
			zap.Error(err))
		return false, fmt.Errorf("failed to update status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// MarkSubmitted records the submission time
func (r *RequestRepository) MarkSubmitted(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "mark submitted",
		`UPDATE requests SET submitted_at = ?, updated_at = ? WHERE id = ?`,
		utc(at), time.Now().UTC(), id)
}

// SetIneligibilityReasons stores the reasons of a failed eligibility check
func (r *RequestRepository) SetIneligibilityReasons(ctx context.Context, id string, reasons []string) error {
	encoded, err := encodeStrings(reasons)
	if err != nil {
		return fmt.Errorf("failed to encode reasons: %w", err)
	}
	return r.exec(ctx, "set ineligibility reasons",
		`UPDATE requests SET ineligibility_reasons = ?, updated_at = ? WHERE id = ?`,
		encoded, time.Now().UTC(), id)
}

// SetEffectiveDate stores the date the mutation takes effect
func (r *RequestRepository) SetEffectiveDate(ctx context.Context, id string, date time.Time) error {
	return r.exec(ctx, "set effective date",
		`UPDATE requests SET effective_date = ?, updated_at = ? WHERE id = ?`,
		utc(date), time.Now().UTC(), id)
}

// MarkMutationApplied stamps the request unless it was already stamped
func (r *RequestRepository) MarkMutationApplied(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE requests SET mutation_applied_at = ?, updated_at = ?
		 WHERE id = ? AND mutation_applied_at IS NULL`,
		utc(at), time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to mark mutation applied", zap.String("request_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to mark mutation applied: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// CountOpenByMatricule counts the applicant's submitted, non-terminal requests
func (r *RequestRepository) CountOpenByMatricule(ctx context.Context, matricule, excludeID string) (int, error) {
	closed := []workflow.State{workflow.StateBrouillon}
	for _, s := range workflow.AllStates() {
		if s.IsTerminal() {
			closed = append(closed, s)
		}
	}

	args := []interface{}{matricule, excludeID}
	for _, s := range closed {
		args = append(args, s)
	}

	var count int
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM requests
		WHERE applicant_matricule = ? AND id <> ?
		  AND status NOT IN (`+placeholders(len(closed))+`)`,
		args...).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count open requests", zap.String("matricule", matricule), zap.Error(err))
		return 0, fmt.Errorf("failed to count open requests: %w", err)
	}
	return count, nil
}

func (r *RequestRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	if _, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

var _ port.RequestRepository = (*RequestRepository)(nil)
