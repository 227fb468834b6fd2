package port

import (
	"context"
	"time"

	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

// Lookups that find nothing return (nil, nil).

// RequestRepository defines persistence operations for mutation requests
type RequestRepository interface {
	Create(ctx context.Context, req *entity.Request) error
	GetByID(ctx context.Context, id string) (*entity.Request, error)
	List(ctx context.Context, filter entity.RequestFilter) ([]*entity.Request, error)

	// UpdateStatusIfCurrent moves the request to next only if it is still in
	// expected. It reports false when another writer got there first.
	UpdateStatusIfCurrent(ctx context.Context, id string, expected, next workflow.State) (bool, error)

	MarkSubmitted(ctx context.Context, id string, at time.Time) error
	SetIneligibilityReasons(ctx context.Context, id string, reasons []string) error
	SetEffectiveDate(ctx context.Context, id string, date time.Time) error

	// MarkMutationApplied stamps the request once; it reports false if the
	// mutation was already applied.
	MarkMutationApplied(ctx context.Context, id string, at time.Time) (bool, error)

	// CountOpenByMatricule counts requests of the applicant that are
	// submitted and not terminal, excluding excludeID.
	CountOpenByMatricule(ctx context.Context, matricule, excludeID string) (int, error)
}

// DecisionLedger stores reviewer decisions. Append fails with a CONFLICT
// workflow error when the role already decided on the request.
type DecisionLedger interface {
	Append(ctx context.Context, decision *entity.ValidationDecision) error
	ListByRequestID(ctx context.Context, requestID string) ([]*entity.ValidationDecision, error)
}

// HistoryRepository defines persistence operations for status history
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.StatusHistory) error
	GetByRequestID(ctx context.Context, requestID string) ([]*entity.StatusHistory, error)
}

// DocumentRepository defines persistence operations for generated documents
type DocumentRepository interface {
	// Upsert keeps one artifact per (request, type)
	Upsert(ctx context.Context, doc *entity.DocumentArtifact) error
	GetByRequestID(ctx context.Context, requestID string) ([]*entity.DocumentArtifact, error)
}

// NotificationRepository defines persistence operations for applicant notifications
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	GetByRequestID(ctx context.Context, requestID string) ([]*entity.Notification, error)
	UpdateStatus(ctx context.Context, id int64, status string, errorMsg string) error
	MarkSent(ctx context.Context, id int64) error
}

// EffectTaskRepository is the outbox of side effects
type EffectTaskRepository interface {
	// Enqueue inserts tasks, ignoring ones already queued for the same
	// (request, kind, document type). IDs are filled on the given tasks.
	Enqueue(ctx context.Context, tasks []*entity.EffectTask) error

	// Claim moves a PENDING or FAILED task to RUNNING. It reports false
	// when another runner holds it or it is done.
	Claim(ctx context.Context, id int64) (bool, error)

	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string, retryAt time.Time) error

	GetByIDs(ctx context.Context, ids []int64) ([]*entity.EffectTask, error)
	GetByRequestID(ctx context.Context, requestID string) ([]*entity.EffectTask, error)

	// ListDue returns retryable tasks whose run time has passed and that
	// have been attempted fewer than maxAttempts times.
	ListDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*entity.EffectTask, error)

	// ResetStale returns RUNNING tasks untouched since before to PENDING
	ResetStale(ctx context.Context, before time.Time) (int64, error)
}

// AssignmentRepository keeps the current post of each agent
type AssignmentRepository interface {
	Upsert(ctx context.Context, a *entity.AgentAssignment) error
	GetByMatricule(ctx context.Context, matricule string) (*entity.AgentAssignment, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
