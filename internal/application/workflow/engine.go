// Package workflow runs request transitions against storage: it loads the
// request and its ledger, applies the domain transition rules, and persists
// the decision, the new status, the history row and the effect outbox in one
// transaction.
package workflow

import (
	"context"
	"time"

	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/domain/eligibility"
	domainwf "github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Engine persists request lifecycle changes
type Engine interface {
	// Create stores a new request in its type's initial status
	Create(ctx context.Context, req *entity.Request, actor entity.Actor) error

	// Submit moves a draft through SOUMISE to review or INELIGIBLE
	Submit(ctx context.Context, requestID string, actor entity.Actor) (*SubmitOutcome, error)

	// Decide records a reviewer decision and advances the request
	Decide(ctx context.Context, cmd DecideCommand) (*DecideOutcome, error)
}

// SubmitOutcome is the result of a committed submission
type SubmitOutcome struct {
	Request     *entity.Request
	Eligibility eligibility.Result
	Tasks       []*entity.EffectTask
}

// DecideCommand is a reviewer decision to record
type DecideCommand struct {
	RequestID     string
	Actor         entity.Actor
	Decision      domainwf.Decision
	Comment       string
	EffectiveDate *time.Time
}

// DecideOutcome is the result of a committed decision
type DecideOutcome struct {
	Request        *entity.Request
	Decision       *entity.ValidationDecision
	PreviousStatus domainwf.State
	Tasks          []*entity.EffectTask
}

// TaskIDs returns the IDs of the enqueued effect tasks
func TaskIDs(tasks []*entity.EffectTask) []int64 {
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
