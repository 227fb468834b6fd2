// Package service exposes the workflow operations to transports. It checks
// the caller's authorization context, delegates state changes to the
// workflow engine and reports effect outcomes alongside committed results.
package service

import (
	"context"
	"time"

	"github.com/garyjia/mutation-workflow/internal/application/effects"
	"github.com/garyjia/mutation-workflow/internal/domain/eligibility"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/domain/event"
	domainwf "github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// WorkflowGateway is the public surface of the mutation workflow
type WorkflowGateway interface {
	Create(ctx context.Context, actor entity.Actor, input CreateInput) (*entity.Request, error)
	Submit(ctx context.Context, requestID string, actor entity.Actor) (*SubmitResult, error)
	Decide(ctx context.Context, input DecideInput) (*DecisionResult, error)
	GetStatus(ctx context.Context, requestID string) (*RequestView, error)
	ListDecisions(ctx context.Context, requestID string) ([]*entity.ValidationDecision, error)
	ListRequests(ctx context.Context, actor entity.Actor, query ListQuery) ([]*entity.Request, error)
	Document(ctx context.Context, requestID string, docType entity.DocumentType) (*entity.DocumentArtifact, []byte, error)
	Watch(ctx context.Context, requestID string) (<-chan *event.Event, error)
}

// EffectAwaiter waits for the effects enqueued by a transition
type EffectAwaiter interface {
	Await(ctx context.Context, ids []int64, timeout time.Duration) effects.Report
}

// Config tunes the gateway
type Config struct {
	// EffectsWaitTimeout bounds how long Submit and Decide wait for effects
	// before reporting them as pending
	EffectsWaitTimeout time.Duration
	// AllowPublicFiling lets unauthenticated callers create requests
	AllowPublicFiling bool
	// WatchBuffer is the per-subscriber event buffer; events beyond it are
	// dropped for that subscriber
	WatchBuffer int
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		EffectsWaitTimeout: 5 * time.Second,
		WatchBuffer:        16,
	}
}

// CreateInput is the payload of a new request
type CreateInput struct {
	Type             domainwf.RequestType
	Applicant        entity.ApplicantSnapshot
	DesiredPost      string
	DesiredLocations []string
	Motif            string
}

// SubmitResult is the outcome of a submission
type SubmitResult struct {
	Request  *entity.Request      `json:"demande"`
	Eligible bool                 `json:"eligible"`
	Reasons  []eligibility.Reason `json:"reasons,omitempty"`
	Effects  effects.Report       `json:"effects"`
}

// DecideInput is a reviewer decision. ClaimedRole is the role the client
// says it acts as; it must match the authenticated role.
type DecideInput struct {
	RequestID     string
	Actor         entity.Actor
	ClaimedRole   domainwf.Role
	Decision      domainwf.Decision
	Comment       string
	EffectiveDate *time.Time
}

// DecisionResult is the outcome of a recorded decision. Warnings describe
// effects that failed; they never mean the decision was not recorded.
type DecisionResult struct {
	Request        *entity.Request            `json:"demande"`
	Decision       *entity.ValidationDecision `json:"validation"`
	PreviousStatus domainwf.State             `json:"previousStatus"`
	Effects        effects.Report             `json:"effects"`
}

// RequestView is the read projection of one request
type RequestView struct {
	Request      *entity.Request              `json:"demande"`
	Decisions    []*entity.ValidationDecision `json:"validations"`
	Documents    []*entity.DocumentArtifact   `json:"documents"`
	History      []*entity.StatusHistory      `json:"historique"`
	Progress     []domainwf.Step              `json:"progression"`
	AwaitingRole domainwf.Role                `json:"roleAttendu,omitempty"`
}

// ListQuery filters ListRequests
type ListQuery struct {
	Statuses     []domainwf.State
	AwaitingRole domainwf.Role
	Matricule    string
	Limit        int
	Offset       int
}
