package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/mutation-workflow/internal/application/dispatcher"
	"github.com/garyjia/mutation-workflow/internal/application/effects"
	"github.com/garyjia/mutation-workflow/internal/application/port"
	"github.com/garyjia/mutation-workflow/internal/domain/eligibility"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/domain/event"
	domainwf "github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

type engineImpl struct {
	requests  port.RequestRepository
	ledger    port.DecisionLedger
	history   port.HistoryRepository
	tasks     port.EffectTaskRepository
	txManager port.TransactionManager
	evaluator *eligibility.Evaluator

	directory  eligibility.Directory
	dispatcher dispatcher.Dispatcher
	locker     *KeyedLocker
	logger     Logger
	now        func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the dispatcher that receives committed changes
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithDirectory sets the referential consulted by destination rules
func WithDirectory(d eligibility.Directory) EngineOption {
	return func(e *engineImpl) {
		e.directory = d
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithLocker shares a locker between engines of the same process
func WithLocker(l *KeyedLocker) EngineOption {
	return func(e *engineImpl) {
		e.locker = l
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	requests port.RequestRepository,
	ledger port.DecisionLedger,
	history port.HistoryRepository,
	tasks port.EffectTaskRepository,
	txManager port.TransactionManager,
	evaluator *eligibility.Evaluator,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		requests:  requests,
		ledger:    ledger,
		history:   history,
		tasks:     tasks,
		txManager: txManager,
		evaluator: evaluator,
		locker:    NewKeyedLocker(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *engineImpl) Create(ctx context.Context, req *entity.Request, actor entity.Actor) error {
	now := e.now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.requests.Create(txCtx, req); err != nil {
			return err
		}
		return e.recordHistory(txCtx, req.ID, "", req.Status, entity.TriggerCreate, actor, now)
	})
	if err != nil {
		return err
	}

	e.logInfo("Request created", "request_id", req.ID, "type", req.Type, "status", req.Status)
	e.publish(ctx, event.NewEvent(event.TypeRequestCreated, req.ID, map[string]interface{}{
		event.KeyNewStatus: req.Status.String(),
		event.KeyActorID:   actor.ID,
		event.KeyRole:      actor.Role.String(),
	}))
	return nil
}

func (e *engineImpl) Submit(ctx context.Context, requestID string, actor entity.Actor) (*SubmitOutcome, error) {
	const op = "submit"

	unlock := e.locker.Lock(requestID)
	defer unlock()

	var out SubmitOutcome
	var submitted domainwf.State
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := e.load(txCtx, op, requestID)
		if err != nil {
			return err
		}
		if !canSubmit(req, actor) {
			return domainwf.NewError(domainwf.KindForbidden, op, "%s %q cannot submit request %s", actor.Role, actor.ID, req.ID)
		}
		if req.Status != domainwf.StateBrouillon {
			return domainwf.NewError(domainwf.KindInvalidState, op, "only a draft can be submitted, request is %s", req.Status)
		}

		open, err := e.requests.CountOpenByMatricule(txCtx, req.Applicant.Matricule, req.ID)
		if err != nil {
			return err
		}

		now := e.now().UTC()
		result := e.evaluator.Evaluate(req, eligibility.Facts{
			Now:          now,
			OpenRequests: open,
			Directory:    e.directory,
		})

		var final domainwf.State
		submitted, final, err = domainwf.SubmitOutcome(txCtx, req.Status, result.Eligible)
		if err != nil {
			return err
		}

		if err := e.advance(txCtx, op, req, submitted, domainwf.TriggerSubmit.String(), actor, now); err != nil {
			return err
		}
		if err := e.advance(txCtx, op, req, final, domainwf.TriggerEvaluate.String(), actor, now); err != nil {
			return err
		}
		if err := e.requests.MarkSubmitted(txCtx, req.ID, now); err != nil {
			return err
		}
		req.SubmittedAt = &now

		if !result.Eligible {
			req.IneligibilityReasons = result.Messages()
			if err := e.requests.SetIneligibilityReasons(txCtx, req.ID, req.IneligibilityReasons); err != nil {
				return err
			}
		}

		tasks := effects.Plan(req, final, now)
		if len(tasks) > 0 {
			if err := e.tasks.Enqueue(txCtx, tasks); err != nil {
				return err
			}
		}

		out = SubmitOutcome{Request: req, Eligibility: result, Tasks: tasks}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logInfo("Request submitted",
		"request_id", requestID,
		"status", out.Request.Status,
		"eligible", out.Eligibility.Eligible,
	)
	e.publishStatus(ctx, out.Request.ID, domainwf.StateBrouillon, submitted, domainwf.TriggerSubmit.String(), actor, nil)
	e.publishStatus(ctx, out.Request.ID, submitted, out.Request.Status, domainwf.TriggerEvaluate.String(), actor, out.Tasks)
	return &out, nil
}

func (e *engineImpl) Decide(ctx context.Context, cmd DecideCommand) (*DecideOutcome, error) {
	const op = "decide"

	unlock := e.locker.Lock(cmd.RequestID)
	defer unlock()

	var out DecideOutcome
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := e.load(txCtx, op, cmd.RequestID)
		if err != nil {
			return err
		}

		decisions, err := e.ledger.ListByRequestID(txCtx, req.ID)
		if err != nil {
			return err
		}

		next, err := domainwf.Transition(txCtx, domainwf.DecisionInput{
			State:    req.Status,
			Ledger:   entity.LedgerEntries(decisions),
			Role:     cmd.Actor.Role,
			Decision: cmd.Decision,
			Comment:  cmd.Comment,
		})
		if err != nil {
			return err
		}

		if cmd.EffectiveDate != nil && next != domainwf.StateAcceptee {
			return domainwf.NewError(domainwf.KindInvalidInput, op, "an effective date is only accepted with the final DNCF approval")
		}

		now := e.now().UTC()
		decision := &entity.ValidationDecision{
			RequestID: req.ID,
			Role:      cmd.Actor.Role,
			Decision:  cmd.Decision,
			Comment:   cmd.Comment,
			DecidedBy: cmd.Actor.ID,
			DecidedAt: now,
		}
		if err := e.ledger.Append(txCtx, decision); err != nil {
			return err
		}

		if cmd.EffectiveDate != nil {
			if err := e.requests.SetEffectiveDate(txCtx, req.ID, *cmd.EffectiveDate); err != nil {
				return err
			}
			date := cmd.EffectiveDate.UTC()
			req.EffectiveDate = &date
		}

		previous := req.Status
		trigger := domainwf.DecisionTrigger(cmd.Actor.Role, cmd.Decision).String()
		if err := e.advance(txCtx, op, req, next, trigger, cmd.Actor, now); err != nil {
			return err
		}

		tasks := effects.Plan(req, next, now)
		if len(tasks) > 0 {
			if err := e.tasks.Enqueue(txCtx, tasks); err != nil {
				return err
			}
		}

		out = DecideOutcome{Request: req, Decision: decision, PreviousStatus: previous, Tasks: tasks}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logInfo("Decision recorded",
		"request_id", cmd.RequestID,
		"role", cmd.Actor.Role,
		"decision", cmd.Decision,
		"previous_status", out.PreviousStatus,
		"new_status", out.Request.Status,
	)
	e.publish(ctx, event.NewEvent(event.TypeDecisionRecorded, out.Request.ID, map[string]interface{}{
		event.KeyRole:     cmd.Actor.Role.String(),
		event.KeyDecision: cmd.Decision.String(),
		event.KeyActorID:  cmd.Actor.ID,
	}))
	trigger := domainwf.DecisionTrigger(cmd.Actor.Role, cmd.Decision).String()
	e.publishStatus(ctx, out.Request.ID, out.PreviousStatus, out.Request.Status, trigger, cmd.Actor, out.Tasks)
	return &out, nil
}

func (e *engineImpl) load(ctx context.Context, op, id string) (*entity.Request, error) {
	req, err := e.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if req == nil {
		return nil, domainwf.NewError(domainwf.KindNotFound, op, "request %s not found", id)
	}
	return req, nil
}

// advance moves req to next with a compare-and-set on its current status
func (e *engineImpl) advance(ctx context.Context, op string, req *entity.Request, next domainwf.State, trigger string, actor entity.Actor, now time.Time) error {
	ok, err := e.requests.UpdateStatusIfCurrent(ctx, req.ID, req.Status, next)
	if err != nil {
		return err
	}
	if !ok {
		return domainwf.NewError(domainwf.KindConflict, op, "request %s changed concurrently", req.ID)
	}
	if err := e.recordHistory(ctx, req.ID, req.Status, next, trigger, actor, now); err != nil {
		return err
	}
	req.Status = next
	req.UpdatedAt = now
	return nil
}

func (e *engineImpl) recordHistory(ctx context.Context, id string, prev, next domainwf.State, trigger string, actor entity.Actor, now time.Time) error {
	return e.history.Create(ctx, &entity.StatusHistory{
		RequestID:      id,
		PreviousStatus: prev.String(),
		NewStatus:      next.String(),
		Trigger:        trigger,
		ActorID:        actor.ID,
		ActorRole:      actor.Role.String(),
		Timestamp:      now,
	})
}

func (e *engineImpl) publishStatus(ctx context.Context, id string, prev, next domainwf.State, trigger string, actor entity.Actor, tasks []*entity.EffectTask) {
	e.publish(ctx, event.NewEvent(event.TypeStatusChanged, id, map[string]interface{}{
		event.KeyPreviousStatus: prev.String(),
		event.KeyNewStatus:      next.String(),
		event.KeyTrigger:        trigger,
		event.KeyActorID:        actor.ID,
		event.KeyRole:           actor.Role.String(),
		event.KeyTaskIDs:        TaskIDs(tasks),
	}))
}

func (e *engineImpl) publish(ctx context.Context, evt *event.Event) {
	if e.dispatcher != nil {
		e.dispatcher.DispatchAsync(ctx, evt)
	}
}

func (e *engineImpl) logInfo(msg string, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Info(msg, keysAndValues...)
	}
}

func canSubmit(req *entity.Request, actor entity.Actor) bool {
	switch actor.Role {
	case domainwf.RoleAdmin, domainwf.RoleAgent:
		return true
	}
	return !actor.IsAnonymous() && actor.ID == req.CreatedBy
}
