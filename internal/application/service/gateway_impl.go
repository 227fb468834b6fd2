package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/garyjia/mutation-workflow/internal/application/dispatcher"
	"github.com/garyjia/mutation-workflow/internal/application/effects"
	"github.com/garyjia/mutation-workflow/internal/application/port"
	"github.com/garyjia/mutation-workflow/internal/application/workflow"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/domain/event"
	domainwf "github.com/garyjia/mutation-workflow/internal/domain/workflow"
	"github.com/garyjia/mutation-workflow/pkg/utils"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// GatewayDeps are the collaborators of the gateway
type GatewayDeps struct {
	Engine     workflow.Engine
	Effects    EffectAwaiter
	Requests   port.RequestRepository
	Decisions  port.DecisionLedger
	Documents  port.DocumentRepository
	History    port.HistoryRepository
	Storage    port.FileStorage
	Dispatcher dispatcher.Dispatcher
	Logger     Logger
}

type gatewayImpl struct {
	deps GatewayDeps
	cfg  Config
}

// NewWorkflowGateway creates a new WorkflowGateway
func NewWorkflowGateway(deps GatewayDeps, cfg Config) WorkflowGateway {
	def := DefaultConfig()
	if cfg.EffectsWaitTimeout <= 0 {
		cfg.EffectsWaitTimeout = def.EffectsWaitTimeout
	}
	if cfg.WatchBuffer <= 0 {
		cfg.WatchBuffer = def.WatchBuffer
	}
	return &gatewayImpl{deps: deps, cfg: cfg}
}

// Create validates the payload and stores a new request in its type's
// initial status
func (g *gatewayImpl) Create(ctx context.Context, actor entity.Actor, input CreateInput) (*entity.Request, error) {
	const op = "create"

	if actor.IsAnonymous() && !g.cfg.AllowPublicFiling {
		return nil, domainwf.NewError(domainwf.KindForbidden, op, "authentication is required to file a request")
	}

	typ := input.Type
	if typ == "" {
		typ = domainwf.TypeSimple
	}
	if !typ.IsValid() {
		return nil, domainwf.NewError(domainwf.KindInvalidInput, op, "unknown request type %q", typ)
	}
	if typ == domainwf.TypeStrategique && actor.Role != domainwf.RoleDNCF && actor.Role != domainwf.RoleAdmin {
		return nil, domainwf.NewError(domainwf.KindForbidden, op, "strategic requests are filed by DNCF only")
	}

	applicant := normalizeApplicant(input.Applicant)
	if applicant.FullName == "" || applicant.Matricule == "" {
		return nil, domainwf.NewError(domainwf.KindInvalidInput, op, "applicant name and matricule are required")
	}
	if err := utils.ValidateMatricule(applicant.Matricule); err != nil {
		return nil, domainwf.WrapError(domainwf.KindInvalidInput, op, err)
	}
	if applicant.Email != "" {
		if err := utils.ValidateEmail(applicant.Email); err != nil {
			return nil, domainwf.WrapError(domainwf.KindInvalidInput, op, err)
		}
	}

	createdBy := actor.ID
	if actor.IsAnonymous() {
		createdBy = entity.Anonymous.ID
	}

	req := &entity.Request{
		ID:               uuid.NewString(),
		Type:             typ,
		Status:           typ.InitialState(),
		Applicant:        applicant,
		DesiredPost:      strings.ToUpper(strings.TrimSpace(input.DesiredPost)),
		DesiredLocations: normalizeCodes(input.DesiredLocations),
		Motif:            utils.SanitizeString(strings.TrimSpace(input.Motif)),
		CreatedBy:        createdBy,
	}
	if err := g.deps.Engine.Create(ctx, req, actor); err != nil {
		g.logError("Failed to create request", "error", err, "matricule", applicant.Matricule)
		return nil, err
	}
	return req, nil
}

// Submit runs eligibility and moves a draft into review or to INELIGIBLE
func (g *gatewayImpl) Submit(ctx context.Context, requestID string, actor entity.Actor) (*SubmitResult, error) {
	out, err := g.deps.Engine.Submit(ctx, requestID, actor)
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{
		Request:  out.Request,
		Eligible: out.Eligibility.Eligible,
		Reasons:  out.Eligibility.Reasons,
	}
	result.Effects = g.awaitEffects(ctx, out.Tasks)
	return result, nil
}

// Decide records a reviewer decision, then waits a bounded time for the
// effects of the new status
func (g *gatewayImpl) Decide(ctx context.Context, input DecideInput) (*DecisionResult, error) {
	const op = "decide"

	if strings.TrimSpace(input.RequestID) == "" {
		return nil, domainwf.NewError(domainwf.KindInvalidInput, op, "request id is required")
	}
	if input.ClaimedRole != "" && input.ClaimedRole != input.Actor.Role {
		return nil, domainwf.NewError(domainwf.KindForbidden, op,
			"claimed role %s does not match authenticated role %s", input.ClaimedRole, input.Actor.Role)
	}

	out, err := g.deps.Engine.Decide(ctx, workflow.DecideCommand{
		RequestID:     input.RequestID,
		Actor:         input.Actor,
		Decision:      input.Decision,
		Comment:       utils.SanitizeString(strings.TrimSpace(input.Comment)),
		EffectiveDate: input.EffectiveDate,
	})
	if err != nil {
		return nil, err
	}

	result := &DecisionResult{
		Request:        out.Request,
		Decision:       out.Decision,
		PreviousStatus: out.PreviousStatus,
	}
	result.Effects = g.awaitEffects(ctx, out.Tasks)
	if len(result.Effects.Warnings) > 0 {
		g.logError("Decision recorded with degraded effects",
			"request_id", input.RequestID,
			"status", out.Request.Status,
			"warnings", len(result.Effects.Warnings))
	}
	return result, nil
}

// GetStatus returns the request with its ledger, documents, history and
// review progress
func (g *gatewayImpl) GetStatus(ctx context.Context, requestID string) (*RequestView, error) {
	req, err := g.load(ctx, "get_status", requestID)
	if err != nil {
		return nil, err
	}

	decisions, err := g.deps.Decisions.ListByRequestID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	documents, err := g.deps.Documents.GetByRequestID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	history, err := g.deps.History.GetByRequestID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	view := &RequestView{
		Request:   req,
		Decisions: nonNil(decisions),
		Documents: nonNil(documents),
		History:   nonNil(history),
		Progress:  domainwf.Progress(req.Status, entity.LedgerEntries(decisions)),
	}
	if owner, ok := domainwf.OwnerOf(req.Status); ok {
		view.AwaitingRole = owner
	}
	return view, nil
}

// ListDecisions returns the ledger of a request ordered by decision time
func (g *gatewayImpl) ListDecisions(ctx context.Context, requestID string) ([]*entity.ValidationDecision, error) {
	req, err := g.load(ctx, "list_decisions", requestID)
	if err != nil {
		return nil, err
	}
	decisions, err := g.deps.Decisions.ListByRequestID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return nonNil(decisions), nil
}

// ListRequests lists requests visible to actor. Agents only see the
// requests they filed. AwaitingRole restricts the result to the statuses
// that role must act on.
func (g *gatewayImpl) ListRequests(ctx context.Context, actor entity.Actor, query ListQuery) ([]*entity.Request, error) {
	const op = "list_requests"

	for _, s := range query.Statuses {
		if !s.IsValid() {
			return nil, domainwf.NewError(domainwf.KindInvalidInput, op, "unknown status %q", s)
		}
	}

	filter := entity.RequestFilter{
		Statuses:  query.Statuses,
		Matricule: strings.TrimSpace(query.Matricule),
		Limit:     query.Limit,
		Offset:    query.Offset,
	}
	if query.AwaitingRole != "" {
		if !query.AwaitingRole.IsDecider() {
			return nil, domainwf.NewError(domainwf.KindInvalidInput, op, "role %q does not review requests", query.AwaitingRole)
		}
		filter.Statuses = intersect(filter.Statuses, domainwf.AwaitingStates(query.AwaitingRole))
		if len(filter.Statuses) == 0 {
			return []*entity.Request{}, nil
		}
	}
	if actor.IsAnonymous() {
		return nil, domainwf.NewError(domainwf.KindForbidden, op, "authentication is required to list requests")
	}
	if actor.Role == domainwf.RoleAgent {
		filter.CreatedBy = actor.ID
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	requests, err := g.deps.Requests.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return nonNil(requests), nil
}

// Document returns a generated document and its content
func (g *gatewayImpl) Document(ctx context.Context, requestID string, docType entity.DocumentType) (*entity.DocumentArtifact, []byte, error) {
	const op = "document"

	req, err := g.load(ctx, op, requestID)
	if err != nil {
		return nil, nil, err
	}
	docs, err := g.deps.Documents.GetByRequestID(ctx, req.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, d := range docs {
		if d.Type != docType {
			continue
		}
		content, err := g.deps.Storage.Read(ctx, d.FileID)
		if err != nil {
			return nil, nil, domainwf.WrapError(domainwf.KindDependencyFailure, op, err)
		}
		return d, content, nil
	}
	return nil, nil, domainwf.NewError(domainwf.KindNotFound, op, "document %s of request %s not found", docType, requestID)
}

// Watch streams the events of one request until ctx is done. Slow readers
// miss events rather than holding back publishers.
func (g *gatewayImpl) Watch(ctx context.Context, requestID string) (<-chan *event.Event, error) {
	if _, err := g.load(ctx, "watch", requestID); err != nil {
		return nil, err
	}
	if g.deps.Dispatcher == nil {
		return nil, domainwf.NewError(domainwf.KindDependencyFailure, "watch", "event stream is not available")
	}

	sub := &watcher{ch: make(chan *event.Event, g.cfg.WatchBuffer)}
	name := "watch-" + uuid.NewString()
	g.deps.Dispatcher.SubscribeAll(name, func(_ context.Context, evt *event.Event) error {
		if evt.RequestID != requestID {
			return nil
		}
		if !sub.offer(evt) {
			g.logInfo("Dropped event for slow watcher", "request_id", requestID, "event", evt.Type)
		}
		return nil
	})

	go func() {
		<-ctx.Done()
		g.deps.Dispatcher.Unsubscribe(name)
		sub.close()
	}()
	return sub.ch, nil
}

type watcher struct {
	mu     sync.Mutex
	ch     chan *event.Event
	closed bool
}

func (w *watcher) offer(evt *event.Event) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return true
	}
	select {
	case w.ch <- evt:
		return true
	default:
		return false
	}
}

func (w *watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
}

func (g *gatewayImpl) awaitEffects(ctx context.Context, tasks []*entity.EffectTask) effects.Report {
	if len(tasks) == 0 || g.deps.Effects == nil {
		return effects.Report{}
	}
	return g.deps.Effects.Await(ctx, workflow.TaskIDs(tasks), g.cfg.EffectsWaitTimeout)
}

func (g *gatewayImpl) load(ctx context.Context, op, id string) (*entity.Request, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domainwf.NewError(domainwf.KindInvalidInput, op, "request id is required")
	}
	req, err := g.deps.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if req == nil {
		return nil, domainwf.NewError(domainwf.KindNotFound, op, "request %s not found", id)
	}
	return req, nil
}

func (g *gatewayImpl) logInfo(msg string, keysAndValues ...interface{}) {
	if g.deps.Logger != nil {
		g.deps.Logger.Info(msg, keysAndValues...)
	}
}

func (g *gatewayImpl) logError(msg string, keysAndValues ...interface{}) {
	if g.deps.Logger != nil {
		g.deps.Logger.Error(msg, keysAndValues...)
	}
}

func normalizeApplicant(a entity.ApplicantSnapshot) entity.ApplicantSnapshot {
	a.FullName = strings.TrimSpace(a.FullName)
	a.Matricule = strings.TrimSpace(a.Matricule)
	a.Direction = strings.ToUpper(strings.TrimSpace(a.Direction))
	a.Service = strings.ToUpper(strings.TrimSpace(a.Service))
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	a.Grade = strings.ToUpper(strings.TrimSpace(a.Grade))
	a.CurrentPost = strings.ToUpper(strings.TrimSpace(a.CurrentPost))
	return a
}

// normalizeCodes upper-cases referential codes and drops blanks and
// duplicates, keeping order
func normalizeCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	var out []string
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func intersect(requested, allowed []domainwf.State) []domainwf.State {
	if len(requested) == 0 {
		return allowed
	}
	var out []domainwf.State
	for _, s := range requested {
		for _, a := range allowed {
			if s == a {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
