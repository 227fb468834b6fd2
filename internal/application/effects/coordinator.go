// Package effects executes the side effects of terminal status changes:
// official documents, applicant notification and the scheduled application
// of an accepted mutation. Tasks come from the outbox written by the
// workflow engine, so an effect is never lost when the process stops.
package effects

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/mutation-workflow/internal/application/dispatcher"
	"github.com/garyjia/mutation-workflow/internal/application/port"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/domain/event"
	"github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Config tunes retries and background pickup
type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// PickupDelay keeps the background worker away from tasks that the
	// caller of Await is still running.
	PickupDelay time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BaseBackoff: 30 * time.Second,
		MaxBackoff:  30 * time.Minute,
		PickupDelay: 30 * time.Second,
	}
}

// Deps are the collaborators of the coordinator
type Deps struct {
	Requests      port.RequestRepository
	Decisions     port.DecisionLedger
	Documents     port.DocumentRepository
	Notifications port.NotificationRepository
	Assignments   port.AssignmentRepository
	Tasks         port.EffectTaskRepository
	TxManager     port.TransactionManager
	Renderer      port.DocumentRenderer
	Inspector     port.PDFInspector
	Storage       port.FileStorage
	Mailers       []port.Mailer
}

// Observer is told the outcome of every executed task
type Observer func(task *entity.EffectTask, err error)

// Coordinator runs effect tasks
type Coordinator struct {
	deps       Deps
	cfg        Config
	dispatcher dispatcher.Dispatcher
	logger     Logger
	observer   Observer
	now        func() time.Time
}

// Option configures the coordinator
type Option func(*Coordinator)

// WithDispatcher publishes effect events
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(c *Coordinator) { c.dispatcher = d }
}

// WithLogger sets the coordinator logger
func WithLogger(l Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithObserver registers a task outcome callback
func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator
func NewCoordinator(deps Deps, cfg Config, opts ...Option) *Coordinator {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	c := &Coordinator{deps: deps, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Warning describes an effect that failed
type Warning struct {
	Effect  string `json:"effect"`
	Message string `json:"message"`
}

// Report summarises the effects of one transition
type Report struct {
	Completed []string  `json:"completed,omitempty"`
	Warnings  []Warning `json:"warnings,omitempty"`
	Pending   []string  `json:"pending,omitempty"`
}

// Await runs the given tasks in the background and waits at most timeout
// for them. Tasks still running when it returns keep going and are listed as
// pending, as are tasks scheduled for later.
func (c *Coordinator) Await(ctx context.Context, ids []int64, timeout time.Duration) Report {
	if len(ids) == 0 {
		return Report{}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Run(context.WithoutCancel(ctx), ids); err != nil {
			c.logError("Effect run failed", "error", err)
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	case <-ctx.Done():
	}

	tasks, err := c.deps.Tasks.GetByIDs(context.WithoutCancel(ctx), ids)
	if err != nil {
		c.logError("Failed to read effect tasks", "error", err)
		return Report{Warnings: []Warning{{Effect: "effects", Message: err.Error()}}}
	}

	var r Report
	for _, t := range tasks {
		switch t.Status {
		case entity.EffectStatusDone:
			r.Completed = append(r.Completed, t.Label())
		case entity.EffectStatusFailed:
			r.Warnings = append(r.Warnings, Warning{Effect: t.Label(), Message: t.LastError})
		default:
			r.Pending = append(r.Pending, t.Label())
		}
	}
	return r
}

// Run executes the given tasks. Documents are generated concurrently before
// the notification so it can carry them; a failed document does not hold
// the notification back. Tasks scheduled in the future are left alone.
func (c *Coordinator) Run(ctx context.Context, ids []int64) error {
	tasks, err := c.deps.Tasks.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load effect tasks: %w", err)
	}
	c.run(ctx, tasks)
	return nil
}

// ProcessDue runs up to limit tasks that are due or awaiting retry and
// returns how many were attempted
func (c *Coordinator) ProcessDue(ctx context.Context, limit int) (int, error) {
	cutoff := c.now().Add(-c.cfg.PickupDelay)
	tasks, err := c.deps.Tasks.ListDue(ctx, cutoff, c.cfg.MaxAttempts, limit)
	if err != nil {
		return 0, err
	}
	c.run(ctx, tasks)
	return len(tasks), nil
}

// ReleaseStale returns tasks stuck in RUNNING since before to the queue
func (c *Coordinator) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return c.deps.Tasks.ResetStale(ctx, c.now().Add(-olderThan))
}

func (c *Coordinator) run(ctx context.Context, tasks []*entity.EffectTask) {
	var docs, notify, apply []*entity.EffectTask
	now := c.now()
	for _, t := range tasks {
		if t.RunAt.After(now) {
			continue
		}
		switch t.Kind {
		case entity.EffectGenerateDocument:
			docs = append(docs, t)
		case entity.EffectNotifyApplicant:
			notify = append(notify, t)
		case entity.EffectApplyMutation:
			apply = append(apply, t)
		default:
			c.logError("Unknown effect kind", "task_id", t.ID, "kind", t.Kind)
		}
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		late []*entity.EffectTask
	)
	for _, t := range docs {
		wg.Add(1)
		go func(t *entity.EffectTask) {
			defer wg.Done()
			if c.execute(ctx, t) && t.Attempts > 0 {
				mu.Lock()
				late = append(late, t)
				mu.Unlock()
			}
		}(t)
	}
	wg.Wait()

	for _, t := range late {
		followUp, err := c.scheduleLateDelivery(ctx, t)
		if err != nil {
			c.logError("Failed to schedule late document delivery", "request_id", t.RequestID, "effect", t.Label(), "error", err)
			continue
		}
		if followUp != nil {
			notify = append(notify, followUp)
		}
	}

	for _, t := range notify {
		c.execute(ctx, t)
	}
	for _, t := range apply {
		c.execute(ctx, t)
	}
}

// scheduleLateDelivery queues a notification carrying a document that was
// generated after the applicant had already been notified. It returns nil
// when the main notification has not gone out yet, since that one will
// carry the document.
func (c *Coordinator) scheduleLateDelivery(ctx context.Context, doc *entity.EffectTask) (*entity.EffectTask, error) {
	tasks, err := c.deps.Tasks.GetByRequestID(ctx, doc.RequestID)
	if err != nil {
		return nil, err
	}
	notified := false
	for _, t := range tasks {
		if t.Kind == entity.EffectNotifyApplicant && t.DocumentType == "" && t.Status == entity.EffectStatusDone {
			notified = true
			break
		}
	}
	if !notified {
		return nil, nil
	}

	followUp := &entity.EffectTask{
		RequestID:    doc.RequestID,
		Kind:         entity.EffectNotifyApplicant,
		DocumentType: doc.DocumentType,
		RunAt:        c.now(),
	}
	if err := c.deps.Tasks.Enqueue(ctx, []*entity.EffectTask{followUp}); err != nil {
		return nil, err
	}
	c.logInfo("Late document delivery scheduled", "request_id", doc.RequestID, "effect", followUp.Label())
	return followUp, nil
}

// execute runs one task and records its outcome. It reports whether the
// task ran and succeeded.
func (c *Coordinator) execute(ctx context.Context, t *entity.EffectTask) bool {
	claimed, err := c.deps.Tasks.Claim(ctx, t.ID)
	if err != nil {
		c.logError("Failed to claim effect task", "task_id", t.ID, "error", err)
		return false
	}
	if !claimed {
		return false
	}
	attempt := t.Attempts + 1

	err = c.perform(ctx, t)
	if c.observer != nil {
		c.observer(t, err)
	}

	if err == nil {
		if mErr := c.deps.Tasks.MarkDone(ctx, t.ID); mErr != nil {
			c.logError("Failed to complete effect task", "task_id", t.ID, "error", mErr)
		}
		c.logInfo("Effect completed", "request_id", t.RequestID, "effect", t.Label(), "attempt", attempt)
		return true
	}

	retryAt := c.now().Add(c.backoff(attempt))
	c.logError("Effect failed",
		"request_id", t.RequestID,
		"effect", t.Label(),
		"attempt", attempt,
		"max_attempts", c.cfg.MaxAttempts,
		"error", err,
	)
	if mErr := c.deps.Tasks.MarkFailed(ctx, t.ID, err.Error(), retryAt); mErr != nil {
		c.logError("Failed to record effect failure", "task_id", t.ID, "error", mErr)
	}
	return false
}

func (c *Coordinator) backoff(attempt int) time.Duration {
	d := c.cfg.BaseBackoff
	for i := 1; i < attempt && d < c.cfg.MaxBackoff; i++ {
		d *= 2
	}
	if d > c.cfg.MaxBackoff {
		d = c.cfg.MaxBackoff
	}
	return d
}

func (c *Coordinator) perform(ctx context.Context, t *entity.EffectTask) error {
	req, err := c.deps.Requests.GetByID(ctx, t.RequestID)
	if err != nil {
		return err
	}
	if req == nil {
		return fmt.Errorf("request %s not found", t.RequestID)
	}

	switch t.Kind {
	case entity.EffectGenerateDocument:
		return c.generateDocument(ctx, req, t.DocumentType)
	case entity.EffectNotifyApplicant:
		return c.notifyApplicant(ctx, req, t.DocumentType)
	case entity.EffectApplyMutation:
		return c.applyMutation(ctx, req)
	}
	return fmt.Errorf("unknown effect kind %q", t.Kind)
}

func (c *Coordinator) generateDocument(ctx context.Context, req *entity.Request, docType entity.DocumentType) error {
	if req.Status != workflow.StateAcceptee {
		return fmt.Errorf("documents are only issued for accepted requests, request is %s", req.Status)
	}

	var buf bytes.Buffer
	if err := c.deps.Renderer.Render(ctx, docType, req, &buf); err != nil {
		return fmt.Errorf("failed to render %s: %w", docType, err)
	}

	pages, err := c.deps.Inspector.PageCount(buf.Bytes())
	if err != nil {
		return fmt.Errorf("rendered %s is not a readable PDF: %w", docType, err)
	}
	if pages == 0 {
		return fmt.Errorf("rendered %s has no pages", docType)
	}

	path := DocumentPath(req.ID, docType)
	if err := c.deps.Storage.Save(ctx, path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to store %s: %w", docType, err)
	}

	doc := &entity.DocumentArtifact{
		RequestID: req.ID,
		Type:      docType,
		FileID:    path,
		SizeBytes: int64(buf.Len()),
		PageCount: pages,
		CreatedAt: c.now(),
	}
	if err := c.deps.Documents.Upsert(ctx, doc); err != nil {
		return err
	}

	c.publish(ctx, event.NewEvent(event.TypeDocumentGenerated, req.ID, map[string]interface{}{
		event.KeyDocumentType: string(docType),
	}))
	return nil
}

// notifyApplicant mails the status outcome. With only set, it sends that
// single document as a late delivery instead.
func (c *Coordinator) notifyApplicant(ctx context.Context, req *entity.Request, only entity.DocumentType) error {
	if len(c.deps.Mailers) == 0 {
		return errors.New("no notification channel configured")
	}
	if req.Applicant.Email == "" {
		return errors.New("applicant has no email address")
	}

	var docs []*entity.DocumentArtifact
	var attachments []port.Attachment
	if req.Status == workflow.StateAcceptee {
		stored, err := c.deps.Documents.GetByRequestID(ctx, req.ID)
		if err != nil {
			return err
		}
		for _, d := range stored {
			if only != "" && d.Type != only {
				continue
			}
			content, err := c.deps.Storage.Read(ctx, d.FileID)
			if err != nil {
				c.logError("Skipping unreadable document", "request_id", req.ID, "file_id", d.FileID, "error", err)
				continue
			}
			docs = append(docs, d)
			attachments = append(attachments, port.Attachment{
				Name:    fmt.Sprintf("%s_%s.pdf", d.Type, req.Applicant.Matricule),
				Content: content,
			})
		}
	}

	var (
		subject, body string
		err           error
	)
	if only != "" {
		if len(docs) == 0 {
			return fmt.Errorf("document %s is not available", only)
		}
		subject, body, err = composeLateDelivery(req, docs)
	} else {
		var comment string
		if comment, err = c.lastComment(ctx, req); err != nil {
			return err
		}
		subject, body, err = composeMessage(req, comment, docs)
	}
	if err != nil {
		return err
	}

	previous, err := c.deps.Notifications.GetByRequestID(ctx, req.ID)
	if err != nil {
		return err
	}

	msg := &port.Message{
		To:          req.Applicant.Email,
		Name:        req.Applicant.FullName,
		Subject:     subject,
		Body:        body,
		Attachments: attachments,
	}

	var errs []error
	sent := 0
	for _, m := range c.deps.Mailers {
		if alreadySent(previous, m.Channel(), subject) {
			sent++
			continue
		}
		if err := c.send(ctx, req, m, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Channel(), err))
			continue
		}
		sent++
	}
	if sent == 0 {
		return errors.Join(errs...)
	}
	for _, err := range errs {
		c.logError("Notification channel failed", "request_id", req.ID, "error", err)
	}
	return nil
}

func alreadySent(previous []*entity.Notification, channel, subject string) bool {
	for _, n := range previous {
		if n.Channel == channel && n.Subject == subject && n.Status == entity.NotificationStatusSent {
			return true
		}
	}
	return false
}

func (c *Coordinator) send(ctx context.Context, req *entity.Request, m port.Mailer, msg *port.Message) error {
	record := &entity.Notification{
		RequestID:   req.ID,
		Channel:     m.Channel(),
		Recipient:   msg.To,
		Subject:     msg.Subject,
		Status:      entity.NotificationStatusPending,
		Attachments: len(msg.Attachments),
	}
	if err := c.deps.Notifications.Create(ctx, record); err != nil {
		return err
	}

	if err := m.Send(ctx, msg); err != nil {
		if uErr := c.deps.Notifications.UpdateStatus(ctx, record.ID, entity.NotificationStatusFailed, err.Error()); uErr != nil {
			c.logError("Failed to record notification failure", "notification_id", record.ID, "error", uErr)
		}
		return err
	}

	if err := c.deps.Notifications.MarkSent(ctx, record.ID); err != nil {
		return err
	}
	c.publish(ctx, event.NewEvent(event.TypeApplicantNotified, req.ID, map[string]interface{}{
		"channel": m.Channel(),
	}))
	return nil
}

func (c *Coordinator) lastComment(ctx context.Context, req *entity.Request) (string, error) {
	if c.deps.Decisions == nil || req.Status == workflow.StateIneligible {
		return "", nil
	}
	decisions, err := c.deps.Decisions.ListByRequestID(ctx, req.ID)
	if err != nil {
		return "", err
	}
	if len(decisions) == 0 {
		return "", nil
	}
	return decisions[len(decisions)-1].Comment, nil
}

func (c *Coordinator) applyMutation(ctx context.Context, req *entity.Request) error {
	if req.Status != workflow.StateAcceptee {
		return fmt.Errorf("only an accepted mutation can be applied, request is %s", req.Status)
	}

	now := c.now()
	var applied bool
	err := c.deps.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		applied, err = c.deps.Requests.MarkMutationApplied(txCtx, req.ID, now)
		if err != nil || !applied {
			return err
		}
		return c.deps.Assignments.Upsert(txCtx, assignmentFor(req, now))
	})
	if err != nil {
		return err
	}
	if !applied {
		c.logInfo("Mutation already applied", "request_id", req.ID)
		return nil
	}

	c.publish(ctx, event.NewEvent(event.TypeMutationApplied, req.ID, map[string]interface{}{
		"matricule": req.Applicant.Matricule,
	}))
	return nil
}

// assignmentFor derives the agent's new post from the accepted request
func assignmentFor(req *entity.Request, now time.Time) *entity.AgentAssignment {
	a := &entity.AgentAssignment{
		Matricule: req.Applicant.Matricule,
		Post:      req.Applicant.CurrentPost,
		Direction: req.Applicant.Direction,
		Service:   req.Applicant.Service,
		RequestID: req.ID,
		AppliedAt: now,
	}
	if req.DesiredPost != "" {
		a.Post = req.DesiredPost
	}
	if len(req.DesiredLocations) > 0 {
		a.Direction = req.DesiredLocations[0]
	}
	return a
}

// publish delivers evt synchronously so subscribers observe effect events
// in execution order
func (c *Coordinator) publish(ctx context.Context, evt *event.Event) {
	if c.dispatcher == nil {
		return
	}
	if err := c.dispatcher.Dispatch(ctx, evt); err != nil {
		c.logError("Event handlers failed", "request_id", evt.RequestID, "event_type", evt.Type, "error", err)
	}
}

func (c *Coordinator) logInfo(msg string, keysAndValues ...interface{}) {
	if c.logger != nil {
		c.logger.Info(msg, keysAndValues...)
	}
}

func (c *Coordinator) logError(msg string, keysAndValues ...interface{}) {
	if c.logger != nil {
		c.logger.Error(msg, keysAndValues...)
	}
}
