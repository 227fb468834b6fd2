package effects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/application/port"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/domain/workflow"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/mutation-workflow/pkg/database"
)

type fakeRenderer struct {
	fail map[entity.DocumentType]bool
}

func (r *fakeRenderer) Render(ctx context.Context, docType entity.DocumentType, req *entity.Request, w io.Writer) error {
	if r.fail[docType] {
		return errors.New("template missing")
	}
	_, err := fmt.Fprintf(w, "%%PDF-1.4 %s %s", docType, req.ID)
	return err
}

type fakeInspector struct{}

func (fakeInspector) PageCount(content []byte) (int, error) {
	if len(content) == 0 {
		return 0, errors.New("empty")
	}
	return 1, nil
}

type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *memStorage) Save(ctx context.Context, path string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = append([]byte(nil), content...)
	return nil
}

func (s *memStorage) Read(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func (s *memStorage) Exists(ctx context.Context, path string) bool {
	_, err := s.Read(ctx, path)
	return err == nil
}

func (s *memStorage) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
	return nil
}

func (s *memStorage) GetFullPath(relativePath string) string { return relativePath }

type fakeMailer struct {
	channel string
	failing atomic.Bool
	mu      sync.Mutex
	sent    []*port.Message
}

func (m *fakeMailer) Channel() string { return m.channel }

func (m *fakeMailer) Send(ctx context.Context, msg *port.Message) error {
	if m.failing.Load() {
		return errors.New("smtp unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) messages() []*port.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*port.Message(nil), m.sent...)
}

type harness struct {
	coord    *Coordinator
	deps     Deps
	renderer *fakeRenderer
	mailer   *fakeMailer
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "effects.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = database.NewMigrator(db, zap.NewNop()).Run(database.Migrations())
	require.NoError(t, err)

	logger := zap.NewNop()
	h := &harness{
		renderer: &fakeRenderer{fail: map[entity.DocumentType]bool{}},
		mailer:   &fakeMailer{channel: entity.ChannelSMTP},
		now:      time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	h.deps = Deps{
		Requests:      repository.NewRequestRepository(db.DB, logger),
		Decisions:     repository.NewDecisionRepository(db.DB, logger),
		Documents:     repository.NewDocumentRepository(db.DB, logger),
		Notifications: repository.NewNotificationRepository(db.DB, logger),
		Assignments:   repository.NewAssignmentRepository(db.DB, logger),
		Tasks:         repository.NewEffectTaskRepository(db.DB, logger),
		TxManager:     sqlite.NewDB(db.DB, logger),
		Renderer:      h.renderer,
		Inspector:     fakeInspector{},
		Storage:       &memStorage{files: map[string][]byte{}},
		Mailers:       []port.Mailer{h.mailer},
	}
	h.coord = NewCoordinator(h.deps, Config{MaxAttempts: 3, BaseBackoff: time.Minute, PickupDelay: time.Second},
		WithClock(func() time.Time { return h.now }))
	return h
}

func (h *harness) seed(t *testing.T, status workflow.State, effective *time.Time) []*entity.EffectTask {
	t.Helper()
	ctx := context.Background()
	req := &entity.Request{
		ID:     "req-1",
		Type:   workflow.TypeSimple,
		Status: status,
		Applicant: entity.ApplicantSnapshot{
			FullName: "Ibrahim Sow", Matricule: "M-77", Direction: "DR_SUD",
			Service: "Achats", Email: "ibrahim@example.org", CurrentPost: "AGENT",
		},
		DesiredPost:          "CHEF_SERVICE",
		DesiredLocations:     []string{"DR_NORD"},
		EffectiveDate:        effective,
		IneligibilityReasons: []string{"hire date is unknown"},
	}
	require.NoError(t, h.deps.Requests.Create(ctx, req))
	tasks := Plan(req, status, h.now)
	require.NoError(t, h.deps.Tasks.Enqueue(ctx, tasks))
	return tasks
}

func ids(tasks []*entity.EffectTask) []int64 {
	out := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestAwait_AcceptedRunsEveryEffect(t *testing.T) {
	h := newHarness(t)
	tasks := h.seed(t, workflow.StateAcceptee, nil)
	ctx := context.Background()

	report := h.coord.Await(ctx, ids(tasks), 5*time.Second)

	assert.Len(t, report.Completed, 5)
	assert.Empty(t, report.Warnings)
	assert.Empty(t, report.Pending)

	docs, err := h.deps.Documents.GetByRequestID(ctx, "req-1")
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	sent := h.mailer.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "ibrahim@example.org", sent[0].To)
	assert.Len(t, sent[0].Attachments, 3)
	assert.Contains(t, sent[0].Subject, "acceptée")

	assignment, err := h.deps.Assignments.GetByMatricule(ctx, "M-77")
	require.NoError(t, err)
	require.NotNil(t, assignment)
	assert.Equal(t, "CHEF_SERVICE", assignment.Post)
	assert.Equal(t, "DR_NORD", assignment.Direction)
}

func TestAwait_PartialDocumentFailureStillNotifies(t *testing.T) {
	h := newHarness(t)
	h.renderer.fail[entity.DocumentAttestationAdministrative] = true
	tasks := h.seed(t, workflow.StateAcceptee, nil)

	report := h.coord.Await(context.Background(), ids(tasks), 5*time.Second)

	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "GENERATE_DOCUMENT/ATTESTATION_ADMINISTRATIVE", report.Warnings[0].Effect)
	assert.Contains(t, report.Warnings[0].Message, "template missing")
	assert.Len(t, report.Completed, 4)

	sent := h.mailer.messages()
	require.Len(t, sent, 1)
	assert.Len(t, sent[0].Attachments, 2)
}

func TestAwait_FutureEffectiveDateIsPending(t *testing.T) {
	h := newHarness(t)
	later := h.now.AddDate(0, 1, 0)
	tasks := h.seed(t, workflow.StateAcceptee, &later)
	ctx := context.Background()

	report := h.coord.Await(ctx, ids(tasks), 5*time.Second)

	assert.Equal(t, []string{"APPLY_MUTATION"}, report.Pending)
	req, err := h.deps.Requests.GetByID(ctx, "req-1")
	require.NoError(t, err)
	assert.Nil(t, req.MutationAppliedAt)

	h.now = later.Add(time.Hour)
	n, err := h.coord.ProcessDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	req, err = h.deps.Requests.GetByID(ctx, "req-1")
	require.NoError(t, err)
	assert.NotNil(t, req.MutationAppliedAt)
}

func TestAwait_IneligibleNotifiesWithReasons(t *testing.T) {
	h := newHarness(t)
	tasks := h.seed(t, workflow.StateIneligible, nil)

	report := h.coord.Await(context.Background(), ids(tasks), 5*time.Second)

	assert.Equal(t, []string{"NOTIFY_APPLICANT"}, report.Completed)
	sent := h.mailer.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "hire date is unknown")
	assert.Empty(t, sent[0].Attachments)
}

func TestProcessDue_RetriesFailedNotification(t *testing.T) {
	h := newHarness(t)
	h.mailer.failing.Store(true)
	tasks := h.seed(t, workflow.StateRejetee, nil)
	ctx := context.Background()

	report := h.coord.Await(ctx, ids(tasks), 5*time.Second)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0].Message, "smtp unavailable")

	n, err := h.coord.ProcessDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n, "retry waits for its backoff")

	h.mailer.failing.Store(false)
	h.now = h.now.Add(2 * time.Minute)
	n, err = h.coord.ProcessDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, h.mailer.messages(), 1)

	notifications, err := h.deps.Notifications.GetByRequestID(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	assert.Equal(t, entity.NotificationStatusFailed, notifications[0].Status)
	assert.Equal(t, entity.NotificationStatusSent, notifications[1].Status)
}

func TestProcessDue_DeliversDocumentGeneratedOnRetry(t *testing.T) {
	h := newHarness(t)
	h.renderer.fail[entity.DocumentAttestationAdministrative] = true
	tasks := h.seed(t, workflow.StateAcceptee, nil)
	ctx := context.Background()

	h.coord.Await(ctx, ids(tasks), 5*time.Second)
	require.Len(t, h.mailer.messages(), 1)
	assert.Len(t, h.mailer.messages()[0].Attachments, 2)

	delete(h.renderer.fail, entity.DocumentAttestationAdministrative)
	h.now = h.now.Add(2 * time.Minute)
	n, err := h.coord.ProcessDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	docs, err := h.deps.Documents.GetByRequestID(ctx, "req-1")
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	sent := h.mailer.messages()
	require.Len(t, sent, 2)
	require.Len(t, sent[1].Attachments, 1)
	assert.Equal(t, "ATTESTATION_ADMINISTRATIVE_M-77.pdf", sent[1].Attachments[0].Name)
	assert.Contains(t, sent[1].Subject, entity.DocumentAttestationAdministrative.Title())

	all, err := h.deps.Tasks.GetByRequestID(ctx, "req-1")
	require.NoError(t, err)
	var followUp *entity.EffectTask
	for _, task := range all {
		if task.Kind == entity.EffectNotifyApplicant && task.DocumentType == entity.DocumentAttestationAdministrative {
			followUp = task
		}
	}
	require.NotNil(t, followUp)
	assert.Equal(t, entity.EffectStatusDone, followUp.Status)

	h.now = h.now.Add(time.Hour)
	_, err = h.coord.ProcessDue(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, h.mailer.messages(), 2)
}

func TestProcessDue_PendingNotificationCarriesRetriedDocument(t *testing.T) {
	h := newHarness(t)
	h.renderer.fail[entity.DocumentOrdreMutation] = true
	h.mailer.failing.Store(true)
	tasks := h.seed(t, workflow.StateAcceptee, nil)
	ctx := context.Background()

	h.coord.Await(ctx, ids(tasks), 5*time.Second)
	require.Empty(t, h.mailer.messages())

	delete(h.renderer.fail, entity.DocumentOrdreMutation)
	h.mailer.failing.Store(false)
	h.now = h.now.Add(2 * time.Minute)
	_, err := h.coord.ProcessDue(ctx, 10)
	require.NoError(t, err)

	sent := h.mailer.messages()
	require.Len(t, sent, 1)
	assert.Len(t, sent[0].Attachments, 3)
}

func TestApplyMutation_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.seed(t, workflow.StateAcceptee, nil)
	ctx := context.Background()
	req, err := h.deps.Requests.GetByID(ctx, "req-1")
	require.NoError(t, err)

	require.NoError(t, h.coord.applyMutation(ctx, req))
	first, err := h.deps.Assignments.GetByMatricule(ctx, "M-77")
	require.NoError(t, err)

	h.now = h.now.Add(time.Hour)
	require.NoError(t, h.coord.applyMutation(ctx, req))
	second, err := h.deps.Assignments.GetByMatricule(ctx, "M-77")
	require.NoError(t, err)

	assert.True(t, first.AppliedAt.Equal(second.AppliedAt))
}

func TestBackoff(t *testing.T) {
	c := NewCoordinator(Deps{}, Config{BaseBackoff: time.Second, MaxBackoff: 5 * time.Second})

	assert.Equal(t, time.Second, c.backoff(1))
	assert.Equal(t, 2*time.Second, c.backoff(2))
	assert.Equal(t, 4*time.Second, c.backoff(3))
	assert.Equal(t, 5*time.Second, c.backoff(4))
	assert.Equal(t, 5*time.Second, c.backoff(10))
}
