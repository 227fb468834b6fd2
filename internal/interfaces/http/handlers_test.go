package http

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/mutation-workflow/internal/application/effects"
	"github.com/garyjia/mutation-workflow/internal/application/service"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/domain/event"
	domainwf "github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// fakeGateway records calls and returns canned results
type fakeGateway struct {
	err error

	created  service.CreateInput
	decided  service.DecideInput
	listed   service.ListQuery
	actor    entity.Actor
	events   chan *event.Event
	document []byte
}

func (g *fakeGateway) Create(_ context.Context, actor entity.Actor, input service.CreateInput) (*entity.Request, error) {
	g.actor, g.created = actor, input
	if g.err != nil {
		return nil, g.err
	}
	return &entity.Request{ID: "req-1", Type: domainwf.TypeSimple, Status: domainwf.StateBrouillon, Applicant: input.Applicant}, nil
}

func (g *fakeGateway) Submit(_ context.Context, id string, actor entity.Actor) (*service.SubmitResult, error) {
	g.actor = actor
	if g.err != nil {
		return nil, g.err
	}
	return &service.SubmitResult{
		Request:  &entity.Request{ID: id, Status: domainwf.StateIneligible},
		Eligible: false,
		Effects:  effects.Report{Warnings: []effects.Warning{{Effect: entity.EffectNotifyApplicant, Message: "applicant has no email address"}}},
	}, nil
}

func (g *fakeGateway) Decide(_ context.Context, input service.DecideInput) (*service.DecisionResult, error) {
	g.decided = input
	if g.err != nil {
		return nil, g.err
	}
	return &service.DecisionResult{
		Request:        &entity.Request{ID: input.RequestID, Status: domainwf.StateEnEtudeDGR},
		PreviousStatus: domainwf.StateEnValidationHierarchique,
	}, nil
}

func (g *fakeGateway) GetStatus(_ context.Context, id string) (*service.RequestView, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &service.RequestView{Request: &entity.Request{ID: id}, AwaitingRole: domainwf.RoleDGR}, nil
}

func (g *fakeGateway) ListDecisions(_ context.Context, id string) ([]*entity.ValidationDecision, error) {
	if g.err != nil {
		return nil, g.err
	}
	return []*entity.ValidationDecision{{RequestID: id, Role: domainwf.RoleResponsable, Decision: domainwf.DecisionValide}}, nil
}

func (g *fakeGateway) ListRequests(_ context.Context, actor entity.Actor, q service.ListQuery) ([]*entity.Request, error) {
	g.actor, g.listed = actor, q
	if g.err != nil {
		return nil, g.err
	}
	return []*entity.Request{}, nil
}

func (g *fakeGateway) Document(_ context.Context, id string, docType entity.DocumentType) (*entity.DocumentArtifact, []byte, error) {
	if g.err != nil {
		return nil, nil, g.err
	}
	return &entity.DocumentArtifact{RequestID: id, Type: docType}, g.document, nil
}

func (g *fakeGateway) Watch(context.Context, string) (<-chan *event.Event, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.events, nil
}

type testEnv struct {
	gateway *fakeGateway
	router  *gin.Engine
	auth    *Authenticator
}

func newTestEnv(t *testing.T, public bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gw := &fakeGateway{events: make(chan *event.Event, 4)}
	auth := newTestAuth(t, public)
	cfg := DefaultServerConfig()
	cfg.EventKeepAlive = 20 * time.Millisecond
	srv := NewServer(cfg, ServerDeps{Gateway: gw, Auth: auth}, nopLogger{})
	return &testEnv{gateway: gw, router: srv.Router(), auth: auth}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, role domainwf.Role) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := e.auth.Issue(entity.Actor{ID: "user-" + string(role), Role: role})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/health", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode(t, rec).Success)
}

func TestCreateRequest(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/api/v1/demandes", map[string]interface{}{
		"type":                    "simple",
		"nomComplet":              "Awa Diallo",
		"matricule":               "M-1001",
		"direction":               "DR_SUD",
		"email":                   "awa@example.org",
		"datePriseService":        "2019-09-01",
		"posteSouhaite":           "CHEF_SERVICE",
		"localisationsSouhaitees": []string{"DR_NORD"},
	}, domainwf.RoleAgent)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, domainwf.TypeSimple, env.gateway.created.Type)
	assert.Equal(t, "user-AGENT", env.gateway.actor.ID)
	require.NotNil(t, env.gateway.created.Applicant.HiredAt)
	assert.Equal(t, time.Date(2019, 9, 1, 0, 0, 0, 0, time.UTC), *env.gateway.created.Applicant.HiredAt)
	assert.Equal(t, []string{"DR_NORD"}, env.gateway.created.DesiredLocations)
}

func TestCreateRequest_BadBody(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing matricule", map[string]string{"nomComplet": "Awa"}},
		{"bad hire date", map[string]string{"nomComplet": "Awa", "matricule": "M-1", "datePriseService": "01/09/2019"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/demandes", tt.body, domainwf.RoleAgent)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(domainwf.KindInvalidInput), decode(t, rec).Code)
		})
	}
}

func TestPublicFiling(t *testing.T) {
	closed := newTestEnv(t, false)
	rec := closed.do(t, http.MethodPost, "/api/v1/demandes", map[string]string{"nomComplet": "Awa", "matricule": "M-1"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	open := newTestEnv(t, true)
	rec = open.do(t, http.MethodPost, "/api/v1/demandes", map[string]string{"nomComplet": "Awa", "matricule": "M-1"}, "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, open.gateway.actor.IsAnonymous())
}

func TestSubmitRequest_SurfacesWarnings(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/api/v1/demandes/req-9/soumettre", nil, domainwf.RoleAgent)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, entity.EffectNotifyApplicant, resp.Warnings[0].Effect)
}

func TestDecide(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/api/v1/validations", map[string]string{
		"demandeId":      "req-1",
		"decision":       "valide",
		"commentaire":    "dossier complet",
		"validateurRole": "dncf",
		"dateEffet":      "2026-09-01",
	}, domainwf.RoleDNCF)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	in := env.gateway.decided
	assert.Equal(t, "req-1", in.RequestID)
	assert.Equal(t, domainwf.DecisionValide, in.Decision)
	assert.Equal(t, domainwf.RoleDNCF, in.ClaimedRole)
	assert.Equal(t, domainwf.RoleDNCF, in.Actor.Role)
	require.NotNil(t, in.EffectiveDate)
	assert.Equal(t, "2026-09-01", in.EffectiveDate.Format("2006-01-02"))
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		kind   domainwf.Kind
		status int
	}{
		{domainwf.KindInvalidInput, http.StatusBadRequest},
		{domainwf.KindForbidden, http.StatusForbidden},
		{domainwf.KindConflict, http.StatusConflict},
		{domainwf.KindInvalidState, http.StatusUnprocessableEntity},
		{domainwf.KindNotFound, http.StatusNotFound},
		{domainwf.KindDependencyFailure, http.StatusBadGateway},
		{domainwf.KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			env := newTestEnv(t, false)
			env.gateway.err = domainwf.NewError(tt.kind, "decide", "boom")

			rec := env.do(t, http.MethodPost, "/api/v1/validations", map[string]string{
				"demandeId": "req-1", "decision": "REJETE", "commentaire": "non", "validateurRole": "CVR",
			}, domainwf.RoleCVR)

			assert.Equal(t, tt.status, rec.Code)
			resp := decode(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, string(tt.kind), resp.Code)
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	env := newTestEnv(t, false)
	env.gateway.err = fmt.Errorf("failed to load request: %w", fmt.Errorf("disk I/O error"))

	rec := env.do(t, http.MethodGet, "/api/v1/demandes/req-1", nil, domainwf.RoleDGR)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode(t, rec).Error)
}

func TestListRequests_ParsesFilters(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/api/v1/demandes?statut=acceptee,en_etude_dgr&statut=INELIGIBLE&role=dgr&limit=5", nil, domainwf.RoleDGR)

	require.Equal(t, http.StatusOK, rec.Code)
	q := env.gateway.listed
	assert.Equal(t, []domainwf.State{domainwf.StateAcceptee, domainwf.StateEnEtudeDGR, domainwf.StateIneligible}, q.Statuses)
	assert.Equal(t, domainwf.RoleDGR, q.AwaitingRole)
	assert.Equal(t, 5, q.Limit)
}

func TestListDecisions_RequiresRequestID(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/api/v1/validations", nil, domainwf.RoleDGR)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/validations?demandeId=req-1", nil, domainwf.RoleDGR)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetDocument(t *testing.T) {
	env := newTestEnv(t, false)
	env.gateway.document = []byte("%PDF-1.4 test")

	rec := env.do(t, http.MethodGet, "/api/v1/demandes/req-1/documents/ordre_mutation", nil, domainwf.RoleAgent)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ORDRE_MUTATION_req-1.pdf")
	assert.Equal(t, "%PDF-1.4 test", rec.Body.String())
}

func TestStreamEvents(t *testing.T) {
	env := newTestEnv(t, false)
	token, err := env.auth.Issue(entity.Actor{ID: "u-1", Role: domainwf.RoleAgent})
	require.NoError(t, err)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/demandes/req-1/evenements", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"),
		"content type %q", resp.Header.Get("Content-Type"))

	time.Sleep(60 * time.Millisecond)
	env.gateway.events <- event.NewEvent(event.TypeStatusChanged, "req-1", map[string]interface{}{
		event.KeyNewStatus: "EN_ETUDE_DGR",
	})
	close(env.gateway.events)

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	body := strings.Join(lines, "\n")
	assert.Contains(t, body, "event:ready")
	assert.Contains(t, body, "event:"+string(event.TypeStatusChanged))
	assert.Contains(t, body, "EN_ETUDE_DGR")
	assert.Contains(t, body, "event:ping")
}
