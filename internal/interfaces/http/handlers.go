package http

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/mutation-workflow/internal/application/effects"
	"github.com/garyjia/mutation-workflow/internal/application/service"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

// HealthFunc reports component health for /health
type HealthFunc func() (healthy bool, components map[string]string)

// Handlers contains all HTTP request handlers
type Handlers struct {
	gateway        service.WorkflowGateway
	health         HealthFunc
	logger         Logger
	eventKeepAlive time.Duration
}

// NewHandlers creates a new Handlers instance
func NewHandlers(gateway service.WorkflowGateway, health HealthFunc, logger Logger) *Handlers {
	return &Handlers{
		gateway:        gateway,
		health:         health,
		logger:         logger,
		eventKeepAlive: 25 * time.Second,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success  bool              `json:"success"`
	Data     interface{}       `json:"data,omitempty"`
	Code     string            `json:"code,omitempty"`
	Error    string            `json:"error,omitempty"`
	Warnings []effects.Warning `json:"warnings,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
}

// CreateRequestBody is the payload of POST /demandes
type CreateRequestBody struct {
	Type                    string   `json:"type"`
	NomComplet              string   `json:"nomComplet" binding:"required"`
	Matricule               string   `json:"matricule" binding:"required"`
	Direction               string   `json:"direction"`
	Service                 string   `json:"service"`
	Email                   string   `json:"email"`
	Grade                   string   `json:"grade"`
	PosteActuel             string   `json:"posteActuel"`
	DatePriseService        string   `json:"datePriseService"`
	PosteSouhaite           string   `json:"posteSouhaite"`
	LocalisationsSouhaitees []string `json:"localisationsSouhaitees"`
	Motif                   string   `json:"motif"`
}

// DecisionBody is the payload of POST /validations
type DecisionBody struct {
	DemandeID      string `json:"demandeId" binding:"required"`
	Decision       string `json:"decision" binding:"required"`
	Commentaire    string `json:"commentaire"`
	ValidateurRole string `json:"validateurRole" binding:"required"`
	DateEffet      string `json:"dateEffet"`
}

// ListRequestsQuery represents query parameters for listing requests
type ListRequestsQuery struct {
	Statut    []string `form:"statut"`
	Role      string   `form:"role"`
	Matricule string   `form:"matricule"`
	Limit     int      `form:"limit"`
	Offset    int      `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	}

	status := http.StatusOK
	if h.health != nil {
		healthy, components := h.health()
		response.Components = components
		if !healthy {
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// CreateRequest handles POST /api/v1/demandes
func (h *Handlers) CreateRequest(c *gin.Context) {
	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	hiredAt, err := parseDate(body.DatePriseService)
	if err != nil {
		h.badRequest(c, "invalid datePriseService", err)
		return
	}

	req, err := h.gateway.Create(c.Request.Context(), actorFrom(c), service.CreateInput{
		Type: domainwf.RequestType(strings.ToUpper(body.Type)),
		Applicant: entity.ApplicantSnapshot{
			FullName:    body.NomComplet,
			Matricule:   body.Matricule,
			Direction:   body.Direction,
			Service:     body.Service,
			Email:       body.Email,
			Grade:       body.Grade,
			CurrentPost: body.PosteActuel,
			HiredAt:     hiredAt,
		},
		DesiredPost:      body.PosteSouhaite,
		DesiredLocations: body.LocalisationsSouhaitees,
		Motif:            body.Motif,
	})
	if err != nil {
		h.fail(c, "Failed to create request", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: req})
}

// SubmitRequest handles POST /api/v1/demandes/:id/soumettre
func (h *Handlers) SubmitRequest(c *gin.Context) {
	id := c.Param("id")
	result, err := h.gateway.Submit(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		h.fail(c, "Failed to submit request", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success:  true,
		Data:     result,
		Warnings: result.Effects.Warnings,
	})
}

// Decide handles POST /api/v1/validations
func (h *Handlers) Decide(c *gin.Context) {
	var body DecisionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	effective, err := parseDate(body.DateEffet)
	if err != nil {
		h.badRequest(c, "invalid dateEffet", err)
		return
	}

	result, err := h.gateway.Decide(c.Request.Context(), service.DecideInput{
		RequestID:     body.DemandeID,
		Actor:         actorFrom(c),
		ClaimedRole:   domainwf.Role(strings.ToUpper(body.ValidateurRole)),
		Decision:      domainwf.Decision(strings.ToUpper(body.Decision)),
		Comment:       body.Commentaire,
		EffectiveDate: effective,
	})
	if err != nil {
		h.fail(c, "Failed to record decision", err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success:  true,
		Data:     result,
		Warnings: result.Effects.Warnings,
	})
}

// GetRequest handles GET /api/v1/demandes/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	view, err := h.gateway.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get request", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// ListDecisions handles GET /api/v1/validations?demandeId=
func (h *Handlers) ListDecisions(c *gin.Context) {
	id := c.Query("demandeId")
	if id == "" {
		h.badRequest(c, "demandeId is required", nil)
		return
	}

	decisions, err := h.gateway.ListDecisions(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to list decisions", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: decisions})
}

// ListRequests handles GET /api/v1/demandes
func (h *Handlers) ListRequests(c *gin.Context) {
	var q ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	query := service.ListQuery{
		AwaitingRole: domainwf.Role(strings.ToUpper(q.Role)),
		Matricule:    q.Matricule,
		Limit:        q.Limit,
		Offset:       q.Offset,
	}
	for _, raw := range q.Statut {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				query.Statuses = append(query.Statuses, domainwf.State(strings.ToUpper(s)))
			}
		}
	}

	requests, err := h.gateway.ListRequests(c.Request.Context(), actorFrom(c), query)
	if err != nil {
		h.fail(c, "Failed to list requests", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: requests})
}

// GetDocument handles GET /api/v1/demandes/:id/documents/:type
func (h *Handlers) GetDocument(c *gin.Context) {
	docType := entity.DocumentType(strings.ToUpper(c.Param("type")))
	doc, content, err := h.gateway.Document(c.Request.Context(), c.Param("id"), docType)
	if err != nil {
		h.fail(c, "Failed to get document", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_%s.pdf"`, doc.Type, doc.RequestID))
	c.Data(http.StatusOK, "application/pdf", content)
}

// StreamEvents handles GET /api/v1/demandes/:id/evenements as server-sent events
func (h *Handlers) StreamEvents(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	events, err := h.gateway.Watch(ctx, id)
	if err != nil {
		h.fail(c, "Failed to watch request", err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	keepAlive := time.NewTicker(h.eventKeepAlive)
	defer keepAlive.Stop()

	c.SSEvent("ready", gin.H{"demandeId": id})
	c.Writer.Flush()
	c.Stream(func(io.Writer) bool {
		select {
		case evt, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(evt.Type), evt)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	if err != nil {
		h.logger.Error("Invalid request", "path", c.FullPath(), "error", err)
		msg = msg + ": " + err.Error()
	}
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Code:    string(domainwf.KindInvalidInput),
		Error:   msg,
	})
}

func (h *Handlers) fail(c *gin.Context, logMsg string, err error) {
	kind := domainwf.KindOf(err)
	status := statusFor(kind)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error(logMsg, "path", c.FullPath(), "kind", kind, "error", err)
		if kind == domainwf.KindInternal {
			msg = "internal error"
		}
	} else {
		h.logger.Info(logMsg, "path", c.FullPath(), "kind", kind, "error", err)
	}

	c.JSON(status, Response{
		Success: false,
		Code:    string(kind),
		Error:   msg,
	})
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind domainwf.Kind) int {
	switch kind {
	case domainwf.KindInvalidInput:
		return http.StatusBadRequest
	case domainwf.KindForbidden:
		return http.StatusForbidden
	case domainwf.KindNotFound:
		return http.StatusNotFound
	case domainwf.KindConflict:
		return http.StatusConflict
	case domainwf.KindInvalidState:
		return http.StatusUnprocessableEntity
	case domainwf.KindDependencyFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// parseDate accepts a calendar date or an RFC 3339 timestamp
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%q is neither YYYY-MM-DD nor RFC 3339", raw)
}
