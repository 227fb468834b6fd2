// Package metrics exposes Prometheus collectors for the workflow: request
// transitions and decisions fed from the event dispatcher, effect task
// outcomes, and HTTP traffic.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/mutation-workflow/internal/application/dispatcher"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/domain/event"
)

const namespace = "mutation"

// SubscriberName is the dispatcher subscription of the recorder
const SubscriberName = "metrics"

// Recorder owns a private registry so tests and multiple servers never
// collide on global registration
type Recorder struct {
	registry *prometheus.Registry

	requestsCreated *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	effects         *prometheus.CounterVec
	documents       *prometheus.CounterVec

	httpReqs     *prometheus.CounterVec
	httpLat      *prometheus.HistogramVec
	httpInflight prometheus.Gauge
}

// NewRecorder creates and registers all collectors. withRuntime adds the Go
// and process collectors.
func NewRecorder(withRuntime bool) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requestsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_created_total",
			Help:      "Mutation requests created, by initial status.",
		}, []string{"status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Status transitions, by source and target status.",
		}, []string{"from", "to"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Recorded validation decisions, by role and decision.",
		}, []string{"role", "decision"}),
		effects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effect_tasks_total",
			Help:      "Executed effect tasks, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_generated_total",
			Help:      "Official documents generated, by type.",
		}, []string{"type"}),
		httpReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpLat: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		}),
	}

	r.registry.MustRegister(
		r.requestsCreated, r.transitions, r.decisions, r.effects, r.documents,
		r.httpReqs, r.httpLat, r.httpInflight,
	)
	if withRuntime {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// countedEvents are the event types the recorder turns into counters
var countedEvents = []event.Type{
	event.TypeRequestCreated,
	event.TypeStatusChanged,
	event.TypeDecisionRecorded,
	event.TypeDocumentGenerated,
}

// Attach subscribes the recorder to the events it counts
func (r *Recorder) Attach(d dispatcher.Dispatcher) {
	for _, t := range countedEvents {
		d.SubscribeNamed(t, SubscriberName, r.HandleEvent)
	}
}

// HandleEvent updates counters from one domain event
func (r *Recorder) HandleEvent(_ context.Context, evt *event.Event) error {
	switch evt.Type {
	case event.TypeRequestCreated:
		r.requestsCreated.WithLabelValues(evt.GetPayloadString(event.KeyNewStatus)).Inc()
	case event.TypeStatusChanged:
		r.transitions.WithLabelValues(
			evt.GetPayloadString(event.KeyPreviousStatus),
			evt.GetPayloadString(event.KeyNewStatus),
		).Inc()
	case event.TypeDecisionRecorded:
		r.decisions.WithLabelValues(
			evt.GetPayloadString(event.KeyRole),
			evt.GetPayloadString(event.KeyDecision),
		).Inc()
	case event.TypeDocumentGenerated:
		r.documents.WithLabelValues(evt.GetPayloadString(event.KeyDocumentType)).Inc()
	}
	return nil
}

// ObserveEffect records the outcome of an effect task. Its signature matches
// effects.Observer.
func (r *Recorder) ObserveEffect(task *entity.EffectTask, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.effects.WithLabelValues(task.Kind, outcome).Inc()
}

// Middleware instruments gin requests. The path label is the registered
// route, falling back to the raw path when nothing matched.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		r.httpInflight.Inc()
		defer r.httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		r.httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		r.httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
