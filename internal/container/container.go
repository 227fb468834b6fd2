// Package container provides dependency injection and lifecycle management
// for the mutation workflow service.
package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/application/dispatcher"
	"github.com/garyjia/mutation-workflow/internal/application/effects"
	"github.com/garyjia/mutation-workflow/internal/application/port"
	"github.com/garyjia/mutation-workflow/internal/application/service"
	"github.com/garyjia/mutation-workflow/internal/application/workflow"
	"github.com/garyjia/mutation-workflow/internal/config"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/metrics"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/referential"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/worker"
	"github.com/garyjia/mutation-workflow/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse order.
type Container struct {
	config *config.Config
	logger *zap.Logger
	opts   options

	// Infrastructure - Data
	database     *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - Organisation and files
	referential *referential.Store
	fileStorage port.FileStorage

	// Infrastructure - Notification channels
	mailers []port.Mailer

	// Application
	metrics     *metrics.Recorder
	dispatcher  dispatcher.Dispatcher
	engine      workflow.Engine
	coordinator *effects.Coordinator
	gateway     service.WorkflowGateway

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Requests      port.RequestRepository
	Decisions     port.DecisionLedger
	History       port.HistoryRepository
	Documents     port.DocumentRepository
	Notifications port.NotificationRepository
	Tasks         port.EffectTaskRepository
	Assignments   port.AssignmentRepository
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

type options struct {
	withoutWorkers bool
}

// Option configures the container
type Option func(*options)

// WithoutWorkers skips the background workers, for one-shot commands
func WithoutWorkers() Option {
	return func(o *options) { o.withoutWorkers = true }
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(&c.opts)
	}
	return c, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Referential and document storage
// 3. Notification channels
// 4. Dispatcher, workflow engine, effects and gateway
// 5. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initStorage(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize storage: %w", err))
	}
	c.logger.Info("Referential and storage initialized",
		zap.Int("directions", len(c.referential.Directions())),
		zap.Int("posts", len(c.referential.Posts())))

	if err := c.initNotifiers(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize notification channels: %w", err))
	}
	c.logger.Info("Notification channels initialized", zap.Int("channels", len(c.mailers)))

	if err := c.initWorkflow(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize workflow: %w", err))
	}
	c.logger.Info("Dispatcher and workflow engine initialized")

	if !c.opts.withoutWorkers {
		if err := c.initWorkers(); err != nil {
			return c.abort(fmt.Errorf("failed to initialize workers: %w", err))
		}
		c.logger.Info("Workers initialized and started", zap.Strings("workers", c.workers.Names()))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// abort releases what a failed Start already opened
func (c *Container) abort(err error) error {
	if c.dispatcher != nil {
		_ = c.dispatcher.Close()
	}
	if c.database != nil {
		_ = c.database.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}
	return err
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers (reverse of step 5)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Step 2: Close dispatcher (reverse of step 4). This waits for
	// in-flight async handlers such as metrics and event watchers.
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 3: Close database (reverse of step 1)
	if c.database != nil {
		if err := c.database.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Health returns health status of all components. A container that is not
// started, or already closed, is never healthy.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.ready.Load() {
		status.Components["container"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["container"] = ComponentHealth{Healthy: false, Message: "not started"}
		status.Overall = false
	}

	if c.database != nil {
		if err := c.database.Ping(); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	if c.workers != nil {
		status.Components["workers"] = ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()),
		}
		if !c.workers.IsRunning() {
			status.Overall = false
		}
	} else if !c.opts.withoutWorkers {
		status.Components["workers"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	if c.dispatcher != nil {
		status.Components["dispatcher"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["dispatcher"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	status.Components["notifications"] = ComponentHealth{
		Healthy: len(c.mailers) > 0,
		Message: fmt.Sprintf("channel count: %d", len(c.mailers)),
	}
	if len(c.mailers) == 0 {
		status.Overall = false
	}

	return status
}

// initDatabase opens the database, applies migrations and builds repositories.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.database = dbBundle.Database
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.database, c.logger)
	if err != nil {
		_ = c.database.Close()
		c.database = nil
		return err
	}

	c.repositories = repos
	return nil
}

// initStorage loads the referential and prepares document storage.
func (c *Container) initStorage() error {
	ref, err := ProvideReferential(&c.config.Referential)
	if err != nil {
		return err
	}
	c.referential = ref

	fileStorage, err := ProvideStorage(&c.config.Storage, c.logger)
	if err != nil {
		return err
	}
	c.fileStorage = fileStorage
	return nil
}

// initNotifiers builds the applicant notification channels.
func (c *Container) initNotifiers() error {
	mailers, err := ProvideMailers(&c.config.Mail, &c.config.Lark, c.logger)
	if err != nil {
		return err
	}
	c.mailers = mailers
	return nil
}

// initWorkflow builds the dispatcher, metrics, workflow engine, effect
// coordinator and gateway.
func (c *Container) initWorkflow() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	if c.config.Metrics.Enabled {
		c.metrics = ProvideMetrics(&c.config.Metrics, c.dispatcher)
	}

	bundle, err := ProvideWorkflow(&WorkflowDeps{
		Config:      c.config,
		Repos:       c.repositories,
		TxManager:   c.db,
		Dispatcher:  c.dispatcher,
		Referential: c.referential,
		Storage:     c.fileStorage,
		Mailers:     c.mailers,
		Metrics:     c.metrics,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}

	c.engine = bundle.Engine
	c.coordinator = bundle.Coordinator
	c.gateway = bundle.Gateway
	return nil
}

// initWorkers creates and starts all background workers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&c.config.Effects, c.coordinator, c.logger)
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// Getters for accessing container components

// Gateway returns the workflow gateway.
func (c *Container) Gateway() service.WorkflowGateway {
	return c.gateway
}

// Effects returns the effect coordinator.
func (c *Container) Effects() *effects.Coordinator {
	return c.coordinator
}

// Exporter returns a mutation register exporter.
func (c *Container) Exporter() *service.RegisterExporter {
	return service.NewRegisterExporter(c.repositories.Requests)
}

// Metrics returns the metrics recorder, nil when metrics are disabled.
func (c *Container) Metrics() *metrics.Recorder {
	return c.metrics
}

// LoggerAdapter returns the container's logger behind the key/value
// interface used by the application and transport layers.
func (c *Container) LoggerAdapter() *ZapLoggerAdapter {
	return &ZapLoggerAdapter{logger: c.logger}
}

// ZapLoggerAdapter adapts zap.Logger to the key/value Logger interfaces of
// the application packages.
type ZapLoggerAdapter struct {
	logger *zap.Logger
}

// Info logs at info level
func (a *ZapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

// Error logs at error level
func (a *ZapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
