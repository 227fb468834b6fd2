package container

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/application/dispatcher"
	"github.com/garyjia/mutation-workflow/internal/application/effects"
	"github.com/garyjia/mutation-workflow/internal/application/port"
	"github.com/garyjia/mutation-workflow/internal/application/service"
	"github.com/garyjia/mutation-workflow/internal/application/workflow"
	"github.com/garyjia/mutation-workflow/internal/config"
	"github.com/garyjia/mutation-workflow/internal/domain/eligibility"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/external/document"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/external/lark"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/external/mail"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/metrics"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/referential"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/storage"
	"github.com/garyjia/mutation-workflow/internal/infrastructure/worker"
	"github.com/garyjia/mutation-workflow/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Database       *database.DB
	TransactionMgr *sqlite.DB
}

// WorkflowBundle holds the application layer.
type WorkflowBundle struct {
	Engine      workflow.Engine
	Coordinator *effects.Coordinator
	Gateway     service.WorkflowGateway
}

// ProvideDatabase opens the database and transaction manager. Pending
// migrations are applied when auto_migrate is set.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if _, err := database.NewMigrator(db, logger).Run(database.Migrations()); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DatabaseBundle{
		Database:       db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Requests:      repository.NewRequestRepository(db.DB, logger),
		Decisions:     repository.NewDecisionRepository(db.DB, logger),
		History:       repository.NewHistoryRepository(db.DB, logger),
		Documents:     repository.NewDocumentRepository(db.DB, logger),
		Notifications: repository.NewNotificationRepository(db.DB, logger),
		Tasks:         repository.NewEffectTaskRepository(db.DB, logger),
		Assignments:   repository.NewAssignmentRepository(db.DB, logger),
	}, nil
}

// ProvideReferential loads the organisation referential.
func ProvideReferential(cfg *config.ReferentialConfig) (*referential.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("referential config is required")
	}
	return referential.Load(cfg.Path)
}

// ProvideStorage creates the document file storage.
func ProvideStorage(cfg *config.StorageConfig, logger *zap.Logger) (port.FileStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return storage.NewLocalFileStorage(cfg.DocumentsDir, logger), nil
}

// ProvideMailers creates the enabled notification channels, each behind its
// own rate limiter.
func ProvideMailers(mailCfg *config.MailConfig, larkCfg *config.LarkConfig, logger *zap.Logger) ([]port.Mailer, error) {
	if mailCfg == nil || larkCfg == nil {
		return nil, fmt.Errorf("notification config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	var mailers []port.Mailer
	if mailCfg.Enabled() {
		smtp, err := mail.NewSMTPMailer(mail.Config{
			Host:     mailCfg.Host,
			Port:     mailCfg.Port,
			Username: mailCfg.Username,
			Password: mailCfg.Password,
			From:     mailCfg.From,
			FromName: mailCfg.FromName,
			TLS:      mailCfg.TLS,
			Timeout:  mailCfg.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SMTP mailer: %w", err)
		}
		mailers = append(mailers, mail.NewRateLimitedMailer(smtp, mailCfg.RatePerMinute, mailCfg.Burst))
	}

	if larkCfg.Enabled() {
		client := lark.NewSDKClient(lark.Config{
			AppID:     larkCfg.AppID,
			AppSecret: larkCfg.AppSecret,
			BaseURL:   larkCfg.BaseURL,
			Timeout:   larkCfg.APITimeout,
		}, logger)
		messenger := lark.NewMessenger(lark.NewMessageAPI(client, logger), logger)
		mailers = append(mailers, mail.NewRateLimitedMailer(messenger, larkCfg.RatePerMinute, larkCfg.Burst))
	}

	if len(mailers) == 0 {
		return nil, fmt.Errorf("no notification channel is configured")
	}
	return mailers, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&ZapLoggerAdapter{logger: logger.Named("dispatcher")}),
	), nil
}

// ProvideMetrics creates the metrics recorder and subscribes it to events.
func ProvideMetrics(cfg *config.MetricsConfig, d dispatcher.Dispatcher) *metrics.Recorder {
	recorder := metrics.NewRecorder(cfg.RuntimeMetrics)
	recorder.Attach(d)
	return recorder
}

// WorkflowDeps holds dependencies required for creating the application layer.
type WorkflowDeps struct {
	Config      *config.Config
	Repos       *RepositoryBundle
	TxManager   port.TransactionManager
	Dispatcher  dispatcher.Dispatcher
	Referential *referential.Store
	Storage     port.FileStorage
	Mailers     []port.Mailer
	// Metrics is optional
	Metrics *metrics.Recorder
	Logger  *zap.Logger
}

// ProvideWorkflow creates the workflow engine, the effect coordinator and
// the gateway that fronts them.
func ProvideWorkflow(deps *WorkflowDeps) (*WorkflowBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Referential == nil {
		return nil, fmt.Errorf("referential is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	cfg := deps.Config
	log := func(name string) *ZapLoggerAdapter {
		return &ZapLoggerAdapter{logger: deps.Logger.Named(name)}
	}

	engine := workflow.NewEngine(
		deps.Repos.Requests,
		deps.Repos.Decisions,
		deps.Repos.History,
		deps.Repos.Tasks,
		deps.TxManager,
		eligibility.NewEvaluator(eligibility.Config{MinTenureMonths: cfg.Eligibility.MinTenureMonths}),
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithDirectory(deps.Referential),
		workflow.WithLogger(log("workflow")),
	)

	effectOpts := []effects.Option{
		effects.WithDispatcher(deps.Dispatcher),
		effects.WithLogger(log("effects")),
	}
	if deps.Metrics != nil {
		effectOpts = append(effectOpts, effects.WithObserver(deps.Metrics.ObserveEffect))
	}
	coordinator := effects.NewCoordinator(effects.Deps{
		Requests:      deps.Repos.Requests,
		Decisions:     deps.Repos.Decisions,
		Documents:     deps.Repos.Documents,
		Notifications: deps.Repos.Notifications,
		Assignments:   deps.Repos.Assignments,
		Tasks:         deps.Repos.Tasks,
		TxManager:     deps.TxManager,
		Renderer: document.NewPDFRenderer(document.Config{
			Organisation: cfg.Documents.Organisation,
			Signatory:    cfg.Documents.Signatory,
			City:         cfg.Documents.City,
		}, deps.Referential),
		Inspector: document.NewFitzInspector(),
		Storage:   deps.Storage,
		Mailers:   deps.Mailers,
	}, effects.Config{
		MaxAttempts: cfg.Effects.MaxAttempts,
		BaseBackoff: cfg.Effects.BaseBackoff,
		MaxBackoff:  cfg.Effects.MaxBackoff,
		PickupDelay: cfg.Effects.PickupDelay,
	}, effectOpts...)

	gatewayCfg := service.DefaultConfig()
	gatewayCfg.EffectsWaitTimeout = cfg.Effects.WaitTimeout
	gatewayCfg.AllowPublicFiling = cfg.Auth.AllowPublicFiling

	gateway := service.NewWorkflowGateway(service.GatewayDeps{
		Engine:     engine,
		Effects:    coordinator,
		Requests:   deps.Repos.Requests,
		Decisions:  deps.Repos.Decisions,
		Documents:  deps.Repos.Documents,
		History:    deps.Repos.History,
		Storage:    deps.Storage,
		Dispatcher: deps.Dispatcher,
		Logger:     log("gateway"),
	}, gatewayCfg)

	return &WorkflowBundle{
		Engine:      engine,
		Coordinator: coordinator,
		Gateway:     gateway,
	}, nil
}

// ProvideWorkers creates the worker manager with the effect worker
// registered but not started.
func ProvideWorkers(cfg *config.EffectsConfig, coordinator *effects.Coordinator, logger *zap.Logger) (*worker.WorkerManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("effects config is required")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("effect coordinator is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(logger)

	workerCfg := worker.DefaultEffectWorkerConfig()
	if cfg.PollInterval > 0 {
		workerCfg.PollInterval = cfg.PollInterval
	}
	if cfg.BatchSize > 0 {
		workerCfg.BatchSize = cfg.BatchSize
	}
	if cfg.StaleAfter > 0 {
		workerCfg.StaleAfter = cfg.StaleAfter
	}
	manager.Register(worker.NewEffectWorker(workerCfg, coordinator, logger))

	return manager, nil
}
