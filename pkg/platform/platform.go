package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/txn2/mcp-element-config/pkg/audit"
	auditpostgres "github.com/txn2/mcp-element-config/pkg/audit/postgres"
	"github.com/txn2/mcp-element-config/pkg/configstore"
	configpostgres "github.com/txn2/mcp-element-config/pkg/configstore/postgres"
	"github.com/txn2/mcp-element-config/pkg/database/migrate"
	"github.com/txn2/mcp-element-config/pkg/element"
	elementpostgres "github.com/txn2/mcp-element-config/pkg/element/postgres"
	"github.com/txn2/mcp-element-config/pkg/identity"
	"github.com/txn2/mcp-element-config/pkg/telemetry"
)

// Platform holds the wired configuration store and its collaborators.
type Platform struct {
	config    *Config
	lifecycle *Lifecycle

	db       *sql.DB
	elements element.Resolver
	repo     configstore.Repository
	audit    audit.Logger
	registry *prometheus.Registry
	metrics  *configstore.Metrics
	identity identity.ContextProvider
	service  *configstore.Service

	// closers are released by Close in reverse order.
	closers []Closer
}

// New creates a new platform instance.
func New(opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Config == nil {
		return nil, errors.New("config is required")
	}
	if err := options.Config.Validate(); err != nil {
		return nil, err
	}

	p := &Platform{
		config:    options.Config,
		lifecycle: NewLifecycle(),
		identity:  identity.ContextProvider{Default: options.Config.Identity.DefaultCreator},
	}

	if err := p.initializeComponents(options); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("initializing components: %w", err)
	}
	return p, nil
}

// initializeComponents initializes all platform components. Start hooks
// run in the order registered here.
func (p *Platform) initializeComponents(opts *Options) error {
	if err := p.initDatabase(opts); err != nil {
		return err
	}
	p.initTracing()
	p.initElements(opts)
	p.initRepository(opts)
	p.initAudit(opts)
	p.initMetrics(opts)
	p.initService(opts)
	return nil
}

func (p *Platform) usesPostgres() bool {
	return p.config.Store.Backend == BackendPostgres
}

// initDatabase opens the connection pool and registers migrations.
func (p *Platform) initDatabase(opts *Options) error {
	p.db = opts.DB
	if p.db == nil && p.usesPostgres() {
		db, err := openDatabase(p.config.Database)
		if err != nil {
			return err
		}
		p.db = db
		p.closers = append(p.closers, db)
	}
	if p.db == nil {
		return nil
	}
	p.lifecycle.Add("migrations", func(context.Context) error {
		return migrate.Run(p.db)
	}, nil)
	return nil
}

func openDatabase(cfg DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// initTracing installs the tracer provider on start and flushes it on stop.
func (p *Platform) initTracing() {
	shutdown := telemetry.ShutdownFunc(func(context.Context) error { return nil })
	p.lifecycle.Add("tracing", func(ctx context.Context) error {
		var err error
		shutdown, err = telemetry.Setup(ctx, telemetry.Config{
			ServiceName:    p.config.Server.Name,
			ServiceVersion: p.config.Server.Version,
			Environment:    p.config.Tracing.Environment,
			Endpoint:       p.config.Tracing.Endpoint,
			Insecure:       p.config.Tracing.Insecure,
			SamplingRate:   p.config.Tracing.SamplingRate,
		})
		return err
	}, func(ctx context.Context) error {
		return shutdown(ctx)
	})
}

// initElements creates the element resolver. Declared elements are
// registered in memory, or upserted into PostgreSQL on start.
func (p *Platform) initElements(opts *Options) {
	if opts.Resolver != nil {
		p.elements = opts.Resolver
		return
	}

	declared := make([]element.Element, 0, len(p.config.Elements))
	for _, ec := range p.config.Elements {
		declared = append(declared, ec.Element())
	}

	if !p.usesPostgres() || p.db == nil {
		p.elements = element.NewMemoryResolver(declared...)
		return
	}

	resolver := elementpostgres.New(p.db)
	p.elements = resolver
	p.lifecycle.Add("elements", func(ctx context.Context) error {
		for _, e := range declared {
			if err := resolver.Upsert(ctx, e); err != nil {
				return err
			}
		}
		if len(declared) > 0 {
			slog.Info("registered declared elements", "count", len(declared))
		}
		return nil
	}, nil)
}

func (p *Platform) initRepository(opts *Options) {
	switch {
	case opts.Repository != nil:
		p.repo = opts.Repository
	case p.usesPostgres() && p.db != nil:
		p.repo = configpostgres.New(p.db)
	default:
		p.repo = configstore.NewMemoryStore()
	}
}

// initAudit creates the configuration event logger.
func (p *Platform) initAudit(opts *Options) {
	if opts.AuditLogger != nil {
		p.audit = opts.AuditLogger
		return
	}
	if !p.config.Audit.Enabled {
		return
	}

	if p.usesPostgres() && p.db != nil {
		store := auditpostgres.New(p.db, auditpostgres.Config{RetentionDays: p.config.Audit.RetentionDays})
		p.audit = store
		p.lifecycle.Add("audit-cleanup", func(context.Context) error {
			store.StartCleanupRoutine(p.config.Audit.CleanupInterval)
			return nil
		}, func(context.Context) error {
			return store.Close()
		})
		return
	}

	logger := audit.NewMemoryLogger(p.config.Audit.MaxEvents)
	p.audit = logger
	p.closers = append(p.closers, logger)
}

func (p *Platform) initMetrics(opts *Options) {
	p.registry = opts.Registry
	if p.registry == nil {
		p.registry = prometheus.NewRegistry()
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	p.metrics = configstore.NewMetrics(p.registry)
}

func (p *Platform) initService(opts *Options) {
	svcOpts := []configstore.Option{
		configstore.WithHistoryLimits(p.config.Retention.Policy()),
		configstore.WithIdentity(p.identity),
		configstore.WithMetrics(p.metrics),
		configstore.WithPurgeOnStore(p.config.Retention.PurgeOnStore),
	}
	if p.audit != nil {
		svcOpts = append(svcOpts, configstore.WithAuditLogger(p.audit))
	}
	if opts.Clock != nil {
		svcOpts = append(svcOpts, configstore.WithClock(opts.Clock))
	}
	p.service = configstore.NewService(p.elements, p.repo, svcOpts...)
}

// Start runs migrations, registers declared elements and starts background
// routines.
func (p *Platform) Start(ctx context.Context) error {
	if err := p.lifecycle.Start(ctx); err != nil {
		return err
	}
	slog.Info("platform started",
		"backend", p.config.Store.Backend,
		"audit", p.audit != nil,
		"default_history_limit", p.config.Retention.DefaultHistoryLimit)
	return nil
}

// Stop stops background routines.
func (p *Platform) Stop(ctx context.Context) error {
	return p.lifecycle.Stop(ctx)
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config {
	return p.config
}

// Service returns the configuration store service.
func (p *Platform) Service() *configstore.Service {
	return p.service
}

// Elements returns the element resolver.
func (p *Platform) Elements() element.Resolver {
	return p.elements
}

// AuditLogger returns the configuration event logger, or nil when auditing
// is disabled.
func (p *Platform) AuditLogger() audit.Logger {
	return p.audit
}

// Registry returns the Prometheus registry holding the service metrics.
func (p *Platform) Registry() *prometheus.Registry {
	return p.registry
}

// DB returns the database connection, or nil for the memory backend.
func (p *Platform) DB() *sql.DB {
	return p.db
}

// Identity returns the creator identity provider.
func (p *Platform) Identity() identity.ContextProvider {
	return p.identity
}

// closeResource closes a resource and appends any error.
func closeResource(errs *[]error, closer Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		*errs = append(*errs, err)
	}
}

// Close releases the resources opened by New.
func (p *Platform) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		closeResource(&errs, p.closers[i])
	}
	p.closers = nil

	if len(errs) > 0 {
		return fmt.Errorf("errors closing platform: %w", errors.Join(errs...))
	}
	return nil
}
