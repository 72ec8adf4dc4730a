package platform

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/txn2/mcp-element-config/pkg/audit"
	"github.com/txn2/mcp-element-config/pkg/configstore"
	"github.com/txn2/mcp-element-config/pkg/element"
)

// Options configures the platform.
type Options struct {
	// Config is the platform configuration.
	Config *Config

	// DB is the database connection (optional, opened from config if not provided).
	DB *sql.DB

	// Repository (optional, created for the configured backend if not provided).
	Repository configstore.Repository

	// Resolver (optional, created for the configured backend if not provided).
	Resolver element.Resolver

	// AuditLogger (optional, created from config if not provided).
	AuditLogger audit.Logger

	// Registry receives the service metrics (optional, a new registry if not provided).
	Registry *prometheus.Registry

	// Clock overrides the time source of revision timestamps.
	Clock func() time.Time
}

// Option is a functional option for configuring the platform.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithDB sets the database connection.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithRepository sets the revision repository.
func WithRepository(r configstore.Repository) Option {
	return func(o *Options) {
		o.Repository = r
	}
}

// WithResolver sets the element resolver.
func WithResolver(r element.Resolver) Option {
	return func(o *Options) {
		o.Resolver = r
	}
}

// WithAuditLogger sets the configuration event logger.
func WithAuditLogger(l audit.Logger) Option {
	return func(o *Options) {
		o.AuditLogger = l
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(o *Options) {
		o.Registry = r
	}
}

// WithClock sets the time source of revision timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Clock = now
	}
}
