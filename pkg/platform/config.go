// Package platform loads configuration and wires the configuration store
// together with its persistence, audit, metrics and tracing.
package platform

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/txn2/mcp-element-config/pkg/configstore"
	"github.com/txn2/mcp-element-config/pkg/element"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Transports.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Config holds the complete configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Store     StoreConfig     `yaml:"store"`
	Retention RetentionConfig `yaml:"retention"`
	Identity  IdentityConfig  `yaml:"identity"`
	Elements  []ElementConfig `yaml:"elements"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig configures the HTTP and MCP servers.
type ServerConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	Address         string        `yaml:"address"`
	Transport       string        `yaml:"transport"` // "http", "stdio"
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// StoreConfig selects the revision store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "memory", "postgres"
}

// RetentionConfig configures history limits per series name.
type RetentionConfig struct {
	DefaultHistoryLimit int            `yaml:"default_history_limit"`
	Series              map[string]int `yaml:"series"`
	PurgeOnStore        bool           `yaml:"purge_on_store"`
}

// Policy converts the configuration to a retention policy.
func (c RetentionConfig) Policy() configstore.RetentionPolicy {
	p := configstore.RetentionPolicy{
		Default: c.DefaultHistoryLimit,
		Series:  make(map[configstore.SeriesName]int, len(c.Series)),
	}
	for name, limit := range c.Series {
		p.Series[configstore.SeriesName(name)] = limit
	}
	return p
}

// IdentityConfig configures how revision creators are identified.
type IdentityConfig struct {
	Header         string `yaml:"header"`
	DefaultCreator string `yaml:"default_creator"`
}

// ElementConfig declares an element known to the service.
type ElementConfig struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Alias string `yaml:"alias"`
	Role  string `yaml:"role"`
	Group string `yaml:"group"`
}

// AuditConfig configures configuration event recording.
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RetentionDays   int           `yaml:"retention_days"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	MaxEvents       int           `yaml:"max_events"` // memory backend only
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
}

// LoadConfig loads configuration from a file.
// The path is expected to come from command line arguments, controlled by the administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, expanding ${VAR} references and
// applying defaults.
func ParseConfig(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "mcp-element-config"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "1.0.0"
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = TransportHTTP
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 25 * time.Second
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendMemory
		if cfg.Database.DSN != "" {
			cfg.Store.Backend = BackendPostgres
		}
	}
	if cfg.Retention.DefaultHistoryLimit == 0 {
		cfg.Retention.DefaultHistoryLimit = configstore.DefaultHistoryLimit
	}
	if cfg.Identity.Header == "" {
		cfg.Identity.Header = "X-Remote-User"
	}
	if cfg.Identity.DefaultCreator == "" {
		cfg.Identity.DefaultCreator = "system"
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = 90
	}
	if cfg.Audit.CleanupInterval == 0 {
		cfg.Audit.CleanupInterval = time.Hour
	}
	if cfg.Audit.MaxEvents == 0 {
		cfg.Audit.MaxEvents = 10000
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for the postgres store backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.backend must be %q or %q, got %q",
			BackendMemory, BackendPostgres, c.Store.Backend))
	}

	if c.Server.Transport != TransportHTTP && c.Server.Transport != TransportStdio {
		errs = append(errs, fmt.Sprintf("server.transport must be %q or %q, got %q",
			TransportHTTP, TransportStdio, c.Server.Transport))
	}

	if c.Retention.DefaultHistoryLimit <= 0 {
		errs = append(errs, "retention.default_history_limit must be positive")
	}
	for name, limit := range c.Retention.Series {
		if _, err := configstore.ParseSeriesName(name); err != nil {
			errs = append(errs, fmt.Sprintf("retention.series: %v", err))
		}
		if limit <= 0 {
			errs = append(errs, fmt.Sprintf("retention.series.%s must be positive", name))
		}
	}

	errs = append(errs, validateElements(c.Elements)...)

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, "tracing.sampling_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateElements(elements []ElementConfig) []string {
	var errs []string
	ids := make(map[string]bool, len(elements))
	names := make(map[string]bool, len(elements))
	for i, ec := range elements {
		if ec.Name == "" {
			errs = append(errs, fmt.Sprintf("elements[%d].name is required", i))
		} else if names[ec.Name] {
			errs = append(errs, fmt.Sprintf("elements[%d]: duplicate name %q", i, ec.Name))
		}
		names[ec.Name] = true

		if ec.ID == "" {
			continue
		}
		if _, err := element.ParseID(ec.ID); err != nil {
			errs = append(errs, fmt.Sprintf("elements[%d].id: %v", i, err))
		} else if ids[ec.ID] {
			errs = append(errs, fmt.Sprintf("elements[%d]: duplicate id %q", i, ec.ID))
		}
		ids[ec.ID] = true
	}
	return errs
}

// Element converts the declaration to an element. Without an id one is
// derived from the name, so restarts keep the same identity.
func (ec ElementConfig) Element() element.Element {
	id, err := element.ParseID(ec.ID)
	if err != nil {
		id = element.NameID(ec.Name)
	}
	return element.Element{
		ID:    id,
		Name:  ec.Name,
		Alias: ec.Alias,
		Role:  ec.Role,
		Group: ec.Group,
	}
}
