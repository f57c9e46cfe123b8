package crm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreBackend selects where records live.
type StoreBackend string

const (
	BackendMemory   StoreBackend = "memory"
	BackendSQLite   StoreBackend = "sqlite"
	BackendPostgres StoreBackend = "postgres"
	BackendRemote   StoreBackend = "remote"
)

// Config consolidates settings for the record services and binaries
type Config struct {
	Store    StoreConfig    `json:"store" yaml:"store"`
	Remote   RemoteConfig   `json:"remote" yaml:"remote"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	SQLite   SQLiteConfig   `json:"sqlite" yaml:"sqlite"`
	Fixtures FixtureConfig  `json:"fixtures" yaml:"fixtures"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

// StoreConfig contains entity store settings
type StoreConfig struct {
	Backend     StoreBackend  `json:"backend" yaml:"backend"`
	MockLatency LatencyConfig `json:"mockLatency" yaml:"mockLatency"`
}

// LatencyConfig adds artificial delays to the in-memory store so callers can
// exercise their loading states.
type LatencyConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	List    time.Duration `json:"list" yaml:"list"`
	Get     time.Duration `json:"get" yaml:"get"`
	Create  time.Duration `json:"create" yaml:"create"`
	Update  time.Duration `json:"update" yaml:"update"`
	Delete  time.Duration `json:"delete" yaml:"delete"`
}

// RemoteConfig contains record API client settings
type RemoteConfig struct {
	BaseURL          string        `json:"baseURL" yaml:"baseURL"`
	ProjectID        string        `json:"projectID" yaml:"projectID"`
	PublicKey        string        `json:"publicKey" yaml:"publicKey"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
	BreakerThreshold int           `json:"breakerThreshold" yaml:"breakerThreshold"`
	BreakerWindow    time.Duration `json:"breakerWindow" yaml:"breakerWindow"`
	BreakerOpenFor   time.Duration `json:"breakerOpenFor" yaml:"breakerOpenFor"`
	TableNames       TableNames    `json:"tableNames" yaml:"tableNames"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Database        string        `json:"database" yaml:"database"`
	Username        string        `json:"username" yaml:"username"`
	Password        string        `json:"password" yaml:"password"`
	SSLMode         string        `json:"sslMode" yaml:"sslMode"`
	UseIAM          bool          `json:"useIAM" yaml:"useIAM"`
	Region          string        `json:"region" yaml:"region"`
	MaxConnections  int           `json:"maxConnections" yaml:"maxConnections"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime" yaml:"connMaxIdleTime"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	TableNames      TableNames    `json:"tableNames" yaml:"tableNames"`
}

// TableNames maps each entity to its table.
type TableNames struct {
	Contacts   string `json:"contacts" yaml:"contacts"`
	Deals      string `json:"deals" yaml:"deals"`
	Activities string `json:"activities" yaml:"activities"`
	Tasks      string `json:"tasks" yaml:"tasks"`
}

// For returns the table configured for entity.
func (t TableNames) For(entity EntityKind) string {
	switch entity {
	case EntityContact:
		return t.Contacts
	case EntityDeal:
		return t.Deals
	case EntityActivity:
		return t.Activities
	case EntityTask:
		return t.Tasks
	}
	return ""
}

// SQLiteConfig contains settings for the snapshotting SQLite store
type SQLiteConfig struct {
	Path string `json:"path" yaml:"path"`
}

// FixtureConfig selects the seed data source. Source is "embedded", a
// directory path, or an s3://bucket/prefix URL.
type FixtureConfig struct {
	Source     string `json:"source" yaml:"source"`
	S3Region   string `json:"s3Region" yaml:"s3Region"`
	S3Endpoint string `json:"s3Endpoint" yaml:"s3Endpoint"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         string        `json:"port" yaml:"port"`
	ReadTimeout  time.Duration `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// MetricsConfig contains metrics collection settings
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendMemory,
			MockLatency: LatencyConfig{
				Enabled: false,
				List:    300 * time.Millisecond,
				Get:     200 * time.Millisecond,
				Create:  400 * time.Millisecond,
				Update:  350 * time.Millisecond,
				Delete:  250 * time.Millisecond,
			},
		},
		Remote: RemoteConfig{
			Timeout:          20 * time.Second,
			BreakerThreshold: 5,
			BreakerWindow:    30 * time.Second,
			BreakerOpenFor:   15 * time.Second,
			TableNames: TableNames{
				Contacts:   "contact_c",
				Deals:      "deal_c",
				Activities: "activity_c",
				Tasks:      "task_c",
			},
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "crm",
			Username:        "postgres",
			SSLMode:         "disable",
			MaxConnections:  10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         10 * time.Second,
			TableNames: TableNames{
				Contacts:   "crm_contacts",
				Deals:      "crm_deals",
				Activities: "crm_activities",
				Tasks:      "crm_tasks",
			},
		},
		SQLite: SQLiteConfig{
			Path: "crm.db",
		},
		Fixtures: FixtureConfig{
			Source: "embedded",
		},
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "crm",
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
// An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite, BackendPostgres, BackendRemote:
	default:
		return &ConfigError{Field: "store.backend", Message: fmt.Sprintf("unknown backend %q", c.Store.Backend)}
	}

	if c.Store.Backend == BackendRemote {
		if strings.TrimSpace(c.Remote.BaseURL) == "" {
			return &ConfigError{Field: "remote.baseURL", Message: "is required for the remote backend"}
		}
		if err := validateTableNames("remote.tableNames", c.Remote.TableNames); err != nil {
			return err
		}
	}

	if c.Store.Backend == BackendPostgres {
		if c.Database.MaxConnections <= 0 {
			return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
		}
		if err := validateTableNames("database.tableNames", c.Database.TableNames); err != nil {
			return err
		}
	}

	if c.Store.Backend == BackendSQLite && strings.TrimSpace(c.SQLite.Path) == "" {
		return &ConfigError{Field: "sqlite.path", Message: "is required for the sqlite backend"}
	}

	if c.Remote.BreakerThreshold < 0 {
		return &ConfigError{Field: "remote.breakerThreshold", Message: "must not be negative"}
	}

	return nil
}

func validateTableNames(prefix string, names TableNames) error {
	for _, entity := range []EntityKind{EntityContact, EntityDeal, EntityActivity, EntityTask} {
		if strings.TrimSpace(names.For(entity)) == "" {
			return &ConfigError{Field: prefix, Message: fmt.Sprintf("table name for %s is required", entity)}
		}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
