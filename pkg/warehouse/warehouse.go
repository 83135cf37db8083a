// Package warehouse opens the bounded Databricks SQL connection pool used by
// the launch status queries.
package warehouse

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	dbsql "github.com/databricks/databricks-sql-go"

	"github.com/otherjamesbrown/launchbot/pkg/launch"
)

// Config holds Databricks SQL warehouse connection configuration.
type Config struct {
	Host            string
	Port            int
	HTTPPath        string
	Token           string
	Catalog         string
	Schema          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
	MaxRows         int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Port:            443,
		MaxOpenConns:    5,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
		QueryTimeout:    30 * time.Second,
		MaxRows:         10000,
	}
}

// ConfigFromEnv creates a Config from environment variables.
// Environment variables:
//   - DATABRICKS_HOST: Workspace hostname, with or without https://
//   - DATABRICKS_PORT: Port (default: 443)
//   - DATABRICKS_HTTP_PATH: SQL warehouse HTTP path
//   - DATABRICKS_TOKEN: Personal access token
//   - DATABRICKS_CATALOG: Initial catalog
//   - DATABRICKS_SCHEMA: Initial schema
//   - DATABRICKS_MAX_CONNS: Maximum open connections (default: 5)
//
// An unparsable number keeps its default and is passed to invalid, which
// may be nil.
func ConfigFromEnv(invalid func(key, reason string)) *Config {
	cfg := DefaultConfig()

	cfg.Host = NormalizeHost(os.Getenv("DATABRICKS_HOST"))
	cfg.HTTPPath = os.Getenv("DATABRICKS_HTTP_PATH")
	cfg.Token = os.Getenv("DATABRICKS_TOKEN")
	cfg.Catalog = os.Getenv("DATABRICKS_CATALOG")
	cfg.Schema = os.Getenv("DATABRICKS_SCHEMA")

	positive := func(key string, dst *int) bool {
		v := os.Getenv(key)
		if v == "" {
			return false
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			if invalid != nil {
				invalid(key, fmt.Sprintf("%q is not a positive integer", v))
			}
			return false
		}
		*dst = n
		return true
	}

	positive("DATABRICKS_PORT", &cfg.Port)
	if positive("DATABRICKS_MAX_CONNS", &cfg.MaxOpenConns) {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}

	return cfg
}

// NormalizeHost strips the scheme and trailing slash from a workspace URL.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimRight(host, "/")
}

// Validate checks if the config has required fields set.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("warehouse host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid warehouse port: %d", c.Port)
	}
	if c.HTTPPath == "" {
		return fmt.Errorf("warehouse http path is required")
	}
	if c.Token == "" {
		return fmt.Errorf("warehouse token is required")
	}
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("max open connections must be positive, got %d", c.MaxOpenConns)
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max idle connections (%d) must be <= max open connections (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// Open creates the bounded connection pool. Connections are established
// lazily; call Ping to verify reachability.
// The caller is responsible for calling db.Close() when done.
func Open(cfg *Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	connector, err := dbsql.NewConnector(connectorOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create connector: %w", err)
	}

	db := sql.OpenDB(connector)
	ApplyPoolLimits(db, cfg)
	return db, nil
}

// connectorOptions maps cfg onto driver options. The driver's own HTTP
// retries are turned off: launch.RetryPolicy is the only retry layer.
func connectorOptions(cfg *Config) []dbsql.ConnOption {
	opts := []dbsql.ConnOption{
		dbsql.WithServerHostname(cfg.Host),
		dbsql.WithPort(cfg.Port),
		dbsql.WithHTTPPath(cfg.HTTPPath),
		dbsql.WithAccessToken(cfg.Token),
		dbsql.WithUserAgentEntry("launchbot"),
		dbsql.WithRetries(-1, 0, 0),
	}
	if cfg.Catalog != "" || cfg.Schema != "" {
		opts = append(opts, dbsql.WithInitialNamespace(cfg.Catalog, cfg.Schema))
	}
	if cfg.QueryTimeout > 0 {
		opts = append(opts, dbsql.WithTimeout(cfg.QueryTimeout))
	}
	if cfg.MaxRows > 0 {
		opts = append(opts, dbsql.WithMaxRows(cfg.MaxRows))
	}
	return opts
}

// ApplyPoolLimits bounds db according to cfg.
func ApplyPoolLimits(db *sql.DB, cfg *Config) {
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

// Close gracefully closes a pool if it is not nil.
func Close(db *sql.DB) {
	if db != nil {
		db.Close()
	}
}

// BindParam converts a launch query parameter into a typed Databricks
// parameter, so DATE values bind as DATE rather than STRING.
func BindParam(p launch.Param) any {
	t := dbsql.SqlString
	if p.Type == launch.ParamTypeDate {
		t = dbsql.SqlDate
	}
	return dbsql.Parameter{Name: p.Name, Type: t, Value: p.Value}
}
