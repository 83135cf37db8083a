// Package db stores the command log and launch status history in PostgreSQL.
// Postgres is optional: without DATABASE_URL or DB_HOST the bot runs with
// metrics only.
package db

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	// URL, when set, takes precedence over the discrete fields.
	URL             string
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns the settings used for any DB_* variable left unset.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "launchbot",
		User:            "launchbot",
		SSLMode:         "disable",
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// Enabled reports whether the environment configured a database at all.
func Enabled() bool {
	return os.Getenv("DATABASE_URL") != "" || os.Getenv("DB_HOST") != ""
}

// ConfigFromEnv reads DATABASE_URL and the DB_* variables (DB_HOST, DB_PORT,
// DB_NAME, DB_USER, DB_PASSWORD, DB_SSLMODE, DB_MAX_CONNS, DB_MIN_CONNS,
// DB_CONNECT_TIMEOUT). An unparsable value keeps its default and is passed
// to invalid, which may be nil.
func ConfigFromEnv(invalid func(key, reason string)) *Config {
	if invalid == nil {
		invalid = func(string, string) {}
	}
	cfg := DefaultConfig()

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	count := func(key string, dst *int32) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			invalid(key, fmt.Sprintf("%q is not a connection count", v))
			return
		}
		*dst = int32(n)
	}

	str("DATABASE_URL", &cfg.URL)
	str("DB_HOST", &cfg.Host)
	str("DB_NAME", &cfg.Database)
	str("DB_USER", &cfg.User)
	str("DB_PASSWORD", &cfg.Password)
	str("DB_SSLMODE", &cfg.SSLMode)
	count("DB_MAX_CONNS", &cfg.MaxConns)
	count("DB_MIN_CONNS", &cfg.MinConns)

	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err != nil {
			invalid("DB_PORT", fmt.Sprintf("%q is not a port", v))
		} else {
			cfg.Port = p
		}
	}
	if v := os.Getenv("DB_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			invalid("DB_CONNECT_TIMEOUT", fmt.Sprintf("%q is not a positive duration", v))
		} else {
			cfg.ConnectTimeout = d
		}
	}

	return cfg
}

// ConnectionString returns URL, or a postgres:// URL built from the fields.
func (c *Config) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}

// Validate checks the pool bounds and either the URL or the discrete fields.
func (c *Config) Validate() error {
	if c.MaxConns < c.MinConns {
		return fmt.Errorf("max connections (%d) must be >= min connections (%d)", c.MaxConns, c.MinConns)
	}
	if c.URL != "" {
		if _, err := pgxpool.ParseConfig(c.URL); err != nil {
			return fmt.Errorf("invalid database url: %w", err)
		}
		return nil
	}
	switch {
	case c.Host == "":
		return fmt.Errorf("database host is required")
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid database port: %d", c.Port)
	case c.Database == "":
		return fmt.Errorf("database name is required")
	case c.User == "":
		return fmt.Errorf("database user is required")
	}
	return nil
}

// Connect opens the pool and pings it. The caller closes the pool.
func Connect(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	if cfg.ConnectTimeout > 0 && poolConfig.ConnConfig.ConnectTimeout == 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
