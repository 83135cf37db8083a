package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Health is what /health reports for the command log database.
type Health struct {
	Latency           time.Duration
	TotalConns        int32
	AcquiredConns     int32
	IdleConns         int32
	PendingMigrations []string
}

// Ping checks if the database is reachable.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}
	return pool.Ping(ctx)
}

// CheckHealth pings pool and lists the embedded migrations it has not
// applied. Pending migrations are reported, not treated as a failure:
// `serve --skip-migrations` runs that way on purpose.
func CheckHealth(ctx context.Context, pool *pgxpool.Pool) (*Health, error) {
	start := time.Now()
	if err := Ping(ctx, pool); err != nil {
		return nil, err
	}
	h := &Health{Latency: time.Since(start)}

	stat := pool.Stat()
	h.TotalConns = stat.TotalConns()
	h.AcquiredConns = stat.AcquiredConns()
	h.IdleConns = stat.IdleConns()

	pending, err := GetPendingMigrations(ctx, pool, EmbeddedMigrations())
	if err != nil {
		return h, fmt.Errorf("reading migration status: %w", err)
	}
	h.PendingMigrations = make([]string, 0, len(pending))
	for _, m := range pending {
		h.PendingMigrations = append(h.PendingMigrations, m.Version)
	}
	return h, nil
}

// Details flattens h for the /health body.
func (h *Health) Details() map[string]any {
	if h == nil {
		return nil
	}
	return map[string]any{
		"total_conns":        h.TotalConns,
		"acquired_conns":     h.AcquiredConns,
		"idle_conns":         h.IdleConns,
		"pending_migrations": h.PendingMigrations,
	}
}
