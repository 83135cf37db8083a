package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Health is what /health reports for the warehouse pool.
type Health struct {
	Latency      time.Duration
	OpenConns    int
	InUse        int
	Idle         int
	MaxOpenConns int
	WaitCount    int64
	WaitDuration time.Duration
}

// CheckHealth pings the warehouse and reports pool usage. Usage is returned
// even when the ping fails.
func CheckHealth(ctx context.Context, db *sql.DB) (*Health, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	start := time.Now()
	err := db.PingContext(ctx)

	stats := db.Stats()
	h := &Health{
		Latency:      time.Since(start),
		OpenConns:    stats.OpenConnections,
		InUse:        stats.InUse,
		Idle:         stats.Idle,
		MaxOpenConns: stats.MaxOpenConnections,
		WaitCount:    stats.WaitCount,
		WaitDuration: stats.WaitDuration,
	}
	return h, err
}

// Details flattens h for the /health body.
func (h *Health) Details() map[string]any {
	if h == nil {
		return nil
	}
	return map[string]any{
		"open_conns":     h.OpenConns,
		"in_use":         h.InUse,
		"idle":           h.Idle,
		"max_open_conns": h.MaxOpenConns,
		"wait_count":     h.WaitCount,
		"wait_ms":        h.WaitDuration.Milliseconds(),
	}
}
