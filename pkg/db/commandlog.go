package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CommandRecord is one handled slash command.
type CommandRecord struct {
	UserID       string
	ChannelID    string
	Command      string
	LaunchDate   *time.Time
	BatchID      string
	ResponseTime time.Duration
	Success      bool
	ErrorCode    string
}

// CommandSummary aggregates the command log over a trailing window.
type CommandSummary struct {
	PeriodDays      int            `json:"period_days"`
	TotalCommands   int            `json:"total_commands"`
	Successful      int            `json:"successful_commands"`
	SuccessRate     float64        `json:"success_rate"`
	UniqueUsers     int            `json:"unique_users"`
	AvgResponseMs   float64        `json:"avg_response_ms"`
	CommandCounts   map[string]int `json:"command_breakdown"`
	ErrorCodeCounts map[string]int `json:"error_breakdown"`
}

// CommandLog records handled commands and reports on them.
type CommandLog interface {
	Record(ctx context.Context, rec CommandRecord) error
	Summary(ctx context.Context, days int) (*CommandSummary, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// PostgresCommandLog implements CommandLog on the command_log table.
type PostgresCommandLog struct {
	db *pgxpool.Pool
}

// NewPostgresCommandLog creates a command log backed by pool.
func NewPostgresCommandLog(pool *pgxpool.Pool) *PostgresCommandLog {
	return &PostgresCommandLog{db: pool}
}

// Record inserts one command row.
func (l *PostgresCommandLog) Record(ctx context.Context, rec CommandRecord) error {
	query := `
		INSERT INTO command_log (
			user_id, channel_id, command, launch_date, batch_id,
			response_ms, success, error_code
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := l.db.Exec(ctx, query,
		rec.UserID,
		rec.ChannelID,
		rec.Command,
		rec.LaunchDate,
		nullableString(rec.BatchID),
		rec.ResponseTime.Milliseconds(),
		rec.Success,
		rec.ErrorCode,
	)
	if err != nil {
		return fmt.Errorf("recording command: %w", err)
	}
	return nil
}

// Summary aggregates the last days of commands.
func (l *PostgresCommandLog) Summary(ctx context.Context, days int) (*CommandSummary, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	summary := &CommandSummary{
		PeriodDays:      days,
		CommandCounts:   map[string]int{},
		ErrorCodeCounts: map[string]int{},
	}

	var avg *float64
	err := l.db.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE success),
			COUNT(DISTINCT user_id),
			AVG(response_ms)::float8
		FROM command_log
		WHERE created_at >= $1
	`, cutoff).Scan(&summary.TotalCommands, &summary.Successful, &summary.UniqueUsers, &avg)
	if err != nil {
		return nil, fmt.Errorf("summarizing commands: %w", err)
	}
	if avg != nil {
		summary.AvgResponseMs = *avg
	}
	summary.SuccessRate = successRate(summary.Successful, summary.TotalCommands)

	rows, err := l.db.Query(ctx, `
		SELECT command, error_code, COUNT(*)
		FROM command_log
		WHERE created_at >= $1
		GROUP BY command, error_code
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("command breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var command, code string
		var n int
		if err := rows.Scan(&command, &code, &n); err != nil {
			return nil, fmt.Errorf("scanning breakdown: %w", err)
		}
		summary.CommandCounts[command] += n
		if code != "" {
			summary.ErrorCodeCounts[code] += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("command breakdown: %w", err)
	}

	return summary, nil
}

// Cleanup deletes command rows and status snapshots older than retention.
func (l *PostgresCommandLog) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %s", retention)
	}
	cutoff := time.Now().UTC().Add(-retention)

	var deleted int64
	for _, table := range []string{"command_log", "launch_status_snapshots"} {
		tag, err := l.db.Exec(ctx, "DELETE FROM "+table+" WHERE created_at < $1", cutoff)
		if err != nil {
			return deleted, fmt.Errorf("cleaning %s: %w", table, err)
		}
		deleted += tag.RowsAffected()
	}
	return deleted, nil
}

// successRate returns the success percentage, 0 when there were no commands.
func successRate(successful, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(successful) / float64(total)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
