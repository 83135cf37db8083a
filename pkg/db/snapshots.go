package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/launchbot/pkg/launch"
)

// Snapshot is one department's stored status from a past batch.
type Snapshot struct {
	BatchID              string
	Department           launch.DepartmentKey
	LaunchDate           time.Time
	TotalItems           int
	Completed            int
	Pending              int
	CompletionPercentage *float64
	LastUpdated          *time.Time
	ErrorCode            string
	CreatedAt            time.Time
}

// SnapshotsFromReport flattens a batch report into one snapshot per department.
func SnapshotsFromReport(report *launch.BatchReport) []Snapshot {
	out := make([]Snapshot, 0, len(report.Statuses))
	for _, s := range report.Statuses {
		snap := Snapshot{
			BatchID:              report.BatchID,
			Department:           s.Department,
			LaunchDate:           report.LaunchDate,
			TotalItems:           s.RawRowCount,
			Completed:            s.Completed,
			Pending:              s.Pending,
			CompletionPercentage: s.CompletionPercentage,
			LastUpdated:          s.LastUpdated,
		}
		if s.Err != nil {
			snap.ErrorCode = string(s.Err.Code)
		}
		out = append(out, snap)
	}
	return out
}

// SnapshotStore persists batch statuses.
type SnapshotStore interface {
	SaveReport(ctx context.Context, report *launch.BatchReport) error
	Latest(ctx context.Context, launchDate time.Time) ([]Snapshot, error)
}

// PostgresSnapshotStore implements SnapshotStore on launch_status_snapshots.
type PostgresSnapshotStore struct {
	db *pgxpool.Pool
}

// NewPostgresSnapshotStore creates a snapshot store backed by pool.
func NewPostgresSnapshotStore(pool *pgxpool.Pool) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{db: pool}
}

// SaveReport stores every department of report in one batch round trip.
func (s *PostgresSnapshotStore) SaveReport(ctx context.Context, report *launch.BatchReport) error {
	query := `
		INSERT INTO launch_status_snapshots (
			batch_id, department, launch_date, total_items, completed, pending,
			completion_percentage, last_updated, error_code
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (batch_id, department) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, snap := range SnapshotsFromReport(report) {
		batch.Queue(query,
			snap.BatchID,
			string(snap.Department),
			snap.LaunchDate,
			snap.TotalItems,
			snap.Completed,
			snap.Pending,
			snap.CompletionPercentage,
			snap.LastUpdated,
			snap.ErrorCode,
		)
	}

	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("saving snapshots for batch %s: %w", report.BatchID, err)
	}
	return nil
}

// Latest returns the most recent batch stored for launchDate, in reporting order.
// It returns an empty slice when no batch has run for that date.
func (s *PostgresSnapshotStore) Latest(ctx context.Context, launchDate time.Time) ([]Snapshot, error) {
	query := `
		SELECT batch_id::text, department, launch_date, total_items, completed, pending,
			completion_percentage, last_updated, error_code, created_at
		FROM launch_status_snapshots
		WHERE batch_id = (
			SELECT batch_id FROM launch_status_snapshots
			WHERE launch_date = $1
			ORDER BY created_at DESC
			LIMIT 1
		)
	`

	rows, err := s.db.Query(ctx, query, launchDate)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}
	defer rows.Close()

	byKey := make(map[launch.DepartmentKey]Snapshot)
	for rows.Next() {
		var snap Snapshot
		var dept string
		if err := rows.Scan(
			&snap.BatchID, &dept, &snap.LaunchDate, &snap.TotalItems, &snap.Completed, &snap.Pending,
			&snap.CompletionPercentage, &snap.LastUpdated, &snap.ErrorCode, &snap.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snap.Department = launch.DepartmentKey(dept)
		byKey[snap.Department] = snap
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}

	out := make([]Snapshot, 0, len(byKey))
	for _, key := range launch.AllDepartments() {
		if snap, ok := byKey[key]; ok {
			out = append(out, snap)
		}
	}
	return out, nil
}
