// Package session keeps each chat user's most recent launch batch so that
// follow-up commands such as /dashboard can reuse it without re-querying.
package session

import (
	"context"
	"fmt"
	"time"

	lberrors "github.com/otherjamesbrown/launchbot/pkg/errors"
	"github.com/otherjamesbrown/launchbot/pkg/launch"
)

// DefaultTTL is how long a session survives without being refreshed.
const DefaultTTL = 24 * time.Hour

// Store persists sessions keyed by chat user ID.
type Store interface {
	Save(ctx context.Context, s *Session) error
	// Load returns an error matching lberrors.ErrNotFound when the user has
	// no live session.
	Load(ctx context.Context, userID string) (*Session, error)
	Delete(ctx context.Context, userID string) error
}

// Session is the serializable record of one user's last batch.
type Session struct {
	UserID      string       `json:"user_id"`
	LaunchDate  string       `json:"launch_date"`
	BatchID     string       `json:"batch_id"`
	CreatedAt   time.Time    `json:"created_at"`
	Departments []Department `json:"departments"`
}

// Department is one department's status and raw rows as stored in a session.
type Department struct {
	Key                  launch.DepartmentKey `json:"key"`
	CompletionPercentage *float64             `json:"completion_percentage,omitempty"`
	LastUpdated          *time.Time           `json:"last_updated,omitempty"`
	TotalItems           int                  `json:"total_items"`
	Completed            int                  `json:"completed"`
	Pending              int                  `json:"pending"`
	ErrorCode            string               `json:"error_code,omitempty"`
	ErrorMessage         string               `json:"error_message,omitempty"`
	Columns              []string             `json:"columns,omitempty"`
	Rows                 []launch.Row         `json:"rows,omitempty"`
}

// FromReport builds the session for userID from a finished batch.
func FromReport(userID string, report *launch.BatchReport) *Session {
	s := &Session{
		UserID:     userID,
		LaunchDate: report.LaunchDateString(),
		BatchID:    report.BatchID,
		CreatedAt:  time.Now().UTC(),
	}

	for _, st := range report.Statuses {
		d := Department{
			Key:                  st.Department,
			CompletionPercentage: st.CompletionPercentage,
			LastUpdated:          st.LastUpdated,
			TotalItems:           st.RawRowCount,
			Completed:            st.Completed,
			Pending:              st.Pending,
		}
		if st.Err != nil {
			d.ErrorCode = string(st.Err.Code)
			d.ErrorMessage = st.Err.UserMessage()
		}
		if res, ok := report.Result(st.Department); ok && res.Success {
			d.Columns = res.Columns
			d.Rows = res.Rows
		}
		s.Departments = append(s.Departments, d)
	}
	return s
}

// Statuses rebuilds the department statuses. Errors come back without their
// original cause, which is never stored.
func (s *Session) Statuses() []launch.DepartmentStatus {
	out := make([]launch.DepartmentStatus, 0, len(s.Departments))
	for _, d := range s.Departments {
		st := launch.DepartmentStatus{
			Department:           d.Key,
			CompletionPercentage: d.CompletionPercentage,
			LastUpdated:          d.LastUpdated,
			RawRowCount:          d.TotalItems,
			Completed:            d.Completed,
			Pending:              d.Pending,
		}
		if d.ErrorCode != "" {
			st.Err = &lberrors.DepartmentError{
				Department: string(d.Key),
				Code:       lberrors.ErrorCode(d.ErrorCode),
				Message:    d.ErrorMessage,
			}
		}
		out = append(out, st)
	}
	return out
}

// Department returns the stored department for key.
func (s *Session) Department(key launch.DepartmentKey) (Department, bool) {
	for _, d := range s.Departments {
		if d.Key == key {
			return d, true
		}
	}
	return Department{}, false
}

func notFound(userID string) error {
	return fmt.Errorf("session for %s: %w", userID, lberrors.ErrNotFound)
}
