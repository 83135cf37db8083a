package launch

import (
	"strings"
	"time"
)

// timestampLayouts are tried in order when a timestamp column arrives as text.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	DateLayout,
}

// Formatter reduces query results to department statuses.
type Formatter struct {
	catalog *Catalog
}

// NewFormatter creates a formatter over an immutable catalog.
func NewFormatter(catalog *Catalog) *Formatter {
	return &Formatter{catalog: catalog}
}

// Format converts one result into a status. It has no side effects.
func (f *Formatter) Format(result QueryResult) DepartmentStatus {
	status := DepartmentStatus{
		Department:  result.Department,
		RawRowCount: len(result.Rows),
	}

	if !result.Success || result.Err != nil {
		status.RawRowCount = 0
		status.Err = result.Err
		return status
	}
	if len(result.Rows) == 0 {
		return status
	}

	spec, _ := f.catalog.Department(result.Department)

	completed := 0
	if spec.Completion.Column != "" {
		for _, row := range result.Rows {
			if spec.Completion.Matches(row[spec.Completion.Column]) {
				completed++
			}
		}
	}
	status.Completed = completed
	status.Pending = len(result.Rows) - completed

	pct := 100 * float64(completed) / float64(len(result.Rows))
	status.CompletionPercentage = &pct

	if spec.TimestampColumn != "" {
		var latest time.Time
		for _, row := range result.Rows {
			ts, ok := parseTimestamp(row[spec.TimestampColumn])
			if ok && ts.After(latest) {
				latest = ts
			}
		}
		if !latest.IsZero() {
			status.LastUpdated = &latest
		}
	}

	return status
}

// FormatAll formats results in order.
func (f *Formatter) FormatAll(results []QueryResult) []DepartmentStatus {
	out := make([]DepartmentStatus, len(results))
	for i, r := range results {
		out[i] = f.Format(r)
	}
	return out
}

func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		return parseTimestampString(t)
	case []byte:
		return parseTimestampString(string(t))
	}
	return time.Time{}, false
}

func parseTimestampString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
