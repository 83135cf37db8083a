// Package launch builds, executes and formats the per-department launch status
// queries behind the /vehicle command.
//
// The flow for one launch date is Builder (once per department), Executor
// (bounded, concurrent), then Formatter once every department has a result.
// User input only ever reaches the warehouse as a bound parameter.
package launch

import (
	"fmt"
	"strings"
	"time"

	lberrors "github.com/otherjamesbrown/launchbot/pkg/errors"
)

// DepartmentKey identifies one of the five launch departments.
type DepartmentKey string

const (
	DepartmentBOM   DepartmentKey = "bom"
	DepartmentMPL   DepartmentKey = "mpl"
	DepartmentMFE   DepartmentKey = "mfe"
	DepartmentFourP DepartmentKey = "4p"
	DepartmentPPAP  DepartmentKey = "ppap"
)

// AllDepartments returns the department keys in reporting order.
func AllDepartments() []DepartmentKey {
	return []DepartmentKey{
		DepartmentBOM,
		DepartmentMPL,
		DepartmentMFE,
		DepartmentFourP,
		DepartmentPPAP,
	}
}

// IsValid reports whether k is one of the known departments.
func (k DepartmentKey) IsValid() bool {
	switch k {
	case DepartmentBOM, DepartmentMPL, DepartmentMFE, DepartmentFourP, DepartmentPPAP:
		return true
	}
	return false
}

// Label returns the short upper-case label used in chat and sheet output.
func (k DepartmentKey) Label() string {
	return strings.ToUpper(string(k))
}

// Title returns the full department name.
func (k DepartmentKey) Title() string {
	switch k {
	case DepartmentBOM:
		return "Bill of Material"
	case DepartmentMPL:
		return "Master Parts List"
	case DepartmentMFE:
		return "Material Flow Engineering"
	case DepartmentFourP:
		return "4P"
	case DepartmentPPAP:
		return "PPAP"
	}
	return string(k)
}

// ParseDepartmentKey converts a user or config string into a DepartmentKey.
func ParseDepartmentKey(s string) (DepartmentKey, error) {
	k := DepartmentKey(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("unknown department %q", s)
	}
	return k, nil
}

// CompletionRule marks a row as completed when Column holds one of Values.
// Values compare case-insensitively after trimming.
type CompletionRule struct {
	Column string   `yaml:"column" json:"column"`
	Values []string `yaml:"values" json:"values"`
}

// Matches reports whether v counts as completed.
func (r CompletionRule) Matches(v any) bool {
	s, ok := stringValue(v)
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	for _, accepted := range r.Values {
		if strings.EqualFold(s, strings.TrimSpace(accepted)) {
			return true
		}
	}
	return false
}

// DepartmentQuerySpec describes how one department's table is queried and
// how its rows reduce to a status. Loaded once at startup.
type DepartmentQuerySpec struct {
	Key             DepartmentKey  `yaml:"key" json:"key"`
	Table           string         `yaml:"table" json:"table"`
	DateColumn      string         `yaml:"date_column" json:"date_column"`
	Columns         []string       `yaml:"columns" json:"columns"`
	Completion      CompletionRule `yaml:"completion" json:"completion"`
	TimestampColumn string         `yaml:"timestamp_column" json:"timestamp_column,omitempty"`
}

// ParamType is the SQL type of a bound parameter.
type ParamType string

const (
	ParamTypeDate   ParamType = "DATE"
	ParamTypeString ParamType = "STRING"
)

// Param is a named, typed query parameter. Value is always bound by the
// driver and never rendered into query text.
type Param struct {
	Name  string
	Type  ParamType
	Value string
}

// QueryRequest is one department's query for one launch date.
// Template holds only trusted identifiers and named placeholders.
type QueryRequest struct {
	Department DepartmentKey
	LaunchDate time.Time
	Template   string
	Params     []Param
}

// Row is a single result row keyed by column name.
type Row map[string]any

// QueryResult is the executor's output for one department.
type QueryResult struct {
	Department DepartmentKey
	Columns    []string
	Rows       []Row
	RowCount   int
	Success    bool
	Err        *lberrors.DepartmentError
	Attempts   int
	Duration   time.Duration
}

// DepartmentStatus is the normalized, read-only status of one department.
// CompletionPercentage and LastUpdated are nil when there is nothing to report.
type DepartmentStatus struct {
	Department           DepartmentKey
	CompletionPercentage *float64
	LastUpdated          *time.Time
	RawRowCount          int
	Completed            int
	Pending              int
	Err                  *lberrors.DepartmentError
}

// OK reports whether the department query succeeded.
func (s DepartmentStatus) OK() bool {
	return s.Err == nil
}

// BatchReport is the outcome of one launch date run across all departments.
// Statuses and Results are in AllDepartments order.
type BatchReport struct {
	BatchID    string
	LaunchDate time.Time
	StartedAt  time.Time
	Duration   time.Duration
	Statuses   []DepartmentStatus
	Results    []QueryResult
}

// LaunchDateString returns the launch date as YYYY-MM-DD.
func (r *BatchReport) LaunchDateString() string {
	return r.LaunchDate.Format(DateLayout)
}

// Failed returns the number of departments that reported an error.
func (r *BatchReport) Failed() int {
	n := 0
	for _, s := range r.Statuses {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Result returns the raw result for a department.
func (r *BatchReport) Result(key DepartmentKey) (QueryResult, bool) {
	for _, res := range r.Results {
		if res.Department == key {
			return res, true
		}
	}
	return QueryResult{}, false
}

func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(t), true
	}
}
