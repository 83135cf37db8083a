package launch

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is safe to embed as a quoted identifier.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

func quoteIdentifier(s string) string {
	return "`" + s + "`"
}

// Catalog is the immutable department configuration shared by the builder,
// formatter and runner. Build it with NewCatalog.
type Catalog struct {
	catalog     string
	schema      string
	departments []DepartmentQuerySpec
}

// NewCatalog validates every identifier and returns a catalog holding exactly
// the five departments in reporting order. catalog may be empty for engines
// without three-part names.
func NewCatalog(catalog, schema string, specs []DepartmentQuerySpec) (*Catalog, error) {
	var problems []string

	if catalog != "" && !ValidIdentifier(catalog) {
		problems = append(problems, fmt.Sprintf("catalog %q is not a valid identifier", catalog))
	}
	if !ValidIdentifier(schema) {
		problems = append(problems, fmt.Sprintf("schema %q is not a valid identifier", schema))
	}

	byKey := make(map[DepartmentKey]DepartmentQuerySpec, len(specs))
	for _, s := range specs {
		if !s.Key.IsValid() {
			problems = append(problems, fmt.Sprintf("unknown department %q", s.Key))
			continue
		}
		if _, dup := byKey[s.Key]; dup {
			problems = append(problems, fmt.Sprintf("department %s configured twice", s.Key))
			continue
		}
		problems = append(problems, validateSpec(s)...)
		byKey[s.Key] = s
	}

	ordered := make([]DepartmentQuerySpec, 0, len(AllDepartments()))
	for _, key := range AllDepartments() {
		s, ok := byKey[key]
		if !ok {
			problems = append(problems, fmt.Sprintf("department %s is not configured", key))
			continue
		}
		ordered = append(ordered, cloneSpec(s))
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid department catalog: %s", strings.Join(problems, "; "))
	}

	return &Catalog{catalog: catalog, schema: schema, departments: ordered}, nil
}

func validateSpec(s DepartmentQuerySpec) []string {
	var problems []string
	check := func(what, id string) {
		if !ValidIdentifier(id) {
			problems = append(problems, fmt.Sprintf("%s: %s %q is not a valid identifier", s.Key, what, id))
		}
	}

	check("table", s.Table)
	check("date column", s.DateColumn)
	if len(s.Columns) == 0 {
		problems = append(problems, fmt.Sprintf("%s: no columns configured", s.Key))
	}
	for _, c := range s.Columns {
		check("column", c)
	}
	if s.Completion.Column != "" {
		check("completion column", s.Completion.Column)
		if !containsColumn(s.Columns, s.Completion.Column) {
			problems = append(problems, fmt.Sprintf("%s: completion column %q is not selected", s.Key, s.Completion.Column))
		}
	}
	if s.TimestampColumn != "" {
		check("timestamp column", s.TimestampColumn)
		if !containsColumn(s.Columns, s.TimestampColumn) {
			problems = append(problems, fmt.Sprintf("%s: timestamp column %q is not selected", s.Key, s.TimestampColumn))
		}
	}
	return problems
}

func containsColumn(cols []string, c string) bool {
	for _, col := range cols {
		if col == c {
			return true
		}
	}
	return false
}

func cloneSpec(s DepartmentQuerySpec) DepartmentQuerySpec {
	s.Columns = append([]string(nil), s.Columns...)
	s.Completion.Values = append([]string(nil), s.Completion.Values...)
	return s
}

// Name returns the catalog name, possibly empty.
func (c *Catalog) Name() string { return c.catalog }

// Schema returns the schema name.
func (c *Catalog) Schema() string { return c.schema }

// Departments returns a copy of the department specs in reporting order.
func (c *Catalog) Departments() []DepartmentQuerySpec {
	out := make([]DepartmentQuerySpec, len(c.departments))
	for i, s := range c.departments {
		out[i] = cloneSpec(s)
	}
	return out
}

// Department returns the spec for key.
func (c *Catalog) Department(key DepartmentKey) (DepartmentQuerySpec, bool) {
	for _, s := range c.departments {
		if s.Key == key {
			return cloneSpec(s), true
		}
	}
	return DepartmentQuerySpec{}, false
}

// QualifiedTable returns the quoted, dot-separated table reference.
func (c *Catalog) QualifiedTable(table string) string {
	parts := make([]string, 0, 3)
	if c.catalog != "" {
		parts = append(parts, quoteIdentifier(c.catalog))
	}
	parts = append(parts, quoteIdentifier(c.schema), quoteIdentifier(table))
	return strings.Join(parts, ".")
}

// DefaultCompletionValues are the status values counted as completed when a
// department does not override them.
var DefaultCompletionValues = []string{"complete", "completed", "done", "approved", "closed"}

// DefaultDepartments returns the stock column layout for each department,
// with tables taken from tables. Missing tables are left empty and fail
// NewCatalog validation.
func DefaultDepartments(tables map[DepartmentKey]string) []DepartmentQuerySpec {
	completion := func() CompletionRule {
		return CompletionRule{Column: "status", Values: append([]string(nil), DefaultCompletionValues...)}
	}

	return []DepartmentQuerySpec{
		{
			Key:             DepartmentBOM,
			Table:           tables[DepartmentBOM],
			DateColumn:      "launch_date",
			Columns:         []string{"part_number", "part_name", "status", "completion_percentage", "last_updated"},
			Completion:      completion(),
			TimestampColumn: "last_updated",
		},
		{
			Key:        DepartmentMPL,
			Table:      tables[DepartmentMPL],
			DateColumn: "launch_date",
			Columns:    []string{"part_id", "part_description", "status", "supplier_info", "lead_time"},
			Completion: completion(),
		},
		{
			Key:        DepartmentMFE,
			Table:      tables[DepartmentMFE],
			DateColumn: "launch_date",
			Columns:    []string{"flow_id", "process_step", "status", "cycle_time", "efficiency_rating"},
			Completion: completion(),
		},
		{
			Key:        DepartmentFourP,
			Table:      tables[DepartmentFourP],
			DateColumn: "launch_date",
			Columns:    []string{"process_id", "process_name", "status", "people_assigned", "place_location", "product_impact"},
			Completion: completion(),
		},
		{
			Key:             DepartmentPPAP,
			Table:           tables[DepartmentPPAP],
			DateColumn:      "launch_date",
			Columns:         []string{"ppap_id", "submission_level", "status", "approval_date", "comments"},
			Completion:      completion(),
			TimestampColumn: "approval_date",
		},
	}
}
