package launch

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	lberrors "github.com/otherjamesbrown/launchbot/pkg/errors"
)

// DateLayout is the only accepted launch date format.
const DateLayout = "2006-01-02"

// LaunchDateParam is the name of the bound launch date parameter.
const LaunchDateParam = "launch_date"

var strictDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseLaunchDate accepts exactly YYYY-MM-DD naming a real calendar date.
func ParseLaunchDate(s string) (time.Time, error) {
	if !strictDatePattern.MatchString(s) {
		return time.Time{}, &lberrors.InvalidDateError{Input: s}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &lberrors.InvalidDateError{Input: s}
	}
	return t, nil
}

// Builder turns a department spec and a launch date into a parameterized query.
type Builder struct {
	catalog *Catalog
}

// NewBuilder creates a builder over an immutable catalog.
func NewBuilder(catalog *Catalog) *Builder {
	return &Builder{catalog: catalog}
}

// Build validates launchDate and returns the department's query request.
// The template holds quoted identifiers and the :launch_date placeholder only.
func (b *Builder) Build(spec DepartmentQuerySpec, launchDate string) (QueryRequest, error) {
	date, err := ParseLaunchDate(launchDate)
	if err != nil {
		return QueryRequest{}, err
	}
	return b.BuildDate(spec, date)
}

// BuildDate is Build for an already parsed launch date.
func (b *Builder) BuildDate(spec DepartmentQuerySpec, date time.Time) (QueryRequest, error) {
	if problems := validateSpec(spec); len(problems) > 0 {
		return QueryRequest{}, fmt.Errorf("build %s query: %s", spec.Key, strings.Join(problems, "; "))
	}

	cols := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = quoteIdentifier(c)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.catalog.QualifiedTable(spec.Table))
	sb.WriteString(" WHERE ")
	sb.WriteString(quoteIdentifier(spec.DateColumn))
	sb.WriteString(" = :")
	sb.WriteString(LaunchDateParam)

	return QueryRequest{
		Department: spec.Key,
		LaunchDate: date,
		Template:   sb.String(),
		Params: []Param{
			{Name: LaunchDateParam, Type: ParamTypeDate, Value: date.Format(DateLayout)},
		},
	}, nil
}

// BuildAll builds one request per catalog department, in reporting order.
// An invalid date fails before any request is produced.
func (b *Builder) BuildAll(launchDate string) ([]QueryRequest, error) {
	date, err := ParseLaunchDate(launchDate)
	if err != nil {
		return nil, err
	}

	reqs := make([]QueryRequest, 0, len(b.catalog.departments))
	for _, spec := range b.catalog.departments {
		req, err := b.BuildDate(spec, date)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
