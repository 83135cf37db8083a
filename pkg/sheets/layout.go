package sheets

import (
	"fmt"
	"sort"
	"time"

	"github.com/otherjamesbrown/launchbot/pkg/launch"
)

// SummarySheet is the title of the overview sheet.
const SummarySheet = "Summary"

// SummaryHeader is the column header row of the department table.
var SummaryHeader = []interface{}{"Department", "Total Items", "Completed", "Pending", "Completion %", "Last Updated", "Error"}

// Title returns the spreadsheet title for a launch date.
func Title(launchDate string) string {
	return "Vehicle Program Dashboard - " + launchDate
}

// DepartmentSheet returns the per-department sheet title, e.g. "BOM_Status".
func DepartmentSheet(key launch.DepartmentKey) string {
	return key.Label() + "_Status"
}

// SummaryValues lays out the Summary sheet: title block, then one row per
// department in the order given.
func SummaryValues(launchDate string, generated time.Time, statuses []launch.DepartmentStatus) [][]interface{} {
	values := [][]interface{}{
		{"Vehicle Program Launch Dashboard"},
		{""},
		{"Launch Date:", launchDate},
		{"Generated:", generated.UTC().Format("2006-01-02 15:04:05")},
		{""},
		{"Department Status Summary"},
		SummaryHeader,
	}

	for _, s := range statuses {
		pct := ""
		if s.CompletionPercentage != nil {
			pct = fmt.Sprintf("%.1f%%", *s.CompletionPercentage)
		}
		updated := ""
		if s.LastUpdated != nil {
			updated = s.LastUpdated.UTC().Format("2006-01-02 15:04:05")
		}
		errText := ""
		if s.Err != nil {
			errText = s.Err.UserMessage()
		}
		values = append(values, []interface{}{
			s.Department.Label(),
			s.RawRowCount,
			s.Completed,
			s.Pending,
			pct,
			updated,
			errText,
		})
	}
	return values
}

// DepartmentValues lays out one department's raw rows under a header. When
// columns is empty the header is the sorted union of row keys.
func DepartmentValues(columns []string, rows []launch.Row) [][]interface{} {
	if len(columns) == 0 {
		columns = rowKeys(rows)
	}
	if len(columns) == 0 {
		return [][]interface{}{{"No Data Available"}}
	}

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	values := [][]interface{}{header}

	for _, row := range rows {
		line := make([]interface{}, len(columns))
		for i, c := range columns {
			line[i] = cellValue(row[c])
		}
		values = append(values, line)
	}
	return values
}

func rowKeys(rows []launch.Row) []string {
	seen := map[string]bool{}
	var keys []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// cellValue converts a scanned value into something the Sheets API accepts.
func cellValue(v any) interface{} {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.UTC().Format("2006-01-02 15:04:05")
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04:05")
	case []byte:
		return string(t)
	case string, bool, int, int32, int64, float32, float64:
		return t
	default:
		return fmt.Sprint(t)
	}
}
