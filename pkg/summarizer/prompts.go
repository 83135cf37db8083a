package summarizer

import (
	"fmt"
	"strings"

	"github.com/otherjamesbrown/launchbot/pkg/launch"
)

// SystemPrompt frames the model as a launch readiness analyst.
const SystemPrompt = `You are an expert vehicle program launch analyst. Analyze launch data from
multiple departments, give clear and actionable insights, identify risks and
opportunities, and suggest next steps.

Focus on:
- Bill of Material (BOM) status and completeness
- Master Parts List (MPL) readiness
- Material Flow Engineering (MFE) optimization
- 4P (People, Process, Place, Product) alignment
- PPAP (Production Part Approval Process) compliance

Highlight critical issues that need immediate attention. Keep the answer
short enough for a chat message.`

// BuildPrompt lists each department's counts, or its error, for launchDate.
// Only schema-safe error messages are included.
func BuildPrompt(launchDate string, statuses []launch.DepartmentStatus) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze the vehicle program launch data for launch date: %s\n\n", launchDate)
	b.WriteString("Department status summary:\n")
	for _, s := range statuses {
		fmt.Fprintf(&b, "\n%s (%s):\n", s.Department.Label(), s.Department.Title())
		if s.Err != nil {
			fmt.Fprintf(&b, "  - Error: %s\n", s.Err.UserMessage())
			continue
		}
		fmt.Fprintf(&b, "  - Total items: %d\n", s.RawRowCount)
		fmt.Fprintf(&b, "  - Completed: %d\n", s.Completed)
		fmt.Fprintf(&b, "  - Pending: %d\n", s.Pending)
		if s.CompletionPercentage != nil {
			fmt.Fprintf(&b, "  - Completion: %.1f%%\n", *s.CompletionPercentage)
		} else {
			b.WriteString("  - Completion: no data\n")
		}
		if s.LastUpdated != nil {
			fmt.Fprintf(&b, "  - Last updated: %s\n", s.LastUpdated.Format(launch.DateLayout))
		}
	}

	b.WriteString(`
Please provide:
1. Overall program health assessment
2. Department-specific insights and recommendations
3. Critical risks and mitigation strategies
4. Next steps, with timeline recommendations for delayed items
`)
	return b.String()
}
