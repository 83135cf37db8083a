package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/launchbot/config"
	lberrors "github.com/otherjamesbrown/launchbot/pkg/errors"
	"github.com/otherjamesbrown/launchbot/pkg/launch"
	"github.com/otherjamesbrown/launchbot/pkg/summarizer"
	"github.com/otherjamesbrown/launchbot/pkg/warehouse"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// DepartmentView is one department in `launchbot status` output.
type DepartmentView struct {
	Department           string   `json:"department"`
	Title                string   `json:"title"`
	TotalItems           int      `json:"total_items"`
	Completed            int      `json:"completed"`
	Pending              int      `json:"pending"`
	CompletionPercentage *float64 `json:"completion_percentage"`
	LastUpdated          string   `json:"last_updated,omitempty"`
	ErrorCode            string   `json:"error_code,omitempty"`
	Error                string   `json:"error,omitempty"`
	SuggestedAction      string   `json:"suggested_action,omitempty"`
}

// StatusView is the `launchbot status` result.
type StatusView struct {
	BatchID     string           `json:"batch_id"`
	LaunchDate  string           `json:"launch_date"`
	DurationMs  int64            `json:"duration_ms"`
	Failed      int              `json:"failed"`
	Departments []DepartmentView `json:"departments"`
	Analysis    string           `json:"analysis,omitempty"`
}

// NewStatusView converts a batch report for display.
func NewStatusView(report *launch.BatchReport, analysis string) StatusView {
	v := StatusView{
		BatchID:     report.BatchID,
		LaunchDate:  report.LaunchDateString(),
		DurationMs:  report.Duration.Milliseconds(),
		Failed:      report.Failed(),
		Departments: make([]DepartmentView, 0, len(report.Statuses)),
		Analysis:    analysis,
	}
	for _, s := range report.Statuses {
		d := DepartmentView{
			Department:           string(s.Department),
			Title:                s.Department.Title(),
			TotalItems:           s.RawRowCount,
			Completed:            s.Completed,
			Pending:              s.Pending,
			CompletionPercentage: s.CompletionPercentage,
		}
		if s.LastUpdated != nil {
			d.LastUpdated = s.LastUpdated.Format(launch.DateLayout)
		}
		if s.Err != nil {
			d.ErrorCode = string(s.Err.Code)
			d.Error = s.Err.UserMessage()
			d.SuggestedAction = lberrors.GetSuggestedAction(s.Err.Code)
		}
		v.Departments = append(v.Departments, d)
	}
	return v
}

// NewStatusCommand creates the 'status' command.
func NewStatusCommand(deps *Deps) *cobra.Command {
	var (
		output  string
		analyze bool
	)

	cmd := &cobra.Command{
		Use:   "status <launch-date>",
		Short: "Query every department for a launch date",
		Long: `Query every department for a launch date and print the results.

Runs the same batch as the /vehicle slash command: one query per department,
bounded by LAUNCHBOT_MAX_PARALLEL and LAUNCHBOT_BATCH_TIMEOUT. Departments
that fail are shown with their error and a suggested fix; the others are
shown as usual.

The launch date must be YYYY-MM-DD.

Flags:
  --output    Output format: text, json (default: text)
  --analyze   Add the AI analysis (requires AI_PROVIDER credentials)`,
		Example: `  launchbot status 2024-03-15
  launchbot status 2024-03-15 --output json
  launchbot status 2024-03-15 --analyze`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format := config.OutputFormat(output)
			if !format.IsValid() {
				return fmt.Errorf("invalid output format %q: use text or json", output)
			}
			return runStatus(cmd.Context(), deps, cmd.OutOrStdout(), args[0], format, analyze)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", string(config.OutputFormatText), "Output format: text, json")
	cmd.Flags().BoolVar(&analyze, "analyze", false, "Include the AI analysis")

	return cmd
}

func runStatus(ctx context.Context, deps *Deps, out io.Writer, launchDate string, format config.OutputFormat, analyze bool) error {
	if _, err := launch.ParseLaunchDate(launchDate); err != nil {
		return err
	}

	cfg, err := deps.loadConfig(false)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	wh, err := deps.OpenWarehouse(cfg.Warehouse)
	if err != nil {
		return fmt.Errorf("opening warehouse: %w", err)
	}
	defer warehouse.Close(wh)

	report, err := deps.newRunner(cfg, wh, logger, nil, nil).Run(ctx, launchDate)
	if err != nil {
		return err
	}

	var analysis string
	if analyze {
		provider, err := summarizer.NewProvider(ctx, cfg.Summarizer)
		if err != nil {
			return fmt.Errorf("creating summarizer: %w", err)
		}
		// A failed analysis still yields a notice, which is printed instead.
		analysis, _ = summarizer.New(provider, cfg.Summarizer, logger).
			Summarize(ctx, launchDate, report.Statuses)
	}

	view := NewStatusView(report, analysis)
	if format == config.OutputFormatJSON {
		return writeJSON(out, view)
	}
	return renderStatusText(out, view)
}

// renderStatusText prints view as an aligned table.
func renderStatusText(out io.Writer, v StatusView) error {
	cols := []struct {
		title string
		width int
	}{
		{"DEPARTMENT", 12}, {"COMPLETE", 10}, {"ITEMS", 7}, {"DONE", 6}, {"PENDING", 9}, {"UPDATED", 12}, {"NOTE", 0},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("Launch status for"), v.LaunchDate)
	fmt.Fprintf(&b, "%s\n\n", mutedStyle.Render(fmt.Sprintf("batch %s in %s", v.BatchID, formatDurationMs(v.DurationMs))))

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = headerStyle.Width(c.width).Render(c.title)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, header...) + "\n")

	for _, d := range v.Departments {
		pct, note, style := "-", "", okStyle
		switch {
		case d.ErrorCode != "":
			pct, note, style = "error", d.Error, errStyle
		case d.CompletionPercentage == nil:
			note, style = "no items for this launch date", mutedStyle
		default:
			pct = fmt.Sprintf("%.1f%%", *d.CompletionPercentage)
			if *d.CompletionPercentage < 100 {
				style = warnStyle
			}
		}
		updated := d.LastUpdated
		if updated == "" {
			updated = "-"
		}

		cells := []string{
			strings.ToUpper(d.Department),
			pct,
			fmt.Sprint(d.TotalItems),
			fmt.Sprint(d.Completed),
			fmt.Sprint(d.Pending),
			updated,
			truncate(note, 60),
		}
		row := make([]string, len(cells))
		for i, c := range cells {
			s := lipgloss.NewStyle().Width(cols[i].width)
			if i == 1 || i == len(cells)-1 {
				s = s.Inherit(style)
			}
			row[i] = s.Render(c)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, row...) + "\n")
	}

	if v.Failed > 0 {
		fmt.Fprintf(&b, "\n%s\n", errStyle.Render(fmt.Sprintf("%d of %d departments could not be read.", v.Failed, len(v.Departments))))
		for _, d := range v.Departments {
			if d.SuggestedAction != "" {
				fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render(strings.ToUpper(d.Department)+":"), d.SuggestedAction)
			}
		}
	}
	if v.Analysis != "" {
		fmt.Fprintf(&b, "\n%s\n%s\n", headerStyle.Render("Analysis"), v.Analysis)
	}

	_, err := io.WriteString(out, b.String())
	return err
}

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case lberrors.IsInvalidDate(err), lberrors.IsConfiguration(err):
		return 2
	default:
		return 1
	}
}
