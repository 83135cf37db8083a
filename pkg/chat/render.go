package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/otherjamesbrown/launchbot/pkg/launch"
)

// StatusLine renders one department as a single mrkdwn line.
func StatusLine(s launch.DepartmentStatus) string {
	name := fmt.Sprintf("*%s* (%s)", s.Department.Label(), s.Department.Title())

	if s.Err != nil {
		return fmt.Sprintf(":red_circle: %s: %s", name, s.Err.UserMessage())
	}
	if s.CompletionPercentage == nil {
		return fmt.Sprintf(":white_circle: %s: no items found for this launch date", name)
	}

	icon := ":large_yellow_circle:"
	if *s.CompletionPercentage >= 100 {
		icon = ":large_green_circle:"
	}
	line := fmt.Sprintf("%s %s: %.1f%% complete (%d of %d, %d pending)",
		icon, name, *s.CompletionPercentage, s.Completed, s.RawRowCount, s.Pending)
	if s.LastUpdated != nil {
		line += ", last updated " + s.LastUpdated.Format(launch.DateLayout)
	}
	return line
}

// RenderReport renders a finished batch with the AI analysis underneath.
func RenderReport(launchDate string, statuses []launch.DepartmentStatus, analysis string) slack.Msg {
	lines := make([]string, len(statuses))
	failed := 0
	for i, s := range statuses {
		lines[i] = StatusLine(s)
		if !s.OK() {
			failed++
		}
	}

	title := "Vehicle Program Status for " + launchDate
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, title, false, false)),
		mrkdwnSection(strings.Join(lines, "\n")),
	}
	if failed > 0 {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("%d of %d departments could not be read. The others are shown as usual.", failed, len(statuses)),
				false, false)))
	}
	if analysis != "" {
		blocks = append(blocks,
			slack.NewDividerBlock(),
			mrkdwnSection("*Analysis*\n"+analysis))
	}
	blocks = append(blocks, slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, "Use `/dashboard` to export this report to Google Sheets.", false, false)))

	return inChannel(title+"\n"+strings.Join(lines, "\n"), blocks...)
}

// RenderUsage explains how to pass a launch date.
func RenderUsage() slack.Msg {
	return ephemeral("Please provide a launch date in YYYY-MM-DD format.\nExample: `/vehicle 2024-03-15`")
}

// RenderInvalidDate reports a date-shaped token that is not a real calendar date.
func RenderInvalidDate(input string) slack.Msg {
	return ephemeral(fmt.Sprintf("`%s` is not a valid date. Use YYYY-MM-DD, e.g. `/vehicle 2024-03-15`.", input))
}

// RenderAck is the immediate reply while a batch runs.
func RenderAck(launchDate string) slack.Msg {
	return ephemeral(fmt.Sprintf(":mag: Querying vehicle program status for launch date %s. Gathering data from all departments...", launchDate))
}

// RenderDashboardAck is the immediate reply while a dashboard is written.
func RenderDashboardAck() slack.Msg {
	return ephemeral(":bar_chart: Creating dashboard. This may take a few moments.")
}

// RenderDashboard links a created dashboard.
func RenderDashboard(launchDate, url string) slack.Msg {
	text := fmt.Sprintf(":bar_chart: *Dashboard created for %s*\n<%s|Open the dashboard>\nIt has a summary sheet and one sheet per department.", launchDate, url)
	return inChannel(text, mrkdwnSection(text))
}

// RenderNoSession asks the user to run /vehicle first.
func RenderNoSession() slack.Msg {
	return ephemeral("Please query a vehicle program with `/vehicle YYYY-MM-DD` before creating a dashboard.")
}

// RenderNotConfigured reports a feature the deployment has not set up.
func RenderNotConfigured(feature string) slack.Msg {
	return ephemeral(fmt.Sprintf("%s is not configured for this workspace. Contact your administrator.", feature))
}

// RenderError is the generic failure reply. It never includes internals.
func RenderError() slack.Msg {
	return ephemeral(":x: Something went wrong while processing your request. Please try again or contact support if the issue persists.")
}

// RenderRateLimited asks the user to slow down.
func RenderRateLimited() slack.Msg {
	return ephemeral("You are sending commands too quickly. Please wait a moment and try again.")
}

// RenderRestarting answers commands that arrive while the bot shuts down.
func RenderRestarting() slack.Msg {
	return ephemeral("The bot is restarting. Please try again in a minute.")
}

// RenderHelp lists the commands.
func RenderHelp() slack.Msg {
	text := strings.Join([]string{
		"*Vehicle Program Launch Bot*",
		"",
		"`/vehicle YYYY-MM-DD` - launch readiness for every department, with an AI analysis",
		"`/dashboard` - export your last `/vehicle` report to Google Sheets",
		"`/status` - bot health and recent activity",
		"`/help` - this message",
		"",
		"*Departments:* Bill of Material (BOM), Master Parts List (MPL), Material Flow Engineering (MFE), 4P (People, Process, Place, Product), PPAP (Production Part Approval Process)",
	}, "\n")
	return ephemeral(text)
}

// SystemStatus is what /status reports.
type SystemStatus struct {
	Uptime      time.Duration
	Environment string
	Version     string

	// Activity is nil when no command log is configured.
	Activity *Activity

	DatabaseConfigured  bool
	SessionsPersistent  bool
	SummarizerEnabled   bool
	DashboardsEnabled   bool
	WarehouseReachable  bool
	WarehouseCheckError string
}

// Activity summarizes recent commands.
type Activity struct {
	Days          int
	TotalCommands int
	SuccessRate   float64
	AvgResponseMs float64
}

// RenderStatus renders the /status reply.
func RenderStatus(s SystemStatus) slack.Msg {
	var b strings.Builder
	b.WriteString("*System Status*\n")
	fmt.Fprintf(&b, "Uptime: %s\n", s.Uptime.Truncate(time.Second))
	fmt.Fprintf(&b, "Environment: %s\n", s.Environment)
	fmt.Fprintf(&b, "Version: %s\n", s.Version)

	if s.Activity != nil {
		fmt.Fprintf(&b, "\n*Recent activity (%d days)*\n", s.Activity.Days)
		fmt.Fprintf(&b, "Total commands: %d\n", s.Activity.TotalCommands)
		fmt.Fprintf(&b, "Success rate: %.1f%%\n", s.Activity.SuccessRate)
		fmt.Fprintf(&b, "Avg response time: %.0fms\n", s.Activity.AvgResponseMs)
	}

	b.WriteString("\n*Configuration*\n")
	warehouse := check(s.WarehouseReachable)
	if !s.WarehouseReachable && s.WarehouseCheckError != "" {
		warehouse += " " + s.WarehouseCheckError
	}
	fmt.Fprintf(&b, "Warehouse: %s\n", warehouse)
	fmt.Fprintf(&b, "Command log: %s\n", check(s.DatabaseConfigured))
	fmt.Fprintf(&b, "Persistent sessions: %s\n", check(s.SessionsPersistent))
	fmt.Fprintf(&b, "AI analysis: %s\n", check(s.SummarizerEnabled))
	fmt.Fprintf(&b, "Dashboards: %s", check(s.DashboardsEnabled))

	return ephemeral(b.String())
}

func check(ok bool) string {
	if ok {
		return ":white_check_mark:"
	}
	return ":x:"
}

func mrkdwnSection(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func ephemeral(text string) slack.Msg {
	return slack.Msg{
		ResponseType: slack.ResponseTypeEphemeral,
		Text:         text,
		Blocks:       slack.Blocks{BlockSet: []slack.Block{mrkdwnSection(text)}},
	}
}

func inChannel(text string, blocks ...slack.Block) slack.Msg {
	return slack.Msg{
		ResponseType: slack.ResponseTypeInChannel,
		Text:         text,
		Blocks:       slack.Blocks{BlockSet: blocks},
	}
}
