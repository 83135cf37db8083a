// Package sheets writes a launch batch to a Google Sheets dashboard: a
// Summary sheet plus one sheet of raw rows per department.
package sheets

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/otherjamesbrown/launchbot/pkg/launch"
	"github.com/otherjamesbrown/launchbot/pkg/logging"
	"github.com/otherjamesbrown/launchbot/pkg/observability"
)

// Config configures the dashboard writer.
type Config struct {
	// CredentialsFile is a service account key file.
	CredentialsFile string
	// TemplateID, when set, is copied instead of creating a blank spreadsheet.
	TemplateID string
	// ShareDomain grants read access to every user of a Google Workspace domain.
	ShareDomain string
	// ShareAnyone grants read access to anyone with the link.
	ShareAnyone bool
}

// Enabled reports whether credentials are configured.
func (c Config) Enabled() bool {
	return c.CredentialsFile != ""
}

// Department carries one department's raw rows for its sheet.
type Department struct {
	Key     launch.DepartmentKey
	Columns []string
	Rows    []launch.Row
}

// Input is everything a dashboard shows.
type Input struct {
	LaunchDate  string
	Statuses    []launch.DepartmentStatus
	Departments []Department
}

// Dashboard identifies a written spreadsheet.
type Dashboard struct {
	SpreadsheetID string
	URL           string
}

// Writer creates dashboards.
type Writer struct {
	sheets  *gsheets.Service
	drive   *drive.Service
	cfg     Config
	logger  logging.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	now     func() time.Time
}

// Option customizes a Writer.
type Option func(*Writer)

// WithMetrics records a counter per dashboard.
func WithMetrics(m *observability.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// WithTracer records a span per dashboard.
func WithTracer(t *observability.Tracer) Option {
	return func(w *Writer) { w.tracer = t }
}

// New creates a writer authenticated with the configured service account.
func New(ctx context.Context, cfg Config, logger logging.Logger, opts ...Option) (*Writer, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("google sheets credentials file is required")
	}

	cred := option.WithAuthCredentialsFile(option.ServiceAccount, cfg.CredentialsFile)
	scopes := option.WithScopes(gsheets.SpreadsheetsScope, drive.DriveFileScope)

	sheetsSvc, err := gsheets.NewService(ctx, cred, scopes)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	driveSvc, err := drive.NewService(ctx, cred, scopes)
	if err != nil {
		return nil, fmt.Errorf("create drive client: %w", err)
	}
	return NewWithServices(sheetsSvc, driveSvc, cfg, logger, opts...), nil
}

// NewWithServices creates a writer on prebuilt API clients. driveSvc may be
// nil, which disables template copies and sharing.
func NewWithServices(sheetsSvc *gsheets.Service, driveSvc *drive.Service, cfg Config, logger logging.Logger, opts ...Option) *Writer {
	if logger == nil {
		logger = logging.Global()
	}
	w := &Writer{
		sheets: sheetsSvc,
		drive:  driveSvc,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create writes in to a new spreadsheet and returns where it lives.
func (w *Writer) Create(ctx context.Context, in Input) (dash *Dashboard, err error) {
	if w.tracer != nil {
		var span observability.Span
		ctx, span = w.tracer.StartDashboardSpan(ctx, in.LaunchDate)
		defer span.End()
	}
	defer func() { w.metrics.ObserveDashboard(err) }()

	log := w.logger.WithContext(ctx)

	titles := []string{SummarySheet}
	data := []*gsheets.ValueRange{{
		Range:  a1(SummarySheet),
		Values: SummaryValues(in.LaunchDate, w.now(), in.Statuses),
	}}
	for _, d := range in.Departments {
		if len(d.Rows) == 0 {
			continue
		}
		title := DepartmentSheet(d.Key)
		titles = append(titles, title)
		data = append(data, &gsheets.ValueRange{Range: a1(title), Values: DepartmentValues(d.Columns, d.Rows)})
	}

	dash, err = w.spreadsheet(ctx, Title(in.LaunchDate), titles)
	if err != nil {
		return nil, err
	}
	id := dash.SpreadsheetID
	defer func() {
		if err != nil {
			w.discard(ctx, id)
		}
	}()

	_, err = w.sheets.Spreadsheets.Values.BatchUpdate(dash.SpreadsheetID, &gsheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("write dashboard values: %w", err)
	}

	if err := w.share(ctx, dash.SpreadsheetID); err != nil {
		return nil, err
	}

	log.Info("dashboard created",
		logging.F("spreadsheet_id", dash.SpreadsheetID),
		logging.F("sheets", len(titles)))
	return dash, nil
}

// spreadsheet returns a spreadsheet containing every sheet in titles, either
// copied from the template or newly created.
func (w *Writer) spreadsheet(ctx context.Context, title string, titles []string) (*Dashboard, error) {
	if w.cfg.TemplateID == "" || w.drive == nil {
		props := make([]*gsheets.Sheet, len(titles))
		for i, t := range titles {
			props[i] = &gsheets.Sheet{Properties: &gsheets.SheetProperties{Title: t}}
		}
		created, err := w.sheets.Spreadsheets.Create(&gsheets.Spreadsheet{
			Properties: &gsheets.SpreadsheetProperties{Title: title},
			Sheets:     props,
		}).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("create spreadsheet: %w", err)
		}
		return &Dashboard{SpreadsheetID: created.SpreadsheetId, URL: spreadsheetURL(created.SpreadsheetId, created.SpreadsheetUrl)}, nil
	}

	copied, err := w.drive.Files.Copy(w.cfg.TemplateID, &drive.File{Name: title}).Fields("id").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("copy dashboard template: %w", err)
	}

	dash, err := w.prepareCopy(ctx, copied.Id, titles)
	if err != nil {
		w.discard(ctx, copied.Id)
		return nil, err
	}
	return dash, nil
}

// prepareCopy adds the sheets titles needs to a template copy and clears
// the ones it already has.
func (w *Writer) prepareCopy(ctx context.Context, id string, titles []string) (*Dashboard, error) {
	existing, err := w.sheets.Spreadsheets.Get(id).Fields("spreadsheetUrl", "sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read copied template: %w", err)
	}

	have := map[string]bool{}
	for _, s := range existing.Sheets {
		if s.Properties != nil {
			have[s.Properties.Title] = true
		}
	}

	var requests []*gsheets.Request
	var clear []string
	for _, t := range titles {
		if have[t] {
			clear = append(clear, a1(t))
			continue
		}
		requests = append(requests, &gsheets.Request{
			AddSheet: &gsheets.AddSheetRequest{Properties: &gsheets.SheetProperties{Title: t}},
		})
	}

	if len(requests) > 0 {
		if _, err := w.sheets.Spreadsheets.BatchUpdate(id, &gsheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do(); err != nil {
			return nil, fmt.Errorf("add dashboard sheets: %w", err)
		}
	}
	if len(clear) > 0 {
		if _, err := w.sheets.Spreadsheets.Values.BatchClear(id, &gsheets.BatchClearValuesRequest{Ranges: clear}).Context(ctx).Do(); err != nil {
			return nil, fmt.Errorf("clear template sheets: %w", err)
		}
	}

	return &Dashboard{SpreadsheetID: id, URL: spreadsheetURL(id, existing.SpreadsheetUrl)}, nil
}

// discard deletes a spreadsheet left half written by a failed Create. If
// that fails too, the ID is logged so it can be removed by hand.
func (w *Writer) discard(ctx context.Context, id string) {
	log := w.logger.WithContext(ctx).With(logging.F("spreadsheet_id", id))
	if w.drive == nil {
		log.Warn("incomplete dashboard left in place")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := w.drive.Files.Delete(id).Context(ctx).Do(); err != nil {
		log.Warn("could not delete incomplete dashboard", logging.Err(err))
		return
	}
	log.Info("deleted incomplete dashboard")
}

func (w *Writer) share(ctx context.Context, id string) error {
	if w.drive == nil {
		return nil
	}

	var perms []*drive.Permission
	if w.cfg.ShareDomain != "" {
		perms = append(perms, &drive.Permission{Type: "domain", Domain: w.cfg.ShareDomain, Role: "reader"})
	}
	if w.cfg.ShareAnyone {
		perms = append(perms, &drive.Permission{Type: "anyone", Role: "reader"})
	}

	for _, p := range perms {
		if _, err := w.drive.Permissions.Create(id, p).Context(ctx).Do(); err != nil {
			return fmt.Errorf("share dashboard with %s: %w", p.Type, err)
		}
	}
	return nil
}

func a1(sheet string) string {
	return fmt.Sprintf("'%s'!A1", sheet)
}

func spreadsheetURL(id, url string) string {
	if url != "" {
		return url
	}
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit", id)
}
