package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	lberrors "github.com/otherjamesbrown/launchbot/pkg/errors"
	"github.com/otherjamesbrown/launchbot/pkg/launch"
	"github.com/otherjamesbrown/launchbot/pkg/logging"
	"github.com/otherjamesbrown/launchbot/pkg/observability"
)

func testInput() Input {
	pct := 50.0
	updated := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	return Input{
		LaunchDate: "2024-03-15",
		Statuses: []launch.DepartmentStatus{
			{Department: launch.DepartmentBOM, CompletionPercentage: &pct, LastUpdated: &updated, RawRowCount: 2, Completed: 1, Pending: 1},
			{Department: launch.DepartmentMFE},
			{Department: launch.DepartmentPPAP, Err: lberrors.NewDepartmentError("ppap", context.DeadlineExceeded, 1)},
		},
		Departments: []Department{
			{
				Key:     launch.DepartmentBOM,
				Columns: []string{"part_number", "status"},
				Rows:    []launch.Row{{"part_number": "P-1", "status": "complete"}, {"part_number": "P-2", "status": "open"}},
			},
			{Key: launch.DepartmentMFE},
		},
	}
}

func TestSummaryValues(t *testing.T) {
	in := testInput()
	values := SummaryValues(in.LaunchDate, time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC), in.Statuses)

	require.Len(t, values, 10)
	assert.Equal(t, []interface{}{"Launch Date:", "2024-03-15"}, values[2])
	assert.Equal(t, []interface{}{"Generated:", "2024-03-10 09:30:00"}, values[3])
	assert.Equal(t, SummaryHeader, values[6])
	assert.Equal(t, []interface{}{"BOM", 2, 1, 1, "50.0%", "2024-03-02 08:00:00", ""}, values[7])
	assert.Equal(t, []interface{}{"MFE", 0, 0, 0, "", "", ""}, values[8])
	assert.Equal(t, "PPAP", values[9][0])
	assert.NotEmpty(t, values[9][6])
	assert.Equal(t, "", values[9][4])
}

func TestDepartmentValues(t *testing.T) {
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	rows := []launch.Row{
		{"b": []byte("raw"), "a": ts, "c": nil},
		{"a": 3.5, "b": true, "d": struct{ X int }{1}},
	}

	values := DepartmentValues([]string{"a", "b", "c"}, rows)
	assert.Equal(t, []interface{}{"a", "b", "c"}, values[0])
	assert.Equal(t, []interface{}{"2024-03-01 08:00:00", "raw", ""}, values[1])
	assert.Equal(t, []interface{}{3.5, true, ""}, values[2])

	inferred := DepartmentValues(nil, rows)
	assert.Equal(t, []interface{}{"a", "b", "c", "d"}, inferred[0])
	assert.Equal(t, "{1}", inferred[2][3])

	assert.Equal(t, [][]interface{}{{"No Data Available"}}, DepartmentValues(nil, nil))
}

func TestTitles(t *testing.T) {
	assert.Equal(t, "Vehicle Program Dashboard - 2024-03-15", Title("2024-03-15"))
	assert.Equal(t, "4P_Status", DepartmentSheet(launch.DepartmentFourP))
}

// fakeGoogle records the API calls made against it.
type fakeGoogle struct {
	mu       sync.Mutex
	calls    []string
	bodies   map[string][]byte
	template   []string
	failPerm   bool
	failValues bool
	failClear  bool
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	key := r.Method + " " + r.URL.Path

	f.mu.Lock()
	f.calls = append(f.calls, key)
	if f.bodies == nil {
		f.bodies = map[string][]byte{}
	}
	f.bodies[key] = body
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case (f.failValues && strings.HasSuffix(key, "/values:batchUpdate")) ||
		(f.failClear && strings.HasSuffix(key, "/values:batchClear")):
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend error"}}`))
	case key == "POST /v4/spreadsheets":
		_, _ = w.Write([]byte(`{"spreadsheetId":"new-id","spreadsheetUrl":"https://docs.google.com/spreadsheets/d/new-id/edit"}`))
	case key == "POST /drive/v3/files/tmpl-id/copy":
		_, _ = w.Write([]byte(`{"id":"copy-id"}`))
	case key == "GET /v4/spreadsheets/copy-id":
		var sheets []string
		for _, t := range f.template {
			sheets = append(sheets, `{"properties":{"title":"`+t+`"}}`)
		}
		_, _ = w.Write([]byte(`{"sheets":[` + strings.Join(sheets, ",") + `]}`))
	case strings.HasSuffix(key, "/permissions"):
		if f.failPerm {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"forbidden"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"perm"}`))
	default:
		_, _ = w.Write([]byte(`{}`))
	}
}

func (f *fakeGoogle) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestWriter(t *testing.T, fake *fakeGoogle, cfg Config, opts ...Option) *Writer {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	ctx := context.Background()
	sheetsSvc, err := gsheets.NewService(ctx, option.WithEndpoint(server.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	driveSvc, err := drive.NewService(ctx, option.WithEndpoint(server.URL+"/drive/v3/"), option.WithoutAuthentication())
	require.NoError(t, err)

	w := NewWithServices(sheetsSvc, driveSvc, cfg, logging.NewNopLogger(), opts...)
	w.now = func() time.Time { return time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC) }
	return w
}

func TestWriter_CreateBlank(t *testing.T) {
	fake := &fakeGoogle{}
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	w := newTestWriter(t, fake, Config{ShareDomain: "example.com"}, WithMetrics(metrics))

	dash, err := w.Create(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, "new-id", dash.SpreadsheetID)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/new-id/edit", dash.URL)
	assert.Equal(t, []string{
		"POST /v4/spreadsheets",
		"POST /v4/spreadsheets/new-id/values:batchUpdate",
		"POST /drive/v3/files/new-id/permissions",
	}, fake.called())

	var created gsheets.Spreadsheet
	require.NoError(t, json.Unmarshal(fake.bodies["POST /v4/spreadsheets"], &created))
	assert.Equal(t, "Vehicle Program Dashboard - 2024-03-15", created.Properties.Title)
	require.Len(t, created.Sheets, 2, "only departments with rows get a sheet")
	assert.Equal(t, "Summary", created.Sheets[0].Properties.Title)
	assert.Equal(t, "BOM_Status", created.Sheets[1].Properties.Title)

	var values gsheets.BatchUpdateValuesRequest
	require.NoError(t, json.Unmarshal(fake.bodies["POST /v4/spreadsheets/new-id/values:batchUpdate"], &values))
	assert.Equal(t, "RAW", values.ValueInputOption)
	require.Len(t, values.Data, 2)
	assert.Equal(t, "'BOM_Status'!A1", values.Data[1].Range)

	var perm drive.Permission
	require.NoError(t, json.Unmarshal(fake.bodies["POST /drive/v3/files/new-id/permissions"], &perm))
	assert.Equal(t, "domain", perm.Type)
	assert.Equal(t, "example.com", perm.Domain)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DashboardsTotal.WithLabelValues("success")))
}

func TestWriter_CreateFromTemplate(t *testing.T) {
	fake := &fakeGoogle{template: []string{"Summary", "Charts"}}
	w := newTestWriter(t, fake, Config{TemplateID: "tmpl-id"})

	dash, err := w.Create(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, "copy-id", dash.SpreadsheetID)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/copy-id/edit", dash.URL)
	assert.Equal(t, []string{
		"POST /drive/v3/files/tmpl-id/copy",
		"GET /v4/spreadsheets/copy-id",
		"POST /v4/spreadsheets/copy-id:batchUpdate",
		"POST /v4/spreadsheets/copy-id/values:batchClear",
		"POST /v4/spreadsheets/copy-id/values:batchUpdate",
	}, fake.called())

	var add gsheets.BatchUpdateSpreadsheetRequest
	require.NoError(t, json.Unmarshal(fake.bodies["POST /v4/spreadsheets/copy-id:batchUpdate"], &add))
	require.Len(t, add.Requests, 1)
	assert.Equal(t, "BOM_Status", add.Requests[0].AddSheet.Properties.Title)
}

func TestWriter_ShareFailure(t *testing.T) {
	fake := &fakeGoogle{failPerm: true}
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	w := newTestWriter(t, fake, Config{ShareAnyone: true}, WithMetrics(metrics))

	_, err := w.Create(context.Background(), testInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share dashboard with anyone")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DashboardsTotal.WithLabelValues("error")))
	assert.Contains(t, fake.called(), "DELETE /drive/v3/files/new-id", "half-written dashboard is deleted")
}

func TestWriter_DeletesIncompleteDashboard(t *testing.T) {
	tests := []struct {
		name    string
		fake    *fakeGoogle
		cfg     Config
		wantErr string
		deleted string
	}{
		{"values write fails", &fakeGoogle{failValues: true}, Config{}, "write dashboard values", "new-id"},
		{"template clear fails", &fakeGoogle{template: []string{"Summary"}, failClear: true}, Config{TemplateID: "tmpl-id"}, "clear template sheets", "copy-id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWriter(t, tt.fake, tt.cfg)

			dash, err := w.Create(context.Background(), testInput())
			require.Error(t, err)
			assert.Nil(t, dash)
			assert.Contains(t, err.Error(), tt.wantErr)

			calls := tt.fake.called()
			assert.Equal(t, "DELETE /drive/v3/files/"+tt.deleted, calls[len(calls)-1])
		})
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials file")
}
