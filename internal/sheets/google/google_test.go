package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	ports "finanzas/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets serves the handful of Sheets API calls the mirror makes.
type fakeSheets struct {
	mu         sync.Mutex
	ids        map[string]int64
	rows       map[string][][]string
	batchCalls int
}

func newFakeSheets() *fakeSheets {
	return &fakeSheets{
		ids:  map[string]int64{"Gastos": 0, "Ingresos": 7},
		rows: map[string][][]string{},
	}
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/sid")
	switch {
	case r.Method == http.MethodGet && path == "":
		var sheets []map[string]any
		for title, id := range f.ids {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": title, "sheetId": id}})
		}
		writeJSON(w, map[string]any{"spreadsheetId": "sid", "sheets": sheets})

	case r.Method == http.MethodPost && path == ":batchUpdate":
		f.batchCalls++
		var req gsheet.BatchUpdateSpreadsheetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, rq := range req.Requests {
			d := rq.DeleteDimension.Range
			title := f.titleOf(d.SheetId)
			rows := f.rows[title]
			start, end := int(d.StartIndex), int(d.EndIndex)
			f.rows[title] = append(rows[:start:start], rows[end:]...)
		}
		writeJSON(w, map[string]any{"spreadsheetId": "sid"})

	case strings.HasPrefix(path, "/values/"):
		rng := strings.TrimPrefix(path, "/values/")
		switch r.Method {
		case http.MethodPost:
			title := sheetOf(strings.TrimSuffix(rng, ":append"))
			for _, row := range decodeRows(r) {
				f.rows[title] = append(f.rows[title], row)
			}
			writeJSON(w, map[string]any{"spreadsheetId": "sid"})
		case http.MethodPut:
			title := sheetOf(rng)
			header := decodeRows(r)[0]
			if len(f.rows[title]) == 0 {
				f.rows[title] = [][]string{header}
			} else {
				f.rows[title][0] = header
			}
			writeJSON(w, map[string]any{"spreadsheetId": "sid"})
		default:
			title := sheetOf(rng)
			rows := f.rows[title]
			if strings.HasSuffix(rng, "A1:A1") && len(rows) > 1 {
				rows = rows[:1]
			}
			values := make([][]any, 0, len(rows))
			for _, row := range rows {
				if len(row) == 0 {
					values = append(values, []any{})
					continue
				}
				values = append(values, []any{row[0]})
			}
			writeJSON(w, map[string]any{"range": rng, "majorDimension": "ROWS", "values": values})
		}

	default:
		http.Error(w, "unexpected call "+r.Method+" "+r.URL.Path, http.StatusNotFound)
	}
}

func (f *fakeSheets) titleOf(id int64) string {
	for title, sid := range f.ids {
		if sid == id {
			return title
		}
	}
	return ""
}

func (f *fakeSheets) column(title string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.rows[title] {
		out = append(out, strings.Join(r, "|"))
	}
	return out
}

func sheetOf(rng string) string {
	title, _, _ := strings.Cut(rng, "!")
	return title
}

func decodeRows(r *http.Request) [][]string {
	var vr gsheet.ValueRange
	_ = json.NewDecoder(r.Body).Decode(&vr)
	out := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		for _, v := range row {
			out[i] = append(out[i], fmt.Sprint(v))
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T) (*Client, *fakeSheets) {
	t.Helper()
	fake := newFakeSheets()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return NewWithService(svc, Config{SpreadsheetID: "sid"}), fake
}

func TestClient_EnsureHeaders(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	if err := c.EnsureHeaders(ctx); err != nil {
		t.Fatalf("ensure headers: %v", err)
	}
	got := fake.column("Gastos")
	if len(got) != 1 || !strings.HasPrefix(got[0], "ID|Titular|Fecha") {
		t.Fatalf("unexpected expenses header: %v", got)
	}
	if got := fake.column("Ingresos"); len(got) != 1 || !strings.HasPrefix(got[0], "ID|Titular|Mes|Tipo") {
		t.Fatalf("unexpected incomes header: %v", got)
	}

	// A second call leaves existing headers alone.
	fake.mu.Lock()
	fake.rows["Gastos"][0] = []string{"custom"}
	fake.mu.Unlock()
	if err := c.EnsureHeaders(ctx); err != nil {
		t.Fatalf("ensure headers again: %v", err)
	}
	if got := fake.column("Gastos"); got[0] != "custom" {
		t.Fatalf("header was rewritten: %v", got)
	}
}

func TestClient_ReplaceRow(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	for _, row := range [][]string{{"a", "1"}, {"b", "2"}, {"a", "1 bis"}} {
		if err := c.ReplaceRow(ctx, ports.TabExpenses, row[0], row); err != nil {
			t.Fatalf("replace %v: %v", row, err)
		}
	}

	got := fake.column("Gastos")
	want := []string{"b|2", "a|1 bis"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("rows = %v, want %v", got, want)
	}
	if fake.batchCalls != 1 {
		t.Errorf("expected one delete batch, got %d", fake.batchCalls)
	}
}

func TestClient_DeleteRowsRemovesDuplicatesBottomUp(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	fake.rows["Ingresos"] = [][]string{{"ID"}, {"x", "1"}, {"y"}, {"x", "2"}, {"z"}}
	n, err := c.DeleteRows(ctx, ports.TabIncomes, "x")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted %d rows, want 2", n)
	}
	if got := strings.Join(fake.column("Ingresos"), ","); got != "ID,y,z" {
		t.Fatalf("rows after delete = %s", got)
	}

	n, err = c.DeleteRows(ctx, ports.TabIncomes, "x")
	if err != nil || n != 0 {
		t.Fatalf("second delete: n=%d err=%v", n, err)
	}
}

func TestClient_UnknownSheet(t *testing.T) {
	fake := newFakeSheets()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	c := NewWithService(svc, Config{SpreadsheetID: "sid", ExpensesSheet: "Otro"})
	fake.rows["Otro"] = [][]string{{"k"}}

	_, err = c.DeleteRows(context.Background(), ports.TabExpenses, "k")
	if err == nil || !strings.Contains(err.Error(), `sheet "Otro" not found`) {
		t.Fatalf("expected missing sheet error, got %v", err)
	}
}

func TestClient_NotInitialized(t *testing.T) {
	c := NewWithService(nil, Config{SpreadsheetID: "sid"})
	err := c.ReplaceRow(context.Background(), ports.TabExpenses, "k", []string{"k"})
	if err == nil || err.Error() != "sheets service not initialized" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDefaultSheetNames(t *testing.T) {
	c := NewWithService(nil, Config{SpreadsheetID: " sid "})
	if c.tabs[ports.TabExpenses] != "Gastos" || c.tabs[ports.TabIncomes] != "Ingresos" {
		t.Errorf("unexpected default tabs: %v", c.tabs)
	}
	if c.spreadsheetID != "sid" {
		t.Errorf("spreadsheet id not trimmed: %q", c.spreadsheetID)
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

const testOAuthClient = `{"installed":{"client_id":"test","client_secret":"test","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`

func TestNewSheetsService_OAuthErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "missing client",
			cfg:  Config{},
			want: "missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)",
		},
		{
			name: "invalid client",
			cfg:  Config{OAuthClientJSON: "invalid-json", OAuthTokenJSON: `{"access_token":"test"}`},
			want: "oauth config",
		},
		{
			name: "missing token",
			cfg:  Config{OAuthClientJSON: testOAuthClient},
			want: "missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)",
		},
		{
			name: "invalid token",
			cfg:  Config{OAuthClientJSON: testOAuthClient, OAuthTokenJSON: "{invalid json}"},
			want: "parse oauth token",
		},
		{
			name: "unreadable service account file",
			cfg:  Config{ServiceAccountFile: "/nonexistent/sa.json"},
			want: "read service account file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newSheetsService(context.Background(), tt.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestNewSheetsService_OAuthToken(t *testing.T) {
	svc, err := newSheetsService(context.Background(), Config{
		OAuthClientJSON: testOAuthClient,
		OAuthTokenJSON:  `{"access_token":"test","token_type":"Bearer"}`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc == nil {
		t.Fatal("expected a service")
	}
}
