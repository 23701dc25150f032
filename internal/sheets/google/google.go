package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"

	ports "finanzas/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config selects the spreadsheet, its tabs and the credentials. Service
// account credentials win over an OAuth client and token.
type Config struct {
	SpreadsheetID string
	ExpensesSheet string
	IncomesSheet  string

	ServiceAccountJSON string
	ServiceAccountFile string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	tabs          map[ports.Tab]string
	headers       map[ports.Tab][]string

	mu       sync.Mutex
	sheetIDs map[string]int64
}

var _ ports.Mirror = (*Client)(nil)

// New creates a Sheets mirror client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg), nil
}

// NewWithService builds a client around an existing service.
func NewWithService(svc *gsheet.Service, cfg Config) *Client {
	expenses := strings.TrimSpace(cfg.ExpensesSheet)
	if expenses == "" {
		expenses = "Gastos"
	}
	incomes := strings.TrimSpace(cfg.IncomesSheet)
	if incomes == "" {
		incomes = "Ingresos"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		tabs: map[ports.Tab]string{
			ports.TabExpenses: expenses,
			ports.TabIncomes:  incomes,
		},
		headers: map[ports.Tab][]string{
			ports.TabExpenses: ports.ExpenseHeader,
			ports.TabIncomes:  ports.IncomeHeader,
		},
		sheetIDs: make(map[string]int64),
	}
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	saJSON := strings.TrimSpace(cfg.ServiceAccountJSON)
	saFile := strings.TrimSpace(cfg.ServiceAccountFile)
	if saJSON != "" || saFile != "" {
		return newServiceAccountService(ctx, saJSON, saFile)
	}
	return newOAuthService(ctx, cfg)
}

func newServiceAccountService(ctx context.Context, inline, file string) (*gsheet.Service, error) {
	credentialsJSON := []byte(inline)
	if inline == "" {
		slog.InfoContext(ctx, "Reading service account credentials", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "auth", "service_account")
	return svc, nil
}

func newOAuthService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	clientJSON, err := readInlineOrFile(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if clientJSON == nil {
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	oc, err := oauthgoogle.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tokenJSON, err := readInlineOrFile(cfg.OAuthTokenJSON, cfg.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if tokenJSON == nil {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	// Token refreshes go through the pooled transport as well.
	base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(oc.Client(base, &tok)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "auth", "oauth")
	return svc, nil
}

// readInlineOrFile returns nil when neither source is set.
func readInlineOrFile(inline, file string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if f := strings.TrimSpace(file); f != "" {
		return os.ReadFile(f)
	}
	return nil, nil
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API
// with connection pooling and keep-alives.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

func (c *Client) title(tab ports.Tab) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	t, ok := c.tabs[tab]
	if !ok {
		return "", fmt.Errorf("unknown tab %q", tab)
	}
	return t, nil
}

// EnsureHeaders writes the header row of every tab whose first cell is empty.
func (c *Client) EnsureHeaders(ctx context.Context) error {
	for _, tab := range []ports.Tab{ports.TabExpenses, ports.TabIncomes} {
		title, err := c.title(tab)
		if err != nil {
			return err
		}
		rng := fmt.Sprintf("%s!A1:A1", title)
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("read %s: %w", rng, err)
		}
		if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
			continue
		}
		vr := &gsheet.ValueRange{Values: [][]any{toValues(c.headers[tab])}}
		_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("%s!A1", title), vr).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("write header of %s: %w", title, err)
		}
		slog.InfoContext(ctx, "Wrote mirror header", "sheet", title)
	}
	return nil
}

func (c *Client) ReplaceRow(ctx context.Context, tab ports.Tab, key string, row []string) error {
	title, err := c.title(tab)
	if err != nil {
		return err
	}
	if _, err := c.deleteKeyed(ctx, title, key); err != nil {
		return err
	}
	vr := &gsheet.ValueRange{Values: [][]any{toValues(row)}}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, fmt.Sprintf("%s!A:A", title), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row to %s: %w", title, err)
	}
	return nil
}

func (c *Client) DeleteRows(ctx context.Context, tab ports.Tab, key string) (int, error) {
	title, err := c.title(tab)
	if err != nil {
		return 0, err
	}
	return c.deleteKeyed(ctx, title, key)
}

func (c *Client) deleteKeyed(ctx context.Context, title, key string) (int, error) {
	rows, err := c.findRows(ctx, title, key)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	sheetID, err := c.sheetID(ctx, title)
	if err != nil {
		return 0, err
	}

	// Bottom-up so earlier deletions do not shift later indices.
	sort.Sort(sort.Reverse(sort.IntSlice(rows)))
	reqs := make([]*gsheet.Request, 0, len(rows))
	for _, r := range rows {
		reqs = append(reqs, &gsheet.Request{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(r),
					EndIndex:        int64(r + 1),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		})
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("delete rows from %s: %w", title, err)
	}
	return len(rows), nil
}

// findRows returns the zero-based indices of the rows whose column A is key.
func (c *Client) findRows(ctx context.Context, title, key string) ([]int, error) {
	rng := fmt.Sprintf("%s!A:A", title)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	var out []int
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == key {
			out = append(out, i)
		}
	}
	return out, nil
}

func (c *Client) sheetID(ctx context.Context, title string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.sheetIDs[title]; ok {
		return id, nil
	}
	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet properties: %w", err)
	}
	for _, s := range resp.Sheets {
		if s.Properties != nil {
			c.sheetIDs[s.Properties.Title] = s.Properties.SheetId
		}
	}
	id, ok := c.sheetIDs[title]
	if !ok {
		return 0, fmt.Errorf("sheet %q not found in spreadsheet", title)
	}
	return id, nil
}

func toValues(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}
