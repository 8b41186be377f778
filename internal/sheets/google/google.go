package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Column layout of the transactions sheet, A to H.
var header = []any{"ID", "Date", "Title", "Category", "Amount", "Type", "Notes", "Updated"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.Sheet = (*Client)(nil)

type Config struct {
	SpreadsheetID string
	// SheetName defaults to "Transactions".
	SheetName string
	// CredentialsJSON wins over CredentialsFile. With neither set,
	// GOOGLE_APPLICATION_CREDENTIALS is read.
	CredentialsJSON string
	CredentialsFile string
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", cfg.SpreadsheetID)
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an existing service, for custom endpoints and tests.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Transactions"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: strings.TrimSpace(sheetName)}
}

func credentials(cfg Config) ([]byte, error) {
	if js := strings.TrimSpace(cfg.CredentialsJSON); js != "" {
		return []byte(js), nil
	}
	file := strings.TrimSpace(cfg.CredentialsFile)
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

// AppendTransactions writes one row per transaction after the last used row.
// The header row is written first when the sheet is empty.
func (c *Client) AppendTransactions(ctx context.Context, list []core.Transaction) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(list) == 0 {
		return "", nil
	}

	ids, err := c.readColumn(ctx, "A:A")
	if err != nil {
		return "", err
	}
	values := make([][]any, 0, len(list)+1)
	if len(ids) == 0 {
		values = append(values, header)
	}
	for _, t := range list {
		values = append(values, toRow(t))
	}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.a1("A:H"), &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}
	if resp.Updates != nil {
		return resp.Updates.UpdatedRange, nil
	}
	return c.a1("A:H"), nil
}

// ListIDs returns the ids in column A, skipping the header.
func (c *Client) ListIDs(ctx context.Context) ([]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	col, err := c.readColumn(ctx, "A:A")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(col))
	for i, v := range col {
		if i == 0 && strings.EqualFold(v, fmt.Sprint(header[0])) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Client) readColumn(ctx context.Context, cols string) ([]string, error) {
	rng := c.a1(cols)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	var out []string
	for _, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if v := strings.TrimSpace(fmt.Sprint(row[0])); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// a1 builds an A1 range, quoting the sheet name.
func (c *Client) a1(cols string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(c.sheetName, "'", "''"), cols)
}

func toRow(t core.Transaction) []any {
	kind := "Income"
	if t.IsExpense {
		kind = "Expense"
	}
	notes := ""
	if t.Notes != nil {
		notes = *t.Notes
	}
	return []any{
		t.ID,
		t.Date.UTC().Format("2006-01-02"),
		t.Title,
		t.Category,
		t.DisplayAmount().String(),
		kind,
		notes,
		t.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}
