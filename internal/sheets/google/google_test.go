package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets serves the two Values endpoints the client uses.
type fakeSheets struct {
	mu   sync.Mutex
	rows [][]any
	gets int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		start := len(f.rows) + 1
		f.rows = append(f.rows, vr.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"spreadsheetId": "sheet-1",
			"updates": map[string]any{
				"updatedRange": "Transactions!A" + strconv.Itoa(start) + ":H" + strconv.Itoa(len(f.rows)),
				"updatedRows":  len(vr.Values),
			},
		})
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/values/"):
		f.gets++
		col := make([][]any, 0, len(f.rows))
		for _, row := range f.rows {
			col = append(col, row[:1])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"range": "Transactions!A:A", "majorDimension": "ROWS", "values": col})
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return NewWithService(svc, "sheet-1", ""), fake
}

func tx(id string, cents int64, expense bool) core.Transaction {
	return core.Transaction{
		ID:        id,
		Title:     "Title " + id,
		Amount:    core.Money{Cents: cents},
		Category:  "Food",
		Date:      time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		IsExpense: expense,
		UpdatedAt: time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC),
	}
}

func TestAppendTransactionsWritesHeaderOnce(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	ref, err := c.AppendTransactions(ctx, []core.Transaction{tx("a", 12550, true)})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "Transactions!A1:H2" {
		t.Fatalf("unexpected range %q", ref)
	}
	if _, err := c.AppendTransactions(ctx, []core.Transaction{tx("b", 500000, false)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if len(fake.rows) != 3 || fake.rows[0][0] != "ID" {
		t.Fatalf("expected header plus two rows, got %v", fake.rows)
	}
	if fake.rows[1][4] != "-125.50" || fake.rows[1][5] != "Expense" || fake.rows[1][1] != "2025-02-03" {
		t.Fatalf("unexpected expense row: %v", fake.rows[1])
	}
	if fake.rows[2][4] != "5000.00" || fake.rows[2][5] != "Income" {
		t.Fatalf("unexpected income row: %v", fake.rows[2])
	}

	ids, err := c.ListIDs(ctx)
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	if strings.Join(ids, ",") != "a,b" {
		t.Fatalf("ids = %v", ids)
	}
}

func TestPublisherOverSheetsSkipsPresentRows(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	p := sheets.NewPublisher(c)

	accepted, err := p.Publish(ctx, []core.Transaction{tx("a", 100, true), tx("b", 200, true)})
	if err != nil || len(accepted) != 2 {
		t.Fatalf("first publish: %v %v", accepted, err)
	}
	// A retried batch must not duplicate rows.
	accepted, err = p.Publish(ctx, []core.Transaction{tx("b", 200, true), tx("c", 300, true)})
	if err != nil || len(accepted) != 2 {
		t.Fatalf("second publish: %v %v", accepted, err)
	}
	if len(fake.rows) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(fake.rows))
	}
}

func TestA1QuotesSheetName(t *testing.T) {
	c := NewWithService(nil, "id", "Owner's ledger")
	if got := c.a1("A:A"); got != "'Owner''s ledger'!A:A" {
		t.Fatalf("a1 = %q", got)
	}
}

func TestNilServiceFails(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if _, err := c.AppendTransactions(context.Background(), []core.Transaction{tx("a", 1, true)}); err == nil {
		t.Fatal("expected error with nil service")
	}
	if _, err := c.ListIDs(context.Background()); err == nil {
		t.Fatal("expected error with nil service")
	}
}

func TestNewRequiresSpreadsheetAndCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	if _, err := New(context.Background(), Config{}); err == nil || !strings.Contains(err.Error(), "GOOGLE_SPREADSHEET_ID") {
		t.Fatalf("expected missing spreadsheet error, got %v", err)
	}
	if _, err := New(context.Background(), Config{SpreadsheetID: "x"}); err == nil || !strings.Contains(err.Error(), "credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
	if _, err := New(context.Background(), Config{SpreadsheetID: "x", CredentialsFile: "/does/not/exist.json"}); err == nil {
		t.Fatal("expected read error")
	}
}
