// Package storagetest holds the behavioural contract every storage.Store
// backend must satisfy. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// Factory returns a new, unopened store.
type Factory func(t *testing.T) storage.Store

func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"insert and query in insertion order", testInsertOrder},
		{"equality filter", testEqualityFilter},
		{"descending order is stable", testDescendingStable},
		{"between is inclusive", testBetween},
		{"limit", testLimit},
		{"update merges values", testUpdate},
		{"delete by predicate and all", testDelete},
		{"sum with and without matches", testSum},
		{"duplicate id is a constraint violation", testDuplicateID},
		{"missing required column is a constraint violation", testMissingRequired},
		{"unknown table or column is unsupported", testUnsupported},
		{"seeded default categories", testSeededCategories},
		{"null equality", testNullEquality},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			if err := s.Open(context.Background()); err != nil {
				t.Fatalf("open: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}

	t.Run("closed store is unavailable", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Query(ctx, storage.TableTransactions, storage.Query{}); !errors.Is(err, core.ErrStorageUnavailable) {
			t.Fatalf("query before open: expected ErrStorageUnavailable, got %v", err)
		}
		if err := s.Open(ctx); err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		if err := s.Insert(ctx, storage.TableTransactions, TxRow("a", "u", 1, false, day(1))); !errors.Is(err, core.ErrStorageUnavailable) {
			t.Fatalf("insert after close: expected ErrStorageUnavailable, got %v", err)
		}
	})
}

var base = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return base.AddDate(0, 0, n)
}

// TxRow builds a complete transactions row.
func TxRow(id, user string, amount float64, expense bool, date time.Time) storage.Row {
	now := storage.FormatTime(base)
	return storage.Row{
		"id":         id,
		"user_id":    user,
		"title":      "title " + id,
		"amount":     amount,
		"category":   "Other",
		"notes":      nil,
		"date":       storage.FormatTime(date),
		"is_expense": storage.Bool(expense),
		"is_synced":  int64(0),
		"created_at": now,
		"updated_at": now,
	}
}

func mustInsert(t *testing.T, s storage.Store, rows ...storage.Row) {
	t.Helper()
	for _, r := range rows {
		if err := s.Insert(context.Background(), storage.TableTransactions, r); err != nil {
			t.Fatalf("insert %v: %v", r["id"], err)
		}
	}
}

func ids(rows []storage.Row) string {
	out := ""
	for i, r := range rows {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprint(r["id"])
	}
	return out
}

func testInsertOrder(t *testing.T, s storage.Store) {
	mustInsert(t, s, TxRow("b", "u", 1, false, day(3)), TxRow("a", "u", 2, true, day(1)), TxRow("c", "u", 3, false, day(2)))
	rows, err := s.Query(context.Background(), storage.TableTransactions, storage.Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := ids(rows); got != "b,a,c" {
		t.Fatalf("expected insertion order b,a,c, got %s", got)
	}
	r := rows[1]
	if r["amount"] != float64(2) || r["is_expense"] != int64(1) || r["notes"] != nil {
		t.Fatalf("unexpected row values: %#v", r)
	}
	if r["date"] != storage.FormatTime(day(1)) {
		t.Fatalf("unexpected date %v", r["date"])
	}
}

func testEqualityFilter(t *testing.T, s storage.Store) {
	mustInsert(t, s, TxRow("a", "u1", 1, false, day(1)), TxRow("b", "u2", 1, true, day(1)), TxRow("c", "u1", 1, true, day(1)))
	rows, err := s.Query(context.Background(), storage.TableTransactions, storage.Query{
		Where: []storage.Cond{storage.Equal("user_id", "u1"), storage.Equal("is_expense", true)},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := ids(rows); got != "c" {
		t.Fatalf("expected c, got %s", got)
	}
}

func testDescendingStable(t *testing.T, s storage.Store) {
	mustInsert(t, s,
		TxRow("old", "u", 1, false, day(1)),
		TxRow("tie1", "u", 1, false, day(5)),
		TxRow("new", "u", 1, false, day(9)),
		TxRow("tie2", "u", 1, false, day(5)),
		TxRow("oldest", "u", 1, false, day(0)),
	)
	rows, err := s.Query(context.Background(), storage.TableTransactions, storage.Query{OrderBy: "date", Desc: true})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := ids(rows); got != "new,tie1,tie2,old,oldest" {
		t.Fatalf("unexpected order %s", got)
	}
}

func testBetween(t *testing.T, s storage.Store) {
	mustInsert(t, s,
		TxRow("d1", "u", 1, false, day(1)),
		TxRow("d2", "u", 1, false, day(2)),
		TxRow("d3", "u", 1, false, day(3)),
		TxRow("d4", "u", 1, false, day(4)),
	)
	rows, err := s.Query(context.Background(), storage.TableTransactions, storage.Query{
		Where: []storage.Cond{storage.InRange("date", storage.FormatTime(day(2)), storage.FormatTime(day(3)))},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := ids(rows); got != "d2,d3" {
		t.Fatalf("expected d2,d3, got %s", got)
	}
}

func testLimit(t *testing.T, s storage.Store) {
	mustInsert(t, s, TxRow("a", "u", 1, false, day(1)), TxRow("b", "u", 1, false, day(2)), TxRow("c", "u", 1, false, day(3)))
	rows, err := s.Query(context.Background(), storage.TableTransactions, storage.Query{OrderBy: "date", Desc: true, Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := ids(rows); got != "c,b" {
		t.Fatalf("expected c,b, got %s", got)
	}
}

func testUpdate(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustInsert(t, s, TxRow("a", "u", 1, false, day(1)), TxRow("b", "u", 1, false, day(1)), TxRow("c", "v", 1, false, day(1)))

	n, err := s.Update(ctx, storage.TableTransactions, storage.Row{"is_synced": int64(1), "title": "synced"},
		[]storage.Cond{storage.Equal("user_id", "u")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows updated, got %d", n)
	}
	rows, _ := s.Query(ctx, storage.TableTransactions, storage.Query{Where: []storage.Cond{storage.Equal("is_synced", int64(1))}})
	if got := ids(rows); got != "a,b" {
		t.Fatalf("expected a,b synced, got %s", got)
	}
	if rows[0]["title"] != "synced" || rows[0]["amount"] != float64(1) {
		t.Fatalf("update must merge values, got %#v", rows[0])
	}

	n, err = s.Update(ctx, storage.TableTransactions, storage.Row{"title": "x"}, []storage.Cond{storage.Equal("id", "missing")})
	if err != nil || n != 0 {
		t.Fatalf("update of missing row: n=%d err=%v", n, err)
	}
}

func testDelete(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustInsert(t, s, TxRow("a", "u", 1, false, day(1)), TxRow("b", "u", 1, false, day(1)), TxRow("c", "u", 1, false, day(1)))

	n, err := s.Delete(ctx, storage.TableTransactions, []storage.Cond{storage.Equal("id", "b")})
	if err != nil || n != 1 {
		t.Fatalf("delete b: n=%d err=%v", n, err)
	}
	n, err = s.Delete(ctx, storage.TableTransactions, []storage.Cond{storage.Equal("id", "b")})
	if err != nil || n != 0 {
		t.Fatalf("second delete b: n=%d err=%v", n, err)
	}
	rows, _ := s.Query(ctx, storage.TableTransactions, storage.Query{})
	if got := ids(rows); got != "a,c" {
		t.Fatalf("expected a,c, got %s", got)
	}

	n, err = s.Delete(ctx, storage.TableTransactions, nil)
	if err != nil || n != 2 {
		t.Fatalf("delete all: n=%d err=%v", n, err)
	}
	rows, _ = s.Query(ctx, storage.TableTransactions, storage.Query{})
	if len(rows) != 0 {
		t.Fatalf("expected empty table, got %s", ids(rows))
	}
}

func testSum(t *testing.T, s storage.Store) {
	ctx := context.Background()
	total, err := s.Sum(ctx, storage.TableTransactions, "amount", []storage.Cond{storage.Equal("user_id", "u")})
	if err != nil {
		t.Fatalf("sum on empty table: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected 0 on empty table, got %v", total)
	}

	mustInsert(t, s,
		TxRow("a", "u", 5000, false, day(1)),
		TxRow("b", "u", 125.5, true, day(2)),
		TxRow("c", "u", 10, true, day(3)),
		TxRow("d", "v", 99, true, day(3)),
	)
	income, err := s.Sum(ctx, storage.TableTransactions, "amount",
		[]storage.Cond{storage.Equal("user_id", "u"), storage.Equal("is_expense", int64(0))})
	if err != nil || income != 5000 {
		t.Fatalf("income sum = %v, err=%v", income, err)
	}
	expense, err := s.Sum(ctx, storage.TableTransactions, "amount",
		[]storage.Cond{storage.Equal("user_id", "u"), storage.Equal("is_expense", int64(1))})
	if err != nil || expense != 135.5 {
		t.Fatalf("expense sum = %v, err=%v", expense, err)
	}
	none, err := s.Sum(ctx, storage.TableTransactions, "amount", []storage.Cond{storage.Equal("user_id", "nobody")})
	if err != nil || none != 0 {
		t.Fatalf("sum with no matches = %v, err=%v", none, err)
	}
}

func testDuplicateID(t *testing.T, s storage.Store) {
	mustInsert(t, s, TxRow("a", "u", 1, false, day(1)))
	err := s.Insert(context.Background(), storage.TableTransactions, TxRow("a", "other", 2, true, day(2)))
	if !errors.Is(err, core.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}
}

func testMissingRequired(t *testing.T, s storage.Store) {
	row := TxRow("a", "u", 1, false, day(1))
	delete(row, "title")
	err := s.Insert(context.Background(), storage.TableTransactions, row)
	if !errors.Is(err, core.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}
}

func testUnsupported(t *testing.T, s storage.Store) {
	ctx := context.Background()
	if _, err := s.Query(ctx, "budgets", storage.Query{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("unknown table: expected ErrUnsupported, got %v", err)
	}
	if _, err := s.Query(ctx, storage.TableTransactions, storage.Query{OrderBy: "amount; DROP TABLE transactions"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("unknown order column: expected ErrUnsupported, got %v", err)
	}
	if _, err := s.Sum(ctx, storage.TableTransactions, "balance", nil); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("unknown sum column: expected ErrUnsupported, got %v", err)
	}
	bad := []storage.Cond{{Field: "amount", Op: storage.Op(42), Value: 1}}
	if _, err := s.Delete(ctx, storage.TableTransactions, bad); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("unknown operator: expected ErrUnsupported, got %v", err)
	}
}

func testSeededCategories(t *testing.T, s storage.Store) {
	rows, err := s.Query(context.Background(), storage.TableCategories, storage.Query{
		Where: []storage.Cond{storage.Equal("is_default", int64(1))},
	})
	if err != nil {
		t.Fatalf("query categories: %v", err)
	}
	if len(rows) != len(core.DefaultCategories) {
		t.Fatalf("expected %d seeded categories, got %d", len(core.DefaultCategories), len(rows))
	}
	for i, c := range core.DefaultCategories {
		if rows[i]["id"] != c.ID || rows[i]["name"] != c.Name || rows[i]["is_expense"] != storage.Bool(c.IsExpense) {
			t.Fatalf("category %d: got %#v, want %+v", i, rows[i], c)
		}
	}
}

func testNullEquality(t *testing.T, s storage.Store) {
	ctx := context.Background()
	err := s.Insert(ctx, storage.TableCategories, storage.Row{
		"id": "custom-pets", "name": "Pets", "icon": "pets", "is_expense": int64(1), "user_id": "u", "is_default": int64(0),
	})
	if err != nil {
		t.Fatalf("insert category: %v", err)
	}
	shared, err := s.Query(ctx, storage.TableCategories, storage.Query{Where: []storage.Cond{storage.Equal("user_id", nil)}})
	if err != nil {
		t.Fatalf("query shared: %v", err)
	}
	if len(shared) != len(core.DefaultCategories) {
		t.Fatalf("expected %d shared categories, got %d", len(core.DefaultCategories), len(shared))
	}
	own, err := s.Query(ctx, storage.TableCategories, storage.Query{Where: []storage.Cond{storage.Equal("user_id", "u")}})
	if err != nil || len(own) != 1 || own[0]["color"] != nil {
		t.Fatalf("query own: rows=%v err=%v", own, err)
	}
}
