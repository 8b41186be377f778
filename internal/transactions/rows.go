package transactions

import (
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

func toRow(t core.Transaction) storage.Row {
	row := storage.Row{
		"id":         t.ID,
		"user_id":    t.UserID,
		"title":      t.Title,
		"amount":     t.Amount.Float(),
		"category":   t.Category,
		"notes":      nil,
		"date":       storage.FormatTime(t.Date),
		"is_expense": storage.Bool(t.IsExpense),
		"is_synced":  storage.Bool(t.IsSynced),
		"created_at": storage.FormatTime(t.CreatedAt),
		"updated_at": storage.FormatTime(t.UpdatedAt),
	}
	if t.Notes != nil {
		row["notes"] = *t.Notes
	}
	return row
}

func fromRow(row storage.Row) (core.Transaction, error) {
	var (
		t   core.Transaction
		err error
	)
	r := rowReader{row: row}
	t.ID = r.str("id")
	t.UserID = r.str("user_id")
	t.Title = r.str("title")
	t.Amount = core.MoneyFromFloat(r.float("amount"))
	t.Category = r.str("category")
	t.Notes = r.optStr("notes")
	t.Date = r.time("date")
	t.IsExpense = r.flag("is_expense")
	t.IsSynced = r.flag("is_synced")
	t.CreatedAt = r.time("created_at")
	t.UpdatedAt = r.time("updated_at")
	if r.err != nil {
		err = fmt.Errorf("decode transaction row %v: %w", row["id"], r.err)
	}
	return t, err
}

func categoryFromRow(row storage.Row) (core.Category, error) {
	r := rowReader{row: row}
	c := core.Category{
		ID:        r.str("id"),
		Name:      r.str("name"),
		Icon:      r.str("icon"),
		Color:     r.optStr("color"),
		IsExpense: r.flag("is_expense"),
		UserID:    r.optStr("user_id"),
		IsDefault: r.flag("is_default"),
	}
	if r.err != nil {
		return c, fmt.Errorf("decode category row %v: %w", row["id"], r.err)
	}
	return c, nil
}

// rowReader decodes loosely typed column values, keeping the first error.
type rowReader struct {
	row storage.Row
	err error
}

func (r *rowReader) fail(col string, v any) {
	if r.err == nil {
		r.err = fmt.Errorf("column %s: unexpected value %T(%v)", col, v, v)
	}
}

func (r *rowReader) str(col string) string {
	switch v := r.row[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		r.fail(col, v)
		return ""
	}
}

func (r *rowReader) optStr(col string) *string {
	if r.row[col] == nil {
		return nil
	}
	s := r.str(col)
	return &s
}

func (r *rowReader) float(col string) float64 {
	switch v := r.row[col].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		r.fail(col, v)
		return 0
	}
}

func (r *rowReader) flag(col string) bool {
	switch v := r.row[col].(type) {
	case int64:
		return v != 0
	case float64:
		return v != 0
	case bool:
		return v
	default:
		r.fail(col, v)
		return false
	}
}

func (r *rowReader) time(col string) time.Time {
	s := r.str(col)
	if r.err != nil {
		return time.Time{}
	}
	t, err := storage.ParseTime(s)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("column %s: %w", col, err)
	}
	return t
}
