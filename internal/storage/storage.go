// Package storage defines the record store contract shared by the SQLite
// and in-memory backends.
//
// A store addresses rows by table name. Rows are loosely typed column maps;
// callers translate them to domain types at their own boundary. Only the
// predicate shapes listed here are supported; a backend returns
// core.ErrUnsupported for anything else instead of guessing.
package storage

import (
	"context"
	"fmt"
	"time"
)

const (
	TableTransactions = "transactions"
	TableCategories   = "categories"
)

// TimeLayout is the fixed-width ISO-8601 layout used for every persisted
// timestamp, so that lexical order equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

type (
	// Row maps column names to values. Values are string, float64, int64 or nil.
	Row map[string]any

	Op int

	// Cond is a single predicate on a column.
	Cond struct {
		Field string
		Op    Op
		Value any
		Upper any // only for Between
	}

	Query struct {
		Where   []Cond
		OrderBy string
		Desc    bool
		Limit   int
	}

	// Store is the durable row storage used by the repositories.
	Store interface {
		Open(ctx context.Context) error
		Close() error
		Insert(ctx context.Context, table string, row Row) error
		Query(ctx context.Context, table string, q Query) ([]Row, error)
		Update(ctx context.Context, table string, values Row, where []Cond) (int64, error)
		// Delete removes matching rows; a nil where removes every row.
		Delete(ctx context.Context, table string, where []Cond) (int64, error)
		// Sum returns the total of a numeric column, 0 when nothing matches.
		Sum(ctx context.Context, table, field string, where []Cond) (float64, error)
	}
)

const (
	Eq Op = iota
	// Between is inclusive on both ends.
	Between
)

func (o Op) String() string {
	switch o {
	case Eq:
		return "eq"
	case Between:
		return "between"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Equal builds an equality condition.
func Equal(field string, value any) Cond {
	return Cond{Field: field, Op: Eq, Value: value}
}

// InRange builds an inclusive range condition.
func InRange(field string, lo, hi any) Cond {
	return Cond{Field: field, Op: Between, Value: lo, Upper: hi}
}

// FormatTime renders t in TimeLayout (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a value written by FormatTime. RFC 3339 input is accepted
// as well for rows written by other tools.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Bool converts a flag to its persisted 0/1 form.
func Bool(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
