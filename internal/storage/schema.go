package storage

import (
	"fmt"
	"sort"

	"fintrack/internal/core"
)

// Schema lists the columns of a table and which of them are NOT NULL.
type Schema struct {
	Columns  []string
	Required map[string]bool
}

var schemas = map[string]Schema{
	TableTransactions: {
		Columns: []string{"id", "user_id", "title", "amount", "category", "notes", "date",
			"is_expense", "is_synced", "created_at", "updated_at"},
		Required: set("id", "user_id", "title", "amount", "category", "date",
			"is_expense", "is_synced", "created_at", "updated_at"),
	},
	TableCategories: {
		Columns:  []string{"id", "name", "icon", "color", "is_expense", "user_id", "is_default"},
		Required: set("id", "name", "icon", "is_expense", "is_default"),
	},
}

func set(cols ...string) map[string]bool {
	m := make(map[string]bool, len(cols))
	for _, c := range cols {
		m[c] = true
	}
	return m
}

// SchemaFor returns the schema of a known table.
func SchemaFor(table string) (Schema, error) {
	s, ok := schemas[table]
	if !ok {
		return Schema{}, fmt.Errorf("table %q: %w", table, core.ErrUnsupported)
	}
	return s, nil
}

// Tables returns the known table names in a stable order.
func Tables() []string {
	out := make([]string, 0, len(schemas))
	for t := range schemas {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// HasColumn reports whether col belongs to the schema.
func (s Schema) HasColumn(col string) bool {
	for _, c := range s.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// CheckColumns rejects any column name the schema does not define.
func (s Schema) CheckColumns(cols ...string) error {
	for _, c := range cols {
		if !s.HasColumn(c) {
			return fmt.Errorf("column %q: %w", c, core.ErrUnsupported)
		}
	}
	return nil
}

// CheckInsert validates a row about to be inserted.
func (s Schema) CheckInsert(row Row) error {
	for col := range row {
		if err := s.CheckColumns(col); err != nil {
			return err
		}
	}
	for _, col := range s.Columns {
		if !s.Required[col] {
			continue
		}
		if v, ok := row[col]; !ok || v == nil {
			return fmt.Errorf("column %q is required: %w", col, core.ErrConstraintViolation)
		}
	}
	return nil
}

// CheckQuery validates the predicate and ordering of a query.
func (s Schema) CheckQuery(q Query) error {
	if err := s.CheckWhere(q.Where); err != nil {
		return err
	}
	if q.OrderBy != "" {
		return s.CheckColumns(q.OrderBy)
	}
	return nil
}

// CheckWhere validates each condition's column and operator.
func (s Schema) CheckWhere(where []Cond) error {
	for _, c := range where {
		if err := s.CheckColumns(c.Field); err != nil {
			return err
		}
		switch c.Op {
		case Eq, Between:
		default:
			return fmt.Errorf("operator %s: %w", c.Op, core.ErrUnsupported)
		}
	}
	return nil
}

// CategoryRow encodes a category for the categories table. Both backends
// seed with it so seeded rows match rows written by the repositories.
func CategoryRow(c core.Category) Row {
	row := Row{
		"id":         c.ID,
		"name":       c.Name,
		"icon":       c.Icon,
		"color":      nil,
		"is_expense": Bool(c.IsExpense),
		"user_id":    nil,
		"is_default": Bool(c.IsDefault),
	}
	if c.Color != nil {
		row["color"] = *c.Color
	}
	if c.UserID != nil {
		row["user_id"] = *c.UserID
	}
	return row
}
