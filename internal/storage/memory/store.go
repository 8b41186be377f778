// Package memory implements storage.Store in process memory for platforms
// without a file database. It evaluates exactly the predicate shapes of the
// storage contract; data is lost when the process ends.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

type Store struct {
	mu     sync.Mutex
	open   bool
	seed   []core.Category
	tables map[string][]storage.Row
}

var _ storage.Store = (*Store)(nil)

// New returns a store seeded with the given categories on Open.
func New(seed []core.Category) *Store {
	return &Store{seed: seed}
}

// NewFromFiles seeds default categories, renaming or extending them from
// base/seed_categories.txt when present. Each line is "Name" or
// "Name,expense|income"; blank lines and # comments are skipped.
func NewFromFiles(base string) *Store {
	lines := readLines(filepath.Join(base, "seed_categories.txt"))
	if len(lines) == 0 {
		return New(core.DefaultCategories)
	}
	seed := make([]core.Category, 0, len(lines))
	for _, line := range lines {
		name, kind, _ := strings.Cut(line, ",")
		name = strings.TrimSpace(name)
		seed = append(seed, core.Category{
			ID:        "seed-" + strings.ToLower(strings.ReplaceAll(name, " ", "-")),
			Name:      name,
			Icon:      "label",
			IsExpense: strings.TrimSpace(kind) != "income",
			IsDefault: true,
		})
	}
	return New(seed)
}

func (s *Store) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}
	s.tables = make(map[string][]storage.Row)
	for _, t := range storage.Tables() {
		s.tables[t] = nil
	}
	for _, c := range s.seed {
		s.tables[storage.TableCategories] = append(s.tables[storage.TableCategories], storage.CategoryRow(c))
	}
	s.open = true
	return nil
}

// Close drops all data.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.tables = nil
	return nil
}

func (s *Store) Insert(_ context.Context, table string, row storage.Row) error {
	schema, err := storage.SchemaFor(table)
	if err != nil {
		return err
	}
	if err := schema.CheckInsert(row); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return errNotOpen
	}
	id := row["id"]
	for _, r := range s.tables[table] {
		if equal(r["id"], id) {
			return fmt.Errorf("duplicate id %v in %s: %w", id, table, core.ErrConstraintViolation)
		}
	}
	s.tables[table] = append(s.tables[table], copyRow(schema, row))
	return nil
}

func (s *Store) Query(_ context.Context, table string, q storage.Query) ([]storage.Row, error) {
	schema, err := storage.SchemaFor(table)
	if err != nil {
		return nil, err
	}
	if err := schema.CheckQuery(q); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, errNotOpen
	}

	var out []storage.Row
	for _, r := range s.tables[table] {
		if matches(r, q.Where) {
			out = append(out, copyRow(schema, r))
		}
	}
	if q.OrderBy != "" {
		// Stable: rows are in insertion order, which breaks ties.
		sort.SliceStable(out, func(i, j int) bool {
			c := compare(out[i][q.OrderBy], out[j][q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) Update(_ context.Context, table string, values storage.Row, where []storage.Cond) (int64, error) {
	schema, err := storage.SchemaFor(table)
	if err != nil {
		return 0, err
	}
	for col := range values {
		if err := schema.CheckColumns(col); err != nil {
			return 0, err
		}
		if schema.Required[col] && values[col] == nil {
			return 0, fmt.Errorf("column %q is required: %w", col, core.ErrConstraintViolation)
		}
	}
	if err := schema.CheckWhere(where); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return 0, errNotOpen
	}
	var n int64
	for _, r := range s.tables[table] {
		if !matches(r, where) {
			continue
		}
		for k, v := range values {
			r[k] = canonical(v)
		}
		n++
	}
	return n, nil
}

func (s *Store) Delete(_ context.Context, table string, where []storage.Cond) (int64, error) {
	schema, err := storage.SchemaFor(table)
	if err != nil {
		return 0, err
	}
	if err := schema.CheckWhere(where); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return 0, errNotOpen
	}
	rows := s.tables[table]
	kept := rows[:0]
	var n int64
	for _, r := range rows {
		if matches(r, where) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	// Clear the tail so removed rows can be collected.
	for i := len(kept); i < len(rows); i++ {
		rows[i] = nil
	}
	s.tables[table] = kept
	return n, nil
}

func (s *Store) Sum(_ context.Context, table, field string, where []storage.Cond) (float64, error) {
	schema, err := storage.SchemaFor(table)
	if err != nil {
		return 0, err
	}
	if err := schema.CheckColumns(field); err != nil {
		return 0, err
	}
	if err := schema.CheckWhere(where); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return 0, errNotOpen
	}
	var total float64
	for _, r := range s.tables[table] {
		if !matches(r, where) {
			continue
		}
		f, ok := number(r[field])
		if !ok {
			if r[field] == nil {
				continue
			}
			return 0, fmt.Errorf("sum of non-numeric column %q: %w", field, core.ErrUnsupported)
		}
		total += f
	}
	return total, nil
}

var errNotOpen = fmt.Errorf("memory store is not open: %w", core.ErrStorageUnavailable)

// copyRow returns a row holding every schema column, missing ones as nil.
func copyRow(schema storage.Schema, r storage.Row) storage.Row {
	out := make(storage.Row, len(schema.Columns))
	for _, c := range schema.Columns {
		out[c] = canonical(r[c])
	}
	return out
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
