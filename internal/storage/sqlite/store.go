// Package sqlite implements storage.Store on a local SQLite file using the
// pure-Go modernc driver. Schema changes are applied with golang-migrate on Open.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Store struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New returns a store for the database file at dbPath. Nothing is opened
// until Open is called.
func New(dbPath string) *Store {
	return &Store{path: dbPath}
}

// Open creates the database directory if needed, connects, and runs migrations.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}
	if s.path == "" || s.path == ":memory:" {
		return fmt.Errorf("sqlite store needs a file path, got %q: %w", s.path, core.ErrStorageUnavailable)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create db directory: %v: %w", err, core.ErrStorageUnavailable)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open sqlite database: %v: %w", err, core.ErrStorageUnavailable)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %v: %w", err, core.ErrStorageUnavailable)
	}

	if err := RunMigrations(s.path); err != nil {
		db.Close()
		return fmt.Errorf("%v: %w", err, core.ErrStorageUnavailable)
	}

	s.db = db
	slog.InfoContext(ctx, "SQLite store opened", "path", s.path)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("sqlite store is not open: %w", core.ErrStorageUnavailable)
	}
	return s.db, nil
}

func (s *Store) Insert(ctx context.Context, table string, row storage.Row) error {
	schema, err := storage.SchemaFor(table)
	if err != nil {
		return err
	}
	if err := schema.CheckInsert(row); err != nil {
		return err
	}
	db, err := s.conn()
	if err != nil {
		return err
	}

	cols := sortedKeys(row)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = row[c]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table), quoteAll(cols), placeholders(len(cols)))

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return classify("insert", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, table string, q storage.Query) ([]storage.Row, error) {
	schema, err := storage.SchemaFor(table)
	if err != nil {
		return nil, err
	}
	if err := schema.CheckQuery(q); err != nil {
		return nil, err
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	where, args := buildWhere(q.Where)
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", quoteAll(schema.Columns), quote(table), where)
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s, rowid ASC", quote(q.OrderBy), dir)
	} else {
		b.WriteString(" ORDER BY rowid ASC")
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, classify("query", err)
	}
	defer rows.Close()

	var out []storage.Row
	for rows.Next() {
		vals := make([]any, len(schema.Columns))
		ptrs := make([]any, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify("scan", err)
		}
		row := make(storage.Row, len(vals))
		for i, c := range schema.Columns {
			if bs, ok := vals[i].([]byte); ok {
				row[c] = string(bs)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate rows", err)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, table string, values storage.Row, where []storage.Cond) (int64, error) {
	schema, err := storage.SchemaFor(table)
	if err != nil {
		return 0, err
	}
	cols := sortedKeys(values)
	if err := schema.CheckColumns(cols...); err != nil {
		return 0, err
	}
	if err := schema.CheckWhere(where); err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, nil
	}
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(where)*2)
	for i, c := range cols {
		sets[i] = quote(c) + " = ?"
		args = append(args, values[c])
	}
	whereSQL, whereArgs := buildWhere(where)
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", quote(table), strings.Join(sets, ", "), whereSQL)
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify("update", err)
	}
	return res.RowsAffected()
}

func (s *Store) Delete(ctx context.Context, table string, where []storage.Cond) (int64, error) {
	schema, err := storage.SchemaFor(table)
	if err != nil {
		return 0, err
	}
	if err := schema.CheckWhere(where); err != nil {
		return 0, err
	}
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	whereSQL, args := buildWhere(where)
	res, err := db.ExecContext(ctx, "DELETE FROM "+quote(table)+whereSQL, args...)
	if err != nil {
		return 0, classify("delete", err)
	}
	return res.RowsAffected()
}

func (s *Store) Sum(ctx context.Context, table, field string, where []storage.Cond) (float64, error) {
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
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	whereSQL, args := buildWhere(where)
	query := fmt.Sprintf("SELECT COALESCE(SUM(%s), 0.0) FROM %s%s", quote(field), quote(table), whereSQL)

	var total float64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, classify("sum", err)
	}
	return total, nil
}

func buildWhere(where []storage.Cond) (string, []any) {
	if len(where) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(where))
	args := make([]any, 0, len(where)*2)
	for _, c := range where {
		switch c.Op {
		case storage.Between:
			parts = append(parts, quote(c.Field)+" BETWEEN ? AND ?")
			args = append(args, normalize(c.Value), normalize(c.Upper))
		default:
			if c.Value == nil {
				parts = append(parts, quote(c.Field)+" IS NULL")
				continue
			}
			parts = append(parts, quote(c.Field)+" = ?")
			args = append(args, normalize(c.Value))
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

func normalize(v any) any {
	if b, ok := v.(bool); ok {
		return storage.Bool(b)
	}
	return v
}

// classify maps driver errors onto the storage error taxonomy.
func classify(op string, err error) error {
	var se *moderncsqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return fmt.Errorf("%s: %v: %w", op, err, core.ErrConstraintViolation)
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CORRUPT,
			sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_FULL, sqlite3.SQLITE_READONLY:
			return fmt.Errorf("%s: %v: %w", op, err, core.ErrStorageUnavailable)
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%s: %v: %w", op, err, core.ErrStorageUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func sortedKeys(row storage.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// quote is only ever applied to names already validated against the schema.
func quote(ident string) string {
	return `"` + ident + `"`
}

func quoteAll(idents []string) string {
	q := make([]string, len(idents))
	for i, id := range idents {
		q[i] = quote(id)
	}
	return strings.Join(q, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
