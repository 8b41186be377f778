// Package transactions is the only reader and writer of transaction rows.
// It enforces the invariants the record store does not: validation,
// identifiers, timestamps, sync-state reset, and totals recomputed from the
// stored rows on every call.
package transactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

type Repository struct {
	store      storage.Store
	categories *CategoryRepository

	now   func() time.Time
	newID func() string
}

// NewRepository wraps an opened store. When categories is non-nil, create
// and update reject categories unknown to the user.
func NewRepository(store storage.Store, categories *CategoryRepository) *Repository {
	return &Repository{
		store:      store,
		categories: categories,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (r *Repository) Create(ctx context.Context, n core.NewTransaction) (core.Transaction, error) {
	if err := n.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := r.checkCategory(ctx, n.UserID, n.Category); err != nil {
		return core.Transaction{}, err
	}

	now := r.now().UTC()
	date := n.Date.UTC()
	if n.Date.IsZero() {
		date = now
	}
	t := core.Transaction{
		ID:        r.newID(),
		UserID:    n.UserID,
		Title:     n.Title,
		Amount:    n.Amount,
		Category:  n.Category,
		Notes:     n.Notes,
		Date:      date,
		IsExpense: n.IsExpense,
		IsSynced:  false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.Insert(ctx, storage.TableTransactions, toRow(t)); err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		"id", t.ID,
		"user_id", t.UserID,
		"amount", t.Amount.String(),
		"is_expense", t.IsExpense,
		"category", t.Category)
	return t, nil
}

// GetAll returns the user's transactions, newest date first. Rows sharing a
// date keep insertion order. A user with no rows gets an empty slice.
func (r *Repository) GetAll(ctx context.Context, userID string) ([]core.Transaction, error) {
	return r.query(ctx, storage.Query{
		Where:   []storage.Cond{storage.Equal("user_id", userID)},
		OrderBy: "date",
		Desc:    true,
	})
}

// GetByDateRange is GetAll restricted to start <= date <= end.
func (r *Repository) GetByDateRange(ctx context.Context, userID string, start, end time.Time) ([]core.Transaction, error) {
	if end.Before(start) {
		return []core.Transaction{}, nil
	}
	return r.query(ctx, storage.Query{
		Where: []storage.Cond{
			storage.Equal("user_id", userID),
			storage.InRange("date", storage.FormatTime(start), storage.FormatTime(end)),
		},
		OrderBy: "date",
		Desc:    true,
	})
}

// GetByID reports ok=false when no transaction has the id.
func (r *Repository) GetByID(ctx context.Context, id string) (core.Transaction, bool, error) {
	list, err := r.query(ctx, storage.Query{
		Where: []storage.Cond{storage.Equal("id", id)},
		Limit: 1,
	})
	if err != nil {
		return core.Transaction{}, false, err
	}
	if len(list) == 0 {
		return core.Transaction{}, false, nil
	}
	return list[0], true, nil
}

// Update replaces the stored row with t. UserID and CreatedAt are kept from
// the stored row, UpdatedAt is moved forward and IsSynced is cleared.
func (r *Repository) Update(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	current, ok, err := r.GetByID(ctx, t.ID)
	if err != nil {
		return core.Transaction{}, err
	}
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	if err := r.checkCategory(ctx, current.UserID, t.Category); err != nil {
		return core.Transaction{}, err
	}

	now := r.now().UTC()
	if !now.After(current.UpdatedAt) {
		now = current.UpdatedAt.Add(time.Nanosecond)
	}
	t.UserID = current.UserID
	t.CreatedAt = current.CreatedAt
	t.Date = t.Date.UTC()
	t.UpdatedAt = now
	t.IsSynced = false

	values := toRow(t)
	delete(values, "id")
	n, err := r.store.Update(ctx, storage.TableTransactions, values, []storage.Cond{storage.Equal("id", t.ID)})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		// Deleted between the read and the write.
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}

	slog.InfoContext(ctx, "Transaction updated",
		"id", t.ID,
		"amount", t.Amount.String(),
		"is_expense", t.IsExpense)
	return t, nil
}

// Delete removes the row. Deleting an unknown id is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	n, err := r.store.Delete(ctx, storage.TableTransactions, []storage.Cond{storage.Equal("id", id)})
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction deleted", "id", id, "rows", n)
	return nil
}

func (r *Repository) GetTotalIncome(ctx context.Context, userID string) (core.Money, error) {
	return r.sum(ctx, userID, false)
}

func (r *Repository) GetTotalExpense(ctx context.Context, userID string) (core.Money, error) {
	return r.sum(ctx, userID, true)
}

// GetTotalBalance is income minus expense, each summed by the store.
func (r *Repository) GetTotalBalance(ctx context.Context, userID string) (core.Money, error) {
	totals, err := r.Totals(ctx, userID)
	if err != nil {
		return core.Money{}, err
	}
	return totals.Balance, nil
}

// Totals returns income, expense and balance from two aggregate queries.
func (r *Repository) Totals(ctx context.Context, userID string) (core.Totals, error) {
	income, err := r.GetTotalIncome(ctx, userID)
	if err != nil {
		return core.Totals{}, err
	}
	expense, err := r.GetTotalExpense(ctx, userID)
	if err != nil {
		return core.Totals{}, err
	}
	return core.Totals{
		Balance: income.Sub(expense),
		Income:  income,
		Expense: expense,
	}, nil
}

// GetUnsynced returns the user's rows not yet acknowledged by the remote,
// oldest date first. limit <= 0 returns all of them.
func (r *Repository) GetUnsynced(ctx context.Context, userID string, limit int) ([]core.Transaction, error) {
	return r.query(ctx, storage.Query{
		Where: []storage.Cond{
			storage.Equal("user_id", userID),
			storage.Equal("is_synced", int64(0)),
		},
		OrderBy: "date",
		Limit:   limit,
	})
}

// MarkSynced flags each id as synced. Unknown ids are skipped; a store error
// on one id does not stop the others. It returns the number of rows marked.
func (r *Repository) MarkSynced(ctx context.Context, ids []string) (int64, error) {
	var (
		marked int64
		errs   []error
	)
	for _, id := range ids {
		n, err := r.store.Update(ctx, storage.TableTransactions,
			storage.Row{"is_synced": int64(1)},
			[]storage.Cond{storage.Equal("id", id)})
		if err != nil {
			errs = append(errs, fmt.Errorf("mark %s synced: %w", id, err))
			continue
		}
		marked += n
	}
	if marked > 0 {
		slog.InfoContext(ctx, "Transactions marked as synced", "requested", len(ids), "marked", marked)
	}
	return marked, errors.Join(errs...)
}

// MarkSyncedVersions is MarkSynced guarded by UpdatedAt: a row edited after
// it was read for publishing stays unsynced.
func (r *Repository) MarkSyncedVersions(ctx context.Context, list []core.Transaction) (int64, error) {
	var (
		marked int64
		errs   []error
	)
	for _, t := range list {
		n, err := r.store.Update(ctx, storage.TableTransactions,
			storage.Row{"is_synced": int64(1)},
			[]storage.Cond{
				storage.Equal("id", t.ID),
				storage.Equal("updated_at", storage.FormatTime(t.UpdatedAt)),
			})
		if err != nil {
			errs = append(errs, fmt.Errorf("mark %s synced: %w", t.ID, err))
			continue
		}
		if n == 0 {
			slog.DebugContext(ctx, "Transaction changed or removed since publish, left unsynced", "id", t.ID)
		}
		marked += n
	}
	return marked, errors.Join(errs...)
}

func (r *Repository) query(ctx context.Context, q storage.Query) ([]core.Transaction, error) {
	rows, err := r.store.Query(ctx, storage.TableTransactions, q)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *Repository) sum(ctx context.Context, userID string, expense bool) (core.Money, error) {
	total, err := r.store.Sum(ctx, storage.TableTransactions, "amount", []storage.Cond{
		storage.Equal("user_id", userID),
		storage.Equal("is_expense", storage.Bool(expense)),
	})
	if err != nil {
		return core.Money{}, fmt.Errorf("sum transactions: %w", err)
	}
	return core.MoneyFromFloat(total), nil
}

func (r *Repository) checkCategory(ctx context.Context, userID, category string) error {
	if r.categories == nil {
		return nil
	}
	ok, err := r.categories.Exists(ctx, userID, category)
	if err != nil {
		return err
	}
	if !ok {
		return &core.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", category)}
	}
	return nil
}
