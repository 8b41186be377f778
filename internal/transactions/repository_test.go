package transactions

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
	"fintrack/internal/storage/sqlite"
)

const user = "local-user"

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type backend struct {
	name string
	open func(t *testing.T) storage.Store
}

var backends = []backend{
	{"memory", func(t *testing.T) storage.Store { return memory.New(core.DefaultCategories) }},
	{"sqlite", func(t *testing.T) storage.Store { return sqlite.New(filepath.Join(t.TempDir(), "fintrack.db")) }},
}

func newRepo(t *testing.T, open func(t *testing.T) storage.Store) (*Repository, *clock) {
	t.Helper()
	s := open(t)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	clk := &clock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	seq := 0
	repo := NewRepository(s, nil)
	repo.now = clk.now
	repo.newID = func() string {
		seq++
		return fmt.Sprintf("tx-%03d", seq)
	}
	return repo, clk
}

func forEachBackend(t *testing.T, fn func(t *testing.T, repo *Repository, clk *clock)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			repo, clk := newRepo(t, b.open)
			fn(t, repo, clk)
		})
	}
}

func date(day int) time.Time {
	return time.Date(2025, 5, day, 0, 0, 0, 0, time.UTC)
}

func cents(c int64) core.Money { return core.Money{Cents: c} }

func mustCreate(t *testing.T, repo *Repository, title string, amount int64, expense bool, d time.Time) core.Transaction {
	t.Helper()
	category := "Income"
	if expense {
		category = "Food"
	}
	tx, err := repo.Create(context.Background(), core.NewTransaction{
		UserID: user, Title: title, Amount: cents(amount), Category: category, Date: d, IsExpense: expense,
	})
	if err != nil {
		t.Fatalf("create %s: %v", title, err)
	}
	return tx
}

func TestSalaryAndGroceriesTotals(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository, _ *clock) {
		ctx := context.Background()
		mustCreate(t, repo, "Salary", 500000, false, date(1))
		mustCreate(t, repo, "Groceries", 12550, true, date(2))

		income, err := repo.GetTotalIncome(ctx, user)
		if err != nil || income.Cents != 500000 {
			t.Fatalf("income = %s, err=%v", income, err)
		}
		expense, err := repo.GetTotalExpense(ctx, user)
		if err != nil || expense.Cents != 12550 {
			t.Fatalf("expense = %s, err=%v", expense, err)
		}
		balance, err := repo.GetTotalBalance(ctx, user)
		if err != nil || balance.String() != "4874.50" {
			t.Fatalf("balance = %s, err=%v", balance, err)
		}

		other, err := repo.Totals(ctx, "someone-else")
		if err != nil || other != (core.Totals{}) {
			t.Fatalf("other user totals = %+v, err=%v", other, err)
		}
	})
}

func TestCreatePopulatesFields(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository, clk *clock) {
		notes := "weekly shop"
		tx, err := repo.Create(context.Background(), core.NewTransaction{
			UserID: user, Title: "Groceries", Amount: cents(4210), Category: "Food",
			Notes: &notes, Date: date(3), IsExpense: true,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if tx.ID == "" || tx.IsSynced {
			t.Fatalf("unexpected id/sync state: %+v", tx)
		}
		if !tx.CreatedAt.Equal(clk.t) || !tx.UpdatedAt.Equal(tx.CreatedAt) {
			t.Fatalf("timestamps not set from clock: %+v", tx)
		}

		got, ok, err := repo.GetByID(context.Background(), tx.ID)
		if err != nil || !ok {
			t.Fatalf("GetByID: ok=%v err=%v", ok, err)
		}
		if got.Title != "Groceries" || got.Amount != cents(4210) || got.Notes == nil || *got.Notes != notes {
			t.Fatalf("round trip mismatch: %+v", got)
		}
		if !got.Date.Equal(date(3)) || !got.CreatedAt.Equal(tx.CreatedAt) || !got.IsExpense {
			t.Fatalf("round trip mismatch: %+v", got)
		}
		if got.DisplayAmount() != cents(-4210) {
			t.Fatalf("display amount = %s", got.DisplayAmount())
		}
	})
}

func TestCreateRejectsInvalidInputBeforeStore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository, _ *clock) {
		ctx := context.Background()
		bad := []core.NewTransaction{
			{UserID: user, Title: "", Amount: cents(100), Category: "Food"},
			{UserID: user, Title: "Zero", Amount: cents(0), Category: "Food"},
			{UserID: user, Title: "Negative", Amount: cents(-100), Category: "Food"},
		}
		for _, n := range bad {
			if _, err := repo.Create(ctx, n); !errors.Is(err, core.ErrValidation) {
				t.Fatalf("create %+v: expected validation error, got %v", n, err)
			}
		}
		all, err := repo.GetAll(ctx, user)
		if err != nil || len(all) != 0 {
			t.Fatalf("expected no rows after rejected creates, got %d (err=%v)", len(all), err)
		}
	})
}

func TestGetAllEmptyUser(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository, _ *clock) {
		all, err := repo.GetAll(context.Background(), "nobody")
		if err != nil {
			t.Fatalf("GetAll: %v", err)
		}
		if all == nil || len(all) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", all)
		}
	})
}

func TestGetAllOrdering(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository, _ *clock) {
		a := mustCreate(t, repo, "a", 100, true, date(10))
		b := mustCreate(t, repo, "b", 100, true, date(20))
		c := mustCreate(t, repo, "c", 100, true, date(10))
		earliest := mustCreate(t, repo, "earliest", 100, true, date(1))

		all, err := repo.GetAll(context.Background(), user)
		if err != nil {
			t.Fatalf("GetAll: %v", err)
		}
		want := []string{b.ID, a.ID, c.ID, earliest.ID}
		if len(all) != len(want) {
			t.Fatalf("expected %d rows, got %d", len(want), len(all))
		}
		for i, id := range want {
			if all[i].ID != id {
				t.Fatalf("position %d: got %s, want %s", i, all[i].Title, id)
			}
		}
	})
}

func TestGetByDateRangeInclusive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository, _ *clock) {
		for d := 1; d <= 5; d++ {
			mustCreate(t, repo, fmt.Sprintf("day %d", d), 100, true, date(d))
		}
		got, err := repo.GetByDateRange(context.Background(), user, date(2), date(4))
		if err != nil {
			t.Fatalf("GetByDateRange: %v", err)
		}
		if len(got) != 3 || got[0].Title != "day 4" || got[2].Title != "day 2" {
			t.Fatalf("unexpected range result: %v", titles(got))
		}

		empty, err := repo.GetByDateRange(context.Background(), user, date(4), date(2))
		if err != nil || len(empty) != 0 {
			t.Fatalf("inverted range: %v, err=%v", titles(empty), err)
		}
	})
}

func TestGetByIDMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository, _ *clock) {
		_, ok, err := repo.GetByID(context.Background(), "does-not-exist")
		if err != nil || ok {
			t.Fatalf("expected ok=false and no error, got ok=%v err=%v", ok, err)
		}
	})
}

func TestUpdateAmountScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository, clk *clock) {
		ctx := context.Background()
		tx := mustCreate(t, repo, "Lunch", 5000, true, date(3))
		if _, err := repo.MarkSynced(ctx, []string{tx.ID}); err != nil {
			t.Fatalf("MarkSynced: %v", err)
		}

		clk.advance(time.Minute)
		tx.Amount = cents(7500)
		tx.IsSynced = true
		tx.UserID = "hijack"
		updated, err := repo.Update(ctx, tx)
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if updated.IsSynced || updated.UserID != user || !updated.CreatedAt.Equal(tx.CreatedAt) {
			t.Fatalf("update must reset sync and keep ownership: %+v", updated)
		}
		if !updated.UpdatedAt.After(tx.UpdatedAt) {
			t.Fatalf("updatedAt %v not after %v", updated.UpdatedAt, tx.UpdatedAt)
		}

		expense, _ := repo.GetTotalExpense(ctx, user)
		if expense != cents(7500) {
			t.Fatalf("expense after update = %s", expense)
		}
		stored, _, _ := repo.GetByID(ctx, tx.ID)
		if stored.IsSynced || stored.Amount != cents(7500) || !stored.UpdatedAt.Equal(updated.UpdatedAt) {
			t.Fatalf("stored row not updated: %+v", stored)
		}
	})
}

func TestUpdateAdvancesUpdatedAtWithFrozenClock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository, _ *clock) {
		tx := mustCreate(t, repo, "Coffee", 350, true, date(3))
		first, err := repo.Update(context.Background(), tx)
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		second, err := repo.Update(context.Background(), first)
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if !first.UpdatedAt.After(tx.UpdatedAt) || !second.UpdatedAt.After(first.UpdatedAt) {
			t.Fatalf("updatedAt must strictly increase: %v %v %v", tx.UpdatedAt, first.UpdatedAt, second.UpdatedAt)
		}
	})
}

func TestUpdateErrors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository, _ *clock) {
		ctx := context.Background()
		_, err := repo.Update(ctx, core.Transaction{ID: "missing", Title: "x", Amount: cents(1)})
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		tx := mustCreate(t, repo, "Rent", 90000, true, date(1))
		tx.Amount = cents(0)
		if _, err := repo.Update(ctx, tx); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestDeleteIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository, _ *clock) {
		ctx := context.Background()
		tx := mustCreate(t, repo, "Taxi", 2000, true, date(1))

		if err := repo.Delete(ctx, tx.ID); err != nil {
			t.Fatalf("first delete: %v", err)
		}
		if err := repo.Delete(ctx, tx.ID); err != nil {
			t.Fatalf("second delete: %v", err)
		}
		if _, ok, _ := repo.GetByID(ctx, tx.ID); ok {
			t.Fatal("row still present after delete")
		}
		if expense, _ := repo.GetTotalExpense(ctx, user); expense.Cents != 0 {
			t.Fatalf("expense after delete = %s", expense)
		}
	})
}

func TestMarkSyncedSkipsMissingIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository, _ *clock) {
		ctx := context.Background()
		tx1 := mustCreate(t, repo, "one", 100, false, date(1))
		tx2 := mustCreate(t, repo, "two", 100, false, date(2))

		n, err := repo.MarkSynced(ctx, []string{tx1.ID, "id-not-exists"})
		if err != nil {
			t.Fatalf("MarkSynced: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 row marked, got %d", n)
		}
		got, _, _ := repo.GetByID(ctx, tx1.ID)
		if !got.IsSynced {
			t.Fatal("tx1 should be synced")
		}

		unsynced, err := repo.GetUnsynced(ctx, user, 0)
		if err != nil || len(unsynced) != 1 || unsynced[0].ID != tx2.ID {
			t.Fatalf("unsynced = %v, err=%v", titles(unsynced), err)
		}
	})
}

func TestMarkSyncedVersionsSkipsEditedRows(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository, clk *clock) {
		ctx := context.Background()
		a := mustCreate(t, repo, "a", 100, false, date(1))
		b := mustCreate(t, repo, "b", 100, false, date(2))

		batch, _ := repo.GetUnsynced(ctx, user, 10)

		// b is edited while the batch is in flight.
		clk.advance(time.Second)
		b.Title = "b edited"
		if _, err := repo.Update(ctx, b); err != nil {
			t.Fatalf("Update: %v", err)
		}

		n, err := repo.MarkSyncedVersions(ctx, batch)
		if err != nil || n != 1 {
			t.Fatalf("MarkSyncedVersions: n=%d err=%v", n, err)
		}
		unsynced, _ := repo.GetUnsynced(ctx, user, 0)
		if len(unsynced) != 1 || unsynced[0].ID != b.ID {
			t.Fatalf("expected only edited row unsynced, got %v", titles(unsynced))
		}
		if got, _, _ := repo.GetByID(ctx, a.ID); !got.IsSynced {
			t.Fatal("a should be synced")
		}
	})
}

func TestGetUnsyncedLimit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository, _ *clock) {
		for d := 5; d >= 1; d-- {
			mustCreate(t, repo, fmt.Sprintf("day %d", d), 100, false, date(d))
		}
		batch, err := repo.GetUnsynced(context.Background(), user, 2)
		if err != nil {
			t.Fatalf("GetUnsynced: %v", err)
		}
		if len(batch) != 2 || batch[0].Title != "day 1" || batch[1].Title != "day 2" {
			t.Fatalf("expected oldest two, got %v", titles(batch))
		}
	})
}

// Totals must equal the sum over rows after every mutation.
func TestAggregateConsistency(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository, clk *clock) {
		ctx := context.Background()
		rng := rand.New(rand.NewSource(7))
		var live []core.Transaction

		check := func(step int) {
			t.Helper()
			all, err := repo.GetAll(ctx, user)
			if err != nil {
				t.Fatalf("step %d: GetAll: %v", step, err)
			}
			var income, expense int64
			for i, tx := range all {
				if tx.Amount.Cents <= 0 {
					t.Fatalf("step %d: non-positive amount %d", step, tx.Amount.Cents)
				}
				if i > 0 && all[i-1].Date.Before(tx.Date) {
					t.Fatalf("step %d: rows not in descending date order", step)
				}
				if tx.IsExpense {
					expense += tx.Amount.Cents
				} else {
					income += tx.Amount.Cents
				}
			}
			totals, err := repo.Totals(ctx, user)
			if err != nil {
				t.Fatalf("step %d: Totals: %v", step, err)
			}
			if totals.Income.Cents != income || totals.Expense.Cents != expense {
				t.Fatalf("step %d: totals %+v, rows income=%d expense=%d", step, totals, income, expense)
			}
			balance, _ := repo.GetTotalBalance(ctx, user)
			if balance.Cents != income-expense || totals.Balance != balance {
				t.Fatalf("step %d: balance %d, want %d", step, balance.Cents, income-expense)
			}
		}

		for step := 0; step < 60; step++ {
			clk.advance(time.Second)
			switch op := rng.Intn(4); {
			case op <= 1 || len(live) == 0:
				tx := mustCreate(t, repo, fmt.Sprintf("t%d", step), int64(rng.Intn(100000)+1), rng.Intn(2) == 0, date(rng.Intn(28)+1))
				live = append(live, tx)
			case op == 2:
				i := rng.Intn(len(live))
				live[i].Amount = cents(int64(rng.Intn(100000) + 1))
				live[i].IsExpense = !live[i].IsExpense
				updated, err := repo.Update(ctx, live[i])
				if err != nil {
					t.Fatalf("step %d: update: %v", step, err)
				}
				if updated.IsSynced {
					t.Fatalf("step %d: update left row synced", step)
				}
				live[i] = updated
			default:
				i := rng.Intn(len(live))
				if err := repo.Delete(ctx, live[i].ID); err != nil {
					t.Fatalf("step %d: delete: %v", step, err)
				}
				live = append(live[:i], live[i+1:]...)
			}
			check(step)
		}
	})
}

func titles(list []core.Transaction) []string {
	out := make([]string, len(list))
	for i, tx := range list {
		out[i] = tx.Title
	}
	return out
}
