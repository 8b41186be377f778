// Package view keeps the active user's transaction list and totals in memory
// for the presentation layer. Every load and mutation goes through the
// repository and re-queries totals; nothing is adjusted incrementally.
package view

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
)

// DefaultRecent is the size of Recent when n <= 0.
const DefaultRecent = 5

// Ledger is the subset of the transaction repository the cache drives.
type Ledger interface {
	Create(ctx context.Context, n core.NewTransaction) (core.Transaction, error)
	GetAll(ctx context.Context, userID string) ([]core.Transaction, error)
	Update(ctx context.Context, t core.Transaction) (core.Transaction, error)
	Delete(ctx context.Context, id string) error
	GetTotalIncome(ctx context.Context, userID string) (core.Money, error)
	GetTotalExpense(ctx context.Context, userID string) (core.Money, error)
	GetTotalBalance(ctx context.Context, userID string) (core.Money, error)
}

// State is an immutable snapshot of the cache.
type State struct {
	Transactions []core.Transaction
	Totals       core.Totals
	Loading      bool
	// Err holds the last failure message until ClearError or the next
	// load or mutation.
	Err string
	// Version increases on every published change.
	Version uint64
}

type Cache struct {
	ledger Ledger
	userID string

	// writeMu serializes loads and mutations end to end.
	writeMu sync.Mutex

	mu    sync.RWMutex
	state State

	subsMu sync.Mutex
	subs   map[int]chan State
	nextID int
}

func New(ledger Ledger, userID string) *Cache {
	return &Cache{
		ledger: ledger,
		userID: userID,
		state:  State{Transactions: []core.Transaction{}},
		subs:   make(map[int]chan State),
	}
}

// UserID is the user whose rows the cache holds.
func (c *Cache) UserID() string { return c.userID }

// Load replaces the list and totals from the repository. Failures are kept
// in the error slot only; Loading is always cleared.
func (c *Cache) Load(ctx context.Context) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.begin()

	list, err := c.ledger.GetAll(ctx, c.userID)
	if err != nil {
		c.fail(ctx, "load", err)
		return
	}
	totals, err := c.totals(ctx)
	if err != nil {
		c.fail(ctx, "load", err)
		return
	}

	c.mu.Lock()
	c.state.Transactions = list
	c.state.Totals = totals
	c.mu.Unlock()
	c.finish()

	slog.DebugContext(ctx, "View cache loaded", "user_id", c.userID, "count", len(list))
}

// Add creates a transaction for the cache's user and puts it at the head of
// the list. The error is also recorded in the error slot.
func (c *Cache) Add(ctx context.Context, n core.NewTransaction) (core.Transaction, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.begin()
	n.UserID = c.userID
	t, err := c.ledger.Create(ctx, n)
	if err != nil {
		return core.Transaction{}, c.fail(ctx, "add", err)
	}

	c.mu.Lock()
	list := make([]core.Transaction, 0, len(c.state.Transactions)+1)
	list = append(list, t)
	c.state.Transactions = append(list, c.state.Transactions...)
	c.mu.Unlock()

	return t, c.refreshTotals(ctx, "add")
}

// Edit updates a transaction and replaces it in place, matched by id.
func (c *Cache) Edit(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.begin()
	updated, err := c.ledger.Update(ctx, t)
	if err != nil {
		return core.Transaction{}, c.fail(ctx, "edit", err)
	}

	c.mu.Lock()
	list := make([]core.Transaction, len(c.state.Transactions))
	copy(list, c.state.Transactions)
	for i := range list {
		if list[i].ID == updated.ID {
			list[i] = updated
			break
		}
	}
	c.state.Transactions = list
	c.mu.Unlock()

	return updated, c.refreshTotals(ctx, "edit")
}

// Remove deletes a transaction and drops it from the list. Removing an
// unknown id succeeds.
func (c *Cache) Remove(ctx context.Context, id string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.begin()
	if err := c.ledger.Delete(ctx, id); err != nil {
		return c.fail(ctx, "remove", err)
	}

	c.mu.Lock()
	list := make([]core.Transaction, 0, len(c.state.Transactions))
	for _, t := range c.state.Transactions {
		if t.ID != id {
			list = append(list, t)
		}
	}
	c.state.Transactions = list
	c.mu.Unlock()

	return c.refreshTotals(ctx, "remove")
}

// Snapshot returns the current state. The slice is a copy.
func (c *Cache) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// ClearError empties the error slot and notifies subscribers.
func (c *Cache) ClearError() {
	c.mu.Lock()
	if c.state.Err == "" {
		c.mu.Unlock()
		return
	}
	c.state.Err = ""
	c.state.Version++
	s := c.snapshotLocked()
	c.mu.Unlock()
	c.broadcast(s)
}

// FilterByType returns the cached rows matching f, in list order.
func (c *Cache) FilterByType(f core.TypeFilter) []core.Transaction {
	return c.Filter(f, "")
}

// Search returns the cached rows whose title or category contains query,
// ignoring case. An empty query returns the whole list.
func (c *Cache) Search(query string) []core.Transaction {
	return c.Filter(core.FilterAll, query)
}

// Filter applies the type filter and then the search query.
func (c *Cache) Filter(f core.TypeFilter, query string) []core.Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := newMatcher(query)
	out := make([]core.Transaction, 0, len(c.state.Transactions))
	for _, t := range c.state.Transactions {
		if f.Matches(t) && m.match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Recent returns the first n rows of the list, DefaultRecent when n <= 0.
func (c *Cache) Recent(n int) []core.Transaction {
	if n <= 0 {
		n = DefaultRecent
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n > len(c.state.Transactions) {
		n = len(c.state.Transactions)
	}
	out := make([]core.Transaction, n)
	copy(out, c.state.Transactions[:n])
	return out
}

// begin enters the loading state and clears the previous error.
func (c *Cache) begin() {
	c.mu.Lock()
	c.state.Loading = true
	c.state.Err = ""
	c.mu.Unlock()
}

// finish leaves the loading state and publishes the result.
func (c *Cache) finish() {
	c.mu.Lock()
	c.state.Loading = false
	c.state.Version++
	s := c.snapshotLocked()
	c.mu.Unlock()
	c.broadcast(s)
}

// fail records err, leaves the loading state and publishes. It returns err.
func (c *Cache) fail(ctx context.Context, op string, err error) error {
	slog.WarnContext(ctx, "View cache operation failed", "op", op, "user_id", c.userID, "error", err)
	c.mu.Lock()
	c.state.Err = err.Error()
	c.mu.Unlock()
	c.finish()
	return err
}

func (c *Cache) refreshTotals(ctx context.Context, op string) error {
	totals, err := c.totals(ctx)
	if err != nil {
		return c.fail(ctx, op, err)
	}
	c.mu.Lock()
	c.state.Totals = totals
	c.mu.Unlock()
	c.finish()
	return nil
}

// totals queries the three aggregates concurrently.
func (c *Cache) totals(ctx context.Context) (core.Totals, error) {
	var t core.Totals
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		t.Income, err = c.ledger.GetTotalIncome(gctx, c.userID)
		return err
	})
	g.Go(func() (err error) {
		t.Expense, err = c.ledger.GetTotalExpense(gctx, c.userID)
		return err
	})
	g.Go(func() (err error) {
		t.Balance, err = c.ledger.GetTotalBalance(gctx, c.userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Totals{}, err
	}
	return t, nil
}

func (c *Cache) snapshotLocked() State {
	s := c.state
	s.Transactions = make([]core.Transaction, len(c.state.Transactions))
	copy(s.Transactions, c.state.Transactions)
	return s
}
