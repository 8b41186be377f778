package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	FilterAll     TypeFilter = "All"
	FilterIncome  TypeFilter = "Income"
	FilterExpense TypeFilter = "Expense"
)

// MaxTitleLength bounds the display label of a transaction.
const MaxTitleLength = 200

type (
	// TypeFilter selects a subset of transactions by direction.
	TypeFilter string

	Money struct {
		Cents int64
	}

	// Transaction is a single inflow or outflow owned by a user.
	// Amount is always positive; the direction is carried by IsExpense.
	Transaction struct {
		ID        string
		UserID    string
		Title     string
		Amount    Money
		Category  string
		Notes     *string
		Date      time.Time
		IsExpense bool
		IsSynced  bool
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// NewTransaction carries the caller-supplied fields of a transaction
	// before an id and timestamps are assigned.
	NewTransaction struct {
		UserID    string
		Title     string
		Amount    Money
		Category  string
		Notes     *string
		Date      time.Time
		IsExpense bool
	}

	Category struct {
		ID        string
		Name      string
		Icon      string
		Color     *string
		IsExpense bool
		UserID    *string
		IsDefault bool
	}

	// Totals are the derived aggregates for a user.
	Totals struct {
		Balance Money
		Income  Money
		Expense Money
	}
)

// ParseTypeFilter maps a raw value to a filter; anything unrecognized is FilterAll.
func ParseTypeFilter(s string) TypeFilter {
	switch TypeFilter(strings.TrimSpace(s)) {
	case FilterIncome:
		return FilterIncome
	case FilterExpense:
		return FilterExpense
	default:
		return FilterAll
	}
}

// Matches reports whether t passes the filter.
func (f TypeFilter) Matches(t Transaction) bool {
	switch f {
	case FilterIncome:
		return !t.IsExpense
	case FilterExpense:
		return t.IsExpense
	default:
		return true
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	return nil
}

// Neg returns the money value with its sign flipped.
func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// DisplayAmount is the signed amount shown to the user: negative for expenses.
func (t Transaction) DisplayAmount() Money {
	if t.IsExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (t Transaction) Validate() error {
	return validateFields(t.Title, t.Amount)
}

func (n NewTransaction) Validate() error {
	return validateFields(n.Title, n.Amount)
}

func validateFields(title string, amount Money) error {
	if strings.TrimSpace(title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return &ValidationError{Field: "title", Reason: "too long (max 200 characters)"}
	}
	return amount.Validate()
}

// Income reports whether the category describes inflows.
func (c Category) Income() bool {
	return !c.IsExpense
}
