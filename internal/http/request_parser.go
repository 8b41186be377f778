package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// transactionRequest is the JSON body of create and update. Amount is a
// decimal string ("12.34" or "12,34") or a JSON number, exponent form
// included.
type transactionRequest struct {
	Title     string          `json:"title"`
	Amount    json.RawMessage `json:"amount"`
	Category  string          `json:"category"`
	Notes     *string         `json:"notes"`
	Date      string          `json:"date"`
	IsExpense *bool           `json:"isExpense"`
}

// decodeJSON reads one JSON object from the body into dst. Unknown fields
// are rejected.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &core.ValidationError{Field: "body", Reason: "must not be empty"}
		}
		return &core.ValidationError{Field: "body", Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return nil
}

func (req transactionRequest) amount() (core.Money, error) {
	raw := strings.TrimSpace(string(req.Amount))
	if raw == "" || raw == "null" {
		return core.Money{}, &core.ValidationError{Field: "amount", Reason: "is required"}
	}
	if unq, err := strconv.Unquote(raw); err == nil {
		raw = unq
	} else if d, err := decimal.NewFromString(raw); err == nil {
		// Bare JSON number: normalise 1e3 and friends to plain notation.
		raw = d.String()
	}
	cents, err := core.ParseDecimalToCents(raw)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

// date accepts YYYY-MM-DD or RFC 3339. Empty yields the zero time.
func (req transactionRequest) date() (time.Time, error) {
	s := strings.TrimSpace(req.Date)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &core.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD or RFC 3339"}
	}
	return t, nil
}

// toNew builds a create request. isExpense defaults to true.
func (req transactionRequest) toNew() (core.NewTransaction, error) {
	amount, err := req.amount()
	if err != nil {
		return core.NewTransaction{}, err
	}
	date, err := req.date()
	if err != nil {
		return core.NewTransaction{}, err
	}
	isExpense := true
	if req.IsExpense != nil {
		isExpense = *req.IsExpense
	}
	return core.NewTransaction{
		Title:     sanitizeInput(req.Title),
		Amount:    amount,
		Category:  sanitizeInput(req.Category),
		Notes:     sanitizeNotes(req.Notes),
		Date:      date,
		IsExpense: isExpense,
	}, nil
}

// applyTo overwrites the editable fields of t. Omitted date and isExpense
// keep their current values.
func (req transactionRequest) applyTo(t core.Transaction) (core.Transaction, error) {
	amount, err := req.amount()
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := req.date()
	if err != nil {
		return core.Transaction{}, err
	}
	t.Title = sanitizeInput(req.Title)
	t.Amount = amount
	t.Category = sanitizeInput(req.Category)
	t.Notes = sanitizeNotes(req.Notes)
	if !date.IsZero() {
		t.Date = date
	}
	if req.IsExpense != nil {
		t.IsExpense = *req.IsExpense
	}
	return t, nil
}

// sanitizeInput trims and strips control characters other than tab and
// newlines.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}

func sanitizeNotes(n *string) *string {
	if n == nil {
		return nil
	}
	s := sanitizeInput(*n)
	if s == "" {
		return nil
	}
	return &s
}

// queryInt reads a non-negative integer query parameter, def when absent
// or malformed.
func queryInt(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
