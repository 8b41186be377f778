package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/view"
)

type transactionResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Title         string    `json:"title"`
	Amount        string    `json:"amount"`
	DisplayAmount string    `json:"displayAmount"`
	Category      string    `json:"category"`
	Notes         *string   `json:"notes,omitempty"`
	Date          string    `json:"date"`
	IsExpense     bool      `json:"isExpense"`
	IsSynced      bool      `json:"isSynced"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type totalsResponse struct {
	Balance string `json:"balance"`
	Income  string `json:"income"`
	Expense string `json:"expense"`
}

type summaryResponse struct {
	Totals  totalsResponse `json:"totals"`
	Count   int            `json:"count"`
	Loading bool           `json:"loading"`
	Error   string         `json:"error,omitempty"`
	Version uint64         `json:"version"`
}

// stateResponse is the payload of a server-sent "state" event.
type stateResponse struct {
	summaryResponse
	Transactions []transactionResponse `json:"transactions"`
}

type categoryResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Icon      string  `json:"icon,omitempty"`
	Color     *string `json:"color,omitempty"`
	IsExpense bool    `json:"isExpense"`
	IsDefault bool    `json:"isDefault"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func newTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		UserID:        t.UserID,
		Title:         t.Title,
		Amount:        t.Amount.String(),
		DisplayAmount: t.DisplayAmount().String(),
		Category:      t.Category,
		Notes:         t.Notes,
		Date:          t.Date.UTC().Format("2006-01-02"),
		IsExpense:     t.IsExpense,
		IsSynced:      t.IsSynced,
		CreatedAt:     t.CreatedAt.UTC(),
		UpdatedAt:     t.UpdatedAt.UTC(),
	}
}

func newTransactionList(list []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, len(list))
	for i, t := range list {
		out[i] = newTransactionResponse(t)
	}
	return out
}

func newTotalsResponse(t core.Totals) totalsResponse {
	return totalsResponse{
		Balance: t.Balance.String(),
		Income:  t.Income.String(),
		Expense: t.Expense.String(),
	}
}

func newSummaryResponse(s view.State) summaryResponse {
	return summaryResponse{
		Totals:  newTotalsResponse(s.Totals),
		Count:   len(s.Transactions),
		Loading: s.Loading,
		Error:   s.Err,
		Version: s.Version,
	}
}

func newStateResponse(s view.State) stateResponse {
	return stateResponse{
		summaryResponse: newSummaryResponse(s),
		Transactions:    newTransactionList(s.Transactions),
	}
}

func newCategoryList(list []core.Category) []categoryResponse {
	out := make([]categoryResponse, len(list))
	for i, c := range list {
		out[i] = categoryResponse{
			ID:        c.ID,
			Name:      c.Name,
			Icon:      c.Icon,
			Color:     c.Color,
			IsExpense: c.IsExpense,
			IsDefault: c.IsDefault,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConstraintViolation):
		return http.StatusConflict
	case errors.Is(err, core.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and replies with a JSON error.
// Internal errors are not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error()}

	var verr *core.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", status,
			"error", err)
		if status == http.StatusInternalServerError {
			body.Error = "internal error"
		} else {
			body.Error = "storage unavailable"
		}
	}
	writeJSON(w, status, body)
}
