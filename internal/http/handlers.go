package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// handleListTransactions applies ?type= and then ?q= to the cached list.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.ParseTypeFilter(q.Get("type"))
	list := s.deps.Ledger.Filter(filter, strings.TrimSpace(q.Get("q")))
	writeJSON(w, http.StatusOK, newTransactionList(list))
}

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	list := s.deps.Ledger.Recent(queryInt(r, "n", 0))
	writeJSON(w, http.StatusOK, newTransactionList(list))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.lookup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionResponse(t))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := req.toNew()
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.deps.Ledger.Add(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction created via API",
		log.FieldTxID, t.ID,
		log.FieldOperation, log.OpCreate)
	w.Header().Set("Location", "/api/transactions/"+t.ID)
	writeJSON(w, http.StatusCreated, newTransactionResponse(t))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	current, err := s.lookup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	edited, err := req.applyTo(current)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.deps.Ledger.Edit(r.Context(), edited)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction updated via API",
		log.FieldTxID, t.ID,
		log.FieldOperation, log.OpUpdate)
	writeJSON(w, http.StatusOK, newTransactionResponse(t))
}

// handleDeleteTransaction is idempotent: unknown ids, and ids owned by
// another user, get 204 and nothing is removed.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.lookup(r); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, r, err)
		return
	}
	if err := s.deps.Ledger.Remove(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction deleted via API",
		log.FieldTxID, id,
		log.FieldOperation, log.OpDelete)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSummaryResponse(s.deps.Ledger.Snapshot()))
}

func (s *Server) handleClearError(w http.ResponseWriter, r *http.Request) {
	s.deps.Ledger.ClearError()
	writeJSON(w, http.StatusOK, newSummaryResponse(s.deps.Ledger.Snapshot()))
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Categories.List(r.Context(), s.deps.Ledger.UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCategoryList(list))
}

type syncResponse struct {
	Pending  int    `json:"pending"`
	Accepted int    `json:"accepted"`
	Marked   int64  `json:"marked"`
	Error    string `json:"error,omitempty"`
}

// handleSync runs one pass. A partial publish still answers 200 with the
// counts and the error text; only a failed read of pending rows is an error.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sync == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "sync is not configured"})
		return
	}
	res, err := s.deps.Sync.SyncOnce(r.Context())
	body := syncResponse{Pending: res.Pending, Accepted: res.Accepted, Marked: res.Marked}
	if err != nil {
		if res.Pending == 0 {
			writeError(w, r, err)
			return
		}
		log.FromContext(r.Context()).WarnContext(r.Context(), "Manual sync incomplete",
			log.FieldOperation, log.OpSync,
			log.FieldError, err)
		body.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

// lookup fetches the path transaction, hiding rows of other users.
func (s *Server) lookup(r *http.Request) (core.Transaction, error) {
	id := r.PathValue("id")
	t, ok, err := s.deps.Lookup.GetByID(r.Context(), id)
	if err != nil {
		return core.Transaction{}, err
	}
	if !ok || t.UserID != s.deps.Ledger.UserID() {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return t, nil
}
