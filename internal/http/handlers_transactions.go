package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/search"
)

func (s *Server) transactionRoutes(api *mux.Router) {
	api.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions", s.handleCreateTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions/search", s.handleSearchTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id:[0-9]+}", s.handleGetTransaction).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id:[0-9]+}", s.handleUpdateTransaction).Methods(http.MethodPut)
	api.HandleFunc("/transactions/{id:[0-9]+}", s.handleDeleteTransaction).Methods(http.MethodDelete)
}

// handleListTransactions lists one month, newest first.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ym, err := ParseMonthParams(r.URL.Query(), s.now(), s.location())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	txs, err := s.svc.Transactions.ListMonth(r.Context(), ym)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(txs))
}

func (s *Server) handleSearchTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := search.ParseFilter(r.URL.Query(), s.location())
	if err != nil {
		writeError(w, r, applog.OpSearch, err)
		return
	}
	txs, err := s.svc.Transactions.Search(r.Context(), f)
	if err != nil {
		writeError(w, r, applog.OpSearch, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(txs))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, maxJSONBytes)
	var t core.Transaction
	if err := DecodeJSON(r, &t); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	t.Note = sanitizeInput(t.Note)
	t.Location = sanitizeInput(t.Location)
	created, err := s.svc.Transactions.Create(r.Context(), t)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	applog.FromContext(r.Context()).WithComponent(applog.ComponentLedger).InfoContext(r.Context(), "Transaction created",
		applog.NewFields().WithTransaction(created).ToSlice()...)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	t, err := s.svc.Transactions.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, maxJSONBytes)
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	prev, err := s.svc.Transactions.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	var t core.Transaction
	if err := DecodeJSON(r, &t); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	t.ID = id
	t.Note = sanitizeInput(t.Note)
	t.Location = sanitizeInput(t.Location)
	updated, err := s.svc.Transactions.Update(r.Context(), t)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	s.svc.Attachments.DeleteAll(droppedAttachments(prev.Attachments, updated.Attachments))
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	prev, err := s.svc.Transactions.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	s.svc.Attachments.DeleteAll(prev.Attachments)
	w.WriteHeader(http.StatusNoContent)
}

// droppedAttachments lists the paths in before that are missing from after.
func droppedAttachments(before, after []string) []string {
	keep := make(map[string]bool, len(after))
	for _, p := range after {
		keep[p] = true
	}
	var out []string
	for _, p := range before {
		if !keep[p] {
			out = append(out, p)
		}
	}
	return out
}
