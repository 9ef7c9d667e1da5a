package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

func (s *Server) accountRoutes(api *mux.Router) {
	api.HandleFunc("/accounts", s.handleListAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts", s.handleCreateAccount).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id:[0-9]+}", s.handleGetAccount).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id:[0-9]+}", s.handleUpdateAccount).Methods(http.MethodPut)
	api.HandleFunc("/accounts/{id:[0-9]+}", s.handleDeleteAccount).Methods(http.MethodDelete)
}

func (s *Server) categoryRoutes(api *mux.Router) {
	api.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories/order", s.handleReorderCategories).Methods(http.MethodPut)
	api.HandleFunc("/categories/{id:[0-9]+}", s.handleGetCategory).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id:[0-9]+}", s.handleUpdateCategory).Methods(http.MethodPut)
	api.HandleFunc("/categories/{id:[0-9]+}", s.handleDeleteCategory).Methods(http.MethodDelete)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.svc.Catalog.ListAccounts(r.Context(), QueryBool(r.URL.Query(), "archived"))
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(accounts))
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, maxJSONBytes)
	var a core.Account
	if err := DecodeJSON(r, &a); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	a.Name = sanitizeInput(a.Name)
	created, err := s.svc.Catalog.CreateAccount(r.Context(), a)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	a, err := s.svc.Catalog.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, maxJSONBytes)
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	var a core.Account
	if err := DecodeJSON(r, &a); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	a.ID = id
	a.Name = sanitizeInput(a.Name)
	updated, err := s.svc.Catalog.UpdateAccount(r.Context(), a)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	if err := s.svc.Catalog.DeleteAccount(r.Context(), id); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typ := core.CategoryType(q.Get("type"))
	if typ != "" && typ != core.ExpenseCategory && typ != core.IncomeCategory {
		writeError(w, r, applog.OpList, core.ValidationError("list categories", "type must be expense or income"))
		return
	}
	cats, err := s.svc.Catalog.ListCategories(r.Context(), typ, QueryBool(q, "archived"))
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(cats))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, maxJSONBytes)
	var c core.Category
	if err := DecodeJSON(r, &c); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	c.Name = sanitizeInput(c.Name)
	created, err := s.svc.Catalog.CreateCategory(r.Context(), c)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	c, err := s.svc.Catalog.GetCategory(r.Context(), id)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, maxJSONBytes)
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	var c core.Category
	if err := DecodeJSON(r, &c); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	c.ID = id
	c.Name = sanitizeInput(c.Name)
	updated, err := s.svc.Catalog.UpdateCategory(r.Context(), c)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	if err := s.svc.Catalog.DeleteCategory(r.Context(), id); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reorderRequest struct {
	IDs []int64 `json:"ids"`
}

func (s *Server) handleReorderCategories(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, maxJSONBytes)
	var req reorderRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	if err := s.svc.Catalog.ReorderCategories(r.Context(), req.IDs); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
