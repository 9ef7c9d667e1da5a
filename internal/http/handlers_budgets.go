package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

func (s *Server) budgetRoutes(api *mux.Router) {
	api.HandleFunc("/budgets", s.handleListBudgets).Methods(http.MethodGet)
	api.HandleFunc("/budgets", s.handleCreateBudget).Methods(http.MethodPost)
	api.HandleFunc("/budgets/progress", s.handleBudgetProgress).Methods(http.MethodGet)
	api.HandleFunc("/budgets/alerts", s.handleBudgetAlerts).Methods(http.MethodGet)
	api.HandleFunc("/budgets/copy", s.handleCopyBudgets).Methods(http.MethodPost)
	api.HandleFunc("/budgets/{id:[0-9]+}", s.handleGetBudget).Methods(http.MethodGet)
	api.HandleFunc("/budgets/{id:[0-9]+}", s.handleUpdateBudget).Methods(http.MethodPut)
	api.HandleFunc("/budgets/{id:[0-9]+}", s.handleDeleteBudget).Methods(http.MethodDelete)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	ym, err := ParseMonthParams(r.URL.Query(), s.now(), s.location())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	budgets, err := s.svc.Budgets.ListBudgets(r.Context(), ym)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(budgets))
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, maxJSONBytes)
	b := core.Budget{Enabled: true}
	if err := DecodeJSON(r, &b); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	b.Note = sanitizeInput(b.Note)
	created, err := s.svc.Budgets.AddBudget(r.Context(), b)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	b, err := s.svc.Budgets.GetBudget(r.Context(), id)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, maxJSONBytes)
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	b := core.Budget{Enabled: true}
	if err := DecodeJSON(r, &b); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	b.ID = id
	b.Note = sanitizeInput(b.Note)
	updated, err := s.svc.Budgets.UpdateBudget(r.Context(), b)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	if err := s.svc.Budgets.DeleteBudget(r.Context(), id); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// progressResponse separates the overall entry from the category entries.
type progressResponse struct {
	Period     core.YearMonth  `json:"period"`
	Overall    *progressEntry  `json:"overall"`
	Categories []progressEntry `json:"categories"`
}

type progressEntry struct {
	core.BudgetProgress
	ClampedProgress  float64 `json:"clamped_progress"`
	OverBudget       bool    `json:"over_budget"`
	ThresholdReached bool    `json:"threshold_reached"`
}

func newProgressEntry(p core.BudgetProgress) progressEntry {
	return progressEntry{
		BudgetProgress:   p,
		ClampedProgress:  p.ClampedProgress(),
		OverBudget:       p.OverBudget(),
		ThresholdReached: p.ThresholdReached(),
	}
}

func (s *Server) handleBudgetProgress(w http.ResponseWriter, r *http.Request) {
	ym, err := ParseMonthParams(r.URL.Query(), s.now(), s.location())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	progress, err := s.svc.Budgets.GetBudgetProgress(r.Context(), ym)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	overall, categories := services.SplitProgress(progress)
	resp := progressResponse{Period: ym, Categories: make([]progressEntry, 0, len(categories))}
	if overall != nil {
		e := newProgressEntry(*overall)
		resp.Overall = &e
	}
	for _, p := range categories {
		resp.Categories = append(resp.Categories, newProgressEntry(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBudgetAlerts(w http.ResponseWriter, r *http.Request) {
	ym, err := ParseMonthParams(r.URL.Query(), s.now(), s.location())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	alerts, err := s.svc.Budgets.ListAlerts(r.Context(), ym)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(alerts))
}

type copyBudgetsRequest struct {
	From core.YearMonth `json:"from"`
	To   core.YearMonth `json:"to"`
}

func (s *Server) handleCopyBudgets(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, maxJSONBytes)
	var req copyBudgetsRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	n, err := s.svc.Budgets.CopyBudgets(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"copied": n})
}
