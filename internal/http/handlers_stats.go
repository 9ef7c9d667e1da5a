package http

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

func (s *Server) statsRoutes(api *mux.Router) {
	api.HandleFunc("/stats/monthly", s.handleMonthlyStats).Methods(http.MethodGet)
	api.HandleFunc("/stats/yearly", s.handleYearlyStats).Methods(http.MethodGet)
	api.HandleFunc("/stats/top", s.handleTopCategories).Methods(http.MethodGet)
	api.HandleFunc("/stats/summary", s.handleRangeSummary).Methods(http.MethodGet)
}

// tabParam reads "tab", defaulting to expense.
func tabParam(r *http.Request) core.TransactionType {
	if tab := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("tab"))); tab != "" {
		return core.TransactionType(tab)
	}
	return core.Expense
}

func (s *Server) handleMonthlyStats(w http.ResponseWriter, r *http.Request) {
	ym, err := ParseMonthParams(r.URL.Query(), s.now(), s.location())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	report, err := s.svc.Stats.Monthly(r.Context(), ym, tabParam(r))
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleYearlyStats(w http.ResponseWriter, r *http.Request) {
	year, err := ParseYear(r.URL.Query(), s.now(), s.location())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	report, err := s.svc.Stats.Yearly(r.Context(), year)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleTopCategories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ym, err := ParseMonthParams(q, s.now(), s.location())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	limit, err := QueryInt(q, "limit", 5)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	top, err := s.svc.Stats.TopCategories(r.Context(), ym, tabParam(r), limit)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(top))
}

// handleRangeSummary aggregates [from, to] where both are whole days.
func (s *Server) handleRangeSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := ParseDay(q.Get("from"), s.location())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	to, err := ParseDay(q.Get("to"), s.location())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	top, err := QueryInt(q, "top", 5)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	summary, err := s.svc.Stats.Summary(r.Context(), from, to.AddDate(0, 0, 1), top)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
