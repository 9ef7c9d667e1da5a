package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

func (s *Server) settingsRoutes(api *mux.Router) {
	api.HandleFunc("/settings", s.handleListSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings/{key}", s.handleSetSetting).Methods(http.MethodPut)
	api.HandleFunc("/settings/{key}", s.handleDeleteSetting).Methods(http.MethodDelete)
}

func (s *Server) recurringRoutes(api *mux.Router) {
	api.HandleFunc("/recurring", s.handleListRecurring).Methods(http.MethodGet)
	api.HandleFunc("/recurring", s.handleCreateRecurring).Methods(http.MethodPost)
	api.HandleFunc("/recurring/run", s.handleRunRecurring).Methods(http.MethodPost)
	api.HandleFunc("/recurring/{id:[0-9]+}", s.handleDeleteRecurring).Methods(http.MethodDelete)
}

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	all, err := s.svc.Settings.All(r.Context())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	if all == nil {
		all = map[string]string{}
	}
	writeJSON(w, http.StatusOK, all)
}

type settingRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, maxJSONBytes)
	var req settingRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	key := mux.Vars(r)["key"]
	value := sanitizeInput(req.Value)
	if err := s.svc.Settings.Set(r.Context(), key, value); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (s *Server) handleDeleteSetting(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Settings.Delete(r.Context(), mux.Vars(r)["key"]); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Recurring.List(r.Context())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(list))
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, maxJSONBytes)
	rt := core.RecurringTransaction{Active: true}
	if err := DecodeJSON(r, &rt); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	rt.Note = sanitizeInput(rt.Note)
	created, err := s.svc.Recurring.Create(r.Context(), rt)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	if err := s.svc.Recurring.Delete(r.Context(), id); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunRecurring processes due templates now instead of waiting for the
// recurring worker's next tick.
func (s *Server) handleRunRecurring(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Recurring.ProcessDue(r.Context(), s.now())
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"created": n})
}
