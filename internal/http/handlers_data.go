package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"fintrack/internal/backup"
	"fintrack/internal/core"
	"fintrack/internal/export"
	applog "fintrack/internal/log"
)

const (
	contentTypeZIP  = "application/zip"
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (s *Server) dataRoutes(api *mux.Router) {
	api.HandleFunc("/backup", s.handleCreateBackup).Methods(http.MethodPost)
	api.HandleFunc("/backup/latest", s.handleLatestBackup).Methods(http.MethodGet)
	api.HandleFunc("/backup/restore", s.handleRestoreBackup).Methods(http.MethodPost)
	api.HandleFunc("/export/{format:csv|xlsx}", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/import/{format:csv|xlsx}", s.handleImport).Methods(http.MethodPost)
}

func attachment(w http.ResponseWriter, contentType, name string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleCreateBackup builds the whole bundle before answering so a failure
// still gets a proper error response.
func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	name := backup.FileName(s.now())
	var buf bytes.Buffer
	rec, err := s.svc.Backup.Create(r.Context(), &buf, name)
	if err != nil {
		writeError(w, r, applog.OpBackup, err)
		return
	}
	w.Header().Set("X-Backup-Transactions", strconv.Itoa(rec.Transactions))
	attachment(w, contentTypeZIP, rec.FileName, buf.Bytes())
}

func (s *Server) handleLatestBackup(w http.ResponseWriter, r *http.Request) {
	rec, ok, err := s.svc.Store.LatestBackup(r.Context())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	if !ok {
		writeError(w, r, applog.OpRead, core.NotFoundError("latest backup", "no backup has been taken yet"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, maxUploadBytes)
	data, err := ReadUpload(r, maxUploadBytes)
	if err != nil {
		writeError(w, r, applog.OpRestore, err)
		return
	}
	res, err := s.svc.Backup.Restore(r.Context(), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		writeError(w, r, applog.OpRestore, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Store.ExportDataset(r.Context())
	if err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}
	format := mux.Vars(r)["format"]
	name := "fintrack-export-" + s.now().UTC().Format("20060102-150405") + "." + format

	var buf bytes.Buffer
	contentType := contentTypeCSV
	if format == "xlsx" {
		contentType = contentTypeXLSX
		err = export.WriteXLSX(&buf, d)
	} else {
		err = export.WriteCSV(&buf, d)
	}
	if err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}
	attachment(w, contentType, name, buf.Bytes())
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, maxUploadBytes)
	data, err := ReadUpload(r, maxUploadBytes)
	if err != nil {
		writeError(w, r, applog.OpImport, err)
		return
	}

	start := time.Now()
	var d core.Dataset
	if mux.Vars(r)["format"] == "xlsx" {
		d, err = export.ReadXLSX(bytes.NewReader(data))
	} else {
		d, err = export.ReadCSV(bytes.NewReader(data))
	}
	if err != nil {
		writeError(w, r, applog.OpImport, err)
		return
	}
	if err := s.svc.Importer.Import(r.Context(), d); err != nil {
		writeError(w, r, applog.OpImport, err)
		return
	}
	applog.FromContext(r.Context()).WithComponent(applog.ComponentExport).InfoContext(r.Context(), "Import completed",
		"format", mux.Vars(r)["format"],
		applog.FieldDuration, time.Since(start).Milliseconds())
	writeJSON(w, http.StatusOK, map[string]int{
		"accounts":     len(d.Accounts),
		"categories":   len(d.Categories),
		"transactions": len(d.Transactions),
		"budgets":      len(d.Budgets),
	})
}
