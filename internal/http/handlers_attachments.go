package http

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	applog "fintrack/internal/log"
)

const maxImageBytes = 32 << 20

func (s *Server) attachmentRoutes(api *mux.Router) {
	api.HandleFunc("/attachments", s.handleUploadAttachment).Methods(http.MethodPost)
	api.HandleFunc("/attachments/{path:.+}", s.handleGetAttachment).Methods(http.MethodGet)
	api.HandleFunc("/attachments/{path:.+}", s.handleDeleteAttachment).Methods(http.MethodDelete)
}

// handleUploadAttachment stores an image and returns its relative path, to
// be listed in a transaction's attachments.
func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, maxImageBytes)
	data, err := ReadUpload(r, maxImageBytes)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	rel, err := s.svc.Attachments.Save(bytes.NewReader(data))
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": rel})
}

func (s *Server) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	f, err := s.svc.Attachments.Open(mux.Vars(r)["path"])
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	defer f.Close()

	modTime := time.Time{}
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeContent(w, r, f.Name(), modTime, f)
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Attachments.Delete(mux.Vars(r)["path"]); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
