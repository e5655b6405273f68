package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/antonkrylov/saprunner/internal/logging"
	"github.com/antonkrylov/saprunner/internal/runstore"
	"github.com/antonkrylov/saprunner/internal/sap"
)

// RunRequest is the body of POST /api/v1/sap/run.
type RunRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// RunResponse is returned when a run completes.
type RunResponse struct {
	Status          string  `json:"status"`
	RunID           string  `json:"run_id"`
	ZucrmExportFile string  `json:"zucrm_export_file"`
	Iw59ExportFile  *string `json:"iw59_export_file"`
	Iw59ArchiveFile *string `json:"iw59_archive_file,omitempty"`
	NotesCount      int     `json:"notes_count"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind,omitempty"`
	RunID  string `json:"run_id,omitempty"`
}

// HTTPServer serves the REST surface.
type HTTPServer struct {
	svc    RunService
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHTTPServer wires the routes. The returned handler stamps every response
// with X-Request-ID.
func NewHTTPServer(svc RunService, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &HTTPServer{svc: svc, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /health", s.healthHandler)
	s.mux.HandleFunc("POST /api/v1/sap/run", s.runHandler)
	s.mux.HandleFunc("GET /api/v1/sap/runs", s.listHandler)
	s.mux.HandleFunc("GET /api/v1/sap/runs/{id}", s.getHandler)
	return s
}

func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.Header.Get(logging.RequestIDHeader))
	if id == "" {
		id = logging.NewRequestID()
	}
	w.Header().Set(logging.RequestIDHeader, id)
	s.mux.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
}

func (s *HTTPServer) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "busy": s.svc.Busy()})
}

func (s *HTTPServer) runHandler(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Detail: "invalid request body", Kind: sap.KindValidation.String()})
		return
	}
	cmd, err := parseCommand(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Detail: err.Error(), Kind: sap.KindValidation.String()})
		return
	}
	s.logger.InfoContext(r.Context(), "run requested",
		"start_date", req.StartDate,
		"end_date", req.EndDate,
	)

	rec, err := s.svc.Run(r.Context(), cmd)
	if err != nil {
		resp := ErrorResponse{Detail: publicMessage(err)}
		if rec != nil {
			resp.RunID = rec.ID
			resp.Kind = rec.ErrorKind
		}
		status := httpStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "run failed", "err", err)
		}
		writeError(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, runResponse(rec))
}

func (s *HTTPServer) listHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrorResponse{Detail: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.svc.List(limit)})
}

func (s *HTTPServer) getHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, runstore.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, ErrorResponse{Detail: "run not found"})
			return
		}
		writeError(w, http.StatusInternalServerError, ErrorResponse{Detail: unexpectedMessage})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func parseCommand(start, end string) (sap.RunCommand, error) {
	from, err := ParseDate(start)
	if err != nil {
		return sap.RunCommand{}, err
	}
	to, err := ParseDate(end)
	if err != nil {
		return sap.RunCommand{}, err
	}
	cmd := sap.RunCommand{StartDate: from, EndDate: to}
	if err := cmd.Validate(); err != nil {
		return sap.RunCommand{}, err
	}
	return cmd, nil
}

func runResponse(rec *runstore.Run) RunResponse {
	resp := RunResponse{
		Status:          "success",
		RunID:           rec.ID,
		ZucrmExportFile: rec.ZucrmExport,
		NotesCount:      rec.NotesCount,
	}
	if rec.Iw59Export != "" {
		v := rec.Iw59Export
		resp.Iw59ExportFile = &v
	}
	if rec.Iw59Archive != "" {
		v := rec.Iw59Archive
		resp.Iw59ArchiveFile = &v
	}
	return resp
}

func httpStatus(err error) int {
	switch classify(err) {
	case classBadRequest:
		return http.StatusBadRequest
	case classBusy:
		return http.StatusConflict
	case classUnavailable:
		return http.StatusServiceUnavailable
	case classNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}
