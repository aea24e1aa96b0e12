package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/logflow/pmdash/pkg/aggregate"
	"github.com/logflow/pmdash/pkg/analysis"
	lferrors "github.com/logflow/pmdash/pkg/errors"
	"github.com/logflow/pmdash/pkg/eventlog"
	"github.com/logflow/pmdash/pkg/metrics"
	"github.com/logflow/pmdash/pkg/render"
)

// DefaultLogLimit is the preview size of /api/log.
const DefaultLogLimit = 20

// multipartMemory is kept in memory before spilling parts to disk.
const multipartMemory = 32 << 20

// bundleInfo describes the loaded log.
type bundleInfo struct {
	ID       string               `json:"id"`
	Source   string               `json:"source"`
	Format   string               `json:"format"`
	Engine   string               `json:"engine"`
	LoadedAt time.Time            `json:"loaded_at"`
	Rows     int                  `json:"rows"`
	Summary  aggregate.Summary    `json:"summary"`
	Average  aggregate.Average    `json:"average_completion_time"`
	Warnings []render.WarningJSON `json:"warnings"`
}

func newBundleInfo(b *analysis.Bundle) bundleInfo {
	return bundleInfo{
		ID:       b.ID,
		Source:   b.Source,
		Format:   b.Format,
		Engine:   b.Engine,
		LoadedAt: b.LoadedAt,
		Rows:     b.Log.Len(),
		Summary:  b.Summary,
		Average:  b.Average,
		Warnings: render.Warnings(b),
	}
}

// errorResponse is the JSON form of a failure.
type errorResponse struct {
	Error  string                 `json:"error"`
	Code   string                 `json:"code,omitempty"`
	Detail map[string]interface{} `json:"detail,omitempty"`
}

func errorBody(err error) errorResponse {
	resp := errorResponse{Error: err.Error()}
	if c := lferrors.GetCode(err); c != lferrors.CodeUnknown {
		resp.Code = string(c)
	}

	var missing *eventlog.MissingColumnsError
	var ts *eventlog.TimestampParseError
	switch {
	case errors.As(err, &missing):
		resp.Detail = map[string]interface{}{
			"missing":   missing.Missing,
			"required":  missing.Required,
			"available": missing.Available,
		}
	case errors.As(err, &ts):
		resp.Detail = map[string]interface{}{
			"column": ts.Column,
			"row":    ts.Row,
			"value":  ts.Value,
		}
	}
	return resp
}

// loadStatus maps a load failure to an HTTP status. Schema and
// timestamp problems are the caller's data, anything else a bad upload.
func loadStatus(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case lferrors.IsCode(err, lferrors.CodeMissingColumn), lferrors.IsCode(err, lferrors.CodeInvalidTimestamp):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// handleHealth reports liveness and whether a log is loaded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, loaded := s.session.Current()
	jsonResponse(w, map[string]interface{}{
		"status": "ok",
		"loaded": loaded,
	})
}

// handleUpload receives a multipart "file" and replaces the session log.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.opts.MaxUploadSize {
		jsonError(w, "Upload too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		status := http.StatusBadRequest
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
		}
		jsonError(w, "Failed to parse upload", status)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, "Failed to read upload", http.StatusBadRequest)
		return
	}

	b, err := s.Load(r.Context(), header.Filename, content)
	if err != nil {
		s.log.Warnf("upload %s rejected: %v", header.Filename, err)
		jsonStatus(w, loadStatus(err), errorBody(err))
		return
	}

	jsonResponse(w, newBundleInfo(b))
}

// handleSession describes the loaded log.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	b, ok := s.current(w)
	if !ok {
		return
	}
	jsonResponse(w, newBundleInfo(b))
}

// handleClear drops the loaded log.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// handleLog returns the first rows of the validated log.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	b, ok := s.current(w)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r, DefaultLogLimit)
	if !ok {
		return
	}
	jsonResponse(w, map[string]interface{}{
		"rows":   b.Log.Len(),
		"events": render.Events(b.Log.Head(limit)),
	})
}

// handleView returns one computed view. limit truncates list views.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	b, ok := s.current(w)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r, 0)
	if !ok {
		return
	}

	switch view := mux.Vars(r)["view"]; view {
	case "case-durations":
		jsonResponse(w, b.CaseDurations)
	case "activities":
		jsonResponse(w, aggregate.TopActivities(b.Activities, limit))
	case "average":
		jsonResponse(w, map[string]interface{}{
			"average_completion_time": b.Average,
			"cases":                   len(b.CaseDurations),
		})
	case "transitions":
		jsonResponse(w, aggregate.TopTransitions(b.Transitions, limit))
	case "summary":
		jsonResponse(w, b.Summary)
	case "variants":
		vs := b.Variants
		if limit > 0 && limit < len(vs) {
			vs = vs[:limit]
		}
		jsonResponse(w, vs)
	case "endpoints":
		jsonResponse(w, map[string]interface{}{
			"start": aggregate.TopActivities(b.StartActivities, limit),
			"end":   aggregate.TopActivities(b.EndActivities, limit),
		})
	default:
		jsonError(w, fmt.Sprintf("Unknown view %q", view), http.StatusNotFound)
	}
}

// handleRender runs a renderer over the loaded bundle.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	b, ok := s.current(w)
	if !ok {
		return
	}

	name := mux.Vars(r)["name"]
	rd, err := render.ByName(name, s.opts.Render)
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}

	// Render fully first so a failure is still a clean JSON error.
	var buf bytes.Buffer
	if err := rd.Render(r.Context(), &buf, b); err != nil {
		s.metrics.Counter(metrics.MetricRenderTotal, 1, map[string]string{
			metrics.TagRenderer: rd.Name(),
			metrics.TagStatus:   "error",
		})
		jsonStatus(w, http.StatusInternalServerError, errorBody(err))
		return
	}
	s.metrics.Counter(metrics.MetricRenderTotal, 1, map[string]string{
		metrics.TagRenderer: rd.Name(),
		metrics.TagStatus:   "ok",
	})

	w.Header().Set("Content-Type", rd.ContentType())
	if rd.Name() == render.NameParquet {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "events.parquet"))
	}
	w.Write(buf.Bytes())
}

// current returns the session bundle or writes 409.
func (s *Server) current(w http.ResponseWriter) (*analysis.Bundle, bool) {
	b, ok := s.session.Current()
	if !ok {
		jsonError(w, "no log loaded", http.StatusConflict)
	}
	return b, ok
}

func queryLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		jsonError(w, fmt.Sprintf("Invalid limit %q", v), http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

// Helper functions

func jsonResponse(w http.ResponseWriter, data interface{}) {
	jsonStatus(w, http.StatusOK, data)
}

func jsonStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	jsonStatus(w, status, errorResponse{Error: message})
}
