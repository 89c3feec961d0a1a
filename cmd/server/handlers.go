package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/brunobiangulo/txt2kgx"
	"github.com/brunobiangulo/txt2kgx/store"
)

// extractor is the part of *txt2kgx.Pipeline the handlers use.
type extractor interface {
	ProcessText(ctx context.Context, name, text string) (*txt2kgx.Report, error)
	ProcessFile(ctx context.Context, path string, opts ...txt2kgx.ProcessOption) (*txt2kgx.Report, error)
	Ledger() *store.Store
	Unmapped() (categories, predicates []string)
	Grammar() string
}

type handler struct {
	pipeline extractor
	// mu serialises extraction: all requests append to the same sinks.
	mu sync.Mutex
}

func newHandler(p extractor) *handler {
	return &handler{pipeline: p}
}

// POST /extract
// Accepts a multipart file upload or JSON with a document name and text.
func (h *handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	// Try multipart upload first
	if err := r.ParseMultipartForm(100 << 20); err == nil { // 100MB max
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			// Sanitise filename to prevent path traversal.
			safeName := filepath.Base(header.Filename)

			tmpDir, err := os.MkdirTemp("", "txt2kgx-upload-")
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to process file")
				slog.Error("creating temp dir", "error", err)
				return
			}
			defer os.RemoveAll(tmpDir)

			tmpPath := filepath.Join(tmpDir, safeName)
			dst, err := os.Create(tmpPath)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to process file")
				slog.Error("creating temp file", "error", err)
				return
			}
			if _, err := io.Copy(dst, file); err != nil {
				dst.Close()
				writeError(w, http.StatusInternalServerError, "failed to save file")
				slog.Error("saving uploaded file", "error", err)
				return
			}
			dst.Close()

			h.mu.Lock()
			rep, err := h.pipeline.ProcessFile(ctx, tmpPath, txt2kgx.WithForce())
			h.mu.Unlock()
			h.writeReport(w, rep, err)
			return
		}
	}

	var req struct {
		Name string `json:"name"`
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'name' and 'text'")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	h.mu.Lock()
	rep, err := h.pipeline.ProcessText(ctx, req.Name, req.Text)
	h.mu.Unlock()
	h.writeReport(w, rep, err)
}

// POST /ingest
// Processes a document already on the server's filesystem.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	var req struct {
		Path  string `json:"path"`
		Force bool   `json:"force,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	// Validate that path is a real file (prevents directory traversal probing).
	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusBadRequest, "path must be an existing file")
		return
	}

	var opts []txt2kgx.ProcessOption
	if req.Force {
		opts = append(opts, txt2kgx.WithForce())
	}

	h.mu.Lock()
	rep, err := h.pipeline.ProcessFile(ctx, absPath, opts...)
	h.mu.Unlock()
	h.writeReport(w, rep, err)
}

func (h *handler) writeReport(w http.ResponseWriter, rep *txt2kgx.Report, err error) {
	if err != nil {
		slog.Error("extraction error", "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, txt2kgx.ErrEmptyDocument):
		return http.StatusBadRequest
	case errors.Is(err, txt2kgx.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, txt2kgx.ErrParsingFailed),
		errors.Is(err, txt2kgx.ErrPayloadNotFound),
		errors.Is(err, txt2kgx.ErrMalformedPayload):
		return http.StatusUnprocessableEntity
	case errors.Is(err, txt2kgx.ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// GET /documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	ledger := h.pipeline.Ledger()
	if ledger == nil {
		writeError(w, http.StatusNotFound, "no ledger configured")
		return
	}
	docs, err := ledger.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		slog.Error("list documents error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
	})
}

// GET /runs/{id}
func (h *handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	ledger := h.pipeline.Ledger()
	if ledger == nil {
		writeError(w, http.StatusNotFound, "no ledger configured")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := ledger.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load run")
		slog.Error("get run error", "run_id", id, "error", err)
		return
	}
	outcomes, err := ledger.ListOutcomes(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load outcomes")
		slog.Error("list outcomes error", "run_id", id, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":      run,
		"outcomes": outcomes,
	})
}

// GET /unmapped
func (h *handler) handleUnmapped(w http.ResponseWriter, r *http.Request) {
	categories, predicates := h.pipeline.Unmapped()
	writeJSON(w, http.StatusOK, map[string][]string{
		"categories": categories,
		"predicates": predicates,
	})
}

// GET /grammar
func (h *handler) handleGrammar(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, h.pipeline.Grammar())
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
