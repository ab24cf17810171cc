/*
handlers.go - HTTP API handlers for the dataset dashboard backend

PURPOSE:
  Exposes the ingestion engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the runner and
  store.

ENDPOINTS:
  Auth (auth.go):
    POST   /api/register               Create account
    POST   /api/login                  Start session
    POST   /api/logout                 End session
    GET    /api/me                     Current user

  Datasets:
    POST   /api/upload                 Upload a CSV for ingestion
    GET    /api/datasets               List the caller's datasets
    GET    /api/datasets/{id}/status   Poll ingestion status
    GET    /api/datasets/{id}          Aggregates + paginated records
    GET    /api/datasets/{id}/export   Download records as CSV
    DELETE /api/datasets/{id}          Delete dataset and records

REQUEST FLOW:
  1. Parse HTTP request
  2. Resolve the owner from the session (requireAuth middleware)
  3. Call the runner/store
  4. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Schema errors, invalid input
  - 401: Missing/invalid session
  - 404: Dataset absent or owned by someone else (indistinguishable)
  - 409: Duplicate email
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - ingest/runner.go: The state machine behind POST /api/upload
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/salesboard/ingest-engine/ingest"
	"github.com/salesboard/ingest-engine/store/sqlite"
)

// maxUploadBytes bounds one CSV upload.
const maxUploadBytes = 64 << 20

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Runner   *ingest.Runner
	Sessions *sessions.CookieStore
	Log      *slog.Logger
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(store *sqlite.Store, runner *ingest.Runner, sessionStore *sessions.CookieStore, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		Store:    store,
		Runner:   runner,
		Sessions: sessionStore,
		Log:      log,
	}
}

// =============================================================================
// DATASET HANDLERS
// =============================================================================

// Upload accepts a multipart CSV and starts ingestion.
// POST /api/upload
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field", err)
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		writeError(w, http.StatusBadRequest, "Only CSV files are accepted", nil)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload", err)
		return
	}

	dataset, err := h.Runner.Submit(r.Context(), ownerFromContext(r.Context()), filename, data)
	if err != nil {
		var schemaErr *ingest.SchemaError
		if errors.As(err, &schemaErr) {
			writeError(w, http.StatusBadRequest, "Could not parse CSV file", schemaErr)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to start ingestion", err)
		return
	}

	writeJSON(w, http.StatusCreated, toUploadStatsDTO(dataset))
}

// ListDatasets returns the caller's datasets, newest first.
// GET /api/datasets
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.Store.ListDatasets(r.Context(), ownerFromContext(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list datasets", err)
		return
	}

	dtos := make([]DatasetSummaryDTO, len(datasets))
	for i := range datasets {
		dtos[i] = toDatasetSummaryDTO(&datasets[i])
	}
	writeJSON(w, http.StatusOK, DatasetListResponse{Datasets: dtos})
}

// DatasetStatus returns the summary used by the polling loop.
// GET /api/datasets/{id}/status
func (h *Handler) DatasetStatus(w http.ResponseWriter, r *http.Request) {
	dataset, ok := h.ownedDataset(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toDatasetSummaryDTO(dataset))
}

// DatasetDetail returns cached aggregates plus one page of records.
// GET /api/datasets/{id}?page&page_size&sort_by&sort_dir&status_filter&product_line&date_from&date_to
func (h *Handler) DatasetDetail(w http.ResponseWriter, r *http.Request) {
	dataset, ok := h.ownedDataset(w, r)
	if !ok {
		return
	}

	q, err := recordQueryFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query parameter", err)
		return
	}

	records, total, err := h.Store.QueryRecords(r.Context(), dataset.ID, q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query records", err)
		return
	}

	recordDTOs := make([]SalesRecordDTO, len(records))
	for i, rec := range records {
		recordDTOs[i] = toSalesRecordDTO(rec)
	}

	writeJSON(w, http.StatusOK, DatasetDetailResponse{
		ID:           dataset.ID,
		Filename:     dataset.Filename,
		RowCount:     dataset.RowCount,
		DateMin:      formatTimePtr(dataset.DateMin),
		DateMax:      formatTimePtr(dataset.DateMax),
		CreatedAt:    dataset.CreatedAt.Format(time.RFC3339),
		Status:       string(dataset.Status),
		Aggregates:   toAggregatesDTO(dataset.Aggregates),
		Records:      recordDTOs,
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalRecords: total,
	})
}

// ExportDataset streams the record set as a CSV attachment.
// GET /api/datasets/{id}/export
func (h *Handler) ExportDataset(w http.ResponseWriter, r *http.Request) {
	dataset, ok := h.ownedDataset(w, r)
	if !ok {
		return
	}

	records, err := h.Store.AllRecords(r.Context(), dataset.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load records", err)
		return
	}

	stem := strings.TrimSuffix(dataset.Filename, filepath.Ext(dataset.Filename))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, stem))
	w.WriteHeader(http.StatusOK)

	if err := ingest.WriteCSV(w, records); err != nil {
		// Headers are gone; all we can do is log.
		h.Log.Error("export write failed", "dataset", dataset.ID, "error", err)
	}
}

// DeleteDataset removes a dataset and its records.
// DELETE /api/datasets/{id}
func (h *Handler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	dataset, ok := h.ownedDataset(w, r)
	if !ok {
		return
	}

	if err := h.Store.DeleteDataset(r.Context(), dataset.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete dataset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

// ownedDataset loads the dataset in the URL and enforces ownership.
// Datasets of other owners 404 like missing ones.
func (h *Handler) ownedDataset(w http.ResponseWriter, r *http.Request) (*ingest.Dataset, bool) {
	id := chi.URLParam(r, "id")
	dataset, err := h.Store.GetDataset(r.Context(), id)
	if ingest.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "Dataset not found", nil)
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load dataset", err)
		return nil, false
	}
	if dataset.Owner != ownerFromContext(r.Context()) {
		writeError(w, http.StatusNotFound, "Dataset not found", nil)
		return nil, false
	}
	return dataset, true
}

func recordQueryFromRequest(r *http.Request) (ingest.RecordQuery, error) {
	q := ingest.RecordQuery{
		SortBy:      r.URL.Query().Get("sort_by"),
		SortDir:     ingest.SortDir(r.URL.Query().Get("sort_dir")),
		Status:      r.URL.Query().Get("status_filter"),
		ProductLine: r.URL.Query().Get("product_line"),
	}

	var err error
	if q.Page, err = intParam(r, "page", 1); err != nil {
		return q, err
	}
	if q.PageSize, err = intParam(r, "page_size", 20); err != nil {
		return q, err
	}

	if from := r.URL.Query().Get("date_from"); from != "" {
		t, err := parseDateParam(from, false)
		if err != nil {
			return q, fmt.Errorf("date_from: %w", err)
		}
		q.DateFrom = &t
	}
	if to := r.URL.Query().Get("date_to"); to != "" {
		t, err := parseDateParam(to, true)
		if err != nil {
			return q, fmt.Errorf("date_to: %w", err)
		}
		q.DateTo = &t
	}

	q.Normalize()
	return q, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

// parseDateParam accepts YYYY-MM-DD or RFC3339. Day-granular upper
// bounds are pushed to end of day so the bound stays inclusive.
func parseDateParam(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
