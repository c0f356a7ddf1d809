package handler

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mercadinho/api/internal/csvio"
)

// Uploads are whole CSV files held in memory for the duration of one call.
const maxImportBytes = 16 << 20

// ImportHandler exposes the CSV reconciliation and export engines over HTTP.
type ImportHandler struct {
	importer *csvio.Importer
	exporter *csvio.Exporter
}

func NewImportHandler(importer *csvio.Importer, exporter *csvio.Exporter) *ImportHandler {
	return &ImportHandler{importer: importer, exporter: exporter}
}

// RegisterRoutes registers import/export endpoints. Expected mount: /
func (h *ImportHandler) RegisterRoutes(r chi.Router) {
	r.Post("/imports/{kind}", h.Import)
	r.Get("/exports/{kind}", h.Export)
}

// Import ingests a CSV payload, either as a multipart "file" field or as a
// raw request body. Row-level problems come back inside the report with
// status 200; structural problems reject the whole batch with 400.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	kind, err := csvio.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	payload, err := importPayload(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	defer payload.Close()

	report, err := h.importer.Import(r.Context(), kind, payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("import rejected: %v", err)})
		return
	}

	log.Printf("import batch %s: kind=%s added=%d errors=%d", report.BatchID, report.Kind, report.Added, len(report.Errors))
	writeJSON(w, http.StatusOK, report)
}

// Export streams the current entity set as a CSV attachment whose columns
// mirror the import format.
func (h *ImportHandler) Export(w http.ResponseWriter, r *http.Request) {
	kind, err := csvio.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// Buffer before writing headers so a store failure can still become a
	// clean 500 instead of a truncated download.
	var buf bytes.Buffer
	if err := h.exporter.Export(r.Context(), kind, &buf); err != nil {
		log.Printf("ERROR: export %s: %v", kind, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", kind))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("ERROR: write export response: %v", err)
	}
}

func importPayload(r *http.Request) (io.ReadCloser, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxImportBytes); err != nil {
			return nil, fmt.Errorf("failed to parse multipart form: %w", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("missing file field: %w", err)
		}
		return file, nil
	}
	return http.MaxBytesReader(nil, r.Body, maxImportBytes), nil
}
