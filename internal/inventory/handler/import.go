package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/importfile"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/service"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
	"github.com/progami/wms-ecomos-sub005/pkg/httputil"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

// DefaultImportMaxBytes bounds an uploaded spreadsheet
const DefaultImportMaxBytes = 10 << 20

// ImportHandler handles bulk transaction imports
type ImportHandler struct {
	importer *service.Importer
	maxBytes int64
	limit    func(http.Handler) http.Handler
	logger   *logger.Logger
}

// NewImportHandler creates a new import handler. limit wraps the import
// routes and may be nil.
func NewImportHandler(importer *service.Importer, maxBytes int64, limit func(http.Handler) http.Handler, log *logger.Logger) *ImportHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultImportMaxBytes
	}
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	return &ImportHandler{
		importer: importer,
		maxBytes: maxBytes,
		limit:    limit,
		logger:   log,
	}
}

// Routes mounts the import endpoints
func (h *ImportHandler) Routes(r chi.Router) {
	r.Route("/imports", func(r chi.Router) {
		r.Use(h.limit)
		r.Post("/rows", h.ImportRows)
		r.Post("/file", h.ImportFile)
	})
}

type importRowsRequest struct {
	Rows []domain.ImportRow `json:"rows" validate:"required,min=1"`
}

// ImportRows appends typed rows from a JSON body
func (h *ImportHandler) ImportRows(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	var req importRowsRequest
	if !decode(w, r, &req) {
		return
	}

	summary, err := h.importer.Import(r.Context(), req.Rows)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}

// ImportFile appends the rows of an uploaded CSV or XLSX file sent in the
// multipart field "file". The optional encoding query parameter names the
// CSV character set; format overrides detection by file name.
func (h *ImportHandler) ImportFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		httputil.Error(w, errors.BadRequest("invalid multipart upload: "+err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.Error(w, errors.Invalid("file", "this field is required"))
		return
	}
	defer file.Close()

	q := r.URL.Query()
	format := importfile.Format(q.Get("format"))
	if format == "" {
		if format, err = importfile.FormatFromName(header.Filename); err != nil {
			format, err = importfile.FormatFromName(header.Header.Get("Content-Type"))
		}
		if err != nil {
			httputil.Error(w, err)
			return
		}
	}

	enc, err := importfile.Encoding(q.Get("encoding"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	res, err := importfile.Decode(file, format, enc)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	h.logger.Info().
		Str("file_name", header.Filename).
		Str("format", string(format)).
		Int("rows", len(res.Rows)).
		Int("rejected", len(res.Rejected)).
		Msg("import file decoded")

	summary, err := h.importer.Import(r.Context(), res.Rows, res.Rejected...)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}
