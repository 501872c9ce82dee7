package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/export"
	"github.com/joseph-ayodele/docparse/internal/llm"
	"github.com/joseph-ayodele/docparse/internal/metrics"
	"github.com/joseph-ayodele/docparse/internal/pipeline"
)

// probeResponseLimit caps the model reply echoed by /test-image.
const probeResponseLimit = 500

// Extractor is the part of the pipeline the HTTP layer drives.
type Extractor interface {
	Run(ctx context.Context, in pipeline.DocumentInput, spec llm.ExtractionSpec) (*pipeline.Result, error)
	Probe(ctx context.Context, in pipeline.DocumentInput) (string, error)
	Model() string
}

type successBody struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Message string         `json:"message"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Handler serves the extraction endpoints.
type Handler struct {
	service   string
	extractor Extractor
	models    llm.ModelLister
	exporter  *export.Service
	metrics   *metrics.Metrics
	maxUpload int64
	logger    *slog.Logger
}

// Root reports that the service is up and which model it uses.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": h.service,
		"status":  "running",
		"model":   h.extractor.Model(),
	})
}

// Health probes the backend. The service itself is healthy whenever it can
// answer; backend reachability is reported alongside.
func (h *Handler) Health(c *gin.Context) {
	model := h.extractor.Model()
	status := "disconnected"
	available := false

	if h.models != nil {
		names, err := h.models.ListModels(c.Request.Context())
		if err != nil {
			h.log(c).Warn("http.health.backend_unreachable", "error", err)
		} else {
			status = "connected"
			for _, n := range names {
				if n == model {
					available = true
					break
				}
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"ollama_status":   status,
		"model":           model,
		"model_available": available,
	})
}

// ParseDocument extracts structured data from one uploaded document.
// With ?format=xlsx the result is returned as a workbook instead of JSON.
func (h *Handler) ParseDocument(c *gin.Context) {
	log := h.log(c)
	start := time.Now()

	in, err := h.readUpload(c)
	if err != nil {
		h.fail(c, err, "")
		return
	}

	spec, err := specFromForm(c.PostForm("document_type"), c.PostForm("custom_fields"))
	if err != nil {
		h.fail(c, err, "")
		return
	}
	log.Info("http.parse.start",
		"filename", in.Filename,
		"size", len(in.Data),
		"content_type", in.ContentType,
		"document_type", spec.Label(),
		"custom_fields", len(spec.CustomFields()),
	)

	res, err := h.extractor.Run(c.Request.Context(), in, spec)
	if err != nil {
		h.observe(constants.OutcomeFailed, spec.Label(), start)
		h.fail(c, err, spec.Label())
		return
	}
	h.observe(res.Outcome, spec.Label(), start)

	if c.Query("format") == "xlsx" {
		h.writeWorkbook(c, in.Filename, spec, res)
		return
	}

	c.JSON(http.StatusOK, successBody{
		Success: true,
		Data:    res.Record,
		Message: "Parsed successfully",
	})
}

// TestImage sends the upload with a one-sentence description prompt, to check
// the backend can see images at all.
func (h *Handler) TestImage(c *gin.Context) {
	in, err := h.readUpload(c)
	if err != nil {
		h.fail(c, err, "")
		return
	}

	reply, err := h.extractor.Probe(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Works!",
		"response": truncate(reply, probeResponseLimit),
	})
}

// readUpload pulls the "file" part out of the multipart form. A missing or
// generic content type is inferred from the file extension.
func (h *Handler) readUpload(c *gin.Context) (pipeline.DocumentInput, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			return pipeline.DocumentInput{}, errTooLarge
		}
		return pipeline.DocumentInput{}, common.KindError("INVALID_INPUT", common.ErrInvalidInput, "no file provided", err)
	}
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		return pipeline.DocumentInput{}, errTooLarge
	}

	data, err := readPart(fh)
	if err != nil {
		return pipeline.DocumentInput{}, common.KindError("INVALID_INPUT", common.ErrInvalidInput, "failed to read file", err)
	}

	ct := constants.NormalizeContentType(fh.Header.Get("Content-Type"))
	if ct == "" || ct == "application/octet-stream" {
		if guess := constants.ContentTypeForExt(filepath.Ext(fh.Filename)); guess != "" {
			ct = guess
		}
	}

	return pipeline.DocumentInput{
		Data:        data,
		ContentType: ct,
		Filename:    fh.Filename,
	}, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// specFromForm turns the form fields into an extraction spec. A non-empty
// custom field list takes precedence over the document type.
func specFromForm(docType, customFields string) (llm.ExtractionSpec, error) {
	fields, err := llm.ParseCustomFields(customFields)
	if err != nil {
		return llm.ExtractionSpec{}, err
	}
	if len(fields) > 0 {
		return llm.ForCustomFields(fields)
	}

	t := constants.ParseDocumentType(docType)
	if t == "" {
		t = constants.DefaultDocumentType
	}
	return llm.ForDocumentType(t), nil
}

func (h *Handler) writeWorkbook(c *gin.Context, filename string, spec llm.ExtractionSpec, res *pipeline.Result) {
	row := export.Row{
		Filename:     filename,
		DocumentType: spec.Label(),
		Outcome:      res.Outcome,
		Record:       res.Record,
	}
	data, err := h.exporter.WorkbookXLSX(c.Request.Context(), []export.Row{row})
	if err != nil {
		h.fail(c, common.KindError("EXPORT_FAILED", common.ErrInternal, "failed to build workbook", err), spec.Label())
		return
	}

	name := trimExt(filename) + ".xlsx"
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, constants.ContentTypeXLSX, data)
}

// fail writes the error envelope with the status mapped from the error kind.
func (h *Handler) fail(c *gin.Context, err error, docType string) {
	status := writeError(c, err)
	attrs := []any{"status", status, "code", common.ErrorCode(err), "error", err}
	if docType != "" {
		attrs = append(attrs, "document_type", docType)
	}
	if status >= http.StatusInternalServerError {
		h.log(c).Error("http.request.failed", attrs...)
	} else {
		h.log(c).Warn("http.request.rejected", attrs...)
	}
}

func (h *Handler) observe(outcome constants.Outcome, docType string, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveExtraction(outcome, docType, time.Since(start))
	}
}

func (h *Handler) log(c *gin.Context) *slog.Logger {
	return common.LoggerFrom(c.Request.Context(), h.logger)
}

var errTooLarge = common.NewAppError("TOO_LARGE", "file too large", common.ErrInvalidInput)

// writeError renders err as the JSON error envelope and returns the status used.
func writeError(c *gin.Context, err error) int {
	status := common.HTTPStatus(err)
	code := common.ErrorCode(err)
	if code == "TOO_LARGE" {
		status = http.StatusRequestEntityTooLarge
	}

	msg := err.Error()
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	c.JSON(status, errorBody{
		Success: false,
		Error:   msg,
		Code:    code,
		Message: http.StatusText(status),
	})
	return status
}

func humanBytes(n int64) string {
	return humanize.IBytes(uint64(n))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func trimExt(name string) string {
	base := filepath.Base(name)
	if base == "." || base == "/" || base == "" {
		return "document"
	}
	return base[:len(base)-len(filepath.Ext(base))]
}
