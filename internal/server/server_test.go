package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docparse/internal/admission"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/imaging"
	"github.com/joseph-ayodele/docparse/internal/metrics"
	"github.com/joseph-ayodele/docparse/internal/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubInvoker struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubInvoker) Generate(_ context.Context, _ string, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func (s *stubInvoker) Model() string { return "qwen2.5vl:latest" }

type stubModels struct {
	names []string
	err   error
}

func (s stubModels) ListModels(context.Context) ([]string, error) { return s.names, s.err }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngFixture(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.RGBA{R: 240, G: 240, B: 240, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type upload struct {
	filename    string
	contentType string
	data        []byte
	fields      map[string]string
}

func multipartRequest(t *testing.T, path string, u upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range u.fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if u.filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+u.filename+`"`)
		if u.contentType != "" {
			h.Set("Content-Type", u.contentType)
		}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(u.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

type fixture struct {
	router  *gin.Engine
	invoker *stubInvoker
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, inv *stubInvoker, mutate ...func(*Options)) fixture {
	t.Helper()
	norm := imaging.NewNormalizer(imaging.Config{}, imaging.WithLogger(quietLogger()))
	proc := pipeline.NewProcessor(quietLogger(), norm, inv)
	m := metrics.New(nil)

	cfg := common.DefaultConfig().Server
	opts := Options{
		Extractor: proc,
		Models:    stubModels{names: []string{"qwen2.5vl:latest"}},
		Metrics:   m,
		Config:    cfg,
		Logger:    quietLogger(),
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	return fixture{router: NewRouter(opts), invoker: inv, metrics: m}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRootAndHealth(t *testing.T) {
	f := newFixture(t, &stubInvoker{})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, "qwen2.5vl:latest", body["model"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["ollama_status"])
	assert.Equal(t, true, body["model_available"])
}

func TestHealthBackendDown(t *testing.T) {
	f := newFixture(t, &stubInvoker{}, func(o *Options) {
		o.Models = stubModels{err: common.KindError("BACKEND_UNAVAILABLE", common.ErrBackendUnavailable, "down", nil)}
	})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "disconnected", body["ollama_status"])
	assert.Equal(t, false, body["model_available"])
}

func TestParseInvoice(t *testing.T) {
	inv := &stubInvoker{reply: "```json\n{\"invoice_number\":\"INV-1\",\"total\":42.5}\n```"}
	f := newFixture(t, inv)

	req := multipartRequest(t, "/parse-invoice", upload{
		filename:    "scan.png",
		contentType: "image/png",
		data:        pngFixture(t),
	})
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Parsed successfully", body["message"])

	data := body["data"].(map[string]any)
	assert.Equal(t, "INV-1", data["invoice_number"])
	meta := data["_metadata"].(map[string]any)
	assert.Equal(t, "scan.png", meta["filename"])
	assert.Equal(t, "invoice", meta["document_type"])
	assert.Equal(t, "qwen2.5vl:latest", meta["model"])

	require.Len(t, inv.prompts, 1)
	assert.Contains(t, inv.prompts[0], "invoice_number")
}

func TestParseInvoiceCustomFields(t *testing.T) {
	inv := &stubInvoker{reply: `{"vendor_tax_id":"DE123"}`}
	f := newFixture(t, inv)

	req := multipartRequest(t, "/parse-invoice", upload{
		filename:    "scan.png",
		contentType: "image/png",
		data:        pngFixture(t),
		fields: map[string]string{
			"document_type": "receipt",
			"custom_fields": `[{"field":"Vendor Tax ID","description":"VAT number"}]`,
		},
	})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	meta := data["_metadata"].(map[string]any)
	assert.Equal(t, "custom", meta["document_type"])
	assert.Equal(t, 1.0, meta["custom_fields_count"])
	assert.Contains(t, inv.prompts[0], "- Vendor Tax ID: VAT number")
}

func TestParseInvoiceFallbackStillSucceeds(t *testing.T) {
	f := newFixture(t, &stubInvoker{reply: "sorry, I cannot read this"})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, multipartRequest(t, "/parse-invoice", upload{
		filename: "scan.png", contentType: "image/png", data: pngFixture(t),
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "Failed to parse LLM response", data["error"])
	assert.Equal(t, "sorry, I cannot read this", data["raw"])
}

func TestParseInvoiceErrors(t *testing.T) {
	cases := []struct {
		name      string
		up        upload
		inv       *stubInvoker
		status    int
		code      string
		wantCalls int
	}{
		{
			name:   "missing file",
			up:     upload{fields: map[string]string{"document_type": "invoice"}},
			inv:    &stubInvoker{},
			status: http.StatusBadRequest,
			code:   "INVALID_INPUT",
		},
		{
			name:   "unsupported type",
			up:     upload{filename: "a.gif", contentType: "image/gif", data: []byte("GIF89a")},
			inv:    &stubInvoker{},
			status: http.StatusUnsupportedMediaType,
			code:   "UNSUPPORTED_FORMAT",
		},
		{
			name:   "corrupt png",
			up:     upload{filename: "a.png", contentType: "image/png", data: []byte("not a png")},
			inv:    &stubInvoker{},
			status: http.StatusUnprocessableEntity,
		},
		{
			name: "bad custom fields",
			up: upload{filename: "a.png", contentType: "image/png", data: pngFixture(t),
				fields: map[string]string{"custom_fields": `{"field":"x"}`}},
			inv:    &stubInvoker{},
			status: http.StatusBadRequest,
			code:   "INVALID_CUSTOM_FIELDS",
		},
		{
			name:   "backend timeout",
			up:     upload{filename: "a.png", contentType: "image/png", data: pngFixture(t)},
			inv:    &stubInvoker{err: common.KindError("BACKEND_TIMEOUT", common.ErrBackendTimeout, "no response within deadline", nil)},
			status:    http.StatusGatewayTimeout,
			code:      "BACKEND_TIMEOUT",
			wantCalls: 1,
		},
		{
			name:   "backend down",
			up:     upload{filename: "a.png", contentType: "image/png", data: pngFixture(t)},
			inv:    &stubInvoker{err: common.KindError("BACKEND_UNAVAILABLE", common.ErrBackendUnavailable, "connection refused", nil)},
			status:    http.StatusServiceUnavailable,
			code:      "BACKEND_UNAVAILABLE",
			wantCalls: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.inv)
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, multipartRequest(t, "/parse-invoice", tc.up))

			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
			if tc.code != "" {
				assert.Equal(t, tc.code, body["code"])
			}
			assert.Len(t, tc.inv.prompts, tc.wantCalls)
		})
	}
}

func TestParseInvoiceInfersContentTypeFromExtension(t *testing.T) {
	inv := &stubInvoker{reply: `{}`}
	f := newFixture(t, inv)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, multipartRequest(t, "/parse-invoice", upload{
		filename: "scan.PNG", contentType: "application/octet-stream", data: pngFixture(t),
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, inv.prompts, 1)
}

func TestParseInvoiceTooLarge(t *testing.T) {
	inv := &stubInvoker{reply: `{}`}
	f := newFixture(t, inv, func(o *Options) { o.Config.MaxUploadBytes = 1024 })

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, multipartRequest(t, "/parse-invoice", upload{
		filename: "big.png", contentType: "image/png", data: bytes.Repeat([]byte{0x89}, 4096),
	}))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Equal(t, "TOO_LARGE", decode(t, rec)["code"])
	assert.Empty(t, inv.prompts)
}

func TestParseInvoiceWorkbook(t *testing.T) {
	f := newFixture(t, &stubInvoker{reply: `{"invoice_number":"INV-9","items":[{"description":"Widget","quantity":2}]}`})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, multipartRequest(t, "/parse-invoice?format=xlsx", upload{
		filename: "scan.png", contentType: "image/png", data: pngFixture(t),
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "scan.xlsx")

	wb, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()
	rows, err := wb.GetRows("Documents")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Contains(t, rows[0], "invoice_number")
	assert.Contains(t, rows[1], "INV-9")
}

func TestTestImage(t *testing.T) {
	inv := &stubInvoker{reply: strings.Repeat("a", 800)}
	f := newFixture(t, inv)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, multipartRequest(t, "/test-image", upload{
		filename: "scan.png", contentType: "image/png", data: pngFixture(t),
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Works!", body["message"])
	assert.Len(t, body["response"], probeResponseLimit)
	assert.Equal(t, []string{"Describe this image in one sentence."}, inv.prompts)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, &stubInvoker{reply: `{}`}, func(o *Options) {
		o.RateLimiter = admission.NewRateLimiter(60, 1)
	})

	send := func() int {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, multipartRequest(t, "/parse-invoice", upload{
			filename: "scan.png", contentType: "image/png", data: pngFixture(t),
		}))
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestConcurrencyLimitRejectsWhenBusy(t *testing.T) {
	lim := admission.NewLimiter(1, 10*time.Millisecond)
	release, err := lim.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	f := newFixture(t, &stubInvoker{reply: `{}`}, func(o *Options) { o.Limiter = lim })
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, multipartRequest(t, "/parse-invoice", upload{
		filename: "scan.png", contentType: "image/png", data: pngFixture(t),
	}))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	assert.Equal(t, "OVERLOADED", decode(t, rec)["code"])
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, &stubInvoker{})
	req := httptest.NewRequest(http.MethodOptions, "/parse-invoice", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryReturns500(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(quietLogger()))
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL", decode(t, rec)["code"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, &stubInvoker{reply: `{}`})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, multipartRequest(t, "/parse-invoice", upload{
		filename: "scan.png", contentType: "image/png", data: pngFixture(t),
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `docparse_extractions_total{document_type="invoice",outcome="parsed"} 1`)
}

func TestMetricsFoldUnknownDocumentTypes(t *testing.T) {
	f := newFixture(t, &stubInvoker{reply: `{}`})
	for _, tag := range []string{"junk-1", "junk-2", "junk-3"} {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, multipartRequest(t, "/parse-invoice", upload{
			filename: "scan.png", contentType: "image/png", data: pngFixture(t),
			fields: map[string]string{"document_type": tag},
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `docparse_extractions_total{document_type="other",outcome="parsed"} 3`)
	assert.NotContains(t, rec.Body.String(), "junk-1")
}

func TestHTTPServerWriteTimeoutCoversQueueAndBackend(t *testing.T) {
	cfg := common.DefaultConfig()
	srv := NewHTTPServer(":0", gin.New(), cfg.Admission.QueueWait, cfg.Backend.Timeout)

	assert.Greater(t, srv.WriteTimeout, cfg.Admission.QueueWait+cfg.Backend.Timeout)
	assert.Greater(t, NewHTTPServer(":0", nil, time.Minute, time.Minute).WriteTimeout, 2*time.Minute)
}
