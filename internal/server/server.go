package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/docparse/internal/admission"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/export"
	"github.com/joseph-ayodele/docparse/internal/llm"
	"github.com/joseph-ayodele/docparse/internal/metrics"
)

// multipartSlack is the room left above the upload cap for multipart framing
// and the other form fields.
const multipartSlack = 1 << 20

// Options wires the HTTP surface. Metrics, Limiter and RateLimiter are optional.
type Options struct {
	Service     string
	Extractor   Extractor
	Models      llm.ModelLister
	Exporter    *export.Service
	Metrics     *metrics.Metrics
	Limiter     *admission.Limiter
	RateLimiter *admission.RateLimiter
	Config      common.ServerConfig
	Logger      *slog.Logger
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(o Options) *gin.Engine {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if o.Exporter == nil {
		o.Exporter = export.NewService(logger)
	}
	if o.Service == "" {
		o.Service = "Document Parser"
	}

	h := &Handler{
		service:   o.Service,
		extractor: o.Extractor,
		models:    o.Models,
		exporter:  o.Exporter,
		metrics:   o.Metrics,
		maxUpload: o.Config.MaxUploadBytes,
		logger:    logger,
	}

	r := gin.New()
	r.Use(RequestID())
	r.Use(Recovery(logger))
	r.Use(RequestLogger(logger))
	r.Use(CORS(o.Config.CORSOrigins))

	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	if o.Metrics != nil {
		r.GET("/metrics", gin.WrapH(o.Metrics.Handler()))
	}

	bodyLimit := int64(0)
	if o.Config.MaxUploadBytes > 0 {
		bodyLimit = o.Config.MaxUploadBytes + multipartSlack
	}
	extract := r.Group("/")
	extract.Use(
		RateLimit(o.RateLimiter, logger),
		MaxBodyBytes(bodyLimit),
		Concurrency(o.Limiter, logger),
	)
	{
		extract.POST("/parse-invoice", h.ParseDocument)
		extract.POST("/test-image", h.TestImage)
	}

	return r
}

// writeSlack covers upload, normalization and response time on top of the
// admission wait and the backend deadline.
const writeSlack = 30 * time.Second

// NewHTTPServer wraps handler with timeouts sized for slow model calls. The
// write deadline must outlast a full queue wait plus the backend deadline so a
// timed out extraction still gets its error envelope.
func NewHTTPServer(addr string, handler http.Handler, queueWait, backendTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      queueWait + backendTimeout + writeSlack,
		IdleTimeout:       120 * time.Second,
	}
}
