package ollama

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Options are the generation options sent with every request. They are fixed
// per client; callers cannot change them per request.
type Options struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
	NumCtx      int     `json:"num_ctx"`
	TopP        float32 `json:"top_p"`
}

// DefaultOptions keep output near-deterministic.
var DefaultOptions = Options{
	Temperature: 0.1,
	NumPredict:  2000,
	NumCtx:      8192,
	TopP:        0.9,
}

// Config for the Ollama client.
type Config struct {
	BaseURL       string        // default http://localhost:11434
	Model         string        // e.g. "qwen2.5vl:latest"
	Timeout       time.Duration // hard deadline for one generate call
	HealthTimeout time.Duration // deadline for listing models
	Options       Options
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "qwen2.5vl:latest"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	if cfg.Options == (Options{}) {
		cfg.Options = DefaultOptions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		// deadlines come from the request context
		http:   &http.Client{},
		logger: logger,
	}
}

// Model is the model identifier sent with every request.
func (c *Client) Model() string { return c.cfg.Model }

// BaseURL is the backend root the client talks to.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }
