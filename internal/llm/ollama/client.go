package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/llm"
)

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Images  []string `json:"images"`
	Stream  bool     `json:"stream"`
	Options Options  `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

var (
	_ llm.Invoker     = (*Client)(nil)
	_ llm.ModelLister = (*Client)(nil)
)

// Generate sends one non-streaming generate request with a single image and
// returns the completion text. A reply without a response field yields "".
func (c *Client) Generate(ctx context.Context, imageB64, prompt string) (string, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, c.logger)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := generateRequest{
		Model:   c.cfg.Model,
		Prompt:  prompt,
		Images:  []string{imageB64},
		Stream:  false,
		Options: c.cfg.Options,
	}

	log.Info("llm.generate.start",
		"model", c.cfg.Model,
		"image_chars", len(imageB64),
		"prompt_chars", len(prompt),
		"timeout", c.cfg.Timeout.String(),
	)

	raw, status, err := llm.SendJSON(ctx, c.http, http.MethodPost, c.cfg.BaseURL+"/api/generate", body, nil, log)
	if err != nil {
		err = c.classify(ctx, err)
		log.Error("llm.generate.error",
			"status", status,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Error("llm.generate.decode_error", "error", err, "raw_bytes", len(raw))
		return "", common.KindError("BACKEND_ERROR", common.ErrBackend, "decode generate response", err)
	}

	log.Info("llm.generate.ok",
		"model", c.cfg.Model,
		"response_chars", len(out.Response),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out.Response, nil
}

// ListModels returns the names of the models installed on the backend.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	raw, _, err := llm.SendJSON(ctx, c.http, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil, nil, common.LoggerFrom(ctx, c.logger))
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	var out tagsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, common.KindError("BACKEND_ERROR", common.ErrBackend, "decode tags response", err)
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// HasModel reports whether the configured model is installed.
func (c *Client) HasModel(ctx context.Context) (bool, error) {
	names, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == c.cfg.Model {
			return true, nil
		}
	}
	return false, nil
}

// classify maps transport failures onto the backend error kinds.
func (c *Client) classify(ctx context.Context, err error) error {
	var be *common.BackendError
	if errors.As(err, &be) {
		return common.KindError("BACKEND_ERROR", common.ErrBackend, fmt.Sprintf("%s returned %d", c.cfg.BaseURL, be.StatusCode), be)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return common.KindError("BACKEND_TIMEOUT", common.ErrBackendTimeout, "no response within deadline", err)
	case errors.Is(err, context.Canceled):
		return common.WrapError(err, "backend request canceled")
	case errors.As(err, &netErr) && netErr.Timeout():
		return common.KindError("BACKEND_TIMEOUT", common.ErrBackendTimeout, "network timeout", err)
	default:
		return common.KindError("BACKEND_UNAVAILABLE", common.ErrBackendUnavailable, "cannot reach "+c.cfg.BaseURL, err)
	}
}
