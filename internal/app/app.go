// Package app assembles the extraction stack from configuration. The daemon
// and the CLI share it so both run the same pipeline.
package app

import (
	"log/slog"

	"github.com/joseph-ayodele/docparse/internal/admission"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/imaging"
	"github.com/joseph-ayodele/docparse/internal/llm"
	"github.com/joseph-ayodele/docparse/internal/llm/ollama"
	"github.com/joseph-ayodele/docparse/internal/metrics"
	"github.com/joseph-ayodele/docparse/internal/pipeline"
)

// Stack is the wired pipeline plus the pieces the outer surfaces need.
type Stack struct {
	Client     *ollama.Client
	Breaker    *admission.Breaker
	Normalizer *imaging.Normalizer
	Processor  *pipeline.Processor
	Metrics    *metrics.Metrics
}

// Build wires normalizer, backend client, breaker and processor. When m is
// non-nil backend calls are instrumented and breaker transitions reported.
func Build(cfg *common.Config, logger *slog.Logger, m *metrics.Metrics) *Stack {
	client := ollama.NewClient(BackendConfig(cfg.Backend), logger)

	var inv llm.Invoker = client
	if m != nil {
		inv = m.InstrumentInvoker(client)
	}
	breaker := admission.NewBreaker(inv, admission.BreakerConfig{
		Name:             "ollama",
		FailureThreshold: cfg.Admission.BreakerFailures,
		Cooldown:         cfg.Admission.BreakerCooldown,
		OnStateChange: func(from, to string) {
			logger.Warn("backend.breaker.state_change", "from", from, "to", to)
			if m != nil {
				m.SetBreakerState(to)
			}
		},
	})
	if m != nil {
		m.SetBreakerState(breaker.State())
	}

	norm := imaging.NewNormalizer(NormalizerConfig(cfg.Image), imaging.WithLogger(logger))
	proc := pipeline.NewProcessor(logger, norm, breaker)

	return &Stack{
		Client:     client,
		Breaker:    breaker,
		Normalizer: norm,
		Processor:  proc,
		Metrics:    m,
	}
}

// BackendConfig maps the backend section onto the Ollama client config.
func BackendConfig(c common.BackendConfig) ollama.Config {
	return ollama.Config{
		BaseURL:       c.BaseURL,
		Model:         c.Model,
		Timeout:       c.Timeout,
		HealthTimeout: c.HealthTimeout,
		Options: ollama.Options{
			Temperature: c.Temperature,
			NumPredict:  c.NumPredict,
			NumCtx:      c.NumCtx,
			TopP:        c.TopP,
		},
	}
}

// NormalizerConfig maps the image section onto the normalizer config.
func NormalizerConfig(c common.ImageConfig) imaging.Config {
	return imaging.Config{
		MaxDimension: c.MaxDimension,
		DPI:          c.DPI,
		Encoding:     imaging.Encoding(c.Encoding),
		AllowedTypes: c.AllowedTypes,
	}
}
