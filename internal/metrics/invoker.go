package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/llm"
)

// Invoker records call counts and latency for the wrapped backend.
type Invoker struct {
	next llm.Invoker
	m    *Metrics
}

var _ llm.Invoker = (*Invoker)(nil)

func (m *Metrics) InstrumentInvoker(next llm.Invoker) *Invoker {
	return &Invoker{next: next, m: m}
}

func (i *Invoker) Generate(ctx context.Context, imageB64, prompt string) (string, error) {
	start := time.Now()
	out, err := i.next.Generate(ctx, imageB64, prompt)
	i.m.backendDuration.Observe(time.Since(start).Seconds())
	i.m.backendRequests.WithLabelValues(resultLabel(err)).Inc()
	return out, err
}

func (i *Invoker) Model() string { return i.next.Model() }

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrBackendTimeout):
		return "timeout"
	case errors.Is(err, common.ErrBackendUnavailable):
		return "unavailable"
	case errors.Is(err, common.ErrBackend):
		return "error"
	default:
		return "other"
	}
}
