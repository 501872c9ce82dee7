package admission

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/llm"
)

// BreakerConfig controls when the breaker opens and how long it stays open.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32        // consecutive infrastructure failures before opening
	Cooldown         time.Duration // time spent open before a trial request
	OnStateChange    func(from, to string)
}

// Breaker fails fast while the backend keeps failing. It never retries.
type Breaker struct {
	next llm.Invoker
	cb   *gobreaker.CircuitBreaker[string]
}

var _ llm.Invoker = (*Breaker)(nil)

func NewBreaker(next llm.Invoker, cfg BreakerConfig) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "backend"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool { return !isInfraFailure(err) },
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			cfg.OnStateChange(from.String(), to.String())
		}
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker[string](settings)}
}

func (b *Breaker) Generate(ctx context.Context, imageB64, prompt string) (string, error) {
	out, err := b.cb.Execute(func() (string, error) {
		return b.next.Generate(ctx, imageB64, prompt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", common.KindError("BACKEND_UNAVAILABLE", common.ErrBackendUnavailable, "backend circuit is open", err)
	}
	return out, err
}

func (b *Breaker) Model() string { return b.next.Model() }

// State is "closed", "half-open" or "open".
func (b *Breaker) State() string { return b.cb.State().String() }

// isInfraFailure says whether err means the backend itself is unhealthy.
// A 4xx reply (bad model name, bad request) is the caller's problem.
func isInfraFailure(err error) bool {
	if err == nil {
		return false
	}
	var be *common.BackendError
	if errors.As(err, &be) {
		return be.StatusCode >= 500
	}
	return errors.Is(err, common.ErrBackendUnavailable) || errors.Is(err, common.ErrBackendTimeout)
}
