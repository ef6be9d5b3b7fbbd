package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	agenterrors "github.com/hrygo/mailsense/internal/errors"
	"github.com/hrygo/mailsense/internal/observability"
)

// Chain tries synthesizers in configured order and returns the first
// answer. Each attempt gets its own timeout so one hung endpoint cannot
// eat the whole run budget. With the template synthesizer last, the
// chain as a whole cannot fail.
type Chain struct {
	synthesizers []Synthesizer
	callTimeout  time.Duration
	degraded     *observability.Degraded
}

// NewChain creates a synthesis chain. callTimeout <= 0 uses 20s.
func NewChain(synthesizers []Synthesizer, callTimeout time.Duration) *Chain {
	if callTimeout <= 0 {
		callTimeout = 20 * time.Second
	}
	return &Chain{
		synthesizers: synthesizers,
		callTimeout:  callTimeout,
		degraded:     observability.GlobalDegraded(),
	}
}

// Providers returns the chain's provider names in order.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.synthesizers))
	for _, s := range c.synthesizers {
		names = append(names, s.Name())
	}
	return names
}

// Synthesize walks the chain. Returns the answer and the name of the
// provider that produced it; callers surface that name as llm_used. Every
// skipped provider is logged and counted as a fallback.
func (c *Chain) Synthesize(ctx context.Context, req *SynthesisRequest) (string, string, error) {
	if len(c.synthesizers) == 0 {
		return "", "", agenterrors.SynthesisFailure("chain", fmt.Errorf("no synthesizers configured"))
	}

	var lastErr error
	for _, s := range c.synthesizers {
		if err := ctx.Err(); err != nil {
			return "", "", agenterrors.ContextCanceled(err)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		start := time.Now()
		answer, err := s.Synthesize(callCtx, req)
		cancel()

		if err == nil {
			slog.Debug("synthesis succeeded",
				slog.String(observability.LogFieldProvider, s.Name()),
				slog.Int64(observability.LogFieldDuration, time.Since(start).Milliseconds()))
			return answer, s.Name(), nil
		}

		lastErr = err
		c.degraded.RecordProviderFallback(s.Name(), err.Error())
		slog.Warn("synthesis provider failed, falling back",
			slog.String(observability.LogFieldProvider, s.Name()),
			slog.Int64(observability.LogFieldDuration, time.Since(start).Milliseconds()),
			slog.String("error", err.Error()))
	}

	return "", "", agenterrors.SynthesisFailure("chain", lastErr)
}
