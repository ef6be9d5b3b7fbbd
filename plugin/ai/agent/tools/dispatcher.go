package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hrygo/mailsense/plugin/ai/metrics"
)

const (
	defaultToolTimeout    = 10 * time.Second
	defaultMaxConcurrency = 4
)

// Dispatcher wraps every tool invocation with a per-call timeout, panic
// isolation, and latency/outcome metrics. Dispatch fans out across the
// selected tools; no tool blocks another, and one failing tool never
// aborts the run.
type Dispatcher struct {
	registry       *Registry
	metricsService metrics.MetricsService
	timeout        time.Duration
	sem            *semaphore.Weighted
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout sets the per-invocation timeout.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.timeout = d
	}
}

// WithMaxConcurrency bounds the number of tools running at once.
func WithMaxConcurrency(n int64) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.sem = semaphore.NewWeighted(n)
	}
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, metricsService metrics.MetricsService, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:       registry,
		metricsService: metricsService,
		timeout:        defaultToolTimeout,
		sem:            semaphore.NewWeighted(defaultMaxConcurrency),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnResult is called as each tool completes, before Dispatch returns.
// Calls are serialized; implementations may write to a stream directly.
type OnResult func(result *Result)

// Dispatch invokes the named tools concurrently and returns one Result
// per resolvable name, in completion order. Unknown or disabled names are
// skipped. A handler error or panic becomes a status-error Result.
func (d *Dispatcher) Dispatch(ctx context.Context, names []string, inv *Invocation, onResult OnResult) []*Result {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*Result
	)

	for _, name := range names {
		tool := d.registry.Get(name)
		if tool == nil {
			slog.Debug("skipping unknown or disabled tool", slog.String("tool", name))
			continue
		}

		wg.Add(1)
		go func(tool Tool) {
			defer wg.Done()

			result := d.invoke(ctx, tool, inv)

			mu.Lock()
			defer mu.Unlock()
			results = append(results, result)
			if onResult != nil {
				onResult(result)
			}
		}(tool)
	}

	wg.Wait()
	return results
}

// DispatchOne invokes a single tool through the same wrapper.
func (d *Dispatcher) DispatchOne(ctx context.Context, name string, inv *Invocation) *Result {
	tool := d.registry.Get(name)
	if tool == nil {
		return errorResult(name, fmt.Errorf("unknown tool: %s", name))
	}
	return d.invoke(ctx, tool, inv)
}

// invoke runs one tool under the semaphore with timeout, panic recovery
// and metrics. It always returns a non-nil Result.
func (d *Dispatcher) invoke(ctx context.Context, tool Tool, inv *Invocation) (result *Result) {
	start := time.Now()
	name := tool.Name()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool panicked",
				slog.String("tool", name),
				slog.Any("panic", r))
			result = errorResult(name, fmt.Errorf("tool panicked: %v", r))
		}
		d.record(ctx, name, time.Since(start), result.Status == StatusSuccess)
	}()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return errorResult(name, err)
	}
	defer d.sem.Release(1)

	execCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	res, err := tool.Run(execCtx, inv)
	if err != nil {
		slog.Warn("tool execution failed",
			slog.String("tool", name),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return errorResult(name, err)
	}
	if res == nil {
		return errorResult(name, fmt.Errorf("tool returned no result"))
	}
	res.Tool = name
	if res.Status == "" {
		res.Status = StatusSuccess
	}
	slog.Debug("tool execution succeeded",
		slog.String("tool", name),
		slog.Int("matches", res.Matches),
		slog.Duration("duration", time.Since(start)))
	return res
}

func (d *Dispatcher) record(ctx context.Context, name string, duration time.Duration, success bool) {
	if d.metricsService != nil {
		d.metricsService.RecordToolCall(ctx, name, duration, success)
	}
}
