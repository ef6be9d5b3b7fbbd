package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mailsense/plugin/ai/metrics"
)

// fakeTool is a scriptable tool for dispatcher tests.
type fakeTool struct {
	name  string
	delay time.Duration
	err   error
	panic bool
	run   func(ctx context.Context, inv *Invocation) (*Result, error)
}

func (f *fakeTool) Name() string                    { return f.name }
func (f *fakeTool) Description() string             { return "fake" }
func (f *fakeTool) ParameterSchema() map[string]any { return map[string]any{"type": "object"} }

func (f *fakeTool) Run(ctx context.Context, inv *Invocation) (*Result, error) {
	if f.panic {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.run != nil {
		return f.run(ctx, inv)
	}
	return &Result{Status: StatusSuccess, Matches: 1}, nil
}

func newTestDispatcher(t *testing.T, toolsToRegister ...Tool) (*Dispatcher, *metrics.MockMetricsService) {
	t.Helper()
	registry := NewRegistry(nil)
	for _, tool := range toolsToRegister {
		registry.Register(tool)
	}
	mock := metrics.NewMockMetricsService()
	return NewDispatcher(registry, mock), mock
}

func TestDispatchOneFailingToolDoesNotAbortOthers(t *testing.T) {
	d, _ := newTestDispatcher(t,
		&fakeTool{name: "ok_one"},
		&fakeTool{name: "broken", err: errors.New("backing store down")},
		&fakeTool{name: "ok_two"},
	)

	results := d.Dispatch(context.Background(), []string{"ok_one", "broken", "ok_two"}, &Invocation{UserID: "u1"}, nil)
	require.Len(t, results, 3)

	byName := map[string]*Result{}
	for _, r := range results {
		byName[r.Tool] = r
	}
	assert.Equal(t, StatusSuccess, byName["ok_one"].Status)
	assert.Equal(t, StatusSuccess, byName["ok_two"].Status)
	assert.Equal(t, StatusError, byName["broken"].Status)
	assert.Contains(t, byName["broken"].Error, "backing store down")
}

func TestDispatchRecoversPanics(t *testing.T) {
	d, _ := newTestDispatcher(t,
		&fakeTool{name: "panicky", panic: true},
		&fakeTool{name: "steady"},
	)

	results := d.Dispatch(context.Background(), []string{"panicky", "steady"}, &Invocation{UserID: "u1"}, nil)
	require.Len(t, results, 2)
	for _, r := range results {
		if r.Tool == "panicky" {
			assert.Equal(t, StatusError, r.Status)
			assert.Contains(t, r.Error, "panicked")
		} else {
			assert.Equal(t, StatusSuccess, r.Status)
		}
	}
}

func TestDispatchEnforcesTimeout(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(&fakeTool{name: "slow", delay: 500 * time.Millisecond})
	d := NewDispatcher(registry, nil, WithTimeout(20*time.Millisecond))

	start := time.Now()
	result := d.DispatchOne(context.Background(), "slow", &Invocation{UserID: "u1"})
	assert.Equal(t, StatusError, result.Status)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestDispatchSkipsUnknownAndDisabledTools(t *testing.T) {
	registry := NewRegistry([]string{"muted"})
	registry.Register(&fakeTool{name: "muted"})
	registry.Register(&fakeTool{name: "active"})
	d := NewDispatcher(registry, nil)

	results := d.Dispatch(context.Background(), []string{"muted", "active", "nonexistent"}, &Invocation{UserID: "u1"}, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "active", results[0].Tool)
}

func TestDispatchRecordsMetricsPerOutcome(t *testing.T) {
	d, mock := newTestDispatcher(t,
		&fakeTool{name: "good"},
		&fakeTool{name: "bad", err: errors.New("nope")},
	)

	d.Dispatch(context.Background(), []string{"good", "bad"}, &Invocation{UserID: "u1"}, nil)

	calls := mock.ToolCalls()
	require.Len(t, calls, 2)
	outcomes := map[string]bool{}
	for _, c := range calls {
		outcomes[c.ToolName] = c.Success
	}
	assert.True(t, outcomes["good"])
	assert.False(t, outcomes["bad"])
}

func TestDispatchOnResultIsSerializedAndComplete(t *testing.T) {
	d, _ := newTestDispatcher(t,
		&fakeTool{name: "a"},
		&fakeTool{name: "b"},
		&fakeTool{name: "c", err: errors.New("x")},
	)

	var seen []string
	d.Dispatch(context.Background(), []string{"a", "b", "c"}, &Invocation{UserID: "u1"}, func(r *Result) {
		seen = append(seen, r.Tool)
	})
	assert.ElementsMatch(t, []string{"a", "b", "c"}, seen)
}

func TestRegistryListSortedAndFiltered(t *testing.T) {
	registry := NewRegistry([]string{"zeta"})
	registry.Register(&fakeTool{name: "zeta"})
	registry.Register(&fakeTool{name: "beta"})
	registry.Register(&fakeTool{name: "alpha"})

	list := registry.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "beta", list[1].Name)
	assert.NotNil(t, list[0].ParameterSchema)
}
