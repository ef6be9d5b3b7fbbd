package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agenterrors "github.com/hrygo/mailsense/internal/errors"
	"github.com/hrygo/mailsense/internal/profile"
	"github.com/hrygo/mailsense/plugin/ai/actions"
	"github.com/hrygo/mailsense/plugin/ai/agent"
	"github.com/hrygo/mailsense/plugin/ai/agent/tools"
	"github.com/hrygo/mailsense/server/middleware"
	"github.com/hrygo/mailsense/store"
)

type scriptedEvent struct {
	eventType string
	eventData any
}

type fakeRunner struct {
	lastReq *agent.RunRequest
	events  []scriptedEvent
	result  *agent.RunResult
	err     error
}

func (f *fakeRunner) Run(_ context.Context, req *agent.RunRequest, callback agent.EventCallback) (*agent.RunResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	for _, ev := range f.events {
		if callback != nil {
			if err := callback(ev.eventType, ev.eventData); err != nil {
				return nil, agenterrors.ContextCanceled(err)
			}
		}
	}
	return f.result, nil
}

type fakeActions struct {
	preview   *actions.Preview
	report    *actions.Report
	pending   []*store.StagedAction
	err       error
	cancelled []string
}

func (f *fakeActions) DryRun(context.Context, string, string) (*actions.Preview, error) {
	return f.preview, f.err
}

func (f *fakeActions) Execute(context.Context, string, string, string) (*actions.Report, error) {
	return f.report, f.err
}

func (f *fakeActions) ListPending(context.Context, string) ([]*store.StagedAction, error) {
	return f.pending, f.err
}

func (f *fakeActions) Cancel(_ context.Context, _, actionID string) error {
	f.cancelled = append(f.cancelled, actionID)
	return f.err
}

type fakeChecker struct{ err error }

func (f *fakeChecker) Validate(context.Context) error { return f.err }

func newTestService(runner *fakeRunner, acts *fakeActions) *APIV1Service {
	registry := tools.NewRegistry(nil)
	return &APIV1Service{
		Profile:  &profile.Profile{},
		Runner:   runner,
		Registry: registry,
		Actions:  acts,
	}
}

// call invokes a handler directly with an authenticated context, the way
// the route sees it after the middleware chain.
func call(t *testing.T, handler echo.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.Set(middleware.UserIDContextKey, "user-1")
	require.NoError(t, handler(c))
	return rec
}

func TestRunReturnsAggregateResult(t *testing.T) {
	runner := &fakeRunner{result: &agent.RunResult{
		RunID:   "run-1",
		Intent:  "find",
		LLMUsed: "primary",
		Answer:  "Found it.",
	}}
	s := newTestService(runner, &fakeActions{})

	rec := call(t, s.handleRun, http.MethodPost, "/api/v1/agent/run",
		`{"query": "find the invoice", "explain": true, "time_window_days": 7}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var result agent.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "primary", result.LLMUsed)

	require.NotNil(t, runner.lastReq)
	assert.Equal(t, "user-1", runner.lastReq.UserID, "identity comes from auth, not the body")
	assert.Equal(t, agent.ModePreviewOnly, runner.lastReq.Mode, "mode defaults to preview")
	assert.True(t, runner.lastReq.Explain)
	assert.Equal(t, 7, runner.lastReq.TimeWindowDays)
}

func TestRunRejectsMalformedBody(t *testing.T) {
	s := newTestService(&fakeRunner{}, &fakeActions{})

	rec := call(t, s.handleRun, http.MethodPost, "/api/v1/agent/run", `{"query":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ARGUMENT")
}

func TestRunMapsAgentErrors(t *testing.T) {
	for _, tc := range []struct {
		err    error
		status int
		code   string
	}{
		{agenterrors.InvalidArgument("query is required"), http.StatusBadRequest, "INVALID_ARGUMENT"},
		{agenterrors.Unauthorized("missing user identity"), http.StatusUnauthorized, "UNAUTHORIZED"},
		{agenterrors.RunFailed("boom", nil), http.StatusInternalServerError, "RUN_FAILED"},
	} {
		s := newTestService(&fakeRunner{err: tc.err}, &fakeActions{})
		rec := call(t, s.handleRun, http.MethodPost, "/api/v1/agent/run", `{"query": "hi"}`)
		assert.Equal(t, tc.status, rec.Code)
		assert.Contains(t, rec.Body.String(), tc.code)
	}
}

func TestRunStreamWritesEventFrames(t *testing.T) {
	runner := &fakeRunner{
		events: []scriptedEvent{
			{agent.EventTypeIntent, &agent.IntentEventData{Intent: "find", Confidence: 0.8}},
			{agent.EventTypeTool, &agent.ToolEventData{Tool: "email_search", Status: "success", Matches: 3}},
			{agent.EventTypeAnswer, &agent.AnswerEventData{Answer: "Found it.", LLMUsed: "primary"}},
			{agent.EventTypeDone, &agent.DoneEventData{RunID: "run-1", DurationMs: 12}},
		},
		result: &agent.RunResult{RunID: "run-1"},
	}
	s := newTestService(runner, &fakeActions{})

	rec := call(t, s.handleRunStream, http.MethodGet,
		"/api/v1/agent/run/stream?query=find+the+invoice&explain=true", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	require.Len(t, frames, 4)
	assert.True(t, strings.HasPrefix(frames[0], "event: intent\ndata: "), "first frame: %q", frames[0])
	assert.True(t, strings.HasPrefix(frames[3], "event: done\ndata: "), "last frame: %q", frames[3])
	assert.Contains(t, frames[1], `"tool":"email_search"`)
	assert.Contains(t, frames[2], `"llm_used":"primary"`)

	require.NotNil(t, runner.lastReq)
	assert.Equal(t, "find the invoice", runner.lastReq.Query)
	assert.True(t, runner.lastReq.Explain)
}

func TestRunStreamErrorBeforeFirstFrame(t *testing.T) {
	s := newTestService(&fakeRunner{err: agenterrors.InvalidArgument("query is required")}, &fakeActions{})

	rec := call(t, s.handleRunStream, http.MethodGet, "/api/v1/agent/run/stream", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ARGUMENT")
}

func TestListTools(t *testing.T) {
	s := newTestService(&fakeRunner{}, &fakeActions{})
	s.Registry.Register(&staticTool{name: "email_search", description: "Full-text search over the mailbox."})

	rec := call(t, s.handleListTools, http.MethodGet, "/api/v1/agent/tools", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var descriptors []tools.Descriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &descriptors))
	require.Len(t, descriptors, 1)
	assert.Equal(t, "email_search", descriptors[0].Name)
}

type staticTool struct {
	name        string
	description string
}

func (s *staticTool) Name() string                    { return s.name }
func (s *staticTool) Description() string             { return s.description }
func (s *staticTool) ParameterSchema() map[string]any { return map[string]any{"type": "object"} }
func (s *staticTool) Run(context.Context, *tools.Invocation) (*tools.Result, error) {
	return &tools.Result{Tool: s.name, Status: tools.StatusSuccess}, nil
}

func TestHealthReportsPerComponent(t *testing.T) {
	s := newTestService(&fakeRunner{}, &fakeActions{})
	s.CacheEnabled = true
	s.Checkers = map[string]HealthChecker{
		"search":      &fakeChecker{},
		"llm_primary": &fakeChecker{err: fmt.Errorf("connection refused")},
	}

	rec := call(t, s.handleHealth, http.MethodGet, "/api/v1/agent/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "up", health.Components["cache"])
	assert.Equal(t, "up", health.Components["search"])
	assert.Equal(t, "down", health.Components["llm_primary"])
	assert.Equal(t, "disabled", health.Components["llm_secondary"])
	assert.Equal(t, "up", health.Components["llm_template"])
}

func TestActionDryRun(t *testing.T) {
	acts := &fakeActions{preview: &actions.Preview{
		ActionID: "act-1",
		Kind:     "move",
		Changes:  []string{`email 7 "50% off": inbox -> archive`},
	}}
	s := newTestService(&fakeRunner{}, acts)

	rec := call(t, s.handleActionDryRun, http.MethodPost, "/api/v1/agent/actions/dry-run",
		`{"action_id": "act-1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"act-1"`)
	assert.Contains(t, rec.Body.String(), "inbox -> archive")
}

func TestActionExecutePartialFailureStillReturnsReport(t *testing.T) {
	acts := &fakeActions{
		report: &actions.Report{
			ActionID:  "act-1",
			Status:    store.ActionStatusPartial,
			Succeeded: 58,
			Failed:    2,
			Message:   "58 succeeded, 2 failed",
		},
		err: agenterrors.ActionPartialFailure(58, 2),
	}
	s := newTestService(&fakeRunner{}, acts)

	rec := call(t, s.handleActionExecute, http.MethodPost, "/api/v1/agent/actions/execute",
		`{"action_id": "act-1", "approved_by": "user-1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "58 succeeded, 2 failed")
	assert.Contains(t, rec.Body.String(), `"partial"`)
}

func TestActionExecuteApprovalMissing(t *testing.T) {
	s := newTestService(&fakeRunner{}, &fakeActions{err: agenterrors.ActionApprovalMissing("act-1")})

	rec := call(t, s.handleActionExecute, http.MethodPost, "/api/v1/agent/actions/execute",
		`{"action_id": "act-1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ACTION_APPROVAL_MISSING")
}

func TestActionEndpointsRequireActionID(t *testing.T) {
	s := newTestService(&fakeRunner{}, &fakeActions{})

	for _, handler := range []echo.HandlerFunc{s.handleActionDryRun, s.handleActionExecute, s.handleActionCancel} {
		rec := call(t, handler, http.MethodPost, "/api/v1/agent/actions/x", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestActionNotFound(t *testing.T) {
	s := newTestService(&fakeRunner{}, &fakeActions{err: agenterrors.NotFound("staged action act-9")})

	rec := call(t, s.handleActionDryRun, http.MethodPost, "/api/v1/agent/actions/dry-run",
		`{"action_id": "act-9"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestActionCancel(t *testing.T) {
	acts := &fakeActions{}
	s := newTestService(&fakeRunner{}, acts)

	rec := call(t, s.handleActionCancel, http.MethodPost, "/api/v1/agent/actions/cancel",
		`{"action_id": "act-1"}`)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"act-1"}, acts.cancelled)
}
