// Package v1 exposes the agent over HTTP: a run endpoint in JSON and SSE
// flavors, the tool catalog, component health, and the staged-action
// lifecycle. Handlers translate between transport and the agent packages;
// no orchestration logic lives here.
package v1

import (
	"context"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/mailsense/internal/profile"
	"github.com/hrygo/mailsense/plugin/ai/actions"
	"github.com/hrygo/mailsense/plugin/ai/agent"
	"github.com/hrygo/mailsense/plugin/ai/agent/tools"
	"github.com/hrygo/mailsense/server/middleware"
	"github.com/hrygo/mailsense/store"
)

// AgentRunner is the orchestrator slice the handlers need.
type AgentRunner interface {
	Run(ctx context.Context, req *agent.RunRequest, callback agent.EventCallback) (*agent.RunResult, error)
}

// ActionService is the staged-action lifecycle the handlers expose.
type ActionService interface {
	DryRun(ctx context.Context, userID, actionID string) (*actions.Preview, error)
	Execute(ctx context.Context, userID, actionID, approvedBy string) (*actions.Report, error)
	ListPending(ctx context.Context, userID string) ([]*store.StagedAction, error)
	Cancel(ctx context.Context, userID, actionID string) error
}

// HealthChecker reports whether one upstream component answers.
type HealthChecker interface {
	Validate(ctx context.Context) error
}

// APIV1Service registers the /api/v1 routes.
type APIV1Service struct {
	Profile  *profile.Profile
	Runner   AgentRunner
	Registry *tools.Registry
	Actions  ActionService

	// Health probes keyed by component name (llm_primary, llm_secondary).
	// A missing key reports the component as disabled.
	Checkers map[string]HealthChecker

	// CacheEnabled reports whether the cache layer is wired at all.
	CacheEnabled bool
}

// Register mounts the API on the echo instance. Every /api/v1/agent route
// sits behind the bearer-token middleware and the per-user rate limiter.
func (s *APIV1Service) Register(e *echo.Echo) {
	e.Use(echomw.CORS())

	limiter := middleware.NewRateLimiter(s.Profile.RateLimitRPS, s.Profile.RateLimitBurst)
	group := e.Group("/api/v1/agent",
		middleware.BearerAuth(s.Profile.AuthSecret),
		middleware.RateLimit(limiter),
	)

	group.POST("/run", s.handleRun)
	group.GET("/run/stream", s.handleRunStream)
	group.POST("/run/stream", s.handleRunStream)
	group.GET("/tools", s.handleListTools)
	group.GET("/actions", s.handleListActions)
	group.POST("/actions/dry-run", s.handleActionDryRun)
	group.POST("/actions/execute", s.handleActionExecute)
	group.POST("/actions/cancel", s.handleActionCancel)

	// Health stays outside auth so probes work without a token.
	e.GET("/api/v1/agent/health", s.handleHealth)
}

// userID returns the authenticated user set by the auth middleware.
func userID(c echo.Context) string {
	id, _ := c.Get(middleware.UserIDContextKey).(string)
	return id
}
