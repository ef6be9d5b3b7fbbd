package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/mailsense/internal/observability"
)

const healthProbeTimeout = 3 * time.Second

// healthResponse reports per-component status so partial degradation
// stays visible instead of collapsing into one boolean.
type healthResponse struct {
	Status     string                         `json:"status"` // ok, degraded
	Components map[string]string              `json:"components"`
	Degraded   observability.DegradedSnapshot `json:"degraded"`
}

// handleHealth probes each component independently. The template
// synthesizer is in-process and always up; upstream probes are bounded
// so a hung provider cannot hang the health check.
func (s *APIV1Service) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()

	components := map[string]string{
		"llm_template": "up",
	}
	if s.CacheEnabled {
		components["cache"] = "up"
	} else {
		components["cache"] = "disabled"
	}

	for _, name := range []string{"search", "llm_primary", "llm_secondary"} {
		checker, ok := s.Checkers[name]
		if !ok || checker == nil {
			components[name] = "disabled"
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		if err := checker.Validate(probeCtx); err != nil {
			components[name] = "down"
		} else {
			components[name] = "up"
		}
		cancel()
	}

	status := "ok"
	for _, state := range components {
		if state == "down" {
			status = "degraded"
		}
	}

	return c.JSON(http.StatusOK, &healthResponse{
		Status:     status,
		Components: components,
		Degraded:   observability.GlobalDegraded().Snapshot(),
	})
}
