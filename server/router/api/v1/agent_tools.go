package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleListTools returns the enabled tool catalog. Disabled tools are
// invisible here just as they are to the dispatcher.
func (s *APIV1Service) handleListTools(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Registry.List())
}
