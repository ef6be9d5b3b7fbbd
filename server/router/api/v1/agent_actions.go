package v1

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	agenterrors "github.com/hrygo/mailsense/internal/errors"
)

type actionRequest struct {
	ActionID   string `json:"action_id"`
	ApprovedBy string `json:"approved_by,omitempty"`
}

func bindActionRequest(c echo.Context) (*actionRequest, error) {
	req := &actionRequest{}
	if err := json.NewDecoder(c.Request().Body).Decode(req); err != nil {
		return nil, agenterrors.InvalidArgument("malformed request body")
	}
	if req.ActionID == "" {
		return nil, agenterrors.InvalidArgument("action_id is required")
	}
	return req, nil
}

// handleActionDryRun previews a staged action without touching anything.
func (s *APIV1Service) handleActionDryRun(c echo.Context) error {
	req, err := bindActionRequest(c)
	if err != nil {
		return writeError(c, err)
	}
	preview, err := s.Actions.DryRun(c.Request().Context(), userID(c), req.ActionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, preview)
}

// handleActionExecute applies a staged action. A partial failure is not
// an HTTP error: the itemized report goes back with 200 and the caller
// reads the status and per-target errors from it.
func (s *APIV1Service) handleActionExecute(c echo.Context) error {
	req, err := bindActionRequest(c)
	if err != nil {
		return writeError(c, err)
	}
	report, err := s.Actions.Execute(c.Request().Context(), userID(c), req.ActionID, req.ApprovedBy)
	if err != nil && !agenterrors.IsCode(err, agenterrors.ErrCodeActionPartialFailure) {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// handleListActions returns the user's staged actions still awaiting a
// decision.
func (s *APIV1Service) handleListActions(c echo.Context) error {
	staged, err := s.Actions.ListPending(c.Request().Context(), userID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, staged)
}

// handleActionCancel withdraws a staged action.
func (s *APIV1Service) handleActionCancel(c echo.Context) error {
	req, err := bindActionRequest(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := s.Actions.Cancel(c.Request().Context(), userID(c), req.ActionID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
