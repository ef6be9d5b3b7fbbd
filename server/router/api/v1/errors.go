package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	agenterrors "github.com/hrygo/mailsense/internal/errors"
)

// errorBody is the JSON error envelope: a stable machine code plus a
// human message. Causes and stack traces never cross the boundary.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// httpStatus maps agent error codes to HTTP status codes. Unknown codes
// and plain errors map to 500.
func httpStatus(code agenterrors.ErrorCode) int {
	switch code {
	case agenterrors.ErrCodeInvalidArgument, agenterrors.ErrCodeActionApprovalMissing:
		return http.StatusBadRequest
	case agenterrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case agenterrors.ErrCodeNotFound:
		return http.StatusNotFound
	case agenterrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case agenterrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case agenterrors.ErrCodeContextCanceled:
		// Client gone; the status is academic but 499 is the convention.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as the JSON envelope. AgentError messages are
// written as-is; anything else degrades to a generic message so internal
// detail stays internal.
func writeError(c echo.Context, err error) error {
	code := agenterrors.GetCodeFromError(err, agenterrors.ErrCodeRunFailed)
	message := "internal error"
	if agentErr, ok := err.(*agenterrors.AgentError); ok {
		message = agentErr.Message
	}
	return c.JSON(httpStatus(code), &errorBody{Code: string(code), Message: message})
}
