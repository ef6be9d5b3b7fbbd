package errors

import (
	"fmt"
)

// ErrorCode represents a specific error type for agent operations.
type ErrorCode string

const (
	// ErrCodeUnauthorized indicates authentication failure.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNotFound indicates the referenced entity does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeToolError indicates a tool handler failed; recovered per tool.
	ErrCodeToolError ErrorCode = "TOOL_ERROR"
	// ErrCodeRetrievalUnavailable indicates context retrieval failed; recovered as empty context.
	ErrCodeRetrievalUnavailable ErrorCode = "RETRIEVAL_UNAVAILABLE"
	// ErrCodeCacheUnavailable indicates the cache backend failed; recovered as miss.
	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"
	// ErrCodeSynthesisFailure indicates a synthesis provider failed; recovered by the chain.
	ErrCodeSynthesisFailure ErrorCode = "SYNTHESIS_PROVIDER_FAILURE"
	// ErrCodeActionApprovalMissing indicates an execute call without required approval.
	ErrCodeActionApprovalMissing ErrorCode = "ACTION_APPROVAL_MISSING"
	// ErrCodeActionPartialFailure indicates an execute call where only part of the changes applied.
	ErrCodeActionPartialFailure ErrorCode = "ACTION_PARTIAL_FAILURE"
	// ErrCodeRunFailed indicates orchestration failure outside any recoverable path.
	ErrCodeRunFailed ErrorCode = "RUN_FAILED"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// AgentError represents a structured error for agent operations.
type AgentError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AgentError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AgentError) WithContext(key string, value interface{}) *AgentError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *AgentError) GetCode() ErrorCode {
	return e.Code
}

// Convenience constructors for common error types.

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *AgentError {
	return &AgentError{Code: ErrCodeUnauthorized, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *AgentError {
	return &AgentError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *AgentError {
	return &AgentError{Code: ErrCodeInvalidArgument, Message: msg}
}

// NotFound creates a not found error.
func NotFound(msg string) *AgentError {
	return &AgentError{Code: ErrCodeNotFound, Message: msg}
}

// ToolError creates a tool execution error.
func ToolError(tool string, cause error) *AgentError {
	return &AgentError{
		Code:    ErrCodeToolError,
		Message: fmt.Sprintf("tool failed: %s", tool),
		Cause:   cause,
	}
}

// SynthesisFailure creates a synthesis provider failure error.
func SynthesisFailure(provider string, cause error) *AgentError {
	return &AgentError{
		Code:    ErrCodeSynthesisFailure,
		Message: fmt.Sprintf("synthesis provider failed: %s", provider),
		Cause:   cause,
	}
}

// ActionApprovalMissing creates an approval-missing rejection.
func ActionApprovalMissing(actionID string) *AgentError {
	return &AgentError{
		Code:    ErrCodeActionApprovalMissing,
		Message: fmt.Sprintf("action requires approval: %s", actionID),
	}
}

// ActionPartialFailure creates a partial failure report error.
func ActionPartialFailure(succeeded, failed int) *AgentError {
	return &AgentError{
		Code:    ErrCodeActionPartialFailure,
		Message: fmt.Sprintf("%d succeeded, %d failed", succeeded, failed),
	}
}

// RunFailed creates an orchestration failure error.
func RunFailed(msg string, cause error) *AgentError {
	return &AgentError{Code: ErrCodeRunFailed, Message: msg, Cause: cause}
}

// ContextCanceled creates a context canceled error.
func ContextCanceled(cause error) *AgentError {
	return &AgentError{Code: ErrCodeContextCanceled, Message: "operation canceled", Cause: cause}
}

// Timeout creates a timeout error.
func Timeout(msg string) *AgentError {
	return &AgentError{Code: ErrCodeTimeout, Message: msg}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *AgentError {
	return &AgentError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if agentErr, ok := err.(*AgentError); ok {
		return agentErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an AgentError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if agentErr, ok := err.(*AgentError); ok {
		return agentErr.Code
	}
	return defaultCode
}
