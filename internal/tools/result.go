package tools

import "fmt"

// Result status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error codes for structured tool failures.
// The model uses these to decide whether to retry, rephrase, or apologize.
const (
	ErrCodeUnknownTool = "UnknownTool"
	ErrCodeValidation  = "InvalidArguments"
	ErrCodeSecurity    = "SecurityBlocked"
	ErrCodeNetwork     = "NetworkError"
	ErrCodeBackend     = "BackendError"
	ErrCodeNotFound    = "NotFound"
	ErrCodeInternal    = "InternalError"
)

// Error describes a structured tool failure for model consumption.
// It lets the model understand what went wrong and correct course.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the uniform envelope every tool execution produces.
// Status is always set; Data carries success payloads, Error carries failures.
// Tool executions never surface Go errors to the caller: a failed call is a
// Result with StatusError, which the orchestrator folds back into the
// conversation so the model can react to it.
type Result struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   *Error         `json:"error,omitempty"`
}

// OK reports whether the execution succeeded.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Success builds a success Result with an optional data payload.
func Success(message string, data map[string]any) Result {
	return Result{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	}
}

// Failure builds an error Result with a structured error code.
func Failure(code, message string) Result {
	return Result{
		Status:  StatusError,
		Message: message,
		Error:   &Error{Code: code, Message: message},
	}
}

// Failuref builds an error Result with a formatted message.
func Failuref(code, format string, args ...any) Result {
	return Failure(code, fmt.Sprintf(format, args...))
}
