package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrMissingInput      = fmt.Errorf("input is required")
	ErrUpstream          = fmt.Errorf("upstream chat API error")
	ErrToolNotFound      = fmt.Errorf("tool not found")
	ErrInvalidArguments  = fmt.Errorf("invalid tool arguments")
	ErrToolFailure       = fmt.Errorf("tool execution failed")
	ErrSessionNotFound   = fmt.Errorf("session not found")
	ErrDuplicate         = fmt.Errorf("duplicate")
	ErrBridgeUnavailable = fmt.Errorf("bridge unreachable")
	ErrRateLimit         = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrTimeout           = fmt.Errorf("operation timed out")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Get")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for API responses and
// monitoring.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeMissingInput      ErrorCode = "MISSING_INPUT"
	CodeUpstream          ErrorCode = "UPSTREAM_ERROR"
	CodeToolNotFound      ErrorCode = "TOOL_NOT_FOUND"
	CodeInvalidArguments  ErrorCode = "INVALID_ARGUMENTS"
	CodeToolFailure       ErrorCode = "TOOL_FAILURE"
	CodeSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	CodeDuplicate         ErrorCode = "DUPLICATE"
	CodeBridgeUnavailable ErrorCode = "BRIDGE_UNAVAILABLE"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeTimeout           ErrorCode = "TIMEOUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrMissingInput:      CodeMissingInput,
	ErrUpstream:          CodeUpstream,
	ErrToolNotFound:      CodeToolNotFound,
	ErrInvalidArguments:  CodeInvalidArguments,
	ErrToolFailure:       CodeToolFailure,
	ErrSessionNotFound:   CodeSessionNotFound,
	ErrDuplicate:         CodeDuplicate,
	ErrBridgeUnavailable: CodeBridgeUnavailable,
	ErrRateLimit:         CodeRateLimit,
	ErrAuthInvalid:       CodeAuthInvalid,
	ErrTimeout:           CodeTimeout,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and walks the chain with errors.Is.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}
