package errors

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"

	dbsqlerr "github.com/databricks/databricks-sql-go/errors"
)

// DepartmentError is the per-department failure attached to a query result.
// Message is safe to show to chat users; Cause keeps the driver error for logs.
type DepartmentError struct {
	Department string
	Code       ErrorCode
	Message    string
	Attempts   int
	Cause      error
}

func (e *DepartmentError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Department, e.Code, e.Message)
}

func (e *DepartmentError) Unwrap() error {
	return e.Cause
}

// Is maps timeout codes onto ErrTimeout and every other code onto ErrExecution.
func (e *DepartmentError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Code == ErrCodeTimeout
	case ErrExecution:
		return e.Code != ErrCodeTimeout
	}
	return false
}

// UserMessage returns the short schema-safe description for chat output.
func (e *DepartmentError) UserMessage() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return GetDescription(e.Code)
}

// NewDepartmentError classifies cause and builds the department error for it.
func NewDepartmentError(department string, cause error, attempts int) *DepartmentError {
	code := ClassifyError(cause)
	return &DepartmentError{
		Department: department,
		Code:       code,
		Message:    GetDescription(code),
		Attempts:   attempts,
		Cause:      cause,
	}
}

// errorClass matches the bracketed error class Databricks puts at the start
// of SQL failures, e.g. "[TABLE_OR_VIEW_NOT_FOUND]".
var errorClass = regexp.MustCompile(`\[([A-Z][A-Z0-9_]*(?:\.[A-Z0-9_]+)*)\]`)

// ClassifyError inspects a driver or network error and returns its code.
// Typed driver errors are checked first; message matching is the fallback
// for errors that lost their type on the way up.
// Unknown errors classify as ErrCodeExecutionFailed.
func ClassifyError(err error) ErrorCode {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrCodeCancelled
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrCodeConnectivity
	}

	var de *DepartmentError
	if errors.As(err, &de) {
		return de.Code
	}

	var execErr dbsqlerr.DBExecutionError
	if errors.As(err, &execErr) {
		return classifySQLState(execErr.SqlState())
	}
	var dbErr dbsqlerr.DBError
	if errors.As(err, &dbErr) && dbErr.IsRetryable() {
		return ErrCodeConnectivity
	}

	msg := err.Error()
	if m := errorClass.FindStringSubmatch(msg); m != nil {
		return classifyErrorClass(m[1])
	}

	lower := strings.ToLower(msg)

	// Auth before connectivity: gateways answer bad tokens with 401 bodies that
	// also mention "unavailable".
	if containsAny(lower, "unauthorized", "invalid access token", "authentication failed", "failed to authenticate") {
		return ErrCodeAuthFailed
	}
	if containsAny(lower, "forbidden", "permission denied", "insufficient privileges", "insufficient_permissions") {
		return ErrCodePermissionDenied
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrCodeConnectivity
	}
	if containsAny(lower, "connection refused", "connection reset", "no such host", "broken pipe",
		"bad gateway", "service unavailable", "temporarily unavailable", "too many requests") {
		return ErrCodeConnectivity
	}

	return ErrCodeExecutionFailed
}

// classifySQLState maps a SQLSTATE from an execution error. Statements the
// warehouse accepted are never connectivity failures.
func classifySQLState(state string) ErrorCode {
	switch {
	case strings.HasPrefix(state, "28"):
		return ErrCodeAuthFailed
	case state == "42501":
		return ErrCodePermissionDenied
	}
	return ErrCodeExecutionFailed
}

func classifyErrorClass(class string) ErrorCode {
	switch strings.SplitN(class, ".", 2)[0] {
	case "INSUFFICIENT_PERMISSIONS", "PERMISSION_DENIED":
		return ErrCodePermissionDenied
	case "UNAUTHENTICATED", "INVALID_TOKEN":
		return ErrCodeAuthFailed
	}
	return ErrCodeExecutionFailed
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
