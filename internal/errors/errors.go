// Package errors provides structured error handling for newhosts operations.
// It defines error codes, error types, and provides utilities for creating
// and handling errors with context and structured information.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"

	// Network specification errors.
	CodeInvalidRange     ErrorCode = "INVALID_RANGE"
	CodeInvalidCIDR      ErrorCode = "INVALID_CIDR"
	CodeUnknownNetwork   ErrorCode = "UNKNOWN_NETWORK"
	CodeConflictingFlags ErrorCode = "CONFLICTING_FLAGS"

	// Probe errors.
	CodeProbeFailed ErrorCode = "PROBE_FAILED"
	CodeToolMissing ErrorCode = "TOOL_MISSING"
	CodePanic       ErrorCode = "PANIC"

	// Database errors.
	CodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	CodeDatabaseQuery      ErrorCode = "DATABASE_QUERY"
	CodeDatabaseSchema     ErrorCode = "DATABASE_SCHEMA"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeConflict           ErrorCode = "CONFLICT"

	// Result integrity errors.
	CodeIncompleteResults ErrorCode = "INCOMPLETE_RESULTS"
)

// ConfigError represents configuration-related errors. These are reported
// before any scanning starts.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
	}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// ProbeError represents the failure of one probe against one address.
type ProbeError struct {
	Code    ErrorCode
	Message string
	Tool    string
	Target  string
	Cause   error
}

// Error implements the error interface.
func (e *ProbeError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s: %s (target: %s)", e.Code, e.Tool, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Tool, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProbeError) Unwrap() error {
	return e.Cause
}

// WrapProbeError wraps an error raised while probing target with tool.
func WrapProbeError(code ErrorCode, tool, target string, err error) *ProbeError {
	msg := "probe failed"
	if err != nil {
		msg = err.Error()
	}
	return &ProbeError{
		Code:    code,
		Message: msg,
		Tool:    tool,
		Target:  target,
		Cause:   err,
	}
}

// DatabaseError represents database-related errors.
type DatabaseError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Query     string
	Cause     error
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// WithQuery adds the SQL query that caused the error.
func (e *DatabaseError) WithQuery(query string) *DatabaseError {
	e.Query = query
	return e
}

// NewDatabaseError creates a new database error.
func NewDatabaseError(code ErrorCode, message string) *DatabaseError {
	return &DatabaseError{
		Code:    code,
		Message: message,
	}
}

// WrapDatabaseError wraps an existing error as a database error.
func WrapDatabaseError(code ErrorCode, message string, err error) *DatabaseError {
	return &DatabaseError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// IntegrityError reports that a worker pool finished without producing a
// result for every submitted item.
type IntegrityError struct {
	Code    ErrorCode
	Pool    string
	Missing []string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("[%s] pool %s is missing %d result(s): %v", e.Code, e.Pool, len(e.Missing), e.Missing)
}

// Utility functions for common error operations

// GetCode extracts the error code from an error if it has one. Wrapped
// errors are searched with errors.As.
func GetCode(err error) ErrorCode {
	var configErr *ConfigError
	var probeErr *ProbeError
	var dbErr *DatabaseError
	var integrityErr *IntegrityError

	switch {
	case stderrors.As(err, &configErr):
		return configErr.Code
	case stderrors.As(err, &probeErr):
		return probeErr.Code
	case stderrors.As(err, &dbErr):
		return dbErr.Code
	case stderrors.As(err, &integrityErr):
		return integrityErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var configErr *ConfigError
	return stderrors.As(err, &configErr)
}

// IsFatal determines if an error indicates a fatal condition that should stop execution.
// Probe errors never are: they are recorded per address.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var probeErr *ProbeError
	if stderrors.As(err, &probeErr) {
		return false
	}
	switch GetCode(err) {
	case CodeTimeout, CodeCanceled:
		return false
	default:
		return true
	}
}

// Common error creation functions

// ErrInvalidRange creates an error for a malformed or inverted "a-b" range.
func ErrInvalidRange(spec string, err error) *ConfigError {
	e := NewConfigFieldError(CodeInvalidRange, "Invalid address range", "network", spec)
	e.Cause = err
	return e
}

// ErrInvalidCIDR creates an error for malformed CIDR input.
func ErrInvalidCIDR(spec string, err error) *ConfigError {
	e := NewConfigFieldError(CodeInvalidCIDR, "Invalid CIDR network", "network", spec)
	e.Cause = err
	return e
}

// ErrUnknownNetwork creates an error for a saved network name that does not exist.
func ErrUnknownNetwork(name string) *ConfigError {
	return NewConfigFieldError(CodeUnknownNetwork, "Unknown saved network", "network", name)
}

// ErrConflictingFlags creates an error for mutually dependent flags.
func ErrConflictingFlags(message string) *ConfigError {
	return NewConfigError(CodeConflictingFlags, message)
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}

// ErrConfigMissing creates an error for missing required configuration.
func ErrConfigMissing(field string) *ConfigError {
	return NewConfigFieldError(CodeConfiguration, "Required configuration field missing", field, nil)
}

// ErrDatabaseConnection creates an error for database connection failures.
func ErrDatabaseConnection(err error) *DatabaseError {
	return WrapDatabaseError(CodeDatabaseConnection, "Failed to connect to database", err)
}

// ErrDatabaseQuery creates an error for database query failures.
func ErrDatabaseQuery(query string, err error) *DatabaseError {
	return WrapDatabaseError(CodeDatabaseQuery, "Database query failed", err).WithQuery(query)
}

// ErrIncompleteResults creates an error for a pool that lost results.
func ErrIncompleteResults(pool string, missing []string) *IntegrityError {
	return &IntegrityError{
		Code:    CodeIncompleteResults,
		Pool:    pool,
		Missing: missing,
	}
}
