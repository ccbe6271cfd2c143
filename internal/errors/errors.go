// Package errors provides structured error handling for netscanner operations.
// It defines error codes, error types, and provides utilities for creating
// and handling errors with context and structured information.
package errors

import (
	"errors"
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
	CodePermission    ErrorCode = "PERMISSION"

	// Target specification errors.
	CodeInvalidAddress  ErrorCode = "INVALID_ADDRESS"
	CodeInvalidRange    ErrorCode = "INVALID_RANGE"
	CodeInvalidCIDR     ErrorCode = "INVALID_CIDR"
	CodeMissingArgument ErrorCode = "MISSING_ARGUMENT"

	// Network and scanning errors.
	CodeHostUnreachable ErrorCode = "HOST_UNREACHABLE"
	CodeResolution      ErrorCode = "RESOLUTION_FAILED"
	CodeScanFailed      ErrorCode = "SCAN_FAILED"
	CodePoolClosed      ErrorCode = "POOL_CLOSED"
)

// TargetError reports a malformed target specification. It is raised before
// any network activity takes place.
type TargetError struct {
	Code    ErrorCode
	Message string
	Input   string
	Cause   error
}

// Error implements the error interface.
func (e *TargetError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("[%s] %s (input: %s)", e.Code, e.Message, e.Input)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *TargetError) Unwrap() error {
	return e.Cause
}

// NewTargetError creates a target error for the given input.
func NewTargetError(code ErrorCode, message, input string) *TargetError {
	return &TargetError{
		Code:    code,
		Message: message,
		Input:   input,
	}
}

// WrapTargetError wraps a parse error as a target error.
func WrapTargetError(code ErrorCode, message, input string, err error) *TargetError {
	return &TargetError{
		Code:    code,
		Message: message,
		Input:   input,
		Cause:   err,
	}
}

// ScanError represents an error that occurred during scanning operations.
type ScanError struct {
	Code    ErrorCode
	Message string
	Target  string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value interface{}) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Context: make(map[string]interface{}),
	}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// WrapScanErrorWithTarget wraps an error with target information.
func WrapScanErrorWithTarget(code ErrorCode, message, target string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// ConfigError represents configuration-related errors.
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

// Utility functions for common error operations

// GetCode extracts the error code from an error chain if it has one.
func GetCode(err error) ErrorCode {
	var targetErr *TargetError
	if errors.As(err, &targetErr) {
		return targetErr.Code
	}
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Code
	}
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// IsFatal determines if an error must stop the process before scanning starts.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeInvalidAddress, CodeInvalidRange, CodeInvalidCIDR, CodeMissingArgument,
		CodeValidation, CodeConfiguration:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrInvalidAddress creates an error for an input that is not an IPv4 address.
func ErrInvalidAddress(input string) *TargetError {
	return NewTargetError(CodeInvalidAddress, "Invalid IPv4 address", input)
}

// ErrInvalidRange creates an error for a range whose end precedes its start.
func ErrInvalidRange(start, end string) *TargetError {
	return NewTargetError(CodeInvalidRange, "End address lies before start address", start+"-"+end)
}

// ErrInvalidCIDR creates an error for a prefix length outside 0..32.
func ErrInvalidCIDR(input string) *TargetError {
	return NewTargetError(CodeInvalidCIDR, "Invalid CIDR prefix length", input)
}

// ErrMissingArgument creates an error for a command missing positional arguments.
func ErrMissingArgument(command string, required int) *TargetError {
	msg := fmt.Sprintf("The argument '%s' requires %d more argument(s)", command, required)
	return NewTargetError(CodeMissingArgument, msg, command)
}

// ErrHostUnreachable creates an error for unreachable hosts.
func ErrHostUnreachable(target string) *ScanError {
	return NewScanErrorWithTarget(CodeHostUnreachable, "Host is unreachable", target)
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}
