package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodes(t *testing.T) {
	codes := []ErrorCode{
		CodeUnknown,
		CodeValidation,
		CodeConfiguration,
		CodeTimeout,
		CodeCanceled,
		CodePermission,
		CodeInvalidAddress,
		CodeInvalidRange,
		CodeInvalidCIDR,
		CodeMissingArgument,
		CodeHostUnreachable,
		CodeResolution,
		CodeScanFailed,
		CodePoolClosed,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		assert.NotEmpty(t, string(code))
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestTargetError(t *testing.T) {
	t.Run("message includes input", func(t *testing.T) {
		err := ErrInvalidAddress("999.1.1.1")
		assert.Equal(t, "[INVALID_ADDRESS] Invalid IPv4 address (input: 999.1.1.1)", err.Error())
	})

	t.Run("range error joins both ends", func(t *testing.T) {
		err := ErrInvalidRange("10.0.0.9", "10.0.0.1")
		assert.Equal(t, CodeInvalidRange, err.Code)
		assert.Equal(t, "10.0.0.9-10.0.0.1", err.Input)
	})

	t.Run("wrapped cause unwraps", func(t *testing.T) {
		cause := fmt.Errorf("bad prefix")
		err := WrapTargetError(CodeInvalidCIDR, "cannot parse", "33", cause)
		assert.True(t, errors.Is(err, cause))
	})

	t.Run("without input", func(t *testing.T) {
		err := NewTargetError(CodeInvalidCIDR, "bad", "")
		assert.Equal(t, "[INVALID_CIDR] bad", err.Error())
	})
}

func TestScanError(t *testing.T) {
	t.Run("error with target", func(t *testing.T) {
		err := NewScanErrorWithTarget(CodeHostUnreachable, "host down", "192.168.1.1")
		assert.Equal(t, "[HOST_UNREACHABLE] host down (target: 192.168.1.1)", err.Error())
	})

	t.Run("error without target", func(t *testing.T) {
		err := NewScanError(CodeScanFailed, "scan failed")
		assert.Equal(t, "[SCAN_FAILED] scan failed", err.Error())
		assert.NotNil(t, err.Context)
	})

	t.Run("wrapped error with target", func(t *testing.T) {
		cause := fmt.Errorf("connection refused")
		err := WrapScanErrorWithTarget(CodeScanFailed, "cannot connect", "10.0.0.1", cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("with context", func(t *testing.T) {
		err := NewScanError(CodeTimeout, "timeout occurred")
		err.WithContext("port", 443).WithContext("attempt", 1)
		assert.Equal(t, 443, err.Context["port"])
		assert.Equal(t, 1, err.Context["attempt"])
	})

	t.Run("with context on literal", func(t *testing.T) {
		err := &ScanError{Code: CodeTimeout}
		err.WithContext("k", "v")
		assert.Equal(t, "v", err.Context["k"])
	})
}

func TestConfigError(t *testing.T) {
	err := ErrConfigInvalid("scanning.max_threads", 0)
	assert.Equal(t, "[VALIDATION] Invalid configuration value (field: scanning.max_threads)", err.Error())
	assert.Equal(t, 0, err.Value)

	wrapped := WrapConfigError(CodeConfiguration, "failed to read", fmt.Errorf("eof"))
	assert.Equal(t, "[CONFIGURATION] failed to read", wrapped.Error())
	require.NotNil(t, wrapped.Unwrap())
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{"target error", ErrInvalidCIDR("40"), CodeInvalidCIDR},
		{"scan error", ErrHostUnreachable("10.0.0.1"), CodeHostUnreachable},
		{"config error", ErrConfigInvalid("x", 1), CodeValidation},
		{"wrapped target error", fmt.Errorf("parse: %w", ErrInvalidAddress("x")), CodeInvalidAddress},
		{"plain error", fmt.Errorf("plain"), CodeUnknown},
		{"nil error", nil, CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetCode(tt.err))
			if tt.err != nil && tt.expected != CodeUnknown {
				assert.True(t, IsCode(tt.err, tt.expected))
			}
		})
	}

	assert.False(t, IsCode(nil, CodeUnknown))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrInvalidRange("a", "b")))
	assert.True(t, IsFatal(ErrMissingArgument("device", 1)))
	assert.True(t, IsFatal(ErrConfigInvalid("x", nil)))
	assert.False(t, IsFatal(ErrHostUnreachable("10.0.0.1")))
	assert.False(t, IsFatal(fmt.Errorf("plain")))
}

func TestErrMissingArgument(t *testing.T) {
	err := ErrMissingArgument("range", 2)
	assert.Equal(t, CodeMissingArgument, err.Code)
	assert.Contains(t, err.Error(), "The argument 'range' requires 2 more argument(s)")
}
