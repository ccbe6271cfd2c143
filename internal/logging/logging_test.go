package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, LevelWarn, cfg.Level)
	assert.Equal(t, FormatText, cfg.Format)
	assert.Equal(t, "stderr", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected slog.Level
	}{
		{"debug level", LevelDebug, slog.LevelDebug},
		{"info level", LevelInfo, slog.LevelInfo},
		{"warn level", LevelWarn, slog.LevelWarn},
		{"error level", LevelError, slog.LevelError},
		{"upper case", LogLevel("DEBUG"), slog.LevelDebug},
		{"unknown defaults to info", LogLevel("verbose"), slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.level))
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("stderr text logger", func(t *testing.T) {
		logger, err := New(Config{Level: LevelInfo, Format: FormatText, Output: "stderr"})
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.Equal(t, LevelInfo, logger.Config().Level)
	})

	t.Run("stdout json logger", func(t *testing.T) {
		logger, err := New(Config{Level: LevelError, Format: FormatJSON, Output: "stdout"})
		require.NoError(t, err)
		require.NotNil(t, logger)
	})

	t.Run("file logger", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "scan.log")

		logger, err := New(Config{Level: LevelDebug, Format: FormatText, Output: logFile})
		require.NoError(t, err)
		logger.Info("hello")

		_, err = os.Stat(logFile)
		assert.NoError(t, err, "log file should have been created")
	})

	t.Run("invalid directory for file logger", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

		_, err := New(Config{Level: LevelInfo, Output: filepath.Join(blocker, "sub", "test.log")})
		assert.Error(t, err)
	})
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelDebug, Format: FormatJSON}, &buf)

	logger.WithComponent("scanner").WithScanID("abc").InfoScan("host scanned", "10.0.0.1", "open_ports", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "host scanned", entry["msg"])
	assert.Equal(t, "scanner", entry["component"])
	assert.Equal(t, "abc", entry["scan_id"])
	assert.Equal(t, "10.0.0.1", entry["target"])
	assert.EqualValues(t, 2, entry["open_ports"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelWarn, Format: FormatText}, &buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
}

func TestDiscoveryHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelInfo, Format: FormatText}, &buf)

	logger.InfoDiscovery("ping answered", "10.0.0.2")
	logger.ErrorDiscovery("ping failed", "10.0.0.3", errors.New("boom"))
	logger.WithTarget("10.0.0.0/30").WithError(errors.New("late")).Error("scan error")

	out := buf.String()
	assert.Contains(t, out, "host=10.0.0.2")
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "target=10.0.0.0/30")
	assert.Contains(t, out, "error=late")
}

func TestDefaultLogger(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer
	SetDefault(NewWithWriter(Config{Level: LevelDebug, Format: FormatText}, &buf))

	Debug("d")
	Info("i")
	Warn("w")
	Error("e")
	InfoScan("scan", "10.0.0.1")
	ErrorScan("scan failed", "10.0.0.1", errors.New("x"))
	InfoDiscovery("disc", "10.0.0.1")
	ErrorDiscovery("disc failed", "10.0.0.1", errors.New("y"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 8)

	SetDefault(nil)
	assert.NotNil(t, Default(), "nil logger must not replace the default")
}
