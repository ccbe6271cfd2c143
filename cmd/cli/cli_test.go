package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netscanner/internal/errors"
)

func execute(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestHelp(t *testing.T) {
	for _, args := range [][]string{{"help"}, {"?"}, {}} {
		t.Run(strings.Join(append([]string{"netscanner"}, args...), " "), func(t *testing.T) {
			code, stdout, _ := execute(t, args...)
			assert.Equal(t, 0, code)
			for _, want := range []string{"this", "device", "range", "subnet", "--all-ports", "--no-ping", "--threads"} {
				assert.Contains(t, stdout, want)
			}
		})
	}

	t.Run("help for a command", func(t *testing.T) {
		code, stdout, _ := execute(t, "help", "subnet")
		assert.Equal(t, 0, code)
		assert.Contains(t, stdout, "subnet <IPv4> <CIDRprefix>")
	})

	t.Run("version", func(t *testing.T) {
		SetVersion("1.2.3", "abc", "today")
		defer SetVersion("dev", "none", "unknown")

		code, stdout, _ := execute(t, "--version")
		assert.Equal(t, 0, code)
		assert.Contains(t, stdout, "1.2.3 (commit: abc, built: today)")
	})
}

func TestArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown command", []string{"scan"}, `unknown command "scan"`},
		{"device without address", []string{"device"}, "The argument 'device' requires 1 more argument(s)"},
		{"range with one address", []string{"range", "10.0.0.1"}, "The argument 'range' requires 1 more argument(s)"},
		{"subnet without arguments", []string{"subnet"}, "The argument 'subnet' requires 2 more argument(s)"},
		{"this with an argument", []string{"this", "10.0.0.1"}, "accepts 0 argument(s)"},
		{"invalid address", []string{"device", "10.0.0.256"}, "INVALID_ADDRESS"},
		{"hostname", []string{"device", "localhost"}, "INVALID_ADDRESS"},
		{"reversed range", []string{"range", "10.0.0.9", "10.0.0.1"}, "INVALID_RANGE"},
		{"prefix too long", []string{"subnet", "10.0.0.0", "33"}, "INVALID_CIDR"},
		{"prefix not a number", []string{"subnet", "10.0.0.0", "x"}, "INVALID_CIDR"},
		{"zero threads", []string{"device", "10.0.0.1", "-t", "0"}, "scanning.maxthreads"},
		{"unknown format", []string{"device", "10.0.0.1", "--format", "xml"}, "output.format"},
		{"unknown ping method", []string{"device", "10.0.0.1", "--ping-method", "arp"}, "discovery.method"},
		{"unknown flag", []string{"device", "10.0.0.1", "-x"}, "unknown shorthand flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := execute(t, tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, tt.want)
			assert.Contains(t, stderr, "netscanner help")
			assert.NotContains(t, stdout, "Scanning completed")
		})
	}
}

func TestConfigShowLayering(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		code, stdout, _ := execute(t, "config", "show")
		require.Equal(t, 0, code)
		assert.Contains(t, stdout, "max_threads: 512")
		assert.Contains(t, stdout, "connect_timeout: 3s")
		assert.Contains(t, stdout, "scan_all_ports: false")
		assert.Contains(t, stdout, "method: icmp")
	})

	t.Run("flags", func(t *testing.T) {
		code, stdout, _ := execute(t, "config", "show", "-a", "-p", "-t", "64", "--format", "table")
		require.Equal(t, 0, code)
		assert.Contains(t, stdout, "max_threads: 64")
		assert.Contains(t, stdout, "scan_all_ports: true")
		assert.Contains(t, stdout, "ping_prohibited: true")
		assert.Contains(t, stdout, "format: table")
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("NETSCANNER_SCANNING_MAX_THREADS", "7")
		t.Setenv("NETSCANNER_DISCOVERY_METHOD", "nmap")

		code, stdout, _ := execute(t, "config", "show")
		require.Equal(t, 0, code)
		assert.Contains(t, stdout, "max_threads: 7")
		assert.Contains(t, stdout, "method: nmap")
	})

	t.Run("config file then flag", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "netscanner.yaml")
		require.NoError(t, os.WriteFile(path, []byte("scanning:\n  max_threads: 32\noutput:\n  format: json\n"), 0o600))

		code, stdout, _ := execute(t, "--config", path, "config", "show")
		require.Equal(t, 0, code)
		assert.Contains(t, stdout, "max_threads: 32")
		assert.Contains(t, stdout, "format: json")

		code, stdout, _ = execute(t, "--config", path, "config", "show", "-t", "8")
		require.Equal(t, 0, code)
		assert.Contains(t, stdout, "max_threads: 8")
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		code, _, stderr := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "config", "show")
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "CONFIGURATION")
	})
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "netscanner.yaml")

	code, stdout, _ := execute(t, "config", "init", path)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Configuration written to "+path)
	assert.FileExists(t, path)

	code, _, stderr := execute(t, "config", "init", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "already exists")

	code, _, _ = execute(t, "config", "init", path, "--force")
	assert.Equal(t, 0, code)

	code, stdout, _ = execute(t, "config", "validate", path)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Configuration is valid")

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("scanning:\n  max_threads: 0\n"), 0o600))
	code, _, stderr = execute(t, "config", "validate", invalid)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "VALIDATION")

	code, _, _ = execute(t, "config", "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, 1, code)
}

func TestDeviceScanLoopback(t *testing.T) {
	code, stdout, stderr := execute(t, "device", "127.0.0.1", "-p", "--timeout", "500ms")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Scanning completed in")
}

func TestDeviceScanJSONKeepsStdoutMachineReadable(t *testing.T) {
	code, stdout, stderr := execute(t, "device", "127.0.0.1", "-p", "--timeout", "500ms", "--format", "json")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "Scanning completed in")

	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if line == "" {
			continue
		}
		var host map[string]any
		assert.NoError(t, json.Unmarshal([]byte(line), &host), line)
	}
}

func TestLocalIPv4(t *testing.T) {
	t.Run("falls back to loopback without a route", func(t *testing.T) {
		orig := dialUDP
		defer func() { dialUDP = orig }()
		dialUDP = func(string, string) (net.Conn, error) {
			return nil, &net.OpError{Op: "dial", Net: "udp4", Err: os.ErrNotExist}
		}

		assert.Equal(t, "127.0.0.1", localIPv4(nil).String())
	})

	t.Run("uses the routed interface", func(t *testing.T) {
		ip := localIPv4(nil)
		assert.True(t, ip.Is4())
		assert.False(t, ip.IsUnspecified())
	})
}

func TestBindFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.IntP("threads", "t", 512, "")
	require.NoError(t, flags.Parse([]string{"-t", "9"}))

	v := viper.New()
	require.NoError(t, bindFlags(v, flags, map[string]string{"scanning.max_threads": "threads"}))
	assert.Equal(t, 9, v.GetInt("scanning.max_threads"))

	err := bindFlags(v, flags, map[string]string{"output.format": "format"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConfiguration))
}
