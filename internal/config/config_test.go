package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netscanner/internal/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 512, cfg.Scanning.MaxThreads)
	assert.Equal(t, 3*time.Second, cfg.Scanning.ConnectTimeout)
	assert.False(t, cfg.Scanning.ScanAllPorts)
	assert.False(t, cfg.Scanning.PingProhibited)
	assert.Equal(t, "icmp", cfg.Discovery.Method)
	assert.Equal(t, time.Second, cfg.Discovery.Timeout)
	assert.Equal(t, "text", cfg.Output.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Empty(t, cfg.Metrics.ListenAddr)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero threads", func(c *Config) { c.Scanning.MaxThreads = 0 }, "scanning.maxthreads"},
		{"negative connect timeout", func(c *Config) { c.Scanning.ConnectTimeout = -time.Second }, "scanning.connecttimeout"},
		{"unknown discovery method", func(c *Config) { c.Discovery.Method = "arp" }, "discovery.method"},
		{"zero ping timeout", func(c *Config) { c.Discovery.Timeout = 0 }, "discovery.timeout"},
		{"unknown output format", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"unknown log format", func(c *Config) { c.Logging.Format = "logfmt" }, "logging.format"},
		{"empty log output", func(c *Config) { c.Logging.Output = "" }, "logging.output"},
		{"bad metrics address", func(c *Config) { c.Metrics.ListenAddr = "not an address" }, "metrics.listenaddr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeValidation))

			var configErr *errors.ConfigError
			require.ErrorAs(t, err, &configErr)
			assert.Equal(t, tt.field, configErr.Field)
		})
	}

	t.Run("valid metrics address", func(t *testing.T) {
		cfg := Default()
		cfg.Metrics.ListenAddr = "127.0.0.1:9100"
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	t.Run("empty path yields defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxThreads, cfg.Scanning.MaxThreads)
	})

	t.Run("partial file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "netscanner.yaml")
		content := `
scanning:
  max_threads: 64
  connect_timeout: 500ms
discovery:
  method: nmap
output:
  format: json
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 64, cfg.Scanning.MaxThreads)
		assert.Equal(t, 500*time.Millisecond, cfg.Scanning.ConnectTimeout)
		assert.Equal(t, "nmap", cfg.Discovery.Method)
		assert.Equal(t, "json", cfg.Output.Format)
		assert.Equal(t, time.Second, cfg.Discovery.Timeout, "untouched keys keep defaults")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("scanning: [unclosed"), 0o600))

		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeConfiguration))
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "invalid.yaml")
		require.NoError(t, os.WriteFile(path, []byte("scanning:\n  max_threads: 0\n"), 0o600))

		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeValidation))
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "netscanner.yaml")

	cfg := Default()
	cfg.Scanning.MaxThreads = 32
	cfg.Output.Format = "table"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestFromViper(t *testing.T) {
	t.Run("defaults only", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		cfg, err := FromViper(v)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("overrides win over defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("scanning.max_threads", 8)
		v.Set("scanning.scan_all_ports", true)
		v.Set("scanning.connect_timeout", "250ms")
		v.Set("output.format", "table")

		cfg, err := FromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Scanning.MaxThreads)
		assert.True(t, cfg.Scanning.ScanAllPorts)
		assert.Equal(t, 250*time.Millisecond, cfg.Scanning.ConnectTimeout)
		assert.Equal(t, "table", cfg.Output.Format)
	})

	t.Run("invalid override", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("scanning.max_threads", -1)

		_, err := FromViper(v)
		assert.True(t, errors.IsCode(err, errors.CodeValidation))
	})
}
