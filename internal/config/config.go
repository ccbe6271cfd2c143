// Package config holds the netscanner configuration: defaults, YAML
// persistence, validation, and layering of flags and environment through viper.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/netscanner/internal/errors"
)

const (
	// DefaultMaxThreads is the worker pool capacity used when none is given.
	DefaultMaxThreads = 512
	// DefaultConnectTimeout bounds a single TCP connection attempt.
	DefaultConnectTimeout = 3 * time.Second
	// DefaultPingTimeout bounds a single reachability probe.
	DefaultPingTimeout = 1 * time.Second

	configDirPerm  = 0750
	configFilePerm = 0600
)

// Config represents the complete scanner configuration.
type Config struct {
	Scanning  ScanningConfig  `yaml:"scanning" json:"scanning" mapstructure:"scanning"`
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery" mapstructure:"discovery"`
	Output    OutputConfig    `yaml:"output" json:"output" mapstructure:"output"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging" mapstructure:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
}

// ScanningConfig holds scanning-related settings
type ScanningConfig struct {
	// Worker pool capacity shared by the whole scan tree
	MaxThreads int `yaml:"max_threads" json:"max_threads" mapstructure:"max_threads" validate:"min=1"`

	// Timeout for a single TCP connection attempt
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" mapstructure:"connect_timeout" validate:"gt=0"`

	// Probe every port instead of the well-known set
	ScanAllPorts bool `yaml:"scan_all_ports" json:"scan_all_ports" mapstructure:"scan_all_ports"`

	// Skip the reachability pre-check entirely
	PingProhibited bool `yaml:"ping_prohibited" json:"ping_prohibited" mapstructure:"ping_prohibited"`
}

// DiscoveryConfig holds reachability probe settings
type DiscoveryConfig struct {
	// Probe implementation: icmp or nmap
	Method string `yaml:"method" json:"method" mapstructure:"method" validate:"oneof=icmp nmap"`

	// Timeout for a single reachability probe
	Timeout time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout" validate:"gt=0"`
}

// OutputConfig holds report settings
type OutputConfig struct {
	// Report format: text, json or table
	Format string `yaml:"format" json:"format" mapstructure:"format" validate:"oneof=text json table"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format" mapstructure:"format" validate:"oneof=text json"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output" mapstructure:"output" validate:"required"`
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	// Address serving /metrics while a scan runs; empty disables the endpoint
	ListenAddr string `yaml:"listen_addr" json:"listen_addr" mapstructure:"listen_addr" validate:"omitempty,hostname_port"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Scanning: ScanningConfig{
			MaxThreads:     DefaultMaxThreads,
			ConnectTimeout: DefaultConnectTimeout,
			ScanAllPorts:   false,
			PingProhibited: false,
		},
		Discovery: DiscoveryConfig{
			Method:  "icmp",
			Timeout: DefaultPingTimeout,
		},
		Output: OutputConfig{
			Format: "text",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load loads configuration from a YAML file on top of the defaults. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to parse YAML config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if stderrors.As(err, &validationErrs) && len(validationErrs) > 0 {
		fe := validationErrs[0]
		return errors.NewConfigFieldError(errors.CodeValidation,
			fmt.Sprintf("failed %q constraint", fe.Tag()), fieldPath(fe.Namespace()), fe.Value())
	}
	return errors.WrapConfigError(errors.CodeValidation, "invalid configuration", err)
}

// fieldPath turns "Config.Scanning.MaxThreads" into "scanning.maxthreads".
func fieldPath(namespace string) string {
	namespace = strings.TrimPrefix(namespace, "Config.")
	return strings.ToLower(namespace)
}

// SetDefaults registers every default value on v under its dotted key.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("scanning.max_threads", d.Scanning.MaxThreads)
	v.SetDefault("scanning.connect_timeout", d.Scanning.ConnectTimeout)
	v.SetDefault("scanning.scan_all_ports", d.Scanning.ScanAllPorts)
	v.SetDefault("scanning.ping_prohibited", d.Scanning.PingProhibited)

	v.SetDefault("discovery.method", d.Discovery.Method)
	v.SetDefault("discovery.timeout", d.Discovery.Timeout)

	v.SetDefault("output.format", d.Output.Format)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("metrics.listen_addr", d.Metrics.ListenAddr)
}

// FromViper builds a validated configuration from the layered viper state
// (defaults, config file, NETSCANNER_* environment, bound flags).
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to decode configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
