// Package cli provides the command-line interface of the netscanner port scanner.
// This package implements the Cobra-based command tree: the scan commands
// (this, device, range, subnet), configuration management and help.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anstrom/netscanner/internal/config"
	"github.com/anstrom/netscanner/internal/errors"
	"github.com/anstrom/netscanner/internal/logging"
)

const envPrefix = "NETSCANNER"

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// flagBindings maps configuration keys to the persistent flags that override them.
var flagBindings = map[string]string{
	"scanning.scan_all_ports":  "all-ports",
	"scanning.ping_prohibited": "no-ping",
	"scanning.max_threads":     "threads",
	"scanning.connect_timeout": "timeout",
	"discovery.method":         "ping-method",
	"output.format":            "format",
	"metrics.listen_addr":      "metrics-addr",
}

// app carries the state one command invocation shares between its hooks.
type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *logging.Logger
}

// NewRootCommand builds the complete command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "netscanner",
		Short: "Concurrent TCP port scanner",
		Long: `netscanner probes TCP ports of a single device, an address range or a
whole subnet, sharing one bounded worker pool across every host of the scan.

By default only well-known service ports are probed and hosts that do not
answer a ping are skipped.`,
		Example: `  netscanner this
  netscanner device 192.168.1.10 -a
  netscanner range 192.168.1.1 192.168.1.50 -t 256
  netscanner subnet 10.0.0.0 24 -p --format table`,
		Version:           getVersion(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./config.yaml)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	pf.BoolP("all-ports", "a", false, "Scan all ports (time consuming)")
	pf.BoolP("no-ping", "p", false, "Prohibit the use of pinging (takes more time)")
	pf.IntP("threads", "t", config.DefaultMaxThreads, "Set the number of threads to use for scanning")
	pf.Duration("timeout", config.DefaultConnectTimeout, "Timeout for a single connection attempt")
	pf.String("ping-method", "icmp", "Reachability check: icmp or nmap")
	pf.String("format", "text", "Report format: text, json or table")
	pf.String("metrics-addr", "", "Serve Prometheus metrics on this address while scanning")

	if err := bindFlags(a.v, pf, flagBindings); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind flags: %v\n", err)
	}

	rootCmd.SetHelpCommand(newHelpCmd())
	rootCmd.AddCommand(
		newThisCmd(a),
		newDeviceCmd(a),
		newRangeCmd(a),
		newSubnetCmd(a),
		newConfigCmd(a),
	)

	return rootCmd
}

// Execute runs the command line and exits the process with its status.
// This is called by main.main().
func Execute() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes args and returns the process exit code: 0 on completion or
// help, 1 on any error.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Debug("Command failed", "code", errors.GetCode(err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintln(stderr, "Type 'netscanner help' or 'netscanner ?' to get extended information")
		return 1
	}
	return 0
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			return errors.NewConfigError(errors.CodeConfiguration,
				fmt.Sprintf("unknown flag %q for key %q", name, key))
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind %s flag: %w", name, err)
		}
	}
	return nil
}

// setup layers defaults, config file, environment and flags, then installs
// the configured logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := a.readConfig(cmd.ErrOrStderr()); err != nil {
		return err
	}

	cfg, err := config.FromViper(a.v)
	if err != nil {
		return err
	}
	if a.verbose && cfg.Logging.Level != string(logging.LevelDebug) {
		cfg.Logging.Level = string(logging.LevelInfo)
	}
	a.cfg = cfg

	a.logger = initLogging(cfg.Logging)
	logging.SetDefault(a.logger)

	if a.verbose {
		a.logger.Info("Structured logging initialized", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	}
	return nil
}

// readConfig reads in the config file and NETSCANNER_* environment variables.
func (a *app) readConfig(stderr io.Writer) error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()
	config.SetDefaults(a.v)

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigType("yaml")
		a.v.SetConfigName("config")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile == "" && stderrors.As(err, &notFound) {
			return nil
		}
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}

	if a.verbose {
		fmt.Fprintln(stderr, "Using config file:", a.v.ConfigFileUsed())
	}
	return nil
}

// initLogging builds the structured logger from the logging section.
func initLogging(cfg config.LoggingConfig) *logging.Logger {
	logConfig := logging.Config{
		Level:     logging.LogLevel(cfg.Level),
		Format:    logging.LogFormat(cfg.Format),
		Output:    cfg.Output,
		AddSource: cfg.Level == string(logging.LevelDebug),
	}

	logger, err := logging.New(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
		return logging.NewDefault()
	}
	return logger
}

// newHelpCmd replaces cobra's help command so that "?" works as well.
func newHelpCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "help [command]",
		Aliases: []string{"?"},
		Short:   "Shows this text",
		// Help never needs configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _, err := cmd.Root().Find(args)
			if err != nil || target == nil {
				target = cmd.Root()
			}
			return target.Help()
		},
	}
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
}
