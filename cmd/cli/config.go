package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/netscanner/internal/config"
	"github.com/anstrom/netscanner/internal/errors"
)

const defaultConfigPath = "config.yaml"

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage the configuration",
		Long: `Show the effective configuration (defaults, config file, NETSCANNER_*
environment and flags), write a default config file, or validate one.`,
	}

	configCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration as YAML",
			Args:  exactArgs(0),
			RunE: func(cmd *cobra.Command, _ []string) error {
				data, err := yaml.Marshal(a.cfg)
				if err != nil {
					return fmt.Errorf("failed to marshal config: %w", err)
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
		newConfigInitCmd(),
		&cobra.Command{
			Use:   "validate [file]",
			Short: "Validate a config file",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) == 1 {
					if _, err := os.Stat(args[0]); err != nil {
						return errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
					}
					if _, err := config.Load(args[0]); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
				return nil
			},
		},
	)

	return configCmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write a config file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		// The file being created must not have to parse first.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath
			if len(args) == 1 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil && !force {
				return errors.NewConfigFieldError(errors.CodeConfiguration,
					"config file already exists, use --force to overwrite", "path", path)
			}

			if err := config.Default().Save(path); err != nil {
				return errors.WrapConfigError(errors.CodeConfiguration, "failed to write config file", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}
