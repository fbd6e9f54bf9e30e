package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/railflash/internal/config"
)

// ConfigShowOptions holds options for the config show command
type ConfigShowOptions struct {
	Format string
}

// ConfigInitOptions holds options for the config init command
type ConfigInitOptions struct {
	Global bool
	Force  bool
}

// newConfigCmd creates the config subcommand with its subcommands
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage railflash configuration.

Configuration is loaded from multiple sources in order of precedence:
  1. CLI flags (highest priority)
  2. Environment variables (RAILFLASH_* prefix, e.g. RAILFLASH_SERIAL_PORT)
  3. Local config file (./.railflash/config.json)
  4. Global config file (~/.config/railflash/config.json)
  5. Default values (lowest priority)`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

// newConfigShowCmd creates the config show subcommand
func newConfigShowCmd() *cobra.Command {
	opts := &ConfigShowOptions{}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  `Show the effective configuration after merging all sources.`,
		Example: `  # Show configuration in YAML format (default)
  railflash config show

  # Show configuration in JSON format
  railflash config show --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "yaml",
		"output format: yaml, json")

	return cmd
}

// newConfigInitCmd creates the config init subcommand
func newConfigInitCmd() *cobra.Command {
	opts := &ConfigInitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		Long: `Write the default configuration to ./.railflash/config.json, or to
~/.config/railflash/config.json with --global. An existing file is left
alone unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.Global, "global", false, "write the global config file")
	flags.BoolVar(&opts.Force, "force", false, "overwrite an existing file")

	return cmd
}

func runConfigShow(cmd *cobra.Command, opts *ConfigShowOptions) error {
	out := cmd.OutOrStdout()
	cfg := GlobalOptions.Config

	switch strings.ToLower(opts.Format) {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(data))
	case "yaml", "":
		_, _ = fmt.Fprint(out, cfg.String())
	default:
		return fmt.Errorf("unknown format %q", opts.Format)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, opts *ConfigInitOptions) error {
	root, err := os.Getwd()
	if err != nil {
		return err
	}

	path := config.LocalPath(root)
	if opts.Global {
		if path, err = config.GlobalPath(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(path); err == nil && !opts.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	written, err := config.Save(config.Defaults(), root, opts.Global)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", written)
	return nil
}
