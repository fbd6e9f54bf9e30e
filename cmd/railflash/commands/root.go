// Package commands provides the CLI command implementations for railflash.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/buckleypaul/railflash/internal/config"
	"github.com/buckleypaul/railflash/internal/logger"
)

// version information set by build flags
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	buildDate = d
}

// RootOptions holds the global options for all commands
type RootOptions struct {
	// ConfigFile replaces the global/local config lookup
	ConfigFile string

	// Port pins detection to one serial port
	Port string

	// Artifacts is the firmware build directory
	Artifacts string

	// Tool is the esptool path
	Tool string

	// Interpreter runs .py tools
	Interpreter string

	LogLevel string
	LogFile  string

	// Config holds the loaded configuration
	Config config.Config

	// Context is the root context for all operations
	Context context.Context

	// CancelFunc cancels the root context
	CancelFunc context.CancelFunc

	logFile io.Closer
}

// GlobalOptions is the singleton instance for root options
var GlobalOptions = &RootOptions{}

// NewRootCmd creates the root cobra command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "railflash",
		Short: "Detect and flash ESP32 boards over USB serial",
		Long: `railflash - ESP32 Firmware Flasher

Finds the ESP32 board attached over USB serial and writes the prebuilt
bootloader, partition table and application images to it with esptool.

Run without a subcommand to open the interactive flasher. Use the
subcommands to detect, flash or monitor from scripts.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initializeGlobals(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			cleanup()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd)
		},
	}

	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newDetectCmd())
	rootCmd.AddCommand(newFlashCmd())
	rootCmd.AddCommand(newPortsCmd())
	rootCmd.AddCommand(newMonitorCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// addGlobalFlags adds the global flags to the root command
func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.StringVar(&GlobalOptions.ConfigFile, "config", "",
		"config file (default: ~/.config/railflash/config.json, ./.railflash/config.json)")
	flags.StringVarP(&GlobalOptions.Port, "port", "p", "",
		"serial port to use instead of scanning")
	flags.StringVar(&GlobalOptions.Artifacts, "artifacts", "",
		"firmware build directory (relative paths are resolved against the executable)")
	flags.StringVar(&GlobalOptions.Tool, "tool", "",
		"esptool path (default: ~/.platformio/packages/tool-esptoolpy/esptool.py)")
	flags.StringVar(&GlobalOptions.Interpreter, "interpreter", "",
		"python interpreter for .py tools (default: python3, python on windows)")
	flags.StringVar(&GlobalOptions.LogLevel, "log-level", "",
		"log level: debug, info, warn, error (default: info)")
	flags.StringVar(&GlobalOptions.LogFile, "log-file", "",
		"log file path (default: stderr; discarded in interactive mode)")
}

// initializeGlobals initializes global options from flags, env, and config file
func initializeGlobals(cmd *cobra.Command) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	GlobalOptions.Context = ctx
	GlobalOptions.CancelFunc = cancel

	result, err := config.Load(config.LoadOptions{
		ConfigFile: GlobalOptions.ConfigFile,
		Flags:      buildFlagSet(cmd),
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	GlobalOptions.Config = result.Config

	if logErr := initLogger(interactive(cmd)); logErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", logErr)
	}

	for _, f := range result.FilesMerged {
		logger.Debug("loaded configuration", "file", f)
	}
	return nil
}

// interactive reports whether cmd takes over the terminal.
func interactive(cmd *cobra.Command) bool {
	return cmd == cmd.Root()
}

// buildFlagSet creates a pflag.FlagSet from cobra command flags for config binding
func buildFlagSet(cmd *cobra.Command) *pflag.FlagSet {
	flags := pflag.NewFlagSet("config", pflag.ContinueOnError)

	addIfExists := func(name string) {
		if flags.Lookup(name) != nil {
			return
		}
		if localFlag := cmd.Flags().Lookup(name); localFlag != nil {
			flags.AddFlag(localFlag)
		} else if inheritedFlag := cmd.InheritedFlags().Lookup(name); inheritedFlag != nil {
			flags.AddFlag(inheritedFlag)
		}
	}

	for _, name := range []string{"port", "artifacts", "tool", "interpreter", "log-level", "log-file"} {
		addIfExists(name)
	}
	return flags
}

// initLogger initializes the logger based on configuration. The
// interactive UI owns the terminal, so without a log file its logs are
// dropped.
func initLogger(tui bool) error {
	cfg := GlobalOptions.Config.Logging

	var output io.Writer = os.Stderr
	switch {
	case cfg.File != "":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		GlobalOptions.logFile = f
		output = f
	case tui:
		logger.SetDefault(logger.Discard())
		return nil
	}

	logger.SetDefault(logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Level),
		Format: logger.ParseFormat(cfg.Format),
		Output: output,
	}))
	return nil
}

// cleanup performs any necessary cleanup before exit
func cleanup() {
	if GlobalOptions.CancelFunc != nil {
		GlobalOptions.CancelFunc()
	}
	if GlobalOptions.logFile != nil {
		_ = GlobalOptions.logFile.Close()
		GlobalOptions.logFile = nil
	}
}

// newVersionCmd creates the version subcommand
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version, commit, and build date information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "railflash version %s\n", version)
			_, _ = fmt.Fprintf(out, "  commit:     %s\n", commit)
			_, _ = fmt.Fprintf(out, "  build date: %s\n", buildDate)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
