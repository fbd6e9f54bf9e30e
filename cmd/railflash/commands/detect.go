package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/railflash/internal/logger"
)

// newDetectCmd creates the detect subcommand
func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Find the attached board",
		Long: `Probe the serial ports in enumeration order and report the first one
that can be opened. Only that port is touched; scanning stops at the
first success. Exits non-zero when no device is found.`,
		Example: `  # Scan every port
  railflash detect

  # Check a single port
  railflash detect --port /dev/ttyUSB0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDetect(cmd)
		},
	}
}

func runDetect(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	cfg := GlobalOptions.Config

	scanner := newScanner(cfg, newPrinter(out), logger.Default())
	dev, err := scanner.Detect(GlobalOptions.Context)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}

	_, _ = fmt.Fprintln(out, dev.Port)
	return nil
}
