package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/railflash/internal/flash"
	"github.com/buckleypaul/railflash/internal/logger"
	"github.com/buckleypaul/railflash/internal/report"
)

// FlashOptions holds options for the flash command
type FlashOptions struct {
	// NoSettle skips the post-flash pause while the board reboots
	NoSettle bool
}

// newFlashCmd creates the flash subcommand
func newFlashCmd() *cobra.Command {
	opts := &FlashOptions{}

	cmd := &cobra.Command{
		Use:   "flash",
		Short: "Detect the board and write the firmware",
		Long: `Detect the board, then write bootloader.bin, partitions.bin and
firmware.bin from the artifacts directory with esptool.

Only firmware.bin is required; missing bootloader or partition images are
skipped. Once esptool has started it always runs to completion; an
interrupt only takes effect before launch or during the settle pause.`,
		Example: `  # Flash the default build output
  railflash flash

  # Flash a specific build to a specific port
  railflash flash --port COM3 --artifacts ./build`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFlash(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoSettle, "no-settle", false,
		"return as soon as esptool exits")

	return cmd
}

func runFlash(cmd *cobra.Command, opts *FlashOptions) error {
	out := cmd.OutOrStdout()
	cfg := GlobalOptions.Config
	if opts.NoSettle {
		cfg.Flash.SettleMS = 0
	}

	log := logger.Default()
	rep := report.Multi(newPrinter(out), report.NewLog(log))

	dev, err := newScanner(cfg, rep, log).Detect(GlobalOptions.Context)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}

	outcome, err := newOrchestrator(cfg, rep, log).Flash(GlobalOptions.Context, dev)
	if err != nil {
		return err
	}
	if !outcome.Succeeded() {
		return describeFailure(outcome.Err)
	}

	_, _ = fmt.Fprintf(out, "session %s: firmware written to %s\n", outcome.SessionID, dev.Port)
	return nil
}

// describeFailure turns a session error into the command's error.
func describeFailure(err error) error {
	var (
		missingArtifact  *flash.MissingArtifactError
		missingToolchain *flash.MissingToolchainError
		exitErr          *flash.ExitError
	)
	switch {
	case errors.As(err, &missingArtifact):
		return fmt.Errorf("firmware not built: %w", err)
	case errors.As(err, &missingToolchain):
		return fmt.Errorf("esptool unavailable: %w", err)
	case errors.As(err, &exitErr):
		return fmt.Errorf("esptool failed with code %d: %w", exitErr.Code, err)
	default:
		return fmt.Errorf("flash failed: %w", err)
	}
}
