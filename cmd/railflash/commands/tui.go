package commands

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/buckleypaul/railflash/internal/app"
	"github.com/buckleypaul/railflash/internal/logger"
	"github.com/buckleypaul/railflash/internal/report"
)

const eventBuffer = 64

func runTUI(cmd *cobra.Command) error {
	ctx := GlobalOptions.Context
	cfg := GlobalOptions.Config
	log := logger.Default()

	events := report.NewChannel(eventBuffer)
	rep := report.Multi(events, report.NewLog(log))

	model := app.New(ctx,
		newScanner(cfg, rep, log),
		newOrchestrator(cfg, rep, log),
		events.Events(),
	)

	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	// A signal cancels ctx, which kills the program; that is a normal exit.
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run interface: %w", err)
	}
	return nil
}
