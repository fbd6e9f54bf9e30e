package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/railflash/internal/logger"
	"github.com/buckleypaul/railflash/internal/serial"
)

// MonitorOptions holds options for the monitor command
type MonitorOptions struct {
	// Baud overrides serial.monitor-baud when non-zero
	Baud int
}

// openPort is replaced in tests.
var openPort serial.Opener = serial.OpenPort

// newMonitorCmd creates the monitor subcommand
func newMonitorCmd() *cobra.Command {
	opts := &MonitorOptions{}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print serial output from the board",
		Long: `Open the board's serial port and copy everything it sends to stdout
until interrupted or the device goes away. Uses --port when given,
otherwise the port found by detection.

Do not run this while a flash is in progress; esptool needs the port.`,
		Example: `  # Watch boot logs after flashing
  railflash monitor

  # Use a specific port and baud rate
  railflash monitor --port /dev/ttyUSB0 --baud 74880`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Baud, "baud", "b", 0,
		"baud rate (default: serial.monitor-baud)")

	return cmd
}

func runMonitor(cmd *cobra.Command, opts *MonitorOptions) error {
	ctx := GlobalOptions.Context
	cfg := GlobalOptions.Config
	out, status := cmd.OutOrStdout(), cmd.ErrOrStderr()
	log := logger.Default().Component("monitor")

	port := cfg.Serial.Port
	if port == "" {
		// Status goes to stderr so stdout carries device output only.
		dev, err := newScanner(cfg, newPrinter(status), logger.Default()).Detect(ctx)
		if err != nil {
			return fmt.Errorf("detect: %w", err)
		}
		port = dev.Port
	}

	baud := cfg.Serial.MonitorBaud
	if opts.Baud > 0 {
		baud = opts.Baud
	}

	m := serial.NewMonitor(openPort)
	if err := m.Connect(port, baud); err != nil {
		return fmt.Errorf("open %s: %w", port, err)
	}
	defer m.Disconnect()

	log.Info("monitor connected", "port", port, "baud", baud)
	_, _ = fmt.Fprintf(status, "Monitoring %s at %d baud (Ctrl+C to stop)\n", port, baud)

	return pump(ctx.Done(), m, out, status)
}

// pump copies monitor data to out until done closes or the read loop stops.
func pump(done <-chan struct{}, m *serial.Monitor, out, status io.Writer) error {
	stopped := m.Stopped()
	for {
		select {
		case <-done:
			return nil
		case data := <-m.DataChan():
			if _, err := io.WriteString(out, data); err != nil {
				return err
			}
		case <-stopped:
			// Flush what the read loop queued before it exited.
			for {
				select {
				case data := <-m.DataChan():
					if _, err := io.WriteString(out, data); err != nil {
						return err
					}
				default:
					_, _ = fmt.Fprintf(status, "\nDisconnected from %s\n", m.PortName())
					return nil
				}
			}
		}
	}
}
