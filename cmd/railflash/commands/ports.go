package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/buckleypaul/railflash/internal/serial"
)

// PortsOptions holds options for the ports command
type PortsOptions struct {
	Format string
}

// listPorts is replaced in tests.
var listPorts = serial.ListPorts

// newPortsCmd creates the ports subcommand
func newPortsCmd() *cobra.Command {
	opts := &PortsOptions{}

	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Long: `List the serial ports the operating system reports, with USB
vendor/product IDs and serial numbers where available. Ports are listed
in the order detection would probe them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPorts(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table",
		"output format: table, json")

	return cmd
}

func runPorts(cmd *cobra.Command, opts *PortsOptions) error {
	out := cmd.OutOrStdout()

	ports, err := listPorts()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}

	switch strings.ToLower(opts.Format) {
	case "json":
		if ports == nil {
			ports = []serial.PortInfo{}
		}
		data, err := json.MarshalIndent(ports, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal ports: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(data))
		return nil
	case "table", "":
	default:
		return fmt.Errorf("unknown format %q", opts.Format)
	}

	if len(ports) == 0 {
		_, _ = fmt.Fprintln(out, "No serial ports found")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PORT", "USB", "VID:PID", "SERIAL", "PRODUCT")
	for _, p := range ports {
		usb, ids := "no", ""
		if p.IsUSB {
			usb = "yes"
			ids = p.VID + ":" + p.PID
		}
		t.Row(p.Name, usb, ids, p.SerialNumber, p.Product)
	}
	_, _ = fmt.Fprintln(out, t.String())
	return nil
}
