package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/railflash/internal/serial"
	"github.com/buckleypaul/railflash/internal/ui"
)

const (
	horizontalPadding = 4 // ContentStyle padding, both sides
	minContentWidth   = 20
	maxContentWidth   = 80
)

func contentWidth(total int) int {
	w := total - horizontalPadding
	if w > maxContentWidth {
		w = maxContentWidth
	}
	if w < minContentWidth {
		w = minContentWidth
	}
	return w
}

func renderHeader(dev *serial.Device, detecting bool, width int) string {
	var badge string
	switch {
	case detecting:
		badge = ui.Badge("SCANNING", ui.Warning)
	case dev != nil:
		badge = ui.SuccessBadge(dev.Port)
	default:
		badge = ui.ErrorBadge("NO DEVICE")
	}
	content := ui.BoldStyle.Render("railflash") + "  " + badge
	return ui.StatusBarStyle.Width(width).Render(content)
}

func renderBody(m Model, width int) string {
	var b strings.Builder

	b.WriteString(ui.Title("ESP32 Firmware Flasher"))
	b.WriteString("\n")

	status := ui.StatusLine(m.status, m.severity)
	if m.detecting || m.flashing {
		status = m.spinner.View() + " " + status
	}
	b.WriteString(status)
	b.WriteString("\n\n")

	b.WriteString(m.progress.ViewAs(float64(m.percent) / 100))
	b.WriteString("\n")
	label := fmt.Sprintf("%3d%%", m.percent)
	if m.label != "" {
		label += "  " + m.label
	}
	b.WriteString(ui.DimStyle.Render(label))
	b.WriteString("\n\n")

	detail := m.detail
	if detail == "" {
		detail = ui.DimStyle.Render("No details yet.")
	}
	b.WriteString(ui.Panel("Details", ui.Wrap(detail, width-4), width, 0, m.flashing))

	return ui.ContentStyle.Render(b.String())
}

func renderStatusBar(h help.Model, keys KeyMap, width int) string {
	if h.ShowAll {
		return ui.StatusBarStyle.Width(width).Render(h.View(keys))
	}

	var parts []string
	for _, kb := range keys.ShortHelp() {
		if kb.Enabled() {
			parts = append(parts, ui.StatusKey(kb.Help().Key, kb.Help().Desc))
		}
	}
	return ui.StatusBarStyle.Width(width).Render(strings.Join(parts, "  "))
}

func renderLayout(header, body, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, body, statusBar)
}
