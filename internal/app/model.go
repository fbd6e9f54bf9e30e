// Package app is the interactive front-end: it detects a board on start-up
// and flashes it on request, rendering the reporter event stream.
package app

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/railflash/internal/flash"
	"github.com/buckleypaul/railflash/internal/report"
	"github.com/buckleypaul/railflash/internal/serial"
	"github.com/buckleypaul/railflash/internal/ui"
)

// Detector finds the board to flash.
type Detector interface {
	Detect(ctx context.Context) (serial.Device, error)
}

// Flasher runs one flash session to completion.
type Flasher interface {
	Flash(ctx context.Context, dev serial.Device) (flash.Outcome, error)
}

// EventMsg carries one reporter event into the update loop.
type EventMsg struct {
	Event report.Event
}

// DetectedMsg is the result of a detection pass.
type DetectedMsg struct {
	Device serial.Device
	Err    error
}

// FlashedMsg is the result of a flash session.
type FlashedMsg struct {
	Outcome flash.Outcome
	Err     error
}

type eventsClosedMsg struct{}

type Model struct {
	ctx      context.Context
	detector Detector
	flasher  Flasher
	events   <-chan report.Event

	device    *serial.Device
	detecting bool
	flashing  bool
	outcome   *flash.Outcome

	status   string
	severity report.Severity
	detail   string
	percent  int
	label    string

	progress progress.Model
	spinner  spinner.Model
	help     help.Model
	keys     KeyMap
	showHelp bool

	width  int
	height int
}

// New builds the model. events must be the receive side of the reporter
// that detector and flasher publish to.
func New(ctx context.Context, detector Detector, flasher Flasher, events <-chan report.Event) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.AccentStyle

	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())

	m := Model{
		ctx:       ctx,
		detector:  detector,
		flasher:   flasher,
		events:    events,
		detecting: true,
		status:    "Starting...",
		progress:  bar,
		spinner:   sp,
		help:      help.New(),
		keys:      GlobalKeys,
	}
	m.syncKeys()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.events),
		m.detect(),
		m.spinner.Tick,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = contentWidth(m.width)
		m.help.Width = m.width
		return m, nil

	case EventMsg:
		m.apply(msg.Event)
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, nil

	case DetectedMsg:
		m.detecting = false
		if msg.Err == nil {
			dev := msg.Device
			m.device = &dev
		} else {
			m.device = nil
		}
		m.syncKeys()
		return m, nil

	case FlashedMsg:
		m.flashing = false
		if errors.Is(msg.Err, flash.ErrSessionActive) {
			m.status = "A flash is already in progress"
			m.severity = report.SeverityWarning
		} else {
			out := msg.Outcome
			m.outcome = &out
		}
		m.syncKeys()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// ctrl+c always exits, even mid-flash.
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.flashing {
			return m, nil
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Flash):
		if !m.CanFlash() {
			return m, nil
		}
		m.flashing = true
		m.outcome = nil
		m.percent = 0
		m.label = ""
		m.syncKeys()
		return m, m.flash(*m.device)

	case key.Matches(msg, m.keys.Rescan):
		if m.detecting || m.flashing {
			return m, nil
		}
		m.detecting = true
		m.device = nil
		m.syncKeys()
		return m, m.detect()
	}
	return m, nil
}

// CanFlash reports whether the flash action is available: a device is
// known and nothing else is running.
func (m Model) CanFlash() bool {
	return m.device != nil && !m.detecting && !m.flashing
}

// Device returns the detected device, if any.
func (m Model) Device() (serial.Device, bool) {
	if m.device == nil {
		return serial.Device{}, false
	}
	return *m.device, true
}

// Outcome returns the result of the last finished flash, if any.
func (m Model) Outcome() (flash.Outcome, bool) {
	if m.outcome == nil {
		return flash.Outcome{}, false
	}
	return *m.outcome, true
}

func (m *Model) apply(ev report.Event) {
	switch ev.Kind {
	case report.KindStatus:
		m.status = ev.Text
		m.severity = ev.Severity
	case report.KindProgress:
		m.percent = ev.Percent
		m.label = ev.Label
	case report.KindDetail:
		m.detail = ev.Text
	}
}

func (m *Model) syncKeys() {
	m.keys.Flash.SetEnabled(m.CanFlash())
	m.keys.Rescan.SetEnabled(!m.detecting && !m.flashing)
}

func (m Model) detect() tea.Cmd {
	ctx, d := m.ctx, m.detector
	return func() tea.Msg {
		dev, err := d.Detect(ctx)
		return DetectedMsg{Device: dev, Err: err}
	}
}

func (m Model) flash(dev serial.Device) tea.Cmd {
	ctx, f := m.ctx, m.flasher
	return func() tea.Msg {
		out, err := f.Flash(ctx, dev)
		return FlashedMsg{Outcome: out, Err: err}
	}
}

func waitForEvent(ch <-chan report.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	width := contentWidth(m.width)
	header := renderHeader(m.device, m.detecting, m.width)
	body := renderBody(m, width)
	statusBar := renderStatusBar(m.help, m.keys, m.width)

	return renderLayout(header, body, statusBar)
}
