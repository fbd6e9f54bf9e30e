package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/buckleypaul/railflash/internal/logger"
	"github.com/buckleypaul/railflash/internal/report"
)

// ErrNotFound is returned by Detect when no port accepts a connection.
var ErrNotFound = errors.New("no device found")

// Device is the result of a successful probe.
type Device struct {
	Port      string
	ProbeBaud int
}

// Lister enumerates candidate port names.
type Lister func() ([]string, error)

// Opener opens a port at a baud rate.
type Opener func(name string, baud int) (io.ReadWriteCloser, error)

const (
	defaultProbeBaud = 115200
	defaultHold      = 100 * time.Millisecond
)

// Scanner finds the first serial port that opens.
type Scanner struct {
	list     Lister
	open     Opener
	baud     int
	hold     time.Duration
	startup  time.Duration
	pinned   string
	reporter report.Reporter
	log      *logger.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

func WithLister(l Lister) ScannerOption { return func(s *Scanner) { s.list = l } }
func WithOpener(o Opener) ScannerOption { return func(s *Scanner) { s.open = o } }

// WithProbeBaud sets the baud rate used for the open/close probe.
func WithProbeBaud(baud int) ScannerOption {
	return func(s *Scanner) {
		if baud > 0 {
			s.baud = baud
		}
	}
}

// WithHold sets how long a probed port is held open before closing.
func WithHold(d time.Duration) ScannerOption { return func(s *Scanner) { s.hold = d } }

// WithStartupDelay delays the first scan.
func WithStartupDelay(d time.Duration) ScannerOption { return func(s *Scanner) { s.startup = d } }

// WithPinnedPort restricts the scan to one port.
func WithPinnedPort(name string) ScannerOption { return func(s *Scanner) { s.pinned = name } }

func WithReporter(r report.Reporter) ScannerOption {
	return func(s *Scanner) {
		if r != nil {
			s.reporter = r
		}
	}
}

func WithLogger(l *logger.Logger) ScannerOption {
	return func(s *Scanner) {
		if l != nil {
			s.log = l
		}
	}
}

// NewScanner creates a Scanner that probes real serial ports unless
// overridden.
func NewScanner(opts ...ScannerOption) *Scanner {
	s := &Scanner{
		list:     ListPortNames,
		open:     OpenPort,
		baud:     defaultProbeBaud,
		hold:     defaultHold,
		reporter: report.Nop{},
		log:      logger.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Component("scanner")
	return s
}

// Detect probes candidate ports in order and returns the first that opens.
// Scanning stops at the first success so no other board is touched. The
// port is closed again before Detect returns.
func (s *Scanner) Detect(ctx context.Context) (Device, error) {
	if err := sleep(ctx, s.startup); err != nil {
		return Device{}, err
	}

	s.reporter.Status("Scanning for device...", report.SeverityInfo)

	for _, port := range s.candidates() {
		if err := ctx.Err(); err != nil {
			return Device{}, err
		}

		ok, err := s.probe(ctx, port)
		if err != nil {
			return Device{}, err
		}
		if !ok {
			continue
		}

		dev := Device{Port: port, ProbeBaud: s.baud}
		s.log.Info("device detected", "port", port, "baud", s.baud)
		s.reporter.Status(fmt.Sprintf("Device detected on %s", port), report.SeveritySuccess)
		s.reporter.Detail(fmt.Sprintf("Port: %s\nBaud Rate: %d\nReady to flash", port, s.baud))
		return dev, nil
	}

	s.log.Warn("no device found")
	s.reporter.Status("No device found - connect device and restart", report.SeverityError)
	s.reporter.Detail("Please connect your board via USB\nand restart the application.")
	return Device{}, ErrNotFound
}

func (s *Scanner) candidates() []string {
	if s.pinned != "" {
		return []string{s.pinned}
	}
	ports, err := s.list()
	if err != nil {
		s.log.Warn("port enumeration failed", "err", err)
		return nil
	}
	return ports
}

// probe reports whether port opened. Only context cancellation is an error;
// open failures just mean "not this one".
func (s *Scanner) probe(ctx context.Context, port string) (bool, error) {
	conn, err := s.open(port, s.baud)
	if err != nil {
		s.log.Debug("probe failed", "port", port, "err", err)
		return false, nil
	}

	holdErr := sleep(ctx, s.hold)
	if err := conn.Close(); err != nil {
		s.log.Debug("probe close failed", "port", port, "err", err)
	}
	if holdErr != nil {
		return false, holdErr
	}
	return true, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
