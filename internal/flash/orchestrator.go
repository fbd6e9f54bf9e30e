package flash

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/buckleypaul/railflash/internal/logger"
	"github.com/buckleypaul/railflash/internal/report"
	"github.com/buckleypaul/railflash/internal/serial"
)

// Options configure an Orchestrator.
type Options struct {
	// ArtifactsDir holds the .bin images. Relative paths are anchored at
	// the executable's directory.
	ArtifactsDir string
	// ToolPath overrides the esptool location.
	ToolPath string
	// Interpreter overrides the Python executable for .py tools.
	Interpreter string
	Command     CommandParams
	Progress    Estimator
	// TailLines is how many output lines a failure carries.
	TailLines int
	// Settle is the pause between a terminal state and Idle.
	Settle time.Duration
}

// DefaultOptions mirrors the config package defaults.
func DefaultOptions() Options {
	return Options{
		ArtifactsDir: "../esp32-controller/.pio/build/esp32dev",
		Command:      DefaultCommandParams(),
		Progress:     DefaultEstimator(),
		TailLines:    3,
		Settle:       3 * time.Second,
	}
}

// Orchestrator runs flash sessions, one at a time.
type Orchestrator struct {
	opts     Options
	runner   Runner
	reporter report.Reporter
	log      *logger.Logger
	lookPath LookPathFunc
	baseDir  func() (string, error)

	mu      sync.Mutex
	session Session

	// lineMu serialises output callbacks so progress is emitted in order.
	lineMu    sync.Mutex
	linePanic any
}

// Option customises an Orchestrator's collaborators.
type Option func(*Orchestrator)

func WithRunner(r Runner) Option { return func(o *Orchestrator) { o.runner = r } }

func WithReporter(r report.Reporter) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.reporter = r
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithLookPath replaces exec.LookPath for interpreter resolution.
func WithLookPath(f LookPathFunc) Option { return func(o *Orchestrator) { o.lookPath = f } }

// WithBaseDir replaces the executable directory used to anchor a relative
// ArtifactsDir.
func WithBaseDir(f func() (string, error)) Option { return func(o *Orchestrator) { o.baseDir = f } }

// New creates an idle Orchestrator.
func New(opts Options, options ...Option) *Orchestrator {
	if opts.TailLines < 1 {
		opts.TailLines = 1
	}
	if opts.Progress.Ceiling >= 100 {
		opts.Progress.Ceiling = 99
	}
	if err := opts.Progress.Validate(); err != nil {
		opts.Progress = DefaultEstimator()
	}
	o := &Orchestrator{
		opts:     opts,
		runner:   ExecRunner{},
		reporter: report.Nop{},
		log:      logger.Default(),
		baseDir:  ExecutableDir,
	}
	for _, opt := range options {
		opt(o)
	}
	o.log = o.log.Component("flash")
	o.reporter = report.Recovering(o.reporter, o.log)
	return o
}

// Snapshot returns the current session.
func (o *Orchestrator) Snapshot() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// State returns the current session state.
func (o *Orchestrator) State() State {
	return o.Snapshot().State
}

// Flash writes firmware to dev and returns once the session has settled
// back to Idle. If a session is already active it returns ErrSessionActive
// immediately and touches nothing. All other failures are reported in the
// Outcome.
func (o *Orchestrator) Flash(ctx context.Context, dev serial.Device) (Outcome, error) {
	id, ok := o.begin()
	if !ok {
		return Outcome{}, ErrSessionActive
	}

	defer o.settle(ctx)

	log := o.log.With("session", id, "port", dev.Port)
	log.Info("flash session started")

	outcome := o.run(ctx, log, dev)
	outcome.SessionID = id

	if outcome.Err != nil {
		log.Error("flash session failed", "state", outcome.State, "err", outcome.Err)
	} else {
		log.Info("flash session succeeded")
	}
	return outcome, nil
}

// begin moves Idle -> Preparing, or reports false if not idle.
func (o *Orchestrator) begin() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.State != StateIdle {
		return "", false
	}
	o.session = Session{ID: newSessionID(), State: StatePreparing}
	return o.session.ID, true
}

// run drives one session to a terminal state. Panics are converted.
func (o *Orchestrator) run(ctx context.Context, log *logger.Logger, dev serial.Device) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = o.fail(&UnexpectedError{Message: fmt.Sprint(r)})
		}
	}()

	if err := o.execute(ctx, log, dev); err != nil {
		return o.fail(classify(err))
	}
	return o.succeed()
}

func (o *Orchestrator) execute(ctx context.Context, log *logger.Logger, dev serial.Device) error {
	// Preparing
	o.reporter.Progress(0, "Preparing firmware")
	o.reporter.Status("Preparing firmware...", report.SeverityInfo)
	o.setPercent(5, "Preparing firmware")

	dir, err := o.artifactsDir()
	if err != nil {
		return err
	}
	set, err := ResolveArtifacts(dir)
	if err != nil {
		return err
	}
	log.Debug("artifacts resolved",
		"application", set.Application,
		"bootloader", set.Bootloader.String(),
		"partitions", set.Partitions.String())
	o.setPercent(10, "Preparing firmware")

	if err := ctx.Err(); err != nil {
		return err
	}

	// ToolchainCheck
	o.setState(StateToolchainCheck)
	o.reporter.Status("Connecting to device...", report.SeverityInfo)
	o.detail(fmt.Sprintf("Port: %s\nErasing flash...", dev.Port))

	tc, err := LocateToolchain(o.opts.ToolPath, o.opts.Interpreter, o.lookPath)
	if err != nil {
		return err
	}
	o.setPercent(20, "Checking toolchain")

	if err := ctx.Err(); err != nil {
		return err
	}

	// Launching
	o.setState(StateLaunching)
	name, args := BuildCommand(tc, dev.Port, o.opts.Command, set)
	log.Info("launching flashing tool", "cmd", name, "args", strings.Join(args, " "))
	o.setPercent(30, "Launching esptool")
	o.reporter.Status("Flashing firmware...", report.SeverityInfo)

	// Streaming
	o.setState(StateStreaming)
	output := &outputLog{marker: o.opts.Progress.Marker}
	o.lineMu.Lock()
	o.linePanic = nil
	o.lineMu.Unlock()
	code, err := o.runner.Run(name, args, func(l Line) {
		o.onLine(log, output, l)
	})
	if err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}

	o.lineMu.Lock()
	panicked, tail := o.linePanic, output.tail(o.opts.TailLines)
	o.lineMu.Unlock()
	if panicked != nil {
		return &UnexpectedError{Message: fmt.Sprintf("output handler: %v", panicked)}
	}
	if code != 0 {
		if len(tail) == 0 {
			tail = []string{fmt.Sprintf("exit status %d", code)}
		}
		return &ExitError{Code: code, Tail: tail}
	}
	return nil
}

func (o *Orchestrator) onLine(log *logger.Logger, output *outputLog, l Line) {
	o.lineMu.Lock()
	defer o.lineMu.Unlock()
	defer func() {
		// Reader goroutines are outside run's recover.
		if r := recover(); r != nil && o.linePanic == nil {
			o.linePanic = r
		}
	}()

	log.Debug("tool output", "stream", l.Stream.String(), "line", l.Text)
	if output.add(l.Text) {
		o.setPercent(o.opts.Progress.Percent(output.writes), "Writing firmware")
	}
}

// succeed emits the success messages, then commits the terminal state
// together with 100 so the two are never observed apart.
func (o *Orchestrator) succeed() Outcome {
	o.reporter.Status("Firmware flashed successfully!", report.SeveritySuccess)
	o.detail("Device is rebooting...\nDevice ready for use.")
	o.mu.Lock()
	o.session.State = StateSucceeded
	o.session.Percent = 100
	o.mu.Unlock()
	o.reporter.Progress(100, "Complete")
	return Outcome{State: StateSucceeded}
}

func (o *Orchestrator) fail(err error) Outcome {
	o.setState(StateFailed)

	switch e := err.(type) {
	case *MissingArtifactError:
		o.reporter.Status("Error: Firmware file not found", report.SeverityError)
		o.detail(fmt.Sprintf("Please build the firmware first.\nExpected: %s", e.Path))
	case *MissingToolchainError:
		o.reporter.Status("Error: esptool not found", report.SeverityError)
		o.detail(fmt.Sprintf("Please ensure PlatformIO is installed.\nExpected: %s", e.Path))
	case *ExitError:
		o.reporter.Status("Flashing failed", report.SeverityError)
		o.detail(fmt.Sprintf("Error code: %d\n%s", e.Code, strings.Join(e.Tail, "\n")))
	default:
		o.reporter.Status("Error during flash process", report.SeverityError)
		o.detail(fmt.Sprintf("Exception: %s", messageOf(err)))
	}
	return Outcome{State: StateFailed, Err: err}
}

func messageOf(err error) string {
	if u, ok := err.(*UnexpectedError); ok {
		return u.Message
	}
	return err.Error()
}

// settle holds a terminal state for the settle delay, then goes Idle. A
// session that never reached a terminal state goes Idle at once.
func (o *Orchestrator) settle(ctx context.Context) {
	if o.opts.Settle > 0 && o.State().Terminal() {
		t := time.NewTimer(o.opts.Settle)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
	o.setState(StateIdle)
}

func (o *Orchestrator) artifactsDir() (string, error) {
	dir := o.opts.ArtifactsDir
	if dir == "" {
		return "", fmt.Errorf("artifacts directory not configured")
	}
	base, err := o.baseDir()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return AnchorDir(dir, base), nil
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.session.State = s
	o.mu.Unlock()
}

// setPercent raises the session percent and reports it. Lower or equal
// values are ignored so the reported sequence never decreases.
func (o *Orchestrator) setPercent(p int, label string) {
	o.mu.Lock()
	if p <= o.session.Percent {
		o.mu.Unlock()
		return
	}
	o.session.Percent = p
	o.mu.Unlock()
	o.reporter.Progress(p, label)
}

func (o *Orchestrator) detail(text string) {
	o.mu.Lock()
	o.session.LastDetail = text
	o.mu.Unlock()
	o.reporter.Detail(text)
}
