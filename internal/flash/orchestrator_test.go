package flash

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buckleypaul/railflash/internal/logger"
	"github.com/buckleypaul/railflash/internal/report"
	"github.com/buckleypaul/railflash/internal/serial"
)

var testDevice = serial.Device{Port: "COM3", ProbeBaud: 115200}

type fixture struct {
	dir      string
	tool     string
	runner   *fakeRunner
	rec      *report.Recorder
	opts     Options
	extra    []Option
	artifact string
}

// newFixture lays out a full artifact set and a standalone tool binary.
func newFixture(t *testing.T, runner *fakeRunner) *fixture {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "build")
	writeFiles(t, dir, BootloaderFile, PartitionsFile, ApplicationFile)
	tool := filepath.Join(root, "esptool")
	writeFiles(t, root, "esptool")

	opts := DefaultOptions()
	opts.ArtifactsDir = dir
	opts.ToolPath = tool
	opts.Settle = 0

	return &fixture{dir: dir, tool: tool, runner: runner, rec: &report.Recorder{}, opts: opts}
}

func (f *fixture) orchestrator() *Orchestrator {
	options := append([]Option{
		WithRunner(f.runner),
		WithReporter(f.rec),
		WithLogger(logger.Discard()),
	}, f.extra...)
	return New(f.opts, options...)
}

func assertMonotonic(t *testing.T, percents []int) {
	t.Helper()
	require.NotEmpty(t, percents)
	assert.LessOrEqual(t, percents[0], 10, "first percent must be <= 10")
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1], "percent decreased at %d: %v", i, percents)
	}
}

func TestFlashSucceedsWithFiveWrites(t *testing.T) {
	runner := &fakeRunner{lines: append(stdout("esptool.py v4.5.1", "Connecting...."), writingLines(5)...)}
	f := newFixture(t, runner)
	o := f.orchestrator()

	out, err := o.Flash(context.Background(), testDevice)
	require.NoError(t, err)

	assert.True(t, out.Succeeded())
	assert.NoError(t, out.Err)
	assert.NotEmpty(t, out.SessionID)

	percents := f.rec.Percents()
	assertMonotonic(t, percents)
	assert.Equal(t, []int{0, 5, 10, 20, 30, 31, 33, 34, 36, 37, 100}, percents)

	snap := o.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, 100, snap.Percent)
	assert.Contains(t, snap.LastDetail, "rebooting")
	assert.Contains(t, f.rec.Statuses(), "Firmware flashed successfully!")

	calls := runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, f.tool, calls[0].name)
	assert.Equal(t, []string{
		"--chip", "esp32",
		"--port", "COM3",
		"--baud", "921600",
		"--before", "default_reset",
		"--after", "hard_reset",
		"write_flash", "-z",
		"--flash_mode", "dio",
		"--flash_freq", "40m",
		"--flash_size", "detect",
		"0x1000", filepath.Join(f.dir, BootloaderFile),
		"0x8000", filepath.Join(f.dir, PartitionsFile),
		"0x10000", filepath.Join(f.dir, ApplicationFile),
	}, calls[0].args)
}

func TestFlashMissingApplication(t *testing.T) {
	runner := &fakeRunner{}
	f := newFixture(t, runner)
	require.NoError(t, os.Remove(filepath.Join(f.dir, ApplicationFile)))

	out, err := f.orchestrator().Flash(context.Background(), testDevice)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.State)
	var missing *MissingArtifactError
	require.ErrorAs(t, out.Err, &missing)
	assert.Equal(t, filepath.Join(f.dir, ApplicationFile), missing.Path)

	assert.Empty(t, runner.calls(), "no process may be spawned")
	assert.NotContains(t, f.rec.Percents(), 100)
	assertMonotonic(t, f.rec.Percents())
	assert.Contains(t, f.rec.LastDetail(), "Please build the firmware first.")
}

func TestFlashMissingToolchain(t *testing.T) {
	t.Run("tool absent", func(t *testing.T) {
		runner := &fakeRunner{}
		f := newFixture(t, runner)
		f.opts.ToolPath = filepath.Join(t.TempDir(), "nope", "esptool.py")

		out, err := f.orchestrator().Flash(context.Background(), testDevice)
		require.NoError(t, err)

		var missing *MissingToolchainError
		require.ErrorAs(t, out.Err, &missing)
		assert.Equal(t, f.opts.ToolPath, missing.Path)
		assert.Empty(t, runner.calls())
		assert.NotContains(t, f.rec.Percents(), 100)
	})

	t.Run("interpreter absent", func(t *testing.T) {
		runner := &fakeRunner{}
		f := newFixture(t, runner)
		script := filepath.Join(t.TempDir(), "esptool.py")
		writeFiles(t, filepath.Dir(script), "esptool.py")
		f.opts.ToolPath = script
		f.opts.Interpreter = "python-does-not-exist"
		f.extra = append(f.extra, WithLookPath(func(string) (string, error) {
			return "", errors.New("executable file not found in $PATH")
		}))

		out, err := f.orchestrator().Flash(context.Background(), testDevice)
		require.NoError(t, err)

		var missing *MissingToolchainError
		require.ErrorAs(t, out.Err, &missing)
		assert.Equal(t, "python-does-not-exist", missing.Path)
		assert.Empty(t, runner.calls())
	})
}

func TestFlashRunsPythonToolThroughInterpreter(t *testing.T) {
	runner := &fakeRunner{}
	f := newFixture(t, runner)
	script := filepath.Join(t.TempDir(), "esptool.py")
	writeFiles(t, filepath.Dir(script), "esptool.py")
	f.opts.ToolPath = script
	f.extra = append(f.extra, WithLookPath(func(name string) (string, error) {
		return "/usr/bin/" + name, nil
	}))

	out, err := f.orchestrator().Flash(context.Background(), testDevice)
	require.NoError(t, err)
	require.True(t, out.Succeeded())

	calls := runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/usr/bin/"+interpreterName(), calls[0].name)
	assert.Equal(t, script, calls[0].args[0])
}

func TestFlashNonZeroExit(t *testing.T) {
	runner := &fakeRunner{
		lines: append(writingLines(2),
			Line{Stream: Stderr, Text: "A fatal error occurred: Packet content transfer stopped"},
			Line{Stream: Stdout, Text: "Hard resetting via RTS pin..."},
			Line{Stream: Stderr, Text: "Failed to write compressed data"},
		),
		code: 2,
	}
	f := newFixture(t, runner)

	out, err := f.orchestrator().Flash(context.Background(), testDevice)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.State)
	var exitErr *ExitError
	require.ErrorAs(t, out.Err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Equal(t, []string{
		"A fatal error occurred: Packet content transfer stopped",
		"Hard resetting via RTS pin...",
		"Failed to write compressed data",
	}, exitErr.Tail)

	percents := f.rec.Percents()
	assertMonotonic(t, percents)
	assert.NotContains(t, percents, 100)
	assert.Contains(t, f.rec.Statuses(), "Flashing failed")
	assert.Contains(t, f.rec.LastDetail(), "Error code: 2")
}

func TestFlashNonZeroExitWithoutOutput(t *testing.T) {
	f := newFixture(t, &fakeRunner{code: 1})

	out, _ := f.orchestrator().Flash(context.Background(), testDevice)

	var exitErr *ExitError
	require.ErrorAs(t, out.Err, &exitErr)
	assert.Equal(t, []string{"exit status 1"}, exitErr.Tail)
}

func TestFlashUnexpectedErrors(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
		want   string
	}{
		{name: "start failure", runner: &fakeRunner{err: errors.New("exec format error")}, want: "exec format error"},
		{name: "panic", runner: &fakeRunner{panic: "serial driver exploded"}, want: "serial driver exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.runner)
			o := f.orchestrator()

			out, err := o.Flash(context.Background(), testDevice)
			require.NoError(t, err)

			var unexpected *UnexpectedError
			require.ErrorAs(t, out.Err, &unexpected)
			assert.Contains(t, unexpected.Message, tt.want)
			assert.Equal(t, "Error during flash process", f.rec.Statuses()[len(f.rec.Statuses())-1])
			assert.Contains(t, f.rec.LastDetail(), "Exception: ")
			assert.Equal(t, StateIdle, o.State(), "orchestrator must recover to idle")
		})
	}
}

func TestFlashRejectsConcurrentSession(t *testing.T) {
	runner := &fakeRunner{
		lines:   writingLines(3),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newFixture(t, runner)
	o := f.orchestrator()

	done := make(chan Outcome, 1)
	go func() {
		out, _ := o.Flash(context.Background(), testDevice)
		done <- out
	}()

	<-runner.started
	before := o.Snapshot()
	eventsBefore := len(f.rec.Events())

	_, err := o.Flash(context.Background(), serial.Device{Port: "COM9"})
	require.ErrorIs(t, err, ErrSessionActive)

	assert.Equal(t, before, o.Snapshot(), "rejected call must not change the session")
	assert.Len(t, f.rec.Events(), eventsBefore)
	assert.Equal(t, StateStreaming, before.State)

	close(runner.release)
	select {
	case out := <-done:
		assert.True(t, out.Succeeded())
	case <-time.After(5 * time.Second):
		t.Fatal("first session never finished")
	}
	assert.Len(t, runner.calls(), 1)

	// Idle again: a new session is accepted.
	runner.started, runner.release = nil, nil
	out, err := o.Flash(context.Background(), testDevice)
	require.NoError(t, err)
	assert.True(t, out.Succeeded())
}

func TestFlashOmitsAbsentOptionalArtifacts(t *testing.T) {
	runner := &fakeRunner{}
	f := newFixture(t, runner)
	require.NoError(t, os.Remove(filepath.Join(f.dir, BootloaderFile)))
	require.NoError(t, os.Remove(filepath.Join(f.dir, PartitionsFile)))

	out, _ := f.orchestrator().Flash(context.Background(), testDevice)
	require.True(t, out.Succeeded())

	args := runner.calls()[0].args
	assert.NotContains(t, args, "0x1000")
	assert.NotContains(t, args, "0x8000")
	assert.Equal(t, []string{"0x10000", filepath.Join(f.dir, ApplicationFile)}, args[len(args)-2:])
}

func TestFlashProgressStaysBelowCeilingWhileRunning(t *testing.T) {
	runner := &fakeRunner{lines: writingLines(200)}
	f := newFixture(t, runner)

	out, _ := f.orchestrator().Flash(context.Background(), testDevice)
	require.True(t, out.Succeeded())

	percents := f.rec.Percents()
	assertMonotonic(t, percents)
	assert.Equal(t, 100, percents[len(percents)-1])
	assert.Equal(t, 95, percents[len(percents)-2])
}

func TestFlashCustomEstimator(t *testing.T) {
	runner := &fakeRunner{lines: stdout("[flash] block 1", "[flash] block 2", "noise")}
	f := newFixture(t, runner)
	f.opts.Progress = Estimator{Marker: "[flash]", Base: 40, Scale: 10, Ceiling: 150}

	out, _ := f.orchestrator().Flash(context.Background(), testDevice)
	require.True(t, out.Succeeded())
	assert.Equal(t, []int{0, 5, 10, 20, 30, 50, 60, 100}, f.rec.Percents())
}

func TestFlashAnchorsRelativeArtifactsDir(t *testing.T) {
	runner := &fakeRunner{}
	f := newFixture(t, runner)
	base := filepath.Join(filepath.Dir(f.dir), "bin")
	f.opts.ArtifactsDir = filepath.Join("..", "build")
	f.extra = append(f.extra, WithBaseDir(func() (string, error) { return base, nil }))

	out, _ := f.orchestrator().Flash(context.Background(), testDevice)
	require.True(t, out.Succeeded(), "err: %v", out.Err)

	args := runner.calls()[0].args
	assert.Equal(t, filepath.Join(f.dir, ApplicationFile), args[len(args)-1])
}

func TestFlashSettlesBeforeIdle(t *testing.T) {
	f := newFixture(t, &fakeRunner{})
	f.opts.Settle = 150 * time.Millisecond
	o := f.orchestrator()

	start := time.Now()
	out, err := o.Flash(context.Background(), testDevice)
	require.NoError(t, err)

	assert.True(t, out.Succeeded())
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, StateIdle, o.State())
}

func TestFlashCancelledBeforeLaunch(t *testing.T) {
	runner := &fakeRunner{}
	f := newFixture(t, runner)
	f.opts.Settle = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := f.orchestrator().Flash(ctx, testDevice)
	require.NoError(t, err)

	var unexpected *UnexpectedError
	require.ErrorAs(t, out.Err, &unexpected)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Empty(t, runner.calls())
}

func TestFlashEndToEndWithExecRunner(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	tests := []struct {
		name     string
		exitCode int
	}{
		{name: "success", exitCode: 0},
		{name: "failure", exitCode: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.opts.ToolPath = exe
			rec := f.rec
			o := New(f.opts,
				WithRunner(ExecRunner{Env: fakeEsptoolEnv(tt.exitCode)}),
				WithReporter(rec),
				WithLogger(logger.Discard()),
			)

			out, err := o.Flash(context.Background(), testDevice)
			require.NoError(t, err)

			percents := rec.Percents()
			assertMonotonic(t, percents)

			if tt.exitCode == 0 {
				require.True(t, out.Succeeded(), "err: %v", out.Err)
				assert.Equal(t, []int{0, 5, 10, 20, 30, 31, 33, 34, 36, 37, 100}, percents)
				return
			}

			var exitErr *ExitError
			require.ErrorAs(t, out.Err, &exitErr)
			assert.Equal(t, 3, exitErr.Code)
			assert.Len(t, exitErr.Tail, 3)
			assert.Contains(t, exitErr.Tail, "Hard resetting via RTS pin...")
			assert.NotContains(t, percents, 100)
		})
	}
}

// panickySink records progress and details but blows up on matching statuses.
type panickySink struct {
	report.Recorder
	on string
}

func (s *panickySink) Status(text string, sev report.Severity) {
	if s.on == "" || s.on == text {
		panic("display gone")
	}
	s.Recorder.Status(text, sev)
}

func TestFlashSurvivesPanickingReporter(t *testing.T) {
	tests := []struct {
		name string
		on   string
	}{
		{name: "success status", on: "Firmware flashed successfully!"},
		{name: "every status", on: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &fakeRunner{lines: writingLines(5)})
			sink := &panickySink{on: tt.on}
			o := New(f.opts,
				WithRunner(f.runner),
				WithReporter(sink),
				WithLogger(logger.Discard()),
			)

			var out Outcome
			var err error
			require.NotPanics(t, func() {
				out, err = o.Flash(context.Background(), testDevice)
			})
			require.NoError(t, err)
			assert.True(t, out.Succeeded(), "err: %v", out.Err)
			assert.Equal(t, []int{0, 5, 10, 20, 30, 31, 33, 34, 36, 37, 100}, sink.Percents())
			assert.Equal(t, StateIdle, o.State())
			assert.Equal(t, 100, o.Snapshot().Percent)

			_, err = o.Flash(context.Background(), testDevice)
			assert.NoError(t, err, "orchestrator must be reusable")
		})
	}
}

func TestFlashFallsBackFromInvalidEstimator(t *testing.T) {
	f := newFixture(t, &fakeRunner{lines: append(stdout("Connecting...."), writingLines(5)...)})
	f.opts.Progress = Estimator{Marker: "", Base: 30, Scale: 1.5, Ceiling: 95}

	out, _ := f.orchestrator().Flash(context.Background(), testDevice)
	require.True(t, out.Succeeded())
	assert.Equal(t, []int{0, 5, 10, 20, 30, 31, 33, 34, 36, 37, 100}, f.rec.Percents())
}

func TestSessionIDsAreOrdered(t *testing.T) {
	a, b := newSessionID(), newSessionID()
	require.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}
