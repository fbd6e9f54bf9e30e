package flash

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Stream identifies which pipe a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Line is one non-empty line of tool output.
type Line struct {
	Stream Stream
	Text   string
}

// Runner spawns the flashing tool and blocks until it exits. onLine may be
// called concurrently from the stdout and stderr readers; every call has
// returned before Run does.
//
// Run takes no context: once started the tool always runs to exit.
type Runner interface {
	Run(name string, args []string, onLine func(Line)) (exitCode int, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Dir string
	// Env replaces the process environment when non-nil.
	Env []string
}

const maxLineSize = 1 << 20

// Run starts the command, drains both pipes, then waits for exit. A nonzero
// exit is reported through exitCode with a nil error.
func (r ExecRunner) Run(name string, args []string, onLine func(Line)) (int, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = r.Dir
	if r.Env != nil {
		cmd.Env = r.Env
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, err
	}

	if err := cmd.Start(); err != nil {
		return -1, err
	}

	var g errgroup.Group
	g.Go(func() error { return scanLines(stdout, Stdout, onLine) })
	g.Go(func() error { return scanLines(stderr, Stderr, onLine) })
	readErr := g.Wait()

	// Wait only after both pipes hit EOF.
	err = cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	if readErr != nil {
		return 0, fmt.Errorf("read %s output: %w", name, readErr)
	}
	return 0, nil
}

// scanLines feeds non-empty lines to onLine. On a scan error the rest of the
// pipe is discarded so the child never blocks on a full pipe.
func scanLines(r io.Reader, stream Stream, onLine func(Line)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(splitLines)
	for scanner.Scan() {
		text := strings.TrimRight(scanner.Text(), " \t")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if onLine != nil {
			onLine(Line{Stream: stream, Text: text})
		}
	}
	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

// splitLines is bufio.ScanLines that also ends a line at a bare '\r', which
// esptool uses for in-place progress when it thinks it has a terminal.
func splitLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance := i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
