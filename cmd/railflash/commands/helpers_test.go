package commands

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/buckleypaul/railflash/internal/flash"
	"github.com/buckleypaul/railflash/internal/serial"
)

// isolate points HOME and the working directory at temp dirs so no real
// config file is read, and restores the test hooks afterwards.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	work := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(work); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	oldScanner, oldFlash := scannerHooks, flashHooks
	oldList, oldOpen := listPorts, openPort
	t.Cleanup(func() {
		scannerHooks, flashHooks = oldScanner, oldFlash
		listPorts, openPort = oldList, oldOpen
		*GlobalOptions = RootOptions{}
	})
	return work
}

type nopPort struct{}

func (nopPort) Read([]byte) (int, error)    { return 0, io.EOF }
func (nopPort) Write(p []byte) (int, error) { return len(p), nil }
func (nopPort) Close() error                { return nil }

// fakeBus makes the scanner see ports and treats every port in busy as
// unopenable.
func fakeBus(ports []string, busy ...string) {
	scannerHooks = []serial.ScannerOption{
		serial.WithLister(func() ([]string, error) { return ports, nil }),
		serial.WithOpener(func(name string, _ int) (io.ReadWriteCloser, error) {
			for _, b := range busy {
				if b == name {
					return nil, errors.New("access denied")
				}
			}
			return nopPort{}, nil
		}),
		serial.WithStartupDelay(0),
		serial.WithHold(0),
	}
}

type scriptedRunner struct {
	mu    sync.Mutex
	lines []string
	code  int
	args  [][]string
}

func (r *scriptedRunner) Run(_ string, args []string, onLine func(flash.Line)) (int, error) {
	r.mu.Lock()
	r.args = append(r.args, args)
	r.mu.Unlock()
	for _, l := range r.lines {
		onLine(flash.Line{Stream: flash.Stdout, Text: l})
	}
	return r.code, nil
}

// firmwareDir writes a complete artifact set and a tool binary, returning
// both paths.
func firmwareDir(t *testing.T) (dir, tool string) {
	t.Helper()
	root := t.TempDir()
	dir = filepath.Join(root, "build")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{flash.BootloaderFile, flash.PartitionsFile, flash.ApplicationFile} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte{0xe9}, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	tool = filepath.Join(root, "esptool")
	if err := os.WriteFile(tool, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir, tool
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
