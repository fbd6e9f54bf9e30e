package flash

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Toolchain is a located flashing tool, plus the interpreter that runs it
// when the tool is a Python script.
type Toolchain struct {
	Interpreter string
	Tool        string
}

// Command returns the executable to spawn and the leading arguments.
func (t Toolchain) Command() (string, []string) {
	if t.Interpreter != "" {
		return t.Interpreter, []string{t.Tool}
	}
	return t.Tool, nil
}

// LookPathFunc resolves an executable name on PATH.
type LookPathFunc func(file string) (string, error)

// DefaultToolPath returns the PlatformIO install location of esptool.py.
func DefaultToolPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".platformio", "packages", "tool-esptoolpy", "esptool.py"), nil
}

// interpreterName returns the Python executable name for the current OS.
func interpreterName() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// LocateToolchain checks that tool exists and, for .py tools, that an
// interpreter is resolvable. An empty tool means DefaultToolPath and an
// empty interpreter means the OS default.
func LocateToolchain(tool, interpreter string, lookPath LookPathFunc) (Toolchain, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	if tool == "" {
		p, err := DefaultToolPath()
		if err != nil {
			return Toolchain{}, &MissingToolchainError{Path: "esptool.py", Err: err}
		}
		tool = p
	}
	if !isFile(tool) {
		return Toolchain{}, &MissingToolchainError{Path: tool}
	}

	if !strings.EqualFold(filepath.Ext(tool), ".py") {
		return Toolchain{Tool: tool}, nil
	}

	if interpreter == "" {
		interpreter = interpreterName()
	}
	resolved, err := lookPath(interpreter)
	if err != nil {
		return Toolchain{}, &MissingToolchainError{Path: interpreter, Err: err}
	}
	return Toolchain{Interpreter: resolved, Tool: tool}, nil
}
