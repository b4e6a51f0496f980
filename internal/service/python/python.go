// Package python prepares and launches ASGI services: virtual environment
// creation, dependency installation, entry-module detection and the uvicorn
// runner command line.
package python

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/danieljhkim/service-harness/internal/util"
)

var (
	// ErrInterpreterMissing means the configured python was not found on PATH.
	ErrInterpreterMissing = errors.New("python interpreter not found")
	// ErrInstallFailed means dependency installation exited non-zero.
	ErrInstallFailed = errors.New("dependency installation failed")
	// ErrNoEntryModule means neither app.py nor main.py exists.
	ErrNoEntryModule = errors.New("no entry module (app.py or main.py)")
)

// Candidate entry modules, in order of preference.
var entryModules = []string{"app", "main"}

// AppObject is the ASGI application attribute loaded from the entry module.
const AppObject = "app"

// Runner executes a prepared command. Tests substitute a fake so no
// interpreter or package index is touched.
type Runner interface {
	Run(ctx context.Context, dir string, out io.Writer, name string, args ...string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, dir string, out io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out
	return cmd.Run()
}

// Launcher prepares virtual environments for services.
type Launcher struct {
	Python string // interpreter used to create venvs
	Runner Runner
}

// NewLauncher returns a launcher using the given interpreter.
func NewLauncher(python string) *Launcher {
	if python == "" {
		python = "python3"
	}
	return &Launcher{Python: python, Runner: ExecRunner{}}
}

// CheckInterpreter verifies the configured interpreter can be found.
func (l *Launcher) CheckInterpreter() (string, error) {
	path, err := exec.LookPath(l.Python)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInterpreterMissing, l.Python)
	}
	return path, nil
}

// VenvPython returns the interpreter inside a virtual environment.
func VenvPython(venvDir string) string {
	return filepath.Join(venvDir, "bin", "python")
}

// VenvBin returns the executables directory of a virtual environment.
func VenvBin(venvDir string) string {
	return filepath.Join(venvDir, "bin")
}

// EnsureVenv creates venvDir unless it already holds an interpreter.
// Reports whether a new environment was created.
func (l *Launcher) EnsureVenv(ctx context.Context, venvDir string, out io.Writer) (bool, error) {
	if util.FileExists(VenvPython(venvDir)) {
		return false, nil
	}

	if _, err := l.CheckInterpreter(); err != nil {
		return false, err
	}

	util.Log("Creating virtual environment %s", venvDir)
	if err := l.Runner.Run(ctx, filepath.Dir(venvDir), out, l.Python, "-m", "venv", venvDir); err != nil {
		return false, fmt.Errorf("failed to create virtual environment %s: %w", venvDir, err)
	}
	return true, nil
}

// InstallRequirements installs the pinned dependencies into venvDir.
func (l *Launcher) InstallRequirements(ctx context.Context, venvDir, requirements string, out io.Writer) error {
	if !util.IsRegularFile(requirements) {
		return fmt.Errorf("%w: requirements file not found: %s", ErrInstallFailed, requirements)
	}

	util.Log("Installing dependencies from %s", requirements)
	dir := filepath.Dir(requirements)
	if err := l.Runner.Run(ctx, dir, out, VenvPython(venvDir), "-m", "pip", "install", "--disable-pip-version-check", "-r", requirements); err != nil {
		return fmt.Errorf("%w (%s): %v", ErrInstallFailed, requirements, err)
	}
	return nil
}

// DetectModule picks the entry module of a service directory: app when
// app.py exists, otherwise main when main.py exists.
func DetectModule(dir string) (string, error) {
	for _, mod := range entryModules {
		if util.IsRegularFile(filepath.Join(dir, mod+".py")) {
			return mod, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoEntryModule, dir)
}

// ResolveModule returns explicit when set (it must exist as <explicit>.py or
// a package directory), otherwise the detected module.
func ResolveModule(dir, explicit string) (string, error) {
	if explicit == "" {
		return DetectModule(dir)
	}
	if util.IsRegularFile(filepath.Join(dir, explicit+".py")) ||
		util.IsRegularFile(filepath.Join(dir, explicit, "__init__.py")) {
		return explicit, nil
	}
	return "", fmt.Errorf("%w: configured module %q not found in %s", ErrNoEntryModule, explicit, dir)
}

// RunnerArgs returns argv for serving module:app with uvicorn from venvDir.
func RunnerArgs(venvDir, module, host string, port int) []string {
	return []string{
		VenvPython(venvDir),
		"-m", "uvicorn",
		module + ":" + AppObject,
		"--host", host,
		"--port", strconv.Itoa(port),
	}
}

// EntryDiagnostics renders the directory listing shown when no entry module
// is found.
func EntryDiagnostics(dir string) string {
	listing, err := util.ListDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("directory %s does not exist", dir)
		}
		return fmt.Sprintf("cannot list %s: %v", dir, err)
	}
	if listing == "" {
		return fmt.Sprintf("contents of %s: (empty)", dir)
	}
	return fmt.Sprintf("contents of %s:\n%s", dir, listing)
}
