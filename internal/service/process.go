package service

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ProcessManager handles PID files, detached process start/stop and status.
type ProcessManager struct {
	PidDir     string        // Directory for PID files
	LogDir     string        // Directory for log files
	StartGrace time.Duration // How long a new process must stay alive; 0 skips the check
}

// NewProcessManager creates a new process manager
func NewProcessManager(pidDir, logDir string) *ProcessManager {
	return &ProcessManager{
		PidDir:     pidDir,
		LogDir:     logDir,
		StartGrace: time.Second,
	}
}

// ProcessRecord identifies a process started by the harness. PGID and
// StartedAt let a later stop tell the original process apart from an
// unrelated one that inherited the same PID.
type ProcessRecord struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	PGID      int       `json:"pgid"`
	Port      int       `json:"port,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Command   string    `json:"command"`
	LogFile   string    `json:"log_file"`
}

// PidFile returns the PID file path for name.
func (pm *ProcessManager) PidFile(name string) string {
	return filepath.Join(pm.PidDir, name+".pid")
}

// Start launches cmd detached in its own process group with stdout and
// stderr appended to logFile, then records its PID.
func (pm *ProcessManager) Start(name string, cmd *exec.Cmd, logFile string) (*ProcessRecord, error) {
	if err := os.MkdirAll(pm.PidDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create PID directory: %w", err)
	}
	if err := os.MkdirAll(pm.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(pm.LogDir, logFile)
	logf, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	cmd.Stdout = logf
	cmd.Stderr = logf
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true

	if err := cmd.Start(); err != nil {
		logf.Close()
		return nil, fmt.Errorf("failed to start process: %w", err)
	}
	// child has its own descriptor
	logf.Close()

	pid := cmd.Process.Pid
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	if err := writePidFile(pm.PidFile(name), pid); err != nil {
		// no PID file means no way to stop it later
		if termErr := Terminate(pid, 2*time.Second); termErr != nil {
			return nil, errors.Join(err, termErr)
		}
		<-exited
		return nil, err
	}

	rec := &ProcessRecord{
		Name:      name,
		PID:       pid,
		PGID:      pid,
		StartedAt: time.Now().UTC(),
		Command:   strings.Join(cmd.Args, " "),
		LogFile:   logPath,
	}

	if pm.StartGrace > 0 {
		select {
		case <-exited:
			_ = os.Remove(pm.PidFile(name))
			return nil, fmt.Errorf("%w: %s (check logs: %s)", ErrExitedEarly, name, logPath)
		case <-time.After(pm.StartGrace):
		}
	}

	return rec, nil
}

// ReadPID returns the PID recorded for name, or 0 when there is no PID file.
func (pm *ProcessManager) ReadPID(name string) (int, error) {
	data, err := os.ReadFile(pm.PidFile(name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in file %s: %q", pm.PidFile(name), strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Status returns the PID if the process is running, 0 otherwise.
// A stale PID file is removed.
func (pm *ProcessManager) Status(name string) (int, error) {
	pid, err := pm.ReadPID(name)
	if err != nil || pid == 0 {
		return 0, err
	}

	if IsProcessRunning(pid) {
		return pid, nil
	}

	_ = pm.RemovePID(name)
	return 0, nil
}

// IsRunning checks if a named process is currently running
func (pm *ProcessManager) IsRunning(name string) bool {
	pid, _ := pm.Status(name)
	return pid != 0
}

// Stop terminates the process recorded for name and removes its PID file.
// The process group receives SIGTERM, then SIGKILL once timeout elapses.
// Returns the PID that was signaled (0 if nothing was running).
func (pm *ProcessManager) Stop(name string, timeout time.Duration) (int, error) {
	pid, err := pm.ReadPID(name)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		return 0, nil
	}

	signaled := 0
	if IsProcessRunning(pid) {
		if err := Terminate(pid, timeout); err != nil {
			return pid, err
		}
		signaled = pid
	}

	if err := pm.RemovePID(name); err != nil {
		return signaled, err
	}
	return signaled, nil
}

// RemovePID deletes the PID file; a missing file is not an error.
func (pm *ProcessManager) RemovePID(name string) error {
	if err := os.Remove(pm.PidFile(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// Verify checks that pid still belongs to rec. The process group must match,
// and when the start time of pid can be read it must lie within
// StartTimeTolerance of rec.StartedAt. A recycled PID that happens to lead its
// own group fails the second check.
func Verify(pid int, rec *ProcessRecord) error {
	if rec == nil || rec.PID != pid || rec.PGID == 0 {
		return nil
	}
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("failed to read process group of %d: %w", pid, err)
	}
	if pgid != rec.PGID {
		return fmt.Errorf("%w: pid %d is in group %d, expected %d", ErrPIDReused, pid, pgid, rec.PGID)
	}

	if rec.StartedAt.IsZero() {
		return nil
	}
	started, err := processStartTime(pid)
	if err != nil {
		return nil
	}
	if gap := rec.StartedAt.Sub(started); gap > StartTimeTolerance || gap < -StartTimeTolerance {
		return fmt.Errorf("%w: pid %d started at %s, expected %s",
			ErrPIDReused, pid, started.UTC().Format(time.RFC3339), rec.StartedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// Terminate sends SIGTERM to pid (its whole group when pid leads one),
// waits up to timeout, then escalates to SIGKILL.
func Terminate(pid int, timeout time.Duration) error {
	target := pid
	if pgid, err := unix.Getpgid(pid); err == nil && pgid == pid {
		target = -pid
	}

	if err := unix.Kill(target, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("failed to send SIGTERM to %d: %w", pid, err)
	}

	if waitForExit(pid, timeout) {
		return nil
	}

	if err := unix.Kill(target, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("failed to send SIGKILL to %d: %w", pid, err)
	}
	waitForExit(pid, 2*time.Second)
	return nil
}

func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !IsProcessRunning(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// IsProcessRunning checks liveness with signal 0. EPERM means the process
// exists but belongs to someone else.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}

func writePidFile(path string, pid int) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}
