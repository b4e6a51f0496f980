package service

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/danieljhkim/service-harness/internal/util"
)

// Listener is a process accepting TCP connections on a port.
type Listener struct {
	PID     int
	Command string // short command name as reported by lsof
}

// Hooks for tests; production uses the real lsof/ps.
var (
	lookPath      = exec.LookPath
	commandOutput = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).Output()
	}
)

// FindListeners lists processes listening on port using lsof.
func FindListeners(ctx context.Context, port int) ([]Listener, error) {
	if _, err := lookPath("lsof"); err != nil {
		return nil, ErrLsofMissing
	}

	output, err := commandOutput(ctx, "lsof", "-nP", fmt.Sprintf("-iTCP:%d", port), "-sTCP:LISTEN")
	if err != nil {
		// lsof exits non-zero when nothing matches
		return nil, nil
	}

	return parseLsof(string(output)), nil
}

func parseLsof(output string) []Listener {
	seen := make(map[int]bool)
	listeners := make([]Listener, 0)

	for i, line := range strings.Split(output, "\n") {
		// header
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil || seen[pid] {
			continue
		}
		seen[pid] = true
		listeners = append(listeners, Listener{PID: pid, Command: fields[0]})
	}

	return listeners
}

// CommandLine returns the full command line of pid via ps.
func CommandLine(ctx context.Context, pid int) (string, error) {
	output, err := commandOutput(ctx, "ps", "-p", strconv.Itoa(pid), "-o", "command=")
	if err != nil {
		return "", fmt.Errorf("could not inspect pid %d: %w", pid, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// CommandMatcher decides whether a listener's command line belongs to a service.
type CommandMatcher func(cmdLine string) bool

// MatchAny returns a matcher accepting command lines containing any pattern.
func MatchAny(patterns ...string) CommandMatcher {
	return func(cmdLine string) bool {
		for _, p := range patterns {
			if p != "" && strings.Contains(cmdLine, p) {
				return true
			}
		}
		return false
	}
}

// KillListeners terminates processes listening on port. With a non-nil
// match only listeners whose command line matches are killed; others are
// reported and left alone. Returns the PIDs that were terminated.
func KillListeners(ctx context.Context, port int, match CommandMatcher, timeout time.Duration) ([]int, error) {
	listeners, err := FindListeners(ctx, port)
	if err != nil {
		return nil, err
	}

	killed := make([]int, 0, len(listeners))
	for _, l := range listeners {
		if !IsProcessRunning(l.PID) {
			continue
		}

		if match != nil {
			cmdLine, err := CommandLine(ctx, l.PID)
			if err != nil {
				util.Warn("Could not inspect pid %d; skipping.", l.PID)
				continue
			}
			if !match(cmdLine) {
				util.Warn("pid %d is listening on %d but doesn't look like this service; not killing.", l.PID, port)
				util.Warn("      cmd: %s", cmdLine)
				continue
			}
		}

		util.Log("Killing listener on port %d (pid %d, %s)", port, l.PID, l.Command)
		if err := Terminate(l.PID, timeout); err != nil {
			util.Warn("Failed to kill process %d: %v", l.PID, err)
			continue
		}
		killed = append(killed, l.PID)
	}

	return killed, nil
}

// PortInUse reports whether something accepts TCP connections on host:port.
// Wildcard hosts are probed on loopback.
func PortInUse(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(DialHost(host), strconv.Itoa(port)), 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// DialHost maps a bind address to one a client can connect to.
func DialHost(host string) string {
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		return "127.0.0.1"
	}
	return host
}
