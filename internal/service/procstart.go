package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// userHZ is the tick rate of /proc/<pid>/stat times, fixed at 100 on Linux.
const userHZ = 100

// StartTimeTolerance bounds the gap between a process's kernel start time and
// the StartedAt the harness recorded right after launching it.
const StartTimeTolerance = 5 * time.Second

// processStartTime reports when pid started. Tests replace it.
var processStartTime = func(pid int) (time.Time, error) {
	if t, err := procStartTime(pid); err == nil {
		return t, nil
	}
	return psStartTime(pid)
}

// procStartTime reads field 22 of /proc/<pid>/stat and anchors it to btime.
func procStartTime(pid int) (time.Time, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return time.Time{}, err
	}
	// comm may contain spaces and parens; fields resume after the last ')'
	stat := string(data)
	end := strings.LastIndexByte(stat, ')')
	if end < 0 {
		return time.Time{}, fmt.Errorf("malformed /proc/%d/stat", pid)
	}
	fields := strings.Fields(stat[end+1:])
	// fields[0] is field 3 (state)
	if len(fields) < 20 {
		return time.Time{}, fmt.Errorf("malformed /proc/%d/stat", pid)
	}
	ticks, err := strconv.ParseInt(fields[19], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start time in /proc/%d/stat: %w", pid, err)
	}

	boot, err := bootTime()
	if err != nil {
		return time.Time{}, err
	}
	return boot.Add(time.Duration(ticks) * time.Second / userHZ), nil
}

func bootTime() (time.Time, error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return time.Time{}, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "btime" {
			sec, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				return time.Time{}, fmt.Errorf("invalid btime: %w", err)
			}
			return time.Unix(sec, 0), nil
		}
	}
	return time.Time{}, fmt.Errorf("btime not found in /proc/stat")
}

// psStartTime covers systems without procfs (macOS).
func psStartTime(pid int) (time.Time, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := commandOutput(ctx, "ps", "-o", "lstart=", "-p", strconv.Itoa(pid))
	if err != nil {
		return time.Time{}, fmt.Errorf("ps failed for %d: %w", pid, err)
	}
	return parseLstart(string(out))
}

// parseLstart parses ps lstart output such as "Wed Oct 15 09:03:07 2026".
func parseLstart(s string) (time.Time, error) {
	normalized := strings.Join(strings.Fields(s), " ")
	t, err := time.ParseInLocation("Mon Jan 2 15:04:05 2006", normalized, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid lstart %q: %w", normalized, err)
	}
	return t, nil
}
