package service

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *ProcessManager {
	t.Helper()
	tmpDir := t.TempDir()
	pm := NewProcessManager(filepath.Join(tmpDir, "pids"), filepath.Join(tmpDir, "logs"))
	pm.StartGrace = 200 * time.Millisecond
	return pm
}

func TestNewProcessManager(t *testing.T) {
	pidDir := "/test/pids"
	logDir := "/test/logs"

	pm := NewProcessManager(pidDir, logDir)

	if pm.PidDir != pidDir {
		t.Errorf("PidDir = %q, want %q", pm.PidDir, pidDir)
	}
	if pm.LogDir != logDir {
		t.Errorf("LogDir = %q, want %q", pm.LogDir, logDir)
	}
	if pm.StartGrace != time.Second {
		t.Errorf("StartGrace = %v, want 1s", pm.StartGrace)
	}
}

func TestProcessManager_Start_Success(t *testing.T) {
	pm := newTestManager(t)
	name := "test-process"

	rec, err := pm.Start(name, exec.Command("sleep", "10"), "test.log")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer pm.Stop(name, time.Second)

	if rec.PID <= 0 {
		t.Fatalf("Start() returned invalid PID = %d", rec.PID)
	}
	if rec.PGID != rec.PID {
		t.Errorf("PGID = %d, want %d (own process group)", rec.PGID, rec.PID)
	}
	if rec.Name != name || rec.Command != "sleep 10" {
		t.Errorf("record = %+v", rec)
	}

	content, err := os.ReadFile(pm.PidFile(name))
	if err != nil {
		t.Fatalf("PID file not created: %v", err)
	}
	pidFromFile, _ := strconv.Atoi(strings.TrimSpace(string(content)))
	if pidFromFile != rec.PID {
		t.Errorf("PID in file = %d, want %d", pidFromFile, rec.PID)
	}

	if _, err := os.Stat(filepath.Join(pm.LogDir, "test.log")); err != nil {
		t.Errorf("Log file not created: %v", err)
	}
}

func TestProcessManager_Start_ExitedEarly(t *testing.T) {
	pm := newTestManager(t)

	_, err := pm.Start("quick", exec.Command("sh", "-c", "echo failing; exit 3"), "quick.log")
	if !errors.Is(err, ErrExitedEarly) {
		t.Fatalf("Start() error = %v, want ErrExitedEarly", err)
	}

	if _, err := os.Stat(pm.PidFile("quick")); !os.IsNotExist(err) {
		t.Error("PID file should be removed when the process dies during startup")
	}

	data, _ := os.ReadFile(filepath.Join(pm.LogDir, "quick.log"))
	if !strings.Contains(string(data), "failing") {
		t.Errorf("log = %q, want child output", data)
	}
}

func TestProcessManager_Start_NoGrace(t *testing.T) {
	pm := newTestManager(t)
	pm.StartGrace = 0

	rec, err := pm.Start("quick", exec.Command("true"), "quick.log")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if rec.PID <= 0 {
		t.Errorf("PID = %d", rec.PID)
	}
}

func TestProcessManager_Start_MissingBinary(t *testing.T) {
	pm := newTestManager(t)

	if _, err := pm.Start("ghost", exec.Command("/nonexistent/binary"), "ghost.log"); err == nil {
		t.Fatal("Start() should fail for a missing binary")
	}
	if _, err := os.Stat(pm.PidFile("ghost")); !os.IsNotExist(err) {
		t.Error("PID file should not exist")
	}
}

func TestProcessManager_Stop_ByPID(t *testing.T) {
	pm := newTestManager(t)
	name := "sleep-process"

	rec, err := pm.Start(name, exec.Command("sleep", "10"), "sleep.log")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	signaled, err := pm.Stop(name, 2*time.Second)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if signaled != rec.PID {
		t.Errorf("Stop() = %d, want %d", signaled, rec.PID)
	}

	if _, err := os.Stat(pm.PidFile(name)); !os.IsNotExist(err) {
		t.Error("PID file not removed after stop")
	}
	if pm.IsRunning(name) {
		t.Error("Process still running after stop")
	}
}

func TestProcessManager_Stop_KillsProcessGroup(t *testing.T) {
	pm := newTestManager(t)
	childFile := filepath.Join(t.TempDir(), "child.pid")

	// the shell forks a grandchild; stopping the group must take both down
	script := "sleep 30 & echo $! > " + childFile + "; wait"
	if _, err := pm.Start("group", exec.Command("sh", "-c", script), "group.log"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var childPID int
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(childFile)
		if err == nil {
			if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
				childPID = pid
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	if childPID == 0 {
		t.Fatal("grandchild never reported its PID")
	}

	if _, err := pm.Stop("group", 2*time.Second); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	deadline = time.Now().Add(2 * time.Second)
	for !exitedOrZombie(childPID) {
		if time.Now().After(deadline) {
			t.Fatalf("grandchild %d survived group stop", childPID)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// exitedOrZombie treats an unreaped orphan as gone; it is reaped by init,
// which may not happen promptly inside containers.
func exitedOrZombie(pid int) bool {
	if !IsProcessRunning(pid) {
		return true
	}
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	stat := string(data)
	if i := strings.LastIndex(stat, ")"); i >= 0 && len(stat) > i+2 {
		return stat[i+2] == 'Z'
	}
	return false
}

func TestProcessManager_Stop_AlreadyStopped(t *testing.T) {
	pm := newTestManager(t)

	signaled, err := pm.Stop("nonexistent", time.Second)
	if err != nil {
		t.Errorf("Stop() should not error for non-existent process, got: %v", err)
	}
	if signaled != 0 {
		t.Errorf("Stop() = %d, want 0", signaled)
	}
}

func TestProcessManager_Status_Running(t *testing.T) {
	pm := newTestManager(t)
	name := "status-test"

	rec, err := pm.Start(name, exec.Command("sleep", "5"), "status.log")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer pm.Stop(name, time.Second)

	pid, err := pm.Status(name)
	if err != nil {
		t.Errorf("Status() error = %v", err)
	}
	if pid != rec.PID {
		t.Errorf("Status() = %d, want %d", pid, rec.PID)
	}
}

func TestProcessManager_Status_NotRunning(t *testing.T) {
	pm := newTestManager(t)

	pid, err := pm.Status("never-started")
	if err != nil {
		t.Errorf("Status() error = %v", err)
	}
	if pid != 0 {
		t.Errorf("Status() = %d, want 0 (not running)", pid)
	}
}

func TestProcessManager_Status_RemovesStalePidFile(t *testing.T) {
	pm := newTestManager(t)
	if err := os.MkdirAll(pm.PidDir, 0755); err != nil {
		t.Fatal(err)
	}

	// reap a short-lived process so its PID is known dead
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatal(err)
	}
	if err := writePidFile(pm.PidFile("stale"), cmd.Process.Pid); err != nil {
		t.Fatal(err)
	}

	pid, err := pm.Status("stale")
	if err != nil || pid != 0 {
		t.Fatalf("Status() = %d, %v; want 0, nil", pid, err)
	}
	if _, err := os.Stat(pm.PidFile("stale")); !os.IsNotExist(err) {
		t.Error("stale PID file should be removed")
	}
}

func TestProcessManager_ReadPID_Invalid(t *testing.T) {
	pm := newTestManager(t)
	if err := os.MkdirAll(pm.PidDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pm.PidFile("junk"), []byte("not-a-pid\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := pm.ReadPID("junk"); err == nil {
		t.Error("ReadPID() should fail on a non-numeric PID file")
	}
}

func TestProcessManager_IsRunning(t *testing.T) {
	pm := newTestManager(t)
	name := "running-test"

	if _, err := pm.Start(name, exec.Command("sleep", "5"), "running.log"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !pm.IsRunning(name) {
		t.Error("IsRunning() = false, want true")
	}

	pm.Stop(name, time.Second)
	if pm.IsRunning(name) {
		t.Error("IsRunning() = true after stop, want false")
	}
}

func TestVerify(t *testing.T) {
	pm := newTestManager(t)
	rec, err := pm.Start("verify", exec.Command("sleep", "5"), "verify.log")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer pm.Stop("verify", time.Second)

	if err := Verify(rec.PID, rec); err != nil {
		t.Errorf("Verify() with matching record = %v", err)
	}
	if err := Verify(rec.PID, nil); err != nil {
		t.Errorf("Verify() without record = %v", err)
	}

	reused := *rec
	reused.PGID = rec.PGID + 100000
	if err := Verify(rec.PID, &reused); !errors.Is(err, ErrPIDReused) {
		t.Errorf("Verify() with foreign group = %v, want ErrPIDReused", err)
	}
}

func TestVerify_GroupLeaderWithOtherStartTime(t *testing.T) {
	// a group leader holding the recorded PID but started long before the record
	cmd := newGroupSleeper(t)
	pid := cmd.Process.Pid

	rec := &ProcessRecord{Name: "suggestion", PID: pid, PGID: pid, StartedAt: time.Now().Add(-24 * time.Hour)}
	if err := Verify(pid, rec); !errors.Is(err, ErrPIDReused) {
		t.Errorf("Verify() with old start time = %v, want ErrPIDReused", err)
	}

	rec.StartedAt = time.Now()
	if err := Verify(pid, rec); err != nil {
		t.Errorf("Verify() with current start time = %v", err)
	}

	rec.StartedAt = time.Time{}
	if err := Verify(pid, rec); err != nil {
		t.Errorf("Verify() without start time = %v", err)
	}
}

func TestVerify_UnreadableStartTime(t *testing.T) {
	cmd := newGroupSleeper(t)
	pid := cmd.Process.Pid

	orig := processStartTime
	processStartTime = func(int) (time.Time, error) { return time.Time{}, os.ErrNotExist }
	t.Cleanup(func() { processStartTime = orig })

	rec := &ProcessRecord{Name: "suggestion", PID: pid, PGID: pid, StartedAt: time.Now().Add(-time.Hour)}
	if err := Verify(pid, rec); err != nil {
		t.Errorf("Verify() falls back to the group check, got %v", err)
	}
}

func TestProcessStartTime(t *testing.T) {
	before := time.Now()
	cmd := newSleeper(t)

	started, err := processStartTime(cmd.Process.Pid)
	if err != nil {
		t.Fatalf("processStartTime() error = %v", err)
	}
	if gap := started.Sub(before); gap > StartTimeTolerance || gap < -StartTimeTolerance {
		t.Errorf("processStartTime() = %v, launched at %v", started, before)
	}
}

func TestParseLstart(t *testing.T) {
	got, err := parseLstart("Wed Oct  1 09:03:07 2025\n")
	if err != nil {
		t.Fatalf("parseLstart() error = %v", err)
	}
	want := time.Date(2025, time.October, 1, 9, 3, 7, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("parseLstart() = %v, want %v", got, want)
	}

	if _, err := parseLstart("yesterday"); err == nil {
		t.Error("parseLstart() should reject garbage")
	}
}

func TestProcessManager_Start_PidFileFailureStopsChild(t *testing.T) {
	pm := newTestManager(t)
	// a directory where the PID file belongs makes the write fail
	if err := os.MkdirAll(pm.PidFile("blocked"), 0755); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command("sleep", "30")
	if _, err := pm.Start("blocked", cmd, "blocked.log"); err == nil {
		t.Fatal("Start() should fail when the PID file cannot be written")
	}
	if cmd.Process == nil {
		t.Fatal("child was never started")
	}
	if IsProcessRunning(cmd.Process.Pid) {
		t.Errorf("child %d left running without a PID file", cmd.Process.Pid)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !IsProcessRunning(os.Getpid()) {
		t.Error("current process should be running")
	}
	if IsProcessRunning(0) || IsProcessRunning(-1) {
		t.Error("non-positive PIDs are never running")
	}
}

// newSleeper starts a process in the test's own process group.
func newSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

// newGroupSleeper starts a process that leads its own process group.
func newGroupSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "30")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}
