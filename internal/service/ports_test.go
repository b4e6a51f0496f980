package service

import (
	"context"
	"errors"
	"net"
	"os/exec"
	"reflect"
	"strconv"
	"testing"
	"time"
)

const lsofOutput = `COMMAND   PID USER   FD   TYPE DEVICE SIZE/OFF NODE NAME
python3 51234 dev    3u  IPv4 0x1234      0t0  TCP *:8000 (LISTEN)
python3 51234 dev    4u  IPv6 0x5678      0t0  TCP *:8000 (LISTEN)
node    60001 dev   21u  IPv4 0x9abc      0t0  TCP 127.0.0.1:8000 (LISTEN)
`

func stubCommands(t *testing.T, lookErr error, output func(name string, args ...string) ([]byte, error)) {
	t.Helper()
	origLook, origOut := lookPath, commandOutput
	t.Cleanup(func() {
		lookPath, commandOutput = origLook, origOut
	})

	lookPath = func(file string) (string, error) {
		if lookErr != nil {
			return "", lookErr
		}
		return "/usr/bin/" + file, nil
	}
	commandOutput = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return output(name, args...)
	}
}

func TestParseLsof(t *testing.T) {
	got := parseLsof(lsofOutput)
	want := []Listener{
		{PID: 51234, Command: "python3"},
		{PID: 60001, Command: "node"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseLsof() = %+v, want %+v", got, want)
	}

	if got := parseLsof(""); len(got) != 0 {
		t.Errorf("parseLsof(\"\") = %+v, want empty", got)
	}
	if got := parseLsof("COMMAND PID\ngarbage\nx notapid\n"); len(got) != 0 {
		t.Errorf("parseLsof(garbage) = %+v, want empty", got)
	}
}

func TestFindListeners(t *testing.T) {
	var gotArgs []string
	stubCommands(t, nil, func(name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte(lsofOutput), nil
	})

	listeners, err := FindListeners(context.Background(), 8000)
	if err != nil {
		t.Fatalf("FindListeners() error = %v", err)
	}
	if len(listeners) != 2 {
		t.Fatalf("FindListeners() = %+v", listeners)
	}
	want := []string{"lsof", "-nP", "-iTCP:8000", "-sTCP:LISTEN"}
	if !reflect.DeepEqual(gotArgs, want) {
		t.Errorf("lsof args = %v, want %v", gotArgs, want)
	}
}

func TestFindListeners_NoMatches(t *testing.T) {
	stubCommands(t, nil, func(name string, args ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	})

	listeners, err := FindListeners(context.Background(), 8001)
	if err != nil || len(listeners) != 0 {
		t.Errorf("FindListeners() = %+v, %v; want none, nil", listeners, err)
	}
}

func TestFindListeners_LsofMissing(t *testing.T) {
	stubCommands(t, exec.ErrNotFound, func(name string, args ...string) ([]byte, error) {
		t.Fatal("lsof must not be invoked when missing")
		return nil, nil
	})

	if _, err := FindListeners(context.Background(), 8002); !errors.Is(err, ErrLsofMissing) {
		t.Errorf("FindListeners() error = %v, want ErrLsofMissing", err)
	}
	if _, err := KillListeners(context.Background(), 8002, nil, time.Second); !errors.Is(err, ErrLsofMissing) {
		t.Errorf("KillListeners() error = %v, want ErrLsofMissing", err)
	}
}

func TestMatchAny(t *testing.T) {
	match := MatchAny("/srv/suggestion", "uvicorn", "")

	tests := []struct {
		cmdLine string
		want    bool
	}{
		{"/srv/suggestion/venv/bin/python -m uvicorn app:app --port 8000", true},
		{"python -m uvicorn main:app", true},
		{"/srv/suggestion/venv/bin/python worker.py", true},
		{"node server.js", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := match(tt.cmdLine); got != tt.want {
			t.Errorf("match(%q) = %v, want %v", tt.cmdLine, got, tt.want)
		}
	}
}

func TestKillListeners_SkipsForeignProcess(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()
	pid := cmd.Process.Pid

	stubCommands(t, nil, func(name string, args ...string) ([]byte, error) {
		switch name {
		case "lsof":
			return []byte("COMMAND PID USER\nsleep " + strconv.Itoa(pid) + " dev\n"), nil
		case "ps":
			return []byte("sleep 30\n"), nil
		}
		return nil, errors.New("unexpected command " + name)
	})

	killed, err := KillListeners(context.Background(), 8000, MatchAny("uvicorn"), time.Second)
	if err != nil {
		t.Fatalf("KillListeners() error = %v", err)
	}
	if len(killed) != 0 {
		t.Errorf("killed = %v, want none", killed)
	}
	if !IsProcessRunning(pid) {
		t.Error("foreign listener was killed")
	}
}

func TestKillListeners_KillsMatching(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	pid := cmd.Process.Pid
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	stubCommands(t, nil, func(name string, args ...string) ([]byte, error) {
		switch name {
		case "lsof":
			return []byte("COMMAND PID USER\nsleep " + strconv.Itoa(pid) + " dev\n"), nil
		case "ps":
			return []byte("sleep 30\n"), nil
		}
		return nil, errors.New("unexpected command " + name)
	})

	killed, err := KillListeners(context.Background(), 8000, MatchAny("sleep"), 2*time.Second)
	if err != nil {
		t.Fatalf("KillListeners() error = %v", err)
	}
	if !reflect.DeepEqual(killed, []int{pid}) {
		t.Errorf("killed = %v, want [%d]", killed, pid)
	}

	select {
	case <-exited:
	case <-time.After(3 * time.Second):
		t.Error("listener still running")
	}
}

func TestPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	if !PortInUse("0.0.0.0", port) {
		t.Error("PortInUse() = false with an open listener")
	}

	ln.Close()
	if PortInUse("127.0.0.1", port) {
		t.Error("PortInUse() = true after the listener closed")
	}
}

func TestDialHost(t *testing.T) {
	for host, want := range map[string]string{
		"":          "127.0.0.1",
		"0.0.0.0":   "127.0.0.1",
		"::":        "127.0.0.1",
		"localhost": "localhost",
		"10.0.0.5":  "10.0.0.5",
	} {
		if got := DialHost(host); got != want {
			t.Errorf("DialHost(%q) = %q, want %q", host, got, want)
		}
	}
}
