package process

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"nydus-hq/nydus/pkg/config"
)

// TestHelperEngine is not a real test. It is re-executed as a fake
// engine process by the tests below, selected via NYDUS_HELPER_MODE.
func TestHelperEngine(t *testing.T) {
	mode := os.Getenv("NYDUS_HELPER_MODE")
	if mode == "" {
		return
	}

	switch mode {
	case "listen":
		port := helperPortArg()
		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			os.Exit(2)
		}
		defer ln.Close()
		for {
			conn, err := ln.Accept()
			if err != nil {
				os.Exit(0)
			}
			conn.Close()
		}
	case "crash":
		os.Exit(3)
	case "sleep":
		time.Sleep(time.Hour)
	}
}

func helperPortArg() int {
	for i, arg := range os.Args {
		if arg == "--port" && i+1 < len(os.Args) {
			port, _ := strconv.Atoi(os.Args[i+1])
			return port
		}
	}
	return 0
}

func helperSupervisor(t *testing.T, mode string, readyTimeout time.Duration) *Supervisor {
	t.Helper()
	t.Setenv("NYDUS_HELPER_MODE", mode)
	return NewSupervisor(config.ProcessConfig{
		BinaryPath:   os.Args[0],
		ExtraArgs:    []string{"-test.run=TestHelperEngine", "--"},
		ReadyTimeout: readyTimeout,
		GracePeriod:  2 * time.Second,
	})
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestSpawn_ReadyAndTerminate(t *testing.T) {
	sv := helperSupervisor(t, "listen", 10*time.Second)
	port := freePort(t)

	h, err := sv.Spawn(context.Background(), LaunchSpec{MapName: "TestMap"}, port)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if err := h.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady failed: %v", err)
	}
	if h.State() != StateReady {
		t.Errorf("Expected ready state, got %v", h.State())
	}

	if err := h.Terminate(context.Background()); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}

	select {
	case <-h.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("Process did not exit after Terminate")
	}
	if h.State() != StateExited {
		t.Errorf("Expected exited state, got %v", h.State())
	}
}

func TestSpawn_MissingBinary(t *testing.T) {
	sv := NewSupervisor(config.ProcessConfig{
		BinaryPath:   "/nonexistent/engine-binary",
		ReadyTimeout: time.Second,
		GracePeriod:  time.Second,
	})

	_, err := sv.Spawn(context.Background(), LaunchSpec{}, freePort(t))
	if err == nil {
		t.Fatal("Expected spawn failure for missing binary")
	}
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Errorf("Expected *SpawnError, got %T: %v", err, err)
	}
}

func TestWaitReady_CrashBeforeReady(t *testing.T) {
	sv := helperSupervisor(t, "crash", 10*time.Second)

	h, err := sv.Spawn(context.Background(), LaunchSpec{}, freePort(t))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	err = h.WaitReady(context.Background())
	if !errors.Is(err, ErrProcessCrashed) {
		t.Errorf("Expected ErrProcessCrashed, got %v", err)
	}

	<-h.Exited()
	if h.Status().Code != 3 {
		t.Errorf("Expected exit code 3, got %d", h.Status().Code)
	}
}

func TestWaitReady_Timeout(t *testing.T) {
	sv := helperSupervisor(t, "sleep", 500*time.Millisecond)

	h, err := sv.Spawn(context.Background(), LaunchSpec{}, freePort(t))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	err = h.WaitReady(context.Background())
	if !errors.Is(err, ErrProcessUnready) {
		t.Errorf("Expected ErrProcessUnready, got %v", err)
	}

	// Timeout must have triggered termination.
	select {
	case <-h.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("Process not terminated after readiness timeout")
	}
}

func TestBuildArgs(t *testing.T) {
	sv := NewSupervisor(config.ProcessConfig{
		BinaryPath: "/opt/engine",
		ExtraArgs:  []string{"--wrapper"},
	})

	args := sv.buildArgs(LaunchSpec{MapName: "AbyssalReef", Realtime: true}, 8123)

	want := fmt.Sprint([]string{
		"--wrapper",
		"--listen", "127.0.0.1",
		"--port", "8123",
		"--headless",
		"--map", "AbyssalReef",
		"--realtime",
	})
	if fmt.Sprint(args) != want {
		t.Errorf("buildArgs mismatch:\n got %v\nwant %v", args, want)
	}
}
