package subprocess

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"testing"
	"time"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRun_Success(t *testing.T) {
	skipWithoutShell(t)

	cmd := exec.Command("sh", "-c", "exit 0")
	if err := Run(context.Background(), cmd, 0); err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
}

func TestRun_ExitStatus(t *testing.T) {
	skipWithoutShell(t)

	err := Run(context.Background(), exec.Command("sh", "-c", "exit 3"), 0)
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Expected ExitError, got %v", err)
	}
	if exitErr.ExitCode() != 3 {
		t.Errorf("Expected exit code 3, got %d", exitErr.ExitCode())
	}
}

func TestRun_MissingBinary(t *testing.T) {
	err := Run(context.Background(), exec.Command("speakstream-no-such-binary"), 0)
	if !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Expected ErrNotStarted, got %v", err)
	}
}

func TestRun_Timeout(t *testing.T) {
	skipWithoutShell(t)

	tests := []struct {
		name   string
		script string
	}{
		{"interruptible", "sleep 5"},
		{"ignores interrupt", "trap '' INT; sleep 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			start := time.Now()
			err := Run(ctx, exec.Command("sh", "-c", tt.script), 100*time.Millisecond)
			elapsed := time.Since(start)

			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("Expected deadline error, got %v", err)
			}
			if elapsed > 2*time.Second {
				t.Errorf("Expected prompt return, took %v", elapsed)
			}
		})
	}
}
