// Package subprocess runs external helper binaries with cancellation that
// interrupts the child first and kills it only if it does not exit in time.
package subprocess

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultGracePeriod is how long a child gets to exit after an interrupt.
const DefaultGracePeriod = 500 * time.Millisecond

// ErrNotStarted marks errors where the process could not be launched at all,
// for example because the binary is missing.
var ErrNotStarted = errors.New("process not started")

// Run starts cmd and waits for it to exit.
// If ctx ends first the child receives an interrupt, then a kill after
// grace. The returned error wraps ctx.Err() in that case.
func Run(ctx context.Context, cmd *exec.Cmd, grace time.Duration) error {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotStarted, cmd.Path, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		log.Debug("subprocess finished",
			"command", cmd.Path,
			"duration", time.Since(startTime),
			"err", err)
		return err

	case <-ctx.Done():
		log.Warn("subprocess canceled",
			"command", cmd.Path,
			"after", time.Since(startTime),
			"reason", ctx.Err())
		shutdown(cmd.Process, done, grace)
		return fmt.Errorf("%s: %w", cmd.Path, ctx.Err())
	}
}

// shutdown interrupts p and kills it if it has not exited after grace.
func shutdown(p *os.Process, done <-chan error, grace time.Duration) {
	if err := p.Signal(os.Interrupt); err != nil {
		// Interrupt is unsupported on some platforms.
		_ = p.Kill()
		<-done
		return
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		log.Debug("subprocess ignored interrupt, killing", "pid", p.Pid)
		_ = p.Kill()
		<-done
	}
}
