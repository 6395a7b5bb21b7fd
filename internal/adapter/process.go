package adapter

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"mcphub/internal/hub"
	"mcphub/pkg/logging"
)

// CommandAdapter runs a managed server as a local child process in its own
// process group. Graceful stop sends SIGTERM to the group; Kill escalates
// to SIGKILL. The probe is a TCP dial against the configured port.
type CommandAdapter struct {
	cfg hub.ServerConfig

	mu   sync.Mutex
	cmd  *exec.Cmd
	pid  int
	done chan error // closed-over result of cmd.Wait
}

// NewCommandAdapter creates a process adapter for the configuration.
// The configuration must carry a non-empty command.
func NewCommandAdapter(cfg hub.ServerConfig) (*CommandAdapter, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("server %s: command adapter requires a command", cfg.ID)
	}
	return &CommandAdapter{cfg: cfg.Clone()}, nil
}

// NewCommandFactory is the Factory for the "command" server type.
func NewCommandFactory() Factory {
	return func(cfg hub.ServerConfig) (ServerAdapter, error) {
		return NewCommandAdapter(cfg)
	}
}

// Start launches the configured command. It returns once the process has
// been spawned; readiness is the health scheduler's concern.
func (a *CommandAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cmd != nil {
		return fmt.Errorf("server %s: process already started", a.cfg.ID)
	}

	cmd := exec.Command(a.cfg.Command[0], a.cfg.Command[1:]...)
	// Own process group so a forced stop can take down children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = os.Environ()
	for k, v := range a.cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe for %s: %w", a.cfg.ID, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		stdoutPipe.Close()
		return fmt.Errorf("stderr pipe for %s: %w", a.cfg.ID, err)
	}

	if err := cmd.Start(); err != nil {
		stdoutPipe.Close()
		stderrPipe.Close()
		return fmt.Errorf("failed to start %s (%v): %w", a.cfg.ID, a.cfg.Command, err)
	}

	a.cmd = cmd
	a.pid = cmd.Process.Pid
	a.done = make(chan error, 1)

	logging.Info("CommandAdapter", "Started process for %s (PID: %d): %v", a.cfg.ID, a.pid, a.cfg.Command)

	go func() {
		scanner := bufio.NewScanner(stdoutPipe)
		for scanner.Scan() {
			logging.Debug("CommandAdapter", "[%s STDOUT] %s", a.cfg.ID, scanner.Text())
		}
	}()
	go func() {
		scanner := bufio.NewScanner(stderrPipe)
		for scanner.Scan() {
			logging.Debug("CommandAdapter", "[%s STDERR] %s", a.cfg.ID, scanner.Text())
		}
	}()

	done := a.done
	go func() {
		err := cmd.Wait()
		if err != nil {
			logging.Warn("CommandAdapter", "Process for %s (PID: %d) exited: %v", a.cfg.ID, cmd.Process.Pid, err)
		} else {
			logging.Debug("CommandAdapter", "Process for %s (PID: %d) exited cleanly", a.cfg.ID, cmd.Process.Pid)
		}
		done <- err
		close(done)
	}()

	return nil
}

// Stop requests graceful termination (SIGTERM to the process group) and
// waits for the process to exit or the context to expire. An expired
// context is the caller's signal to escalate to Kill.
func (a *CommandAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	cmd := a.cmd
	pid := a.pid
	done := a.done
	a.mu.Unlock()

	if cmd == nil {
		return nil // never started, nothing to stop
	}

	// Negative pid targets the whole process group.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("signalling %s (PID: %d): %w", a.cfg.ID, pid, err)
	}

	select {
	case <-done:
		a.clear()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("graceful stop of %s (PID: %d): %w", a.cfg.ID, pid, ctx.Err())
	}
}

// Kill forcibly terminates the process group.
func (a *CommandAdapter) Kill() error {
	a.mu.Lock()
	cmd := a.cmd
	pid := a.pid
	done := a.done
	a.mu.Unlock()

	if cmd == nil {
		return nil
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("killing %s (PID: %d): %w", a.cfg.ID, pid, err)
	}

	// Reap the process; SIGKILL is not ignorable so this settles quickly.
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("process %s (PID: %d) did not exit after SIGKILL", a.cfg.ID, pid)
	}

	a.clear()
	return nil
}

// Probe dials the configured port over TCP.
func (a *CommandAdapter) Probe(ctx context.Context) (ProbeReport, error) {
	started := time.Now()

	dialer := &net.Dialer{}
	address := fmt.Sprintf("localhost:%d", a.cfg.Port)
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return ProbeReport{}, fmt.Errorf("failed to connect to %s on %s: %w", a.cfg.ID, address, err)
	}
	conn.Close()

	return ProbeReport{
		Metrics: &hub.HealthMetrics{
			ResponseTimeMs: float64(time.Since(started).Microseconds()) / 1000.0,
		},
	}, nil
}

// PID returns the process id of the running server, or 0.
func (a *CommandAdapter) PID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pid
}

func (a *CommandAdapter) clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cmd = nil
	a.pid = 0
}
