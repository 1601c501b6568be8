package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// maxLineSize bounds a single stdout line. Capture lines are well under 1 KiB.
const maxLineSize = 64 * 1024

// ErrRestartsExhausted is reported through Done when the restart budget runs out.
var ErrRestartsExhausted = errors.New("process: restart attempts exhausted")

// Config holds configuration for a managed subprocess.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the executable name or path.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// RestartOnFailure enables automatic restart when the process exits unexpectedly.
	RestartOnFailure bool

	// RestartDelay is the first backoff delay; it doubles on each failure.
	RestartDelay time.Duration

	// MaxRestartDelay caps the backoff.
	MaxRestartDelay time.Duration

	// StableThreshold is how long a run must last before the backoff and
	// attempt counter reset.
	StableThreshold time.Duration

	// MaxRestartAttempts limits consecutive restart attempts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// OnLine receives each stdout line, without the trailing newline.
	// Called from a single goroutine per run.
	OnLine func(line string)

	// OnStart is called when the process starts successfully.
	OnStart func()

	// OnStop is called when a run ends (err is nil when stop was requested).
	OnStop func(err error)

	// OnRestart is called before each restart attempt.
	OnRestart func(attempt int)
}

// DefaultConfig returns a Config with restart enabled and default timings.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:               name,
		Binary:             binary,
		Args:               args,
		RestartOnFailure:   true,
		RestartDelay:       time.Second,
		MaxRestartDelay:    time.Minute,
		StableThreshold:    time.Minute,
		MaxRestartAttempts: 10,
		GracefulTimeout:    5 * time.Second,
	}
}

// Logger defines the logging interface for the process manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager manages the lifecycle of a subprocess.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool

	// output is closed when the current run's stdout reader finishes.
	output chan struct{}

	// stop is closed by Stop to cut a backoff wait short.
	stop chan struct{}

	done    chan struct{}
	doneErr error
}

// NewManager creates a new process manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = time.Second
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = time.Minute
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = cfg.RestartDelay
	}
	if cfg.StableThreshold == 0 {
		cfg.StableThreshold = time.Minute
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 5 * time.Second
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the subprocess and begins supervising it.
// Returns an error if the first launch fails.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("process %s is already running", m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.restartCount = 0
	m.doneErr = nil
	m.done = make(chan struct{})
	m.stop = make(chan struct{})
	m.mu.Unlock()

	if err := m.startProcess(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		close(m.done)
		m.mu.Unlock()
		return err
	}

	go m.monitor(ctx)
	return nil
}

func (m *Manager) startProcess(ctx context.Context) error {
	m.logger.Info("starting process",
		"name", m.config.Name,
		"binary", m.config.Binary,
		"args", m.config.Args,
	)

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // Binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	output := make(chan struct{})
	m.mu.Lock()
	m.cmd = cmd
	m.output = output
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	go m.readLines(stdout, output)
	go m.logStderr(stderr)

	m.logger.Info("process started",
		"name", m.config.Name,
		"pid", cmd.Process.Pid,
	)

	if m.config.OnStart != nil {
		m.config.OnStart()
	}
	return nil
}

// readLines hands each stdout line to OnLine.
func (m *Manager) readLines(r io.Reader, output chan struct{}) {
	defer close(output)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxLineSize)
	for scanner.Scan() {
		if m.config.OnLine != nil {
			m.config.OnLine(scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		m.logger.Warn("stdout read failed", "name", m.config.Name, "error", err)
	}
}

func (m *Manager) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.logger.Warn("process stderr", "name", m.config.Name, "output", scanner.Text())
	}
}

// wait collects the exit status after stdout has drained so no line is lost.
func (m *Manager) wait(cmd *exec.Cmd, output chan struct{}) error {
	<-output
	return cmd.Wait()
}

// backoff returns the delay before restart attempt n (1-based).
func (m *Manager) backoff(attempt int) time.Duration {
	d := m.config.RestartDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.config.MaxRestartDelay {
			return m.config.MaxRestartDelay
		}
	}
	return d
}

func (m *Manager) stopped() {
	m.mu.Lock()
	m.status = StatusStopped
	m.mu.Unlock()
	m.finish(nil)
}

func (m *Manager) finish(err error) {
	m.mu.Lock()
	m.doneErr = err
	m.mu.Unlock()
	close(m.done)
}

// monitor waits for each run to end and restarts it when configured.
func (m *Manager) monitor(ctx context.Context) {
	m.mu.RLock()
	stop := m.stop
	m.mu.RUnlock()

	for {
		m.mu.RLock()
		cmd, output, started := m.cmd, m.output, m.startTime
		m.mu.RUnlock()

		err := m.wait(cmd, output)

		m.mu.Lock()
		stopRequested := m.stopRequested
		m.mu.Unlock()

		if stopRequested || ctx.Err() != nil {
			m.logger.Info("process stopped", "name", m.config.Name)
			if m.config.OnStop != nil {
				m.config.OnStop(nil)
			}
			m.stopped()
			return
		}

		if err == nil {
			err = fmt.Errorf("process %s exited", m.config.Name)
		}
		m.logger.Warn("process exited unexpectedly",
			"name", m.config.Name,
			"error", err,
			"uptime", time.Since(started),
		)

		m.mu.Lock()
		m.lastError = err
		m.status = StatusFailed
		if time.Since(started) >= m.config.StableThreshold {
			m.restartCount = 0
		}
		m.mu.Unlock()

		if m.config.OnStop != nil {
			m.config.OnStop(err)
		}

		if !m.config.RestartOnFailure {
			m.finish(err)
			return
		}

		for {
			m.mu.Lock()
			m.restartCount++
			attempt := m.restartCount
			m.mu.Unlock()

			if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
				m.logger.Error("max restart attempts reached",
					"name", m.config.Name,
					"attempts", attempt-1,
				)
				m.finish(fmt.Errorf("%w: %s: %w", ErrRestartsExhausted, m.config.Name, err))
				return
			}

			delay := m.backoff(attempt)
			m.logger.Info("restarting process",
				"name", m.config.Name,
				"attempt", attempt,
				"delay", delay,
			)
			if m.config.OnRestart != nil {
				m.config.OnRestart(attempt)
			}

			select {
			case <-ctx.Done():
				m.stopped()
				return
			case <-stop:
				m.stopped()
				return
			case <-time.After(delay):
			}
			select {
			case <-stop:
				m.stopped()
				return
			default:
			}

			startErr := m.startProcess(ctx)
			if startErr == nil {
				break
			}
			m.logger.Error("failed to restart process", "name", m.config.Name, "error", startErr)
			err = startErr
		}
	}
}

// Done is closed when supervision ends: after Stop, context cancellation,
// a failure with restarts disabled, or an exhausted restart budget.
func (m *Manager) Done() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.done
}

// Err returns why supervision ended. It is nil after a requested stop.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doneErr
}

// Stop gracefully stops the subprocess.
// It sends SIGTERM to the process group and escalates to SIGKILL after
// GracefulTimeout.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.done == nil {
		m.mu.Unlock()
		return nil
	}
	if !m.stopRequested {
		m.stopRequested = true
		close(m.stop)
	}
	cmd := m.cmd
	done := m.done
	running := m.status == StatusRunning
	m.mu.Unlock()

	if running && cmd != nil && cmd.Process != nil {
		pid := cmd.Process.Pid
		m.logger.Info("stopping process", "name", m.config.Name, "pid", pid)

		if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
			m.logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
		}

		select {
		case <-done:
			return nil
		case <-time.After(m.config.GracefulTimeout):
			m.logger.Warn("graceful shutdown timeout, sending SIGKILL",
				"name", m.config.Name,
				"timeout", m.config.GracefulTimeout,
			)
		}

		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
		}
	}

	<-done
	return nil
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning returns true if the process is currently running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the last error that caused the process to exit.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount returns the consecutive restart attempts since the last stable run.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// PID returns the process ID, or 0 if not running.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}
