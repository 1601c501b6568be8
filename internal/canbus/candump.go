package canbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/rvc-bridge/internal/process"
)

// CandumpConfig configures the candump source.
type CandumpConfig struct {
	// Binary is the candump executable (default "candump").
	Binary string

	// Interface is the SocketCAN interface, e.g. "can0".
	Interface string

	// RestartDelay is the first restart backoff.
	RestartDelay time.Duration

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int
}

// CandumpSource runs "candump -ta <iface>" and delivers its output lines.
// candump is restarted with backoff if it exits.
type CandumpSource struct {
	cfg    CandumpConfig
	logger Logger
}

// NewCandumpSource creates a candump source.
func NewCandumpSource(cfg CandumpConfig) *CandumpSource {
	if cfg.Binary == "" {
		cfg.Binary = "candump"
	}
	return &CandumpSource{cfg: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger for the source and its process manager.
func (s *CandumpSource) SetLogger(logger Logger) {
	s.logger = logger
}

// Args returns the candump command line arguments.
func (s *CandumpSource) Args() []string {
	return []string{"-ta", s.cfg.Interface}
}

// Run starts candump and blocks until ctx is cancelled or supervision gives up.
func (s *CandumpSource) Run(ctx context.Context, handle LineHandler) error {
	pcfg := process.DefaultConfig("candump", s.cfg.Binary, s.Args())
	pcfg.OnLine = handle
	if s.cfg.RestartDelay > 0 {
		pcfg.RestartDelay = s.cfg.RestartDelay
	}
	pcfg.MaxRestartAttempts = s.cfg.MaxRestartAttempts

	mgr := process.NewManager(pcfg)
	mgr.SetLogger(s.logger)

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("starting candump on %s: %w", s.cfg.Interface, err)
	}

	select {
	case <-ctx.Done():
		if err := mgr.Stop(); err != nil {
			s.logger.Warn("stopping candump", "error", err)
		}
		return nil
	case <-mgr.Done():
		if err := mgr.Err(); err != nil {
			return fmt.Errorf("%w: candump: %w", ErrSourceClosed, err)
		}
		return nil
	}
}
