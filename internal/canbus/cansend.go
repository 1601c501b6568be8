package canbus

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/nerrad567/rvc-bridge/internal/rvc"
)

// CansendSink writes frames with "cansend <iface> <id#payload>".
//
// Thread Safety: Send is safe for concurrent use, but ordering across
// callers is the caller's concern (see bridge.Sender).
type CansendSink struct {
	binary  string
	iface   string
	logger  Logger
	runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCansendSink creates a sink for iface. binary defaults to "cansend".
func NewCansendSink(binary, iface string) *CansendSink {
	if binary == "" {
		binary = "cansend"
	}
	return &CansendSink{binary: binary, iface: iface, logger: noopLogger{}, runFunc: runCommand}
}

// SetLogger sets the logger for the sink.
func (s *CansendSink) SetLogger(logger Logger) {
	s.logger = logger
}

// Send writes one frame and waits for cansend to exit.
func (s *CansendSink) Send(ctx context.Context, frame rvc.Frame) error {
	arg := frame.String()
	out, err := s.runFunc(ctx, s.binary, s.iface, arg)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		return fmt.Errorf("%w: %s %s: %w: %s", ErrSendFailed, s.iface, arg, err, msg)
	}
	s.logger.Debug("frame sent", "interface", s.iface, "frame", arg)
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // binary comes from operator config
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}
