package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/rvc-bridge/internal/rvc"
)

// FrameSink writes frames to the bus.
// Implemented by canbus.CansendSink.
type FrameSink interface {
	Send(ctx context.Context, frame rvc.Frame) error
}

// Sender serialises every bus write through a single gate.
//
// Thread Safety: SendSequence holds the gate for the whole sequence, so a
// multi-frame command is never interleaved with frames from another caller.
type Sender struct {
	mu    sync.Mutex
	sink  FrameSink
	stats *Stats
}

// NewSender wraps a sink. stats may be nil.
func NewSender(sink FrameSink, stats *Stats) *Sender {
	return &Sender{sink: sink, stats: stats}
}

// SendSequence writes frames in order, stopping at the first failure.
func (s *Sender) SendSequence(ctx context.Context, frames []rvc.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range frames {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: frame %d of %d: %w", ErrSendFailed, i+1, len(frames), err)
		}
		if err := s.sink.Send(ctx, f); err != nil {
			s.stats.incSendErrors()
			return fmt.Errorf("%w: frame %d of %d (%s): %w", ErrSendFailed, i+1, len(frames), f, err)
		}
		s.stats.incFramesSent()
	}
	return nil
}
