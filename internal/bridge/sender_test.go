package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/rvc-bridge/internal/rvc"
)

func testFrames(t *testing.T, n int) []rvc.Frame {
	t.Helper()
	id := rvc.CommandID(rvc.DefaultCommandPriority, rvc.DefaultSourceAddress)
	frames := make([]rvc.Frame, n)
	for i := range frames {
		frames[i] = rvc.DimmerFrame{Instance: uint8(i + 1), Level: rvc.LevelFull, Command: rvc.CmdOnDuration, Duration: rvc.DurationDefault}.Encode(id)
	}
	return frames
}

func TestSendSequenceInOrder(t *testing.T) {
	sink := &recordingSink{}
	stats := &Stats{}
	s := NewSender(sink, stats)

	frames := testFrames(t, 3)
	if err := s.SendSequence(context.Background(), frames); err != nil {
		t.Fatalf("SendSequence: %v", err)
	}
	got := sink.Frames()
	if len(got) != 3 {
		t.Fatalf("sent %d frames, want 3", len(got))
	}
	for i := range frames {
		if got[i].String() != frames[i].String() {
			t.Errorf("frame[%d] = %s, want %s", i, got[i], frames[i])
		}
	}
	if stats.Snapshot().FramesSent != 3 {
		t.Errorf("FramesSent = %d, want 3", stats.Snapshot().FramesSent)
	}
}

func TestSendSequenceStopsAtFirstFailure(t *testing.T) {
	sink := &recordingSink{failAt: 2}
	stats := &Stats{}
	s := NewSender(sink, stats)

	err := s.SendSequence(context.Background(), testFrames(t, 3))
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("error = %v, want ErrSendFailed", err)
	}
	if n := len(sink.Frames()); n != 1 {
		t.Errorf("sent %d frames, want 1", n)
	}
	snap := stats.Snapshot()
	if snap.FramesSent != 1 || snap.SendErrors != 1 {
		t.Errorf("FramesSent/SendErrors = %d/%d, want 1/1", snap.FramesSent, snap.SendErrors)
	}
}

func TestSendSequenceCancelled(t *testing.T) {
	sink := &recordingSink{}
	s := NewSender(sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SendSequence(ctx, testFrames(t, 2))
	if !errors.Is(err, ErrSendFailed) || !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want ErrSendFailed wrapping context.Canceled", err)
	}
	if n := len(sink.Frames()); n != 0 {
		t.Errorf("sent %d frames after cancel", n)
	}
}

func TestSendSequenceEmpty(t *testing.T) {
	sink := &recordingSink{}
	if err := NewSender(sink, nil).SendSequence(context.Background(), nil); err != nil {
		t.Errorf("empty sequence error = %v", err)
	}
}
