package canbus

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
)

// maxLineSize bounds a single capture line.
const maxLineSize = 64 * 1024

// LineHandler receives one capture line at a time.
type LineHandler func(line string)

// Source produces capture lines until ctx is cancelled or the stream ends.
type Source interface {
	Run(ctx context.Context, handle LineHandler) error
}

// Logger defines the logging interface for sources and sinks.
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

// ReaderSource reads lines from an io.Reader.
//
// A blocking Read cannot be interrupted, so cancellation takes effect at the
// next line boundary. Close the reader to stop a source that is waiting for
// input.
type ReaderSource struct {
	name   string
	r      io.Reader
	closer io.Closer
}

// NewReaderSource wraps r. name appears in logs and errors.
func NewReaderSource(name string, r io.Reader) *ReaderSource {
	return &ReaderSource{name: name, r: r}
}

// OpenFileSource opens a capture file for replay.
func OpenFileSource(path string) (*ReaderSource, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("opening capture file: %w", err)
	}
	return &ReaderSource{name: path, r: f, closer: f}, nil
}

// Run delivers every line to handle. It returns nil at end of input.
func (s *ReaderSource) Run(ctx context.Context, handle LineHandler) error {
	if s.closer != nil {
		defer s.closer.Close()
	}

	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 4096), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		handle(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", s.name, err)
	}
	return nil
}
