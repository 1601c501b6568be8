package watchdog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Defaults applied to zero Config values.
const (
	DefaultInterval          = 10 * time.Second
	DefaultAckTicks          = 20
	DefaultTickDuration      = 100 * time.Millisecond
	DefaultStartupAttempts   = 5
	DefaultStartupRetryDelay = 2 * time.Second
)

// Client is the broker surface the watchdog needs.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
}

// Logger defines the logging interface for the watchdog.
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

// Config configures the watchdog.
type Config struct {
	// CheckTopic is the private topic the nonce round-trips through.
	CheckTopic string

	// QoS for the check topic publish and subscription.
	QoS byte

	// Interval between heartbeats.
	Interval time.Duration

	// AckTicks is how many ticks to wait for an echo.
	AckTicks int

	// TickDuration is the length of one wait tick.
	TickDuration time.Duration

	// StartupAttempts bounds the startup handshake.
	StartupAttempts int

	// StartupRetryDelay is the pause between handshake attempts.
	StartupRetryDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.AckTicks <= 0 {
		c.AckTicks = DefaultAckTicks
	}
	if c.TickDuration <= 0 {
		c.TickDuration = DefaultTickDuration
	}
	if c.StartupAttempts <= 0 {
		c.StartupAttempts = DefaultStartupAttempts
	}
	if c.StartupRetryDelay <= 0 {
		c.StartupRetryDelay = DefaultStartupRetryDelay
	}
}

// Watchdog proves broker round trips and notifies the supervisor.
//
// Thread Safety: Probe may be called concurrently with echo delivery; only
// one probe is outstanding at a time.
type Watchdog struct {
	cfg      Config
	client   Client
	notifier Notifier
	logger   Logger

	probeMu sync.Mutex // one outstanding probe

	mu      sync.Mutex
	pending string
	ack     chan struct{}

	subscribed atomic.Bool
	beats      atomic.Uint64
	lastAck    atomic.Int64
}

// New creates a watchdog. notifier may be nil to skip supervisor notification.
func New(cfg Config, client Client, notifier Notifier) (*Watchdog, error) {
	if cfg.CheckTopic == "" {
		return nil, fmt.Errorf("watchdog: check topic is required")
	}
	if client == nil {
		return nil, fmt.Errorf("watchdog: client is required")
	}
	cfg.applyDefaults()
	return &Watchdog{
		cfg:      cfg,
		client:   client,
		notifier: notifier,
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger for the watchdog.
func (w *Watchdog) SetLogger(logger Logger) {
	w.logger = logger
}

// Interval returns the heartbeat interval in effect.
func (w *Watchdog) Interval() time.Duration {
	return w.cfg.Interval
}

// Start subscribes to the check topic and runs the startup handshake. On
// success the supervisor is told the service is ready.
func (w *Watchdog) Start(ctx context.Context) error {
	if !w.subscribed.Load() {
		if err := w.client.Subscribe(w.cfg.CheckTopic, w.cfg.QoS, w.handleEcho); err != nil {
			return fmt.Errorf("subscribing to check topic: %w", err)
		}
		w.subscribed.Store(true)
	}

	var lastErr error
	for attempt := 1; attempt <= w.cfg.StartupAttempts; attempt++ {
		lastErr = w.Probe(ctx)
		if lastErr == nil {
			w.logger.Info("broker handshake complete", "topic", w.cfg.CheckTopic, "attempt", attempt)
			w.notify(StateReady)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.logger.Warn("broker handshake failed",
			"topic", w.cfg.CheckTopic,
			"attempt", attempt,
			"max_attempts", w.cfg.StartupAttempts,
			"error", lastErr)

		if attempt < w.cfg.StartupAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.StartupRetryDelay):
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrHandshakeFailed, w.cfg.StartupAttempts, lastErr)
}

// Run heartbeats until ctx is cancelled. A failed round trip ends Run with
// ErrHeartbeatTimeout.
func (w *Watchdog) Run(ctx context.Context) error {
	if !w.subscribed.Load() {
		return ErrNotStarted
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.notify(StateStopping)
			return nil
		case <-ticker.C:
			if err := w.Probe(ctx); err != nil {
				if ctx.Err() != nil {
					w.notify(StateStopping)
					return nil
				}
				w.logger.Error("heartbeat failed", "topic", w.cfg.CheckTopic, "error", err)
				return fmt.Errorf("%w: %w", ErrHeartbeatTimeout, err)
			}
			w.beats.Add(1)
			w.logger.Debug("heartbeat acknowledged", "beats", w.beats.Load())
			w.notify(StateWatchdog)
		}
	}
}

// Probe publishes a fresh nonce and waits up to AckTicks ticks for the echo.
func (w *Watchdog) Probe(ctx context.Context) error {
	w.probeMu.Lock()
	defer w.probeMu.Unlock()

	nonce := uuid.NewString()
	ack := make(chan struct{})

	w.mu.Lock()
	w.pending = nonce
	w.ack = ack
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.pending = ""
		w.ack = nil
		w.mu.Unlock()
	}()

	if err := w.client.Publish(w.cfg.CheckTopic, []byte(nonce), w.cfg.QoS, false); err != nil {
		return fmt.Errorf("publishing nonce: %w", err)
	}

	ticker := time.NewTicker(w.cfg.TickDuration)
	defer ticker.Stop()

	for tick := 0; tick < w.cfg.AckTicks; tick++ {
		select {
		case <-ack:
			w.lastAck.Store(time.Now().UnixNano())
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	// The echo may have landed on the final tick.
	select {
	case <-ack:
		w.lastAck.Store(time.Now().UnixNano())
		return nil
	default:
	}
	return fmt.Errorf("%w within %s", ErrNoEcho, time.Duration(w.cfg.AckTicks)*w.cfg.TickDuration)
}

// handleEcho matches an echoed payload against the outstanding nonce.
// Stale or foreign payloads are ignored.
func (w *Watchdog) handleEcho(_ string, payload []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending == "" || string(payload) != w.pending {
		return
	}
	close(w.ack)
	w.pending = ""
}

func (w *Watchdog) notify(state string) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Notify(state); err != nil {
		w.logger.Warn("supervisor notification failed", "state", state, "error", err)
	}
}

// Beats returns the number of acknowledged heartbeats.
func (w *Watchdog) Beats() uint64 {
	return w.beats.Load()
}

// LastAck returns when the most recent echo was observed.
func (w *Watchdog) LastAck() time.Time {
	ns := w.lastAck.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
