package watchdog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockBroker implements Client. When echo is set, published payloads are
// delivered back to the subscriber on the same topic.
type mockBroker struct {
	mu        sync.Mutex
	handlers  map[string]func(topic string, payload []byte)
	published []string
	echo      bool
	echoAfter int // echo only from this publish number on (1-based)
	override  []byte
}

func newMockBroker(echo bool) *mockBroker {
	return &mockBroker{handlers: make(map[string]func(string, []byte)), echo: echo}
}

func (b *mockBroker) Publish(topic string, payload []byte, _ byte, _ bool) error {
	b.mu.Lock()
	b.published = append(b.published, string(payload))
	n := len(b.published)
	h := b.handlers[topic]
	echo := b.echo && n >= b.echoAfter
	if b.override != nil {
		payload = b.override
	}
	b.mu.Unlock()

	if echo && h != nil {
		go h(topic, payload)
	}
	return nil
}

func (b *mockBroker) Subscribe(topic string, _ byte, handler func(string, []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *mockBroker) setEcho(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.echo = on
}

func (b *mockBroker) Published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.published))
	copy(out, b.published)
	return out
}

// recordingNotifier implements Notifier.
type recordingNotifier struct {
	mu     sync.Mutex
	states []string
}

func (n *recordingNotifier) Notify(state string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, state)
	return nil
}

func (n *recordingNotifier) States() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.states))
	copy(out, n.states)
	return out
}

func (n *recordingNotifier) Count(state string) int {
	c := 0
	for _, s := range n.States() {
		if s == state {
			c++
		}
	}
	return c
}

func testConfig() Config {
	return Config{
		CheckTopic:        "rvc/check",
		Interval:          10 * time.Millisecond,
		AckTicks:          10,
		TickDuration:      5 * time.Millisecond,
		StartupAttempts:   3,
		StartupRetryDelay: time.Millisecond,
	}
}

func newTestWatchdog(t *testing.T, broker *mockBroker, n Notifier) *Watchdog {
	t.Helper()
	w, err := New(testConfig(), broker, n)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

// ===== Construction =====

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}, newMockBroker(true), nil); err == nil {
		t.Error("missing check topic should fail")
	}
	if _, err := New(Config{CheckTopic: "x"}, nil, nil); err == nil {
		t.Error("missing client should fail")
	}

	w, err := New(Config{CheckTopic: "x"}, newMockBroker(true), nil)
	if err != nil {
		t.Fatal(err)
	}
	if w.Interval() != DefaultInterval {
		t.Errorf("Interval = %v, want %v", w.Interval(), DefaultInterval)
	}
	if w.cfg.AckTicks != DefaultAckTicks || w.cfg.TickDuration != DefaultTickDuration {
		t.Errorf("ack window = %d x %v", w.cfg.AckTicks, w.cfg.TickDuration)
	}
}

// ===== Probe =====

func TestProbe(t *testing.T) {
	broker := newMockBroker(true)
	w := newTestWatchdog(t, broker, nil)
	if err := broker.Subscribe("rvc/check", 0, w.handleEcho); err != nil {
		t.Fatal(err)
	}

	if err := w.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if w.LastAck().IsZero() {
		t.Error("LastAck not recorded")
	}

	// Each probe uses a fresh nonce.
	if err := w.Probe(context.Background()); err != nil {
		t.Fatalf("second Probe: %v", err)
	}
	pub := broker.Published()
	if len(pub) != 2 || pub[0] == pub[1] || pub[0] == "" {
		t.Errorf("nonces = %q", pub)
	}
}

func TestProbeIgnoresForeignPayload(t *testing.T) {
	broker := newMockBroker(true)
	broker.override = []byte("someone else")
	w := newTestWatchdog(t, broker, nil)
	_ = broker.Subscribe("rvc/check", 0, w.handleEcho)

	if err := w.Probe(context.Background()); !errors.Is(err, ErrNoEcho) {
		t.Errorf("Probe error = %v, want ErrNoEcho", err)
	}
}

func TestProbeCancelled(t *testing.T) {
	broker := newMockBroker(false)
	w := newTestWatchdog(t, broker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Probe(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Probe error = %v, want context.Canceled", err)
	}
}

func TestStaleEchoIgnored(t *testing.T) {
	w := newTestWatchdog(t, newMockBroker(false), nil)
	// No probe outstanding: must not panic or block.
	w.handleEcho("rvc/check", []byte("stale"))
	w.handleEcho("rvc/check", []byte(""))
}

// ===== Start =====

func TestStartNotifiesReady(t *testing.T) {
	broker := newMockBroker(true)
	n := &recordingNotifier{}
	w := newTestWatchdog(t, broker, n)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := n.States(); len(got) != 1 || got[0] != StateReady {
		t.Errorf("states = %v, want [%s]", got, StateReady)
	}
}

func TestStartRetriesThenSucceeds(t *testing.T) {
	broker := newMockBroker(true)
	broker.echoAfter = 3
	n := &recordingNotifier{}
	w := newTestWatchdog(t, broker, n)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(broker.Published()) != 3 {
		t.Errorf("attempts = %d, want 3", len(broker.Published()))
	}
	if n.Count(StateReady) != 1 {
		t.Errorf("READY sent %d times", n.Count(StateReady))
	}
}

func TestStartExhausted(t *testing.T) {
	broker := newMockBroker(false)
	n := &recordingNotifier{}
	w := newTestWatchdog(t, broker, n)

	err := w.Start(context.Background())
	if !errors.Is(err, ErrHandshakeFailed) || !errors.Is(err, ErrNoEcho) {
		t.Fatalf("Start error = %v", err)
	}
	if len(broker.Published()) != 3 {
		t.Errorf("attempts = %d, want 3", len(broker.Published()))
	}
	if len(n.States()) != 0 {
		t.Errorf("states = %v, want none", n.States())
	}
}

// ===== Run =====

func TestRunBeforeStart(t *testing.T) {
	w := newTestWatchdog(t, newMockBroker(true), nil)
	if err := w.Run(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Run error = %v, want ErrNotStarted", err)
	}
}

func TestRunHeartbeats(t *testing.T) {
	broker := newMockBroker(true)
	n := &recordingNotifier{}
	w := newTestWatchdog(t, broker, n)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for w.Beats() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if n.Count(StateWatchdog) < 3 {
		t.Errorf("WATCHDOG sent %d times, want >= 3", n.Count(StateWatchdog))
	}
	states := n.States()
	if states[len(states)-1] != StateStopping {
		t.Errorf("last state = %s, want %s", states[len(states)-1], StateStopping)
	}
}

func TestRunHeartbeatTimeoutIsFatal(t *testing.T) {
	broker := newMockBroker(true)
	n := &recordingNotifier{}
	w := newTestWatchdog(t, broker, n)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	broker.setEcho(false)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrHeartbeatTimeout) {
			t.Errorf("Run error = %v, want ErrHeartbeatTimeout", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not fail on missing echo")
	}
	if n.Count(StateWatchdog) != 0 {
		t.Errorf("WATCHDOG sent %d times without an echo", n.Count(StateWatchdog))
	}
}
