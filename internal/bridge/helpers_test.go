package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/rvc-bridge/internal/devices"
	"github.com/nerrad567/rvc-bridge/internal/rvc"
)

const testSpecYAML = `
1FEDA:
  name: DC_DIMMER_STATUS_3
  parameters:
    - { byte: 0, name: instance, type: uint8 }
    - { byte: 1, name: group, type: uint8 }
    - { byte: 2, name: operating status (brightness), type: uint8, unit: pct }
    - byte: 3
      bit: 0-1
      name: lock status
      type: bit2
      values: { 0: load is unlocked, 1: load is locked }
1FF9C:
  name: THERMOSTAT_AMBIENT_STATUS
  parameters:
    - { byte: 0, name: instance, type: uint8 }
    - { byte: 1-2, name: ambient temp, type: uint16, unit: deg c }
1FFFF:
  name: DATE_TIME_STATUS
  parameters:
    - { byte: 0, name: year, type: uint8 }
`

const testDevicesYAML = `
1FEDA:
  "1":
    - { id: ceiling_light, name: Ceiling Light, type: light, dimmable: true, area: Living, manufacturer: Firefly }
  "2":
    - { id: porch_light, type: switch }
  "14":
    - { id: door_lock, type: lock, opposing_instance: 89 }
  "30":
    - { id: sofa_light, type: light, dimmable: true }
1FF9C:
  "1":
    - { id: bedroom_temp, type: sensor, status_field: ambient temp, unit_of_measurement: "°C" }
`

func testDecoder(t *testing.T) *rvc.Decoder {
	t.Helper()
	reg, err := rvc.ParseRegistry([]byte(testSpecYAML))
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}
	return rvc.NewDecoder(reg)
}

func testDirectory(t *testing.T) *devices.Directory {
	t.Helper()
	dir, err := devices.Parse([]byte(testDevicesYAML), devices.Options{TopicBase: "rvc"})
	if err != nil {
		t.Fatalf("devices.Parse: %v", err)
	}
	return dir
}

func testDevice(t *testing.T, dir *devices.Directory, id string) *devices.Descriptor {
	t.Helper()
	d, err := dir.Device(id)
	if err != nil {
		t.Fatalf("Device(%s): %v", id, err)
	}
	return d
}

// captureLine formats a candump -ta style line.
func captureLine(id, payload string) string {
	var parts []string
	for i := 0; i+1 < len(payload); i += 2 {
		parts = append(parts, payload[i:i+2])
	}
	return fmt.Sprintf("(1700000000.000000) can0 %s [%d] %s", id, len(parts), strings.Join(parts, " "))
}

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu         sync.Mutex
	published  []mockPublish
	handlers   map[string]func(topic string, payload []byte)
	connected  bool
	publishErr error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

// PublishedTo returns messages published to one topic.
func (m *MockMQTTClient) PublishedTo(topic string) []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

func (m *MockMQTTClient) HasSubscription(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[topic]
	return ok
}

// SimulateMessage delivers a message to the handler subscribed on topic.
func (m *MockMQTTClient) SimulateMessage(t *testing.T, topic string, payload string) {
	t.Helper()
	m.mu.Lock()
	h, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %s", topic)
	}
	h(topic, []byte(payload))
}

// recordingSink implements FrameSink and records every frame in order.
type recordingSink struct {
	mu     sync.Mutex
	frames []rvc.Frame
	delay  time.Duration
	failAt int // 1-based frame number to fail, 0 = never
}

func (s *recordingSink) Send(ctx context.Context, f rvc.Frame) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.frames)+1 == s.failAt {
		return fmt.Errorf("bus write failed")
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSink) Frames() []rvc.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rvc.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

func (s *recordingSink) Strings() []string {
	var out []string
	for _, f := range s.Frames() {
		out = append(out, f.String())
	}
	return out
}

// mockLogger records messages by level.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	Level string
	Msg   string
	KV    []any
}

func (l *mockLogger) add(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{Level: level, Msg: msg, KV: kv})
}

func (l *mockLogger) Debug(msg string, kv ...any) { l.add("debug", msg, kv) }
func (l *mockLogger) Info(msg string, kv ...any)  { l.add("info", msg, kv) }
func (l *mockLogger) Warn(msg string, kv ...any)  { l.add("warn", msg, kv) }
func (l *mockLogger) Error(msg string, kv ...any) { l.add("error", msg, kv) }

// Count returns how many entries have the message.
func (l *mockLogger) Count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Msg == msg {
			n++
		}
	}
	return n
}

var errTest = errors.New("test error")
