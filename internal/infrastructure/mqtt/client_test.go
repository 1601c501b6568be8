package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/rvc-bridge/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
// Broker-backed tests expect Mosquitto at 127.0.0.1:1883 and skip otherwise.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: fmt.Sprintf("rvcbridge-test-%d", time.Now().UnixNano()),
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		ConnectAttempts:   1,
		ConnectRetryDelay: 0,
		StatusTopic:       "rvctest/status",
	}
}

// connectOrSkip connects to the local broker or skips the test.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	client, err := Connect(context.Background(), testConfig())
	if err != nil {
		t.Skipf("no MQTT broker available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// offlineClient returns a client that never connected.
func offlineClient() *Client {
	return &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
}

type captureLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *captureLogger) Info(string, ...any) {}
func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *captureLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBrokerURL(t *testing.T) {
	cfg := testConfig()
	if got := brokerURL(cfg); got != "tcp://127.0.0.1:1883" {
		t.Errorf("brokerURL() = %q", got)
	}
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	if got := brokerURL(cfg); got != "ssl://127.0.0.1:8883" {
		t.Errorf("brokerURL(tls) = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "rvc-bridge"
	cfg.Auth.Username = "user"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "rvc-bridge" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.ConnectRetry {
		t.Error("ConnectRetry = true, want false (Connect bounds attempts itself)")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if !opts.WillEnabled || opts.WillTopic != "rvctest/status" ||
		string(opts.WillPayload) != StatusOffline || !opts.WillRetained {
		t.Errorf("will = enabled:%v topic:%q payload:%q retained:%v",
			opts.WillEnabled, opts.WillTopic, opts.WillPayload, opts.WillRetained)
	}
}

func TestBuildClientOptionsWithoutStatusTopic(t *testing.T) {
	cfg := testConfig()
	cfg.StatusTopic = ""
	if opts := buildClientOptions(cfg); opts.WillEnabled {
		t.Error("WillEnabled = true without a status topic")
	}
}

// =============================================================================
// Offline Tests
// =============================================================================

func TestConnectBoundedAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 1
	cfg.ConnectAttempts = 2

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if !strings.Contains(err.Error(), "after 2 attempts") {
		t.Errorf("Connect() error = %q, want attempt count", err)
	}
}

func TestConnectCancelledBetweenAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 1
	cfg.ConnectAttempts = 3
	cfg.ConnectRetryDelay = 60

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Connect(ctx, cfg)
	if !errors.Is(err, ErrConnectionFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed wrapping deadline", err)
	}
	if time.Since(start) > 30*time.Second {
		t.Error("Connect() ignored context cancellation during retry delay")
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := offlineClient().Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestOfflineValidation(t *testing.T) {
	c := offlineClient()
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", []byte("x"), 0, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("a", []byte("x"), 3, false), ErrInvalidQoS},
		{"publish oversize", c.Publish("a", make([]byte, maxPayloadSize+1), 0, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("a", []byte("x"), 0, false), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 0, handler), ErrInvalidTopic},
		{"subscribe bad qos", c.Subscribe("a", 3, handler), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("a", 0, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("a", 0, handler), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0 after rejected subscribes", c.SubscriptionCount())
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := offlineClient().HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestDeliverContainsFailures(t *testing.T) {
	c := offlineClient()
	logger := &captureLogger{}
	c.SetLogger(logger)

	c.deliver(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)
	c.deliver(func(string, []byte) error { panic("boom") }, "t", nil)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 {
		t.Errorf("warnings = %v, want 1 handler error", logger.warns)
	}
	if len(logger.errs) != 1 {
		t.Errorf("errors = %v, want 1 recovered panic", logger.errs)
	}
}

// =============================================================================
// Broker Tests
// =============================================================================

func TestConnectPublishesOnline(t *testing.T) {
	client := connectOrSkip(t)

	observer := connectOrSkip(t)
	got := make(chan string, 4)
	err := observer.Subscribe(testConfig().StatusTopic, 1, func(_ string, payload []byte) error {
		got <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false, want true")
	}

	// A stale retained "offline" from an earlier run may arrive first.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case status := <-got:
			if status == StatusOnline {
				return
			}
		case <-deadline:
			t.Fatalf("no %q status received", StatusOnline)
		}
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	client := connectOrSkip(t)
	topic := fmt.Sprintf("rvctest/roundtrip/%d", time.Now().UnixNano())

	received := make(chan []byte, 1)
	err := client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- payload
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topic) {
		t.Error("HasSubscription() = false after Subscribe")
	}

	if err := client.Publish(topic, []byte("ON"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != "ON" {
			t.Errorf("payload = %q, want ON", payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("message not received")
	}
}

func TestCloseDisconnects(t *testing.T) {
	client := connectOrSkip(t)
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.Publish("rvctest/x", nil, 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close error = %v, want ErrNotConnected", err)
	}
}
