package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/rvc-bridge/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the bridge.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onConnect  func()
	callbackMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on paho's delivery goroutines and should not block for
// long. A returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// Connect establishes a connection to the broker.
//
// Up to cfg.ConnectAttempts attempts are made, cfg.ConnectRetryDelay seconds
// apart. On success the retained "online" status is published; the broker
// publishes "offline" through the will if the bridge disappears.
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	return connect(ctx, cfg, nil)
}

// ConnectWithLogger is Connect with a logger attached before the first attempt.
func ConnectWithLogger(ctx context.Context, cfg config.MQTTConfig, logger Logger) (*Client, error) {
	return connect(ctx, cfg, logger)
}

func connect(ctx context.Context, cfg config.MQTTConfig, logger Logger) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
		logger:        logger,
	}

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if l := c.getLogger(); l != nil {
			l.Info("reconnecting to MQTT broker", "broker", brokerURL(cfg))
		}
	})
	c.client = pahomqtt.NewClient(opts)

	attempts := cfg.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Duration(cfg.ConnectRetryDelay) * time.Second

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = c.connectOnce()
		if lastErr == nil {
			// The OnConnect handler runs asynchronously; mark connected now so
			// callers can subscribe immediately.
			c.connMu.Lock()
			c.connected = true
			c.connMu.Unlock()
			return c, nil
		}

		if l := c.getLogger(); l != nil {
			l.Warn("MQTT connection attempt failed",
				"broker", brokerURL(cfg),
				"attempt", attempt,
				"max_attempts", attempts,
				"error", lastErr)
		}

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
			case <-time.After(delay):
			}
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrConnectionFailed, attempts, lastErr)
}

func (c *Client) connectOnce() error {
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout + time.Second) {
		return fmt.Errorf("timeout after %v", defaultConnectTimeout)
	}
	return token.Error()
}

func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.restoreSubscriptions()
	c.publishStatus(StatusOnline)

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if l := c.getLogger(); l != nil {
		l.Warn("MQTT connection lost", "error", err)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// publishStatus publishes a retained status payload, if a status topic is set.
func (c *Client) publishStatus(status string) {
	if c.cfg.StatusTopic == "" {
		return
	}
	token := c.client.Publish(c.cfg.StatusTopic, byte(c.cfg.QoS), true, status)
	if !token.WaitTimeout(defaultPublishTimeout) || token.Error() != nil {
		if l := c.getLogger(); l != nil {
			l.Warn("publishing bridge status failed", "status", status, "error", token.Error())
		}
	}
}

// Close publishes the retained "offline" status and disconnects.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishStatus(StatusOffline)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()
	return nil
}

// HealthCheck reports whether the connection is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback invoked on every reconnection. The initial
// connection made by Connect happens before a callback can be set.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection events and handler errors.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adds panic recovery and error logging to a MessageHandler.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.deliver(handler, msg.Topic(), msg.Payload())
	}
}

func (c *Client) deliver(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if l := c.getLogger(); l != nil {
				l.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		if l := c.getLogger(); l != nil {
			l.Warn("MQTT handler returned error", "topic", topic, "error", err)
		}
	}
}
