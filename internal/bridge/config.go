package bridge

import "time"

// Bridge defaults.
const (
	defaultBridgeID        = "rvc"
	defaultDiscoveryPrefix = "homeassistant"
	defaultHubStatusTopic  = "homeassistant/status"
	defaultReadingPrefix   = "rvc"
	defaultQoS             = 1

	// defaultCommandTimeout bounds one command sequence on the bus.
	defaultCommandTimeout = 5 * time.Second
)

// Config holds the bridge's runtime settings.
type Config struct {
	// ID identifies this bridge in unique IDs and discovery topics.
	ID string

	// DiscoveryPrefix is the hub's discovery topic prefix.
	DiscoveryPrefix string

	// HubStatusTopic carries "online"/"offline" from the hub. "online"
	// triggers a config replay.
	HubStatusTopic string

	// StatusTopic is this bridge's own availability topic.
	StatusTopic string

	// QoS for publishes and subscriptions.
	QoS byte

	// PublishReadings enables raw reading JSON on {ReadingPrefix}/{name}/{instance}.
	PublishReadings bool

	// ReadingPrefix is the prefix for raw reading topics.
	ReadingPrefix string

	// PublishOnChangeOnly suppresses state publishes that match the last state.
	PublishOnChangeOnly bool

	// CommandTimeout bounds each command sequence.
	CommandTimeout time.Duration

	// Encoder holds command frame addressing.
	Encoder EncoderConfig
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = defaultBridgeID
	}
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = defaultDiscoveryPrefix
	}
	if c.HubStatusTopic == "" {
		c.HubStatusTopic = defaultHubStatusTopic
	}
	if c.StatusTopic == "" {
		c.StatusTopic = c.ID + "/status"
	}
	if c.QoS == 0 {
		c.QoS = defaultQoS
	}
	if c.ReadingPrefix == "" {
		c.ReadingPrefix = defaultReadingPrefix
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = defaultCommandTimeout
	}
}
