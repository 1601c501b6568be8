package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RVCBRIDGE_"

// Source types for the bus frame source.
const (
	SourceCandump = "candump"
	SourceSerial  = "serial"
	SourceStdin   = "stdin"
	SourceFile    = "file"
)

// Config is the root configuration structure for the RV-C bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge        BridgeConfig        `yaml:"bridge"`
	CAN           CANConfig           `yaml:"can"`
	Spec          SpecConfig          `yaml:"spec"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Watchdog      WatchdogConfig      `yaml:"watchdog"`
	Database      DatabaseConfig      `yaml:"database"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// BridgeConfig contains translation settings.
type BridgeConfig struct {
	// ID identifies this bridge in topics and discovery unique IDs.
	ID string `yaml:"id"`

	// TopicBase prefixes default device topics ("<base>/<device id>/state").
	TopicBase string `yaml:"topic_base"`

	// SourceAddress is the RV-C source address used on sent frames.
	SourceAddress int `yaml:"source_address"`

	// Priority is the CAN priority used on sent frames (0-7).
	Priority int `yaml:"priority"`

	// DefaultBrightness is recalled by a bare ON before any brightness command.
	DefaultBrightness int `yaml:"default_brightness"`

	// PublishReadings publishes every decoded reading as JSON.
	PublishReadings bool `yaml:"publish_readings"`

	// ReadingPrefix is the topic prefix for raw readings.
	ReadingPrefix string `yaml:"reading_prefix"`

	// PublishOnChangeOnly suppresses state publishes that repeat the last value.
	PublishOnChangeOnly bool `yaml:"publish_on_change_only"`

	// CommandTimeout bounds one command's frame sequence (seconds).
	CommandTimeout int `yaml:"command_timeout"`
}

// CANConfig contains bus source and sink settings.
type CANConfig struct {
	Interface          string `yaml:"interface"`
	Source             string `yaml:"source"`
	CandumpBinary      string `yaml:"candump_binary"`
	CansendBinary      string `yaml:"cansend_binary"`
	SerialPort         string `yaml:"serial_port"`
	SerialBaud         int    `yaml:"serial_baud"`
	File               string `yaml:"file"`
	RestartDelay       int    `yaml:"restart_delay"`
	MaxRestartAttempts int    `yaml:"max_restart_attempts"`
}

// SpecConfig locates the declarative inputs.
type SpecConfig struct {
	// RegistryFile is the RV-C spec (DGN definitions) YAML.
	RegistryFile string `yaml:"registry_file"`

	// DevicesFile is the device directory YAML.
	DevicesFile string `yaml:"devices_file"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// ConnectAttempts bounds the initial connection (0 means 1).
	ConnectAttempts int `yaml:"connect_attempts"`

	// ConnectRetryDelay is the pause between initial connection attempts (seconds).
	ConnectRetryDelay int `yaml:"connect_retry_delay"`

	// StatusTopic carries the bridge's retained online/offline status.
	// Defaults to "<bridge id>/status".
	StatusTopic string `yaml:"status_topic"`

	// CheckTopic is the private heartbeat topic. Defaults to "<bridge id>/check".
	CheckTopic string `yaml:"check_topic"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// HomeAssistantConfig contains discovery settings.
type HomeAssistantConfig struct {
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	StatusTopic     string `yaml:"status_topic"`
}

// WatchdogConfig contains supervisor liveness settings.
type WatchdogConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval between heartbeats (seconds). 0 uses half of systemd's WatchdogSec.
	Interval int `yaml:"interval"`

	// AckTicks and TickMillis bound the echo wait.
	AckTicks   int `yaml:"ack_ticks"`
	TickMillis int `yaml:"tick_millis"`

	// StartupAttempts and StartupRetryDelay (seconds) bound the startup handshake.
	StartupAttempts   int `yaml:"startup_attempts"`
	StartupRetryDelay int `yaml:"startup_retry_delay"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
	StatsInterval int    `yaml:"stats_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//  4. Derived defaults (topics computed from the bridge ID)
//
// Relative spec and device file paths are resolved against the config file's
// directory.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.applyDerived()
	cfg.resolvePaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:                "rvc",
			TopicBase:         "rvc",
			SourceAddress:     0x63,
			Priority:          6,
			DefaultBrightness: 50,
			ReadingPrefix:     "rvc",
			CommandTimeout:    5,
		},
		CAN: CANConfig{
			Interface:          "can0",
			Source:             SourceCandump,
			CandumpBinary:      "candump",
			CansendBinary:      "cansend",
			SerialBaud:         115200,
			RestartDelay:       1,
			MaxRestartAttempts: 10,
		},
		Spec: SpecConfig{
			RegistryFile: "rvc-spec.yml",
			DevicesFile:  "devices.yml",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "rvc-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			ConnectAttempts:   5,
			ConnectRetryDelay: 5,
		},
		HomeAssistant: HomeAssistantConfig{
			DiscoveryPrefix: "homeassistant",
			StatusTopic:     "homeassistant/status",
		},
		Watchdog: WatchdogConfig{
			AckTicks:          20,
			TickMillis:        100,
			StartupAttempts:   5,
			StartupRetryDelay: 2,
		},
		Database: DatabaseConfig{
			Path:        "./data/rvcbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
			StatsInterval: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RVCBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"BRIDGE_ID":       &cfg.Bridge.ID,
		"CAN_INTERFACE":   &cfg.CAN.Interface,
		"CAN_SOURCE":      &cfg.CAN.Source,
		"CAN_SERIAL_PORT": &cfg.CAN.SerialPort,
		"CAN_FILE":        &cfg.CAN.File,
		"SPEC_FILE":       &cfg.Spec.RegistryFile,
		"DEVICES_FILE":    &cfg.Spec.DevicesFile,
		"MQTT_HOST":       &cfg.MQTT.Broker.Host,
		"MQTT_USERNAME":   &cfg.MQTT.Auth.Username,
		"MQTT_PASSWORD":   &cfg.MQTT.Auth.Password,
		"DATABASE_PATH":   &cfg.Database.Path,
		"INFLUXDB_TOKEN":  &cfg.InfluxDB.Token,
		"LOG_LEVEL":       &cfg.Logging.Level,
	}
	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MQTT_PORT":       &cfg.MQTT.Broker.Port,
		"SOURCE_ADDRESS":  &cfg.Bridge.SourceAddress,
		"CAN_SERIAL_BAUD": &cfg.CAN.SerialBaud,
	}
	var errs []string
	for key, dst := range ints {
		v := os.Getenv(EnvPrefix + key)
		if v == "" {
			continue
		}
		n, err := cast.ToIntE(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
			continue
		}
		*dst = n
	}

	if v := os.Getenv(EnvPrefix + "WATCHDOG_ENABLED"); v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sWATCHDOG_ENABLED: %v", EnvPrefix, err))
		} else {
			cfg.Watchdog.Enabled = b
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("environment overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}

// applyDerived fills topics that default from the bridge ID.
func (c *Config) applyDerived() {
	if c.MQTT.StatusTopic == "" {
		c.MQTT.StatusTopic = c.Bridge.ID + "/status"
	}
	if c.MQTT.CheckTopic == "" {
		c.MQTT.CheckTopic = c.Bridge.ID + "/check"
	}
}

// resolvePaths makes relative input paths relative to dir.
func (c *Config) resolvePaths(dir string) {
	for _, p := range []*string{&c.Spec.RegistryFile, &c.Spec.DevicesFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Every validation failure joined into one message, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Bridge
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	} else if strings.ContainsAny(c.Bridge.ID, "/#+ ") {
		errs = append(errs, "bridge.id must not contain '/', '#', '+' or spaces")
	}
	if c.Bridge.SourceAddress < 0 || c.Bridge.SourceAddress > 0xFF {
		errs = append(errs, "bridge.source_address must be between 0 and 255")
	}
	if c.Bridge.Priority < 0 || c.Bridge.Priority > 7 {
		errs = append(errs, "bridge.priority must be between 0 and 7")
	}
	if c.Bridge.DefaultBrightness < 1 || c.Bridge.DefaultBrightness > 100 {
		errs = append(errs, "bridge.default_brightness must be between 1 and 100")
	}

	// CAN
	switch c.CAN.Source {
	case SourceCandump:
		if c.CAN.Interface == "" {
			errs = append(errs, "can.interface is required for the candump source")
		}
	case SourceSerial:
		if c.CAN.SerialPort == "" {
			errs = append(errs, "can.serial_port is required for the serial source")
		}
	case SourceFile:
		if c.CAN.File == "" {
			errs = append(errs, "can.file is required for the file source")
		}
	case SourceStdin:
	default:
		errs = append(errs, fmt.Sprintf("can.source %q must be candump, serial, stdin or file", c.CAN.Source))
	}

	// Spec
	if c.Spec.RegistryFile == "" {
		errs = append(errs, "spec.registry_file is required")
	}
	if c.Spec.DevicesFile == "" {
		errs = append(errs, "spec.devices_file is required")
	}

	// MQTT
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Watchdog
	if c.Watchdog.Enabled {
		if c.Watchdog.AckTicks < 1 {
			errs = append(errs, "watchdog.ack_ticks must be at least 1")
		}
		if c.Watchdog.TickMillis < 1 {
			errs = append(errs, "watchdog.tick_millis must be at least 1")
		}
	}

	// Database
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	// InfluxDB
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not a valid level", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetCommandTimeout returns the command timeout as a Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Bridge.CommandTimeout) * time.Second
}

// GetWatchdogInterval returns the heartbeat interval, or 0 when unset.
func (c *Config) GetWatchdogInterval() time.Duration {
	return time.Duration(c.Watchdog.Interval) * time.Second
}

// GetWatchdogTick returns one echo wait tick.
func (c *Config) GetWatchdogTick() time.Duration {
	return time.Duration(c.Watchdog.TickMillis) * time.Millisecond
}

// GetStatsInterval returns the statistics export period.
func (c *Config) GetStatsInterval() time.Duration {
	return time.Duration(c.InfluxDB.StatsInterval) * time.Second
}
