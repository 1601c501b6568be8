package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
bridge:
  id: "coach"
  source_address: 100
  publish_readings: true
can:
  interface: "can1"
spec:
  registry_file: "spec/rvc.yml"
  devices_file: "/etc/rvc/devices.yml"
mqtt:
  broker:
    host: "broker.local"
    port: 1884
  qos: 0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.ID != "coach" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "coach")
	}
	if cfg.Bridge.SourceAddress != 100 || !cfg.Bridge.PublishReadings {
		t.Errorf("Bridge = %+v", cfg.Bridge)
	}
	if cfg.CAN.Interface != "can1" || cfg.CAN.Source != SourceCandump {
		t.Errorf("CAN = %+v", cfg.CAN)
	}
	if cfg.MQTT.Broker.Host != "broker.local" || cfg.MQTT.Broker.Port != 1884 || cfg.MQTT.QoS != 0 {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}

	// Derived topics follow the bridge ID.
	if cfg.MQTT.StatusTopic != "coach/status" {
		t.Errorf("StatusTopic = %q", cfg.MQTT.StatusTopic)
	}
	if cfg.MQTT.CheckTopic != "coach/check" {
		t.Errorf("CheckTopic = %q", cfg.MQTT.CheckTopic)
	}

	// Relative inputs resolve against the config directory.
	wantSpec := filepath.Join(filepath.Dir(path), "spec/rvc.yml")
	if cfg.Spec.RegistryFile != wantSpec {
		t.Errorf("RegistryFile = %q, want %q", cfg.Spec.RegistryFile, wantSpec)
	}
	if cfg.Spec.DevicesFile != "/etc/rvc/devices.yml" {
		t.Errorf("DevicesFile = %q", cfg.Spec.DevicesFile)
	}

	// Untouched sections keep defaults.
	if cfg.HomeAssistant.DiscoveryPrefix != "homeassistant" {
		t.Errorf("DiscoveryPrefix = %q", cfg.HomeAssistant.DiscoveryPrefix)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
bridge:
  id: ""
  priority: 9
can:
  source: "socketcan"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	// All problems are reported together.
	for _, want := range []string{"bridge.id", "bridge.priority", "can.source"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.applyDerived()
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing bridge id", func(c *Config) { c.Bridge.ID = "" }, true},
		{"wildcard in bridge id", func(c *Config) { c.Bridge.ID = "rvc/+" }, true},
		{"source address too high", func(c *Config) { c.Bridge.SourceAddress = 256 }, true},
		{"priority too high", func(c *Config) { c.Bridge.Priority = 8 }, true},
		{"default brightness zero", func(c *Config) { c.Bridge.DefaultBrightness = 0 }, true},
		{"default brightness over 100", func(c *Config) { c.Bridge.DefaultBrightness = 101 }, true},
		{"candump without interface", func(c *Config) { c.CAN.Interface = "" }, true},
		{"serial without port", func(c *Config) { c.CAN.Source = SourceSerial }, true},
		{"serial with port", func(c *Config) { c.CAN.Source = SourceSerial; c.CAN.SerialPort = "/dev/ttyUSB0" }, false},
		{"file without path", func(c *Config) { c.CAN.Source = SourceFile }, true},
		{"stdin", func(c *Config) { c.CAN.Source = SourceStdin; c.CAN.Interface = "" }, false},
		{"unknown source", func(c *Config) { c.CAN.Source = "slcan" }, true},
		{"missing registry file", func(c *Config) { c.Spec.RegistryFile = "" }, true},
		{"missing devices file", func(c *Config) { c.Spec.DevicesFile = "" }, true},
		{"missing broker host", func(c *Config) { c.MQTT.Broker.Host = "" }, true},
		{"invalid port", func(c *Config) { c.MQTT.Broker.Port = 70000 }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"watchdog without ticks", func(c *Config) { c.Watchdog.Enabled = true; c.Watchdog.AckTicks = 0 }, true},
		{"watchdog enabled", func(c *Config) { c.Watchdog.Enabled = true }, false},
		{"database without path", func(c *Config) { c.Database.Enabled = true; c.Database.Path = "" }, true},
		{"influxdb without url", func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Org = "o"; c.InfluxDB.Bucket = "b" }, true},
		{"influxdb without bucket", func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.URL = "http://localhost:8086"
			c.InfluxDB.Org = "o"
		}, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		Bridge:   BridgeConfig{CommandTimeout: 5},
		Watchdog: WatchdogConfig{Interval: 15, TickMillis: 100},
		InfluxDB: InfluxDBConfig{StatsInterval: 60},
	}

	if got := cfg.GetCommandTimeout(); got != 5*time.Second {
		t.Errorf("GetCommandTimeout() = %v", got)
	}
	if got := cfg.GetWatchdogInterval(); got != 15*time.Second {
		t.Errorf("GetWatchdogInterval() = %v", got)
	}
	if got := cfg.GetWatchdogTick(); got != 100*time.Millisecond {
		t.Errorf("GetWatchdogTick() = %v", got)
	}
	if got := cfg.GetStatsInterval(); got != time.Minute {
		t.Errorf("GetStatsInterval() = %v", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("RVCBRIDGE_BRIDGE_ID", "motorhome")
	t.Setenv("RVCBRIDGE_CAN_INTERFACE", "vcan0")
	t.Setenv("RVCBRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("RVCBRIDGE_MQTT_PORT", "8883")
	t.Setenv("RVCBRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("RVCBRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("RVCBRIDGE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("RVCBRIDGE_WATCHDOG_ENABLED", "true")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Bridge.ID != "motorhome" {
		t.Errorf("Bridge.ID = %q", cfg.Bridge.ID)
	}
	if cfg.CAN.Interface != "vcan0" {
		t.Errorf("CAN.Interface = %q", cfg.CAN.Interface)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" || cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker = %+v", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v", cfg.MQTT.Auth)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q", cfg.InfluxDB.Token)
	}
	if !cfg.Watchdog.Enabled {
		t.Error("Watchdog.Enabled = false, want true")
	}
}

func TestApplyEnvOverrides_InvalidNumber(t *testing.T) {
	t.Setenv("RVCBRIDGE_MQTT_PORT", "not-a-port")
	if err := applyEnvOverrides(defaultConfig()); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric port")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bridge.SourceAddress != 0x63 {
		t.Errorf("SourceAddress = %#x, want 0x63", cfg.Bridge.SourceAddress)
	}
	if cfg.Bridge.Priority != 6 {
		t.Errorf("Priority = %d, want 6", cfg.Bridge.Priority)
	}
	if cfg.Bridge.DefaultBrightness != 50 {
		t.Errorf("DefaultBrightness = %d, want 50", cfg.Bridge.DefaultBrightness)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Watchdog.Enabled || cfg.Database.Enabled || cfg.InfluxDB.Enabled {
		t.Error("optional features should default to disabled")
	}
}
