package bridge

import (
	"github.com/nerrad567/rvc-bridge/internal/devices"
)

// Availability payloads for the bridge status topic.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// brightnessScale tells the hub that brightness topics carry 0..100.
const brightnessScale = 100

// DiscoveryDevice groups entities under one hub device.
type DiscoveryDevice struct {
	Identifiers   []string `json:"identifiers"`
	Name          string   `json:"name"`
	Manufacturer  string   `json:"manufacturer,omitempty"`
	Model         string   `json:"model,omitempty"`
	SuggestedArea string   `json:"suggested_area,omitempty"`
	ViaDevice     string   `json:"via_device,omitempty"`
}

// DiscoveryConfig is the retained configuration message published once per
// device so the hub can create the entity.
// Topic: {discovery_prefix}/{component}/{bridge_id}/{device_id}/config
type DiscoveryConfig struct {
	Name     string `json:"name"`
	UniqueID string `json:"unique_id"`
	ObjectID string `json:"object_id"`

	StateTopic             string `json:"state_topic"`
	CommandTopic           string `json:"command_topic,omitempty"`
	BrightnessStateTopic   string `json:"brightness_state_topic,omitempty"`
	BrightnessCommandTopic string `json:"brightness_command_topic,omitempty"`
	BrightnessScale        int    `json:"brightness_scale,omitempty"`

	PayloadOn     string `json:"payload_on,omitempty"`
	PayloadOff    string `json:"payload_off,omitempty"`
	PayloadLock   string `json:"payload_lock,omitempty"`
	PayloadUnlock string `json:"payload_unlock,omitempty"`
	StateLocked   string `json:"state_locked,omitempty"`
	StateUnlocked string `json:"state_unlocked,omitempty"`

	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	Icon              string `json:"icon,omitempty"`

	AvailabilityTopic   string `json:"availability_topic"`
	PayloadAvailable    string `json:"payload_available"`
	PayloadNotAvailable string `json:"payload_not_available"`

	Device DiscoveryDevice `json:"device"`
}

// BuildDiscoveryConfig builds the configuration message for a device.
func BuildDiscoveryConfig(d *devices.Descriptor, bridgeID, statusTopic string) DiscoveryConfig {
	cfg := DiscoveryConfig{
		Name:                d.Name,
		UniqueID:            bridgeID + "_" + d.ID,
		ObjectID:            d.ID,
		StateTopic:          d.StateTopic,
		AvailabilityTopic:   statusTopic,
		PayloadAvailable:    PayloadOnline,
		PayloadNotAvailable: PayloadOffline,
		Device: DiscoveryDevice{
			Identifiers:   []string{bridgeID + "_" + d.ID},
			Name:          d.Name,
			Manufacturer:  d.Manufacturer,
			Model:         d.Model,
			SuggestedArea: d.Area,
			ViaDevice:     bridgeID,
		},
	}

	switch d.Type {
	case devices.CategoryLight, devices.CategorySwitch:
		cfg.CommandTopic = d.CommandTopic
		cfg.PayloadOn = d.PayloadOn
		cfg.PayloadOff = d.PayloadOff
		if d.HasBrightness() {
			cfg.BrightnessStateTopic = d.BrightnessStateTopic
			cfg.BrightnessCommandTopic = d.BrightnessCommandTopic
			cfg.BrightnessScale = brightnessScale
		}
	case devices.CategoryLock:
		cfg.CommandTopic = d.CommandTopic
		cfg.PayloadLock = d.PayloadLock
		cfg.PayloadUnlock = d.PayloadUnlock
		cfg.StateLocked = d.StateLocked
		cfg.StateUnlocked = d.StateUnlocked
	case devices.CategorySensor:
		cfg.UnitOfMeasurement = d.UnitOfMeasurement
		cfg.DeviceClass = d.DeviceClass
		cfg.Icon = d.Icon
	}
	return cfg
}

// DiscoveryTopic returns the config topic for a device.
func DiscoveryTopic(prefix, bridgeID string, d *devices.Descriptor) string {
	return prefix + "/" + string(d.Type) + "/" + bridgeID + "/" + d.ID + "/config"
}

// ReadingTopic returns the raw reading topic: {prefix}/{name}/{instance}.
func ReadingTopic(prefix, name, instance string) string {
	return prefix + "/" + name + "/" + instance
}
