// Package devices holds the Device Directory: the mapping from a decoded
// message (DGN, instance) to the devices it reports on.
package devices

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/rvc-bridge/internal/rvc"
)

// Category is the kind of device a descriptor represents.
type Category string

// Device categories.
const (
	CategoryLight  Category = "light"
	CategorySwitch Category = "switch"
	CategoryLock   Category = "lock"
	CategorySensor Category = "sensor"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryLight, CategorySwitch, CategoryLock, CategorySensor:
		return true
	}
	return false
}

// IDPlaceholder is substituted with the device key in topic templates.
const IDPlaceholder = "{id}"

// DefaultInstance is the wildcard instance key.
const DefaultInstance = "default"

// Payload and field defaults.
const (
	DefaultPayloadOn       = "ON"
	DefaultPayloadOff      = "OFF"
	DefaultPayloadLock     = "LOCK"
	DefaultPayloadUnlock   = "UNLOCK"
	DefaultStateLocked     = "LOCKED"
	DefaultStateUnlocked   = "UNLOCKED"
	DefaultLockedValue     = "load is locked"
	DefaultLockDuration    = 1
	DefaultStatusField     = "operating status (brightness)"
	DefaultLockStatusField = "lock status"
)

// Descriptor describes one addressable device.
//
// Descriptors are immutable after the directory is loaded. Topic fields hold
// resolved topics; the {id} placeholder has already been substituted.
type Descriptor struct {
	// ID is the stable device key, unique across the directory.
	ID string `yaml:"id"`

	// Name is the human label. Defaults to ID.
	Name string `yaml:"name"`

	// Type is the device category.
	Type Category `yaml:"type"`

	// Dimmable marks a light that accepts brightness commands.
	Dimmable bool `yaml:"dimmable"`

	Area         string `yaml:"area"`
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`

	// StatusField is the reading field that carries the device state.
	StatusField string `yaml:"status_field"`

	// Sensor presentation hints.
	UnitOfMeasurement string `yaml:"unit_of_measurement"`
	DeviceClass       string `yaml:"device_class"`
	Icon              string `yaml:"icon"`

	StateTopic             string `yaml:"state_topic"`
	CommandTopic           string `yaml:"command_topic"`
	BrightnessStateTopic   string `yaml:"brightness_state_topic"`
	BrightnessCommandTopic string `yaml:"brightness_command_topic"`

	PayloadOn     string `yaml:"payload_on"`
	PayloadOff    string `yaml:"payload_off"`
	PayloadLock   string `yaml:"payload_lock"`
	PayloadUnlock string `yaml:"payload_unlock"`
	StateLocked   string `yaml:"state_locked"`
	StateUnlocked string `yaml:"state_unlocked"`

	// LockedValue is the status definition text that means "locked".
	LockedValue string `yaml:"locked_value"`

	// Instance overrides the instance commands are addressed to.
	Instance *int `yaml:"instance"`

	// OpposingInstance is the paired actuator a lock command must stop first.
	OpposingInstance *int `yaml:"opposing_instance"`

	// LockDuration is the duration byte for lock/unlock frames.
	LockDuration *int `yaml:"lock_duration"`

	// DGN and InstanceKey record where the descriptor was listed.
	DGN         rvc.DGN `yaml:"-"`
	InstanceKey string  `yaml:"-"`
}

// Key identifies the descriptor's directory slot.
func (d *Descriptor) Key() string {
	return d.DGN.String() + "/" + d.InstanceKey
}

// CommandInstance returns the instance commands are addressed to: the
// explicit instance, else the numeric instance key it is listed under.
// Keys outside 0-255 are rejected rather than truncated.
func (d *Descriptor) CommandInstance() (uint8, error) {
	if d.Instance != nil {
		return uint8(*d.Instance), nil
	}
	n, err := strconv.ParseUint(d.InstanceKey, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: device %s listed under %q", ErrNoCommandInstance, d.ID, d.InstanceKey)
	}
	return uint8(n), nil
}

// OpposingCommandInstance returns the paired instance for locks.
func (d *Descriptor) OpposingCommandInstance() (uint8, error) {
	if d.OpposingInstance == nil {
		return 0, fmt.Errorf("%w: device %s has no opposing_instance", ErrNoCommandInstance, d.ID)
	}
	return uint8(*d.OpposingInstance), nil
}

// LockDurationByte returns the duration byte used for lock/unlock frames.
func (d *Descriptor) LockDurationByte() uint8 {
	if d.LockDuration == nil {
		return DefaultLockDuration
	}
	return uint8(*d.LockDuration)
}

// Commandable reports whether the device accepts commands from the hub.
func (d *Descriptor) Commandable() bool {
	return d.Type == CategoryLight || d.Type == CategorySwitch || d.Type == CategoryLock
}

// HasBrightness reports whether brightness topics apply.
func (d *Descriptor) HasBrightness() bool {
	return d.Type == CategoryLight && d.Dimmable
}

// ExpandTopic substitutes the device key into a topic template.
func ExpandTopic(template, id string) string {
	return strings.ReplaceAll(template, IDPlaceholder, id)
}

// applyDefaults fills unset fields and resolves topic templates.
func (d *Descriptor) applyDefaults(base string) {
	if d.Name == "" {
		d.Name = d.ID
	}
	if d.StatusField == "" {
		switch d.Type {
		case CategoryLock:
			d.StatusField = DefaultLockStatusField
		case CategoryLight, CategorySwitch:
			d.StatusField = DefaultStatusField
		}
	}

	prefix := strings.TrimSuffix(base, "/") + "/" + IDPlaceholder
	setDefault(&d.StateTopic, prefix+"/state")
	if d.Commandable() {
		setDefault(&d.CommandTopic, prefix+"/set")
	}
	if d.HasBrightness() {
		setDefault(&d.BrightnessStateTopic, prefix+"/brightness")
		setDefault(&d.BrightnessCommandTopic, prefix+"/brightness/set")
	}

	d.StateTopic = ExpandTopic(d.StateTopic, d.ID)
	d.CommandTopic = ExpandTopic(d.CommandTopic, d.ID)
	d.BrightnessStateTopic = ExpandTopic(d.BrightnessStateTopic, d.ID)
	d.BrightnessCommandTopic = ExpandTopic(d.BrightnessCommandTopic, d.ID)

	setDefault(&d.PayloadOn, DefaultPayloadOn)
	setDefault(&d.PayloadOff, DefaultPayloadOff)
	if d.Type == CategoryLock {
		setDefault(&d.PayloadLock, DefaultPayloadLock)
		setDefault(&d.PayloadUnlock, DefaultPayloadUnlock)
		setDefault(&d.StateLocked, DefaultStateLocked)
		setDefault(&d.StateUnlocked, DefaultStateUnlocked)
		setDefault(&d.LockedValue, DefaultLockedValue)
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// validate reports every problem with the descriptor.
func (d *Descriptor) validate() []string {
	var errs []string
	where := d.Key()

	if d.ID == "" {
		errs = append(errs, where+": id is required")
	} else if !validID(d.ID) {
		errs = append(errs, fmt.Sprintf("%s: id %q must contain only letters, digits, '_' or '-'", where, d.ID))
	}
	if !d.Type.Valid() {
		errs = append(errs, fmt.Sprintf("%s: device %s: type %q must be light, switch, lock or sensor", where, d.ID, d.Type))
	}
	if d.Dimmable && d.Type != CategoryLight {
		errs = append(errs, fmt.Sprintf("%s: device %s: only lights can be dimmable", where, d.ID))
	}
	if d.Type == CategorySensor && d.StatusField == "" {
		errs = append(errs, fmt.Sprintf("%s: device %s: sensors need status_field", where, d.ID))
	}
	if d.Commandable() {
		if _, err := d.CommandInstance(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: device %s: commands need a numeric instance 0-255, listed under %q", where, d.ID, d.InstanceKey))
		}
	}
	if d.Type == CategoryLock && d.OpposingInstance == nil {
		errs = append(errs, fmt.Sprintf("%s: device %s: locks need opposing_instance", where, d.ID))
	}
	for _, p := range []struct {
		name string
		v    *int
	}{{"instance", d.Instance}, {"opposing_instance", d.OpposingInstance}, {"lock_duration", d.LockDuration}} {
		if p.v != nil && (*p.v < 0 || *p.v > 255) {
			errs = append(errs, fmt.Sprintf("%s: device %s: %s %d out of range 0-255", where, d.ID, p.name, *p.v))
		}
	}
	return errs
}

func validID(id string) bool {
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
