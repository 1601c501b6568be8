package bridge

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/nerrad567/rvc-bridge/internal/devices"
	"github.com/nerrad567/rvc-bridge/internal/rvc"
)

// DefaultBrightness is recalled by a bare ON when no brightness was ever commanded.
const DefaultBrightness = 50

// Encoder turns hub commands into ordered DC_DIMMER_COMMAND_2 frame sequences.
// It reads and writes remembered brightness through the shared Store.
type Encoder struct {
	id                rvc.ArbitrationID
	store             *Store
	defaultBrightness int
}

// EncoderConfig holds the encoder's addressing and defaults.
type EncoderConfig struct {
	// Priority is the CAN priority of outgoing frames. Zero is a valid
	// priority and is used as given.
	Priority uint8

	// SourceAddress is the source byte of outgoing frames. Zero is a valid
	// address and is used as given.
	SourceAddress uint8

	// DefaultBrightness is used by a bare ON before any brightness command.
	DefaultBrightness int
}

// DefaultEncoderConfig returns the stock addressing: priority 6, source 0x63.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		Priority:          rvc.DefaultCommandPriority,
		SourceAddress:     rvc.DefaultSourceAddress,
		DefaultBrightness: DefaultBrightness,
	}
}

// NewEncoder creates an encoder sharing state with the dispatcher's store.
func NewEncoder(cfg EncoderConfig, store *Store) *Encoder {
	def := cfg.DefaultBrightness
	if def < 1 || def > 100 {
		def = DefaultBrightness
	}
	return &Encoder{
		id:                rvc.CommandID(cfg.Priority, cfg.SourceAddress),
		store:             store,
		defaultBrightness: def,
	}
}

// ID returns the arbitration identifier used for every outgoing frame.
func (e *Encoder) ID() rvc.ArbitrationID {
	return e.id
}

// EncodeState encodes an ON/OFF command.
//
// Dimmable lights turned on recall the last commanded brightness with a single
// set-level frame. Other lights and switches turn on with an on-duration frame.
// OFF is always a single off frame and leaves remembered brightness alone.
func (e *Encoder) EncodeState(d *devices.Descriptor, on bool) ([]rvc.Frame, error) {
	if d.Type != devices.CategoryLight && d.Type != devices.CategorySwitch {
		return nil, fmt.Errorf("%w: %s is a %s", ErrUnsupportedDevice, d.ID, d.Type)
	}
	inst, err := d.CommandInstance()
	if err != nil {
		return nil, err
	}

	if !on {
		return []rvc.Frame{e.frame(inst, rvc.LevelNotApplicable, rvc.CmdOff, rvc.DurationDefault)}, nil
	}

	if d.HasBrightness() {
		pct := e.store.RememberedBrightness(d.ID, e.defaultBrightness)
		return []rvc.Frame{e.frame(inst, rvc.LevelForBrightness(pct), rvc.CmdSetLevel, rvc.DurationDefault)}, nil
	}
	return []rvc.Frame{e.frame(inst, rvc.LevelFull, rvc.CmdOnDuration, rvc.DurationDefault)}, nil
}

// EncodeBrightness encodes an explicit brightness command (0..100).
//
// The set-level frame is followed by the finalization pair, a ramp stop then a
// stop, so the load does not keep ramping. Levels 1..100 are remembered.
func (e *Encoder) EncodeBrightness(d *devices.Descriptor, pct int) ([]rvc.Frame, error) {
	if !d.HasBrightness() {
		return nil, fmt.Errorf("%w: %s is not dimmable", ErrUnsupportedDevice, d.ID)
	}
	if pct < 0 || pct > 100 {
		return nil, fmt.Errorf("%w: %d outside 0..100", ErrInvalidBrightness, pct)
	}
	inst, err := d.CommandInstance()
	if err != nil {
		return nil, err
	}

	frames := []rvc.Frame{
		e.frame(inst, rvc.LevelForBrightness(pct), rvc.CmdSetLevel, rvc.DurationDefault),
		e.frame(inst, rvc.LevelNotApplicable, rvc.CmdRampUpDown, rvc.DurationNone),
		e.frame(inst, rvc.LevelNotApplicable, rvc.CmdStop, rvc.DurationNone),
	}
	e.store.RememberBrightness(d.ID, pct)
	return frames, nil
}

// EncodeLock encodes a lock (lock=true) or unlock command.
//
// Lock drives the device's instance and unlock drives the opposing instance.
// The instance not being driven is stopped first.
func (e *Encoder) EncodeLock(d *devices.Descriptor, lock bool) ([]rvc.Frame, error) {
	if d.Type != devices.CategoryLock {
		return nil, fmt.Errorf("%w: %s is not a lock", ErrUnsupportedDevice, d.ID)
	}
	inst, err := d.CommandInstance()
	if err != nil {
		return nil, err
	}
	opposing, err := d.OpposingCommandInstance()
	if err != nil {
		return nil, err
	}

	drive, stop := inst, opposing
	if !lock {
		drive, stop = opposing, inst
	}

	return []rvc.Frame{
		e.frame(stop, rvc.LevelNotApplicable, rvc.CmdStop, rvc.DurationNone),
		e.frame(drive, rvc.LevelFull, rvc.CmdOnDuration, d.LockDurationByte()),
	}, nil
}

// EncodePayload dispatches a raw command-topic payload for a device.
func (e *Encoder) EncodePayload(d *devices.Descriptor, payload string) ([]rvc.Frame, error) {
	p := strings.TrimSpace(payload)

	switch d.Type {
	case devices.CategoryLock:
		switch {
		case strings.EqualFold(p, d.PayloadLock):
			return e.EncodeLock(d, true)
		case strings.EqualFold(p, d.PayloadUnlock):
			return e.EncodeLock(d, false)
		}
	case devices.CategoryLight, devices.CategorySwitch:
		switch {
		case strings.EqualFold(p, d.PayloadOn):
			return e.EncodeState(d, true)
		case strings.EqualFold(p, d.PayloadOff):
			return e.EncodeState(d, false)
		}
	default:
		return nil, fmt.Errorf("%w: %s is a %s", ErrUnsupportedDevice, d.ID, d.Type)
	}
	return nil, fmt.Errorf("%w: %q for %s", ErrInvalidCommand, p, d.ID)
}

func (e *Encoder) frame(instance, level uint8, cmd rvc.DimmerCommand, duration uint8) rvc.Frame {
	return rvc.DimmerFrame{
		Instance: instance,
		Level:    level,
		Command:  cmd,
		Duration: duration,
	}.Encode(e.id)
}

// ParseBrightness parses a brightness payload ("75", "75.4", " 80 ") into
// 0..100, rounding halves up.
func ParseBrightness(payload string) (int, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty payload", ErrInvalidBrightness)
	}
	f, err := cast.ToFloat64E(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidBrightness, payload, err)
	}
	if math.IsNaN(f) || f < 0 || f > 100 {
		return 0, fmt.Errorf("%w: %q outside 0..100", ErrInvalidBrightness, payload)
	}
	return int(math.Floor(f + 0.5)), nil
}
