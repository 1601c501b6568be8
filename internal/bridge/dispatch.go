package bridge

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/nerrad567/rvc-bridge/internal/devices"
	"github.com/nerrad567/rvc-bridge/internal/rvc"
)

// Publisher publishes MQTT messages.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// derivedState is what a reading means for one device.
type derivedState struct {
	State         string
	Brightness    int
	HasBrightness bool
}

// Dispatcher maps decoded readings to devices and publishes config and state.
//
// Thread Safety: Dispatch is called from the reader goroutine and Replay from
// an MQTT callback; both are safe to run concurrently.
type Dispatcher struct {
	logHolder

	cfg   Config
	dir   *devices.Directory
	store *Store
	pub   Publisher
	stats *Stats

	// missing holds (dgn, instance) pairs already reported as unconfigured.
	missing   map[string]struct{}
	missingMu sync.Mutex
}

// NewDispatcher creates a dispatcher. stats may be nil.
func NewDispatcher(cfg Config, dir *devices.Directory, store *Store, pub Publisher, stats *Stats) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		cfg:     cfg,
		dir:     dir,
		store:   store,
		pub:     pub,
		stats:   stats,
		missing: make(map[string]struct{}),
	}
}

// Dispatch publishes the reading to every matching device. It reports whether
// any device matched.
func (d *Dispatcher) Dispatch(r *rvc.Reading) bool {
	key, ok := r.Instance()
	if !ok {
		key = devices.DefaultInstance
	}

	if d.cfg.PublishReadings {
		d.publishReading(r, key)
	}

	descs, found := d.dir.Lookup(r.DGN, key)
	if !found {
		d.stats.incUnmatched()
		d.reportMissing(r, key)
		return false
	}

	for _, desc := range descs {
		d.publishDevice(desc, r)
	}
	return true
}

// reportMissing logs an unconfigured (dgn, instance) pair once per process.
func (d *Dispatcher) reportMissing(r *rvc.Reading, instance string) {
	k := r.DGN.String() + "/" + instance

	d.missingMu.Lock()
	_, seen := d.missing[k]
	if !seen {
		d.missing[k] = struct{}{}
	}
	d.missingMu.Unlock()

	if !seen {
		d.logInfo("missing device config", "dgn", r.DGN.String(), "name", r.Name, "instance", instance)
	}
}

func (d *Dispatcher) publishDevice(desc *devices.Descriptor, r *rvc.Reading) {
	st, ok := deriveState(desc, r)
	if !ok {
		d.logDebug("status field not in reading",
			"device_id", desc.ID, "field", desc.StatusField, "dgn", r.DGN.String())
		return
	}

	if !d.store.Get(desc.ID).ConfigSent {
		if err := d.publishConfig(desc); err != nil {
			d.logError("failed to publish device config", err, "device_id", desc.ID)
		} else {
			d.store.MarkConfigSent(desc.ID)
		}
	}

	changed := d.store.CompareAndSetState(desc.ID, st.State, st.Brightness)
	if changed {
		d.logInfo("device state changed",
			"device_id", desc.ID, "state", st.State, "brightness", st.Brightness)
	} else {
		d.logDebug("device state unchanged", "device_id", desc.ID, "state", st.State)
		if d.cfg.PublishOnChangeOnly {
			return
		}
	}

	d.publishState(desc, st)
}

func (d *Dispatcher) publishConfig(desc *devices.Descriptor) error {
	payload, err := json.Marshal(BuildDiscoveryConfig(desc, d.cfg.ID, d.cfg.StatusTopic))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	topic := DiscoveryTopic(d.cfg.DiscoveryPrefix, d.cfg.ID, desc)
	if err := d.pub.Publish(topic, payload, d.cfg.QoS, true); err != nil {
		d.stats.incPublishErrors()
		return err
	}
	d.stats.incConfigsPublished()
	d.logInfo("published device config", "device_id", desc.ID, "topic", topic)
	return nil
}

func (d *Dispatcher) publishState(desc *devices.Descriptor, st derivedState) {
	if err := d.pub.Publish(desc.StateTopic, []byte(st.State), d.cfg.QoS, true); err != nil {
		d.stats.incPublishErrors()
		d.logError("failed to publish state", err, "device_id", desc.ID)
		return
	}
	if st.HasBrightness && desc.BrightnessStateTopic != "" {
		b := []byte(strconv.Itoa(st.Brightness))
		if err := d.pub.Publish(desc.BrightnessStateTopic, b, d.cfg.QoS, true); err != nil {
			d.stats.incPublishErrors()
			d.logError("failed to publish brightness", err, "device_id", desc.ID)
			return
		}
	}
	d.stats.incStatesPublished()
}

func (d *Dispatcher) publishReading(r *rvc.Reading, instance string) {
	payload, err := json.Marshal(r)
	if err != nil {
		d.logError("failed to marshal reading", err, "dgn", r.DGN.String())
		return
	}
	topic := ReadingTopic(d.cfg.ReadingPrefix, r.Name, instance)
	if err := d.pub.Publish(topic, payload, d.cfg.QoS, false); err != nil {
		d.stats.incPublishErrors()
		d.logError("failed to publish reading", err, "topic", topic)
	}
}

// Replay republishes config, and the last known state, for every device whose
// config was already sent. Called when the hub announces it is online.
func (d *Dispatcher) Replay() int {
	count := 0
	for _, id := range d.store.ConfiguredDevices() {
		desc, err := d.dir.Device(id)
		if err != nil {
			continue
		}
		if err := d.publishConfig(desc); err != nil {
			d.logError("failed to replay device config", err, "device_id", id)
			continue
		}
		count++

		st := d.store.Get(id)
		if st.HasState {
			d.publishState(desc, derivedState{
				State:         st.State,
				Brightness:    st.Brightness,
				HasBrightness: desc.HasBrightness(),
			})
		}
	}
	d.logInfo("replayed device configs", "count", count)
	return count
}

// deriveState computes a device's state from a reading. It returns false when
// the reading lacks the device's status field.
func deriveState(d *devices.Descriptor, r *rvc.Reading) (derivedState, bool) {
	v, ok := r.Get(d.StatusField)
	if !ok {
		return derivedState{}, false
	}

	switch d.Type {
	case devices.CategoryLight, devices.CategorySwitch:
		pct := brightnessPercent(v)
		st := derivedState{State: d.PayloadOff}
		if pct > 0 {
			st.State = d.PayloadOn
		}
		if d.HasBrightness() {
			st.Brightness = pct
			st.HasBrightness = true
		}
		return st, true

	case devices.CategoryLock:
		text := v.String()
		if def, ok := r.Get(rvc.DefinitionKey(d.StatusField)); ok {
			text = def.String()
		}
		if text == d.LockedValue {
			return derivedState{State: d.StateLocked}, true
		}
		return derivedState{State: d.StateUnlocked}, true

	default:
		return derivedState{State: v.String()}, true
	}
}

// brightnessPercent clamps a status value to 0..100; non-numeric is 0.
func brightnessPercent(v rvc.Value) int {
	n, ok := v.Number()
	if !ok {
		return 0
	}
	n = math.Max(0, math.Min(100, n))
	return int(math.Floor(n + 0.5))
}
