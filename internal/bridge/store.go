package bridge

import (
	"sort"
	"sync"
)

// DeviceState is the mutable annex kept for each device key.
type DeviceState struct {
	// ConfigSent is true once the discovery config has been published.
	ConfigSent bool

	// HasState is true once a state has been derived from the bus.
	HasState bool

	// State is the last published state payload ("ON", "LOCKED", "21.5", ...).
	State string

	// Brightness is the last published brightness, 0..100.
	Brightness int

	// Commanded is the last brightness commanded from the hub (1..100), 0 if never.
	Commanded int
}

// Store holds per-device state shared by the dispatcher and the encoder.
//
// Thread Safety: each device key has its own lock; operations on different
// keys never block each other.
type Store struct {
	mu      sync.Mutex
	entries map[string]*storeEntry
}

type storeEntry struct {
	mu    sync.Mutex
	state DeviceState
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*storeEntry)}
}

func (s *Store) entry(id string) *storeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		e = &storeEntry{}
		s.entries[id] = e
	}
	return e
}

// Get returns a copy of a device's state.
func (s *Store) Get(id string) DeviceState {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Update applies fn to a device's state atomically and returns the result.
func (s *Store) Update(id string, fn func(*DeviceState)) DeviceState {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.state)
	return e.state
}

// MarkConfigSent records that config was published. It returns true only for
// the first call per device key.
func (s *Store) MarkConfigSent(id string) bool {
	first := false
	s.Update(id, func(st *DeviceState) {
		if !st.ConfigSent {
			st.ConfigSent = true
			first = true
		}
	})
	return first
}

// CompareAndSetState stores a derived state and reports whether it differs
// from the previous one.
func (s *Store) CompareAndSetState(id, state string, brightness int) bool {
	changed := false
	s.Update(id, func(st *DeviceState) {
		changed = !st.HasState || st.State != state || st.Brightness != brightness
		st.HasState = true
		st.State = state
		st.Brightness = brightness
	})
	return changed
}

// RememberBrightness records the last commanded brightness. Values outside
// 1..100 are ignored so that "off" never overwrites the recall level.
func (s *Store) RememberBrightness(id string, pct int) {
	if pct < 1 || pct > 100 {
		return
	}
	s.Update(id, func(st *DeviceState) { st.Commanded = pct })
}

// RememberedBrightness returns the last commanded brightness, or def.
func (s *Store) RememberedBrightness(id string, def int) int {
	st := s.Get(id)
	if st.Commanded == 0 {
		return def
	}
	return st.Commanded
}

// ConfiguredDevices lists device keys whose config has been published.
func (s *Store) ConfiguredDevices() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	entries := make([]*storeEntry, 0, len(s.entries))
	for id, e := range s.entries {
		ids = append(ids, id)
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]string, 0, len(ids))
	for i, e := range entries {
		e.mu.Lock()
		sent := e.state.ConfigSent
		e.mu.Unlock()
		if sent {
			out = append(out, ids[i])
		}
	}
	sort.Strings(out)
	return out
}
