package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// statsMeasurement is the InfluxDB measurement for bridge counters.
const statsMeasurement = "rvc_bridge"

// defaultStatsInterval is used when the exporter interval is unset.
const defaultStatsInterval = 60 * time.Second

// Stats counts bridge activity. A nil *Stats is valid and counts nothing.
type Stats struct {
	framesReceived   atomic.Uint64
	framesMalformed  atomic.Uint64
	framesDecoded    atomic.Uint64
	unknownDGN       atomic.Uint64
	unmatched        atomic.Uint64
	statesPublished  atomic.Uint64
	configsPublished atomic.Uint64
	publishErrors    atomic.Uint64
	commandsReceived atomic.Uint64
	commandsRejected atomic.Uint64
	framesSent       atomic.Uint64
	sendErrors       atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	FramesReceived   uint64 `json:"frames_received"`
	FramesMalformed  uint64 `json:"frames_malformed"`
	FramesDecoded    uint64 `json:"frames_decoded"`
	UnknownDGN       uint64 `json:"unknown_dgn"`
	Unmatched        uint64 `json:"unmatched"`
	StatesPublished  uint64 `json:"states_published"`
	ConfigsPublished uint64 `json:"configs_published"`
	PublishErrors    uint64 `json:"publish_errors"`
	CommandsReceived uint64 `json:"commands_received"`
	CommandsRejected uint64 `json:"commands_rejected"`
	FramesSent       uint64 `json:"frames_sent"`
	SendErrors       uint64 `json:"send_errors"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}
	return StatsSnapshot{
		FramesReceived:   s.framesReceived.Load(),
		FramesMalformed:  s.framesMalformed.Load(),
		FramesDecoded:    s.framesDecoded.Load(),
		UnknownDGN:       s.unknownDGN.Load(),
		Unmatched:        s.unmatched.Load(),
		StatesPublished:  s.statesPublished.Load(),
		ConfigsPublished: s.configsPublished.Load(),
		PublishErrors:    s.publishErrors.Load(),
		CommandsReceived: s.commandsReceived.Load(),
		CommandsRejected: s.commandsRejected.Load(),
		FramesSent:       s.framesSent.Load(),
		SendErrors:       s.sendErrors.Load(),
	}
}

// Fields returns the snapshot as InfluxDB fields.
func (s StatsSnapshot) Fields() map[string]interface{} {
	return map[string]interface{}{
		"frames_received":   int64(s.FramesReceived),
		"frames_malformed":  int64(s.FramesMalformed),
		"frames_decoded":    int64(s.FramesDecoded),
		"unknown_dgn":       int64(s.UnknownDGN),
		"unmatched":         int64(s.Unmatched),
		"states_published":  int64(s.StatesPublished),
		"configs_published": int64(s.ConfigsPublished),
		"publish_errors":    int64(s.PublishErrors),
		"commands_received": int64(s.CommandsReceived),
		"commands_rejected": int64(s.CommandsRejected),
		"frames_sent":       int64(s.FramesSent),
		"send_errors":       int64(s.SendErrors),
	}
}

func (s *Stats) incFramesReceived() {
	if s != nil {
		s.framesReceived.Add(1)
	}
}

func (s *Stats) incFramesMalformed() {
	if s != nil {
		s.framesMalformed.Add(1)
	}
}

func (s *Stats) incFramesDecoded() {
	if s != nil {
		s.framesDecoded.Add(1)
	}
}

func (s *Stats) incUnknownDGN() {
	if s != nil {
		s.unknownDGN.Add(1)
	}
}

func (s *Stats) incUnmatched() {
	if s != nil {
		s.unmatched.Add(1)
	}
}

func (s *Stats) incStatesPublished() {
	if s != nil {
		s.statesPublished.Add(1)
	}
}

func (s *Stats) incConfigsPublished() {
	if s != nil {
		s.configsPublished.Add(1)
	}
}

func (s *Stats) incPublishErrors() {
	if s != nil {
		s.publishErrors.Add(1)
	}
}

func (s *Stats) incCommandsReceived() {
	if s != nil {
		s.commandsReceived.Add(1)
	}
}

func (s *Stats) incCommandsRejected() {
	if s != nil {
		s.commandsRejected.Add(1)
	}
}

func (s *Stats) incFramesSent() {
	if s != nil {
		s.framesSent.Add(1)
	}
}

func (s *Stats) incSendErrors() {
	if s != nil {
		s.sendErrors.Add(1)
	}
}

// PointWriter writes a single time-series point.
// Implemented by *influxdb.Client.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time)
}

// StatsExporter periodically writes Stats snapshots to a PointWriter.
type StatsExporter struct {
	stats    *Stats
	writer   PointWriter
	interval time.Duration
	tags     map[string]string

	// mu guards running and stopped so Stop never races Run's start.
	mu       sync.Mutex
	running  bool
	stopped  bool
	done     chan struct{}
	finished chan struct{}
}

// NewStatsExporter creates an exporter tagged with the bridge ID.
//
// Parameters:
//   - stats: Counters to export
//   - writer: Destination for points (typically the InfluxDB client)
//   - bridgeID: Value of the "bridge" tag
//   - interval: Export period (default 60s when zero)
func NewStatsExporter(stats *Stats, writer PointWriter, bridgeID string, interval time.Duration) *StatsExporter {
	if interval <= 0 {
		interval = defaultStatsInterval
	}
	return &StatsExporter{
		stats:    stats,
		writer:   writer,
		interval: interval,
		tags:     map[string]string{"bridge": bridgeID},
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Run exports on every tick until ctx is cancelled or Stop is called.
// A final snapshot is written on exit. Run after Stop returns at once,
// and a second concurrent Run is rejected.
func (e *StatsExporter) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	if e.running {
		e.mu.Unlock()
		return ErrExporterRunning
	}
	e.running = true
	e.mu.Unlock()
	defer close(e.finished)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Export()
			return nil
		case <-e.done:
			e.Export()
			return nil
		case <-ticker.C:
			e.Export()
		}
	}
}

// Export writes one snapshot now.
func (e *StatsExporter) Export() {
	e.writer.WritePointWithTime(statsMeasurement, e.tags, e.stats.Snapshot().Fields(), time.Now())
}

// Stop ends Run and waits for it to return. It is safe to call before Run,
// concurrently with Run, and more than once.
func (e *StatsExporter) Stop() {
	e.mu.Lock()
	if !e.stopped {
		e.stopped = true
		close(e.done)
	}
	running := e.running
	e.mu.Unlock()

	if running {
		<-e.finished
	}
}
