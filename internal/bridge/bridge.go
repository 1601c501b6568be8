package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/rvc-bridge/internal/devices"
	"github.com/nerrad567/rvc-bridge/internal/rvc"
)

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Options holds the dependencies for creating a bridge.
type Options struct {
	// Config is the bridge configuration.
	Config Config

	// Decoder decodes payloads against the loaded Spec Registry.
	Decoder *rvc.Decoder

	// Directory is the loaded Device Directory.
	Directory *devices.Directory

	// MQTTClient is the broker client.
	MQTTClient MQTTClient

	// Sink writes frames to the bus.
	Sink FrameSink

	// Recorder is optional; if nil, sightings are not recorded.
	Recorder SightingRecorder

	// Stats is optional; one is created if nil.
	Stats *Stats

	// Logger is optional structured logger.
	Logger Logger
}

// Bridge orchestrates bidirectional translation between the RV-C bus and MQTT.
// It handles:
//   - Decoding capture lines and publishing device config and state
//   - Encoding hub commands into frame sequences and sending them to the bus
//   - Replaying config when the hub comes back online
//
// Thread Safety: All methods are safe for concurrent use. HandleLine is
// expected to be called from a single reader goroutine.
type Bridge struct {
	logHolder

	cfg        Config
	decoder    *rvc.Decoder
	dir        *devices.Directory
	mqtt       MQTTClient
	store      *Store
	dispatcher *Dispatcher
	encoder    *Encoder
	sender     *Sender
	recorder   SightingRecorder
	stats      *Stats

	started atomic.Bool

	// Shutdown coordination
	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once

	// sendMu orders wg.Add in track against Stop's wg.Wait.
	sendMu   sync.Mutex
	stopping bool
}

// New creates a bridge. Call Start to subscribe to command topics.
func New(opts Options) (*Bridge, error) {
	if opts.Decoder == nil {
		return nil, errors.New("decoder is required")
	}
	if opts.Directory == nil {
		return nil, errors.New("device directory is required")
	}
	if opts.MQTTClient == nil {
		return nil, errors.New("MQTT client is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("frame sink is required")
	}

	cfg := opts.Config
	cfg.applyDefaults()

	stats := opts.Stats
	if stats == nil {
		stats = &Stats{}
	}

	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:        cfg,
		decoder:    opts.Decoder,
		dir:        opts.Directory,
		mqtt:       opts.MQTTClient,
		store:      store,
		dispatcher: NewDispatcher(cfg, opts.Directory, store, opts.MQTTClient, stats),
		encoder:    NewEncoder(cfg.Encoder, store),
		sender:     NewSender(opts.Sink, stats),
		recorder:   opts.Recorder,
		stats:      stats,
		ctx:        ctx,
		ctxCancel:  cancel,
	}
	if opts.Logger != nil {
		b.SetLogger(opts.Logger)
	}
	return b, nil
}

// SetLogger sets the logger for the bridge and its dispatcher.
func (b *Bridge) SetLogger(logger Logger) {
	b.logHolder.SetLogger(logger)
	b.dispatcher.SetLogger(logger)
}

// Start subscribes to the hub status topic and every device command topic.
func (b *Bridge) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := b.mqtt.Subscribe(b.cfg.HubStatusTopic, b.cfg.QoS, b.handleHubStatus); err != nil {
		return fmt.Errorf("subscribe to hub status: %w", err)
	}
	b.logInfo("subscribed to hub status", "topic", b.cfg.HubStatusTopic)

	n, err := b.subscribeCommands()
	if err != nil {
		return err
	}

	b.started.Store(true)
	b.logInfo("bridge started",
		"bridge_id", b.cfg.ID,
		"devices", b.dir.Len(),
		"command_topics", n,
		"spec_entries", b.decoder.Registry().Len())
	return nil
}

// Stop cancels in-flight commands and waits for them to finish.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.sendMu.Lock()
		b.stopping = true
		b.sendMu.Unlock()

		b.ctxCancel()
		b.wg.Wait()
		b.started.Store(false)
		b.logInfo("bridge stopped")
	})
}

// HandleLine processes one capture line (see rvc.ParseLine). Malformed lines and unknown DGNs
// are counted and logged, never returned.
func (b *Bridge) HandleLine(line string) {
	b.stats.incFramesReceived()

	frame, err := rvc.ParseLine(line)
	if err != nil {
		b.stats.incFramesMalformed()
		b.logDebug("skipping malformed line", "line", line, "error", err)
		return
	}
	b.handleFrame(frame)
}

// HandleFrame processes one already-parsed frame.
func (b *Bridge) HandleFrame(frame rvc.Frame) {
	b.stats.incFramesReceived()
	b.handleFrame(frame)
}

func (b *Bridge) handleFrame(frame rvc.Frame) {
	reading, err := b.decoder.Decode(frame.ID.DGN, frame.DataHex())
	if err != nil {
		if errors.Is(err, rvc.ErrUnknownDGN) {
			b.stats.incUnknownDGN()
			b.logDebug("unknown DGN", "dgn", frame.ID.DGN.String(), "source", frame.ID.Source)
		} else {
			b.logError("decode failed", err, "dgn", frame.ID.DGN.String())
		}
		b.record(frame, "", "", false)
		return
	}
	b.stats.incFramesDecoded()

	matched := b.dispatcher.Dispatch(reading)

	instance, ok := reading.Instance()
	if !ok {
		instance = devices.DefaultInstance
	}
	b.record(frame, instance, reading.Name, matched)
}

func (b *Bridge) record(frame rvc.Frame, instance, name string, matched bool) {
	if b.recorder == nil {
		return
	}
	b.recorder.RecordSighting(Sighting{
		DGN:      frame.ID.DGN,
		Instance: instance,
		Source:   frame.ID.Source,
		Name:     name,
		Matched:  matched,
	})
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() StatsSnapshot {
	return b.stats.Snapshot()
}

// DeviceState returns the stored state for a device key.
func (b *Bridge) DeviceState(id string) DeviceState {
	return b.store.Get(id)
}
