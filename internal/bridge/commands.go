package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/rvc-bridge/internal/devices"
	"github.com/nerrad567/rvc-bridge/internal/rvc"
)

// Command kinds, used in logs.
const (
	commandKindState      = "state"
	commandKindBrightness = "brightness"
)

// subscribeCommands subscribes to each commandable device's topics and
// returns the number of topics subscribed.
func (b *Bridge) subscribeCommands() (int, error) {
	n := 0
	for _, desc := range b.dir.All() {
		if !desc.Commandable() || desc.CommandTopic == "" {
			continue
		}
		d := desc

		if err := b.mqtt.Subscribe(d.CommandTopic, b.cfg.QoS, func(_ string, payload []byte) {
			b.handleCommand(d, commandKindState, payload)
		}); err != nil {
			return n, fmt.Errorf("subscribe to %s: %w", d.CommandTopic, err)
		}
		n++

		if d.HasBrightness() && d.BrightnessCommandTopic != "" {
			if err := b.mqtt.Subscribe(d.BrightnessCommandTopic, b.cfg.QoS, func(_ string, payload []byte) {
				b.handleCommand(d, commandKindBrightness, payload)
			}); err != nil {
				return n, fmt.Errorf("subscribe to %s: %w", d.BrightnessCommandTopic, err)
			}
			n++
		}
	}
	return n, nil
}

// handleCommand encodes and sends one hub command. Errors are logged; a
// rejected payload affects only this command.
func (b *Bridge) handleCommand(d *devices.Descriptor, kind string, payload []byte) {
	b.stats.incCommandsReceived()
	commandID := uuid.NewString()

	frames, err := b.encode(d, kind, string(payload))
	if err != nil {
		b.stats.incCommandsRejected()
		b.logWarn("rejected command",
			"command_id", commandID,
			"device_id", d.ID,
			"kind", kind,
			"payload", string(payload),
			"error", err)
		return
	}

	b.logInfo("received command",
		"command_id", commandID,
		"device_id", d.ID,
		"kind", kind,
		"payload", string(payload),
		"frames", len(frames))

	if err := b.send(frames); err != nil {
		b.logError("command send failed", err, "command_id", commandID, "device_id", d.ID)
		return
	}
	for _, f := range frames {
		b.logDebug("sent frame", "command_id", commandID, "frame", f.String())
	}
}

// Execute encodes and sends a command synchronously. kind is "state" or
// "brightness"; payload is what the hub would publish.
func (b *Bridge) Execute(ctx context.Context, deviceID, kind, payload string) ([]rvc.Frame, error) {
	if !b.started.Load() {
		return nil, ErrNotStarted
	}
	if err := b.track(); err != nil {
		return nil, err
	}
	defer b.wg.Done()

	d, err := b.dir.Device(deviceID)
	if err != nil {
		return nil, err
	}
	frames, err := b.encode(d, kind, payload)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.CommandTimeout)
	defer cancel()
	if err := b.sender.SendSequence(ctx, frames); err != nil {
		return nil, err
	}
	return frames, nil
}

func (b *Bridge) encode(d *devices.Descriptor, kind, payload string) ([]rvc.Frame, error) {
	switch kind {
	case commandKindBrightness:
		pct, err := ParseBrightness(payload)
		if err != nil {
			return nil, err
		}
		return b.encoder.EncodeBrightness(d, pct)
	case commandKindState:
		return b.encoder.EncodePayload(d, payload)
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidCommand, kind)
	}
}

// send writes a sequence under the bridge context with the command timeout.
func (b *Bridge) send(frames []rvc.Frame) error {
	if err := b.track(); err != nil {
		return err
	}
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.CommandTimeout)
	defer cancel()
	return b.sender.SendSequence(ctx, frames)
}

// track registers an in-flight command with Stop. Once Stop has begun no
// new command is admitted. Callers must call b.wg.Done on success.
func (b *Bridge) track() error {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	if b.stopping {
		return ErrStopped
	}
	b.wg.Add(1)
	return nil
}

// handleHubStatus replays config when the hub announces it is online.
func (b *Bridge) handleHubStatus(_ string, payload []byte) {
	status := strings.TrimSpace(string(payload))
	b.logInfo("hub status", "status", status)
	if strings.EqualFold(status, PayloadOnline) {
		b.Republish("hub online")
	}
}

// Republish replays discovery config and last known state for every device
// already announced. Called when the hub comes online and after an MQTT
// reconnect.
func (b *Bridge) Republish(reason string) int {
	if !b.started.Load() {
		return 0
	}
	n := b.dispatcher.Replay()
	b.logInfo("republished device config", "reason", reason, "devices", n)
	return n
}
