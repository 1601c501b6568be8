// Package bridge connects an RV-C bus to an MQTT broker.
//
// Inbound, each capture line is decoded against the Spec Registry, matched to
// devices through the Device Directory and published as Home Assistant style
// discovery config (once per device) and retained state (every frame).
// Outbound, command and brightness topics are encoded into ordered
// DC_DIMMER_COMMAND_2 frame sequences and written to the bus.
//
// # Architecture
//
//	┌──────────────┐  line   ┌─────────┐ reading ┌────────────┐ publish ┌────────┐
//	│ canbus.Source│ ──────► │ Decoder │ ──────► │ Dispatcher │ ──────► │  MQTT  │
//	└──────────────┘         └─────────┘         └────────────┘         └────────┘
//	                                                   │ Store                │
//	┌──────────────┐ frames  ┌─────────┐   ┌─────────┐ │                      │
//	│ canbus.Sink  │ ◄────── │ Sender  │ ◄─│ Encoder │◄┘◄──── command ───────┘
//	└──────────────┘         └─────────┘   └─────────┘
//
// # Concurrency
//
// Lines are handled sequentially by the reader goroutine. Commands arrive on
// MQTT callback goroutines. Per-device state lives in Store, which locks per
// device key. Every bus write goes through Sender, whose single mutex is held
// for a whole command sequence so frames from two commands never interleave.
package bridge
