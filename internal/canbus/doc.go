// Package canbus connects the bridge to the physical CAN bus.
//
// Sources deliver capture lines to a handler from a single goroutine:
//   - CandumpSource runs candump under process supervision
//   - SerialSource reads a text-mode USB/serial CAN adapter
//   - ReaderSource reads any io.Reader (stdin, a capture file)
//
// CansendSink writes frames with the can-utils cansend tool and implements
// bridge.FrameSink.
package canbus
