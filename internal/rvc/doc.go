// Package rvc implements the RV-C wire protocol used on recreational vehicle
// CAN buses.
//
// It covers the parts of the protocol the bridge needs in both directions:
//
//   - Splitting a 29-bit CAN arbitration identifier into priority, DGN and
//     source address
//   - Loading the declarative DGN specification (the "Spec Registry") and
//     resolving alias inheritance once at load time
//   - Decoding frame payloads into named, unit-converted readings
//   - Building outgoing DC dimmer command frames
//   - Parsing line-oriented bus captures (candump format)
//
// # Identifier layout
//
//	 28   26 25 24                 8 7        0
//	┌───────┬──┬────────────────────┬──────────┐
//	│ prio  │r │        DGN         │  source  │
//	└───────┴──┴────────────────────┴──────────┘
//
// # Values
//
// Decoded field values are a closed sum type (Value): a number, text (enum
// definitions, bitmaps), or the not-available marker that RV-C signals with
// an all-ones bit pattern. Consumers switch on Value.Kind.
//
// # Example
//
//	reg, err := rvc.LoadRegistry("configs/rvc-spec.yml")
//	if err != nil {
//	    return err
//	}
//	dec := rvc.NewDecoder(reg)
//	reading, err := dec.Decode(0x1FEDA, "1E7CC6FCFF0404FF")
//	if errors.Is(err, rvc.ErrUnknownDGN) {
//	    // routine on a shared bus
//	}
//	v, _ := reading.Get("operating status (brightness)") // 99
package rvc
