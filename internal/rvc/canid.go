package rvc

import (
	"fmt"
	"strconv"
	"strings"
)

// Arbitration identifier layout constants.
const (
	// canIDMask keeps the 29 bits of an extended CAN identifier.
	canIDMask = 0x1FFFFFFF

	// dgnMask is the width of a DGN (17 bits).
	dgnMask = 0x1FFFF

	// dgnShift is the offset of the DGN above the source address byte.
	dgnShift = 8

	// priorityShift is the offset of the 3-bit priority field.
	priorityShift = 26

	// priorityMask is the width of the priority field.
	priorityMask = 0x07

	// dataPageBit is the reserved bit between priority and DGN.
	dataPageBit = 1 << 25

	// sourceMask is the width of the source address field.
	sourceMask = 0xFF

	// maxIDHexDigits is the longest hex identifier accepted from a capture.
	maxIDHexDigits = 8
)

// DGN is an RV-C Data Group Number, the message-type identifier embedded in
// every arbitration identifier.
type DGN uint32

// String formats the DGN as five upper-case hex digits (e.g. "1FEDA").
func (d DGN) String() string {
	return fmt.Sprintf("%05X", uint32(d)&dgnMask)
}

// ParseDGN parses a hex DGN string such as "1FEDA".
func ParseDGN(s string) (DGN, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidDGN)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidDGN, s, err)
	}
	if v > dgnMask {
		return 0, fmt.Errorf("%w: %q exceeds 17 bits", ErrInvalidDGN, s)
	}
	return DGN(v), nil
}

// ArbitrationID is a decomposed 29-bit CAN arbitration identifier.
type ArbitrationID struct {
	// Priority is the 3-bit message priority (0 highest).
	Priority uint8

	// DGN is the message identifier.
	DGN DGN

	// Source is the sender's source address.
	Source uint8

	// DataPage is the reserved bit 25. It is not part of the DGN and is
	// carried only so the identifier can be rebuilt.
	DataPage bool
}

// DecomposeID splits a raw arbitration identifier into its fields.
//
// The DGN occupies bit positions 4 through 20 of the identifier rendered as a
// 29-character binary string, MSB first. Bits above the 29th are ignored.
func DecomposeID(id uint32) ArbitrationID {
	id &= canIDMask
	return ArbitrationID{
		Priority: uint8((id >> priorityShift) & priorityMask),
		DGN:      DGN((id >> dgnShift) & dgnMask),
		Source:   uint8(id & sourceMask),
		DataPage: id&dataPageBit != 0,
	}
}

// ParseArbitrationID parses a hex identifier of up to 8 digits, as printed by
// candump, and decomposes it.
func ParseArbitrationID(hexID string) (ArbitrationID, error) {
	hexID = strings.TrimSpace(hexID)
	if hexID == "" || len(hexID) > maxIDHexDigits {
		return ArbitrationID{}, fmt.Errorf("%w: %q", ErrInvalidCANID, hexID)
	}
	v, err := strconv.ParseUint(hexID, 16, 32)
	if err != nil {
		return ArbitrationID{}, fmt.Errorf("%w: %q: %w", ErrInvalidCANID, hexID, err)
	}
	return DecomposeID(uint32(v)), nil
}

// DGNFromID returns the five-digit DGN string for a hex arbitration identifier.
func DGNFromID(hexID string) (string, error) {
	a, err := ParseArbitrationID(hexID)
	if err != nil {
		return "", err
	}
	return a.DGN.String(), nil
}

// Uint32 reassembles the raw 29-bit identifier.
func (a ArbitrationID) Uint32() uint32 {
	id := (uint32(a.Priority)&priorityMask)<<priorityShift |
		(uint32(a.DGN)&dgnMask)<<dgnShift |
		uint32(a.Source)
	if a.DataPage {
		id |= dataPageBit
	}
	return id
}

// String formats the identifier as 8 upper-case hex digits, the form cansend expects.
func (a ArbitrationID) String() string {
	return fmt.Sprintf("%08X", a.Uint32())
}
