package rvc

// Well-known DGNs used by the bridge.
const (
	// DGNDimmerStatus3 is DC_DIMMER_STATUS_3, reported by dimmer and lock loads.
	DGNDimmerStatus3 DGN = 0x1FEDA

	// DGNDimmerCommand2 is DC_DIMMER_COMMAND_2, used for every outgoing command.
	DGNDimmerCommand2 DGN = 0x1FEDB
)

// Outgoing frame defaults.
const (
	// DefaultCommandPriority is the priority used for outgoing commands.
	DefaultCommandPriority uint8 = 6

	// DefaultSourceAddress is the source address the bridge claims.
	DefaultSourceAddress uint8 = 0x63
)

// DimmerCommand is the command byte of a DC_DIMMER_COMMAND_2 frame.
type DimmerCommand uint8

// Dimmer command codes.
const (
	CmdSetLevel   DimmerCommand = 0x00
	CmdOnDuration DimmerCommand = 0x01
	CmdOnDelay    DimmerCommand = 0x02
	CmdOff        DimmerCommand = 0x03
	CmdStop       DimmerCommand = 0x04
	CmdToggle     DimmerCommand = 0x05
	CmdRampUpDown DimmerCommand = 0x15
)

// Payload byte constants.
const (
	// LevelNotApplicable marks the level byte as unused.
	LevelNotApplicable uint8 = 0xFF

	// LevelFull is 100% in half-percent units.
	LevelFull uint8 = 0xC8

	// DurationDefault lets the load apply its default duration.
	DurationDefault uint8 = 0xFF

	// DurationNone requests immediate action.
	DurationNone uint8 = 0x00

	filler   uint8 = 0xFF
	reserved uint8 = 0x00
)

// DimmerFrame is the variable part of a DC_DIMMER_COMMAND_2 payload.
type DimmerFrame struct {
	Instance uint8
	Level    uint8
	Command  DimmerCommand
	Duration uint8
}

// Encode builds the 8-byte frame:
// instance, FF, level, command, duration, 00, FF, FF.
func (c DimmerFrame) Encode(id ArbitrationID) Frame {
	return Frame{
		ID: id,
		Data: []byte{
			c.Instance,
			filler,
			c.Level,
			uint8(c.Command),
			c.Duration,
			reserved,
			filler,
			filler,
		},
	}
}

// CommandID returns the arbitration identifier for outgoing dimmer commands.
func CommandID(priority, source uint8) ArbitrationID {
	return ArbitrationID{Priority: priority, DGN: DGNDimmerCommand2, Source: source}
}

// LevelForBrightness converts a percentage (0..100) to the level byte.
// Values outside the range are clamped.
func LevelForBrightness(pct int) uint8 {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return uint8(pct * 2)
}
