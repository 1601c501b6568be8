package rvc

import (
	"fmt"
	"math"
	"strings"
)

// Unit is a canonical physical unit tag from the Spec Registry.
type Unit string

// Recognised units. UnitNone means the raw value is used as-is.
const (
	UnitNone    Unit = ""
	UnitPercent Unit = "percent"
	UnitCelsius Unit = "degrees celsius"
	UnitVolts   Unit = "volts"
	UnitAmps    Unit = "amps"
	UnitHertz   Unit = "hertz"
	UnitSeconds Unit = "seconds"
	UnitBitmap  Unit = "bitmap"
)

// unitAliases maps lower-cased tags to canonical units.
var unitAliases = map[string]Unit{
	"pct":             UnitPercent,
	"percent":         UnitPercent,
	"deg c":           UnitCelsius,
	"degrees celsius": UnitCelsius,
	"c":               UnitCelsius,
	"v":               UnitVolts,
	"volts":           UnitVolts,
	"a":               UnitAmps,
	"amps":            UnitAmps,
	"hz":              UnitHertz,
	"hertz":           UnitHertz,
	"sec":             UnitSeconds,
	"seconds":         UnitSeconds,
	"s":               UnitSeconds,
	"bitmap":          UnitBitmap,
}

// ParseUnit resolves a unit tag case-insensitively. An empty tag is UnitNone.
func ParseUnit(tag string) (Unit, error) {
	t := strings.ToLower(strings.TrimSpace(tag))
	if t == "" {
		return UnitNone, nil
	}
	u, ok := unitAliases[t]
	if !ok {
		return UnitNone, fmt.Errorf("%w: %q", ErrInvalidUnit, tag)
	}
	return u, nil
}

// Width is the declared integer width of a field.
type Width uint8

// Declared widths. WidthUntyped covers bit fields and anything else.
const (
	WidthUntyped Width = 0
	Width8       Width = 8
	Width16      Width = 16
	Width32      Width = 32
)

// ParseWidth maps a declared type tag ("uint8", "uint16", "uint32") to a Width.
func ParseWidth(typeTag string) Width {
	switch strings.ToLower(strings.TrimSpace(typeTag)) {
	case "uint8":
		return Width8
	case "uint16":
		return Width16
	case "uint32":
		return Width32
	default:
		return WidthUntyped
	}
}

// Not-available sentinels per width.
const (
	sentinel8  = 0xFF
	sentinel16 = 0xFFFF
	sentinel32 = 0xFFFFFFFF
)

// roundTo rounds x to the nearest multiple of p, halves up.
func roundTo(x, p float64) float64 {
	inv := math.Round(1 / p)
	return math.Floor(x*inv+0.5) / inv
}

// Convert applies the unit conversion rule for (unit, width) to a raw value.
//
// Units with no rule for the declared width yield NotAvailable for
// temperature, voltage and current, and the raw value for frequency and time.
// Percent treats 255 as not-available regardless of width.
func Convert(raw uint64, unit Unit, width Width) Value {
	r := float64(raw)

	switch unit {
	case UnitNone:
		return NumberValue(r)

	case UnitPercent:
		if raw == sentinel8 {
			return NotAvailable
		}
		return NumberValue(r / 2)

	case UnitCelsius:
		switch width {
		case Width8:
			if raw == sentinel8 {
				return NotAvailable
			}
			return NumberValue(r - 40)
		case Width16:
			if raw == sentinel16 {
				return NotAvailable
			}
			return NumberValue(roundTo(r*0.03125-273, 0.1))
		}
		return NotAvailable

	case UnitVolts:
		switch width {
		case Width8:
			if raw == sentinel8 {
				return NotAvailable
			}
			return NumberValue(r)
		case Width16:
			if raw == sentinel16 {
				return NotAvailable
			}
			return NumberValue(roundTo(r*0.05, 0.1))
		}
		return NotAvailable

	case UnitAmps:
		switch width {
		case Width8:
			return NumberValue(r)
		case Width16:
			if raw == sentinel16 {
				return NotAvailable
			}
			return NumberValue(roundTo(r*0.05-1600, 0.1))
		case Width32:
			if raw == sentinel32 {
				return NotAvailable
			}
			return NumberValue(roundTo(r*0.001-2000000, 0.01))
		}
		return NotAvailable

	case UnitHertz:
		if width == Width16 {
			return NumberValue(roundTo(r/128, 0.1))
		}
		return NumberValue(r)

	case UnitSeconds:
		switch width {
		case Width8:
			if raw > 240 && raw < 251 {
				return NumberValue(float64((raw-240)+4) * 60)
			}
			return NumberValue(r)
		case Width16:
			return NumberValue(r * 2)
		}
		return NumberValue(r)

	case UnitBitmap:
		return TextValue(fmt.Sprintf("%08b", raw))
	}

	return NumberValue(r)
}

// CelsiusToFahrenheit converts a Celsius value, rounding to 0.1.
func CelsiusToFahrenheit(c float64) float64 {
	return roundTo(c*9/5+32, 0.1)
}
