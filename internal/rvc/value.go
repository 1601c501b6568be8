package rvc

import (
	"encoding/json"
	"strconv"
)

// NotAvailableText is how a not-available value is rendered in payloads.
const NotAvailableText = "n/a"

// UndefinedText is the definition given to raw values missing from an enum table.
const UndefinedText = "undefined"

// Kind distinguishes the variants of Value.
type Kind uint8

// Value kinds. The zero Value is not-available.
const (
	KindNotAvailable Kind = iota
	KindNumber
	KindText
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	default:
		return "not-available"
	}
}

// Value is a decoded field value: a number, text, or not-available.
type Value struct {
	kind Kind
	num  float64
	text string
}

// NotAvailable is the RV-C "no data" marker.
var NotAvailable = Value{}

// NumberValue wraps a numeric value.
func NumberValue(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// TextValue wraps a text value.
func TextValue(s string) Value {
	return Value{kind: KindText, text: s}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNotAvailable reports whether v is the not-available marker.
func (v Value) IsNotAvailable() bool { return v.kind == KindNotAvailable }

// Number returns the numeric value and whether v is a number.
func (v Value) Number() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// Text returns the text value and whether v is text.
func (v Value) Text() (string, bool) {
	return v.text, v.kind == KindText
}

// String renders the value the way it appears in published payloads.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.text
	default:
		return NotAvailableText
	}
}

// Equal reports whether two values hold the same variant and content.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.num == o.num && v.text == o.text
}

// MarshalJSON encodes numbers as JSON numbers, text as strings and
// not-available as the string "n/a".
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	case KindText:
		return json.Marshal(v.text)
	default:
		return json.Marshal(NotAvailableText)
	}
}
