package rvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Fixed reading keys.
const (
	KeyDGN      = "dgn"
	KeyData     = "data"
	KeyName     = "name"
	KeyInstance = "instance"
)

// Derived key suffixes.
const (
	suffixFahrenheit = " F"
	suffixDefinition = " definition"
)

// DefinitionKey returns the key holding the enum definition for a field.
func DefinitionKey(field string) string {
	return field + suffixDefinition
}

// FahrenheitKey returns the key holding the Fahrenheit value for a field.
func FahrenheitKey(field string) string {
	return field + suffixFahrenheit
}

// Field is one named value in a Reading.
type Field struct {
	Name  string
	Value Value
}

// Reading is the decoded form of one frame.
type Reading struct {
	// DGN is the message identifier.
	DGN DGN

	// Name is the spec display name, or "UNKNOWN-<dgn>" when the entry has none.
	Name string

	// Data is the payload hex as received.
	Data string

	fields []Field
	index  map[string]int
}

// Fields returns the decoded fields in spec order, derived keys included.
func (r *Reading) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Get returns a field by name.
func (r *Reading) Get(name string) (Value, bool) {
	i, ok := r.index[name]
	if !ok {
		return NotAvailable, false
	}
	return r.fields[i].Value, true
}

// Instance returns the instance discriminator as a string. The second result
// is false when the message has no instance field.
func (r *Reading) Instance() (string, bool) {
	v, ok := r.Get(KeyInstance)
	if !ok {
		return "", false
	}
	return v.String(), true
}

func (r *Reading) set(name string, v Value) {
	if i, ok := r.index[name]; ok {
		r.fields[i].Value = v
		return
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, Field{Name: name, Value: v})
}

// MarshalJSON renders the reading as a flat object: decoded fields in order,
// then dgn, data, name and instance (null when absent).
func (r *Reading) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(k string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		return nil
	}

	for _, f := range r.fields {
		if f.Name == KeyInstance {
			continue
		}
		if err := write(f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	if err := write(KeyDGN, r.DGN.String()); err != nil {
		return nil, err
	}
	if err := write(KeyData, r.Data); err != nil {
		return nil, err
	}
	if err := write(KeyName, r.Name); err != nil {
		return nil, err
	}
	var inst any
	if v, ok := r.Get(KeyInstance); ok {
		inst = v
	}
	if err := write(KeyInstance, inst); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Decoder applies Spec Registry entries to frame payloads.
// It holds no mutable state and is safe for concurrent use.
type Decoder struct {
	registry *Registry
}

// NewDecoder creates a decoder over a loaded registry.
func NewDecoder(registry *Registry) *Decoder {
	return &Decoder{registry: registry}
}

// Registry returns the registry the decoder reads from.
func (d *Decoder) Registry() *Registry {
	return d.registry
}

// Decode decodes a payload for a DGN.
//
// Returns ErrUnknownDGN when the registry has no entry. Fields whose byte
// window lies beyond the payload decode to NotAvailable.
func (d *Decoder) Decode(dgn DGN, payloadHex string) (*Reading, error) {
	entry, ok := d.registry.Lookup(dgn)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDGN, dgn)
	}

	payload := strings.ToUpper(strings.ReplaceAll(payloadHex, " ", ""))

	name := entry.Name
	if name == "" {
		name = "UNKNOWN-" + dgn.String()
	}

	r := &Reading{
		DGN:    dgn,
		Name:   name,
		Data:   payloadHex,
		fields: make([]Field, 0, len(entry.Fields)+2),
		index:  make(map[string]int, len(entry.Fields)+2),
	}

	for i := range entry.Fields {
		decodeField(r, &entry.Fields[i], payload)
	}
	return r, nil
}

func decodeField(r *Reading, f *FieldDef, payload string) {
	raw, ok := extract(payload, f)
	if !ok {
		r.set(f.Name, NotAvailable)
		if f.Values != nil {
			r.set(f.Name+suffixDefinition, TextValue(UndefinedText))
		}
		return
	}

	v := NumberValue(float64(raw))
	if f.Unit != UnitNone {
		v = Convert(raw, f.Unit, f.Width)
	}
	r.set(f.Name, v)

	if f.Unit == UnitCelsius {
		if c, isNum := v.Number(); isNum {
			r.set(f.Name+suffixFahrenheit, NumberValue(CelsiusToFahrenheit(c)))
		}
	}

	if f.Values != nil {
		def, found := f.Values[raw]
		if !found {
			def = UndefinedText
		}
		r.set(f.Name+suffixDefinition, TextValue(def))
	}
}

// extract returns the raw integer for a field, false when the byte window
// lies outside the payload or does not parse.
func extract(payload string, f *FieldDef) (uint64, bool) {
	start := f.Bytes.Start * 2
	if start >= len(payload) {
		return 0, false
	}
	end := (f.Bytes.End + 1) * 2
	if end > len(payload) {
		end = len(payload)
	}
	window := payload[start:end]

	if f.Bits != nil {
		if len(window) < 2 {
			return 0, false
		}
		b, err := strconv.ParseUint(window[:2], 16, 8)
		if err != nil {
			return 0, false
		}
		width := f.Bits.End - f.Bits.Start + 1
		return (b >> uint(f.Bits.Start)) & (1<<uint(width) - 1), true
	}

	v, err := strconv.ParseUint(reverseBytes(window), 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// reverseBytes reverses the order of 2-character hex groups.
func reverseBytes(hex string) string {
	n := len(hex) / 2
	if n <= 1 {
		return hex
	}
	var b strings.Builder
	b.Grow(len(hex))
	for i := n - 1; i >= 0; i-- {
		b.WriteString(hex[i*2 : i*2+2])
	}
	return b.String()
}
