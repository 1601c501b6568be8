package rvc

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ByteRange is an inclusive range of payload byte indexes.
type ByteRange struct {
	Start int
	End   int
}

// BitRange is an inclusive range of bit indexes within a byte, LSB = 0.
type BitRange struct {
	Start int
	End   int
}

// FieldDef describes how one named field is extracted from a payload.
type FieldDef struct {
	// Name is the field key in the decoded reading.
	Name string

	// Bytes is the payload byte window. Multi-byte windows are little-endian.
	Bytes ByteRange

	// Bits, when set, narrows extraction to bits of the first byte in Bytes.
	Bits *BitRange

	// Type is the declared type tag as written in the source ("uint8", "bit2", ...).
	Type string

	// Width is derived from Type and selects the unit conversion rule.
	Width Width

	// Unit is the physical unit, UnitNone when absent.
	Unit Unit

	// Values is the enumerated value table, nil when absent.
	Values map[uint64]string
}

// Entry is a resolved Spec Registry entry.
type Entry struct {
	// DGN is the message identifier.
	DGN DGN

	// Name is the display name (e.g. "DC_DIMMER_STATUS_3").
	Name string

	// Alias is the DGN whose fields were prepended, zero when none.
	Alias DGN

	// HasAlias reports whether Alias is set.
	HasAlias bool

	// Fields is the flat field list: alias fields first, then own fields.
	Fields []FieldDef
}

// Registry is the immutable DGN → decode template mapping.
// It is safe for concurrent use once loaded.
type Registry struct {
	entries map[DGN]*Entry
}

// rawField mirrors one parameter in the YAML source.
type rawField struct {
	Byte   scalar    `yaml:"byte"`
	Bit    scalar    `yaml:"bit"`
	Name   string    `yaml:"name"`
	Type   string    `yaml:"type"`
	Unit   string    `yaml:"unit"`
	Values yaml.Node `yaml:"values"`
}

// rawEntry mirrors one DGN block in the YAML source.
type rawEntry struct {
	Name       string     `yaml:"name"`
	Alias      scalar     `yaml:"alias"`
	Parameters []rawField `yaml:"parameters"`
}

// scalar accepts any YAML scalar (int or string) as its literal text.
type scalar string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected scalar", node.Line)
	}
	*s = scalar(strings.TrimSpace(node.Value))
	return nil
}

// LoadRegistry reads and resolves a Spec Registry YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading spec registry %s: %w", path, err)
	}
	return ParseRegistry(data)
}

// ParseRegistry parses and resolves a Spec Registry document.
//
// Alias inheritance is flattened here so decoding never walks alias chains.
// Unknown alias targets, alias cycles, duplicate field names, out-of-range
// bit positions and reversed ranges are rejected.
func ParseRegistry(data []byte) (*Registry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}

	raws := make(map[DGN]rawEntry)
	if len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: top level must be a mapping of DGN to entry", ErrInvalidSpec)
		}
		for i := 0; i+1 < len(root.Content); i += 2 {
			key, val := root.Content[i], root.Content[i+1]
			dgn, err := ParseDGN(key.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidSpec, key.Line, err)
			}
			if _, dup := raws[dgn]; dup {
				return nil, fmt.Errorf("%w: DGN %s declared twice", ErrInvalidSpec, dgn)
			}
			var re rawEntry
			if err := val.Decode(&re); err != nil {
				return nil, fmt.Errorf("%w: DGN %s: %w", ErrInvalidSpec, dgn, err)
			}
			raws[dgn] = re
		}
	}

	r := &resolver{
		raws:     raws,
		resolved: make(map[DGN]*Entry, len(raws)),
		visiting: make(map[DGN]bool),
	}

	// Deterministic order keeps error messages stable.
	dgns := make([]DGN, 0, len(raws))
	for d := range raws {
		dgns = append(dgns, d)
	}
	sort.Slice(dgns, func(i, j int) bool { return dgns[i] < dgns[j] })

	for _, d := range dgns {
		if _, err := r.resolve(d); err != nil {
			return nil, err
		}
	}

	return &Registry{entries: r.resolved}, nil
}

// resolver flattens alias chains with cycle detection.
type resolver struct {
	raws     map[DGN]rawEntry
	resolved map[DGN]*Entry
	visiting map[DGN]bool
}

func (r *resolver) resolve(d DGN) (*Entry, error) {
	if e, ok := r.resolved[d]; ok {
		return e, nil
	}
	if r.visiting[d] {
		return nil, fmt.Errorf("%w: alias cycle through %s", ErrInvalidSpec, d)
	}
	raw, ok := r.raws[d]
	if !ok {
		return nil, fmt.Errorf("%w: unknown alias target %s", ErrInvalidSpec, d)
	}
	r.visiting[d] = true
	defer delete(r.visiting, d)

	entry := &Entry{DGN: d, Name: raw.Name}

	if raw.Alias != "" {
		target, err := ParseDGN(string(raw.Alias))
		if err != nil {
			return nil, fmt.Errorf("%w: DGN %s alias: %w", ErrInvalidSpec, d, err)
		}
		base, err := r.resolve(target)
		if err != nil {
			return nil, fmt.Errorf("DGN %s: %w", d, err)
		}
		entry.Alias = target
		entry.HasAlias = true
		entry.Fields = append(entry.Fields, base.Fields...)
	}

	seen := make(map[string]bool, len(entry.Fields)+len(raw.Parameters))
	for _, f := range entry.Fields {
		seen[f.Name] = true
	}
	for i, p := range raw.Parameters {
		f, err := buildField(p)
		if err != nil {
			return nil, fmt.Errorf("%w: DGN %s parameter %d: %w", ErrInvalidSpec, d, i, err)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("%w: DGN %s: duplicate field %q", ErrInvalidSpec, d, f.Name)
		}
		seen[f.Name] = true
		entry.Fields = append(entry.Fields, f)
	}

	r.resolved[d] = entry
	return entry, nil
}

func buildField(p rawField) (FieldDef, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return FieldDef{}, fmt.Errorf("missing name")
	}
	f := FieldDef{Name: name, Type: p.Type, Width: ParseWidth(p.Type)}

	if p.Byte == "" {
		return FieldDef{}, fmt.Errorf("field %q: missing byte", name)
	}
	start, end, err := parseRange(string(p.Byte))
	if err != nil {
		return FieldDef{}, fmt.Errorf("field %q byte: %w", name, err)
	}
	f.Bytes = ByteRange{Start: start, End: end}

	if p.Bit != "" {
		bs, be, err := parseRange(string(p.Bit))
		if err != nil {
			return FieldDef{}, fmt.Errorf("field %q bit: %w", name, err)
		}
		if be > 7 {
			return FieldDef{}, fmt.Errorf("field %q bit: %d-%d outside 0-7", name, bs, be)
		}
		f.Bits = &BitRange{Start: bs, End: be}
	}

	f.Unit, err = ParseUnit(p.Unit)
	if err != nil {
		return FieldDef{}, fmt.Errorf("field %q: %w", name, err)
	}

	if p.Values.Kind != 0 {
		f.Values, err = parseValueTable(&p.Values)
		if err != nil {
			return FieldDef{}, fmt.Errorf("field %q values: %w", name, err)
		}
	}
	return f, nil
}

// parseRange parses "N" or "N-M" into an inclusive, non-reversed range.
func parseRange(s string) (int, int, error) {
	lo, hi, isRange := strings.Cut(s, "-")
	start, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil || start < 0 {
		return 0, 0, fmt.Errorf("invalid range %q", s)
	}
	end := start
	if isRange {
		end, err = strconv.Atoi(strings.TrimSpace(hi))
		if err != nil || end < 0 {
			return 0, 0, fmt.Errorf("invalid range %q", s)
		}
	}
	if end < start {
		return 0, 0, fmt.Errorf("reversed range %q", s)
	}
	return start, end, nil
}

func parseValueTable(node *yaml.Node) (map[uint64]string, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected mapping")
	}
	out := make(map[uint64]string, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		key, err := parseTableKey(k.Value)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", k.Line, err)
		}
		out[key] = v.Value
	}
	return out, nil
}

// parseTableKey accepts decimal keys plus 0x/0b prefixed forms.
func parseTableKey(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		return strconv.ParseUint(s[2:], 16, 64)
	case strings.HasPrefix(s, "0b"), strings.HasPrefix(s, "0B"):
		return strconv.ParseUint(s[2:], 2, 64)
	default:
		return strconv.ParseUint(s, 10, 64)
	}
}

// Lookup returns the resolved entry for a DGN.
func (r *Registry) Lookup(dgn DGN) (*Entry, bool) {
	e, ok := r.entries[dgn]
	return e, ok
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// DGNs returns all registered DGNs in ascending order.
func (r *Registry) DGNs() []DGN {
	out := make([]DGN, 0, len(r.entries))
	for d := range r.entries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
