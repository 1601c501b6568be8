package devices

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/rvc-bridge/internal/rvc"
)

// DefaultTopicBase is the default prefix for device topics.
const DefaultTopicBase = "rvc"

// Options controls directory loading.
type Options struct {
	// TopicBase prefixes default topic templates ("<base>/{id}/state").
	TopicBase string
}

// Directory is the immutable (DGN, instance) → descriptors mapping.
// It is safe for concurrent use once loaded.
type Directory struct {
	entries map[rvc.DGN]map[string][]*Descriptor
	byID    map[string]*Descriptor
}

// Load reads and validates a Device Directory YAML file.
func Load(path string, opts Options) (*Directory, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading device directory %s: %w", path, err)
	}
	return Parse(data, opts)
}

// Parse parses and validates a Device Directory document.
//
// The document maps DGN → instance key (or "default") → list of descriptors.
// Every validation problem is reported in a single error.
func Parse(data []byte, opts Options) (*Directory, error) {
	if opts.TopicBase == "" {
		opts.TopicBase = DefaultTopicBase
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDirectory, err)
	}

	dir := &Directory{
		entries: make(map[rvc.DGN]map[string][]*Descriptor),
		byID:    make(map[string]*Descriptor),
	}
	if len(doc.Content) == 0 {
		return dir, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping of DGN to instances", ErrInvalidDirectory)
	}

	var errs []string
	for i := 0; i+1 < len(root.Content); i += 2 {
		dgnNode, instNode := root.Content[i], root.Content[i+1]
		dgn, err := rvc.ParseDGN(dgnNode.Value)
		if err != nil {
			errs = append(errs, fmt.Sprintf("line %d: %v", dgnNode.Line, err))
			continue
		}
		if instNode.Kind != yaml.MappingNode {
			errs = append(errs, fmt.Sprintf("%s: expected mapping of instance to devices", dgn))
			continue
		}

		slots := dir.entries[dgn]
		if slots == nil {
			slots = make(map[string][]*Descriptor)
			dir.entries[dgn] = slots
		}

		for j := 0; j+1 < len(instNode.Content); j += 2 {
			keyNode, listNode := instNode.Content[j], instNode.Content[j+1]
			key := normalizeInstanceKey(keyNode.Value)

			var list []*Descriptor
			if err := listNode.Decode(&list); err != nil {
				errs = append(errs, fmt.Sprintf("%s/%s: %v", dgn, key, err))
				continue
			}
			for _, d := range list {
				if d == nil {
					continue
				}
				d.DGN = dgn
				d.InstanceKey = key
				d.applyDefaults(opts.TopicBase)
				errs = append(errs, d.validate()...)

				if d.ID != "" {
					if prev, dup := dir.byID[d.ID]; dup {
						errs = append(errs, fmt.Sprintf("%s: device id %q already used at %s", d.Key(), d.ID, prev.Key()))
						continue
					}
					dir.byID[d.ID] = d
				}
				slots[key] = append(slots[key], d)
			}
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w:\n  - %s", ErrInvalidDirectory, strings.Join(errs, "\n  - "))
	}
	return dir, nil
}

// normalizeInstanceKey lower-cases the wildcard so "Default" matches.
func normalizeInstanceKey(k string) string {
	k = strings.TrimSpace(k)
	if strings.EqualFold(k, DefaultInstance) {
		return DefaultInstance
	}
	return k
}

// Lookup returns the descriptors for (dgn, instance), falling back to the
// "default" slot when no exact entry exists. An empty instance goes straight
// to the default slot. No partial matching is done.
func (d *Directory) Lookup(dgn rvc.DGN, instance string) ([]*Descriptor, bool) {
	slots, ok := d.entries[dgn]
	if !ok {
		return nil, false
	}
	if instance != "" {
		if list, ok := slots[instance]; ok && len(list) > 0 {
			return list, true
		}
	}
	list, ok := slots[DefaultInstance]
	if !ok || len(list) == 0 {
		return nil, false
	}
	return list, true
}

// Device returns a descriptor by device key.
func (d *Directory) Device(id string) (*Descriptor, error) {
	desc, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return desc, nil
}

// All returns every descriptor ordered by device key.
func (d *Directory) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(d.byID))
	for _, desc := range d.byID {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of devices.
func (d *Directory) Len() int {
	return len(d.byID)
}
