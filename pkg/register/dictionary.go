package register

import (
	"fmt"
	"sort"
	"strconv"

	candle "github.com/samsamfire/gocandle"
	"gopkg.in/ini.v1"
)

// Dictionary maps register names and ids to their descriptors.
// It is read-only once built and can be shared between devices.
type Dictionary struct {
	byName map[string]Descriptor
	byID   map[uint16]Descriptor
	names  []string
}

// Create a dictionary, names and ids must be unique
func NewDictionary(descriptors ...Descriptor) (*Dictionary, error) {
	dict := &Dictionary{
		byName: make(map[string]Descriptor, len(descriptors)),
		byID:   make(map[uint16]Descriptor, len(descriptors)),
	}
	for _, desc := range descriptors {
		if err := dict.add(desc); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

func (dict *Dictionary) add(desc Descriptor) error {
	if desc.Name == "" || !desc.Type.Valid() || desc.Access == 0 {
		return fmt.Errorf("%w : invalid register %v", candle.ErrInvalidArgs, desc)
	}
	if _, ok := dict.byName[desc.Name]; ok {
		return fmt.Errorf("%w : duplicate register name %v", candle.ErrInvalidArgs, desc.Name)
	}
	if other, ok := dict.byID[desc.ID]; ok {
		return fmt.Errorf("%w : register id x%x used by %v and %v", candle.ErrInvalidArgs, desc.ID, other.Name, desc.Name)
	}
	dict.byName[desc.Name] = desc
	dict.byID[desc.ID] = desc
	dict.names = append(dict.names, desc.Name)
	return nil
}

// Lookup a register by its exact name
func (dict *Dictionary) Lookup(name string) (Descriptor, error) {
	desc, ok := dict.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w : %q", candle.ErrUnknownRegister, name)
	}
	return desc, nil
}

func (dict *Dictionary) LookupID(id uint16) (Descriptor, error) {
	desc, ok := dict.byID[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w : x%x", candle.ErrUnknownRegister, id)
	}
	return desc, nil
}

// Register names in declaration order
func (dict *Dictionary) Names() []string {
	names := make([]string, len(dict.names))
	copy(names, dict.names)
	return names
}

func (dict *Dictionary) Len() int {
	return len(dict.names)
}

// Create a new dictionary holding the registers of both dictionaries
func (dict *Dictionary) Merge(other *Dictionary) (*Dictionary, error) {
	merged, err := NewDictionary()
	if err != nil {
		return nil, err
	}
	for _, d := range []*Dictionary{dict, other} {
		for _, name := range d.names {
			if err := merged.add(d.byName[name]); err != nil {
				return nil, err
			}
		}
	}
	return merged, nil
}

// Parse a register dictionary file
// file can be either a path or an *os.File or []byte
// Each section describes one register :
//
//	[motorName]
//	Id=0x010
//	Type=char[24]
//	Access=RW
func ParseDictionary(file any) (*Dictionary, error) {
	cfg, err := ini.Load(file)
	if err != nil {
		return nil, err
	}
	descriptors := make([]Descriptor, 0)
	for _, section := range cfg.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		id, err := strconv.ParseUint(section.Key("Id").String(), 0, 16)
		if err != nil {
			return nil, fmt.Errorf("[REGISTER] invalid id for %v : %w", section.Name(), err)
		}
		t, err := ParseType(section.Key("Type").String())
		if err != nil {
			return nil, fmt.Errorf("[REGISTER] %v : %w", section.Name(), err)
		}
		access, err := ParseAccess(section.Key("Access").String())
		if err != nil {
			return nil, fmt.Errorf("[REGISTER] %v : %w", section.Name(), err)
		}
		descriptors = append(descriptors, Descriptor{
			Name:   section.Name(),
			ID:     uint16(id),
			Type:   t,
			Access: access,
		})
	}
	return NewDictionary(descriptors...)
}

// Export the dictionary in the format read by [ParseDictionary]
func (dict *Dictionary) Export() (*ini.File, error) {
	cfg := ini.Empty()
	ids := make([]uint16, 0, len(dict.byID))
	for id := range dict.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		desc := dict.byID[id]
		section, err := cfg.NewSection(desc.Name)
		if err != nil {
			return nil, fmt.Errorf("[REGISTER] x%x : %w", desc.ID, err)
		}
		section.Key("Id").SetValue(fmt.Sprintf("0x%03X", desc.ID))
		section.Key("Type").SetValue(desc.Type.String())
		section.Key("Access").SetValue(desc.Access.String())
	}
	return cfg, nil
}
