package od

import (
	"fmt"
	"sort"

	candle "github.com/samsamfire/gocandle"
)

// A single object dictionary variable, addressed by (index, subindex)
type Entry struct {
	Index      uint16
	SubIndex   uint8
	Name       string
	ObjectName string // Name of the parent record or array, if any
	DataType   uint8
	Attribute  uint8
	Default    []byte
}

// Size in bytes of the value, 0 for variable length objects
func (entry *Entry) Width() int {
	if size := DataTypeSize(entry.DataType); size > 0 {
		return size
	}
	return len(entry.Default)
}

func (entry *Entry) Readable() bool {
	return entry.Attribute&AttributeSdoR != 0
}

func (entry *Entry) Writable() bool {
	return entry.Attribute&AttributeSdoW != 0
}

// Value does not fit in an expedited transfer
func (entry *Entry) Segmented() bool {
	return DataTypeSize(entry.DataType) == 0 || entry.Width() > 4
}

func (entry *Entry) Signed() bool {
	return isSigned(entry.DataType)
}

func (entry *Entry) String() string {
	return fmt.Sprintf("x%x:x%x %v (%v)", entry.Index, entry.SubIndex, entry.Name, DecodeAttribute(entry.Attribute))
}

// Object dictionary of a remote node, used for addressing and access checks
type ObjectDictionary struct {
	entries map[uint32]*Entry
	byName  map[string]*Entry
	// Plain names used more than once, only reachable as "object.name"
	ambiguous map[string]bool
	rawOd     []byte
}

func NewOD() *ObjectDictionary {
	return &ObjectDictionary{
		entries:   make(map[uint32]*Entry),
		byName:    make(map[string]*Entry),
		ambiguous: make(map[string]bool),
	}
}

func key(index uint16, subIndex uint8) uint32 {
	return uint32(index)<<8 | uint32(subIndex)
}

// Add an entry, replacing any entry at the same address
func (od *ObjectDictionary) AddEntry(entry *Entry) {
	od.entries[key(entry.Index, entry.SubIndex)] = entry
	if entry.ObjectName != "" {
		od.byName[entry.ObjectName+"."+entry.Name] = entry
	}
	if od.ambiguous[entry.Name] {
		return
	}
	if _, ok := od.byName[entry.Name]; ok {
		delete(od.byName, entry.Name)
		od.ambiguous[entry.Name] = true
		return
	}
	od.byName[entry.Name] = entry
}

// Get the entry at (index, subindex)
func (od *ObjectDictionary) Entry(index uint16, subIndex uint8) (*Entry, error) {
	entry, ok := od.entries[key(index, subIndex)]
	if !ok {
		return nil, fmt.Errorf("%w : x%x:x%x", candle.ErrUnknownIndex, index, subIndex)
	}
	return entry, nil
}

// Get an entry by exact name.
// Sub entries are also reachable with "object name.entry name".
func (od *ObjectDictionary) Lookup(name string) (*Entry, error) {
	entry, ok := od.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w : %q", candle.ErrUnknownIndex, name)
	}
	return entry, nil
}

// All entries sorted by index then subindex
func (od *ObjectDictionary) Entries() []*Entry {
	entries := make([]*Entry, 0, len(od.entries))
	for _, entry := range od.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return key(entries[i].Index, entries[i].SubIndex) < key(entries[j].Index, entries[j].SubIndex)
	})
	return entries
}

func (od *ObjectDictionary) Len() int {
	return len(od.entries)
}

// Raw EDS the dictionary was parsed from
func (od *ObjectDictionary) Raw() []byte {
	return od.rawOd
}
