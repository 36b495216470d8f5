package sim

import (
	"encoding/binary"
	"fmt"
	"math"

	can "github.com/samsamfire/gocandle/pkg/can"
	"github.com/samsamfire/gocandle/pkg/register"
	log "github.com/sirupsen/logrus"
)

// Register frame commands understood by the drive firmware
const (
	mdWrite    byte = 0x40
	mdRead     byte = 0x41
	mdWriteAck byte = 0xA0
	mdNack     byte = 0x01
)

const (
	mdStateEnable  = 39
	mdStateDisable = 64
)

// Firmware version and build hash reported by simulated drives
const (
	FirmwareVersion uint32 = 0x01040100
	CommitHash             = "a1b2c3d4"
)

type mapRow = [3]byte

// Simulated motor drive answering register read and write frames.
// Map rows written through the select-row handshake are stored and
// echoed back on read.
type MD struct {
	node
	dict     *register.Dictionary
	values   map[uint16][]byte
	selected mapRow
	rows     map[mapRow][]byte
	corrupt  map[mapRow]bool
}

// Create a drive with the default register set
// The drive must be subscribed to bus to answer requests.
func NewMD(bus can.Bus, id uint16) *MD {
	m := &MD{
		node:    node{bus: bus, id: id},
		dict:    register.Default(),
		values:  make(map[uint16][]byte),
		rows:    make(map[mapRow][]byte),
		corrupt: make(map[mapRow]bool),
	}
	m.mustSet(register.CanID, uint32(id))
	m.mustSet(register.LegacyHardwareVersion, uint8(1))
	m.mustSet(register.FirmwareVersion, FirmwareVersion)
	m.mustSet(register.CommitHash, CommitHash)
	m.mustSet(register.MotorName, "sim motor")
	m.mustSet(register.MotorTemperature, float32(25))
	return m
}

func (m *MD) mustSet(name string, value any) {
	if err := m.Set(name, value); err != nil {
		panic(err)
	}
}

// Set a register value regardless of its access mode
func (m *MD) Set(name string, value any) error {
	desc, err := m.dict.Lookup(name)
	if err != nil {
		return err
	}
	data, err := register.Encode(desc.Type, value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[desc.ID] = data
	return nil
}

// Current value of a register, zero if never written
func (m *MD) Get(name string) (any, error) {
	desc, err := m.dict.Lookup(name)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return register.Decode(desc.Type, m.value(desc))
}

// Stored map row for (axis, voltage, row), nil if never written
func (m *MD) Row(axis, voltage, row int) []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.rows[mapRow{byte(axis), byte(voltage), byte(row)}]
	if !ok {
		return nil
	}
	values := make([]float32, len(data)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return values
}

// Number of map rows written so far
func (m *MD) RowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// Echo a different first value when the given row is read back
func (m *MD) CorruptRow(axis, voltage, row int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corrupt[mapRow{byte(axis), byte(voltage), byte(row)}] = true
}

func (m *MD) value(desc register.Descriptor) []byte {
	if desc.Name == register.MapRowData {
		if data, ok := m.rows[m.selected]; ok {
			echoed := append([]byte(nil), data...)
			if m.corrupt[m.selected] {
				first := math.Float32frombits(binary.LittleEndian.Uint32(echoed))
				binary.LittleEndian.PutUint32(echoed, math.Float32bits(first+1))
			}
			return echoed
		}
	}
	if data, ok := m.values[desc.ID]; ok {
		return data
	}
	return make([]byte, desc.Type.Width())
}

func (m *MD) Handle(frame can.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.silent {
		return
	}
	if isProbe(frame) {
		m.answerProbe()
		return
	}
	if frame.ID != uint32(m.id) || frame.DLC < 2 {
		return
	}
	request := append([]byte(nil), frame.Payload()...)
	m.requests = append(m.requests, request)

	var response []byte
	var err error
	switch request[0] {
	case mdRead:
		response, err = m.read(request[2:])
	case mdWrite:
		response, err = m.write(request[2:])
	default:
		err = fmt.Errorf("unknown command x%x", request[0])
	}
	if err != nil {
		log.Debugf("[SIM][MD][x%x] refused : %v", m.id, err)
		response = []byte{mdNack}
	}
	m.reply(response)
}

// Walk the (address, value) fields of a register frame
func (m *MD) fields(body []byte, each func(desc register.Descriptor, value []byte) error) error {
	for offset := 0; offset < len(body); {
		if offset+2 > len(body) {
			return fmt.Errorf("truncated address at %v", offset)
		}
		desc, err := m.dict.LookupID(binary.LittleEndian.Uint16(body[offset:]))
		if err != nil {
			return err
		}
		offset += 2
		width := desc.Type.Width()
		if offset+width > len(body) {
			return fmt.Errorf("truncated value for %v", desc.Name)
		}
		if err := each(desc, body[offset:offset+width]); err != nil {
			return err
		}
		offset += width
	}
	return nil
}

func (m *MD) read(body []byte) ([]byte, error) {
	response := []byte{mdRead, 0x00}
	err := m.fields(body, func(desc register.Descriptor, _ []byte) error {
		if !desc.Access.Readable() {
			return fmt.Errorf("%v is not readable", desc.Name)
		}
		response = binary.LittleEndian.AppendUint16(response, desc.ID)
		response = append(response, m.value(desc)...)
		return nil
	})
	return response, err
}

func (m *MD) write(body []byte) ([]byte, error) {
	type pending struct {
		desc  register.Descriptor
		value []byte
	}
	var writes []pending
	// Frames are applied entirely or not at all
	err := m.fields(body, func(desc register.Descriptor, value []byte) error {
		if !desc.Access.Writable() {
			return fmt.Errorf("%v is not writable", desc.Name)
		}
		writes = append(writes, pending{desc, append([]byte(nil), value...)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, w := range writes {
		m.apply(w.desc, w.value)
	}
	return []byte{mdWriteAck, 0x00}, nil
}

func (m *MD) apply(desc register.Descriptor, value []byte) {
	m.values[desc.ID] = value
	switch desc.Name {
	case register.MapSelectRow:
		copy(m.selected[:], value)
	case register.MapRowData:
		m.rows[m.selected] = value
	case register.State:
		status, _ := m.dict.Lookup(register.MotionModeStatus)
		switch binary.LittleEndian.Uint16(value) {
		case mdStateEnable:
			command, _ := m.dict.Lookup(register.MotionModeCommand)
			m.values[status.ID] = append([]byte(nil), m.value(command)...)
		case mdStateDisable:
			m.values[status.ID] = []byte{0}
		}
	}
}
