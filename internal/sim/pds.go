package sim

import (
	"encoding/binary"
	"fmt"
	"math"

	can "github.com/samsamfire/gocandle/pkg/can"
	log "github.com/sirupsen/logrus"
)

// Property frame commands of the power distribution board
const (
	pdsGet byte = 0x20
	pdsSet byte = 0x21

	pdsOk          byte = 0x00
	pdsWrongModule byte = 0x02
	pdsReadOnly    byte = 0x03
	pdsMalformed   byte = 0x04
)

// Module types as reported by the board
const (
	ModuleNone byte = iota
	ModuleControlBoard
	ModuleBrakeResistor
	ModuleIsolatedConverter
	ModulePowerStage
)

const (
	propStatusWord   byte = 0x00
	propStatusClear  byte = 0x01
	propEnable       byte = 0x02
	propTemperature  byte = 0x03
	propBusVoltage   byte = 0x05
	propLoadCurrent  byte = 0x10
	propLoadPower    byte = 0x11
	propTotalEnergy  byte = 0x12
	propSocketModule byte = 0x22 // Socket 1, then one id per socket

	statusEnabled uint32 = 0x01
)

const pdsSockets = 6

var pdsReadOnlyProps = map[byte]bool{
	propStatusWord:  true,
	propTemperature: true,
	propBusVoltage:  true,
	propLoadCurrent: true,
	propLoadPower:   true,
	propTotalEnergy: true,
}

type propKey struct {
	socket   byte
	property byte
}

// Simulated power distribution board with six module sockets
type PDS struct {
	node
	modules [pdsSockets + 1]byte // Control board sits at index 0
	props   map[propKey]uint32
}

func NewPDS(bus can.Bus, id uint16) *PDS {
	p := &PDS{
		node:  node{bus: bus, id: id},
		props: make(map[propKey]uint32),
	}
	p.modules[0] = ModuleControlBoard
	p.props[propKey{0, propBusVoltage}] = 48000
	p.props[propKey{0, propTemperature}] = math.Float32bits(30)
	return p
}

// Physically plug a module of moduleType in socket (1 to 6)
func (p *PDS) Plug(socket int, moduleType byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modules[socket] = moduleType
	p.props[propKey{0, propSocketModule + byte(socket-1)}] = uint32(moduleType)
}

// Set a property value regardless of its access mode
func (p *PDS) SetProperty(socket int, property byte, value uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.props[propKey{byte(socket), property}] = value
}

func (p *PDS) Property(socket int, property byte) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.props[propKey{byte(socket), property}]
}

func (p *PDS) Handle(frame can.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.silent {
		return
	}
	if isProbe(frame) {
		p.answerProbe()
		return
	}
	if frame.ID != uint32(p.id) || frame.DLC < 4 {
		return
	}
	request := append([]byte(nil), frame.Payload()...)
	p.requests = append(p.requests, request)

	moduleType, socket, count := request[1], int(request[2]), int(request[3])
	if socket > pdsSockets || p.modules[socket] != moduleType || moduleType == ModuleNone {
		log.Debugf("[SIM][PDS][x%x] no module x%x in socket %v", p.id, moduleType, socket)
		p.reply([]byte{pdsWrongModule})
		return
	}
	var response []byte
	var err error
	switch request[0] {
	case pdsGet:
		response, err = p.get(byte(socket), count, request[4:])
	case pdsSet:
		response, err = p.set(byte(socket), count, request[4:])
	default:
		err = fmt.Errorf("unknown command x%x", request[0])
	}
	if err != nil {
		log.Debugf("[SIM][PDS][x%x] refused : %v", p.id, err)
		response = []byte{pdsMalformed}
	}
	p.reply(response)
}

func (p *PDS) get(socket byte, count int, body []byte) ([]byte, error) {
	if len(body) != count {
		return nil, fmt.Errorf("%v properties for count %v", len(body), count)
	}
	response := []byte{pdsOk, byte(count)}
	for _, property := range body {
		response = append(response, property)
		response = binary.LittleEndian.AppendUint32(response, p.props[propKey{socket, property}])
	}
	return response, nil
}

func (p *PDS) set(socket byte, count int, body []byte) ([]byte, error) {
	if len(body) != 5*count {
		return nil, fmt.Errorf("%v bytes for count %v", len(body), count)
	}
	for i := 0; i < count; i++ {
		if socket == 0 || pdsReadOnlyProps[body[5*i]] {
			return []byte{pdsReadOnly}, nil
		}
	}
	for i := 0; i < count; i++ {
		property := body[5*i]
		value := binary.LittleEndian.Uint32(body[5*i+1:])
		status := propKey{socket, propStatusWord}
		switch property {
		case propStatusClear:
			p.props[status] &^= value
		case propEnable:
			if value != 0 {
				p.props[status] |= statusEnabled
			} else {
				p.props[status] &^= statusEnabled
			}
		}
		p.props[propKey{socket, property}] = value
	}
	return []byte{pdsOk}, nil
}
