// Package pds manages power distribution boards and their pluggable modules.
//
// A board has six fixed sockets. A module handle is only handed out once the
// board confirmed that the expected module type is physically present in the
// socket.
package pds

import (
	"fmt"
	"math"
	"sync"

	candle "github.com/samsamfire/gocandle"
	"github.com/samsamfire/gocandle/pkg/device"
	log "github.com/sirupsen/logrus"
)

const Sockets = 6

type ModuleType uint8

const (
	ModuleNone ModuleType = iota
	ModuleControlBoard
	ModuleBrakeResistor
	ModuleIsolatedConverter
	ModulePowerStage
)

var moduleTypeNames = map[ModuleType]string{
	ModuleNone:              "NONE",
	ModuleControlBoard:      "CONTROL_BOARD",
	ModuleBrakeResistor:     "BRAKE_RESISTOR",
	ModuleIsolatedConverter: "ISOLATED_CONVERTER",
	ModulePowerStage:        "POWER_STAGE",
}

func (t ModuleType) String() string {
	name, ok := moduleTypeNames[t]
	if !ok {
		return fmt.Sprintf("MODULE(%d)", uint8(t))
	}
	return name
}

// Status word flags shared by every module
type Status uint32

const (
	StatusEnabled Status = 1 << iota
	StatusOverTemperature
	StatusOverCurrent
	StatusUnderVoltage
	StatusOverVoltage
	StatusShortCircuit
)

var statusNames = []string{"ENABLED", "OVER_TEMPERATURE", "OVER_CURRENT", "UNDER_VOLTAGE", "OVER_VOLTAGE", "SHORT_CIRCUIT"}

func (s Status) Has(flag Status) bool {
	return s&flag == flag
}

func (s Status) String() string {
	str := ""
	for i, name := range statusNames {
		if s&(1<<i) == 0 {
			continue
		}
		if str != "" {
			str += "|"
		}
		str += name
	}
	if str == "" {
		return "NONE"
	}
	return str
}

// A physical module slot. Attached is nil until a module handle was handed out.
type Socket struct {
	Index    int
	Detected ModuleType // Last type reported by the board
	Attached Module
}

type PDS struct {
	mu      sync.Mutex
	dev     *device.Device
	sockets [Sockets]Socket
}

// Manage the board reached through dev.
// Nothing is sent until a method is called.
func New(dev *device.Device) *PDS {
	p := &PDS{dev: dev}
	for i := range p.sockets {
		p.sockets[i].Index = i + 1
	}
	return p
}

func (p *PDS) Device() *device.Device {
	return p.dev
}

func checkSocket(socket int) error {
	if socket < 1 || socket > Sockets {
		return fmt.Errorf("%w : socket %v", candle.ErrInvalidArgs, socket)
	}
	return nil
}

// Read the module type present in every socket
func (p *PDS) Modules() ([Sockets]ModuleType, error) {
	var modules [Sockets]ModuleType
	properties := make([]Property, Sockets)
	for i := range properties {
		properties[i] = socketModuleProperty(i + 1)
	}
	values, err := p.getProperties(ModuleControlBoard, 0, properties...)
	if err != nil {
		return modules, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, value := range values {
		modules[i] = ModuleType(value)
		p.sockets[i].Detected = modules[i]
		log.Debugf("[PDS][x%x] socket %v : %v", p.dev.ID(), i+1, modules[i])
	}
	return modules, nil
}

// Check that the board sees a module of type t in socket.
// Local socket state is left untouched.
func (p *PDS) VerifyModuleSocket(t ModuleType, socket int) (bool, error) {
	if err := checkSocket(socket); err != nil {
		return false, err
	}
	value, err := p.getProperty(ModuleControlBoard, 0, socketModuleProperty(socket))
	if err != nil {
		return false, err
	}
	return ModuleType(value) == t && t != ModuleNone, nil
}

// Verify then attach, returns the existing handle if already attached
func (p *PDS) attach(t ModuleType, socket int, create func(base module) Module) (Module, error) {
	ok, err := p.VerifyModuleSocket(t, socket)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &p.sockets[socket-1]
	if !ok {
		log.Errorf("[PDS][x%x] no %v in socket %v", p.dev.ID(), t, socket)
		return nil, fmt.Errorf("%w : no %v in socket %v", candle.ErrSocketMismatch, t, socket)
	}
	s.Detected = t
	if s.Attached != nil {
		if s.Attached.Type() == t {
			return s.Attached, nil
		}
		return nil, fmt.Errorf("%w : socket %v already holds %v", candle.ErrSocketMismatch, socket, s.Attached.Type())
	}
	s.Attached = create(module{pds: p, socket: socket, moduleType: t})
	log.Infof("[PDS][x%x] socket %v : %v attached", p.dev.ID(), socket, t)
	return s.Attached, nil
}

func (p *PDS) AttachPowerStage(socket int) (*PowerStage, error) {
	m, err := p.attach(ModulePowerStage, socket, func(base module) Module {
		return &PowerStage{supply{base}}
	})
	if err != nil {
		return nil, err
	}
	return m.(*PowerStage), nil
}

func (p *PDS) AttachBrakeResistor(socket int) (*BrakeResistor, error) {
	m, err := p.attach(ModuleBrakeResistor, socket, func(base module) Module {
		return &BrakeResistor{base}
	})
	if err != nil {
		return nil, err
	}
	return m.(*BrakeResistor), nil
}

func (p *PDS) AttachIsolatedConverter(socket int) (*IsolatedConverter, error) {
	m, err := p.attach(ModuleIsolatedConverter, socket, func(base module) Module {
		return &IsolatedConverter{supply{base}}
	})
	if err != nil {
		return nil, err
	}
	return m.(*IsolatedConverter), nil
}

// Forget the module handle of socket, the module itself is not touched
func (p *PDS) Detach(socket int) error {
	if err := checkSocket(socket); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sockets[socket-1].Attached = nil
	return nil
}

// Local state of socket (1 to 6)
func (p *PDS) Socket(socket int) (Socket, error) {
	if err := checkSocket(socket); err != nil {
		return Socket{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sockets[socket-1], nil
}

// Supply voltage of the board in mV
func (p *PDS) BusVoltage() (uint32, error) {
	return p.getProperty(ModuleControlBoard, 0, PropBusVoltage)
}

// Control board temperature in °C
func (p *PDS) Temperature() (float32, error) {
	raw, err := p.getProperty(ModuleControlBoard, 0, PropTemperature)
	return math.Float32frombits(raw), err
}

func (p *PDS) Status() (Status, error) {
	raw, err := p.getProperty(ModuleControlBoard, 0, PropStatusWord)
	return Status(raw), err
}
