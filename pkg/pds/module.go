package pds

import (
	"math"
)

// Module plugged in a socket of the board
type Module interface {
	Socket() int
	Type() ModuleType
	Status() (Status, error)
	ClearStatus(flags Status) error
	Temperature() (float32, error)
	TemperatureLimit() (float32, error)
	SetTemperatureLimit(limit float32) error
	Enable() error
	Disable() error
	Enabled() (bool, error)
}

// Properties common to every module
type module struct {
	pds        *PDS
	socket     int
	moduleType ModuleType
}

func (m *module) Socket() int {
	return m.socket
}

func (m *module) Type() ModuleType {
	return m.moduleType
}

func (m *module) get(property Property) (uint32, error) {
	return m.pds.getProperty(m.moduleType, m.socket, property)
}

func (m *module) set(property Property, value uint32) error {
	return m.pds.setProperty(m.moduleType, m.socket, property, value)
}

func (m *module) getFloat(property Property) (float32, error) {
	raw, err := m.get(property)
	return math.Float32frombits(raw), err
}

func (m *module) getSigned(property Property) (int32, error) {
	raw, err := m.get(property)
	return int32(raw), err
}

func (m *module) Status() (Status, error) {
	raw, err := m.get(PropStatusWord)
	return Status(raw), err
}

// Clear latched status flags
func (m *module) ClearStatus(flags Status) error {
	return m.set(PropStatusClear, uint32(flags))
}

// Temperature in °C
func (m *module) Temperature() (float32, error) {
	return m.getFloat(PropTemperature)
}

func (m *module) TemperatureLimit() (float32, error) {
	return m.getFloat(PropTemperatureLimit)
}

func (m *module) SetTemperatureLimit(limit float32) error {
	return m.set(PropTemperatureLimit, math.Float32bits(limit))
}

func (m *module) Enable() error {
	return m.set(PropEnable, 1)
}

func (m *module) Disable() error {
	return m.set(PropEnable, 0)
}

func (m *module) Enabled() (bool, error) {
	raw, err := m.get(PropEnable)
	return raw != 0, err
}

// Measurements and over current protection of output modules
type supply struct {
	module
}

// Output voltage in mV
func (s *supply) OutputVoltage() (uint32, error) {
	return s.get(PropBusVoltage)
}

// Load current in mA
func (s *supply) LoadCurrent() (int32, error) {
	return s.getSigned(PropLoadCurrent)
}

// Load power in mW
func (s *supply) Power() (int32, error) {
	return s.getSigned(PropLoadPower)
}

// Energy delivered since power up in mWh
func (s *supply) Energy() (int32, error) {
	return s.getSigned(PropTotalEnergy)
}

// Over current detection level in mA
func (s *supply) OcdLevel() (uint32, error) {
	return s.get(PropOcdLevel)
}

func (s *supply) SetOcdLevel(level uint32) error {
	return s.set(PropOcdLevel, level)
}

// Over current detection delay in µs
func (s *supply) OcdDelay() (uint32, error) {
	return s.get(PropOcdDelay)
}

func (s *supply) SetOcdDelay(delay uint32) error {
	return s.set(PropOcdDelay, delay)
}

type PowerStage struct {
	supply
}

// Let the brake resistor in socket dissipate the regenerated energy
// of this power stage
func (ps *PowerStage) BindBrakeResistor(socket int) error {
	if err := checkSocket(socket); err != nil {
		return err
	}
	return ps.set(PropBrSocketIndex, uint32(socket))
}

// Bus voltage above which the bound brake resistor is switched on, in mV
func (ps *PowerStage) BrakeResistorTriggerVoltage() (uint32, error) {
	return ps.get(PropBrTriggerVoltage)
}

func (ps *PowerStage) SetBrakeResistorTriggerVoltage(voltage uint32) error {
	return ps.set(PropBrTriggerVoltage, voltage)
}

type BrakeResistor struct {
	module
}

type IsolatedConverter struct {
	supply
}
