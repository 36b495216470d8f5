package device

import (
	"fmt"

	candle "github.com/samsamfire/gocandle"
	"github.com/samsamfire/gocandle/pkg/register"
	log "github.com/sirupsen/logrus"
)

type MotionMode uint8

const (
	MotionModeIdle        MotionMode = 0
	MotionModePositionPID MotionMode = 1
	MotionModeVelocityPID MotionMode = 2
	MotionModeRawTorque   MotionMode = 3
	MotionModeImpedance   MotionMode = 4
)

var motionModeNames = map[MotionMode]string{
	MotionModeIdle:        "IDLE",
	MotionModePositionPID: "POSITION_PID",
	MotionModeVelocityPID: "VELOCITY_PID",
	MotionModeRawTorque:   "RAW_TORQUE",
	MotionModeImpedance:   "IMPEDANCE",
}

func (m MotionMode) String() string {
	name, ok := motionModeNames[m]
	if !ok {
		return fmt.Sprintf("MODE(%d)", uint8(m))
	}
	return name
}

// Values written to the state register
const (
	StateEnable  uint16 = 39
	StateDisable uint16 = 64
)

func (d *Device) SetMotionMode(mode MotionMode) error {
	return d.WriteRegister(register.MotionModeCommand, uint8(mode))
}

func (d *Device) MotionMode() (MotionMode, error) {
	mode, err := d.ReadU8(register.MotionModeStatus)
	return MotionMode(mode), err
}

func (d *Device) SetTargetPosition(position float32) error {
	return d.WriteRegister(register.TargetPosition, position)
}

func (d *Device) SetTargetVelocity(velocity float32) error {
	return d.WriteRegister(register.TargetVelocity, velocity)
}

func (d *Device) SetTargetTorque(torque float32) error {
	return d.WriteRegister(register.TargetTorque, torque)
}

// Enable the drive then check that a motion mode was selected.
// Enabling without motion mode is not refused, only reported.
func (d *Device) Enable() error {
	if err := d.WriteRegister(register.State, StateEnable); err != nil {
		log.Errorf("[MD][x%x] enabling failed : %v", d.id, err)
		return err
	}
	log.Infof("[MD][x%x] driver enabled", d.id)
	mode, err := d.MotionMode()
	if err != nil {
		log.Errorf("[MD][x%x] motion status check failed : %v", d.id, err)
		return err
	}
	if mode == MotionModeIdle {
		log.Warnf("[MD][x%x] motion mode not set", d.id)
	}
	return nil
}

func (d *Device) Disable() error {
	if err := d.WriteRegister(register.State, StateDisable); err != nil {
		log.Errorf("[MD][x%x] disabling failed : %v", d.id, err)
		return err
	}
	log.Infof("[MD][x%x] driver disabled", d.id)
	return nil
}

func (d *Device) run(name string) error {
	return d.WriteRegister(name, uint8(1))
}

// Set the current position as zero
func (d *Device) Zero() error {
	return d.run(register.RunZero)
}

func (d *Device) Blink() error {
	return d.run(register.RunBlink)
}

func (d *Device) Reset() error {
	return d.run(register.RunReset)
}

// Clear errors then warnings
func (d *Device) ClearErrors() error {
	if err := d.run(register.RunClearErrors); err != nil {
		return err
	}
	return d.run(register.RunClearWarnings)
}

// Save the configuration to non volatile memory
func (d *Device) Save() error {
	return d.run(register.RunSave)
}

func (d *Device) SetCurrentLimit(current float32) error {
	return d.WriteRegister(register.MotorIMax, current)
}

func (d *Device) SetMaxTorque(torque float32) error {
	return d.WriteRegister(register.MaxTorque, torque)
}

func (d *Device) SetProfileVelocity(velocity float32) error {
	return d.WriteRegister(register.ProfileVelocity, velocity)
}

// Acceleration and deceleration of the motion profile are set together
func (d *Device) SetProfileAcceleration(acceleration float32) error {
	return d.WriteRegisters(
		Value{register.ProfileAcceleration, acceleration},
		Value{register.ProfileDeceleration, acceleration},
	)
}

func (d *Device) SetPositionPID(kp, ki, kd, windup float32) error {
	return d.WriteRegisters(
		Value{register.MotorPosPidKp, kp},
		Value{register.MotorPosPidKi, ki},
		Value{register.MotorPosPidKd, kd},
		Value{register.MotorPosPidWindup, windup},
	)
}

func (d *Device) SetVelocityPID(kp, ki, kd, windup float32) error {
	return d.WriteRegisters(
		Value{register.MotorVelPidKp, kp},
		Value{register.MotorVelPidKi, ki},
		Value{register.MotorVelPidKd, kd},
		Value{register.MotorVelPidWindup, windup},
	)
}

func (d *Device) SetImpedanceParams(kp, kd float32) error {
	return d.WriteRegisters(
		Value{register.MotorImpPidKp, kp},
		Value{register.MotorImpPidKd, kd},
	)
}

func (d *Device) Position() (float32, error) {
	return d.ReadFloat(register.MainEncoderPosition)
}

func (d *Device) Velocity() (float32, error) {
	return d.ReadFloat(register.MainEncoderVelocity)
}

func (d *Device) Torque() (float32, error) {
	return d.ReadFloat(register.MotorTorque)
}

// Motor temperature in °C
func (d *Device) Temperature() (float32, error) {
	return d.ReadFloat(register.MotorTemperature)
}

func (d *Device) QuickStatus() (uint16, error) {
	return d.ReadU16(register.QuickStatus)
}

// Firmware metadata of the drive
type Firmware struct {
	Major    uint8
	Minor    uint8
	Revision uint8
	Tag      uint8
	Hash     string
}

func (f Firmware) String() string {
	version := fmt.Sprintf("%d.%d.%d", f.Major, f.Minor, f.Revision)
	if f.Tag != 0 {
		version += fmt.Sprintf("-%c", f.Tag)
	}
	if f.Hash != "" {
		version += " (" + f.Hash + ")"
	}
	return version
}

// Decode the packed firmware version register
func ParseFirmwareVersion(raw uint32) Firmware {
	return Firmware{
		Tag:      uint8(raw),
		Revision: uint8(raw >> 8),
		Minor:    uint8(raw >> 16),
		Major:    uint8(raw >> 24),
	}
}

func (d *Device) Firmware() (Firmware, error) {
	values, err := d.ReadRegisters(register.FirmwareVersion, register.CommitHash)
	if err != nil {
		return Firmware{}, err
	}
	raw, okVersion := values[0].(uint32)
	hash, okHash := values[1].(string)
	if !okVersion || !okHash {
		return Firmware{}, fmt.Errorf("%w : unexpected firmware register types", candle.ErrTypeMismatch)
	}
	firmware := ParseFirmwareVersion(raw)
	firmware.Hash = hash
	return firmware, nil
}
