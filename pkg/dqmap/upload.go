package dqmap

import (
	"fmt"
	"math"

	candle "github.com/samsamfire/gocandle"
	"github.com/samsamfire/gocandle/pkg/device"
	"github.com/samsamfire/gocandle/pkg/register"
	log "github.com/sirupsen/logrus"
)

// Read back row differs from the written one
type VerificationError struct {
	Axis     Axis
	Voltage  int
	Row      int
	Col      int
	Written  float32
	ReadBack float32
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed for row (%v,%v,%v) col %v : wrote %v read %v",
		e.Axis, e.Voltage, e.Row, e.Col, e.Written, e.ReadBack)
}

func (e *VerificationError) Is(target error) bool {
	return target == candle.ErrVerificationFailed
}

// A row transaction failed before it could be verified
type RowError struct {
	Axis    Axis
	Voltage int
	Row     int
	Step    string
	Err     error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row (%v,%v,%v) %v : %v", e.Axis, e.Voltage, e.Row, e.Step, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Called after every verified row
type ProgressFunc func(done int, total int)

type uploadConfig struct {
	progress ProgressFunc
}

type Option func(c *uploadConfig)

func WithProgress(progress ProgressFunc) Option {
	return func(c *uploadConfig) {
		c.progress = progress
	}
}

// Upload m to the drive. Axis vectors are written first, then every row is
// selected, written and read back in (axis, voltage, row) order. The upload
// stops at the first failing row.
func Upload(dev *device.Device, m *Map, opts ...Option) error {
	config := uploadConfig{}
	for _, opt := range opts {
		opt(&config)
	}
	if err := m.validate(); err != nil {
		return err
	}
	if err := uploadAxes(dev, m); err != nil {
		return err
	}
	nVoltage, nRows, _ := m.Dimensions()
	total := m.RowCount()
	done := 0
	for axis := AxisD; axis < axisCount; axis++ {
		for voltage := 0; voltage < nVoltage; voltage++ {
			for row := 0; row < nRows; row++ {
				if err := uploadRow(dev, m, axis, voltage, row); err != nil {
					log.Errorf("[DQMAP][x%x] upload stopped : %v", dev.ID(), err)
					return err
				}
				done++
				if config.progress != nil {
					config.progress(done, total)
				}
			}
		}
	}
	log.Infof("[DQMAP][x%x] uploaded %v rows", dev.ID(), total)
	return nil
}

func uploadAxes(dev *device.Device, m *Map) error {
	torques := padded(m.Torques, register.MapTorqueCount)
	axes := []device.Value{
		{Name: register.MapVoltageValues, Value: padded(m.Voltages, register.MapVoltageCount)},
		{Name: register.MapTorqueValues0, Value: torques[:register.MapTorqueCount-2]},
		{Name: register.MapTorqueValues1, Value: torques[register.MapTorqueCount-2:]},
		{Name: register.MapVelocityValues, Value: padded(m.Velocities, register.MapVelocityCount)},
	}
	for _, axis := range axes {
		if err := dev.WriteRegisters(axis); err != nil {
			return fmt.Errorf("%w : writing %v", err, axis.Name)
		}
	}
	log.Debugf("[DQMAP][x%x] axis vectors written", dev.ID())
	return nil
}

// Select, write then verify a single row. Never batched since the drive
// latches the row selected last.
func uploadRow(dev *device.Device, m *Map, axis Axis, voltage, row int) error {
	rowErr := func(step string, err error) error {
		return &RowError{Axis: axis, Voltage: voltage, Row: row, Step: step, Err: err}
	}
	written := padded(m.rows[axis][voltage][row], register.MapVelocityCount)
	selection := []uint8{uint8(axis), uint8(voltage), uint8(row)}
	if err := dev.WriteRegister(register.MapSelectRow, selection); err != nil {
		return rowErr("select", err)
	}
	if err := dev.WriteRegister(register.MapRowData, written); err != nil {
		return rowErr("write", err)
	}
	readBack, err := dev.ReadFloatArray(register.MapRowData)
	if err != nil {
		return rowErr("read back", err)
	}
	if len(readBack) != len(written) {
		return rowErr("read back", fmt.Errorf("%w : %v values", candle.ErrMalformedPayload, len(readBack)))
	}
	for col := range written {
		diff := math.Abs(float64(written[col]) - float64(readBack[col]))
		if diff > Tolerance || math.IsNaN(diff) {
			return &VerificationError{
				Axis: axis, Voltage: voltage, Row: row, Col: col,
				Written: written[col], ReadBack: readBack[col],
			}
		}
	}
	log.Debugf("[DQMAP][x%x] row (%v,%v,%v) verified", dev.ID(), axis, voltage, row)
	return nil
}

// Switch both current loops to map based control
func EnableMaps(dev *device.Device) error {
	return dev.WriteRegisters(
		device.Value{Name: register.IqControlMode, Value: uint8(1)},
		device.Value{Name: register.IdControlMode, Value: uint8(1)},
	)
}
