// Package dqmap uploads field oriented control calibration maps to a drive.
//
// A map holds one table per current axis (d and q). Each table is indexed by
// a supply voltage breakpoint and a torque breakpoint, every cell being a row
// of values indexed by velocity breakpoints.
package dqmap

import (
	"fmt"

	candle "github.com/samsamfire/gocandle"
	"github.com/samsamfire/gocandle/pkg/register"
)

// Read back values may differ from written ones by at most Tolerance
const Tolerance = 1e-6

type Axis uint8

const (
	AxisD Axis = iota
	AxisQ
	axisCount
)

func (a Axis) String() string {
	switch a {
	case AxisD:
		return "ID"
	case AxisQ:
		return "IQ"
	}
	return fmt.Sprintf("AXIS(%d)", uint8(a))
}

type Map struct {
	Voltages   []float32
	Torques    []float32
	Velocities []float32
	rows       [axisCount][][][]float32
}

// Create an empty map with nVoltage voltage breakpoints, nRows torque
// breakpoints and nCols velocity breakpoints. Dimensions are bounded by
// the drive registers.
func New(nVoltage, nRows, nCols int) (*Map, error) {
	if nVoltage < 1 || nVoltage > register.MapVoltageCount ||
		nRows < 1 || nRows > register.MapTorqueCount ||
		nCols < 1 || nCols > register.MapVelocityCount {
		return nil, fmt.Errorf("%w : map dimensions %vx%vx%v", candle.ErrInvalidArgs, nVoltage, nRows, nCols)
	}
	m := &Map{
		Voltages:   make([]float32, nVoltage),
		Torques:    make([]float32, nRows),
		Velocities: make([]float32, nCols),
	}
	for axis := range m.rows {
		m.rows[axis] = make([][][]float32, nVoltage)
		for v := range m.rows[axis] {
			m.rows[axis][v] = make([][]float32, nRows)
			for r := range m.rows[axis][v] {
				m.rows[axis][v][r] = make([]float32, nCols)
			}
		}
	}
	return m, nil
}

func (m *Map) Dimensions() (nVoltage, nRows, nCols int) {
	return len(m.Voltages), len(m.Torques), len(m.Velocities)
}

// Row values of (axis, voltage, row), the returned slice is the map storage
func (m *Map) Row(axis Axis, voltage, row int) ([]float32, error) {
	if err := m.checkIndex(axis, voltage, row); err != nil {
		return nil, err
	}
	return m.rows[axis][voltage][row], nil
}

func (m *Map) SetRow(axis Axis, voltage, row int, values []float32) error {
	if err := m.checkIndex(axis, voltage, row); err != nil {
		return err
	}
	if len(values) != len(m.Velocities) {
		return fmt.Errorf("%w : row of %v values, expected %v", candle.ErrInvalidArgs, len(values), len(m.Velocities))
	}
	copy(m.rows[axis][voltage][row], values)
	return nil
}

func (m *Map) checkIndex(axis Axis, voltage, row int) error {
	nVoltage, nRows, _ := m.Dimensions()
	if axis >= axisCount || voltage < 0 || voltage >= nVoltage || row < 0 || row >= nRows {
		return fmt.Errorf("%w : map index (%v,%v,%v)", candle.ErrInvalidArgs, axis, voltage, row)
	}
	return nil
}

// Number of rows sent by an upload
func (m *Map) RowCount() int {
	nVoltage, nRows, _ := m.Dimensions()
	return int(axisCount) * nVoltage * nRows
}

// Check that axis vectors still match the dimensions the map was created with
func (m *Map) validate() error {
	nVoltage, nRows, nCols := m.Dimensions()
	if nVoltage < 1 || nVoltage > register.MapVoltageCount ||
		nRows < 1 || nRows > register.MapTorqueCount ||
		nCols < 1 || nCols > register.MapVelocityCount {
		return fmt.Errorf("%w : map dimensions %vx%vx%v", candle.ErrInvalidArgs, nVoltage, nRows, nCols)
	}
	for _, byVoltage := range m.rows {
		if len(byVoltage) != nVoltage {
			return fmt.Errorf("%w : axis vectors do not match map rows", candle.ErrInvalidArgs)
		}
		for _, byRow := range byVoltage {
			if len(byRow) != nRows {
				return fmt.Errorf("%w : axis vectors do not match map rows", candle.ErrInvalidArgs)
			}
			for _, row := range byRow {
				if len(row) != nCols {
					return fmt.Errorf("%w : axis vectors do not match map rows", candle.ErrInvalidArgs)
				}
			}
		}
	}
	return nil
}

// Copy values into a zero filled slice of the register length
func padded(values []float32, length int) []float32 {
	out := make([]float32, length)
	copy(out, values)
	return out
}
