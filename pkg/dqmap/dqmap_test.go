package dqmap

import (
	"bytes"
	"strings"
	"testing"
	"time"

	candle "github.com/samsamfire/gocandle"
	"github.com/samsamfire/gocandle/internal/sim"
	"github.com/samsamfire/gocandle/pkg/can/virtual"
	"github.com/samsamfire/gocandle/pkg/device"
	"github.com/samsamfire/gocandle/pkg/register"
	"github.com/samsamfire/gocandle/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testId = 0x70

func createTransportTest(t *testing.T) *transport.Transport {
	tr := transport.New(virtual.New(t.Name()))
	require.Nil(t, tr.Connect())
	t.Cleanup(func() { tr.Disconnect() })
	return tr
}

func createUploadTest(t *testing.T) (*device.Device, *sim.MD) {
	tr := createTransportTest(t)
	md := sim.StartMD(t.Name(), testId)
	t.Cleanup(func() { md.Close() })
	return device.New(tr, testId), md
}

// Every cell holds a value unique to its position
func createMapTest(t *testing.T, nVoltage, nRows, nCols int) *Map {
	m, err := New(nVoltage, nRows, nCols)
	require.Nil(t, err)
	for v := range m.Voltages {
		m.Voltages[v] = float32(12 * (v + 1))
	}
	for r := range m.Torques {
		m.Torques[r] = 0.25 * float32(r)
	}
	for c := range m.Velocities {
		m.Velocities[c] = float32(100 * c)
	}
	for axis := AxisD; axis < axisCount; axis++ {
		for v := 0; v < nVoltage; v++ {
			for r := 0; r < nRows; r++ {
				row, _ := m.Row(axis, v, r)
				for c := range row {
					row[c] = float32(axis)*1000 + float32(v)*100 + float32(r) + float32(c)*0.125
				}
			}
		}
	}
	return m
}

func TestNew(t *testing.T) {
	m, err := New(2, 3, 4)
	assert.Nil(t, err)
	nVoltage, nRows, nCols := m.Dimensions()
	assert.Equal(t, []int{2, 3, 4}, []int{nVoltage, nRows, nCols})
	assert.Equal(t, 12, m.RowCount())

	_, err = New(register.MapVoltageCount+1, 3, 4)
	assert.ErrorIs(t, err, candle.ErrInvalidArgs)
	_, err = New(1, 0, 4)
	assert.ErrorIs(t, err, candle.ErrInvalidArgs)
	_, err = m.Row(AxisQ, 2, 0)
	assert.ErrorIs(t, err, candle.ErrInvalidArgs)
	assert.ErrorIs(t, m.SetRow(AxisD, 0, 0, []float32{1}), candle.ErrInvalidArgs)
	assert.Nil(t, m.SetRow(AxisD, 0, 0, []float32{1, 2, 3, 4}))
	row, _ := m.Row(AxisD, 0, 0)
	assert.Equal(t, []float32{1, 2, 3, 4}, row)
}

func TestUpload(t *testing.T) {
	dev, md := createUploadTest(t)
	m := createMapTest(t, 2, 3, 4)

	var progress []int
	err := Upload(dev, m, WithProgress(func(done, total int) {
		assert.Equal(t, 12, total)
		progress = append(progress, done)
	}))
	require.Nil(t, err)
	assert.Len(t, progress, 12)
	assert.Equal(t, 12, progress[11])
	assert.Equal(t, 12, md.RowCount())

	voltages, _ := md.Get(register.MapVoltageValues)
	assert.Equal(t, []float32{12, 24, 0, 0, 0}, voltages)
	low, _ := md.Get(register.MapTorqueValues0)
	assert.Equal(t, float32(0.5), low.([]float32)[2])
	velocities, _ := md.Get(register.MapVelocityValues)
	assert.Equal(t, float32(300), velocities.([]float32)[3])

	for axis := AxisD; axis < axisCount; axis++ {
		for v := 0; v < 2; v++ {
			for r := 0; r < 3; r++ {
				expected, _ := m.Row(axis, v, r)
				stored := md.Row(int(axis), v, r)
				require.Len(t, stored, register.MapVelocityCount)
				assert.Equal(t, expected, stored[:4])
				assert.Equal(t, make([]float32, register.MapVelocityCount-4), stored[4:])
			}
		}
	}
}

func TestUploadFullSize(t *testing.T) {
	dev, md := createUploadTest(t)
	m := createMapTest(t, register.MapVoltageCount, register.MapTorqueCount, register.MapVelocityCount)
	require.Nil(t, Upload(dev, m))
	assert.Equal(t, 2*register.MapVoltageCount*register.MapTorqueCount, md.RowCount())
	high, _ := md.Get(register.MapTorqueValues1)
	assert.Equal(t, []float32{3.75, 4}, high)
}

func TestUploadVerification(t *testing.T) {
	dev, md := createUploadTest(t)
	m := createMapTest(t, 2, 3, 4)
	md.CorruptRow(int(AxisD), 1, 0)

	err := Upload(dev, m)
	assert.ErrorIs(t, err, candle.ErrVerificationFailed)
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, AxisD, verr.Axis)
	assert.Equal(t, 1, verr.Voltage)
	assert.Equal(t, 0, verr.Row)
	assert.Equal(t, 0, verr.Col)
	assert.Equal(t, verr.Written+1, verr.ReadBack)

	// Nothing written past the failing row
	assert.Equal(t, 4, md.RowCount())
	assert.Nil(t, md.Row(int(AxisD), 1, 1))
	assert.Nil(t, md.Row(int(AxisQ), 0, 0))
}

func TestUploadRowError(t *testing.T) {
	tr := createTransportTest(t)
	// Acknowledges writes but refuses every read
	acker := sim.StartResponder(t.Name(), testId, []byte{device.ResponseDefault, 0x00}, false)
	defer acker.Close()
	dev := device.New(tr, testId)

	err := Upload(dev, createMapTest(t, 1, 1, 1))
	assert.ErrorIs(t, err, candle.ErrAccessDenied)
	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, "read back", rowErr.Step)
	assert.Equal(t, AxisD, rowErr.Axis)
	// Four axis vectors, then select, write and read of the first row
	assert.Len(t, acker.Requests(), 7)
}

func TestUploadInvalidMap(t *testing.T) {
	dev, md := createUploadTest(t)
	assert.ErrorIs(t, Upload(dev, &Map{}), candle.ErrInvalidArgs)

	m := createMapTest(t, 2, 1, 1)
	m.rows[AxisQ] = m.rows[AxisQ][:1]
	assert.ErrorIs(t, Upload(dev, m), candle.ErrInvalidArgs)

	m = createMapTest(t, 1, 1, 1)
	m.Velocities = nil
	assert.ErrorIs(t, Upload(dev, m), candle.ErrInvalidArgs)
	assert.Empty(t, md.Requests())
}

func TestUploadTimeout(t *testing.T) {
	dev, md := createUploadTest(t)
	dev = dev.WithTimeout(20 * time.Millisecond)
	md.SetSilent(true)
	err := Upload(dev, createMapTest(t, 1, 1, 1))
	assert.ErrorIs(t, err, candle.ErrTimeout)
	assert.Equal(t, 0, md.RowCount())
}

func TestEnableMaps(t *testing.T) {
	dev, md := createUploadTest(t)
	require.Nil(t, EnableMaps(dev))
	iq, _ := md.Get(register.IqControlMode)
	id, _ := md.Get(register.IdControlMode)
	assert.Equal(t, uint8(1), iq)
	assert.Equal(t, uint8(1), id)
}

func TestCSV(t *testing.T) {
	m := createMapTest(t, 2, 3, 4)
	m.Velocities = make([]float32, 4)
	var buf bytes.Buffer
	require.Nil(t, WriteCSV(&buf, m))
	assert.True(t, strings.HasPrefix(buf.String(), "idiq,voltage,torque,rpm0,rpm1,rpm2,rpm3\n"))

	parsed, err := ParseCSV(bytes.NewReader(buf.Bytes()), 2, 3, 4)
	require.Nil(t, err)
	assert.Equal(t, m, parsed)

	t.Run("wrong header", func(t *testing.T) {
		_, err := ParseCSV(strings.NewReader("iqid,voltage,torque,rpm0\n"), 1, 1, 1)
		assert.ErrorIs(t, err, candle.ErrMalformedPayload)
	})
	t.Run("missing rows", func(t *testing.T) {
		_, err := ParseCSV(strings.NewReader("idiq,voltage,torque,rpm0\n0,24,0,1.5\n"), 1, 1, 1)
		assert.ErrorIs(t, err, candle.ErrMalformedPayload)
	})
	t.Run("extra rows", func(t *testing.T) {
		csv := "idiq,voltage,torque,rpm0\n0,24,0,1.5\n1,24,0,2\n1,24,0,2\n"
		_, err := ParseCSV(strings.NewReader(csv), 1, 1, 1)
		assert.ErrorIs(t, err, candle.ErrMalformedPayload)
	})
	t.Run("wrong axis order", func(t *testing.T) {
		csv := "idiq,voltage,torque,rpm0\n1,24,0,1.5\n0,24,0,2\n"
		_, err := ParseCSV(strings.NewReader(csv), 1, 1, 1)
		assert.ErrorIs(t, err, candle.ErrMalformedPayload)
	})
	t.Run("not a number", func(t *testing.T) {
		csv := "idiq,voltage,torque,rpm0\n0,24,0,abc\n1,24,0,2\n"
		_, err := ParseCSV(strings.NewReader(csv), 1, 1, 1)
		assert.ErrorIs(t, err, candle.ErrMalformedPayload)
	})
	t.Run("single row", func(t *testing.T) {
		csv := "idiq,voltage,torque,rpm0\n0,24,0.5,1.5\n1,24,0.5,-2\n"
		parsed, err := ParseCSV(strings.NewReader(csv), 1, 1, 1)
		require.Nil(t, err)
		assert.Equal(t, []float32{24}, parsed.Voltages)
		assert.Equal(t, []float32{0.5}, parsed.Torques)
		row, _ := parsed.Row(AxisQ, 0, 0)
		assert.Equal(t, []float32{-2}, row)
	})
}
