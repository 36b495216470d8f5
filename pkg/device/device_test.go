package device

import (
	"sync"
	"testing"
	"time"

	candle "github.com/samsamfire/gocandle"
	"github.com/samsamfire/gocandle/internal/sim"
	"github.com/samsamfire/gocandle/pkg/can/virtual"
	"github.com/samsamfire/gocandle/pkg/register"
	"github.com/samsamfire/gocandle/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testId = 0x64

func createTransportTest(t *testing.T) *transport.Transport {
	tr := transport.New(virtual.New(t.Name()))
	require.Nil(t, tr.Connect())
	t.Cleanup(func() { tr.Disconnect() })
	return tr
}

func createDeviceTest(t *testing.T) (*Device, *sim.MD) {
	tr := createTransportTest(t)
	md := sim.StartMD(t.Name(), testId)
	t.Cleanup(func() { md.Close() })
	return New(tr, testId), md
}

func TestInit(t *testing.T) {
	d, md := createDeviceTest(t)
	assert.Nil(t, d.Init())

	md.Set(register.LegacyHardwareVersion, uint8(0))
	assert.ErrorIs(t, d.Init(), candle.ErrNotConnected)

	md.SetSilent(true)
	err := d.WithTimeout(20 * time.Millisecond).Init()
	assert.ErrorIs(t, err, candle.ErrNotConnected)
}

func TestReadWriteRegister(t *testing.T) {
	d, md := createDeviceTest(t)

	t.Run("scalar", func(t *testing.T) {
		assert.Nil(t, d.WriteRegister(register.MaxTorque, float32(1.5)))
		value, err := d.ReadFloat(register.MaxTorque)
		assert.Nil(t, err)
		assert.Equal(t, float32(1.5), value)
		id, err := d.ReadU32(register.CanID)
		assert.Nil(t, err)
		assert.EqualValues(t, testId, id)
	})
	t.Run("string", func(t *testing.T) {
		assert.Nil(t, d.WriteString(register.MotorName, "AK80-9"))
		name, err := d.ReadString(register.MotorName)
		assert.Nil(t, err)
		assert.Equal(t, "AK80-9", name)
		assert.ErrorIs(t, d.WriteString(register.MaxTorque, "1"), candle.ErrTypeMismatch)
	})
	t.Run("array", func(t *testing.T) {
		voltages := []float32{12, 24, 36, 48, 60}
		assert.Nil(t, d.WriteArray(register.MapVoltageValues, voltages))
		read, err := d.ReadFloatArray(register.MapVoltageValues)
		assert.Nil(t, err)
		assert.Equal(t, voltages, read)
		assert.ErrorIs(t, d.WriteArray(register.MapVoltageValues, []float32{1}), candle.ErrTypeMismatch)
		assert.ErrorIs(t, d.WriteArray(register.MaxTorque, []float32{1}), candle.ErrTypeMismatch)
	})
	t.Run("by id", func(t *testing.T) {
		assert.Nil(t, d.WriteRegisterByID(0x112, register.Scalar(register.F32), float32(3)))
		value, err := d.ReadRegisterByID(0x112, register.Scalar(register.F32))
		assert.Nil(t, err)
		assert.Equal(t, float32(3), value)
		_, err = d.ReadRegisterByID(0x112, register.Scalar(register.U8))
		assert.ErrorIs(t, err, candle.ErrTypeMismatch)
	})
	t.Run("type mismatch sends nothing", func(t *testing.T) {
		md.ClearRequests()
		assert.ErrorIs(t, d.WriteRegister(register.MaxTorque, 1.5), candle.ErrTypeMismatch)
		assert.ErrorIs(t, d.WriteRegister(register.MotorName, "a name much longer than 24 chars"), candle.ErrTypeMismatch)
		assert.Empty(t, md.Requests())
	})
	t.Run("unknown register", func(t *testing.T) {
		_, err := d.ReadRegister("motorname")
		assert.ErrorIs(t, err, candle.ErrUnknownRegister)
		assert.ErrorIs(t, d.WriteRegister("nope", uint8(1)), candle.ErrUnknownRegister)
	})
}

func TestAccessDenied(t *testing.T) {
	d, md := createDeviceTest(t)
	md.ClearRequests()

	assert.ErrorIs(t, d.WriteRegister(register.MotorTemperature, float32(1)), candle.ErrAccessDenied)
	_, err := d.ReadRegister(register.RunSave)
	assert.ErrorIs(t, err, candle.ErrAccessDenied)
	assert.ErrorIs(t, d.WriteRegisterByID(0x807, register.Scalar(register.F32), float32(1)), candle.ErrAccessDenied)
	assert.Empty(t, md.Requests())

	// Refused by the drive itself
	err = d.WriteRegisterByID(0x999, register.Scalar(register.U8), uint8(1))
	assert.ErrorIs(t, err, candle.ErrAccessDenied)
	_, err = d.ReadRegisterByID(0x999, register.Scalar(register.U8))
	assert.ErrorIs(t, err, candle.ErrAccessDenied)
	assert.Len(t, md.Requests(), 2)
}

func TestTimeout(t *testing.T) {
	d, md := createDeviceTest(t)
	md.SetSilent(true)
	fast := d.WithTimeout(20 * time.Millisecond)
	assert.Equal(t, DefaultTimeout, d.Timeout())

	start := time.Now()
	_, err := fast.ReadRegister(register.MaxTorque)
	assert.ErrorIs(t, err, candle.ErrTimeout)
	assert.Less(t, time.Since(start), DefaultTimeout)
}

func TestMultipleRegisters(t *testing.T) {
	d, md := createDeviceTest(t)

	err := d.WriteRegisters(
		Value{register.TargetPosition, float32(1)},
		Value{register.TargetVelocity, float32(2)},
	)
	assert.Nil(t, err)
	md.ClearRequests()
	values, err := d.ReadRegisters(register.TargetPosition, register.TargetVelocity)
	assert.Nil(t, err)
	assert.Equal(t, []any{float32(1), float32(2)}, values)
	assert.Equal(t, [][]byte{{0x41, 0x00, 0x50, 0x01, 0, 0, 0, 0, 0x51, 0x01, 0, 0, 0, 0}}, md.Requests())

	_, err = d.ReadRegisters(register.MapRowData, register.MapVelocityValues)
	assert.ErrorIs(t, err, candle.ErrFrameTooLong)
	_, err = d.ReadRegisters()
	assert.ErrorIs(t, err, candle.ErrInvalidArgs)

	// Whole frame refused when one register is read only
	err = d.WriteRegisters(
		Value{register.TargetPosition, float32(5)},
		Value{register.MotorTorque, float32(5)},
	)
	assert.ErrorIs(t, err, candle.ErrAccessDenied)
	position, _ := md.Get(register.TargetPosition)
	assert.Equal(t, float32(1), position)
}

func TestMalformedResponse(t *testing.T) {
	tr := createTransportTest(t)

	wrongAddress := sim.StartResponder(t.Name(), 0x30, []byte{0x41, 0x00, 0x99, 0x09, 0, 0, 0, 0}, false)
	defer wrongAddress.Close()
	_, err := New(tr, 0x30).ReadRegister(register.MaxTorque)
	assert.ErrorIs(t, err, candle.ErrMalformedPayload)

	truncated := sim.StartResponder(t.Name(), 0x31, []byte{0x41, 0x00, 0x12, 0x01}, false)
	defer truncated.Close()
	_, err = New(tr, 0x31).ReadRegister(register.MaxTorque)
	assert.ErrorIs(t, err, candle.ErrMalformedPayload)

	nack := sim.StartResponder(t.Name(), 0x32, []byte{0x02}, false)
	defer nack.Close()
	assert.ErrorIs(t, New(tr, 0x32).WriteRegister(register.MaxTorque, float32(1)), candle.ErrAccessDenied)
}

func TestFirmware(t *testing.T) {
	d, _ := createDeviceTest(t)
	firmware, err := d.Firmware()
	assert.Nil(t, err)
	assert.Equal(t, Firmware{Major: 1, Minor: 4, Revision: 1, Hash: sim.CommitHash}, firmware)
	assert.Equal(t, "1.4.1 (a1b2c3d4)", firmware.String())
	assert.Equal(t, "2.0.0-r", ParseFirmwareVersion(0x02000072).String())
}

func TestMotion(t *testing.T) {
	d, md := createDeviceTest(t)

	assert.Nil(t, d.SetMotionMode(MotionModeVelocityPID))
	assert.Nil(t, d.Enable())
	mode, err := d.MotionMode()
	assert.Nil(t, err)
	assert.Equal(t, MotionModeVelocityPID, mode)
	assert.Nil(t, d.SetTargetVelocity(10))
	velocity, _ := md.Get(register.TargetVelocity)
	assert.Equal(t, float32(10), velocity)

	assert.Nil(t, d.Disable())
	mode, _ = d.MotionMode()
	assert.Equal(t, MotionModeIdle, mode)
	assert.Equal(t, "IDLE", mode.String())
	assert.Equal(t, "MODE(9)", MotionMode(9).String())

	assert.Nil(t, d.SetProfileAcceleration(5))
	deceleration, _ := md.Get(register.ProfileDeceleration)
	assert.Equal(t, float32(5), deceleration)

	md.ClearRequests()
	assert.Nil(t, d.ClearErrors())
	requests := md.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, []byte{0x40, 0x00, 0x8A, 0x00, 0x01}, requests[0])
	assert.Equal(t, []byte{0x40, 0x00, 0x89, 0x00, 0x01}, requests[1])

	temperature, err := d.Temperature()
	assert.Nil(t, err)
	assert.Equal(t, float32(25), temperature)
}

func TestSharedTransport(t *testing.T) {
	tr := createTransportTest(t)
	ids := []uint16{0x10, 0x11, 0x12, 0x13}
	for _, id := range ids {
		md := sim.StartMD(t.Name(), id)
		defer md.Close()
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(d *Device) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				canId, err := d.ReadU32(register.CanID)
				assert.Nil(t, err)
				assert.EqualValues(t, d.ID(), canId)
			}
		}(New(tr, id))
	}
	wg.Wait()
}
