package sdo

import (
	"sync"
	"testing"
	"time"

	candle "github.com/samsamfire/gocandle"
	"github.com/samsamfire/gocandle/internal/sim"
	can "github.com/samsamfire/gocandle/pkg/can"
	"github.com/samsamfire/gocandle/pkg/can/virtual"
	"github.com/samsamfire/gocandle/pkg/od"
	"github.com/samsamfire/gocandle/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNodeId = 0x10

func createClientTest(t *testing.T) (*Client, *sim.SdoServer) {
	tr := transport.New(virtual.New(t.Name()))
	require.Nil(t, tr.Connect())
	peer := virtual.New(t.Name())
	server := sim.NewSdoServer(peer, testNodeId, od.Default())
	require.Nil(t, peer.Subscribe(server))
	t.Cleanup(func() {
		tr.Disconnect()
		peer.Disconnect()
	})
	client, err := NewClient(tr, testNodeId, od.Default())
	require.Nil(t, err)
	return client, server
}

func TestNewClient(t *testing.T) {
	tr := transport.New(virtual.New(t.Name()))
	_, err := NewClient(tr, 0, nil)
	assert.ErrorIs(t, err, candle.ErrInvalidArgs)
	_, err = NewClient(tr, 128, nil)
	assert.ErrorIs(t, err, candle.ErrInvalidArgs)
	client, err := NewClient(tr, 5, nil)
	assert.Nil(t, err)
	assert.Equal(t, StateIdle, client.State())
}

func TestExpedited(t *testing.T) {
	client, server := createClientTest(t)

	t.Run("read", func(t *testing.T) {
		value, err := client.ReadShort(0x1000, 0)
		assert.Nil(t, err)
		assert.EqualValues(t, 0x192, value)
		assert.Equal(t, StateCompleted, client.State())
	})
	t.Run("write width from dictionary", func(t *testing.T) {
		assert.Nil(t, client.WriteShort(IndexControlword, 0, 0x0F, 0))
		data, _ := server.Get(IndexControlword, 0)
		assert.Equal(t, []byte{0x0F, 0x00}, data)
		value, err := client.ReadShort(IndexControlword, 0)
		assert.Nil(t, err)
		assert.EqualValues(t, 0x0F, value)
	})
	t.Run("value out of range", func(t *testing.T) {
		err := client.WriteShort(IndexControlword, 0, 0x10000, 0)
		assert.ErrorIs(t, err, candle.ErrTypeMismatch)
		err = client.WriteShort(IndexControlword, 0, 1, 3)
		assert.ErrorIs(t, err, candle.ErrInvalidArgs)
	})
	t.Run("width mismatch on server", func(t *testing.T) {
		err := client.Raw().WriteShort(IndexControlword, 0, 1, 4)
		assert.ErrorIs(t, err, AbortDataLong)
	})
}

func TestSignExtension(t *testing.T) {
	client, server := createClientTest(t)

	server.Set(0x6064, 0, []byte{0xFF, 0xFF, 0xFF, 0xFF})
	value, err := client.ReadShort(0x6064, 0)
	assert.Nil(t, err)
	assert.EqualValues(t, -1, value)

	server.Set(0x6077, 0, []byte{0x00, 0x80})
	value, err = client.ReadShort(0x6077, 0)
	assert.Nil(t, err)
	assert.EqualValues(t, -32768, value)

	// Expedited answer without size, 4 bytes for a 2 byte object
	server.OmitSize(true)
	value, err = client.ReadShort(0x6077, 0)
	assert.Nil(t, err)
	assert.EqualValues(t, -32768, value)
	server.Set(0x6077, 0, []byte{0xFF, 0x7F})
	value, err = client.ReadShort(0x6077, 0)
	assert.Nil(t, err)
	assert.EqualValues(t, 0x7FFF, value)
	server.OmitSize(false)

	// Unsigned object, explicit sign extension
	server.Set(0x3000, 0, []byte{0xFE})
	raw := client.Raw()
	value, err = raw.ReadShort(0x3000, 0)
	assert.Nil(t, err)
	assert.EqualValues(t, 0xFE, value)
	value, err = raw.ReadSigned(0x3000, 0, 8)
	assert.Nil(t, err)
	assert.EqualValues(t, -2, value)
	_, err = raw.ReadSigned(0x3000, 0, 12)
	assert.ErrorIs(t, err, candle.ErrInvalidArgs)
}

func TestAccessChecks(t *testing.T) {
	client, server := createClientTest(t)
	server.Set(0x6064, 0, []byte{1, 0, 0, 0})

	t.Run("read only refused locally", func(t *testing.T) {
		err := client.WriteShort(0x6064, 0, 5, 0)
		assert.ErrorIs(t, err, candle.ErrAccessDenied)
		data, _ := server.Get(0x6064, 0)
		assert.Equal(t, []byte{1, 0, 0, 0}, data)
		assert.Equal(t, StateIdle, client.State())
	})
	t.Run("unknown index", func(t *testing.T) {
		_, err := client.ReadShort(0x5FFF, 0)
		assert.ErrorIs(t, err, candle.ErrUnknownIndex)
		_, err = client.ReadByName("does not exist")
		assert.ErrorIs(t, err, candle.ErrUnknownIndex)
	})
	t.Run("raw access refused by server", func(t *testing.T) {
		raw := client.Raw()
		err := raw.WriteShort(0x6064, 0, 5, 4)
		assert.ErrorIs(t, err, candle.ErrAccessDenied)
		code, ok := AsAbortCode(err)
		assert.True(t, ok)
		assert.Equal(t, AbortReadOnly, code)
		assert.Equal(t, StateAborted, raw.State())

		_, err = raw.ReadShort(0x5FFF, 0)
		assert.ErrorIs(t, err, candle.ErrUnknownIndex)
		_, err = raw.ReadShort(0x1000, 7)
		assert.ErrorIs(t, err, candle.ErrUnknownIndex)
		code, _ = AsAbortCode(err)
		assert.Equal(t, AbortSubUnknown, code)
	})
}

func TestSegmented(t *testing.T) {
	client, server := createClientTest(t)
	const motorName uint16 = 0x2000
	const motorNameSub uint8 = 6

	for _, size := range []int{5, 7, 14, 20, 24} {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte('a' + i)
		}
		assert.Nil(t, client.WriteLong(motorName, motorNameSub, data))
		stored, _ := server.Get(motorName, motorNameSub)
		assert.Equal(t, data, stored)
		read, err := client.ReadLong(motorName, motorNameSub)
		assert.Nil(t, err)
		assert.Equal(t, data, read)
		assert.Equal(t, StateCompleted, client.State())
	}

	t.Run("by name", func(t *testing.T) {
		assert.Nil(t, client.WriteByName("Motor Settings.Motor Name", "AK80-9 test motor"))
		value, err := client.ReadByName("Motor Settings.Motor Name")
		assert.Nil(t, err)
		assert.Equal(t, "AK80-9 test motor", value)

		assert.Nil(t, client.WriteByName("Controlword", 6))
		value, err = client.ReadByName("Controlword")
		assert.Nil(t, err)
		assert.Equal(t, uint64(6), value)
	})
	t.Run("long read of a short object", func(t *testing.T) {
		data, err := client.ReadLong(0x1000, 0)
		assert.Nil(t, err)
		assert.Equal(t, []byte{0x92, 0x01, 0, 0}, data)
	})
}

func TestSegmentedToggleFault(t *testing.T) {
	client, server := createClientTest(t)
	data := []byte("a motor name of 24 chars")

	server.FlipToggleAt(1)
	err := client.WriteLong(0x2000, 6, data)
	assert.ErrorIs(t, err, candle.ErrSegmentedTransferAborted)
	code, _ := AsAbortCode(err)
	assert.Equal(t, AbortToggleBit, code)
	assert.Equal(t, StateAborted, client.State())

	server.FlipToggleAt(-1)
	server.Set(0x2000, 6, data)
	server.FlipToggleAt(0)
	_, err = client.ReadLong(0x2000, 6)
	assert.ErrorIs(t, err, candle.ErrSegmentedTransferAborted)

	// Server went back to idle on abort, next transfer succeeds
	server.FlipToggleAt(-1)
	read, err := client.ReadLong(0x2000, 6)
	assert.Nil(t, err)
	assert.Equal(t, data, read)
}

func TestSegmentStall(t *testing.T) {
	client, server := createClientTest(t)
	client = client.WithTimeout(20 * time.Millisecond)

	server.StallAt(2)
	err := client.WriteLong(0x2000, 6, []byte("a motor name of 24 chars"))
	assert.ErrorIs(t, err, candle.ErrSegmentedTransferAborted)
	assert.ErrorIs(t, err, candle.ErrTimeout)
	assert.Equal(t, StateAborted, client.State())
}

func TestSilentServer(t *testing.T) {
	client, server := createClientTest(t)
	client = client.WithTimeout(20 * time.Millisecond)
	server.SetSilent(true)

	_, err := client.ReadShort(0x1000, 0)
	assert.ErrorIs(t, err, candle.ErrTimeout)
	assert.NotErrorIs(t, err, candle.ErrSegmentedTransferAborted)
	assert.Equal(t, StateTimedOut, client.State())
}

func TestAbortCodeIs(t *testing.T) {
	assert.ErrorIs(t, AbortToggleBit, candle.ErrSegmentedTransferAborted)
	assert.ErrorIs(t, AbortTimeout, candle.ErrSegmentedTransferAborted)
	assert.ErrorIs(t, AbortNotExist, candle.ErrUnknownIndex)
	assert.ErrorIs(t, AbortSubUnknown, candle.ErrUnknownIndex)
	assert.ErrorIs(t, AbortReadOnly, candle.ErrAccessDenied)
	assert.ErrorIs(t, AbortWriteOnly, candle.ErrAccessDenied)
	assert.NotErrorIs(t, AbortGeneral, candle.ErrAccessDenied)
	assert.Equal(t, "x5030000 : Toggle bit not altered", AbortToggleBit.Error())
	assert.Equal(t, "General error", AbortCode(0x1234).Description())
}

func TestCiA402(t *testing.T) {
	client, server := createClientTest(t)

	assert.Nil(t, client.Enable(ModeCyclicSyncVelocity))
	mode, _ := server.Get(IndexModesOfOperation, 0)
	assert.Equal(t, []byte{9}, mode)
	controlword, _ := server.Get(IndexControlword, 0)
	assert.Equal(t, []byte{0x0F, 0}, controlword)

	assert.Nil(t, client.Disable())
	mode, _ = server.Get(IndexModesOfOperation, 0)
	assert.Equal(t, []byte{0}, mode)
	controlword, _ = server.Get(IndexControlword, 0)
	assert.Equal(t, []byte{0x06, 0}, controlword)

	assert.Nil(t, client.Save())
	save, _ := server.Get(IndexStoreParameters, 1)
	assert.Equal(t, []byte("save"), save)
}

type collector struct {
	mu     sync.Mutex
	frames []can.Frame
}

func (c *collector) Handle(frame can.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
}

func (c *collector) received() []can.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]can.Frame(nil), c.frames...)
}

func TestPDO(t *testing.T) {
	id, err := RPDO(1, 5)
	assert.Nil(t, err)
	assert.EqualValues(t, 0x205, id)
	id, err = TPDO(4, 5)
	assert.Nil(t, err)
	assert.EqualValues(t, 0x485, id)
	_, err = RPDO(5, 5)
	assert.ErrorIs(t, err, candle.ErrInvalidArgs)

	client, _ := createClientTest(t)
	listener := virtual.New(t.Name())
	defer listener.Disconnect()
	col := &collector{}
	require.Nil(t, listener.Subscribe(col))

	err = client.WritePDO(0x205, make([]byte, 9))
	assert.ErrorIs(t, err, candle.ErrFrameTooLong)
	assert.Nil(t, client.WritePDO(0x205, []byte{1, 2, 3}))
	assert.Nil(t, client.SendCustomData(0x7F0, make([]byte, 64)))

	assert.Eventually(t, func() bool { return len(col.received()) == 2 }, time.Second, 5*time.Millisecond)
	frames := col.received()
	assert.EqualValues(t, 0x205, frames[0].ID)
	assert.Equal(t, []byte{1, 2, 3}, frames[0].Payload())
	assert.EqualValues(t, 64, frames[1].DLC)
}
