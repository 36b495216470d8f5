package virtual

import (
	"sync"
	"testing"
	"time"

	can "github.com/samsamfire/gocandle/pkg/can"
	"github.com/stretchr/testify/assert"
)

type FrameReceiver struct {
	mu     sync.Mutex
	frames []can.Frame
}

func (frameReceiver *FrameReceiver) Handle(frame can.Frame) {
	frameReceiver.mu.Lock()
	defer frameReceiver.mu.Unlock()
	frameReceiver.frames = append(frameReceiver.frames, frame)
}

func (frameReceiver *FrameReceiver) count() int {
	frameReceiver.mu.Lock()
	defer frameReceiver.mu.Unlock()
	return len(frameReceiver.frames)
}

func TestSendAndSubscribe(t *testing.T) {
	vcan1 := New(t.Name())
	vcan2 := New(t.Name())
	defer vcan1.Disconnect()
	defer vcan2.Disconnect()
	receiver := &FrameReceiver{}
	assert.Nil(t, vcan2.Subscribe(receiver))
	frame := can.Frame{ID: 0x111, DLC: 8, Data: [64]byte{0, 1, 2, 3, 4, 5, 6, 7}}
	for i := 0; i < 100; i++ {
		frame.Data[0] = uint8(i)
		assert.Nil(t, vcan1.Send(frame))
	}
	assert.Eventually(t, func() bool { return receiver.count() == 100 }, time.Second, 5*time.Millisecond)
	receiver.mu.Lock()
	defer receiver.mu.Unlock()
	for i, received := range receiver.frames {
		assert.Equal(t, uint8(i), received.Data[0])
	}
}

func TestReceiveOwn(t *testing.T) {
	vcan := New(t.Name())
	defer vcan.Disconnect()
	receiver := &FrameReceiver{}
	assert.Nil(t, vcan.Subscribe(receiver))
	assert.Nil(t, vcan.Send(can.Frame{ID: 0x10, DLC: 1}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, receiver.count())
	vcan.SetReceiveOwn(true)
	assert.Nil(t, vcan.Send(can.Frame{ID: 0x10, DLC: 1}))
	assert.Eventually(t, func() bool { return receiver.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestChannelsAreIsolated(t *testing.T) {
	vcan1 := New(t.Name() + "a")
	vcan2 := New(t.Name() + "b")
	defer vcan1.Disconnect()
	defer vcan2.Disconnect()
	receiver := &FrameReceiver{}
	assert.Nil(t, vcan2.Subscribe(receiver))
	assert.Nil(t, vcan1.Send(can.Frame{ID: 0x10, DLC: 1}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, receiver.count())
}

func TestSendDisconnected(t *testing.T) {
	bus, err := can.NewBus("virtual", t.Name(), 0)
	assert.Nil(t, err)
	assert.ErrorIs(t, bus.Send(can.Frame{ID: 0x10}), ErrNotConnected)
	assert.ErrorIs(t, bus.Subscribe(&FrameReceiver{}), ErrNotConnected)
}
