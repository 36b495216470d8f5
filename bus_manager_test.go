package candle

import (
	"testing"

	can "github.com/samsamfire/gocandle/pkg/can"
	"github.com/stretchr/testify/assert"
)

type recorder struct {
	frames []can.Frame
}

func (r *recorder) Handle(frame can.Frame) {
	r.frames = append(r.frames, frame)
}

func TestBusManagerDispatch(t *testing.T) {
	bm := NewBusManager(nil)
	exact := &recorder{}
	all := &recorder{}
	assert.Nil(t, bm.Subscribe(0x581, 0x7FF, exact))
	assert.Nil(t, bm.Subscribe(0, 0, all))
	// Adding twice is a no-op
	assert.Nil(t, bm.Subscribe(0x581, 0x7FF, exact))

	bm.Handle(can.Frame{ID: 0x581})
	bm.Handle(can.Frame{ID: 0x582})
	assert.Len(t, exact.frames, 1)
	assert.Len(t, all.frames, 2)

	bm.Unsubscribe(all)
	bm.Handle(can.Frame{ID: 0x581})
	assert.Len(t, exact.frames, 2)
	assert.Len(t, all.frames, 2)
}
