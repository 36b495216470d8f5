package candle

import (
	"sync"

	can "github.com/samsamfire/gocandle/pkg/can"
	log "github.com/sirupsen/logrus"
)

type subscription struct {
	ident    uint32
	mask     uint32
	callback can.FrameListener
}

// Bus manager is a wrapper around the CAN bus interface
// Used by the transport to dispatch received frames to listeners
// subscribed on specific IDs (or ID ranges with a mask).
type BusManager struct {
	mu            sync.Mutex
	bus           can.Bus // Bus interface that can be adapted
	subscriptions []subscription
}

// Implements the FrameListener interface
// This handles all received CAN frames from Bus
func (bm *BusManager) Handle(frame can.Frame) {
	bm.mu.Lock()
	listeners := make([]can.FrameListener, 0, len(bm.subscriptions))
	for _, sub := range bm.subscriptions {
		if frame.ID&sub.mask == sub.ident&sub.mask {
			listeners = append(listeners, sub.callback)
		}
	}
	bm.mu.Unlock()
	for _, listener := range listeners {
		listener.Handle(frame)
	}
}

// Set bus
func (bm *BusManager) SetBus(bus can.Bus) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.bus = bus
}

func (bm *BusManager) Bus() can.Bus {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.bus
}

// Send a CAN message
// Limited error handling
func (bm *BusManager) Send(frame can.Frame) error {
	err := bm.Bus().Send(frame)
	if err != nil {
		log.Warnf("[CAN] %v", err)
	}
	return err
}

// Subscribe to frames whose ID matches ident on the bits set in mask
// A mask of 0 subscribes to every frame
func (bm *BusManager) Subscribe(ident uint32, mask uint32, callback can.FrameListener) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	// Iterate over all callbacks and verify that we are not adding the same one twice
	for _, sub := range bm.subscriptions {
		if sub.ident == ident && sub.mask == mask && sub.callback == callback {
			log.Warnf("[CAN] callback for frame id x%x already added", ident)
			return nil
		}
	}
	bm.subscriptions = append(bm.subscriptions, subscription{ident: ident, mask: mask, callback: callback})
	return nil
}

// Remove every subscription of callback
func (bm *BusManager) Unsubscribe(callback can.FrameListener) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	kept := bm.subscriptions[:0]
	for _, sub := range bm.subscriptions {
		if sub.callback != callback {
			kept = append(kept, sub)
		}
	}
	bm.subscriptions = kept
}

func NewBusManager(bus can.Bus) *BusManager {
	return &BusManager{bus: bus}
}
