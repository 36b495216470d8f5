// Package transport serializes request/response exchanges on a shared bus.
//
// A single [Transport] is shared by every session talking over the same bus.
// It owns one transaction slot : at most one exchange is in flight at any time,
// which avoids response misattribution on a broadcast medium.
package transport

import (
	"fmt"
	"sync"
	"time"

	candle "github.com/samsamfire/gocandle"
	can "github.com/samsamfire/gocandle/pkg/can"
	log "github.com/sirupsen/logrus"
)

const rxQueueSize = 256

// Predicate selects the frames a receiver is waiting for
type Predicate func(frame can.Frame) bool

// Matches frames with the given ID
func FromID(id uint32) Predicate {
	return func(frame can.Frame) bool {
		return frame.ID == id
	}
}

// Matches frames with the given ID and a payload of at least minLength bytes
func FromIDWithLength(id uint32, minLength int) Predicate {
	return func(frame can.Frame) bool {
		return frame.ID == id && int(frame.DLC) >= minLength
	}
}

type Transport struct {
	*candle.BusManager
	slot sync.Mutex
	rx   chan can.Frame
}

// Create a transport on top of bus, the bus is not connected yet
func New(bus can.Bus) *Transport {
	return &Transport{
		BusManager: candle.NewBusManager(bus),
		rx:         make(chan can.Frame, rxQueueSize),
	}
}

// Create a bus from the interface registry and connect a transport to it
func Open(canInterface string, channel string, bitrate int) (*Transport, error) {
	bus, err := can.NewBus(canInterface, channel, bitrate)
	if err != nil {
		return nil, err
	}
	t := New(bus)
	return t, t.Connect()
}

// Connect to the bus and start receiving frames
func (t *Transport) Connect(args ...any) error {
	bus := t.Bus()
	if bus == nil {
		return fmt.Errorf("%w : no bus", candle.ErrTransport)
	}
	if err := bus.Connect(args...); err != nil {
		return fmt.Errorf("%w : %v", candle.ErrTransport, err)
	}
	if err := bus.Subscribe(t.BusManager); err != nil {
		return fmt.Errorf("%w : %v", candle.ErrTransport, err)
	}
	return t.Subscribe(0, 0, t)
}

// Disconnect from the bus, waits for the running exchange if any
func (t *Transport) Disconnect() error {
	t.slot.Lock()
	defer t.slot.Unlock()
	t.Unsubscribe(t)
	return t.Bus().Disconnect()
}

// Queue received frames for [Tx.ReceiveMatching]
// When the queue is full the oldest frame is dropped
func (t *Transport) Handle(frame can.Frame) {
	for {
		select {
		case t.rx <- frame:
			return
		default:
		}
		select {
		case dropped := <-t.rx:
			log.Warnf("[TRANSPORT] rx queue full, dropping %v", dropped)
		default:
		}
	}
}

func (t *Transport) flush() {
	for {
		select {
		case <-t.rx:
		default:
			return
		}
	}
}

// Acquire the transaction slot, blocks while another exchange is running
// Frames received before this point are discarded.
func (t *Transport) Begin() *Tx {
	t.slot.Lock()
	t.flush()
	return &Tx{t: t}
}

// Single request/response exchange
func (t *Transport) Exchange(id uint32, request []byte, predicate Predicate, timeout time.Duration) (can.Frame, error) {
	tx := t.Begin()
	defer tx.End()
	if err := tx.Send(id, request); err != nil {
		return can.Frame{}, err
	}
	return tx.ReceiveMatching(predicate, timeout)
}

// Fire-and-forget frame, still serialized with running exchanges
func (t *Transport) Send(id uint32, data []byte) error {
	tx := t.Begin()
	defer tx.End()
	return tx.Send(id, data)
}

// Tx holds the transaction slot of a [Transport] until End is called
type Tx struct {
	t    *Transport
	done bool
}

// Release the transaction slot, calling End more than once is a no-op
func (tx *Tx) End() {
	if tx.done {
		return
	}
	tx.done = true
	tx.t.slot.Unlock()
}

func (tx *Tx) Send(id uint32, data []byte) error {
	frame, err := can.NewFrameFromBytes(id, data)
	if err != nil {
		return fmt.Errorf("%w : %v bytes", candle.ErrFrameTooLong, len(data))
	}
	log.Debugf("[TRANSPORT][TX] %v", frame)
	if err := tx.t.BusManager.Send(frame); err != nil {
		return fmt.Errorf("%w : %v", candle.ErrTransport, err)
	}
	return nil
}

// Wait for the next frame accepted by predicate
// Other frames received in the meantime are discarded.
func (tx *Tx) ReceiveMatching(predicate Predicate, timeout time.Duration) (can.Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case frame := <-tx.t.rx:
			if predicate == nil || predicate(frame) {
				log.Debugf("[TRANSPORT][RX] %v", frame)
				return frame, nil
			}
			log.Debugf("[TRANSPORT][RX] ignored %v", frame)
		case <-timer.C:
			return can.Frame{}, candle.ErrTimeout
		}
	}
}
