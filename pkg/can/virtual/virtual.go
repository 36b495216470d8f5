package virtual

import (
	"errors"
	"sync"

	can "github.com/samsamfire/gocandle/pkg/can"
	log "github.com/sirupsen/logrus"
)

// In-process virtual CAN bus, primarily used for testing and simulation
// Every bus opened on the same channel name shares one hub, frames sent
// by a bus are delivered to all the other buses of that hub.

func init() {
	can.RegisterInterface("virtual", NewVirtualCanBus)
	can.RegisterInterface("virtualcan", NewVirtualCanBus)
}

var ErrNotConnected = errors.New("virtual bus is not connected")

const rxQueueSize = 256

type hub struct {
	mu    sync.RWMutex
	buses map[*Bus]struct{}
}

var (
	hubsMu sync.Mutex
	hubs   = map[string]*hub{}
)

func getHub(channel string) *hub {
	hubsMu.Lock()
	defer hubsMu.Unlock()
	h, ok := hubs[channel]
	if !ok {
		h = &hub{buses: map[*Bus]struct{}{}}
		hubs[channel] = h
	}
	return h
}

type Bus struct {
	mu           sync.Mutex
	channel      string
	hub          *hub
	rx           chan can.Frame
	stopChan     chan struct{}
	wg           sync.WaitGroup
	framehandler can.FrameListener
	receiveOwn   bool
	isRunning    bool
	connected    bool
}

func NewVirtualCanBus(channel string, bitrate int) (can.Bus, error) {
	return &Bus{channel: channel, hub: getHub(channel)}, nil
}

// Shorthand for tests : create and connect a virtual bus on channel
func New(channel string) *Bus {
	bus, _ := NewVirtualCanBus(channel, 0)
	b := bus.(*Bus)
	_ = b.Connect()
	return b
}

// "Connect" to the hub of the channel
func (b *Bus) Connect(...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return nil
	}
	b.rx = make(chan can.Frame, rxQueueSize)
	b.stopChan = make(chan struct{})
	b.hub.mu.Lock()
	b.hub.buses[b] = struct{}{}
	b.hub.mu.Unlock()
	b.connected = true
	return nil
}

// "Disconnect" from the hub, stops the reception routine
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	b.hub.mu.Lock()
	delete(b.hub.buses, b)
	b.hub.mu.Unlock()
	b.connected = false
	close(b.stopChan)
	b.mu.Unlock()
	b.wg.Wait()
	b.mu.Lock()
	b.isRunning = false
	b.mu.Unlock()
	return nil
}

// "Send" implementation of Bus interface
func (b *Bus) Send(frame can.Frame) error {
	if frame.DLC > can.MaxDataLength {
		return can.ErrFrameTooLong
	}
	b.mu.Lock()
	connected := b.connected
	receiveOwn := b.receiveOwn
	b.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	b.hub.mu.RLock()
	targets := make([]*Bus, 0, len(b.hub.buses))
	for other := range b.hub.buses {
		if other != b || receiveOwn {
			targets = append(targets, other)
		}
	}
	b.hub.mu.RUnlock()
	for _, target := range targets {
		target.deliver(frame)
	}
	return nil
}

func (b *Bus) deliver(frame can.Frame) {
	select {
	case b.rx <- frame:
	case <-b.stopChan:
	default:
		log.Warnf("[VIRTUAL][%v] rx queue full, dropping frame %v", b.channel, frame)
	}
}

// "Subscribe" implementation of Bus interface
func (b *Bus) Subscribe(framehandler can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return ErrNotConnected
	}
	b.framehandler = framehandler
	if b.isRunning {
		return nil
	}
	// Start go routine that passes incoming traffic to frameHandler
	b.wg.Add(1)
	b.isRunning = true
	go b.handleReception(b.rx, b.stopChan)
	return nil
}

// Handle incoming traffic
func (b *Bus) handleReception(rx <-chan can.Frame, stop <-chan struct{}) {
	defer b.wg.Done()
	for {
		select {
		case <-stop:
			return
		case frame := <-rx:
			b.mu.Lock()
			handler := b.framehandler
			b.mu.Unlock()
			if handler != nil {
				handler.Handle(frame)
			}
		}
	}
}

func (b *Bus) SetReceiveOwn(receiveOwn bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receiveOwn = receiveOwn
}
