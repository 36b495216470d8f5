// Package sim simulates drives and power distribution boards on a virtual bus.
package sim

import (
	"sync"

	can "github.com/samsamfire/gocandle/pkg/can"
	"github.com/samsamfire/gocandle/pkg/can/virtual"
	log "github.com/sirupsen/logrus"
)

// Discovery probe, broadcast on id 0 and echoed by every device with its own id
const (
	ProbeID      uint32 = 0
	probeCommand byte   = 0x05
)

func isProbe(frame can.Frame) bool {
	return frame.ID == ProbeID && frame.DLC >= 2 && frame.Data[0] == probeCommand
}

// Common part of simulated devices : a bus endpoint, a silent switch and
// a log of every request addressed to the device
type node struct {
	mu       sync.Mutex
	bus      can.Bus
	id       uint16
	silent   bool
	requests [][]byte
}

func (n *node) ID() uint16 {
	return n.id
}

// Disconnect the device from its bus
func (n *node) Close() error {
	return n.bus.Disconnect()
}

// Stop answering any frame, probes included
func (n *node) SetSilent(silent bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.silent = silent
}

// Requests received so far, oldest first
func (n *node) Requests() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	requests := make([][]byte, len(n.requests))
	copy(requests, n.requests)
	return requests
}

func (n *node) ClearRequests() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = nil
}

func (n *node) send(id uint32, payload []byte) {
	frame, err := can.NewFrameFromBytes(id, payload)
	if err != nil {
		log.Errorf("[SIM][x%x] %v", n.id, err)
		return
	}
	if err := n.bus.Send(frame); err != nil {
		log.Warnf("[SIM][x%x] %v", n.id, err)
	}
}

func (n *node) reply(payload []byte) {
	n.send(uint32(n.id), payload)
}

func (n *node) answerProbe() {
	n.send(uint32(n.id), []byte{probeCommand, 0x00})
}

// Responder answering every frame of a given id with a fixed payload,
// used to inject garbage on the bus
type Responder struct {
	node
	payload []byte
	probe   bool
}

// Reply payload to every request on id, and to probes if probe is set
func NewResponder(bus can.Bus, id uint16, payload []byte, probe bool) *Responder {
	return &Responder{node: node{bus: bus, id: id}, payload: payload, probe: probe}
}

func (r *Responder) Handle(frame can.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.silent {
		return
	}
	if isProbe(frame) {
		if r.probe {
			r.reply(r.payload)
		}
		return
	}
	if frame.ID == uint32(r.id) {
		r.requests = append(r.requests, append([]byte(nil), frame.Payload()...))
		r.reply(r.payload)
	}
}

// Start a drive on its own endpoint of a virtual channel
func StartMD(channel string, id uint16) *MD {
	bus := virtual.New(channel)
	m := NewMD(bus, id)
	_ = bus.Subscribe(m)
	return m
}

// Start a power distribution board on its own endpoint of a virtual channel
func StartPDS(channel string, id uint16) *PDS {
	bus := virtual.New(channel)
	p := NewPDS(bus, id)
	_ = bus.Subscribe(p)
	return p
}

// Start a fixed payload responder on its own endpoint of a virtual channel
func StartResponder(channel string, id uint16, payload []byte, probe bool) *Responder {
	bus := virtual.New(channel)
	r := NewResponder(bus, id, payload, probe)
	_ = bus.Subscribe(r)
	return r
}
