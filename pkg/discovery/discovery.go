// Package discovery finds the devices present on a bus.
//
// [Discover] broadcasts a single probe and collects every device answering
// within a window. [ScanOpen] polls a range of CANopen node ids one by one.
package discovery

import (
	"errors"
	"time"

	candle "github.com/samsamfire/gocandle"
	can "github.com/samsamfire/gocandle/pkg/can"
	"github.com/samsamfire/gocandle/pkg/sdo"
	"github.com/samsamfire/gocandle/pkg/transport"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultWindow  = 500 * time.Millisecond
	DefaultPerNode = 20 * time.Millisecond
)

// Probe broadcast on id 0, every device answers on its own id
// with the same two bytes
const (
	ProbeID      uint32 = 0
	ProbeCommand byte   = 0x05
)

var probe = []byte{ProbeCommand, 0x00}

func isProbeReply(frame can.Frame) bool {
	return frame.ID != ProbeID &&
		frame.ID <= can.CanSffMask &&
		frame.DLC >= 2 &&
		frame.Data[0] == ProbeCommand
}

// Broadcast a probe and return the ids of the devices answering within window,
// in the order they answered. An empty bus is not an error.
// The transport is held for the whole window, other exchanges wait.
func Discover(t *transport.Transport, window time.Duration) ([]uint16, error) {
	tx := t.Begin()
	defer tx.End()

	log.Debugf("[DISCOVERY] probing for %v", window)
	if err := tx.Send(ProbeID, probe); err != nil {
		return nil, err
	}
	ids := make([]uint16, 0)
	seen := make(map[uint16]bool)
	deadline := time.Now().Add(window)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		frame, err := tx.ReceiveMatching(isProbeReply, remaining)
		if errors.Is(err, candle.ErrTimeout) {
			break
		}
		if err != nil {
			return ids, err
		}
		id := uint16(frame.ID)
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		log.Infof("[DISCOVERY] found x%x", id)
	}
	log.Debugf("[DISCOVERY] %v device(s) found", len(ids))
	return ids, nil
}

// A CANopen node answering the device type request
type OpenNode struct {
	ID         uint8
	DeviceType uint32 // 0 if the node refused the request
}

// Read the device type (0x1000) of every node id in [from, to], waiting
// at most perNode for each answer. Nodes answering with an abort are
// still reported.
func ScanOpen(t *transport.Transport, from uint8, to uint8, perNode time.Duration) ([]OpenNode, error) {
	if from == 0 || to > 127 || from > to {
		return nil, candle.ErrInvalidArgs
	}
	nodes := make([]OpenNode, 0)
	for id := int(from); id <= int(to); id++ {
		client, err := sdo.NewClient(t, uint8(id), nil)
		if err != nil {
			return nodes, err
		}
		deviceType, err := client.WithTimeout(perNode).ReadShort(0x1000, 0)
		if _, aborted := sdo.AsAbortCode(err); err != nil && !aborted {
			if errors.Is(err, candle.ErrTimeout) {
				continue
			}
			return nodes, err
		}
		nodes = append(nodes, OpenNode{ID: uint8(id), DeviceType: uint32(deviceType)})
		log.Infof("[DISCOVERY] found CANopen node x%x, device type x%x", id, uint32(deviceType))
	}
	return nodes, nil
}
