package sdo

import (
	"fmt"

	candle "github.com/samsamfire/gocandle"
	can "github.com/samsamfire/gocandle/pkg/can"
	log "github.com/sirupsen/logrus"
)

var rpdoBase = [4]uint32{0x200, 0x300, 0x400, 0x500}
var tpdoBase = [4]uint32{0x180, 0x280, 0x380, 0x480}

// COB-ID of receive PDO n (1 to 4) of nodeId
func RPDO(n int, nodeId uint8) (uint32, error) {
	if n < 1 || n > len(rpdoBase) {
		return 0, fmt.Errorf("%w : rpdo %v", candle.ErrInvalidArgs, n)
	}
	return rpdoBase[n-1] + uint32(nodeId), nil
}

// COB-ID of transmit PDO n (1 to 4) of nodeId
func TPDO(n int, nodeId uint8) (uint32, error) {
	if n < 1 || n > len(tpdoBase) {
		return 0, fmt.Errorf("%w : tpdo %v", candle.ErrInvalidArgs, n)
	}
	return tpdoBase[n-1] + uint32(nodeId), nil
}

// Send a process data object, no response is expected
func (c *Client) WritePDO(cobId uint32, data []byte) error {
	if len(data) > can.MaxClassicDataLength {
		return fmt.Errorf("%w : pdo of %v bytes", candle.ErrFrameTooLong, len(data))
	}
	log.Debugf("[PDO][TX] x%x | % x", cobId, data)
	return c.transport.Send(cobId, data)
}

// Send an arbitrary frame of up to 64 bytes, no response is expected
func (c *Client) SendCustomData(cobId uint32, data []byte) error {
	log.Debugf("[CUSTOM][TX] x%x | % x", cobId, data)
	return c.transport.Send(cobId, data)
}
