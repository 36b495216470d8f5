package socketcanfd

import (
	"encoding/binary"
	"fmt"

	can "github.com/samsamfire/gocandle/pkg/can"
)

// Kernel frame sizes, struct can_frame and struct canfd_frame
const (
	canMTU   = 16
	canfdMTU = 72
)

// canfd_frame.flags
const canfdBRS = 0x01

// Valid CAN-FD payload lengths above 8 bytes
var fdLengths = []int{12, 16, 20, 24, 32, 48, 64}

// Length on the wire for a payload of n bytes, FD payloads are zero padded
func wireLength(n int) int {
	if n <= can.MaxClassicDataLength {
		return n
	}
	for _, length := range fdLengths {
		if n <= length {
			return length
		}
	}
	return can.MaxDataLength
}

// Pack frame into the kernel layout, classic frames use the short one
func encodeFrame(frame can.Frame) ([]byte, error) {
	if frame.DLC > can.MaxDataLength {
		return nil, fmt.Errorf("%w : dlc %v", can.ErrFrameTooLong, frame.DLC)
	}
	fd := frame.Flags&can.FlagFD != 0 || frame.DLC > can.MaxClassicDataLength
	raw := make([]byte, canMTU)
	length := int(frame.DLC)
	if fd {
		raw = make([]byte, canfdMTU)
		length = wireLength(length)
		if frame.Flags&can.FlagBRS != 0 {
			raw[5] = canfdBRS
		}
	}
	binary.NativeEndian.PutUint32(raw, frame.ID)
	raw[4] = uint8(length)
	copy(raw[8:], frame.Payload())
	return raw, nil
}

// Unpack a frame from exactly the bytes read on the socket
func decodeFrame(raw []byte) (can.Frame, error) {
	if len(raw) != canMTU && len(raw) != canfdMTU {
		return can.Frame{}, fmt.Errorf("unexpected frame size %v", len(raw))
	}
	frame := can.Frame{
		ID:  binary.NativeEndian.Uint32(raw),
		DLC: min(raw[4], uint8(len(raw)-8)),
	}
	if len(raw) == canfdMTU {
		frame.Flags |= can.FlagFD
		if raw[5]&canfdBRS != 0 {
			frame.Flags |= can.FlagBRS
		}
	}
	copy(frame.Data[:], raw[8:8+int(frame.DLC)])
	return frame, nil
}
