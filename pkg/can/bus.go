package can

import (
	"errors"
	"fmt"
)

const CanRtrFlag uint32 = 0x40000000
const CanSffMask uint32 = 0x000007FF
const CanEffMask uint32 = 0x1FFFFFFF

// Frame flags
const (
	FlagFD  uint8 = 0x01 // Frame uses CAN-FD framing
	FlagBRS uint8 = 0x02 // Bit rate switch for the data phase
)

const (
	MaxDataLength        = 64 // CAN-FD payload limit
	MaxClassicDataLength = 8
)

var ErrFrameTooLong = errors.New("frame payload exceeds bus limit")

// A CAN / CAN-FD frame
type Frame struct {
	ID    uint32
	Flags uint8
	DLC   uint8
	Data  [MaxDataLength]byte
}

func NewFrame(id uint32, flags uint8, dlc uint8) Frame {
	return Frame{ID: id, Flags: flags, DLC: dlc}
}

// Create a frame holding a copy of payload
// Payloads bigger than 8 bytes are flagged as FD
func NewFrameFromBytes(id uint32, payload []byte) (Frame, error) {
	if len(payload) > MaxDataLength {
		return Frame{}, fmt.Errorf("%w : %v bytes", ErrFrameTooLong, len(payload))
	}
	frame := Frame{ID: id, DLC: uint8(len(payload))}
	if len(payload) > MaxClassicDataLength {
		frame.Flags |= FlagFD
	}
	copy(frame.Data[:], payload)
	return frame, nil
}

// Valid part of the frame data
func (frame *Frame) Payload() []byte {
	dlc := int(frame.DLC)
	if dlc > MaxDataLength {
		dlc = MaxDataLength
	}
	return frame.Data[:dlc]
}

func (frame Frame) String() string {
	return fmt.Sprintf("x%x [%d] % x", frame.ID, frame.DLC, frame.Payload())
}

// Interface for handling a received CAN frame
type FrameListener interface {
	Handle(frame Frame)
}

// A CAN Bus interface
type Bus interface {
	Connect(...any) error                   // Connect to the CAN bus
	Disconnect() error                      // Disconnect from CAN bus
	Send(frame Frame) error                 // Send a frame on the bus
	Subscribe(callback FrameListener) error // Subscribe to all received CAN frames
}

// Register a new CAN bus interface type
// This should be called inside an init() function of plugin
func RegisterInterface(interfaceType string, newInterface NewInterfaceFunc) {
	interfaceRegistry[interfaceType] = newInterface
}

type NewInterfaceFunc func(channel string, bitrate int) (Bus, error)

var interfaceRegistry = make(map[string]NewInterfaceFunc)

// Create a new CAN bus with given interface
// Currently supported : socketcan, serial, virtual
func NewBus(canInterface string, channel string, bitrate int) (Bus, error) {
	createInterface, ok := interfaceRegistry[canInterface]
	if !ok {
		return nil, fmt.Errorf("unsupported interface : %v", canInterface)
	}
	return createInterface(channel, bitrate)
}

// List registered interface names
func Interfaces() []string {
	names := make([]string, 0, len(interfaceRegistry))
	for name := range interfaceRegistry {
		names = append(names, name)
	}
	return names
}
